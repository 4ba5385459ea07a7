// Package fileutil provides the copy, hash, and comparison primitives the
// sync pipeline builds on.
package fileutil

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"lukechampine.com/blake3"
)

// blockSize is the read granularity for hashing and comparison.
const blockSize = 8 * 1024 * 1024

// CopyFile streams src to dst using io.Copy with default permissions (0o644).
// Parent directories of dst are created as needed.
func CopyFile(src, dst string) error {
	return CopyFileMode(src, dst, 0o644)
}

// CopyFileMode streams src to dst, setting the given file mode on dst.
func CopyFileMode(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// SameContent reports whether two files are byte-for-byte identical.
// A size difference short-circuits before any content is read.
func SameContent(src, dst string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", src, err)
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", dst, err)
	}
	if srcInfo.Size() != dstInfo.Size() {
		return false, nil
	}

	f1, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer f1.Close()
	f2, err := os.Open(dst)
	if err != nil {
		return false, err
	}
	defer f2.Close()

	b1 := make([]byte, blockSize)
	b2 := make([]byte, blockSize)
	for {
		n1, err1 := io.ReadFull(f1, b1)
		n2, err2 := io.ReadFull(f2, b2)
		if n1 != n2 || !bytes.Equal(b1[:n1], b2[:n2]) {
			return false, nil
		}
		if err1 == io.EOF || err1 == io.ErrUnexpectedEOF {
			if err2 == io.EOF || err2 == io.ErrUnexpectedEOF {
				return true, nil
			}
			return false, nil
		}
		if err1 != nil {
			return false, err1
		}
		if err2 != nil {
			return false, err2
		}
	}
}

// CRC32File computes the IEEE CRC32 of the file as an uppercase 8-digit hex string.
func CRC32File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	crc := crc32.NewIEEE()
	if _, err := io.CopyBuffer(crc, f, make([]byte, blockSize)); err != nil {
		return "", err
	}
	return fmt.Sprintf("%08X", crc.Sum32()), nil
}

// MD5File computes the MD5 digest of the file as a lowercase hex string.
func MD5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, blockSize)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Blake3File computes the BLAKE3-256 digest of the file as a lowercase hex string.
func Blake3File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.CopyBuffer(h, f, make([]byte, blockSize)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
