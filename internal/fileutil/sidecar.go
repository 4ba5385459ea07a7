package fileutil

import (
	"bufio"
	"os"
	"strings"
)

// Sidecar file extensions. An .md5 sidecar records the weak checksum as the
// first whitespace-delimited token of its first line (md5sum format). A
// .blake3 sidecar holds a single hex digest plus newline.
const (
	MD5SidecarExt    = ".md5"
	Blake3SidecarExt = ".blake3"
)

// ReadMD5Sidecar returns the expected MD5 for path from its .md5 sidecar,
// or ("", false) when no readable sidecar exists.
func ReadMD5Sidecar(path string) (string, bool) {
	f, err := os.Open(path + MD5SidecarExt)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", false
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// ReadBlake3Sidecar returns the recorded BLAKE3 digest for path from its
// .blake3 sidecar, or ("", false) when no readable sidecar exists.
func ReadBlake3Sidecar(path string) (string, bool) {
	data, err := os.ReadFile(path + Blake3SidecarExt)
	if err != nil {
		return "", false
	}
	digest := strings.TrimSpace(string(data))
	if digest == "" {
		return "", false
	}
	return digest, true
}

// WriteBlake3Sidecar computes the BLAKE3 digest of path and writes it to
// path.blake3, establishing a baseline for future runs.
func WriteBlake3Sidecar(path string) (string, error) {
	digest, err := Blake3File(path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path+Blake3SidecarExt, []byte(digest+"\n"), 0o644); err != nil {
		return "", err
	}
	return digest, nil
}

// CopySidecar copies whichever sidecar exists for src next to dst, preferring
// .md5 over .blake3 when both are present. It returns the propagated sidecar
// kind ("md5", "blake3", or "") and whether the copy succeeded.
func CopySidecar(src, dst string) (string, bool) {
	if _, err := os.Stat(src + MD5SidecarExt); err == nil {
		return "md5", CopyFile(src+MD5SidecarExt, dst+MD5SidecarExt) == nil
	}
	if _, err := os.Stat(src + Blake3SidecarExt); err == nil {
		return "blake3", CopyFile(src+Blake3SidecarExt, dst+Blake3SidecarExt) == nil
	}
	return "", false
}
