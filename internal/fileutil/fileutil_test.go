package fileutil_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dropsync/internal/fileutil"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCopyFileCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "a.bin", "payload")
	dst := filepath.Join(dir, "nested", "deep", "a.bin")

	if err := fileutil.CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("copied content = %q", data)
	}
}

func TestSameContent(t *testing.T) {
	dir := t.TempDir()
	a := writeFixture(t, dir, "a.bin", "identical bytes")
	b := writeFixture(t, dir, "b.bin", "identical bytes")
	c := writeFixture(t, dir, "c.bin", "identical bytez")
	d := writeFixture(t, dir, "d.bin", "short")

	if same, err := fileutil.SameContent(a, b); err != nil || !same {
		t.Fatalf("identical files: same=%v err=%v", same, err)
	}
	if same, err := fileutil.SameContent(a, c); err != nil || same {
		t.Fatalf("same-size different files: same=%v err=%v", same, err)
	}
	if same, err := fileutil.SameContent(a, d); err != nil || same {
		t.Fatalf("different-size files: same=%v err=%v", same, err)
	}
}

func TestSameContentEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFixture(t, dir, "a.bin", "")
	b := writeFixture(t, dir, "b.bin", "")
	if same, err := fileutil.SameContent(a, b); err != nil || !same {
		t.Fatalf("empty files: same=%v err=%v", same, err)
	}
}

func TestHashDigestShapes(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "a.bin", "hash me")

	crc, err := fileutil.CRC32File(path)
	if err != nil {
		t.Fatalf("CRC32File: %v", err)
	}
	if len(crc) != 8 || crc != strings.ToUpper(crc) {
		t.Fatalf("crc32 digest = %q", crc)
	}

	md5Digest, err := fileutil.MD5File(path)
	if err != nil {
		t.Fatalf("MD5File: %v", err)
	}
	if len(md5Digest) != 32 {
		t.Fatalf("md5 digest = %q", md5Digest)
	}

	b3, err := fileutil.Blake3File(path)
	if err != nil {
		t.Fatalf("Blake3File: %v", err)
	}
	if len(b3) != 64 {
		t.Fatalf("blake3 digest length = %d", len(b3))
	}
}

func TestHashingIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := writeFixture(t, dir, "a.bin", "stable content")
	b := writeFixture(t, dir, "b.bin", "stable content")

	h1, err := fileutil.Blake3File(a)
	if err != nil {
		t.Fatalf("Blake3File: %v", err)
	}
	h2, err := fileutil.Blake3File(b)
	if err != nil {
		t.Fatalf("Blake3File: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("identical content hashed differently: %s vs %s", h1, h2)
	}
}

func TestReadMD5SidecarFirstToken(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "b.bin", "data")
	writeFixture(t, dir, "b.bin.md5", "0123456789abcdef0123456789abcdef  b.bin\nsecond line ignored\n")

	digest, ok := fileutil.ReadMD5Sidecar(src)
	if !ok {
		t.Fatal("expected sidecar digest")
	}
	if digest != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("digest = %q", digest)
	}
}

func TestReadMD5SidecarMissing(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "a.bin", "data")
	if _, ok := fileutil.ReadMD5Sidecar(src); ok {
		t.Fatal("expected no sidecar")
	}
}

func TestWriteBlake3SidecarBaseline(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "a.bin", "baseline me")

	digest, err := fileutil.WriteBlake3Sidecar(src)
	if err != nil {
		t.Fatalf("WriteBlake3Sidecar: %v", err)
	}
	data, err := os.ReadFile(src + fileutil.Blake3SidecarExt)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if string(data) != digest+"\n" {
		t.Fatalf("sidecar content = %q, digest = %q", data, digest)
	}
	if len(digest) != 64 {
		t.Fatalf("digest length = %d", len(digest))
	}
}

func TestCopySidecarPrefersMD5(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "a.bin", "data")
	writeFixture(t, dir, "a.bin.md5", "digest a.bin\n")
	writeFixture(t, dir, "a.bin.blake3", "deadbeef\n")
	dst := filepath.Join(dir, "out", "a.bin")
	if err := fileutil.CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}

	kind, ok := fileutil.CopySidecar(src, dst)
	if kind != "md5" || !ok {
		t.Fatalf("CopySidecar = %q, %v", kind, ok)
	}
	if _, err := os.Stat(dst + fileutil.MD5SidecarExt); err != nil {
		t.Fatalf("expected propagated md5 sidecar: %v", err)
	}
	if _, err := os.Stat(dst + fileutil.Blake3SidecarExt); err == nil {
		t.Fatal("blake3 sidecar should not be propagated when md5 exists")
	}
}

func TestCopySidecarNonePresent(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "a.bin", "data")
	if kind, ok := fileutil.CopySidecar(src, filepath.Join(dir, "out.bin")); kind != "" || ok {
		t.Fatalf("CopySidecar = %q, %v", kind, ok)
	}
}
