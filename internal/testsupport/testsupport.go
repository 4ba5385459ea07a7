// Package testsupport holds helpers shared by package tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dropsync/internal/catalog"
	"dropsync/internal/config"
)

// NewConfig returns a Config whose drop, repository, log, and catalog paths
// all live under fresh temp directories.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DropDir = filepath.Join(root, "drop")
	cfg.Paths.RepositoryDir = filepath.Join(root, "repo")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Catalog.Path = filepath.Join(root, "catalog.db")
	for _, dir := range []string{cfg.Paths.DropDir, cfg.Paths.RepositoryDir, cfg.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return &cfg
}

// WriteFile writes content under dir, creating parent directories, and
// returns the absolute path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// WriteSyncSpec writes raw YAML as the drop folder's sync spec.
func WriteSyncSpec(t *testing.T, dropDir, yaml string) {
	t.Helper()
	WriteFile(t, dropDir, config.SyncFileName, yaml)
}

// OpenCatalog opens (and closes on cleanup) the configured catalog database.
func OpenCatalog(t *testing.T, cfg *config.Config) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
