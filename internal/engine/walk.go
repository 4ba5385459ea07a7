package engine

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"dropsync/internal/fileutil"
)

// listDataFiles walks root and returns every regular file that is not itself
// a checksum sidecar, in deterministic order.
func listDataFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, fileutil.MD5SidecarExt) || strings.HasSuffix(path, fileutil.Blake3SidecarExt) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
