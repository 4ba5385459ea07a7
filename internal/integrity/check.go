package integrity

import (
	"strings"

	"dropsync/internal/fileutil"
	"dropsync/internal/record"
)

// CheckStatus is the outcome of auditing one file against its sidecar.
type CheckStatus struct {
	Path     string
	Method   string
	Checked  bool
	OK       bool
	Expected string
	Computed string
}

// CheckFile verifies path against whichever sidecar it has, without ever
// writing one. Files with no sidecar report Checked=false.
func CheckFile(path string) (CheckStatus, error) {
	status := CheckStatus{Path: path}

	if expected, ok := fileutil.ReadMD5Sidecar(path); ok {
		computed, err := fileutil.MD5File(path)
		if err != nil {
			return status, err
		}
		status.Method = record.MethodWeakChecksum
		status.Checked = true
		status.Expected = expected
		status.Computed = computed
		status.OK = strings.EqualFold(computed, expected)
		return status, nil
	}
	if expected, ok := fileutil.ReadBlake3Sidecar(path); ok {
		computed, err := fileutil.Blake3File(path)
		if err != nil {
			return status, err
		}
		status.Method = record.MethodStrongHash
		status.Checked = true
		status.Expected = expected
		status.Computed = computed
		status.OK = strings.EqualFold(computed, expected)
		return status, nil
	}
	return status, nil
}
