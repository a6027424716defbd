//go:build windows

package session

import "errors"

var errScanUnsupported = errors.New("process tree scan not supported on windows")

// descendants is unavailable on Windows; the poller treats every scan as
// unknown, so server sessions never report a false stop.
func descendants(pid int) ([]int, error) {
	return nil, errScanUnsupported
}
