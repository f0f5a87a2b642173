//go:build !linux && !darwin && !freebsd

package pipeline

import "errors"

// FreeSpace is not implemented on this platform; the disk space check is
// skipped with a warning.
func FreeSpace(path string) (uint64, error) {
	return 0, errors.New("free disk space check not supported on this platform")
}
