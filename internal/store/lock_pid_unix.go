//go:build !windows

package store

import (
	"errors"

	"golang.org/x/sys/unix"
)

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM: the process exists but belongs to another user.
	return errors.Is(err, unix.EPERM)
}
