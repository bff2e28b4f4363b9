//go:build !windows

package store

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// replaceFile renames tmpPath over finalPath and fsyncs the parent so the
// new report or summary survives a crash right after the write.
func replaceFile(tmpPath, finalPath string) error {
	if err := unix.Rename(tmpPath, finalPath); err != nil {
		return err
	}
	fd, err := unix.Open(filepath.Dir(finalPath), unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil
	}
	_ = unix.Fsync(fd)
	_ = unix.Close(fd)
	return nil
}
