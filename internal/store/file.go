package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteFileAtomic writes b next to path and swaps it in, so readers never see
// a half-written report or request file.
func WriteFileAtomic(path string, b []byte) error {
	return WriteFileAtomicPerm(path, b, 0o644)
}

// WriteFileAtomicPerm is WriteFileAtomic with an explicit final mode. The mode is
// applied with chmod after the swap so the process umask cannot narrow it.
func WriteFileAtomicPerm(path string, b []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.tmp-%d", path, time.Now().UnixNano())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}()

	if _, err := f.Write(b); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := replaceFile(tmp, path); err != nil {
		return err
	}
	if perm != 0o644 {
		return os.Chmod(path, perm)
	}
	return nil
}
