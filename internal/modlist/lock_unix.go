//go:build unix

package modlist

import (
	"errors"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an advisory flock(2) on a sidecar file.
type fileLock struct {
	f *os.File
}

// lockExclusive creates the lock file if needed and blocks until no other
// process holds it.
func lockExclusive(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := flock(f, unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return &fileLock{f: f}, nil
}

// lockShared takes a shared lock. A missing lock file means no writer has
// ever run, so there is nothing to wait for and nil is returned.
func lockShared(path string) (*fileLock, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := flock(f, unix.LOCK_SH); err != nil {
		f.Close()
		return nil, err
	}
	return &fileLock{f: f}, nil
}

//nolint:gosec // G115: fd values are small non-negative integers
func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

func (l *fileLock) unlock() {
	if l == nil {
		return
	}
	_ = flock(l.f, unix.LOCK_UN)
	_ = l.f.Close()
}
