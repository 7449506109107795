//go:build linux

package platform

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

var kernelCopies = []kernelCopy{
	{name: "copy_file_range", run: copyFileRange},
	{name: "sendfile", run: sendfile},
}

// reserve asks the filesystem for size bytes up front. Filesystems without
// fallocate simply grow the file as it is written.
//
//nolint:gosec // G115: fd values are small non-negative integers
func reserve(f *os.File, size int64) {
	if size > 0 {
		_ = unix.Fallocate(int(f.Fd()), 0, 0, size)
	}
}

//nolint:gosec // G115: fd values are small non-negative integers
func copyFileRange(dst, src *os.File, size int64) (int64, error) {
	var roff, woff, done int64
	for done < size {
		n, err := unix.CopyFileRange(int(src.Fd()), &roff, int(dst.Fd()), &woff, int(size-done), 0)
		if err != nil {
			return done, err
		}
		if n == 0 {
			break
		}
		done += int64(n)
	}
	return done, nil
}

//nolint:gosec // G115: fd values are small non-negative integers
func sendfile(dst, src *os.File, size int64) (int64, error) {
	var off int64
	for off < size {
		n, err := unix.Sendfile(int(dst.Fd()), int(src.Fd()), &off, int(size-off))
		if err != nil {
			return off, err
		}
		if n == 0 {
			break
		}
	}
	return off, nil
}

func unsupportedCopy(err error) bool {
	for _, errno := range []error{unix.ENOSYS, unix.EXDEV, unix.EINVAL, unix.ENOTSUP, unix.EOPNOTSUPP} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
