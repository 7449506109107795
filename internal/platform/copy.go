package platform

import (
	"io"
	"os"
	"sync"
)

const copyBufferSize = 1 << 20

var copyBuffers = sync.Pool{
	New: func() any {
		b := make([]byte, copyBufferSize)
		return &b
	},
}

// kernelCopy copies size bytes from src to dst without passing them through
// user space. It reports how many bytes it moved.
type kernelCopy struct {
	name string
	run  func(dst, src *os.File, size int64) (int64, error)
}

// copyRegular fills dst with the first size bytes of src and returns the
// name of the method that did it. Kernel paths are tried first; one that
// the filesystem cannot serve (before moving any byte) falls through to
// the next, ending in a buffered copy.
func copyRegular(dst, src *os.File, size int64) (string, error) {
	reserve(dst, size)

	for _, kc := range kernelCopies {
		n, err := kc.run(dst, src, size)
		if err == nil {
			return kc.name, nil
		}
		if n > 0 || !unsupportedCopy(err) {
			return kc.name, err
		}
	}

	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	bufp := copyBuffers.Get().(*[]byte) //nolint:errcheck,forcetypeassert // pool only holds *[]byte
	defer copyBuffers.Put(bufp)

	// Hide ReadFrom so io.CopyBuffer cannot route back into the kernel path.
	w := struct{ io.Writer }{dst}
	if _, err := io.CopyBuffer(w, io.LimitReader(src, size), *bufp); err != nil {
		return "buffered", err
	}
	return "buffered", nil
}
