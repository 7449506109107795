package platform

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/bamsammich/moma/internal/errkind"
)

// WriteFileAtomic replaces path with data. The bytes go to a hidden sibling
// (".<name>.<uuid8>.tmp") that is fsynced and renamed over path, so a
// concurrent reader or a crash leaves either the old document or the new
// one.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	const op = "write file"

	dir, base := filepath.Split(path)
	tmp := filepath.Join(dir, "."+base+"."+uuid.NewString()[:8]+".tmp")
	pending.add(tmp)
	defer func() {
		pending.remove(tmp)
		_ = os.Remove(tmp)
	}()

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return errkind.IO(op, tmp, err)
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errkind.IO(op, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errkind.IO(op, path, err)
	}
	return nil
}

// tmpSet holds temp files that a signal may interrupt before rename.
type tmpSet struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

var pending tmpSet

func (s *tmpSet) add(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paths == nil {
		s.paths = make(map[string]struct{})
	}
	s.paths[path] = struct{}{}
}

func (s *tmpSet) remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paths, path)
}

// CleanupTmpFiles removes temp files left by writes that never finished.
func CleanupTmpFiles() {
	pending.mu.Lock()
	paths := pending.paths
	pending.paths = nil
	pending.mu.Unlock()

	for p := range paths {
		_ = os.Remove(p)
	}
}
