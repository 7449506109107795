package platform

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"

	"github.com/bamsammich/moma/internal/archive"
	"github.com/bamsammich/moma/internal/errkind"
)

// HostFS implements FileSystem over an afero.Fs. On the OS filesystem
// regular files are copied in the kernel where possible and archives can be extracted.
type HostFS struct {
	fs     afero.Fs
	native bool
}

// NewHostFS returns a FileSystem backed by the real OS filesystem.
func NewHostFS() *HostFS {
	return &HostFS{fs: afero.NewOsFs(), native: true}
}

// NewFS wraps an arbitrary afero.Fs, typically afero.NewMemMapFs() in tests.
func NewFS(fsys afero.Fs) *HostFS {
	_, native := fsys.(*afero.OsFs)
	return &HostFS{fs: fsys, native: native}
}

// Afero exposes the underlying filesystem.
func (h *HostFS) Afero() afero.Fs { return h.fs }

func (h *HostFS) MkdirAll(path string) error {
	if err := h.fs.MkdirAll(path, 0o755); err != nil {
		return errkind.IO("create directory", path, err)
	}
	return nil
}

func (h *HostFS) RemoveAll(path string) error {
	if err := h.fs.RemoveAll(path); err != nil {
		return errkind.IO("remove", path, err)
	}
	return nil
}

func (h *HostFS) Exists(path string) (bool, error) {
	ok, err := afero.Exists(h.fs, path)
	if err != nil {
		return false, errkind.IO("stat", path, err)
	}
	return ok, nil
}

// IsEmptyDir reports whether path has no entries. A missing directory
// counts as empty.
func (h *HostFS) IsEmptyDir(path string) (bool, error) {
	info, err := h.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, errkind.IO("stat", path, err)
	}
	if !info.IsDir() {
		return false, errkind.WithPath(errkind.ErrPrecondition, "check empty", path,
			errors.New("not a directory"))
	}
	empty, err := afero.IsEmpty(h.fs, path)
	if err != nil {
		return false, errkind.IO("read directory", path, err)
	}
	return empty, nil
}

// ListDirs returns the names of the subdirectories of path, sorted. A
// missing path has none.
func (h *HostFS) ListDirs(path string) ([]string, error) {
	entries, err := afero.ReadDir(h.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errkind.IO("list directory", path, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}

// CopyTree copies the contents of src into dst, overwriting files that
// already exist in dst. Entries for which skip returns true are left out;
// a skipped directory is not descended into.
func (h *HostFS) CopyTree(src, dst string, skip SkipFunc) error {
	return afero.Walk(h.fs, src, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return errkind.IO("copy tree", path, err)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("copy tree: %w", err)
		}
		if rel == "." {
			return h.MkdirAll(dst)
		}
		if skip != nil && skip(filepath.ToSlash(rel), info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		switch {
		case info.IsDir():
			if err := h.fs.MkdirAll(target, info.Mode().Perm()|0o700); err != nil {
				return errkind.IO("copy tree", target, err)
			}
			return nil
		case info.Mode()&fs.ModeSymlink != 0:
			return h.copySymlink(path, target)
		case info.Mode().IsRegular():
			return h.copyFile(path, target, info)
		default:
			return nil
		}
	})
}

func (h *HostFS) copyFile(src, dst string, info fs.FileInfo) error {
	if err := h.clearTarget(dst); err != nil {
		return err
	}

	if h.native {
		in, err := os.Open(src)
		if err != nil {
			return errkind.IO("copy file", src, err)
		}
		defer in.Close()
		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return errkind.IO("copy file", dst, err)
		}
		if _, err := copyRegular(out, in, info.Size()); err != nil {
			out.Close()
			return errkind.IO("copy file", src, err)
		}
		if err := out.Close(); err != nil {
			return errkind.IO("copy file", dst, err)
		}
		return nil
	}

	in, err := h.fs.Open(src)
	if err != nil {
		return errkind.IO("copy file", src, err)
	}
	defer in.Close()
	out, err := h.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errkind.IO("copy file", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errkind.IO("copy file", dst, err)
	}
	if err := out.Close(); err != nil {
		return errkind.IO("copy file", dst, err)
	}
	return nil
}

func (h *HostFS) copySymlink(src, dst string) error {
	reader, ok := h.fs.(afero.LinkReader)
	linker, ok2 := h.fs.(afero.Linker)
	if !ok || !ok2 {
		return nil
	}
	link, err := reader.ReadlinkIfPossible(src)
	if err != nil {
		return errkind.IO("read link", src, err)
	}
	if err := h.clearTarget(dst); err != nil {
		return err
	}
	if err := linker.SymlinkIfPossible(link, dst); err != nil {
		return errkind.IO("create link", dst, err)
	}
	return nil
}

// clearTarget removes a non-directory entry at path so a later layer can
// replace it.
func (h *HostFS) clearTarget(path string) error {
	info, err := lstat(h.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errkind.IO("stat", path, err)
	}
	if info.IsDir() {
		return errkind.WithPath(errkind.ErrPrecondition, "copy tree", path,
			errors.New("a directory is in the way"))
	}
	if err := h.fs.Remove(path); err != nil {
		return errkind.IO("remove", path, err)
	}
	return nil
}

// Move renames src to dst, copying across filesystems when a rename is not
// possible. The parent of dst must exist.
func (h *HostFS) Move(src, dst string) error {
	err := h.fs.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return errkind.IO("move", src, err)
	}

	info, err := h.fs.Stat(src)
	if err != nil {
		return errkind.IO("move", src, err)
	}
	if err := h.copyFile(src, dst, info); err != nil {
		return err
	}
	if err := h.fs.Remove(src); err != nil {
		return errkind.IO("move", src, err)
	}
	return nil
}

// Extract unpacks an archive into dir. Only the OS filesystem supports it.
func (h *HostFS) Extract(archivePath, dir string, flatten bool) error {
	if !h.native {
		return errkind.Errorf(errkind.ErrUnsupported, "extract",
			"archive extraction requires the host filesystem")
	}
	return archive.Extract(archivePath, dir, flatten)
}

func lstat(fsys afero.Fs, path string) (fs.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}
