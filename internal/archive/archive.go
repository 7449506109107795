// Package archive extracts downloaded mod archives.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bamsammich/moma/internal/errkind"
)

// Format is a supported archive container.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatSevenZip
	FormatTar
	FormatTarGzip
	FormatTarZstd
	FormatTarLZ4
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatSevenZip:
		return "7z"
	case FormatTar:
		return "tar"
	case FormatTarGzip:
		return "tar.gz"
	case FormatTarZstd:
		return "tar.zst"
	case FormatTarLZ4:
		return "tar.lz4"
	default:
		return "unknown"
	}
}

var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGzip},
	{".tgz", FormatTarGzip},
	{".tar.zst", FormatTarZstd},
	{".tzst", FormatTarZstd},
	{".tar.lz4", FormatTarLZ4},
	{".tar", FormatTar},
	{".zip", FormatZip},
	{".7z", FormatSevenZip},
}

// Detect returns the format implied by the file name, matched case
// insensitively.
func Detect(name string) Format {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format
		}
	}
	return FormatUnknown
}

// Extract unpacks archivePath into targetDir, creating it if needed and
// merging into any existing contents. With flatten set, an archive whose
// only top-level entry is a directory has that directory's contents
// hoisted into targetDir.
//
// Entries are first unpacked into a scratch directory next to targetDir so
// a corrupt archive leaves targetDir untouched.
func Extract(archivePath, targetDir string, flatten bool) error {
	const op = "extract"

	if _, err := os.Stat(archivePath); err != nil {
		return errkind.IO(op, archivePath, err)
	}
	format := Detect(archivePath)
	if format == FormatUnknown {
		ext := filepath.Ext(archivePath)
		if ext == "" {
			return errkind.WithPath(errkind.ErrUnsupported, op, archivePath,
				errors.New("archive file has no extension"))
		}
		return errkind.WithPath(errkind.ErrUnsupported, op, archivePath,
			fmt.Errorf("unsupported archive format %s", strings.ToLower(ext)))
	}

	parent := filepath.Dir(filepath.Clean(targetDir))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return errkind.IO(op, parent, err)
	}
	scratch := filepath.Join(parent, fmt.Sprintf(".extract-%s", uuid.New().String()[:8]))
	if err := os.Mkdir(scratch, 0o755); err != nil {
		return errkind.IO(op, scratch, err)
	}
	defer os.RemoveAll(scratch)

	if err := unpack(format, archivePath, scratch); err != nil {
		return err
	}

	root := scratch
	if flatten {
		inner, err := soleDirectory(scratch)
		if err != nil {
			return errkind.IO(op, scratch, err)
		}
		if inner != "" {
			root = inner
		}
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return errkind.IO(op, targetDir, err)
	}
	if err := mergeInto(root, targetDir); err != nil {
		return errkind.IO(op, targetDir, err)
	}
	return nil
}

func unpack(format Format, archivePath, dir string) error {
	switch format {
	case FormatZip:
		return unpackZip(archivePath, dir)
	case FormatSevenZip:
		return unpackSevenZip(archivePath, dir)
	default:
		return unpackTar(format, archivePath, dir)
	}
}

// soleDirectory returns the path of dir's only entry when that entry is a
// directory, or "" otherwise.
func soleDirectory(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return "", nil
	}
	return filepath.Join(dir, entries[0].Name()), nil
}

// mergeInto moves every entry of src into dst. Directories present on both
// sides are merged; anything else in dst is replaced.
func mergeInto(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())

		existing, err := os.Lstat(to)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return err
		case existing.IsDir() && e.IsDir():
			if err := mergeInto(from, to); err != nil {
				return err
			}
			continue
		default:
			if err := os.RemoveAll(to); err != nil {
				return err
			}
		}
		if err := os.Rename(from, to); err != nil {
			return err
		}
	}
	return nil
}

// entryPath resolves an archive entry name inside dir, rejecting absolute
// names and any that escape dir.
func entryPath(dir, name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("absolute entry path %q", name)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry path %q escapes the archive root", name)
	}
	if clean == "." {
		return dir, nil
	}
	return filepath.Join(dir, clean), nil
}

// writeEntry creates a regular file for an archive entry. Read errors from r
// are reported as corruption and write errors as I/O failures.
func writeEntry(path string, mode fs.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errkind.IO("extract", path, err)
	}
	perm := mode.Perm() | 0o600
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return errkind.IO("extract", path, err)
	}

	_, err = io.Copy(out, readerOnly{r})
	closeErr := out.Close()
	if err != nil {
		var rerr readError
		if errors.As(err, &rerr) {
			return errkind.WithPath(errkind.ErrCorrupt, "extract", path, rerr.err)
		}
		return errkind.IO("extract", path, err)
	}
	if closeErr != nil {
		return errkind.IO("extract", path, closeErr)
	}
	return nil
}

type readError struct{ err error }

func (e readError) Error() string { return e.err.Error() }

// readerOnly tags read failures so writeEntry can tell them from write
// failures after io.Copy.
type readerOnly struct{ r io.Reader }

func (r readerOnly) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, readError{err: err}
	}
	return n, err
}

func corrupt(path string, err error) error {
	return errkind.WithPath(errkind.ErrCorrupt, "extract", path, err)
}
