// Package modlist persists the mod list document: every known mod and the
// status of each of its archives.
package modlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bamsammich/moma/internal/checksum"
	"github.com/bamsammich/moma/internal/errkind"
	"github.com/bamsammich/moma/internal/platform"
	"github.com/bamsammich/moma/internal/workspace"
)

// Store reads and rewrites the mod list document of one workspace. Every
// mutation reads the whole document, changes it in memory and atomically
// replaces the file, all while holding an exclusive flock on a sidecar lock
// file, so concurrent moma processes cannot lose each other's updates.
type Store struct {
	ws *workspace.Workspace
	fs platform.FileSystem

	// Flatten hoists a lone top-level directory when installing archives.
	Flatten bool

	Logger *slog.Logger
}

// NewStore returns the store for ws.
func NewStore(ws *workspace.Workspace) *Store {
	return &Store{ws: ws, fs: ws.FS()}
}

func (s *Store) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Path returns the document's location.
func (s *Store) Path() string { return s.ws.ModListFile() }

func (s *Store) lockPath() string { return s.Path() + ".lock" }

// ArchiveDest is where a download of fileName is written before staging.
func (s *Store) ArchiveDest(fileName string) string {
	return filepath.Join(s.ws.CacheDir(), fileName)
}

// Read returns the document, or an empty list if it does not exist yet.
func (s *Store) Read() (List, error) {
	lock, err := lockShared(s.lockPath())
	if err != nil {
		return List{}, errkind.IO("lock mod list", s.lockPath(), err)
	}
	defer lock.unlock()
	return s.read()
}

// Write replaces the whole document with list.
func (s *Store) Write(list List) error {
	return s.mutate(func(l *List) error {
		*l = list
		return nil
	})
}

func (s *Store) read() (List, error) {
	const op = "read mod list"

	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return List{Mods: []Mod{}}, nil
	}
	if err != nil {
		return List{}, errkind.WithPath(errkind.ErrIO, op, s.Path(), err)
	}

	var list List
	if err := json.Unmarshal(data, &list); err != nil {
		return List{}, errkind.WithPath(errkind.ErrCorrupt, op, s.Path(), err)
	}
	if list.Mods == nil {
		list.Mods = []Mod{}
	}
	return list, nil
}

func (s *Store) write(list List) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mod list: %w", err)
	}
	if err := platform.WriteFileAtomic(s.Path(), data, 0o644); err != nil {
		return fmt.Errorf("write mod list: %w", err)
	}
	return nil
}

// mutate runs fn over the current document under the exclusive lock and
// writes the result back. Nothing is written if fn fails.
func (s *Store) mutate(fn func(*List) error) error {
	lock, err := lockExclusive(s.lockPath())
	if err != nil {
		return errkind.IO("lock mod list", s.lockPath(), err)
	}
	defer lock.unlock()

	list, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(&list); err != nil {
		return err
	}
	return s.write(list)
}

// AddArchive records archive under mod, creating the mod entry if needed.
// An archive whose FileUID is already present under that mod is left as is.
func (s *Store) AddArchive(mod Mod, archive Archive) error {
	return s.mutate(func(l *List) error {
		existing, ok := l.Mod(mod.UID)
		if !ok {
			l.Mods = append(l.Mods, Mod{UID: mod.UID, Name: mod.Name, Archives: []Archive{archive}})
			return nil
		}
		for _, a := range existing.Archives {
			if a.FileUID == archive.FileUID {
				return nil
			}
		}
		existing.Archives = append(existing.Archives, archive)
		return nil
	})
}

// UpdateArchive applies update to the archive identified by (modUID,
// fileUID). It fails with ErrNotFound if the key does not resolve and with
// ErrPrecondition if update would move an Installed archive to another
// status.
func (s *Store) UpdateArchive(modUID, fileUID uint64, update func(*Archive)) error {
	return s.mutate(func(l *List) error {
		a, ok := l.Archive(modUID, fileUID)
		if !ok {
			return errkind.Errorf(errkind.ErrNotFound, "update archive",
				"archive with file_uid %d under mod_uid %d not found", fileUID, modUID)
		}
		before := a.Status
		update(a)
		if before.Kind == KindInstalled && a.Status != before {
			return errkind.Errorf(errkind.ErrPrecondition, "update archive",
				"archive %d of mod %d is installed; refusing to mark it %s", fileUID, modUID, a.Status)
		}
		return nil
	})
}

// BeginDownload records archive under mod as Downloading, creating the mod
// and archive entries if needed. Installed and Downloaded archives are
// refused. For any other prior status claim runs under the list lock and may
// refuse by returning an error; nothing is written in that case.
func (s *Store) BeginDownload(mod Mod, archive Archive, claim func(prev Status) error) error {
	const op = "begin download"
	return s.mutate(func(l *List) error {
		prev := Unknown()
		existing, found := l.Archive(mod.UID, archive.FileUID)
		if found {
			prev = existing.Status
		}
		switch prev.Kind {
		case KindInstalled:
			return errkind.Errorf(errkind.ErrPrecondition, op,
				"archive %d of mod %d is already installed", archive.FileUID, mod.UID)
		case KindDownloaded:
			return errkind.Errorf(errkind.ErrPrecondition, op,
				"archive %d of mod %d is already downloaded", archive.FileUID, mod.UID)
		}
		if claim != nil {
			if err := claim(prev); err != nil {
				return err
			}
		}

		archive.Status = Downloading()
		archive.Checksum = ""
		if found {
			*existing = archive
			return nil
		}
		if m, ok := l.Mod(mod.UID); ok {
			m.Archives = append(m.Archives, archive)
			return nil
		}
		l.Mods = append(l.Mods, Mod{UID: mod.UID, Name: mod.Name, Archives: []Archive{archive}})
		return nil
	})
}

// ArchiveStatus returns the status of (modUID, fileUID), or Unknown if no
// such archive is recorded.
func (s *Store) ArchiveStatus(modUID, fileUID uint64) (Status, error) {
	list, err := s.Read()
	if err != nil {
		return Status{}, err
	}
	if a, ok := list.Archive(modUID, fileUID); ok {
		return a.Status, nil
	}
	return Unknown(), nil
}

// Lookup returns the mod and archive identified by (modUID, fileUID).
func (s *Store) Lookup(modUID, fileUID uint64) (Mod, Archive, error) {
	list, err := s.Read()
	if err != nil {
		return Mod{}, Archive{}, err
	}
	a, ok := list.Archive(modUID, fileUID)
	if !ok {
		return Mod{}, Archive{}, errkind.Errorf(errkind.ErrNotFound, "lookup archive",
			"archive with file_uid %d under mod_uid %d not found", fileUID, modUID)
	}
	m, _ := list.Mod(modUID)
	return *m, *a, nil
}

// ArchivesWithStatus returns the mods that have archives of the given kind,
// each carrying only those archives.
func (s *Store) ArchivesWithStatus(kind Kind) ([]Mod, error) {
	list, err := s.Read()
	if err != nil {
		return nil, err
	}
	var out []Mod
	for _, m := range list.Mods {
		var matched []Archive
		for _, a := range m.Archives {
			if a.Status.Kind == kind {
				matched = append(matched, a)
			}
		}
		if len(matched) > 0 {
			out = append(out, Mod{UID: m.UID, Name: m.Name, Archives: matched})
		}
	}
	return out, nil
}

// InstalledOrder returns the uids of installed mods in merge order: the
// installed entries of loadOrder first, in that order, then every other
// installed mod in document order. Later mods take precedence.
func (s *Store) InstalledOrder(loadOrder []uint64) ([]uint64, error) {
	list, err := s.Read()
	if err != nil {
		return nil, err
	}

	installed := make(map[uint64]bool, len(list.Mods))
	for _, m := range list.Mods {
		if m.Installed() {
			installed[m.UID] = true
		}
	}

	var order []uint64
	seen := make(map[uint64]bool, len(installed))
	for _, uid := range loadOrder {
		if installed[uid] && !seen[uid] {
			order = append(order, uid)
			seen[uid] = true
		}
	}
	for _, m := range list.Mods {
		if installed[m.UID] && !seen[m.UID] {
			order = append(order, m.UID)
			seen[m.UID] = true
		}
	}
	return order, nil
}

// StageArchive moves a downloaded archive into the mod's staging directory
// and marks it Downloaded. The archive must carry a path.
func (s *Store) StageArchive(mod Mod, archive Archive) error {
	const op = "stage archive"

	if archive.ArchivePath == nil {
		return errkind.Errorf(errkind.ErrPrecondition, op,
			"archive %q has no path; it was never downloaded", archive.FileName)
	}

	dir := s.ws.StagingArchivesDir(mod.UID)
	if err := s.fs.MkdirAll(dir); err != nil {
		return err
	}
	target := filepath.Join(dir, archive.FileName)
	if err := s.fs.Move(*archive.ArchivePath, target); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger().Debug("archive staged", "mod_uid", mod.UID, "file_uid", archive.FileUID, "path", target)
	return s.UpdateArchive(mod.UID, archive.FileUID, func(a *Archive) {
		a.Status = Downloaded()
		a.ArchivePath = StringPtr(target)
	})
}

// InstallArchive extracts a staged archive into the mod's directory,
// deletes the archive and marks it Installed. A checksum mismatch or an
// extraction failure leaves the status unchanged.
func (s *Store) InstallArchive(mod Mod, archive Archive) error {
	const op = "install archive"

	if archive.ArchivePath == nil {
		return errkind.Errorf(errkind.ErrPrecondition, op,
			"no archive path found for %q", archive.FileName)
	}
	path := *archive.ArchivePath

	if archive.Checksum != "" {
		sum, err := checksum.File(path)
		if err != nil {
			return errkind.IO(op, path, err)
		}
		if sum != archive.Checksum {
			return errkind.WithPath(errkind.ErrCorrupt, op, path,
				fmt.Errorf("checksum mismatch: recorded %s, found %s", archive.Checksum, sum))
		}
	}

	if err := s.fs.Extract(path, s.ws.ModDir(mod.UID), s.Flatten); err != nil {
		return err
	}
	if err := s.fs.RemoveAll(path); err != nil {
		return err
	}

	s.logger().Info("archive installed", "mod_uid", mod.UID, "file_uid", archive.FileUID)
	return s.UpdateArchive(mod.UID, archive.FileUID, func(a *Archive) {
		a.Status = Installed()
		a.ArchivePath = nil
	})
}
