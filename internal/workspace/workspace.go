// Package workspace derives the per-game directory layout and materializes
// it on disk.
package workspace

import (
	"errors"
	"path/filepath"
	"strconv"

	"github.com/bamsammich/moma/internal/config"
	"github.com/bamsammich/moma/internal/errkind"
	"github.com/bamsammich/moma/internal/platform"
)

const (
	cacheDir    = "cache"
	trackingDir = "tracking"
	modsDir     = "mods"
	stagingDir  = "staging"
	archivesDir = "archives"
	sinkDir     = "sink"
	overlayDir  = ".overlay"
	mergedDir   = "merged"
	scratchDir  = "work"
	activeDir   = "active"
	protonDir   = "proton"

	// ModListFile is the name of the mod list document in the workspace root.
	ModListFile = "mod-list.json"
)

// Workspace is a stateless view over one game's subtree of the moma work
// directory. It is recomputed on every invocation.
type Workspace struct {
	root   string
	gameID string
	game   config.GameConfig
	fs     platform.FileSystem
	sys    platform.System
}

// New returns the workspace for gameID under workDir.
func New(workDir, gameID string, game config.GameConfig, fs platform.FileSystem, sys platform.System) *Workspace {
	return &Workspace{
		root:   filepath.Join(workDir, gameID),
		gameID: gameID,
		game:   game,
		fs:     fs,
		sys:    sys,
	}
}

func (w *Workspace) GameID() string { return w.gameID }
func (w *Workspace) Game() config.GameConfig { return w.game }
func (w *Workspace) FS() platform.FileSystem { return w.fs }
func (w *Workspace) Root() string { return w.root }
func (w *Workspace) GameDir() string { return w.game.Path }
func (w *Workspace) ProtonBinary() string { return filepath.Join(w.game.ProtonDir, "proton") }
func (w *Workspace) CacheDir() string { return filepath.Join(w.root, cacheDir) }
func (w *Workspace) TrackingDir() string { return filepath.Join(w.root, cacheDir, trackingDir) }
func (w *Workspace) ModsDir() string { return filepath.Join(w.root, modsDir) }
func (w *Workspace) StagingDir() string { return filepath.Join(w.root, stagingDir) }
func (w *Workspace) SinkDir() string { return filepath.Join(w.root, sinkDir) }
func (w *Workspace) OverlayMergedDir() string { return filepath.Join(w.root, overlayDir, mergedDir) }
func (w *Workspace) OverlayWorkDir() string { return filepath.Join(w.root, overlayDir, scratchDir) }
func (w *Workspace) ActiveDir() string { return filepath.Join(w.root, activeDir) }
func (w *Workspace) ProtonWorkDir() string { return filepath.Join(w.root, protonDir) }
func (w *Workspace) ModListFile() string { return filepath.Join(w.root, ModListFile) }
func (w *Workspace) ModDir(modUID uint64) string {
	return filepath.Join(w.ModsDir(), strconv.FormatUint(modUID, 10))
}

// StagingArchivesDir is where a mod's downloaded archives wait for install.
func (w *Workspace) StagingArchivesDir(modUID uint64) string {
	return filepath.Join(w.StagingDir(), strconv.FormatUint(modUID, 10), archivesDir)
}

// TrackingFile is the heartbeat path for an in-flight archive download.
func (w *Workspace) TrackingFile(fileUID uint64) string {
	return filepath.Join(w.TrackingDir(), strconv.FormatUint(fileUID, 10)+".json")
}

// ManagedDirs lists every directory PrepareFileSystem creates.
func (w *Workspace) ManagedDirs() []string {
	return []string{
		w.Root(),
		w.CacheDir(),
		w.TrackingDir(),
		w.ModsDir(),
		w.StagingDir(),
		w.SinkDir(),
		w.OverlayMergedDir(),
		w.OverlayWorkDir(),
		w.ActiveDir(),
		w.ProtonWorkDir(),
	}
}

// PrepareFileSystem creates every managed directory that is missing. It
// never removes anything, so it is safe to call repeatedly. It refuses to
// run elevated: root must never own these directories.
func (w *Workspace) PrepareFileSystem() error {
	if w.sys.IsElevated() {
		return errkind.WithPath(errkind.ErrPrecondition, "prepare workspace", w.root,
			errors.New("refusing to create workspace directories as root; run without sudo"))
	}
	for _, dir := range w.ManagedDirs() {
		if err := w.fs.MkdirAll(dir); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSinkIsEmpty reports whether the sink directory has no entries.
// A missing sink counts as empty.
func (w *Workspace) ValidateSinkIsEmpty() (bool, error) {
	return w.fs.IsEmptyDir(w.SinkDir())
}

// ResetOverlay recreates the ephemeral overlay directories: merged and work
// are emptied, active is created if missing.
func (w *Workspace) ResetOverlay() error {
	for _, dir := range []string{w.OverlayMergedDir(), w.OverlayWorkDir()} {
		if err := w.fs.RemoveAll(dir); err != nil {
			return err
		}
	}
	for _, dir := range []string{w.OverlayMergedDir(), w.OverlayWorkDir(), w.ActiveDir()} {
		if err := w.fs.MkdirAll(dir); err != nil {
			return err
		}
	}
	return nil
}
