package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bamsammich/moma/internal/errkind"
	"github.com/bamsammich/moma/internal/modlist"
)

// Source yields the bytes of one archive. Size is -1 when unknown.
type Source interface {
	Open(ctx context.Context) (rc io.ReadCloser, size int64, err error)
}

// HTTPSource downloads from a direct URL.
type HTTPSource struct {
	URL       string
	Client    *http.Client
	UserAgent string
}

func (s HTTPSource) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, errkind.New(errkind.ErrIO, "fetch archive", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, errkind.Errorf(errkind.ErrIO, "fetch archive", "GET %s: %s", s.URL, resp.Status)
	}
	return resp.Body, resp.ContentLength, nil
}

// CheckFileName reports whether name can be used as an archive file name:
// a single path element that stays inside the directory it is joined to.
func CheckFileName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsRune(name, filepath.Separator) || filepath.Base(name) != name {
		return errkind.Errorf(errkind.ErrPrecondition, "check file name",
			"invalid archive file name %q", name)
	}
	return nil
}

// Acquire downloads archive for mod from src and stages it.
//
// The archive is claimed as Downloading under the mod list lock: an
// Installed or Downloaded archive is refused, and so is one another process
// is still downloading. A Failed archive, or a Downloading one whose
// heartbeat is missing or stale, is retried. The claim writes a fresh
// heartbeat before src is opened, then the bytes are streamed into the
// cache. On success the archive is staged and marked Downloaded with its
// checksum; on failure it is marked Failed and the heartbeat and partial
// file are removed.
func (t *Tracker) Acquire(ctx context.Context, mod modlist.Mod, archive modlist.Archive, src Source) (modlist.Archive, error) {
	const op = "acquire archive"

	if err := CheckFileName(archive.FileName); err != nil {
		return modlist.Archive{}, err
	}

	dest := t.store.ArchiveDest(archive.FileName)
	tracking := t.TrackingFile(archive.FileUID)
	archive.ArchivePath = modlist.StringPtr(dest)

	now := t.now()
	claimed := false
	err := t.store.BeginDownload(mod, archive, func(prev modlist.Status) error {
		if prev.Kind == modlist.KindDownloading && t.classify(tracking, now) == "" {
			return errkind.Errorf(errkind.ErrPrecondition, op,
				"archive %d of mod %d is being downloaded by another process", archive.FileUID, mod.UID)
		}
		if _, err := t.EnsureTrackingFile(archive.FileUID); err != nil {
			return err
		}
		claimed = true
		return writeHeartbeat(tracking, Progress{
			FileName:  archive.FileName,
			StartedAt: now.Unix(),
			UpdatedAt: now.Unix(),
		})
	})
	if err != nil {
		if claimed {
			_ = removeHeartbeat(tracking)
		}
		return modlist.Archive{}, err
	}
	archive.Status = modlist.Downloading()
	archive.Checksum = ""

	result, err := t.fetch(ctx, src, dest, tracking, archive.FileName)
	if err != nil {
		return modlist.Archive{}, t.fail(mod, archive, tracking, dest, err)
	}

	err = t.store.UpdateArchive(mod.UID, archive.FileUID, func(a *modlist.Archive) {
		a.Checksum = result.Checksum
	})
	if err != nil {
		return modlist.Archive{}, err
	}
	archive.Checksum = result.Checksum
	if err := t.store.StageArchive(mod, archive); err != nil {
		return modlist.Archive{}, t.fail(mod, archive, tracking, dest, err)
	}

	t.logger().Info("archive downloaded", "mod_uid", mod.UID, "file_uid", archive.FileUID,
		"bytes", result.Bytes, "checksum", result.Checksum)
	_, staged, err := t.store.Lookup(mod.UID, archive.FileUID)
	return staged, err
}

func (t *Tracker) fetch(ctx context.Context, src Source, dest, tracking, name string) (Result, error) {
	rc, size, err := src.Open(ctx)
	if err != nil {
		return Result{}, err
	}
	defer rc.Close()

	result, err := t.Stream(ctx, rc, dest, size, tracking, name)
	if err != nil {
		return result, err
	}
	if size >= 0 && result.Bytes != size {
		return result, errkind.Errorf(errkind.ErrIO, "stream download",
			"short download: got %d of %d bytes", result.Bytes, size)
	}
	return result, nil
}

// fail records cause on the archive and cleans up its transient files.
// The returned error is cause, joined with any error from recording it.
func (t *Tracker) fail(mod modlist.Mod, archive modlist.Archive, tracking, dest string, cause error) error {
	log := t.logger().With("mod_uid", mod.UID, "file_uid", archive.FileUID)
	log.Warn("download failed", "error", cause)

	recordErr := t.store.UpdateArchive(mod.UID, archive.FileUID, func(a *modlist.Archive) {
		a.Status = modlist.Failed(cause.Error())
		a.ArchivePath = nil
		a.Checksum = ""
	})
	if err := removeHeartbeat(tracking); err != nil {
		log.Warn("could not remove heartbeat", "error", err)
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("could not remove partial download", "path", dest, "error", err)
	}
	return errors.Join(cause, recordErr)
}
