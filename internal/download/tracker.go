// Package download streams mod archives to disk and tracks their progress
// with heartbeat files, so a download interrupted by a crash can be detected
// by a later invocation.
package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/moma/internal/checksum"
	"github.com/bamsammich/moma/internal/errkind"
	"github.com/bamsammich/moma/internal/modlist"
	"github.com/bamsammich/moma/internal/platform"
	"github.com/bamsammich/moma/internal/workspace"
)

const (
	// DefaultStaleAfter is how old a heartbeat may get before its download
	// is treated as interrupted.
	DefaultStaleAfter = 60 * time.Second

	// DefaultInterval is the minimum spacing between heartbeat writes.
	DefaultInterval = 500 * time.Millisecond

	chunkSize = 32 * 1024
)

// Reasons recorded on archives reaped by ResetStuck.
const (
	ReasonMissing     = "missing tracking file"
	ReasonInvalid     = "invalid tracking file"
	ReasonInterrupted = "interrupted"
)

// Tracker manages heartbeat files for one workspace.
type Tracker struct {
	ws    *workspace.Workspace
	store *modlist.Store

	StaleAfter time.Duration
	Interval   time.Duration
	Limiter    *rate.Limiter
	Now        func() time.Time
	Logger     *slog.Logger
}

// NewTracker returns a tracker with default timings.
func NewTracker(ws *workspace.Workspace, store *modlist.Store) *Tracker {
	return &Tracker{
		ws:         ws,
		store:      store,
		StaleAfter: DefaultStaleAfter,
		Interval:   DefaultInterval,
		Now:        time.Now,
	}
}

func (t *Tracker) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// TrackingFile returns the heartbeat path for fileUID.
func (t *Tracker) TrackingFile(fileUID uint64) string {
	return t.ws.TrackingFile(fileUID)
}

// EnsureTrackingFile creates the heartbeat file for fileUID if it does not
// exist. An existing file is never truncated.
func (t *Tracker) EnsureTrackingFile(fileUID uint64) (string, error) {
	path := t.TrackingFile(fileUID)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return "", errkind.IO("create tracking file", path, err)
	}
	if err := f.Close(); err != nil {
		return "", errkind.IO("create tracking file", path, err)
	}
	return path, nil
}

// Result summarises a completed stream.
type Result struct {
	Bytes    int64
	Checksum string
}

// Stream copies r into dest in bounded chunks. A heartbeat is written to
// trackingPath before the first chunk and then at most once per Interval;
// it is removed once r is exhausted. The BLAKE3 digest of the bytes is
// computed along the way. Cancelling ctx stops the copy between chunks and
// leaves the heartbeat in place.
func (t *Tracker) Stream(
	ctx context.Context,
	r io.Reader,
	dest string,
	total int64,
	trackingPath string,
	displayName string,
) (Result, error) {
	const op = "stream download"

	out, err := os.Create(dest)
	if err != nil {
		return Result{}, errkind.IO(op, dest, err)
	}
	defer out.Close()

	if t.Limiter != nil {
		r = newRateLimitedReader(ctx, r, t.Limiter)
	}

	started := t.now()
	progress := Progress{
		FileName:   displayName,
		TotalBytes: total,
		StartedAt:  started.Unix(),
		UpdatedAt:  started.Unix(),
	}
	if err := writeHeartbeat(trackingPath, progress); err != nil {
		return Result{}, err
	}
	lastBeat := started

	h := checksum.New()
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return Result{Bytes: progress.ProgressBytes}, fmt.Errorf("%s: %w", op, err)
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return Result{Bytes: progress.ProgressBytes}, errkind.IO(op, dest, err)
			}
			h.Write(buf[:n]) //nolint:errcheck // hash.Hash.Write never fails
			progress.ProgressBytes += int64(n)

			if now := t.now(); now.Sub(lastBeat) >= t.interval() {
				progress.UpdatedAt = now.Unix()
				if err := writeHeartbeat(trackingPath, progress); err != nil {
					return Result{Bytes: progress.ProgressBytes}, err
				}
				lastBeat = now
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return Result{Bytes: progress.ProgressBytes}, errkind.New(errkind.ErrIO, op, readErr)
		}
	}

	if err := out.Close(); err != nil {
		return Result{Bytes: progress.ProgressBytes}, errkind.IO(op, dest, err)
	}
	if err := removeHeartbeat(trackingPath); err != nil {
		return Result{Bytes: progress.ProgressBytes}, err
	}

	t.logger().Debug("download streamed", "file", displayName, "bytes", progress.ProgressBytes)
	return Result{Bytes: progress.ProgressBytes, Checksum: checksum.Hex(h)}, nil
}

func (t *Tracker) interval() time.Duration {
	if t.Interval > 0 {
		return t.Interval
	}
	return DefaultInterval
}

func (t *Tracker) staleAfter() time.Duration {
	if t.StaleAfter > 0 {
		return t.StaleAfter
	}
	return DefaultStaleAfter
}

func writeHeartbeat(path string, p Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode heartbeat: %w", err)
	}
	if err := platform.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return nil
}

func removeHeartbeat(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errkind.IO("remove heartbeat", path, err)
	}
	return nil
}

func readHeartbeat(path string) (Progress, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Progress{}, errkind.IO("read heartbeat", path, err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return Progress{}, errkind.WithPath(errkind.ErrCorrupt, "read heartbeat", path, err)
	}
	return p, nil
}

// classify returns the reap reason for a Downloading archive's heartbeat,
// or "" if the download still looks alive.
func (t *Tracker) classify(path string, now time.Time) string {
	p, err := readHeartbeat(path)
	switch {
	case errors.Is(err, errkind.ErrCorrupt):
		return ReasonInvalid
	case err != nil:
		return ReasonMissing
	case p.Age(now) > t.staleAfter():
		return ReasonInterrupted
	default:
		return ""
	}
}

// ResetStuck marks every Downloading archive whose heartbeat is missing,
// unparsable or stale as Failed, deletes its heartbeat, and returns how
// many archives were reaped. Archives that leave Downloading while the pass
// runs are not touched or counted. A failure on one archive is logged and does
// not stop the pass.
func (t *Tracker) ResetStuck() (int, error) {
	list, err := t.store.Read()
	if err != nil {
		return 0, err
	}

	now := t.now()
	reaped := 0
	for _, m := range list.Mods {
		for _, a := range m.Archives {
			if a.Status.Kind != modlist.KindDownloading {
				continue
			}
			path := t.TrackingFile(a.FileUID)
			reason := t.classify(path, now)
			if reason == "" {
				continue
			}

			log := t.logger().With("mod_uid", m.UID, "file_uid", a.FileUID, "file", a.FileName, "reason", reason)
			// list was read without the lock; only reap if the archive is
			// still Downloading with a dead heartbeat.
			reset := false
			err := t.store.UpdateArchive(m.UID, a.FileUID, func(arc *modlist.Archive) {
				if arc.Status.Kind != modlist.KindDownloading || t.classify(path, now) == "" {
					return
				}
				arc.Status = modlist.Failed(reason)
				reset = true
			})
			if err != nil {
				log.Warn("could not mark stuck download as failed", "error", err)
				continue
			}
			if !reset {
				log.Debug("download changed state during reap; leaving it")
				continue
			}
			if err := removeHeartbeat(path); err != nil {
				log.Warn("could not remove heartbeat", "error", err)
			}
			log.Warn("marked stuck download as failed")
			reaped++
		}
	}
	return reaped, nil
}

// Active returns the parsed heartbeats under the tracking directory, oldest
// first. Empty or unparsable files are skipped.
func (t *Tracker) Active() ([]Progress, error) {
	dir := t.ws.TrackingDir()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errkind.IO("list downloads", dir, err)
	}

	var out []Progress
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		uid, err := strconv.ParseUint(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}
		p, err := readHeartbeat(filepath.Join(dir, name))
		if err != nil {
			t.logger().Debug("skipping heartbeat", "file", name, "error", err)
			continue
		}
		p.FileUID = uid
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt < out[j].StartedAt
		}
		return out[i].FileUID < out[j].FileUID
	})
	return out, nil
}
