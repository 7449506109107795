// Package mount runs the privileged half of a launch: it isolates a mount
// namespace, assembles the overlay the game runs from, and drops back to
// the invoking user before handing control to the game.
package mount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/bamsammich/moma/internal/errkind"
	"github.com/bamsammich/moma/internal/platform"
	"github.com/bamsammich/moma/internal/workspace"
)

// HandoffFunc starts the game. It runs after privileges are dropped.
type HandoffFunc func(ctx context.Context) error

// Orchestrator drives one launch through the stages in order. It is single
// use.
type Orchestrator struct {
	Workspace *workspace.Workspace
	System    platform.System
	Identity  platform.Identity
	Plan      Plan
	Logger    *slog.Logger

	mu    sync.Mutex
	stage Stage
	ran   bool
}

// New returns an orchestrator for ws that will drop to id.
func New(ws *workspace.Workspace, sys platform.System, id platform.Identity, plan Plan) *Orchestrator {
	return &Orchestrator{Workspace: ws, System: sys, Identity: id, Plan: plan}
}

// Stage returns the last stage reached.
func (o *Orchestrator) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) advance(s Stage) {
	o.mu.Lock()
	o.stage = s
	o.mu.Unlock()
	o.logger().Debug("launch stage reached", "stage", s.String())
}

// Run executes the launch sequence and then calls handoff. A failure before
// the overlay is mounted aborts with privileges still held so the caller
// can exit; once the overlay exists privileges are always dropped, and a
// failed drop never reaches handoff. The calling goroutine stays locked to
// its OS thread, since the namespace belongs to that thread and the game
// must be started from it.
func (o *Orchestrator) Run(ctx context.Context, handoff HandoffFunc) error {
	o.mu.Lock()
	if o.ran {
		o.mu.Unlock()
		return errkind.Errorf(errkind.ErrPrecondition, "launch", "orchestrator has already run")
	}
	o.ran = true
	o.mu.Unlock()

	runtime.LockOSThread()

	if err := o.checkPreconditions(); err != nil {
		return &StageError{Stage: StageNamespaceUnshared, Err: err}
	}

	steps := []struct {
		stage Stage
		run   func() error
	}{
		{StageNamespaceUnshared, o.System.Unshare},
		{StagePropagationPrivate, o.System.MakeRootPrivate},
		{StageFilesystemPrepared, o.prepareFilesystem},
		{StageOverlayMounted, o.mountOverlay},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: step.stage, Err: err}
		}
		if err := step.run(); err != nil {
			return &StageError{Stage: step.stage, Err: err}
		}
		o.advance(step.stage)
	}

	if err := o.System.DropPrivileges(o.Identity); err != nil {
		return &StageError{Stage: StagePrivilegesDropped, Err: err}
	}
	if o.System.IsElevated() {
		return &StageError{Stage: StagePrivilegesDropped, Err: errkind.Errorf(errkind.ErrPrivilege,
			"drop privileges", "still elevated after dropping to %s", o.Identity)}
	}
	o.advance(StagePrivilegesDropped)

	if err := ctx.Err(); err != nil {
		return &StageError{Stage: StageHandedOff, Err: err}
	}
	o.advance(StageHandedOff)
	if err := handoff(ctx); err != nil {
		return &StageError{Stage: StageHandedOff, Err: err}
	}
	return nil
}

func (o *Orchestrator) checkPreconditions() error {
	if !o.System.IsElevated() {
		return errkind.New(errkind.ErrPrivilege, "launch", errors.New("mounting the overlay requires root"))
	}
	if o.Identity.UID == 0 {
		return errkind.New(errkind.ErrPrivilege, "launch",
			errors.New("no unprivileged identity to drop to"))
	}
	if o.Workspace.GameDir() == "" {
		return errkind.New(errkind.ErrPrecondition, "launch",
			fmt.Errorf("game %q has no install path configured", o.Workspace.GameID()))
	}
	return nil
}

// prepareFilesystem rebuilds the merged directory from the plan and hands
// the overlay directories to the invoking user.
func (o *Orchestrator) prepareFilesystem() error {
	ws := o.Workspace
	if err := ws.ResetOverlay(); err != nil {
		return err
	}

	fsys := ws.FS()
	merged := ws.OverlayMergedDir()
	for _, layer := range o.Plan.Layers {
		o.logger().Debug("merging mod", "mod", layer.Name, "dir", layer.Dir)
		if err := fsys.CopyTree(layer.Dir, merged, o.Plan.Skip); err != nil {
			return fmt.Errorf("merge mod %s: %w", layer.Name, err)
		}
	}

	chowns := []struct {
		path      string
		recursive bool
	}{
		{merged, true},
		{ws.OverlayWorkDir(), false},
		{ws.ActiveDir(), false},
		{ws.SinkDir(), false},
		{ws.ProtonWorkDir(), false},
	}
	for _, c := range chowns {
		if err := o.System.Chown(c.path, o.Identity, c.recursive); err != nil {
			return err
		}
	}
	return nil
}

// mountOverlay layers merged mods over the game install, with the sink as
// the writable layer, at the active directory.
func (o *Orchestrator) mountOverlay() error {
	ws := o.Workspace
	return o.System.MountOverlay(platform.OverlayMount{
		Lower:  []string{ws.OverlayMergedDir(), ws.GameDir()},
		Upper:  ws.SinkDir(),
		Work:   ws.OverlayWorkDir(),
		Target: ws.ActiveDir(),
	})
}
