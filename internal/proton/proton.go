// Package proton starts a Windows game through a Proton runtime and waits
// for it to exit.
package proton

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/bamsammich/moma/internal/errkind"
)

// stopGrace is how long the game gets to exit after SIGTERM before it is
// killed.
const stopGrace = 10 * time.Second

// Supervisor runs `<proton> run <exe>` from the game directory.
type Supervisor struct {
	Binary        string // the proton script
	CompatDataDir string // STEAM_COMPAT_DATA_PATH, the wine prefix parent
	SteamDir      string // STEAM_COMPAT_CLIENT_INSTALL_PATH
	Dir           string // working directory, the mounted overlay
	Env           map[string]string

	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Environ returns the child environment: the current environment, the
// Steam compatibility variables, then Env in key order.
func (s *Supervisor) Environ() []string {
	env := append([]string(nil), os.Environ()...)
	env = append(env,
		"STEAM_COMPAT_DATA_PATH="+s.CompatDataDir,
		"STEAM_COMPAT_CLIENT_INSTALL_PATH="+s.SteamDir,
	)
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+s.Env[k])
	}
	return env
}

// Command builds the process for exe, a path relative to Dir.
func (s *Supervisor) Command(ctx context.Context, exe string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, s.Binary, "run", filepath.Join(s.Dir, exe))
	cmd.Dir = s.Dir
	cmd.Env = s.Environ()
	cmd.Stdin = os.Stdin
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = stopGrace

	cmd.SysProcAttr = &syscall.SysProcAttr{}
	setPdeathsig(cmd.SysProcAttr)
	return cmd
}

// Run starts exe and blocks until it exits. A non-zero exit is an error.
func (s *Supervisor) Run(ctx context.Context, exe string) error {
	const op = "run game"

	if _, err := os.Stat(s.Binary); err != nil {
		return errkind.IO(op, s.Binary, err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir, exe)); err != nil {
		return errkind.IO(op, filepath.Join(s.Dir, exe), err)
	}

	cmd := s.Command(ctx, exe)
	if err := cmd.Start(); err != nil {
		return errkind.WithPath(errkind.ErrIO, op, s.Binary, err)
	}
	log := s.logger().With("pid", cmd.Process.Pid, "exe", exe)
	log.Info("game started")

	err := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Info("game stopped", "reason", ctxErr)
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%s: game exited with status %d", op, exitErr.ExitCode())
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("game exited")
	return nil
}
