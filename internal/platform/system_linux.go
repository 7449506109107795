//go:build linux

package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/moma/internal/errkind"
)

// HostSystem implements System with real syscalls.
type HostSystem struct {
	Logger *slog.Logger
}

func (s HostSystem) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (HostSystem) IsElevated() bool {
	return os.Geteuid() == 0
}

// Unshare moves the calling thread into a new mount namespace. The caller
// must have locked the goroutine to its OS thread.
func (HostSystem) Unshare() error {
	if err := unix.Unshare(unix.CLONE_NEWNS); err != nil {
		return errkind.New(errkind.ErrPrivilege, "unshare", err)
	}
	return nil
}

// MakeRootPrivate marks every mount below / as private so nothing mounted
// here propagates back to the host namespace.
func (HostSystem) MakeRootPrivate() error {
	if err := unix.Mount("none", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return errkind.New(errkind.ErrPrivilege, "make-private", err)
	}
	return nil
}

func (s HostSystem) MountOverlay(m OverlayMount) error {
	opts, err := m.Options()
	if err != nil {
		return err
	}
	s.logger().Debug("mounting overlay", "target", m.Target, "options", opts)
	if err := unix.Mount("overlay", m.Target, "overlay", 0, opts); err != nil {
		return errkind.WithPath(errkind.ErrPrivilege, "mount overlay", m.Target, err)
	}
	return nil
}

func (HostSystem) Chown(path string, id Identity, recursive bool) error {
	uid, gid := int(id.UID), int(id.GID)
	if !recursive {
		if err := os.Lchown(path, uid, gid); err != nil {
			return errkind.WithPath(errkind.ErrPrivilege, "chown", path, err)
		}
		return nil
	}
	err := filepath.WalkDir(path, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(p, uid, gid)
	})
	if err != nil {
		return errkind.WithPath(errkind.ErrPrivilege, "chown", path, err)
	}
	return nil
}

// DropPrivileges permanently switches the process to id. Order matters:
// supplementary groups and GID must be set before UID (can't change groups
// after losing root). Go 1.16+ propagates setuid/setgid to all OS threads.
func (HostSystem) DropPrivileges(id Identity) error {
	const op = "drop privileges"

	groups := make([]int, len(id.Groups))
	for i, g := range id.Groups {
		groups[i] = int(g)
	}
	if err := syscall.Setgroups(groups); err != nil {
		return errkind.New(errkind.ErrPrivilege, op, fmt.Errorf("setgroups: %w", err))
	}
	if err := syscall.Setgid(int(id.GID)); err != nil {
		return errkind.New(errkind.ErrPrivilege, op, fmt.Errorf("setgid(%d): %w", id.GID, err))
	}
	if err := syscall.Setuid(int(id.UID)); err != nil {
		return errkind.New(errkind.ErrPrivilege, op, fmt.Errorf("setuid(%d): %w", id.UID, err))
	}
	if os.Geteuid() == 0 {
		return errkind.Errorf(errkind.ErrPrivilege, op, "still elevated after setuid(%d)", id.UID)
	}
	return nil
}

// RunPrivileged runs argv as root, going through sudo unless the process is
// already elevated. env entries are added to the child's environment.
func (s HostSystem) RunPrivileged(ctx context.Context, argv []string, env []string) error {
	if len(argv) == 0 {
		return errors.New("run privileged: empty command")
	}

	var cmd *exec.Cmd
	if s.IsElevated() {
		cmd = exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // argv is built by moma
		cmd.Env = append(os.Environ(), env...)
	} else {
		args := append([]string{"--", "env"}, env...)
		args = append(args, argv...)
		cmd = exec.CommandContext(ctx, "sudo", args...) //nolint:gosec // argv is built by moma
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	s.logger().Debug("running privileged", "argv", argv)
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return errkind.New(errkind.ErrPrivilege, "run privileged", err)
		}
		return fmt.Errorf("run privileged: %w", err)
	}
	return nil
}
