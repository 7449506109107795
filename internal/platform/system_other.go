//go:build !linux

package platform

import (
	"context"
	"log/slog"
	"os"

	"github.com/bamsammich/moma/internal/errkind"
)

// HostSystem implements System. Mount namespaces only exist on Linux, so
// every privileged action is unsupported here.
type HostSystem struct {
	Logger *slog.Logger
}

func (HostSystem) IsElevated() bool { return os.Geteuid() == 0 }

func (HostSystem) Unshare() error { return unsupported("unshare") }

func (HostSystem) MakeRootPrivate() error { return unsupported("make-private") }

func (HostSystem) MountOverlay(OverlayMount) error { return unsupported("mount overlay") }

func (HostSystem) Chown(string, Identity, bool) error { return unsupported("chown") }

func (HostSystem) DropPrivileges(Identity) error { return unsupported("drop privileges") }

func (HostSystem) RunPrivileged(context.Context, []string, []string) error {
	return unsupported("run privileged")
}

func unsupported(op string) error {
	return errkind.Errorf(errkind.ErrUnsupported, op, "requires Linux")
}
