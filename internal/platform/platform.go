// Package platform holds the capabilities moma needs from the host: privileged
// OS actions (System) and filesystem actions (FileSystem). Both are narrow
// interfaces so callers can substitute fakes in tests.
package platform

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"sync"

	"github.com/bamsammich/moma/internal/errkind"
)

// System is the privileged OS surface used by the launch path.
type System interface {
	IsElevated() bool
	Unshare() error
	MakeRootPrivate() error
	MountOverlay(m OverlayMount) error
	Chown(path string, id Identity, recursive bool) error
	DropPrivileges(id Identity) error
	RunPrivileged(ctx context.Context, argv []string, env []string) error
}

// FileSystem is the filesystem surface used by the workspace, the mod list
// store, and the orchestrator.
type FileSystem interface {
	MkdirAll(path string) error
	RemoveAll(path string) error
	Exists(path string) (bool, error)
	IsEmptyDir(path string) (bool, error)
	ListDirs(path string) ([]string, error)
	CopyTree(src, dst string, skip SkipFunc) error
	Move(src, dst string) error
	Extract(archive, dir string, flatten bool) error
}

// SkipFunc reports whether the entry at rel (slash separated, relative to
// the copy source) should be left out of a CopyTree.
type SkipFunc func(rel string, isDir bool) bool

// Identity is the unprivileged user a privileged process drops to.
type Identity struct {
	UID    uint32
	GID    uint32
	Groups []uint32
}

func (id Identity) String() string {
	return fmt.Sprintf("uid=%d gid=%d", id.UID, id.GID)
}

var (
	invokingOnce sync.Once
	invokingID   Identity
	invokingErr  error
)

// InvokingIdentity returns the identity of the user who elevated the current
// process through sudo. It is resolved once per process.
func InvokingIdentity() (Identity, error) {
	invokingOnce.Do(func() {
		invokingID, invokingErr = identityFromEnv(os.Getenv)
	})
	return invokingID, invokingErr
}

func identityFromEnv(getenv func(string) string) (Identity, error) {
	const op = "resolve invoking user"

	rawUID, rawGID := getenv("SUDO_UID"), getenv("SUDO_GID")
	if rawUID == "" || rawGID == "" {
		return Identity{}, errkind.Errorf(errkind.ErrPrivilege, op,
			"SUDO_UID/SUDO_GID not set; run moma through sudo")
	}
	uid, err := strconv.ParseUint(rawUID, 10, 32)
	if err != nil {
		return Identity{}, errkind.Errorf(errkind.ErrPrivilege, op, "invalid SUDO_UID %q", rawUID)
	}
	gid, err := strconv.ParseUint(rawGID, 10, 32)
	if err != nil {
		return Identity{}, errkind.Errorf(errkind.ErrPrivilege, op, "invalid SUDO_GID %q", rawGID)
	}
	if uid == 0 {
		return Identity{}, errkind.Errorf(errkind.ErrPrivilege, op, "invoking user is root; nothing to drop to")
	}

	id := Identity{UID: uint32(uid), GID: uint32(gid)}
	id.Groups = supplementaryGroups(rawUID, id.GID)
	return id, nil
}

// supplementaryGroups looks up the user's groups, falling back to the
// primary group alone.
func supplementaryGroups(uid string, gid uint32) []uint32 {
	fallback := []uint32{gid}
	u, err := user.LookupId(uid)
	if err != nil {
		return fallback
	}
	ids, err := u.GroupIds()
	if err != nil {
		return fallback
	}
	groups := make([]uint32, 0, len(ids))
	for _, raw := range ids {
		g, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			continue
		}
		groups = append(groups, uint32(g))
	}
	if len(groups) == 0 {
		return fallback
	}
	return groups
}

// OverlayMount describes a single overlayfs mount. Lower layers are listed
// highest priority first.
type OverlayMount struct {
	Lower  []string
	Upper  string
	Work   string
	Target string
}

// Options renders the overlayfs mount data string.
func (m OverlayMount) Options() (string, error) {
	if len(m.Lower) == 0 {
		return "", errkind.Errorf(errkind.ErrPrecondition, "mount overlay", "no lower layers")
	}
	for _, dir := range m.Lower {
		if err := validateOverlayPath(dir, "lowerdir"); err != nil {
			return "", err
		}
	}
	for field, dir := range map[string]string{"upperdir": m.Upper, "workdir": m.Work, "target": m.Target} {
		if dir == "" {
			return "", errkind.Errorf(errkind.ErrPrecondition, "mount overlay", "%s is empty", field)
		}
		if err := validateOverlayPath(dir, field); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s",
		strings.Join(m.Lower, ":"), m.Upper, m.Work), nil
}

// validateOverlayPath rejects paths that would corrupt the option string:
// commas separate options and colons separate lower layers.
func validateOverlayPath(path, field string) error {
	if strings.ContainsAny(path, ",:") {
		return errkind.Errorf(errkind.ErrPrecondition, "mount overlay",
			"%s path %q contains a separator character (',' or ':')", field, path)
	}
	if strings.ContainsAny(path, "\x00\n\r") {
		return errkind.Errorf(errkind.ErrPrecondition, "mount overlay",
			"%s path %q contains invalid characters (null or newline)", field, path)
	}
	return nil
}
