// Package platformtest provides a recording fake of platform.System.
package platformtest

import (
	"context"
	"sync"

	"github.com/bamsammich/moma/internal/platform"
)

// System records every call and fails the ones named in FailOn.
type System struct {
	Elevated bool
	FailOn   map[string]error

	mu       sync.Mutex
	calls    []string
	mounts   []platform.OverlayMount
	chowned  []string
	dropped  []platform.Identity
	commands [][]string
}

var _ platform.System = (*System)(nil)

// Calls returns the recorded call names in order.
func (s *System) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Mounts returns the overlay mounts requested.
func (s *System) Mounts() []platform.OverlayMount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]platform.OverlayMount(nil), s.mounts...)
}

// Chowned returns the paths passed to Chown.
func (s *System) Chowned() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chowned...)
}

// Dropped returns the identities passed to DropPrivileges.
func (s *System) Dropped() []platform.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]platform.Identity(nil), s.dropped...)
}

// Commands returns the argv slices passed to RunPrivileged.
func (s *System) Commands() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.commands...)
}

func (s *System) record(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	return s.FailOn[name]
}

func (s *System) IsElevated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Elevated
}

func (s *System) Unshare() error { return s.record("unshare") }

func (s *System) MakeRootPrivate() error { return s.record("make-private") }

func (s *System) MountOverlay(m platform.OverlayMount) error {
	if _, err := m.Options(); err != nil {
		return err
	}
	if err := s.record("mount"); err != nil {
		return err
	}
	s.mu.Lock()
	s.mounts = append(s.mounts, m)
	s.mu.Unlock()
	return nil
}

func (s *System) Chown(path string, _ platform.Identity, _ bool) error {
	if err := s.record("chown"); err != nil {
		return err
	}
	s.mu.Lock()
	s.chowned = append(s.chowned, path)
	s.mu.Unlock()
	return nil
}

func (s *System) DropPrivileges(id platform.Identity) error {
	if err := s.record("drop"); err != nil {
		return err
	}
	s.mu.Lock()
	s.dropped = append(s.dropped, id)
	s.Elevated = false
	s.mu.Unlock()
	return nil
}

func (s *System) RunPrivileged(_ context.Context, argv []string, _ []string) error {
	if err := s.record("run-privileged"); err != nil {
		return err
	}
	s.mu.Lock()
	s.commands = append(s.commands, append([]string(nil), argv...))
	s.mu.Unlock()
	return nil
}
