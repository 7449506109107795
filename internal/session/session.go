// Package session persists the "current game" selection between CLI
// invocations. The state lives in a single small file whose path is supplied
// by the caller (normally from config), so nothing here reads globals.
package session

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bamsammich/moma/internal/errkind"
	"github.com/bamsammich/moma/internal/game"
)

// State reads and writes the current game context.
type State struct {
	path string
}

// New returns a State backed by the file at path.
func New(path string) *State {
	return &State{path: path}
}

// Path returns the backing file.
func (s *State) Path() string { return s.path }

// Current returns the selected game ID. ok is false when no game is selected
// (file absent or blank). A file naming an unknown game is ErrCorrupt.
func (s *State) Current() (id string, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, errkind.WithPath(errkind.ErrIO, "read state file", s.path, err)
	}

	id = strings.TrimSpace(string(data))
	if id == "" {
		return "", false, nil
	}
	if _, known := game.Lookup(id); !known {
		return "", false, errkind.WithPath(errkind.ErrCorrupt, "read state file", s.path,
			fmt.Errorf("unknown game context %q", id))
	}
	return id, true, nil
}

// Set selects id as the current game.
func (s *State) Set(id string) error {
	if _, known := game.Lookup(id); !known {
		return errkind.Errorf(errkind.ErrNotFound, "set context", "unsupported game %q", id)
	}
	if err := os.WriteFile(s.path, []byte(id), 0o644); err != nil {
		return errkind.WithPath(errkind.ErrIO, "write state file", s.path, err)
	}
	return nil
}

// Clear removes the selection. Clearing an unset context is not an error.
func (s *State) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errkind.WithPath(errkind.ErrIO, "remove state file", s.path, err)
	}
	return nil
}
