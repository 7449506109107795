// Package game holds the static profiles of the games moma knows how to
// launch.
package game

import (
	"path/filepath"
	"sort"
)

// Profile is static metadata for a supported game.
type Profile struct {
	ID            string // stable identifier, used for workspace and config keys
	Name          string // display name
	Executable    string // vanilla executable, relative to the install dir
	ModExecutable string // script-extender loader, empty if none
	steamDirName  string
}

// DefaultPath returns the conventional install location under a Steam library.
func (p Profile) DefaultPath(steamDir string) string {
	return filepath.Join(steamDir, "steamapps", "common", p.steamDirName)
}

// LaunchExecutable returns the executable to hand to the supervisor. The
// script-extender loader is preferred unless vanilla is requested.
func (p Profile) LaunchExecutable(vanilla bool) string {
	if vanilla || p.ModExecutable == "" {
		return p.Executable
	}
	return p.ModExecutable
}

var profiles = map[string]Profile{
	"skyrimse": {
		ID:            "skyrimse",
		Name:          "Skyrim Special Edition",
		Executable:    "SkyrimSE.exe",
		ModExecutable: "skse64_loader.exe",
		steamDirName:  "Skyrim Special Edition",
	},
}

// Lookup returns the profile registered under id.
func Lookup(id string) (Profile, bool) {
	p, ok := profiles[id]
	return p, ok
}

// All returns every supported profile ordered by ID.
func All() []Profile {
	out := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
