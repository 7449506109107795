package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/bamsammich/moma/internal/errkind"
)

// DefaultStaleAfter is how long a heartbeat may go unwritten before its
// download is considered interrupted.
const DefaultStaleAfter = 60 * time.Second

// Config represents the moma configuration file.
type Config struct {
	WorkDir   string                `toml:"work_dir"`
	SteamDir  string                `toml:"steam_dir,omitempty"`
	StateFile string                `toml:"state_file,omitempty"`
	Downloads DownloadsConfig       `toml:"downloads"`
	Theme     ThemeConfig           `toml:"theme"`
	Games     map[string]GameConfig `toml:"games"`
}

// DownloadsConfig tunes the download tracker.
type DownloadsConfig struct {
	StaleAfter *string `toml:"stale_after"`
	BWLimit    *string `toml:"bwlimit"`
}

// ThemeConfig holds optional color overrides for terminal output.
type ThemeConfig struct {
	Green  *string `toml:"green"`
	Yellow *string `toml:"yellow"`
	Red    *string `toml:"red"`
	Blue   *string `toml:"blue"`
	Muted  *string `toml:"muted"`
}

// GameConfig is the user's configuration for one game. It is read-only to
// the rest of moma.
type GameConfig struct {
	// Path is the original game installation; it is only ever used as a
	// read-only overlay layer.
	Path string `toml:"path"`

	// ProtonDir is the Proton runtime directory containing the proton script.
	ProtonDir string `toml:"proton_dir"`

	// Env overrides environment variables passed to the game.
	Env map[string]string `toml:"env,omitempty"`

	// EnvFile is an optional dotenv file loaded beneath Env.
	EnvFile string `toml:"env_file,omitempty"`

	// MergeExclude lists glob rules for mod files that never reach the overlay.
	MergeExclude []string `toml:"merge_exclude,omitempty"`

	// LoadOrder lists mod UIDs in merge order; later entries win.
	LoadOrder []uint64 `toml:"load_order,omitempty"`
}

// passthroughEnv are display/session variables forwarded to the game when
// not overridden, since sudo strips them.
var passthroughEnv = []string{"WAYLAND_DISPLAY", "DISPLAY", "XDG_RUNTIME_DIR"}

// EnvVars returns the environment for the game process: the env file, then
// the configured overrides, plus display variables taken from the current
// environment.
func (g GameConfig) EnvVars() (map[string]string, error) {
	vars := make(map[string]string, len(g.Env)+len(passthroughEnv))
	if g.EnvFile != "" {
		fromFile, err := godotenv.Read(g.EnvFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, errkind.IO("read env file", g.EnvFile, err)
			}
			return nil, errkind.WithPath(errkind.ErrCorrupt, "read env file", g.EnvFile, err)
		}
		for k, v := range fromFile {
			vars[k] = v
		}
	}
	for k, v := range g.Env {
		vars[k] = v
	}
	for _, key := range passthroughEnv {
		if _, set := vars[key]; set {
			continue
		}
		if v, ok := os.LookupEnv(key); ok {
			vars[key] = v
		}
	}
	return vars, nil
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		WorkDir:   "~/.moma",
		SteamDir:  "~/.local/share/Steam",
		StateFile: filepath.Join(os.TempDir(), "moma_state"),
		Games:     map[string]GameConfig{},
	}
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := HomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "moma", "config.toml")
}

// HomeDir returns the home directory of the user who invoked moma. Under
// sudo that is the SUDO_UID user, not root.
func HomeDir() (string, error) {
	if os.Geteuid() == 0 {
		if uid := os.Getenv("SUDO_UID"); uid != "" {
			u, err := user.LookupId(uid)
			if err == nil && u.HomeDir != "" {
				return u.HomeDir, nil
			}
		}
	}
	return os.UserHomeDir()
}

// ExpandHome replaces a leading ~ with the invoking user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := HomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Load reads the config file from the XDG path. Returns Default() (no error)
// if the file does not exist.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Default().expanded(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path, filling unset fields from Default().
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default().expanded(), nil
		}
		return Config{}, errkind.WithPath(errkind.ErrCorrupt, "load config", path, err)
	}
	if cfg.Games == nil {
		cfg.Games = map[string]GameConfig{}
	}
	return cfg.expanded(), nil
}

// Save writes the config to the XDG path.
func (c Config) Save() error {
	path := Path()
	if path == "" {
		return errors.New("cannot resolve config path")
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating the parent directory.
func (c Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Game returns the configuration for the game with the given ID.
func (c Config) Game(id string) (GameConfig, error) {
	g, ok := c.Games[id]
	if !ok {
		return GameConfig{}, errkind.Errorf(errkind.ErrNotFound, "load game config",
			"no configuration for game %q (try: moma init %s)", id, id)
	}
	return g, nil
}

// StaleAfter returns the heartbeat staleness threshold.
func (c Config) StaleAfter() (time.Duration, error) {
	if c.Downloads.StaleAfter == nil {
		return DefaultStaleAfter, nil
	}
	d, err := time.ParseDuration(*c.Downloads.StaleAfter)
	if err != nil {
		return 0, fmt.Errorf("invalid downloads.stale_after: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid downloads.stale_after: must be positive, got %s", d)
	}
	return d, nil
}

// BWLimit returns the download bandwidth cap in bytes/sec, or 0 for none.
func (c Config) BWLimit() (int64, error) {
	if c.Downloads.BWLimit == nil || *c.Downloads.BWLimit == "" {
		return 0, nil
	}
	n, err := ParseSize(*c.Downloads.BWLimit)
	if err != nil {
		return 0, fmt.Errorf("invalid downloads.bwlimit: %w", err)
	}
	return n, nil
}

func (c Config) expanded() Config {
	c.WorkDir = ExpandHome(c.WorkDir)
	c.SteamDir = ExpandHome(c.SteamDir)
	c.StateFile = ExpandHome(c.StateFile)
	games := make(map[string]GameConfig, len(c.Games))
	for id, g := range c.Games {
		g.Path = ExpandHome(g.Path)
		g.ProtonDir = ExpandHome(g.ProtonDir)
		g.EnvFile = ExpandHome(g.EnvFile)
		games[id] = g
	}
	c.Games = games
	return c
}
