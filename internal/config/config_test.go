package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/moma/internal/errkind"
)

func TestPath_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	assert.Equal(t, "/cfg/moma/config.toml", Path())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", "/home/tester")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/.moma", cfg.WorkDir)
	assert.Empty(t, cfg.Games)

	stale, err := cfg.StaleAfter()
	require.NoError(t, err)
	assert.Equal(t, DefaultStaleAfter, stale)
}

func TestLoadFile_ParsesGames(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
work_dir = "/data/moma"

[downloads]
stale_after = "300s"
bwlimit = "10M"

[games.skyrimse]
path = "~/games/skyrim"
proton_dir = "/opt/proton"
env = { DXVK_HUD = "fps" }
merge_exclude = ["fomod/"]
load_order = [3, 1]
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/moma", cfg.WorkDir)

	g, err := cfg.Game("skyrimse")
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/games/skyrim", g.Path)
	assert.Equal(t, "/opt/proton", g.ProtonDir)
	assert.Equal(t, []string{"fomod/"}, g.MergeExclude)
	assert.Equal(t, []uint64{3, 1}, g.LoadOrder)

	stale, err := cfg.StaleAfter()
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, stale)

	limit, err := cfg.BWLimit()
	require.NoError(t, err)
	assert.Equal(t, int64(10<<20), limit)
}

func TestLoadFile_CorruptIsReported(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("work_dir = ["), 0o644))

	_, err := LoadFile(path)
	assert.ErrorIs(t, err, errkind.ErrCorrupt)
}

func TestGame_Missing(t *testing.T) {
	t.Parallel()
	_, err := Default().Game("skyrimse")
	assert.ErrorIs(t, err, errkind.ErrNotFound)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.WorkDir = "/w"
	cfg.Games["skyrimse"] = GameConfig{Path: "/g", ProtonDir: "/p"}
	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/w", loaded.WorkDir)
	assert.Equal(t, GameConfig{Path: "/g", ProtonDir: "/p"}, loaded.Games["skyrimse"])
}

func TestStaleAfter_Invalid(t *testing.T) {
	t.Parallel()
	bad := "soon"
	cfg := Default()
	cfg.Downloads.StaleAfter = &bad
	_, err := cfg.StaleAfter()
	assert.Error(t, err)

	negative := "-5s"
	cfg.Downloads.StaleAfter = &negative
	_, err = cfg.StaleAfter()
	assert.Error(t, err)
}

func TestEnvVars_FallbackAndOverride(t *testing.T) {
	t.Setenv("DISPLAY", ":0")
	t.Setenv("WAYLAND_DISPLAY", "wayland-1")

	g := GameConfig{Env: map[string]string{"DISPLAY": ":1", "DXVK_HUD": "fps"}}
	vars, err := g.EnvVars()
	require.NoError(t, err)

	assert.Equal(t, ":1", vars["DISPLAY"])
	assert.Equal(t, "wayland-1", vars["WAYLAND_DISPLAY"])
	assert.Equal(t, "fps", vars["DXVK_HUD"])
}

func TestEnvVars_EnvFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "game.env")
	require.NoError(t, os.WriteFile(path, []byte("# tuning\nDXVK_HUD=full\nPROTON_LOG=1\n"), 0o644))

	g := GameConfig{EnvFile: path, Env: map[string]string{"DXVK_HUD": "fps"}}
	vars, err := g.EnvVars()
	require.NoError(t, err)
	assert.Equal(t, "fps", vars["DXVK_HUD"])
	assert.Equal(t, "1", vars["PROTON_LOG"])
}

func TestEnvVars_MissingEnvFile(t *testing.T) {
	t.Parallel()
	g := GameConfig{EnvFile: filepath.Join(t.TempDir(), "absent.env")}
	_, err := g.EnvVars()
	assert.ErrorIs(t, err, errkind.ErrNotFound)
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	assert.Equal(t, "/home/tester/x", ExpandHome("~/x"))
	assert.Equal(t, "/home/tester", ExpandHome("~"))
	assert.Equal(t, "/abs", ExpandHome("/abs"))
	assert.Equal(t, "~user/x", ExpandHome("~user/x"))
}

func TestParseSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int64
		err  bool
	}{
		{in: "100", want: 100},
		{in: "100B", want: 100},
		{in: "1K", want: 1024},
		{in: "10m", want: 10 << 20},
		{in: "1.5G", want: 3 << 29},
		{in: "2T", want: 2 << 40},
		{in: "", err: true},
		{in: "M", err: true},
		{in: "abc", err: true},
		{in: "-1K", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
