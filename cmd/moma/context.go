package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bamsammich/moma/internal/config"
	"github.com/bamsammich/moma/internal/errkind"
	"github.com/bamsammich/moma/internal/game"
	"github.com/bamsammich/moma/internal/platform"
	"github.com/bamsammich/moma/internal/session"
	"github.com/bamsammich/moma/internal/workspace"
)

func newSupportedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "supported",
		Short: "List the games moma can manage",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			for _, p := range game.All() {
				marker := " "
				if _, ok := a.cfg.Games[p.ID]; ok {
					marker = "*"
				}
				fmt.Fprintf(a.stdout, "%s %-10s %s\n", marker, p.ID, p.Name)
			}
			return nil
		},
	}
}

func newContextCmd(a *app) *cobra.Command {
	var clearCtx bool
	cmd := &cobra.Command{
		Use:   "context [game]",
		Short: "Show or set the game later commands operate on",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			state := session.New(a.cfg.StateFile)
			switch {
			case clearCtx:
				if err := state.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, "context cleared")
				return nil
			case len(args) == 1:
				if err := state.Set(args[0]); err != nil {
					return usageError(err)
				}
				fmt.Fprintf(a.stdout, "context set to %s\n", args[0])
				return nil
			}

			id, ok, err := state.Current()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(a.stdout, "no game selected")
				return nil
			}
			fmt.Fprintln(a.stdout, id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearCtx, "clear", false, "forget the current game")
	return cmd
}

func newInitCmd(a *app) *cobra.Command {
	var gamePath, protonDir string
	cmd := &cobra.Command{
		Use:   "init <game>",
		Short: "Configure a game and create its workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			profile, ok := game.Lookup(args[0])
			if !ok {
				return usageError(errkind.Errorf(errkind.ErrNotFound, "init", "unsupported game %q", args[0]))
			}

			gc := a.cfg.Games[profile.ID]
			switch {
			case gamePath != "":
				gc.Path = config.ExpandHome(gamePath)
			case gc.Path == "":
				gc.Path = profile.DefaultPath(a.cfg.SteamDir)
			}
			switch {
			case protonDir != "":
				gc.ProtonDir = config.ExpandHome(protonDir)
			case gc.ProtonDir == "":
				found, err := findProton(a.cfg.SteamDir)
				if err != nil {
					return usageError(err)
				}
				gc.ProtonDir = found
			}

			if _, err := os.Stat(gc.Path); err != nil {
				return usageError(errkind.IO("init", gc.Path, err))
			}
			if a.cfg.Games == nil {
				a.cfg.Games = map[string]config.GameConfig{}
			}
			a.cfg.Games[profile.ID] = gc
			if err := a.cfg.SaveTo(a.cfgPath); err != nil {
				return err
			}

			ws := workspace.New(a.cfg.WorkDir, profile.ID, gc, platform.NewHostFS(), a.system())
			if err := ws.PrepareFileSystem(); err != nil {
				return err
			}
			if err := session.New(a.cfg.StateFile).Set(profile.ID); err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "Initialized %s\n", profile.Name)
			fmt.Fprintf(a.stdout, "  game path:  %s\n", gc.Path)
			fmt.Fprintf(a.stdout, "  proton:     %s\n", gc.ProtonDir)
			fmt.Fprintf(a.stdout, "  workspace:  %s\n", ws.Root())
			fmt.Fprintf(a.stdout, "  config:     %s\n", a.cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&gamePath, "path", "", "game installation directory (default: the Steam library location)")
	cmd.Flags().StringVar(&protonDir, "proton", "", "Proton directory (default: newest Proton in the Steam library)")
	return cmd
}

// findProton returns the last (by name) Proton install under the Steam
// library.
func findProton(steamDir string) (string, error) {
	common := filepath.Join(steamDir, "steamapps", "common")
	entries, err := os.ReadDir(common)
	if err != nil {
		return "", errkind.IO("find proton", common, err)
	}
	var candidates []string
	for _, e := range entries {
		if e.IsDir() && strings.Contains(strings.ToLower(e.Name()), "proton") {
			candidates = append(candidates, e.Name())
		}
	}
	if len(candidates) == 0 {
		return "", errkind.WithPath(errkind.ErrNotFound, "find proton", common,
			errors.New("no Proton installation found; pass --proton"))
	}
	sort.Strings(candidates)
	return filepath.Join(common, candidates[len(candidates)-1]), nil
}
