package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bamsammich/moma/internal/config"
	"github.com/bamsammich/moma/internal/download"
	"github.com/bamsammich/moma/internal/errkind"
	"github.com/bamsammich/moma/internal/modlist"
	"github.com/bamsammich/moma/internal/ui"
)

func newModsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mods",
		Short: "Inspect and manage the mod list",
	}
	cmd.AddCommand(
		newModsListCmd(a),
		newModsDownloadsCmd(a),
		newModsFetchCmd(a),
		newModsInstallCmd(a),
	)
	return cmd
}

func newModsListCmd(a *app) *cobra.Command {
	var status, output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show mods and the status of their archives",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, store, _, err := a.services()
			if err != nil {
				return err
			}

			var mods []modlist.Mod
			if status != "" {
				kind, ok := modlist.ParseKind(status)
				if !ok {
					return usageError(fmt.Errorf("unknown status %q", status))
				}
				mods, err = store.ArchivesWithStatus(kind)
			} else {
				var list modlist.List
				list, err = store.Read()
				mods = list.Mods
			}
			if err != nil {
				return err
			}
			return writeMods(a.stdout, output, mods)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only archives with this status (Downloading, Downloaded, Installed, Failed)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func writeMods(w io.Writer, format string, mods []modlist.Mod) error {
	if mods == nil {
		mods = []modlist.Mod{}
	}
	switch format {
	case "text":
		return ui.RenderModList(w, mods)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(modlist.List{Mods: mods})
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(modlist.List{Mods: mods}); err != nil {
			return err
		}
		return enc.Close()
	default:
		return usageError(fmt.Errorf("unknown output format %q (use text, json or yaml)", format))
	}
}

func newModsDownloadsCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "downloads",
		Short: "Show downloads in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _, tracker, err := a.services()
			if err != nil {
				return err
			}
			if err := resetStuck(a, tracker); err != nil {
				return err
			}

			view := ui.NewDownloadView()
			if !watch {
				active, err := tracker.Active()
				if err != nil {
					return err
				}
				fmt.Fprint(a.stdout, view.Render(active))
				return nil
			}

			clearScreen := ui.IsTTY(os.Stdout)
			return tracker.Watch(cmd.Context(), func(active []download.Progress) {
				if clearScreen {
					fmt.Fprint(a.stdout, "\x1b[H\x1b[2J")
				}
				fmt.Fprint(a.stdout, view.Render(active))
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep refreshing until interrupted")
	return cmd
}

// resetStuck reaps downloads abandoned by dead processes and reports how
// many were marked Failed.
func resetStuck(a *app, tracker *download.Tracker) error {
	n, err := tracker.ResetStuck()
	if err != nil {
		return err
	}
	if n > 0 {
		a.logger.Warn("marked interrupted downloads as failed", "count", n)
	}
	return nil
}

// sizeValue is a pflag.Value accepting human-readable byte sizes.
type sizeValue struct {
	bytes int64
	set   bool
}

func (s *sizeValue) String() string {
	if !s.set {
		return ""
	}
	return strconv.FormatInt(s.bytes, 10)
}

func (s *sizeValue) Set(v string) error {
	n, err := config.ParseSize(v)
	if err != nil {
		return err
	}
	s.bytes, s.set = n, true
	return nil
}

func (*sizeValue) Type() string { return "size" }

func newModsFetchCmd(a *app) *cobra.Command {
	var modName, fileName string
	var bwlimit sizeValue
	cmd := &cobra.Command{
		Use:   "fetch <mod-uid> <file-uid> <url>",
		Short: "Download an archive into the workspace",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			modUID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return usageError(fmt.Errorf("invalid mod uid %q", args[0]))
			}
			fileUID, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return usageError(fmt.Errorf("invalid file uid %q", args[1]))
			}

			if fileName == "" {
				fileName = fileNameFromURL(args[2], fileUID)
			}
			if err := download.CheckFileName(fileName); err != nil {
				return usageError(err)
			}

			_, _, tracker, err := a.services()
			if err != nil {
				return err
			}
			if err := resetStuck(a, tracker); err != nil {
				return err
			}

			limit := bwlimit.bytes
			if !bwlimit.set {
				if limit, err = a.cfg.BWLimit(); err != nil {
					return usageError(err)
				}
			}
			if limit > 0 {
				tracker.Limiter = download.NewBWLimiter(limit)
			}

			if modName == "" {
				modName = args[0]
			}
			mod := modlist.Mod{UID: modUID, Name: modName}
			archive := modlist.Archive{FileUID: fileUID, FileName: fileName}
			src := download.HTTPSource{URL: args[2], UserAgent: "moma/" + version}

			start := time.Now()
			staged, err := tracker.Acquire(cmd.Context(), mod, archive, src)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Downloaded %s in %s\n", staged.FileName, ui.FormatDuration(time.Since(start)))
			fmt.Fprintf(a.stdout, "  staged:   %s\n", staged.Path())
			fmt.Fprintf(a.stdout, "  checksum: %s\n", staged.Checksum)
			return nil
		},
	}
	cmd.Flags().StringVar(&modName, "mod-name", "", "display name of the mod (default: its uid)")
	cmd.Flags().StringVar(&fileName, "file-name", "", "archive file name (default: taken from the URL)")
	cmd.Flags().Var(&bwlimit, "bwlimit", "bandwidth limit (e.g. 500K, 10M; default: downloads.bwlimit)")
	return cmd
}

// fileNameFromURL returns the last path element of rawURL, or a name
// derived from fileUID when the URL has none.
func fileNameFromURL(rawURL string, fileUID uint64) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			return base
		}
	}
	return fmt.Sprintf("%d.archive", fileUID)
}

func newModsInstallCmd(a *app) *cobra.Command {
	var all, flatten bool
	var modUID, fileUID uint64
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Extract downloaded archives into their mod directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all == cmd.Flags().Changed("mod") {
				return usageError(errors.New("pass either --all or --mod"))
			}

			_, store, _, err := a.services()
			if err != nil {
				return err
			}
			store.Flatten = flatten

			pending, err := store.ArchivesWithStatus(modlist.KindDownloaded)
			if err != nil {
				return err
			}
			var errs []error
			installed := 0
			for _, m := range pending {
				if !all && m.UID != modUID {
					continue
				}
				for _, ar := range m.Archives {
					if !all && cmd.Flags().Changed("file") && ar.FileUID != fileUID {
						continue
					}
					if err := store.InstallArchive(m, ar); err != nil {
						a.logger.Error("install failed", "mod", m.Name, "file", ar.FileName, "error", err)
						errs = append(errs, fmt.Errorf("%s/%s: %w", m.Name, ar.FileName, err))
						continue
					}
					installed++
					fmt.Fprintf(a.stdout, "Installed %s (%s)\n", ar.FileName, m.Name)
				}
			}
			if installed == 0 && len(errs) == 0 {
				return errkind.Errorf(errkind.ErrNotFound, "install", "no downloaded archives to install")
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "install every downloaded archive")
	cmd.Flags().Uint64Var(&modUID, "mod", 0, "install the downloaded archives of this mod uid")
	cmd.Flags().Uint64Var(&fileUID, "file", 0, "with --mod, install only this file uid")
	cmd.Flags().BoolVar(&flatten, "flatten", false, "hoist a lone top-level directory out of each archive")
	return cmd
}
