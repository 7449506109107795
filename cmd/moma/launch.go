package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"os/user"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/moma/internal/config"
	"github.com/bamsammich/moma/internal/errkind"
	"github.com/bamsammich/moma/internal/game"
	"github.com/bamsammich/moma/internal/modlist"
	"github.com/bamsammich/moma/internal/mount"
	"github.com/bamsammich/moma/internal/platform"
	"github.com/bamsammich/moma/internal/proton"
	"github.com/bamsammich/moma/internal/workspace"
)

// privilegedLaunchFlag marks the re-exec of moma through sudo that performs
// the mount and hands off to the game.
const privilegedLaunchFlag = "--moma-privileged-launch"

// displayEnv is forwarded across sudo so the game can reach the session.
var displayEnv = []string{"WAYLAND_DISPLAY", "DISPLAY", "XDG_RUNTIME_DIR", "PULSE_SERVER"}

func newLaunchCmd(a *app) *cobra.Command {
	var force, vanilla bool
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Mount the mod overlay and run the game",
		Long: `Launch merges every installed mod into a private overlay of the game
directory and runs the game through Proton. Mounting requires root, so moma
re-executes itself through sudo, mounts, drops back to the invoking user and
only then starts the game. Files the game writes land in the workspace sink.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sys := a.system()
			if sys.IsElevated() {
				return usageError(errkind.Errorf(errkind.ErrPrecondition, "launch",
					"run moma launch as your own user; it elevates itself"))
			}

			ws, err := a.workspace()
			if err != nil {
				return err
			}
			if err := ws.PrepareFileSystem(); err != nil {
				return err
			}
			empty, err := ws.ValidateSinkIsEmpty()
			if err != nil {
				return err
			}
			if !empty && !force {
				return errkind.WithPath(errkind.ErrPrecondition, "launch", ws.SinkDir(),
					errors.New("sink is not empty; move its files into a mod or pass --force"))
			}
			if !empty {
				a.logger.Warn("launching with a non-empty sink", "sink", ws.SinkDir())
			}

			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locate moma executable: %w", err)
			}
			argv := privilegedArgv(self, ws.GameID(), a.cfgPath, vanilla, a.debug)
			err = sys.RunPrivileged(cmd.Context(), argv, passthrough(os.Getenv))

			var childExit *exec.ExitError
			if errors.As(err, &childExit) && childExit.ExitCode() > 0 {
				return &exitError{code: childExit.ExitCode()}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "launch even if the sink holds files from a previous session")
	cmd.Flags().BoolVar(&vanilla, "vanilla", false, "run the game's own executable instead of the script extender")
	return cmd
}

// privilegedArgv builds the command line of the elevated child.
func privilegedArgv(self, gameID, cfgPath string, vanilla, debug bool) []string {
	argv := []string{self, privilegedLaunchFlag, "--game", gameID, "--config", cfgPath}
	if vanilla {
		argv = append(argv, "--vanilla")
	}
	if debug {
		argv = append(argv, "--debug")
	}
	return argv
}

// passthrough returns KEY=VALUE pairs for the display variables that are set.
func passthrough(getenv func(string) string) []string {
	var env []string
	for _, k := range displayEnv {
		if v := getenv(k); v != "" {
			env = append(env, k+"="+v)
		}
	}
	return env
}

// launchOptions are the flags of the privileged child.
type launchOptions struct {
	gameID  string
	cfgPath string
	vanilla bool
	debug   bool
}

func parseLaunchArgs(args []string) (launchOptions, error) {
	var opts launchOptions
	fs := pflag.NewFlagSet("moma "+privilegedLaunchFlag, pflag.ContinueOnError)
	fs.StringVar(&opts.gameID, "game", "", "")
	fs.StringVar(&opts.cfgPath, "config", "", "")
	fs.BoolVar(&opts.vanilla, "vanilla", false, "")
	fs.BoolVar(&opts.debug, "debug", false, "")
	if err := fs.Parse(args); err != nil {
		return opts, usageError(err)
	}
	if opts.gameID == "" || opts.cfgPath == "" {
		return opts, usageError(errors.New("--game and --config are required"))
	}
	return opts, nil
}

// runPrivilegedLaunch is the entry point of the elevated child: mount the
// overlay, drop privileges and supervise the game.
func runPrivilegedLaunch(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := parseLaunchArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).
		With("game", opts.gameID)
	slog.SetDefault(logger)

	if err := privilegedLaunch(ctx, opts, logger); err != nil {
		logger.Error("launch failed", "error", err)
		return exitCode(err)
	}
	return 0
}

func privilegedLaunch(ctx context.Context, opts launchOptions, logger *slog.Logger) error {
	cfg, err := config.LoadFile(opts.cfgPath)
	if err != nil {
		return usageError(err)
	}
	profile, ok := game.Lookup(opts.gameID)
	if !ok {
		return usageError(errkind.Errorf(errkind.ErrNotFound, "launch", "unsupported game %q", opts.gameID))
	}
	gc, err := cfg.Game(profile.ID)
	if err != nil {
		return usageError(err)
	}
	env, err := gc.EnvVars()
	if err != nil {
		return usageError(err)
	}

	id, err := platform.InvokingIdentity()
	if err != nil {
		return err
	}
	if home := homeOf(id); home != "" {
		if _, set := env["HOME"]; !set {
			env["HOME"] = home
		}
	}

	sys := platform.HostSystem{Logger: logger}
	ws := workspace.New(cfg.WorkDir, profile.ID, gc, platform.NewHostFS(), sys)
	store := modlist.NewStore(ws)
	store.Logger = logger

	plan, err := mount.BuildPlan(ws, store, logger)
	if err != nil {
		return err
	}
	logger.Info("merge plan ready", "layers", len(plan.Layers))

	orch := mount.New(ws, sys, id, plan)
	orch.Logger = logger
	return orch.Run(ctx, func(ctx context.Context) error {
		sup := &proton.Supervisor{
			Binary:        ws.ProtonBinary(),
			CompatDataDir: ws.ProtonWorkDir(),
			SteamDir:      cfg.SteamDir,
			Dir:           ws.ActiveDir(),
			Env:           env,
			Stdout:        os.Stdout,
			Stderr:        os.Stderr,
			Logger:        logger,
		}
		return sup.Run(ctx, profile.LaunchExecutable(opts.vanilla))
	})
}

// homeOf returns the home directory of id, or "" if it cannot be resolved.
func homeOf(id platform.Identity) string {
	u, err := user.LookupId(strconv.FormatUint(uint64(id.UID), 10))
	if err != nil {
		return ""
	}
	return u.HomeDir
}
