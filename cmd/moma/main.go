package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/moma/internal/config"
	"github.com/bamsammich/moma/internal/download"
	"github.com/bamsammich/moma/internal/errkind"
	"github.com/bamsammich/moma/internal/modlist"
	"github.com/bamsammich/moma/internal/platform"
	"github.com/bamsammich/moma/internal/session"
	"github.com/bamsammich/moma/internal/ui"
	"github.com/bamsammich/moma/internal/workspace"
)

var version = "dev"

func main() {
	// Privileged launch mode: moma re-exec'd through sudo by `moma launch`.
	// Must be checked before cobra to avoid flag conflicts.
	if len(os.Args) >= 2 && os.Args[1] == privilegedLaunchFlag {
		os.Exit(runPrivilegedLaunch(os.Args[2:]))
	}

	os.Exit(run())
}

// app carries the state shared by every subcommand.
type app struct {
	cfgPath string
	gameID  string
	verbose bool
	debug   bool
	logFile string

	cfg      config.Config
	logger   *slog.Logger
	closeLog func()
	stdout   io.Writer
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer platform.CleanupTmpFiles()

	a := &app{stdout: os.Stdout}
	rootCmd := newRootCmd(a)

	err := rootCmd.ExecuteContext(ctx)
	if a.closeLog != nil {
		a.closeLog()
	}
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitCode(err)
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "moma",
		Short:         "Layered mod manager that runs games from an overlay of their mods",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == docsCmdName {
				return nil
			}
			return a.setup()
		},
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError(err) })

	rootCmd.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default: $XDG_CONFIG_HOME/moma/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&a.gameID, "game", "g", "", "game to operate on (default: current context)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log progress")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "log everything")
	rootCmd.PersistentFlags().StringVar(&a.logFile, "log", "", "write structured JSON log to FILE")

	rootCmd.AddCommand(
		newSupportedCmd(a),
		newContextCmd(a),
		newInitCmd(a),
		newModsCmd(a),
		newLaunchCmd(a),
		newDocsCmd(),
	)
	return rootCmd
}

// setup configures logging and loads the config file.
func (a *app) setup() error {
	level := slog.LevelWarn
	switch {
	case a.debug:
		level = slog.LevelDebug
	case a.verbose:
		level = slog.LevelInfo
	}
	logger, closeLog, err := newLogger(level, a.logFile)
	if err != nil {
		return err
	}
	a.logger, a.closeLog = logger, closeLog
	slog.SetDefault(logger)

	if a.cfgPath == "" {
		a.cfgPath = config.Path()
	}
	cfg, err := config.LoadFile(a.cfgPath)
	if err != nil {
		return usageError(err)
	}
	a.cfg = cfg
	ui.ApplyTheme(cfg.Theme)
	return nil
}

// newLogger builds the text handler on stderr, teed to a JSON file at debug
// level when logFile is set.
func newLogger(level slog.Level, logFile string) (*slog.Logger, func(), error) {
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if logFile == "" {
		return slog.New(textHandler), func() {}, nil
	}
	lf, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(ui.NewMultiHandler(textHandler, jsonHandler)), func() { _ = lf.Close() }, nil
}

// resolveGame returns the game selected by --game or the saved context.
func (a *app) resolveGame() (string, config.GameConfig, error) {
	id := a.gameID
	if id == "" {
		current, ok, err := session.New(a.cfg.StateFile).Current()
		if err != nil {
			return "", config.GameConfig{}, err
		}
		if !ok {
			return "", config.GameConfig{}, usageError(errkind.Errorf(errkind.ErrPrecondition, "resolve game",
				"no game selected; run `moma context <game>` or pass --game"))
		}
		id = current
	}
	gc, err := a.cfg.Game(id)
	if err != nil {
		return "", config.GameConfig{}, usageError(fmt.Errorf("%w (run `moma init %s`)", err, id))
	}
	return id, gc, nil
}

func (a *app) system() platform.HostSystem {
	return platform.HostSystem{Logger: a.logger}
}

func (a *app) workspace() (*workspace.Workspace, error) {
	id, gc, err := a.resolveGame()
	if err != nil {
		return nil, err
	}
	return workspace.New(a.cfg.WorkDir, id, gc, platform.NewHostFS(), a.system()), nil
}

// services opens the workspace, creating any missing directories, with its
// store and download tracker.
func (a *app) services() (*workspace.Workspace, *modlist.Store, *download.Tracker, error) {
	ws, err := a.workspace()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := ws.PrepareFileSystem(); err != nil {
		return nil, nil, nil, err
	}
	store := modlist.NewStore(ws)
	store.Logger = a.logger

	staleAfter, err := a.cfg.StaleAfter()
	if err != nil {
		return nil, nil, nil, usageError(err)
	}
	tracker := download.NewTracker(ws, store)
	tracker.StaleAfter = staleAfter
	tracker.Logger = a.logger
	return ws, store, tracker, nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// usageErr marks errors caused by bad input or configuration.
type usageErr struct{ err error }

func (e *usageErr) Error() string { return e.err.Error() }
func (e *usageErr) Unwrap() error { return e.err }

func usageError(err error) error {
	if err == nil {
		return nil
	}
	return &usageErr{err: err}
}

// exitCode maps an error to the process exit status: 3 for privilege
// failures, 2 for usage and configuration errors, 1 for everything else.
func exitCode(err error) int {
	var usage *usageErr
	var childExit *exec.ExitError
	switch {
	case errors.Is(err, errkind.ErrPrivilege):
		return 3
	case errors.As(err, &usage):
		return 2
	case errors.As(err, &childExit) && childExit.ExitCode() > 0:
		return childExit.ExitCode()
	default:
		return 1
	}
}
