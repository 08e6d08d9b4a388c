// Package cli provides the command-line interface for pathsync.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dstet/pathsync/internal/config"
	"github.com/dstet/pathsync/internal/logging"
	"github.com/dstet/pathsync/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

func init() {
	// -v selects verbose output, so --version has no short alias.
	cli.VersionFlag = &cli.BoolFlag{
		Name:        "version",
		Usage:       "print the version",
		HideDefault: true,
		Local:       true,
	}
}

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	app := &cli.Command{
		Name:      "pathsync",
		Usage:     "Mirror source directories into destinations using a fingerprint cache",
		UsageText: "pathsync [options] <syncfile>",
		Description: `Synchronize every source -> destination pair declared in a syncfile.

   Only files whose content changed since the last run are copied. Run
   "pathsync init" to create a syncfile and the empty cache files it needs.

   Examples:
     pathsync ~/sync.json
     pathsync -v --delete --rescan ~/sync.json
     pathsync --dry-run ~/sync.yaml`,
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "delete",
				Aliases: []string{"d"},
				Usage:   "Delete destination files that no longer exist in the source",
			},
			&cli.BoolFlag{
				Name:    "rescan",
				Aliases: []string{"r"},
				Usage:   "Walk the whole source tree instead of re-checking cached paths",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Show what would change without copying, deleting or saving the cache",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Review each pair's plan before it is applied",
			},
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Value:   1,
				Usage:   "Number of pairs to sync at once",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "Write logs as JSON",
			},
		},
		MutuallyExclusiveFlags: []cli.MutuallyExclusiveFlags{
			{
				Category: "verbosity",
				Flags: [][]cli.Flag{
					{&cli.BoolFlag{
						Name:    "silent",
						Aliases: []string{"s"},
						Usage:   "Print nothing but fatal errors",
					}},
					{&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Print each file as it is copied or deleted",
					}},
					{&cli.BoolFlag{
						Name:    "extra-verbose",
						Aliases: []string{"vv"},
						Usage:   "Also print validation checks and hashing detail",
					}},
					{&cli.BoolFlag{
						Name:    "trace",
						Aliases: []string{"vvv"},
						Usage:   "Also dump cache contents",
					}},
				},
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			rt := runtimeOptions(cmd)
			configureColors(rt)
			return ctx, configureLogging(rt)
		},
		Action: syncAction,
		Commands: []*cli.Command{
			versionCommand(),
			validateCommand(),
			initCommand(),
			cacheCommand(),
		},
	}
	return app.Run(ctx, args)
}

// runtimeOptions resolves the run options: defaults, then environment
// overrides, then flags that were set explicitly.
func runtimeOptions(cmd *cli.Command) config.Runtime {
	rt := config.DefaultRuntime()
	rt.ApplyEnvironment()

	switch {
	case cmd.Bool("silent"):
		rt.Verbosity = config.VerbositySilent
	case cmd.Bool("trace"):
		rt.Verbosity = config.VerbosityTrace
	case cmd.Bool("extra-verbose"):
		rt.Verbosity = config.VerbosityExtra
	case cmd.Bool("verbose"):
		rt.Verbosity = config.VerbosityVerbose
	}
	if cmd.IsSet("delete") {
		rt.Delete = cmd.Bool("delete")
	}
	if cmd.IsSet("rescan") {
		rt.Rescan = cmd.Bool("rescan")
	}
	if cmd.IsSet("jobs") {
		rt.Jobs = cmd.Int("jobs")
	}
	if cmd.Bool("no-color") {
		rt.NoColor = true
	}
	rt.DryRun = cmd.Bool("dry-run")
	rt.Interactive = cmd.Bool("interactive")
	rt.LogJSON = cmd.Bool("log-json")

	rt.Normalize()
	return rt
}

// configureColors sets up color output based on the run options.
func configureColors(rt config.Runtime) {
	ui.Configure(rt.NoColor)
}

// configureLogging sets up the logging level based on the verbosity.
func configureLogging(rt config.Runtime) error {
	opts := logging.DefaultOptions()
	opts.Level = rt.Verbosity.Level()
	opts.JSON = rt.LogJSON
	opts.Output = os.Stderr
	if rt.Verbosity.AtLeast(config.VerbosityTrace) {
		opts.AddSource = true
	}

	logger := logging.New(opts)
	logging.SetDefault(logger)

	logging.Debug("logging configured",
		slog.String("level", opts.Level.String()),
		slog.String("verbosity", rt.Verbosity.String()),
	)

	return nil
}
