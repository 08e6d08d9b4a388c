package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/dstet/pathsync/internal/config"
	"github.com/dstet/pathsync/internal/logging"
	"github.com/dstet/pathsync/internal/sync"
	"github.com/dstet/pathsync/internal/ui"
	"github.com/dstet/pathsync/internal/ui/tui"
	"github.com/dstet/pathsync/internal/validation"
)

// ErrInvalidSyncfile is returned when a syncfile fails validation.
var ErrInvalidSyncfile = errors.New("sync prefs invalid")

// reviewPlan asks the user which actions of a plan to apply.
var reviewPlan = tui.RunPlanReview

func syncAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("expected exactly one argument: <syncfile>")
	}
	rt := runtimeOptions(cmd)
	w := cmd.Root().Writer

	pairs, err := loadPairs(w, cmd.Args().First(), rt.Verbosity)
	if err != nil {
		return err
	}

	out := newPrinter(w, rt)
	engine := sync.New(sync.Options{
		Delete:   rt.Delete,
		Rescan:   rt.Rescan,
		DryRun:   rt.DryRun,
		Jobs:     rt.Jobs,
		Logger:   logging.Default(),
		Progress: out.handle,
	})

	if rt.Interactive {
		err = syncInteractive(ctx, engine, pairs)
	} else {
		_, err = engine.Run(ctx, pairs)
	}
	if err != nil {
		return err
	}

	out.println(config.VerbosityDefault, "Done!")
	return nil
}

// loadPairs loads and validates the syncfile. Nothing is synced unless
// every check passes.
func loadPairs(w io.Writer, path string, v config.Verbosity) ([]config.Pair, error) {
	doc, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	report := validation.Validate(doc)
	for _, c := range report.Checks {
		logging.Debug("validation check", slog.String("check", c.Name), slog.Bool("passed", c.Passed))
	}
	if v.AtLeast(config.VerbosityExtra) {
		_, _ = fmt.Fprint(w, report.Summary())
	}
	if !report.Valid() {
		if v.AtLeast(config.VerbosityDefault) {
			for _, c := range report.Failed() {
				_, _ = fmt.Fprintln(w, ui.StatusError(fmt.Sprintf("%s: %v", c.Name, c.Err)))
			}
			_, _ = fmt.Fprintln(w, "ERROR: Sync prefs invalid, check above output for failed checks")
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidSyncfile, report.Err())
	}

	sf, err := doc.Syncfile()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSyncfile, err)
	}
	return sf.SyncPairs(), nil
}

// syncInteractive plans each pair, lets the user review it and applies the
// selected actions. Quitting the review applies nothing but the refreshed
// timestamps of unchanged files.
func syncInteractive(ctx context.Context, engine *sync.Engine, pairs []config.Pair) error {
	var errs []error
	for _, pair := range pairs {
		plan, err := engine.Plan(ctx, pair)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if !plan.Empty() {
			review, err := reviewPlan(plan)
			if err != nil {
				_ = plan.Close()
				errs = append(errs, err)
				continue
			}
			if review.Action == tui.PlanActionApply {
				plan.Keep(review.Includes)
			} else {
				logging.Info("plan skipped", logging.Pair(pair.Source), logging.Count(plan.Len()))
				plan.Keep(func(sync.Action) bool { return false })
			}
		}

		if _, err := engine.Apply(ctx, plan); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
