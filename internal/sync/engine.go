package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dstet/pathsync/internal/cache"
	"github.com/dstet/pathsync/internal/config"
	"github.com/dstet/pathsync/internal/ignore"
	"github.com/dstet/pathsync/internal/logging"
	"github.com/dstet/pathsync/internal/scan"
	"github.com/dstet/pathsync/internal/util"
)

// Phase is a step of a pair run.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseValidating  Phase = "validating"
	PhaseScanning    Phase = "scanning"
	PhaseReconciling Phase = "reconciling"
	PhasePersisting  Phase = "persisting"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// PhaseError is a pair-level failure and the phase it happened in.
type PhaseError struct {
	Phase Phase
	Pair  config.Pair
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Pair.Source, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// EventType identifies a progress event.
type EventType int

const (
	// EventPairStart is sent before a pair is validated.
	EventPairStart EventType = iota
	// EventPhase is sent when a pair enters a new phase.
	EventPhase
	// EventPlanned is sent once the plan is known.
	EventPlanned
	// EventFileStart is sent before an action is applied.
	EventFileStart
	// EventFileDone is sent after an action is applied.
	EventFileDone
	// EventPairDone is sent with the final result of a pair.
	EventPairDone
)

// Event reports progress of a pair run.
type Event struct {
	Type  EventType
	Pair  config.Pair
	Phase Phase
	// Action is set for file events.
	Action Action
	// File is set for EventFileDone.
	File *FileResult
	// Copies and Deletes are set for EventPlanned.
	Copies  int
	Deletes int
	// Result is set for EventPairDone.
	Result *Result
	// Err is set for EventPairDone when the pair failed.
	Err error
}

// Options configures synchronization behavior.
type Options struct {
	// Delete removes destination files that are gone from the source.
	Delete bool

	// Rescan walks the whole source tree instead of checking cached paths.
	Rescan bool

	// DryRun plans without copying, deleting or saving the cache.
	DryRun bool

	// Jobs is the number of pairs processed at once. Defaults to 1.
	Jobs int

	// Logger receives diagnostics. Defaults to a discarding logger.
	Logger *slog.Logger

	// Progress, when set, receives events as pairs are processed.
	Progress func(Event)
}

// Engine runs sync pairs.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// New creates a new Engine.
func New(opts Options) *Engine {
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{opts: opts, logger: logger}
}

func (e *Engine) emit(ev Event) {
	if e.opts.Progress != nil {
		e.opts.Progress(ev)
	}
}

func (e *Engine) enter(logger *slog.Logger, pair config.Pair, phase Phase) {
	logger.Debug("entering phase", logging.Phase(string(phase)))
	e.emit(Event{Type: EventPhase, Pair: pair, Phase: phase})
}

// Run processes pairs, up to Options.Jobs at a time. A pair that fails does
// not stop the others; their errors are joined. Results are in pair order.
func (e *Engine) Run(ctx context.Context, pairs []config.Pair) ([]*Result, error) {
	results := make([]*Result, len(pairs))
	errs := make([]error, len(pairs))

	var g errgroup.Group
	g.SetLimit(e.opts.Jobs)
	for i, pair := range pairs {
		g.Go(func() error {
			results[i], errs[i] = e.SyncPair(ctx, pair)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// SyncPair plans and applies one pair.
func (e *Engine) SyncPair(ctx context.Context, pair config.Pair) (*Result, error) {
	start := time.Now()
	plan, err := e.Plan(ctx, pair)
	if err != nil {
		result := &Result{Pair: pair, Phase: PhaseFailed, DryRun: e.opts.DryRun, Duration: time.Since(start)}
		e.emit(Event{Type: EventPairDone, Pair: pair, Phase: PhaseFailed, Result: result, Err: err})
		return result, err
	}
	return e.Apply(ctx, plan)
}

// Plan validates the pair, locks and loads its cache, scans the source and
// reconciles. The returned plan holds the cache lock until it is applied or
// closed.
func (e *Engine) Plan(ctx context.Context, pair config.Pair) (*Plan, error) {
	logger := e.logger.With(logging.Pair(pair.Source))
	e.emit(Event{Type: EventPairStart, Pair: pair, Phase: PhaseIdle})

	e.enter(logger, pair, PhaseValidating)
	if !util.IsDir(pair.Source) {
		return nil, e.fail(logger, pair, PhaseValidating, fmt.Errorf("source %q is not a directory", pair.Source))
	}
	if !util.Exists(pair.Destination) {
		return nil, e.fail(logger, pair, PhaseValidating, fmt.Errorf("destination %q does not exist", pair.Destination))
	}

	lock, err := cache.Acquire(pair.CacheFile)
	if err != nil {
		return nil, e.fail(logger, pair, PhaseValidating, err)
	}
	logger.Debug("reading cache file", logging.Path(pair.CacheFile))
	prior, err := cache.Load(pair.CacheFile)
	if err != nil {
		_ = lock.Release()
		return nil, e.fail(logger, pair, PhaseValidating, err)
	}
	logger.Log(ctx, logging.LevelTrace, "cached fingerprints", slog.Any("entries", prior.Entries))

	e.enter(logger, pair, PhaseScanning)
	mode := scan.ModeCacheCheck
	if e.opts.Rescan {
		mode = scan.ModeRescan
	}
	scanner := &scan.Scanner{
		Root:    pair.Source,
		Mode:    mode,
		Matcher: ignore.New(pair.Ignore),
		Logger:  logger,
	}
	res, err := scanner.Scan(ctx, prior)
	if err != nil {
		_ = lock.Release()
		return nil, e.fail(logger, pair, PhaseScanning, err)
	}
	logger.Log(ctx, logging.LevelTrace, "generated fingerprints", slog.Any("changed", res.Changed))

	e.enter(logger, pair, PhaseReconciling)
	plan := Reconcile(res, prior)
	plan.Pair = pair
	plan.lock = lock

	logger.Info("planned sync",
		slog.Int("copies", len(plan.Copies)),
		slog.Int("deletes", len(plan.Deletes)),
		slog.Int("touched", len(plan.Touched)),
	)
	e.emit(Event{
		Type:    EventPlanned,
		Pair:    pair,
		Phase:   PhaseReconciling,
		Copies:  len(plan.Copies),
		Deletes: len(plan.Deletes),
	})
	return plan, nil
}

func (e *Engine) fail(logger *slog.Logger, pair config.Pair, phase Phase, err error) error {
	logger.Error("pair failed", logging.Phase(string(phase)), logging.Err(err))
	return &PhaseError{Phase: phase, Pair: pair, Err: err}
}

// Apply executes a plan, merges the outcome into the cache and saves it.
// It releases the plan's lock.
func (e *Engine) Apply(ctx context.Context, plan *Plan) (result *Result, err error) {
	defer func() {
		if cerr := plan.Close(); cerr != nil && err == nil {
			err = &PhaseError{Phase: PhasePersisting, Pair: plan.Pair, Err: cerr}
			result.Phase = PhaseFailed
		}
		e.emit(Event{Type: EventPairDone, Pair: plan.Pair, Phase: result.Phase, Result: result, Err: err})
	}()

	start := time.Now()
	pair := plan.Pair
	logger := e.logger.With(logging.Pair(pair.Source))
	result = &Result{
		Pair:       pair,
		Phase:      PhaseReconciling,
		Touched:    len(plan.Touched),
		DryRun:     e.opts.DryRun,
		ScanErrors: plan.Scan.Errors,
		Unchanged:  plan.Scan.Unchanged,
		Ignored:    plan.Scan.Ignored,
	}
	defer func() { result.Duration = time.Since(start) }()

	for _, a := range plan.Skipped {
		result.Files = append(result.Files, FileResult{Path: a.Path, Action: a.Kind, Outcome: OutcomeSkipped})
	}

	if e.opts.DryRun {
		for _, a := range plan.Actions() {
			result.Files = append(result.Files, FileResult{Path: a.Path, Action: a.Kind, Outcome: e.plannedOutcome(a)})
		}
		result.Phase = PhaseDone
		return result, nil
	}

	next := plan.Prior().Clone()
	for path, fp := range plan.Touched {
		next.Set(path, fp)
	}

	for _, a := range plan.Ordered() {
		if cerr := ctx.Err(); cerr != nil {
			result.Phase = PhaseFailed
			return result, &PhaseError{Phase: PhaseReconciling, Pair: pair, Err: cerr}
		}
		e.emit(Event{Type: EventFileStart, Pair: pair, Phase: PhaseReconciling, Action: a})

		fr := e.apply(logger, pair, a)
		if fr.Success() {
			if a.Kind == ActionDelete {
				next.Delete(a.Path)
			} else {
				next.Set(a.Path, a.Fingerprint)
			}
		}
		result.Files = append(result.Files, fr)
		e.emit(Event{Type: EventFileDone, Pair: pair, Phase: PhaseReconciling, Action: a, File: &fr})
	}

	if cerr := ctx.Err(); cerr != nil {
		result.Phase = PhaseFailed
		return result, &PhaseError{Phase: PhaseReconciling, Pair: pair, Err: cerr}
	}

	e.enter(logger, pair, PhasePersisting)
	logger.Debug("writing cache file", logging.Path(pair.CacheFile), logging.Count(next.Size()))
	if serr := next.Save(); serr != nil {
		result.Phase = PhaseFailed
		return result, e.fail(logger, pair, PhasePersisting, serr)
	}

	result.Phase = PhaseDone
	e.enter(logger, pair, PhaseDone)
	return result, nil
}

func (e *Engine) plannedOutcome(a Action) Outcome {
	switch a.Kind {
	case ActionCreate:
		return OutcomeCreated
	case ActionUpdate:
		return OutcomeUpdated
	default:
		if e.opts.Delete {
			return OutcomeDeleted
		}
		return OutcomeForgotten
	}
}

// apply performs one action against the file system.
func (e *Engine) apply(logger *slog.Logger, pair config.Pair, a Action) FileResult {
	fr := FileResult{Path: a.Path, Action: a.Kind, Outcome: e.plannedOutcome(a)}

	switch a.Kind {
	case ActionCreate, ActionUpdate:
		src, err := resolve(pair.Source, a.Path)
		if err == nil {
			var dst string
			if dst, err = resolve(pair.Destination, a.Path); err == nil {
				logger.Info("copying file", logging.Path(src), slog.String("destination", dst))
				fr.Bytes, err = copyFile(src, dst)
			}
		}
		if err != nil {
			fr.Outcome, fr.Error, fr.Bytes = OutcomeFailed, err, 0
			logger.Warn("failed to copy file", logging.Path(a.Path), logging.Err(err))
		}
	case ActionDelete:
		if !e.opts.Delete {
			logger.Debug("dropping file from cache", logging.Path(a.Path))
			return fr
		}
		logger.Info("deleting file", logging.Path(a.Path))
		removed, err := removeDestination(pair.Destination, a.Path)
		if err != nil {
			fr.Outcome, fr.Error = OutcomeFailed, err
			logger.Warn("failed to delete file", logging.Path(a.Path), logging.Err(err))
		} else if !removed {
			logger.Debug("destination file already absent", logging.Path(a.Path))
		}
	}
	return fr
}
