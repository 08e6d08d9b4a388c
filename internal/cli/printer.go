package cli

import (
	"fmt"
	"io"
	gosync "sync"

	"github.com/dstet/pathsync/internal/config"
	"github.com/dstet/pathsync/internal/progress"
	"github.com/dstet/pathsync/internal/sync"
	"github.com/dstet/pathsync/internal/ui"
)

// printer renders engine events for the terminal, gated by verbosity.
type printer struct {
	mu        gosync.Mutex
	w         io.Writer
	verbosity config.Verbosity
	showBar   bool
	bar       *progress.Bar
}

func newPrinter(w io.Writer, rt config.Runtime) *printer {
	return &printer{
		w:         w,
		verbosity: rt.Verbosity,
		// one bar at a time, and never mixed with per-file lines
		showBar: rt.Jobs == 1 && !rt.Interactive && rt.Verbosity == config.VerbosityDefault,
	}
}

func (p *printer) println(level config.Verbosity, a ...any) {
	if p.verbosity.AtLeast(level) {
		_, _ = fmt.Fprintln(p.w, a...)
	}
}

func (p *printer) handle(ev sync.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case sync.EventPairStart:
		p.println(config.VerbosityDefault, "Syncing", ev.Pair.String())

	case sync.EventPlanned:
		p.println(config.VerbosityDefault, fmt.Sprintf("%d file(s) to update", ev.Copies))
		if ev.Deletes > 0 {
			p.println(config.VerbosityDefault, fmt.Sprintf("%d file(s) to remove", ev.Deletes))
		}
		if p.showBar {
			p.bar = progress.New(progress.Options{
				Max:         int64(ev.Copies + ev.Deletes),
				Description: "Syncing",
			})
		}

	case sync.EventFileStart:
		switch ev.Action.Kind {
		case sync.ActionDelete:
			p.println(config.VerbosityVerbose, "Deleting", ev.Action.Path)
		default:
			p.println(config.VerbosityVerbose, "Copying", ev.Action.Path)
		}

	case sync.EventFileDone:
		if p.bar != nil {
			_ = p.bar.Add(1)
		}
		if ev.File != nil && ev.File.Error != nil && p.verbosity.AtLeast(config.VerbosityVerbose) {
			p.println(config.VerbosityVerbose, ui.StatusError(fmt.Sprintf("%s: %v", ev.File.Path, ev.File.Error)))
		}

	case sync.EventPairDone:
		if p.bar != nil {
			_ = p.bar.Finish()
			p.bar = nil
		}
		if ev.Err != nil {
			p.println(config.VerbosityDefault, ui.StatusError(fmt.Sprintf("%s: %v", ev.Pair.String(), ev.Err)))
			return
		}
		if ev.Result != nil && p.verbosity.AtLeast(config.VerbosityDefault) {
			_, _ = fmt.Fprint(p.w, ev.Result.Summary())
		}
	}
}
