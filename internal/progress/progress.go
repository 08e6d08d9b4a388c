// Package progress provides the copy progress bar.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/dstet/pathsync/internal/logging"
	"github.com/dstet/pathsync/internal/ui"
)

// Bar wraps progressbar functionality with integration to pathsync's UI and logging.
type Bar struct {
	bar     *progressbar.ProgressBar
	enabled bool
	desc    string
}

// Options configures the progress bar behavior.
type Options struct {
	// Max is the maximum value for the progress bar (total steps).
	Max int64
	// Description is the prefix text shown before the progress bar.
	Description string
	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer
	// Disabled turns the bar off regardless of the terminal.
	Disabled bool
}

// New creates a new progress bar with the given options.
// The bar is only shown if:
//   - Colors are enabled (respects NO_COLOR and --no-color)
//   - Output is a terminal
//   - Not in debug/verbose mode (to avoid interfering with logs)
func New(opts Options) *Bar {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}

	b := &Bar{
		enabled: !opts.Disabled && opts.Max > 0 && shouldShowProgress(opts.Writer),
		desc:    opts.Description,
	}

	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s started", opts.Description),
			logging.Count(int(opts.Max)))
		return b
	}

	b.bar = progressbar.NewOptions64(
		opts.Max,
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionSetWriter(opts.Writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprint(opts.Writer, "\n")
		}),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(ui.IsColorEnabled()),
	)

	return b
}

// Enabled reports whether the bar is drawn.
func (b *Bar) Enabled() bool {
	return b.enabled
}

// Add increments the progress bar by n steps.
func (b *Bar) Add(n int) error {
	if !b.enabled {
		return nil
	}
	return b.bar.Add(n)
}

// Describe updates the progress bar description.
func (b *Bar) Describe(desc string) {
	b.desc = desc
	if !b.enabled {
		return
	}
	b.bar.Describe(desc)
}

// Finish completes the progress bar and logs completion.
func (b *Bar) Finish() error {
	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s completed", b.desc))
		return nil
	}
	return b.bar.Finish()
}

// Clear removes the progress bar from the terminal.
func (b *Bar) Clear() error {
	if !b.enabled {
		return nil
	}
	return b.bar.Clear()
}

// shouldShowProgress determines if progress bars should be displayed.
func shouldShowProgress(w io.Writer) bool {
	if !ui.IsColorEnabled() {
		return false
	}

	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}

	// Disable progress if at debug level (avoid interfering with logs)
	return !logging.Default().Enabled(context.Background(), logging.LevelDebug)
}
