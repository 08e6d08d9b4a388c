package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dstet/pathsync/internal/config"
	"github.com/dstet/pathsync/internal/scan"
)

// Outcome is what happened to one file.
type Outcome string

const (
	// OutcomeCreated indicates a new file was copied to the destination.
	OutcomeCreated Outcome = "created"

	// OutcomeUpdated indicates a changed file was copied over its old copy.
	OutcomeUpdated Outcome = "updated"

	// OutcomeDeleted indicates a file was removed from the cache and the destination.
	OutcomeDeleted Outcome = "deleted"

	// OutcomeForgotten indicates a file was removed from the cache only.
	OutcomeForgotten Outcome = "forgotten"

	// OutcomeSkipped indicates a planned action was left out during review.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed indicates an error occurred processing the file.
	OutcomeFailed Outcome = "failed"
)

// outcomeOrder is the order outcomes appear in summaries.
var outcomeOrder = []Outcome{
	OutcomeCreated, OutcomeUpdated, OutcomeDeleted, OutcomeForgotten, OutcomeSkipped, OutcomeFailed,
}

// FileResult represents the outcome of one planned action.
type FileResult struct {
	// Path is the source-relative path.
	Path string

	// Action is the planned action.
	Action ActionKind

	// Outcome is what happened.
	Outcome Outcome

	// Bytes is the number of bytes copied.
	Bytes int64

	// Error contains any error that occurred during processing.
	Error error
}

// Success returns true if the action did not fail.
func (fr *FileResult) Success() bool {
	return fr.Outcome != OutcomeFailed
}

// Result contains the complete outcome of one pair run.
type Result struct {
	// Pair is the pair that was synchronized.
	Pair config.Pair

	// Phase is the final phase, PhaseDone or PhaseFailed.
	Phase Phase

	// Files contains the result for each planned action.
	Files []FileResult

	// Touched counts files whose cached timestamp was refreshed.
	Touched int

	// Unchanged counts files skipped because their timestamp matched.
	Unchanged int

	// Ignored counts files excluded by ignore patterns.
	Ignored int

	// ScanErrors lists files the scanner could not read.
	ScanErrors []scan.FileError

	// Duration is the wall time of the run.
	Duration time.Duration

	// DryRun indicates if this was a dry run (no changes made).
	DryRun bool
}

// Created returns files that were created.
func (r *Result) Created() []FileResult {
	return r.filterByOutcome(OutcomeCreated)
}

// Updated returns files that were updated.
func (r *Result) Updated() []FileResult {
	return r.filterByOutcome(OutcomeUpdated)
}

// Deleted returns files that were deleted from the destination.
func (r *Result) Deleted() []FileResult {
	return r.filterByOutcome(OutcomeDeleted)
}

// Forgotten returns files dropped from the cache only.
func (r *Result) Forgotten() []FileResult {
	return r.filterByOutcome(OutcomeForgotten)
}

// Skipped returns actions left out during review.
func (r *Result) Skipped() []FileResult {
	return r.filterByOutcome(OutcomeSkipped)
}

// Failed returns files that failed to sync.
func (r *Result) Failed() []FileResult {
	return r.filterByOutcome(OutcomeFailed)
}

func (r *Result) filterByOutcome(outcome Outcome) []FileResult {
	var filtered []FileResult
	for _, fr := range r.Files {
		if fr.Outcome == outcome {
			filtered = append(filtered, fr)
		}
	}
	return filtered
}

// Success returns true if the pair completed and no file failed.
func (r *Result) Success() bool {
	return r.Phase != PhaseFailed && len(r.Failed()) == 0
}

// TotalChanged returns the number of files created, updated, deleted or forgotten.
func (r *Result) TotalChanged() int {
	return len(r.Created()) + len(r.Updated()) + len(r.Deleted()) + len(r.Forgotten())
}

// BytesCopied returns the total bytes written to the destination.
func (r *Result) BytesCopied() int64 {
	var n int64
	for _, fr := range r.Files {
		n += fr.Bytes
	}
	return n
}

// Summary returns a human-readable summary of the pair run.
func (r *Result) Summary() string {
	var sb strings.Builder

	if r.DryRun {
		sb.WriteString("Dry run - no changes made\n")
	}
	fmt.Fprintf(&sb, "Synced %s\n", r.Pair)

	// Casers keep state, so each call gets its own.
	title := cases.Title(language.English)

	for _, outcome := range outcomeOrder {
		fmt.Fprintf(&sb, "  %-10s %d\n", title.String(string(outcome))+":", len(r.filterByOutcome(outcome)))
	}
	fmt.Fprintf(&sb, "  %-10s %d\n", "Touched:", r.Touched)
	fmt.Fprintf(&sb, "  %-10s %d\n", "Unchanged:", r.Unchanged)
	if !r.DryRun {
		fmt.Fprintf(&sb, "  %-10s %s\n", "Copied:", humanize.Bytes(uint64(max(r.BytesCopied(), 0))))
	}

	if failed := r.Failed(); len(failed) > 0 {
		sb.WriteString("\nErrors:\n")
		for _, f := range failed {
			fmt.Fprintf(&sb, "  - %s: %v\n", f.Path, f.Error)
		}
	}
	if len(r.ScanErrors) > 0 {
		sb.WriteString("\nUnreadable files:\n")
		for _, fe := range r.ScanErrors {
			fmt.Fprintf(&sb, "  - %s: %v\n", fe.Path, fe.Err)
		}
	}

	return sb.String()
}
