package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dstet/pathsync/internal/logging"
)

// Verbosity controls how much a run prints.
type Verbosity int

// Verbosity levels, from silent to trace.
const (
	VerbositySilent  Verbosity = -1
	VerbosityDefault Verbosity = 0
	VerbosityVerbose Verbosity = 1
	VerbosityExtra   Verbosity = 2
	VerbosityTrace   Verbosity = 3
)

// String returns the flag name of the level.
func (v Verbosity) String() string {
	switch v {
	case VerbositySilent:
		return "silent"
	case VerbosityDefault:
		return "default"
	case VerbosityVerbose:
		return "verbose"
	case VerbosityExtra:
		return "extra-verbose"
	case VerbosityTrace:
		return "trace"
	default:
		return fmt.Sprintf("Verbosity(%d)", int(v))
	}
}

// Level maps the verbosity to a log level.
func (v Verbosity) Level() slog.Level {
	switch {
	case v <= VerbositySilent:
		return logging.LevelOff
	case v == VerbosityDefault:
		return logging.LevelWarn
	case v == VerbosityVerbose:
		return logging.LevelInfo
	case v == VerbosityExtra:
		return logging.LevelDebug
	default:
		return logging.LevelTrace
	}
}

// AtLeast reports whether output for level should be shown.
func (v Verbosity) AtLeast(level Verbosity) bool {
	return v >= level
}

// Runtime holds the options of one invocation, set from flags and the
// environment.
type Runtime struct {
	Verbosity   Verbosity
	Delete      bool
	Rescan      bool
	DryRun      bool
	Interactive bool
	Jobs        int
	NoColor     bool
	LogJSON     bool
}

// DefaultRuntime returns the options of a plain invocation.
func DefaultRuntime() Runtime {
	return Runtime{
		Verbosity: VerbosityDefault,
		Jobs:      1,
	}
}

// ApplyEnvironment applies environment variable overrides.
// Environment variables follow the pattern PATHSYNC_<OPTION>.
func (r *Runtime) ApplyEnvironment() {
	if v := os.Getenv("PATHSYNC_DELETE"); v != "" {
		r.Delete = parseBool(v)
	}
	if v := os.Getenv("PATHSYNC_RESCAN"); v != "" {
		r.Rescan = parseBool(v)
	}
	if v := os.Getenv("PATHSYNC_JOBS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			r.Jobs = n
		}
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		r.NoColor = true
	}
}

// Normalize clamps values that make no sense together.
func (r *Runtime) Normalize() {
	if r.Jobs < 1 {
		r.Jobs = 1
	}
	// the review screen needs the terminal to itself
	if r.Interactive {
		r.Jobs = 1
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
