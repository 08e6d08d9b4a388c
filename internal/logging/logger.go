// Package logging provides structured logging for pathsync using slog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Level aliases for convenience.
const (
	LevelTrace = slog.LevelDebug - 4
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	// LevelOff is above every level the program logs at.
	LevelOff = slog.LevelError + 8
)

var (
	defaultLogger *slog.Logger
	defaultOnce   sync.Once
	defaultMu     sync.RWMutex
)

// Options configures the logger behavior.
type Options struct {
	// Level sets the minimum log level. Defaults to LevelWarn.
	Level slog.Level
	// Output sets the output destination. Defaults to os.Stderr.
	Output io.Writer
	// JSON enables JSON output format. Defaults to false (text format).
	JSON bool
	// AddSource includes source file and line in log output.
	AddSource bool
}

// DefaultOptions returns options suitable for CLI usage.
func DefaultOptions() Options {
	return Options{
		Level:     LevelWarn,
		Output:    os.Stderr,
		JSON:      false,
		AddSource: false,
	}
}

// New creates a new logger with the given options.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       opts.Level,
		AddSource:   opts.AddSource,
		ReplaceAttr: replaceLevel,
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}

	return slog.New(handler)
}

// replaceLevel renders LevelTrace as TRACE instead of DEBUG-4.
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: LevelOff}))
}

// Default returns the default logger, creating it if necessary.
// The default logger writes text output to stderr at Warn level.
func Default() *slog.Logger {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		defaultLogger = New(DefaultOptions())
		defaultMu.Unlock()
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the default logger and also sets it as slog's default.
// This also ensures the sync.Once is triggered so Default() won't override the logger.
func SetDefault(logger *slog.Logger) {
	defaultOnce.Do(func() {})
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
	slog.SetDefault(logger)
}

// With returns a logger that includes the given attributes in every output.
func With(args ...any) *slog.Logger {
	return Default().With(args...)
}

// WithContext returns the logger stored in ctx, or the default logger.
func WithContext(ctx context.Context) *slog.Logger {
	if l := FromContext(ctx); l != nil {
		return l
	}
	return Default()
}

// Trace logs at trace level using the default logger.
func Trace(msg string, args ...any) {
	Default().Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs at debug level using the default logger.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at info level using the default logger.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at error level using the default logger.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// Timer logs the duration of an operation at debug level when the returned
// function is called.
//
//	defer logging.Timer(logger, "scan")()
func Timer(logger *slog.Logger, op string) func() {
	start := time.Now()
	return func() {
		logger.Debug("operation finished",
			Operation(op),
			slog.Duration(KeyDuration, time.Since(start)),
		)
	}
}

// Context key for logger storage.
type loggerKey struct{}

// NewContext returns a context with the logger attached.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves the logger from context, or nil if not present.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return nil
}

// Common attribute keys for consistent logging across the codebase.
const (
	// KeyPair identifies a sync pair by its source directory.
	KeyPair = "pair"
	// KeyPath identifies a file path.
	KeyPath = "path"
	// KeyHash identifies a content hash.
	KeyHash = "hash"
	// KeyPhase identifies the engine phase.
	KeyPhase = "phase"
	// KeyOperation identifies the operation being performed.
	KeyOperation = "operation"
	// KeyCount provides a count of items.
	KeyCount = "count"
	// KeyError attaches an error value.
	KeyError = "error"
	// KeyDuration records operation duration.
	KeyDuration = "duration"
)

// Pair returns a slog attribute for sync pair logging.
func Pair(source string) slog.Attr {
	return slog.String(KeyPair, source)
}

// Path returns a slog attribute for file path logging.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Hash returns a slog attribute for content hash logging.
func Hash(h string) slog.Attr {
	return slog.String(KeyHash, h)
}

// Phase returns a slog attribute for engine phase logging.
func Phase(p string) slog.Attr {
	return slog.String(KeyPhase, p)
}

// Operation returns a slog attribute for operation logging.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Err returns a slog attribute for error logging.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any(KeyError, err)
}

// Count returns a slog attribute for item counts.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}
