// Package validation checks a syncfile before any file is touched.
package validation

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/dstet/pathsync/internal/config"
	"github.com/dstet/pathsync/internal/util"
)

// Error represents a validation failure with context.
type Error struct {
	// Field is the syncfile key or path that failed validation
	Field string
	// Message describes the validation failure
	Message string
	// Err is the underlying error (if any)
	Err error
}

// Error returns a formatted validation error message.
func (ve *Error) Error() string {
	if ve.Err != nil {
		return fmt.Sprintf("validation failed for %q: %s: %v", ve.Field, ve.Message, ve.Err)
	}
	return fmt.Sprintf("validation failed for %q: %s", ve.Field, ve.Message)
}

// Unwrap returns the underlying error for errors.Is/As.
func (ve *Error) Unwrap() error {
	return ve.Err
}

// Errors collects multiple validation errors.
type Errors []error

// Error returns a formatted error message for all validation failures.
func (ve Errors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}
	return fmt.Sprintf("%d validation errors:\n- %s", len(ve), errors.Join(ve...))
}

// Unwrap returns the collected errors for errors.Is/As.
func (ve Errors) Unwrap() []error {
	return ve
}

// Check is the outcome of one named validation step.
type Check struct {
	Name   string
	Passed bool
	Err    error
}

// Report is the ordered list of checks run against a syncfile.
type Report struct {
	Checks []Check
}

func (r *Report) add(name string, err error) bool {
	r.Checks = append(r.Checks, Check{Name: name, Passed: err == nil, Err: err})
	return err == nil
}

// Valid reports whether every check passed.
func (r *Report) Valid() bool {
	if len(r.Checks) == 0 {
		return false
	}
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Failed returns the checks that did not pass.
func (r *Report) Failed() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// Err returns nil for a valid report, otherwise the failures as Errors.
func (r *Report) Err() error {
	if r.Valid() {
		return nil
	}
	var errs Errors
	for _, c := range r.Failed() {
		errs = append(errs, c.Err)
	}
	if len(errs) == 0 {
		errs = append(errs, &Error{Field: "syncfile", Message: "no checks were run"})
	}
	return errs
}

// Summary returns a human-readable summary of the report.
func (r *Report) Summary() string {
	var sb strings.Builder
	for _, c := range r.Checks {
		fmt.Fprintf(&sb, "%s: %t\n", c.Name, c.Passed)
	}
	return sb.String()
}

// Validate runs the structural checks on doc and, when they pass, the
// per-pair reference checks. Checks that depend on a failed structural check
// are not run. Validate never creates or repairs anything.
func Validate(doc config.Document) *Report {
	r := &Report{}

	var missing []string
	for _, key := range []string{config.KeyCacheDirs, config.KeyPairs, config.KeyIgnore} {
		if _, ok := doc[key]; !ok {
			missing = append(missing, key)
		}
	}
	var keyErr error
	if len(missing) > 0 {
		keyErr = &Error{Field: strings.Join(missing, ", "), Message: "missing required key"}
	}
	if !r.add("Validate top level keys", keyErr) {
		return r
	}

	sf, err := doc.Syncfile()
	if err != nil {
		err = &Error{Field: "syncfile", Message: "wrong value type", Err: err}
	}
	if !r.add("Validate pref key values are correct type", err) {
		return r
	}

	sources := make([]string, 0, len(sf.Pairs))
	for src := range sf.Pairs {
		sources = append(sources, src)
	}
	slices.Sort(sources)

	for _, src := range sources {
		dest := sf.Pairs[src]
		cacheFile, hasCache := sf.CacheDirs[src]

		var cacheErr error
		if !hasCache {
			cacheErr = &Error{Field: src, Message: "source has no entry in " + config.KeyCacheDirs}
		}
		r.add(fmt.Sprintf("Validate %s from src:target pairs has cache", src), cacheErr)

		if r.add(fmt.Sprintf("Validate %s exists", src), pathExists(src)) {
			r.add(fmt.Sprintf("Validate %s is a directory", src), isDir(src))
		}
		if hasCache {
			r.add(fmt.Sprintf("Validate %s cache file exists", src), pathExists(cacheFile))
		}
		r.add(fmt.Sprintf("Validate %s exists", dest), pathExists(dest))
	}

	return r
}

func pathExists(path string) error {
	if _, err := os.Stat(util.ExpandPath(path)); err != nil {
		if os.IsNotExist(err) {
			return &Error{Field: path, Message: "path does not exist"}
		}
		return &Error{Field: path, Message: "cannot access path", Err: err}
	}
	return nil
}

func isDir(path string) error {
	if !util.IsDir(util.ExpandPath(path)) {
		return &Error{Field: path, Message: "path is not a directory"}
	}
	return nil
}
