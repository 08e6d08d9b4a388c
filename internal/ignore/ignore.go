// Package ignore decides which source files a sync run leaves alone.
//
// Patterns are plain substrings, not globs. A file is ignored when any
// pattern occurs in its base name, in the absolute slash-separated path of
// its parent directory (with a trailing slash), or in its absolute path.
package ignore

import (
	"path"
	"strings"
)

// Matcher holds an ordered list of substring patterns.
type Matcher struct {
	patterns []string
}

// New returns a Matcher for patterns. Empty patterns are dropped since they
// would match every file.
func New(patterns []string) *Matcher {
	m := &Matcher{patterns: make([]string, 0, len(patterns))}
	for _, p := range patterns {
		if p != "" {
			m.patterns = append(m.patterns, p)
		}
	}
	return m
}

// Patterns returns the active patterns.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

// Match reports whether the file at absPath is ignored and, if so, which
// pattern matched. absPath must be absolute and slash-separated.
func (m *Matcher) Match(absPath string) (string, bool) {
	if m == nil || len(m.patterns) == 0 {
		return "", false
	}

	name := path.Base(absPath)
	parent := path.Dir(absPath)
	if !strings.HasSuffix(parent, "/") {
		parent += "/"
	}

	for _, p := range m.patterns {
		if strings.Contains(name, p) || strings.Contains(parent, p) || strings.Contains(absPath, p) {
			return p, true
		}
	}
	return "", false
}

// Ignored reports whether absPath matches any pattern.
func (m *Matcher) Ignored(absPath string) bool {
	_, ok := m.Match(absPath)
	return ok
}

// MatchDir reports whether every file below the directory absDir is ignored,
// which holds when a pattern occurs in absDir with a trailing slash: that
// string prefixes the parent path of each descendant.
func (m *Matcher) MatchDir(absDir string) bool {
	if m == nil {
		return false
	}
	dir := absDir
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	for _, p := range m.patterns {
		if strings.Contains(dir, p) {
			return true
		}
	}
	return false
}
