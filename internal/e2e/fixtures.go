package e2e

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dstet/pathsync/internal/cache"
	"github.com/dstet/pathsync/internal/config"
)

// Fixture provides helpers for creating test fixtures in E2E tests.
type Fixture struct {
	t       *testing.T
	baseDir string
}

// NewFixture creates a new fixture helper rooted at the given directory.
func NewFixture(t *testing.T, baseDir string) *Fixture {
	t.Helper()
	return &Fixture{
		t:       t,
		baseDir: baseDir,
	}
}

// WriteFile writes content to a file relative to the fixture base directory.
// It creates parent directories as needed.
func (f *Fixture) WriteFile(relPath, content string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		f.t.Fatalf("failed to create directory %s: %v", dir, err)
	}

	if err := os.WriteFile(fullPath, []byte(content), 0o600); err != nil {
		f.t.Fatalf("failed to write file %s: %v", fullPath, err)
	}

	return fullPath
}

// MkdirAll creates a directory and all parent directories relative to the base.
func (f *Fixture) MkdirAll(relPath string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)

	if err := os.MkdirAll(fullPath, 0o750); err != nil {
		f.t.Fatalf("failed to create directory %s: %v", fullPath, err)
	}

	return fullPath
}

// Path returns the full path for a relative path.
func (f *Fixture) Path(relPath string) string {
	return filepath.Join(f.baseDir, relPath)
}

// Exists returns true if the file or directory exists.
func (f *Fixture) Exists(relPath string) bool {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)
	_, err := os.Stat(fullPath)
	return err == nil
}

// ReadFile reads and returns the content of a file.
func (f *Fixture) ReadFile(relPath string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)

	// #nosec G304 - fullPath is constructed from trusted test fixture base and test-provided path
	data, err := os.ReadFile(fullPath)
	if err != nil {
		f.t.Fatalf("failed to read file %s: %v", fullPath, err)
	}

	return string(data)
}

// Remove deletes a file relative to the base.
func (f *Fixture) Remove(relPath string) {
	f.t.Helper()
	if err := os.Remove(filepath.Join(f.baseDir, relPath)); err != nil {
		f.t.Fatalf("failed to remove %s: %v", relPath, err)
	}
}

// Touch sets the modification time of a file relative to the base.
func (f *Fixture) Touch(relPath string, mtime time.Time) {
	f.t.Helper()
	if err := os.Chtimes(filepath.Join(f.baseDir, relPath), mtime, mtime); err != nil {
		f.t.Fatalf("failed to touch %s: %v", relPath, err)
	}
}

// Pair is a source and destination directory with an empty cache file,
// laid out the way "pathsync init" creates them.
type Pair struct {
	Source      *Fixture
	Destination *Fixture
	CacheFile   string
}

// Pair creates a pair named name under the harness home.
func (h *Harness) Pair(name string) *Pair {
	h.t.Helper()

	root := filepath.Join(h.homeDir, name)
	p := &Pair{
		Source:      NewFixture(h.t, filepath.Join(root, "src")),
		Destination: NewFixture(h.t, filepath.Join(root, "dest")),
		CacheFile:   filepath.Join(root, "dest", "cache"),
	}
	p.Source.MkdirAll(".")
	p.Destination.MkdirAll(".")
	if _, err := cache.CreateEmpty(p.CacheFile); err != nil {
		h.t.Fatalf("failed to create cache file: %v", err)
	}
	return p
}

// Cache loads the pair's cache file.
func (p *Pair) Cache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Load(p.CacheFile)
	if err != nil {
		t.Fatalf("failed to load cache %s: %v", p.CacheFile, err)
	}
	return c
}

// WriteSyncfile writes a JSON syncfile declaring pairs and returns its path.
func (h *Harness) WriteSyncfile(ignore []string, pairs ...*Pair) string {
	h.t.Helper()

	sf := config.New()
	for _, p := range pairs {
		sf.Pairs[p.Source.Path(".")] = p.Destination.Path(".")
		sf.CacheDirs[p.Source.Path(".")] = p.CacheFile
	}
	if ignore != nil {
		sf.Ignore = ignore
	}

	path := filepath.Join(h.homeDir, "sync.json")
	if err := sf.Save(path); err != nil {
		h.t.Fatalf("failed to write syncfile: %v", err)
	}
	return path
}
