// Package cache persists the per-pair fingerprint cache.
//
// A cache file is a JSON object mapping a source-relative path ("/sub/a.txt")
// to a two element array: the hex MD5 digest of the file and its modification
// time in fractional epoch seconds.
package cache

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// ErrCorrupt is returned when a cache file cannot be parsed.
var ErrCorrupt = errors.New("cache file is corrupt")

const (
	// FilePerm is the permission for cache files (rw-r--r--)
	FilePerm = 0o644
	// emptyDocument is the content of a freshly created cache file.
	emptyDocument = "{}\n"
)

// Fingerprint identifies the content of a file at the time it was cached.
type Fingerprint struct {
	Hash     string
	Modified string
}

// MarshalJSON encodes the fingerprint as [hash, modified].
func (f Fingerprint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{f.Hash, f.Modified})
}

// UnmarshalJSON decodes a [hash, modified] pair.
func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("fingerprint must have 2 elements, got %d", len(pair))
	}
	f.Hash, f.Modified = pair[0], pair[1]
	return nil
}

// Cache is the in-memory form of one cache file.
type Cache struct {
	Entries map[string]Fingerprint
	path    string
}

// New returns an empty cache that will be saved to path.
func New(path string) *Cache {
	return &Cache{
		Entries: make(map[string]Fingerprint),
		path:    path,
	}
}

// Load reads and parses the cache file at path. A missing file is an error:
// caches are created explicitly, never implied.
func Load(path string) (*Cache, error) {
	// #nosec G304 - path comes from the validated syncfile
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file %q: %w", path, err)
	}

	var raw map[string]Fingerprint
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	c := New(path)
	// canonical keys win over spellings that clean to the same path
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		canon, err := CanonicalKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
		}
		if _, taken := c.Entries[canon]; taken && canon != key {
			continue
		}
		c.Entries[canon] = raw[key]
	}
	return c, nil
}

// CanonicalKey returns key in the form the scanner produces: one leading
// slash and no empty, "." or trailing elements ("sub/./a.txt" becomes
// "/sub/a.txt"). Leading ".." elements are kept so that paths escaping the
// source root stay detectable.
func CanonicalKey(key string) (string, error) {
	clean := path.Clean(strings.TrimLeft(key, "/"))
	if clean == "." {
		return "", fmt.Errorf("cache key %q does not name a file", key)
	}
	return "/" + clean, nil
}

// Path returns the file the cache is saved to.
func (c *Cache) Path() string {
	return c.path
}

// Get returns the fingerprint cached for key.
func (c *Cache) Get(key string) (Fingerprint, bool) {
	fp, ok := c.Entries[key]
	return fp, ok
}

// Set stores the fingerprint for key.
func (c *Cache) Set(key string, fp Fingerprint) {
	c.Entries[key] = fp
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) {
	delete(c.Entries, key)
}

// Has reports whether key is cached.
func (c *Cache) Has(key string) bool {
	_, ok := c.Entries[key]
	return ok
}

// Size returns the number of entries in the cache
func (c *Cache) Size() int {
	return len(c.Entries)
}

// Keys returns the cached paths in sorted order.
func (c *Cache) Keys() []string {
	return slices.Sorted(maps.Keys(c.Entries))
}

// Clone returns a deep copy that saves to the same path.
func (c *Cache) Clone() *Cache {
	return &Cache{Entries: maps.Clone(c.Entries), path: c.path}
}

// Save atomically replaces the cache file: the new content is written to a
// temporary file in the same directory, synced, and renamed over the old one.
func (c *Cache) Save() error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	return writeAtomic(c.path, data)
}

// Encode returns the cache file content: a JSON object with sorted keys and
// a trailing newline.
func (c *Cache) Encode() ([]byte, error) {
	data, err := json.Marshal(c.Entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache: %w", err)
	}
	return append(data, '\n'), nil
}

// CreateEmpty writes an empty cache file at path unless one already exists.
// It reports whether a file was created.
func CreateEmpty(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat cache file %q: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return false, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := writeAtomic(path, []byte(emptyDocument)); err != nil {
		return false, err
	}
	return true, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary cache file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temporary cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temporary cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temporary cache file: %w", err)
	}
	// #nosec G302 - cache files should be readable by user
	if err := os.Chmod(tmpName, FilePerm); err != nil {
		cleanup()
		return fmt.Errorf("failed to set cache file permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace cache file %q: %w", path, err)
	}
	return nil
}

// FormatModTime renders a modification time the way cache files store it:
// fractional epoch seconds with at least one decimal digit.
func FormatModTime(t time.Time) string {
	secs := float64(t.Unix()) + float64(t.Nanosecond())*1e-9
	s := strconv.FormatFloat(secs, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ParseModTime converts a stored modification time back to a time.Time.
func ParseModTime(s string) (time.Time, error) {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid modification time %q: %w", s, err)
	}
	whole := int64(secs)
	frac := secs - float64(whole)
	return time.Unix(whole, int64(frac*1e9)), nil
}

// SameModTime reports whether two stored modification times are equal. Exact
// string equality is the common case; numerically equal renderings such as
// "100" and "100.0" also match.
func SameModTime(a, b string) bool {
	if a == b {
		return true
	}
	x, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return false
	}
	y, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return false
	}
	return x == y
}
