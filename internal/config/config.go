// Package config loads syncfiles and the runtime options of a sync run.
//
// A syncfile declares the directories to synchronize:
//
//	{
//	  "cache_dirs": {"/home/me/docs": "/mnt/backup/docs/cache"},
//	  "st_pairs":   {"/home/me/docs": "/mnt/backup/docs"},
//	  "ignore":     [".DS_Store", "node_modules"]
//	}
//
// JSON is the default format; files ending in .yaml, .yml or .toml are read
// as YAML or TOML with the same keys.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/dstet/pathsync/internal/util"
)

// Top-level syncfile keys.
const (
	KeyCacheDirs = "cache_dirs"
	KeyPairs     = "st_pairs"
	KeyIgnore    = "ignore"
)

// ErrSyncfileNotFound is returned when the syncfile path does not name a
// regular file.
var ErrSyncfileNotFound = errors.New("syncfile either does not exist or is not a file")

// Format is a syncfile encoding.
type Format string

// Supported syncfile formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the format from the file extension, defaulting to JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// Document is a parsed syncfile before validation. Values keep the generic
// shapes produced by the decoders so the validator can report type errors.
type Document map[string]any

// Syncfile is the typed form of a valid Document.
type Syncfile struct {
	CacheDirs map[string]string `json:"cache_dirs" yaml:"cache_dirs" toml:"cache_dirs"`
	Pairs     map[string]string `json:"st_pairs" yaml:"st_pairs" toml:"st_pairs"`
	Ignore    []string          `json:"ignore" yaml:"ignore" toml:"ignore"`
}

// Pair is one source to destination mapping with its cache file.
type Pair struct {
	Source      string
	Destination string
	CacheFile   string
	Ignore      []string
}

// String returns "SOURCE -> DESTINATION".
func (p Pair) String() string {
	return p.Source + " -> " + p.Destination
}

// New returns an empty syncfile.
func New() *Syncfile {
	return &Syncfile{
		CacheDirs: make(map[string]string),
		Pairs:     make(map[string]string),
		Ignore:    []string{},
	}
}

// Load reads and decodes the syncfile at path.
func Load(path string) (Document, error) {
	path = util.ExpandPath(path)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSyncfileNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat syncfile %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrSyncfileNotFound, path)
	}

	// #nosec G304 - path is provided by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read syncfile %q: %w", path, err)
	}

	doc, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse syncfile %q: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a syncfile document in the given format.
func Parse(data []byte, format Format) (Document, error) {
	var raw map[string]any
	var err error

	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	case FormatTOML:
		err = toml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = make(map[string]any)
	}
	return Document(raw), nil
}

// Syncfile converts the document to its typed form. It fails on the first
// key with the wrong shape; the validator reports the same problems in
// detail.
func (d Document) Syncfile() (*Syncfile, error) {
	sf := New()
	var err error

	if sf.CacheDirs, err = StringMap(d[KeyCacheDirs]); err != nil {
		return nil, fmt.Errorf("%s: %w", KeyCacheDirs, err)
	}
	if sf.Pairs, err = StringMap(d[KeyPairs]); err != nil {
		return nil, fmt.Errorf("%s: %w", KeyPairs, err)
	}
	if sf.Ignore, err = StringList(d[KeyIgnore]); err != nil {
		return nil, fmt.Errorf("%s: %w", KeyIgnore, err)
	}
	return sf, nil
}

// StringMap converts a decoded mapping with string values.
func StringMap(v any) (map[string]string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %s", typeName(v))
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("value for %q: expected a string, got %s", k, typeName(val))
		}
		out[k] = s
	}
	return out, nil
}

// StringList converts a decoded list of strings.
func StringList(v any) ([]string, error) {
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %s", typeName(v))
	}
	out := make([]string, 0, len(l))
	for i, val := range l {
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("item %d: expected a string, got %s", i, typeName(val))
		}
		out = append(out, s)
	}
	return out, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "nothing"
	case map[string]any:
		return "a mapping"
	case []any:
		return "a list"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	default:
		return "a number"
	}
}

// SyncPairs returns the declared pairs sorted by source, with "~" expanded.
func (s *Syncfile) SyncPairs() []Pair {
	sources := make([]string, 0, len(s.Pairs))
	for src := range s.Pairs {
		sources = append(sources, src)
	}
	slices.Sort(sources)

	pairs := make([]Pair, 0, len(sources))
	for _, src := range sources {
		pairs = append(pairs, Pair{
			Source:      util.ExpandPath(src),
			Destination: util.ExpandPath(s.Pairs[src]),
			CacheFile:   util.ExpandPath(s.CacheDirs[src]),
			Ignore:      slices.Clone(s.Ignore),
		})
	}
	return pairs
}

// Save writes the syncfile to path in the format its extension selects.
func (s *Syncfile) Save(path string) error {
	data, err := s.Encode(FormatFor(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	// #nosec G306 - syncfile should be readable by user
	return os.WriteFile(path, data, 0o644)
}

// Encode renders the syncfile in format.
func (s *Syncfile) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(s)
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(s); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}
