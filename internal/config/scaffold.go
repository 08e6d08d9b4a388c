package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dstet/pathsync/internal/cache"
	"github.com/dstet/pathsync/internal/util"
)

// ScaffoldResult lists what Scaffold created.
type ScaffoldResult struct {
	Syncfile     *Syncfile
	Created      bool
	Destinations []string
	Caches       []string
}

// ParsePairSpec parses "SRC=DEST".
func ParsePairSpec(spec string) (string, string, error) {
	src, dest, ok := strings.Cut(spec, "=")
	src, dest = strings.TrimSpace(src), strings.TrimSpace(dest)
	if !ok || src == "" || dest == "" {
		return "", "", fmt.Errorf("invalid pair %q: expected SRC=DEST", spec)
	}
	return src, dest, nil
}

// Scaffold prepares a syncfile for its first run. It loads the syncfile at
// path (or starts an empty one), adds pairs, gives every pair without a cache
// file the default "<destination>/cache", creates missing destination
// directories and empty cache files, and saves the syncfile.
func Scaffold(path string, pairs map[string]string) (*ScaffoldResult, error) {
	path = util.ExpandPath(path)
	res := &ScaffoldResult{}

	sf := New()
	if _, err := os.Stat(path); err == nil {
		doc, err := Load(path)
		if err != nil {
			return nil, err
		}
		if sf, err = doc.Syncfile(); err != nil {
			return nil, fmt.Errorf("existing syncfile is malformed: %w", err)
		}
	} else if os.IsNotExist(err) {
		res.Created = true
	} else {
		return nil, fmt.Errorf("failed to stat syncfile %q: %w", path, err)
	}

	for src, dest := range pairs {
		sf.Pairs[src] = dest
	}
	for src, dest := range sf.Pairs {
		if _, ok := sf.CacheDirs[src]; !ok {
			sf.CacheDirs[src] = filepath.ToSlash(util.DefaultCacheFile(dest))
		}
	}

	for _, p := range sf.SyncPairs() {
		if !util.Exists(p.Destination) {
			if err := util.EnsureDir(p.Destination); err != nil {
				return nil, fmt.Errorf("failed to create destination %q: %w", p.Destination, err)
			}
			res.Destinations = append(res.Destinations, p.Destination)
		}
		created, err := cache.CreateEmpty(p.CacheFile)
		if err != nil {
			return nil, err
		}
		if created {
			res.Caches = append(res.Caches, p.CacheFile)
		}
	}

	if err := sf.Save(path); err != nil {
		return nil, fmt.Errorf("failed to write syncfile %q: %w", path, err)
	}
	res.Syncfile = sf
	return res, nil
}
