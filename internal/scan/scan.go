// Package scan computes the current fingerprints of a source tree and
// compares them with a prior cache.
package scan

import (
	"context"
	"crypto/md5" // #nosec G501 - cache files are keyed by MD5 digests
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/dstet/pathsync/internal/cache"
	"github.com/dstet/pathsync/internal/ignore"
	"github.com/dstet/pathsync/internal/logging"
	"github.com/dstet/pathsync/internal/util"
)

// Mode selects how candidate files are found.
type Mode int

const (
	// ModeCacheCheck re-stats the cached paths and looks for paths the
	// cache does not know yet.
	ModeCacheCheck Mode = iota
	// ModeRescan walks the whole source tree.
	ModeRescan
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeRescan:
		return "rescan"
	case ModeCacheCheck:
		return "cache-check"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// FileError records a file that could not be examined.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one scan.
type Result struct {
	// Changed holds fresh fingerprints for new files and files whose
	// content differs from the cache.
	Changed map[string]cache.Fingerprint
	// Touched holds files whose timestamp changed but whose content did not.
	Touched map[string]cache.Fingerprint
	// Remove holds cached paths that were not found in the source tree.
	Remove mapset.Set[string]
	// Missing lists the contents of Remove in sorted order.
	Missing []string
	// Unchanged counts files skipped because their timestamp matched.
	Unchanged int
	// Hashed counts files whose content was read.
	Hashed int
	// Ignored counts files excluded by an ignore pattern, each once. Files
	// below an ignored directory that the walk prunes are not counted.
	Ignored int
	// Errors lists files that exist but could not be read.
	Errors []FileError
}

// Scanner fingerprints the files under Root.
type Scanner struct {
	Root    string
	Mode    Mode
	Matcher *ignore.Matcher
	Logger  *slog.Logger
}

// Scan compares the tree under Root with prior. prior is not modified.
func (s *Scanner) Scan(ctx context.Context, prior *cache.Cache) (*Result, error) {
	if prior == nil {
		prior = cache.New("")
	}
	logger := s.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	defer logging.Timer(logger, "scan")()

	root, err := util.PosixAbs(s.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source root %q: %w", s.Root, err)
	}

	w := &walker{
		root:    root,
		matcher: s.Matcher,
		logger:  logger,
		prior:   prior,
		res: &Result{
			Changed: make(map[string]cache.Fingerprint),
			Touched: make(map[string]cache.Fingerprint),
			Remove:  mapset.NewThreadUnsafeSet(prior.Keys()...),
		},
	}

	// Ignored cached paths keep their entries and are never deletion candidates.
	for _, key := range prior.Keys() {
		abs, err := w.absPath(key)
		if err == nil && w.matcher.Ignored(abs) {
			w.res.Remove.Remove(key)
		}
	}

	logger.Debug("scanning source tree",
		slog.String("root", root),
		slog.String("mode", s.Mode.String()),
		logging.Count(prior.Size()),
	)

	switch s.Mode {
	case ModeRescan:
		err = w.walk(ctx, false)
	default:
		if err = w.checkCached(ctx); err == nil {
			err = w.walk(ctx, true)
		}
	}
	if err != nil {
		return nil, err
	}

	w.res.Missing = w.res.Remove.ToSlice()
	slices.Sort(w.res.Missing)
	return w.res, nil
}

type walker struct {
	root    string
	matcher *ignore.Matcher
	logger  *slog.Logger
	prior   *cache.Cache
	res     *Result
}

// absPath maps a cache key to an absolute path under the root.
func (w *walker) absPath(key string) (string, error) {
	abs := path.Join(w.root, "/"+strings.TrimPrefix(key, "/"))
	if abs != w.root && !strings.HasPrefix(abs, strings.TrimSuffix(w.root, "/")+"/") {
		return "", fmt.Errorf("cached path %q is outside the source root", key)
	}
	return abs, nil
}

// checkCached re-examines every cached path that is not ignored.
func (w *walker) checkCached(ctx context.Context) error {
	for _, key := range w.prior.Keys() {
		if err := ctx.Err(); err != nil {
			return err
		}
		abs, err := w.absPath(key)
		if err != nil {
			w.fail(key, err)
			continue
		}
		if w.matcher.Ignored(abs) {
			w.res.Ignored++
			continue
		}
		w.logger.Log(ctx, logging.LevelTrace, "checking cached file", logging.Path(key))
		w.visit(ctx, key, abs)
	}
	return nil
}

// walk visits every file below the root. With skipCached set, paths the
// cache already knows are left to checkCached.
func (w *walker) walk(ctx context.Context, skipCached bool) error {
	osRoot := filepath.FromSlash(w.root)
	return filepath.WalkDir(osRoot, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == osRoot {
				return fmt.Errorf("failed to read source root %q: %w", w.root, err)
			}
			w.fail(w.relPath(p), err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		abs := filepath.ToSlash(p)
		if d.IsDir() {
			if p != osRoot && w.matcher.MatchDir(abs) {
				w.logger.Log(ctx, logging.LevelTrace, "skipping ignored directory", logging.Path(abs))
				return filepath.SkipDir
			}
			return nil
		}

		rel := w.relPath(p)
		if skipCached && w.prior.Has(rel) {
			return nil
		}
		if pattern, ok := w.matcher.Match(abs); ok {
			w.res.Ignored++
			w.logger.Log(ctx, logging.LevelTrace, "ignoring file",
				logging.Path(rel), slog.String("pattern", pattern))
			return nil
		}
		w.visit(ctx, rel, abs)
		return nil
	})
}

func (w *walker) relPath(p string) string {
	rel, err := filepath.Rel(filepath.FromSlash(w.root), p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return "/" + filepath.ToSlash(rel)
}

// visit fingerprints one candidate file.
func (w *walker) visit(ctx context.Context, rel, abs string) {
	info, err := os.Stat(filepath.FromSlash(abs))
	if err != nil {
		if util.IsNotExist(err) {
			w.logger.Debug("cached file no longer exists", logging.Path(rel))
			return
		}
		w.fail(rel, err)
		return
	}
	if !info.Mode().IsRegular() {
		w.logger.Log(ctx, logging.LevelTrace, "skipping non-regular file", logging.Path(rel))
		return
	}

	modified := cache.FormatModTime(info.ModTime())
	cached, known := w.prior.Get(rel)
	if known && cache.SameModTime(cached.Modified, modified) {
		w.res.Unchanged++
		w.res.Remove.Remove(rel)
		return
	}

	if known {
		w.logger.Debug("modification time differs, hashing", logging.Path(rel))
	} else {
		w.logger.Debug("new file, hashing", logging.Path(rel))
	}
	hash, err := HashFile(filepath.FromSlash(abs))
	if err != nil {
		if util.IsNotExist(err) {
			w.logger.Warn("file vanished during scan", logging.Path(rel))
			return
		}
		w.fail(rel, err)
		return
	}
	w.res.Hashed++
	w.res.Remove.Remove(rel)

	fresh := cache.Fingerprint{Hash: hash, Modified: modified}
	if known && cached.Hash == hash {
		w.res.Touched[rel] = fresh
		w.logger.Debug("content unchanged, refreshing timestamp", logging.Path(rel))
		return
	}
	w.res.Changed[rel] = fresh
	w.logger.Log(ctx, logging.LevelTrace, "fingerprint computed", logging.Path(rel), logging.Hash(hash))
}

// fail records a file that exists but could not be read. It is kept out of
// the removal set so a transient error never deletes anything.
func (w *walker) fail(rel string, err error) {
	w.res.Remove.Remove(rel)
	w.res.Errors = append(w.res.Errors, FileError{Path: rel, Err: err})
	w.logger.Warn("failed to scan file", logging.Path(rel), logging.Err(err))
}

// HashFile returns the hex MD5 digest of the file at path.
func HashFile(path string) (string, error) {
	// #nosec G304 - path is inside a configured source tree
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := md5.New() // #nosec G401
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read %q: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
