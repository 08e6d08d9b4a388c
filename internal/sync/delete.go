package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dstet/pathsync/internal/util"
)

// removeDestination deletes root/rel and then prunes parent directories left
// empty, stopping below root. A file that is already gone counts as removed.
// It reports whether a file was actually deleted.
func removeDestination(root, rel string) (bool, error) {
	target, err := resolve(root, rel)
	if err != nil {
		return false, err
	}

	info, err := os.Lstat(target)
	if util.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %q: %w", target, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("refusing to delete directory %q", target)
	}

	if err := os.Remove(target); err != nil && !util.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove %q: %w", target, err)
	}

	pruneEmptyParents(root, filepath.Dir(target))
	return true, nil
}

// pruneEmptyParents removes dir and its ancestors while they are empty,
// never touching root itself.
func pruneEmptyParents(root, dir string) {
	root = filepath.Clean(root)
	for dir = filepath.Clean(dir); dir != root; dir = filepath.Dir(dir) {
		rel, err := filepath.Rel(root, dir)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return
		}
		// fails on non-empty directories, which ends the walk
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}
