package util

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// DefaultCacheName is the cache file name used when a pair has no explicit cache file.
const DefaultCacheName = "cache"

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// ExpandPath expands a leading ~ to the user's home directory.
// Other paths are returned unchanged.
func ExpandPath(path string) string {
	if path == "~" {
		return HomeDir()
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		return filepath.Join(HomeDir(), path[2:])
	}
	return path
}

// PosixAbs returns the absolute form of path with forward slashes.
func PosixAbs(path string) (string, error) {
	abs, err := filepath.Abs(ExpandPath(path))
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(abs), nil
}

// DefaultCacheFile returns the cache file location used for a destination
// that has none configured.
func DefaultCacheFile(destination string) string {
	return filepath.Join(destination, DefaultCacheName)
}

// IsNotExist reports whether err means there is nothing at the path: it is
// missing, one of its parents is not a directory, or it is a symlink loop.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ENOTDIR) ||
		errors.Is(err, syscall.ELOOP)
}

// Exists reports whether path exists. Errors other than "not exist" are
// treated as existing so callers surface them on the following operation.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !IsNotExist(err)
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// EnsureDir creates path and any missing parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}
