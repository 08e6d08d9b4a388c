package sync

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// errOutsideRoot is returned for cache paths that escape their tree.
var errOutsideRoot = errors.New("path escapes the sync root")

// resolve maps a source-relative path ("/sub/a.txt") into root.
func resolve(root, rel string) (string, error) {
	p := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	r, err := filepath.Rel(root, p)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errOutsideRoot, rel)
	}
	return p, nil
}

// copyFile copies a single file from src to dst, creating missing parent
// directories and preserving permission bits. It returns the bytes written.
func copyFile(src, dst string) (int64, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("failed to stat source %q: %w", src, err)
	}
	if !srcInfo.Mode().IsRegular() {
		return 0, fmt.Errorf("source %q is not a regular file", src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return 0, fmt.Errorf("failed to create destination directory for %q: %w", dst, err)
	}

	// #nosec G304 - src is inside a configured source tree
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source %q: %w", src, err)
	}
	defer func() { _ = srcFile.Close() }()

	perm := srcInfo.Mode().Perm()
	// #nosec G302 G304 - preserving source permissions, dst is inside a configured destination
	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return 0, fmt.Errorf("failed to create destination %q: %w", dst, err)
	}

	n, err := io.Copy(dstFile, srcFile)
	if err != nil {
		_ = dstFile.Close()
		return n, fmt.Errorf("failed to copy content to %q: %w", dst, err)
	}
	if err := dstFile.Close(); err != nil {
		return n, fmt.Errorf("failed to close destination %q: %w", dst, err)
	}

	// OpenFile only applies perm to new files
	if err := os.Chmod(dst, perm); err != nil && !errors.Is(err, fs.ErrPermission) {
		return n, fmt.Errorf("failed to set permissions on %q: %w", dst, err)
	}
	return n, nil
}
