package sync

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dstet/pathsync/internal/util"
)

func TestResolve(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "dest")

	tests := map[string]struct {
		rel     string
		want    string
		wantErr bool
	}{
		"top level":        {rel: "/a.txt", want: filepath.Join(root, "a.txt")},
		"nested":           {rel: "/sub/b.txt", want: filepath.Join(root, "sub", "b.txt")},
		"no leading slash": {rel: "c.txt", want: filepath.Join(root, "c.txt")},
		"escapes root":     {rel: "/../etc/passwd", wantErr: true},
		"root itself":      {rel: "/", wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := resolve(root, tt.rel)
			if tt.wantErr {
				if !errors.Is(err, errOutsideRoot) {
					t.Errorf("resolve(%q) error = %v, want errOutsideRoot", tt.rel, err)
				}
				return
			}
			util.AssertNoError(t, err)
			util.AssertEqual(t, got, tt.want)
		})
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "out", "deep", "dst.txt")
	util.WriteFile(t, src, "hello world")

	n, err := copyFile(src, dst)
	util.AssertNoError(t, err)

	util.AssertEqual(t, n, int64(11))
	util.AssertFileContent(t, dst, "hello world")
}

func TestCopyFile_OverwritesAndUpdatesMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	util.WriteFile(t, src, "new")
	util.WriteFile(t, dst, "old content that is longer")
	util.AssertNoError(t, os.Chmod(src, 0o640))

	_, err := copyFile(src, dst)
	util.AssertNoError(t, err)

	util.AssertFileContent(t, dst, "new")
	info, err := os.Stat(dst)
	util.AssertNoError(t, err)
	util.AssertEqual(t, info.Mode().Perm(), os.FileMode(0o640))
}

func TestCopyFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := copyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")); err == nil {
		t.Error("copyFile() should fail for a missing source")
	}
	if _, err := copyFile(dir, filepath.Join(dir, "dst")); err == nil {
		t.Error("copyFile() should fail for a directory source")
	}
}

func TestRemoveDestination(t *testing.T) {
	root := t.TempDir()
	util.WriteFile(t, filepath.Join(root, "a", "b", "c.txt"), "c")
	util.WriteFile(t, filepath.Join(root, "a", "keep.txt"), "keep")

	removed, err := removeDestination(root, "/a/b/c.txt")
	util.AssertNoError(t, err)

	if !removed {
		t.Error("removeDestination() should report the deletion")
	}
	util.AssertNotExists(t, filepath.Join(root, "a", "b"))
	util.AssertFileContent(t, filepath.Join(root, "a", "keep.txt"), "keep")
}

func TestRemoveDestination_PrunesToRoot(t *testing.T) {
	root := t.TempDir()
	util.WriteFile(t, filepath.Join(root, "x", "y", "z.txt"), "z")

	_, err := removeDestination(root, "/x/y/z.txt")
	util.AssertNoError(t, err)

	util.AssertNotExists(t, filepath.Join(root, "x"))
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root must never be pruned: %v", err)
	}
}

func TestRemoveDestination_Absent(t *testing.T) {
	removed, err := removeDestination(t.TempDir(), "/missing.txt")
	util.AssertNoError(t, err)
	if removed {
		t.Error("an absent file should not be reported as removed")
	}
}

func TestRemoveDestination_ParentIsFile(t *testing.T) {
	root := t.TempDir()
	util.WriteFile(t, filepath.Join(root, "dir"), "now a file")

	removed, err := removeDestination(root, "/dir/a.txt")
	util.AssertNoError(t, err)
	if removed {
		t.Error("a path below a file should count as already absent")
	}
	util.AssertFileContent(t, filepath.Join(root, "dir"), "now a file")
}

func TestRemoveDestination_RefusesDirectories(t *testing.T) {
	root := t.TempDir()
	util.WriteFile(t, filepath.Join(root, "dir", "inner.txt"), "x")

	if _, err := removeDestination(root, "/dir"); err == nil {
		t.Fatal("removeDestination() should refuse to delete a directory")
	}
	util.AssertFileContent(t, filepath.Join(root, "dir", "inner.txt"), "x")
}
