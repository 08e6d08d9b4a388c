package cli

import (
	"fmt"
	"os"
	"testing"
)

// TestMain runs the package with a throwaway HOME so "~" in syncfiles never
// resolves to the real one, and without PATHSYNC_* or NO_COLOR overrides
// leaking in from the caller's shell.
func TestMain(m *testing.M) {
	home, err := os.MkdirTemp("", "pathsync-cli-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "temp HOME: %v\n", err)
		os.Exit(1)
	}
	_ = os.Setenv("HOME", home)
	for _, key := range []string{"PATHSYNC_DELETE", "PATHSYNC_RESCAN", "PATHSYNC_JOBS", "NO_COLOR"} {
		_ = os.Unsetenv(key)
	}

	code := m.Run()
	_ = os.RemoveAll(home)
	os.Exit(code)
}
