package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/dstet/pathsync/internal/cache"
	"github.com/dstet/pathsync/internal/config"
	"github.com/dstet/pathsync/internal/util"
)

// newPair creates a source and destination directory and an empty cache file.
func newPair(t *testing.T, ignore ...string) config.Pair {
	t.Helper()
	dir := t.TempDir()
	pair := config.Pair{
		Source:      filepath.Join(dir, "src"),
		Destination: filepath.Join(dir, "dest"),
		CacheFile:   filepath.Join(dir, "caches", "src.cache"),
		Ignore:      ignore,
	}
	util.AssertNoError(t, util.EnsureDir(pair.Source))
	util.AssertNoError(t, util.EnsureDir(pair.Destination))
	if _, err := cache.CreateEmpty(pair.CacheFile); err != nil {
		t.Fatalf("CreateEmpty() error = %v", err)
	}
	return pair
}

func loadCache(t *testing.T, pair config.Pair) *cache.Cache {
	t.Helper()
	c, err := cache.Load(pair.CacheFile)
	if err != nil {
		t.Fatalf("cache.Load() error = %v", err)
	}
	return c
}

func syncOnce(t *testing.T, opts Options, pair config.Pair) *Result {
	t.Helper()
	res, err := New(opts).SyncPair(context.Background(), pair)
	if err != nil {
		t.Fatalf("SyncPair() error = %v", err)
	}
	return res
}

// assertUnlocked fails if the pair's cache lock is still held.
func assertUnlocked(t *testing.T, pair config.Pair) {
	t.Helper()
	lock, err := cache.Acquire(pair.CacheFile)
	if err != nil {
		t.Fatalf("cache lock still held: %v", err)
	}
	_ = lock.Release()
}

func TestSyncPair_ExampleScenario(t *testing.T) {
	pair := newPair(t)
	src := func(name string) string { return filepath.Join(pair.Source, name) }
	util.WriteFile(t, src("a.txt"), "")
	util.SetModTime(t, src("a.txt"), time.Unix(100, 0))
	util.WriteFile(t, src("b.txt"), "bee")

	prior := cache.New(pair.CacheFile)
	prior.Set("/a.txt", cache.Fingerprint{Hash: "d41d8cd98f00b204e9800998ecf8427e", Modified: "100"})
	util.AssertNoError(t, prior.Save())

	res := syncOnce(t, Options{Rescan: true}, pair)

	if len(res.Created()) != 1 || res.Created()[0].Path != "/b.txt" {
		t.Fatalf("Created() = %+v, want only /b.txt", res.Created())
	}
	util.AssertEqual(t, res.Unchanged, 1)
	util.AssertEqual(t, len(res.Deleted())+len(res.Forgotten()), 0)
	util.AssertFileContent(t, filepath.Join(pair.Destination, "b.txt"), "bee")
	util.AssertNotExists(t, filepath.Join(pair.Destination, "a.txt"))

	c := loadCache(t, pair)
	util.AssertEqual(t, c.Size(), 2)
	if fp, _ := c.Get("/a.txt"); fp.Modified != "100" {
		t.Errorf("unchanged entry should be untouched, got %+v", fp)
	}
	if !c.Has("/b.txt") {
		t.Error("new file should be cached")
	}
}

func TestSyncPair_Idempotent(t *testing.T) {
	for _, rescan := range []bool{true, false} {
		t.Run(map[bool]string{true: "rescan", false: "cache-check"}[rescan], func(t *testing.T) {
			pair := newPair(t)
			util.WriteFile(t, filepath.Join(pair.Source, "a.txt"), "a")
			util.WriteFile(t, filepath.Join(pair.Source, "sub", "b.txt"), "b")

			first := syncOnce(t, Options{Rescan: rescan, Delete: true}, pair)
			util.AssertEqual(t, len(first.Created()), 2)

			second := syncOnce(t, Options{Rescan: rescan, Delete: true}, pair)
			if len(second.Files) != 0 {
				t.Errorf("second run should do nothing, got %+v", second.Files)
			}
			util.AssertEqual(t, second.Unchanged, 2)
		})
	}
}

func TestSyncPair_TouchedFile(t *testing.T) {
	pair := newPair(t)
	file := filepath.Join(pair.Source, "a.txt")
	util.WriteFile(t, file, "same")
	util.SetModTime(t, file, time.Unix(100, 0))
	syncOnce(t, Options{Rescan: true}, pair)

	// change the destination so a recopy would be visible
	util.WriteFile(t, filepath.Join(pair.Destination, "a.txt"), "marker")
	util.SetModTime(t, file, time.Unix(200, 0))

	res := syncOnce(t, Options{Rescan: true}, pair)

	util.AssertEqual(t, len(res.Files), 0)
	util.AssertEqual(t, res.Touched, 1)
	util.AssertFileContent(t, filepath.Join(pair.Destination, "a.txt"), "marker")
	if fp, _ := loadCache(t, pair).Get("/a.txt"); fp.Modified != "200.0" {
		t.Errorf("cached timestamp = %q, want 200.0", fp.Modified)
	}
}

func TestSyncPair_ModifiedFile(t *testing.T) {
	pair := newPair(t)
	file := filepath.Join(pair.Source, "a.txt")
	util.WriteFile(t, file, "v1")
	util.SetModTime(t, file, time.Unix(100, 0))
	syncOnce(t, Options{}, pair)

	util.WriteFile(t, file, "v2")
	util.SetModTime(t, file, time.Unix(200, 0))
	res := syncOnce(t, Options{}, pair)

	if len(res.Updated()) != 1 {
		t.Fatalf("Updated() = %+v, want one update", res.Files)
	}
	util.AssertFileContent(t, filepath.Join(pair.Destination, "a.txt"), "v2")
}

func TestSyncPair_Deletion(t *testing.T) {
	tests := map[string]struct {
		delete      bool
		wantOutcome Outcome
		wantDest    bool
	}{
		"destination deletion enabled": {
			delete:      true,
			wantOutcome: OutcomeDeleted,
			wantDest:    false,
		},
		"destination deletion disabled": {
			delete:      false,
			wantOutcome: OutcomeForgotten,
			wantDest:    true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			pair := newPair(t)
			util.WriteFile(t, filepath.Join(pair.Source, "keep.txt"), "keep")
			util.WriteFile(t, filepath.Join(pair.Source, "sub", "gone.txt"), "gone")
			syncOnce(t, Options{Rescan: true}, pair)

			util.AssertNoError(t, os.Remove(filepath.Join(pair.Source, "sub", "gone.txt")))
			res := syncOnce(t, Options{Rescan: true, Delete: tt.delete}, pair)

			if len(res.Files) != 1 || res.Files[0].Outcome != tt.wantOutcome {
				t.Fatalf("Files = %+v, want one %s", res.Files, tt.wantOutcome)
			}
			if loadCache(t, pair).Has("/sub/gone.txt") {
				t.Error("removed file should be dropped from the cache")
			}
			_, err := os.Stat(filepath.Join(pair.Destination, "sub", "gone.txt"))
			if exists := err == nil; exists != tt.wantDest {
				t.Errorf("destination file exists = %v, want %v", exists, tt.wantDest)
			}
			if !tt.wantDest {
				util.AssertNotExists(t, filepath.Join(pair.Destination, "sub"))
			}
			util.AssertFileContent(t, filepath.Join(pair.Destination, "keep.txt"), "keep")
		})
	}
}

func TestSyncPair_DeleteAlreadyAbsent(t *testing.T) {
	pair := newPair(t)
	prior := cache.New(pair.CacheFile)
	prior.Set("/never-copied.txt", cache.Fingerprint{Hash: "x", Modified: "1.0"})
	util.AssertNoError(t, prior.Save())

	res := syncOnce(t, Options{Delete: true}, pair)

	if len(res.Deleted()) != 1 {
		t.Fatalf("Deleted() = %+v, want one deletion", res.Files)
	}
	if loadCache(t, pair).Has("/never-copied.txt") {
		t.Error("entry should be dropped when the destination file is already gone")
	}
}

func TestSyncPair_FailedDeleteKeepsEntry(t *testing.T) {
	pair := newPair(t)
	prior := cache.New(pair.CacheFile)
	prior.Set("/dir", cache.Fingerprint{Hash: "x", Modified: "1.0"})
	util.AssertNoError(t, prior.Save())
	// a directory where the file used to be cannot be deleted as a file
	util.AssertNoError(t, util.EnsureDir(filepath.Join(pair.Destination, "dir")))

	res := syncOnce(t, Options{Delete: true}, pair)

	if len(res.Failed()) != 1 {
		t.Fatalf("Failed() = %+v, want one failure", res.Files)
	}
	if !loadCache(t, pair).Has("/dir") {
		t.Error("entry should be kept so the deletion is retried")
	}
}

func TestSyncPair_Ignore(t *testing.T) {
	pair := newPair(t, ".tmp", "build/")
	util.WriteFile(t, filepath.Join(pair.Source, "notes.tmp"), "tmp")
	util.WriteFile(t, filepath.Join(pair.Source, "build", "out.bin"), "bin")
	util.WriteFile(t, filepath.Join(pair.Source, "real.txt"), "real")

	prior := cache.New(pair.CacheFile)
	prior.Set("/old.tmp", cache.Fingerprint{Hash: "x", Modified: "1.0"})
	util.AssertNoError(t, prior.Save())

	res := syncOnce(t, Options{Rescan: true, Delete: true}, pair)

	if len(res.Files) != 1 || res.Files[0].Path != "/real.txt" {
		t.Fatalf("Files = %+v, want only /real.txt", res.Files)
	}
	util.AssertNotExists(t, filepath.Join(pair.Destination, "notes.tmp"))
	util.AssertNotExists(t, filepath.Join(pair.Destination, "build"))

	c := loadCache(t, pair)
	if !c.Has("/old.tmp") {
		t.Error("ignored cached path should keep its entry")
	}
	if c.Has("/notes.tmp") {
		t.Error("ignored file should never be cached")
	}
}

func TestSyncPair_NewFileCacheCheckMode(t *testing.T) {
	pair := newPair(t)
	util.WriteFile(t, filepath.Join(pair.Source, "new.txt"), "new")

	res := syncOnce(t, Options{Rescan: false}, pair)

	if len(res.Created()) != 1 {
		t.Fatalf("Created() = %+v, want the new file", res.Files)
	}
	util.AssertFileContent(t, filepath.Join(pair.Destination, "new.txt"), "new")
}

func TestSyncPair_CopyFailureKeepsCacheEntry(t *testing.T) {
	pair := newPair(t)
	util.WriteFile(t, filepath.Join(pair.Source, "a.txt"), "a")
	// a directory in the way makes the copy fail
	util.AssertNoError(t, util.EnsureDir(filepath.Join(pair.Destination, "a.txt")))

	res := syncOnce(t, Options{}, pair)

	if len(res.Failed()) != 1 {
		t.Fatalf("Failed() = %+v, want one failure", res.Files)
	}
	if res.Phase != PhaseDone {
		t.Errorf("per-file failures should not fail the pair, phase = %s", res.Phase)
	}
	if loadCache(t, pair).Has("/a.txt") {
		t.Error("cache should not record a file whose copy failed")
	}

	// the copy is retried once the obstacle is gone
	util.AssertNoError(t, os.Remove(filepath.Join(pair.Destination, "a.txt")))
	res = syncOnce(t, Options{}, pair)
	util.AssertEqual(t, len(res.Created()), 1)
}

func TestSyncPair_DryRun(t *testing.T) {
	pair := newPair(t)
	util.WriteFile(t, filepath.Join(pair.Source, "a.txt"), "a")
	before := util.ReadFile(t, pair.CacheFile)

	res := syncOnce(t, Options{DryRun: true}, pair)

	if !res.DryRun || len(res.Created()) != 1 {
		t.Fatalf("dry run result = %+v", res)
	}
	util.AssertNotExists(t, filepath.Join(pair.Destination, "a.txt"))
	util.AssertFileContent(t, pair.CacheFile, before)
	assertUnlocked(t, pair)
}

func TestSyncPair_PreservesPermissions(t *testing.T) {
	pair := newPair(t)
	file := filepath.Join(pair.Source, "run.sh")
	util.WriteFile(t, file, "#!/bin/sh")
	util.AssertNoError(t, os.Chmod(file, 0o750))

	syncOnce(t, Options{}, pair)

	info, err := os.Stat(filepath.Join(pair.Destination, "run.sh"))
	util.AssertNoError(t, err)
	util.AssertEqual(t, info.Mode().Perm(), os.FileMode(0o750))
}

func TestSyncPair_PairLevelFailures(t *testing.T) {
	tests := map[string]struct {
		setup     func(t *testing.T, pair config.Pair)
		wantPhase Phase
		wantErr   error
	}{
		"corrupt cache": {
			setup: func(t *testing.T, pair config.Pair) {
				util.WriteFile(t, pair.CacheFile, "{broken")
			},
			wantPhase: PhaseValidating,
			wantErr:   cache.ErrCorrupt,
		},
		"missing cache": {
			setup: func(t *testing.T, pair config.Pair) {
				util.AssertNoError(t, os.Remove(pair.CacheFile))
			},
			wantPhase: PhaseValidating,
			wantErr:   os.ErrNotExist,
		},
		"locked cache": {
			setup: func(t *testing.T, pair config.Pair) {
				lock, err := cache.Acquire(pair.CacheFile)
				util.AssertNoError(t, err)
				t.Cleanup(func() { _ = lock.Release() })
			},
			wantPhase: PhaseValidating,
			wantErr:   cache.ErrLocked,
		},
		"missing source": {
			setup: func(t *testing.T, pair config.Pair) {
				util.AssertNoError(t, os.RemoveAll(pair.Source))
			},
			wantPhase: PhaseValidating,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			pair := newPair(t)
			tt.setup(t, pair)

			res, err := New(Options{}).SyncPair(context.Background(), pair)

			var pe *PhaseError
			if !errors.As(err, &pe) {
				t.Fatalf("SyncPair() error = %v, want *PhaseError", err)
			}
			util.AssertEqual(t, pe.Phase, tt.wantPhase)
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("SyncPair() error = %v, want %v", err, tt.wantErr)
			}
			util.AssertEqual(t, res.Phase, PhaseFailed)
		})
	}
}

func TestSyncPair_PersistFailureKeepsOldCache(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	pair := newPair(t)
	util.WriteFile(t, filepath.Join(pair.Source, "a.txt"), "a")
	cacheDir := filepath.Dir(pair.CacheFile)

	plan, err := New(Options{}).Plan(context.Background(), pair)
	util.AssertNoError(t, err)
	// a read-only cache directory makes the temp file creation fail
	util.AssertNoError(t, os.Chmod(cacheDir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(cacheDir, 0o750) })

	res, err := New(Options{}).Apply(context.Background(), plan)

	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhasePersisting {
		t.Fatalf("Apply() error = %v, want a persisting PhaseError", err)
	}
	util.AssertEqual(t, res.Phase, PhaseFailed)
	util.AssertFileContent(t, pair.CacheFile, "{}\n")
}

func TestSyncPair_CancelledBeforePersist(t *testing.T) {
	pair := newPair(t)
	util.WriteFile(t, filepath.Join(pair.Source, "a.txt"), "a")

	engine := New(Options{})
	plan, err := engine.Plan(context.Background(), pair)
	util.AssertNoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Apply(ctx, plan)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Apply() error = %v, want context.Canceled", err)
	}
	util.AssertFileContent(t, pair.CacheFile, "{}\n")
	assertUnlocked(t, pair)
}

func TestPlanKeep(t *testing.T) {
	pair := newPair(t)
	util.WriteFile(t, filepath.Join(pair.Source, "a.txt"), "a")
	util.WriteFile(t, filepath.Join(pair.Source, "b.txt"), "b")

	engine := New(Options{})
	plan, err := engine.Plan(context.Background(), pair)
	util.AssertNoError(t, err)

	plan.Keep(func(a Action) bool { return a.Path == "/a.txt" })
	res, err := engine.Apply(context.Background(), plan)
	util.AssertNoError(t, err)

	util.AssertEqual(t, len(res.Created()), 1)
	util.AssertEqual(t, len(res.Skipped()), 1)
	util.AssertNotExists(t, filepath.Join(pair.Destination, "b.txt"))
	if loadCache(t, pair).Has("/b.txt") {
		t.Error("skipped copy should not be cached")
	}

	// the skipped file is planned again
	res = syncOnce(t, Options{}, pair)
	if len(res.Created()) != 1 || res.Created()[0].Path != "/b.txt" {
		t.Errorf("Created() = %+v, want /b.txt", res.Created())
	}
}

func TestRun_ContinuesAfterPairFailure(t *testing.T) {
	for _, jobs := range []int{1, 3} {
		good1, bad, good2 := newPair(t), newPair(t), newPair(t)
		util.WriteFile(t, filepath.Join(good1.Source, "a.txt"), "a")
		util.WriteFile(t, filepath.Join(good2.Source, "b.txt"), "b")
		util.WriteFile(t, bad.CacheFile, "not json")

		results, err := New(Options{Jobs: jobs}).Run(context.Background(), []config.Pair{good1, bad, good2})

		if !errors.Is(err, cache.ErrCorrupt) {
			t.Fatalf("jobs=%d: Run() error = %v, want ErrCorrupt", jobs, err)
		}
		if len(results) != 3 {
			t.Fatalf("jobs=%d: len(results) = %d, want 3", jobs, len(results))
		}
		util.AssertEqual(t, results[1].Phase, PhaseFailed)
		util.AssertFileContent(t, filepath.Join(good1.Destination, "a.txt"), "a")
		util.AssertFileContent(t, filepath.Join(good2.Destination, "b.txt"), "b")
	}
}

func TestEngine_Events(t *testing.T) {
	pair := newPair(t)
	util.WriteFile(t, filepath.Join(pair.Source, "a.txt"), "a")

	var mu gosync.Mutex
	var phases []Phase
	var planned, fileDone, pairDone int
	engine := New(Options{Progress: func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Type {
		case EventPhase:
			phases = append(phases, ev.Phase)
		case EventPlanned:
			planned = ev.Copies
		case EventFileDone:
			fileDone++
		case EventPairDone:
			pairDone++
		}
	}})

	_, err := engine.SyncPair(context.Background(), pair)
	util.AssertNoError(t, err)

	want := []Phase{PhaseValidating, PhaseScanning, PhaseReconciling, PhasePersisting, PhaseDone}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		util.AssertEqual(t, phases[i], want[i])
	}
	util.AssertEqual(t, planned, 1)
	util.AssertEqual(t, fileDone, 1)
	util.AssertEqual(t, pairDone, 1)
}

func TestApply_DeletesBeforeCopies(t *testing.T) {
	pair := newPair(t)
	util.WriteFile(t, filepath.Join(pair.Source, "A.txt"), "a")
	syncOnce(t, Options{Delete: true}, pair)

	// a case-only rename: the old name is gone, the new one is new
	util.AssertNoError(t, os.Remove(filepath.Join(pair.Source, "A.txt")))
	util.WriteFile(t, filepath.Join(pair.Source, "a.txt"), "a")

	var order []ActionKind
	engine := New(Options{Delete: true, Rescan: true, Progress: func(ev Event) {
		if ev.Type == EventFileStart {
			order = append(order, ev.Action.Kind)
		}
	}})
	_, err := engine.SyncPair(context.Background(), pair)
	util.AssertNoError(t, err)

	if len(order) != 2 || order[0] != ActionDelete || order[1] != ActionCreate {
		t.Fatalf("applied %v, want [delete create]", order)
	}
	util.AssertFileContent(t, filepath.Join(pair.Destination, "a.txt"), "a")
	c := loadCache(t, pair)
	if c.Has("/A.txt") || !c.Has("/a.txt") {
		t.Errorf("cache keys = %v, want [/a.txt]", c.Keys())
	}
}

func TestSyncPair_DirectoryReplacedByFile(t *testing.T) {
	pair := newPair(t)
	util.WriteFile(t, filepath.Join(pair.Source, "dir", "a.txt"), "a")
	syncOnce(t, Options{Delete: true}, pair)

	util.AssertNoError(t, os.RemoveAll(filepath.Join(pair.Source, "dir")))
	util.WriteFile(t, filepath.Join(pair.Source, "dir"), "now a file")

	res := syncOnce(t, Options{Delete: true}, pair)

	if len(res.ScanErrors) != 0 || len(res.Failed()) != 0 {
		t.Fatalf("scan errors = %v, failed = %v", res.ScanErrors, res.Failed())
	}
	util.AssertEqual(t, len(res.Deleted()), 1)
	util.AssertEqual(t, len(res.Created()), 1)
	util.AssertFileContent(t, filepath.Join(pair.Destination, "dir"), "now a file")
	if keys := loadCache(t, pair).Keys(); len(keys) != 1 || keys[0] != "/dir" {
		t.Errorf("cache keys = %v, want [/dir]", keys)
	}

	res = syncOnce(t, Options{Delete: true}, pair)
	util.AssertEqual(t, res.TotalChanged(), 0)
}

func TestSyncPair_NonCanonicalCacheKey(t *testing.T) {
	pair := newPair(t)
	util.WriteFile(t, filepath.Join(pair.Source, "sub", "a.txt"), "a")
	util.WriteFile(t, pair.CacheFile, `{"sub/a.txt": ["stale", "1.0"]}`)

	res := syncOnce(t, Options{Delete: true, Rescan: true}, pair)

	util.AssertEqual(t, len(res.Deleted()), 0)
	util.AssertEqual(t, len(res.Updated()), 1)
	util.AssertFileContent(t, filepath.Join(pair.Destination, "sub", "a.txt"), "a")
	if keys := loadCache(t, pair).Keys(); len(keys) != 1 || keys[0] != "/sub/a.txt" {
		t.Errorf("cache keys = %v, want [/sub/a.txt]", keys)
	}
}
