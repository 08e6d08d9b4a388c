// Package sync replicates source trees into destination trees, copying only
// the files whose fingerprints changed since the last run.
//
// # Pair runs
//
// Each configured pair is processed on its own and moves through these
// phases:
//
//	Idle -> Validating -> Scanning -> Reconciling -> Persisting -> Done
//
// Validating checks the pair's directories, takes the cache file lock and
// loads the cache. Scanning fingerprints the source tree (see package scan).
// Reconciling turns the scan into a Plan and applies it: new and changed
// files are copied, files missing from the source are dropped from the cache
// and, with Options.Delete, removed from the destination. Persisting
// atomically replaces the cache file. A failure while validating or
// persisting ends the pair in Failed and leaves the previous cache intact.
//
// A cache entry for a copied file is only updated when the copy succeeded,
// so a failed copy is retried on the next run.
//
// # Reviewing a plan
//
// Plan and Apply split a pair run in two so the plan can be inspected or
// trimmed before anything is written:
//
//	plan, err := engine.Plan(ctx, pair)
//	if err != nil {
//	    return err
//	}
//	plan.Keep(func(a sync.Action) bool { return a.Kind != sync.ActionDelete })
//	result, err := engine.Apply(ctx, plan)
//
// The cache file stays locked from Plan until Apply returns or the plan is
// closed.
//
// # Progress Reporting
//
// Progress can be tracked by providing a callback in Options:
//
//	opts := sync.Options{
//	    Progress: func(event sync.Event) {
//	        if event.Type == sync.EventFileDone {
//	            fmt.Println(event.File.Path, event.File.Outcome)
//	        }
//	    },
//	}
//
// With Options.Jobs above one the callback is called from several
// goroutines.
package sync
