package sync

import (
	"maps"
	"slices"

	"github.com/dstet/pathsync/internal/cache"
	"github.com/dstet/pathsync/internal/config"
	"github.com/dstet/pathsync/internal/scan"
)

// ActionKind is the operation planned for one file.
type ActionKind string

const (
	// ActionCreate copies a file the cache has never seen.
	ActionCreate ActionKind = "create"
	// ActionUpdate copies a file whose content changed.
	ActionUpdate ActionKind = "update"
	// ActionDelete drops a file that is gone from the source.
	ActionDelete ActionKind = "delete"
)

// Action is one planned file operation.
type Action struct {
	Kind ActionKind
	// Path is the source-relative path with a leading slash.
	Path string
	// Fingerprint is the fresh fingerprint for copies.
	Fingerprint cache.Fingerprint
}

// Plan is the set of operations that brings a destination up to date.
type Plan struct {
	Pair config.Pair
	// Copies are the create and update actions, sorted by path.
	Copies []Action
	// Deletes are the delete actions, sorted by path.
	Deletes []Action
	// Skipped holds actions removed by Keep.
	Skipped []Action
	// Touched holds refreshed timestamps for files whose content is unchanged.
	Touched map[string]cache.Fingerprint
	// Scan is the scan the plan was built from.
	Scan *scan.Result

	prior *cache.Cache
	lock  *cache.Lock
}

// Reconcile compares a scan with the prior cache and plans the copies and
// deletions. Deletion candidates are the scan's remaining removal set.
func Reconcile(res *scan.Result, prior *cache.Cache) *Plan {
	if prior == nil {
		prior = cache.New("")
	}
	p := &Plan{
		Touched: maps.Clone(res.Touched),
		Scan:    res,
		prior:   prior,
	}
	if p.Touched == nil {
		p.Touched = make(map[string]cache.Fingerprint)
	}

	for _, path := range slices.Sorted(maps.Keys(res.Changed)) {
		fresh := res.Changed[path]
		cached, known := prior.Get(path)
		switch {
		case !known:
			p.Copies = append(p.Copies, Action{Kind: ActionCreate, Path: path, Fingerprint: fresh})
		case cached != fresh:
			p.Copies = append(p.Copies, Action{Kind: ActionUpdate, Path: path, Fingerprint: fresh})
		}
	}

	removals := res.Remove.ToSlice()
	slices.Sort(removals)
	for _, path := range removals {
		p.Deletes = append(p.Deletes, Action{Kind: ActionDelete, Path: path})
	}
	return p
}

// Prior returns the cache the plan was computed against.
func (p *Plan) Prior() *cache.Cache {
	return p.prior
}

// Actions returns the copies followed by the deletions.
func (p *Plan) Actions() []Action {
	return append(slices.Clone(p.Copies), p.Deletes...)
}

// Ordered returns the deletions followed by the copies, the order Apply
// performs them in. On a case-insensitive file system a rename that only
// changes case removes the old name before the new one is written.
func (p *Plan) Ordered() []Action {
	return append(slices.Clone(p.Deletes), p.Copies...)
}

// Len returns the number of planned actions.
func (p *Plan) Len() int {
	return len(p.Copies) + len(p.Deletes)
}

// Empty reports whether the plan changes nothing but timestamps.
func (p *Plan) Empty() bool {
	return p.Len() == 0
}

// Keep drops every action for which keep returns false. Dropped copies leave
// their cache entries as they were, so they are planned again next run;
// dropped deletions keep their entries.
func (p *Plan) Keep(keep func(Action) bool) {
	filter := func(actions []Action) []Action {
		kept := actions[:0]
		for _, a := range actions {
			if keep(a) {
				kept = append(kept, a)
			} else {
				p.Skipped = append(p.Skipped, a)
			}
		}
		return kept
	}
	p.Copies = filter(p.Copies)
	p.Deletes = filter(p.Deletes)
}

// Close releases the cache file lock held by the plan. It is safe to call
// more than once.
func (p *Plan) Close() error {
	if p.lock == nil {
		return nil
	}
	err := p.lock.Release()
	p.lock = nil
	return err
}
