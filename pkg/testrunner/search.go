package testrunner

import (
	"context"
	"path/filepath"

	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/store"
)

// SearchResult is the outcome of a Linear or Binary search (spec.md §4.7
// "Search modes").
type SearchResult struct {
	LastGood plumbing.Hash
	FirstBad plumbing.Hash
	Found    bool
	Aborted  bool
	Commands int
}

func prepareSearch(s store.ObjectStore, opts Options) (*Cache, string, error) {
	cache := NewCache(opts.MetaDir)
	var worktreeRoot string
	if opts.Strategy == StrategyWorktree {
		worktreeRoot = filepath.Join(opts.MetaDir, "branchless", "worktrees")
	}
	return cache, worktreeRoot, nil
}

// Linear walks commits (oldest to newest, already topologically ordered)
// until the first Failed, then reports the last passing and first failing
// commit. A Skipped commit is treated as neither: the walk continues past
// it without updating lastGood.
func Linear(ctx context.Context, s store.ObjectStore, commits []plumbing.Hash, opts Options) (*SearchResult, error) {
	cache, worktreeRoot, err := prepareSearch(s, opts)
	if err != nil {
		return nil, err
	}
	res := &SearchResult{}
	for _, c := range commits {
		cr := runOne(ctx, s, cache, c, 0, worktreeRoot, opts)
		res.Commands++
		if cr.Err != nil {
			return nil, cr.Err
		}
		if cr.Result != nil && cr.Result.ExitCode == 127 {
			res.Aborted = true
			return res, nil
		}
		switch cr.Status {
		case StatusPassed:
			res.LastGood = c
		case StatusFailed:
			res.FirstBad = c
			res.Found = true
			return res, nil
		}
	}
	return res, nil
}

// Binary bisects commits (ordered oldest-known-good to newest-known-bad)
// for the first failing commit. Skipped results shrink the search window
// toward hi without deciding it; if every remaining candidate in [lo+1,hi)
// is Skipped the search gives up undecided (Found stays false).
func Binary(ctx context.Context, s store.ObjectStore, commits []plumbing.Hash, opts Options) (*SearchResult, error) {
	if len(commits) < 2 {
		return &SearchResult{}, nil
	}
	cache, worktreeRoot, err := prepareSearch(s, opts)
	if err != nil {
		return nil, err
	}
	res := &SearchResult{}
	lo, hi := 0, len(commits)-1

	test := func(i int) (Status, bool, error) {
		cr := runOne(ctx, s, cache, commits[i], 0, worktreeRoot, opts)
		res.Commands++
		if cr.Err != nil {
			return StatusUnknown, false, cr.Err
		}
		return cr.Status, cr.Result != nil && cr.Result.ExitCode == 127, nil
	}

	for hi-lo > 1 {
		mid := (lo + hi) / 2
		status, aborted, err := test(mid)
		if err != nil {
			return nil, err
		}
		if aborted {
			res.Aborted = true
			return res, nil
		}
		switch status {
		case StatusPassed:
			lo = mid
		case StatusFailed:
			hi = mid
		case StatusSkipped:
			// shrink the window from the low side instead of deciding; if
			// that collapses the range, the outcome stays undecided.
			shrunk := false
			for cand := mid + 1; cand < hi; cand++ {
				st, aborted, err := test(cand)
				if err != nil {
					return nil, err
				}
				if aborted {
					res.Aborted = true
					return res, nil
				}
				if st == StatusSkipped {
					continue
				}
				if st == StatusPassed {
					lo = cand
				} else {
					hi = cand
				}
				shrunk = true
				break
			}
			if !shrunk {
				return res, nil
			}
		}
	}

	res.LastGood = commits[lo]
	res.FirstBad = commits[hi]
	res.Found = true
	return res, nil
}
