// Restack ports original_source/src/restack.rs's two-phase "find one
// abandoned commit, rebase it, repeat until fixed point" loop, generalized
// from the original's single git-rebase-per-step to this module's
// BuildPlan/ExecuteInMemory/Fixup pipeline.
package rewrite

import (
	"time"

	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/corerr"
	"github.com/vcsflow/stacker/pkg/dag"
	"github.com/vcsflow/stacker/pkg/eventlog"
	"github.com/vcsflow/stacker/pkg/store"
)

// RestackOptions tunes the fixed-point restack loop.
type RestackOptions struct {
	TransactionID      string
	Now                time.Time
	PreserveTimestamps bool
	// MetaDir enables the on-disk retry (spec.md §7's propagation policy)
	// when a step's in-memory attempt hits a merge commit or a conflict.
	// Left empty, such a step fails the whole Restack call instead.
	MetaDir string
}

// RestackResult summarizes one Restack call. NoOp is true when the very
// first iteration found nothing abandoned, matching restack.rs's distinct
// "no more abandoned commits to restack" report.
type RestackResult struct {
	RestackedCount int
	NoOp           bool
}

// Restack repeatedly finds one abandoned commit (a visible commit whose
// parent was rewritten to a non-zero target) within universe, rebases it
// (and its own descendants) onto the rewrite target, and commits the
// resulting events to l, until no abandoned commit remains.
func Restack(s store.ObjectStore, l *eventlog.Log, g *dag.Graph, universe dag.Set, opts RestackOptions) (*RestackResult, error) {
	replay, err := l.Replay(nil)
	if err != nil {
		return nil, err
	}

	count := 0
	for {
		_, target, child, found := findAbandoned(s, replay, universe)
		if !found {
			return &RestackResult{RestackedCount: count, NoOp: count == 0}, nil
		}

		plan, err := BuildPlan(g, []MoveRequest{{
			Sources: []plumbing.Hash{child},
			Dest:    target,
			Mode:    ModeSubtree,
		}}, universe, PlanOptions{ForceRewritePublic: true})
		if err != nil {
			return &RestackResult{RestackedCount: count}, err
		}
		if plan == nil {
			return &RestackResult{RestackedCount: count, NoOp: count == 0}, nil
		}

		execOpts := ExecutorOptions{Now: opts.Now, PreserveTimestamps: opts.PreserveTimestamps}
		res, err := ExecuteInMemory(s, plan, execOpts)
		if err != nil && opts.MetaDir != "" &&
			(corerr.IsMergeConflict(err) || corerr.IsCannotRebaseMergeCommitInMemory(err)) {
			res, err = ExecuteOnDisk(s, opts.MetaDir, plan, "", child, execOpts)
		}
		if err != nil {
			return &RestackResult{RestackedCount: count}, err
		}

		fixupOut, err := Fixup(s, res.RewriteMap, plumbing.ZeroHash, "", FixupOptions{
			TransactionID: opts.TransactionID,
			Now:           opts.Now,
		})
		if err != nil {
			return &RestackResult{RestackedCount: count}, err
		}
		if err := l.Append(fixupOut.Events); err != nil {
			return &RestackResult{RestackedCount: count}, err
		}

		replay, err = l.Replay(nil)
		if err != nil {
			return &RestackResult{RestackedCount: count}, err
		}
		count++
	}
}

// findAbandoned scans universe in oid order for the first (parent, target,
// child) triple where parent was rewritten to a non-zero target and
// child is one of parent's visible, not-yet-rewritten children.
func findAbandoned(s store.ObjectStore, replay *eventlog.ReplayState, universe dag.Set) (origParent, target, child plumbing.Hash, found bool) {
	oids := universe.Slice()
	plumbing.HashesSort(oids)

	for _, c := range oids {
		commit, err := s.FindCommit(c)
		if err != nil {
			continue
		}
		if replay.CommitVisibility(c) == eventlog.Hidden {
			continue
		}
		for _, p := range commit.ParentOids {
			t, superseded := replay.RewriteTarget(p)
			if !superseded || t == plumbing.ZeroHash {
				continue
			}
			if replay.CommitVisibility(c) != eventlog.Visible {
				continue
			}
			return p, t, c, true
		}
	}
	return plumbing.ZeroHash, plumbing.ZeroHash, plumbing.ZeroHash, false
}
