package rewrite

import (
	"fmt"
	"time"

	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/dag"
	"github.com/vcsflow/stacker/pkg/eventlog"
	"github.com/vcsflow/stacker/pkg/store"
)

// FixupOptions tunes post-rewrite reconciliation.
type FixupOptions struct {
	TransactionID string
	Now           time.Time
}

// FixupOutcome reports what Fixup actually managed to do, since branch moves
// are best-effort and non-atomic (spec.md §4.6 step 3).
type FixupOutcome struct {
	MarkedReachable []plumbing.Hash
	MovedBranches   map[plumbing.ReferenceName]plumbing.Hash
	DeletedBranches []plumbing.ReferenceName
	Events          []eventlog.Event
	NewHead         plumbing.Hash
	NewHeadBranch   plumbing.ReferenceName // set if HEAD ends up symbolic
}

const gcProtectPrefix = plumbing.ReferenceName("refs/branchless/")

// Fixup reconciles refs, HEAD and the event log after a plan has run
// (spec.md §4.6). rewrites is the RewriteMap C5 produced; origHead is the
// oid HEAD pointed at before the rebase began, and origHeadBranch is the
// branch it was attached to, if any (empty if HEAD was detached).
func Fixup(s store.ObjectStore, rewrites RewriteMap, origHead plumbing.Hash, origHeadBranch plumbing.ReferenceName, opts FixupOptions) (*FixupOutcome, error) {
	out := &FixupOutcome{MovedBranches: map[plumbing.ReferenceName]plumbing.Hash{}}

	for _, newOid := range rewrites {
		if newOid == plumbing.ZeroHash {
			continue
		}
		name := gcProtectPrefix + plumbing.ReferenceName(newOid.String())
		if err := s.UpdateRef(name, newOid); err != nil {
			return out, err
		}
		out.MarkedReachable = append(out.MarkedReachable, newOid)
	}

	_, headRewritten := rewrites[origHead]
	if origHeadBranch != "" && headRewritten {
		if err := s.SetHeadDetached(origHead); err != nil {
			return out, err
		}
	}

	branches, err := s.ListBranches()
	if err != nil {
		return out, err
	}
	for _, b := range branches {
		target, rewritten := rewrites[b.Hash()]
		if !rewritten {
			continue
		}
		if target == plumbing.ZeroHash {
			if err := s.DeleteRef(b.Name()); err != nil {
				return out, err
			}
			out.DeletedBranches = append(out.DeletedBranches, b.Name())
			out.Events = append(out.Events, eventlog.RefUpdateEvent(opts.TransactionID, opts.Now, b.Name(), b.Hash(), plumbing.ZeroHash, "move: branch deleted"))
			continue
		}
		if err := s.UpdateRef(b.Name(), target); err != nil {
			return out, err
		}
		out.MovedBranches[b.Name()] = target
		out.Events = append(out.Events, eventlog.RefUpdateEvent(opts.TransactionID, opts.Now, b.Name(), b.Hash(), target, "move"))
	}

	for oldOid, newOid := range rewrites {
		out.Events = append(out.Events, eventlog.RewriteEvent(opts.TransactionID, opts.Now, oldOid, newOid))
	}

	if newHead, ok := rewrites[origHead]; ok {
		if origHeadBranch != "" {
			if target, stillMoved := out.MovedBranches[origHeadBranch]; stillMoved && target == newHead {
				if err := s.SetHeadSymbolic(origHeadBranch); err != nil {
					return out, err
				}
				out.NewHeadBranch = origHeadBranch
				out.NewHead = target
				return out, nil
			}
		}
		if newHead == plumbing.ZeroHash {
			return out, fmt.Errorf("rewrite: HEAD commit %s was dropped by the rebase", origHead.Prefix())
		}
		if err := s.SetHeadDetached(newHead); err != nil {
			return out, err
		}
		out.NewHead = newHead
	}

	return out, nil
}

// AbandonedChildren returns, for a rewritten commit a -> a', every visible
// child of a (within universe) that was not itself rewritten (spec.md
// §4.6's abandoned-children rule, consumed by restack and §4.7).
func AbandonedChildren(g *dag.Graph, rewrites RewriteMap, universe dag.Set) (map[plumbing.Hash][]plumbing.Hash, error) {
	abandoned := make(map[plumbing.Hash][]plumbing.Hash)
	for oid := range universe {
		c, err := g.Store.FindCommit(oid)
		if err != nil {
			return nil, err
		}
		for _, p := range c.ParentOids {
			if _, wasRewritten := rewrites[p]; !wasRewritten {
				continue
			}
			if _, childAlsoRewritten := rewrites[oid]; childAlsoRewritten {
				continue
			}
			abandoned[p] = append(abandoned[p], oid)
		}
	}
	return abandoned, nil
}
