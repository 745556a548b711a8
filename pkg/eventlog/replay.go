package eventlog

import "github.com/vcsflow/stacker/modules/plumbing"

// Visibility is the derived per-commit state (spec.md §3).
type Visibility int

const (
	Unknown Visibility = iota
	Visible
	Hidden
)

// ReplayState is the materialized result of folding the event log up to a
// cursor. It is immutable once built; a new Replay call is needed to see
// later events (spec.md I4: the DAG/visibility snapshot used for any one
// command is fixed at command start).
type ReplayState struct {
	visibility    map[plumbing.Hash]Visibility
	lastTouch     map[plumbing.Hash]Event
	observed      map[plumbing.Hash]bool
	cursor        int64
}

// Replay folds events left-to-right up to upToCursor (nil = all), latest
// wins within a transaction per spec.md §4.2's replay rules.
func (l *Log) Replay(upToCursor *int64) (*ReplayState, error) {
	events, err := l.readAll(upToCursor)
	if err != nil {
		return nil, err
	}
	st := &ReplayState{
		visibility: make(map[plumbing.Hash]Visibility),
		lastTouch:  make(map[plumbing.Hash]Event),
		observed:   make(map[plumbing.Hash]bool),
	}
	for _, e := range events {
		if e.RowID > st.cursor {
			st.cursor = e.RowID
		}
		switch e.Kind {
		case KindCommit:
			st.visibility[e.CommitOid] = Visible
			st.observed[e.CommitOid] = true
			st.lastTouch[e.CommitOid] = e
		case KindHide:
			st.visibility[e.CommitOid] = Hidden
			st.observed[e.CommitOid] = true
			st.lastTouch[e.CommitOid] = e
		case KindUnhide:
			st.visibility[e.CommitOid] = Visible
			st.observed[e.CommitOid] = true
			st.lastTouch[e.CommitOid] = e
		case KindRewrite:
			st.visibility[e.RewriteOld] = Hidden
			st.observed[e.RewriteOld] = true
			st.lastTouch[e.RewriteOld] = e
			if !e.RewriteNew.IsZero() {
				st.visibility[e.RewriteNew] = Visible
				st.observed[e.RewriteNew] = true
			}
		case KindRefUpdate:
			if !e.OldOid.IsZero() {
				st.observed[e.OldOid] = true
			}
			if !e.NewOid.IsZero() {
				st.observed[e.NewOid] = true
			}
		}
	}
	return st, nil
}

// CommitVisibility reports the derived visibility of oid.
func (st *ReplayState) CommitVisibility(oid plumbing.Hash) Visibility {
	if v, ok := st.visibility[oid]; ok {
		return v
	}
	return Unknown
}

// LatestEventTouching returns the most recent event that mentioned oid as
// its principal subject, if any.
func (st *ReplayState) LatestEventTouching(oid plumbing.Hash) (Event, bool) {
	e, ok := st.lastTouch[oid]
	return e, ok
}

// ActiveOids returns every oid that is Visible and not itself superseded by
// a later Rewrite (i.e. has no outgoing rewrite edge whose target differs
// from it and is reachable).
func (st *ReplayState) ActiveOids() map[plumbing.Hash]bool {
	out := make(map[plumbing.Hash]bool)
	for oid, v := range st.visibility {
		if v != Visible {
			continue
		}
		if _, superseded := st.RewriteTarget(oid); superseded {
			continue
		}
		out[oid] = true
	}
	return out
}

// RewriteTarget resolves the rewrite chain starting at oid (spec.md §3/§4.2
// rewrite target resolution): follows Rewrite edges until a fixed point, a
// zero successor ("obsoleted without replacement"), or a cycle (reported as
// "no rewrite", i.e. ok=false).
//
// superseded is true when the chain leads from oid to a different oid or to
// the zero oid (ActiveOids excludes such oids from the active set); it is
// false when oid was never rewritten or when the chain runs into a cycle.
func (st *ReplayState) RewriteTarget(oid plumbing.Hash) (target plumbing.Hash, superseded bool) {
	seen := make(map[plumbing.Hash]bool)
	cur := oid
	for {
		e, ok := st.lastTouch[cur]
		if !ok || e.Kind != KindRewrite || e.RewriteOld != cur {
			if cur != oid {
				return cur, true
			}
			return plumbing.ZeroHash, false
		}
		if e.RewriteNew.IsZero() {
			return plumbing.ZeroHash, true
		}
		if e.RewriteNew == oid || seen[e.RewriteNew] {
			// cycle: "no rewrite"
			return plumbing.ZeroHash, false
		}
		seen[cur] = true
		cur = e.RewriteNew
	}
}

// Cursor returns the highest row id folded into this replay.
func (st *ReplayState) Cursor() int64 { return st.cursor }
