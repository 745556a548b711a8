// Package eventlog implements the append-only event store and visibility
// replayer (spec component C2): every ref update, commit creation, hide,
// unhide and rewrite is recorded as an Event, grouped by transaction id,
// and replayed deterministically to derive which commits are currently
// visible and what superseded what.
//
// Storage is sqlite (db.sqlite3, per spec.md §6's on-disk layout), driven
// through github.com/ncruces/go-sqlite3 — a pure-Go (no cgo) driver picked
// for this component because no repo in the retrieval pack carries a SQL
// dependency of its own; see DESIGN.md.
package eventlog

import (
	"time"

	"github.com/vcsflow/stacker/modules/plumbing"
)

// Kind discriminates the tagged Event variant (spec.md §3).
type Kind int

const (
	KindRefUpdate Kind = iota
	KindCommit
	KindRewrite
	KindHide
	KindUnhide
)

func (k Kind) String() string {
	switch k {
	case KindRefUpdate:
		return "ref-update"
	case KindCommit:
		return "commit"
	case KindRewrite:
		return "rewrite"
	case KindHide:
		return "hide"
	case KindUnhide:
		return "unhide"
	}
	return "unknown"
}

// Event is one row of the append-only log. Only the fields relevant to
// Kind are populated; dispatch is by exhaustive switch over Kind, never by
// a subclass hierarchy (spec.md §9's "tagged events, not subclass
// hierarchies").
type Event struct {
	RowID         int64
	TransactionID string
	Timestamp     time.Time
	Kind          Kind

	// RefUpdate
	RefName plumbing.ReferenceName
	OldOid  plumbing.Hash
	NewOid  plumbing.Hash
	Message string

	// Commit, Hide, Unhide
	CommitOid plumbing.Hash

	// Rewrite
	RewriteOld plumbing.Hash
	RewriteNew plumbing.Hash
}

func RefUpdateEvent(txID string, now time.Time, name plumbing.ReferenceName, oldOid, newOid plumbing.Hash, message string) Event {
	return Event{TransactionID: txID, Timestamp: now, Kind: KindRefUpdate, RefName: name, OldOid: oldOid, NewOid: newOid, Message: message}
}

func CommitEvent(txID string, now time.Time, oid plumbing.Hash) Event {
	return Event{TransactionID: txID, Timestamp: now, Kind: KindCommit, CommitOid: oid}
}

func RewriteEvent(txID string, now time.Time, old, new_ plumbing.Hash) Event {
	return Event{TransactionID: txID, Timestamp: now, Kind: KindRewrite, RewriteOld: old, RewriteNew: new_}
}

func HideEvent(txID string, now time.Time, oid plumbing.Hash) Event {
	return Event{TransactionID: txID, Timestamp: now, Kind: KindHide, CommitOid: oid}
}

func UnhideEvent(txID string, now time.Time, oid plumbing.Hash) Event {
	return Event{TransactionID: txID, Timestamp: now, Kind: KindUnhide, CommitOid: oid}
}

// touchedOid returns the principal oid an event concerns, for
// latest_event_touching lookups.
func (e Event) touchedOid() (plumbing.Hash, bool) {
	switch e.Kind {
	case KindCommit, KindHide, KindUnhide:
		return e.CommitOid, true
	case KindRewrite:
		return e.RewriteOld, true
	default:
		return plumbing.ZeroHash, false
	}
}
