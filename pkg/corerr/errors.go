// Package corerr defines the error kinds shared by every core component.
// Simple, payload-free conditions are sentinel errors; conditions that must
// carry an oid, a path set, or a command line get a typed struct with an
// Is*() predicate, mirroring modules/plumbing's ErrBadReferenceName and
// modules/zeta/error.go's mix of sentinels and typed errors.
package corerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vcsflow/stacker/modules/plumbing"
)

// Precondition failures: reported to the user, no state changed.
var (
	ErrOperationInProgress = errors.New("an operation is already in progress")
	ErrUnbornHead          = errors.New("HEAD points at a branch with no commits yet")
	ErrNoWorkingCopy       = errors.New("no working copy available for this strategy")
	ErrDirtyWorkingCopy    = errors.New("working copy has uncommitted changes")
)

// Referential errors.
var (
	ErrUnboundName = errors.New("name does not resolve to a reference or commit")
	ErrNoMergeBase = errors.New("no merge base between the given commits")
	ErrObjectMissing = errors.New("object not found in the store")
)

// Cache/IO advisory conditions.
var (
	ErrAlreadyInProgress = errors.New("another process holds the result lock for this (tree, command) pair")
)

// ErrWouldRewritePublic is raised when a plan would rewrite a commit that is
// an ancestor of the configured main branch and force_rewrite_public is not
// set.
type ErrWouldRewritePublic struct {
	Commits []plumbing.Hash
}

func (e *ErrWouldRewritePublic) Error() string {
	names := make([]string, len(e.Commits))
	for i, c := range e.Commits {
		names[i] = c.Prefix()
	}
	return fmt.Sprintf("refusing to rewrite public commit(s) %s (retry with --force-rewrite-public)", strings.Join(names, ", "))
}

func IsWouldRewritePublic(err error) bool {
	var e *ErrWouldRewritePublic
	return errors.As(err, &e)
}

// ErrConstraintCycle reports a cycle discovered while linearizing the
// rebase plan's constraint graph.
type ErrConstraintCycle struct {
	Oids []plumbing.Hash
}

func (e *ErrConstraintCycle) Error() string {
	names := make([]string, len(e.Oids))
	for i, o := range e.Oids {
		names[i] = o.Prefix()
	}
	return fmt.Sprintf("rebase plan has a cycle: %s", strings.Join(names, " -> "))
}

func IsConstraintCycle(err error) bool {
	var e *ErrConstraintCycle
	return errors.As(err, &e)
}

// ErrAmbiguousMergeParent is raised when a move request over a merge commit
// cannot determine which parent to rebase onto because more than one
// parent is itself being rewritten.
type ErrAmbiguousMergeParent struct {
	Commit plumbing.Hash
}

func (e *ErrAmbiguousMergeParent) Error() string {
	return fmt.Sprintf("commit %s is a merge whose rewritten parent is ambiguous", e.Commit.Prefix())
}

func IsAmbiguousMergeParent(err error) bool {
	var e *ErrAmbiguousMergeParent
	return errors.As(err, &e)
}

// ErrMergeConflict is returned by the in-memory executor when a cherry-pick
// produces conflicting paths. Recoverable by falling through to the on-disk
// path when ResolveMergeConflicts is set.
type ErrMergeConflict struct {
	Commit plumbing.Hash
	Paths  []string
}

func (e *ErrMergeConflict) Error() string {
	return fmt.Sprintf("merge conflict applying %s in paths: %s", e.Commit.Prefix(), strings.Join(e.Paths, ", "))
}

func IsMergeConflict(err error) bool {
	var e *ErrMergeConflict
	return errors.As(err, &e)
}

// ErrCannotRebaseMergeCommitInMemory signals that the executor must fall
// through to the on-disk driver to reconstruct a merge commit.
type ErrCannotRebaseMergeCommitInMemory struct {
	Commit plumbing.Hash
}

func (e *ErrCannotRebaseMergeCommitInMemory) Error() string {
	return fmt.Sprintf("commit %s is a merge and cannot be rebased in-memory", e.Commit.Prefix())
}

func IsCannotRebaseMergeCommitInMemory(err error) bool {
	var e *ErrCannotRebaseMergeCommitInMemory
	return errors.As(err, &e)
}

// ErrCheckoutFailed wraps a failure preparing a working directory (checkout,
// worktree add) for C5's on-disk path or C7's per-commit execution.
type ErrCheckoutFailed struct {
	Oid plumbing.Hash
	Err error
}

func (e *ErrCheckoutFailed) Error() string {
	return fmt.Sprintf("checkout of %s failed: %v", e.Oid.Prefix(), e.Err)
}

func (e *ErrCheckoutFailed) Unwrap() error { return e.Err }

func IsCheckoutFailed(err error) bool {
	var e *ErrCheckoutFailed
	return errors.As(err, &e)
}

// ErrSpawnTestFailed wraps an os/exec failure launching the user's test
// command itself (not a nonzero exit, an actual spawn error).
type ErrSpawnTestFailed struct {
	Command string
	Err     error
}

func (e *ErrSpawnTestFailed) Error() string {
	return fmt.Sprintf("failed to spawn test command %q: %v", e.Command, e.Err)
}

func (e *ErrSpawnTestFailed) Unwrap() error { return e.Err }

func IsSpawnTestFailed(err error) bool {
	var e *ErrSpawnTestFailed
	return errors.As(err, &e)
}

// ErrTerminatedBySignal reports that the test command was killed by a
// signal rather than exiting normally.
type ErrTerminatedBySignal struct {
	Signal string
}

func (e *ErrTerminatedBySignal) Error() string {
	return fmt.Sprintf("test command terminated by signal %s", e.Signal)
}

func IsTerminatedBySignal(err error) bool {
	var e *ErrTerminatedBySignal
	return errors.As(err, &e)
}

// ErrReadCacheFailed reports a parse failure reading a cached test result.
// It never poisons the cache: callers treat it as cache-miss, not error.
type ErrReadCacheFailed struct {
	Msg string
}

func (e *ErrReadCacheFailed) Error() string {
	return fmt.Sprintf("reading cached test result: %s", e.Msg)
}

func IsReadCacheFailed(err error) bool {
	var e *ErrReadCacheFailed
	return errors.As(err, &e)
}
