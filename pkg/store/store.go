package store

import (
	"github.com/vcsflow/stacker/modules/plumbing"
)

// HeadInfo is the result of resolving HEAD: either a direct oid (detached),
// a symbolic target (normal branch checkout, possibly unborn if the target
// does not resolve), or both zero for a repository with no HEAD at all.
type HeadInfo struct {
	Oid    plumbing.Hash
	Symbolic plumbing.ReferenceName
}

// RefInfo is the result of resolving a single reference by name.
type RefInfo struct {
	Oid      plumbing.Hash
	Symbolic plumbing.ReferenceName
}

// CherryPickOptions tunes the fast cherry-pick primitive.
type CherryPickOptions struct {
	ReuseParentTreeIfPossible bool
}

// AmendSource selects where fast_amend reads new blob content from.
type AmendSourceKind int

const (
	AmendFromWorkingCopy AmendSourceKind = iota
	AmendFromIndex
	AmendFromCommit
)

type AmendSource struct {
	Kind   AmendSourceKind
	Paths  []string          // status paths to re-read, for WorkingCopy/Index
	Index  *Index            // for AmendFromIndex
	Commit plumbing.Hash     // for AmendFromCommit
	ReadFile func(path string) ([]byte, bool, error) // working-copy file reader; bool is false if the file no longer exists
}

// ObjectStore is the uniform facade over commits/trees/blobs/refs/index
// every other component depends on (spec.md §4.1). Implementations vary —
// a local on-disk backend here, potentially a subprocess-driven one
// elsewhere — but the capability set is fixed and callers never reach past
// it into implementation detail.
type ObjectStore interface {
	FindCommit(oid plumbing.Hash) (*Commit, error)
	FindTree(oid plumbing.Hash) (*Tree, error)
	ReadBlob(oid plumbing.Hash) ([]byte, error)
	ResolveRef(name plumbing.ReferenceName) (RefInfo, error)
	HeadInfo() (HeadInfo, error)
	SetHeadDetached(oid plumbing.Hash) error
	SetHeadSymbolic(target plumbing.ReferenceName) error
	UpdateRef(name plumbing.ReferenceName, oid plumbing.Hash) error
	DeleteRef(name plumbing.ReferenceName) error
	ListBranches() ([]plumbing.Reference, error)

	CreateCommit(author, committer Signature, message string, tree plumbing.Hash, parents []plumbing.Hash) (plumbing.Hash, error)
	CreateBlob(data []byte) (plumbing.Hash, error)
	WriteTree(t *Tree) (plumbing.Hash, error)

	MergeBase(a, b plumbing.Hash) (plumbing.Hash, bool, error)
	DiffTrees(a, b plumbing.Hash) (map[string]bool, error)

	CherryPickFast(patch *Commit, onto *Commit, opts CherryPickOptions) (plumbing.Hash, error)
	AmendFast(parent *Commit, src AmendSource) (plumbing.Hash, error)

	WriteIndexAsTree(idx *Index) (plumbing.Hash, error)
}
