package rewrite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/dag"
)

func TestFixupMarksReachableAndMovesBranch(t *testing.T) {
	r, g := chainRepo(t)
	_ = g

	require.NoError(t, r.s.UpdateRef(plumbing.NewBranchReferenceName("feature"), r.oids["c"]))

	newC := r.commit("c2", "onto")
	rewrites := RewriteMap{r.oids["c"]: newC}

	out, err := Fixup(r.s, rewrites, r.oids["c"], plumbing.NewBranchReferenceName("feature"), FixupOptions{
		TransactionID: "tx1",
		Now:           time.Unix(1800000000, 0),
	})
	require.NoError(t, err)

	assert.Contains(t, out.MarkedReachable, newC)
	assert.Equal(t, newC, out.MovedBranches[plumbing.NewBranchReferenceName("feature")])
	assert.Equal(t, plumbing.NewBranchReferenceName("feature"), out.NewHeadBranch)

	info, err := r.s.ResolveRef(plumbing.NewBranchReferenceName("feature"))
	require.NoError(t, err)
	assert.Equal(t, newC, info.Oid)

	reachable, err := r.s.ResolveRef(plumbing.ReferenceName("refs/branchless/" + newC.String()))
	require.NoError(t, err)
	assert.Equal(t, newC, reachable.Oid)
}

func TestFixupDeletesBranchOnZeroTarget(t *testing.T) {
	r, _ := chainRepo(t)
	require.NoError(t, r.s.UpdateRef(plumbing.NewBranchReferenceName("feature"), r.oids["a"]))

	rewrites := RewriteMap{r.oids["a"]: plumbing.ZeroHash}
	out, err := Fixup(r.s, rewrites, r.oids["root"], "", FixupOptions{
		TransactionID: "tx1",
		Now:           time.Unix(1800000000, 0),
	})
	require.NoError(t, err)
	assert.Contains(t, out.DeletedBranches, plumbing.NewBranchReferenceName("feature"))

	_, err = r.s.ResolveRef(plumbing.NewBranchReferenceName("feature"))
	assert.Error(t, err)
}

func TestFixupEmitsRewriteAndRefUpdateEvents(t *testing.T) {
	r, _ := chainRepo(t)
	require.NoError(t, r.s.UpdateRef(plumbing.NewBranchReferenceName("feature"), r.oids["a"]))

	newA := r.commit("a2", "onto")
	rewrites := RewriteMap{r.oids["a"]: newA}

	out, err := Fixup(r.s, rewrites, r.oids["root"], "", FixupOptions{
		TransactionID: "tx1",
		Now:           time.Unix(1800000000, 0),
	})
	require.NoError(t, err)

	var sawRewrite, sawRefUpdate bool
	for _, e := range out.Events {
		if e.Kind.String() == "rewrite" {
			sawRewrite = true
		}
		if e.Kind.String() == "ref-update" {
			sawRefUpdate = true
		}
	}
	assert.True(t, sawRewrite)
	assert.True(t, sawRefUpdate)
}

func TestFixupLeavesUnaffectedBranchHeadAttached(t *testing.T) {
	r, _ := chainRepo(t)
	require.NoError(t, r.s.UpdateRef(plumbing.NewBranchReferenceName("main"), r.oids["c"]))
	require.NoError(t, r.s.SetHeadSymbolic(plumbing.NewBranchReferenceName("main")))

	// rewrites touches only "a" on a branch other than the checked-out one;
	// main's tip (c) never appears as a key.
	newA := r.commit("a2", "onto")
	rewrites := RewriteMap{r.oids["a"]: newA}

	_, err := Fixup(r.s, rewrites, r.oids["c"], plumbing.NewBranchReferenceName("main"), FixupOptions{
		TransactionID: "tx1",
		Now:           time.Unix(1800000000, 0),
	})
	require.NoError(t, err)

	head, err := r.s.HeadInfo()
	require.NoError(t, err)
	assert.Equal(t, plumbing.NewBranchReferenceName("main"), head.Symbolic)
}

func TestAbandonedChildrenDetectsUnrewrittenDescendant(t *testing.T) {
	r, g := chainRepo(t)
	universe := dag.NewSet(r.oids["a"], r.oids["b"], r.oids["c"])

	newA := r.commit("a2", "onto")
	rewrites := RewriteMap{r.oids["a"]: newA}

	abandoned, err := AbandonedChildren(g, rewrites, universe)
	require.NoError(t, err)
	assert.Contains(t, abandoned[r.oids["a"]], r.oids["b"])
}
