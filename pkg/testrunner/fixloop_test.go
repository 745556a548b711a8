package testrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/dag"
	"github.com/vcsflow/stacker/pkg/rewrite"
	"github.com/vcsflow/stacker/pkg/store"
)

func writeEntry(t *testing.T, s store.ObjectStore, flat map[string]store.TreeEntry, path, content string) {
	t.Helper()
	oid, err := s.CreateBlob([]byte(content))
	require.NoError(t, err)
	flat[path] = store.TreeEntry{Name: path, Mode: store.ModeFile, Oid: oid}
}

func copyFlat(flat map[string]store.TreeEntry) map[string]store.TreeEntry {
	out := make(map[string]store.TreeEntry, len(flat))
	for k, v := range flat {
		out[k] = v
	}
	return out
}

func TestFixCreatesReplacementAndRerootsChildren(t *testing.T) {
	r := newTestRepo(t)

	flatRoot := map[string]store.TreeEntry{}
	writeEntry(t, r.s, flatRoot, "root.txt", "root\n")
	rootTree, err := store.Build(r.s, flatRoot)
	require.NoError(t, err)
	rootOid, err := r.s.CreateCommit(r.sig, r.sig, "root", rootTree, nil)
	require.NoError(t, err)

	flatA := copyFlat(flatRoot)
	writeEntry(t, r.s, flatA, "a.txt", "a-broken\n")
	aTree, err := store.Build(r.s, flatA)
	require.NoError(t, err)
	aOid, err := r.s.CreateCommit(r.sig, r.sig, "a", aTree, []plumbing.Hash{rootOid})
	require.NoError(t, err)

	flatB := copyFlat(flatA)
	writeEntry(t, r.s, flatB, "b.txt", "b\n")
	bTree, err := store.Build(r.s, flatB)
	require.NoError(t, err)
	bOid, err := r.s.CreateCommit(r.sig, r.sig, "b", bTree, []plumbing.Hash{aOid})
	require.NoError(t, err)

	require.NoError(t, r.s.UpdateRef(plumbing.NewBranchReferenceName("main"), rootOid))
	g, err := dag.NewGraph(r.s, plumbing.NewBranchReferenceName("main"))
	require.NoError(t, err)
	universe := dag.NewSet(rootOid, aOid, bOid)

	flatFixed := copyFlat(flatA)
	writeEntry(t, r.s, flatFixed, "a.txt", "a-fixed\n")
	fixedTree, err := store.Build(r.s, flatFixed)
	require.NoError(t, err)

	results := []CommitResult{
		{
			Commit: aOid,
			Status: StatusPassed,
			Result: &Result{ExitCode: 0, FixedTreeOid: fixedTree},
		},
	}

	res, err := Fix(r.s, g, universe, results, rewrite.PlanOptions{}, rewrite.ExecutorOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)

	fixedOid, ok := res.RewriteMap[aOid]
	require.True(t, ok)
	assert.NotEqual(t, aOid, fixedOid)

	fixedCommit, err := r.s.FindCommit(fixedOid)
	require.NoError(t, err)
	assert.Equal(t, fixedTree, fixedCommit.TreeOid)
	assert.Equal(t, []plumbing.Hash{rootOid}, fixedCommit.ParentOids)

	rewrittenB, ok := res.RewriteMap[bOid]
	require.True(t, ok)
	bCommit, err := r.s.FindCommit(rewrittenB)
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{fixedOid}, bCommit.ParentOids)

	bTreeAfter, err := r.s.FindTree(bCommit.TreeOid)
	require.NoError(t, err)
	e, ok := bTreeAfter.Find("a.txt")
	require.True(t, ok)
	data, err := r.s.ReadBlob(e.Oid)
	require.NoError(t, err)
	assert.Equal(t, "a-fixed\n", string(data))
}

func TestFixWithNoFixedTreesIsANoop(t *testing.T) {
	r := newTestRepo(t)
	r.commit("root")
	require.NoError(t, r.s.UpdateRef(plumbing.NewBranchReferenceName("main"), r.oids["root"]))
	g, err := dag.NewGraph(r.s, plumbing.NewBranchReferenceName("main"))
	require.NoError(t, err)
	universe := dag.NewSet(r.oids["root"])

	res, err := Fix(r.s, g, universe, nil, rewrite.PlanOptions{}, rewrite.ExecutorOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.RewriteMap)
}
