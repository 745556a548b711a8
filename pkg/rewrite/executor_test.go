package rewrite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/corerr"
	"github.com/vcsflow/stacker/pkg/dag"
	"github.com/vcsflow/stacker/pkg/store"
)

func TestExecuteInMemoryPicksOntoNewBase(t *testing.T) {
	r, g := chainRepo(t)
	universe := dag.NewSet(r.oids["root"], r.oids["onto"], r.oids["a"], r.oids["b"], r.oids["c"])

	plan, err := BuildPlan(g, []MoveRequest{{
		Sources: []plumbing.Hash{r.oids["a"], r.oids["b"], r.oids["c"]},
		Dest:    r.oids["onto"],
		Mode:    ModeSubtree,
	}}, universe, PlanOptions{})
	require.NoError(t, err)

	res, err := ExecuteInMemory(r.s, plan, ExecutorOptions{Now: time.Unix(1800000000, 0)})
	require.NoError(t, err)
	require.NotNil(t, res)

	newC, ok := res.RewriteMap[r.oids["c"]]
	require.True(t, ok)
	assert.NotEqual(t, plumbing.ZeroHash, newC)

	commit, err := r.s.FindCommit(newC)
	require.NoError(t, err)
	require.Len(t, commit.ParentOids, 1)

	newB, ok := res.RewriteMap[r.oids["b"]]
	require.True(t, ok)
	assert.Equal(t, newB, commit.ParentOids[0])
}

func TestExecuteInMemoryBailsOutOnMergeCommit(t *testing.T) {
	r := newTestRepo(t)
	r.commit("root")
	r.commit("onto", "root")
	r.commit("a", "root")
	r.commit("side", "root")
	merge := r.commit("m", "a", "side")
	require.NoError(t, r.s.UpdateRef(plumbing.NewBranchReferenceName("main"), r.oids["root"]))
	g, err := dag.NewGraph(r.s, plumbing.NewBranchReferenceName("main"))
	require.NoError(t, err)

	universe := dag.NewSet(r.oids["root"], r.oids["onto"], r.oids["a"], r.oids["side"], merge)
	plan, err := BuildPlan(g, []MoveRequest{{
		Sources: []plumbing.Hash{r.oids["a"], merge},
		Dest:    r.oids["onto"],
		Mode:    ModeSubtree,
	}}, universe, PlanOptions{})
	require.NoError(t, err)

	_, err = ExecuteInMemory(r.s, plan, ExecutorOptions{Now: time.Unix(1800000000, 0)})
	require.Error(t, err)
	assert.True(t, corerr.IsCannotRebaseMergeCommitInMemory(err))
}

func TestExecuteInMemoryDropsCommitThatBecomesEmpty(t *testing.T) {
	r := newTestRepo(t)

	blob, err := r.s.CreateBlob([]byte("same\n"))
	require.NoError(t, err)
	tr, err := r.s.WriteTree(store.NewTree([]store.TreeEntry{{Name: "f.txt", Mode: store.ModeFile, Oid: blob}}))
	require.NoError(t, err)

	root, err := r.s.CreateCommit(r.sig, r.sig, "root", tr, nil)
	require.NoError(t, err)
	r.oids["root"] = root

	// onto already carries the exact same tree "a" will reproduce, so
	// cherry-picking a's tree onto it yields no change.
	onto, err := r.s.CreateCommit(r.sig, r.sig, "onto", tr, []plumbing.Hash{root})
	require.NoError(t, err)
	r.oids["onto"] = onto

	a, err := r.s.CreateCommit(r.sig, r.sig, "a", tr, []plumbing.Hash{root})
	require.NoError(t, err)
	r.oids["a"] = a

	require.NoError(t, r.s.UpdateRef(plumbing.NewBranchReferenceName("main"), root))
	g, err := dag.NewGraph(r.s, plumbing.NewBranchReferenceName("main"))
	require.NoError(t, err)

	universe := dag.NewSet(root, onto, a)
	plan, err := BuildPlan(g, []MoveRequest{{
		Sources: []plumbing.Hash{a},
		Dest:    onto,
		Mode:    ModeSubtree,
	}}, universe, PlanOptions{})
	require.NoError(t, err)

	res, err := ExecuteInMemory(r.s, plan, ExecutorOptions{Now: time.Unix(1800000000, 0)})
	require.NoError(t, err)
	assert.Equal(t, plumbing.ZeroHash, res.RewriteMap[a])
}
