package rewrite

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/dag"
	"github.com/vcsflow/stacker/pkg/store"
)

func TestExecuteOnDiskRunsPlanToCompletion(t *testing.T) {
	r, g := chainRepo(t)
	universe := dag.NewSet(r.oids["root"], r.oids["onto"], r.oids["a"], r.oids["b"], r.oids["c"])

	plan, err := BuildPlan(g, []MoveRequest{{
		Sources: []plumbing.Hash{r.oids["a"], r.oids["b"], r.oids["c"]},
		Dest:    r.oids["onto"],
		Mode:    ModeSubtree,
	}}, universe, PlanOptions{})
	require.NoError(t, err)

	metaDir := t.TempDir()
	res, err := ExecuteOnDisk(r.s, metaDir, plan, "refs/heads/feature", r.oids["c"], ExecutorOptions{Now: time.Unix(1800000000, 0)})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.NotEqual(t, plumbing.ZeroHash, res.RewriteMap[r.oids["c"]])
	assert.False(t, InProgress(metaDir))
}

func TestExecuteOnDiskRefusesConcurrentRebase(t *testing.T) {
	r, g := chainRepo(t)
	universe := dag.NewSet(r.oids["root"], r.oids["onto"], r.oids["a"])

	plan, err := BuildPlan(g, []MoveRequest{{
		Sources: []plumbing.Hash{r.oids["a"]},
		Dest:    r.oids["onto"],
		Mode:    ModeSubtree,
	}}, universe, PlanOptions{})
	require.NoError(t, err)

	metaDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(metaDir, rebaseStateDir), 0o755))
	require.NoError(t, writeState(metaDir, &onDiskState{Labels: map[string]plumbing.Hash{}}))

	_, err = ExecuteOnDisk(r.s, metaDir, plan, "refs/heads/feature", r.oids["a"], ExecutorOptions{Now: time.Unix(1800000000, 0)})
	require.Error(t, err)
}

func TestExecuteOnDiskDropsCommitThatBecomesEmpty(t *testing.T) {
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

	metaDir := t.TempDir()
	res, err := ExecuteOnDisk(r.s, metaDir, plan, "refs/heads/feature", a, ExecutorOptions{Now: time.Unix(1800000000, 0)})
	require.NoError(t, err)
	assert.Equal(t, plumbing.ZeroHash, res.RewriteMap[a])
	assert.False(t, InProgress(metaDir))
}

func TestAbortOnDiskReturnsOriginalHead(t *testing.T) {
	r, _ := chainRepo(t)

	metaDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(metaDir, rebaseStateDir), 0o755))
	require.NoError(t, writeState(metaDir, &onDiskState{
		OrigHead: r.oids["a"],
		Labels:   map[string]plumbing.Hash{},
	}))

	orig, err := AbortOnDisk(metaDir)
	require.NoError(t, err)
	assert.Equal(t, r.oids["a"], orig)
	assert.False(t, InProgress(metaDir))
}
