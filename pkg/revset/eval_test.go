package revset

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/dag"
	"github.com/vcsflow/stacker/pkg/eventlog"
	"github.com/vcsflow/stacker/pkg/store"
)

func buildRepo(t *testing.T) (store.ObjectStore, *eventlog.ReplayState, plumbing.Hash, plumbing.Hash) {
	t.Helper()
	s, err := store.NewLocal(t.TempDir())
	require.NoError(t, err)

	sig := store.Signature{Name: "a", Email: "a@example.com", When: time.Unix(1700000000, 0)}
	blobOid, err := s.CreateBlob([]byte("root\n"))
	require.NoError(t, err)
	rootTree, err := s.WriteTree(store.NewTree([]store.TreeEntry{{Name: "f.txt", Mode: store.ModeFile, Oid: blobOid}}))
	require.NoError(t, err)
	root, err := s.CreateCommit(sig, sig, "root", rootTree, nil)
	require.NoError(t, err)

	blobOid2, err := s.CreateBlob([]byte("child\n"))
	require.NoError(t, err)
	childTree, err := s.WriteTree(store.NewTree([]store.TreeEntry{{Name: "f.txt", Mode: store.ModeFile, Oid: blobOid2}}))
	require.NoError(t, err)
	child, err := s.CreateCommit(sig, sig, "child", childTree, []plumbing.Hash{root})
	require.NoError(t, err)

	require.NoError(t, s.UpdateRef(plumbing.NewBranchReferenceName("main"), root))

	l, err := eventlog.Open(filepath.Join(t.TempDir(), "db.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	now := time.Unix(1700000000, 0)
	require.NoError(t, l.Append([]eventlog.Event{
		eventlog.CommitEvent("tx1", now, root),
		eventlog.CommitEvent("tx1", now, child),
	}))
	st, err := l.Replay(nil)
	require.NoError(t, err)

	return s, st, root, child
}

func TestResolveAncestorsOfChild(t *testing.T) {
	s, st, root, child := buildRepo(t)
	g, err := dag.NewGraph(s, plumbing.NewBranchReferenceName("main"))
	require.NoError(t, err)
	ctx := &Context{Graph: g, Replay: st}

	expr, err := Parse("ancestors(" + child.String() + ")")
	require.NoError(t, err)
	set, err := Resolve(ctx, expr)
	require.NoError(t, err)
	assert.True(t, set[root])
	assert.True(t, set[child])
}

func TestResolveDraftExcludesPublic(t *testing.T) {
	s, st, root, child := buildRepo(t)
	g, err := dag.NewGraph(s, plumbing.NewBranchReferenceName("main"))
	require.NoError(t, err)
	ctx := &Context{Graph: g, Replay: st}

	expr, err := Parse("draft")
	require.NoError(t, err)
	set, err := Resolve(ctx, expr)
	require.NoError(t, err)
	assert.False(t, set[root])
	assert.True(t, set[child])
}

func TestResolveUnboundNameErrors(t *testing.T) {
	s, st, _, _ := buildRepo(t)
	g, err := dag.NewGraph(s, plumbing.NewBranchReferenceName("main"))
	require.NoError(t, err)
	ctx := &Context{Graph: g, Replay: st}

	expr, err := Parse("nonexistent-branch")
	require.NoError(t, err)
	_, err = Resolve(ctx, expr)
	assert.Error(t, err)
}
