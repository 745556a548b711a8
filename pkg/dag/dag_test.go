package dag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/store"
)

func mkRepo(t *testing.T) (store.ObjectStore, plumbing.Hash, plumbing.Hash, plumbing.Hash) {
	t.Helper()
	s, err := store.NewLocal(t.TempDir())
	require.NoError(t, err)
	sig := store.Signature{Name: "a", Email: "a@example.com", When: time.Unix(1700000000, 0)}

	mk := func(content string, parents []plumbing.Hash, msg string) plumbing.Hash {
		blob, err := s.CreateBlob([]byte(content))
		require.NoError(t, err)
		tr, err := s.WriteTree(store.NewTree([]store.TreeEntry{{Name: "f.txt", Mode: store.ModeFile, Oid: blob}}))
		require.NoError(t, err)
		oid, err := s.CreateCommit(sig, sig, msg, tr, parents)
		require.NoError(t, err)
		return oid
	}

	root := mk("1\n", nil, "root")
	left := mk("2\n", []plumbing.Hash{root}, "left")
	right := mk("3\n", []plumbing.Hash{root}, "right")
	return s, root, left, right
}

func TestAncestorsIncludesRootAndSelf(t *testing.T) {
	s, root, left, _ := mkRepo(t)
	g, err := NewGraph(s, plumbing.NewBranchReferenceName("main"))
	require.NoError(t, err)

	anc, err := g.Ancestors(NewSet(left))
	require.NoError(t, err)
	assert.True(t, anc[left])
	assert.True(t, anc[root])
}

func TestOnlyExcludesSharedAncestors(t *testing.T) {
	s, root, left, right := mkRepo(t)
	g, err := NewGraph(s, plumbing.NewBranchReferenceName("main"))
	require.NoError(t, err)

	only, err := g.Only(left, right)
	require.NoError(t, err)
	assert.True(t, only[left])
	assert.False(t, only[right])
	assert.False(t, only[root])
}

func TestSortedTopologicallyOrdersParentsBeforeChildren(t *testing.T) {
	s, root, left, right := mkRepo(t)
	g, err := NewGraph(s, plumbing.NewBranchReferenceName("main"))
	require.NoError(t, err)

	set := NewSet(root, left, right)
	order, err := g.SortedTopologically(set)
	require.NoError(t, err)
	require.Len(t, order, 3)
	assert.Equal(t, root, order[0])

	pos := map[plumbing.Hash]int{}
	for i, o := range order {
		pos[o] = i
	}
	assert.Less(t, pos[root], pos[left])
	assert.Less(t, pos[root], pos[right])
}

func TestPublicCachesAcrossCalls(t *testing.T) {
	s, root, _, _ := mkRepo(t)
	require.NoError(t, s.UpdateRef(plumbing.NewBranchReferenceName("main"), root))
	g, err := NewGraph(s, plumbing.NewBranchReferenceName("main"))
	require.NoError(t, err)

	first, err := g.Public()
	require.NoError(t, err)
	second, err := g.Public()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, first[root])
}
