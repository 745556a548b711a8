package testrunner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsflow/stacker/pkg/store"
)

func TestMaterializeWritesFlattenedTree(t *testing.T) {
	s, err := store.NewLocal(t.TempDir())
	require.NoError(t, err)

	blobA, err := s.CreateBlob([]byte("a\n"))
	require.NoError(t, err)
	blobB, err := s.CreateBlob([]byte("b\n"))
	require.NoError(t, err)
	subTree, err := s.WriteTree(store.NewTree([]store.TreeEntry{{Name: "b.txt", Mode: store.ModeFile, Oid: blobB}}))
	require.NoError(t, err)
	rootTree, err := s.WriteTree(store.NewTree([]store.TreeEntry{
		{Name: "a.txt", Mode: store.ModeFile, Oid: blobA},
		{Name: "sub", Mode: store.ModeDir, Oid: subTree},
	}))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "checkout")
	require.NoError(t, materialize(s, rootTree, dir))

	got, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(got))

	got, err = os.ReadFile(filepath.Join(dir, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b\n", string(got))
}

func TestMaterializeRemovesStaleFiles(t *testing.T) {
	s, err := store.NewLocal(t.TempDir())
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.txt"), []byte("old\n"), 0o644))

	blob, err := s.CreateBlob([]byte("new\n"))
	require.NoError(t, err)
	tree, err := s.WriteTree(store.NewTree([]store.TreeEntry{{Name: "new.txt", Mode: store.ModeFile, Oid: blob}}))
	require.NoError(t, err)

	require.NoError(t, materialize(s, tree, dir))

	_, err = os.Stat(filepath.Join(dir, "stale.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotWorkingTreeRoundTrips(t *testing.T) {
	s, err := store.NewLocal(t.TempDir())
	require.NoError(t, err)

	blob, err := s.CreateBlob([]byte("hello\n"))
	require.NoError(t, err)
	tree, err := s.WriteTree(store.NewTree([]store.TreeEntry{{Name: "hello.txt", Mode: store.ModeFile, Oid: blob}}))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "wt")
	require.NoError(t, materialize(s, tree, dir))

	snap, err := snapshotWorkingTree(s, dir)
	require.NoError(t, err)
	assert.Equal(t, tree, snap)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("changed\n"), 0o644))
	snap2, err := snapshotWorkingTree(s, dir)
	require.NoError(t, err)
	assert.NotEqual(t, tree, snap2)
}
