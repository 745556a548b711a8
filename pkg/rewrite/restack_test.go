package rewrite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/corerr"
	"github.com/vcsflow/stacker/pkg/dag"
	"github.com/vcsflow/stacker/pkg/eventlog"
	"github.com/vcsflow/stacker/pkg/store"
)

func TestRestackRebasesAbandonedChildOntoRewriteTarget(t *testing.T) {
	r, g := chainRepo(t)

	now := time.Unix(1700000000, 0)
	l, err := eventlog.Open(filepath.Join(t.TempDir(), "db.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	require.NoError(t, l.Append([]eventlog.Event{
		eventlog.CommitEvent("tx0", now, r.oids["root"]),
		eventlog.CommitEvent("tx0", now, r.oids["onto"]),
		eventlog.CommitEvent("tx0", now, r.oids["a"]),
		eventlog.CommitEvent("tx0", now, r.oids["b"]),
		eventlog.CommitEvent("tx0", now, r.oids["c"]),
	}))

	// simulate an out-of-band amend of "a" into a new commit, recorded as a
	// rewrite, leaving b/c abandoned.
	newA := r.commit("a-amended", "onto")
	require.NoError(t, l.Append([]eventlog.Event{
		eventlog.CommitEvent("tx1", now, newA),
		eventlog.RewriteEvent("tx1", now, r.oids["a"], newA),
	}))

	universe := dag.NewSet(r.oids["a"], r.oids["b"], r.oids["c"])
	res, err := Restack(r.s, l, g, universe, RestackOptions{
		TransactionID: "tx2",
		Now:           now,
	})
	require.NoError(t, err)
	assert.False(t, res.NoOp)
	assert.True(t, res.RestackedCount > 0)

	final, err := l.Replay(nil)
	require.NoError(t, err)
	assert.Equal(t, eventlog.Hidden, final.CommitVisibility(r.oids["b"]))
	assert.Equal(t, eventlog.Hidden, final.CommitVisibility(r.oids["c"]))
}

func TestRestackNoOpWhenNothingAbandoned(t *testing.T) {
	r, g := chainRepo(t)
	now := time.Unix(1700000000, 0)

	l, err := eventlog.Open(filepath.Join(t.TempDir(), "db.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	require.NoError(t, l.Append([]eventlog.Event{
		eventlog.CommitEvent("tx0", now, r.oids["a"]),
		eventlog.CommitEvent("tx0", now, r.oids["b"]),
	}))

	universe := dag.NewSet(r.oids["a"], r.oids["b"])
	res, err := Restack(r.s, l, g, universe, RestackOptions{TransactionID: "tx1", Now: now})
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, 0, res.RestackedCount)
}

// TestRestackFallsBackToOnDiskOnConflict builds an abandoned commit whose
// cherry-pick onto its rewrite target genuinely conflicts (both sides edit
// f.txt differently relative to their common base), so ExecuteInMemory's
// error must send Restack to ExecuteOnDisk when MetaDir is set. Since the
// same conflict reproduces on disk, Restack still reports it, but only the
// on-disk path leaves a resumable rebase-merge/ state behind.
func TestRestackFallsBackToOnDiskOnConflict(t *testing.T) {
	r := newTestRepo(t)

	base := map[string]store.TreeEntry{}
	writeTestFile(t, r.s, base, "f.txt", "base\n")
	root, err := r.s.CreateCommit(r.sig, r.sig, "root", writeTestTree(t, r.s, base), nil)
	require.NoError(t, err)

	orig, err := r.s.CreateCommit(r.sig, r.sig, "orig", writeTestTree(t, r.s, base), []plumbing.Hash{root})
	require.NoError(t, err)

	ontoFiles := map[string]store.TreeEntry{}
	writeTestFile(t, r.s, ontoFiles, "f.txt", "onto change\n")
	onto, err := r.s.CreateCommit(r.sig, r.sig, "onto", writeTestTree(t, r.s, ontoFiles), []plumbing.Hash{root})
	require.NoError(t, err)

	childFiles := map[string]store.TreeEntry{}
	writeTestFile(t, r.s, childFiles, "f.txt", "child change\n")
	child, err := r.s.CreateCommit(r.sig, r.sig, "child", writeTestTree(t, r.s, childFiles), []plumbing.Hash{orig})
	require.NoError(t, err)

	require.NoError(t, r.s.UpdateRef(plumbing.NewBranchReferenceName("main"), root))
	g, err := dag.NewGraph(r.s, plumbing.NewBranchReferenceName("main"))
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	l, err := eventlog.Open(filepath.Join(t.TempDir(), "db.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	require.NoError(t, l.Append([]eventlog.Event{
		eventlog.CommitEvent("tx0", now, root),
		eventlog.CommitEvent("tx0", now, orig),
		eventlog.CommitEvent("tx0", now, onto),
		eventlog.CommitEvent("tx0", now, child),
		eventlog.RewriteEvent("tx0", now, orig, onto),
	}))

	universe := dag.NewSet(orig, onto, child)
	metaDir := t.TempDir()
	res, err := Restack(r.s, l, g, universe, RestackOptions{
		TransactionID: "tx1",
		Now:           now,
		MetaDir:       metaDir,
	})
	require.Error(t, err)
	assert.True(t, corerr.IsMergeConflict(err))
	assert.NotNil(t, res)
	assert.True(t, InProgress(metaDir))
}

func writeTestFile(t *testing.T, s store.ObjectStore, files map[string]store.TreeEntry, name, content string) {
	t.Helper()
	blob, err := s.CreateBlob([]byte(content))
	require.NoError(t, err)
	files[name] = store.TreeEntry{Name: name, Mode: store.ModeFile, Oid: blob}
}

func writeTestTree(t *testing.T, s store.ObjectStore, files map[string]store.TreeEntry) plumbing.Hash {
	t.Helper()
	entries := make([]store.TreeEntry, 0, len(files))
	for _, e := range files {
		entries = append(entries, e)
	}
	tr, err := s.WriteTree(store.NewTree(entries))
	require.NoError(t, err)
	return tr
}
