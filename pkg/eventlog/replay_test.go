package eventlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsflow/stacker/modules/plumbing"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "db.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func oid(b byte) plumbing.Hash {
	var h plumbing.Hash
	h[0] = b
	return h
}

// P1: replay(events) is a pure deterministic function of the event sequence.
func TestReplayDeterministic(t *testing.T) {
	l := openTestLog(t)
	now := time.Unix(1700000000, 0)
	c1, c2 := oid(1), oid(2)

	require.NoError(t, l.Append([]Event{
		CommitEvent("tx1", now, c1),
		CommitEvent("tx1", now.Add(time.Second), c2),
		HideEvent("tx2", now.Add(2*time.Second), c1),
	}))

	st1, err := l.Replay(nil)
	require.NoError(t, err)
	st2, err := l.Replay(nil)
	require.NoError(t, err)

	assert.Equal(t, st1.CommitVisibility(c1), st2.CommitVisibility(c1))
	assert.Equal(t, Hidden, st1.CommitVisibility(c1))
	assert.Equal(t, Visible, st1.CommitVisibility(c2))
}

func TestReplayLatestWins(t *testing.T) {
	l := openTestLog(t)
	now := time.Unix(1700000000, 0)
	c1 := oid(1)

	require.NoError(t, l.Append([]Event{
		CommitEvent("tx1", now, c1),
		HideEvent("tx2", now.Add(time.Second), c1),
		UnhideEvent("tx3", now.Add(2*time.Second), c1),
	}))

	st, err := l.Replay(nil)
	require.NoError(t, err)
	assert.Equal(t, Visible, st.CommitVisibility(c1))
}

func TestReplayRewriteHidesOldShowsNew(t *testing.T) {
	l := openTestLog(t)
	now := time.Unix(1700000000, 0)
	old, new_ := oid(1), oid(2)

	require.NoError(t, l.Append([]Event{
		CommitEvent("tx1", now, old),
		RewriteEvent("tx2", now.Add(time.Second), old, new_),
		CommitEvent("tx2", now.Add(time.Second), new_),
	}))

	st, err := l.Replay(nil)
	require.NoError(t, err)
	assert.Equal(t, Hidden, st.CommitVisibility(old))
	assert.Equal(t, Visible, st.CommitVisibility(new_))

	active := st.ActiveOids()
	assert.True(t, active[new_])
	assert.False(t, active[old])
}

func TestReplayRewriteToZeroObsoletesWithoutReplacement(t *testing.T) {
	l := openTestLog(t)
	now := time.Unix(1700000000, 0)
	old := oid(1)

	require.NoError(t, l.Append([]Event{
		CommitEvent("tx1", now, old),
		RewriteEvent("tx2", now.Add(time.Second), old, plumbing.ZeroHash),
	}))

	st, err := l.Replay(nil)
	require.NoError(t, err)
	assert.Equal(t, Hidden, st.CommitVisibility(old))
	target, superseded := st.RewriteTarget(old)
	assert.True(t, superseded)
	assert.Equal(t, plumbing.ZeroHash, target)
}

// Rewrite-chain resolution follows a multi-step chain to its final target.
func TestRewriteTargetChainFollowsToFixedPoint(t *testing.T) {
	l := openTestLog(t)
	now := time.Unix(1700000000, 0)
	a, b, c := oid(1), oid(2), oid(3)

	require.NoError(t, l.Append([]Event{
		CommitEvent("tx1", now, a),
		RewriteEvent("tx2", now.Add(time.Second), a, b),
		RewriteEvent("tx3", now.Add(2*time.Second), b, c),
		CommitEvent("tx3", now.Add(2*time.Second), c),
	}))

	st, err := l.Replay(nil)
	require.NoError(t, err)
	target, superseded := st.RewriteTarget(a)
	require.True(t, superseded)
	assert.Equal(t, c, target)
}

// P2: rewrite-chain resolution terminates even on a cycle.
func TestRewriteTargetChainCycleTerminates(t *testing.T) {
	l := openTestLog(t)
	now := time.Unix(1700000000, 0)
	a, b := oid(1), oid(2)

	require.NoError(t, l.Append([]Event{
		CommitEvent("tx1", now, a),
		RewriteEvent("tx2", now.Add(time.Second), a, b),
		RewriteEvent("tx3", now.Add(2*time.Second), b, a),
	}))

	done := make(chan struct{})
	var target plumbing.Hash
	var superseded bool
	go func() {
		st, err := l.Replay(nil)
		require.NoError(t, err)
		target, superseded = st.RewriteTarget(a)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RewriteTarget did not terminate on a cycle")
	}
	assert.False(t, superseded)
	assert.Equal(t, plumbing.ZeroHash, target)
}

func TestReplayCursorLimitsFold(t *testing.T) {
	l := openTestLog(t)
	now := time.Unix(1700000000, 0)
	c1 := oid(1)

	require.NoError(t, l.Append([]Event{CommitEvent("tx1", now, c1)}))
	require.NoError(t, l.Append([]Event{HideEvent("tx2", now.Add(time.Second), c1)}))

	full, err := l.Replay(nil)
	require.NoError(t, err)
	assert.Equal(t, Hidden, full.CommitVisibility(c1))

	firstCursor := int64(1)
	partial, err := l.Replay(&firstCursor)
	require.NoError(t, err)
	assert.Equal(t, Visible, partial.CommitVisibility(c1))
}

func TestReplayRefUpdateObservedButNotVisibility(t *testing.T) {
	l := openTestLog(t)
	now := time.Unix(1700000000, 0)
	c1 := oid(1)

	require.NoError(t, l.Append([]Event{
		RefUpdateEvent("tx1", now, plumbing.ReferenceName("refs/heads/main"), plumbing.ZeroHash, c1, "create"),
	}))

	st, err := l.Replay(nil)
	require.NoError(t, err)
	assert.Equal(t, Unknown, st.CommitVisibility(c1))
}
