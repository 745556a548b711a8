package testrunner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsflow/stacker/modules/plumbing"
)

func TestLinearReportsLastGoodAndFirstBad(t *testing.T) {
	r := newTestRepo(t)
	r.commit("a")
	r.commit("b", "a")
	r.commit("c", "b")
	commits := []plumbing.Hash{r.oids["a"], r.oids["b"], r.oids["c"]}

	meta := t.TempDir()
	cache := NewCache(meta)
	for _, c := range commits {
		commit, err := r.s.FindCommit(c)
		require.NoError(t, err)
		exit := 0
		if c == r.oids["c"] {
			exit = 1
		}
		require.NoError(t, cache.Write(commit.TreeOid, "exit-precomputed", &Result{ExitCode: exit}))
	}

	res, err := Linear(context.Background(), r.s, commits, Options{
		Command:  "exit-precomputed",
		Strategy: StrategyWorktree,
		MetaDir:  meta,
	})
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, r.oids["b"], res.LastGood)
	assert.Equal(t, r.oids["c"], res.FirstBad)
}

func TestBinaryFindsBoundary(t *testing.T) {
	r := newTestRepo(t)
	names := []string{"a", "b", "c", "d", "e"}
	var parent string
	var commits []plumbing.Hash
	for _, n := range names {
		if parent == "" {
			r.commit(n)
		} else {
			r.commit(n, parent)
		}
		parent = n
		commits = append(commits, r.oids[n])
	}

	meta := t.TempDir()
	cache := NewCache(meta)
	badFrom := 3 // "d" and "e" fail
	for i, c := range commits {
		commit, err := r.s.FindCommit(c)
		require.NoError(t, err)
		exit := 0
		if i >= badFrom {
			exit = 1
		}
		require.NoError(t, cache.Write(commit.TreeOid, "exit-precomputed", &Result{ExitCode: exit}))
	}

	res, err := Binary(context.Background(), r.s, commits, Options{
		Command:  "exit-precomputed",
		Strategy: StrategyWorktree,
		MetaDir:  meta,
	})
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, commits[badFrom-1], res.LastGood)
	assert.Equal(t, commits[badFrom], res.FirstBad)
}
