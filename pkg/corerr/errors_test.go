package corerr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vcsflow/stacker/modules/plumbing"
)

func TestTypedErrorPredicates(t *testing.T) {
	oid := plumbing.NewHash("adba50d9794b9ef3f7ec8cbc680f7f1fa3fbf9df")

	var err error = &ErrWouldRewritePublic{Commits: []plumbing.Hash{oid}}
	assert.True(t, IsWouldRewritePublic(err))
	assert.False(t, IsConstraintCycle(err))

	err = &ErrConstraintCycle{Oids: []plumbing.Hash{oid, oid}}
	assert.True(t, IsConstraintCycle(err))

	err = &ErrAmbiguousMergeParent{Commit: oid}
	assert.True(t, IsAmbiguousMergeParent(err))

	err = &ErrMergeConflict{Commit: oid, Paths: []string{"a.txt", "b.txt"}}
	assert.True(t, IsMergeConflict(err))
	assert.Contains(t, err.Error(), "a.txt")

	err = &ErrCheckoutFailed{Oid: oid, Err: fmt.Errorf("disk full")}
	assert.True(t, IsCheckoutFailed(err))
	assert.Contains(t, err.Error(), "disk full")

	err = &ErrReadCacheFailed{Msg: "truncated record"}
	assert.True(t, IsReadCacheFailed(err))
}

func TestSentinelErrors(t *testing.T) {
	assert.ErrorIs(t, ErrOperationInProgress, ErrOperationInProgress)
	assert.ErrorIs(t, ErrAlreadyInProgress, ErrAlreadyInProgress)
}
