package testrunner

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultLockExcludesConcurrentHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pid.lock")

	first := newResultLock(path)
	ok, err := first.tryLock()
	require.NoError(t, err)
	require.True(t, ok)

	second := newResultLock(path)
	ok, err = second.tryLock()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.unlock())

	third := newResultLock(path)
	ok, err = third.tryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, third.unlock())
}
