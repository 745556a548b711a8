package repocfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcsflow/stacker/pkg/testrunner"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEmptyMetaDirReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesOverDefault(t *testing.T) {
	dir := t.TempDir()
	contents := `
[core]
main_branch = "trunk"

[test]
default_strategy = "working-copy"

[rebase]
force_rewrite_public = true
on_disk_merge_policy = "sequential-picks"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte(contents), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "trunk", cfg.Core.MainBranch)
	assert.Equal(t, "working-copy", cfg.Test.DefaultStrategy)
	assert.Equal(t, testrunner.StrategyWorkingCopy, cfg.Test.Strategy())
	assert.Equal(t, 1, cfg.Test.DefaultJobs) // untouched by the repo file, keeps the default
	assert.True(t, cfg.Rebase.ForceRewritePublic)
	assert.Equal(t, MergePolicySequentialPicks, cfg.Rebase.OnDiskMergePolicy)
}

func TestLoadPartialOverrideKeepsOtherDefaults(t *testing.T) {
	dir := t.TempDir()
	contents := `
[test]
default_jobs = 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte(contents), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Core.MainBranch)
	assert.Equal(t, "worktree", cfg.Test.DefaultStrategy)
	assert.Equal(t, 4, cfg.Test.DefaultJobs)
	assert.Equal(t, MergePolicyRefuse, cfg.Rebase.OnDiskMergePolicy)
}

func TestLoadMissingParentDirectoryStillReturnsDefault(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist", "nested"))
	require.NoError(t, err) // Stat on a missing parent still reports os.IsNotExist
}

func TestTestStrategyDefaultsToWorktreeForUnknownValue(t *testing.T) {
	tc := Test{DefaultStrategy: "bogus"}
	assert.Equal(t, testrunner.StrategyWorktree, tc.Strategy())
}

func TestRebasePlanOptionsProjectsForceRewritePublic(t *testing.T) {
	r := Rebase{ForceRewritePublic: true}
	assert.True(t, r.PlanOptions().ForceRewritePublic)
}
