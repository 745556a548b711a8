// Package repocfg loads the per-repository branchless.toml configuration
// file, merging it over a package-level default the way modules/zeta/config
// merges a repo config over a baseline.
package repocfg

import (
	"github.com/vcsflow/stacker/pkg/rewrite"
	"github.com/vcsflow/stacker/pkg/testrunner"
)

// MergePolicy selects how an on-disk rebase handles a plan containing
// Merge commands when the host driver has no native support for an
// explicit multi-parent merge from a todo list (spec.md's Open Question
// on on-disk Merge handling).
type MergePolicy string

const (
	MergePolicyRefuse          MergePolicy = "refuse"
	MergePolicySequentialPicks MergePolicy = "sequential-picks"
)

type Core struct {
	MainBranch string `toml:"main_branch,omitempty"`
}

func (c *Core) overwrite(o *Core) {
	c.MainBranch = overwrite(c.MainBranch, o.MainBranch)
}

type Test struct {
	DefaultStrategy string `toml:"default_strategy,omitempty"`
	DefaultJobs     int    `toml:"default_jobs,omitzero"`
}

func (t *Test) overwrite(o *Test) {
	t.DefaultStrategy = overwrite(t.DefaultStrategy, o.DefaultStrategy)
	if o.DefaultJobs > 0 {
		t.DefaultJobs = o.DefaultJobs
	}
}

// Strategy resolves DefaultStrategy into a testrunner.Strategy, defaulting
// to StrategyWorktree for anything other than an exact "working-copy" match.
func (t *Test) Strategy() testrunner.Strategy {
	if t.DefaultStrategy == "working-copy" {
		return testrunner.StrategyWorkingCopy
	}
	return testrunner.StrategyWorktree
}

type Rebase struct {
	ForceRewritePublic bool        `toml:"force_rewrite_public,omitempty"`
	OnDiskMergePolicy  MergePolicy `toml:"on_disk_merge_policy,omitempty"`
}

func (r *Rebase) overwrite(o *Rebase) {
	r.ForceRewritePublic = r.ForceRewritePublic || o.ForceRewritePublic
	if o.OnDiskMergePolicy != "" {
		r.OnDiskMergePolicy = o.OnDiskMergePolicy
	}
}

// PlanOptions projects Rebase into a rewrite.PlanOptions, leaving the
// fields repocfg has no opinion on at their zero value.
func (r *Rebase) PlanOptions() rewrite.PlanOptions {
	return rewrite.PlanOptions{ForceRewritePublic: r.ForceRewritePublic}
}

type Config struct {
	Core   Core   `toml:"core,omitempty"`
	Test   Test   `toml:"test,omitempty"`
	Rebase Rebase `toml:"rebase,omitempty"`
}

// Overwrite merges co over c in place, co taking precedence wherever it
// sets a non-zero value.
func (c *Config) Overwrite(co *Config) {
	c.Core.overwrite(&co.Core)
	c.Test.overwrite(&co.Test)
	c.Rebase.overwrite(&co.Rebase)
}

func overwrite(a, b string) string {
	if len(b) != 0 {
		return b
	}
	return a
}

// Default is the package-level baseline every repo config merges over.
func Default() *Config {
	return &Config{
		Core:   Core{MainBranch: "main"},
		Test:   Test{DefaultStrategy: "worktree", DefaultJobs: 1},
		Rebase: Rebase{ForceRewritePublic: false, OnDiskMergePolicy: MergePolicyRefuse},
	}
}
