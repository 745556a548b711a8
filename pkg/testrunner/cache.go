// Package testrunner implements C7: running a shell command against a set
// of commits in parallel, with a content-addressed result cache, WorkingCopy
// and Worktree execution strategies, linear/binary search modes, and the
// test-fix feedback loop that folds results back into pkg/rewrite.
package testrunner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/corerr"
)

// Status is the outcome of running one command against one commit.
type Status int

const (
	StatusUnknown Status = iota
	StatusPassed
	StatusFailed
	StatusSkipped
	StatusAlreadyInProgress
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusAlreadyInProgress:
		return "already-in-progress"
	}
	return "unknown"
}

// Result is the serialized, stable, human-readable record written per
// (tree, command) pair (spec.md §6).
type Result struct {
	Command      string        `json:"command"`
	ExitCode     int           `json:"exit_code"`
	FixedTreeOid plumbing.Hash `json:"fixed_tree_oid,omitempty"`
}

var slugRe = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// commandSlug turns a shell command string into a filesystem-safe directory
// name, short enough to avoid path-length issues on every platform.
func commandSlug(command string) string {
	slug := slugRe.ReplaceAllString(strings.TrimSpace(command), "_")
	if len(slug) > 64 {
		slug = slug[:64]
	}
	if slug == "" {
		slug = "cmd"
	}
	return slug
}

// Cache is the on-disk result cache rooted at <repo>/branchless/test/.
type Cache struct {
	Root string
}

func NewCache(repoMetaDir string) *Cache {
	return &Cache{Root: filepath.Join(repoMetaDir, "branchless", "test")}
}

func (c *Cache) entryDir(treeOid plumbing.Hash, command string) string {
	return filepath.Join(c.Root, treeOid.String(), commandSlug(command))
}

func (c *Cache) resultPath(treeOid plumbing.Hash, command string) string {
	return filepath.Join(c.entryDir(treeOid, command), "result")
}

func (c *Cache) lockPath(treeOid plumbing.Hash, command string) string {
	return filepath.Join(c.entryDir(treeOid, command), "pid.lock")
}

func (c *Cache) stdoutPath(treeOid plumbing.Hash, command string) string {
	return filepath.Join(c.entryDir(treeOid, command), "stdout")
}

func (c *Cache) stderrPath(treeOid plumbing.Hash, command string) string {
	return filepath.Join(c.entryDir(treeOid, command), "stderr")
}

// Read looks up a cached result. found is false on a clean miss (no result
// file yet). A present-but-unparseable or present-but-empty file (a crashed
// prior attempt) surfaces as ErrReadCacheFailed rather than being treated as
// success or failure — never overwrites anything itself.
func (c *Cache) Read(treeOid plumbing.Hash, command string) (res *Result, found bool, err error) {
	b, err := os.ReadFile(c.resultPath(treeOid, command))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(b) == 0 {
		return nil, false, &corerr.ErrReadCacheFailed{Msg: fmt.Sprintf("empty result file for %s", treeOid.Prefix())}
	}
	var r Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, false, &corerr.ErrReadCacheFailed{Msg: err.Error()}
	}
	return &r, true, nil
}

// Write atomically replaces the result file: written to a temp file in the
// same directory then renamed, so a concurrent reader never observes a
// truncated record.
func (c *Cache) Write(treeOid plumbing.Hash, command string, r *Result) error {
	dir := c.entryDir(treeOid, command)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "result-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.resultPath(treeOid, command))
}

// Clean removes every cached entry under the cache root.
func (c *Cache) Clean() error {
	return os.RemoveAll(c.Root)
}

// Querier implements revset.TestQuerier against this cache for a fixed
// command (the querier answers tests.passed()/failed()/fixable() for
// whichever command the revset query was configured with).
type Querier struct {
	cache   *Cache
	command string
}

func NewQuerier(cache *Cache, command string) *Querier {
	return &Querier{cache: cache, command: command}
}

func (q *Querier) Command() string { return q.command }

func (q *Querier) Status(treeOid plumbing.Hash, command string) (passed, failed, fixable, found bool) {
	res, ok, err := q.cache.Read(treeOid, command)
	if err != nil || !ok {
		return false, false, false, false
	}
	passed = res.ExitCode == 0
	failed = !passed
	fixable = passed && !res.FixedTreeOid.IsZero()
	return passed, failed, fixable, true
}
