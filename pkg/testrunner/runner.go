package testrunner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/vcsflow/stacker/modules/command"
	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/corerr"
	"github.com/vcsflow/stacker/pkg/rewrite"
	"github.com/vcsflow/stacker/pkg/store"
)

// Strategy selects how a commit's tree is made available to the test
// command (spec.md §4.7).
type Strategy int

const (
	StrategyWorkingCopy Strategy = iota
	StrategyWorktree
)

var errWorkingCopyNeedsSingleJob = errors.New("testrunner: the working-copy strategy requires jobs=1")

// Options tunes one Run call.
type Options struct {
	Command  string
	Strategy Strategy
	Jobs     int
	Fix      bool
	NoCache  bool
	Verbose  bool

	// MetaDir is the repo's metadata directory, parent of branchless/ and
	// rebase-merge/.
	MetaDir string
	// WorkDir is the live working tree (WorkingCopy strategy only).
	WorkDir string
}

// CommitResult is one commit's outcome.
type CommitResult struct {
	Commit plumbing.Hash
	Tree   plumbing.Hash
	Status Status
	Result *Result
	Err    error
}

// Summary aggregates a completed Run.
type Summary struct {
	Passed, Failed, Skipped, AlreadyInProgress int
	Results                                    []CommitResult
}

// Run executes opts.Command against every commit in commits (already
// ordered by the caller, e.g. via dag.Graph.SortedTopologically) using up
// to opts.Jobs parallel workers, per spec.md §4.7/§5. Exit code 127 from
// any commit aborts the rest of the run (the command itself is missing or
// unusable, not a per-commit failure).
func Run(ctx context.Context, s store.ObjectStore, commits []plumbing.Hash, opts Options) (*Summary, error) {
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	if opts.Strategy == StrategyWorkingCopy && opts.Jobs != 1 {
		return nil, errWorkingCopyNeedsSingleJob
	}

	cache := NewCache(opts.MetaDir)

	if opts.Strategy == StrategyWorkingCopy {
		head, err := s.HeadInfo()
		if err != nil {
			return nil, err
		}
		headName := "detached HEAD"
		if head.Symbolic != "" {
			headName = string(head.Symbolic)
		}
		if err := rewrite.StartAbortTrap(opts.MetaDir, headName, head.Oid); err != nil {
			return nil, err
		}
		defer func() { _ = rewrite.EndAbortTrap(opts.MetaDir) }()
	}

	var worktreeRoot string
	if opts.Strategy == StrategyWorktree {
		worktreeRoot = filepath.Join(opts.MetaDir, "branchless", "worktrees")
	}

	var bar *mpb.Progress
	var pbar *mpb.Bar
	if opts.Verbose {
		bar = mpb.New(mpb.WithOutput(os.Stderr))
		pbar = bar.New(int64(len(commits)),
			mpb.BarStyle().Filler("#").Padding(" "),
			mpb.PrependDecorators(decor.Name("test ")),
			mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
		)
	}

	type workItem struct {
		idx    int
		commit plumbing.Hash
	}
	work := make(chan workItem)
	results := make([]CommitResult, len(commits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Jobs + 1) // the workers plus the feeder goroutine below

	var mu sync.Mutex
	aborted := false

	for worker := 0; worker < opts.Jobs; worker++ {
		workerID := worker
		g.Go(func() error {
			for item := range work {
				mu.Lock()
				stop := aborted
				mu.Unlock()
				if stop {
					continue
				}

				cr := runOne(gctx, s, cache, item.commit, workerID, worktreeRoot, opts)
				results[item.idx] = cr
				if pbar != nil {
					pbar.Increment()
				}
				if cr.Result != nil && cr.Result.ExitCode == 127 {
					mu.Lock()
					aborted = true
					mu.Unlock()
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(work)
		for i, c := range commits {
			select {
			case work <- workItem{idx: i, commit: c}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if bar != nil {
		bar.Wait()
	}

	summary := &Summary{Results: results}
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			summary.Passed++
		case StatusFailed:
			summary.Failed++
		case StatusSkipped:
			summary.Skipped++
		case StatusAlreadyInProgress:
			summary.AlreadyInProgress++
		}
	}
	return summary, nil
}

// runOne performs the per-commit sequence of spec.md §4.7: lock, cache
// lookup, checkout, spawn, record, unlock.
func runOne(ctx context.Context, s store.ObjectStore, cache *Cache, commitOid plumbing.Hash, workerID int, worktreeRoot string, opts Options) CommitResult {
	commit, err := s.FindCommit(commitOid)
	if err != nil {
		return CommitResult{Commit: commitOid, Err: err}
	}
	treeOid := commit.TreeOid

	lock := newResultLock(cache.lockPath(treeOid, opts.Command))
	ok, err := lock.tryLock()
	if err != nil {
		return CommitResult{Commit: commitOid, Tree: treeOid, Err: err}
	}
	if !ok {
		return CommitResult{Commit: commitOid, Tree: treeOid, Status: StatusAlreadyInProgress}
	}
	defer lock.unlock()

	if !opts.NoCache {
		if cached, found, err := cache.Read(treeOid, opts.Command); err == nil && found {
			return CommitResult{Commit: commitOid, Tree: treeOid, Status: statusFromExitCode(cached.ExitCode), Result: cached}
		}
	}

	dir := opts.WorkDir
	if opts.Strategy == StrategyWorktree {
		dir = filepath.Join(worktreeRoot, "worktree-"+itoa(workerID))
	}
	if err := materialize(s, treeOid, dir); err != nil {
		return CommitResult{Commit: commitOid, Tree: treeOid, Err: err}
	}

	outPath := cache.stdoutPath(treeOid, opts.Command)
	errPath := cache.stderrPath(treeOid, opts.Command)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return CommitResult{Commit: commitOid, Tree: treeOid, Err: err}
	}
	outFile, err := os.Create(outPath)
	if err != nil {
		return CommitResult{Commit: commitOid, Tree: treeOid, Err: err}
	}
	defer outFile.Close()
	errFile, err := os.Create(errPath)
	if err != nil {
		return CommitResult{Commit: commitOid, Tree: treeOid, Err: err}
	}
	defer errFile.Close()

	exitCode, spawnErr := spawn(ctx, dir, opts.Command, commitOid, outFile, errFile)
	if spawnErr != nil {
		return CommitResult{Commit: commitOid, Tree: treeOid, Err: spawnErr}
	}

	res := &Result{Command: opts.Command, ExitCode: exitCode}
	status := statusFromExitCode(exitCode)

	if opts.Fix && status == StatusPassed {
		newTree, err := snapshotWorkingTree(s, dir)
		if err == nil && newTree != treeOid {
			res.FixedTreeOid = newTree
		}
	}

	if werr := cache.Write(treeOid, opts.Command, res); werr != nil {
		return CommitResult{Commit: commitOid, Tree: treeOid, Status: status, Result: res, Err: werr}
	}
	return CommitResult{Commit: commitOid, Tree: treeOid, Status: status, Result: res}
}

func statusFromExitCode(code int) Status {
	switch {
	case code == 0:
		return StatusPassed
	case code == 125:
		return StatusSkipped
	default:
		return StatusFailed
	}
}

// spawn runs shellCommand in dir via modules/command, with
// BRANCHLESS_TEST_COMMIT/BRANCHLESS_TEST_COMMAND set (spec.md §4.7 step 4).
// A signal-terminated process surfaces as ErrTerminatedBySignal rather than
// a plain exit code, since no exit code exists to report.
func spawn(ctx context.Context, dir string, shellCommand string, commitOid plumbing.Hash, stdout, stderr io.Writer) (int, error) {
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		RepoPath: dir,
		Stdout:   stdout,
		Stderr:   stderr,
		ExtraEnv: []string{
			"BRANCHLESS_TEST_COMMIT=" + commitOid.String(),
			"BRANCHLESS_TEST_COMMAND=" + shellCommand,
		},
	}, "/bin/sh", "-c", shellCommand)

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 0, &corerr.ErrTerminatedBySignal{Signal: ws.Signal().String()}
		}
		return exitErr.ExitCode(), nil
	}
	return 0, &corerr.ErrSpawnTestFailed{Command: shellCommand, Err: err}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}
