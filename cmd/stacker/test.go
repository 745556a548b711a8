package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/vcsflow/stacker/pkg/rewrite"
	"github.com/vcsflow/stacker/pkg/testrunner"
)

// cmdTest dispatches the `test run|show|fix|clean` subcommands (spec.md
// §6's test row), all rooted at <repo>/branchless/test/.
func cmdTest(dir string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("test: a subcommand (run|show|fix|clean) is required")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "run":
		return cmdTestRun(dir, rest)
	case "show":
		return cmdTestShow(dir, rest)
	case "fix":
		return cmdTestFix(dir, rest)
	case "clean":
		return cmdTestClean(dir, rest)
	default:
		return fmt.Errorf("test: unknown subcommand %q", sub)
	}
}

func testOptions(fs *flag.FlagSet) (command *string, strategy *string, jobs *int, noCache, verbose, fix *bool) {
	command = fs.String("command", "", "shell command to run against each commit")
	strategy = fs.String("strategy", "", "working-copy or worktree (defaults to repo config)")
	jobs = fs.Int("jobs", 0, "worker count (defaults to repo config; working-copy requires 1)")
	noCache = fs.Bool("no-cache", false, "ignore the result cache")
	verbose = fs.Bool("verbose", false, "show a progress bar")
	fix = fs.Bool("fix", false, "record the working tree of each Passed run in the cache as a fixed tree")
	fs.StringVar(command, "x", "", "shorthand for --command")
	return
}

func resolveOptions(r *repo, commandFlag, strategyFlag string, jobsFlag int, noCache, verbose, fix bool) testrunner.Options {
	strat := r.cfg.Test.Strategy()
	if strategyFlag == "working-copy" {
		strat = testrunner.StrategyWorkingCopy
	} else if strategyFlag == "worktree" {
		strat = testrunner.StrategyWorktree
	}
	jobs := r.cfg.Test.DefaultJobs
	if jobsFlag > 0 {
		jobs = jobsFlag
	}
	return testrunner.Options{
		Command:  commandFlag,
		Strategy: strat,
		Jobs:     jobs,
		Fix:      fix,
		NoCache:  noCache,
		Verbose:  verbose,
		MetaDir:  r.dir,
		WorkDir:  r.dir,
	}
}

func cmdTestRun(dir string, args []string) error {
	fs := flag.NewFlagSet("test run", flag.ContinueOnError)
	revsetExpr := fs.String("revset", "", "commits to test")
	commandFlag, strategyFlag, jobsFlag, noCache, verbose, fix := testOptions(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *revsetExpr == "" || *commandFlag == "" {
		return fmt.Errorf("test run: --revset and --command are required")
	}

	r, err := openRepo(dir)
	if err != nil {
		return err
	}
	defer r.Close()

	set, err := resolveRevset(r, *revsetExpr, "")
	if err != nil {
		return err
	}
	commits := set.Slice()

	opts := resolveOptions(r, *commandFlag, *strategyFlag, *jobsFlag, *noCache, *verbose, *fix)
	summary, err := testrunner.Run(context.Background(), r.s, commits, opts)
	if err != nil {
		return err
	}

	fmt.Printf("test run: %d passed, %d failed, %d skipped, %d already-in-progress\n",
		summary.Passed, summary.Failed, summary.Skipped, summary.AlreadyInProgress)
	if *fix {
		fmt.Println("test run: --fix recorded fixed trees in the cache; run `test fix` to fold them into new commits")
	}
	if summary.Failed > 0 {
		return errExit{code: 1}
	}
	return nil
}

func cmdTestShow(dir string, args []string) error {
	fs := flag.NewFlagSet("test show", flag.ContinueOnError)
	revsetExpr := fs.String("revset", "", "commits to show")
	commandFlag := fs.String("command", "", "command whose cached result to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *revsetExpr == "" || *commandFlag == "" {
		return fmt.Errorf("test show: --revset and --command are required")
	}

	r, err := openRepo(dir)
	if err != nil {
		return err
	}
	defer r.Close()

	set, err := resolveRevset(r, *revsetExpr, "")
	if err != nil {
		return err
	}
	cache := testrunner.NewCache(r.dir)
	for _, oid := range set.Slice() {
		commit, err := r.s.FindCommit(oid)
		if err != nil {
			return err
		}
		res, found, err := cache.Read(commit.TreeOid, *commandFlag)
		if err != nil {
			fmt.Printf("%s: error reading cache: %v\n", oid, err)
			continue
		}
		if !found {
			fmt.Printf("%s: no cached result\n", oid)
			continue
		}
		fmt.Printf("%s: exit=%d fixed_tree=%s\n", oid, res.ExitCode, res.FixedTreeOid)
	}
	return nil
}

func cmdTestFix(dir string, args []string) error {
	fs := flag.NewFlagSet("test fix", flag.ContinueOnError)
	revsetExpr := fs.String("revset", "", "commits to fix")
	commandFlag, strategyFlag, jobsFlag, noCache, verbose, _ := testOptions(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *revsetExpr == "" || *commandFlag == "" {
		return fmt.Errorf("test fix: --revset and --command are required")
	}

	r, err := openRepo(dir)
	if err != nil {
		return err
	}
	defer r.Close()

	set, err := resolveRevset(r, *revsetExpr, "")
	if err != nil {
		return err
	}
	commits := set.Slice()

	opts := resolveOptions(r, *commandFlag, *strategyFlag, *jobsFlag, *noCache, *verbose, true)
	summary, err := testrunner.Run(context.Background(), r.s, commits, opts)
	if err != nil {
		return err
	}

	universe, err := r.universeAll()
	if err != nil {
		return err
	}
	fixRes, err := testrunner.Fix(r.s, r.g, universe, summary.Results, r.cfg.Rebase.PlanOptions(), rewrite.ExecutorOptions{})
	if err != nil {
		return err
	}

	head, err := r.s.HeadInfo()
	if err != nil {
		return err
	}
	fixupOut, err := rewrite.Fixup(r.s, fixRes.RewriteMap, head.Oid, head.Symbolic, rewrite.FixupOptions{
		TransactionID: transactionID("test-fix"),
	})
	if err != nil {
		return err
	}
	if err := r.log.Append(fixupOut.Events); err != nil {
		return err
	}

	fmt.Printf("test fix: rewrote %d commit(s)\n", len(fixRes.RewriteMap))
	return nil
}

func cmdTestClean(dir string, args []string) error {
	r, err := openRepo(dir)
	if err != nil {
		return err
	}
	defer r.Close()
	return testrunner.NewCache(r.dir).Clean()
}
