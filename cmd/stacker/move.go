package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/vcsflow/stacker/pkg/corerr"
	"github.com/vcsflow/stacker/pkg/rewrite"
)

// cmdMove implements `move`: build a C4 plan from {source, dest, mode} and
// run it in-memory (on-disk instead when --on-disk is given; with --merge,
// an in-memory conflict or merge commit is retried once on-disk), then
// C6-fixup refs/HEAD/events (spec.md §6's move row).
func cmdMove(dir string, args []string) error {
	fs := flag.NewFlagSet("move", flag.ContinueOnError)
	var (
		source  = fs.String("source", "", "source revset (alias -s)")
		dest    = fs.String("dest", "", "destination oid (alias -d)")
		base    = fs.String("base", "", "base oid, synonym for --dest under ModeBase (alias -b)")
		exact   = fs.Bool("exact", false, "exact-range mode (alias -x)")
		insert  = fs.Bool("insert", false, "insert mode")
		fixup   = fs.Bool("fixup", false, "fixup mode")
		reparent = fs.Bool("reparent", false, "reparent mode")
		onDisk  = fs.Bool("on-disk", false, "force the on-disk rebase driver")
		merge   = fs.Bool("merge", false, "retry on-disk once on an in-memory merge conflict")
		forcePublic = fs.Bool("force-rewrite-public", false, "allow rewriting public commits")
		dumpPlan = fs.Bool("debug-dump-rebase-plan", false, "print the linearized plan before executing")
		dumpConstraints = fs.Bool("debug-dump-rebase-constraints", false, "print the constraint graph before linearizing")
	)
	fs.StringVar(source, "s", "", "shorthand for --source")
	fs.StringVar(dest, "d", "", "shorthand for --dest")
	fs.StringVar(base, "b", "", "shorthand for --base")
	fs.BoolVar(exact, "x", false, "shorthand for --exact")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *source == "" {
		return fmt.Errorf("move: --source is required")
	}
	destStr := *dest
	mode := rewrite.ModeSubtree
	switch {
	case *base != "":
		destStr = *base
		mode = rewrite.ModeBase
	case *exact:
		mode = rewrite.ModeExactRange
	case *insert:
		mode = rewrite.ModeInsert
	case *fixup:
		mode = rewrite.ModeFixup
	case *reparent:
		mode = rewrite.ModeReparent
	}
	if destStr == "" {
		return fmt.Errorf("move: --dest (or --base) is required")
	}

	r, err := openRepo(dir)
	if err != nil {
		return err
	}
	defer r.Close()

	sources, err := resolveRevset(r, *source, "")
	if err != nil {
		return err
	}
	destOid, err := parseHash(destStr)
	if err != nil {
		return err
	}
	universe, err := r.universeAll()
	if err != nil {
		return err
	}

	planOpts := r.cfg.Rebase.PlanOptions()
	if *forcePublic {
		planOpts.ForceRewritePublic = true
	}
	planOpts.DumpPlan = *dumpPlan
	planOpts.DumpConstraints = *dumpConstraints
	planOpts.ResolveMergeConflicts = *merge

	plan, err := rewrite.BuildPlan(r.g, []rewrite.MoveRequest{{
		Sources: sources.Slice(),
		Dest:    destOid,
		Mode:    mode,
	}}, universe, planOpts)
	if err != nil {
		return err
	}
	if plan == nil {
		fmt.Println("move: nothing to do")
		return nil
	}

	head, err := r.s.HeadInfo()
	if err != nil {
		return err
	}

	headName := ""
	if head.Symbolic != "" {
		headName = head.Symbolic.String()
	}
	execOpts := rewrite.ExecutorOptions{Now: time.Now(), PreserveTimestamps: true}
	var res *rewrite.Result
	if *onDisk {
		res, err = rewrite.ExecuteOnDisk(r.s, r.dir, plan, headName, head.Oid, execOpts)
	} else {
		res, err = rewrite.ExecuteInMemory(r.s, plan, execOpts)
		if err != nil && *merge && (corerr.IsMergeConflict(err) || corerr.IsCannotRebaseMergeCommitInMemory(err)) {
			fmt.Println("move: in-memory conflict, retrying on-disk")
			res, err = rewrite.ExecuteOnDisk(r.s, r.dir, plan, headName, head.Oid, execOpts)
		}
	}
	if err != nil {
		return err
	}

	headBranch := head.Symbolic
	fixupOut, err := rewrite.Fixup(r.s, res.RewriteMap, head.Oid, headBranch, rewrite.FixupOptions{
		TransactionID: transactionID("move"),
		Now:           time.Now(),
	})
	if err != nil {
		return err
	}
	if err := r.log.Append(fixupOut.Events); err != nil {
		return err
	}

	fmt.Printf("move: rewrote %d commit(s)\n", len(res.RewriteMap))
	return nil
}
