package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/vcsflow/stacker/pkg/rewrite"
)

// cmdRestack implements `restack`: repeatedly rebases one abandoned commit
// onto its rewrite target until a fixed point, reporting "no more
// abandoned commits" idempotently (spec.md §6's restack row).
func cmdRestack(dir string, args []string) error {
	fs := flag.NewFlagSet("restack", flag.ContinueOnError)
	preserveTimestamps := fs.Bool("preserve-timestamps", true, "keep original author/committer timestamps")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := openRepo(dir)
	if err != nil {
		return err
	}
	defer r.Close()

	universe, err := r.universeAll()
	if err != nil {
		return err
	}

	res, err := rewrite.Restack(r.s, r.log, r.g, universe, rewrite.RestackOptions{
		TransactionID:      transactionID("restack"),
		Now:                time.Now(),
		PreserveTimestamps: *preserveTimestamps,
		MetaDir:            r.dir,
	})
	if err != nil {
		return err
	}
	if res.NoOp {
		fmt.Println("restack: no more abandoned commits")
		return nil
	}
	fmt.Printf("restack: restacked %d commit(s)\n", res.RestackedCount)
	return nil
}
