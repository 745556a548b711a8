package main

import (
	"flag"
	"fmt"

	"github.com/vcsflow/stacker/modules/plumbing"
)

// cmdQuery implements `query <revset>` (spec.md §6's query row), printing
// every resolved oid one per line, sorted.
func cmdQuery(dir string, args []string) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	command := fs.String("command", "", "test command backing tests.passed()/failed()/fixable(), if used")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("query: a revset argument is required")
	}

	r, err := openRepo(dir)
	if err != nil {
		return err
	}
	defer r.Close()

	set, err := resolveRevset(r, fs.Arg(0), *command)
	if err != nil {
		return err
	}
	oids := set.Slice()
	plumbing.HashesSort(oids)
	for _, oid := range oids {
		fmt.Println(oid)
	}
	return nil
}
