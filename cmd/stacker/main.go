// Command stacker is the CLI surface over this module's workflow layer:
// move/restack/hide/unhide drive the rewrite engine (pkg/rewrite), test
// drives the parallel test runner (pkg/testrunner), and query evaluates a
// revset (pkg/revset) against the commit DAG and event log.
//
// The argument parser is deliberately minimal (spec.md's Non-goals name
// the CLI collaborator out of scope): each subcommand gets its own
// flag.FlagSet and delegates straight into the relevant core package,
// following the same porcelain/plumbing split as the rest of this module
// rather than adopting a command-framework dependency for a handful of
// flat verbs.
package main

import (
	"errors"
	"fmt"
	"os"
)

// errExit carries a specific process exit code past the normal error path
// (spec.md §6: 0 success, 1 user-visible failure, 127 forwarded from a
// test-command abort).
type errExit struct {
	code int
	err  error
}

func (e errExit) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit %d", e.code)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: stacker <move|restack|hide|unhide|test|query> [flags]")
		return 1
	}

	dir, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cmd, rest := args[0], args[1:]
	var cmdErr error
	switch cmd {
	case "move":
		cmdErr = cmdMove(dir, rest)
	case "restack":
		cmdErr = cmdRestack(dir, rest)
	case "hide":
		cmdErr = cmdHide(dir, rest)
	case "unhide":
		cmdErr = cmdUnhide(dir, rest)
	case "test":
		cmdErr = cmdTest(dir, rest)
	case "query":
		cmdErr = cmdQuery(dir, rest)
	default:
		fmt.Fprintf(os.Stderr, "stacker: unknown command %q\n", cmd)
		return 1
	}

	if cmdErr == nil {
		return 0
	}
	var ee errExit
	if errors.As(cmdErr, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, cmdErr)
	return 1
}
