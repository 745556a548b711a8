package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/dag"
	"github.com/vcsflow/stacker/pkg/eventlog"
)

// cmdHide and cmdUnhide append Hide/Unhide events for a revset; --recursive
// extends the target set to every visible descendant first (spec.md §6's
// hide/unhide row).
func cmdHide(dir string, args []string) error   { return hideOrUnhide(dir, args, "hide") }
func cmdUnhide(dir string, args []string) error { return hideOrUnhide(dir, args, "unhide") }

func hideOrUnhide(dir string, args []string, which string) error {
	fs := flag.NewFlagSet(which, flag.ContinueOnError)
	recursive := fs.Bool("recursive", false, "extend to every visible descendant")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%s: a revset argument is required", which)
	}

	r, err := openRepo(dir)
	if err != nil {
		return err
	}
	defer r.Close()

	targets, err := resolveRevset(r, fs.Arg(0), "")
	if err != nil {
		return err
	}

	if *recursive {
		universe, err := r.universeAll()
		if err != nil {
			return err
		}
		replay, err := r.log.Replay(nil)
		if err != nil {
			return err
		}
		desc, err := r.g.Descendants(targets, universe)
		if err != nil {
			return err
		}
		extended := dag.NewSet()
		for oid := range desc {
			if replay.CommitVisibility(oid) == eventlog.Visible {
				extended.Add(oid)
			}
		}
		for oid := range targets {
			extended.Add(oid)
		}
		targets = extended
	}

	txID := transactionID(which)
	now := time.Now()
	oids := targets.Slice()
	plumbing.HashesSort(oids)
	events := make([]eventlog.Event, 0, len(oids))
	for _, oid := range oids {
		if which == "hide" {
			events = append(events, eventlog.HideEvent(txID, now, oid))
		} else {
			events = append(events, eventlog.UnhideEvent(txID, now, oid))
		}
	}
	if err := r.log.Append(events); err != nil {
		return err
	}
	fmt.Printf("%s: %d commit(s)\n", which, len(events))
	return nil
}
