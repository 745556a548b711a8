package main

import (
	"github.com/vcsflow/stacker/pkg/dag"
	"github.com/vcsflow/stacker/pkg/revset"
)

// resolveRevset parses and evaluates expr against r's current DAG and
// event-log replay state. testCommand wires the testrunner cache in so
// tests.passed()/tests.failed()/tests.fixable() resolve (spec.md §6's
// query row); leave it empty when the revset is known not to use those
// predicates.
func resolveRevset(r *repo, expr string, testCommand string) (dag.Set, error) {
	ast, err := revset.Parse(expr)
	if err != nil {
		return nil, err
	}
	replay, err := r.log.Replay(nil)
	if err != nil {
		return nil, err
	}
	ctx := &revset.Context{Graph: r.g, Replay: replay, Tests: r.testQuerier(testCommand)}
	return revset.Resolve(ctx, ast)
}
