package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/dag"
	"github.com/vcsflow/stacker/pkg/eventlog"
	"github.com/vcsflow/stacker/pkg/repocfg"
	"github.com/vcsflow/stacker/pkg/revset"
	"github.com/vcsflow/stacker/pkg/store"
	"github.com/vcsflow/stacker/pkg/testrunner"
)

// repo bundles the per-invocation handles every command needs: the object
// store, the event log, a DAG view over the configured main branch, and
// the merged repo configuration. Commands open one of these, do their
// work, and close it on return.
type repo struct {
	dir  string
	cfg  *repocfg.Config
	s    *store.Local
	log  *eventlog.Log
	g    *dag.Graph
}

func openRepo(dir string) (*repo, error) {
	cfg, err := repocfg.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	s, err := store.NewLocal(dir)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "branchless"), 0o755); err != nil {
		return nil, err
	}
	l, err := eventlog.Open(filepath.Join(dir, "branchless", "db.sqlite3"))
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	g, err := dag.NewGraph(s, plumbing.NewBranchReferenceName(cfg.Core.MainBranch))
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("build dag: %w", err)
	}
	return &repo{dir: dir, cfg: cfg, s: s, log: l, g: g}, nil
}

func (r *repo) Close() error {
	return r.log.Close()
}

// testQuerier builds a revset.TestQuerier bound to command. Returns the
// nil interface value (not a typed nil pointer) when command is empty, so
// Context.Tests == nil checks in pkg/revset still work.
func (r *repo) testQuerier(command string) revset.TestQuerier {
	if command == "" {
		return nil
	}
	return testrunner.NewQuerier(testrunner.NewCache(r.dir), command)
}

// universeAll is every commit reachable from every branch tip, the widest
// set move/restack/query operate over absent a caller-supplied revset.
func (r *repo) universeAll() (dag.Set, error) {
	refsList, err := r.s.ListBranches()
	if err != nil {
		return nil, err
	}
	heads := make([]plumbing.Hash, 0, len(refsList))
	for _, ref := range refsList {
		heads = append(heads, ref.Hash())
	}
	return r.g.Ancestors(dag.NewSet(heads...))
}

func parseHash(s string) (plumbing.Hash, error) {
	h, err := plumbing.NewHashEx(s)
	if err != nil {
		return plumbing.Hash{}, fmt.Errorf("bad oid %q: %w", s, err)
	}
	return h, nil
}

func parseHashes(ss []string) ([]plumbing.Hash, error) {
	out := make([]plumbing.Hash, 0, len(ss))
	for _, s := range ss {
		h, err := parseHash(s)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
