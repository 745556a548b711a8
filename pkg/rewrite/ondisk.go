package rewrite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/corerr"
	"github.com/vcsflow/stacker/pkg/store"
)

const rebaseStateDir = "rebase-merge"

// onDiskState is the rebase state directory's metadata file, ported from
// pkg/zeta/worktree_rebase.go's RebaseMD: same TOML encode/decode pattern,
// generalized from one linear diff to an arbitrary Cmd todo list.
type onDiskState struct {
	HeadName        string                   `toml:"head_name"`
	Onto            plumbing.Hash            `toml:"onto"`
	OrigHead        plumbing.Hash            `toml:"orig_head"`
	CdateIsADate    bool                     `toml:"cdate_is_adate"`
	CurrentOid      plumbing.Hash            `toml:"current_oid"`
	Cursor          int                      `toml:"cursor"`
	Labels          map[string]plumbing.Hash `toml:"labels"`
	PendingConflict *onDiskConflict          `toml:"pending_conflict,omitempty"`
}

type onDiskConflict struct {
	Orig  plumbing.Hash `toml:"orig"`
	Paths []string      `toml:"paths"`
}

func stateFile(metaDir string) string    { return filepath.Join(metaDir, rebaseStateDir, "state.toml") }
func todoFile(metaDir string) string     { return filepath.Join(metaDir, rebaseStateDir, "todo") }
func origHeadFile(metaDir string) string { return filepath.Join(metaDir, "ORIG_HEAD") }

// InProgress reports whether an on-disk rebase is currently underway.
func InProgress(metaDir string) bool {
	_, err := os.Stat(stateFile(metaDir))
	return err == nil
}

// formatTodo renders a plan's commands as the textual todo list spec.md §4.5
// describes (one line per Cmd).
func formatTodo(plan *Plan) string {
	var b strings.Builder
	for _, c := range plan.Cmds {
		switch c.Kind {
		case CmdCreateLabel:
			fmt.Fprintf(&b, "label %s\n", c.Label)
		case CmdResetToLabel:
			fmt.Fprintf(&b, "reset %s\n", c.Label)
		case CmdResetToOid:
			fmt.Fprintf(&b, "reset %s\n", c.Oid)
		case CmdPick:
			if c.Reparent {
				fmt.Fprintf(&b, "reparent %s\n", c.Orig)
			} else {
				fmt.Fprintf(&b, "pick %s\n", c.Orig)
			}
		case CmdMerge:
			fmt.Fprintf(&b, "merge %s\n", c.Orig)
		case CmdDetectEmptyCommit:
			fmt.Fprintf(&b, "fixup %s\n", c.Orig)
		case CmdRegisterExtraPostRewriteHook:
			b.WriteString("exec\n")
		}
	}
	return b.String()
}

// ExecuteOnDisk runs plan starting at cursor 0, persisting a rebase state
// directory so a conflict leaves the user resumable (spec.md §4.5 steps
// 1-5). metaDir is the repo's metadata directory (where "rebase-merge/" and
// "ORIG_HEAD" live).
func ExecuteOnDisk(s store.ObjectStore, metaDir string, plan *Plan, headName string, origHead plumbing.Hash, opts ExecutorOptions) (*Result, error) {
	if InProgress(metaDir) {
		return nil, corerr.ErrOperationInProgress
	}
	if err := os.MkdirAll(filepath.Join(metaDir, rebaseStateDir), 0o755); err != nil {
		return nil, err
	}
	st := &onDiskState{
		HeadName:     headName,
		Onto:         plan.FirstDestOid,
		OrigHead:     origHead,
		CdateIsADate: opts.PreserveTimestamps,
		CurrentOid:   plumbing.ZeroHash,
		Cursor:       0,
		Labels:       map[string]plumbing.Hash{},
	}
	if err := os.WriteFile(todoFile(metaDir), []byte(formatTodo(plan)), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(origHeadFile(metaDir), []byte(origHead.String()), 0o644); err != nil {
		return nil, err
	}
	if err := writeState(metaDir, st); err != nil {
		return nil, err
	}
	return resumeOnDisk(s, metaDir, plan, st, opts)
}

// ContinueOnDisk resumes an in-progress on-disk rebase after the user has
// resolved a conflict by writing a new index.
func ContinueOnDisk(s store.ObjectStore, metaDir string, plan *Plan, resolvedIndex *store.Index, opts ExecutorOptions) (*Result, error) {
	st, err := readState(metaDir)
	if err != nil {
		return nil, err
	}
	if st.PendingConflict == nil {
		return nil, fmt.Errorf("rewrite: no pending conflict to continue from")
	}
	treeOid, err := s.WriteIndexAsTree(resolvedIndex)
	if err != nil {
		return nil, err
	}
	orig, err := s.FindCommit(st.PendingConflict.Orig)
	if err != nil {
		return nil, err
	}
	committer := orig.Committer
	if !st.CdateIsADate {
		committer.When = opts.Now
	}
	newOid, err := s.CreateCommit(orig.Author, committer, orig.Message, treeOid, []plumbing.Hash{st.CurrentOid})
	if err != nil {
		return nil, err
	}
	st.CurrentOid = newOid
	st.Cursor++
	st.PendingConflict = nil
	if err := writeState(metaDir, st); err != nil {
		return nil, err
	}
	return resumeOnDisk(s, metaDir, plan, st, opts)
}

// StartAbortTrap establishes a one-step on-disk rebase state whose only
// command is a no-op break, used by C7's WorkingCopy strategy to occupy the
// "operation in progress" slot while tests run against the live working
// tree: any interruption leaves the rebase-merge/ directory behind, exactly
// like a real interrupted rebase, recoverable with the host VCS's abort
// command (spec.md §4.7's WorkingCopy strategy note).
func StartAbortTrap(metaDir, headName string, origHead plumbing.Hash) error {
	if InProgress(metaDir) {
		return corerr.ErrOperationInProgress
	}
	if err := os.MkdirAll(filepath.Join(metaDir, rebaseStateDir), 0o755); err != nil {
		return err
	}
	st := &onDiskState{
		HeadName:   headName,
		OrigHead:   origHead,
		CurrentOid: origHead,
		Labels:     map[string]plumbing.Hash{},
	}
	if err := os.WriteFile(todoFile(metaDir), []byte("break\n"), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(origHeadFile(metaDir), []byte(origHead.String()), 0o644); err != nil {
		return err
	}
	return writeState(metaDir, st)
}

// EndAbortTrap releases the state StartAbortTrap established.
func EndAbortTrap(metaDir string) error {
	if err := os.RemoveAll(filepath.Join(metaDir, rebaseStateDir)); err != nil {
		return err
	}
	return os.Remove(origHeadFile(metaDir))
}

// AbortOnDisk discards rebase state and reports the oid the caller should
// reset to (the original HEAD).
func AbortOnDisk(metaDir string) (plumbing.Hash, error) {
	st, err := readState(metaDir)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	orig := st.OrigHead
	_ = os.RemoveAll(filepath.Join(metaDir, rebaseStateDir))
	_ = os.Remove(origHeadFile(metaDir))
	return orig, nil
}

func resumeOnDisk(s store.ObjectStore, metaDir string, plan *Plan, st *onDiskState, opts ExecutorOptions) (*Result, error) {
	rewrites := make(RewriteMap)
	var pendingHooks []Cmd

	for st.Cursor < len(plan.Cmds) {
		cmd := plan.Cmds[st.Cursor]
		switch cmd.Kind {
		case CmdCreateLabel:
			st.Labels[cmd.Label] = st.CurrentOid
		case CmdResetToLabel:
			st.CurrentOid = st.Labels[cmd.Label]
		case CmdResetToOid:
			st.CurrentOid = cmd.Oid

		case CmdPick, CmdMerge:
			orig, err := s.FindCommit(cmd.Orig)
			if err != nil {
				return nil, err
			}
			var parents []plumbing.Hash
			if cmd.Kind == CmdMerge {
				parents = resolveMergeParents(orig, cmd.MergeParentLabels, st.Labels)
				if parents == nil {
					return nil, &corerr.ErrAmbiguousMergeParent{Commit: cmd.Orig}
				}
			} else {
				parents = []plumbing.Hash{st.CurrentOid}
			}
			current, err := s.FindCommit(st.CurrentOid)
			if err != nil {
				return nil, err
			}

			var newTree plumbing.Hash
			if cmd.Reparent {
				newTree = orig.TreeOid
			} else {
				newTree, err = s.CherryPickFast(orig, current, store.CherryPickOptions{ReuseParentTreeIfPossible: true})
				if err != nil {
					if conflict := asMergeConflict(err); conflict != nil {
						st.PendingConflict = &onDiskConflict{Orig: cmd.Orig, Paths: conflict}
						if werr := writeState(metaDir, st); werr != nil {
							return nil, werr
						}
						return nil, err
					}
					return nil, err
				}
			}

			if len(orig.ParentOids) == 1 && newTree == current.TreeOid {
				rewrites[cmd.Orig] = plumbing.ZeroHash
				st.Cursor++
				if err := writeState(metaDir, st); err != nil {
					return nil, err
				}
				continue
			}

			committer := orig.Committer
			if !st.CdateIsADate {
				committer.When = opts.Now
			}
			newOid, err := s.CreateCommit(orig.Author, committer, orig.Message, newTree, parents)
			if err != nil {
				return nil, err
			}
			rewrites[cmd.Orig] = newOid
			st.CurrentOid = newOid

		case CmdDetectEmptyCommit:
			// no-op here: the preceding CmdPick/CmdMerge already compared
			// the new tree against its new parent's tree and mapped
			// cmd.Orig to plumbing.ZeroHash if they matched.

		case CmdRegisterExtraPostRewriteHook:
			pendingHooks = append(pendingHooks, cmd)
		}
		st.Cursor++
		if err := writeState(metaDir, st); err != nil {
			return nil, err
		}
	}

	_ = os.RemoveAll(filepath.Join(metaDir, rebaseStateDir))
	_ = os.Remove(origHeadFile(metaDir))
	return &Result{RewriteMap: rewrites, ExtraHooksPending: pendingHooks}, nil
}

// resolveMergeParents maps a merge commit's original parents onto their
// rewritten positions. A parent absent from byParent was never touched by
// this rebase (external to the moved range) and keeps its original oid; a
// parent present in byParent but missing its label is a genuine ambiguity.
func resolveMergeParents(orig *store.Commit, byParent map[plumbing.Hash]string, labels map[string]plumbing.Hash) []plumbing.Hash {
	parents := make([]plumbing.Hash, 0, len(orig.ParentOids))
	for _, p := range orig.ParentOids {
		label, ok := byParent[p]
		if !ok {
			parents = append(parents, p)
			continue
		}
		oid, ok := labels[label]
		if !ok {
			return nil
		}
		parents = append(parents, oid)
	}
	return parents
}

func asMergeConflict(err error) []string {
	var c *corerr.ErrMergeConflict
	if errors.As(err, &c) {
		return c.Paths
	}
	return nil
}

func writeState(metaDir string, st *onDiskState) error {
	f, err := os.Create(stateFile(metaDir))
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(st)
}

func readState(metaDir string) (*onDiskState, error) {
	var st onDiskState
	if _, err := toml.DecodeFile(stateFile(metaDir), &st); err != nil {
		return nil, err
	}
	if st.Labels == nil {
		st.Labels = map[string]plumbing.Hash{}
	}
	return &st, nil
}
