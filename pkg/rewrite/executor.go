package rewrite

import (
	"time"

	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/corerr"
	"github.com/vcsflow/stacker/pkg/store"
)

// ExecutorOptions tunes in-memory execution.
type ExecutorOptions struct {
	PreserveTimestamps bool
	Now                time.Time
}

// RewriteMap maps each rewritten original oid to its replacement, or to the
// zero oid if the commit was dropped (spec.md §4.6).
type RewriteMap map[plumbing.Hash]plumbing.Hash

// Result is the in-memory executor's outcome on success.
type Result struct {
	RewriteMap        RewriteMap
	ExtraHooksPending []Cmd
}

// ExecuteInMemory runs plan single-threaded and synchronously (spec.md
// §4.5). On a conflict or a merge commit it returns the error unwrapped so
// the caller can fall through to ExecuteOnDisk; since all output is
// accumulated in local variables, a returned error leaves no partial
// mutation behind.
func ExecuteInMemory(s store.ObjectStore, plan *Plan, opts ExecutorOptions) (*Result, error) {
	var currentOid plumbing.Hash
	labels := make(map[string]plumbing.Hash)
	rewrites := make(RewriteMap)
	var pendingHooks []Cmd

	for _, cmd := range plan.Cmds {
		switch cmd.Kind {
		case CmdCreateLabel:
			labels[cmd.Label] = currentOid
		case CmdResetToLabel:
			v, ok := labels[cmd.Label]
			if !ok {
				return nil, &corerr.ErrCheckoutFailed{Oid: currentOid, Err: corerr.ErrObjectMissing}
			}
			currentOid = v
		case CmdResetToOid:
			currentOid = cmd.Oid

		case CmdPick:
			orig, err := s.FindCommit(cmd.Orig)
			if err != nil {
				return nil, err
			}
			current, err := s.FindCommit(currentOid)
			if err != nil {
				return nil, err
			}

			var newTree plumbing.Hash
			if cmd.Reparent {
				newTree = orig.TreeOid
			} else {
				newTree, err = s.CherryPickFast(orig, current, store.CherryPickOptions{ReuseParentTreeIfPossible: true})
				if err != nil {
					return nil, err
				}
			}

			committer := orig.Committer
			if !opts.PreserveTimestamps {
				committer.When = opts.Now
			}

			if len(orig.ParentOids) == 1 && newTree == current.TreeOid {
				rewrites[cmd.Orig] = plumbing.ZeroHash
				continue
			}

			newOid, err := s.CreateCommit(orig.Author, committer, orig.Message, newTree, []plumbing.Hash{currentOid})
			if err != nil {
				return nil, err
			}
			rewrites[cmd.Orig] = newOid
			currentOid = newOid

		case CmdMerge:
			return nil, &corerr.ErrCannotRebaseMergeCommitInMemory{Commit: cmd.Orig}

		case CmdDetectEmptyCommit:
			// no-op here: the preceding CmdPick already compared the new
			// tree against its new parent's tree and mapped cmd.Orig to
			// plumbing.ZeroHash if they matched.

		case CmdRegisterExtraPostRewriteHook:
			pendingHooks = append(pendingHooks, cmd)
		}
	}

	return &Result{RewriteMap: rewrites, ExtraHooksPending: pendingHooks}, nil
}
