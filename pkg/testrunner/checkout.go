package testrunner

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/corerr"
	"github.com/vcsflow/stacker/pkg/store"
)

// materialize writes every blob in treeOid's flattened tree to dir,
// replacing whatever was there. Used by both the WorkingCopy strategy
// (checkout in place) and the Worktree strategy (checkout into a scratch
// directory).
func materialize(s store.ObjectStore, treeOid plumbing.Hash, dir string) error {
	flat, err := store.Flatten(s, treeOid, "")
	if err != nil {
		return &corerr.ErrCheckoutFailed{Oid: treeOid, Err: err}
	}
	if err := os.RemoveAll(dir); err != nil {
		return &corerr.ErrCheckoutFailed{Oid: treeOid, Err: err}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &corerr.ErrCheckoutFailed{Oid: treeOid, Err: err}
	}
	for path, entry := range flat {
		full := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return &corerr.ErrCheckoutFailed{Oid: treeOid, Err: err}
		}
		data, err := s.ReadBlob(entry.Oid)
		if err != nil {
			return &corerr.ErrCheckoutFailed{Oid: treeOid, Err: err}
		}
		mode := os.FileMode(0o644)
		if entry.Mode == store.ModeExec {
			mode = 0o755
		}
		if err := os.WriteFile(full, data, mode); err != nil {
			return &corerr.ErrCheckoutFailed{Oid: treeOid, Err: err}
		}
	}
	return nil
}

// snapshotWorkingTree reads every regular file under dir back into the
// store as blobs and rebuilds a tree object from them, used by the fix
// feedback loop to capture what a passing test command changed on disk.
func snapshotWorkingTree(s store.ObjectStore, dir string) (plumbing.Hash, error) {
	flat := make(map[string]store.TreeEntry)
	err := filepath.WalkDir(dir, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return err
		}
		oid, err := s.CreateBlob(data)
		if err != nil {
			return err
		}
		mode := store.ModeFile
		if info.Mode()&0o111 != 0 {
			mode = store.ModeExec
		}
		flat[rel] = store.TreeEntry{Name: rel, Mode: mode, Oid: oid}
		return nil
	})
	if err != nil {
		return plumbing.ZeroHash, &corerr.ErrCheckoutFailed{Err: err}
	}
	return store.Build(s, flat)
}
