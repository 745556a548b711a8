package store

import "github.com/vcsflow/stacker/modules/plumbing"

// amendFast recomputes parent's tree with new content supplied by src,
// sharing the dehydrate/hydrate frame with cherry-pick fast (spec.md §4.1:
// "Same dehydrate/hydrate frame; source of new blob content is one of:
// working-copy file reads at each status path; current index entries at
// given paths; or another commit's tree").
func amendFast(s ObjectStore, parent *Commit, src AmendSource) (plumbing.Hash, error) {
	switch src.Kind {
	case AmendFromCommit:
		source, err := s.FindCommit(src.Commit)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		return cherryPickFast(s, source, parent, CherryPickOptions{ReuseParentTreeIfPossible: true})
	case AmendFromIndex:
		return amendFromPaths(s, parent, src.Paths, func(path string) ([]byte, bool, error) {
			e, ok := src.Index.Entries[path]
			if !ok {
				return nil, false, nil
			}
			data, err := s.ReadBlob(e.Oid)
			return data, true, err
		})
	default: // AmendFromWorkingCopy
		return amendFromPaths(s, parent, src.Paths, src.ReadFile)
	}
}

func amendFromPaths(s ObjectStore, parent *Commit, paths []string, read func(string) ([]byte, bool, error)) (plumbing.Hash, error) {
	flat, err := Flatten(s, parent.TreeOid, "")
	if err != nil {
		return plumbing.ZeroHash, err
	}
	for _, p := range paths {
		data, exists, err := read(p)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if !exists {
			delete(flat, p)
			continue
		}
		mode := ModeFile
		if prev, ok := flat[p]; ok {
			mode = prev.Mode
		}
		oid, err := s.CreateBlob(data)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		flat[p] = TreeEntry{Name: p, Mode: mode, Oid: oid}
	}
	return Build(s, flat)
}
