package store

import (
	"path"
	"sort"
	"strings"

	"github.com/vcsflow/stacker/modules/plumbing"
)

// Flatten walks a tree recursively and returns a map from full slash-joined
// path to the leaf (file/symlink) entry it names. Directory entries never
// appear in the result; only blobs do.
func Flatten(s ObjectStore, treeOid plumbing.Hash, prefix string) (map[string]TreeEntry, error) {
	out := make(map[string]TreeEntry)
	if err := flattenInto(s, treeOid, prefix, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(s ObjectStore, treeOid plumbing.Hash, prefix string, out map[string]TreeEntry) error {
	if treeOid.IsZero() {
		return nil
	}
	t, err := s.FindTree(treeOid)
	if err != nil {
		return err
	}
	for _, e := range t.Entries {
		full := e.Name
		if prefix != "" {
			full = prefix + "/" + e.Name
		}
		if e.Mode.IsDir() {
			if err := flattenInto(s, e.Oid, full, out); err != nil {
				return err
			}
			continue
		}
		out[full] = TreeEntry{Name: full, Mode: e.Mode, Oid: e.Oid}
	}
	return nil
}

// Build reconstructs a tree hierarchy from a flat path -> entry map and
// writes every intermediate tree object, returning the root tree's oid. An
// empty flat map yields the oid of the empty tree.
func Build(s ObjectStore, flat map[string]TreeEntry) (plumbing.Hash, error) {
	return buildLevel(s, flat, "")
}

func buildLevel(s ObjectStore, flat map[string]TreeEntry, prefix string) (plumbing.Hash, error) {
	children := make(map[string]bool)
	var entries []TreeEntry
	for full, e := range flat {
		rel := full
		if prefix != "" {
			if !strings.HasPrefix(full, prefix+"/") {
				continue
			}
			rel = full[len(prefix)+1:]
		}
		if slash := strings.IndexByte(rel, '/'); slash != -1 {
			children[rel[:slash]] = true
			continue
		}
		entries = append(entries, TreeEntry{Name: rel, Mode: e.Mode, Oid: e.Oid})
	}
	childNames := make([]string, 0, len(children))
	for c := range children {
		childNames = append(childNames, c)
	}
	sort.Strings(childNames)
	for _, c := range childNames {
		childPrefix := c
		if prefix != "" {
			childPrefix = path.Join(prefix, c)
		}
		oid, err := buildLevel(s, flat, childPrefix)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, TreeEntry{Name: c, Mode: ModeDir, Oid: oid})
	}
	return s.WriteTree(NewTree(entries))
}
