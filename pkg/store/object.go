// Package store implements the ObjectStore adapter (spec component C1): a
// uniform facade over commits, trees, blobs and refs, plus the fast
// cherry-pick and fast amend primitives the rewrite engine depends on.
//
// Grounded on modules/zeta/object/commit.go (Commit/Signature shape and
// Encode/Decode pattern) and modules/zeta/backend/file_storer.go (sharded
// loose-object storage), both read during the survey and since removed
// from the workspace as too entangled with LFS/pack-file machinery this
// module doesn't need.
package store

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vcsflow/stacker/modules/plumbing"
)

// Mode is a tree entry's file mode, modeled after the handful of modes a
// content-addressed tree needs to distinguish.
type Mode uint32

const (
	ModeFile    Mode = 0o100644
	ModeExec    Mode = 0o100755
	ModeSymlink Mode = 0o120000
	ModeDir     Mode = 0o40000
)

func (m Mode) IsDir() bool { return m == ModeDir }

// Signature identifies an author or committer at a point in time.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), s.When.Format("-0700"))
}

// Decode parses the "Name <email> unixtime -0700" form written by String.
func (s *Signature) Decode(b []byte) {
	line := string(b)
	lt := strings.LastIndexByte(line, '<')
	gt := strings.LastIndexByte(line, '>')
	if lt == -1 || gt == -1 || gt < lt {
		return
	}
	s.Name = strings.TrimSpace(line[:lt])
	s.Email = line[lt+1 : gt]
	rest := strings.Fields(line[gt+1:])
	if len(rest) == 0 {
		return
	}
	unix, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return
	}
	s.When = time.Unix(unix, 0)
	if len(rest) > 1 {
		if loc, err := time.Parse("-0700", rest[1]); err == nil {
			s.When = s.When.In(loc.Location())
		}
	}
}

// Commit is the immutable tuple (oid, parent_oids[], tree_oid, author,
// committer, message) from spec.md §3. The Oid field is populated by the
// store on read/write; it is not part of the encoded payload.
type Commit struct {
	Oid       plumbing.Hash
	ParentOids []plumbing.Hash
	TreeOid   plumbing.Hash
	Author    Signature
	Committer Signature
	Message   string
}

// IsMerge reports whether the commit has two or more parents.
func (c *Commit) IsMerge() bool { return len(c.ParentOids) >= 2 }

// IsRoot reports whether the commit has no parents.
func (c *Commit) IsRoot() bool { return len(c.ParentOids) == 0 }

// IsEmpty reports whether the commit has exactly one parent whose tree
// equals this commit's tree.
func (c *Commit) IsEmpty(parentTreeOid plumbing.Hash) bool {
	return len(c.ParentOids) == 1 && c.TreeOid == parentTreeOid
}

// Less orders commits by committer time then oid, the tie-break spec.md
// §4.3 calls for in sorted_topologically.
func (c *Commit) Less(o *Commit) bool {
	if !c.Committer.When.Equal(o.Committer.When) {
		return c.Committer.When.Before(o.Committer.When)
	}
	return bytes.Compare(c.Oid[:], o.Oid[:]) < 0
}

func (c *Commit) encode() []byte {
	var b bytes.Buffer
	for _, p := range c.ParentOids {
		fmt.Fprintf(&b, "parent %s\n", p)
	}
	fmt.Fprintf(&b, "tree %s\n", c.TreeOid)
	fmt.Fprintf(&b, "author %s\n", c.Author)
	fmt.Fprintf(&b, "committer %s\n", c.Committer)
	b.WriteByte('\n')
	b.WriteString(c.Message)
	return b.Bytes()
}

func decodeCommit(oid plumbing.Hash, data []byte) (*Commit, error) {
	c := &Commit{Oid: oid}
	lines := bytes.SplitAfterN(data, []byte("\n\n"), 2)
	if len(lines) != 2 {
		return nil, fmt.Errorf("store: malformed commit %s: no message separator", oid)
	}
	header := string(bytes.TrimSuffix(lines[0], []byte("\n\n")))
	c.Message = string(lines[1])
	for _, line := range strings.Split(header, "\n") {
		if line == "" {
			continue
		}
		sp := strings.IndexByte(line, ' ')
		if sp == -1 {
			continue
		}
		key, val := line[:sp], line[sp+1:]
		switch key {
		case "parent":
			c.ParentOids = append(c.ParentOids, plumbing.NewHash(val))
		case "tree":
			c.TreeOid = plumbing.NewHash(val)
		case "author":
			c.Author.Decode([]byte(val))
		case "committer":
			c.Committer.Decode([]byte(val))
		}
	}
	return c, nil
}

// TreeEntry is one (name, mode, oid) record within a Tree.
type TreeEntry struct {
	Name string
	Mode Mode
	Oid  plumbing.Hash
}

// Tree maps path segments to (mode, oid). Entries are kept sorted by name
// so two trees with identical content encode identically.
type Tree struct {
	Entries []TreeEntry
}

func NewTree(entries []TreeEntry) *Tree {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return &Tree{Entries: entries}
}

func (t *Tree) Find(name string) (TreeEntry, bool) {
	i := sort.Search(len(t.Entries), func(i int) bool { return t.Entries[i].Name >= name })
	if i < len(t.Entries) && t.Entries[i].Name == name {
		return t.Entries[i], true
	}
	return TreeEntry{}, false
}

func (t *Tree) encode() []byte {
	var b bytes.Buffer
	for _, e := range t.Entries {
		fmt.Fprintf(&b, "%o %s\x00", e.Mode, e.Name)
		b.Write(e.Oid[:])
	}
	return b.Bytes()
}

func decodeTree(data []byte) (*Tree, error) {
	var entries []TreeEntry
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp == -1 {
			return nil, fmt.Errorf("store: malformed tree entry")
		}
		mode, err := strconv.ParseUint(string(data[:sp]), 8, 32)
		if err != nil {
			return nil, fmt.Errorf("store: malformed tree mode: %w", err)
		}
		data = data[sp+1:]
		nul := bytes.IndexByte(data, 0)
		if nul == -1 {
			return nil, fmt.Errorf("store: malformed tree entry: missing NUL")
		}
		name := string(data[:nul])
		data = data[nul+1:]
		if len(data) < plumbing.HASH_DIGEST_SIZE {
			return nil, fmt.Errorf("store: truncated tree entry oid")
		}
		var oid plumbing.Hash
		copy(oid[:], data[:plumbing.HASH_DIGEST_SIZE])
		data = data[plumbing.HASH_DIGEST_SIZE:]
		entries = append(entries, TreeEntry{Name: name, Mode: Mode(mode), Oid: oid})
	}
	return &Tree{Entries: entries}, nil
}

// Blob is an opaque byte sequence.
type Blob struct {
	Data []byte
}

// ConflictEntry records one conflicting path produced by a three-way merge,
// carrying the three sides that disagreed (any of which may be absent,
// meaning the path was added or deleted on that side).
type ConflictEntry struct {
	Path             string
	Ancestor, Ours, Theirs *TreeEntry
}

// Index is a flat path -> (mode, oid) mapping plus any unresolved
// conflicts, the in-memory working state fed to write_index_as_tree.
type Index struct {
	Entries   map[string]TreeEntry
	Conflicts []ConflictEntry
}

func NewIndex() *Index {
	return &Index{Entries: make(map[string]TreeEntry)}
}

func (idx *Index) HasConflicts() bool { return len(idx.Conflicts) > 0 }

// Paths returns the index's entry paths in sorted order.
func (idx *Index) Paths() []string {
	paths := make([]string, 0, len(idx.Entries))
	for p := range idx.Entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
