// Package dag implements the commit DAG and revset consumer (spec component
// C3): set algebra over the object store's commit graph, plus the two
// caches (public ancestors, active heads) every higher component queries
// instead of re-walking history.
//
// Grounded on modules/zeta/object/commit_walker_bfs.go and
// commit_walker_topo_order.go for the walking/ordering shape; the
// topological sort below ports that file's explorer-stack / visit-stack
// split onto github.com/emirpasic/gods's binaryheap, restricted to a
// caller-supplied commit set instead of a whole-history walk. The
// ancestor/active-heads caches use github.com/dgraph-io/ristretto/v2.
package dag

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/vcsflow/stacker/modules/plumbing"
	"github.com/vcsflow/stacker/pkg/eventlog"
	"github.com/vcsflow/stacker/pkg/store"
)

// Set is a materialized commit set, returned by every query below at
// snapshot time (spec.md §4.3: "resolve... returns a materialized set at
// snapshot time").
type Set map[plumbing.Hash]bool

func NewSet(oids ...plumbing.Hash) Set {
	s := make(Set, len(oids))
	for _, o := range oids {
		s[o] = true
	}
	return s
}

func (s Set) Add(oid plumbing.Hash)      { s[oid] = true }
func (s Set) Contains(oid plumbing.Hash) bool { return s[oid] }

func (s Set) Slice() []plumbing.Hash {
	out := make([]plumbing.Hash, 0, len(s))
	for o := range s {
		out = append(out, o)
	}
	return out
}

// Graph wraps an ObjectStore with the public/active-heads caches.
type Graph struct {
	Store   store.ObjectStore
	MainRef plumbing.ReferenceName

	ancestorCache *ristretto.Cache[string, Set]
}

// NewGraph constructs a Graph. mainRef names the branch whose ancestor set
// is "public" (spec.md §4.3).
func NewGraph(s store.ObjectStore, mainRef plumbing.ReferenceName) (*Graph, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, Set]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("dag: building ancestor cache: %w", err)
	}
	return &Graph{Store: s, MainRef: mainRef, ancestorCache: c}, nil
}

// Ancestors returns every commit reachable from set by following parent
// edges, inclusive of set itself.
func (g *Graph) Ancestors(set Set) (Set, error) {
	out := make(Set)
	queue := set.Slice()
	for _, o := range queue {
		out[o] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		c, err := g.Store.FindCommit(cur)
		if err != nil {
			return nil, err
		}
		for _, p := range c.ParentOids {
			if out[p] {
				continue
			}
			out[p] = true
			queue = append(queue, p)
		}
	}
	return out, nil
}

// Descendants returns every commit in universe that has some member of set
// as an ancestor, inclusive of set itself. universe bounds the search (in
// practice the active-heads ancestor set) since the store only exposes
// parent edges, not a forward child index.
func (g *Graph) Descendants(set Set, universe Set) (Set, error) {
	children := make(map[plumbing.Hash][]plumbing.Hash, len(universe))
	for o := range universe {
		c, err := g.Store.FindCommit(o)
		if err != nil {
			return nil, err
		}
		for _, p := range c.ParentOids {
			children[p] = append(children[p], o)
		}
	}
	out := make(Set)
	queue := set.Slice()
	for _, o := range queue {
		if universe[o] {
			out[o] = true
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ch := range children[cur] {
			if out[ch] {
				continue
			}
			out[ch] = true
			queue = append(queue, ch)
		}
	}
	return out, nil
}

// Only returns commits reachable from a but not from b (history set
// difference, spec.md §4.3).
func (g *Graph) Only(a, b plumbing.Hash) (Set, error) {
	aAnc, err := g.Ancestors(NewSet(a))
	if err != nil {
		return nil, err
	}
	bAnc, err := g.Ancestors(NewSet(b))
	if err != nil {
		return nil, err
	}
	out := make(Set)
	for o := range aAnc {
		if !bAnc[o] {
			out[o] = true
		}
	}
	return out, nil
}

// MergeBase delegates to the object store's merge-base primitive.
func (g *Graph) MergeBase(a, b plumbing.Hash) (plumbing.Hash, bool, error) {
	return g.Store.MergeBase(a, b)
}

// Public returns the cached ancestor set of MainRef, recomputing and
// caching it on miss.
func (g *Graph) Public() (Set, error) {
	ref, err := g.Store.ResolveRef(g.MainRef)
	if err != nil {
		return nil, err
	}
	key := "public:" + ref.Oid.String()
	if cached, ok := g.ancestorCache.Get(key); ok {
		return cached, nil
	}
	set, err := g.Ancestors(NewSet(ref.Oid))
	if err != nil {
		return nil, err
	}
	g.ancestorCache.Set(key, set, int64(len(set)))
	g.ancestorCache.Wait()
	return set, nil
}

// ActiveHeads returns the set of currently-visible, non-obsolete commit
// oids per the event log replay, keyed in the cache by the replay cursor so
// a later replay invalidates it.
func (g *Graph) ActiveHeads(st *eventlog.ReplayState) (Set, error) {
	key := fmt.Sprintf("active-heads:%d", st.Cursor())
	if cached, ok := g.ancestorCache.Get(key); ok {
		return cached, nil
	}
	active := st.ActiveOids()
	out := make(Set, len(active))
	for o := range active {
		out[o] = true
	}
	g.ancestorCache.Set(key, out, int64(len(out)))
	g.ancestorCache.Wait()
	return out, nil
}

// InvalidatePublic drops the cached ancestor set for the current MainRef
// value, used after any operation that moves MainRef.
func (g *Graph) InvalidatePublic() {
	ref, err := g.Store.ResolveRef(g.MainRef)
	if err != nil {
		return
	}
	g.ancestorCache.Del("public:" + ref.Oid.String())
}
