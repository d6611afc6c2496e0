package smap

import (
	"container/list"
	"fmt"
)

// token identifies one live cursor inside the relation index. Cursors hold a
// token rather than being index keys themselves so that a leaked cursor can
// still be collected by the runtime while its pin stays tracked. The token
// carries the file identity because the leak report runs after the cursor
// itself is gone.
type token struct {
	finfo *FileInfo
}

// relation is the manager's bookkeeping core: a bidirectional index from
// files to regions and from regions to the cursors pinning them, with the
// regions kept in least-recently-used order for eviction.
//
// The manager is the sole mutator. Integrity violations (double binds,
// missing entries) indicate manager bugs and are reported as errors without
// modifying the index, so callers can unwind.
type relation struct {
	byFile map[*FileInfo][]*Region
	lru    *list.List // of *Region, most recently used in front
	elems  map[*Region]*list.Element
	pins   map[*token]*Region
	open   map[*token]struct{}

	usedRegions int // regions with clientCount > 0
}

func newRelation() *relation {
	return &relation{
		byFile: make(map[*FileInfo][]*Region),
		lru:    list.New(),
		elems:  make(map[*Region]*list.Element),
		pins:   make(map[*token]*Region),
		open:   make(map[*token]struct{}),
	}
}

func (rel *relation) putRegion(r *Region) error {
	if _, ok := rel.elems[r]; ok {
		return fmt.Errorf("smap: region already indexed: %s", r)
	}
	rel.elems[r] = rel.lru.PushFront(r)
	rel.byFile[r.finfo] = append(rel.byFile[r.finfo], r)
	return nil
}

func (rel *relation) takeRegion(r *Region) error {
	elem, ok := rel.elems[r]
	if !ok {
		return fmt.Errorf("smap: region not indexed: %s", r)
	}
	rel.lru.Remove(elem)
	delete(rel.elems, r)

	regions := rel.byFile[r.finfo]
	for i, cand := range regions {
		if cand == r {
			regions[i] = regions[len(regions)-1]
			regions = regions[:len(regions)-1]
			break
		}
	}
	if len(regions) == 0 {
		delete(rel.byFile, r.finfo)
	} else {
		rel.byFile[r.finfo] = regions
	}
	return nil
}

func (rel *relation) hasRegion(r *Region) bool {
	_, ok := rel.elems[r]
	return ok
}

// hitRegion marks r as most recently used.
func (rel *relation) hitRegion(r *Region) {
	if elem, ok := rel.elems[r]; ok {
		rel.lru.MoveToFront(elem)
	}
}

func (rel *relation) regionsFor(fi *FileInfo) []*Region {
	return rel.byFile[fi]
}

func (rel *relation) addOpen(tok *token) {
	rel.open[tok] = struct{}{}
}

func (rel *relation) isOpen(tok *token) bool {
	_, ok := rel.open[tok]
	return ok
}

// bindCursor pins r for tok. The cursor must be open and unbound.
func (rel *relation) bindCursor(tok *token, r *Region) error {
	if _, ok := rel.open[tok]; !ok {
		return fmt.Errorf("smap: cursor not open")
	}
	if bound, ok := rel.pins[tok]; ok {
		return fmt.Errorf("smap: cursor already bound to %s", bound)
	}
	rel.pins[tok] = r
	r.clientCount++
	if r.clientCount == 1 {
		rel.usedRegions++
	}
	rel.hitRegion(r)
	return nil
}

// unbindCursor drops tok's pin, if any, and returns the region it held.
// A region whose count drops to zero counts as freshly accessed, so it is
// the last candidate for eviction.
func (rel *relation) unbindCursor(tok *token) *Region {
	r, ok := rel.pins[tok]
	if !ok {
		return nil
	}
	delete(rel.pins, tok)
	r.clientCount--
	if r.clientCount == 0 {
		rel.usedRegions--
		rel.hitRegion(r)
	}
	return r
}

// closeCursor removes tok from the open set, dropping its pin first.
func (rel *relation) closeCursor(tok *token) *Region {
	r := rel.unbindCursor(tok)
	delete(rel.open, tok)
	return r
}

func (rel *relation) regionOf(tok *token) *Region {
	return rel.pins[tok]
}

func (rel *relation) numOpenRegions() int { return rel.lru.Len() }
func (rel *relation) numUsedRegions() int { return rel.usedRegions }
func (rel *relation) numOpenCursors() int { return len(rel.open) }

// lruUnused returns the unused regions in eviction order, least recently
// used first.
func (rel *relation) lruUnused() []*Region {
	var out []*Region
	for elem := rel.lru.Back(); elem != nil; elem = elem.Prev() {
		r := elem.Value.(*Region)
		if r.clientCount == 0 {
			out = append(out, r)
		}
	}
	return out
}

// openTokens returns all open cursor tokens. Order is unspecified.
func (rel *relation) openTokens() []*token {
	out := make([]*token, 0, len(rel.open))
	for tok := range rel.open {
		out = append(out, tok)
	}
	return out
}

// regions returns all live regions, most recently used first.
func (rel *relation) regions() []*Region {
	out := make([]*Region, 0, rel.lru.Len())
	for elem := rel.lru.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(*Region))
	}
	return out
}
