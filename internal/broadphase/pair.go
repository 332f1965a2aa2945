// Package broadphase implements broad-phase collision detection: given many
// shapes with axis-aligned bounding boxes, it proposes the pairs whose boxes
// overlap so that only those reach the exact (narrow-phase) tests.
//
// Five interchangeable methods implement the Method interface:
//   - BruteForce: O(n²) ground truth
//   - SweepAndPrune: sort on the axis of largest variance, prune by sorted order
//   - ActiveListSweep: one-axis interval sweep with a FIFO of open intervals
//   - SpatialHash: uniform grid with a cell size derived from shape sizes
//   - Quadtree: hierarchical partition with up/down re-insertion
//
// Methods alias the caller's shapes and read their AABBs at call time. They are
// not safe for concurrent use; the owning simulation loop serializes access.
package broadphase

import (
	"fmt"
	"slices"

	"collide2d/internal/geom"
)

// ID is the stable identity of a shape. The owner assigns it; two live shapes
// must never share an ID.
type ID uint64

// Shape is everything the broad phase needs to know about a collidable.
// AABB must already reflect the shape's current geometry when a method runs.
type Shape interface {
	ID() ID
	AABB() geom.AABB
}

// PairKey is the order-independent identity of a pair: Lo < Hi.
type PairKey struct {
	Lo, Hi ID
}

// Pair is an unordered pair of distinct shapes stored in canonical order
// (A.ID() < B.ID()), so Pair(a, b) and Pair(b, a) are the same value.
type Pair struct {
	A, B Shape
}

// NewPair canonicalizes (a, b). Pairing a shape with itself is a programming
// error and panics.
func NewPair(a, b Shape) Pair {
	ia, ib := a.ID(), b.ID()
	if ia == ib {
		panic(fmt.Sprintf("broadphase: self pair for shape %d", ia))
	}
	if ia > ib {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// Key returns the comparable identity of p.
func (p Pair) Key() PairKey {
	return PairKey{Lo: p.A.ID(), Hi: p.B.ID()}
}

// Other returns the member of p that is not s.
func (p Pair) Other(s ID) Shape {
	if p.A.ID() == s {
		return p.B
	}
	return p.A
}

func (p Pair) String() string {
	return fmt.Sprintf("(%d,%d)", p.A.ID(), p.B.ID())
}

// PairSet collects pairs, dropping duplicates. Methods that can reach the same
// overlap from several partitions (grid cells, tree leaves) funnel through it.
type PairSet struct {
	pairs map[PairKey]Pair
}

// NewPairSet creates an empty set with room for sizeHint pairs.
func NewPairSet(sizeHint int) *PairSet {
	return &PairSet{pairs: make(map[PairKey]Pair, sizeHint)}
}

// Add inserts p and reports whether it was new.
func (s *PairSet) Add(p Pair) bool {
	k := p.Key()
	if _, ok := s.pairs[k]; ok {
		return false
	}
	s.pairs[k] = p
	return true
}

func (s *PairSet) Contains(k PairKey) bool {
	_, ok := s.pairs[k]
	return ok
}

func (s *PairSet) Len() int {
	return len(s.pairs)
}

// Reset empties the set but keeps its storage.
func (s *PairSet) Reset() {
	clear(s.pairs)
}

// Slice returns the pairs sorted by key, so results are deterministic.
func (s *PairSet) Slice() []Pair {
	out := make([]Pair, 0, len(s.pairs))
	for _, p := range s.pairs {
		out = append(out, p)
	}
	SortPairs(out)
	return out
}

// SortPairs orders pairs by (Lo, Hi).
func SortPairs(pairs []Pair) {
	slices.SortFunc(pairs, func(x, y Pair) int {
		return ComparePairKeys(x.Key(), y.Key())
	})
}

// ComparePairKeys is a three-way comparison on (Lo, Hi).
func ComparePairKeys(a, b PairKey) int {
	switch {
	case a.Lo < b.Lo:
		return -1
	case a.Lo > b.Lo:
		return 1
	case a.Hi < b.Hi:
		return -1
	case a.Hi > b.Hi:
		return 1
	}
	return 0
}

// Keys projects pairs onto their keys, preserving order.
func Keys(pairs []Pair) []PairKey {
	keys := make([]PairKey, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key()
	}
	return keys
}
