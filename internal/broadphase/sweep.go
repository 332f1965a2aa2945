package broadphase

import (
	"cmp"
	"slices"

	"collide2d/internal/geom"
)

// ActiveListSweep is a single-axis interval sweep. Shapes are sorted by min-x
// and kept in a FIFO of open intervals. A shape that starts before the oldest
// open interval ends joins the FIFO; otherwise the oldest interval can no
// longer overlap anything that follows, so it is popped and tested against
// everything still open.
//
// Unlike SweepAndPrune it never changes axis, which keeps it a simple,
// cache-friendly baseline.
type ActiveListSweep struct {
	order  []projection
	active []int // indices into order, oldest first
	pairs  []Pair
}

func NewActiveListSweep() *ActiveListSweep {
	return &ActiveListSweep{}
}

func (s *ActiveListSweep) SetShapes(shapes []Shape) {
	s.order = s.order[:0]
	for _, sh := range shapes {
		s.order = append(s.order, projection{shape: sh})
	}
}

func (s *ActiveListSweep) AddShape(sh Shape) {
	s.order = append(s.order, projection{shape: sh})
}

func (s *ActiveListSweep) CalculateCollisions(st *Stats) []Pair {
	s.pairs = s.pairs[:0]
	s.active = s.active[:0]
	n := len(s.order)

	for i := range s.order {
		s.order[i].box = s.order[i].shape.AABB()
	}
	slices.SortStableFunc(s.order, func(a, b projection) int {
		return cmp.Compare(a.box.Min[0], b.box.Min[0])
	})

	if n > 0 {
		s.active = append(s.active, 0)
	}

	for i := 1; i < n; {
		if len(s.active) == 0 {
			s.active = append(s.active, i)
			i++
			continue
		}
		head := s.order[s.active[0]]
		if s.order[i].box.Min[0] <= head.box.Max[0] {
			s.active = append(s.active, i)
			i++
			continue
		}
		// Re-process i against the new head.
		s.popHead(st)
	}

	for len(s.active) > 0 {
		s.popHead(st)
	}

	out := make([]Pair, len(s.pairs))
	copy(out, s.pairs)
	SortPairs(out)
	st.finish(n, len(out))
	return out
}

// popHead removes the oldest open interval and tests it against the rest.
func (s *ActiveListSweep) popHead(st *Stats) {
	head := s.order[s.active[0]]
	rest := s.active[1:]
	for _, idx := range rest {
		other := s.order[idx]
		st.addTest()
		if geom.Intersects(head.box, other.box) {
			s.pairs = append(s.pairs, NewPair(head.shape, other.shape))
		}
	}
	s.active = append(s.active[:0], rest...)
}
