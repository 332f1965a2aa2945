package broadphase

import (
	"cmp"
	"slices"

	"collide2d/internal/geom"
)

// Axis selects the coordinate a sweep sorts on.
type Axis int

const (
	AxisX Axis = 0
	AxisY Axis = 1
)

func (a Axis) String() string {
	if a == AxisY {
		return "y"
	}
	return "x"
}

// SweepAndPrune sorts shapes by their AABB minimum on one axis and only tests
// shapes whose projections on that axis overlap. After each sweep it switches
// to the axis on which box centers are most spread out, so the next sort
// discriminates best.
//
// The projection list persists between calls. Shapes move little per tick, so
// the previous order is nearly sorted and insertion sort runs close to O(n).
//
// Origin: Baraff & Witkin (SIGGRAPH 1992); variance-driven axis choice from
// Ericson, Real-Time Collision Detection, 7.5.2.
type SweepAndPrune struct {
	order      []projection
	axis       Axis
	sortedOn   Axis // axis order was last sorted on, -1 when unsorted
	useInsSort bool
	pairs      []Pair // output buffer (reused)
}

// projection caches a shape's AABB for the duration of one call.
type projection struct {
	shape Shape
	box   geom.AABB
}

// NewSweepAndPrune starts on the x axis with insertion sort enabled.
func NewSweepAndPrune() *SweepAndPrune {
	return &SweepAndPrune{
		axis:       AxisX,
		sortedOn:   -1,
		useInsSort: true,
	}
}

// SetInsertionSort enables/disables reuse of the previous order.
// When false every call uses a full O(n log n) stable sort.
func (s *SweepAndPrune) SetInsertionSort(enabled bool) {
	s.useInsSort = enabled
}

// Axis reports the axis the next call will sort on.
func (s *SweepAndPrune) Axis() Axis {
	return s.axis
}

func (s *SweepAndPrune) SetShapes(shapes []Shape) {
	s.order = s.order[:0]
	for _, sh := range shapes {
		s.order = append(s.order, projection{shape: sh})
	}
	s.axis = AxisX
	s.sortedOn = -1
}

// AddShape appends the shape; the next sort moves it into place.
func (s *SweepAndPrune) AddShape(sh Shape) {
	s.order = append(s.order, projection{shape: sh})
}

func (s *SweepAndPrune) CalculateCollisions(st *Stats) []Pair {
	s.pairs = s.pairs[:0]
	n := len(s.order)

	for i := range s.order {
		s.order[i].box = s.order[i].shape.AABB()
	}

	axis := int(s.axis)
	if s.useInsSort && s.sortedOn == s.axis {
		insertionSortProjections(s.order, axis)
	} else {
		slices.SortStableFunc(s.order, func(a, b projection) int {
			return cmp.Compare(a.box.Min[axis], b.box.Min[axis])
		})
	}
	s.sortedOn = s.axis

	// First and second moments of box centers, per axis
	var sum, sumSq [2]float64

	for i := 0; i < n; i++ {
		a := s.order[i]
		c := a.box.Center()
		for k := 0; k < 2; k++ {
			sum[k] += c[k]
			sumSq[k] += c[k] * c[k]
		}

		limit := a.box.Max[axis]
		for j := i + 1; j < n; j++ {
			b := s.order[j]
			// Sorted on this axis: nothing further can overlap a.
			if b.box.Min[axis] > limit {
				break
			}
			st.addTest()
			if geom.Intersects(a.box, b.box) {
				s.pairs = append(s.pairs, NewPair(a.shape, b.shape))
			}
		}
	}

	if n > 0 {
		inv := 1 / float64(n)
		var variance [2]float64
		for k := 0; k < 2; k++ {
			mean := sum[k] * inv
			variance[k] = sumSq[k]*inv - mean*mean
		}
		if variance[AxisY] > variance[AxisX] {
			s.axis = AxisY
		} else {
			s.axis = AxisX
		}
	}

	out := make([]Pair, len(s.pairs))
	copy(out, s.pairs)
	SortPairs(out)
	st.finish(n, len(out))
	return out
}

// insertionSortProjections sorts in place by box minimum on axis.
// O(n) for nearly-sorted data due to temporal coherence. Stable.
func insertionSortProjections(ps []projection, axis int) {
	for i := 1; i < len(ps); i++ {
		key := ps[i]
		j := i - 1
		for j >= 0 && cmp.Compare(ps[j].box.Min[axis], key.box.Min[axis]) > 0 {
			ps[j+1] = ps[j]
			j--
		}
		ps[j+1] = key
	}
}
