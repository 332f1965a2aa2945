package broadphase

import (
	"math/rand"
	"testing"

	"collide2d/internal/geom"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// SWEEP AND PRUNE
// -----------------------------------------------------------------------------

func TestSweepAndPruneSwitchesAxis(t *testing.T) {
	// A vertical column: centers spread along y only.
	var shapes []Shape
	for i := 0; i < 20; i++ {
		shapes = append(shapes, circle(ID(i+1), 0, float64(i)*10, 2))
	}

	sap := NewSweepAndPrune()
	sap.SetShapes(shapes)
	require.Equal(t, AxisX, sap.Axis())

	sap.CalculateCollisions(nil)
	require.Equal(t, AxisY, sap.Axis())

	// Sorting on y lets the sweep break early instead of testing every pair.
	var st Stats
	require.Empty(t, sap.CalculateCollisions(&st))
	require.Less(t, st.Tests, int64(20*19/2))
}

func TestSweepAndPruneInsertionSortToggle(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ts := randomShapes(rng, 100, 200, 6)
	shapes := asShapes(ts)

	withIns := NewSweepAndPrune()
	withIns.SetShapes(shapes)
	without := NewSweepAndPrune()
	without.SetInsertionSort(false)
	without.SetShapes(shapes)

	for step := 0; step < 10; step++ {
		for _, s := range ts {
			s.moveBy(rng.Float64()*2-1, rng.Float64()*2-1)
		}
		require.Equal(t, Keys(without.CalculateCollisions(nil)), Keys(withIns.CalculateCollisions(nil)))
	}
}

func TestInsertionSortProjections(t *testing.T) {
	ps := []projection{
		{shape: circle(1, 0, 0, 0), box: geom.NewAABB(5, 0, 6, 1)},
		{shape: circle(2, 0, 0, 0), box: geom.NewAABB(1, 9, 2, 10)},
		{shape: circle(3, 0, 0, 0), box: geom.NewAABB(5, 3, 7, 4)},
		{shape: circle(4, 0, 0, 0), box: geom.NewAABB(-1, 2, 0, 3)},
	}
	insertionSortProjections(ps, int(AxisX))

	var ids []ID
	for _, p := range ps {
		ids = append(ids, p.shape.ID())
	}
	// Stable: 1 and 3 share min-x and keep their relative order.
	require.Equal(t, []ID{4, 2, 1, 3}, ids)
}

// -----------------------------------------------------------------------------
// SPATIAL HASH
// -----------------------------------------------------------------------------

func TestSpatialHashCellSize(t *testing.T) {
	h := NewSpatialHash(0.5)
	h.SetShapes([]Shape{
		&testShape{id: 1, box: geom.NewAABB(0, 0, 4, 2)}, // max extent 4
		&testShape{id: 2, box: geom.NewAABB(0, 0, 1, 8)}, // max extent 8
	})
	require.InDelta(t, 12.0, h.CellSize(), 1e-12)

	h.SetShapes([]Shape{
		&testShape{id: 1, box: geom.NewAABB(2, 2, 2, 2)},
		&testShape{id: 2, box: geom.NewAABB(2, 2, 2, 2)},
	})
	require.Equal(t, 1.0, h.CellSize())
}

func TestSpatialHashReinsertsMovedShapes(t *testing.T) {
	a := &testShape{id: 1, box: geom.NewAABB(0.5, 0.5, 1.5, 1.5)}
	b := &testShape{id: 2, box: geom.NewAABB(40.5, 0.5, 41.5, 1.5)}

	h := NewSpatialHash(0.5)
	h.SetShapes([]Shape{a, b})
	require.Equal(t, 2.0, h.CellSize())

	var st Stats
	require.Empty(t, h.CalculateCollisions(&st))
	require.Zero(t, st.Rebuilds)
	require.Zero(t, st.Reinserted)

	region, ok := h.Region(1)
	require.True(t, ok)
	require.Equal(t, geom.NewAABB(0, 0, 2, 2), region)

	// Within the recorded cells: nothing moves.
	a.moveBy(0.2, 0.2)
	st.Reset()
	h.CalculateCollisions(&st)
	require.Zero(t, st.Reinserted)

	// Onto b: a leaves its cells.
	a.moveBy(40, 0)
	st.Reset()
	require.Equal(t, []PairKey{{1, 2}}, Keys(h.CalculateCollisions(&st)))
	require.Equal(t, 1, st.Reinserted)
	require.Zero(t, st.Rebuilds)

	_, ok = h.Region(99)
	require.False(t, ok)
}

func TestSpatialHashRebuildsOnDrift(t *testing.T) {
	a := &testShape{id: 1, box: geom.NewAABB(0, 0, 1, 1)}
	b := &testShape{id: 2, box: geom.NewAABB(10, 10, 11, 11)}

	h := NewSpatialHash(0.5)
	h.SetShapes([]Shape{a, b})
	require.Equal(t, 2.0, h.CellSize())

	// Grow both shapes well past the tolerance.
	a.box = geom.NewAABB(0, 0, 8, 8)
	b.box = geom.NewAABB(6, 6, 14, 14)

	var st Stats
	require.Equal(t, []PairKey{{1, 2}}, Keys(h.CalculateCollisions(&st)))
	require.Equal(t, 1, st.Rebuilds)
	require.Equal(t, 16.0, h.CellSize())
}

func TestSpatialHashAddShapeResizesForLargeShape(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	ts := randomShapes(rng, 50, 1000, 5)
	shapes := asShapes(ts)

	h := NewSpatialHash(0.5)
	h.SetShapes(shapes)
	h.CalculateCollisions(nil)
	small := h.CellSize()
	require.LessOrEqual(t, small, 20.0)

	// At the old cell size this shape would span millions of cells.
	big := circle(99, 500, 500, 3e4)
	h.AddShape(big)
	require.Greater(t, h.CellSize(), 100*small)

	region, ok := h.Region(99)
	require.True(t, ok)
	require.True(t, region.Contains(big.AABB()))
	require.LessOrEqual(t, h.ranges[99].count(), 30*30)

	var st Stats
	require.Equal(t, oracle(append(shapes, big)), Keys(h.CalculateCollisions(&st)))
	require.Zero(t, st.Rebuilds)
}

// -----------------------------------------------------------------------------
// QUADTREE
// -----------------------------------------------------------------------------

func leafCount(q *Quadtree) (leaves, stored int) {
	q.Leaves(func(_ geom.AABB, shapes []Shape) {
		leaves++
		stored += len(shapes)
	})
	return leaves, stored
}

func TestQuadtreeSplitsAndCoversShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ts := randomShapes(rng, 200, 500, 2)

	q := NewQuadtree(4, 1)
	q.SetShapes(asShapes(ts))

	bounds, ok := q.Bounds()
	require.True(t, ok)
	for _, s := range ts {
		require.True(t, geom.Contains(bounds, s.box))
	}

	leaves, stored := leafCount(q)
	require.Greater(t, leaves, 1)
	require.GreaterOrEqual(t, stored, len(ts))

	// Every shape sits in at least one leaf it overlaps.
	found := map[ID]bool{}
	q.Leaves(func(box geom.AABB, shapes []Shape) {
		for _, s := range shapes {
			require.True(t, geom.Intersects(box, s.AABB()))
			found[s.ID()] = true
		}
	})
	require.Len(t, found, len(ts))
}

func TestQuadtreeMinSizeStopsSplitting(t *testing.T) {
	var shapes []Shape
	for i := 0; i < 50; i++ {
		shapes = append(shapes, &testShape{id: ID(i + 1), box: geom.NewAABB(1, 1, 1, 1)})
	}
	q := NewQuadtree(2, 4)
	q.SetShapes(shapes)

	var st Stats
	require.Len(t, q.CalculateCollisions(&st), 50*49/2)
	require.Equal(t, 50, st.MaxInBucket)
}

func TestQuadtreePrunesAfterMotion(t *testing.T) {
	var ts []*testShape
	for i := 0; i < 32; i++ {
		ts = append(ts, &testShape{
			id:  ID(i + 1),
			box: geom.NewAABB(float64(i%8)*10, float64(i/8)*10, float64(i%8)*10+1, float64(i/8)*10+1),
		})
	}

	q := NewQuadtree(2, 1)
	q.SetShapes(asShapes(ts))
	before, _ := leafCount(q)

	// Collapse the small shapes onto one corner.
	for _, s := range ts {
		s.box = geom.NewAABB(0.1, 0.1, 0.2, 0.2)
	}
	var st Stats
	got := q.CalculateCollisions(&st)
	require.Zero(t, st.Rebuilds)
	require.Equal(t, 32, st.Reinserted)
	require.Len(t, got, 32*31/2)

	after, _ := leafCount(q)
	require.Less(t, after, before)
}

func TestQuadtreeRebuildsWhenShapeLeavesRoot(t *testing.T) {
	a := circle(1, 0, 0, 1)
	b := circle(2, 10, 10, 1)

	q := NewQuadtree(8, 1)
	q.SetShapes([]Shape{a, b})
	root, _ := q.Bounds()

	b.moveBy(1000, 1000)
	var st Stats
	require.Empty(t, q.CalculateCollisions(&st))
	require.Equal(t, 1, st.Rebuilds)

	grown, _ := q.Bounds()
	require.True(t, geom.Contains(grown, b.box))
	require.Greater(t, grown.Width(), root.Width())
}

func TestQuadtreeDefaultsGuardBadTuning(t *testing.T) {
	q := NewQuadtree(0, -1)
	require.Equal(t, 1, q.maxShapes)
	require.Equal(t, DefaultOptions().QuadtreeMinNodeSize, q.minSize)
}
