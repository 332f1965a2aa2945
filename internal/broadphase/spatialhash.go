package broadphase

import (
	"encoding/binary"
	"math"

	"collide2d/internal/geom"

	"github.com/cespare/xxhash/v2"
)

// SpatialHash buckets shapes in a uniform grid. A shape is stored in every
// cell its AABB spans, and only shapes that share a cell are tested.
//
// The cell size is twice the average of the shapes' largest AABB extents, so
// a typical shape covers one to four cells. Between calls only shapes that
// left the cell span they were recorded with are re-inserted; the grid is
// rebuilt when the target cell size drifts past the tolerance.
//
// Cells are keyed by a 64-bit hash of their integer coordinates. Two cells
// that collide on the hash share a bucket, which only costs extra tests.
type SpatialHash struct {
	shapes    []Shape
	cellSize  float64
	tolerance float64
	extentSum float64 // sum of MaxExtent over shapes at the last full pass

	cells  map[uint64][]Shape // cell hash -> shapes in that cell
	ranges map[ID]cellRange   // shape -> cell span it is stored under

	keyBuf [16]byte
}

// cellRange is an inclusive span of integer cell coordinates.
type cellRange struct {
	x0, y0, x1, y1 int
}

func (r cellRange) contains(o cellRange) bool {
	return r.x0 <= o.x0 && o.x1 <= r.x1 && r.y0 <= o.y0 && o.y1 <= r.y1
}

func (r cellRange) count() int {
	return (r.x1 - r.x0 + 1) * (r.y1 - r.y0 + 1)
}

// NewSpatialHash creates an empty grid. tolerance is the relative change in
// target cell size that triggers a rebuild; values <= 0 rebuild on any change.
func NewSpatialHash(tolerance float64) *SpatialHash {
	return &SpatialHash{tolerance: tolerance}
}

// CellSize returns the current cell edge length (0 before any shapes).
func (h *SpatialHash) CellSize() float64 {
	return h.cellSize
}

func (h *SpatialHash) SetShapes(shapes []Shape) {
	h.shapes = append(h.shapes[:0], shapes...)
	h.extentSum = sumExtents(h.shapes)
	h.rebuild(cellSizeFor(h.extentSum, len(h.shapes)))
}

// AddShape inserts s at the current cell size, rebuilding first when s moves
// the target size past the tolerance.
func (h *SpatialHash) AddShape(s Shape) {
	h.shapes = append(h.shapes, s)
	h.extentSum += s.AABB().MaxExtent()
	if h.cells == nil || h.drifted(cellSizeFor(h.extentSum, len(h.shapes))) {
		h.extentSum = sumExtents(h.shapes)
		h.rebuild(cellSizeFor(h.extentSum, len(h.shapes)))
		return
	}
	h.insert(s, h.rangeFor(s.AABB()))
}

func (h *SpatialHash) CalculateCollisions(st *Stats) []Pair {
	h.extentSum = sumExtents(h.shapes)
	target := cellSizeFor(h.extentSum, len(h.shapes))
	if h.cells == nil || h.drifted(target) {
		h.rebuild(target)
		st.addRebuild()
	} else {
		moved := 0
		for _, s := range h.shapes {
			old := h.ranges[s.ID()]
			cur := h.rangeFor(s.AABB())
			if old.contains(cur) {
				continue
			}
			h.remove(s, old)
			h.insert(s, cur)
			moved++
		}
		st.addReinserted(moved)
	}

	set := NewPairSet(len(h.shapes))
	for _, bucket := range h.cells {
		st.observeBucket(len(bucket))
		if len(bucket) > 1 {
			BruteForcePairs(bucket, set, st)
		}
	}
	st.finish(len(h.shapes), set.Len())
	return set.Slice()
}

// Region returns the world-space area covered by the cells a shape is
// currently stored under.
func (h *SpatialHash) Region(id ID) (geom.AABB, bool) {
	r, ok := h.ranges[id]
	if !ok {
		return geom.AABB{}, false
	}
	size := h.cellSize
	return geom.NewAABB(
		float64(r.x0)*size, float64(r.y0)*size,
		float64(r.x1+1)*size, float64(r.y1+1)*size,
	), true
}

func sumExtents(shapes []Shape) float64 {
	total := 0.0
	for _, s := range shapes {
		total += s.AABB().MaxExtent()
	}
	return total
}

// cellSizeFor is twice the mean of n shapes' largest AABB extents summing to
// total. Degenerate sets (no shapes, all zero-size) fall back to 1.
func cellSizeFor(total float64, n int) float64 {
	if n == 0 {
		return 1
	}
	size := 2 * total / float64(n)
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return 1
	}
	return size
}

func (h *SpatialHash) drifted(target float64) bool {
	if h.cellSize == 0 {
		return true
	}
	return math.Abs(target-h.cellSize)/h.cellSize > h.tolerance
}

func (h *SpatialHash) rebuild(size float64) {
	h.cellSize = size
	h.cells = make(map[uint64][]Shape, len(h.shapes))
	h.ranges = make(map[ID]cellRange, len(h.shapes))
	for _, s := range h.shapes {
		h.insert(s, h.rangeFor(s.AABB()))
	}
}

func (h *SpatialHash) rangeFor(box geom.AABB) cellRange {
	inv := 1 / h.cellSize
	return cellRange{
		x0: int(math.Floor(box.Min[0] * inv)),
		y0: int(math.Floor(box.Min[1] * inv)),
		x1: int(math.Floor(box.Max[0] * inv)),
		y1: int(math.Floor(box.Max[1] * inv)),
	}
}

func (h *SpatialHash) cellKey(x, y int) uint64 {
	binary.LittleEndian.PutUint64(h.keyBuf[0:8], uint64(int64(x)))
	binary.LittleEndian.PutUint64(h.keyBuf[8:16], uint64(int64(y)))
	return xxhash.Sum64(h.keyBuf[:])
}

func (h *SpatialHash) insert(s Shape, r cellRange) {
	id := s.ID()
	for x := r.x0; x <= r.x1; x++ {
		for y := r.y0; y <= r.y1; y++ {
			k := h.cellKey(x, y)
			bucket := h.cells[k]
			if containsShape(bucket, id) {
				continue // hash collision with another cell of the same shape
			}
			h.cells[k] = append(bucket, s)
		}
	}
	h.ranges[id] = r
}

func (h *SpatialHash) remove(s Shape, r cellRange) {
	id := s.ID()
	for x := r.x0; x <= r.x1; x++ {
		for y := r.y0; y <= r.y1; y++ {
			k := h.cellKey(x, y)
			bucket := removeShape(h.cells[k], id)
			if len(bucket) == 0 {
				delete(h.cells, k)
			} else {
				h.cells[k] = bucket
			}
		}
	}
	delete(h.ranges, id)
}

func containsShape(bucket []Shape, id ID) bool {
	for _, s := range bucket {
		if s.ID() == id {
			return true
		}
	}
	return false
}

// removeShape deletes id from bucket in place, swapping with the last element.
func removeShape(bucket []Shape, id ID) []Shape {
	for i, s := range bucket {
		if s.ID() == id {
			last := len(bucket) - 1
			bucket[i] = bucket[last]
			bucket[last] = nil
			return bucket[:last]
		}
	}
	return bucket
}
