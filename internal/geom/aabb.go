// Package geom provides the axis-aligned bounding box used by every
// broad-phase method.
//
// All predicates treat boxes as closed intervals: boxes that merely touch
// along an edge or at a corner intersect.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// AABB is an axis-aligned bounding box. Min must not exceed Max on either axis.
type AABB struct {
	Min, Max mgl64.Vec2
}

// NewAABB builds a box from its corner coordinates.
func NewAABB(minX, minY, maxX, maxY float64) AABB {
	return AABB{Min: mgl64.Vec2{minX, minY}, Max: mgl64.Vec2{maxX, maxY}}
}

// NewAABBForExtents returns the box centered on c with half extents hw, hh.
func NewAABBForExtents(c mgl64.Vec2, hw, hh float64) AABB {
	return AABB{
		Min: mgl64.Vec2{c.X() - hw, c.Y() - hh},
		Max: mgl64.Vec2{c.X() + hw, c.Y() + hh},
	}
}

// NewAABBForCircle returns the tight box around a circle.
func NewAABBForCircle(c mgl64.Vec2, r float64) AABB {
	return NewAABBForExtents(c, r, r)
}

// InvertedAABB is the identity element for Union.
func InvertedAABB() AABB {
	return AABB{
		Min: mgl64.Vec2{math.MaxFloat64, math.MaxFloat64},
		Max: mgl64.Vec2{-math.MaxFloat64, -math.MaxFloat64},
	}
}

// Intersects reports whether a and b overlap on both axes (closed intervals).
func Intersects(a, b AABB) bool {
	return a.Min[0] <= b.Max[0] && b.Min[0] <= a.Max[0] &&
		a.Min[1] <= b.Max[1] && b.Min[1] <= a.Max[1]
}

// Contains reports whether inner lies entirely within outer, boundary included.
func Contains(outer, inner AABB) bool {
	return outer.Min[0] <= inner.Min[0] && inner.Max[0] <= outer.Max[0] &&
		outer.Min[1] <= inner.Min[1] && inner.Max[1] <= outer.Max[1]
}

// ContainsStrict reports whether inner lies in the open interior of outer.
func ContainsStrict(outer, inner AABB) bool {
	return outer.Min[0] < inner.Min[0] && inner.Max[0] < outer.Max[0] &&
		outer.Min[1] < inner.Min[1] && inner.Max[1] < outer.Max[1]
}

func (a AABB) Intersects(b AABB) bool { return Intersects(a, b) }

func (a AABB) Contains(b AABB) bool { return Contains(a, b) }

// Valid reports whether the Min <= Max invariant holds.
func (a AABB) Valid() bool {
	return a.Min[0] <= a.Max[0] && a.Min[1] <= a.Max[1]
}

func (a AABB) Width() float64 { return a.Max[0] - a.Min[0] }

func (a AABB) Height() float64 { return a.Max[1] - a.Min[1] }

// MaxExtent is the larger of width and height.
func (a AABB) MaxExtent() float64 { return math.Max(a.Width(), a.Height()) }

func (a AABB) Center() mgl64.Vec2 {
	return mgl64.Vec2{(a.Min[0] + a.Max[0]) * 0.5, (a.Min[1] + a.Max[1]) * 0.5}
}

// Union returns the smallest box enclosing both a and b.
func (a AABB) Union(b AABB) AABB {
	return AABB{
		Min: mgl64.Vec2{math.Min(a.Min[0], b.Min[0]), math.Min(a.Min[1], b.Min[1])},
		Max: mgl64.Vec2{math.Max(a.Max[0], b.Max[0]), math.Max(a.Max[1], b.Max[1])},
	}
}

// Expand grows the box by margin on every side.
func (a AABB) Expand(margin float64) AABB {
	return AABB{
		Min: mgl64.Vec2{a.Min[0] - margin, a.Min[1] - margin},
		Max: mgl64.Vec2{a.Max[0] + margin, a.Max[1] + margin},
	}
}

// Quadrant returns one quarter of a, split about its center.
// Index bits: 1 selects the upper x half, 2 selects the upper y half.
func (a AABB) Quadrant(i int) AABB {
	c := a.Center()
	q := a
	if i&1 == 0 {
		q.Max[0] = c[0]
	} else {
		q.Min[0] = c[0]
	}
	if i&2 == 0 {
		q.Max[1] = c[1]
	} else {
		q.Min[1] = c[1]
	}
	return q
}
