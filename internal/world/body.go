package world

import (
	"collide2d/internal/broadphase"
	"collide2d/internal/geom"

	"github.com/go-gl/mathgl/mgl64"
)

// BodyKind is the geometry of a body.
type BodyKind uint8

const (
	BodyCircle BodyKind = iota
	BodyBox
)

func (k BodyKind) String() string {
	if k == BodyBox {
		return "box"
	}
	return "circle"
}

// Body is a moving circle or box. It satisfies broadphase.Shape; the AABB it
// reports is the one computed by the last Refresh.
type Body struct {
	id   broadphase.ID
	Kind BodyKind

	Pos mgl64.Vec2
	Vel mgl64.Vec2

	Radius       float64 // circles
	HalfW, HalfH float64 // boxes

	box geom.AABB
}

// NewCircle creates a circle body. The world assigns its ID when added.
func NewCircle(pos, vel mgl64.Vec2, radius float64) *Body {
	b := &Body{Kind: BodyCircle, Pos: pos, Vel: vel, Radius: radius}
	b.Refresh()
	return b
}

// NewBox creates an axis-aligned box body with the given half extents.
func NewBox(pos, vel mgl64.Vec2, halfW, halfH float64) *Body {
	b := &Body{Kind: BodyBox, Pos: pos, Vel: vel, HalfW: halfW, HalfH: halfH}
	b.Refresh()
	return b
}

func (b *Body) ID() broadphase.ID { return b.id }

func (b *Body) AABB() geom.AABB { return b.box }

// HalfExtents returns the half width and height of the body's bounds.
func (b *Body) HalfExtents() (float64, float64) {
	if b.Kind == BodyBox {
		return b.HalfW, b.HalfH
	}
	return b.Radius, b.Radius
}

// Refresh recomputes the cached AABB from position and geometry.
func (b *Body) Refresh() {
	hw, hh := b.HalfExtents()
	b.box = geom.NewAABBForExtents(b.Pos, hw, hh)
}

// integrate advances the body by dt and reflects it off the walls of bounds.
func (b *Body) integrate(dt float64, bounds geom.AABB) {
	b.Pos = b.Pos.Add(b.Vel.Mul(dt))

	hw, hh := b.HalfExtents()
	half := [2]float64{hw, hh}
	for axis := 0; axis < 2; axis++ {
		lo := bounds.Min[axis] + half[axis]
		hi := bounds.Max[axis] - half[axis]
		if lo > hi {
			// Body wider than the world: pin it to the center line.
			b.Pos[axis] = (bounds.Min[axis] + bounds.Max[axis]) * 0.5
			b.Vel[axis] = 0
			continue
		}
		switch {
		case b.Pos[axis] < lo:
			b.Pos[axis] = lo + (lo - b.Pos[axis])
			b.Vel[axis] = -b.Vel[axis]
		case b.Pos[axis] > hi:
			b.Pos[axis] = hi - (b.Pos[axis] - hi)
			b.Vel[axis] = -b.Vel[axis]
		}
		// A very fast body can overshoot both walls in one step.
		if b.Pos[axis] < lo {
			b.Pos[axis] = lo
		} else if b.Pos[axis] > hi {
			b.Pos[axis] = hi
		}
	}
	b.Refresh()
}
