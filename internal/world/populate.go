package world

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

// PopulateOptions shapes a generated scene.
type PopulateOptions struct {
	Count     int
	MinRadius float64
	MaxRadius float64
	MaxSpeed  float64
	BoxRatio  float64 // fraction of bodies that are boxes, 0..1
}

// Populate generates opts.Count bodies inside bounds of width x height.
// The same rng state always yields the same scene.
func Populate(rng *rand.Rand, width, height float64, opts PopulateOptions) []*Body {
	bodies := make([]*Body, 0, opts.Count)
	span := math.Max(opts.MaxRadius-opts.MinRadius, 0)

	for i := 0; i < opts.Count; i++ {
		size := opts.MinRadius + rng.Float64()*span
		pos := mgl64.Vec2{
			size + rng.Float64()*math.Max(width-2*size, 0),
			size + rng.Float64()*math.Max(height-2*size, 0),
		}
		angle := rng.Float64() * 2 * math.Pi
		speed := rng.Float64() * opts.MaxSpeed
		vel := mgl64.Vec2{math.Cos(angle) * speed, math.Sin(angle) * speed}

		if rng.Float64() < opts.BoxRatio {
			aspect := 0.5 + rng.Float64()
			bodies = append(bodies, NewBox(pos, vel, size*aspect, size/aspect))
			continue
		}
		bodies = append(bodies, NewCircle(pos, vel, size))
	}
	return bodies
}
