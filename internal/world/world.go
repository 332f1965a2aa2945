// Package world hosts bodies that move inside a rectangular area and runs a
// broad-phase method over them every step. It owns body identity and keeps
// AABBs current, which is everything the broad phase asks of its caller.
package world

import (
	"errors"
	"fmt"
	"time"

	"collide2d/internal/broadphase"
	"collide2d/internal/geom"
)

// ErrEmptyWorld is returned when the world bounds enclose no area.
var ErrEmptyWorld = errors.New("world bounds enclose no area")

// StepResult describes one broad-phase pass.
type StepResult struct {
	Tick     uint64
	Pairs    []broadphase.Pair
	Began    []broadphase.PairKey
	Ended    []broadphase.PairKey
	Stats    broadphase.Stats
	Duration time.Duration
}

// World is a set of bodies plus the broad-phase method run over them.
// It is not safe for concurrent use; Engine serializes access.
type World struct {
	bounds geom.AABB

	bodies []*Body
	shapes []broadphase.Shape // same bodies, as handed to the method
	nextID broadphase.ID

	kind   broadphase.Kind
	opts   broadphase.Options
	method broadphase.Method

	tick    uint64
	tracker *PairTracker
	last    StepResult
}

// New creates an empty world of the given size running the named method.
func New(width, height float64, kind broadphase.Kind, opts broadphase.Options) (*World, error) {
	if !(width > 0 && height > 0) {
		return nil, fmt.Errorf("%w: %vx%v", ErrEmptyWorld, width, height)
	}
	m, err := broadphase.New(kind, opts)
	if err != nil {
		return nil, err
	}
	return &World{
		bounds:  geom.NewAABB(0, 0, width, height),
		nextID:  1,
		kind:    kind,
		opts:    opts,
		method:  m,
		tracker: NewPairTracker(),
	}, nil
}

func (w *World) Bounds() geom.AABB { return w.bounds }

func (w *World) Kind() broadphase.Kind { return w.kind }

func (w *World) Tick() uint64 { return w.tick }

func (w *World) Bodies() []*Body { return w.bodies }

func (w *World) Len() int { return len(w.bodies) }

// Last returns the result of the most recent Step.
func (w *World) Last() StepResult { return w.last }

// AddBody assigns b a fresh ID and hands it to the method incrementally.
func (w *World) AddBody(b *Body) broadphase.ID {
	b.id = w.nextID
	w.nextID++
	b.Refresh()
	w.bodies = append(w.bodies, b)
	w.shapes = append(w.shapes, b)
	w.method.AddShape(b)
	return b.id
}

// SetBodies replaces every body. IDs are reassigned from 1 and the method
// rebuilds from scratch.
func (w *World) SetBodies(bodies []*Body) {
	w.bodies = append(w.bodies[:0:0], bodies...)
	w.shapes = make([]broadphase.Shape, len(bodies))
	w.nextID = 1
	for i, b := range w.bodies {
		b.id = w.nextID
		w.nextID++
		b.Refresh()
		w.shapes[i] = b
	}
	w.method.SetShapes(w.shapes)
	w.tracker.Reset()
}

// SetMethod swaps the broad-phase strategy, keeping the bodies.
func (w *World) SetMethod(kind broadphase.Kind) error {
	m, err := broadphase.New(kind, w.opts)
	if err != nil {
		return err
	}
	m.SetShapes(w.shapes)
	w.kind = kind
	w.method = m
	return nil
}

// Step integrates every body by dt seconds, then runs the broad phase.
// A dt of 0 only re-runs detection.
func (w *World) Step(dt float64) StepResult {
	if dt > 0 {
		for _, b := range w.bodies {
			b.integrate(dt, w.bounds)
		}
	}
	return w.Detect()
}

// Detect runs one broad-phase pass over the current AABBs.
func (w *World) Detect() StepResult {
	w.tick++

	var st broadphase.Stats
	start := time.Now()
	pairs := w.method.CalculateCollisions(&st)
	elapsed := time.Since(start)

	began, ended := w.tracker.Update(pairs)
	w.last = StepResult{
		Tick:     w.tick,
		Pairs:    pairs,
		Began:    began,
		Ended:    ended,
		Stats:    st,
		Duration: elapsed,
	}
	return w.last
}

// Body looks up a body by ID.
func (w *World) Body(id broadphase.ID) (*Body, bool) {
	// IDs are dense and assigned in order, so the index is id-1.
	i := int(id) - 1
	if i < 0 || i >= len(w.bodies) || w.bodies[i].id != id {
		return nil, false
	}
	return w.bodies[i], true
}
