package world

import (
	"sync/atomic"
	"time"

	"collide2d/internal/broadphase"
)

// BodySnapshot is an immutable copy of a body for readers outside the tick.
type BodySnapshot struct {
	ID     uint64     `json:"id"`
	Kind   string     `json:"kind"`
	X      float64    `json:"x"`
	Y      float64    `json:"y"`
	VX     float64    `json:"vx"`
	VY     float64    `json:"vy"`
	Radius float64    `json:"radius,omitempty"`
	HalfW  float64    `json:"halfW,omitempty"`
	HalfH  float64    `json:"halfH,omitempty"`
	AABB   [4]float64 `json:"aabb"` // minX, minY, maxX, maxY
}

// PairSnapshot is a candidate pair by body ID, Lo < Hi.
type PairSnapshot struct {
	A uint64 `json:"a"`
	B uint64 `json:"b"`
}

// StatsSnapshot is the broad-phase work of the last tick.
type StatsSnapshot struct {
	Tests       int64   `json:"tests"`
	Pairs       int     `json:"pairs"`
	Rebuilds    int     `json:"rebuilds"`
	Reinserted  int     `json:"reinserted"`
	Buckets     int     `json:"buckets"`
	MaxInBucket int     `json:"maxInBucket"`
	DurationMs  float64 `json:"durationMs"`
}

// Snapshot is a complete immutable world state. Readers may hold on to it
// for as long as they like; each tick publishes a new one.
type Snapshot struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Tick      uint64    `json:"tick"`
	Method    string    `json:"method"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`

	Bodies []BodySnapshot `json:"bodies"`
	Pairs  []PairSnapshot `json:"pairs"`
	Stats  StatsSnapshot  `json:"stats"`
}

// Snapshot copies the current state. The world must not be mutated
// concurrently.
func (w *World) Snapshot() *Snapshot {
	snap := &Snapshot{
		Timestamp: time.Now(),
		Tick:      w.tick,
		Method:    string(w.kind),
		Width:     w.bounds.Width(),
		Height:    w.bounds.Height(),
		Bodies:    make([]BodySnapshot, len(w.bodies)),
		Pairs:     PairSnapshots(w.last.Pairs),
		Stats:     snapshotStats(w.last.Stats, w.last.Duration),
	}
	for i, b := range w.bodies {
		box := b.AABB()
		snap.Bodies[i] = BodySnapshot{
			ID:     uint64(b.id),
			Kind:   b.Kind.String(),
			X:      b.Pos[0],
			Y:      b.Pos[1],
			VX:     b.Vel[0],
			VY:     b.Vel[1],
			Radius: b.Radius,
			HalfW:  b.HalfW,
			HalfH:  b.HalfH,
			AABB:   [4]float64{box.Min[0], box.Min[1], box.Max[0], box.Max[1]},
		}
	}
	return snap
}

// PairSnapshots converts pairs to their ID form, preserving order.
func PairSnapshots(pairs []broadphase.Pair) []PairSnapshot {
	out := make([]PairSnapshot, len(pairs))
	for i, p := range pairs {
		k := p.Key()
		out[i] = PairSnapshot{A: uint64(k.Lo), B: uint64(k.Hi)}
	}
	return out
}

func snapshotStats(st broadphase.Stats, d time.Duration) StatsSnapshot {
	return StatsSnapshot{
		Tests:       st.Tests,
		Pairs:       st.Pairs,
		Rebuilds:    st.Rebuilds,
		Reinserted:  st.Reinserted,
		Buckets:     st.Buckets,
		MaxInBucket: st.MaxInBucket,
		DurationMs:  float64(d.Microseconds()) / 1000,
	}
}

// snapshotStore publishes snapshots from the tick goroutine to any number of
// readers without taking the engine lock.
type snapshotStore struct {
	latest   atomic.Pointer[Snapshot]
	sequence atomic.Uint64
}

func (s *snapshotStore) publish(snap *Snapshot) {
	snap.Sequence = s.sequence.Add(1)
	s.latest.Store(snap)
}

// load returns the latest snapshot, or nil before the first publish.
func (s *snapshotStore) load() *Snapshot {
	return s.latest.Load()
}
