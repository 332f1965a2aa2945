package world

import (
	"slices"

	"collide2d/internal/broadphase"
)

// PairTracker diffs candidate pairs between ticks so listeners see only the
// pairs that started or stopped overlapping.
type PairTracker struct {
	current map[broadphase.PairKey]struct{}
	next    map[broadphase.PairKey]struct{}
}

func NewPairTracker() *PairTracker {
	return &PairTracker{
		current: map[broadphase.PairKey]struct{}{},
		next:    map[broadphase.PairKey]struct{}{},
	}
}

// Update replaces the active set with pairs and returns the keys that were
// added and removed, each sorted.
func (t *PairTracker) Update(pairs []broadphase.Pair) (began, ended []broadphase.PairKey) {
	clear(t.next)
	for _, p := range pairs {
		k := p.Key()
		t.next[k] = struct{}{}
		if _, ok := t.current[k]; !ok {
			began = append(began, k)
		}
	}
	for k := range t.current {
		if _, ok := t.next[k]; !ok {
			ended = append(ended, k)
		}
	}
	t.current, t.next = t.next, t.current

	slices.SortFunc(began, broadphase.ComparePairKeys)
	slices.SortFunc(ended, broadphase.ComparePairKeys)
	return began, ended
}

// Active returns the number of pairs seen on the last Update.
func (t *PairTracker) Active() int {
	return len(t.current)
}

// Reset forgets all pairs; the next Update reports everything as began.
func (t *PairTracker) Reset() {
	clear(t.current)
	clear(t.next)
}
