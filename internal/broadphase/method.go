package broadphase

import (
	"errors"
	"fmt"
	"strings"
)

// Method is the capability shared by every broad-phase strategy.
//
// The shape slice passed to SetShapes is aliased: methods keep references to
// the caller's shapes and read AABB() lazily, so the caller must refresh
// AABBs before CalculateCollisions. A stale AABB yields stale pairs, not an
// error.
type Method interface {
	// SetShapes replaces the working set and rebuilds all spatial state.
	SetShapes(shapes []Shape)
	// AddShape incorporates one new shape without discarding existing state.
	AddShape(s Shape)
	// CalculateCollisions runs one pass and returns every pair of distinct
	// shapes whose AABBs intersect, sorted by PairKey, without duplicates.
	CalculateCollisions(st *Stats) []Pair
}

// Kind names a broad-phase strategy.
type Kind string

const (
	KindBruteForce  Kind = "bruteforce"
	KindSAP         Kind = "sap"
	KindSweep       Kind = "sweep"
	KindSpatialHash Kind = "spatialhash"
	KindQuadtree    Kind = "quadtree"
)

// Kinds lists every strategy, brute force first since it is the oracle.
var Kinds = []Kind{KindBruteForce, KindSAP, KindSweep, KindSpatialHash, KindQuadtree}

// ErrUnknownMethod is returned for a strategy name that is not in Kinds.
var ErrUnknownMethod = errors.New("unknown broad-phase method")

// ParseKind accepts a strategy name case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Options tunes the strategies that have knobs.
type Options struct {
	// QuadtreeMaxShapes is the number of shapes a leaf holds before it splits.
	QuadtreeMaxShapes int
	// QuadtreeMinNodeSize stops splitting once a child would be narrower.
	QuadtreeMinNodeSize float64
	// CellSizeTolerance is the relative drift of the spatial hash's target
	// cell size that forces a rebuild.
	CellSizeTolerance float64
	// InsertionSort lets the variance sweep reuse last call's order.
	InsertionSort bool
}

// DefaultOptions returns the tuning used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		QuadtreeMaxShapes:   8,
		QuadtreeMinNodeSize: 4,
		CellSizeTolerance:   0.5,
		InsertionSort:       true,
	}
}

// New constructs the strategy named by kind.
func New(kind Kind, opts Options) (Method, error) {
	switch kind {
	case KindBruteForce:
		return NewBruteForce(), nil
	case KindSAP:
		sap := NewSweepAndPrune()
		sap.SetInsertionSort(opts.InsertionSort)
		return sap, nil
	case KindSweep:
		return NewActiveListSweep(), nil
	case KindSpatialHash:
		return NewSpatialHash(opts.CellSizeTolerance), nil
	case KindQuadtree:
		return NewQuadtree(opts.QuadtreeMaxShapes, opts.QuadtreeMinNodeSize), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, string(kind))
}
