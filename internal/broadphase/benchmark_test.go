package broadphase

import (
	"fmt"
	"math/rand"
	"testing"
)

// =============================================================================
// BENCHMARK SUITE: ONE BROAD-PHASE PASS PER ITERATION
// Run with: go test -bench=. -benchmem ./internal/broadphase/...
// =============================================================================

// -----------------------------------------------------------------------------
// STATIC SETS
// -----------------------------------------------------------------------------

func BenchmarkStatic_500(b *testing.B)  { benchmarkAllKinds(b, 500, false) }
func BenchmarkStatic_2000(b *testing.B) { benchmarkAllKinds(b, 2000, false) }

// -----------------------------------------------------------------------------
// MOVING SETS (incremental paths)
// -----------------------------------------------------------------------------

func BenchmarkMoving_500(b *testing.B)  { benchmarkAllKinds(b, 500, true) }
func BenchmarkMoving_2000(b *testing.B) { benchmarkAllKinds(b, 2000, true) }

func benchmarkAllKinds(b *testing.B, n int, moving bool) {
	for _, kind := range Kinds {
		if kind == KindBruteForce && n > 1000 {
			continue
		}
		b.Run(fmt.Sprintf("%s/%d", kind, n), func(b *testing.B) {
			rng := rand.New(rand.NewSource(1))
			ts := randomShapes(rng, n, 2000, 10)
			m := newMethod(b, kind)
			m.SetShapes(asShapes(ts))

			var st Stats
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if moving {
					for _, s := range ts {
						s.moveBy(rng.Float64()-0.5, rng.Float64()-0.5)
					}
				}
				m.CalculateCollisions(&st)
			}
			b.ReportMetric(float64(st.Tests)/float64(b.N), "tests/op")
		})
	}
}
