package broadphase

// Stats counts the work done by one CalculateCollisions call. The caller owns
// it and passes it in; a nil *Stats disables counting. Methods only add to the
// counters, so a caller may accumulate several calls into one Stats.
type Stats struct {
	Shapes      int   // shapes in the working set
	Tests       int64 // AABB intersection tests performed
	Pairs       int   // candidate pairs returned
	Rebuilds    int   // full teardown and rebuild of method state
	Reinserted  int   // shapes moved within the structure incrementally
	Buckets     int   // occupied grid cells or tree nodes holding shapes
	MaxInBucket int   // largest cell or node population seen
}

// Reset zeroes every counter.
func (st *Stats) Reset() {
	if st == nil {
		return
	}
	*st = Stats{}
}

func (st *Stats) addTest() {
	if st != nil {
		st.Tests++
	}
}

func (st *Stats) addRebuild() {
	if st != nil {
		st.Rebuilds++
	}
}

func (st *Stats) addReinserted(n int) {
	if st != nil {
		st.Reinserted += n
	}
}

func (st *Stats) observeBucket(size int) {
	if st == nil {
		return
	}
	st.Buckets++
	if size > st.MaxInBucket {
		st.MaxInBucket = size
	}
}

func (st *Stats) finish(shapes, pairs int) {
	if st == nil {
		return
	}
	st.Shapes += shapes
	st.Pairs += pairs
}

// testPair runs the AABB test and counts it.
func testPair(a, b Shape, st *Stats) bool {
	st.addTest()
	ba, bb := a.AABB(), b.AABB()
	return ba.Intersects(bb)
}
