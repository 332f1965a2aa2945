package broadphase

// BruteForce compares every pair of shapes. It is the reference the other
// methods are checked against.
type BruteForce struct {
	shapes []Shape
}

func NewBruteForce() *BruteForce {
	return &BruteForce{}
}

func (bf *BruteForce) SetShapes(shapes []Shape) {
	bf.shapes = append(bf.shapes[:0], shapes...)
}

func (bf *BruteForce) AddShape(s Shape) {
	bf.shapes = append(bf.shapes, s)
}

func (bf *BruteForce) CalculateCollisions(st *Stats) []Pair {
	set := NewPairSet(len(bf.shapes))
	BruteForcePairs(bf.shapes, set, st)
	st.finish(len(bf.shapes), set.Len())
	return set.Slice()
}

// BruteForcePairs tests all C(n,2) pairs in shapes and adds the intersecting
// ones to out. It holds no state, so grid cells and tree nodes use it to
// resolve their small buckets.
func BruteForcePairs(shapes []Shape, out *PairSet, st *Stats) {
	for i := 0; i < len(shapes); i++ {
		a := shapes[i]
		for j := i + 1; j < len(shapes); j++ {
			b := shapes[j]
			if testPair(a, b, st) {
				out.Add(NewPair(a, b))
			}
		}
	}
}
