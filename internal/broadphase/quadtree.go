package broadphase

import (
	"math"

	"collide2d/internal/geom"
)

const noNode int32 = -1

// Quadtree partitions space recursively into quadrants. Shapes live in leaves;
// a shape straddling a split line is stored in every leaf it touches, and the
// pair set collapses the duplicates this produces.
//
// Nodes are kept in an arena and refer to each other by index, so parent links
// are plain integers. A side table records, per shape, the leaves that hold it
// and the AABB it was routed with. When that AABB changes the shape is evicted
// from its leaves, climbs to the nearest ancestor whose interior contains it
// (insertUp) and descends again from there (insertDown). Subtrees left empty
// are pruned after each update.
//
// A leaf splits once it holds more than maxShapes, unless its quadrants would
// be narrower than minSize; that bound also guarantees insertion terminates
// for coincident or zero-size shapes.
type Quadtree struct {
	maxShapes int
	minSize   float64

	shapes  []Shape
	nodes   []qnode
	free    []int32
	root    int32
	entries map[ID]*qentry
	stamp   uint64

	stale []staleEntry // scratch for update
}

type qnode struct {
	box      geom.AABB
	parent   int32
	children [4]int32
	shapes   []Shape
}

type qentry struct {
	shape  Shape
	box    geom.AABB // AABB the shape was routed with
	leaves []int32
	stamp  uint64
}

type staleEntry struct {
	entry *qentry
	leaf  int32
}

// NewQuadtree creates an empty tree. maxShapes < 1 is treated as 1 and a
// non-positive minSize falls back to the default.
func NewQuadtree(maxShapes int, minSize float64) *Quadtree {
	if maxShapes < 1 {
		maxShapes = 1
	}
	if minSize <= 0 || math.IsNaN(minSize) {
		minSize = DefaultOptions().QuadtreeMinNodeSize
	}
	return &Quadtree{
		maxShapes: maxShapes,
		minSize:   minSize,
		root:      noNode,
		entries:   map[ID]*qentry{},
	}
}

// Bounds returns the root box, or false when the tree is empty.
func (q *Quadtree) Bounds() (geom.AABB, bool) {
	if q.root == noNode {
		return geom.AABB{}, false
	}
	return q.nodes[q.root].box, true
}

// Leaves calls fn for every node that has no children, with the shapes it
// holds locally.
func (q *Quadtree) Leaves(fn func(box geom.AABB, shapes []Shape)) {
	if q.root == noNode {
		return
	}
	q.walk(q.root, func(n int32) {
		if q.isLeaf(n) {
			fn(q.nodes[n].box, q.nodes[n].shapes)
		}
	})
}

func (q *Quadtree) SetShapes(shapes []Shape) {
	q.shapes = append(q.shapes[:0], shapes...)
	q.rebuild()
}

func (q *Quadtree) AddShape(s Shape) {
	q.shapes = append(q.shapes, s)
	if q.root == noNode || !geom.Contains(q.nodes[q.root].box, s.AABB()) {
		q.rebuild()
		return
	}
	e := &qentry{shape: s, box: s.AABB()}
	q.entries[s.ID()] = e
	q.insertDown(q.root, e)
}

func (q *Quadtree) CalculateCollisions(st *Stats) []Pair {
	set := NewPairSet(len(q.shapes))
	if q.root == noNode {
		st.finish(len(q.shapes), 0)
		return set.Slice()
	}

	if q.escapedRoot() {
		q.rebuild()
		st.addRebuild()
	} else {
		st.addReinserted(q.update())
	}

	q.walk(q.root, func(n int32) {
		local := q.nodes[n].shapes
		if len(local) == 0 {
			return
		}
		st.observeBucket(len(local))
		if len(local) > 1 {
			BruteForcePairs(local, set, st)
		}
	})
	st.finish(len(q.shapes), set.Len())
	return set.Slice()
}

// escapedRoot reports whether any shape left the root box.
func (q *Quadtree) escapedRoot() bool {
	rootBox := q.nodes[q.root].box
	for _, s := range q.shapes {
		if !geom.Contains(rootBox, s.AABB()) {
			return true
		}
	}
	return false
}

// rebuild discards the tree and inserts every shape from a fresh root sized
// to the current bounds.
func (q *Quadtree) rebuild() {
	q.nodes = q.nodes[:0]
	q.free = q.free[:0]
	q.root = noNode
	q.entries = make(map[ID]*qentry, len(q.shapes))
	if len(q.shapes) == 0 {
		return
	}

	bounds := geom.InvertedAABB()
	for _, s := range q.shapes {
		bounds = bounds.Union(s.AABB())
	}
	q.root = q.newNode(rootBox(bounds), noNode)

	for _, s := range q.shapes {
		e := &qentry{shape: s, box: s.AABB()}
		q.entries[s.ID()] = e
		q.insertDown(q.root, e)
	}
}

// rootBox is a square around bounds with a margin, so small motions do not
// force a rebuild.
func rootBox(bounds geom.AABB) geom.AABB {
	side := bounds.MaxExtent()
	half := side*0.5 + side*0.1 + 1
	c := bounds.Center()
	return geom.NewAABB(c[0]-half, c[1]-half, c[0]+half, c[1]+half)
}

// update re-routes every shape whose AABB changed and prunes empty subtrees.
// It returns the number of shapes moved.
func (q *Quadtree) update() int {
	q.stamp++
	q.stale = q.stale[:0]
	q.collectStale(q.root)

	for _, se := range q.stale {
		e := se.entry
		q.detach(e)
		e.box = e.shape.AABB()
		q.insertUp(se.leaf, e)
	}
	moved := len(q.stale)
	q.prune(q.root)
	return moved
}

// collectStale visits nodes in post-order and queues shapes whose current
// AABB no longer matches the box they were routed with.
func (q *Quadtree) collectStale(n int32) {
	for _, c := range q.nodes[n].children {
		if c != noNode {
			q.collectStale(c)
		}
	}
	for _, s := range q.nodes[n].shapes {
		e := q.entries[s.ID()]
		if e.stamp == q.stamp || e.shape.AABB() == e.box {
			continue
		}
		e.stamp = q.stamp
		q.stale = append(q.stale, staleEntry{entry: e, leaf: n})
	}
}

// insertUp climbs from leaf to the nearest node whose interior holds the
// shape, then inserts downward from there. Strict containment matters: a
// shape touching an ancestor's edge could touch a leaf outside it.
func (q *Quadtree) insertUp(leaf int32, e *qentry) {
	n := leaf
	for n != q.root && !geom.ContainsStrict(q.nodes[n].box, e.box) {
		n = q.nodes[n].parent
	}
	q.insertDown(n, e)
}

// insertDown stores e in n if n is a leaf with room (or too small to split),
// otherwise routes it into every child quadrant its box intersects.
func (q *Quadtree) insertDown(n int32, e *qentry) {
	if q.isLeaf(n) {
		if len(q.nodes[n].shapes) < q.maxShapes || !q.canSplit(n) {
			q.nodes[n].shapes = append(q.nodes[n].shapes, e.shape)
			e.leaves = append(e.leaves, n)
			return
		}
		q.split(n)
	}
	q.routeToChildren(n, e)
}

func (q *Quadtree) routeToChildren(n int32, e *qentry) {
	for i := 0; i < 4; i++ {
		if !geom.Intersects(q.nodes[n].box.Quadrant(i), e.box) {
			continue
		}
		q.insertDown(q.child(n, i), e)
	}
}

// split turns leaf n into an internal node, pushing its shapes into children.
func (q *Quadtree) split(n int32) {
	local := q.nodes[n].shapes
	q.nodes[n].shapes = nil
	for _, s := range local {
		e := q.entries[s.ID()]
		e.dropLeaf(n)
		q.routeToChildren(n, e)
	}
}

func (q *Quadtree) canSplit(n int32) bool {
	box := q.nodes[n].box
	return box.Width()*0.5 >= q.minSize && box.Height()*0.5 >= q.minSize
}

func (q *Quadtree) isLeaf(n int32) bool {
	c := q.nodes[n].children
	return c[0] == noNode && c[1] == noNode && c[2] == noNode && c[3] == noNode
}

// child returns quadrant i of n, creating it on first use.
func (q *Quadtree) child(n int32, i int) int32 {
	if c := q.nodes[n].children[i]; c != noNode {
		return c
	}
	c := q.newNode(q.nodes[n].box.Quadrant(i), n)
	q.nodes[n].children[i] = c
	return c
}

func (q *Quadtree) newNode(box geom.AABB, parent int32) int32 {
	node := qnode{
		box:      box,
		parent:   parent,
		children: [4]int32{noNode, noNode, noNode, noNode},
	}
	if k := len(q.free); k > 0 {
		idx := q.free[k-1]
		q.free = q.free[:k-1]
		node.shapes = q.nodes[idx].shapes[:0]
		q.nodes[idx] = node
		return idx
	}
	q.nodes = append(q.nodes, node)
	return int32(len(q.nodes) - 1)
}

// detach removes e from every leaf that holds it.
func (q *Quadtree) detach(e *qentry) {
	id := e.shape.ID()
	for _, l := range e.leaves {
		q.nodes[l].shapes = removeShape(q.nodes[l].shapes, id)
	}
	e.leaves = e.leaves[:0]
}

// prune frees empty child subtrees and returns the number of shapes stored
// in n's subtree.
func (q *Quadtree) prune(n int32) int {
	count := len(q.nodes[n].shapes)
	for i, c := range q.nodes[n].children {
		if c == noNode {
			continue
		}
		sub := q.prune(c)
		if sub == 0 {
			q.nodes[n].children[i] = noNode
			q.free = append(q.free, c)
			continue
		}
		count += sub
	}
	return count
}

func (q *Quadtree) walk(n int32, fn func(int32)) {
	fn(n)
	for _, c := range q.nodes[n].children {
		if c != noNode {
			q.walk(c, fn)
		}
	}
}

func (e *qentry) dropLeaf(n int32) {
	for i, l := range e.leaves {
		if l == n {
			e.leaves = append(e.leaves[:i], e.leaves[i+1:]...)
			return
		}
	}
}
