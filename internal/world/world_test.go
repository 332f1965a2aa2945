package world

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"collide2d/internal/broadphase"

	"github.com/go-gl/mathgl/mgl64"
)

func newTestWorld(t *testing.T, kind broadphase.Kind) *World {
	t.Helper()
	w, err := New(200, 100, kind, broadphase.DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

// TestNewWorld verifies bounds validation and method selection
func TestNewWorld(t *testing.T) {
	tests := []struct {
		name    string
		w, h    float64
		kind    broadphase.Kind
		wantErr error
	}{
		{"valid", 100, 100, broadphase.KindQuadtree, nil},
		{"zero width", 0, 100, broadphase.KindSAP, ErrEmptyWorld},
		{"negative height", 10, -1, broadphase.KindSAP, ErrEmptyWorld},
		{"unknown method", 10, 10, broadphase.Kind("bvh"), broadphase.ErrUnknownMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.w, tt.h, tt.kind, broadphase.DefaultOptions())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestBodyAABB checks AABBs for both body kinds
func TestBodyAABB(t *testing.T) {
	c := NewCircle(mgl64.Vec2{10, 20}, mgl64.Vec2{}, 5)
	if box := c.AABB(); box.Min != (mgl64.Vec2{5, 15}) || box.Max != (mgl64.Vec2{15, 25}) {
		t.Errorf("circle AABB = %v", box)
	}

	b := NewBox(mgl64.Vec2{0, 0}, mgl64.Vec2{}, 3, 1)
	if box := b.AABB(); box.Min != (mgl64.Vec2{-3, -1}) || box.Max != (mgl64.Vec2{3, 1}) {
		t.Errorf("box AABB = %v", box)
	}
	if b.Kind.String() != "box" || c.Kind.String() != "circle" {
		t.Error("unexpected kind names")
	}
}

// TestBodyBouncesOffWalls keeps bodies inside the world
func TestBodyBouncesOffWalls(t *testing.T) {
	w := newTestWorld(t, broadphase.KindBruteForce)
	b := NewCircle(mgl64.Vec2{195, 50}, mgl64.Vec2{100, 0}, 4)
	w.AddBody(b)

	w.Step(0.1)

	if b.Pos.X() > 196 {
		t.Errorf("body escaped: x = %v", b.Pos.X())
	}
	if b.Vel.X() >= 0 {
		t.Errorf("velocity not reflected: vx = %v", b.Vel.X())
	}
	if got := b.AABB().Max.X(); got > 200 {
		t.Errorf("AABB not refreshed inside bounds: maxX = %v", got)
	}

	// A very fast body never ends up outside.
	fast := NewBox(mgl64.Vec2{50, 50}, mgl64.Vec2{-1e6, 1e6}, 2, 2)
	w.AddBody(fast)
	w.Step(1)
	if box := fast.AABB(); box.Min.X() < 0 || box.Max.Y() > 100 {
		t.Errorf("fast body escaped: %v", box)
	}
}

// TestStepReportsTransitions follows a pair from began to ended
func TestStepReportsTransitions(t *testing.T) {
	for _, kind := range broadphase.Kinds {
		t.Run(string(kind), func(t *testing.T) {
			w := newTestWorld(t, kind)
			a := NewCircle(mgl64.Vec2{50, 50}, mgl64.Vec2{}, 10)
			b := NewCircle(mgl64.Vec2{65, 50}, mgl64.Vec2{}, 10)
			w.SetBodies([]*Body{a, b})

			res := w.Step(0)
			if len(res.Pairs) != 1 || len(res.Began) != 1 || len(res.Ended) != 0 {
				t.Fatalf("first step: pairs=%d began=%d ended=%d", len(res.Pairs), len(res.Began), len(res.Ended))
			}
			if res.Began[0] != (broadphase.PairKey{Lo: 1, Hi: 2}) {
				t.Errorf("began = %v", res.Began)
			}

			res = w.Step(0)
			if len(res.Began) != 0 || len(res.Ended) != 0 {
				t.Errorf("steady step reported transitions: %v %v", res.Began, res.Ended)
			}

			b.Pos = mgl64.Vec2{150, 50}
			b.Refresh()
			res = w.Step(0)
			if len(res.Pairs) != 0 || len(res.Ended) != 1 {
				t.Errorf("after separation: pairs=%d ended=%v", len(res.Pairs), res.Ended)
			}
			if res.Tick != 3 {
				t.Errorf("tick = %d, want 3", res.Tick)
			}
		})
	}
}

// TestAddBodyAssignsIDs checks dense ID assignment and lookup
func TestAddBodyAssignsIDs(t *testing.T) {
	w := newTestWorld(t, broadphase.KindSpatialHash)
	w.SetBodies([]*Body{
		NewCircle(mgl64.Vec2{10, 10}, mgl64.Vec2{}, 1),
		NewCircle(mgl64.Vec2{20, 10}, mgl64.Vec2{}, 1),
	})
	id := w.AddBody(NewCircle(mgl64.Vec2{30, 10}, mgl64.Vec2{}, 1))
	if id != 3 {
		t.Fatalf("id = %d, want 3", id)
	}
	if b, ok := w.Body(3); !ok || b.Pos.X() != 30 {
		t.Errorf("Body(3) = %v, %v", b, ok)
	}
	if _, ok := w.Body(0); ok {
		t.Error("Body(0) should not exist")
	}
	if _, ok := w.Body(4); ok {
		t.Error("Body(4) should not exist")
	}
}

// TestSetMethodKeepsBodies switches strategies mid-run
func TestSetMethodKeepsBodies(t *testing.T) {
	w := newTestWorld(t, broadphase.KindBruteForce)
	rng := rand.New(rand.NewSource(5))
	w.SetBodies(Populate(rng, 200, 100, PopulateOptions{Count: 80, MinRadius: 2, MaxRadius: 6, MaxSpeed: 20, BoxRatio: 0.3}))

	want := broadphase.Keys(w.Step(0).Pairs)
	for _, kind := range broadphase.Kinds[1:] {
		if err := w.SetMethod(kind); err != nil {
			t.Fatalf("SetMethod(%s): %v", kind, err)
		}
		got := broadphase.Keys(w.Step(0).Pairs)
		if len(got) != len(want) {
			t.Fatalf("%s: %d pairs, want %d", kind, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: pair %d = %v, want %v", kind, i, got[i], want[i])
			}
		}
	}

	if err := w.SetMethod("nope"); !errors.Is(err, broadphase.ErrUnknownMethod) {
		t.Errorf("err = %v", err)
	}
	if w.Kind() != broadphase.KindQuadtree {
		t.Errorf("failed switch changed method to %s", w.Kind())
	}
}

// TestPopulateDeterministic ensures seeds reproduce scenes
func TestPopulateDeterministic(t *testing.T) {
	opts := PopulateOptions{Count: 50, MinRadius: 1, MaxRadius: 5, MaxSpeed: 10, BoxRatio: 0.5}
	a := Populate(rand.New(rand.NewSource(9)), 300, 300, opts)
	b := Populate(rand.New(rand.NewSource(9)), 300, 300, opts)

	if len(a) != 50 {
		t.Fatalf("len = %d", len(a))
	}
	boxes := 0
	for i := range a {
		if a[i].Pos != b[i].Pos || a[i].Kind != b[i].Kind {
			t.Fatalf("body %d differs", i)
		}
		hw, hh := a[i].HalfExtents()
		if a[i].Pos.X()-hw < 0 || a[i].Pos.Y()+hh > 300 {
			t.Errorf("body %d spawned outside bounds", i)
		}
		if a[i].Kind == BodyBox {
			boxes++
		}
	}
	if boxes == 0 || boxes == 50 {
		t.Errorf("boxes = %d, expected a mix", boxes)
	}
}

// TestPairTracker checks began/ended diffs
func TestPairTracker(t *testing.T) {
	s := func(id broadphase.ID) broadphase.Shape {
		b := NewCircle(mgl64.Vec2{}, mgl64.Vec2{}, 1)
		b.id = id
		return b
	}
	a, b, c := s(1), s(2), s(3)

	tr := NewPairTracker()
	began, ended := tr.Update([]broadphase.Pair{broadphase.NewPair(b, a), broadphase.NewPair(c, a)})
	if len(began) != 2 || len(ended) != 0 || tr.Active() != 2 {
		t.Fatalf("began=%v ended=%v", began, ended)
	}

	began, ended = tr.Update([]broadphase.Pair{broadphase.NewPair(a, c), broadphase.NewPair(b, c)})
	if len(began) != 1 || began[0] != (broadphase.PairKey{Lo: 2, Hi: 3}) {
		t.Errorf("began = %v", began)
	}
	if len(ended) != 1 || ended[0] != (broadphase.PairKey{Lo: 1, Hi: 2}) {
		t.Errorf("ended = %v", ended)
	}

	tr.Reset()
	if tr.Active() != 0 {
		t.Errorf("Active after reset = %d", tr.Active())
	}
}

// TestSnapshot copies bodies and pairs by value
func TestSnapshot(t *testing.T) {
	w := newTestWorld(t, broadphase.KindSweep)
	w.SetBodies([]*Body{
		NewCircle(mgl64.Vec2{50, 50}, mgl64.Vec2{1, 2}, 10),
		NewBox(mgl64.Vec2{60, 50}, mgl64.Vec2{}, 5, 5),
	})
	w.Step(0)

	snap := w.Snapshot()
	if snap.Method != "sweep" || snap.Width != 200 || snap.Tick != 1 {
		t.Errorf("header = %+v", snap)
	}
	if len(snap.Bodies) != 2 || len(snap.Pairs) != 1 {
		t.Fatalf("bodies=%d pairs=%d", len(snap.Bodies), len(snap.Pairs))
	}
	if snap.Pairs[0] != (PairSnapshot{A: 1, B: 2}) {
		t.Errorf("pair = %+v", snap.Pairs[0])
	}
	if snap.Bodies[1].Kind != "box" || snap.Bodies[1].AABB != [4]float64{55, 45, 65, 55} {
		t.Errorf("box snapshot = %+v", snap.Bodies[1])
	}

	w.Bodies()[0].Pos = mgl64.Vec2{0, 0}
	if snap.Bodies[0].X != 50 {
		t.Error("snapshot aliased live body")
	}
}

// TestEngineStartStop verifies the engine ticks and stops cleanly
func TestEngineStartStop(t *testing.T) {
	w := newTestWorld(t, broadphase.KindSAP)
	w.SetBodies(Populate(rand.New(rand.NewSource(1)), 200, 100, PopulateOptions{Count: 30, MinRadius: 2, MaxRadius: 4, MaxSpeed: 50}))

	e := NewEngine(w, EngineConfig{TickRate: 200})
	if e.Snapshot() == nil {
		t.Fatal("no initial snapshot")
	}

	var mu sync.Mutex
	steps := 0
	e.OnStep(func(StepResult) {
		mu.Lock()
		steps++
		mu.Unlock()
	})

	e.Start()
	e.Start() // no-op
	time.Sleep(100 * time.Millisecond)
	e.Stop()
	e.Stop() // should not panic

	mu.Lock()
	defer mu.Unlock()
	if steps == 0 {
		t.Fatal("engine never ticked")
	}
	if got := e.Snapshot().Tick; got != uint64(steps) {
		t.Errorf("snapshot tick = %d, want %d", got, steps)
	}
}

type fakeRecorder struct {
	calls  int
	method string
	bodies int
}

func (f *fakeRecorder) RecordStep(method string, bodies int, _ StepResult) {
	f.calls++
	f.method = method
	f.bodies = bodies
}

// TestEngineMutations covers limits, method switching and recording
func TestEngineMutations(t *testing.T) {
	w := newTestWorld(t, broadphase.KindBruteForce)
	e := NewEngine(w, EngineConfig{TickRate: 30, Limits: Limits{MaxBodies: 2}})
	rec := &fakeRecorder{}
	e.SetRecorder(rec)

	for i := 0; i < 2; i++ {
		if _, err := e.AddBody(NewCircle(mgl64.Vec2{50, 50}, mgl64.Vec2{}, 5)); err != nil {
			t.Fatalf("AddBody %d: %v", i, err)
		}
	}
	if _, err := e.AddBody(NewCircle(mgl64.Vec2{50, 50}, mgl64.Vec2{}, 5)); !errors.Is(err, ErrBodyLimit) {
		t.Errorf("err = %v, want ErrBodyLimit", err)
	}

	kind, err := e.SetMethod("QuadTree")
	if err != nil || kind != broadphase.KindQuadtree {
		t.Fatalf("SetMethod = %v, %v", kind, err)
	}
	if _, err := e.SetMethod("bogus"); !errors.Is(err, broadphase.ErrUnknownMethod) {
		t.Errorf("err = %v", err)
	}

	res := e.Tick()
	if len(res.Pairs) != 1 {
		t.Errorf("pairs = %d, want 1", len(res.Pairs))
	}
	if rec.calls != 1 || rec.method != "quadtree" || rec.bodies != 2 {
		t.Errorf("recorder = %+v", rec)
	}
	if snap := e.Snapshot(); len(snap.Pairs) != 1 || snap.Method != "quadtree" {
		t.Errorf("snapshot = %+v", snap)
	}

	if err := e.ResetBodies(make([]*Body, 3)); !errors.Is(err, ErrBodyLimit) {
		t.Errorf("err = %v", err)
	}
	if err := e.ResetBodies(nil); err != nil || e.BodyCount() != 0 {
		t.Errorf("reset: %v, count %d", err, e.BodyCount())
	}
}

// TestEngineRejectsOversizedBodies keeps bodies within the world's size
func TestEngineRejectsOversizedBodies(t *testing.T) {
	w := newTestWorld(t, broadphase.KindSpatialHash)
	e := NewEngine(w, EngineConfig{TickRate: 30})

	tests := []struct {
		name string
		body *Body
		want error
	}{
		{"huge circle", NewCircle(mgl64.Vec2{100, 50}, mgl64.Vec2{}, 3e4), ErrBodyTooLarge},
		{"circle taller than world", NewCircle(mgl64.Vec2{100, 50}, mgl64.Vec2{}, 51), ErrBodyTooLarge},
		{"wide box", NewBox(mgl64.Vec2{100, 50}, mgl64.Vec2{}, 101, 1), ErrBodyTooLarge},
		{"circle filling height", NewCircle(mgl64.Vec2{100, 50}, mgl64.Vec2{}, 50), nil},
		{"box filling world", NewBox(mgl64.Vec2{100, 50}, mgl64.Vec2{}, 100, 50), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.AddBody(tt.body)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if n := e.BodyCount(); n != 2 {
		t.Errorf("bodies = %d, want 2", n)
	}

	err := e.ResetBodies([]*Body{
		NewCircle(mgl64.Vec2{10, 10}, mgl64.Vec2{}, 1),
		NewBox(mgl64.Vec2{10, 10}, mgl64.Vec2{}, 1, 1e6),
	})
	if !errors.Is(err, ErrBodyTooLarge) || !strings.Contains(err.Error(), "shape 2") {
		t.Errorf("reset err = %v", err)
	}
	if n := e.BodyCount(); n != 2 {
		t.Errorf("rejected reset changed the scene: %d bodies", n)
	}
}

// TestEngineStartWithConcurrentMutations starts the loop while callers mutate
func TestEngineStartWithConcurrentMutations(t *testing.T) {
	w := newTestWorld(t, broadphase.KindSAP)
	e := NewEngine(w, EngineConfig{TickRate: 200})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := e.AddBody(NewCircle(mgl64.Vec2{float64(10 + 3*i), 50}, mgl64.Vec2{}, 2)); err != nil {
				t.Errorf("AddBody %d: %v", i, err)
			}
			if _, err := e.SetMethod(string(broadphase.Kinds[i%len(broadphase.Kinds)])); err != nil {
				t.Errorf("SetMethod %d: %v", i, err)
			}
		}
	}()
	e.Start()
	wg.Wait()
	e.Stop()

	if n := e.BodyCount(); n != 50 {
		t.Errorf("bodies = %d, want 50", n)
	}
}

// TestPairLogWritesJSONLines journals transitions in order
func TestPairLogWritesJSONLines(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	pl := NewPairLog()
	pl.StartWriter(&lockedWriter{mu: &mu, w: &buf})

	pl.Record(1, []broadphase.PairKey{{Lo: 1, Hi: 2}, {Lo: 1, Hi: 3}}, nil)
	pl.Record(2, nil, []broadphase.PairKey{{Lo: 1, Hi: 2}})
	pl.Stop()

	mu.Lock()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	mu.Unlock()
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}

	var last struct {
		Seq  uint64 `json:"seq"`
		Tick uint64 `json:"tick"`
		Type string `json:"type"`
		A, B uint64
	}
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if last.Seq != 3 || last.Tick != 2 || last.Type != "ended" || last.A != 1 || last.B != 2 {
		t.Errorf("last event = %+v", last)
	}

	stats := pl.Stats()
	if stats["written"].(uint64) != 3 || stats["dropped"].(uint64) != 0 {
		t.Errorf("stats = %v", stats)
	}

	// Stopped journals ignore records.
	pl.Record(3, []broadphase.PairKey{{Lo: 5, Hi: 6}}, nil)
	if pl.Stats()["total"].(uint64) != 3 {
		t.Error("record after stop was counted")
	}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// TestPairLogWritesOncePerBatch buffers a batch into a single write
func TestPairLogWritesOncePerBatch(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	cw := &countingWriter{lockedWriter: lockedWriter{mu: &mu, w: &buf}}
	pl := NewPairLog()
	pl.StartWriter(cw)

	pl.Record(1, []broadphase.PairKey{{Lo: 1, Hi: 2}, {Lo: 1, Hi: 3}}, []broadphase.PairKey{{Lo: 4, Hi: 5}})
	pl.Stop()

	mu.Lock()
	defer mu.Unlock()
	if cw.writes != 1 {
		t.Errorf("writes = %d, want 1", cw.writes)
	}
	if n := strings.Count(buf.String(), "\n"); n != 3 {
		t.Errorf("lines = %d, want 3", n)
	}
}

// TestPairLogStartFile appends to a file and closes it on stop
func TestPairLogStartFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.jsonl")
	pl := NewPairLog()
	if err := pl.Start(path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := pl.Start(path); err == nil {
		t.Error("second Start should fail")
	}
	pl.Record(4, []broadphase.PairKey{{Lo: 2, Hi: 7}}, nil)
	pl.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"tick":4`) {
		t.Errorf("file = %q", data)
	}
	if pl.Stats()["written"].(uint64) != 1 {
		t.Errorf("stats = %v", pl.Stats())
	}
}

type countingWriter struct {
	lockedWriter
	writes int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.lockedWriter.Write(p)
}
