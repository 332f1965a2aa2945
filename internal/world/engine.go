package world

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"collide2d/internal/broadphase"
)

var (
	// ErrBodyLimit is returned when adding bodies would exceed Limits.MaxBodies.
	ErrBodyLimit = errors.New("body limit reached")
	// ErrBodyTooLarge is returned for a body wider or taller than the world.
	ErrBodyTooLarge = errors.New("body larger than world")
)

// CheckSize rejects a body whose bounds do not fit a width x height world.
func CheckSize(b *Body, width, height float64) error {
	hw, hh := b.HalfExtents()
	if 2*hw > width || 2*hh > height {
		return fmt.Errorf("%w (%gx%g in %gx%g)", ErrBodyTooLarge, 2*hw, 2*hh, width, height)
	}
	return nil
}

// Limits caps what API callers can make the engine do.
type Limits struct {
	MaxBodies int
}

// DefaultLimits provides production-safe default limits.
func DefaultLimits() Limits {
	return Limits{MaxBodies: 20_000}
}

// Recorder receives per-tick measurements; the api package backs it with
// Prometheus.
type Recorder interface {
	RecordStep(method string, bodies int, res StepResult)
}

// EngineConfig configures NewEngine.
type EngineConfig struct {
	TickRate int
	Limits   Limits
}

// Engine drives a World from a ticker and makes it safe to use from HTTP
// handlers. Every mutation goes through the engine lock; readers use the
// snapshot published after each tick.
type Engine struct {
	mu    sync.Mutex
	world *World

	tickRate int
	limits   Limits
	running  bool
	stopped  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	doneChan chan struct{}

	snapshots snapshotStore
	recorder  Recorder
	pairLog   *PairLog
	onStep    func(StepResult)
}

// NewEngine wraps w. A non-positive tick rate falls back to 30.
func NewEngine(w *World, cfg EngineConfig) *Engine {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 30
	}
	if cfg.Limits.MaxBodies <= 0 {
		cfg.Limits = DefaultLimits()
	}
	e := &Engine{
		world:    w,
		tickRate: cfg.TickRate,
		limits:   cfg.Limits,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	e.snapshots.publish(w.Snapshot())
	return e
}

// SetRecorder installs the metrics sink. Call before Start.
func (e *Engine) SetRecorder(r Recorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder = r
}

// SetPairLog installs a running pair journal. Call before Start.
func (e *Engine) SetPairLog(pl *PairLog) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pairLog = pl
}

// OnStep registers fn to run after each tick, outside the engine lock.
func (e *Engine) OnStep(fn func(StepResult)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStep = fn
}

// Start begins the tick loop. An engine cannot be restarted after Stop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running || e.stopped {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.ticker = time.NewTicker(time.Second / time.Duration(e.tickRate))
	kind, n := e.world.Kind(), e.world.Len()
	e.mu.Unlock()

	go func() {
		defer close(e.doneChan)
		for {
			select {
			case <-e.ticker.C:
				e.Tick()
			case <-e.stopChan:
				return
			}
		}
	}()

	log.Printf("🎮 Collision engine started at %d TPS (%s, %d bodies)", e.tickRate, kind, n)
}

// Stop halts the tick loop and waits for the current tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.stopped = true
		e.mu.Unlock()
		return
	}
	e.running = false
	e.stopped = true
	e.ticker.Stop()
	close(e.stopChan)
	e.mu.Unlock()

	<-e.doneChan
	log.Println("🛑 Collision engine stopped")
}

// Tick advances the world by one tick interval and publishes a snapshot.
func (e *Engine) Tick() StepResult {
	e.mu.Lock()
	res := e.world.Step(1.0 / float64(e.tickRate))
	e.afterStepLocked(res)
	onStep := e.onStep
	e.mu.Unlock()

	if onStep != nil {
		onStep(res)
	}
	return res
}

func (e *Engine) afterStepLocked(res StepResult) {
	if e.recorder != nil {
		e.recorder.RecordStep(string(e.world.Kind()), e.world.Len(), res)
	}
	if e.pairLog != nil {
		e.pairLog.Record(res.Tick, res.Began, res.Ended)
	}
	e.snapshots.publish(e.world.Snapshot())
}

// Snapshot returns the latest published state without locking.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshots.load()
}

// AddBody adds one body through the method's incremental path.
func (e *Engine) AddBody(b *Body) (broadphase.ID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.world.Len() >= e.limits.MaxBodies {
		log.Printf("⚠️ Body limit reached (%d), rejecting add", e.limits.MaxBodies)
		return 0, fmt.Errorf("%w (%d)", ErrBodyLimit, e.limits.MaxBodies)
	}
	bounds := e.world.Bounds()
	if err := CheckSize(b, bounds.Width(), bounds.Height()); err != nil {
		return 0, err
	}
	id := e.world.AddBody(b)
	return id, nil
}

// ResetBodies replaces the whole scene and rebuilds the method.
func (e *Engine) ResetBodies(bodies []*Body) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(bodies) > e.limits.MaxBodies {
		return fmt.Errorf("%w (%d > %d)", ErrBodyLimit, len(bodies), e.limits.MaxBodies)
	}
	bounds := e.world.Bounds()
	for i, b := range bodies {
		if err := CheckSize(b, bounds.Width(), bounds.Height()); err != nil {
			return fmt.Errorf("shape %d: %w", i+1, err)
		}
	}
	e.world.SetBodies(bodies)
	log.Printf("♻️ Scene reset: %d bodies", len(bodies))
	return nil
}

// SetMethod switches the broad-phase strategy by name.
func (e *Engine) SetMethod(name string) (broadphase.Kind, error) {
	kind, err := broadphase.ParseKind(name)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.world.SetMethod(kind); err != nil {
		return "", err
	}
	log.Printf("🔀 Broad phase switched to %s", kind)
	return kind, nil
}

// Method returns the active strategy.
func (e *Engine) Method() broadphase.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Kind()
}

// BodyCount returns the number of bodies.
func (e *Engine) BodyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.Len()
}

// Limits returns the configured limits.
func (e *Engine) Limits() Limits {
	return e.limits
}

// TickRate returns the configured tick rate.
func (e *Engine) TickRate() int {
	return e.tickRate
}
