package world

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"collide2d/internal/broadphase"

	"golang.org/x/time/rate"
)

const (
	PairLogBufferSize    = 4096                   // Ring buffer capacity
	MaxPairEventsPerSec  = 50000                  // Global rate limit
	PairLogFlushSize     = 256                    // Events per batch write
	PairLogFlushInterval = 100 * time.Millisecond // How often to flush
	pairLogWriteBuffer   = 64 << 10               // Holds a full batch
)

// PairEventType says whether a pair started or stopped overlapping.
type PairEventType uint8

const (
	PairBegan PairEventType = iota + 1
	PairEnded
)

func (t PairEventType) String() string {
	switch t {
	case PairBegan:
		return "began"
	case PairEnded:
		return "ended"
	default:
		return "unknown"
	}
}

func (t PairEventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// PairEvent is one line of the pair journal.
type PairEvent struct {
	Sequence  uint64        `json:"seq"`
	Timestamp int64         `json:"ts"` // Unix nano
	Tick      uint64        `json:"tick"`
	Type      PairEventType `json:"type"`
	A         uint64        `json:"a"`
	B         uint64        `json:"b"`
}

// PairLog is a bounded, rate-limited journal of pair began/ended events,
// written as newline-delimited JSON by a background goroutine. When the
// producer outruns the writer the oldest pending events are dropped.
type PairLog struct {
	mu       sync.Mutex
	buffer   []PairEvent // ring, len PairLogBufferSize
	head     uint64      // next write position
	tail     uint64      // next read position
	sequence uint64

	limiter *rate.Limiter

	dst      io.Writer
	out      *bufio.Writer
	enc      *json.Encoder
	closer   io.Closer
	stopChan chan struct{}
	stopOnce sync.Once
	writerWg sync.WaitGroup
	running  atomic.Bool

	dropped atomic.Uint64
	total   atomic.Uint64
	written atomic.Uint64
}

// NewPairLog creates a stopped journal.
func NewPairLog() *PairLog {
	return &PairLog{
		buffer:   make([]PairEvent, PairLogBufferSize),
		limiter:  rate.NewLimiter(MaxPairEventsPerSec, MaxPairEventsPerSec/10),
		stopChan: make(chan struct{}),
	}
}

// Start opens path for append and begins the writer goroutine.
func (pl *PairLog) Start(path string) error {
	if pl.running.Load() {
		return fmt.Errorf("pair log already running")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open pair log: %w", err)
	}
	pl.closer = f
	pl.StartWriter(f)
	return nil
}

// StartWriter begins writing to w. Calling it on a running journal is a no-op.
func (pl *PairLog) StartWriter(w io.Writer) {
	if !pl.running.CompareAndSwap(false, true) {
		return
	}
	pl.dst = w
	pl.out = bufio.NewWriterSize(w, pairLogWriteBuffer)
	pl.enc = json.NewEncoder(pl.out)
	pl.writerWg.Add(1)
	go pl.writerLoop()
}

// Stop flushes what is pending and closes the file.
func (pl *PairLog) Stop() {
	pl.stopOnce.Do(func() {
		if !pl.running.Load() {
			return
		}
		close(pl.stopChan)
		pl.writerWg.Wait()
		pl.running.Store(false)
		if pl.closer != nil {
			pl.closer.Close()
		}
	})
}

// Record queues the transitions of one tick. It never blocks on I/O.
func (pl *PairLog) Record(tick uint64, began, ended []broadphase.PairKey) {
	if !pl.running.Load() {
		return
	}
	now := time.Now().UnixNano()

	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.enqueue(now, tick, PairBegan, began)
	pl.enqueue(now, tick, PairEnded, ended)
}

func (pl *PairLog) enqueue(now int64, tick uint64, typ PairEventType, keys []broadphase.PairKey) {
	for _, k := range keys {
		if !pl.limiter.Allow() {
			pl.dropped.Add(1)
			continue
		}
		if pl.head-pl.tail >= PairLogBufferSize {
			pl.tail++
			pl.dropped.Add(1)
		}
		pl.sequence++
		pl.buffer[pl.head%PairLogBufferSize] = PairEvent{
			Sequence:  pl.sequence,
			Timestamp: now,
			Tick:      tick,
			Type:      typ,
			A:         uint64(k.Lo),
			B:         uint64(k.Hi),
		}
		pl.head++
		pl.total.Add(1)
	}
}

func (pl *PairLog) writerLoop() {
	defer pl.writerWg.Done()

	ticker := time.NewTicker(PairLogFlushInterval)
	defer ticker.Stop()

	batch := make([]PairEvent, 0, PairLogFlushSize)
	for {
		select {
		case <-pl.stopChan:
			for {
				batch = pl.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				pl.flushBatch(batch)
			}
		case <-ticker.C:
			batch = pl.collectBatch(batch[:0])
			if len(batch) > 0 {
				pl.flushBatch(batch)
			}
		}
	}
}

func (pl *PairLog) collectBatch(batch []PairEvent) []PairEvent {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	for pl.tail < pl.head && len(batch) < PairLogFlushSize {
		batch = append(batch, pl.buffer[pl.tail%PairLogBufferSize])
		pl.tail++
	}
	return batch
}

// flushBatch encodes batch into the buffer and writes it out once. If the
// write fails the whole batch counts as dropped.
func (pl *PairLog) flushBatch(batch []PairEvent) {
	var n uint64
	for _, ev := range batch {
		if err := pl.enc.Encode(ev); err != nil {
			pl.dropped.Add(1)
			continue
		}
		n++
	}
	if err := pl.out.Flush(); err != nil {
		pl.out.Reset(pl.dst)
		pl.dropped.Add(n)
		return
	}
	pl.written.Add(n)
}

// Stats returns counters for monitoring.
func (pl *PairLog) Stats() map[string]interface{} {
	pl.mu.Lock()
	pending := pl.head - pl.tail
	pl.mu.Unlock()

	return map[string]interface{}{
		"total":   pl.total.Load(),
		"written": pl.written.Load(),
		"dropped": pl.dropped.Load(),
		"pending": pending,
		"running": pl.running.Load(),
	}
}
