// Package buffer implements the sample batch buffer: a pending-persist
// accumulator drained by the persistence worker, plus a fixed-capacity live
// window kept purely for in-process graphing.
package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/xtxerr/speedhist/internal/history/types"
)

// Buffer collects incoming per-interface samples between flush cycles.
// The live window and the pending batch are independent: the window holds
// every interface (negligible speeds included), the batch holds only samples
// worth persisting. All methods are safe for concurrent use.
type Buffer struct {
	mu sync.Mutex

	threshold float64

	// Pending-persist batch, drained by TakeAndClear.
	pending []types.Sample

	// Live window ring. Oldest entries are evicted on overflow.
	window   []types.SpeedSnapshot
	head     int // next write position
	count    int
	capacity int

	// Statistics
	samplesSeen   atomic.Int64
	samplesQueued atomic.Int64
	evictions     atomic.Int64
}

// New creates a Buffer with the given live-window capacity and
// negligibility threshold in bytes/sec.
func New(capacity int, threshold float64) *Buffer {
	if capacity <= 0 {
		capacity = 600
	}
	return &Buffer{
		threshold: threshold,
		window:    make([]types.SpeedSnapshot, capacity),
		capacity:  capacity,
	}
}

// Add records one polling cycle's readings. Every interface enters the live
// window; only entries whose upload or download rate reaches the threshold
// join the pending-persist batch.
func (b *Buffer) Add(timestamp int64, speeds map[string]types.Speed) {
	snapshot := types.SpeedSnapshot{
		Timestamp: timestamp,
		Speeds:    make(map[string]types.Speed, len(speeds)),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for name, speed := range speeds {
		snapshot.Speeds[name] = speed
		b.samplesSeen.Add(1)

		if speed.Negligible(b.threshold) {
			continue
		}
		b.pending = append(b.pending, types.Sample{
			Timestamp: timestamp,
			Interface: name,
			Upload:    speed.Upload,
			Download:  speed.Download,
		})
		b.samplesQueued.Add(1)
	}

	if b.count >= b.capacity {
		b.evictions.Add(1)
	} else {
		b.count++
	}
	b.window[b.head] = snapshot
	b.head = (b.head + 1) % b.capacity
}

// TakeAndClear atomically returns and empties the pending-persist batch.
// Returns nil when the batch is already empty.
func (b *Buffer) TakeAndClear() []types.Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil
	}

	batch := b.pending
	b.pending = nil
	return batch
}

// PendingLen returns the current pending-persist batch size.
func (b *Buffer) PendingLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Window returns a copy of the live window, ordered oldest to newest.
func (b *Buffer) Window() []types.SpeedSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	out := make([]types.SpeedSnapshot, 0, b.count)
	start := b.head - b.count
	if start < 0 {
		start += b.capacity
	}
	for i := 0; i < b.count; i++ {
		out = append(out, b.window[(start+i)%b.capacity])
	}
	return out
}

// WindowLen returns the current number of live-window entries.
func (b *Buffer) WindowLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the live-window capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Stats returns buffer statistics.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	pending := len(b.pending)
	windowCount := b.count
	b.mu.Unlock()

	return Stats{
		SamplesSeen:   b.samplesSeen.Load(),
		SamplesQueued: b.samplesQueued.Load(),
		Evictions:     b.evictions.Load(),
		PendingCount:  pending,
		WindowCount:   windowCount,
	}
}

// Stats holds buffer statistics.
type Stats struct {
	SamplesSeen   int64
	SamplesQueued int64
	Evictions     int64
	PendingCount  int
	WindowCount   int
}
