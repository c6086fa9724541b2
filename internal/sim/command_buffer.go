package sim

import (
	"sync"

	"stronghold/server/internal/telemetry"
)

const (
	metricCommandQueueDepth    = "sim_command_queue_depth"
	metricCommandQueueOverflow = "sim_command_queue_overflow_total"
)

// CommandBuffer collects staged commands between ticks. Producers push
// concurrently from connection goroutines; the loop drains the whole batch
// once per tick, so the buffer never needs to track a read cursor.
type CommandBuffer struct {
	mu       sync.Mutex
	pending  []Command
	capacity int
	metrics  telemetry.Metrics
}

// NewCommandBuffer constructs a buffer that holds at most capacity commands.
func NewCommandBuffer(capacity int, metrics telemetry.Metrics) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CommandBuffer{
		pending:  make([]Command, 0, capacity),
		capacity: capacity,
		metrics:  metrics,
	}
}

// Capacity reports the maximum number of commands the buffer can hold.
func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	return b.capacity
}

// Push stages a command, returning false if the buffer is full.
func (b *CommandBuffer) Push(cmd Command) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == b.capacity {
		if b.metrics != nil {
			b.metrics.Add(metricCommandQueueOverflow, 1)
		}
		return false
	}
	if b.pending == nil {
		b.pending = make([]Command, 0, b.capacity)
	}
	b.pending = append(b.pending, cmd)
	b.storeDepthLocked()
	return true
}

// Drain hands back all staged commands in arrival order and clears the
// buffer. Ownership of the returned slice passes to the caller.
func (b *CommandBuffer) Drain() []Command {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	drained := b.pending
	b.pending = nil
	b.storeDepthLocked()
	return drained
}

// Len reports the number of staged commands.
func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *CommandBuffer) storeDepthLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(metricCommandQueueDepth, uint64(len(b.pending)))
}
