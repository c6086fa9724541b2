package journal

import (
	"sync"
	"time"

	"stronghold/server/internal/sim"
)

// Telemetry captures the metrics adapter used by the journal to report
// eviction and lookup misses.
type Telemetry interface {
	RecordJournalDrop(metric string)
}

const (
	metricKeyframeMiss    = "journal_keyframe_miss"
	metricKeyframeEvicted = "journal_keyframe_evicted"
)

// Keyframe captures the full-state snapshot stored in the rolling buffer.
// Clients that fall outside the patch window rehydrate from the newest frame.
type Keyframe struct {
	Sequence   uint64       `json:"sequence"`
	Tick       uint64       `json:"tick"`
	Snapshot   sim.Snapshot `json:"snapshot"`
	RecordedAt time.Time    `json:"recordedAt"`
}

// KeyframeEviction describes a keyframe dropped from the buffer and why.
type KeyframeEviction struct {
	Sequence uint64 `json:"sequence"`
	Tick     uint64 `json:"tick"`
	Reason   string `json:"reason,omitempty"`
}

// KeyframeRecordResult reports buffer state after storing a keyframe.
type KeyframeRecordResult struct {
	Size           int                `json:"size"`
	OldestSequence uint64             `json:"oldestSequence"`
	NewestSequence uint64             `json:"newestSequence"`
	Evicted        []KeyframeEviction `json:"evicted,omitempty"`
}

// TickPatches is one tick's diff batch retained for replay to lagging
// subscribers.
type TickPatches struct {
	Tick    uint64      `json:"t"`
	Patches []sim.Patch `json:"patches"`
}

// Journal keeps a rolling buffer of recent keyframes and per-tick patch
// batches, plus the per-subscriber ack watermarks that bound what each client
// still needs. Safe for concurrent use.
type Journal struct {
	mu        sync.RWMutex
	history   []TickPatches
	maxTicks  int
	keyframes []Keyframe
	maxFrames int
	maxAge    time.Duration
	nextSeq   uint64
	acks      map[string]uint64
	telemetry Telemetry
}

// Config tunes journal retention.
type Config struct {
	KeyframeCapacity int
	KeyframeMaxAge   time.Duration
	PatchHistory     int
}

// DefaultConfig retains four keyframes for up to a minute and three seconds
// of patch history at 20 Hz.
func DefaultConfig() Config {
	return Config{
		KeyframeCapacity: 4,
		KeyframeMaxAge:   time.Minute,
		PatchHistory:     60,
	}
}

// New constructs a journal with the configured retention limits.
func New(cfg Config, telemetry Telemetry) *Journal {
	if cfg.KeyframeCapacity < 0 {
		cfg.KeyframeCapacity = 0
	}
	if cfg.KeyframeMaxAge < 0 {
		cfg.KeyframeMaxAge = 0
	}
	if cfg.PatchHistory < 0 {
		cfg.PatchHistory = 0
	}
	return &Journal{
		history:   make([]TickPatches, 0, cfg.PatchHistory),
		maxTicks:  cfg.PatchHistory,
		keyframes: make([]Keyframe, 0, cfg.KeyframeCapacity),
		maxFrames: cfg.KeyframeCapacity,
		maxAge:    cfg.KeyframeMaxAge,
		acks:      make(map[string]uint64),
		telemetry: telemetry,
	}
}

// AppendTick records one tick's patch batch, evicting the oldest batch once
// the history window is full. Empty batches are stored too so PatchesSince
// can distinguish "no changes" from "window exceeded".
func (j *Journal) AppendTick(tick uint64, patches []sim.Patch) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.maxTicks == 0 {
		return
	}
	copied := make([]sim.Patch, len(patches))
	copy(copied, patches)
	j.history = append(j.history, TickPatches{Tick: tick, Patches: copied})
	if overflow := len(j.history) - j.maxTicks; overflow > 0 {
		copy(j.history, j.history[overflow:])
		j.history = j.history[:len(j.history)-overflow]
	}
}

// PatchesSince returns every retained batch after the given tick, oldest
// first. The second result is false when the window no longer reaches back to
// afterTick, meaning the caller needs a keyframe instead.
func (j *Journal) PatchesSince(afterTick uint64) ([]TickPatches, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.history) == 0 {
		return nil, true
	}
	if j.history[0].Tick > afterTick+1 {
		return nil, false
	}
	var out []TickPatches
	for _, batch := range j.history {
		if batch.Tick > afterTick {
			out = append(out, batch)
		}
	}
	return out, true
}

// RecordKeyframe stores a snapshot, assigns its sequence and enforces
// retention by count and age.
func (j *Journal) RecordKeyframe(tick uint64, snapshot sim.Snapshot) (Keyframe, KeyframeRecordResult) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.maxFrames == 0 {
		j.keyframes = j.keyframes[:0]
		return Keyframe{}, KeyframeRecordResult{}
	}

	j.nextSeq++
	frame := Keyframe{
		Sequence:   j.nextSeq,
		Tick:       tick,
		Snapshot:   snapshot,
		RecordedAt: time.Now(),
	}
	j.keyframes = append(j.keyframes, frame)

	evicted := make([]KeyframeEviction, 0)
	if j.maxAge > 0 {
		cutoff := frame.RecordedAt.Add(-j.maxAge)
		idx := 0
		for idx < len(j.keyframes) && j.keyframes[idx].RecordedAt.Before(cutoff) {
			evicted = append(evicted, KeyframeEviction{
				Sequence: j.keyframes[idx].Sequence,
				Tick:     j.keyframes[idx].Tick,
				Reason:   "expired",
			})
			idx++
		}
		if idx > 0 {
			copy(j.keyframes, j.keyframes[idx:])
			j.keyframes = j.keyframes[:len(j.keyframes)-idx]
		}
	}
	if overflow := len(j.keyframes) - j.maxFrames; overflow > 0 {
		for i := 0; i < overflow; i++ {
			evicted = append(evicted, KeyframeEviction{
				Sequence: j.keyframes[i].Sequence,
				Tick:     j.keyframes[i].Tick,
				Reason:   "count",
			})
		}
		copy(j.keyframes, j.keyframes[overflow:])
		j.keyframes = j.keyframes[:len(j.keyframes)-overflow]
	}
	if len(evicted) > 0 && j.telemetry != nil {
		for range evicted {
			j.telemetry.RecordJournalDrop(metricKeyframeEvicted)
		}
	}

	result := KeyframeRecordResult{Size: len(j.keyframes), Evicted: evicted}
	if result.Size > 0 {
		result.OldestSequence = j.keyframes[0].Sequence
		result.NewestSequence = j.keyframes[result.Size-1].Sequence
	}
	return frame, result
}

// KeyframeBySequence returns the keyframe matching the provided sequence.
func (j *Journal) KeyframeBySequence(sequence uint64) (Keyframe, bool) {
	if sequence == 0 {
		return Keyframe{}, false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, frame := range j.keyframes {
		if frame.Sequence == sequence {
			return frame, true
		}
	}
	if j.telemetry != nil {
		j.telemetry.RecordJournalDrop(metricKeyframeMiss)
	}
	return Keyframe{}, false
}

// LatestKeyframe returns the newest retained keyframe.
func (j *Journal) LatestKeyframe() (Keyframe, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.keyframes) == 0 {
		return Keyframe{}, false
	}
	return j.keyframes[len(j.keyframes)-1], true
}

// KeyframeWindow reports the current retention window.
func (j *Journal) KeyframeWindow() (size int, oldest, newest uint64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	size = len(j.keyframes)
	if size == 0 {
		return size, 0, 0
	}
	return size, j.keyframes[0].Sequence, j.keyframes[size-1].Sequence
}

// RecordAck advances a subscriber's watermark. Stale acks never move it
// backwards.
func (j *Journal) RecordAck(subscriberID string, tick uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if current, ok := j.acks[subscriberID]; !ok || tick > current {
		j.acks[subscriberID] = tick
	}
}

// AckOf reports a subscriber's last acknowledged tick.
func (j *Journal) AckOf(subscriberID string) uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.acks[subscriberID]
}

// ForgetSubscriber drops a subscriber's watermark after its session closes.
func (j *Journal) ForgetSubscriber(subscriberID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.acks, subscriberID)
}
