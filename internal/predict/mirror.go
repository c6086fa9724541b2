package predict

import (
	"math"
	"sync"
)

// CorrectionPolicy selects how a reconciled position reaches the screen.
type CorrectionPolicy string

const (
	// CorrectionSnap teleports the displayed position to the reconciled one.
	CorrectionSnap CorrectionPolicy = "snap"
	// CorrectionSmooth interpolates toward the reconciled position over
	// several frames, hiding small corrections.
	CorrectionSmooth CorrectionPolicy = "smooth"
)

// snapEpsilon ends smoothing once the residual error is imperceptible.
const snapEpsilon = 0.001

// Config tunes a Mirror. Speed and TickRate must match the values the
// server applies to the mirrored hero or replays will drift.
type Config struct {
	Policy       CorrectionPolicy
	SmoothFactor float64
	TickRate     int
	Speed        float64
	Width        float64
	Height       float64

	// Blocked reports whether a coordinate is inside an impassable tile.
	// Nil means open ground everywhere.
	Blocked func(x, y float64) bool
}

// DefaultConfig returns the tuning used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Policy:       CorrectionSmooth,
		SmoothFactor: 0.35,
		TickRate:     20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Policy == "" {
		c.Policy = def.Policy
	}
	if c.SmoothFactor <= 0 || c.SmoothFactor > 1 {
		c.SmoothFactor = def.SmoothFactor
	}
	if c.TickRate <= 0 {
		c.TickRate = def.TickRate
	}
	return c
}

// Position is a continuous map coordinate.
type Position struct {
	X float64
	Y float64
}

// MoveInput is one tick's worth of movement intent, tagged with the client
// sequence number the server will ack.
type MoveInput struct {
	Sequence uint64
	DX       float64
	DY       float64
}

// Mirror runs the client half of prediction and reconciliation for a single
// hero. Local inputs advance the predicted position immediately; when an
// authoritative snapshot arrives, acknowledged inputs are discarded and the
// rest replay on top of the server position.
type Mirror struct {
	mu sync.Mutex

	cfg       Config
	pending   []MoveInput
	predicted Position
	displayed Position
	ackedSeq  uint64
	tick      uint64
}

// NewMirror seeds the mirror with the hero's position from the join snapshot.
func NewMirror(cfg Config, start Position) *Mirror {
	return &Mirror{
		cfg:       cfg.withDefaults(),
		predicted: start,
		displayed: start,
	}
}

// Predict applies one movement input locally and records it for replay.
// Inputs at or below the acknowledged watermark are ignored.
func (m *Mirror) Predict(input MoveInput) Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	if input.Sequence <= m.ackedSeq {
		return m.predicted
	}
	m.pending = append(m.pending, input)
	m.predicted = m.step(m.predicted, input)
	return m.predicted
}

// Reconcile accepts an authoritative hero position. Pending inputs covered
// by the ack watermark are dropped and the remainder replays on top of the
// server state, so the predicted position converges to what the server will
// compute once those inputs arrive there.
func (m *Mirror) Reconcile(tick, ackedSeq uint64, authoritative Position) Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tick < m.tick {
		return m.predicted
	}
	m.tick = tick
	if ackedSeq > m.ackedSeq {
		m.ackedSeq = ackedSeq
	}

	kept := m.pending[:0]
	for _, input := range m.pending {
		if input.Sequence > m.ackedSeq {
			kept = append(kept, input)
		}
	}
	m.pending = kept

	predicted := authoritative
	for _, input := range m.pending {
		predicted = m.step(predicted, input)
	}
	m.predicted = predicted

	if m.cfg.Policy == CorrectionSnap {
		m.displayed = predicted
	}
	return m.predicted
}

// Advance moves the displayed position one render frame toward the
// predicted one and returns it. Under the snap policy it returns the
// predicted position unchanged.
func (m *Mirror) Advance() Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.Policy == CorrectionSnap {
		m.displayed = m.predicted
		return m.displayed
	}

	dx := m.predicted.X - m.displayed.X
	dy := m.predicted.Y - m.displayed.Y
	if math.Hypot(dx, dy) <= snapEpsilon {
		m.displayed = m.predicted
		return m.displayed
	}
	m.displayed.X += dx * m.cfg.SmoothFactor
	m.displayed.Y += dy * m.cfg.SmoothFactor
	return m.displayed
}

// Predicted returns the latest reconciled prediction.
func (m *Mirror) Predicted() Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predicted
}

// PendingCount reports how many inputs await server acknowledgement.
func (m *Mirror) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// step integrates one tick of movement the same way the server resolver
// does: normalized intent, axis-separated blocking, clamped to the map.
func (m *Mirror) step(pos Position, input MoveInput) Position {
	dx := input.DX
	dy := input.DY
	if dx == 0 && dy == 0 {
		return pos
	}
	if length := math.Hypot(dx, dy); length > 1 {
		dx /= length
		dy /= length
	}

	dt := 1.0 / float64(m.cfg.TickRate)
	nx := m.clamp(pos.X+dx*m.cfg.Speed*dt, m.cfg.Width)
	if m.cfg.Blocked != nil && m.cfg.Blocked(nx, pos.Y) {
		nx = pos.X
	}
	ny := m.clamp(pos.Y+dy*m.cfg.Speed*dt, m.cfg.Height)
	if m.cfg.Blocked != nil && m.cfg.Blocked(nx, ny) {
		ny = pos.Y
	}
	return Position{X: nx, Y: ny}
}

// clamp keeps a coordinate strictly inside the map, mirroring the server
// resolver's bound so edge predictions never need a correction.
func (m *Mirror) clamp(v, limit float64) float64 {
	if v < 0 {
		return 0
	}
	if limit > 0 {
		if max := math.Nextafter(limit, 0); v > max {
			return max
		}
	}
	return v
}
