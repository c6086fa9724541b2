package predict

import (
	"math"
	"math/rand"
	"testing"

	"stronghold/server/internal/entity"
	"stronghold/server/internal/grid"
	"stronghold/server/internal/sim"
)

func testConfig() Config {
	return Config{
		Policy:   CorrectionSnap,
		TickRate: 20,
		Speed:    2,
		Width:    10,
		Height:   10,
	}
}

func TestPredictAdvancesLocally(t *testing.T) {
	m := NewMirror(testConfig(), Position{X: 5, Y: 5})

	got := m.Predict(MoveInput{Sequence: 1, DX: 1, DY: 0})

	want := Position{X: 5 + 2*0.05, Y: 5}
	if math.Abs(got.X-want.X) > 1e-9 || got.Y != want.Y {
		t.Fatalf("predicted %+v, want %+v", got, want)
	}
	if m.PendingCount() != 1 {
		t.Fatalf("expected 1 pending input, got %d", m.PendingCount())
	}
}

func TestPredictNormalizesDiagonalIntent(t *testing.T) {
	m := NewMirror(testConfig(), Position{X: 5, Y: 5})

	got := m.Predict(MoveInput{Sequence: 1, DX: 1, DY: 1})

	step := 2 * 0.05 / math.Sqrt2
	if math.Abs(got.X-(5+step)) > 1e-9 || math.Abs(got.Y-(5+step)) > 1e-9 {
		t.Fatalf("diagonal step not normalized: %+v", got)
	}
}

func TestReconcileDropsAcknowledgedInputs(t *testing.T) {
	m := NewMirror(testConfig(), Position{X: 5, Y: 5})
	for seq := uint64(1); seq <= 3; seq++ {
		m.Predict(MoveInput{Sequence: seq, DX: 1, DY: 0})
	}

	// Server confirms the first two inputs and reports where they landed
	// the hero. Only the third should replay.
	auth := Position{X: 5 + 2*2*0.05, Y: 5}
	got := m.Reconcile(10, 2, auth)

	if m.PendingCount() != 1 {
		t.Fatalf("expected 1 pending input after ack, got %d", m.PendingCount())
	}
	want := auth.X + 2*0.05
	if math.Abs(got.X-want) > 1e-9 {
		t.Fatalf("replayed position %.6f, want %.6f", got.X, want)
	}
}

func TestReconcileIgnoresStaleSnapshot(t *testing.T) {
	m := NewMirror(testConfig(), Position{X: 5, Y: 5})
	m.Predict(MoveInput{Sequence: 1, DX: 1, DY: 0})
	before := m.Reconcile(10, 1, Position{X: 5.1, Y: 5})

	got := m.Reconcile(4, 1, Position{X: 2, Y: 2})
	if got != before {
		t.Fatalf("stale snapshot moved prediction from %+v to %+v", before, got)
	}
}

func TestPredictClampsAtMapEdge(t *testing.T) {
	m := NewMirror(testConfig(), Position{X: 9.99, Y: 5})

	// The bound is the same one the server resolver uses, strictly inside
	// the grid, so a hero parked on the edge needs no correction.
	got := m.Predict(MoveInput{Sequence: 1, DX: 1, DY: 0})
	if want := math.Nextafter(10, 0); got.X != want {
		t.Fatalf("expected clamp at %v, got %v", want, got.X)
	}
}

func TestSmoothCorrectionConvergesOnPrediction(t *testing.T) {
	cfg := testConfig()
	cfg.Policy = CorrectionSmooth
	cfg.SmoothFactor = 0.5
	m := NewMirror(cfg, Position{X: 5, Y: 5})

	m.Reconcile(1, 0, Position{X: 6, Y: 5})

	prev := math.Abs(m.Advance().X - 6)
	for i := 0; i < 32; i++ {
		err := math.Abs(m.Advance().X - 6)
		if err > prev+1e-12 {
			t.Fatalf("correction error grew from %.6f to %.6f", prev, err)
		}
		prev = err
	}
	if prev != 0 {
		t.Fatalf("displayed position never settled, residual %.9f", prev)
	}
}

func TestSnapCorrectionDisplaysImmediately(t *testing.T) {
	m := NewMirror(testConfig(), Position{X: 5, Y: 5})

	m.Reconcile(1, 0, Position{X: 8, Y: 3})

	if got := m.Advance(); got != (Position{X: 8, Y: 3}) {
		t.Fatalf("snap policy displayed %+v", got)
	}
}

// Drives the authoritative simulation and the mirror with the same inputs
// and checks the replayed prediction matches the server hero exactly, both
// with a full ack and with inputs still in flight.
func TestReplayConvergesWithAuthoritativeState(t *testing.T) {
	worldCfg := sim.DefaultWorldConfig()
	deps := sim.Deps{RNG: rand.New(rand.NewSource(1))}
	world := sim.NewWorld(worldCfg, grid.Uniform(10, 10, grid.TileEmpty), deps)

	hero, err := world.Join("player-1", entity.ClassTank)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	stats, ok := entity.StatsForClass(entity.ClassTank)
	if !ok {
		t.Fatalf("missing tank stats")
	}
	m := NewMirror(Config{
		Policy:   CorrectionSnap,
		TickRate: worldCfg.TickRate,
		Speed:    stats.Speed,
		Width:    10,
		Height:   10,
	}, Position{X: hero.X, Y: hero.Y})

	dt := 1.0 / float64(worldCfg.TickRate)
	inputs := make([]MoveInput, 0, 20)
	for i := 0; i < 20; i++ {
		dx, dy := 1.0, 0.0
		if i >= 10 {
			dx, dy = 0.0, 1.0
		}
		inputs = append(inputs, MoveInput{Sequence: uint64(i + 1), DX: dx, DY: dy})
	}

	heroAt := func() Position {
		t.Helper()
		snap := world.Snapshot()
		for _, ent := range snap.Entities {
			if ent.ID == hero.ID {
				return Position{X: ent.X, Y: ent.Y}
			}
		}
		t.Fatalf("hero %s missing from snapshot", hero.ID)
		return Position{}
	}

	var midpoint Position
	for i, input := range inputs {
		tick := uint64(i + 1)
		cmd := sim.Command{
			TargetTick: tick,
			ActorID:    "player-1",
			Sequence:   input.Sequence,
			Type:       sim.CommandMove,
			Move:       &sim.MoveCommand{DX: input.DX, DY: input.DY},
		}
		if err := world.Apply([]sim.Command{cmd}); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		world.Step(tick, dt)
		m.Predict(input)
		if tick == 10 {
			midpoint = heroAt()
		}
	}

	server := heroAt()

	// Snapshot from tick 10 with ten inputs still in flight: replaying the
	// unacked tail must land exactly where the server ended up.
	got := m.Reconcile(10, 10, midpoint)
	if math.Abs(got.X-server.X) > 1e-9 || math.Abs(got.Y-server.Y) > 1e-9 {
		t.Fatalf("in-flight reconcile drifted: got %+v, server %+v", got, server)
	}
	if m.PendingCount() != 10 {
		t.Fatalf("expected 10 pending inputs, got %d", m.PendingCount())
	}

	// Everything acknowledged: prediction must sit exactly on the server.
	got = m.Reconcile(20, 20, server)
	if math.Abs(got.X-server.X) > 1e-9 || math.Abs(got.Y-server.Y) > 1e-9 {
		t.Fatalf("full-ack reconcile drifted: got %+v, server %+v", got, server)
	}
	if m.PendingCount() != 0 {
		t.Fatalf("expected empty pending buffer, got %d", m.PendingCount())
	}
}
