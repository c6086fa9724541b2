package ai

import (
	"context"
	"math"
	"math/rand"

	"stronghold/server/internal/entity"
	"stronghold/server/internal/grid"
	"stronghold/server/logging"
	"stronghold/server/logging/waves"
)

// ScalePolicy selects how the difficulty scalar grows. Tunable configuration,
// not a protocol contract.
type ScalePolicy string

const (
	// ScaleByWave grows difficulty with the wave index.
	ScaleByWave ScalePolicy = "wave"
	// ScaleByElapsed grows difficulty with elapsed session ticks.
	ScaleByElapsed ScalePolicy = "elapsed"
)

// Config tunes the wave scheduler and enemy behaviour.
type Config struct {
	TickRate            int
	BaseCount           int
	FirstWaveDelayTicks uint64
	SpawnIntervalTicks  uint64
	DifficultyGrowth    float64
	ScalePolicy         ScalePolicy
	DetectionRadius     float64
	// MaxWaves is the survival win threshold; zero means endless.
	MaxWaves int
}

// DefaultConfig mirrors the original tuning at 20 ticks per second.
func DefaultConfig() Config {
	return Config{
		TickRate:            20,
		BaseCount:           3,
		FirstWaveDelayTicks: 60 * 20,
		SpawnIntervalTicks:  300 * 20,
		DifficultyGrowth:    0.5,
		ScalePolicy:         ScaleByWave,
		DetectionRadius:     8.0,
		MaxWaves:            10,
	}
}

// WaveState is the scheduler bookkeeping, mutated only by the director.
type WaveState struct {
	WaveIndex        int     `json:"waveIndex"`
	SpawnedCount     int     `json:"spawnedCount"`
	NextSpawnTick    uint64  `json:"nextSpawnTick"`
	DifficultyScalar float64 `json:"difficultyScalar"`
}

// Director owns enemy behaviour state machines and the wave scheduler. It is
// driven once per tick by the simulation; decisions depend only on the tick's
// store snapshot and the seeded RNG stream, never on wall-clock time.
type Director struct {
	cfg         Config
	wave        WaveState
	blackboards map[entity.ID]*blackboard
	rng         *rand.Rand
	publisher   logging.Publisher
}

// NewDirector constructs a director with its own deterministic RNG stream.
func NewDirector(cfg Config, rng *rand.Rand, publisher logging.Publisher) *Director {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 20
	}
	if cfg.BaseCount <= 0 {
		cfg.BaseCount = 3
	}
	if cfg.SpawnIntervalTicks == 0 {
		cfg.SpawnIntervalTicks = uint64(300 * cfg.TickRate)
	}
	if cfg.DetectionRadius <= 0 {
		cfg.DetectionRadius = 8.0
	}
	if cfg.ScalePolicy == "" {
		cfg.ScalePolicy = ScaleByWave
	}
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Director{
		cfg:         cfg,
		wave:        WaveState{NextSpawnTick: cfg.FirstWaveDelayTicks, DifficultyScalar: 1},
		blackboards: make(map[entity.ID]*blackboard),
		rng:         rng,
		publisher:   publisher,
	}
}

// Wave returns the current scheduler state.
func (d *Director) Wave() WaveState {
	if d == nil {
		return WaveState{}
	}
	return d.wave
}

// Result carries one tick's AI output into the rules phase.
type Result struct {
	Attacks     []AttackIntent
	WaveSpawned bool
}

// Advance runs the scheduler and every enemy state machine for one tick.
func (d *Director) Advance(tick uint64, g *grid.Grid, store *entity.Store) Result {
	var result Result
	if d == nil || store == nil {
		return result
	}

	if tick >= d.wave.NextSpawnTick && (d.cfg.MaxWaves == 0 || d.wave.WaveIndex < d.cfg.MaxWaves) {
		d.spawnWave(tick, g, store)
		result.WaveSpawned = true
	}

	for _, enemy := range store.ByKind(entity.KindEnemy) {
		bb, ok := d.blackboards[enemy.ID]
		if !ok {
			bb = &blackboard{state: StateIdle}
			d.blackboards[enemy.ID] = bb
		}
		if intent, fired := d.advanceEnemy(tick, store, enemy, bb); fired {
			result.Attacks = append(result.Attacks, intent)
		}
	}
	return result
}

// Forget drops the blackboard of a removed enemy.
func (d *Director) Forget(id entity.ID) {
	if d == nil {
		return
	}
	delete(d.blackboards, id)
}

// StateOf exposes an enemy's FSM state for diagnostics and tests.
func (d *Director) StateOf(id entity.ID) (State, bool) {
	bb, ok := d.blackboards[id]
	if !ok {
		return StateIdle, false
	}
	return bb.state, true
}

// difficultyFor computes the monotonic difficulty scalar.
func (d *Director) difficultyFor(waveIndex int, tick uint64) float64 {
	switch d.cfg.ScalePolicy {
	case ScaleByElapsed:
		minutes := float64(tick) / float64(d.cfg.TickRate) / 60.0
		return 1 + d.cfg.DifficultyGrowth*minutes
	default:
		return 1 + d.cfg.DifficultyGrowth*float64(waveIndex-1)
	}
}

// spawnWave creates ceil(baseCount*difficulty) enemies spread across the
// map corners and schedules the next wave.
func (d *Director) spawnWave(tick uint64, g *grid.Grid, store *entity.Store) {
	d.wave.WaveIndex++
	d.wave.DifficultyScalar = d.difficultyFor(d.wave.WaveIndex, tick)
	count := int(math.Ceil(float64(d.cfg.BaseCount) * d.wave.DifficultyScalar))

	corners := spawnCorners(g)
	for i := 0; i < count; i++ {
		corner := corners[i%len(corners)]
		archetype := d.archetypeFor(d.wave.WaveIndex)
		stats, _ := entity.StatsForEnemy(archetype)
		// Health scales with the wave so later waves stay threatening.
		health := stats.MaxHealth + d.wave.WaveIndex*3
		store.Spawn(entity.Spec{
			Kind:      entity.KindEnemy,
			Archetype: archetype,
			X:         corner.x,
			Y:         corner.y,
			Health:    health,
			MaxHealth: health,
			Radius:    0.4,
			Speed:     stats.Speed,
		})
		d.wave.SpawnedCount++
	}

	d.wave.NextSpawnTick = tick + d.cfg.SpawnIntervalTicks
	payload := waves.WavePayload{
		Wave:       d.wave.WaveIndex,
		Count:      count,
		Difficulty: d.wave.DifficultyScalar,
		SpawnTick:  tick,
	}
	waves.WaveSpawned(context.Background(), d.publisher, tick, payload)
	payload.SpawnTick = d.wave.NextSpawnTick
	waves.WaveScheduled(context.Background(), d.publisher, tick, payload)
}

// archetypeFor picks a wave composition in the original's progression: early
// waves stay basic, later ones mix in fast, ranged, then heavy enemies.
func (d *Director) archetypeFor(waveIndex int) string {
	switch {
	case waveIndex <= 2:
		return entity.EnemyBasic
	case waveIndex <= 4:
		if d.rng.Intn(2) == 0 {
			return entity.EnemyFast
		}
		return entity.EnemyBasic
	case waveIndex <= 6:
		switch d.rng.Intn(3) {
		case 0:
			return entity.EnemyRanged
		case 1:
			return entity.EnemyFast
		default:
			return entity.EnemyBasic
		}
	default:
		switch d.rng.Intn(4) {
		case 0:
			return entity.EnemyHeavy
		case 1:
			return entity.EnemyRanged
		case 2:
			return entity.EnemyFast
		default:
			return entity.EnemyBasic
		}
	}
}

type corner struct{ x, y float64 }

func spawnCorners(g *grid.Grid) []corner {
	if g == nil {
		return []corner{{0, 0}}
	}
	w := float64(g.Width())
	h := float64(g.Height())
	return []corner{
		{0.5, 0.5},
		{w - 0.5, 0.5},
		{0.5, h - 0.5},
		{w - 0.5, h - 0.5},
	}
}
