package ai

import (
	"math/rand"
	"testing"

	"stronghold/server/internal/entity"
	"stronghold/server/internal/grid"
)

func testDirector(cfg Config, seed int64) *Director {
	return NewDirector(cfg, rand.New(rand.NewSource(seed)), nil)
}

func TestWaveSpawnsScaledCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseCount = 3
	cfg.DifficultyGrowth = 1.0 // wave 2 runs at difficulty 2.0
	cfg.FirstWaveDelayTicks = 10
	cfg.SpawnIntervalTicks = 100

	d := testDirector(cfg, 42)
	g := grid.Uniform(20, 20, grid.TileEmpty)
	store := entity.NewStore()

	// Wave 1 at difficulty 1.0: exactly baseCount enemies, no later than
	// the scheduled tick.
	for tick := uint64(0); tick < 10; tick++ {
		d.Advance(tick, g, store)
	}
	if got := len(store.ByKind(entity.KindEnemy)); got != 0 {
		t.Fatalf("spawned %d enemies before nextSpawnTick", got)
	}
	result := d.Advance(10, g, store)
	if !result.WaveSpawned {
		t.Fatalf("wave 1 should spawn at its scheduled tick")
	}
	if got := len(store.ByKind(entity.KindEnemy)); got != 3 {
		t.Fatalf("wave 1 spawned %d enemies, want 3", got)
	}

	// Wave 2 at difficulty 2.0 spawns ceil(3*2.0)=6 more.
	result = d.Advance(110, g, store)
	if !result.WaveSpawned {
		t.Fatalf("wave 2 should spawn at its scheduled tick")
	}
	if got := len(store.ByKind(entity.KindEnemy)); got != 9 {
		t.Fatalf("after wave 2 have %d enemies, want 9", got)
	}
	if wave := d.Wave(); wave.WaveIndex != 2 || wave.SpawnedCount != 9 {
		t.Fatalf("unexpected wave state %+v", wave)
	}
}

func TestDifficultyScalarMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FirstWaveDelayTicks = 0
	cfg.SpawnIntervalTicks = 10
	cfg.MaxWaves = 0

	d := testDirector(cfg, 7)
	g := grid.Uniform(20, 20, grid.TileEmpty)
	store := entity.NewStore()

	last := 0.0
	for tick := uint64(0); tick < 100; tick += 10 {
		d.Advance(tick, g, store)
		scalar := d.Wave().DifficultyScalar
		if scalar < last {
			t.Fatalf("difficulty regressed from %v to %v", last, scalar)
		}
		last = scalar
	}
}

func TestMaxWavesStopsScheduler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FirstWaveDelayTicks = 0
	cfg.SpawnIntervalTicks = 5
	cfg.MaxWaves = 2

	d := testDirector(cfg, 1)
	g := grid.Uniform(20, 20, grid.TileEmpty)
	store := entity.NewStore()

	for tick := uint64(0); tick < 100; tick++ {
		d.Advance(tick, g, store)
	}
	if wave := d.Wave(); wave.WaveIndex != 2 {
		t.Fatalf("scheduler ran past MaxWaves: %+v", wave)
	}
}

func TestEnemySeeksAndAttacksHero(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FirstWaveDelayTicks = 1 << 62 // keep the scheduler quiet
	cfg.DetectionRadius = 10

	d := testDirector(cfg, 3)
	g := grid.Uniform(20, 20, grid.TileEmpty)
	store := entity.NewStore()

	heroID := store.Spawn(entity.Spec{Kind: entity.KindHero, Class: entity.ClassTank, Health: 200, X: 5, Y: 5, Speed: 2})
	enemyID := store.Spawn(entity.Spec{Kind: entity.KindEnemy, Archetype: entity.EnemyBasic, Health: 30, X: 9, Y: 5, Speed: 4})

	d.Advance(1, g, store)
	if state, _ := d.StateOf(enemyID); state != StateSeeking {
		t.Fatalf("enemy state = %s, want seeking", state)
	}
	enemy, _ := store.Get(enemyID)
	if enemy.IntentX >= 0 {
		t.Fatalf("enemy should steer toward the hero, intentX=%v", enemy.IntentX)
	}

	// Teleport adjacent: within BASIC attack range 1.0.
	store.SetPosition(enemyID, 5.5, 5)
	result := d.Advance(2, g, store)
	if state, _ := d.StateOf(enemyID); state != StateAttacking {
		t.Fatalf("enemy state = %s, want attacking", state)
	}
	result = d.Advance(3, g, store)
	if len(result.Attacks) != 1 {
		t.Fatalf("expected one attack intent, got %d", len(result.Attacks))
	}
	if result.Attacks[0].TargetID != heroID || result.Attacks[0].Damage != 10 {
		t.Fatalf("unexpected attack intent %+v", result.Attacks[0])
	}
}

func TestEnemyFallsBackToTownHall(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FirstWaveDelayTicks = 1 << 62
	cfg.DetectionRadius = 3

	d := testDirector(cfg, 3)
	g := grid.Uniform(40, 40, grid.TileEmpty)
	store := entity.NewStore()

	store.Spawn(entity.Spec{Kind: entity.KindBuilding, Building: entity.BuildingTownHall, Health: 1000, X: 20, Y: 20, Radius: 1.5})
	enemyID := store.Spawn(entity.Spec{Kind: entity.KindEnemy, Archetype: entity.EnemyBasic, Health: 30, X: 2, Y: 2, Speed: 4})

	d.Advance(1, g, store)
	enemy, _ := store.Get(enemyID)
	if enemy.IntentX <= 0 || enemy.IntentY <= 0 {
		t.Fatalf("enemy should press toward the hall, intent=(%v,%v)", enemy.IntentX, enemy.IntentY)
	}

	// Adjacent to the hall: besiege it.
	store.SetPosition(enemyID, 19.2, 20)
	d.Advance(2, g, store)
	if state, _ := d.StateOf(enemyID); state != StateAttacking {
		t.Fatalf("enemy state = %s, want attacking hall", state)
	}
	result := d.Advance(3, g, store)
	if len(result.Attacks) != 1 {
		t.Fatalf("expected siege attack, got %+v", result)
	}
}

func TestDeadEnemyIsTerminal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FirstWaveDelayTicks = 1 << 62

	d := testDirector(cfg, 9)
	g := grid.Uniform(10, 10, grid.TileEmpty)
	store := entity.NewStore()
	enemyID := store.Spawn(entity.Spec{Kind: entity.KindEnemy, Archetype: entity.EnemyBasic, Health: 30, X: 5, Y: 5, Speed: 4})

	store.ApplyDamage(enemyID, 100)
	d.Advance(1, g, store)
	if state, _ := d.StateOf(enemyID); state != StateDead {
		t.Fatalf("enemy state = %s, want dead", state)
	}
	// Dead stays dead even with a hero nearby.
	store.Spawn(entity.Spec{Kind: entity.KindHero, Class: entity.ClassTank, Health: 200, X: 5.5, Y: 5})
	d.Advance(2, g, store)
	if state, _ := d.StateOf(enemyID); state != StateDead {
		t.Fatalf("dead state must be terminal, got %s", state)
	}
}

func TestDirectorDeterministicComposition(t *testing.T) {
	run := func() []string {
		cfg := DefaultConfig()
		cfg.FirstWaveDelayTicks = 0
		cfg.SpawnIntervalTicks = 1
		cfg.MaxWaves = 8
		d := testDirector(cfg, 1234)
		g := grid.Uniform(20, 20, grid.TileEmpty)
		store := entity.NewStore()
		for tick := uint64(0); tick < 10; tick++ {
			d.Advance(tick, g, store)
		}
		var archetypes []string
		for _, enemy := range store.ByKind(entity.KindEnemy) {
			archetypes = append(archetypes, enemy.Archetype)
		}
		return archetypes
	}
	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("runs spawned different counts: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("composition diverged at %d: %s vs %s", i, first[i], second[i])
		}
	}
}
