package physics

import (
	"math"
	"testing"

	"stronghold/server/internal/entity"
	"stronghold/server/internal/grid"
)

func TestStepMovesOneTickOfDistance(t *testing.T) {
	g := grid.Uniform(10, 10, grid.TileEmpty)
	store := entity.NewStore()
	id := store.Spawn(entity.Spec{Kind: entity.KindHero, Class: entity.ClassTank, Health: 200, X: 5, Y: 5, Speed: 2})
	hero, _ := store.Get(id)
	hero.IntentX = 1

	dt := 1.0 / 20.0
	NewResolver().Step(g, store, dt)

	wantX := 5 + 2*dt
	if math.Abs(hero.X-wantX) > 1e-9 || hero.Y != 5 {
		t.Fatalf("position = (%v,%v), want (%v,5)", hero.X, hero.Y, wantX)
	}
	if hero.Facing != entity.FacingRight {
		t.Fatalf("facing = %s, want right", hero.Facing)
	}
}

func TestStepClampsToGridBounds(t *testing.T) {
	g := grid.Uniform(10, 10, grid.TileEmpty)
	store := entity.NewStore()
	id := store.Spawn(entity.Spec{Kind: entity.KindHero, Class: entity.ClassBuilder, Health: 150, X: 0.05, Y: 0.05, Speed: 50})
	hero, _ := store.Get(id)
	hero.IntentX = -1
	hero.IntentY = -1

	NewResolver().Step(g, store, 1.0)
	if hero.X != 0 || hero.Y != 0 {
		t.Fatalf("position = (%v,%v), want clamped to (0,0)", hero.X, hero.Y)
	}
}

func TestStepBlocksCollidableTiles(t *testing.T) {
	g, err := grid.Load(grid.Descriptor{
		Metadata: grid.Metadata{Name: "wall", Width: 3, Height: 1, TileSize: 32},
		MapData:  [][]string{{"EMPTY", "WALL", "EMPTY"}},
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	store := entity.NewStore()
	id := store.Spawn(entity.Spec{Kind: entity.KindHero, Class: entity.ClassTank, Health: 200, X: 0.5, Y: 0.5, Speed: 20})
	hero, _ := store.Get(id)
	hero.IntentX = 1

	NewResolver().Step(g, store, 1.0)
	if hero.X >= 1 {
		t.Fatalf("hero entered wall tile at x=%v", hero.X)
	}
}

func TestSeparateDisplacesOverlap(t *testing.T) {
	g := grid.Uniform(10, 10, grid.TileEmpty)
	store := entity.NewStore()
	a := store.Spawn(entity.Spec{Kind: entity.KindHero, Class: entity.ClassTank, Health: 200, X: 5, Y: 5, Radius: 0.5})
	b := store.Spawn(entity.Spec{Kind: entity.KindEnemy, Archetype: entity.EnemyBasic, Health: 30, X: 5.2, Y: 5, Radius: 0.5})

	NewResolver().Step(g, store, 1.0/20.0)

	entA, _ := store.Get(a)
	entB, _ := store.Get(b)
	if dist := Distance(entA, entB); dist < 0.99 {
		t.Fatalf("entities still overlap: dist=%v", dist)
	}
	if entA.X >= entB.X {
		t.Fatalf("displacement direction flipped: a.X=%v b.X=%v", entA.X, entB.X)
	}
}

func TestSeparateDeterministicForCoincidentCentres(t *testing.T) {
	run := func() (float64, float64) {
		g := grid.Uniform(10, 10, grid.TileEmpty)
		store := entity.NewStore()
		a := store.Spawn(entity.Spec{Kind: entity.KindEnemy, Archetype: entity.EnemyBasic, Health: 30, X: 5, Y: 5, Radius: 0.5})
		store.Spawn(entity.Spec{Kind: entity.KindEnemy, Archetype: entity.EnemyBasic, Health: 30, X: 5, Y: 5, Radius: 0.5})
		NewResolver().Step(g, store, 1.0/20.0)
		ent, _ := store.Get(a)
		return ent.X, ent.Y
	}
	x1, y1 := run()
	x2, y2 := run()
	if x1 != x2 || y1 != y2 {
		t.Fatalf("coincident resolution diverged: (%v,%v) vs (%v,%v)", x1, y1, x2, y2)
	}
}

func TestInRange(t *testing.T) {
	a := &entity.Entity{X: 0, Y: 0}
	b := &entity.Entity{X: 3, Y: 4}
	if !InRange(a, b, 5) {
		t.Fatalf("distance 5 should be in range 5")
	}
	if InRange(a, b, 4.9) {
		t.Fatalf("distance 5 should be out of range 4.9")
	}
}
