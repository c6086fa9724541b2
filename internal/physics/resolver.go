package physics

import (
	"math"

	"stronghold/server/internal/entity"
	"stronghold/server/internal/grid"
)

// Resolver advances positions and untangles overlaps once per tick. All
// iteration happens in spawn-sequence order so two runs with the same inputs
// resolve identically.
type Resolver struct {
	// SeparationPasses bounds the pairwise displacement sweep. Two passes
	// settle the common crowds without risking long convergence loops.
	SeparationPasses int
}

// NewResolver constructs a resolver with default passes.
func NewResolver() *Resolver {
	return &Resolver{SeparationPasses: 2}
}

// Step integrates intents and velocities over dt, clamps to grid bounds,
// blocks entry into collidable tiles and separates overlapping mobiles.
func (r *Resolver) Step(g *grid.Grid, store *entity.Store, dt float64) {
	if g == nil || store == nil || dt <= 0 {
		return
	}

	all := store.All()
	for _, ent := range all {
		switch ent.Kind {
		case entity.KindHero, entity.KindEnemy:
			r.integrateMobile(g, store, ent, dt)
		case entity.KindProjectile:
			r.integrateProjectile(g, store, ent, dt)
		}
	}

	passes := r.SeparationPasses
	if passes <= 0 {
		passes = 1
	}
	for i := 0; i < passes; i++ {
		if !r.separate(g, store, all) {
			break
		}
	}
}

func (r *Resolver) integrateMobile(g *grid.Grid, store *entity.Store, ent *entity.Entity, dt float64) {
	dx := ent.IntentX
	dy := ent.IntentY
	if dx == 0 && dy == 0 {
		return
	}
	if length := math.Hypot(dx, dy); length > 1 {
		dx /= length
		dy /= length
	}

	// Axis-separated movement lets entities slide along blocked tiles.
	nx := clampCoord(ent.X+dx*ent.Speed*dt, float64(g.Width()))
	if g.BlockedAt(nx, ent.Y) {
		nx = ent.X
	}
	ny := clampCoord(ent.Y+dy*ent.Speed*dt, float64(g.Height()))
	if g.BlockedAt(nx, ny) {
		ny = ent.Y
	}

	if nx != ent.X || ny != ent.Y {
		store.SetPosition(ent.ID, nx, ny)
	}
	ent.Facing = entity.DeriveFacing(dx, dy, ent.Facing)
}

func (r *Resolver) integrateProjectile(g *grid.Grid, store *entity.Store, ent *entity.Entity, dt float64) {
	if ent.VelX == 0 && ent.VelY == 0 {
		return
	}
	nx := ent.X + ent.VelX*dt
	ny := ent.Y + ent.VelY*dt
	// Projectiles fly over resource tiles but stop dead at the map edge;
	// expiry removal happens in the rules phase.
	if !g.InBounds(nx, ny) {
		nx = clampCoord(nx, float64(g.Width()))
		ny = clampCoord(ny, float64(g.Height()))
		ent.VelX = 0
		ent.VelY = 0
	}
	store.SetPosition(ent.ID, nx, ny)
}

// separate resolves pairwise circle-circle overlap by displacing both bodies
// along the centre line. Pairs are visited in spawn order; equidistant
// conflicts therefore always resolve the same way. Returns whether any
// displacement happened.
func (r *Resolver) separate(g *grid.Grid, store *entity.Store, all []*entity.Entity) bool {
	moved := false
	for i := 0; i < len(all); i++ {
		a := all[i]
		if !mobileKind(a.Kind) {
			continue
		}
		for j := i + 1; j < len(all); j++ {
			b := all[j]
			if !mobileKind(b.Kind) {
				continue
			}
			dx := b.X - a.X
			dy := b.Y - a.Y
			dist := math.Hypot(dx, dy)
			minDist := a.Radius + b.Radius
			if dist >= minDist || minDist == 0 {
				continue
			}
			var ux, uy float64
			if dist > 0 {
				ux, uy = dx/dist, dy/dist
			} else {
				// Coincident centres: push along +X so the outcome stays
				// deterministic instead of depending on map order.
				ux, uy = 1, 0
			}
			push := (minDist - dist) / 2
			ax := clampCoord(a.X-ux*push, float64(g.Width()))
			ay := clampCoord(a.Y-uy*push, float64(g.Height()))
			bx := clampCoord(b.X+ux*push, float64(g.Width()))
			by := clampCoord(b.Y+uy*push, float64(g.Height()))
			if !g.BlockedAt(ax, ay) {
				store.SetPosition(a.ID, ax, ay)
			}
			if !g.BlockedAt(bx, by) {
				store.SetPosition(b.ID, bx, by)
			}
			moved = true
		}
	}
	return moved
}

func mobileKind(kind entity.Kind) bool {
	return kind == entity.KindHero || kind == entity.KindEnemy
}

func clampCoord(v, limit float64) float64 {
	if v < 0 {
		return 0
	}
	// Keep strictly inside the grid so tile lookups stay valid.
	if max := math.Nextafter(limit, 0); v > max {
		return max
	}
	return v
}

// InRange reports whether target sits within the attacker's ability range,
// measured centre to centre.
func InRange(attacker, target *entity.Entity, abilityRange float64) bool {
	if attacker == nil || target == nil || abilityRange <= 0 {
		return false
	}
	dx := target.X - attacker.X
	dy := target.Y - attacker.Y
	return dx*dx+dy*dy <= abilityRange*abilityRange
}

// Distance measures centre-to-centre distance between two entities.
func Distance(a, b *entity.Entity) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
