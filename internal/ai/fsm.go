package ai

import (
	"stronghold/server/internal/entity"
	"stronghold/server/internal/physics"
)

// State enumerates the per-enemy behaviour machine.
type State uint8

const (
	StateIdle State = iota
	StateSeeking
	StateAttacking
	StateDead
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSeeking:
		return "seeking"
	case StateAttacking:
		return "attacking"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// blackboard is the per-enemy AI memory. It never leaves the director.
type blackboard struct {
	state          State
	target         entity.ID
	nextAttackTick uint64
}

// AttackIntent is an attack decision handed to the rules phase for damage
// resolution.
type AttackIntent struct {
	AttackerID entity.ID
	TargetID   entity.ID
	Damage     int
	Ranged     bool
}

// advanceEnemy runs one FSM step for an enemy against the current tick's
// store snapshot. It mutates the enemy's movement intent and returns an
// attack intent when one fires.
func (d *Director) advanceEnemy(tick uint64, store *entity.Store, enemy *entity.Entity, bb *blackboard) (AttackIntent, bool) {
	stats, ok := entity.StatsForEnemy(enemy.Archetype)
	if !ok {
		return AttackIntent{}, false
	}

	// Health exhaustion is terminal from any state.
	if !enemy.Alive() {
		bb.state = StateDead
		enemy.IntentX = 0
		enemy.IntentY = 0
		return AttackIntent{}, false
	}

	target := d.resolveTarget(store, enemy, bb)

	switch bb.state {
	case StateIdle:
		if target != nil {
			bb.state = StateSeeking
			bb.target = target.ID
			steerToward(enemy, target.X, target.Y)
			break
		}
		// No hero detected: press the objective and besiege it on contact.
		if hall := d.steerTowardObjective(store, enemy); hall != nil && physics.InRange(enemy, hall, stats.AttackRange) {
			bb.state = StateAttacking
			bb.target = hall.ID
		}
	case StateSeeking:
		if target == nil {
			bb.state = StateIdle
			bb.target = ""
			d.steerTowardObjective(store, enemy)
			break
		}
		bb.target = target.ID
		if physics.InRange(enemy, target, stats.AttackRange) {
			bb.state = StateAttacking
			enemy.IntentX = 0
			enemy.IntentY = 0
			break
		}
		steerToward(enemy, target.X, target.Y)
	case StateAttacking:
		// A detected hero always preempts a building siege.
		if target == nil {
			target = d.currentBuildingTarget(store, bb)
		}
		if target == nil {
			bb.state = StateIdle
			bb.target = ""
			d.steerTowardObjective(store, enemy)
			break
		}
		bb.target = target.ID
		if !physics.InRange(enemy, target, stats.AttackRange) {
			bb.state = StateSeeking
			steerToward(enemy, target.X, target.Y)
			break
		}
		enemy.IntentX = 0
		enemy.IntentY = 0
		if tick >= bb.nextAttackTick {
			bb.nextAttackTick = tick + d.attackCooldownTicks(stats.AttackSpeed)
			return AttackIntent{
				AttackerID: enemy.ID,
				TargetID:   target.ID,
				Damage:     stats.AttackDamage,
				Ranged:     stats.Ranged,
			}, true
		}
	case StateDead:
		// Removal happens in the rules phase.
	}
	return AttackIntent{}, false
}

// resolveTarget keeps the current target while it remains valid and in
// detection radius, otherwise picks the nearest live hero. Nil means no hero
// is detectable and the enemy should press toward the objective.
func (d *Director) resolveTarget(store *entity.Store, enemy *entity.Entity, bb *blackboard) *entity.Entity {
	if bb.target != "" {
		if current, err := store.Get(bb.target); err == nil && current.Alive() &&
			current.Kind == entity.KindHero && physics.InRange(enemy, current, d.cfg.DetectionRadius) {
			return current
		}
		bb.target = ""
	}

	var best *entity.Entity
	bestDist := d.cfg.DetectionRadius
	for _, id := range store.QueryInRadius(enemy.X, enemy.Y, d.cfg.DetectionRadius) {
		candidate, err := store.Get(id)
		if err != nil || candidate.Kind != entity.KindHero || !candidate.Alive() {
			continue
		}
		// QueryInRadius yields spawn order, so equal distances always pick
		// the earlier spawn.
		if dist := physics.Distance(enemy, candidate); best == nil || dist < bestDist {
			best = candidate
			bestDist = dist
		}
	}
	return best
}

// currentBuildingTarget keeps a building target only while it stands.
func (d *Director) currentBuildingTarget(store *entity.Store, bb *blackboard) *entity.Entity {
	if bb.target == "" {
		return nil
	}
	current, err := store.Get(bb.target)
	if err != nil || current.Kind != entity.KindBuilding || !current.Alive() {
		return nil
	}
	return current
}

// steerTowardObjective points the enemy at the nearest standing town hall,
// returning it; a nil result means none survives and the enemy stops.
func (d *Director) steerTowardObjective(store *entity.Store, enemy *entity.Entity) *entity.Entity {
	var best *entity.Entity
	bestDist := 0.0
	for _, building := range store.ByKind(entity.KindBuilding) {
		if building.Building != entity.BuildingTownHall || !building.Alive() {
			continue
		}
		dist := physics.Distance(enemy, building)
		if best == nil || dist < bestDist {
			best = building
			bestDist = dist
		}
	}
	if best == nil {
		enemy.IntentX = 0
		enemy.IntentY = 0
		return nil
	}
	stats, _ := entity.StatsForEnemy(enemy.Archetype)
	if physics.InRange(enemy, best, stats.AttackRange) {
		enemy.IntentX = 0
		enemy.IntentY = 0
		return best
	}
	steerToward(enemy, best.X, best.Y)
	return best
}

func steerToward(enemy *entity.Entity, x, y float64) {
	dx := x - enemy.X
	dy := y - enemy.Y
	dist := physics.Distance(enemy, &entity.Entity{X: x, Y: y})
	if dist == 0 {
		enemy.IntentX = 0
		enemy.IntentY = 0
		return
	}
	enemy.IntentX = dx / dist
	enemy.IntentY = dy / dist
}

func (d *Director) attackCooldownTicks(attacksPerSecond float64) uint64 {
	if attacksPerSecond <= 0 {
		return uint64(d.cfg.TickRate)
	}
	ticks := float64(d.cfg.TickRate) / attacksPerSecond
	if ticks < 1 {
		ticks = 1
	}
	return uint64(ticks + 0.5)
}
