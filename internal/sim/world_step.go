package sim

import (
	"context"
	"math"
	"sort"

	"stronghold/server/internal/ai"
	"stronghold/server/internal/entity"
	"stronghold/server/internal/grid"
	"stronghold/server/internal/physics"
	"stronghold/server/logging"
	"stronghold/server/logging/combat"
	"stronghold/server/logging/lifecycle"
	"stronghold/server/logging/network"
)

// Metric keys recorded per tick.
const (
	metricCommandsApplied   = "sim_commands_applied_total"
	metricCommandsDuplicate = "sim_commands_duplicate_total"
	metricCommandsUnknown   = "sim_commands_unknown_actor_total"
	metricSequenceGaps      = "sim_sequence_gap_total"
	metricDamageDealt       = "sim_damage_dealt_total"
)

var resourceForTile = map[grid.TileType]string{
	grid.TileWood:  "wood",
	grid.TileStone: "stone",
	grid.TileWheat: "wheat",
	grid.TileMetal: "metal",
	grid.TileGold:  "gold",
}

type pose struct {
	x, y   float64
	facing entity.Facing
}

// Step advances the world by one fixed tick. Phases run in a strict order so
// two sessions fed the same seed and command log produce identical state:
// inputs, AI, physics, combat and economy rules, then outcome evaluation.
func (w *World) Step(tick uint64, dt float64) {
	w.tick = tick

	heroAttacks := w.applyCommands(tick)
	prePose := w.capturePose()

	aiResult := w.director.Advance(tick, w.grid, w.store)
	if aiResult.WaveSpawned {
		w.appendPatch(Patch{Kind: PatchWave, Payload: WavePayload{Wave: w.director.Wave()}})
	}

	w.resolver.Step(w.grid, w.store, dt)
	w.emitPoseDiffs(prePose)

	w.resolveHeroAttacks(tick, heroAttacks)
	w.resolveEnemyAttacks(tick, aiResult.Attacks)
	w.resolveTowerAttacks(tick)
	w.resolveProjectiles(tick)
	w.reapDead(tick)
	w.expireGrace(tick)
	w.produceResources(tick)
	w.evaluateOutcome(tick)
}

// applyCommands drains the staged queue, holding back commands targeted at
// future ticks. Ready commands apply in (join order, sequence) order, which
// keeps replays independent of network arrival order.
func (w *World) applyCommands(tick uint64) []ai.AttackIntent {
	queued := w.pending
	w.pending = nil
	queued = append(queued, w.staged...)
	w.staged = nil

	ready := queued[:0]
	for _, cmd := range queued {
		if cmd.TargetTick > tick {
			w.pending = append(w.pending, cmd)
			continue
		}
		ready = append(ready, cmd)
	}
	sort.SliceStable(ready, func(i, j int) bool {
		oi, oj := w.actorOrder(ready[i].ActorID), w.actorOrder(ready[j].ActorID)
		if oi != oj {
			return oi < oj
		}
		return ready[i].Sequence < ready[j].Sequence
	})

	var attacks []ai.AttackIntent
	for _, cmd := range ready {
		state, ok := w.players[cmd.ActorID]
		if !ok {
			w.deps.Metrics.Add(metricCommandsUnknown, 1)
			continue
		}
		if cmd.Sequence != 0 {
			if cmd.Sequence <= state.lastSeq {
				w.deps.Metrics.Add(metricCommandsDuplicate, 1)
				continue
			}
			if cmd.Sequence > state.lastSeq+1 {
				state.gapTotal++
				w.deps.Metrics.Add(metricSequenceGaps, 1)
				network.SequenceGap(context.Background(), w.deps.Publisher, tick,
					logging.EntityRef{ID: cmd.ActorID, Kind: logging.EntityKindHero},
					network.SequenceGapPayload{Expected: state.lastSeq + 1, Received: cmd.Sequence})
			}
			state.lastSeq = cmd.Sequence
		}
		if intent, ok := w.applyCommand(tick, state, cmd); ok {
			attacks = append(attacks, intent)
		}
		w.deps.Metrics.Add(metricCommandsApplied, 1)
	}
	return attacks
}

func (w *World) actorOrder(actorID string) int {
	if state, ok := w.players[actorID]; ok {
		return state.joinOrder
	}
	return int(math.MaxInt32)
}

func (w *World) applyCommand(tick uint64, state *playerState, cmd Command) (ai.AttackIntent, bool) {
	switch cmd.Type {
	case CommandMove:
		if cmd.Move != nil {
			w.applyMove(state, *cmd.Move)
		}
	case CommandAttack:
		target := entity.ID("")
		if cmd.Attack != nil {
			target = cmd.Attack.TargetID
		}
		return w.heroAttackIntent(state, target)
	case CommandHarvest:
		if cmd.Harvest != nil {
			w.applyHarvest(tick, state, *cmd.Harvest)
		}
	case CommandBuild:
		if cmd.Build != nil {
			w.applyBuild(state, *cmd.Build)
		}
	case CommandHeartbeat:
		// Connectivity bookkeeping lives in the hub; nothing to simulate.
	case CommandDisconnect:
		w.applyDisconnect(tick, state)
	case CommandReconnect:
		w.applyReconnect(tick, state)
	case CommandLeave:
		w.applyLeave(tick, state)
	}
	return ai.AttackIntent{}, false
}

func (w *World) applyMove(state *playerState, move MoveCommand) {
	hero := w.liveHero(state)
	if hero == nil {
		return
	}
	hero.IntentX = move.DX
	hero.IntentY = move.DY
	if move.DX == 0 && move.DY == 0 && move.Facing != "" {
		hero.Facing = move.Facing
	}
}

// heroAttackIntent turns an attack command into a combat intent resolved
// after physics, so the hit test uses the same positions the clients see.
func (w *World) heroAttackIntent(state *playerState, target entity.ID) (ai.AttackIntent, bool) {
	hero := w.liveHero(state)
	if hero == nil {
		return ai.AttackIntent{}, false
	}
	stats, ok := entity.StatsForClass(hero.Class)
	if !ok {
		return ai.AttackIntent{}, false
	}
	if next, found := w.heroCooldowns[hero.ID]; found && w.tick < next {
		return ai.AttackIntent{}, false
	}
	w.heroCooldowns[hero.ID] = w.tick + cooldownTicks(w.cfg.TickRate, stats.AttackSpeed)
	return ai.AttackIntent{
		AttackerID: hero.ID,
		TargetID:   target,
		Damage:     stats.AttackDamage,
		Ranged:     stats.Ranged,
	}, true
}

func cooldownTicks(tickRate int, attacksPerSecond float64) uint64 {
	if attacksPerSecond <= 0 {
		return 1
	}
	ticks := uint64(math.Round(float64(tickRate) / attacksPerSecond))
	if ticks == 0 {
		ticks = 1
	}
	return ticks
}

func (w *World) applyHarvest(tick uint64, state *playerState, cmd HarvestCommand) {
	hero := w.liveHero(state)
	if hero == nil || w.grid == nil {
		return
	}
	cx, cy := float64(cmd.TileX)+0.5, float64(cmd.TileY)+0.5
	if math.Hypot(hero.X-cx, hero.Y-cy) > w.cfg.HarvestRange {
		return
	}
	amount := cmd.Amount
	if amount <= 0 || amount > w.cfg.HarvestAmount {
		amount = w.cfg.HarvestAmount
	}
	taken, err := w.grid.Harvest(cmd.TileX, cmd.TileY, amount)
	if err != nil || taken == 0 {
		return
	}
	tile, _ := w.grid.TileAt(cmd.TileX, cmd.TileY)
	state.wallet.Add(resourceForTile[tile.Type], taken)
	w.harvested[[2]int{cmd.TileX, cmd.TileY}] = tile.Remaining

	w.appendPatch(Patch{Kind: PatchTileStock, Payload: TileStockPayload{
		TileX: cmd.TileX, TileY: cmd.TileY, Remaining: tile.Remaining,
	}})
	w.appendPatch(Patch{Kind: PatchWallet, PlayerID: state.id, Payload: WalletPayload{Wallet: state.wallet}})
}

func (w *World) applyBuild(state *playerState, cmd BuildCommand) {
	hero := w.liveHero(state)
	if hero == nil || w.grid == nil {
		return
	}
	stats, ok := entity.StatsForBuilding(cmd.Building)
	if !ok || cmd.Building == entity.BuildingTownHall {
		return
	}
	if !state.wallet.CanAfford(stats.Cost) {
		return
	}
	for dx := 0; dx < stats.Width; dx++ {
		for dy := 0; dy < stats.Height; dy++ {
			tx, ty := cmd.TileX+dx, cmd.TileY+dy
			tile, err := w.grid.TileAt(tx, ty)
			if err != nil || tile.Type != grid.TileEmpty {
				return
			}
			if _, taken := w.buildingTiles[[2]int{tx, ty}]; taken {
				return
			}
		}
	}

	state.wallet.Spend(stats.Cost)
	x := float64(cmd.TileX) + float64(stats.Width)/2
	y := float64(cmd.TileY) + float64(stats.Height)/2
	id := w.store.Spawn(entity.Spec{
		Kind:      entity.KindBuilding,
		Building:  cmd.Building,
		OwnerID:   state.id,
		X:         x,
		Y:         y,
		Health:    stats.MaxHealth,
		MaxHealth: stats.MaxHealth,
		Radius:    float64(stats.Width) / 2,
	})
	w.claimFootprint(id, cmd.TileX, cmd.TileY, stats.Width, stats.Height)

	built, _ := w.store.Get(id)
	w.appendPatch(Patch{Kind: PatchEntitySpawned, EntityID: id, Payload: SpawnedPayload{Entity: built.Snapshot()}})
	w.appendPatch(Patch{Kind: PatchWallet, PlayerID: state.id, Payload: WalletPayload{Wallet: state.wallet}})
}

func (w *World) applyDisconnect(tick uint64, state *playerState) {
	state.disconnected = true
	state.graceExpiry = tick + w.cfg.GraceTicks
	if hero := w.liveHero(state); hero != nil {
		hero.IntentX, hero.IntentY = 0, 0
		hero.SetStatus(entity.StatusDisconnected)
		w.appendPatch(Patch{Kind: PatchEntityStatus, EntityID: hero.ID, Payload: StatusPayload{
			Statuses: []entity.Status{entity.StatusDisconnected},
		}})
	}
	network.ClientDisconnected(context.Background(), w.deps.Publisher, tick,
		logging.EntityRef{ID: state.id, Kind: logging.EntityKindHero},
		network.DisconnectPayload{Reason: "connection_lost"})
}

func (w *World) applyReconnect(tick uint64, state *playerState) {
	state.disconnected = false
	state.graceExpiry = 0
	if hero := w.liveHero(state); hero != nil {
		hero.ClearStatus(entity.StatusDisconnected)
		w.appendPatch(Patch{Kind: PatchEntityStatus, EntityID: hero.ID, Payload: StatusPayload{Statuses: nil}})
	}
	network.ClientReconnected(context.Background(), w.deps.Publisher, tick,
		logging.EntityRef{ID: state.id, Kind: logging.EntityKindHero})
}

func (w *World) applyLeave(tick uint64, state *playerState) {
	if hero := w.liveHero(state); hero != nil {
		w.removeEntity(tick, hero.ID, "left")
	}
	delete(w.players, state.id)
}

func (w *World) liveHero(state *playerState) *entity.Entity {
	if state.heroID == "" {
		return nil
	}
	hero, err := w.store.Get(state.heroID)
	if err != nil || !hero.Alive() {
		return nil
	}
	return hero
}

func (w *World) capturePose() map[entity.ID]pose {
	poses := make(map[entity.ID]pose)
	for _, ent := range w.store.All() {
		poses[ent.ID] = pose{x: ent.X, y: ent.Y, facing: ent.Facing}
	}
	return poses
}

func (w *World) emitPoseDiffs(before map[entity.ID]pose) {
	for _, ent := range w.store.All() {
		prev, seen := before[ent.ID]
		if !seen {
			continue
		}
		if prev.x != ent.X || prev.y != ent.Y {
			w.appendPatch(Patch{Kind: PatchEntityPos, EntityID: ent.ID, Payload: PositionPayload{X: ent.X, Y: ent.Y}})
		}
		if prev.facing != ent.Facing {
			w.appendPatch(Patch{Kind: PatchEntityFacing, EntityID: ent.ID, Payload: FacingPayload{Facing: ent.Facing}})
		}
	}
}

func (w *World) resolveHeroAttacks(tick uint64, intents []ai.AttackIntent) {
	for _, intent := range intents {
		attacker, err := w.store.Get(intent.AttackerID)
		if err != nil || !attacker.Alive() {
			continue
		}
		stats, _ := entity.StatsForClass(attacker.Class)
		target := w.resolveHeroTarget(attacker, intent.TargetID, stats.AttackRange)
		if target == nil {
			continue
		}
		if intent.Ranged {
			w.spawnProjectile(tick, attacker, target, intent.Damage)
			continue
		}
		if physics.InRange(attacker, target, stats.AttackRange) {
			w.dealDamage(tick, attacker, target, intent.Damage, 0)
		}
	}
}

func (w *World) resolveHeroTarget(attacker *entity.Entity, explicit entity.ID, attackRange float64) *entity.Entity {
	if explicit != "" {
		target, err := w.store.Get(explicit)
		if err != nil || !target.Alive() || target.Kind != entity.KindEnemy {
			return nil
		}
		return target
	}
	var nearest *entity.Entity
	best := math.Inf(1)
	for _, id := range w.store.QueryInRadius(attacker.X, attacker.Y, attackRange+attacker.Radius) {
		candidate, err := w.store.Get(id)
		if err != nil || candidate.Kind != entity.KindEnemy || !candidate.Alive() {
			continue
		}
		if d := physics.Distance(attacker, candidate); d < best {
			best = d
			nearest = candidate
		}
	}
	return nearest
}

func (w *World) resolveEnemyAttacks(tick uint64, intents []ai.AttackIntent) {
	for _, intent := range intents {
		attacker, err := w.store.Get(intent.AttackerID)
		if err != nil || !attacker.Alive() {
			continue
		}
		target, err := w.store.Get(intent.TargetID)
		if err != nil || !target.Alive() {
			continue
		}
		if intent.Ranged {
			w.spawnProjectile(tick, attacker, target, intent.Damage)
			continue
		}
		w.dealDamage(tick, attacker, target, intent.Damage, 0)
	}
}

func (w *World) resolveTowerAttacks(tick uint64) {
	for _, tower := range w.store.ByKind(entity.KindBuilding) {
		stats, ok := entity.StatsForBuilding(tower.Building)
		if !ok || stats.AttackRange <= 0 || !tower.Alive() {
			continue
		}
		if next, found := w.towerCooldowns[tower.ID]; found && tick < next {
			continue
		}
		var target *entity.Entity
		best := math.Inf(1)
		for _, id := range w.store.QueryInRadius(tower.X, tower.Y, stats.AttackRange) {
			candidate, err := w.store.Get(id)
			if err != nil || candidate.Kind != entity.KindEnemy || !candidate.Alive() {
				continue
			}
			if d := physics.Distance(tower, candidate); d < best {
				best = d
				target = candidate
			}
		}
		if target == nil {
			continue
		}
		w.towerCooldowns[tower.ID] = tick + cooldownTicks(w.cfg.TickRate, 1.0)
		w.dealDamage(tick, tower, target, stats.AttackDamage, 0)
	}
}

func (w *World) spawnProjectile(tick uint64, attacker, target *entity.Entity, damage int) {
	dx, dy := target.X-attacker.X, target.Y-attacker.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		dx, dy, dist = 1, 0, 1
	}
	speed := w.cfg.ProjectileSpeed
	id := w.store.Spawn(entity.Spec{
		Kind:          entity.KindProjectile,
		OwnerID:       string(attacker.ID),
		X:             attacker.X,
		Y:             attacker.Y,
		Facing:        entity.DeriveFacing(dx, dy, attacker.Facing),
		Health:        1,
		Radius:        w.cfg.ProjectileHitRadius,
		Damage:        damage,
		VelX:          dx / dist * speed,
		VelY:          dy / dist * speed,
		ExpiresAtTick: tick + w.cfg.ProjectileTTLTicks,
	})
	shot, _ := w.store.Get(id)
	w.appendPatch(Patch{Kind: PatchEntitySpawned, EntityID: id, Payload: SpawnedPayload{Entity: shot.Snapshot()}})
}

// resolveProjectiles applies hits after movement. A projectile strikes the
// first opposing entity overlapping its hit radius and is consumed; owners
// and friendlies are never hit.
func (w *World) resolveProjectiles(tick uint64) {
	for _, shot := range w.store.ByKind(entity.KindProjectile) {
		if shot.ExpiresAtTick != 0 && tick >= shot.ExpiresAtTick {
			w.removeEntity(tick, shot.ID, "expired")
			continue
		}
		owner, ownerErr := w.store.Get(entity.ID(shot.OwnerID))
		fromEnemy := ownerErr == nil && owner.Kind == entity.KindEnemy
		var hit *entity.Entity
		best := math.Inf(1)
		// Pad the query by the widest possible footprint; the per-candidate
		// radius check below keeps the hit test exact.
		for _, id := range w.store.QueryInRadius(shot.X, shot.Y, shot.Radius+entity.MaxFootprintRadius()) {
			candidate, err := w.store.Get(id)
			if err != nil || candidate.ID == shot.ID || string(candidate.ID) == shot.OwnerID || !candidate.Alive() {
				continue
			}
			if fromEnemy {
				if candidate.Kind != entity.KindHero && candidate.Kind != entity.KindBuilding {
					continue
				}
			} else if candidate.Kind != entity.KindEnemy {
				continue
			}
			d := physics.Distance(shot, candidate)
			if d > shot.Radius+candidate.Radius {
				continue
			}
			if d < best {
				best = d
				hit = candidate
			}
		}
		if hit == nil {
			continue
		}
		attacker := shot
		if ownerErr == nil {
			attacker = owner
		}
		w.dealDamage(tick, attacker, hit, shot.Damage, 0)
		w.removeEntity(tick, shot.ID, "hit")
	}
}

// Critical hit tuning, applied after the variance roll.
const (
	critChance     = 0.1
	critMultiplier = 1.5
)

// dealDamage applies the variance roll, the critical roll and armor
// reduction, then records the health patch. Damage never drops below one
// point.
func (w *World) dealDamage(tick uint64, attacker, target *entity.Entity, base, armor int) {
	if target.Kind == entity.KindEnemy {
		if stats, ok := entity.StatsForEnemy(target.Archetype); ok {
			armor = stats.Armor
		}
	}
	amount := float64(base) * (0.8 + 0.4*w.combatRNG.Float64())
	critical := w.combatRNG.Float64() < critChance
	if critical {
		amount *= critMultiplier
	}
	amount *= 1 - 0.02*float64(armor)
	dealt := int(amount)
	if dealt < 1 {
		dealt = 1
	}
	remaining, err := w.store.ApplyDamage(target.ID, dealt)
	if err != nil {
		return
	}
	w.deps.Metrics.Add(metricDamageDealt, uint64(dealt))
	w.appendPatch(Patch{Kind: PatchEntityHealth, EntityID: target.ID, Payload: HealthPayload{
		Health: remaining, MaxHealth: target.MaxHealth,
	}})
	combat.DamageApplied(context.Background(), w.deps.Publisher, tick,
		entityRef(attacker), entityRef(target),
		combat.DamagePayload{Amount: dealt, Remaining: remaining, Critical: critical})
	if remaining == 0 {
		combat.EntityDied(context.Background(), w.deps.Publisher, tick, entityRef(target), entityRef(attacker))
	}
}

func entityRef(e *entity.Entity) logging.EntityRef {
	kind := logging.EntityKindWorld
	switch e.Kind {
	case entity.KindHero:
		kind = logging.EntityKindHero
	case entity.KindEnemy:
		kind = logging.EntityKindEnemy
	case entity.KindBuilding:
		kind = logging.EntityKindBuilding
	case entity.KindProjectile:
		kind = logging.EntityKindProjectile
	}
	return logging.EntityRef{ID: string(e.ID), Kind: kind}
}

// reapDead removes entities whose health reached zero this tick.
func (w *World) reapDead(tick uint64) {
	for _, ent := range w.store.All() {
		if ent.Kind == entity.KindProjectile || ent.Alive() {
			continue
		}
		w.removeEntity(tick, ent.ID, "died")
	}
}

func (w *World) removeEntity(tick uint64, id entity.ID, reason string) {
	ent, err := w.store.Get(id)
	if err != nil {
		return
	}
	snapshot := ent.Snapshot()
	w.store.Remove(id)
	w.appendPatch(Patch{Kind: PatchEntityRemoved, EntityID: id, Payload: RemovedPayload{Reason: reason}})

	switch snapshot.Kind {
	case entity.KindEnemy:
		w.director.Forget(id)
	case entity.KindBuilding:
		w.releaseFootprint(id)
		delete(w.towerCooldowns, id)
	case entity.KindHero:
		delete(w.heroCooldowns, id)
		for _, state := range w.players {
			if state.heroID == id {
				state.heroID = ""
			}
		}
	}
	if snapshot.Kind != entity.KindProjectile {
		lifecycle.EntityRemoved(context.Background(), w.deps.Publisher, tick,
			logging.EntityRef{ID: string(id), Kind: entityRefKind(snapshot.Kind)},
			lifecycle.EntityRemovedPayload{Reason: reason})
	}
}

func entityRefKind(kind entity.Kind) logging.EntityKind {
	switch kind {
	case entity.KindHero:
		return logging.EntityKindHero
	case entity.KindEnemy:
		return logging.EntityKindEnemy
	case entity.KindBuilding:
		return logging.EntityKindBuilding
	case entity.KindProjectile:
		return logging.EntityKindProjectile
	default:
		return logging.EntityKindWorld
	}
}

// expireGrace despawns heroes whose disconnect grace window lapsed without a
// reconnect. The player record survives so a late rejoin starts fresh.
// Removals run in join order; map iteration would shuffle the patch stream
// when several windows lapse on the same tick.
func (w *World) expireGrace(tick uint64) {
	var lapsed []*playerState
	for _, state := range w.players {
		if !state.disconnected || state.graceExpiry == 0 || tick < state.graceExpiry {
			continue
		}
		lapsed = append(lapsed, state)
	}
	sort.Slice(lapsed, func(i, j int) bool { return lapsed[i].joinOrder < lapsed[j].joinOrder })
	for _, state := range lapsed {
		state.graceExpiry = 0
		if state.heroID != "" {
			w.removeEntity(tick, state.heroID, "grace_expired")
		}
	}
}

// produceResources credits producing buildings' owners on the cadence.
// Ownerless structures (the shared town hall) produce nothing.
func (w *World) produceResources(tick uint64) {
	if w.cfg.ResourceCadenceTicks == 0 || tick == 0 || tick%w.cfg.ResourceCadenceTicks != 0 {
		return
	}
	for _, building := range w.store.ByKind(entity.KindBuilding) {
		stats, ok := entity.StatsForBuilding(building.Building)
		if !ok || stats.Produces == "" || !building.Alive() {
			continue
		}
		state, ok := w.players[building.OwnerID]
		if !ok {
			continue
		}
		state.wallet.Add(stats.Produces, 1)
		w.appendPatch(Patch{Kind: PatchWallet, PlayerID: state.id, Payload: WalletPayload{Wallet: state.wallet}})
	}
}

// evaluateOutcome flips the session to defeat when every town hall is gone,
// or to victory once the final wave has spawned and been cleared. Terminal
// states are sticky.
func (w *World) evaluateOutcome(tick uint64) {
	if w.status != MatchActive {
		return
	}
	hallAlive := false
	for _, building := range w.store.ByKind(entity.KindBuilding) {
		if building.Building == entity.BuildingTownHall && building.Alive() {
			hallAlive = true
			break
		}
	}
	if !hallAlive {
		w.finish(tick, MatchDefeat)
		return
	}
	wave := w.director.Wave()
	if w.cfg.Waves.MaxWaves > 0 && wave.WaveIndex >= w.cfg.Waves.MaxWaves && len(w.store.ByKind(entity.KindEnemy)) == 0 {
		w.finish(tick, MatchVictory)
	}
}

func (w *World) finish(tick uint64, status MatchStatus) {
	w.status = status
	w.appendPatch(Patch{Kind: PatchMatchStatus, Payload: MatchStatusPayload{Status: status}})
	lifecycle.MatchEnded(context.Background(), w.deps.Publisher, tick, lifecycle.MatchEndedPayload{
		Outcome: string(status),
		Wave:    w.director.Wave().WaveIndex,
	})
}
