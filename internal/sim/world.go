package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"stronghold/server/internal/ai"
	"stronghold/server/internal/entity"
	"stronghold/server/internal/grid"
	"stronghold/server/internal/physics"
	"stronghold/server/logging"
	"stronghold/server/logging/lifecycle"
)

// WorldConfig carries the session tuning shared with clients so their
// prediction mirrors run the same constants.
type WorldConfig struct {
	TickRate             int       `json:"tickRate"`
	Seed                 int64     `json:"seed"`
	MapName              string    `json:"mapName"`
	GraceTicks           uint64    `json:"graceTicks"`
	HarvestRange         float64   `json:"harvestRange"`
	HarvestAmount        int       `json:"harvestAmount"`
	ProjectileSpeed      float64   `json:"projectileSpeed"`
	ProjectileTTLTicks   uint64    `json:"projectileTtlTicks"`
	ProjectileHitRadius  float64   `json:"projectileHitRadius"`
	ResourceCadenceTicks uint64    `json:"resourceCadenceTicks"`
	HeroRadius           float64   `json:"heroRadius"`
	Waves                ai.Config `json:"-"`
}

// DefaultWorldConfig returns the session defaults at 20 ticks per second.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		TickRate:             20,
		Seed:                 1,
		GraceTicks:           30 * 20,
		HarvestRange:         1.5,
		HarvestAmount:        5,
		ProjectileSpeed:      12,
		ProjectileTTLTicks:   40,
		ProjectileHitRadius:  0.5,
		ResourceCadenceTicks: 2 * 20,
		HeroRadius:           0.4,
		Waves:                ai.DefaultConfig(),
	}
}

type playerState struct {
	id           string
	joinOrder    int
	class        entity.Class
	heroID       entity.ID
	wallet       Wallet
	lastSeq      uint64
	gapTotal     uint64
	disconnected bool
	graceExpiry  uint64
}

// World owns all authoritative session state. It is mutated only through
// Apply/Step under the hub's serialization; every other component works from
// tick-boundary snapshots.
type World struct {
	cfg      WorldConfig
	grid     *grid.Grid
	store    *entity.Store
	director *ai.Director
	resolver *physics.Resolver
	deps     Deps

	tick   uint64
	status MatchStatus

	players     map[string]*playerState
	joinCounter int

	staged  []Command
	pending []Command
	patches []Patch

	heroCooldowns  map[entity.ID]uint64
	buildingTiles  map[[2]int]entity.ID
	towerCooldowns map[entity.ID]uint64
	harvested      map[[2]int]int

	combatRNG *rand.Rand
}

// NewWorld constructs a session world, spawning the shared town hall at the
// map's first objective (or the centre when the descriptor names none).
func NewWorld(cfg WorldConfig, g *grid.Grid, deps Deps) *World {
	deps = deps.withDefaults()
	if cfg.TickRate <= 0 {
		cfg.TickRate = 20
	}
	if cfg.Waves.TickRate == 0 {
		cfg.Waves = ai.DefaultConfig()
	}
	cfg.Waves.TickRate = cfg.TickRate
	if g != nil {
		cfg.MapName = g.Name()
	}

	w := &World{
		cfg:            cfg,
		grid:           g,
		store:          entity.NewStore(),
		resolver:       physics.NewResolver(),
		deps:           deps,
		status:         MatchActive,
		players:        make(map[string]*playerState),
		heroCooldowns:  make(map[entity.ID]uint64),
		buildingTiles:  make(map[[2]int]entity.ID),
		towerCooldowns: make(map[entity.ID]uint64),
		harvested:      make(map[[2]int]int),
		combatRNG:      subsystemRNG(deps.RNG, "combat"),
	}
	w.director = ai.NewDirector(cfg.Waves, subsystemRNG(deps.RNG, "waves"), deps.Publisher)
	w.spawnTownHall()
	return w
}

func (w *World) spawnTownHall() {
	if w.grid == nil {
		return
	}
	x := float64(w.grid.Width()) / 2
	y := float64(w.grid.Height()) / 2
	if objectives := w.grid.Objectives(); len(objectives) > 0 {
		x = float64(objectives[0].X) + 0.5
		y = float64(objectives[0].Y) + 0.5
	}
	stats, _ := entity.StatsForBuilding(entity.BuildingTownHall)
	id := w.store.Spawn(entity.Spec{
		Kind:      entity.KindBuilding,
		Building:  entity.BuildingTownHall,
		X:         x,
		Y:         y,
		Health:    stats.MaxHealth,
		MaxHealth: stats.MaxHealth,
		Radius:    float64(stats.Width) / 2,
	})
	w.claimFootprint(id, int(x)-stats.Width/2, int(y)-stats.Height/2, stats.Width, stats.Height)
}

func (w *World) claimFootprint(id entity.ID, tx, ty, width, height int) {
	for dx := 0; dx < width; dx++ {
		for dy := 0; dy < height; dy++ {
			w.buildingTiles[[2]int{tx + dx, ty + dy}] = id
		}
	}
}

func (w *World) releaseFootprint(id entity.ID) {
	for key, owner := range w.buildingTiles {
		if owner == id {
			delete(w.buildingTiles, key)
		}
	}
}

// Join spawns a hero of the given class for a new player and returns its
// snapshot. Joining an existing player id is an error.
func (w *World) Join(playerID string, class entity.Class) (entity.Entity, error) {
	if _, exists := w.players[playerID]; exists {
		return entity.Entity{}, fmt.Errorf("player %s already joined", playerID)
	}
	stats, ok := entity.StatsForClass(class)
	if !ok {
		return entity.Entity{}, fmt.Errorf("unknown hero class %q", class)
	}

	x, y := w.spawnPointFor(w.joinCounter)
	id := w.store.Spawn(entity.Spec{
		Kind:      entity.KindHero,
		Class:     class,
		OwnerID:   playerID,
		X:         x,
		Y:         y,
		Health:    stats.MaxHealth,
		MaxHealth: stats.MaxHealth,
		Radius:    w.cfg.HeroRadius,
		Speed:     stats.Speed,
	})
	w.players[playerID] = &playerState{
		id:        playerID,
		joinOrder: w.joinCounter,
		class:     class,
		heroID:    id,
	}
	w.joinCounter++

	hero, _ := w.store.Get(id)
	snapshot := hero.Snapshot()
	w.appendPatch(Patch{Kind: PatchEntitySpawned, EntityID: id, Payload: SpawnedPayload{Entity: snapshot}})
	lifecycle.HeroJoined(context.Background(), w.deps.Publisher, w.tick, logging.EntityRef{ID: string(id), Kind: logging.EntityKindHero}, lifecycle.HeroJoinedPayload{
		Class:  string(class),
		SpawnX: x,
		SpawnY: y,
	})
	return snapshot, nil
}

func (w *World) spawnPointFor(index int) (float64, float64) {
	if w.grid == nil {
		return 0, 0
	}
	points := w.grid.SpawnPoints()
	if len(points) == 0 {
		return float64(w.grid.Width()) / 2, float64(w.grid.Height())/2 + 2
	}
	p := points[index%len(points)]
	return float64(p.X) + 0.5, float64(p.Y) + 0.5
}

// HeroOf resolves a player's hero id.
func (w *World) HeroOf(playerID string) (entity.ID, bool) {
	state, ok := w.players[playerID]
	if !ok || state.heroID == "" {
		return "", false
	}
	return state.heroID, true
}

// LastSequence reports the newest input sequence processed for a player,
// stamped on snapshots as the reconciliation watermark.
func (w *World) LastSequence(playerID string) uint64 {
	if state, ok := w.players[playerID]; ok {
		return state.lastSeq
	}
	return 0
}

// Tick reports the last completed tick.
func (w *World) Tick() uint64 { return w.tick }

// Status reports the session outcome.
func (w *World) Status() MatchStatus { return w.status }

// Wave exposes the director's scheduler state.
func (w *World) Wave() ai.WaveState { return w.director.Wave() }

// Apply stages commands for the next Step.
func (w *World) Apply(cmds []Command) error {
	if len(cmds) > 0 {
		w.staged = append(w.staged, cmds...)
	}
	return nil
}

// DrainPatches returns the accumulated diff entries and clears the journal
// window.
func (w *World) DrainPatches() []Patch {
	patches := w.patches
	w.patches = nil
	return patches
}

func (w *World) appendPatch(p Patch) {
	w.patches = append(w.patches, p)
}

// Snapshot copies the authoritative state at the current tick boundary.
func (w *World) Snapshot() Snapshot {
	entities := w.store.All()
	copied := make([]entity.Entity, 0, len(entities))
	for _, ent := range entities {
		copied = append(copied, ent.Snapshot())
	}

	players := make([]PlayerView, 0, len(w.players))
	for _, state := range w.players {
		players = append(players, PlayerView{
			PlayerID: state.id,
			HeroID:   state.heroID,
			Wallet:   state.wallet,
		})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].PlayerID < players[j].PlayerID })

	depleted := make([]TileView, 0, len(w.harvested))
	for key, remaining := range w.harvested {
		depleted = append(depleted, TileView{X: key[0], Y: key[1], Remaining: remaining})
	}
	sort.Slice(depleted, func(i, j int) bool {
		if depleted[i].Y != depleted[j].Y {
			return depleted[i].Y < depleted[j].Y
		}
		return depleted[i].X < depleted[j].X
	})

	return Snapshot{
		Tick:     w.tick,
		Entities: copied,
		Players:  players,
		Depleted: depleted,
		Wave:     w.director.Wave(),
		Status:   w.status,
		Config:   w.cfg,
	}
}
