package sim

import (
	"stronghold/server/internal/ai"
	"stronghold/server/internal/entity"
)

// PatchKind identifies the type of diff entry.
type PatchKind string

const (
	// PatchEntitySpawned carries the full entity that entered the store.
	PatchEntitySpawned PatchKind = "entity_spawned"
	// PatchEntityPos updates an entity's position.
	PatchEntityPos PatchKind = "entity_pos"
	// PatchEntityFacing updates an entity's facing.
	PatchEntityFacing PatchKind = "entity_facing"
	// PatchEntityHealth updates an entity's health pool.
	PatchEntityHealth PatchKind = "entity_health"
	// PatchEntityStatus updates an entity's status flags.
	PatchEntityStatus PatchKind = "entity_status"
	// PatchEntityRemoved signals an entity left the store.
	PatchEntityRemoved PatchKind = "entity_removed"
	// PatchTileStock updates a resource tile's remaining stock.
	PatchTileStock PatchKind = "tile_stock"
	// PatchWallet updates a player's resource wallet.
	PatchWallet PatchKind = "wallet"
	// PatchWave updates the wave scheduler state.
	PatchWave PatchKind = "wave"
	// PatchMatchStatus updates the session outcome.
	PatchMatchStatus PatchKind = "match_status"
)

// Patch represents a diff entry applied to client state.
type Patch struct {
	Kind     PatchKind `json:"kind"`
	EntityID entity.ID `json:"entityId,omitempty"`
	PlayerID string    `json:"playerId,omitempty"`
	Payload  any       `json:"payload,omitempty"`
}

// PositionPayload captures the coordinates for an entity position patch.
type PositionPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FacingPayload captures the facing for an entity patch.
type FacingPayload struct {
	Facing entity.Facing `json:"facing"`
}

// HealthPayload captures the health for an entity patch.
type HealthPayload struct {
	Health    int `json:"health"`
	MaxHealth int `json:"maxHealth"`
}

// StatusPayload captures the status flags for an entity patch.
type StatusPayload struct {
	Statuses []entity.Status `json:"statuses"`
}

// RemovedPayload captures why an entity was removed.
type RemovedPayload struct {
	Reason string `json:"reason"`
}

// SpawnedPayload carries the full entity snapshot for a spawn patch.
type SpawnedPayload struct {
	Entity entity.Entity `json:"entity"`
}

// TileStockPayload captures the remaining stock of a tile.
type TileStockPayload struct {
	TileX     int `json:"tileX"`
	TileY     int `json:"tileY"`
	Remaining int `json:"remaining"`
}

// WalletPayload captures a player's full wallet after a change.
type WalletPayload struct {
	Wallet Wallet `json:"wallet"`
}

// WavePayload captures the scheduler state after a wave spawn.
type WavePayload struct {
	Wave ai.WaveState `json:"wave"`
}

// MatchStatusPayload captures the session outcome transition.
type MatchStatusPayload struct {
	Status MatchStatus `json:"status"`
}
