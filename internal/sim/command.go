package sim

import (
	"time"

	"stronghold/server/internal/entity"
)

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandMove       CommandType = "Move"
	CommandAttack     CommandType = "Attack"
	CommandHarvest    CommandType = "Harvest"
	CommandBuild      CommandType = "Build"
	CommandHeartbeat  CommandType = "Heartbeat"
	CommandDisconnect CommandType = "Disconnect"
	CommandReconnect  CommandType = "Reconnect"
	CommandLeave      CommandType = "Leave"
)

// MoveCommand carries the desired movement vector and facing.
type MoveCommand struct {
	DX     float64       `json:"dx"`
	DY     float64       `json:"dy"`
	Facing entity.Facing `json:"facing"`
}

// AttackCommand triggers the hero's class attack. An empty target picks the
// nearest enemy in range.
type AttackCommand struct {
	TargetID entity.ID `json:"targetId,omitempty"`
}

// HarvestCommand gathers from a resource tile.
type HarvestCommand struct {
	TileX  int `json:"tileX"`
	TileY  int `json:"tileY"`
	Amount int `json:"amount"`
}

// BuildCommand places a structure with its top-left corner at the tile.
type BuildCommand struct {
	Building string `json:"building"`
	TileX    int    `json:"tileX"`
	TileY    int    `json:"tileY"`
}

// HeartbeatCommand updates connectivity metadata for an actor.
type HeartbeatCommand struct {
	ReceivedAt time.Time     `json:"receivedAt"`
	ClientSent int64         `json:"clientSent"`
	RTT        time.Duration `json:"rtt"`
}

// Command represents an intent captured for processing on a future tick.
// TargetTick is the earliest tick allowed to apply it; Sequence is the
// client's monotonic counter used for reconciliation matching.
type Command struct {
	TargetTick uint64            `json:"targetTick"`
	ActorID    string            `json:"actorId"`
	Sequence   uint64            `json:"seq"`
	Type       CommandType       `json:"type"`
	IssuedAt   time.Time         `json:"issuedAt"`
	Move       *MoveCommand      `json:"move,omitempty"`
	Attack     *AttackCommand    `json:"attack,omitempty"`
	Harvest    *HarvestCommand   `json:"harvest,omitempty"`
	Build      *BuildCommand     `json:"build,omitempty"`
	Heartbeat  *HeartbeatCommand `json:"heartbeat,omitempty"`
}
