package entity

import "sort"

// Kind enumerates the entity categories owned by the store.
type Kind string

const (
	KindHero       Kind = "hero"
	KindEnemy      Kind = "enemy"
	KindBuilding   Kind = "building"
	KindProjectile Kind = "projectile"
)

// ID uniquely identifies an entity within a session. IDs are never reused.
type ID string

// Facing enumerates the four cardinal facings carried on the wire.
type Facing string

const (
	FacingUp    Facing = "up"
	FacingDown  Facing = "down"
	FacingLeft  Facing = "left"
	FacingRight Facing = "right"
)

// DeriveFacing picks a facing from a movement vector, keeping the fallback
// when the vector is zero.
func DeriveFacing(dx, dy float64, fallback Facing) Facing {
	if dx == 0 && dy == 0 {
		return fallback
	}
	if ax, ay := abs(dx), abs(dy); ax >= ay {
		if dx < 0 {
			return FacingLeft
		}
		return FacingRight
	}
	if dy < 0 {
		return FacingUp
	}
	return FacingDown
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Status marks a transient condition on an entity.
type Status string

const (
	// StatusDisconnected marks a hero whose client dropped and is inside the
	// reconnect grace window.
	StatusDisconnected Status = "disconnected"
)

// Entity is the authoritative state of one world object. The struct is
// mutated only by the simulation tick.
type Entity struct {
	ID        ID      `json:"id"`
	Seq       uint64  `json:"seq"`
	Kind      Kind    `json:"kind"`
	Class     Class   `json:"class,omitempty"`
	Archetype string  `json:"archetype,omitempty"`
	Building  string  `json:"building,omitempty"`
	OwnerID   string  `json:"ownerId,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Facing    Facing  `json:"facing,omitempty"`
	Health    int     `json:"health"`
	MaxHealth int     `json:"maxHealth"`
	Radius    float64 `json:"radius"`
	Speed     float64 `json:"speed"`

	// IntentX/IntentY is the normalized movement intent applied by physics.
	IntentX float64 `json:"intentX,omitempty"`
	IntentY float64 `json:"intentY,omitempty"`

	// VelX/VelY is a fixed velocity for projectiles.
	VelX float64 `json:"velX,omitempty"`
	VelY float64 `json:"velY,omitempty"`

	// ExpiresAtTick removes a projectile even without a hit.
	ExpiresAtTick uint64 `json:"expiresAtTick,omitempty"`

	// Damage dealt by a projectile or building (tower) attack.
	Damage int `json:"damage,omitempty"`

	// Statuses is kept sorted so keyframes and join snapshots encode the
	// same bytes for the same state. Reconnecting clients learn a peer's
	// grace flag from here, not only from incremental patches.
	Statuses []Status `json:"statuses,omitempty"`
}

// HasStatus reports whether the status is set.
func (e *Entity) HasStatus(s Status) bool {
	if e == nil {
		return false
	}
	for _, have := range e.Statuses {
		if have == s {
			return true
		}
	}
	return false
}

// SetStatus adds a status flag.
func (e *Entity) SetStatus(s Status) {
	if e == nil || e.HasStatus(s) {
		return
	}
	e.Statuses = append(e.Statuses, s)
	sort.Slice(e.Statuses, func(i, j int) bool { return e.Statuses[i] < e.Statuses[j] })
}

// ClearStatus removes a status flag.
func (e *Entity) ClearStatus(s Status) {
	if e == nil {
		return
	}
	for i, have := range e.Statuses {
		if have == s {
			e.Statuses = append(e.Statuses[:i], e.Statuses[i+1:]...)
			return
		}
	}
}

// Alive reports whether health is above zero.
func (e *Entity) Alive() bool {
	return e != nil && e.Health > 0
}

// Snapshot returns a value copy safe to hand outside the tick.
func (e *Entity) Snapshot() Entity {
	copied := *e
	if e.Statuses != nil {
		copied.Statuses = append([]Status(nil), e.Statuses...)
	}
	return copied
}
