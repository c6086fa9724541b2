package combat

import (
	"context"

	"stronghold/server/logging"
)

const (
	// EventDamageApplied is emitted when an attack lands.
	EventDamageApplied logging.EventType = "combat.damage_applied"
	// EventEntityDied is emitted when health reaches zero.
	EventEntityDied logging.EventType = "combat.entity_died"
)

// DamagePayload captures a resolved hit.
type DamagePayload struct {
	Amount    int  `json:"amount"`
	Remaining int  `json:"remaining"`
	Critical  bool `json:"critical,omitempty"`
}

// DamageApplied publishes a damage event.
func DamageApplied(ctx context.Context, pub logging.Publisher, tick uint64, actor, target logging.EntityRef, payload DamagePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDamageApplied,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryCombat,
		Payload:  payload,
	})
}

// EntityDied publishes a death event.
func EntityDied(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, killer logging.EntityRef) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventEntityDied,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
	}
	if killer.ID != "" {
		event.Targets = []logging.EntityRef{killer}
	}
	pub.Publish(ctx, event)
}
