package lifecycle

import (
	"context"

	"stronghold/server/logging"
)

const (
	// EventHeroJoined is emitted when a hero enters the world.
	EventHeroJoined logging.EventType = "lifecycle.hero_joined"
	// EventEntitySpawned is emitted when the store creates an entity.
	EventEntitySpawned logging.EventType = "lifecycle.entity_spawned"
	// EventEntityRemoved is emitted when the store removes an entity.
	EventEntityRemoved logging.EventType = "lifecycle.entity_removed"
	// EventMatchEnded is emitted when the win or lose condition fires.
	EventMatchEnded logging.EventType = "lifecycle.match_ended"
)

// HeroJoinedPayload captures spawn metadata for a new hero.
type HeroJoinedPayload struct {
	Class  string  `json:"class"`
	SpawnX float64 `json:"spawnX"`
	SpawnY float64 `json:"spawnY"`
}

// EntityRemovedPayload captures why an entity left the store.
type EntityRemovedPayload struct {
	Reason string `json:"reason"`
}

// MatchEndedPayload captures the terminal outcome of a session.
type MatchEndedPayload struct {
	Outcome string `json:"outcome"`
	Wave    int    `json:"wave"`
}

// HeroJoined publishes a hero join event.
func HeroJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload HeroJoinedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventHeroJoined,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// EntityRemoved publishes an entity removal event.
func EntityRemoved(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload EntityRemovedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEntityRemoved,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// MatchEnded publishes the session outcome.
func MatchEnded(ctx context.Context, pub logging.Publisher, tick uint64, payload MatchEndedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMatchEnded,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}
