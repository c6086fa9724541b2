package waves

import (
	"context"

	"stronghold/server/logging"
)

const (
	// EventWaveScheduled is emitted when the director schedules the next wave.
	EventWaveScheduled logging.EventType = "waves.wave_scheduled"
	// EventWaveSpawned is emitted after a wave's enemies enter the store.
	EventWaveSpawned logging.EventType = "waves.wave_spawned"
)

// WavePayload captures scheduler bookkeeping for a wave.
type WavePayload struct {
	Wave       int     `json:"wave"`
	Count      int     `json:"count"`
	Difficulty float64 `json:"difficulty"`
	SpawnTick  uint64  `json:"spawnTick"`
}

// WaveScheduled publishes a schedule event.
func WaveScheduled(ctx context.Context, pub logging.Publisher, tick uint64, payload WavePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventWaveScheduled,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryWaves,
		Payload:  payload,
	})
}

// WaveSpawned publishes a spawn event.
func WaveSpawned(ctx context.Context, pub logging.Publisher, tick uint64, payload WavePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventWaveSpawned,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryWaves,
		Payload:  payload,
	})
}
