package network

import (
	"context"

	"stronghold/server/logging"
)

const (
	// EventClientDisconnected is emitted when a subscriber drops.
	EventClientDisconnected logging.EventType = "network.client_disconnected"
	// EventClientReconnected is emitted when a client resumes within grace.
	EventClientReconnected logging.EventType = "network.client_reconnected"
	// EventSequenceGap is emitted when inbound command sequences skip values.
	EventSequenceGap logging.EventType = "network.sequence_gap"
)

// DisconnectPayload captures the reason a subscriber dropped.
type DisconnectPayload struct {
	Reason string `json:"reason"`
}

// SequenceGapPayload captures the observed gap bounds.
type SequenceGapPayload struct {
	Expected uint64 `json:"expected"`
	Received uint64 `json:"received"`
}

// ClientDisconnected publishes a disconnect event.
func ClientDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload DisconnectPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventClientDisconnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// ClientReconnected publishes a reconnect event.
func ClientReconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventClientReconnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
	})
}

// SequenceGap publishes a warning for a skipped command sequence.
func SequenceGap(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SequenceGapPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSequenceGap,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
