package logging_test

import (
	"context"
	"testing"
	"time"

	"stronghold/server/logging"
	"stronghold/server/logging/sinks"
	"stronghold/server/logging/waves"
)

func closeRouter(t *testing.T, r *logging.Router) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("close router: %v", err)
	}
}

func TestRouterStampsAndFansOut(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first := sinks.NewMemorySink()
	second := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"server": "test-1"}
	router, err := logging.NewRouter(logging.ClockFunc(func() time.Time { return now }), cfg, []logging.NamedSink{
		{Name: "a", Sink: first},
		{Name: "b", Sink: second},
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	router.Publish(context.Background(), logging.Event{
		Type:     "combat.damage_applied",
		Tick:     7,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
	})
	closeRouter(t, router)

	for _, sink := range []*sinks.MemorySink{first, second} {
		events := sink.Events()
		if len(events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(events))
		}
		if !events[0].Time.Equal(now) {
			t.Fatalf("expected stamped time %v, got %v", now, events[0].Time)
		}
		if events[0].Extra["server"] != "test-1" {
			t.Fatalf("base field missing: %+v", events[0].Extra)
		}
	}
	if stats := router.Stats(); stats.Published != 1 || stats.Dropped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRouterFiltersBelowSeverityFloor(t *testing.T) {
	sink := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router, err := logging.NewRouter(nil, cfg, []logging.NamedSink{{Name: "mem", Sink: sink}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	router.Publish(context.Background(), logging.Event{Type: "waves.wave_scheduled", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "network.sequence_gap", Severity: logging.SeverityWarn})
	closeRouter(t, router)

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event after filtering, got %d", len(events))
	}
	if events[0].Type != "network.sequence_gap" {
		t.Fatalf("wrong event survived the filter: %s", events[0].Type)
	}
	if stats := router.Stats(); stats.Published != 1 {
		t.Fatalf("filtered events must not count as published: %+v", stats)
	}
}

func TestRouterIgnoresPublishAfterClose(t *testing.T) {
	sink := sinks.NewMemorySink()
	router, err := logging.NewRouter(nil, logging.DefaultConfig(), []logging.NamedSink{{Name: "mem", Sink: sink}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	closeRouter(t, router)

	router.Publish(context.Background(), logging.Event{Type: "lifecycle.hero_joined", Severity: logging.SeverityInfo})
	if events := sink.Events(); len(events) != 0 {
		t.Fatalf("expected no events after close, got %d", len(events))
	}
}

func TestHelpersEmitThroughAnyPublisher(t *testing.T) {
	var got []logging.Event
	capture := logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		got = append(got, event)
	})

	waves.WaveSpawned(context.Background(), capture, 42, waves.WavePayload{Wave: 3, Count: 9})
	waves.WaveScheduled(context.Background(), nil, 42, waves.WavePayload{Wave: 4})

	if len(got) != 1 {
		t.Fatalf("expected 1 captured event, got %d", len(got))
	}
	event := got[0]
	if event.Type != waves.EventWaveSpawned || event.Tick != 42 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Category != logging.CategoryWaves {
		t.Fatalf("expected waves category, got %s", event.Category)
	}
	if event.Actor.Kind != logging.EntityKindWorld {
		t.Fatalf("expected world actor, got %+v", event.Actor)
	}
}
