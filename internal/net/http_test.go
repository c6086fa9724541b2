package net

import (
	"context"
	"encoding/json"
	"math/rand"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stronghold/server/internal/grid"
	"stronghold/server/internal/hub"
	"stronghold/server/internal/journal"
	"stronghold/server/internal/net/proto"
	"stronghold/server/internal/session"
	"stronghold/server/internal/sim"
	"stronghold/server/internal/storage"
	"stronghold/server/internal/telemetry"
)

func testHandler(t *testing.T) (nethttp.Handler, *hub.Hub) {
	t.Helper()
	worldCfg := sim.DefaultWorldConfig()
	metrics := telemetry.NewCounters()
	deps := sim.Deps{RNG: rand.New(rand.NewSource(1)), Metrics: metrics}
	world := sim.NewWorld(worldCfg, grid.Uniform(30, 30, grid.TileEmpty), deps)
	jrnl := journal.New(journal.DefaultConfig(), nil)
	sessions := session.NewStore(storage.NewMemoryKV(nil), 0)
	h := hub.New(hub.DefaultConfig(), world, sim.DefaultLoopConfig(), jrnl, sessions, deps)
	handler := NewHTTPHandler(h, HTTPHandlerConfig{
		Metrics:  metrics,
		MapNames: []string{"plains"},
	})
	return handler, h
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := testHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/health", nil))

	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "ok" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestJoinEndpointIssuesSession(t *testing.T) {
	handler, _ := testHandler(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(nethttp.MethodPost, "/join", strings.NewReader(`{"class":"ARCHER"}`))
	handler.ServeHTTP(rec, req)

	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var join proto.JoinResponseV1
	if err := json.Unmarshal(rec.Body.Bytes(), &join); err != nil {
		t.Fatalf("decode join response: %v", err)
	}
	if join.PlayerID == "" || join.Token == "" || join.HeroID == "" {
		t.Fatalf("incomplete join response: %+v", join)
	}
	if join.Ver != proto.Version {
		t.Fatalf("expected protocol version %d, got %d", proto.Version, join.Ver)
	}
}

func TestJoinEndpointRejectsUnknownClass(t *testing.T) {
	handler, _ := testHandler(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(nethttp.MethodPost, "/join", strings.NewReader(`{"class":"WIZARD"}`))
	handler.ServeHTTP(rec, req)

	if rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestJoinEndpointRequiresPost(t *testing.T) {
	handler, _ := testHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/join", nil))

	if rec.Code != nethttp.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestDiagnosticsReportsMatchState(t *testing.T) {
	handler, h := testHandler(t)

	if _, err := h.Join(context.Background(), "TANK"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/diagnostics", nil))

	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Status   string `json:"status"`
		Match    string `json:"match"`
		TickRate int    `json:"tickRate"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("unexpected status %q", payload.Status)
	}
	if payload.Match != "active" {
		t.Fatalf("unexpected match state %q", payload.Match)
	}
	if payload.TickRate != 20 {
		t.Fatalf("unexpected tick rate %d", payload.TickRate)
	}
}

func TestMapsEndpointListsConfiguredMaps(t *testing.T) {
	handler, _ := testHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/maps", nil))

	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Maps []string `json:"maps"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode maps: %v", err)
	}
	if len(payload.Maps) != 1 || payload.Maps[0] != "plains" {
		t.Fatalf("unexpected map list %v", payload.Maps)
	}
}

func TestResumeEndpointRestoresSession(t *testing.T) {
	handler, h := testHandler(t)

	join, err := h.Join(context.Background(), "TANK")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(nethttp.MethodPost, "/resume", strings.NewReader(`{"token":"`+join.Token+`"}`))
	handler.ServeHTTP(rec, req)

	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resumed proto.JoinResponseV1
	if err := json.Unmarshal(rec.Body.Bytes(), &resumed); err != nil {
		t.Fatalf("decode resume response: %v", err)
	}
	if resumed.PlayerID != join.PlayerID || resumed.HeroID != join.HeroID {
		t.Fatalf("resume returned a different identity: %+v vs %+v", resumed, join)
	}
}

func TestResumeEndpointRejectsUnknownToken(t *testing.T) {
	handler, _ := testHandler(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(nethttp.MethodPost, "/resume", strings.NewReader(`{"token":"bogus"}`))
	handler.ServeHTTP(rec, req)

	if rec.Code != nethttp.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLeaveEndpointRequiresPlayerID(t *testing.T) {
	handler, _ := testHandler(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(nethttp.MethodPost, "/leave", strings.NewReader(`{}`))
	handler.ServeHTTP(rec, req)

	if rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
