package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stronghold/server/internal/grid"
	"stronghold/server/internal/hub"
	"stronghold/server/internal/journal"
	"stronghold/server/internal/net/proto"
	"stronghold/server/internal/session"
	"stronghold/server/internal/sim"
	"stronghold/server/internal/storage"
)

func testHub(t *testing.T) *hub.Hub {
	t.Helper()
	worldCfg := sim.DefaultWorldConfig()
	deps := sim.Deps{RNG: rand.New(rand.NewSource(1))}
	world := sim.NewWorld(worldCfg, grid.Uniform(30, 30, grid.TileEmpty), deps)
	jrnl := journal.New(journal.DefaultConfig(), nil)
	sessions := session.NewStore(storage.NewMemoryKV(nil), 0)
	return hub.New(hub.DefaultConfig(), world, sim.DefaultLoopConfig(), jrnl, sessions, deps)
}

func websocketURL(t *testing.T, base, playerID string) string {
	t.Helper()
	parsed, err := url.Parse(base)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	parsed.Scheme = "ws"
	query := parsed.Query()
	query.Set("id", playerID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func dial(t *testing.T, srv *httptest.Server, playerID string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(websocketURL(t, srv.URL, playerID), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})
	return conn
}

func TestHandleSendsInitialSnapshot(t *testing.T) {
	h := testHub(t)
	join, err := h.Join(context.Background(), "TANK")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	handler := NewHandler(h, HandlerConfig{})
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, join.PlayerID)

	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read initial state: %v", err)
	}

	var frame proto.KeyframeSnapshotV1
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("decode initial state: %v", err)
	}
	if frame.Type != proto.TypeKeyframe {
		t.Fatalf("expected %q frame, got %q", proto.TypeKeyframe, frame.Type)
	}
	if len(frame.Snapshot.Entities) == 0 {
		t.Fatalf("initial snapshot has no entities")
	}
}

func TestHandleAcksCommands(t *testing.T) {
	h := testHub(t)
	join, err := h.Join(context.Background(), "ARCHER")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	handler := NewHandler(h, HandlerConfig{})
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, join.PlayerID)
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read initial state: %v", err)
	}

	seq := uint64(1)
	input := proto.ClientMessage{
		Type:       proto.TypeInput,
		DX:         1,
		CommandSeq: &seq,
	}
	if err := conn.WriteJSON(input); err != nil {
		t.Fatalf("send input: %v", err)
	}

	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	var ack struct {
		Ver  int    `json:"ver"`
		Type string `json:"type"`
		Seq  uint64 `json:"seq"`
	}
	if err := json.Unmarshal(payload, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Type != "commandAck" || ack.Seq != 1 {
		t.Fatalf("unexpected ack %+v", ack)
	}
}

func TestHandleSkipsMalformedPayloads(t *testing.T) {
	h := testHub(t)
	join, err := h.Join(context.Background(), "MAGE")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	handler := NewHandler(h, HandlerConfig{})
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, join.PlayerID)
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read initial state: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("send garbage: %v", err)
	}

	// Connection survives the bad payload and still acks real commands.
	seq := uint64(1)
	if err := conn.WriteJSON(proto.ClientMessage{Type: proto.TypeInput, DY: 1, CommandSeq: &seq}); err != nil {
		t.Fatalf("send input: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read ack after malformed payload: %v", err)
	}
}

func TestHandleRepliesSafelyDuringBroadcasts(t *testing.T) {
	h := testHub(t)
	stop := make(chan struct{})
	go h.Run(stop)
	t.Cleanup(func() { close(stop) })

	join, err := h.Join(context.Background(), "BUILDER")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	handler := NewHandler(h, HandlerConfig{})
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, join.PlayerID)
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read initial state: %v", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}

	// Command replies and tick broadcasts share the conn; flood inputs while
	// the loop fans out state frames and make sure every reply arrives.
	frameTypes := make(chan string, 256)
	go func() {
		defer close(frameTypes)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(payload, &frame); err != nil {
				continue
			}
			frameTypes <- frame.Type
		}
	}()

	const inputs = 50
	for seq := uint64(1); seq <= inputs; seq++ {
		s := seq
		if err := conn.WriteJSON(proto.ClientMessage{Type: proto.TypeInput, DX: 1, CommandSeq: &s}); err != nil {
			t.Fatalf("send input %d: %v", seq, err)
		}
	}

	replies := 0
	deadline := time.After(10 * time.Second)
	for replies < inputs {
		select {
		case frameType, ok := <-frameTypes:
			if !ok {
				t.Fatalf("connection closed after %d of %d replies", replies, inputs)
			}
			if frameType == "commandAck" || frameType == "commandReject" {
				replies++
			}
		case <-deadline:
			t.Fatalf("timed out after %d of %d replies", replies, inputs)
		}
	}
}

func TestHandleClosesUnknownPlayer(t *testing.T) {
	h := testHub(t)

	handler := NewHandler(h, HandlerConfig{})
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "player-missing")

	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected close for unknown player")
	}
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}
