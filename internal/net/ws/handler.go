package ws

import (
	nethttp "net/http"

	"github.com/gorilla/websocket"

	"stronghold/server/internal/hub"
	"stronghold/server/internal/net/proto"
	"stronghold/server/internal/sim"
	"stronghold/server/internal/telemetry"
)

// Gateway is the hub surface the websocket handler drives. All frames after
// Subscribe go out through Send; gorilla allows one concurrent writer per
// conn, and the hub's broadcast goroutine is already writing to it.
type Gateway interface {
	Subscribe(playerID string, conn hub.Conn) (sim.Snapshot, bool)
	Disconnect(playerID, reason string)
	HandleCommand(playerID string, msg proto.ClientMessage) ([]byte, error)
	Send(playerID string, payload []byte) error
}

// HandlerConfig tunes the websocket endpoint.
type HandlerConfig struct {
	Logger          telemetry.Logger
	ReadBufferSize  int
	WriteBufferSize int
}

// Handler upgrades connections and pumps client messages into the hub.
type Handler struct {
	gateway  Gateway
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs the websocket endpoint handler.
func NewHandler(gateway Gateway, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	readBuffer := cfg.ReadBufferSize
	if readBuffer <= 0 {
		readBuffer = 1024
	}
	writeBuffer := cfg.WriteBufferSize
	if writeBuffer <= 0 {
		writeBuffer = 1024
	}
	return &Handler{
		gateway: gateway,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

// Handle serves one websocket session. The player must have joined over HTTP
// first; its id arrives as a query parameter.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	playerID := r.URL.Query().Get("id")
	if playerID == "" {
		nethttp.Error(w, "missing id", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("ws: upgrade failed for %s: %v", playerID, err)
		return
	}

	snapshot, ok := h.gateway.Subscribe(playerID, conn)
	if !ok {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown player")
		_ = conn.WriteMessage(websocket.CloseMessage, message)
		_ = conn.Close()
		return
	}

	// Seed the client with a full snapshot so it can render before the
	// first diff arrives.
	initial, err := proto.EncodeKeyframeSnapshotV1(proto.KeyframeSnapshotV1{
		Tick:     snapshot.Tick,
		Snapshot: snapshot,
	})
	if err != nil {
		h.logger.Printf("ws: encode initial state for %s: %v", playerID, err)
		h.gateway.Disconnect(playerID, "encode_failed")
		return
	}
	if err := h.gateway.Send(playerID, initial); err != nil {
		h.gateway.Disconnect(playerID, "write_failed")
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.gateway.Disconnect(playerID, "read_failed")
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("ws: discarding malformed message from %s: %v", playerID, err)
			continue
		}

		response, err := h.gateway.HandleCommand(playerID, msg)
		if err != nil {
			h.logger.Printf("ws: command from %s: %v", playerID, err)
			continue
		}
		if response == nil {
			continue
		}
		if err := h.gateway.Send(playerID, response); err != nil {
			h.gateway.Disconnect(playerID, "write_failed")
			return
		}
	}
}
