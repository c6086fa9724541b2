package net

import (
	"encoding/json"
	"io"
	nethttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stronghold/server/internal/hub"
	"stronghold/server/internal/net/proto"
	"stronghold/server/internal/net/ws"
	"stronghold/server/internal/telemetry"
)

// HTTPHandlerConfig carries the ambient pieces the router exposes.
type HTTPHandlerConfig struct {
	Logger    telemetry.Logger
	Metrics   *telemetry.Counters
	ClientDir string
	MapNames  []string
}

type joinRequest struct {
	Class string `json:"class"`
}

type resumeRequest struct {
	Token string `json:"token"`
}

type leaveRequest struct {
	PlayerID string `json:"playerId"`
	Token    string `json:"token"`
}

// NewHTTPHandler wires the lobby and match endpoints onto a chi router.
func NewHTTPHandler(h *hub.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}

	wsHandler := ws.NewHandler(h, ws.HandlerConfig{Logger: logger})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w nethttp.ResponseWriter, req *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	r.Get("/diagnostics", func(w nethttp.ResponseWriter, req *nethttp.Request) {
		snapshot := h.Snapshot()

		var counters map[string]uint64
		if cfg.Metrics != nil {
			counters = cfg.Metrics.Snapshot()
		}

		payload := struct {
			Status      string            `json:"status"`
			ServerTime  int64             `json:"serverTime"`
			Tick        uint64            `json:"tick"`
			Match       string            `json:"match"`
			Wave        int               `json:"wave"`
			Subscribers int               `json:"subscribers"`
			TickRate    int               `json:"tickRate"`
			Counters    map[string]uint64 `json:"counters,omitempty"`
		}{
			Status:      "ok",
			ServerTime:  time.Now().UnixMilli(),
			Tick:        snapshot.Tick,
			Match:       string(snapshot.Status),
			Wave:        snapshot.Wave.WaveIndex,
			Subscribers: h.SubscriberCount(),
			TickRate:    snapshot.Config.TickRate,
			Counters:    counters,
		}

		writeJSON(w, logger, payload)
	})

	r.Get("/maps", func(w nethttp.ResponseWriter, req *nethttp.Request) {
		names := cfg.MapNames
		if names == nil {
			names = []string{}
		}
		payload := struct {
			Maps []string `json:"maps"`
		}{Maps: names}
		writeJSON(w, logger, payload)
	})

	r.Post("/join", func(w nethttp.ResponseWriter, req *nethttp.Request) {
		var body joinRequest
		if req.Body != nil {
			defer req.Body.Close()
			decoder := json.NewDecoder(req.Body)
			if err := decoder.Decode(&body); err != nil && err != io.EOF {
				nethttp.Error(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
		}
		if body.Class == "" {
			body.Class = req.URL.Query().Get("class")
		}

		join, err := h.Join(req.Context(), body.Class)
		if err != nil {
			logger.Printf("join rejected: %v", err)
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}

		data, err := proto.EncodeJoinResponseV1(join)
		if err != nil {
			nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	r.Post("/resume", func(w nethttp.ResponseWriter, req *nethttp.Request) {
		var body resumeRequest
		if req.Body != nil {
			defer req.Body.Close()
			decoder := json.NewDecoder(req.Body)
			if err := decoder.Decode(&body); err != nil && err != io.EOF {
				nethttp.Error(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
		}
		if body.Token == "" {
			nethttp.Error(w, "missing token", nethttp.StatusBadRequest)
			return
		}

		join, err := h.Resume(req.Context(), body.Token)
		if err != nil {
			nethttp.Error(w, "unknown session", nethttp.StatusNotFound)
			return
		}

		data, err := proto.EncodeJoinResponseV1(join)
		if err != nil {
			nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	r.Post("/leave", func(w nethttp.ResponseWriter, req *nethttp.Request) {
		var body leaveRequest
		if req.Body != nil {
			defer req.Body.Close()
			decoder := json.NewDecoder(req.Body)
			if err := decoder.Decode(&body); err != nil && err != io.EOF {
				nethttp.Error(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
		}
		if body.PlayerID == "" {
			nethttp.Error(w, "missing playerId", nethttp.StatusBadRequest)
			return
		}

		h.Leave(req.Context(), body.PlayerID, body.Token)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/ws", wsHandler.Handle)

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		r.Handle("/*", fs)
	}

	return r
}

func writeJSON(w nethttp.ResponseWriter, logger telemetry.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("http: encode response: %v", err)
		nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
