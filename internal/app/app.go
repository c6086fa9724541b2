package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	nethttp "net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"stronghold/server/internal/grid"
	"stronghold/server/internal/hub"
	"stronghold/server/internal/journal"
	servernet "stronghold/server/internal/net"
	"stronghold/server/internal/session"
	"stronghold/server/internal/sim"
	"stronghold/server/internal/storage"
	"stronghold/server/internal/telemetry"
	"stronghold/server/logging"
	loggingsinks "stronghold/server/logging/sinks"
)

const defaultAddr = ":8080"

// journalCounters bridges journal drop telemetry onto the shared counter set.
type journalCounters struct {
	metrics telemetry.Metrics
}

func (j journalCounters) RecordJournalDrop(metric string) {
	j.metrics.Add(metric, 1)
}

// Run assembles the server from environment configuration and serves until
// ctx is cancelled or the listener fails.
func Run(ctx context.Context) error {
	// A missing .env file is fine; explicit environment wins either way.
	_ = godotenv.Load()

	log := logrus.New()
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		level, err := logrus.ParseLevel(raw)
		if err != nil {
			return fmt.Errorf("invalid LOG_LEVEL=%q: %w", raw, err)
		}
		log.SetLevel(level)
	}
	if os.Getenv("LOG_FORMAT") == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	logger := telemetry.WrapLogrus(log)
	metrics := telemetry.NewCounters()

	logCfg := logging.DefaultConfig()
	sinks := []logging.NamedSink{
		{Name: "console", Sink: loggingsinks.NewConsoleSink(os.Stdout, logCfg.Console)},
	}
	if path := os.Getenv("LOG_EVENTS_FILE"); path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open event log %s: %w", path, err)
		}
		defer file.Close()
		sinks = append(sinks, logging.NamedSink{
			Name: "json",
			Sink: loggingsinks.NewJSON(file, logCfg.JSON.FlushInterval),
		})
		logCfg.EnabledSinks = append(logCfg.EnabledSinks, "json")
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logCfg, sinks)
	if err != nil {
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("close logging router: %v", cerr)
		}
	}()

	worldCfg := sim.DefaultWorldConfig()
	if raw := os.Getenv("SEED"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SEED=%q: %w", raw, err)
		}
		worldCfg.Seed = seed
	}

	var g *grid.Grid
	mapName := "uniform"
	if path := os.Getenv("MAP_FILE"); path != "" {
		g, err = grid.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load map %s: %w", path, err)
		}
		mapName = g.Name()
	} else {
		g = grid.Uniform(64, 64, grid.TileEmpty)
	}
	worldCfg.MapName = mapName

	hubCfg := hub.DefaultConfig()
	if raw := os.Getenv("KEYFRAME_INTERVAL_TICKS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			hubCfg.KeyframeInterval = value
		} else {
			logger.Printf("invalid KEYFRAME_INTERVAL_TICKS=%q: %v", raw, err)
		}
	}

	var kv storage.KV
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		db := 0
		if raw := os.Getenv("REDIS_DB"); raw != "" {
			if value, err := strconv.Atoi(raw); err == nil {
				db = value
			} else {
				logger.Printf("invalid REDIS_DB=%q: %v", raw, err)
			}
		}
		redisKV, err := storage.NewRedisKV(ctx, addr, os.Getenv("REDIS_PASSWORD"), "stronghold", db)
		if err != nil {
			return fmt.Errorf("connect session store: %w", err)
		}
		kv = redisKV
		logger.Printf("sessions stored in redis at %s", addr)
	} else {
		kv = storage.NewMemoryKV(nil)
	}
	defer kv.Close()

	deps := sim.Deps{
		Logger:    logger,
		Metrics:   metrics,
		Clock:     logging.SystemClock{},
		Publisher: router,
		RNG:       rand.New(rand.NewSource(worldCfg.Seed)),
	}

	world := sim.NewWorld(worldCfg, g, deps)
	jrnl := journal.New(journal.DefaultConfig(), journalCounters{metrics: metrics})
	sessions := session.NewStore(kv, hubCfg.SessionTTL)
	h := hub.New(hubCfg, world, sim.DefaultLoopConfig(), jrnl, sessions, deps)

	stop := make(chan struct{})
	go h.Run(stop)
	defer close(stop)

	handler := servernet.NewHTTPHandler(h, servernet.HTTPHandlerConfig{
		Logger:    logger,
		Metrics:   metrics,
		ClientDir: os.Getenv("CLIENT_DIR"),
		MapNames:  []string{mapName},
	})

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	srv := &nethttp.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Printf("shutdown: %v", serr)
		}
	}()

	logger.Printf("server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
