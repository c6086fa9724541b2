package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"stronghold/server/internal/entity"
	"stronghold/server/internal/journal"
	"stronghold/server/internal/net/proto"
	"stronghold/server/internal/session"
	"stronghold/server/internal/sim"
	"stronghold/server/internal/telemetry"
	"stronghold/server/logging"
	networklog "stronghold/server/logging/network"
)

// Conn is the subset of *websocket.Conn the hub writes to. Tests substitute
// in-memory fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Config tunes session orchestration.
type Config struct {
	// KeyframeInterval is the tick cadence for journal keyframes.
	KeyframeInterval int
	// HeartbeatTimeout prunes subscribers that stopped sending heartbeats.
	HeartbeatTimeout time.Duration
	// InputLeadTicks schedules client commands this many ticks ahead of the
	// last completed tick.
	InputLeadTicks uint64
	// WriteWait bounds a single websocket write.
	WriteWait time.Duration
	// SessionTTL bounds how long a resume token stays valid without contact.
	SessionTTL time.Duration
}

// DefaultConfig returns hub defaults for a 20 Hz session.
func DefaultConfig() Config {
	return Config{
		KeyframeInterval: 100,
		HeartbeatTimeout: 20 * time.Second,
		InputLeadTicks:   1,
		WriteWait:        5 * time.Second,
		SessionTTL:       2 * time.Minute,
	}
}

type subscriber struct {
	playerID string
	conn     Conn
	mu       sync.Mutex

	lastCommandSeq uint64
	lastHeartbeat  time.Time
}

// Hub owns the session boundary: joins, websocket subscribers, command
// intake, and state fan-out. All world mutation funnels through the guarded
// engine so the simulation stays single-writer.
type Hub struct {
	mu          sync.Mutex
	cfg         Config
	world       *sim.World
	loop        *sim.Loop
	journal     *journal.Journal
	sessions    *session.Store
	logger      telemetry.Logger
	metrics     telemetry.Metrics
	publisher   logging.Publisher
	subscribers map[string]*subscriber
	offline     map[string]bool

	keyframeSeq uint64
}

// guardedEngine serializes loop access to the world with the hub mutex so
// joins and reconnects never race the tick.
type guardedEngine struct {
	mu    *sync.Mutex
	world *sim.World
}

func (g guardedEngine) Apply(cmds []sim.Command) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.world.Apply(cmds)
}

func (g guardedEngine) Step(tick uint64, dt float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.world.Step(tick, dt)
}

func (g guardedEngine) Snapshot() sim.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.world.Snapshot()
}

func (g guardedEngine) DrainPatches() []sim.Patch {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.world.DrainPatches()
}

// New wires a hub around the world. The returned hub owns the loop; run it
// with Run.
func New(cfg Config, world *sim.World, loopCfg sim.LoopConfig, jrnl *journal.Journal, sessions *session.Store, deps sim.Deps) *Hub {
	if cfg.KeyframeInterval <= 0 {
		cfg.KeyframeInterval = 100
	}
	if cfg.InputLeadTicks == 0 {
		cfg.InputLeadTicks = 1
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewCounters()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	h := &Hub{
		cfg:         cfg,
		world:       world,
		journal:     jrnl,
		sessions:    sessions,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		publisher:   deps.Publisher,
		subscribers: make(map[string]*subscriber),
		offline:     make(map[string]bool),
	}
	engine := guardedEngine{mu: &h.mu, world: world}
	h.loop = sim.NewLoop(engine, loopCfg, deps, sim.LoopHooks{
		AfterStep: h.afterStep,
	})
	return h
}

// Run drives the simulation loop until stop closes.
func (h *Hub) Run(stop <-chan struct{}) {
	h.loop.Run(stop)
}

// Loop exposes the tick loop for diagnostics.
func (h *Hub) Loop() *sim.Loop { return h.loop }

// Join registers a new player, spawns its hero and returns the join payload
// with a resume token.
func (h *Hub) Join(ctx context.Context, class string) (proto.JoinResponseV1, error) {
	heroClass, ok := entity.ParseClass(class)
	if !ok {
		return proto.JoinResponseV1{}, fmt.Errorf("hub: unknown hero class %q", class)
	}
	playerID := "player-" + uuid.NewString()

	h.mu.Lock()
	hero, err := h.world.Join(playerID, heroClass)
	var snapshot sim.Snapshot
	if err == nil {
		snapshot = h.world.Snapshot()
	}
	h.mu.Unlock()
	if err != nil {
		return proto.JoinResponseV1{}, err
	}

	now := time.Now()
	token := ""
	if h.sessions != nil {
		token, err = h.sessions.Create(ctx, session.Record{
			PlayerID:  playerID,
			HeroClass: string(heroClass),
			JoinedAt:  now,
			LastSeen:  now,
		})
		if err != nil {
			return proto.JoinResponseV1{}, err
		}
	}

	return proto.JoinResponseV1{
		PlayerID:         playerID,
		HeroID:           string(hero.ID),
		Token:            token,
		Snapshot:         snapshot,
		Config:           snapshot.Config,
		MapName:          snapshot.Config.MapName,
		KeyframeInterval: h.cfg.KeyframeInterval,
	}, nil
}

// Resume validates a session token and returns the join payload for a player
// whose hero is still alive, so a client can re-enter after a dropped
// connection without losing its identity.
func (h *Hub) Resume(ctx context.Context, token string) (proto.JoinResponseV1, error) {
	if h.sessions == nil {
		return proto.JoinResponseV1{}, fmt.Errorf("hub: sessions disabled")
	}
	record, err := h.sessions.Lookup(ctx, token)
	if err != nil {
		return proto.JoinResponseV1{}, err
	}

	h.mu.Lock()
	heroID, ok := h.world.HeroOf(record.PlayerID)
	var snapshot sim.Snapshot
	if ok {
		snapshot = h.world.Snapshot()
	}
	h.mu.Unlock()
	if !ok {
		return proto.JoinResponseV1{}, fmt.Errorf("hub: no live hero for %s", record.PlayerID)
	}

	if err := h.sessions.Touch(ctx, token, time.Now()); err != nil {
		h.logger.Printf("hub: touch session for %s: %v", record.PlayerID, err)
	}

	return proto.JoinResponseV1{
		PlayerID:         record.PlayerID,
		HeroID:           string(heroID),
		Token:            token,
		Snapshot:         snapshot,
		Config:           snapshot.Config,
		MapName:          snapshot.Config.MapName,
		KeyframeInterval: h.cfg.KeyframeInterval,
	}, nil
}

// Subscribe associates a websocket connection with a joined player. A player
// reconnecting inside the grace window gets its hero back; the previous
// connection, if any, is closed.
func (h *Hub) Subscribe(playerID string, conn Conn) (sim.Snapshot, bool) {
	h.mu.Lock()
	if _, ok := h.world.HeroOf(playerID); !ok {
		h.mu.Unlock()
		return sim.Snapshot{}, false
	}
	existing := h.subscribers[playerID]
	sub := &subscriber{playerID: playerID, conn: conn, lastHeartbeat: time.Now()}
	h.subscribers[playerID] = sub
	wasOffline := h.offline[playerID]
	delete(h.offline, playerID)
	snapshot := h.world.Snapshot()
	h.mu.Unlock()

	if existing != nil {
		_ = existing.conn.Close()
	}
	if wasOffline {
		h.loop.Enqueue(sim.Command{
			ActorID:    playerID,
			Type:       sim.CommandReconnect,
			TargetTick: h.loop.Tick() + 1,
			IssuedAt:   time.Now(),
		})
	}
	return snapshot, true
}

// Disconnect detaches a subscriber and starts the grace window. The hero
// stays in the world until the window lapses.
func (h *Hub) Disconnect(playerID string, reason string) {
	h.mu.Lock()
	sub, ok := h.subscribers[playerID]
	if ok {
		delete(h.subscribers, playerID)
	}
	h.offline[playerID] = true
	h.mu.Unlock()

	if sub != nil {
		_ = sub.conn.Close()
	}
	if !ok {
		return
	}
	h.loop.Enqueue(sim.Command{
		ActorID:    playerID,
		Type:       sim.CommandDisconnect,
		TargetTick: h.loop.Tick() + 1,
		IssuedAt:   time.Now(),
	})
	networklog.ClientDisconnected(context.Background(), h.publisher, h.loop.Tick(),
		logging.EntityRef{ID: playerID, Kind: logging.EntityKindHero},
		networklog.DisconnectPayload{Reason: reason})
}

// Leave removes a player permanently.
func (h *Hub) Leave(ctx context.Context, playerID, token string) {
	h.Disconnect(playerID, "left")
	h.mu.Lock()
	delete(h.offline, playerID)
	h.mu.Unlock()
	h.loop.Enqueue(sim.Command{
		ActorID:    playerID,
		Type:       sim.CommandLeave,
		TargetTick: h.loop.Tick() + 1,
		IssuedAt:   time.Now(),
	})
	if h.journal != nil {
		h.journal.ForgetSubscriber(playerID)
	}
	if h.sessions != nil && token != "" {
		_ = h.sessions.Delete(ctx, token)
	}
}

// HandleCommand converts a client message into a scheduled simulation
// command. The returned payload is the ack or reject frame to write back;
// nil means the message produced no response.
func (h *Hub) HandleCommand(playerID string, msg proto.ClientMessage) ([]byte, error) {
	sub := h.subscriberFor(playerID)
	if sub == nil {
		return nil, fmt.Errorf("hub: no subscriber for %s", playerID)
	}

	if msg.Ack != nil && h.journal != nil {
		h.journal.RecordAck(playerID, *msg.Ack)
	}

	switch msg.Type {
	case proto.TypeHeartbeat:
		return h.heartbeat(sub, msg)
	case proto.TypeKeyframeReq:
		return h.keyframeResponse(playerID, msg)
	}

	cmd, ok := proto.ClientCommand(msg)
	if !ok {
		return nil, nil
	}

	seq := uint64(0)
	if msg.CommandSeq != nil {
		seq = *msg.CommandSeq
	}
	if seq != 0 {
		sub.mu.Lock()
		duplicate := seq <= sub.lastCommandSeq
		if !duplicate {
			sub.lastCommandSeq = seq
		}
		sub.mu.Unlock()
		if duplicate {
			// Re-ack so a client that lost the first ack stops resending.
			return proto.EncodeCommandAck(proto.CommandAck{Seq: seq, Tick: h.loop.Tick()})
		}
	}

	cmd.ActorID = playerID
	cmd.Sequence = seq
	cmd.TargetTick = h.loop.Tick() + h.cfg.InputLeadTicks
	cmd.IssuedAt = time.Now()

	if ok, reason := h.loop.Enqueue(cmd); !ok {
		return proto.EncodeCommandReject(proto.CommandReject{
			Seq:    seq,
			Reason: reason,
			Retry:  reason == sim.CommandRejectQueueLimit,
			Tick:   h.loop.Tick(),
		})
	}
	return proto.EncodeCommandAck(proto.CommandAck{Seq: seq, Tick: cmd.TargetTick})
}

func (h *Hub) heartbeat(sub *subscriber, msg proto.ClientMessage) ([]byte, error) {
	now := time.Now()
	sub.mu.Lock()
	sub.lastHeartbeat = now
	sub.mu.Unlock()

	rtt := int64(0)
	if msg.SentAt > 0 {
		rtt = now.UnixMilli() - msg.SentAt
		if rtt < 0 {
			rtt = 0
		}
	}
	return proto.EncodeHeartbeat(proto.Heartbeat{
		ServerTime: now.UnixMilli(),
		ClientTime: msg.SentAt,
		RTTMillis:  rtt,
	})
}

func (h *Hub) keyframeResponse(playerID string, msg proto.ClientMessage) ([]byte, error) {
	if h.journal == nil {
		return nil, nil
	}

	// A client that is only a little behind can catch up from the retained
	// patch window instead of replaying a full keyframe.
	if msg.KeyframeSeq == nil || *msg.KeyframeSeq == 0 {
		if payload, ok := h.resyncFromJournal(playerID); ok {
			return payload, nil
		}
	}

	var frame journal.Keyframe
	found := false
	if msg.KeyframeSeq != nil && *msg.KeyframeSeq > 0 {
		frame, found = h.journal.KeyframeBySequence(*msg.KeyframeSeq)
	} else {
		frame, found = h.journal.LatestKeyframe()
	}
	if !found {
		_, oldest, newest := h.journal.KeyframeWindow()
		requested := uint64(0)
		if msg.KeyframeSeq != nil {
			requested = *msg.KeyframeSeq
		}
		return proto.EncodeKeyframeNack(proto.KeyframeNack{
			Sequence: requested,
			Oldest:   oldest,
			Newest:   newest,
		})
	}
	return proto.EncodeKeyframeSnapshotV1(proto.KeyframeSnapshotV1{
		Sequence: frame.Sequence,
		Tick:     frame.Tick,
		Snapshot: frame.Snapshot,
	})
}

// resyncFromJournal builds a state frame covering every tick past the
// client's ack watermark. Fails when the retained window no longer reaches
// that far back, in which case the caller serves a keyframe.
func (h *Hub) resyncFromJournal(playerID string) ([]byte, bool) {
	acked := h.journal.AckOf(playerID)
	if acked == 0 {
		return nil, false
	}
	batches, ok := h.journal.PatchesSince(acked)
	if !ok || len(batches) == 0 {
		return nil, false
	}

	var patches []sim.Patch
	lastTick := acked
	for _, batch := range batches {
		patches = append(patches, batch.Patches...)
		if batch.Tick > lastTick {
			lastTick = batch.Tick
		}
	}

	h.mu.Lock()
	ackedSeq := h.world.LastSequence(playerID)
	config := h.world.Snapshot().Config
	keyframeSeq := h.keyframeSeq
	h.mu.Unlock()

	payload, err := proto.EncodeStateSnapshotV1(proto.StateSnapshotV1{
		Tick:             lastTick,
		Patches:          patches,
		AckedSeq:         ackedSeq,
		KeyframeSeq:      keyframeSeq,
		ServerTime:       time.Now().UnixMilli(),
		Config:           config,
		Resync:           true,
		KeyframeInterval: h.cfg.KeyframeInterval,
	})
	if err != nil {
		h.logger.Printf("hub: encode resync for %s: %v", playerID, err)
		return nil, false
	}
	return payload, true
}

// Send writes a frame to the player's connection through the per-subscriber
// lock. Handler replies must go through here, never the raw conn, so they
// cannot interleave with loop broadcasts on the same websocket.
func (h *Hub) Send(playerID string, payload []byte) error {
	sub := h.subscriberFor(playerID)
	if sub == nil {
		return fmt.Errorf("hub: no subscriber for %s", playerID)
	}
	return h.write(sub, payload)
}

func (h *Hub) subscriberFor(playerID string) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribers[playerID]
}

// afterStep runs on the loop goroutine once per tick: it journals the tick's
// patches, records keyframes on the cadence, fans the diff out to every
// subscriber and prunes the ones that went silent.
func (h *Hub) afterStep(result sim.LoopStepResult) {
	if h.journal != nil {
		h.journal.AppendTick(result.Tick, result.Patches)
		if result.Tick%uint64(h.cfg.KeyframeInterval) == 0 {
			frame, _ := h.journal.RecordKeyframe(result.Tick, result.Snapshot)
			h.mu.Lock()
			h.keyframeSeq = frame.Sequence
			h.mu.Unlock()
		}
	}
	h.broadcast(result)
	h.pruneStale(result.Now)
}

type fanoutTarget struct {
	sub      *subscriber
	ackedSeq uint64
}

func (h *Hub) broadcast(result sim.LoopStepResult) {
	h.mu.Lock()
	targets := make([]fanoutTarget, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		targets = append(targets, fanoutTarget{
			sub:      sub,
			ackedSeq: h.world.LastSequence(sub.playerID),
		})
	}
	keyframeSeq := h.keyframeSeq
	h.mu.Unlock()

	serverTime := result.Now.UnixMilli()
	for _, target := range targets {
		payload, err := proto.EncodeStateSnapshotV1(proto.StateSnapshotV1{
			Tick:             result.Tick,
			Patches:          result.Patches,
			AckedSeq:         target.ackedSeq,
			KeyframeSeq:      keyframeSeq,
			ServerTime:       serverTime,
			Config:           result.Snapshot.Config,
			KeyframeInterval: h.cfg.KeyframeInterval,
		})
		if err != nil {
			h.logger.Printf("hub: encode state for %s: %v", target.sub.playerID, err)
			continue
		}
		if err := h.write(target.sub, payload); err != nil {
			h.logger.Printf("hub: send state to %s: %v", target.sub.playerID, err)
			h.Disconnect(target.sub.playerID, "write_failed")
		}
	}
}

func (h *Hub) write(sub *subscriber, payload []byte) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if h.cfg.WriteWait > 0 {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
	}
	return sub.conn.WriteMessage(websocket.TextMessage, payload)
}

func (h *Hub) pruneStale(now time.Time) {
	if h.cfg.HeartbeatTimeout <= 0 || now.IsZero() {
		return
	}
	h.mu.Lock()
	var stale []string
	for id, sub := range h.subscribers {
		sub.mu.Lock()
		silent := now.Sub(sub.lastHeartbeat) > h.cfg.HeartbeatTimeout
		sub.mu.Unlock()
		if silent {
			stale = append(stale, id)
		}
	}
	h.mu.Unlock()
	for _, id := range stale {
		h.Disconnect(id, "heartbeat_timeout")
	}
}

// SubscriberCount reports the number of attached clients.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Snapshot returns the authoritative state for diagnostics endpoints.
func (h *Hub) Snapshot() sim.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.world.Snapshot()
}
