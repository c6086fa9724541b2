package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"stronghold/server/internal/storage"
)

// ErrNotFound is returned when a token resolves to no live session.
var ErrNotFound = errors.New("session: not found")

// Record is the durable session state keyed by a client's resume token. It
// outlives the websocket so a reconnecting client can reclaim its hero within
// the disconnect grace window.
type Record struct {
	PlayerID  string    `msgpack:"player_id"`
	HeroClass string    `msgpack:"hero_class"`
	LobbyID   string    `msgpack:"lobby_id"`
	JoinedAt  time.Time `msgpack:"joined_at"`
	LastSeen  time.Time `msgpack:"last_seen"`
}

// Store persists session records in a KV backend. Records are msgpack
// encoded; tokens are opaque UUIDs handed to clients at join.
type Store struct {
	kv  storage.KV
	ttl time.Duration
}

// NewStore wraps the KV backend. Records expire after ttl without a Touch;
// zero disables expiry.
func NewStore(kv storage.KV, ttl time.Duration) *Store {
	return &Store{kv: kv, ttl: ttl}
}

func sessionKey(token string) string {
	return "session:" + token
}

// Create stores a fresh record and returns its resume token.
func (s *Store) Create(ctx context.Context, record Record) (string, error) {
	token := uuid.NewString()
	if err := s.put(ctx, token, record); err != nil {
		return "", err
	}
	return token, nil
}

// Lookup resolves a resume token to its record.
func (s *Store) Lookup(ctx context.Context, token string) (Record, error) {
	payload, err := s.kv.Get(ctx, sessionKey(token))
	if errors.Is(err, storage.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: token %s", ErrNotFound, token)
	}
	if err != nil {
		return Record{}, fmt.Errorf("session: lookup %s: %w", token, err)
	}
	var record Record
	if err := msgpack.Unmarshal(payload, &record); err != nil {
		return Record{}, fmt.Errorf("session: decode %s: %w", token, err)
	}
	return record, nil
}

// Touch refreshes a record's last-seen stamp and its TTL.
func (s *Store) Touch(ctx context.Context, token string, now time.Time) error {
	record, err := s.Lookup(ctx, token)
	if err != nil {
		return err
	}
	record.LastSeen = now
	return s.put(ctx, token, record)
}

// Delete removes a session record after the player leaves for good.
func (s *Store) Delete(ctx context.Context, token string) error {
	return s.kv.Delete(ctx, sessionKey(token))
}

func (s *Store) put(ctx context.Context, token string, record Record) error {
	payload, err := msgpack.Marshal(record)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", token, err)
	}
	if err := s.kv.Set(ctx, sessionKey(token), payload, s.ttl); err != nil {
		return fmt.Errorf("session: store %s: %w", token, err)
	}
	return nil
}
