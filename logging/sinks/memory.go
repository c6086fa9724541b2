package sinks

import (
	"context"
	"sync"

	"stronghold/server/logging"
)

// MemorySink records every event it receives. Tests use it to assert on the
// exact event stream a component emitted.
type MemorySink struct {
	mu     sync.RWMutex
	events []logging.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(event logging.Event) error {
	if len(event.Targets) > 0 {
		event.Targets = append([]logging.EntityRef(nil), event.Targets...)
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]logging.Event(nil), s.events...)
}

func (s *MemorySink) Reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

func (s *MemorySink) Close(context.Context) error {
	return nil
}
