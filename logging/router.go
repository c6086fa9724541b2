package logging

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

// Router stamps, filters, and fans events out to its sinks. Each sink gets
// its own buffered lane and goroutine, so one slow sink never blocks a
// publisher or starves the others.
type Router struct {
	clock        Clock
	minSeverity  Severity
	base         map[string]any
	lanes        []*sinkLane
	fallback     *log.Logger
	done         chan struct{}
	closed       atomic.Bool
	wg           sync.WaitGroup
	warnInterval time.Duration

	published    atomic.Uint64
	dropped      atomic.Uint64
	lastDropWarn atomic.Int64
}

// RouterStats reports totals since the router started.
type RouterStats struct {
	Published uint64
	Dropped   uint64
}

func NewRouter(clock Clock, cfg Config, namedSinks []NamedSink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 512
	}
	warnInterval := cfg.DropWarnInterval
	if warnInterval <= 0 {
		warnInterval = 5 * time.Second
	}
	r := &Router{
		clock:        clock,
		minSeverity:  cfg.MinimumSeverity,
		fallback:     log.New(os.Stderr, "[logging] ", log.LstdFlags),
		done:         make(chan struct{}),
		warnInterval: warnInterval,
	}
	if len(cfg.Fields) > 0 {
		r.base = make(map[string]any, len(cfg.Fields))
		for k, v := range cfg.Fields {
			r.base[k] = v
		}
	}
	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		lane := &sinkLane{
			name:     named.Name,
			sink:     named.Sink,
			events:   make(chan Event, buffer),
			fallback: r.fallback,
		}
		r.lanes = append(r.lanes, lane)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			lane.run(r.done)
		}()
	}
	return r, nil
}

// Publish satisfies Publisher. Events below the severity floor are skipped;
// events that would block are counted and dropped.
func (r *Router) Publish(ctx context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	if event.Severity < r.minSeverity {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = r.withBase(event)
	r.published.Add(1)
	for _, lane := range r.lanes {
		select {
		case lane.events <- event:
		default:
			r.noteDrop(event, lane.name)
		}
	}
}

// withBase merges the router's base fields under the event's own Extra
// entries, copying Extra so concurrent lanes never share a mutable map.
func (r *Router) withBase(event Event) Event {
	if len(r.base) == 0 && event.Extra == nil {
		return event
	}
	merged := make(map[string]any, len(r.base)+len(event.Extra))
	for k, v := range r.base {
		merged[k] = v
	}
	for k, v := range event.Extra {
		merged[k] = v
	}
	event.Extra = merged
	return event
}

func (r *Router) noteDrop(event Event, lane string) {
	r.dropped.Add(1)
	now := time.Now().UnixNano()
	last := r.lastDropWarn.Load()
	if last != 0 && now < last+r.warnInterval.Nanoseconds() {
		return
	}
	if r.lastDropWarn.CompareAndSwap(last, now) {
		r.fallback.Printf("lane %s full, dropping event type=%s tick=%d", lane, event.Type, event.Tick)
	}
}

// Close stops accepting events, lets every lane drain its backlog, then
// closes the sinks. A second Close waits on the context and returns its
// error.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		<-ctx.Done()
		return ctx.Err()
	}
	close(r.done)
	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, lane := range r.lanes {
		if err := lane.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	return RouterStats{
		Published: r.published.Load(),
		Dropped:   r.dropped.Load(),
	}
}

// sinkLane delivers events to one sink, backing off after write failures so
// a broken sink does not spin.
type sinkLane struct {
	name      string
	sink      Sink
	events    chan Event
	fallback  *log.Logger
	failures  int
	nextRetry time.Time
}

func (l *sinkLane) run(done <-chan struct{}) {
	for {
		select {
		case event := <-l.events:
			l.deliver(event)
		case <-done:
			for {
				select {
				case event := <-l.events:
					l.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (l *sinkLane) deliver(event Event) {
	if l.failures > 0 {
		if wait := time.Until(l.nextRetry); wait > 0 {
			time.Sleep(wait)
		}
	}
	if err := l.sink.Write(event); err != nil {
		l.failures++
		shift := l.failures
		if shift > 5 {
			shift = 5
		}
		delay := time.Duration(1<<shift) * time.Second
		l.nextRetry = time.Now().Add(delay)
		l.fallback.Printf("sink %s write failed: %v (retry in %s)", l.name, err, delay)
		return
	}
	l.failures = 0
	l.nextRetry = time.Time{}
}
