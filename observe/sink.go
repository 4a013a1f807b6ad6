package observe

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

type Sink interface {
	Emit(ctx context.Context, event Event) error
}

type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type NoopSink struct{}

func (NoopSink) Emit(ctx context.Context, event Event) error {
	_ = ctx
	_ = event
	return nil
}

// OrNoop replaces a nil sink so callers never branch on nil.
func OrNoop(s Sink) Sink {
	if s == nil {
		return NoopSink{}
	}
	return s
}

// Emit normalizes and delivers an event, recovering sink panics into a log
// line. The engine's hot path never fails because a sink misbehaved.
func Emit(ctx context.Context, s Sink, event Event) {
	if s == nil {
		return
	}
	event.Normalize()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("observe: sink panic: %v", r)
		}
	}()
	if err := s.Emit(ctx, event); err != nil {
		log.Printf("observe: sink error: %v", err)
	}
}

type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s == nil {
			continue
		}
		filtered = append(filtered, s)
	}
	if len(filtered) == 0 {
		return NoopSink{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &MultiSink{sinks: filtered}
}

func (m *MultiSink) Emit(ctx context.Context, event Event) error {
	if m == nil {
		return nil
	}
	for _, sink := range m.sinks {
		if err := sink.Emit(ctx, event.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// AsyncSink buffers events onto a channel drained by one worker goroutine.
// Under backpressure new events are dropped and counted rather than blocking
// the loop.
type AsyncSink struct {
	downstream Sink
	queue      chan Event
	dropped    atomic.Int64
	once       sync.Once
	done       chan struct{}
}

func NewAsyncSink(downstream Sink, buffer int) *AsyncSink {
	if downstream == nil {
		downstream = NoopSink{}
	}
	if buffer <= 0 {
		buffer = 256
	}
	as := &AsyncSink{
		downstream: downstream,
		queue:      make(chan Event, buffer),
		done:       make(chan struct{}),
	}
	go as.loop()
	return as
}

func (s *AsyncSink) Emit(ctx context.Context, event Event) error {
	if s == nil {
		return nil
	}
	event.Normalize()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.queue <- event:
		return nil
	default:
		s.dropped.Add(1)
		return nil
	}
}

// Dropped reports how many events were shed under backpressure.
func (s *AsyncSink) Dropped() int64 { return s.dropped.Load() }

// Close stops intake and drains buffered events.
func (s *AsyncSink) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() { close(s.queue) })
	<-s.done
}

func (s *AsyncSink) loop() {
	defer close(s.done)
	for event := range s.queue {
		if err := s.downstream.Emit(context.Background(), event); err != nil {
			log.Printf("observe: async sink: %v", err)
		}
	}
}
