package observe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestEmitNormalizesTime(t *testing.T) {
	rec := &recordingSink{}
	Emit(context.Background(), rec, Event{Kind: KindTool, Name: "email__send"})
	if rec.len() != 1 {
		t.Fatalf("events = %d", rec.len())
	}
	if rec.events[0].Time.IsZero() {
		t.Fatal("emit should stamp wall time")
	}
}

func TestEmitSurvivesPanickingSink(t *testing.T) {
	boom := SinkFunc(func(context.Context, Event) error { panic("boom") })
	Emit(context.Background(), boom, Event{Kind: KindError})
	// Reaching here is the assertion.
}

func TestEmitSurvivesFailingSink(t *testing.T) {
	bad := SinkFunc(func(context.Context, Event) error { return errors.New("down") })
	Emit(context.Background(), bad, Event{Kind: KindError})
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	multi := NewMultiSink(a, nil, b)
	if err := multi.Emit(context.Background(), Event{Kind: KindRun}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if a.len() != 1 || b.len() != 1 {
		t.Fatalf("fan-out = %d/%d", a.len(), b.len())
	}
}

func TestAsyncSinkDrainsOnClose(t *testing.T) {
	rec := &recordingSink{}
	async := NewAsyncSink(rec, 16)
	for i := 0; i < 10; i++ {
		if err := async.Emit(context.Background(), Event{Kind: KindIteration, Iteration: i}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	async.Close()
	if rec.len() != 10 {
		t.Fatalf("drained = %d, want 10", rec.len())
	}
}

func TestAsyncSinkShedsUnderPressure(t *testing.T) {
	block := make(chan struct{})
	slow := SinkFunc(func(context.Context, Event) error {
		<-block
		return nil
	})
	async := NewAsyncSink(slow, 1)
	deadline := time.Now().Add(time.Second)
	for async.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no events shed under backpressure")
		}
		_ = async.Emit(context.Background(), Event{Kind: KindCustom})
	}
	close(block)
	async.Close()
}
