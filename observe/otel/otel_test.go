package otel

import (
	"context"
	"testing"
	"time"

	"github.com/chronosim/chronosim/observe"
)

func TestNewSinkNilProviderFallsBackToNoop(t *testing.T) {
	sink := NewSink(nil)
	err := sink.Emit(context.Background(), observe.Event{
		Time:       time.Now(),
		SimTime:    time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
		Kind:       observe.KindGenerate,
		AgentID:    "a1",
		RunID:      "r1",
		Iteration:  2,
		Name:       "scripted",
		DurationMs: 120,
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
}

func TestEmitErrorEvent(t *testing.T) {
	sink := NewSink(nil)
	err := sink.Emit(context.Background(), observe.Event{
		Kind:   observe.KindError,
		Status: observe.StatusError,
		Err:    "tool failed",
		Fields: map[string]any{"tool": "email__send"},
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
}

func TestSpanNames(t *testing.T) {
	cases := map[observe.Kind]string{
		observe.KindRun:      "agent.run",
		observe.KindGenerate: "agent.generate",
		observe.KindMessage:  "router.message",
		observe.KindTimeout:  "router.timeout",
		observe.KindStore:    "store.write",
	}
	for kind, want := range cases {
		if got := spanNameFor(observe.Event{Kind: kind}); got != want {
			t.Fatalf("spanNameFor(%s) = %q, want %q", kind, got, want)
		}
	}
	if got := spanNameFor(observe.Event{Kind: observe.KindTool, Name: "email__send"}); got != "agent.tool.email__send" {
		t.Fatalf("tool span = %q", got)
	}
}
