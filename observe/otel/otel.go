// Package otel bridges the observe.Sink to OpenTelemetry tracing.
//
// Each event becomes one span, so agent runs, generations, tool calls, and
// routed messages are visible in any OpenTelemetry-compatible backend.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/chronosim/chronosim/observe"
)

const instrumentationName = "github.com/chronosim/chronosim"

// Sink implements observe.Sink by emitting OpenTelemetry spans.
type Sink struct {
	tracer trace.Tracer
}

// NewSink creates an OTel sink using the given TracerProvider. A nil
// provider falls back to the noop tracer.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{tracer: tp.Tracer(instrumentationName)}
}

func (s *Sink) Emit(_ context.Context, event observe.Event) error {
	event.Normalize()

	_, span := s.tracer.Start(context.Background(), spanNameFor(event), trace.WithTimestamp(event.Time))

	attrs := []attribute.KeyValue{
		attribute.String("sim.event.kind", string(event.Kind)),
	}
	if !event.SimTime.IsZero() {
		attrs = append(attrs, attribute.String("sim.time", event.SimTime.Format(time.RFC3339Nano)))
	}
	if event.AgentID != "" {
		attrs = append(attrs, attribute.String("sim.agent.id", event.AgentID))
	}
	if event.RunID != "" {
		attrs = append(attrs, attribute.String("sim.run.id", event.RunID))
	}
	if event.Iteration > 0 {
		attrs = append(attrs, attribute.Int("sim.iteration", event.Iteration))
	}
	if event.Name != "" {
		attrs = append(attrs, attribute.String("sim.event.name", event.Name))
	}
	if event.Detail != "" {
		attrs = append(attrs, attribute.String("sim.detail", truncate(event.Detail, 1024)))
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("sim.duration_ms", event.DurationMs))
	}
	for k, v := range event.Fields {
		attrs = append(attrs, attribute.String("sim.field."+k, fmt.Sprintf("%v", v)))
	}
	span.SetAttributes(attrs...)

	if event.Status == observe.StatusError {
		span.SetStatus(codes.Error, event.Err)
		if event.Err != "" {
			span.RecordError(fmt.Errorf("%s", event.Err))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}

	end := event.Time
	if event.DurationMs > 0 {
		end = end.Add(time.Duration(event.DurationMs) * time.Millisecond)
	}
	span.End(trace.WithTimestamp(end))
	return nil
}

func spanNameFor(event observe.Event) string {
	switch event.Kind {
	case observe.KindRun:
		return "agent.run"
	case observe.KindIteration:
		return "agent.iteration"
	case observe.KindGenerate:
		return "agent.generate"
	case observe.KindTool:
		if event.Name != "" {
			return "agent.tool." + event.Name
		}
		return "agent.tool"
	case observe.KindMessage:
		return "router.message"
	case observe.KindReminder:
		return "router.reminder"
	case observe.KindTimeout:
		return "router.timeout"
	case observe.KindStop:
		return "agent.stop"
	case observe.KindStore:
		return "store.write"
	case observe.KindError:
		return "agent.error"
	default:
		if event.Name != "" {
			return "sim." + event.Name
		}
		return "sim.event"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
