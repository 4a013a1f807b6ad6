// Package observe carries the engine's first-class observability events.
// The loop, the executor, the router, and instrumented tools emit events;
// sinks fan them out, buffer them, bridge them to OpenTelemetry spans, or
// broadcast them over websocket.
package observe

import "time"

type Kind string

const (
	KindRun       Kind = "run"
	KindIteration Kind = "iteration"
	KindGenerate  Kind = "generate"
	KindTool      Kind = "tool"
	KindMessage   Kind = "message"
	KindReminder  Kind = "reminder"
	KindTimeout   Kind = "timeout"
	KindStop      Kind = "stop"
	KindError     Kind = "error"
	KindStore     Kind = "store"
	KindCustom    Kind = "custom"
)

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Event is one observation. Time is wall time; SimTime is the virtual clock
// reading at emission, so traces can be read on either axis.
type Event struct {
	Time       time.Time      `json:"time"`
	SimTime    time.Time      `json:"sim_time,omitempty"`
	Kind       Kind           `json:"kind"`
	Status     Status         `json:"status,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	Iteration  int            `json:"iteration,omitempty"`
	Name       string         `json:"name,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Err        string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Status == "" {
		if e.Err != "" {
			e.Status = StatusError
		} else {
			e.Status = StatusOK
		}
	}
}

func (e Event) Clone() Event {
	out := e
	if e.Fields != nil {
		out.Fields = make(map[string]any, len(e.Fields))
		for k, v := range e.Fields {
			out.Fields[k] = v
		}
	}
	return out
}
