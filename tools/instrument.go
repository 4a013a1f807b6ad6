package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/chronosim/chronosim/clock"
	"github.com/chronosim/chronosim/observe"
	"github.com/chronosim/chronosim/types"
)

// AttachmentCarrier is implemented by tool results that carry attachments
// the routed message should deliver (e.g. files attached to an inbound
// user message).
type AttachmentCarrier interface {
	ActionAttachments() []types.Attachment
}

type instrumented struct {
	Tool
	clock  *clock.Clock
	sink   observe.Sink
	onDone func(types.CompletedAction)
}

// Instrument wraps a tool so every execution is observed and reported as a
// CompletedAction. The begin event fires before execution; the completed
// action and the end event are built in a deferred block, so failing tools
// still report. onDone is how executed tools reach the notification router.
func Instrument(tool Tool, clk *clock.Clock, sink observe.Sink, onDone func(types.CompletedAction)) Tool {
	if tool == nil {
		return nil
	}
	return &instrumented{Tool: tool, clock: clk, sink: observe.OrNoop(sink), onDone: onDone}
}

func (t *instrumented) Execute(ctx context.Context, args json.RawMessage) (out any, err error) {
	app, fn := SplitName(t.Tool.Name())
	simNow := time.Time{}
	if t.clock != nil {
		simNow = t.clock.Now()
	}
	started := time.Now().UTC()
	observe.Emit(ctx, t.sink, observe.Event{
		Time:    started,
		SimTime: simNow,
		Kind:    observe.KindTool,
		Name:    t.Tool.Name(),
	})

	defer func() {
		act := types.CompletedAction{
			ID:       uuid.NewString(),
			App:      app,
			Function: fn,
			Args:     decodeArgs(args),
			Time:     simNow,
		}
		if err != nil {
			act.Err = err.Error()
		} else {
			act.Output = out
			if carrier, ok := out.(AttachmentCarrier); ok {
				act.Attachments = carrier.ActionAttachments()
			}
		}
		event := observe.Event{
			SimTime:    simNow,
			Kind:       observe.KindTool,
			Name:       t.Tool.Name(),
			DurationMs: time.Since(started).Milliseconds(),
		}
		if err != nil {
			event.Err = err.Error()
		}
		observe.Emit(ctx, t.sink, event)
		if t.onDone != nil {
			t.onDone(act)
		}
	}()

	return t.Tool.Execute(ctx, args)
}

func decodeArgs(args json.RawMessage) map[string]any {
	if len(args) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(args, &m); err == nil {
		return m
	}
	// Scalar payloads keep their raw form under a single key.
	return map[string]any{"input": string(args)}
}
