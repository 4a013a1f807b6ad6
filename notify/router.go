// Package notify classifies completed environment actions into typed
// messages and queues them, ordered by virtual timestamp, for delivery into
// the agent's attention stream.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/chronosim/chronosim/clock"
	"github.com/chronosim/chronosim/observe"
	"github.com/chronosim/chronosim/queue"
	"github.com/chronosim/chronosim/reminder"
	"github.com/chronosim/chronosim/types"
)

// The two action shapes the router recognizes regardless of policy.
const (
	inboundApp      = "user_interface"
	inboundFunction = "send_message_to_agent"
	stopApp         = "system"
	stopFunction    = "stop"
)

type Option func(*Router)

func WithPolicy(p Policy) Option {
	return func(r *Router) {
		if p != nil {
			r.policy = p
		}
	}
}

func WithVerbosity(level Level) Option {
	return func(r *Router) { r.policy = PolicyFor(level) }
}

func WithReminderSource(src reminder.Source) Option {
	return func(r *Router) { r.source = src }
}

func WithSink(sink observe.Sink) Option {
	return func(r *Router) { r.sink = observe.OrNoop(sink) }
}

// Router owns the one genuinely concurrent structure in the system: the
// message queue an environment tick fills while the agent thread drains it.
type Router struct {
	clock  *clock.Clock
	queue  *queue.Ordered[types.Message]
	policy Policy
	source reminder.Source
	sink   observe.Sink

	mu           sync.Mutex
	timeoutArmed bool
	timeoutAt    time.Time
}

func NewRouter(clk *clock.Clock, opts ...Option) *Router {
	r := &Router{
		clock: clk,
		queue: queue.New(func(m types.Message) []any {
			return []any{m.Time, string(m.Type)}
		}),
		policy: Policy{},
		sink:   observe.NoopSink{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleEvent maps a completed action to zero or one queued message. The
// inbound user-message action becomes a MessageUser, the stop action becomes
// a MessageStop, policy-allowed pairs become MessageNotification; everything
// else is dropped.
func (r *Router) HandleEvent(act types.CompletedAction) {
	when := act.Time
	if when.IsZero() {
		when = r.clock.Now()
	}

	switch {
	case act.App == inboundApp && act.Function == inboundFunction:
		r.enqueue(types.Message{
			ID:          uuid.NewString(),
			Type:        types.MessageUser,
			Time:        when,
			App:         act.App,
			Function:    act.Function,
			Content:     stringArg(act.Args, "message"),
			Attachments: act.Attachments,
		})
	case act.App == stopApp && act.Function == stopFunction:
		r.enqueue(types.Message{
			ID:       uuid.NewString(),
			Type:     types.MessageStop,
			Time:     when,
			App:      act.App,
			Function: act.Function,
			Content:  stringArg(act.Args, "reason"),
		})
	case r.policy.Allows(act.App, act.Function):
		r.enqueue(types.Message{
			ID:          uuid.NewString(),
			Type:        types.MessageNotification,
			Time:        when,
			App:         act.App,
			Function:    act.Function,
			Content:     summarize(act),
			Attachments: act.Attachments,
		})
	}
}

// GetByTimestamp drains and returns, in order, every queued message whose
// timestamp is at or before cutoff. The heap pops in non-decreasing time
// order, so the first overshoot proves the rest is also later; that one item
// is re-queued and the scan stops.
func (r *Router) GetByTimestamp(cutoff time.Time) []types.Message {
	var due []types.Message
	for {
		msg, ok := r.queue.TryGet()
		if !ok {
			break
		}
		if msg.Time.After(cutoff) {
			r.queue.Put(msg)
			break
		}
		due = append(due, msg)
	}
	return due
}

// HandleTimeBasedNotifications polls the reminder source and batches all due
// reminders into one environment notification.
func (r *Router) HandleTimeBasedNotifications() {
	if r.source == nil {
		return
	}
	now := r.clock.Now()
	due := r.source.Due(now)
	if len(due) == 0 {
		return
	}

	lines := make([]string, 0, len(due))
	ids := make([]string, 0, len(due))
	for _, rem := range due {
		lines = append(lines, fmt.Sprintf("Reminder (due %s): %s", rem.At.Format(time.RFC3339), rem.Message))
		ids = append(ids, rem.ID)
	}
	r.source.MarkNotified(ids, now)

	r.enqueue(types.Message{
		ID:      uuid.NewString(),
		Type:    types.MessageNotification,
		Time:    now,
		App:     "reminder",
		Content: strings.Join(lines, "\n"),
	})
	observe.Emit(context.Background(), r.sink, observe.Event{
		SimTime: now,
		Kind:    observe.KindReminder,
		Detail:  fmt.Sprintf("%d reminder(s) fired", len(due)),
	})
}

// ArmWaitTimeout starts the wait-for-notification countdown against virtual
// time. Arming again replaces the previous deadline.
func (r *Router) ArmWaitTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeoutArmed = true
	r.timeoutAt = r.clock.Now().Add(d)
}

// HandleTimeoutAfterEvents runs once per simulation tick, after every other
// event for that tick. A message already due supersedes the timeout; an
// elapsed deadline fires a timeout notification; otherwise the countdown
// stays armed.
func (r *Router) HandleTimeoutAfterEvents() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.timeoutArmed {
		return
	}
	now := r.clock.Now()

	if head, ok := r.queue.Peek(); ok && !head.Time.After(now) {
		r.timeoutArmed = false
		return
	}
	if now.Before(r.timeoutAt) {
		return
	}

	r.timeoutArmed = false
	r.enqueue(types.Message{
		ID:      uuid.NewString(),
		Type:    types.MessageNotification,
		Time:    now,
		Content: "No notification arrived before the wait timeout elapsed.",
	})
	observe.Emit(context.Background(), r.sink, observe.Event{
		SimTime: now,
		Kind:    observe.KindTimeout,
	})
}

// HasStopMessage reports whether a stop message is queued, due or not.
func (r *Router) HasStopMessage() bool {
	for _, msg := range r.queue.Snapshot() {
		if msg.Type == types.MessageStop {
			return true
		}
	}
	return false
}

// Stop enqueues a stop message directly; the driver-facing shutdown path.
func (r *Router) Stop(reason string) {
	r.enqueue(types.Message{
		ID:      uuid.NewString(),
		Type:    types.MessageStop,
		Time:    r.clock.Now(),
		Content: reason,
	})
}

func (r *Router) Pending() int { return r.queue.Len() }

func (r *Router) enqueue(msg types.Message) {
	r.queue.Put(msg)
	observe.Emit(context.Background(), r.sink, observe.Event{
		SimTime: msg.Time,
		Kind:    observe.KindMessage,
		Name:    string(msg.Type),
		Detail:  msg.Content,
	})
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// summarize renders one completed action as a human-readable notification
// line.
func summarize(act types.CompletedAction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", act.App, act.Function)
	if act.Failed() {
		fmt.Fprintf(&b, " failed: %s", act.Err)
	} else {
		b.WriteString(" completed")
	}
	if len(act.Args) > 0 {
		keys := make([]string, 0, len(act.Args))
		for k := range act.Args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, act.Args[k]))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	if act.Output != nil {
		if s := fmt.Sprintf("%v", act.Output); s != "" {
			fmt.Fprintf(&b, ": %s", s)
		}
	}
	if n := len(act.Attachments); n > 0 {
		total := 0
		for _, a := range act.Attachments {
			total += a.Size()
		}
		fmt.Fprintf(&b, " [%d attachment(s), %s]", n, humanize.Bytes(uint64(total)))
	}
	return b.String()
}
