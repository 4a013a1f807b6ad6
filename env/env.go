// Package env wires the environment collaborator: the simulated clock,
// instrumented tool registry, notification router, and reminder book, plus a
// scripted event driver for offline runs.
package env

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chronosim/chronosim/clock"
	"github.com/chronosim/chronosim/notify"
	"github.com/chronosim/chronosim/observe"
	"github.com/chronosim/chronosim/reminder"
	"github.com/chronosim/chronosim/tools"
	"github.com/chronosim/chronosim/types"
)

// Env is one agent's world: everything outside the loop that actions touch
// and notifications come from.
type Env struct {
	Clock     *clock.Clock
	Registry  *tools.Registry
	Router    *notify.Router
	Reminders *reminder.Book
	Sink      observe.Sink

	mu     sync.Mutex
	script []ScriptedEvent
}

// ScriptedEvent is an environment-originated action that fires once the
// virtual clock reaches At.
type ScriptedEvent struct {
	At       time.Time
	App      string
	Function string
	Args     map[string]any
	Output   any
}

type Option func(*localConfig)

type localConfig struct {
	clock     *clock.Clock
	sink      observe.Sink
	verbosity notify.Level
	policy    notify.Policy
}

func WithClock(c *clock.Clock) Option {
	return func(cfg *localConfig) {
		if c != nil {
			cfg.clock = c
		}
	}
}

func WithSink(sink observe.Sink) Option {
	return func(cfg *localConfig) { cfg.sink = observe.OrNoop(sink) }
}

func WithVerbosity(level notify.Level) Option {
	return func(cfg *localConfig) { cfg.verbosity = level }
}

func WithPolicy(p notify.Policy) Option {
	return func(cfg *localConfig) { cfg.policy = p }
}

// NewLocal builds a fully wired in-process environment: built-in tools
// registered and every tool instrumented so completed actions flow into the
// router.
func NewLocal(opts ...Option) (*Env, error) {
	cfg := &localConfig{
		clock:     clock.New(),
		sink:      observe.NoopSink{},
		verbosity: notify.LevelMedium,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	book := reminder.NewBook()
	routerOpts := []notify.Option{
		notify.WithReminderSource(book),
		notify.WithSink(cfg.sink),
	}
	if cfg.policy != nil {
		routerOpts = append(routerOpts, notify.WithPolicy(cfg.policy))
	} else {
		routerOpts = append(routerOpts, notify.WithVerbosity(cfg.verbosity))
	}
	router := notify.NewRouter(cfg.clock, routerOpts...)

	reg := tools.NewRegistry()
	if err := tools.RegisterBuiltins(reg, cfg.clock, book); err != nil {
		return nil, err
	}
	reg.Wrap(func(t tools.Tool) tools.Tool {
		return tools.Instrument(t, cfg.clock, cfg.sink, router.HandleEvent)
	})

	return &Env{
		Clock:     cfg.clock,
		Registry:  reg,
		Router:    router,
		Reminders: book,
		Sink:      cfg.sink,
	}, nil
}

// Schedule queues scripted events for future ticks. Out-of-order scheduling
// is fine; delivery order is by At.
func (e *Env) Schedule(events ...ScriptedEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.script = append(e.script, events...)
	sort.SliceStable(e.script, func(i, j int) bool {
		return e.script[i].At.Before(e.script[j].At)
	})
}

// Tick runs one environment pass: due scripted events first, then reminders,
// then the wait timeout, which by contract runs after every other event of
// the tick.
func (e *Env) Tick(ctx context.Context) {
	now := e.Clock.Now()

	e.mu.Lock()
	var due []ScriptedEvent
	for len(e.script) > 0 && !e.script[0].At.After(now) {
		due = append(due, e.script[0])
		e.script = e.script[1:]
	}
	e.mu.Unlock()

	for _, ev := range due {
		if ctx.Err() != nil {
			return
		}
		e.Router.HandleEvent(types.CompletedAction{
			ID:       uuid.NewString(),
			App:      ev.App,
			Function: ev.Function,
			Args:     ev.Args,
			Output:   ev.Output,
			Time:     ev.At,
		})
	}

	e.Router.HandleTimeBasedNotifications()
	e.Router.HandleTimeoutAfterEvents()
}

// PendingEvents reports how many scripted events have not fired yet.
func (e *Env) PendingEvents() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.script)
}

// RunTicker drives Tick on a wall-clock interval until ctx is done. Run it
// in its own goroutine; the router queue is the only shared structure and is
// safe against the agent thread.
func (e *Env) RunTicker(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 100 * time.Millisecond
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}
