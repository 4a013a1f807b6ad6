// Command chronosim runs an offline scripted scenario against the simulated
// clock: a stub model walks a canned ReAct script while the environment
// delivers a user message and a reminder, and every event streams to stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"github.com/chronosim/chronosim/agent"
	"github.com/chronosim/chronosim/env"
	"github.com/chronosim/chronosim/logbook"
	"github.com/chronosim/chronosim/logstore/factory"
	"github.com/chronosim/chronosim/model"
	"github.com/chronosim/chronosim/notify"
	"github.com/chronosim/chronosim/observe"
	"github.com/chronosim/chronosim/runconfig"
	"github.com/chronosim/chronosim/types"
)

// scriptProvider replays a canned ReAct transcript: check the time, set a
// reminder, reply, then wait. After a wake-up it replies once more.
type scriptProvider struct {
	outputs []string
	calls   int
}

func (p *scriptProvider) Name() string { return "script" }

func (p *scriptProvider) Generate(_ context.Context, _ *model.Request) (*model.Response, error) {
	i := p.calls
	if i >= len(p.outputs) {
		i = len(p.outputs) - 1
	}
	p.calls++
	return &model.Response{
		Content:        p.outputs[i],
		GenerationTime: 2 * time.Second,
	}, nil
}

func action(thought, name string, input map[string]any) string {
	payload := map[string]any{"action": name}
	if input != nil {
		payload["action_input"] = input
	}
	raw, _ := json.Marshal(payload)
	return fmt.Sprintf("%s\nAction: %s", thought, raw)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := runconfig.Load(os.Getenv("CHRONOSIM_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	colored := isatty.IsTerminal(os.Stdout.Fd())
	printer := observe.NewAsyncSink(printerSink(colored), cfg.EventBuffer)
	defer printer.Close()

	world, err := env.NewLocal(
		env.WithVerbosity(notify.Level(cfg.Verbosity)),
		env.WithSink(printer),
	)
	if err != nil {
		log.Fatalf("environment: %v", err)
	}

	// Anchor the simulation on a fixed morning so transcripts are stable.
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	world.Clock.SetTime(start)

	storeCfg := factory.Config{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		Addr:    cfg.Store.Addr,
		Prefix:  cfg.Store.Prefix,
	}
	if storeCfg.Backend == "" || storeCfg.Backend == "none" {
		storeCfg = factory.Config{
			Backend: "sqlite",
			Path:    filepath.Join(os.TempDir(), "chronosim-demo.db"),
		}
	}
	store, err := factory.Open(storeCfg)
	if err != nil {
		log.Printf("store disabled: %v", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	provider := &scriptProvider{outputs: []string{
		action("Let me check what time it is first.",
			"system__get_current_time", nil),
		action("A standup at 9:30 needs a heads-up five minutes before.",
			"reminder__create_reminder", map[string]any{
				"message": "Standup starts in five minutes",
				"at":      start.Add(25 * time.Minute).Format(time.RFC3339),
			}),
		action("Reminder armed; nothing else to do until something happens.",
			"user_interface__wait_for_notification", nil),
	}}

	loopOpts := []agent.Option{
		agent.WithClock(world.Clock),
		agent.WithRouter(world.Router),
		agent.WithRegistry(world.Registry),
		agent.WithSink(printer),
		agent.WithSystemPrompt("You are a personal assistant operating on a simulated clock."),
		agent.WithMaxIterations(cfg.MaxIterations),
		agent.WithFormatRetries(cfg.FormatRetries),
		agent.WithWaitTimeout(cfg.WaitTimeout.Std()),
	}
	if cfg.AgentID != "" {
		loopOpts = append(loopOpts, agent.WithAgentID(cfg.AgentID))
	}
	if store != nil {
		loopOpts = append(loopOpts, agent.WithStore(store))
	}
	switch cfg.SimulatedGeneration.Mode {
	case "fixed":
		loopOpts = append(loopOpts, agent.WithSimulatedGeneration(agent.SimGen{
			Mode:  agent.GenFixed,
			Fixed: cfg.SimulatedGeneration.Fixed.Std(),
		}))
	case "measured":
		loopOpts = append(loopOpts, agent.WithSimulatedGeneration(agent.SimGen{Mode: agent.GenMeasured}))
	}

	loop, err := agent.New(provider, loopOpts...)
	if err != nil {
		log.Fatalf("agent: %v", err)
	}

	// The environment delivers a user message mid-run.
	world.Schedule(env.ScriptedEvent{
		At:       start.Add(10 * time.Minute),
		App:      "user_interface",
		Function: "send_message_to_agent",
		Args:     map[string]any{"message": "Also remind me about the standup at 9:30."},
	})

	envCtx, stopTicker := context.WithCancel(ctx)
	go world.RunTicker(envCtx, 50*time.Millisecond)

	wallStart := time.Now()
	res, err := loop.Run(ctx, "Keep my morning on track.")
	if err != nil {
		log.Fatalf("run: %v", err)
	}

	// The agent parked on wait_for_notification. Jump the clock past the
	// user message and the reminder, let the environment deliver both, and
	// wake the agent up to answer.
	if res.State == types.StatePaused {
		world.Clock.AddOffset(30 * time.Minute)
		world.Tick(ctx)
		provider.outputs = append(provider.outputs,
			action("The reminder fired and the user pinged me; reply and wrap up.",
				"user_interface__send_message_to_user", map[string]any{
					"message": "Heads up: standup starts in five minutes. Reminder already set.",
				}))
		res, err = loop.Continue(ctx)
		if err != nil {
			log.Fatalf("continue: %v", err)
		}
	}
	stopTicker()

	printTranscript(loop.Logbook().Entries())
	fmt.Printf("\nrun %s finished: state=%s iterations=%d\n", res.RunID, res.State, res.Iterations)
	fmt.Printf("final answer: %s\n", res.FinalAnswer)
	fmt.Printf("wall time %v, simulated time %v (clock at %s)\n",
		time.Since(wallStart).Round(time.Millisecond),
		world.Clock.Now().Sub(start).Round(time.Second),
		world.Clock.Now().Format(time.RFC3339))
}

// printerSink renders observation events one per line.
func printerSink(colored bool) observe.Sink {
	return observe.SinkFunc(func(_ context.Context, e observe.Event) error {
		var b strings.Builder
		if colored {
			b.WriteString("\x1b[2m")
		}
		fmt.Fprintf(&b, "%s ", e.SimTime.Format("15:04:05"))
		if colored {
			b.WriteString("\x1b[0m")
		}
		fmt.Fprintf(&b, "%-9s %s", e.Kind, e.Name)
		if e.Detail != "" {
			fmt.Fprintf(&b, " %s", e.Detail)
		}
		if e.Err != "" {
			fmt.Fprintf(&b, " error=%s", e.Err)
		}
		fmt.Println(b.String())
		return nil
	})
}

func printTranscript(entries []logbook.Entry) {
	fmt.Println("\n--- transcript ---")
	for _, e := range entries {
		meta := e.EntryMeta()
		switch v := e.(type) {
		case *logbook.TaskEntry:
			fmt.Printf("[%s] task: %s\n", meta.Time.Format("15:04:05"), v.Content)
		case *logbook.RationaleEntry:
			fmt.Printf("[%s] thought: %s\n", meta.Time.Format("15:04:05"), v.Content)
		case *logbook.ToolCallEntry:
			fmt.Printf("[%s] call: %s__%s %s\n", meta.Time.Format("15:04:05"), v.App, v.Tool, v.Args)
		case *logbook.ObservationEntry:
			fmt.Printf("[%s] observation: %s\n", meta.Time.Format("15:04:05"), v.Content)
		case *logbook.NotificationEntry:
			fmt.Printf("[%s] notification: %s\n", meta.Time.Format("15:04:05"), v.Content)
		case *logbook.FinalAnswerEntry:
			fmt.Printf("[%s] answer: %s\n", meta.Time.Format("15:04:05"), v.Content)
		case *logbook.ErrorEntry:
			fmt.Printf("[%s] error (%s): %s\n", meta.Time.Format("15:04:05"), v.Category, v.Message)
		}
	}
}
