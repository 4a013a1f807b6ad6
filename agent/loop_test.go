package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chronosim/chronosim/clock"
	"github.com/chronosim/chronosim/logbook"
	"github.com/chronosim/chronosim/model"
	"github.com/chronosim/chronosim/notify"
	"github.com/chronosim/chronosim/tools"
	"github.com/chronosim/chronosim/types"
)

// scriptedProvider replays canned outputs; the last one repeats once the
// script runs out.
type scriptedProvider struct {
	outputs []string
	calls   int
	genTime time.Duration
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, _ *model.Request) (*model.Response, error) {
	i := p.calls
	if i >= len(p.outputs) {
		i = len(p.outputs) - 1
	}
	p.calls++
	return &model.Response{Content: p.outputs[i], GenerationTime: p.genTime}, nil
}

const replyAction = "I have what I need.\nAction: {\"action\": \"user_interface__send_message_to_user\", \"action_input\": {\"message\": \"done\"}}"

func replyRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	reg.MustRegister(tools.Func(tools.ToolSendMessageToUser, "reply to the user", nil,
		func(context.Context, json.RawMessage) (any, error) {
			return "delivered", nil
		}))
	reg.MarkTerminal(tools.ToolSendMessageToUser)
	return reg
}

func TestRunTerminatesOnTerminalTool(t *testing.T) {
	provider := &scriptedProvider{outputs: []string{replyAction}}
	loop, err := New(provider, WithRegistry(replyRegistry(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := loop.Run(context.Background(), "say done")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != types.StateTerminated {
		t.Fatalf("state = %s, want %s", res.State, types.StateTerminated)
	}
	if res.FinalAnswer != "done" {
		t.Fatalf("final answer = %q", res.FinalAnswer)
	}
	if res.Iterations != 1 {
		t.Fatalf("iterations = %d, want 1", res.Iterations)
	}
}

func TestFormatRetryWithinBudget(t *testing.T) {
	provider := &scriptedProvider{outputs: []string{
		"rambling with no action",
		"still rambling",
		replyAction,
	}}
	loop, err := New(provider,
		WithRegistry(replyRegistry(t)),
		WithFormatRetries(3),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := loop.Run(context.Background(), "say done")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != types.StateTerminated {
		t.Fatalf("state = %s", res.State)
	}

	formatErrors := 0
	for _, e := range loop.Logbook().Entries() {
		if ee, ok := e.(*logbook.ErrorEntry); ok && ee.Category == "format" {
			formatErrors++
		}
	}
	if formatErrors != 2 {
		t.Fatalf("logged format errors = %d, want 2", formatErrors)
	}
}

func TestFormatRetryBudgetExhausted(t *testing.T) {
	provider := &scriptedProvider{outputs: []string{
		"rambling with no action",
		"still rambling",
		replyAction,
	}}
	loop, err := New(provider,
		WithRegistry(replyRegistry(t)),
		WithFormatRetries(2),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := loop.Run(context.Background(), "say done")
	if err == nil {
		t.Fatal("want error after exhausting the format budget")
	}
	if !IsFormatError(err) {
		t.Fatalf("want format error, got %v", err)
	}
	if res.State != types.StateFailed {
		t.Fatalf("state = %s, want %s", res.State, types.StateFailed)
	}
}

func TestMaxIterationsTerminatesGracefully(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(tools.Func("notes__append", "", nil,
		func(context.Context, json.RawMessage) (any, error) {
			return "noted", nil
		}))
	provider := &scriptedProvider{outputs: []string{
		"Keeping notes.\nAction: {\"action\": \"notes__append\", \"action_input\": {\"text\": \"x\"}}",
	}}
	loop, err := New(provider, WithRegistry(reg), WithMaxIterations(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := loop.Run(context.Background(), "take notes forever")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != types.StateTerminated {
		t.Fatalf("state = %s, want %s", res.State, types.StateTerminated)
	}
	var maxed *MaxIterationsError
	if !errors.As(res.Err, &maxed) || maxed.Limit != 3 {
		t.Fatalf("result error = %v, want MaxIterationsError{3}", res.Err)
	}
	if res.Iterations != 3 {
		t.Fatalf("iterations = %d, want 3", res.Iterations)
	}
}

func TestStopMessagePausesRun(t *testing.T) {
	clk := clock.New()
	router := notify.NewRouter(clk)
	router.Stop("operator shutdown")

	provider := &scriptedProvider{outputs: []string{replyAction}}
	loop, err := New(provider,
		WithClock(clk),
		WithRouter(router),
		WithRegistry(replyRegistry(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := loop.Run(context.Background(), "long task")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != types.StatePaused {
		t.Fatalf("state = %s, want %s", res.State, types.StatePaused)
	}
	if provider.calls != 0 {
		t.Fatalf("provider called %d times before the stop checkpoint", provider.calls)
	}
	stop, ok := loop.Logbook().Last(logbook.TypeStop)
	if !ok {
		t.Fatal("stop entry missing")
	}
	if got := stop.(*logbook.StopEntry).Reason; got != "operator shutdown" {
		t.Fatalf("stop reason = %q", got)
	}
}

func TestFixedSimulatedGenerationAdvancesClock(t *testing.T) {
	clk := clock.New()
	provider := &scriptedProvider{outputs: []string{replyAction}}
	loop, err := New(provider,
		WithClock(clk),
		WithRegistry(replyRegistry(t)),
		WithSimulatedGeneration(SimGen{Mode: GenFixed, Fixed: 90 * time.Second}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	before := clk.Now()
	if _, err := loop.Run(context.Background(), "say done"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	advanced := clk.Now().Sub(before)
	if advanced < 90*time.Second {
		t.Fatalf("clock advanced %v, want at least 90s", advanced)
	}
	if advanced > 90*time.Second+5*time.Second {
		t.Fatalf("clock advanced %v, way past the fixed generation time", advanced)
	}
	if clk.Paused() {
		t.Fatal("clock left paused after the run")
	}
}

func TestWaitForNotificationPausesAndArmsTimeout(t *testing.T) {
	clk := clock.New()
	router := notify.NewRouter(clk)
	reg := tools.NewRegistry()
	reg.MustRegister(tools.Func(tools.ToolWaitForNotification, "wait for the environment", nil,
		func(context.Context, json.RawMessage) (any, error) {
			return "waiting", nil
		}))
	reg.MarkTerminal(tools.ToolWaitForNotification)

	provider := &scriptedProvider{outputs: []string{
		"Nothing to do yet.\nAction: {\"action\": \"user_interface__wait_for_notification\"}",
	}}
	loop, err := New(provider,
		WithClock(clk),
		WithRouter(router),
		WithRegistry(reg),
		WithWaitTimeout(time.Hour),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := loop.Run(context.Background(), "stand by")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != types.StatePaused {
		t.Fatalf("state = %s, want %s", res.State, types.StatePaused)
	}

	// Past the deadline with nothing queued, the router must deliver a
	// timeout notification.
	clk.AddOffset(2 * time.Hour)
	router.HandleTimeoutAfterEvents()
	msgs := router.GetByTimestamp(clk.Now())
	if len(msgs) != 1 || msgs[0].Type != types.MessageNotification {
		t.Fatalf("messages after timeout = %+v", msgs)
	}
}

func TestPromptTooLongRecoversByTruncation(t *testing.T) {
	reg := replyRegistry(t)
	reg.MustRegister(tools.Func("data__dump", "", nil,
		func(context.Context, json.RawMessage) (any, error) {
			return strings.Repeat("x", 40000), nil
		}))
	provider := &scriptedProvider{outputs: []string{
		"Fetch everything.\nAction: {\"action\": \"data__dump\"}",
		replyAction,
	}}
	loop, err := New(provider,
		WithRegistry(reg),
		WithMaxPromptTokens(2000),
		WithTruncationHandling(true),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := loop.Run(context.Background(), "summarize the data")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != types.StateTerminated {
		t.Fatalf("state = %s", res.State)
	}
	if provider.calls != 2 {
		t.Fatalf("provider calls = %d; the oversized prompt must not reach the model", provider.calls)
	}
	overflowErrors := 0
	for _, e := range loop.Logbook().Entries() {
		if ee, ok := e.(*logbook.ErrorEntry); ok && ee.Category == "prompt_too_long" {
			overflowErrors++
		}
	}
	if overflowErrors != 1 {
		t.Fatalf("prompt_too_long errors = %d, want 1", overflowErrors)
	}
}

func TestPromptTooLongFailsWithoutTruncation(t *testing.T) {
	reg := replyRegistry(t)
	reg.MustRegister(tools.Func("data__dump", "", nil,
		func(context.Context, json.RawMessage) (any, error) {
			return strings.Repeat("x", 40000), nil
		}))
	provider := &scriptedProvider{outputs: []string{
		"Fetch everything.\nAction: {\"action\": \"data__dump\"}",
		replyAction,
	}}
	loop, err := New(provider, WithRegistry(reg), WithMaxPromptTokens(2000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := loop.Run(context.Background(), "summarize the data")
	if err == nil {
		t.Fatal("want prompt-too-long failure")
	}
	var tooLong *model.PromptTooLongError
	if !errors.As(err, &tooLong) {
		t.Fatalf("err = %v", err)
	}
	if res.State != types.StateFailed {
		t.Fatalf("state = %s, want %s", res.State, types.StateFailed)
	}
}

func TestReplayRestoresIterationAndTask(t *testing.T) {
	provider := &scriptedProvider{outputs: []string{replyAction}}
	loop, err := New(provider, WithRegistry(replyRegistry(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []logbook.Entry{
		&logbook.SystemPromptEntry{Meta: logbook.NewMeta("a1", at), Content: "be useful"},
		&logbook.TaskEntry{Meta: logbook.NewMeta("a1", at), Content: "first task"},
		&logbook.StepEntry{Meta: logbook.NewMeta("a1", at), Iteration: 0},
		&logbook.TaskEntry{Meta: logbook.NewMeta("a1", at), Content: "latest task"},
		&logbook.StepEntry{Meta: logbook.NewMeta("a1", at), Iteration: 4},
	}
	loop.Replay(entries)

	if got := loop.Iteration(); got != 5 {
		t.Fatalf("iteration = %d, want 5", got)
	}
	if got := loop.Task(); got != "latest task" {
		t.Fatalf("task = %q, want the most recent task entry", got)
	}
	if got := loop.State(); got != types.StatePaused {
		t.Fatalf("state = %s, want %s", got, types.StatePaused)
	}

	// Continuing from the replayed state finishes without a fresh task entry.
	res, err := loop.Continue(context.Background())
	if err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if res.State != types.StateTerminated {
		t.Fatalf("state = %s", res.State)
	}
	if res.Iterations != 6 {
		t.Fatalf("iterations = %d, want 6", res.Iterations)
	}
}

func TestNotificationStepDrainsUserMessage(t *testing.T) {
	clk := clock.New()
	router := notify.NewRouter(clk)
	router.HandleEvent(types.CompletedAction{
		App:      "user_interface",
		Function: "send_message_to_agent",
		Args:     map[string]any{"message": "also water the plants"},
		Time:     clk.Now(),
	})

	provider := &scriptedProvider{outputs: []string{replyAction}}
	loop, err := New(provider,
		WithClock(clk),
		WithRouter(router),
		WithRegistry(replyRegistry(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := loop.Run(context.Background(), "original task"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := loop.Task(); got != "also water the plants" {
		t.Fatalf("task = %q, want the drained user message", got)
	}
}
