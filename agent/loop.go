// Package agent implements the ReAct-style control loop: it drains due
// notifications, prompts the model, extracts and executes one action per
// step, and appends everything to the log, with retry, cancellation,
// pause-for-generation, and replay semantics.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chronosim/chronosim/clock"
	"github.com/chronosim/chronosim/logbook"
	"github.com/chronosim/chronosim/logstore"
	"github.com/chronosim/chronosim/model"
	"github.com/chronosim/chronosim/notify"
	"github.com/chronosim/chronosim/observe"
	"github.com/chronosim/chronosim/tools"
	"github.com/chronosim/chronosim/types"
)

const (
	defaultMaxIterations = 80
	defaultFormatRetries = 3
	defaultWaitTimeout   = 10 * time.Minute
)

// GenMode selects how model "thinking time" maps onto simulated time.
type GenMode string

const (
	// GenOff leaves the clock running during generation.
	GenOff GenMode = "off"
	// GenFixed pauses the clock and advances it by a configured duration.
	GenFixed GenMode = "fixed"
	// GenMeasured pauses the clock and advances it by the provider-reported
	// generation time, falling back to measured wall latency.
	GenMeasured GenMode = "measured"
)

type SimGen struct {
	Mode  GenMode
	Fixed time.Duration
}

// Result is what one agent turn produced.
type Result struct {
	RunID        string
	AgentID      string
	State        types.RunningState
	FinalAnswer  string
	Iterations   int
	WallDuration time.Duration
	SimDuration  time.Duration
	Err          error
}

// Loop drives one agent. It is single-threaded and cooperative: steps never
// overlap, and cancellation is a flag checked at fixed points, never
// preemptive.
type Loop struct {
	provider model.Provider
	executor ActionExecutor
	clock    *clock.Clock
	router   *notify.Router
	book     *logbook.Log
	registry *tools.Registry
	store    logstore.Store
	sink     observe.Sink

	agentID      string
	runID        string
	systemPrompt string

	maxIterations   int
	formatRetries   int
	maxPromptTokens int
	waitTimeout     time.Duration
	simGen          SimGen
	truncateOnLong  bool
	stopSequences   []string

	preSteps     []Step
	postSteps    []Step
	terminations []Termination

	mu            sync.Mutex
	state         types.RunningState
	iteration     int
	currentTask   string
	currentAtts   []types.Attachment
	stopReason    string
	lastOutcome   *ExecOutcome
	obsTokenLimit int
	persistedUpTo int
	stopRequested atomic.Bool
}

type Option func(*Loop)

func WithClock(c *clock.Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithRouter(r *notify.Router) Option {
	return func(l *Loop) { l.router = r }
}

func WithRegistry(r *tools.Registry) Option {
	return func(l *Loop) {
		if r != nil {
			l.registry = r
		}
	}
}

func WithLogbook(book *logbook.Log) Option {
	return func(l *Loop) {
		if book != nil {
			l.book = book
		}
	}
}

func WithStore(store logstore.Store) Option {
	return func(l *Loop) { l.store = store }
}

func WithSink(sink observe.Sink) Option {
	return func(l *Loop) { l.sink = observe.OrNoop(sink) }
}

func WithAgentID(id string) Option {
	return func(l *Loop) {
		if id != "" {
			l.agentID = id
		}
	}
}

func WithRunID(id string) Option {
	return func(l *Loop) {
		if id != "" {
			l.runID = id
		}
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(l *Loop) { l.systemPrompt = prompt }
}

func WithMaxIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithFormatRetries bounds how many malformed model outputs one step
// tolerates before the format error becomes fatal.
func WithFormatRetries(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.formatRetries = n
		}
	}
}

func WithMaxPromptTokens(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxPromptTokens = n
		}
	}
}

func WithWaitTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.waitTimeout = d
		}
	}
}

func WithSimulatedGeneration(sg SimGen) Option {
	return func(l *Loop) { l.simGen = sg }
}

// WithTruncationHandling makes a prompt-too-long failure recoverable: the
// next prompt build truncates observations to head+tail slices instead of
// re-raising.
func WithTruncationHandling(enabled bool) Option {
	return func(l *Loop) { l.truncateOnLong = enabled }
}

func WithStopSequences(seqs ...string) Option {
	return func(l *Loop) { l.stopSequences = seqs }
}

func WithPreStep(steps ...Step) Option {
	return func(l *Loop) { l.preSteps = append(l.preSteps, steps...) }
}

func WithPostStep(steps ...Step) Option {
	return func(l *Loop) { l.postSteps = append(l.postSteps, steps...) }
}

func WithTermination(terms ...Termination) Option {
	return func(l *Loop) { l.terminations = append(l.terminations, terms...) }
}

func WithExecutor(e ActionExecutor) Option {
	return func(l *Loop) {
		if e != nil {
			l.executor = e
		}
	}
}

func New(provider model.Provider, opts ...Option) (*Loop, error) {
	if provider == nil {
		return nil, errors.New("agent: provider is required")
	}
	l := &Loop{
		provider:      provider,
		maxIterations: defaultMaxIterations,
		formatRetries: defaultFormatRetries,
		waitTimeout:   defaultWaitTimeout,
		simGen:        SimGen{Mode: GenOff},
		state:         types.StatePaused,
		sink:          observe.NoopSink{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.clock == nil {
		l.clock = clock.New()
	}
	if l.book == nil {
		l.book = logbook.NewLog()
	}
	if l.registry == nil {
		l.registry = tools.NewRegistry()
	}
	if l.agentID == "" {
		l.agentID = uuid.NewString()
	}
	if l.executor == nil {
		l.executor = NewJSONExecutor(l.registry, l.book, l.clock, l.sink, l.agentID)
	}
	if l.router != nil {
		l.preSteps = append([]Step{NotificationStep(l.router), ReminderStep(l.router)}, l.preSteps...)
		l.postSteps = append(l.postSteps, TimeoutStep(l.router))
	}
	if len(l.terminations) == 0 {
		l.terminations = []Termination{TerminalActionTermination(), MaxIterationsTermination()}
	}
	return l, nil
}

// Run executes one agent turn for the given task.
func (l *Loop) Run(ctx context.Context, task string, atts ...types.Attachment) (*Result, error) {
	l.mu.Lock()
	if l.runID == "" {
		l.runID = uuid.NewString()
	}
	l.mu.Unlock()

	if l.systemPrompt != "" {
		if _, ok := l.book.Last(logbook.TypeSystemPrompt); !ok {
			l.book.Append(&logbook.SystemPromptEntry{
				Meta:    logbook.NewMeta(l.agentID, l.clock.Now()),
				Content: l.systemPrompt,
			})
		}
	}
	l.book.Append(&logbook.TaskEntry{
		Meta:        logbook.NewMeta(l.agentID, l.clock.Now()),
		Content:     task,
		Attachments: atts,
	})
	l.setTask(task, atts)
	return l.run(ctx)
}

// Continue resumes a paused (typically replayed) agent on its restored task
// without appending a new task entry.
func (l *Loop) Continue(ctx context.Context) (*Result, error) {
	return l.run(ctx)
}

func (l *Loop) run(ctx context.Context) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	l.setState(types.StateRunning)
	l.stopRequested.Store(false)
	wallStart := time.Now()
	simStart := l.clock.Now()

	observe.Emit(ctx, l.sink, observe.Event{
		SimTime: simStart,
		Kind:    observe.KindRun,
		AgentID: l.agentID,
		RunID:   l.runID,
		Detail:  l.Task(),
	})
	l.saveRun(ctx)

	finish := func(res *Result, err error) (*Result, error) {
		res.WallDuration = time.Since(wallStart)
		res.SimDuration = l.clock.Now().Sub(simStart)
		event := observe.Event{
			SimTime:    l.clock.Now(),
			Kind:       observe.KindRun,
			AgentID:    l.agentID,
			RunID:      l.runID,
			Iteration:  res.Iterations,
			Name:       string(res.State),
			DurationMs: res.WallDuration.Milliseconds(),
		}
		if err != nil {
			event.Err = err.Error()
		}
		observe.Emit(ctx, l.sink, event)
		l.saveRun(ctx)
		l.flushEntries(ctx)
		return res, err
	}

	for {
		err := l.iterate(ctx)

		switch {
		case err == nil:
			// Iteration completed.
		case errors.Is(err, ErrStopped):
			l.book.Append(&logbook.StopEntry{
				Meta:   logbook.NewMeta(l.agentID, l.clock.Now()),
				Reason: l.StopReason(),
			})
			l.setState(types.StatePaused)
			observe.Emit(ctx, l.sink, observe.Event{
				SimTime: l.clock.Now(),
				Kind:    observe.KindStop,
				AgentID: l.agentID,
				RunID:   l.runID,
				Detail:  l.StopReason(),
			})
			return finish(l.result(nil), nil)
		case IsFormatError(err):
			// The step already logged each attempt; exhausting the retry
			// budget is fatal.
			l.setState(types.StateFailed)
			return finish(l.result(err), fmt.Errorf("agent: format retries exhausted: %w", err))
		case isPromptTooLong(err):
			if !l.truncateOnLong || l.obsTokenLimit > 0 {
				l.setState(types.StateFailed)
				return finish(l.result(err), err)
			}
			l.logError(ctx, "prompt_too_long", err)
			l.mu.Lock()
			l.obsTokenLimit = l.maxPromptTokens / 4
			if l.obsTokenLimit <= 0 {
				l.obsTokenLimit = 2048
			}
			l.mu.Unlock()
		default:
			var unavailable *ToolUnavailableError
			var execFailed *ToolExecutionError
			switch {
			case errors.As(err, &unavailable):
				l.logError(ctx, "tool_unavailable", err)
			case errors.As(err, &execFailed):
				l.logError(ctx, "tool_execution", err)
			default:
				l.logError(ctx, "unhandled", &UnhandledError{Stage: "step", Err: err})
			}
		}

		l.mu.Lock()
		iter := l.iteration
		l.mu.Unlock()
		l.book.Append(&logbook.StepEntry{
			Meta:      logbook.NewMeta(l.agentID, l.clock.Now()),
			Iteration: iter,
		})
		l.mu.Lock()
		l.iteration++
		l.mu.Unlock()
		l.flushEntries(ctx)

		for _, term := range l.terminations {
			if term.When != nil && !term.When(l) {
				continue
			}
			res, err := term.Finish(ctx, l)
			if err != nil {
				l.setState(types.StateFailed)
				return finish(l.result(err), err)
			}
			return finish(res, nil)
		}
	}
}

// iterate runs one full pass: checkpoint, pre-steps, checkpoint, step,
// checkpoint, post-steps. The deferred block resumes the clock if a pause
// was left outstanding so no failure path can freeze simulated time.
func (l *Loop) iterate(ctx context.Context) (err error) {
	defer func() {
		if l.clock.Paused() {
			l.clock.Resume()
		}
	}()

	if err := l.checkpoint(ctx); err != nil {
		return err
	}
	l.runSteps(ctx, l.preSteps)
	if err := l.checkpoint(ctx); err != nil {
		return err
	}
	if err := l.step(ctx); err != nil {
		return err
	}
	if err := l.checkpoint(ctx); err != nil {
		return err
	}
	l.runSteps(ctx, l.postSteps)
	return nil
}

// checkpoint is the cooperative-cancellation probe, evaluated three times
// per iteration.
func (l *Loop) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		l.setStopReason("context cancelled")
		return ErrStopped
	}
	if l.stopRequested.Load() {
		return ErrStopped
	}
	return nil
}

func (l *Loop) runSteps(ctx context.Context, steps []Step) {
	for _, s := range steps {
		if s.When != nil && !s.When(l) {
			continue
		}
		if s.Run == nil {
			continue
		}
		if err := s.Run(ctx, l); err != nil {
			// Step failures are observations, not crashes.
			observe.Emit(ctx, l.sink, observe.Event{
				SimTime: l.clock.Now(),
				Kind:    observe.KindError,
				AgentID: l.agentID,
				RunID:   l.runID,
				Name:    s.Name,
				Err:     err.Error(),
			})
		}
	}
}

// step performs one model invocation and executes the resulting action,
// retrying malformed outputs up to the format budget.
func (l *Loop) step(ctx context.Context) error {
	l.mu.Lock()
	obsLimit := l.obsTokenLimit
	l.mu.Unlock()

	messages := BuildMessages(l.book.Entries(), obsLimit)
	l.book.Append(&logbook.PromptEntry{
		Meta:     logbook.NewMeta(l.agentID, l.clock.Now()),
		Messages: messages,
	})
	if l.maxPromptTokens > 0 {
		if size := EstimateRequestTokens(messages); size > l.maxPromptTokens {
			return &model.PromptTooLongError{Limit: l.maxPromptTokens, Size: size}
		}
	}

	for attempt := 1; ; attempt++ {
		resp, err := l.generate(ctx, messages)
		if err != nil {
			return err
		}

		action, ferr := l.extractChecked(resp.Content)
		var parsed *types.ParsedAction
		if ferr == nil {
			l.book.Append(&logbook.OutputEntry{
				Meta:    logbook.NewMeta(l.agentID, l.clock.Now()),
				Content: resp.Content,
			})
			if action.Rationale != "" {
				l.book.Append(&logbook.RationaleEntry{
					Meta:    logbook.NewMeta(l.agentID, l.clock.Now()),
					Content: action.Rationale,
				})
			}
			if action.Raw == "" {
				// Thought without an action: log-only step.
				l.setOutcome(nil)
				return nil
			}
			parsed, ferr = l.executor.Parse(action)
		}
		if ferr != nil {
			if !IsFormatError(ferr) {
				return ferr
			}
			l.logError(ctx, "format", ferr)
			if attempt >= l.formatRetries {
				return ferr
			}
			continue
		}

		outcome, err := l.executor.Execute(ctx, parsed)
		if err != nil {
			return err
		}
		l.setOutcome(outcome)
		return nil
	}
}

func (l *Loop) extractChecked(output string) (types.AgentAction, error) {
	if strings.TrimSpace(output) == "" {
		return types.AgentAction{}, &MissingDelimiterError{
			Delimiter: DefaultDelimiter,
			Reason:    "model produced empty output",
		}
	}
	return l.executor.Extract(output)
}

// generate invokes the model. When simulated generation time is configured
// the clock is paused around the call and advanced by either the fixed
// duration or the measured latency; the deferred resume runs even when the
// provider fails, so an exception can never leave time frozen.
func (l *Loop) generate(ctx context.Context, messages []model.Message) (*model.Response, error) {
	if l.simGen.Mode != GenOff && l.simGen.Mode != "" {
		l.clock.Pause()
		defer l.clock.Resume()
	}

	start := time.Now()
	resp, err := l.provider.Generate(ctx, &model.Request{
		Messages:      messages,
		StopSequences: l.stopSequences,
	})
	wall := time.Since(start)

	event := observe.Event{
		SimTime:    l.clock.Now(),
		Kind:       observe.KindGenerate,
		AgentID:    l.agentID,
		RunID:      l.runID,
		Iteration:  l.Iteration(),
		Name:       l.provider.Name(),
		DurationMs: wall.Milliseconds(),
	}
	if err != nil {
		event.Err = err.Error()
	}
	observe.Emit(ctx, l.sink, event)
	if err != nil {
		return nil, err
	}

	switch l.simGen.Mode {
	case GenFixed:
		l.clock.AddOffset(l.simGen.Fixed)
	case GenMeasured:
		d := resp.GenerationTime
		if d <= 0 {
			d = wall
		}
		l.clock.AddOffset(d)
	}
	return resp, nil
}

// Replay restores the loop from a prior log: the iteration counter becomes
// one past the highest step marker, and the most recent task entry becomes
// the current task. The agent is left PAUSED, ready to Continue without
// re-invoking the model.
func (l *Loop) Replay(entries []logbook.Entry) {
	l.book.Replace(entries)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.iteration = l.book.MaxIteration() + 1
	l.state = types.StatePaused
	l.lastOutcome = nil
	l.persistedUpTo = len(entries)
	l.currentTask = ""
	l.currentAtts = nil
	for i := len(entries) - 1; i >= 0; i-- {
		if task, ok := entries[i].(*logbook.TaskEntry); ok {
			l.currentTask = task.Content
			l.currentAtts = append([]types.Attachment(nil), task.Attachments...)
			break
		}
	}
}

// LoadAndReplay restores the loop from a persisted run.
func (l *Loop) LoadAndReplay(ctx context.Context, store logstore.Store, runID string) (*logstore.Run, error) {
	run, err := store.LoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	entries, err := store.LoadEntries(ctx, runID)
	if err != nil {
		return nil, err
	}
	l.Replay(entries)
	l.mu.Lock()
	l.runID = run.ID
	if run.AgentID != "" {
		l.agentID = run.AgentID
	}
	l.mu.Unlock()
	return run, nil
}

// RequestStop sets the cooperative-cancellation flag; the loop honors it at
// the next checkpoint.
func (l *Loop) RequestStop(reason string) {
	l.setStopReason(reason)
	l.stopRequested.Store(true)
}

func (l *Loop) Stopped() bool { return l.stopRequested.Load() }

func (l *Loop) State() types.RunningState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) Iteration() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.iteration
}

func (l *Loop) Task() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTask
}

func (l *Loop) TaskAttachments() []types.Attachment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.Attachment(nil), l.currentAtts...)
}

func (l *Loop) StopReason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopReason
}

func (l *Loop) RunID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runID
}

func (l *Loop) AgentID() string { return l.agentID }

func (l *Loop) Logbook() *logbook.Log { return l.book }

func (l *Loop) Clock() *clock.Clock { return l.clock }

func (l *Loop) Registry() *tools.Registry { return l.registry }

func (l *Loop) setState(s types.RunningState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

func (l *Loop) setTask(task string, atts []types.Attachment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentTask = task
	l.currentAtts = append([]types.Attachment(nil), atts...)
}

func (l *Loop) setStopReason(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if reason != "" {
		l.stopReason = reason
	}
}

func (l *Loop) setOutcome(o *ExecOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastOutcome = o
}

func (l *Loop) result(err error) *Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := &Result{
		RunID:      l.runID,
		AgentID:    l.agentID,
		State:      l.state,
		Iterations: l.iteration,
		Err:        err,
	}
	if final, ok := l.book.Last(logbook.TypeFinalAnswer); ok {
		res.FinalAnswer = final.(*logbook.FinalAnswerEntry).Content
	}
	return res
}

func (l *Loop) logError(ctx context.Context, category string, err error) {
	l.book.Append(&logbook.ErrorEntry{
		Meta:     logbook.NewMeta(l.agentID, l.clock.Now()),
		Category: category,
		Message:  err.Error(),
	})
	observe.Emit(ctx, l.sink, observe.Event{
		SimTime: l.clock.Now(),
		Kind:    observe.KindError,
		AgentID: l.agentID,
		RunID:   l.runID,
		Name:    category,
		Err:     err.Error(),
	})
}

// saveRun and flushEntries autosave through the optional store. Failures
// are warnings; persistence must never take a run down.
func (l *Loop) saveRun(ctx context.Context) {
	if l.store == nil {
		return
	}
	l.mu.Lock()
	run := &logstore.Run{
		ID:         l.runID,
		AgentID:    l.agentID,
		Task:       l.currentTask,
		State:      l.state,
		Iterations: l.iteration,
	}
	l.mu.Unlock()
	if final, ok := l.book.Last(logbook.TypeFinalAnswer); ok {
		run.FinalAnswer = final.(*logbook.FinalAnswerEntry).Content
	}
	if err := l.store.SaveRun(ctx, run); err != nil {
		log.Printf("agent: save run %s: %v", run.ID, err)
	}
}

func (l *Loop) flushEntries(ctx context.Context) {
	if l.store == nil {
		return
	}
	entries := l.book.Entries()
	l.mu.Lock()
	from := l.persistedUpTo
	if from > len(entries) {
		from = len(entries)
	}
	pending := entries[from:]
	l.persistedUpTo = len(entries)
	l.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	if err := l.store.AppendEntries(ctx, l.RunID(), pending...); err != nil {
		log.Printf("agent: persist %d entries: %v", len(pending), err)
	}
}

func isPromptTooLong(err error) bool {
	var tooLong *model.PromptTooLongError
	return errors.As(err, &tooLong)
}
