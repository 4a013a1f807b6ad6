package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/chronosim/chronosim/clock"
	"github.com/chronosim/chronosim/logbook"
	"github.com/chronosim/chronosim/observe"
	"github.com/chronosim/chronosim/tools"
	"github.com/chronosim/chronosim/types"
)

// DefaultDelimiter separates the model's free-form thought from its action
// payload.
const DefaultDelimiter = "Action:"

// ActionExecutor turns raw model text into a structured tool invocation and
// executes it, recording the tool call and observation in the log.
type ActionExecutor interface {
	Extract(output string) (types.AgentAction, error)
	Parse(action types.AgentAction) (*types.ParsedAction, error)
	Execute(ctx context.Context, parsed *types.ParsedAction) (*ExecOutcome, error)
}

// ExecOutcome is what one executed action produced.
type ExecOutcome struct {
	ToolName    string
	Observation string
	Output      any
	Terminal    bool
}

// JSONExecutor decodes action payloads of the form
// {"action": "app__function", "action_input": {...}}.
type JSONExecutor struct {
	Delimiter string
	registry  *tools.Registry
	book      *logbook.Log
	clock     *clock.Clock
	sink      observe.Sink
	agentID   string
}

func NewJSONExecutor(registry *tools.Registry, book *logbook.Log, clk *clock.Clock, sink observe.Sink, agentID string) *JSONExecutor {
	return &JSONExecutor{
		Delimiter: DefaultDelimiter,
		registry:  registry,
		book:      book,
		clock:     clk,
		sink:      observe.OrNoop(sink),
		agentID:   agentID,
	}
}

// Extract splits model output on the delimiter. Exactly one occurrence is
// required: zero is a missing-delimiter format error, more than one is a
// multiple-actions format error. An action is never silently picked.
func (e *JSONExecutor) Extract(output string) (types.AgentAction, error) {
	delim := e.Delimiter
	if delim == "" {
		delim = DefaultDelimiter
	}
	switch count := strings.Count(output, delim); count {
	case 0:
		return types.AgentAction{}, &MissingDelimiterError{Delimiter: delim}
	case 1:
		idx := strings.Index(output, delim)
		return types.AgentAction{
			Rationale: strings.TrimSpace(output[:idx]),
			Raw:       strings.TrimSpace(output[idx+len(delim):]),
		}, nil
	default:
		return types.AgentAction{}, &MultipleActionsError{Delimiter: delim, Count: count}
	}
}

// Parse decodes the action payload. Malformed JSON and missing keys stay in
// the format-error category so they count against the loop's retry budget.
func (e *JSONExecutor) Parse(action types.AgentAction) (*types.ParsedAction, error) {
	raw := []byte(action.Raw)
	name, err := jsonparser.GetString(raw, "action")
	if err != nil {
		return nil, &MissingDelimiterError{
			Delimiter: e.Delimiter,
			Reason:    fmt.Sprintf("action payload is not a JSON object with an %q key: %v", "action", err),
		}
	}
	app, bare := tools.SplitName(name)
	parsed := &types.ParsedAction{App: app, Tool: bare}

	value, kind, _, err := jsonparser.Get(raw, "action_input")
	switch {
	case err == jsonparser.KeyPathNotFoundError || kind == jsonparser.Null || kind == jsonparser.NotExist:
		// No arguments.
	case err != nil:
		return nil, &MissingDelimiterError{
			Delimiter: e.Delimiter,
			Reason:    fmt.Sprintf("unreadable action_input: %v", err),
		}
	case kind == jsonparser.Object || kind == jsonparser.Array:
		parsed.Args = append(json.RawMessage(nil), value...)
	case kind == jsonparser.String:
		// Re-quote: jsonparser strips the quotes from string values.
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return nil, &MissingDelimiterError{
				Delimiter: e.Delimiter,
				Reason:    fmt.Sprintf("unreadable action_input string: %v", err),
			}
		}
		quoted, _ := json.Marshal(s)
		parsed.Args = quoted
		parsed.Scalar = true
	default:
		parsed.Args = append(json.RawMessage(nil), value...)
		parsed.Scalar = true
	}
	return parsed, nil
}

// Execute logs the tool call, runs the tool, and logs the observation. A
// terminal tool additionally logs a final-answer entry.
func (e *JSONExecutor) Execute(ctx context.Context, parsed *types.ParsedAction) (*ExecOutcome, error) {
	name := parsed.FullName()
	now := e.clock.Now()

	e.book.Append(&logbook.ToolCallEntry{
		Meta: logbook.NewMeta(e.agentID, now),
		App:  parsed.App,
		Tool: parsed.Tool,
		Args: parsed.Args,
	})

	tool, ok := e.registry.Lookup(name)
	if !ok {
		return nil, &ToolUnavailableError{Name: name, Available: e.registry.Names()}
	}

	if !parsed.Scalar {
		if err := tools.Validate(tool, parsed.Args); err != nil {
			return nil, &ToolExecutionError{Name: name, Description: tool.Description(), Err: err}
		}
	}

	out, err := tool.Execute(ctx, parsed.Args)
	if err != nil {
		return nil, &ToolExecutionError{Name: name, Description: tool.Description(), Err: err}
	}

	observation := renderOutput(out)
	var attachments []types.Attachment
	if carrier, ok := out.(tools.AttachmentCarrier); ok {
		attachments = carrier.ActionAttachments()
	}
	if observation == "" && len(attachments) == 0 {
		observation = "No observation"
	}
	e.book.Append(&logbook.ObservationEntry{
		Meta:        logbook.NewMeta(e.agentID, e.clock.Now()),
		Content:     observation,
		Attachments: attachments,
	})

	outcome := &ExecOutcome{
		ToolName:    name,
		Observation: observation,
		Output:      out,
	}
	if e.registry.IsTerminal(name) {
		outcome.Terminal = true
		e.book.Append(&logbook.FinalAnswerEntry{
			Meta:    logbook.NewMeta(e.agentID, e.clock.Now()),
			Content: finalAnswerFor(parsed, observation),
		})
	}
	return outcome, nil
}

// renderOutput flattens a tool result to observation text.
func renderOutput(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	case error:
		return v.Error()
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

// finalAnswerFor prefers the terminal tool's message argument; the rendered
// observation is only a fallback.
func finalAnswerFor(parsed *types.ParsedAction, observation string) string {
	if len(parsed.Args) > 0 && !parsed.Scalar {
		if msg, err := jsonparser.GetString(parsed.Args, "message"); err == nil && msg != "" {
			return msg
		}
	}
	return observation
}
