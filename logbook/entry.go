// Package logbook holds the agent's append-only history: a tagged union of
// entry variants, a mutex-guarded log, and a JSON codec keyed on log_type.
package logbook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chronosim/chronosim/model"
	"github.com/chronosim/chronosim/types"
)

type EntryType string

const (
	TypeSystemPrompt EntryType = "system_prompt"
	TypeTask         EntryType = "task"
	TypePrompt       EntryType = "llm_input"
	TypeOutput       EntryType = "llm_output"
	TypeRationale    EntryType = "rationale"
	TypeToolCall     EntryType = "tool_call"
	TypeObservation  EntryType = "observation"
	TypeNotification EntryType = "notification"
	TypeError        EntryType = "error"
	TypeStep         EntryType = "step"
	TypeSubagent     EntryType = "subagent"
	TypeFinalAnswer  EntryType = "final_answer"
	TypeStop         EntryType = "stop"
)

// Entry is one record in the agent's history. Entries are immutable once
// appended, except SubagentEntry, which accumulates children while its child
// run is in flight.
type Entry interface {
	Type() EntryType
	EntryMeta() *Meta

	// ContentForModel returns the text this entry contributes to the next
	// prompt; the second return is false for entries excluded from prompts.
	ContentForModel() (string, bool)
	AttachmentsForModel() []types.Attachment
}

// Meta carries the fields common to every entry.
type Meta struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	AgentID string    `json:"agent_id"`
}

func NewMeta(agentID string, at time.Time) Meta {
	return Meta{ID: uuid.NewString(), Time: at, AgentID: agentID}
}

func (m *Meta) EntryMeta() *Meta { return m }

func (m *Meta) AttachmentsForModel() []types.Attachment { return nil }

// SystemPromptEntry records the system prompt installed at the start of a run.
type SystemPromptEntry struct {
	Meta
	Content string `json:"content"`
}

func (e *SystemPromptEntry) Type() EntryType                 { return TypeSystemPrompt }
func (e *SystemPromptEntry) ContentForModel() (string, bool) { return e.Content, true }

// TaskEntry records a task given to the agent, either the initial one or a
// drained user message.
type TaskEntry struct {
	Meta
	Content     string             `json:"content"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
}

func (e *TaskEntry) Type() EntryType                         { return TypeTask }
func (e *TaskEntry) ContentForModel() (string, bool)         { return e.Content, true }
func (e *TaskEntry) AttachmentsForModel() []types.Attachment { return e.Attachments }

// PromptEntry snapshots the exact messages sent to the model. Excluded from
// prompts; it exists for replay and audit.
type PromptEntry struct {
	Meta
	Messages []model.Message `json:"messages"`
}

func (e *PromptEntry) Type() EntryType                 { return TypePrompt }
func (e *PromptEntry) ContentForModel() (string, bool) { return "", false }

// OutputEntry records the raw model output, thought and action together.
type OutputEntry struct {
	Meta
	Content string `json:"content"`
}

func (e *OutputEntry) Type() EntryType                 { return TypeOutput }
func (e *OutputEntry) ContentForModel() (string, bool) { return e.Content, true }

// RationaleEntry records the extracted thought. Excluded from prompts since
// the text already appears inside the output entry.
type RationaleEntry struct {
	Meta
	Content string `json:"content"`
}

func (e *RationaleEntry) Type() EntryType                 { return TypeRationale }
func (e *RationaleEntry) ContentForModel() (string, bool) { return "", false }

// ToolCallEntry records one decoded tool invocation. Excluded from prompts.
type ToolCallEntry struct {
	Meta
	App  string          `json:"app,omitempty"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args,omitempty"`
}

func (e *ToolCallEntry) Type() EntryType                 { return TypeToolCall }
func (e *ToolCallEntry) ContentForModel() (string, bool) { return "", false }

// ObservationEntry records the rendered result of a tool call.
type ObservationEntry struct {
	Meta
	Content     string             `json:"content"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
}

func (e *ObservationEntry) Type() EntryType                         { return TypeObservation }
func (e *ObservationEntry) ContentForModel() (string, bool)         { return e.Content, true }
func (e *ObservationEntry) AttachmentsForModel() []types.Attachment { return e.Attachments }

// NotificationEntry records an environment notification delivered to the
// agent's attention.
type NotificationEntry struct {
	Meta
	Content     string             `json:"content"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
}

func (e *NotificationEntry) Type() EntryType                         { return TypeNotification }
func (e *NotificationEntry) ContentForModel() (string, bool)         { return e.Content, true }
func (e *NotificationEntry) AttachmentsForModel() []types.Attachment { return e.Attachments }

// ErrorEntry records a survivable failure. Included in prompts so the model
// can see what went wrong and correct itself on the next step.
type ErrorEntry struct {
	Meta
	Category string `json:"category"`
	Message  string `json:"message"`
}

func (e *ErrorEntry) Type() EntryType { return TypeError }
func (e *ErrorEntry) ContentForModel() (string, bool) {
	return fmt.Sprintf("Error (%s): %s", e.Category, e.Message), true
}

// StepEntry marks the end of one loop iteration. Excluded from prompts;
// replay uses the markers to restore the iteration counter.
type StepEntry struct {
	Meta
	Iteration int `json:"iteration"`
}

func (e *StepEntry) Type() EntryType                 { return TypeStep }
func (e *StepEntry) ContentForModel() (string, bool) { return "", false }

// SubagentEntry groups the full history of a child run under the parent log.
// The only entry kind mutated after append: children accumulate while the
// child runs.
type SubagentEntry struct {
	Meta
	Name     string  `json:"name"`
	Children []Entry `json:"-"`
}

func (e *SubagentEntry) Type() EntryType                 { return TypeSubagent }
func (e *SubagentEntry) ContentForModel() (string, bool) { return "", false }

func (e *SubagentEntry) AddChildren(children ...Entry) {
	e.Children = append(e.Children, children...)
}

// FinalAnswerEntry records the agent's terminal reply for the turn.
type FinalAnswerEntry struct {
	Meta
	Content string `json:"content"`
}

func (e *FinalAnswerEntry) Type() EntryType                 { return TypeFinalAnswer }
func (e *FinalAnswerEntry) ContentForModel() (string, bool) { return e.Content, true }

// StopEntry records cooperative cancellation. Excluded from prompts.
type StopEntry struct {
	Meta
	Reason string `json:"reason,omitempty"`
}

func (e *StopEntry) Type() EntryType                 { return TypeStop }
func (e *StopEntry) ContentForModel() (string, bool) { return "", false }
