package types

import (
	"encoding/json"
	"time"
)

// AppSeparator joins an app name and a function name into the fully
// qualified tool name, e.g. "user_interface__send_message_to_agent".
const AppSeparator = "__"

type MessageType string

const (
	MessageUser         MessageType = "user"
	MessageNotification MessageType = "notification"
	MessageStop         MessageType = "stop"
)

// Message is the unit the notification router queues, ordered by Time.
type Message struct {
	ID          string       `json:"id"`
	Type        MessageType  `json:"type"`
	Time        time.Time    `json:"time"`
	App         string       `json:"app,omitempty"`
	Function    string       `json:"function,omitempty"`
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	MIME string `json:"mime,omitempty"`
	Data []byte `json:"data,omitempty"`
}

func (a Attachment) Size() int { return len(a.Data) }

type RunningState string

const (
	StateRunning    RunningState = "running"
	StatePaused     RunningState = "paused"
	StateTerminated RunningState = "terminated"
	StateFailed     RunningState = "failed"
)

// Terminal reports whether the state admits no further iterations.
func (s RunningState) Terminal() bool {
	return s == StateTerminated || s == StateFailed
}

// AgentAction is the raw split of one model output: the free-form rationale
// before the action delimiter and the untouched action text after it.
type AgentAction struct {
	Rationale string `json:"rationale,omitempty"`
	Raw       string `json:"raw"`
}

// ParsedAction is a decoded action payload. Scalar marks a non-object
// action_input (bare string or number), which is handed to the tool as-is
// instead of being validated against the argument schema.
type ParsedAction struct {
	App    string          `json:"app,omitempty"`
	Tool   string          `json:"tool"`
	Args   json.RawMessage `json:"args,omitempty"`
	Scalar bool            `json:"scalar,omitempty"`
}

// FullName returns the registry lookup key for the action's tool.
func (p *ParsedAction) FullName() string {
	if p.App == "" {
		return p.Tool
	}
	return p.App + AppSeparator + p.Tool
}
