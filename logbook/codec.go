package logbook

import (
	"encoding/json"
	"fmt"
	"time"
)

// constructors maps each log_type tag to an empty variant ready for
// unmarshaling. Decode dispatches through this table.
var constructors = map[EntryType]func() Entry{
	TypeSystemPrompt: func() Entry { return &SystemPromptEntry{} },
	TypeTask:         func() Entry { return &TaskEntry{} },
	TypePrompt:       func() Entry { return &PromptEntry{} },
	TypeOutput:       func() Entry { return &OutputEntry{} },
	TypeRationale:    func() Entry { return &RationaleEntry{} },
	TypeToolCall:     func() Entry { return &ToolCallEntry{} },
	TypeObservation:  func() Entry { return &ObservationEntry{} },
	TypeNotification: func() Entry { return &NotificationEntry{} },
	TypeError:        func() Entry { return &ErrorEntry{} },
	TypeStep:         func() Entry { return &StepEntry{} },
	TypeSubagent:     func() Entry { return &SubagentEntry{} },
	TypeFinalAnswer:  func() Entry { return &FinalAnswerEntry{} },
	TypeStop:         func() Entry { return &StopEntry{} },
}

// Encode serializes an entry as {"log_type": <tag>, ...variant fields}.
func Encode(e Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("logbook: cannot encode nil entry")
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("logbook: encode %s: %w", e.Type(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("logbook: encode %s: %w", e.Type(), err)
	}
	tag, err := json.Marshal(e.Type())
	if err != nil {
		return nil, err
	}
	fields["log_type"] = tag
	return json.Marshal(fields)
}

// Decode deserializes one entry, dispatching on its log_type tag.
func Decode(data []byte) (Entry, error) {
	var probe struct {
		LogType EntryType `json:"log_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("logbook: decode: %w", err)
	}
	build, ok := constructors[probe.LogType]
	if !ok {
		return nil, fmt.Errorf("logbook: unknown log_type %q", probe.LogType)
	}
	entry := build()
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, fmt.Errorf("logbook: decode %s: %w", probe.LogType, err)
	}
	return entry, nil
}

// EncodeList serializes a whole log as a JSON array.
func EncodeList(entries []Entry) ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		raw, err := Encode(e)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	return json.Marshal(raws)
}

// DecodeList deserializes a JSON array of entries.
func DecodeList(data []byte) ([]Entry, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("logbook: decode list: %w", err)
	}
	entries := make([]Entry, 0, len(raws))
	for i, raw := range raws {
		e, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("logbook: entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// subagentWire is the serialized shape of SubagentEntry; children are nested
// tagged entries, encoded recursively.
type subagentWire struct {
	ID       string            `json:"id"`
	Time     time.Time         `json:"time"`
	AgentID  string            `json:"agent_id"`
	Name     string            `json:"name"`
	Children []json.RawMessage `json:"children,omitempty"`
}

func (e *SubagentEntry) MarshalJSON() ([]byte, error) {
	w := subagentWire{
		ID:      e.ID,
		Time:    e.Time,
		AgentID: e.AgentID,
		Name:    e.Name,
	}
	for _, child := range e.Children {
		raw, err := Encode(child)
		if err != nil {
			return nil, fmt.Errorf("logbook: subagent child: %w", err)
		}
		w.Children = append(w.Children, raw)
	}
	return json.Marshal(w)
}

func (e *SubagentEntry) UnmarshalJSON(data []byte) error {
	var w subagentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.ID = w.ID
	e.Time = w.Time
	e.AgentID = w.AgentID
	e.Name = w.Name
	e.Children = nil
	for i, raw := range w.Children {
		child, err := Decode(raw)
		if err != nil {
			return fmt.Errorf("logbook: subagent child %d: %w", i, err)
		}
		e.Children = append(e.Children, child)
	}
	return nil
}
