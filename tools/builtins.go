package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chronosim/chronosim/clock"
	"github.com/chronosim/chronosim/reminder"
	"github.com/chronosim/chronosim/types"
)

// Engine-owned tool names. Everything else comes from simulated apps
// registered by the environment.
const (
	ToolSendMessageToUser   = "user_interface__send_message_to_user"
	ToolWaitForNotification = "user_interface__wait_for_notification"
	ToolSendMessageToAgent  = "user_interface__send_message_to_agent"
	ToolGetCurrentTime      = "system__get_current_time"
	ToolCreateReminder      = "reminder__create_reminder"
)

type sendMessageArgs struct {
	Message string `json:"message" jsonschema:"description=The message text to deliver"`
}

type waitArgs struct {
	TimeoutSeconds int `json:"timeout_seconds,omitempty" jsonschema:"description=Give up waiting after this many simulated seconds"`
}

type inboundMessageArgs struct {
	Message     string             `json:"message" jsonschema:"description=The user's message to the agent"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
}

type createReminderArgs struct {
	Message   string `json:"message" jsonschema:"description=What to be reminded about"`
	At        string `json:"at,omitempty" jsonschema:"description=Absolute fire time in RFC 3339"`
	InSeconds int    `json:"in_seconds,omitempty" jsonschema:"description=Fire this many simulated seconds from now"`
	Cron      string `json:"cron,omitempty" jsonschema:"description=Recurring five-field cron expression"`
}

// inboundResult carries attachments through the instrumentation wrapper so
// the router can deliver them with the user message.
type inboundResult struct {
	Delivered   string             `json:"delivered"`
	Attachments []types.Attachment `json:"-"`
}

func (r inboundResult) ActionAttachments() []types.Attachment { return r.Attachments }

// RegisterBuiltins installs the engine-owned user-interface, system, and
// reminder tools and marks the terminal ones.
func RegisterBuiltins(reg *Registry, clk *clock.Clock, book *reminder.Book) error {
	builtins := []Tool{
		Func(
			ToolSendMessageToUser,
			"Send a message to the user. This ends your turn.",
			SchemaFor[sendMessageArgs](),
			func(_ context.Context, args json.RawMessage) (any, error) {
				var in sendMessageArgs
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, fmt.Errorf("decode arguments: %w", err)
				}
				if in.Message == "" {
					return nil, fmt.Errorf("message is required")
				}
				return "Message sent to the user.", nil
			},
		),
		Func(
			ToolWaitForNotification,
			"Pause until the next user message or environment notification arrives. This ends your turn.",
			SchemaFor[waitArgs](),
			func(_ context.Context, args json.RawMessage) (any, error) {
				var in waitArgs
				if len(args) > 0 {
					if err := json.Unmarshal(args, &in); err != nil {
						return nil, fmt.Errorf("decode arguments: %w", err)
					}
				}
				if in.TimeoutSeconds > 0 {
					return fmt.Sprintf("Waiting for a notification (up to %ds).", in.TimeoutSeconds), nil
				}
				return "Waiting for a notification.", nil
			},
		),
		Func(
			ToolSendMessageToAgent,
			"Deliver a user message into the agent's attention stream.",
			SchemaFor[inboundMessageArgs](),
			func(_ context.Context, args json.RawMessage) (any, error) {
				var in inboundMessageArgs
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, fmt.Errorf("decode arguments: %w", err)
				}
				return inboundResult{Delivered: in.Message, Attachments: in.Attachments}, nil
			},
		),
		Func(
			ToolGetCurrentTime,
			"Read the current simulated date and time.",
			nil,
			func(_ context.Context, _ json.RawMessage) (any, error) {
				return clk.Now().Format(time.RFC3339), nil
			},
		),
		Func(
			ToolCreateReminder,
			"Create a one-shot or recurring reminder on the simulated clock.",
			SchemaFor[createReminderArgs](),
			func(_ context.Context, args json.RawMessage) (any, error) {
				var in createReminderArgs
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, fmt.Errorf("decode arguments: %w", err)
				}
				if in.Message == "" {
					return nil, fmt.Errorf("message is required")
				}
				switch {
				case in.Cron != "":
					r, err := book.AddCron(in.Message, in.Cron, clk.Now())
					if err != nil {
						return nil, err
					}
					return fmt.Sprintf("Recurring reminder %s created; next fire %s.", r.ID, r.At.Format(time.RFC3339)), nil
				case in.At != "":
					at, err := time.Parse(time.RFC3339, in.At)
					if err != nil {
						return nil, fmt.Errorf("invalid at time %q: %w", in.At, err)
					}
					r := book.Add(in.Message, at)
					return fmt.Sprintf("Reminder %s created for %s.", r.ID, r.At.Format(time.RFC3339)), nil
				case in.InSeconds > 0:
					r := book.Add(in.Message, clk.Now().Add(time.Duration(in.InSeconds)*time.Second))
					return fmt.Sprintf("Reminder %s created for %s.", r.ID, r.At.Format(time.RFC3339)), nil
				default:
					return nil, fmt.Errorf("one of at, in_seconds or cron is required")
				}
			},
		),
	}
	for _, t := range builtins {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	reg.MarkTerminal(ToolSendMessageToUser, ToolWaitForNotification)
	return nil
}
