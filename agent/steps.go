package agent

import (
	"context"

	"github.com/chronosim/chronosim/logbook"
	"github.com/chronosim/chronosim/notify"
	"github.com/chronosim/chronosim/tools"
	"github.com/chronosim/chronosim/types"
)

// Step is a conditional action run before or after each iteration. A nil
// When always runs.
type Step struct {
	Name string
	When func(l *Loop) bool
	Run  func(ctx context.Context, l *Loop) error
}

// Termination decides when and how one agent turn ends. Finish may set the
// loop's running state (PAUSED when the agent waits for a notification,
// TERMINATED otherwise).
type Termination struct {
	Name   string
	When   func(l *Loop) bool
	Finish func(ctx context.Context, l *Loop) (*Result, error)
}

// NotificationStep drains due messages from the router into the log: user
// messages become the agent's next task, environment notifications become
// notification entries, stop messages request cooperative cancellation.
func NotificationStep(router *notify.Router) Step {
	return Step{
		Name: "drain_notifications",
		Run: func(_ context.Context, l *Loop) error {
			for _, msg := range router.GetByTimestamp(l.clock.Now()) {
				switch msg.Type {
				case types.MessageUser:
					l.book.Append(&logbook.TaskEntry{
						Meta:        logbook.NewMeta(l.agentID, msg.Time),
						Content:     msg.Content,
						Attachments: msg.Attachments,
					})
					l.setTask(msg.Content, msg.Attachments)
				case types.MessageNotification:
					l.book.Append(&logbook.NotificationEntry{
						Meta:        logbook.NewMeta(l.agentID, msg.Time),
						Content:     msg.Content,
						Attachments: msg.Attachments,
					})
				case types.MessageStop:
					l.RequestStop(msg.Content)
				}
			}
			return nil
		},
	}
}

// ReminderStep polls the reminder source for due reminders.
func ReminderStep(router *notify.Router) Step {
	return Step{
		Name: "poll_reminders",
		Run: func(_ context.Context, l *Loop) error {
			router.HandleTimeBasedNotifications()
			return nil
		},
	}
}

// TimeoutStep fires the wait-for-notification timeout when it elapses with
// nothing else queued. Runs as a post-step, after the tick's other events.
func TimeoutStep(router *notify.Router) Step {
	return Step{
		Name: "wait_timeout",
		Run: func(_ context.Context, l *Loop) error {
			router.HandleTimeoutAfterEvents()
			return nil
		},
	}
}

// TerminalActionTermination ends the turn once a terminal tool ran: waiting
// pauses the agent (arming the router timeout), everything else terminates
// it.
func TerminalActionTermination() Termination {
	return Termination{
		Name: "terminal_action",
		When: func(l *Loop) bool {
			return l.lastOutcome != nil && l.lastOutcome.Terminal
		},
		Finish: func(_ context.Context, l *Loop) (*Result, error) {
			state := types.StateTerminated
			if l.lastOutcome.ToolName == tools.ToolWaitForNotification {
				state = types.StatePaused
				if l.router != nil && l.waitTimeout > 0 {
					l.router.ArmWaitTimeout(l.waitTimeout)
				}
			}
			l.setState(state)
			return l.result(nil), nil
		},
	}
}

// MaxIterationsTermination ends the turn when the iteration budget runs
// out. Budget exhaustion is graceful termination: the result carries a
// MaxIterationsError but the run ends TERMINATED, not FAILED.
func MaxIterationsTermination() Termination {
	return Termination{
		Name: "max_iterations",
		When: func(l *Loop) bool {
			return l.iteration >= l.maxIterations
		},
		Finish: func(_ context.Context, l *Loop) (*Result, error) {
			l.setState(types.StateTerminated)
			return l.result(&MaxIterationsError{Limit: l.maxIterations}), nil
		},
	}
}
