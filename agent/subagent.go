package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/chronosim/chronosim/logbook"
	"github.com/chronosim/chronosim/model"
	"github.com/chronosim/chronosim/tools"
	"github.com/chronosim/chronosim/types"
)

// SubAgent describes a delegated worker. It shares the parent's clock and
// router so time and notifications stay consistent, but owns its log,
// registry, and prompt.
type SubAgent struct {
	Name         string
	SystemPrompt string
	Provider     model.Provider
	Registry     *tools.Registry
	Options      []Option
}

// RunSubAgent runs a delegated task to completion. The parent's log gains a
// single subagent entry whose children are the child's full log, nested so
// the combined transcript replays as one tree.
func (l *Loop) RunSubAgent(ctx context.Context, sub SubAgent, task string, atts ...types.Attachment) (*Result, error) {
	if sub.Provider == nil {
		sub.Provider = l.provider
	}
	if sub.Name == "" {
		sub.Name = "subagent"
	}

	group := &logbook.SubagentEntry{
		Meta: logbook.NewMeta(l.agentID, l.clock.Now()),
		Name: sub.Name,
	}
	l.book.Append(group)

	childBook := logbook.NewLog()
	childBook.OnAppend(func(e logbook.Entry) {
		group.AddChildren(e)
	})

	opts := []Option{
		WithClock(l.clock),
		WithRouter(l.router),
		WithLogbook(childBook),
		WithSink(l.sink),
		WithAgentID(fmt.Sprintf("%s/%s-%s", l.agentID, sub.Name, uuid.NewString()[:8])),
		WithSystemPrompt(sub.SystemPrompt),
		WithMaxIterations(l.maxIterations),
		WithFormatRetries(l.formatRetries),
		WithSimulatedGeneration(l.simGen),
	}
	if sub.Registry != nil {
		opts = append(opts, WithRegistry(sub.Registry))
	}
	opts = append(opts, sub.Options...)

	child, err := New(sub.Provider, opts...)
	if err != nil {
		return nil, err
	}
	return child.Run(ctx, task, atts...)
}
