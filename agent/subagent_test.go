package agent

import (
	"context"
	"testing"

	"github.com/chronosim/chronosim/logbook"
	"github.com/chronosim/chronosim/types"
)

func TestRunSubAgentFoldsChildLogIntoParent(t *testing.T) {
	parentProvider := &scriptedProvider{outputs: []string{replyAction}}
	parent, err := New(parentProvider, WithRegistry(replyRegistry(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	childProvider := &scriptedProvider{outputs: []string{replyAction}}
	res, err := parent.RunSubAgent(context.Background(), SubAgent{
		Name:     "researcher",
		Provider: childProvider,
		Registry: replyRegistry(t),
	}, "look this up")
	if err != nil {
		t.Fatalf("RunSubAgent: %v", err)
	}
	if res.State != types.StateTerminated {
		t.Fatalf("child state = %s", res.State)
	}
	if res.FinalAnswer != "done" {
		t.Fatalf("child answer = %q", res.FinalAnswer)
	}

	group, ok := parent.Logbook().Last(logbook.TypeSubagent)
	if !ok {
		t.Fatal("parent log has no subagent entry")
	}
	entry := group.(*logbook.SubagentEntry)
	if entry.Name != "researcher" {
		t.Fatalf("name = %q", entry.Name)
	}
	if len(entry.Children) == 0 {
		t.Fatal("child entries not folded into the parent log")
	}

	var sawTask, sawFinal bool
	for _, child := range entry.Children {
		switch child.Type() {
		case logbook.TypeTask:
			sawTask = true
		case logbook.TypeFinalAnswer:
			sawFinal = true
		}
	}
	if !sawTask || !sawFinal {
		t.Fatalf("children missing task/final entries (task=%v final=%v)", sawTask, sawFinal)
	}

	// The parent's own history is untouched beyond the group entry.
	if parent.Logbook().Len() != 1 {
		t.Fatalf("parent log len = %d, want just the subagent group", parent.Logbook().Len())
	}
}
