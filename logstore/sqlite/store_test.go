package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/chronosim/chronosim/logbook"
	"github.com/chronosim/chronosim/logstore"
	"github.com/chronosim/chronosim/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndLoadRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &logstore.Run{
		ID:          "run-1",
		AgentID:     "agent-1",
		Task:        "sort the inbox",
		State:       types.StateRunning,
		Iterations:  2,
		FinalAnswer: "",
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	// Upsert on the same ID.
	run.State = types.StateTerminated
	run.FinalAnswer = "inbox sorted"
	run.Iterations = 5
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun upsert: %v", err)
	}

	loaded, err := store.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if loaded.State != types.StateTerminated || loaded.FinalAnswer != "inbox sorted" || loaded.Iterations != 5 {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestLoadMissingRun(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.LoadRun(context.Background(), "ghost"); !errors.Is(err, logstore.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-a", "run-b", "run-c"} {
		if err := store.SaveRun(ctx, &logstore.Run{ID: id, State: types.StatePaused}); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want limit respected", len(runs))
	}
	if runs[0].ID != "run-c" {
		t.Fatalf("first = %s, want the most recent", runs[0].ID)
	}
}

func TestEntriesRoundTripWithSubagent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	group := &logbook.SubagentEntry{Meta: logbook.NewMeta("a1", at), Name: "worker"}
	group.AddChildren(
		&logbook.TaskEntry{Meta: logbook.NewMeta("a1/worker", at), Content: "delegated"},
		&logbook.FinalAnswerEntry{Meta: logbook.NewMeta("a1/worker", at), Content: "done"},
	)
	entries := []logbook.Entry{
		&logbook.TaskEntry{Meta: logbook.NewMeta("a1", at), Content: "delegate this"},
		group,
		&logbook.StepEntry{Meta: logbook.NewMeta("a1", at), Iteration: 0},
	}

	if err := store.SaveRun(ctx, &logstore.Run{ID: "run-1", State: types.StateRunning}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := store.AppendEntries(ctx, "run-1", entries[:2]...); err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}
	// A second batch continues the sequence.
	if err := store.AppendEntries(ctx, "run-1", entries[2]); err != nil {
		t.Fatalf("AppendEntries second batch: %v", err)
	}

	loaded, err := store.LoadEntries(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if diff := cmp.Diff(entries, loaded); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEntriesEmptyRun(t *testing.T) {
	store := newTestStore(t)
	entries, err := store.LoadEntries(context.Background(), "run-x")
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %d", len(entries))
	}
}
