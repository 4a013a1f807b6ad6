package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chronosim/chronosim/logbook"
	"github.com/chronosim/chronosim/logstore"
	"github.com/chronosim/chronosim/types"
)

// Tests need a reachable Redis; set CHRONOSIM_TEST_REDIS_ADDR to enable.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("CHRONOSIM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHRONOSIM_TEST_REDIS_ADDR not set")
	}
	store, err := New(addr,
		WithPrefix(fmt.Sprintf("chrsim-test-%s", uuid.NewString()[:8])),
		WithTTL(time.Minute),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &logstore.Run{
		ID:         "run-1",
		AgentID:    "agent-1",
		Task:       "water the plants",
		State:      types.StateRunning,
		Iterations: 1,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	loaded, err := store.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if loaded.Task != run.Task || loaded.State != run.State {
		t.Fatalf("loaded = %+v", loaded)
	}

	if _, err := store.LoadRun(ctx, "ghost"); !errors.Is(err, logstore.ErrNotFound) {
		t.Fatalf("missing run err = %v", err)
	}
}

func TestEntriesAppendAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	if err := store.AppendEntries(ctx, "run-1",
		&logbook.TaskEntry{Meta: logbook.NewMeta("a1", at), Content: "first"},
		&logbook.StepEntry{Meta: logbook.NewMeta("a1", at), Iteration: 0},
	); err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}

	entries, err := store.LoadEntries(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if task, ok := entries[0].(*logbook.TaskEntry); !ok || task.Content != "first" {
		t.Fatalf("first entry = %+v", entries[0])
	}
}

func TestListRunsOrderedByUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-a", "run-b"} {
		if err := store.SaveRun(ctx, &logstore.Run{ID: id, State: types.StatePaused}); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
		time.Sleep(1100 * time.Millisecond) // zset score has second resolution
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-b" {
		t.Fatalf("runs = %+v", runs)
	}
}
