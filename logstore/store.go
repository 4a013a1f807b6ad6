// Package logstore persists agent runs and their log entries, and serves as
// the replay source for resuming paused agents.
package logstore

import (
	"context"
	"errors"
	"time"

	"github.com/chronosim/chronosim/logbook"
	"github.com/chronosim/chronosim/types"
)

var ErrNotFound = errors.New("logstore: not found")

// Run is the persisted header of one agent run; the entries live beside it
// in insertion order.
type Run struct {
	ID          string             `json:"id"`
	AgentID     string             `json:"agent_id"`
	Task        string             `json:"task"`
	State       types.RunningState `json:"state"`
	FinalAnswer string             `json:"final_answer,omitempty"`
	Iterations  int                `json:"iterations"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type Store interface {
	// SaveRun upserts the run header.
	SaveRun(ctx context.Context, run *Run) error
	LoadRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// AppendEntries persists entries in order; sequence numbers are assigned
	// by the store.
	AppendEntries(ctx context.Context, runID string, entries ...logbook.Entry) error
	// LoadEntries returns the run's full history in append order.
	LoadEntries(ctx context.Context, runID string) ([]logbook.Entry, error)

	Close() error
}
