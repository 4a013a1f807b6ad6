// Package reminder is the time-based notification source: one-shot and
// recurring reminders evaluated against virtual clock time. The router polls
// it each tick and batches due reminders into a single notification.
package reminder

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

type Reminder struct {
	ID         string    `json:"id"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
	Expr       string    `json:"expr,omitempty"`
	Recurring  bool      `json:"recurring,omitempty"`
	NotifiedAt time.Time `json:"notified_at,omitempty"`
}

// Source is what the notification router polls.
type Source interface {
	// Due returns reminders whose fire time has arrived and which have not
	// been notified yet, sorted by fire time.
	Due(now time.Time) []Reminder
	// MarkNotified records that the given reminders fired. One-shot
	// reminders never fire again; recurring ones advance to the next
	// schedule occurrence after firedAt.
	MarkNotified(ids []string, firedAt time.Time)
}

// Book is the in-memory Source implementation.
type Book struct {
	mu        sync.Mutex
	reminders map[string]*Reminder
	schedules map[string]cron.Schedule
}

func NewBook() *Book {
	return &Book{
		reminders: make(map[string]*Reminder),
		schedules: make(map[string]cron.Schedule),
	}
}

// Add registers a one-shot reminder firing at the given virtual instant.
func (b *Book) Add(message string, at time.Time) Reminder {
	r := &Reminder{ID: uuid.NewString(), Message: message, At: at}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reminders[r.ID] = r
	return *r
}

// AddCron registers a recurring reminder on a standard five-field cron
// expression. The first fire is the next occurrence after from.
func (b *Book) AddCron(message, expr string, from time.Time) (Reminder, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return Reminder{}, fmt.Errorf("reminder: invalid cron expression %q: %w", expr, err)
	}
	r := &Reminder{
		ID:        uuid.NewString(),
		Message:   message,
		Expr:      expr,
		Recurring: true,
		At:        schedule.Next(from),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reminders[r.ID] = r
	b.schedules[r.ID] = schedule
	return *r, nil
}

// Remove deletes a reminder by ID.
func (b *Book) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.reminders[id]; !ok {
		return false
	}
	delete(b.reminders, id)
	delete(b.schedules, id)
	return true
}

// List returns all reminders sorted by fire time.
func (b *Book) List() []Reminder {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Reminder, 0, len(b.reminders))
	for _, r := range b.reminders {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func (b *Book) Due(now time.Time) []Reminder {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Reminder
	for _, r := range b.reminders {
		if r.At.After(now) {
			continue
		}
		if !r.Recurring && !r.NotifiedAt.IsZero() {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func (b *Book) MarkNotified(ids []string, firedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		r, ok := b.reminders[id]
		if !ok {
			continue
		}
		r.NotifiedAt = firedAt
		if r.Recurring {
			if schedule, ok := b.schedules[id]; ok {
				r.At = schedule.Next(firedAt)
			}
		}
	}
}
