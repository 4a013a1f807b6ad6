package reminder

import (
	"testing"
	"time"
)

var anchor = time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

func TestOneShotFiresOnce(t *testing.T) {
	book := NewBook()
	r := book.Add("water the plants", anchor.Add(10*time.Minute))

	if due := book.Due(anchor); len(due) != 0 {
		t.Fatalf("due before fire time: %+v", due)
	}

	due := book.Due(anchor.Add(15 * time.Minute))
	if len(due) != 1 || due[0].ID != r.ID {
		t.Fatalf("due = %+v", due)
	}

	book.MarkNotified([]string{r.ID}, anchor.Add(15*time.Minute))
	if due := book.Due(anchor.Add(time.Hour)); len(due) != 0 {
		t.Fatalf("one-shot fired again: %+v", due)
	}
}

func TestDueSortedByFireTime(t *testing.T) {
	book := NewBook()
	book.Add("second", anchor.Add(2*time.Minute))
	book.Add("first", anchor.Add(time.Minute))

	due := book.Due(anchor.Add(5 * time.Minute))
	if len(due) != 2 {
		t.Fatalf("due = %d", len(due))
	}
	if due[0].Message != "first" || due[1].Message != "second" {
		t.Fatalf("order = %q, %q", due[0].Message, due[1].Message)
	}
}

func TestCronReminderAdvances(t *testing.T) {
	book := NewBook()
	// Daily at 09:30.
	r, err := book.AddCron("standup", "30 9 * * *", anchor)
	if err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	if want := anchor.Add(30 * time.Minute); !r.At.Equal(want) {
		t.Fatalf("first fire = %v, want %v", r.At, want)
	}

	fired := anchor.Add(31 * time.Minute)
	due := book.Due(fired)
	if len(due) != 1 {
		t.Fatalf("due = %+v", due)
	}
	book.MarkNotified([]string{r.ID}, fired)

	// Rescheduled to the next day, not silenced.
	next := book.List()[0]
	if want := anchor.Add(24*time.Hour + 30*time.Minute); !next.At.Equal(want) {
		t.Fatalf("next fire = %v, want %v", next.At, want)
	}
	if due := book.Due(fired.Add(time.Minute)); len(due) != 0 {
		t.Fatalf("recurring fired twice in one slot: %+v", due)
	}
}

func TestAddCronRejectsBadExpression(t *testing.T) {
	book := NewBook()
	if _, err := book.AddCron("broken", "not a cron", anchor); err == nil {
		t.Fatal("want error for invalid expression")
	}
}

func TestMarkNotifiedIdempotent(t *testing.T) {
	book := NewBook()
	r := book.Add("once", anchor)
	fired := anchor.Add(time.Minute)
	book.MarkNotified([]string{r.ID}, fired)
	book.MarkNotified([]string{r.ID, "ghost"}, fired.Add(time.Minute))
	if due := book.Due(fired.Add(time.Hour)); len(due) != 0 {
		t.Fatalf("due after double mark: %+v", due)
	}
}

func TestRemove(t *testing.T) {
	book := NewBook()
	r := book.Add("gone", anchor)
	if !book.Remove(r.ID) {
		t.Fatal("Remove returned false for existing reminder")
	}
	if book.Remove(r.ID) {
		t.Fatal("Remove returned true for missing reminder")
	}
	if len(book.List()) != 0 {
		t.Fatal("reminder still listed")
	}
}
