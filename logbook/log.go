package logbook

import "sync"

// Log is the append-only sequence of entries forming one agent's history.
// Appends and reads may come from different goroutines (the loop appends
// while a sink or store hook streams entries out).
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	onAppend []func(Entry)
}

func NewLog() *Log { return &Log{} }

// OnAppend registers a hook invoked for every appended entry, in order.
// Hooks run under the log lock and must not call back into the log.
func (l *Log) OnAppend(fn func(Entry)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onAppend = append(l.onAppend, fn)
}

func (l *Log) Append(entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		if e == nil {
			continue
		}
		l.entries = append(l.entries, e)
		for _, fn := range l.onAppend {
			fn(e)
		}
	}
}

// Replace swaps the whole history, used by replay. Hooks do not fire for
// replaced entries; they were already persisted when first appended.
func (l *Log) Replace(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]Entry, len(entries))
	copy(l.entries, entries)
}

// Entries returns a copy of the history.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Last returns the most recent entry of the given type.
func (l *Log) Last(t EntryType) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Type() == t {
			return l.entries[i], true
		}
	}
	return nil, false
}

// MaxIteration returns the highest iteration recorded in any step marker,
// or -1 when the log holds none.
func (l *Log) MaxIteration() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	max := -1
	for _, e := range l.entries {
		if step, ok := e.(*StepEntry); ok && step.Iteration > max {
			max = step.Iteration
		}
	}
	return max
}
