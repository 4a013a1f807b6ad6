package clock

import (
	"testing"
	"time"
)

// fakeWall is a manually advanced wall-time source.
type fakeWall struct {
	t time.Time
}

func (f *fakeWall) now() time.Time          { return f.t }
func (f *fakeWall) advance(d time.Duration) { f.t = f.t.Add(d) }

func newFake() (*Clock, *fakeWall) {
	w := &fakeWall{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(WithNowFunc(w.now)), w
}

func TestPauseFreezesAndResumeDiscardsWallTime(t *testing.T) {
	c, w := newFake()
	start := time.Date(2026, 6, 1, 0, 1, 40, 0, time.UTC) // T = 100s past midnight
	c.Reset(start)

	c.Pause()
	w.advance(3 * time.Second)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("paused Now() = %v, want frozen %v", got, start)
	}
	c.Resume()
	w.advance(2 * time.Second)

	want := start.Add(2 * time.Second)
	if got := c.Now(); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}

func TestAddOffsetDuringPauseDeferredUntilResume(t *testing.T) {
	c, w := newFake()
	start := w.t
	c.Reset(start)

	c.Pause()
	c.AddOffset(10 * time.Minute)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("offset leaked into paused Now(): %v", got)
	}
	w.advance(5 * time.Second)
	c.Resume()

	want := start.Add(10 * time.Minute)
	if got := c.Now(); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v after resume", got, want)
	}
}

func TestAddOffsetWhileRunning(t *testing.T) {
	c, w := newFake()
	start := w.t
	c.Reset(start)

	c.AddOffset(time.Hour)
	w.advance(time.Second)

	want := start.Add(time.Hour + time.Second)
	if got := c.Now(); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}

func TestPauseAndResumeAreIdempotent(t *testing.T) {
	c, w := newFake()
	start := w.t
	c.Reset(start)

	c.Resume() // no-op on a running clock
	c.Pause()
	snapshot := c.Now()
	c.Pause() // no-op on a paused clock
	w.advance(time.Minute)
	if got := c.Now(); !got.Equal(snapshot) {
		t.Errorf("double pause moved the clock: %v vs %v", got, snapshot)
	}
	c.Resume()
	c.Resume()
	if got := c.Now(); !got.Equal(snapshot) {
		t.Errorf("Now() = %v immediately after resume, want %v", got, snapshot)
	}
}

func TestSetTimeJumpsExactly(t *testing.T) {
	c, w := newFake()
	c.Reset(w.t)

	target := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	c.SetTime(target)
	if got := c.Now(); !got.Equal(target) {
		t.Errorf("Now() = %v, want %v", got, target)
	}

	// Backwards jumps work the same way.
	earlier := target.Add(-48 * time.Hour)
	c.SetTime(earlier)
	if got := c.Now(); !got.Equal(earlier) {
		t.Errorf("Now() = %v, want %v", got, earlier)
	}
}

func TestSetTimeWhilePausedLandsOnResume(t *testing.T) {
	c, w := newFake()
	start := w.t
	c.Reset(start)

	c.Pause()
	target := start.Add(30 * time.Minute)
	c.SetTime(target)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("paused SetTime visible early: %v", got)
	}
	c.Resume()
	if got := c.Now(); !got.Equal(target) {
		t.Errorf("Now() = %v, want %v after resume", got, target)
	}
}

func TestResetClearsPauseAndOffsets(t *testing.T) {
	c, w := newFake()
	c.Reset(w.t)
	c.AddOffset(time.Hour)
	c.Pause()

	fresh := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Reset(fresh)
	if c.Paused() {
		t.Error("reset left the clock paused")
	}
	if got := c.Now(); !got.Equal(fresh) {
		t.Errorf("Now() = %v, want %v", got, fresh)
	}
	if got := c.TimePassed(); got != 0 {
		t.Errorf("TimePassed() = %v after reset", got)
	}
}

func TestTimePassedTracksOffsets(t *testing.T) {
	c, w := newFake()
	c.Reset(w.t)

	w.advance(2 * time.Second)
	c.AddOffset(3 * time.Second)
	if got := c.TimePassed(); got != 5*time.Second {
		t.Errorf("TimePassed() = %v, want 5s", got)
	}
}
