package monitor

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shoma-dev/toolsched/internal/domain"
	"github.com/shoma-dev/toolsched/internal/guard"
	"github.com/shoma-dev/toolsched/internal/history"
)

// fakeTerminal replays a scripted sequence of snapshots and records
// sent text. After the script is exhausted it keeps returning the last
// snapshot.
type fakeTerminal struct {
	mu        sync.Mutex
	snapshots []string
	idx       int
	sent      []string
}

func (f *fakeTerminal) Launch(domain.Tool, string, string, string) error { return nil }

func (f *fakeTerminal) Snapshot(domain.Tool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.snapshots) {
		return f.snapshots[len(f.snapshots)-1], nil
	}
	s := f.snapshots[f.idx]
	f.idx++
	return s, nil
}

func (f *fakeTerminal) SendText(_ domain.Tool, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

// fakeClock advances on sleep so a monitor run finishes instantly
type fakeClock struct {
	now     time.Time
	onSleep func(n int)
	sleeps  int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	c.sleeps++
	if c.onSleep != nil {
		c.onSleep(c.sleeps)
	}
}

func newTestMonitor(t *testing.T, term *fakeTerminal, g *guard.Guard, clock *fakeClock) (*Monitor, *history.Log) {
	t.Helper()
	journal := history.New(filepath.Join(t.TempDir(), "schedule-history.jsonl"))
	m := New(term, g, journal, zerolog.Nop(),
		WithInterval(time.Minute),
		WithClock(clock.Now, clock.Sleep),
	)
	return m, journal
}

func TestRunCompletes(t *testing.T) {
	term := &fakeTerminal{snapshots: []string{
		"thinking... esc to interrupt",
		"thinking... esc to interrupt",
		"$ ",
		"$ ",
		"$ ",
	}}
	g := guard.New()
	if err := g.TryStart(domain.ToolClaude); err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	m, journal := newTestMonitor(t, term, g, clock)

	res := m.Run(domain.ToolClaude, "sched-1", false)
	if res.Phase != PhaseCompleted {
		t.Fatalf("Phase = %v, want completed", res.Phase)
	}
	if res.Elapsed != time.Minute {
		t.Errorf("Elapsed = %v, want 1m (back-dated)", res.Elapsed)
	}
	if g.Status()[domain.ToolClaude] {
		t.Error("tool still marked running after completion")
	}

	entries, err := journal.Recent("sched-1", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Status != "completed_in_1m0s" {
		t.Errorf("journal = %+v, want one completed_in_1m0s entry", entries)
	}
}

func TestRunRateLimitedTerminalWithoutAutoRetry(t *testing.T) {
	term := &fakeTerminal{snapshots: []string{
		"Rate limit reached",
		"Rate limit reached",
		"Rate limit reached",
	}}
	g := guard.New()
	if err := g.TryStart(domain.ToolCodex); err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 7, 0, 0, time.UTC)}
	m, journal := newTestMonitor(t, term, g, clock)

	res := m.Run(domain.ToolCodex, "sched-2", false)
	if res.Phase != PhaseRateLimited {
		t.Fatalf("Phase = %v, want rate-limited", res.Phase)
	}
	entries, err := journal.Recent("sched-2", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Status != history.StatusRateLimitDetected {
		t.Errorf("journal = %+v, want one rate-limit-detected entry", entries)
	}
	if len(term.sent) != 0 {
		t.Errorf("resume cue sent with auto-retry off: %v", term.sent)
	}
}

func TestRunRateLimitedResumesWithAutoRetry(t *testing.T) {
	term := &fakeTerminal{snapshots: []string{
		"usage limit reached",
		"usage limit reached",
		"usage limit reached",
		"working... esc to interrupt",
		"$ ",
		"$ ",
		"$ ",
	}}
	g := guard.New()
	if err := g.TryStart(domain.ToolClaude); err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 7, 0, 0, time.UTC)}
	m, journal := newTestMonitor(t, term, g, clock)

	res := m.Run(domain.ToolClaude, "sched-3", true)
	if res.Phase != PhaseCompleted {
		t.Fatalf("Phase = %v, want completed after resume", res.Phase)
	}
	if len(term.sent) != 1 || term.sent[0] != "continue" {
		t.Errorf("sent = %v, want one resume cue", term.sent)
	}
	entries, err := journal.Recent("sched-3", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("journal = %+v, want rate-limit-detected then completed", entries)
	}
	if entries[1].Status != history.StatusRateLimitDetected {
		t.Errorf("oldest status = %q, want rate-limit-detected", entries[1].Status)
	}
}

func TestRunCancelledDuringRateLimitWait(t *testing.T) {
	term := &fakeTerminal{snapshots: []string{
		"rate limit reached",
	}}
	g := guard.New()
	if err := g.TryStart(domain.ToolGemini); err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 7, 0, 0, time.UTC)}
	clock.onSleep = func(n int) {
		// stop request arrives while the retry wait is sleeping
		if n == 4 {
			g.RequestStop(domain.ToolGemini)
		}
	}
	m, journal := newTestMonitor(t, term, g, clock)

	res := m.Run(domain.ToolGemini, "sched-4", true)
	if res.Phase != PhaseCancelled {
		t.Fatalf("Phase = %v, want cancelled", res.Phase)
	}
	if g.Status()[domain.ToolGemini] {
		t.Error("tool still marked running after cancellation")
	}
	entries, err := journal.Recent("sched-4", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) == 0 || entries[0].Status != history.StatusCancelled {
		t.Errorf("journal = %+v, want cancelled as newest entry", entries)
	}
}

func TestRunCancelledBeforeFirstPoll(t *testing.T) {
	term := &fakeTerminal{snapshots: []string{"anything"}}
	g := guard.New()
	if err := g.TryStart(domain.ToolClaude); err != nil {
		t.Fatalf("TryStart() error = %v", err)
	}
	g.RequestStop(domain.ToolClaude)
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	m, _ := newTestMonitor(t, term, g, clock)

	if res := m.Run(domain.ToolClaude, "sched-5", false); res.Phase != PhaseCancelled {
		t.Errorf("Phase = %v, want cancelled", res.Phase)
	}
	if term.idx != 0 {
		t.Error("snapshot taken after cancellation was already requested")
	}
}
