package monitor

import (
	"testing"
	"time"
)

func applyPolls(t0 time.Time, interval time.Duration, polls []Poll) State {
	s := State{Phase: PhaseStarting}
	for i, p := range polls {
		p.At = t0.Add(time.Duration(i) * interval)
		s = Reduce(s, p, interval)
		if s.Phase == PhaseCompleted || s.Phase == PhaseRateLimited {
			return s
		}
	}
	return s
}

func gone() Poll   { return Poll{} }
func active() Poll { return Poll{Active: true} }
func rated() Poll  { return Poll{RateLimited: true} }

func TestReduceCompletionDebounce(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := State{Phase: PhaseStarting}
	polls := []Poll{active(), active(), gone(), gone(), gone()}
	for i, p := range polls {
		p.At = t0.Add(time.Duration(i) * time.Minute)
		s = Reduce(s, p, time.Minute)
		if i < 4 && s.Phase == PhaseCompleted {
			t.Fatalf("completed at poll %d, want poll 4", i)
		}
	}
	if s.Phase != PhaseCompleted {
		t.Fatalf("Phase = %v, want completed", s.Phase)
	}
	// third gone poll is at t0+4m; back-dated three intervals
	want := t0.Add(time.Minute)
	if !s.CompletedAt.Equal(want) {
		t.Errorf("CompletedAt = %v, want %v", s.CompletedAt, want)
	}
}

func TestReduceActivityResetsAbsentCount(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	polls := []Poll{active(), gone(), gone(), active(), gone(), gone()}
	s := applyPolls(t0, time.Minute, polls)
	if s.Phase == PhaseCompleted {
		t.Fatal("completed despite the intervening active poll")
	}
	s = Reduce(s, Poll{At: t0.Add(6 * time.Minute)}, time.Minute)
	if s.Phase != PhaseCompleted {
		t.Errorf("Phase = %v, want completed after third consecutive absence", s.Phase)
	}
}

func TestReduceNoCompletionBeforeActivitySeen(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := applyPolls(t0, time.Minute, []Poll{gone(), gone(), gone(), gone(), gone()})
	if s.Phase != PhaseRunning {
		t.Errorf("Phase = %v, want running (activity never seen)", s.Phase)
	}
}

func TestReduceRateLimitDebounce(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := applyPolls(t0, time.Minute, []Poll{rated(), rated()})
	if s.Phase == PhaseRateLimited {
		t.Fatal("rate limited after two polls, want three")
	}
	s = Reduce(s, rated(), time.Minute)
	if s.Phase != PhaseRateLimited {
		t.Errorf("Phase = %v, want rate-limited", s.Phase)
	}
}

func TestReduceRateLimitCounterResets(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := applyPolls(t0, time.Minute, []Poll{rated(), rated(), active(), rated(), rated()})
	if s.Phase == PhaseRateLimited {
		t.Error("rate limited despite the intervening clean poll")
	}
}

func TestResumedClearsCounters(t *testing.T) {
	s := State{Phase: PhaseRateLimited, rateCount: 3, absentCount: 2, seenActive: true}
	s = s.resumed()
	if s.Phase != PhaseRunning || s.rateCount != 0 || s.absentCount != 0 || s.seenActive {
		t.Errorf("resumed() = %+v, want clean running state", s)
	}
}

func TestNextRetryInstant(t *testing.T) {
	tests := []struct {
		now, want time.Time
	}{
		{
			time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 1, 14, 1, 0, 0, time.UTC),
		},
		{
			time.Date(2024, 3, 1, 14, 0, 30, 0, time.UTC),
			time.Date(2024, 3, 1, 15, 1, 0, 0, time.UTC),
		},
		{
			time.Date(2024, 3, 1, 14, 37, 12, 0, time.UTC),
			time.Date(2024, 3, 1, 15, 1, 0, 0, time.UTC),
		},
		{
			time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC),
			time.Date(2024, 3, 2, 0, 1, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		if got := NextRetryInstant(tt.now); !got.Equal(tt.want) {
			t.Errorf("NextRetryInstant(%v) = %v, want %v", tt.now, got, tt.want)
		}
	}
}
