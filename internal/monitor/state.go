package monitor

import "time"

// Phase is the monitor's position in its lifecycle. Completed,
// Cancelled and Error are terminal; RateLimited is terminal only when
// auto-retry is off.
type Phase int

const (
	PhaseStarting Phase = iota
	PhaseRunning
	PhaseRateLimited
	PhaseWaiting
	PhaseCompleted
	PhaseCancelled
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseRateLimited:
		return "rate-limited"
	case PhaseWaiting:
		return "waiting"
	case PhaseCompleted:
		return "completed"
	case PhaseCancelled:
		return "cancelled"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// debounce polls required before a completion or rate-limit verdict
const debouncePolls = 3

// Poll is one observation of the tool's visible output
type Poll struct {
	At          time.Time
	Active      bool
	RateLimited bool
}

// State carries the debounce counters between polls
type State struct {
	Phase       Phase
	seenActive  bool
	absentCount int
	rateCount   int

	// CompletedAt is the back-dated completion instant, set when Phase
	// becomes PhaseCompleted.
	CompletedAt time.Time
}

// Reduce applies one poll to the state. It is pure: no I/O, no real
// time, which keeps the debounce logic testable with scripted polls.
func Reduce(s State, p Poll, interval time.Duration) State {
	if s.Phase == PhaseStarting {
		s.Phase = PhaseRunning
	}

	if p.RateLimited {
		s.rateCount++
	} else {
		s.rateCount = 0
	}
	if s.rateCount >= debouncePolls {
		s.Phase = PhaseRateLimited
		return s
	}

	if p.Active {
		s.seenActive = true
		s.absentCount = 0
		return s
	}
	if s.seenActive {
		s.absentCount++
	}
	if s.absentCount >= debouncePolls && !p.RateLimited {
		s.Phase = PhaseCompleted
		// The streak began two polls before this one; detection lags
		// reality by up to one cadence, so back-date one more interval.
		s.CompletedAt = p.At.Add(-time.Duration(debouncePolls) * interval)
	}
	return s
}

// resumed resets the counters after a rate-limit retry so the next
// verdict needs a fresh streak
func (s State) resumed() State {
	s.Phase = PhaseRunning
	s.rateCount = 0
	s.absentCount = 0
	s.seenActive = false
	return s
}
