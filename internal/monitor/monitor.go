// Package monitor babysits a running CLI tool by polling its visible
// terminal output, debouncing completion and rate-limit verdicts and
// optionally retrying after a rate limit.
package monitor

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shoma-dev/toolsched/internal/domain"
	"github.com/shoma-dev/toolsched/internal/guard"
	"github.com/shoma-dev/toolsched/internal/history"
	"github.com/shoma-dev/toolsched/internal/terminal"
)

// Observer receives progress events from a monitor run. Every poll's
// raw snapshot is forwarded regardless of state.
type Observer interface {
	Snapshot(tool domain.Tool, output string)
	PhaseChange(tool domain.Tool, phase Phase)
	RetryCountdown(tool domain.Tool, remaining time.Duration)
}

// MultiObserver fans events out to several observers
type MultiObserver []Observer

func (m MultiObserver) Snapshot(tool domain.Tool, output string) {
	for _, o := range m {
		o.Snapshot(tool, output)
	}
}

func (m MultiObserver) PhaseChange(tool domain.Tool, phase Phase) {
	for _, o := range m {
		o.PhaseChange(tool, phase)
	}
}

func (m MultiObserver) RetryCountdown(tool domain.Tool, remaining time.Duration) {
	for _, o := range m {
		o.RetryCountdown(tool, remaining)
	}
}

// NopObserver discards all events
type NopObserver struct{}

func (NopObserver) Snapshot(domain.Tool, string)              {}
func (NopObserver) PhaseChange(domain.Tool, Phase)            {}
func (NopObserver) RetryCountdown(domain.Tool, time.Duration) {}

// Result is the outcome of one monitored execution
type Result struct {
	Phase   Phase
	Elapsed time.Duration
	Err     error
}

// Monitor polls one tool at a fixed cadence until a terminal phase is
// reached. The zero value is not usable; use New.
type Monitor struct {
	term     terminal.Terminal
	guard    *guard.Guard
	journal  *history.Log
	observer Observer
	log      zerolog.Logger

	interval         time.Duration
	activityMarker   string
	rateLimitMarkers []string
	resumeCue        string

	// injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// Option adjusts a Monitor
type Option func(*Monitor)

// WithInterval overrides the poll cadence (default one minute)
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithMarkers overrides the output markers used to derive activity and
// rate-limit state from a snapshot
func WithMarkers(activity string, rateLimit []string) Option {
	return func(m *Monitor) {
		if activity != "" {
			m.activityMarker = activity
		}
		if len(rateLimit) > 0 {
			m.rateLimitMarkers = rateLimit
		}
	}
}

// WithResumeCue overrides the text sent to the tool when resuming after
// a rate-limit wait
func WithResumeCue(cue string) Option {
	return func(m *Monitor) {
		if cue != "" {
			m.resumeCue = cue
		}
	}
}

// WithObserver sets the progress observer
func WithObserver(o Observer) Option {
	return func(m *Monitor) { m.observer = o }
}

// WithClock injects a synthetic clock for tests
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(m *Monitor) {
		m.now = now
		m.sleep = sleep
	}
}

func New(term terminal.Terminal, g *guard.Guard, journal *history.Log, log zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		term:             term,
		guard:            g,
		journal:          journal,
		observer:         NopObserver{},
		log:              log,
		interval:         time.Minute,
		activityMarker:   "esc to interrupt",
		rateLimitMarkers: []string{"rate limit", "usage limit"},
		resumeCue:        "continue",
		now:              time.Now,
		sleep:            time.Sleep,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run polls the tool until it completes, errors, gets cancelled or
// (with autoRetry off) hits a rate limit. The caller must have claimed
// the tool via the guard's TryStart; Run releases it on every exit
// path.
func (m *Monitor) Run(tool domain.Tool, scheduleID string, autoRetry bool) Result {
	defer m.guard.Finish(tool)

	start := m.now()
	state := State{Phase: PhaseStarting}
	m.log.Info().Str("tool", string(tool)).Str("schedule_id", scheduleID).
		Bool("auto_retry", autoRetry).Msg("monitor started")

	for {
		if m.guard.CancelRequested(tool) {
			return m.cancelled(tool, scheduleID)
		}

		snap, err := m.term.Snapshot(tool)
		if err != nil {
			m.log.Error().Err(err).Str("tool", string(tool)).Msg("snapshot failed")
			m.observer.PhaseChange(tool, PhaseError)
			return Result{Phase: PhaseError, Err: err}
		}
		m.observer.Snapshot(tool, snap)

		state = Reduce(state, m.classify(snap), m.interval)

		switch state.Phase {
		case PhaseCompleted:
			elapsed := state.CompletedAt.Sub(start)
			if err := m.journal.Append(scheduleID, tool, history.CompletedStatus(elapsed)); err != nil {
				m.log.Warn().Err(err).Msg("history append failed")
			}
			m.log.Info().Str("tool", string(tool)).Dur("elapsed", elapsed).Msg("execution completed")
			m.observer.PhaseChange(tool, PhaseCompleted)
			return Result{Phase: PhaseCompleted, Elapsed: elapsed}

		case PhaseRateLimited:
			if err := m.journal.Append(scheduleID, tool, history.StatusRateLimitDetected); err != nil {
				m.log.Warn().Err(err).Msg("history append failed")
			}
			m.observer.PhaseChange(tool, PhaseRateLimited)
			if !autoRetry {
				m.log.Info().Str("tool", string(tool)).Msg("rate limited, auto-retry off")
				return Result{Phase: PhaseRateLimited}
			}
			res, resumed := m.waitForRetry(tool, scheduleID)
			if !resumed {
				return res
			}
			state = state.resumed()
			continue
		}

		m.sleep(m.interval)
	}
}

func (m *Monitor) cancelled(tool domain.Tool, scheduleID string) Result {
	if err := m.journal.Append(scheduleID, tool, history.StatusCancelled); err != nil {
		m.log.Warn().Err(err).Msg("history append failed")
	}
	m.log.Info().Str("tool", string(tool)).Msg("monitor cancelled")
	m.observer.PhaseChange(tool, PhaseCancelled)
	return Result{Phase: PhaseCancelled}
}

// waitForRetry blocks until the next retry instant, checking for
// cancellation every minute. It returns resumed=true after sending the
// resume cue, or resumed=false with the terminal result.
func (m *Monitor) waitForRetry(tool domain.Tool, scheduleID string) (Result, bool) {
	retry := NextRetryInstant(m.now())
	m.log.Info().Str("tool", string(tool)).Time("retry_at", retry).Msg("waiting for rate limit to clear")
	m.observer.PhaseChange(tool, PhaseWaiting)

	for {
		now := m.now()
		remaining := retry.Sub(now)
		if remaining <= 0 {
			break
		}
		if m.guard.CancelRequested(tool) {
			return m.cancelled(tool, scheduleID), false
		}
		m.observer.RetryCountdown(tool, remaining)
		if remaining > time.Minute {
			remaining = time.Minute
		}
		m.sleep(remaining)
	}

	if m.guard.CancelRequested(tool) {
		return m.cancelled(tool, scheduleID), false
	}
	if err := m.term.SendText(tool, m.resumeCue); err != nil {
		m.log.Error().Err(err).Str("tool", string(tool)).Msg("resume cue failed")
		m.observer.PhaseChange(tool, PhaseError)
		return Result{Phase: PhaseError, Err: err}, false
	}
	m.log.Info().Str("tool", string(tool)).Msg("resumed after rate limit")
	m.observer.PhaseChange(tool, PhaseRunning)
	return Result{}, true
}

func (m *Monitor) classify(snapshot string) Poll {
	lower := strings.ToLower(snapshot)
	p := Poll{
		At:     m.now(),
		Active: strings.Contains(lower, strings.ToLower(m.activityMarker)),
	}
	for _, marker := range m.rateLimitMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			p.RateLimited = true
			break
		}
	}
	return p
}

// NextRetryInstant is the next top-of-hour plus one minute strictly
// after now. At exactly HH:00 that is HH:01 of the same hour, otherwise
// the next hour's :01.
func NextRetryInstant(now time.Time) time.Time {
	if now.Minute() == 0 && now.Second() == 0 && now.Nanosecond() == 0 {
		return now.Add(time.Minute)
	}
	top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	return top.Add(time.Hour + time.Minute)
}
