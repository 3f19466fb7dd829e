// Package catchup detects schedules whose last due occurrence was
// missed (sleep, shutdown) and runs them once, with per-schedule error
// isolation.
package catchup

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shoma-dev/toolsched/internal/domain"
	"github.com/shoma-dev/toolsched/internal/guard"
	"github.com/shoma-dev/toolsched/internal/history"
	"github.com/shoma-dev/toolsched/internal/recurrence"
)

// ScheduleLister loads the registered schedules
type ScheduleLister interface {
	List() ([]*domain.Schedule, error)
}

// Launcher starts a schedule's tool and begins monitoring it in the
// background. The caller has already claimed the tool via the guard;
// the spawned monitor releases it when the execution ends.
type Launcher interface {
	Launch(sch *domain.Schedule) error
}

// Report summarizes one sweep
type Report struct {
	Checked int `json:"checked"`
	Missed  int `json:"missed"`
	Started int `json:"started"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Sweeper runs the missed-schedule detection. One sweep is launched at
// process start; a wake-from-sleep signal may re-run it, which is safe
// because a schedule whose catch-up already wrote history is no longer
// missed.
type Sweeper struct {
	store    ScheduleLister
	journal  *history.Log
	guard    *guard.Guard
	launcher Launcher
	log      zerolog.Logger

	now func() time.Time
}

func NewSweeper(store ScheduleLister, journal *history.Log, g *guard.Guard, launcher Launcher, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		journal:  journal,
		guard:    g,
		launcher: launcher,
		log:      log,
		now:      time.Now,
	}
}

// Run performs one sweep. Schedule-level failures are recorded in the
// journal and do not stop the sweep; only a failure to load the
// schedules or the journal index aborts.
func (s *Sweeper) Run() (Report, error) {
	var rep Report

	schedules, err := s.store.List()
	if err != nil {
		return rep, fmt.Errorf("loading schedules: %w", err)
	}
	latest, err := s.journal.LatestByID()
	if err != nil {
		return rep, fmt.Errorf("indexing history: %w", err)
	}

	now := s.now()
	for _, sch := range schedules {
		rep.Checked++
		due, ok := recurrence.LastDue(sch, now)
		if !ok {
			continue
		}
		last, seen := latest[sch.ID]
		if seen && !last.UTC().Before(due.UTC()) {
			continue
		}
		rep.Missed++
		s.log.Info().Str("schedule_id", sch.ID).Str("tool", string(sch.Tool)).
			Time("due", due).Msg("missed run detected")

		// best-effort marker; a failed write must not block the catch-up
		if err := s.journal.Append(sch.ID, sch.Tool, history.StatusWakeMissed); err != nil {
			s.log.Warn().Err(err).Str("schedule_id", sch.ID).Msg("history append failed")
		}

		switch s.runOne(sch) {
		case history.StatusCatchupSuccess:
			rep.Started++
		case history.StatusCatchupSkipped:
			rep.Skipped++
		default:
			rep.Failed++
		}
	}
	return rep, nil
}

// runOne executes the catch-up for a single schedule and returns the
// final status it journaled
func (s *Sweeper) runOne(sch *domain.Schedule) string {
	if err := s.guard.TryStart(sch.Tool); err != nil {
		if errors.Is(err, guard.ErrAlreadyRunning) {
			s.append(sch, history.StatusCatchupSkipped)
			return history.StatusCatchupSkipped
		}
		s.append(sch, history.StatusCatchupFailure)
		return history.StatusCatchupFailure
	}

	s.append(sch, history.StatusCatchupStarted)
	if err := s.launcher.Launch(sch); err != nil {
		s.log.Error().Err(err).Str("schedule_id", sch.ID).Msg("catch-up launch failed")
		s.guard.Finish(sch.Tool)
		s.append(sch, history.StatusCatchupFailure)
		return history.StatusCatchupFailure
	}
	s.append(sch, history.StatusCatchupSuccess)
	return history.StatusCatchupSuccess
}

func (s *Sweeper) append(sch *domain.Schedule, status string) {
	if err := s.journal.Append(sch.ID, sch.Tool, status); err != nil {
		s.log.Warn().Err(err).Str("schedule_id", sch.ID).Str("status", status).
			Msg("history append failed")
	}
}
