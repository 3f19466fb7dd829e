// Package daemon runs the engine as a long-lived process: it fires
// registered schedules at their due times, re-sweeps for missed runs
// periodically and reloads when the schedules directory changes.
package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/shoma-dev/toolsched/internal/catchup"
	"github.com/shoma-dev/toolsched/internal/domain"
	"github.com/shoma-dev/toolsched/internal/recurrence"
	"github.com/shoma-dev/toolsched/internal/schedstore"
	"github.com/shoma-dev/toolsched/internal/scheduler"
)

// resweepEvery bounds how stale the missed-run detection can get while
// the process stays up (covers sleep/wake without a wake signal)
const resweepEvery = 15 * time.Minute

// debounce for schedules-directory change bursts
const reloadDebounce = 500 * time.Millisecond

// Daemon owns the cron runner and the schedules-directory watcher
type Daemon struct {
	store   *schedstore.Store
	svc     *scheduler.Service
	sweeper *catchup.Sweeper
	log     zerolog.Logger

	cron    *cron.Cron
	entries []cron.EntryID
	mu      sync.Mutex

	now func() time.Time
}

func New(store *schedstore.Store, svc *scheduler.Service, sweeper *catchup.Sweeper, log zerolog.Logger) *Daemon {
	return &Daemon{
		store:   store,
		svc:     svc,
		sweeper: sweeper,
		log:     log,
		cron:    cron.New(),
		now:     time.Now,
	}
}

// Run blocks until ctx is cancelled. It sweeps once at start, fires
// schedules via cron and reloads on directory changes.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.reload(); err != nil {
		return err
	}
	d.cron.Start()
	defer d.cron.Stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if report, err := d.sweeper.Run(); err != nil {
			d.log.Error().Err(err).Msg("startup sweep failed")
		} else {
			d.log.Info().Interface("report", report).Msg("startup sweep finished")
		}
		return nil
	})

	g.Go(func() error { return d.resweepLoop(ctx) })
	g.Go(func() error { return d.watchSchedules(ctx) })

	return g.Wait()
}

// resweepLoop periodically re-runs the missed-run detection. Re-running
// when nothing is newly missed is a no-op.
func (d *Daemon) resweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(resweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.sweeper.Run(); err != nil {
				d.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// watchSchedules reloads the cron entries when plist files change
func (d *Daemon) watchSchedules(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(d.store.Dir()); err != nil {
		return fmt.Errorf("watching schedules dir: %w", err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".plist") {
				continue
			}
			// coalesce bursts of writes into one reload
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.log.Warn().Err(err).Msg("watcher error")

		case <-timerC:
			timer = nil
			timerC = nil
			if err := d.reload(); err != nil {
				d.log.Error().Err(err).Msg("schedule reload failed")
			}
		}
	}
}

// reload replaces the cron entries with the current schedule set
func (d *Daemon) reload() error {
	schedules, err := d.store.List()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.entries {
		d.cron.Remove(id)
	}
	d.entries = d.entries[:0]

	for _, sch := range schedules {
		sch := sch
		spec, err := cronSpec(sch)
		if err != nil {
			d.log.Warn().Str("schedule_id", sch.ID).Err(err).Msg("skipping schedule")
			continue
		}
		id, err := d.cron.AddFunc(spec, func() { d.fire(sch) })
		if err != nil {
			d.log.Warn().Str("schedule_id", sch.ID).Err(err).Msg("cron registration failed")
			continue
		}
		d.entries = append(d.entries, id)
	}
	d.log.Info().Int("schedules", len(d.entries)).Msg("schedules loaded")
	return nil
}

// fire runs a schedule if it is actually due today. Daily and weekly
// entries always are; interval and once entries share a daily cron slot
// and are gated on the recurrence calculation.
func (d *Daemon) fire(sch *domain.Schedule) {
	if !dueToday(sch, d.now()) {
		return
	}
	res := d.svc.ExecuteScheduled(sch)
	if !res.Success {
		d.log.Warn().Str("schedule_id", sch.ID).Str("reason", res.Message).Msg("scheduled execution not started")
		return
	}
	d.log.Info().Str("schedule_id", sch.ID).Str("tool", string(sch.Tool)).Msg("scheduled execution started")
}

// cronSpec maps a schedule onto a five-field cron expression. Interval
// and once schedules get a daily slot; fire gates them.
func cronSpec(sch *domain.Schedule) (string, error) {
	hour, minute, err := domain.ParseExecutionTime(sch.ExecutionTime)
	if err != nil {
		return "", err
	}
	if sch.Type == domain.ScheduleWeekly {
		start, err := time.Parse(domain.DateFormat, sch.StartDate)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * %d", minute, hour, int(start.Weekday())), nil
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// dueToday reports whether the schedule's last due occurrence falls on
// now's calendar day
func dueToday(sch *domain.Schedule, now time.Time) bool {
	switch sch.Type {
	case domain.ScheduleDaily, domain.ScheduleWeekly:
		return true
	}
	due, ok := recurrence.LastDue(sch, now)
	if !ok {
		return false
	}
	y1, m1, d1 := due.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// SchedulesDir is a convenience for logging the watched path
func (d *Daemon) SchedulesDir() string {
	return filepath.Clean(d.store.Dir())
}
