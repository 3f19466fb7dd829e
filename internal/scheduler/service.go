// Package scheduler is the transport-neutral command surface of the
// engine. The CLI and the web API both call into Service; it owns the
// schedule store, the history journal, the concurrency guard and the
// execution monitor.
package scheduler

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shoma-dev/toolsched/internal/config"
	"github.com/shoma-dev/toolsched/internal/domain"
	"github.com/shoma-dev/toolsched/internal/guard"
	"github.com/shoma-dev/toolsched/internal/history"
	"github.com/shoma-dev/toolsched/internal/monitor"
	"github.com/shoma-dev/toolsched/internal/runstore"
	"github.com/shoma-dev/toolsched/internal/schedstore"
	"github.com/shoma-dev/toolsched/internal/terminal"
)

// ScheduleResult is the structured outcome of a registration or
// execution call. Validation and state failures land here, not in the
// error return.
type ScheduleResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	ScheduleID string `json:"scheduleId,omitempty"`
}

// ScheduleInput carries the user-supplied fields of a schedule
type ScheduleInput struct {
	Tool            string `json:"tool" yaml:"tool"`
	ExecutionTime   string `json:"executionTime" yaml:"execution_time"`
	Type            string `json:"scheduleType" yaml:"schedule_type"`
	StartDate       string `json:"startDate,omitempty" yaml:"start_date"`
	IntervalDays    int    `json:"intervalDays,omitempty" yaml:"interval_days"`
	TargetDirectory string `json:"targetDirectory" yaml:"target_directory"`
	CommandArgs     string `json:"commandArgs" yaml:"command_args"`
	Title           string `json:"title,omitempty" yaml:"title"`
}

// Service wires the engine's pieces together
type Service struct {
	cfg      *config.Config
	store    *schedstore.Store
	journal  *history.Log
	guard    *guard.Guard
	runs     *runstore.Store
	term     terminal.Terminal
	observer monitor.Observer
	log      zerolog.Logger

	monOpts []monitor.Option
	now     func() time.Time
}

// Option adjusts a Service
type Option func(*Service)

// WithRunStore enables run-record persistence
func WithRunStore(rs *runstore.Store) Option {
	return func(s *Service) { s.runs = rs }
}

// WithObserver sets the monitor progress observer
func WithObserver(o monitor.Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithMonitorOptions appends options applied to every monitor run,
// used by tests to inject a synthetic clock
func WithMonitorOptions(opts ...monitor.Option) Option {
	return func(s *Service) { s.monOpts = append(s.monOpts, opts...) }
}

// WithClock injects the service clock for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg *config.Config, store *schedstore.Store, journal *history.Log, g *guard.Guard, term terminal.Terminal, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		store:    store,
		journal:  journal,
		guard:    g,
		term:     term,
		observer: monitor.NopObserver{},
		log:      log,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RegisterSchedule validates and persists a new schedule
func (s *Service) RegisterSchedule(in ScheduleInput) ScheduleResult {
	sch, err := s.buildSchedule(in, domain.NewScheduleID(s.now()), s.now())
	if err != nil {
		return failure(err)
	}
	if err := s.store.Save(&sch, s.cfg.Tools.For(sch.Tool).Options); err != nil {
		return failure(fmt.Errorf("saving schedule: %w", err))
	}
	s.log.Info().Str("schedule_id", sch.ID).Str("tool", string(sch.Tool)).Msg("schedule registered")
	return ScheduleResult{Success: true, Message: "schedule registered", ScheduleID: sch.ID}
}

// UpdateSchedule replaces an existing schedule's fields, keeping its
// identity and creation time
func (s *Service) UpdateSchedule(id string, in ScheduleInput) ScheduleResult {
	existing, err := s.store.Get(id)
	if err != nil {
		return failure(err)
	}
	sch, err := s.buildSchedule(in, existing.ID, existing.CreatedAt)
	if err != nil {
		return failure(err)
	}
	if sch.Tool != existing.Tool {
		// the file name embeds the tool, so a tool change moves the file
		if err := s.store.Delete(existing.Tool, existing.ID); err != nil {
			return failure(fmt.Errorf("replacing schedule: %w", err))
		}
	}
	if err := s.store.Save(&sch, s.cfg.Tools.For(sch.Tool).Options); err != nil {
		return failure(fmt.Errorf("saving schedule: %w", err))
	}
	s.log.Info().Str("schedule_id", sch.ID).Msg("schedule updated")
	return ScheduleResult{Success: true, Message: "schedule updated", ScheduleID: sch.ID}
}

// UnregisterSchedule removes a schedule
func (s *Service) UnregisterSchedule(tool domain.Tool, id string) ScheduleResult {
	if err := s.store.Delete(tool, id); err != nil {
		return failure(err)
	}
	s.log.Info().Str("schedule_id", id).Msg("schedule unregistered")
	return ScheduleResult{Success: true, Message: "schedule unregistered", ScheduleID: id}
}

// ListSchedules returns all registered schedules
func (s *Service) ListSchedules() ([]*domain.Schedule, error) {
	return s.store.List()
}

// ListHistory returns the schedule's last 10 journal entries, most
// recent first
func (s *Service) ListHistory(scheduleID string) ([]history.Entry, error) {
	return s.journal.Recent(scheduleID, 10)
}

// RunningStatus reports which tools currently have an active execution
func (s *Service) RunningStatus() map[domain.Tool]bool {
	return s.guard.Status()
}

// Stop requests cooperative cancellation of the tool's execution.
// Stopping an idle tool is a no-op success.
func (s *Service) Stop(tool domain.Tool) ScheduleResult {
	s.guard.RequestStop(tool)
	s.log.Info().Str("tool", string(tool)).Msg("stop requested")
	return ScheduleResult{Success: true, Message: "stop requested"}
}

// Launch starts the schedule's tool without waiting for the monitor to
// finish. The caller must hold the tool's guard claim; the spawned
// monitor releases it. Implements the catch-up sweep's launcher.
func (s *Service) Launch(sch *domain.Schedule) error {
	return s.launch(sch, runstore.OriginCatchup)
}

// ExecuteScheduled runs a schedule at its due time: claims the tool,
// journals the start and launches with background monitoring
func (s *Service) ExecuteScheduled(sch *domain.Schedule) ScheduleResult {
	if err := s.guard.TryStart(sch.Tool); err != nil {
		return failure(err)
	}
	if err := s.journal.Append(sch.ID, sch.Tool, history.StatusStarted); err != nil {
		s.log.Warn().Err(err).Msg("history append failed")
	}
	if err := s.launch(sch, runstore.OriginScheduled); err != nil {
		s.guard.Finish(sch.Tool)
		return failure(err)
	}
	return ScheduleResult{Success: true, Message: "execution started", ScheduleID: sch.ID}
}

// ExecuteNow waits until the given time of day (immediately when
// empty), launches the tool and monitors it to completion. The wait
// checks for cancellation once per second.
func (s *Service) ExecuteNow(in ScheduleInput) ScheduleResult {
	wait := in.ExecutionTime != ""
	if !wait {
		in.ExecutionTime = s.now().Format("15:04")
	}
	sch, err := s.buildSchedule(in, domain.NewScheduleID(s.now()), s.now())
	if err != nil {
		return failure(err)
	}
	tool := sch.Tool

	if err := s.guard.TryStart(tool); err != nil {
		return failure(err)
	}

	if wait {
		if res, ok := s.waitUntil(tool, sch.ExecutionTime); !ok {
			return res
		}
	}

	if err := s.journal.Append(sch.ID, tool, history.StatusStarted); err != nil {
		s.log.Warn().Err(err).Msg("history append failed")
	}

	runID := s.recordRunStart(&sch, runstore.OriginManual)
	if err := s.launchTool(&sch); err != nil {
		s.guard.Finish(tool)
		s.finishRun(runID, monitor.PhaseError, 0, err.Error())
		return failure(err)
	}

	res := s.newMonitor().Run(tool, sch.ID, s.cfg.Tools.For(tool).AutoRetry)
	msg := res.Phase.String()
	if res.Phase == monitor.PhaseCompleted {
		msg = history.CompletedStatus(res.Elapsed)
	}
	if res.Err != nil {
		msg = res.Err.Error()
	}
	s.finishRun(runID, res.Phase, res.Elapsed, msg)
	return ScheduleResult{
		Success:    res.Phase == monitor.PhaseCompleted,
		Message:    msg,
		ScheduleID: sch.ID,
	}
}

// waitUntil blocks until the next occurrence of the "HH:MM" local time,
// polling the cancel flag each second. ok=false means cancelled or
// invalid input; the tool's claim has been released.
func (s *Service) waitUntil(tool domain.Tool, executionTime string) (ScheduleResult, bool) {
	hour, minute, err := domain.ParseExecutionTime(executionTime)
	if err != nil {
		s.guard.Finish(tool)
		return failure(err), false
	}
	now := s.now()
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	for s.now().Before(target) {
		if s.guard.CancelRequested(tool) {
			s.guard.Finish(tool)
			return ScheduleResult{Success: false, Message: "cancelled while waiting"}, false
		}
		time.Sleep(time.Second)
	}
	return ScheduleResult{}, true
}

// launch starts the tool and monitors it in the background
func (s *Service) launch(sch *domain.Schedule, origin string) error {
	if err := s.launchTool(sch); err != nil {
		return err
	}
	runID := s.recordRunStart(sch, origin)
	go func() {
		res := s.newMonitor().Run(sch.Tool, sch.ID, s.cfg.Tools.For(sch.Tool).AutoRetry)
		msg := res.Phase.String()
		if res.Err != nil {
			msg = res.Err.Error()
		}
		s.finishRun(runID, res.Phase, res.Elapsed, msg)
	}()
	return nil
}

// launchTool verifies the target directory and opens the tool's window
func (s *Service) launchTool(sch *domain.Schedule) error {
	if _, err := os.Stat(sch.TargetDirectory); err != nil {
		return &domain.NotFoundError{Message: fmt.Sprintf("target directory %s does not exist", sch.TargetDirectory)}
	}
	options := s.cfg.Tools.For(sch.Tool).Options
	if err := s.term.Launch(sch.Tool, sch.TargetDirectory, options, sch.CommandArgs); err != nil {
		return err
	}
	return nil
}

func (s *Service) newMonitor() *monitor.Monitor {
	opts := []monitor.Option{
		monitor.WithInterval(s.cfg.Monitor.PollInterval()),
		monitor.WithMarkers(s.cfg.Monitor.ActivityMarker, s.cfg.Monitor.RateLimitMarkers),
		monitor.WithResumeCue(s.cfg.Monitor.ResumeCue),
		monitor.WithObserver(s.observer),
	}
	opts = append(opts, s.monOpts...)
	return monitor.New(s.term, s.guard, s.journal, s.log, opts...)
}

func (s *Service) recordRunStart(sch *domain.Schedule, origin string) string {
	if s.runs == nil {
		return ""
	}
	id := uuid.New().String()
	err := s.runs.Create(&runstore.Run{
		ID:         id,
		ScheduleID: sch.ID,
		Tool:       sch.Tool,
		Origin:     origin,
		Phase:      monitor.PhaseRunning.String(),
		StartedAt:  s.now(),
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("run record create failed")
		return ""
	}
	return id
}

func (s *Service) finishRun(runID string, phase monitor.Phase, elapsed time.Duration, message string) {
	if s.runs == nil || runID == "" {
		return
	}
	if err := s.runs.Finish(runID, phase.String(), s.now(), elapsed, message); err != nil {
		s.log.Warn().Err(err).Msg("run record update failed")
	}
}

func (s *Service) buildSchedule(in ScheduleInput, id string, createdAt time.Time) (domain.Schedule, error) {
	tool, err := domain.ParseTool(in.Tool)
	if err != nil {
		return domain.Schedule{}, err
	}
	schedType := domain.ScheduleType(in.Type)
	if in.Type == "" {
		schedType = domain.ScheduleDaily
	}
	sch := domain.Schedule{
		ID:              id,
		Tool:            tool,
		ExecutionTime:   in.ExecutionTime,
		Type:            schedType,
		StartDate:       in.StartDate,
		IntervalDays:    in.IntervalDays,
		TargetDirectory: in.TargetDirectory,
		CommandArgs:     in.CommandArgs,
		Title:           in.Title,
		CreatedAt:       createdAt,
	}
	if err := sch.Validate(); err != nil {
		return domain.Schedule{}, err
	}
	if _, err := os.Stat(sch.TargetDirectory); err != nil {
		return domain.Schedule{}, &domain.NotFoundError{Message: fmt.Sprintf("target directory %s does not exist", sch.TargetDirectory)}
	}
	return sch, nil
}

// failure converts an error into a structured failure result
func failure(err error) ScheduleResult {
	var verr *domain.ValidationError
	var nferr *domain.NotFoundError
	switch {
	case errors.As(err, &verr):
		return ScheduleResult{Success: false, Message: verr.Message}
	case errors.As(err, &nferr):
		return ScheduleResult{Success: false, Message: nferr.Message}
	case errors.Is(err, guard.ErrAlreadyRunning):
		return ScheduleResult{Success: false, Message: "tool is already running"}
	default:
		return ScheduleResult{Success: false, Message: err.Error()}
	}
}
