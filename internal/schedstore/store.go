// Package schedstore persists schedule definitions as launchd-compatible
// plist files, one file per schedule, under the config directory.
//
// The plist is the source of truth for a schedule: trigger time and weekday
// live in StartCalendarInterval, everything else rides in
// EnvironmentVariables so the run script and this process read the same
// record. Files are replaced atomically and malformed files are skipped on
// load.
package schedstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shoma-dev/toolsched/internal/domain"
)

const labelPrefix = "com.toolsched"

// Store reads and writes schedule plist files in a directory
type Store struct {
	dir       string
	logDir    string
	scriptDir string
}

// New creates a Store rooted at dir. Log and script paths recorded in the
// plists are derived from logDir and scriptDir.
func New(dir, logDir, scriptDir string) *Store {
	return &Store{dir: dir, logDir: logDir, scriptDir: scriptDir}
}

// Dir returns the directory holding the plist files
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(tool domain.Tool, id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.%s.%s.plist", labelPrefix, tool, id))
}

// Save writes the schedule's plist, replacing any existing file with the
// same id atomically. toolOptions are the default launch options recorded
// for the run script.
func (s *Store) Save(sch *domain.Schedule, toolOptions string) error {
	if err := sch.Validate(); err != nil {
		return err
	}
	hour, minute, err := domain.ParseExecutionTime(sch.ExecutionTime)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating schedules dir: %w", err)
	}

	d := plistDict{}
	d.set("Label", fmt.Sprintf("%s.%s.%s", labelPrefix, sch.Tool, sch.ID))

	cal := plistDict{}
	cal.set("Hour", hour)
	cal.set("Minute", minute)
	if sch.Type == domain.ScheduleWeekly {
		if start, err := time.Parse(domain.DateFormat, sch.StartDate); err == nil {
			cal.set("Weekday", int(start.Weekday()))
		}
	}
	d.set("StartCalendarInterval", cal)

	script := filepath.Join(s.scriptDir, fmt.Sprintf("run-%s.sh", sch.Tool))
	d.set("ProgramArguments", []string{"/bin/bash", script})

	env := plistDict{}
	env.set("TOOL", string(sch.Tool))
	env.set("TARGET_DIRECTORY", sch.TargetDirectory)
	env.set(strings.ToUpper(string(sch.Tool))+"_COMMAND", sch.CommandArgs)
	env.set(strings.ToUpper(string(sch.Tool))+"_OPTIONS", toolOptions)
	env.set("AUTO_RETRY", "false")
	env.set("SCHEDULE_ID", sch.ID)
	env.set("SCHEDULE_TYPE", string(sch.Type))
	env.set("SCHEDULE_TITLE", sch.Title)
	if sch.IntervalDays > 0 {
		env.set("SCHEDULE_INTERVAL_DAYS", strconv.Itoa(sch.IntervalDays))
	}
	if sch.StartDate != "" {
		env.set("SCHEDULE_START_DATE", sch.StartDate)
	}
	if !sch.CreatedAt.IsZero() {
		env.set("SCHEDULE_CREATED_AT", sch.CreatedAt.UTC().Format(time.RFC3339))
	}
	d.set("EnvironmentVariables", env)

	d.set("StandardOutPath", filepath.Join(s.logDir, fmt.Sprintf("%s.log", sch.Tool)))
	d.set("StandardErrorPath", filepath.Join(s.logDir, fmt.Sprintf("%s.error.log", sch.Tool)))

	data := marshalPlist(d)

	// atomic replace: readers either see the old record or the new one
	tmp, err := os.CreateTemp(s.dir, ".plist-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path(sch.Tool, sch.ID))
}

// Get loads one schedule by id
func (s *Store) Get(id string) (*domain.Schedule, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, sch := range all {
		if sch.ID == id {
			return sch, nil
		}
	}
	return nil, &domain.NotFoundError{Message: fmt.Sprintf("schedule %s not found", id)}
}

// Delete removes a schedule's plist. Missing files report NotFoundError.
func (s *Store) Delete(tool domain.Tool, id string) error {
	path := s.path(tool, id)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return &domain.NotFoundError{Message: fmt.Sprintf("schedule %s not found for %s", id, tool)}
		}
		return err
	}
	return nil
}

// List loads every parseable schedule in the directory, sorted by id.
// Malformed files are skipped rather than failing the whole load.
func (s *Store) List() ([]*domain.Schedule, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, labelPrefix+".*.plist"))
	if err != nil {
		return nil, err
	}

	var schedules []*domain.Schedule
	for _, path := range matches {
		sch, err := loadPlist(path)
		if err != nil {
			continue
		}
		schedules = append(schedules, sch)
	}
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].ID < schedules[j].ID })
	return schedules, nil
}

func loadPlist(path string) (*domain.Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := unmarshalPlist(data)
	if err != nil {
		return nil, err
	}

	cal, ok := d.dict("StartCalendarInterval")
	if !ok {
		return nil, fmt.Errorf("%s: missing StartCalendarInterval", path)
	}
	hour, okH := cal.integer("Hour")
	minute, okM := cal.integer("Minute")
	if !okH || !okM {
		return nil, fmt.Errorf("%s: missing trigger time", path)
	}

	env, ok := d.dict("EnvironmentVariables")
	if !ok {
		return nil, fmt.Errorf("%s: missing EnvironmentVariables", path)
	}

	toolName, _ := env.str("TOOL")
	tool, err := domain.ParseTool(toolName)
	if err != nil {
		return nil, err
	}

	sch := &domain.Schedule{
		ID:              envStr(env, "SCHEDULE_ID"),
		Tool:            tool,
		ExecutionTime:   fmt.Sprintf("%02d:%02d", hour, minute),
		Type:            domain.ScheduleType(envOr(env, "SCHEDULE_TYPE", string(domain.ScheduleDaily))),
		StartDate:       envStr(env, "SCHEDULE_START_DATE"),
		TargetDirectory: envStr(env, "TARGET_DIRECTORY"),
		CommandArgs:     envStr(env, strings.ToUpper(toolName)+"_COMMAND"),
		Title:           envStr(env, "SCHEDULE_TITLE"),
	}
	if v := envStr(env, "SCHEDULE_INTERVAL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			sch.IntervalDays = n
		}
	}
	if v := envStr(env, "SCHEDULE_CREATED_AT"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			sch.CreatedAt = ts
		}
	}
	if sch.ID == "" {
		return nil, fmt.Errorf("%s: missing schedule id", path)
	}
	return sch, nil
}

func envStr(d plistDict, key string) string {
	v, _ := d.str(key)
	return v
}

func envOr(d plistDict, key, def string) string {
	if v, ok := d.str(key); ok && v != "" {
		return v
	}
	return def
}
