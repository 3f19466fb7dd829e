package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tool identifies one of the supported external CLI tools
type Tool string

const (
	ToolClaude Tool = "claude"
	ToolCodex  Tool = "codex"
	ToolGemini Tool = "gemini"
)

// Tools returns all supported tools in stable order
func Tools() []Tool {
	return []Tool{ToolClaude, ToolCodex, ToolGemini}
}

// ParseTool validates a tool name
func ParseTool(s string) (Tool, error) {
	switch Tool(s) {
	case ToolClaude, ToolCodex, ToolGemini:
		return Tool(s), nil
	}
	return "", &ValidationError{Message: fmt.Sprintf("unknown tool %q (supported: claude, codex, gemini)", s)}
}

// ScheduleType represents the recurrence kind of a schedule
type ScheduleType string

const (
	ScheduleDaily    ScheduleType = "daily"
	ScheduleWeekly   ScheduleType = "weekly"
	ScheduleInterval ScheduleType = "interval"
	ScheduleOnce     ScheduleType = "once"
)

// DateFormat is the calendar-date layout used for StartDate
const DateFormat = "2006-01-02"

// Schedule is a user-defined recurring or one-shot invocation of a tool
type Schedule struct {
	ID              string
	Tool            Tool
	ExecutionTime   string // "HH:MM", local time of day
	Type            ScheduleType
	StartDate       string // "YYYY-MM-DD"; required for weekly/interval/once
	IntervalDays    int    // required >= 1 for interval
	TargetDirectory string
	CommandArgs     string
	Title           string
	CreatedAt       time.Time
}

// ParseExecutionTime parses an "HH:MM" 24h time-of-day string
func ParseExecutionTime(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, &ValidationError{Message: fmt.Sprintf("invalid execution time %q, expected HH:MM", s)}
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, &ValidationError{Message: fmt.Sprintf("invalid hour in %q, must be 0-23", s)}
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, &ValidationError{Message: fmt.Sprintf("invalid minute in %q, must be 0-59", s)}
	}
	return hour, minute, nil
}

// Validate checks the schedule's cross-field invariants
func (s *Schedule) Validate() error {
	if _, err := ParseTool(string(s.Tool)); err != nil {
		return err
	}
	if _, _, err := ParseExecutionTime(s.ExecutionTime); err != nil {
		return err
	}
	if strings.TrimSpace(s.CommandArgs) == "" {
		return &ValidationError{Message: "command args must not be empty"}
	}
	switch s.Type {
	case ScheduleDaily:
		// no extra fields
	case ScheduleWeekly:
		if s.StartDate == "" {
			return &ValidationError{Message: "weekly schedule requires a start date (it fixes the day of week)"}
		}
		if _, err := time.Parse(DateFormat, s.StartDate); err != nil {
			return &ValidationError{Message: fmt.Sprintf("invalid start date %q, expected YYYY-MM-DD", s.StartDate)}
		}
	case ScheduleInterval:
		if s.StartDate == "" || s.IntervalDays < 1 {
			return &ValidationError{Message: "interval schedule requires a start date and an interval of at least 1 day"}
		}
		if _, err := time.Parse(DateFormat, s.StartDate); err != nil {
			return &ValidationError{Message: fmt.Sprintf("invalid start date %q, expected YYYY-MM-DD", s.StartDate)}
		}
	case ScheduleOnce:
		if s.StartDate == "" {
			return &ValidationError{Message: "one-shot schedule requires a target date"}
		}
		if _, err := time.Parse(DateFormat, s.StartDate); err != nil {
			return &ValidationError{Message: fmt.Sprintf("invalid start date %q, expected YYYY-MM-DD", s.StartDate)}
		}
	default:
		return &ValidationError{Message: fmt.Sprintf("unknown schedule type %q", s.Type)}
	}
	return nil
}

// NewScheduleID derives a unique, time-ordered schedule ID from the given instant
func NewScheduleID(now time.Time) string {
	return fmt.Sprintf("%s%03d", now.Format("20060102150405"), now.Nanosecond()/1e6)
}
