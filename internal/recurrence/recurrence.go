// Package recurrence derives the most recent due occurrence of a schedule.
//
// All functions are pure: given a schedule definition and an instant they
// return the last occurrence at or before that instant, with no I/O and no
// reliance on the real clock.
package recurrence

import (
	"time"

	"github.com/shoma-dev/toolsched/internal/domain"
)

// LastDue returns the most recent instant at or before now at which the
// schedule was due. The second return is false when the schedule has no due
// occurrence yet (future one-shot, interval cycle not started) or when its
// definition is malformed (bad time or date fields make it never due).
func LastDue(s *domain.Schedule, now time.Time) (time.Time, bool) {
	hour, minute, err := domain.ParseExecutionTime(s.ExecutionTime)
	if err != nil {
		return time.Time{}, false
	}

	loc := now.Location()
	year, month, day := now.Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, loc)

	switch s.Type {
	case domain.ScheduleDaily:
		candidate, ok := atTime(today, hour, minute, loc)
		if !ok || candidate.After(now) {
			candidate, ok = atTime(today.AddDate(0, 0, -1), hour, minute, loc)
			if !ok {
				return time.Time{}, false
			}
		}
		return candidate, true

	case domain.ScheduleWeekly:
		start, err := time.ParseInLocation(domain.DateFormat, s.StartDate, loc)
		if err != nil {
			return time.Time{}, false
		}
		daysBack := (7 + int(today.Weekday()) - int(start.Weekday())) % 7
		date := today.AddDate(0, 0, -daysBack)
		candidate, ok := atTime(date, hour, minute, loc)
		if !ok || candidate.After(now) {
			candidate, ok = atTime(date.AddDate(0, 0, -7), hour, minute, loc)
			if !ok {
				return time.Time{}, false
			}
		}
		return candidate, true

	case domain.ScheduleInterval:
		start, err := time.ParseInLocation(domain.DateFormat, s.StartDate, loc)
		if err != nil || s.IntervalDays < 1 {
			return time.Time{}, false
		}
		daysSince := civilDaysBetween(start, today)
		if daysSince < 0 {
			return time.Time{}, false
		}
		interval := s.IntervalDays
		lastOffset := daysSince - daysSince%interval
		candidate, ok := atTime(start.AddDate(0, 0, lastOffset), hour, minute, loc)
		if !ok || candidate.After(now) {
			if lastOffset < interval {
				return time.Time{}, false
			}
			lastOffset -= interval
			candidate, ok = atTime(start.AddDate(0, 0, lastOffset), hour, minute, loc)
			if !ok {
				return time.Time{}, false
			}
		}
		return candidate, true

	case domain.ScheduleOnce:
		date, err := time.ParseInLocation(domain.DateFormat, s.StartDate, loc)
		if err != nil {
			return time.Time{}, false
		}
		candidate, ok := atTime(date, hour, minute, loc)
		if !ok || candidate.After(now) {
			return time.Time{}, false
		}
		return candidate, true
	}

	return time.Time{}, false
}

// atTime resolves a naive date+time in the date's location. An ambiguous wall
// time (clock rolled back, two instants share it) resolves to the earlier
// instant; a nonexistent wall time (spring-forward gap) reports ok=false.
func atTime(date time.Time, hour, minute int, loc *time.Location) (time.Time, bool) {
	year, month, day := date.Date()
	t := time.Date(year, month, day, hour, minute, 0, 0, loc)
	if t.Hour() != hour || t.Minute() != minute || t.Day() != day {
		return time.Time{}, false
	}
	alt := t.Add(-time.Hour)
	ay, am, ad := alt.Date()
	if ay == year && am == month && ad == day && alt.Hour() == hour && alt.Minute() == minute {
		return alt, true
	}
	return t, true
}

// civilDaysBetween counts calendar days from a to b, ignoring DST-induced
// day lengths
func civilDaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	au := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bu := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au) / (24 * time.Hour))
}
