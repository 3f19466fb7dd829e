package daemon

import (
	"testing"
	"time"

	"github.com/shoma-dev/toolsched/internal/domain"
)

func TestCronSpec(t *testing.T) {
	tests := []struct {
		name string
		sch  *domain.Schedule
		want string
	}{
		{
			name: "daily",
			sch:  &domain.Schedule{Type: domain.ScheduleDaily, ExecutionTime: "09:30"},
			want: "30 9 * * *",
		},
		{
			// 2026-01-05 is a Monday
			name: "weekly on start weekday",
			sch:  &domain.Schedule{Type: domain.ScheduleWeekly, ExecutionTime: "07:00", StartDate: "2026-01-05"},
			want: "0 7 * * 1",
		},
		{
			name: "interval gets a daily slot",
			sch:  &domain.Schedule{Type: domain.ScheduleInterval, ExecutionTime: "23:15", StartDate: "2026-01-01", IntervalDays: 3},
			want: "15 23 * * *",
		},
		{
			name: "once gets a daily slot",
			sch:  &domain.Schedule{Type: domain.ScheduleOnce, ExecutionTime: "12:00", StartDate: "2026-06-01"},
			want: "0 12 * * *",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cronSpec(tt.sch)
			if err != nil {
				t.Fatalf("cronSpec() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("cronSpec() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCronSpecErrors(t *testing.T) {
	if _, err := cronSpec(&domain.Schedule{Type: domain.ScheduleDaily, ExecutionTime: "9am"}); err == nil {
		t.Error("cronSpec() with bad time: want error, got nil")
	}
	if _, err := cronSpec(&domain.Schedule{Type: domain.ScheduleWeekly, ExecutionTime: "09:00", StartDate: "soon"}); err == nil {
		t.Error("cronSpec() with bad start date: want error, got nil")
	}
}

func TestDueToday(t *testing.T) {
	// a Thursday
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.Local)

	tests := []struct {
		name string
		sch  *domain.Schedule
		want bool
	}{
		{
			name: "daily always due",
			sch:  &domain.Schedule{Type: domain.ScheduleDaily, ExecutionTime: "10:00"},
			want: true,
		},
		{
			name: "weekly always due on its cron day",
			sch:  &domain.Schedule{Type: domain.ScheduleWeekly, ExecutionTime: "10:00", StartDate: "2026-02-26"},
			want: true,
		},
		{
			name: "interval due on cycle day",
			sch:  &domain.Schedule{Type: domain.ScheduleInterval, ExecutionTime: "10:00", StartDate: "2026-03-02", IntervalDays: 3},
			want: true,
		},
		{
			name: "interval off-cycle day",
			sch:  &domain.Schedule{Type: domain.ScheduleInterval, ExecutionTime: "10:00", StartDate: "2026-03-03", IntervalDays: 3},
			want: false,
		},
		{
			name: "once due on its day",
			sch:  &domain.Schedule{Type: domain.ScheduleOnce, ExecutionTime: "10:00", StartDate: "2026-03-05"},
			want: true,
		},
		{
			name: "once in the future",
			sch:  &domain.Schedule{Type: domain.ScheduleOnce, ExecutionTime: "10:00", StartDate: "2026-03-06"},
			want: false,
		},
		{
			name: "once already past",
			sch:  &domain.Schedule{Type: domain.ScheduleOnce, ExecutionTime: "10:00", StartDate: "2026-03-01"},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dueToday(tt.sch, now); got != tt.want {
				t.Errorf("dueToday() = %v, want %v", got, tt.want)
			}
		})
	}
}
