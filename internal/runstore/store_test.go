package runstore

import (
	"testing"
	"time"

	"github.com/shoma-dev/toolsched/internal/domain"
)

func TestStore_CreateAndGet(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	run := &Run{
		ID:         "run-1",
		ScheduleID: "20240315093045123",
		Tool:       domain.ToolClaude,
		Origin:     OriginManual,
		Phase:      "running",
		StartedAt:  time.Now(),
	}
	if err := store.Create(run); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ScheduleID != run.ScheduleID {
		t.Errorf("ScheduleID = %q, want %q", got.ScheduleID, run.ScheduleID)
	}
	if got.Tool != domain.ToolClaude {
		t.Errorf("Tool = %q, want claude", got.Tool)
	}
	if got.Origin != OriginManual {
		t.Errorf("Origin = %q, want manual", got.Origin)
	}
}

func TestStore_Finish(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	started := time.Now().Add(-5 * time.Minute)
	if err := store.Create(&Run{ID: "run-1", ScheduleID: "s1", Tool: domain.ToolCodex, Origin: OriginCatchup, Phase: "running", StartedAt: started}); err != nil {
		t.Fatal(err)
	}

	if err := store.Finish("run-1", "completed", time.Now(), 4*time.Minute, "completed_in_4m0s"); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Phase != "completed" {
		t.Errorf("Phase = %q, want completed", got.Phase)
	}
	if got.ElapsedSeconds != 240 {
		t.Errorf("ElapsedSeconds = %d, want 240", got.ElapsedSeconds)
	}
	if got.FinishedAt.IsZero() {
		t.Error("FinishedAt not set")
	}
}

func TestStore_ListFilters(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	runs := []*Run{
		{ID: "a", ScheduleID: "s1", Tool: domain.ToolClaude, Origin: OriginScheduled, Phase: "completed", StartedAt: base},
		{ID: "b", ScheduleID: "s1", Tool: domain.ToolClaude, Origin: OriginCatchup, Phase: "error", StartedAt: base.Add(time.Hour)},
		{ID: "c", ScheduleID: "s2", Tool: domain.ToolGemini, Origin: OriginManual, Phase: "completed", StartedAt: base.Add(2 * time.Hour)},
	}
	for _, r := range runs {
		if err := store.Create(r); err != nil {
			t.Fatal(err)
		}
	}

	bySchedule, err := store.List(ListOptions{ScheduleID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(bySchedule) != 2 {
		t.Errorf("ScheduleID filter returned %d runs, want 2", len(bySchedule))
	}
	if bySchedule[0].ID != "b" {
		t.Errorf("newest first: got %q, want b", bySchedule[0].ID)
	}

	byTool, err := store.List(ListOptions{Tool: domain.ToolGemini})
	if err != nil {
		t.Fatal(err)
	}
	if len(byTool) != 1 || byTool[0].ID != "c" {
		t.Errorf("Tool filter = %v", byTool)
	}

	limited, err := store.List(ListOptions{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].ID != "c" {
		t.Errorf("Limit filter = %v, want just c", limited)
	}
}
