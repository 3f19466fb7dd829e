package guard

import (
	"errors"
	"testing"

	"github.com/shoma-dev/toolsched/internal/domain"
)

func TestGuard_TryStartTwice(t *testing.T) {
	g := New()

	if err := g.TryStart(domain.ToolClaude); err != nil {
		t.Fatalf("first TryStart = %v, want nil", err)
	}
	if err := g.TryStart(domain.ToolClaude); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second TryStart = %v, want ErrAlreadyRunning", err)
	}

	// other tools are unaffected
	if err := g.TryStart(domain.ToolCodex); err != nil {
		t.Errorf("TryStart(codex) = %v, want nil", err)
	}
}

func TestGuard_FinishAllowsRestart(t *testing.T) {
	g := New()

	if err := g.TryStart(domain.ToolClaude); err != nil {
		t.Fatal(err)
	}
	g.Finish(domain.ToolClaude)
	if err := g.TryStart(domain.ToolClaude); err != nil {
		t.Errorf("TryStart after Finish = %v, want nil", err)
	}
}

func TestGuard_RequestStop(t *testing.T) {
	g := New()

	if err := g.TryStart(domain.ToolClaude); err != nil {
		t.Fatal(err)
	}
	if g.CancelRequested(domain.ToolClaude) {
		t.Error("CancelRequested = true right after TryStart, want false")
	}

	g.RequestStop(domain.ToolClaude)

	if !g.CancelRequested(domain.ToolClaude) {
		t.Error("CancelRequested = false after RequestStop, want true")
	}
	if g.Status()[domain.ToolClaude] {
		t.Error("Status[claude] = true after RequestStop, want false immediately")
	}
}

func TestGuard_TryStartClearsCancelFlag(t *testing.T) {
	g := New()

	g.RequestStop(domain.ToolClaude)
	if err := g.TryStart(domain.ToolClaude); err != nil {
		t.Fatal(err)
	}
	if g.CancelRequested(domain.ToolClaude) {
		t.Error("CancelRequested = true after fresh TryStart, want false")
	}
}

func TestGuard_Status(t *testing.T) {
	g := New()
	status := g.Status()
	if len(status) != 3 {
		t.Fatalf("Status len = %d, want 3", len(status))
	}
	for tool, running := range status {
		if running {
			t.Errorf("Status[%s] = true on fresh guard, want false", tool)
		}
	}
}
