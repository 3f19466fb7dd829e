//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestCLI_RegisterAndList registers a schedule and finds it in list
// output
func TestCLI_RegisterAndList(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "register",
		"--tool", "claude",
		"--time", "09:30",
		"--type", "daily",
		"--dir", env.TargetDir,
		"--args", "review open pull requests",
		"--title", "Morning review")
	if err != nil {
		t.Fatalf("register failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "schedule registered") {
		t.Errorf("Expected 'schedule registered' in output, got: %s", out)
	}

	out, err = env.run(t, "list")
	if err != nil {
		t.Fatalf("list failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ID") || !strings.Contains(out, "TOOL") {
		t.Errorf("Expected table header in output, got: %s", out)
	}
	if !strings.Contains(out, "claude") || !strings.Contains(out, "09:30") {
		t.Errorf("Expected registered schedule in output, got: %s", out)
	}
	if !strings.Contains(out, "Morning review") {
		t.Errorf("Expected schedule title in output, got: %s", out)
	}
}

// TestCLI_RegisterWeeklyWithoutStartDate verifies the validation error
// surfaces through the CLI
func TestCLI_RegisterWeeklyWithoutStartDate(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "register",
		"--tool", "codex",
		"--time", "07:00",
		"--type", "weekly",
		"--dir", env.TargetDir,
		"--args", "update dependencies")
	if err == nil {
		t.Fatalf("Expected register to fail, got: %s", out)
	}
	if !strings.Contains(out, "start date") {
		t.Errorf("Expected start date error, got: %s", out)
	}

	// nothing must be persisted
	out, err = env.run(t, "list")
	if err != nil {
		t.Fatalf("list failed: %v\n%s", err, out)
	}
	if strings.Contains(out, "codex") {
		t.Errorf("Rejected schedule must not appear in list, got: %s", out)
	}
}

// TestCLI_Unregister removes a schedule and verifies the list is empty
func TestCLI_Unregister(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "register",
		"--tool", "gemini",
		"--time", "22:00",
		"--dir", env.TargetDir,
		"--args", "nightly triage")
	if err != nil {
		t.Fatalf("register failed: %v\n%s", err, out)
	}

	// the schedule ID is printed in parentheses
	start := strings.Index(out, "(")
	end := strings.Index(out, ")")
	if start < 0 || end < start {
		t.Fatalf("Expected schedule ID in output, got: %s", out)
	}
	id := out[start+1 : end]

	out, err = env.run(t, "unregister", "gemini", id)
	if err != nil {
		t.Fatalf("unregister failed: %v\n%s", err, out)
	}

	out, err = env.run(t, "list")
	if err != nil {
		t.Fatalf("list failed: %v\n%s", err, out)
	}
	if strings.Contains(out, id) {
		t.Errorf("Unregistered schedule still listed: %s", out)
	}
}

// TestCLI_Status shows all three tools as idle on a fresh environment
func TestCLI_Status(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, out)
	}
	for _, tool := range []string{"claude", "codex", "gemini"} {
		if !strings.Contains(out, tool) {
			t.Errorf("Expected %s in status output, got: %s", tool, out)
		}
	}
	if !strings.Contains(out, "0 schedules registered") {
		t.Errorf("Expected schedule count in output, got: %s", out)
	}
}

// TestCLI_Import registers schedules in bulk from YAML
func TestCLI_Import(t *testing.T) {
	env := newTestEnv(t)

	yaml := `schedules:
  - tool: claude
    execution_time: "09:00"
    schedule_type: daily
    target_directory: "` + env.TargetDir + `"
    command_args: "triage new issues"
  - tool: codex
    execution_time: "18:30"
    schedule_type: weekly
    start_date: "2026-01-05"
    target_directory: "` + env.TargetDir + `"
    command_args: "weekly dependency update"
`
	path := filepath.Join(t.TempDir(), "schedules.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to write yaml: %v", err)
	}

	out, err := env.run(t, "import", path)
	if err != nil {
		t.Fatalf("import failed: %v\n%s", err, out)
	}
	if strings.Count(out, "registered") != 2 {
		t.Errorf("Expected 2 registrations, got: %s", out)
	}

	out, err = env.run(t, "list")
	if err != nil {
		t.Fatalf("list failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "claude") || !strings.Contains(out, "codex") {
		t.Errorf("Expected both imported schedules, got: %s", out)
	}
}

// TestCLI_HistoryEmpty reports no history for an unknown schedule
func TestCLI_HistoryEmpty(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "history", "20260101000000000")
	if err != nil {
		t.Fatalf("history failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "No history") {
		t.Errorf("Expected 'No history' in output, got: %s", out)
	}
}

// TestCLI_InvalidCommand tests error handling for invalid commands
func TestCLI_InvalidCommand(t *testing.T) {
	binary := binaryPath(t)

	cmd := exec.Command(binary, "invalidcommand")
	out, err := cmd.CombinedOutput()

	if err == nil {
		t.Error("Expected error for invalid command")
	}

	output := string(out)
	if !strings.Contains(output, "unknown command") && !strings.Contains(output, "Usage") {
		t.Errorf("Expected error message or usage info, got: %s", output)
	}
}

// TestCLI_UnknownTool rejects an unsupported tool name
func TestCLI_UnknownTool(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "register",
		"--tool", "copilot",
		"--time", "09:00",
		"--dir", env.TargetDir,
		"--args", "anything")
	if err == nil {
		t.Fatalf("Expected register to fail, got: %s", out)
	}
	if !strings.Contains(out, "unknown tool") {
		t.Errorf("Expected unknown tool error, got: %s", out)
	}
}
