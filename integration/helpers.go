//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// binaryPath returns the path to the built CLI binary, building it if
// needed
func binaryPath(t *testing.T) string {
	t.Helper()
	paths := []string{
		"../toolsched",
		"./toolsched",
		filepath.Join(os.Getenv("GOPATH"), "bin", "toolsched"),
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			abs, _ := filepath.Abs(p)
			return abs
		}
	}

	t.Log("Binary not found, building...")
	cmd := exec.Command("go", "build", "-o", "../toolsched", "../cmd/toolsched")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}

	abs, _ := filepath.Abs("../toolsched")
	return abs
}

// testEnv is a throwaway engine home: schedules dir, history journal,
// run database and a config file pointing at all of them
type testEnv struct {
	ConfigPath string
	TargetDir  string
}

// newTestEnv writes a config whose paths all live under t.TempDir()
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	base := t.TempDir()

	targetDir := filepath.Join(base, "project")
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		t.Fatalf("Failed to create target dir: %v", err)
	}

	config := `[general]
schedules_dir = "` + filepath.Join(base, "schedules") + `"
history_path = "` + filepath.Join(base, "schedule-history.jsonl") + `"
database_path = "` + filepath.Join(base, "runs.db") + `"
log_dir = "` + filepath.Join(base, "logs") + `"

[notifications]
desktop = false
`

	configPath := filepath.Join(base, "config.toml")
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	return testEnv{ConfigPath: configPath, TargetDir: targetDir}
}

// run executes the binary with --config preset and returns combined
// output
func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath(t), append(args, "--config", e.ConfigPath)...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
