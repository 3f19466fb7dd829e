package terminal

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/shoma-dev/toolsched/internal/domain"
)

// ITerm drives iTerm2 via osascript. One window per tool is assumed;
// Snapshot and SendText address the current session of the frontmost
// window, which is the window Launch created.
type ITerm struct {
	// run executes an AppleScript and returns its output. Overridable
	// for tests.
	run func(script string) (string, error)
}

// NewITerm returns a Terminal backed by osascript
func NewITerm() *ITerm {
	return &ITerm{run: runOsascript}
}

func runOsascript(script string) (string, error) {
	out, err := exec.Command("osascript", "-e", script).CombinedOutput()
	if err != nil {
		return "", &domain.ExternalToolError{
			Message: fmt.Sprintf("osascript failed: %s", strings.TrimSpace(string(out))),
			Err:     err,
		}
	}
	return string(out), nil
}

func (t *ITerm) Launch(tool domain.Tool, dir, options, command string) error {
	line := launchLine(tool, options, command)
	script := fmt.Sprintf(`tell application "iTerm"
	activate
	set newWindow to (create window with default profile)
	tell current session of newWindow
		write text "cd %s"
		write text "%s"
	end tell
end tell`, EscapeScriptString(shellQuote(dir)), EscapeScriptString(line))
	_, err := t.run(script)
	return err
}

func (t *ITerm) Snapshot(tool domain.Tool) (string, error) {
	script := `tell application "iTerm"
	tell current session of current window
		contents
	end tell
end tell`
	out, err := t.run(script)
	if err != nil {
		return "", err
	}
	return out, nil
}

func (t *ITerm) SendText(tool domain.Tool, text string) error {
	script := fmt.Sprintf(`tell application "iTerm"
	tell current session of current window
		write text "%s"
	end tell
end tell`, EscapeScriptString(text))
	_, err := t.run(script)
	return err
}

// Probe reports whether iTerm is installed and currently running
func (t *ITerm) Probe() (Status, error) {
	installed, err := t.run(`tell application "System Events" to exists application process "iTerm2"`)
	if err != nil {
		// System Events may refuse when automation permission is missing;
		// fall back to checking the app bundle id.
		installed = ""
	}
	idOut, idErr := t.run(`id of application "iTerm"`)
	st := Status{
		Installed: idErr == nil && strings.TrimSpace(idOut) != "",
		Running:   strings.TrimSpace(installed) == "true",
	}
	if idErr != nil && err != nil {
		return st, idErr
	}
	return st, nil
}
