// Package terminal is the scripting-automation layer that drives the
// external CLI tools inside a terminal application.
//
// The engine only depends on the Terminal interface; the iTerm
// implementation talks AppleScript through osascript the same way the
// desktop app did.
package terminal

import (
	"fmt"
	"strings"

	"github.com/shoma-dev/toolsched/internal/domain"
)

// Terminal launches tools and observes their visible output
type Terminal interface {
	// Launch opens a new terminal window, changes into dir and starts the
	// tool with the given options and command.
	Launch(tool domain.Tool, dir, options, command string) error

	// Snapshot returns the currently visible output of the tool's window
	Snapshot(tool domain.Tool) (string, error)

	// SendText types text into the tool's window followed by return,
	// used for the rate-limit resume cue.
	SendText(tool domain.Tool, text string) error
}

// Status reports whether the automation target terminal is usable
type Status struct {
	Installed bool `json:"installed"`
	Running   bool `json:"running"`
}

// Prober checks terminal availability
type Prober interface {
	Probe() (Status, error)
}

// EscapeScriptString escapes a value for embedding in an AppleScript
// string literal
func EscapeScriptString(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
	)
	return r.Replace(s)
}

// launchLine renders the tool invocation line typed into the new window.
// Gemini takes its command through --prompt, the others take it
// positionally.
func launchLine(tool domain.Tool, options, command string) string {
	switch tool {
	case domain.ToolGemini:
		return fmt.Sprintf("%s %s --prompt %s", tool, options, shellQuote(command))
	default:
		return fmt.Sprintf("%s %s %s", tool, options, shellQuote(command))
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
