package notify

import (
	"os/exec"
	"runtime"
	"strings"
)

// DesktopNotifier surfaces run outcomes as OS-level popups
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier returns a notifier that is a no-op when disabled
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send shows the notification through the platform's notification
// mechanism. Platforms without one are silently skipped.
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return d.sendMacOS(n)
	case "linux":
		return d.sendLinux(n)
	default:
		return nil
	}
}

func (d *DesktopNotifier) sendMacOS(n Notification) error {
	script := `display notification "` + escapeScript(n.Message) + `" with title "` + escapeScript(n.Title) + `"`
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

func (d *DesktopNotifier) sendLinux(n Notification) error {
	cmd := exec.Command("notify-send", n.Title, n.Message)
	return cmd.Run()
}

// escapeScript escapes a value for an AppleScript string literal.
// Messages carry user-supplied titles and command args.
func escapeScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
