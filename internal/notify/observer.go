package notify

import (
	"fmt"
	"time"

	"github.com/shoma-dev/toolsched/internal/domain"
	"github.com/shoma-dev/toolsched/internal/monitor"
)

// MonitorObserver turns monitor progress events into notifications.
// Raw snapshots are intentionally not forwarded; they go to the web
// API's live stream instead.
type MonitorObserver struct {
	notifier Notifier
}

func NewMonitorObserver(n Notifier) *MonitorObserver {
	return &MonitorObserver{notifier: n}
}

func (o *MonitorObserver) Snapshot(domain.Tool, string) {}

func (o *MonitorObserver) PhaseChange(tool domain.Tool, phase monitor.Phase) {
	n := Notification{
		Tool:  string(tool),
		Title: fmt.Sprintf("%s: %s", tool, phase),
	}
	switch phase {
	case monitor.PhaseCompleted:
		n.Type = NotifySuccess
		n.Message = "execution finished"
	case monitor.PhaseRateLimited:
		n.Type = NotifyWarning
		n.Message = "rate limit detected"
	case monitor.PhaseError:
		n.Type = NotifyError
		n.Message = "execution failed"
	case monitor.PhaseCancelled:
		n.Message = "execution cancelled"
	default:
		return
	}
	_ = o.notifier.Send(n)
}

func (o *MonitorObserver) RetryCountdown(tool domain.Tool, remaining time.Duration) {
	_ = o.notifier.Send(Notification{
		Tool:    string(tool),
		Title:   fmt.Sprintf("%s: waiting for rate limit", tool),
		Message: fmt.Sprintf("retrying in %s", remaining.Round(time.Minute)),
		Type:    NotifyInfo,
	})
}
