package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shoma-dev/toolsched/internal/catchup"
	"github.com/shoma-dev/toolsched/internal/daemon"
	"github.com/shoma-dev/toolsched/internal/domain"
	"github.com/shoma-dev/toolsched/internal/guard"
	"github.com/shoma-dev/toolsched/internal/history"
	"github.com/shoma-dev/toolsched/internal/monitor"
	"github.com/shoma-dev/toolsched/internal/notify"
	"github.com/shoma-dev/toolsched/internal/runstore"
	"github.com/shoma-dev/toolsched/internal/scheduler"
	"github.com/shoma-dev/toolsched/internal/schedstore"
	"github.com/shoma-dev/toolsched/internal/terminal"
	"github.com/shoma-dev/toolsched/web/api"
)

// webObserver forwards monitor events to the web API: raw output over
// the per-tool websocket, phase changes over the SSE stream. The server
// field is set after construction to break the service/server cycle.
type webObserver struct {
	server *api.Server
}

func (o *webObserver) Snapshot(tool domain.Tool, output string) {
	if o.server == nil {
		return
	}
	o.server.StreamOutput(tool, output)
}

func (o *webObserver) PhaseChange(tool domain.Tool, phase monitor.Phase) {
	if o.server == nil {
		return
	}
	o.server.Broadcast(api.SSEEvent{Type: "phase", Data: map[string]string{
		"tool":  string(tool),
		"phase": phase.String(),
	}})
}

func (o *webObserver) RetryCountdown(tool domain.Tool, remaining time.Duration) {
	if o.server == nil {
		return
	}
	o.server.Broadcast(api.SSEEvent{Type: "retry", Data: map[string]interface{}{
		"tool":             string(tool),
		"remainingSeconds": int(remaining.Seconds()),
	}})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	for _, dir := range []string{cfg.General.SchedulesDir, cfg.General.LogDir, scriptsDir(cfg)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	runs, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer runs.Close()

	store := schedstore.New(cfg.General.SchedulesDir, cfg.General.LogDir, scriptsDir(cfg))
	journal := history.New(cfg.General.HistoryPath)
	g := guard.New()

	notifiers := []notify.Notifier{notify.NewDesktopNotifier(cfg.Notifications.Desktop)}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	notifier := notify.NewMultiNotifier(notifiers...)

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)

	web := &webObserver{}
	svc := scheduler.NewService(cfg, store, journal, g, terminal.NewITerm(), log,
		scheduler.WithRunStore(runs),
		scheduler.WithObserver(monitor.MultiObserver{
			notify.NewMonitorObserver(notifier),
			web,
		}))
	sweeper := catchup.NewSweeper(store, journal, g, svc, log)
	server := api.NewServer(svc, sweeper, runs, addr)
	web.server = server

	d := daemon.New(store, svc, sweeper, log)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	grp, ctx := errgroup.WithContext(sigCtx)
	grp.Go(func() error { return d.Run(ctx) })
	grp.Go(func() error {
		log.Info().Str("addr", addr).Msg("web API listening")
		if err := server.Start(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	grp.Go(func() error {
		<-ctx.Done()
		// restore default signal handling so a second interrupt kills
		// the process even if shutdown stalls
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := grp.Wait(); err != nil && sigCtx.Err() == nil {
		return err
	}
	return nil
}
