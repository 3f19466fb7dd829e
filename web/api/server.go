// Package api exposes the scheduling engine over HTTP: a JSON command
// surface, a server-sent-events stream for state changes and a
// websocket stream of live monitor output.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shoma-dev/toolsched/internal/catchup"
	"github.com/shoma-dev/toolsched/internal/domain"
	"github.com/shoma-dev/toolsched/internal/history"
	"github.com/shoma-dev/toolsched/internal/runstore"
	"github.com/shoma-dev/toolsched/internal/scheduler"
)

// Engine is the slice of the scheduler service the API needs
type Engine interface {
	RegisterSchedule(in scheduler.ScheduleInput) scheduler.ScheduleResult
	UpdateSchedule(id string, in scheduler.ScheduleInput) scheduler.ScheduleResult
	UnregisterSchedule(tool domain.Tool, id string) scheduler.ScheduleResult
	ListSchedules() ([]*domain.Schedule, error)
	ListHistory(scheduleID string) ([]history.Entry, error)
	RunningStatus() map[domain.Tool]bool
	Stop(tool domain.Tool) scheduler.ScheduleResult
}

// Sweeper triggers a missed-schedule sweep
type Sweeper interface {
	Run() (catchup.Report, error)
}

// Server is the HTTP API server
type Server struct {
	engine  Engine
	sweeper Sweeper
	runs    *runstore.Store
	httpSrv *http.Server
	mux     *http.ServeMux
	sseHub  *SSEHub
	outHub  *OutputHub
}

// NewServer creates a new API server. sweeper and runs may be nil when
// the corresponding endpoints should report unavailable.
func NewServer(engine Engine, sweeper Sweeper, runs *runstore.Store, addr string) *Server {
	s := &Server{
		engine:  engine,
		sweeper: sweeper,
		runs:    runs,
		mux:     http.NewServeMux(),
		sseHub:  NewSSEHub(),
		outHub:  NewOutputHub(),
	}
	s.httpSrv = &http.Server{Addr: addr, Handler: s.mux}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/schedules", s.schedulesHandler())
	s.mux.HandleFunc("/api/schedules/", s.scheduleHandler())
	s.mux.HandleFunc("/api/tools/", s.toolHandler())
	s.mux.HandleFunc("/api/sweep", s.sweepHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/output/", s.outputHandler())
}

// Start starts the HTTP server. It blocks until Shutdown is called,
// then returns http.ErrServerClosed.
func (s *Server) Start() error {
	go s.sseHub.Run()
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight
// requests, bounded by ctx
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the server's routing mux, used by tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
