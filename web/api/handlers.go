package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shoma-dev/toolsched/internal/domain"
	"github.com/shoma-dev/toolsched/internal/runstore"
	"github.com/shoma-dev/toolsched/internal/scheduler"
)

// ScheduleResponse is the API representation of a schedule
type ScheduleResponse struct {
	ID              string `json:"id"`
	Tool            string `json:"tool"`
	ExecutionTime   string `json:"executionTime"`
	Type            string `json:"scheduleType"`
	StartDate       string `json:"startDate,omitempty"`
	IntervalDays    int    `json:"intervalDays,omitempty"`
	TargetDirectory string `json:"targetDirectory"`
	CommandArgs     string `json:"commandArgs"`
	Title           string `json:"title,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
}

// StatusResponse reports which tools are running and how many
// schedules exist
type StatusResponse struct {
	Running   map[string]bool `json:"running"`
	Schedules int             `json:"schedules"`
}

// RunResponse is the API representation of a run record
type RunResponse struct {
	ID             string `json:"id"`
	ScheduleID     string `json:"scheduleId"`
	Tool           string `json:"tool"`
	Origin         string `json:"origin"`
	Phase          string `json:"phase"`
	StartedAt      string `json:"startedAt,omitempty"`
	FinishedAt     string `json:"finishedAt,omitempty"`
	ElapsedSeconds int    `json:"elapsedSeconds,omitempty"`
	Message        string `json:"message,omitempty"`
}

func scheduleToResponse(sch *domain.Schedule) ScheduleResponse {
	resp := ScheduleResponse{
		ID:              sch.ID,
		Tool:            string(sch.Tool),
		ExecutionTime:   sch.ExecutionTime,
		Type:            string(sch.Type),
		StartDate:       sch.StartDate,
		IntervalDays:    sch.IntervalDays,
		TargetDirectory: sch.TargetDirectory,
		CommandArgs:     sch.CommandArgs,
		Title:           sch.Title,
	}
	if !sch.CreatedAt.IsZero() {
		resp.CreatedAt = sch.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

func runToResponse(r *runstore.Run) RunResponse {
	resp := RunResponse{
		ID:             r.ID,
		ScheduleID:     r.ScheduleID,
		Tool:           string(r.Tool),
		Origin:         r.Origin,
		Phase:          r.Phase,
		ElapsedSeconds: r.ElapsedSeconds,
		Message:        r.Message,
	}
	if !r.StartedAt.IsZero() {
		resp.StartedAt = r.StartedAt.Format(time.RFC3339)
	}
	if !r.FinishedAt.IsZero() {
		resp.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		schedules, err := s.engine.ListSchedules()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		running := make(map[string]bool)
		for tool, active := range s.engine.RunningStatus() {
			running[string(tool)] = active
		}

		writeJSON(w, StatusResponse{Running: running, Schedules: len(schedules)})
	}
}

func (s *Server) schedulesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			schedules, err := s.engine.ListSchedules()
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			responses := make([]ScheduleResponse, len(schedules))
			for i, sch := range schedules {
				responses[i] = scheduleToResponse(sch)
			}
			writeJSON(w, responses)

		case http.MethodPost:
			var in scheduler.ScheduleInput
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			res := s.engine.RegisterSchedule(in)
			if res.Success {
				s.Broadcast(SSEEvent{Type: "schedule_registered", Data: res})
			}
			writeJSON(w, res)

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// scheduleHandler dispatches /api/schedules/{id}, /api/schedules/{id}/history
// and /api/schedules/{tool}/{id}
func (s *Server) scheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/schedules/")
		if path == "" {
			writeError(w, http.StatusBadRequest, "schedule ID required")
			return
		}

		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(path, "/history"):
			id := strings.TrimSuffix(path, "/history")
			entries, err := s.engine.ListHistory(id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, entries)

		case r.Method == http.MethodPut:
			var in scheduler.ScheduleInput
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			res := s.engine.UpdateSchedule(path, in)
			if res.Success {
				s.Broadcast(SSEEvent{Type: "schedule_updated", Data: res})
			}
			writeJSON(w, res)

		case r.Method == http.MethodDelete:
			// DELETE /api/schedules/{tool}/{id}
			parts := strings.SplitN(path, "/", 2)
			if len(parts) != 2 {
				writeError(w, http.StatusBadRequest, "tool and schedule ID required")
				return
			}
			tool, err := domain.ParseTool(parts[0])
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			res := s.engine.UnregisterSchedule(tool, parts[1])
			if res.Success {
				s.Broadcast(SSEEvent{Type: "schedule_unregistered", Data: res})
			}
			writeJSON(w, res)

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// toolHandler dispatches POST /api/tools/{tool}/stop
func (s *Server) toolHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/api/tools/")
		name, action, ok := strings.Cut(path, "/")
		if !ok || action != "stop" {
			writeError(w, http.StatusNotFound, "unknown action")
			return
		}
		tool, err := domain.ParseTool(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res := s.engine.Stop(tool)
		s.Broadcast(SSEEvent{Type: "stop_requested", Data: map[string]string{"tool": string(tool)}})
		writeJSON(w, res)
	}
}

func (s *Server) sweepHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.sweeper == nil {
			writeError(w, http.StatusServiceUnavailable, "sweeper not available")
			return
		}

		report, err := s.sweeper.Run()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.Broadcast(SSEEvent{Type: "sweep_finished", Data: report})
		writeJSON(w, report)
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.runs == nil {
			writeJSON(w, []RunResponse{})
			return
		}

		opts := runstore.ListOptions{
			ScheduleID: r.URL.Query().Get("schedule"),
			Phase:      r.URL.Query().Get("phase"),
			Limit:      50,
		}
		if toolName := r.URL.Query().Get("tool"); toolName != "" {
			tool, err := domain.ParseTool(toolName)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			opts.Tool = tool
		}

		runs, err := s.runs.List(opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		responses := make([]RunResponse, len(runs))
		for i, run := range runs {
			responses[i] = runToResponse(run)
		}
		writeJSON(w, responses)
	}
}
