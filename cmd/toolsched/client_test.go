package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shoma-dev/toolsched/internal/domain"
	"github.com/shoma-dev/toolsched/internal/scheduler"
	"github.com/shoma-dev/toolsched/web/api"
)

func testClient(base string) *daemonClient {
	return &daemonClient{base: base, client: &http.Client{Timeout: time.Second}}
}

func TestDaemonClientStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("path = %q, want /api/status", r.URL.Path)
		}
		json.NewEncoder(w).Encode(api.StatusResponse{
			Running:   map[string]bool{"claude": true, "codex": false, "gemini": false},
			Schedules: 3,
		})
	}))
	defer ts.Close()

	status, err := testClient(ts.URL).status()
	if err != nil {
		t.Fatalf("status() error = %v", err)
	}
	if !status.Running["claude"] {
		t.Error("claude should be reported running")
	}
	if status.Schedules != 3 {
		t.Errorf("Schedules = %d, want 3", status.Schedules)
	}
}

func TestDaemonClientStop(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		json.NewEncoder(w).Encode(scheduler.ScheduleResult{Success: true, Message: "stop requested"})
	}))
	defer ts.Close()

	res, err := testClient(ts.URL).stop(domain.ToolCodex)
	if err != nil {
		t.Fatalf("stop() error = %v", err)
	}
	if gotPath != "/api/tools/codex/stop" {
		t.Errorf("path = %q, want /api/tools/codex/stop", gotPath)
	}
	if !res.Success || res.Message != "stop requested" {
		t.Errorf("result = %+v", res)
	}
}

// A stop against no daemon must surface an error instead of a
// local-only success that cancels nothing.
func TestDaemonClientStopUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	if _, err := testClient(ts.URL).stop(domain.ToolClaude); err == nil {
		t.Error("stop() against closed server: want error, got nil")
	}
}

func TestDaemonClientStatusNon200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	if _, err := testClient(ts.URL).status(); err == nil {
		t.Error("status() on 500: want error, got nil")
	}
}
