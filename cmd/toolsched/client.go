package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shoma-dev/toolsched/internal/config"
	"github.com/shoma-dev/toolsched/internal/domain"
	"github.com/shoma-dev/toolsched/internal/scheduler"
	"github.com/shoma-dev/toolsched/web/api"
)

// daemonClient talks to a running serve daemon's web API. Guard state
// lives in the daemon process, so stop and status go through it rather
// than a fresh in-process guard that nothing else can see.
type daemonClient struct {
	base   string
	client *http.Client
}

func newDaemonClient(cfg *config.Config) *daemonClient {
	return &daemonClient{
		base:   fmt.Sprintf("http://%s:%d", cfg.Web.Host, cfg.Web.Port),
		client: &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *daemonClient) status() (*api.StatusResponse, error) {
	resp, err := c.client.Get(c.base + "/api/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned %s", resp.Status)
	}

	var status api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *daemonClient) stop(tool domain.Tool) (scheduler.ScheduleResult, error) {
	resp, err := c.client.Post(c.base+"/api/tools/"+string(tool)+"/stop", "application/json", nil)
	if err != nil {
		return scheduler.ScheduleResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return scheduler.ScheduleResult{}, fmt.Errorf("daemon returned %s", resp.Status)
	}

	var res scheduler.ScheduleResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return scheduler.ScheduleResult{}, err
	}
	return res, nil
}
