// Package guard coordinates which tool is currently executing.
//
// Each tool has a pair of process-lifetime flags: running and
// cancel-requested. All mutation goes through TryStart, RequestStop and
// Finish so a stuck flag never survives the execution that owns it.
package guard

import (
	"errors"
	"sync"

	"github.com/shoma-dev/toolsched/internal/domain"
)

// ErrAlreadyRunning is returned by TryStart when the tool is busy
var ErrAlreadyRunning = errors.New("tool is already running")

type toolState struct {
	running         bool
	cancelRequested bool
}

// Guard holds the per-tool run state
type Guard struct {
	mu    sync.Mutex
	tools map[domain.Tool]*toolState
}

// New creates a Guard with all tools idle
func New() *Guard {
	g := &Guard{tools: make(map[domain.Tool]*toolState)}
	for _, t := range domain.Tools() {
		g.tools[t] = &toolState{}
	}
	return g
}

func (g *Guard) state(tool domain.Tool) *toolState {
	st, ok := g.tools[tool]
	if !ok {
		st = &toolState{}
		g.tools[tool] = st
	}
	return st
}

// TryStart atomically claims the tool. On success the cancel flag is
// cleared; when the tool is busy it fails with ErrAlreadyRunning and
// changes nothing.
func (g *Guard) TryStart(tool domain.Tool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(tool)
	if st.running {
		return ErrAlreadyRunning
	}
	st.running = true
	st.cancelRequested = false
	return nil
}

// RequestStop asks the running execution to stop. Cooperative: the monitor
// loop observes the flag at its next poll boundary. The running flag drops
// immediately so the tool reads as stopped right away.
func (g *Guard) RequestStop(tool domain.Tool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(tool)
	st.cancelRequested = true
	st.running = false
}

// Finish unconditionally clears the running flag. Must be called on every
// exit path of an execution exactly once.
func (g *Guard) Finish(tool domain.Tool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state(tool).running = false
}

// CancelRequested reports whether a stop has been requested for the tool
func (g *Guard) CancelRequested(tool domain.Tool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state(tool).cancelRequested
}

// Status returns a read-only snapshot of tool -> running
func (g *Guard) Status() map[domain.Tool]bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	status := make(map[domain.Tool]bool, len(g.tools))
	for tool, st := range g.tools {
		status[tool] = st.running
	}
	return status
}
