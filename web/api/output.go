package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/shoma-dev/toolsched/internal/domain"
)

// OutputMessage is one live output snapshot pushed over the websocket
type OutputMessage struct {
	Tool   string `json:"tool"`
	Output string `json:"output"`
}

// OutputHub fans monitor output snapshots out to websocket subscribers,
// grouped per tool
type OutputHub struct {
	mu       sync.Mutex
	conns    map[domain.Tool]map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

// NewOutputHub creates a new output hub
func NewOutputHub() *OutputHub {
	return &OutputHub{
		conns: make(map[domain.Tool]map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Broadcast pushes an output snapshot to every subscriber of the tool.
// Dead connections are dropped.
func (h *OutputHub) Broadcast(tool domain.Tool, output string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns[tool] {
		if err := conn.WriteJSON(OutputMessage{Tool: string(tool), Output: output}); err != nil {
			conn.Close()
			delete(h.conns[tool], conn)
		}
	}
}

func (h *OutputHub) subscribe(tool domain.Tool, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[tool] == nil {
		h.conns[tool] = make(map[*websocket.Conn]bool)
	}
	h.conns[tool][conn] = true
}

func (h *OutputHub) unsubscribe(tool domain.Tool, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[tool], conn)
}

// outputHandler upgrades GET /api/output/{tool} to a websocket that
// streams the tool's monitor snapshots
func (s *Server) outputHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/api/output/")
		tool, err := domain.ParseTool(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		conn, err := s.outHub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		s.outHub.subscribe(tool, conn)
		defer func() {
			s.outHub.unsubscribe(tool, conn)
			conn.Close()
		}()

		// the read loop only detects disconnects; clients do not send
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

// StreamOutput exposes the hub to the monitor observer wiring
func (s *Server) StreamOutput(tool domain.Tool, output string) {
	s.outHub.Broadcast(tool, output)
}
