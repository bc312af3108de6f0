package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lyallcooper/reclaim/internal/scanner"
)

const wsWriteTimeout = 10 * time.Second

// wsFrame is the WebSocket envelope of a task event.
type wsFrame struct {
	Type scanner.EventType `json:"type"`
	Data any               `json:"data"`
}

// ScanProgressWS handles GET /api/scan/ws/{id}. It carries the same events
// as the SSE stream, one JSON frame each.
func (h *Handler) ScanProgressWS(w http.ResponseWriter, r *http.Request) {
	task, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	upgrader := h.upgrader
	if h.disableCSRF {
		// Desktop webviews use custom origins.
		upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, detach := task.Subscribe()
	defer detach()

	// Drain client frames so close messages are noticed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	closeNormal := func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteTimeout))
	}

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				closeNormal()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(wsFrame{Type: ev.Type, Data: ev.Payload()}); err != nil {
				return
			}
			if ev.Type.Terminal() {
				closeNormal()
				return
			}
		}
	}
}
