package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lyallcooper/reclaim/internal/scanner"
)

const sseKeepAlive = 15 * time.Second

// ScanProgressSSE handles GET /api/scan/status/{id}. The stream starts with
// the current snapshot and ends after the terminal event.
func (h *Handler) ScanProgressSSE(w http.ResponseWriter, r *http.Request) {
	task, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SSE not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	events, detach := task.Subscribe()
	defer detach()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				// Dropped for falling behind; the client reconnects for a fresh snapshot.
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Type.Terminal() {
				return
			}
		}
	}
}

// writeSSE writes one event. Progress snapshots use the unnamed default
// event so plain EventSource onmessage handlers receive them.
func writeSSE(w io.Writer, ev scanner.Event) error {
	data, err := json.Marshal(ev.Payload())
	if err != nil {
		return err
	}
	if ev.Type == scanner.EventProgress {
		_, err = fmt.Fprintf(w, "data: %s\n\n", data)
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
