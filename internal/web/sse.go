package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// keepAliveInterval is how often an idle stream gets a comment line.
const keepAliveInterval = 25 * time.Second

// handleSSE streams the session board's patches as Server-Sent Events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// Get the flusher
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	// Set headers for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sess := sessionFrom(r.Context())
	b := s.boardFor(r.Context(), sess)

	patches, unsubscribe := b.Patches()
	defer unsubscribe()

	// Send initial connection message
	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	s.logger.Debug("SSE client connected", "user", sess.user.ID)

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	// Stream events to client
	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", "user", sess.user.ID)
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case p, ok := <-patches:
			if !ok {
				return
			}
			data, err := json.Marshal(p)
			if err != nil {
				s.logger.Error("Failed to encode patch", "kind", p.Kind, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: patch\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
