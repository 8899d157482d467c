package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/nmiculinic/rzne/internal/ws"
)

// streamTopic validates the ?user= parameter shared by both stream endpoints.
func (r *Router) streamTopic(w http.ResponseWriter, req *http.Request) (string, bool) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return "", false
	}
	if r.hub == nil {
		r.notFound(w)
		return "", false
	}
	user := strings.TrimSpace(req.URL.Query().Get("user"))
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter required")
		return "", false
	}
	if _, err := r.auth.Lookup(req.Context(), user); err != nil {
		r.writeServiceError(w, req, err)
		return "", false
	}
	return user, true
}

func (r *Router) handleNotesWS(w http.ResponseWriter, req *http.Request) {
	topic, ok := r.streamTopic(w, req)
	if !ok {
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(topic, client)
	go func() {
		defer func() {
			r.hub.Unregister(topic, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleNotesSSE(w http.ResponseWriter, req *http.Request) {
	topic, ok := r.streamTopic(w, req)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	client := ws.NewSSEClient(w, flusher, "note", r.logger)
	r.hub.Register(topic, client)
	defer r.hub.Unregister(topic, client)
	// Headers reach the client only once the subscription is live.
	if err := client.Heartbeat(); err != nil {
		return
	}

	ticker := time.NewTicker(r.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			client.Close()
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
