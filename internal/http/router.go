package httpx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nmiculinic/rzne/internal/domain"
	"github.com/nmiculinic/rzne/internal/service/auth"
	"github.com/nmiculinic/rzne/internal/service/notes"
	"github.com/nmiculinic/rzne/internal/ws"
)

const (
	healthCheckTimeout = 2 * time.Second
	defaultHeartbeat   = 15 * time.Second
	requestIDHeader    = "X-Request-ID"
)

// Options tunes router behaviour.
type Options struct {
	Realm            string
	OpenRegistration bool
	Heartbeat        time.Duration
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	notes    notes.Service
	hub      *ws.Hub
	upgrader websocket.Upgrader
	opts     Options
	dbHealth func(context.Context) error

	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// NewRouter assembles routes with dependencies. hub may be nil, which disables event streams.
func NewRouter(logger *slog.Logger, authSvc auth.Service, notesSvc notes.Service, hub *ws.Hub, dbHealth func(context.Context) error, opts Options) *Router {
	if strings.TrimSpace(opts.Realm) == "" {
		opts.Realm = "notes"
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		auth:   authSvc,
		notes:  notesSvc,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		opts:     opts,
		dbHealth: dbHealth,
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/test_auth", r.audit("/test_auth", r.requireAuth(r.handleTestAuth)))
	r.mux.HandleFunc("/user", r.audit("/user", r.handleUsers))
	r.mux.HandleFunc("/user/", r.audit("/user/{username}", r.handleUserSubroutes))
	r.mux.HandleFunc("/note", r.audit("/note", r.requireAuth(r.handleCreateNote)))
	r.mux.HandleFunc("/note/", r.audit("/note/{id}", r.handleNote))
	r.mux.HandleFunc("/ws/notes", r.audit("/ws/notes", r.handleNotesWS))
	r.mux.HandleFunc("/events/notes", r.audit("/events/notes", r.handleNotesSSE))
}

func (r *Router) handleUsers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	names, err := r.auth.ListUsers(req.Context())
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (r *Router) handleUserSubroutes(w http.ResponseWriter, req *http.Request) {
	rest := strings.TrimPrefix(req.URL.Path, "/user/")
	if name, ok := strings.CutSuffix(rest, "/notes"); ok && name != "" && !strings.Contains(name, "/") {
		r.handleUserNotes(w, req, name)
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodPost:
		r.handleRegister(w, req, rest)
	case http.MethodDelete:
		r.handleDeleteUser(w, req, rest)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request, name string) {
	if !r.opts.OpenRegistration {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		req = req.WithContext(ctx)
	}
	password, err := readField(req, "password")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := r.auth.Register(req.Context(), name, password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.Header().Set("Location", "/user/"+user.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"result": "success",
		"id":     user.ID,
	})
}

// handleDeleteUser checks that the target exists before looking at credentials.
func (r *Router) handleDeleteUser(w http.ResponseWriter, req *http.Request, name string) {
	if _, err := r.auth.Lookup(req.Context(), name); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	ctx, info, ok := r.ensureAuth(w, req)
	if !ok {
		return
	}
	if err := r.auth.DeleteUser(ctx, info.identity(), name); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "deleted"})
}

func (r *Router) handleUserNotes(w http.ResponseWriter, req *http.Request, name string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	list, err := r.notes.ListByOwner(req.Context(), name)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	payload := make(map[string]string, len(list))
	for _, n := range list {
		payload[strconv.FormatInt(n.ID, 10)] = n.Text
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *Router) handleTestAuth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for auth check", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf("Successfully authenticated with user: %s", info.Name))
}

func (r *Router) handleCreateNote(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for note creation", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	text, err := readField(req, "text")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	note, err := r.notes.Create(req.Context(), info.identity(), text)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.Header().Set("Location", noteLocation(note.ID))
	writeJSON(w, http.StatusCreated, map[string]int64{"id": note.ID})
}

func (r *Router) handleNote(w http.ResponseWriter, req *http.Request) {
	raw := strings.TrimPrefix(req.URL.Path, "/note/")
	if raw == "" || strings.Contains(raw, "/") {
		r.notFound(w)
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || !domain.ValidNoteID(id) {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return
	}
	switch req.Method {
	case http.MethodGet:
		r.handleGetNote(w, req, id)
	case http.MethodPut:
		r.requireAuth(func(w http.ResponseWriter, req *http.Request) {
			r.handlePutNote(w, req, id)
		})(w, req)
	case http.MethodDelete:
		r.requireAuth(func(w http.ResponseWriter, req *http.Request) {
			r.handleDeleteNote(w, req, id)
		})(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleGetNote(w http.ResponseWriter, req *http.Request, id int64) {
	note, err := r.notes.Get(req.Context(), id)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, note.Text)
}

func (r *Router) handlePutNote(w http.ResponseWriter, req *http.Request, id int64) {
	info, _ := authInfoFromContext(req.Context())
	text, err := readField(req, "text")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	note, created, err := r.notes.Put(req.Context(), info.identity(), id, text)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", noteLocation(note.ID))
	}
	writeJSON(w, status, map[string]int64{"id": note.ID})
}

func (r *Router) handleDeleteNote(w http.ResponseWriter, req *http.Request, id int64) {
	info, _ := authInfoFromContext(req.Context())
	if err := r.notes.Delete(req.Context(), info.identity(), id); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "deleted"})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reqID := strings.TrimSpace(req.Header.Get(requestIDHeader))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
			"request_id", reqID,
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID, "user", info.Name)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func noteLocation(id int64) string {
	return "/note/" + strconv.FormatInt(id, 10)
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
