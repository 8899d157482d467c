package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/nmiculinic/rzne/internal/domain"
	"github.com/nmiculinic/rzne/internal/events"
	"github.com/nmiculinic/rzne/internal/repository/memory"
	"github.com/nmiculinic/rzne/internal/service/auth"
	"github.com/nmiculinic/rzne/internal/service/notes"
	"github.com/nmiculinic/rzne/internal/ws"
	"github.com/nmiculinic/rzne/pkg/crypto"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	router *Router
	repo   *memory.Repository
	hub    *ws.Hub
}

func newTestEnv(t *testing.T, opts Options) testEnv {
	t.Helper()
	return newCachedTestEnv(t, opts, nil)
}

func newCachedTestEnv(t *testing.T, opts Options, cache notes.Cache) testEnv {
	t.Helper()
	repo := memory.New()
	hub := ws.NewHub()
	t.Cleanup(hub.Close)
	logger := newLogger()
	notesSvc := notes.New(repo, repo, cache, events.NewHubPublisher(hub), logger)
	authSvc := auth.New(repo, crypto.NewHasher(1, 16), logger, notesSvc.OwnerDeleted)
	router := NewRouter(logger, authSvc, notesSvc, hub, repo.Ping, opts)
	return testEnv{router: router, repo: repo, hub: hub}
}

func openEnv(t *testing.T) testEnv {
	return newTestEnv(t, Options{OpenRegistration: true})
}

type creds struct{ user, pass string }

func (e testEnv) do(t *testing.T, method, path, body string, c *creds) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c != nil {
		req.SetBasicAuth(c.user, c.pass)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestNoteScenario(t *testing.T) {
	env := openEnv(t)
	alice := &creds{"alice", "pw1"}
	bob := &creds{"bob", "pw2"}

	rec := env.do(t, http.MethodPost, "/user/alice", `{"password":"pw1"}`, nil)
	expectStatus(t, rec, http.StatusCreated)
	if loc := rec.Header().Get("Location"); loc != "/user/alice" {
		t.Fatalf("unexpected Location %q", loc)
	}
	reg := decode[map[string]any](t, rec)
	if reg["result"] != "success" || reg["id"] != float64(1) {
		t.Fatalf("unexpected registration payload %v", reg)
	}
	expectStatus(t, env.do(t, http.MethodPost, "/user/bob", `{"password":"pw2"}`, nil), http.StatusCreated)

	rec = env.do(t, http.MethodPost, "/note", `{"text":"hello"}`, alice)
	expectStatus(t, rec, http.StatusCreated)
	if loc := rec.Header().Get("Location"); loc != "/note/1" {
		t.Fatalf("unexpected Location %q", loc)
	}
	if created := decode[map[string]int64](t, rec); created["id"] != 1 {
		t.Fatalf("expected note id 1, got %v", created)
	}

	rec = env.do(t, http.MethodGet, "/note/1", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if text := decode[string](t, rec); text != "hello" {
		t.Fatalf("expected hello, got %q", text)
	}

	expectStatus(t, env.do(t, http.MethodPut, "/note/1", `{"text":"hacked"}`, bob), http.StatusUnauthorized)
	if text := decode[string](t, env.do(t, http.MethodGet, "/note/1", "", nil)); text != "hello" {
		t.Fatalf("expected note unchanged, got %q", text)
	}

	rec = env.do(t, http.MethodPut, "/note/1", `{"text":"world"}`, alice)
	expectStatus(t, rec, http.StatusOK)
	if text := decode[string](t, env.do(t, http.MethodGet, "/note/1", "", nil)); text != "world" {
		t.Fatalf("expected world, got %q", text)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/note/1", "", bob), http.StatusUnauthorized)
	expectStatus(t, env.do(t, http.MethodDelete, "/note/1", "", alice), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/note/1", "", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, "/note/1", "", alice), http.StatusNotFound)
}

func TestUserEndpoints(t *testing.T) {
	env := openEnv(t)

	rec := env.do(t, http.MethodGet, "/user", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if names := decode[[]string](t, rec); len(names) != 0 {
		t.Fatalf("expected no users, got %v", names)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/user/test", `{"password":"test"}`, nil), http.StatusCreated)
	rec = env.do(t, http.MethodPost, "/user/test", `{"password":"other"}`, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	if body := decode[map[string]string](t, rec); body["error"] != "Username exists" {
		t.Fatalf("unexpected duplicate body %v", body)
	}

	rec = env.do(t, http.MethodGet, "/user", "", nil)
	if names := decode[[]string](t, rec); len(names) != 1 || names[0] != "test" {
		t.Fatalf("expected [test], got %v", names)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/user/nopass", `{}`, nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/user/badjson", `{`, nil), http.StatusBadRequest)
}

func TestRegisterWithFormBody(t *testing.T) {
	env := openEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/user/carol", strings.NewReader(url.Values{"password": {"pw"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusCreated)

	expectStatus(t, env.do(t, http.MethodGet, "/test_auth", "", &creds{"carol", "pw"}), http.StatusOK)
}

func TestUserNotesListing(t *testing.T) {
	env := openEnv(t)
	expectStatus(t, env.do(t, http.MethodGet, "/user/ss/notes", "", nil), http.StatusNotFound)

	env.do(t, http.MethodPost, "/user/test", `{"password":"test"}`, nil)
	rec := env.do(t, http.MethodGet, "/user/test/notes", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("expected empty mapping, got %s", rec.Body.String())
	}

	c := &creds{"test", "test"}
	env.do(t, http.MethodPost, "/note", `{"text":"first"}`, c)
	env.do(t, http.MethodPost, "/note", `{"text":"second"}`, c)
	got := decode[map[string]string](t, env.do(t, http.MethodGet, "/user/test/notes", "", nil))
	if got["1"] != "first" || got["2"] != "second" || len(got) != 2 {
		t.Fatalf("unexpected notes mapping %v", got)
	}
}

func TestDeleteUserOrdering(t *testing.T) {
	env := openEnv(t)
	test := &creds{"test", "test"}

	// Target existence is checked before credentials.
	expectStatus(t, env.do(t, http.MethodDelete, "/user/addd", "", test), http.StatusNotFound)

	env.do(t, http.MethodPost, "/user/test", `{"password":"test"}`, nil)
	env.do(t, http.MethodPost, "/user/add", `{"password":"add"}`, nil)

	expectStatus(t, env.do(t, http.MethodDelete, "/user/addd", "", test), http.StatusNotFound)
	rec := env.do(t, http.MethodDelete, "/user/add", "", &creds{"test", "sss"})
	expectStatus(t, rec, http.StatusUnauthorized)
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected Basic challenge header")
	}
	expectStatus(t, env.do(t, http.MethodDelete, "/user/add", "", nil), http.StatusUnauthorized)
	expectStatus(t, env.do(t, http.MethodDelete, "/user/add", "", test), http.StatusUnauthorized)

	add := &creds{"add", "add"}
	env.do(t, http.MethodPost, "/note", `{"text":"doomed"}`, add)
	expectStatus(t, env.do(t, http.MethodDelete, "/user/add", "", add), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/user/add/notes", "", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/note/1", "", nil), http.StatusNotFound)
}

func TestAuthRequired(t *testing.T) {
	env := openEnv(t)
	env.do(t, http.MethodPost, "/user/test", `{"password":"test"}`, nil)

	expectStatus(t, env.do(t, http.MethodPost, "/note", `{"text":"x"}`, nil), http.StatusUnauthorized)
	expectStatus(t, env.do(t, http.MethodPost, "/note", `{"text":"x"}`, &creds{"test", "wrong"}), http.StatusUnauthorized)
	expectStatus(t, env.do(t, http.MethodPost, "/note", `{"text":"x"}`, &creds{"ghost", "test"}), http.StatusUnauthorized)
	expectStatus(t, env.do(t, http.MethodPut, "/note/3", `{"text":"x"}`, nil), http.StatusUnauthorized)

	rec := env.do(t, http.MethodGet, "/test_auth", "", &creds{"test", "test"})
	expectStatus(t, rec, http.StatusOK)
	if msg := decode[string](t, rec); msg != "Successfully authenticated with user: test" {
		t.Fatalf("unexpected auth message %q", msg)
	}
}

func TestPutCreatesMissingNote(t *testing.T) {
	env := openEnv(t)
	env.do(t, http.MethodPost, "/user/test", `{"password":"test"}`, nil)

	rec := env.do(t, http.MethodPut, "/note/1", `{"text":"created by put"}`, &creds{"test", "test"})
	expectStatus(t, rec, http.StatusCreated)
	if loc := rec.Header().Get("Location"); loc != "/note/1" {
		t.Fatalf("unexpected Location %q", loc)
	}
	if text := decode[string](t, env.do(t, http.MethodGet, "/note/1", "", nil)); text != "created by put" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestMalformedNoteID(t *testing.T) {
	env := openEnv(t)
	expectStatus(t, env.do(t, http.MethodGet, "/note/abc", "", nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/note/0", "", nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/note/1/extra", "", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodPatch, "/note/1", "", nil), http.StatusMethodNotAllowed)
}

func TestNoteIDUpperBound(t *testing.T) {
	env := openEnv(t)
	test := &creds{"test", "test"}
	env.do(t, http.MethodPost, "/user/test", `{"password":"test"}`, nil)

	expectStatus(t, env.do(t, http.MethodPut, "/note/9223372036854775807", `{"text":"x"}`, test), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/note/9007199254740992", "", nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodDelete, "/note/9223372036854775807", "", test), http.StatusBadRequest)

	expectStatus(t, env.do(t, http.MethodPut, "/note/9007199254740991", `{"text":"edge"}`, test), http.StatusCreated)
	rec := env.do(t, http.MethodPost, "/note", `{"text":"after"}`, test)
	expectStatus(t, rec, http.StatusCreated)
	if created := decode[map[string]int64](t, rec); created["id"] <= 0 {
		t.Fatalf("expected positive id after max explicit id, got %v", created)
	}
}

func TestDeleteUserEvictsCachedNotes(t *testing.T) {
	env := newCachedTestEnv(t, Options{OpenRegistration: true}, newMapCache())
	alice := &creds{"alice", "pw"}
	env.do(t, http.MethodPost, "/user/alice", `{"password":"pw"}`, nil)

	expectStatus(t, env.do(t, http.MethodPost, "/note", `{"text":"secret"}`, alice), http.StatusCreated)
	expectStatus(t, env.do(t, http.MethodPut, "/note/5", `{"text":"also secret"}`, alice), http.StatusCreated)
	if text := decode[string](t, env.do(t, http.MethodGet, "/note/1", "", nil)); text != "secret" {
		t.Fatalf("unexpected text %q", text)
	}
	env.do(t, http.MethodGet, "/note/5", "", nil)
	env.do(t, http.MethodGet, "/user/alice/notes", "", nil)

	expectStatus(t, env.do(t, http.MethodDelete, "/user/alice", "", alice), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/note/1", "", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/note/5", "", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/user/alice/notes", "", nil), http.StatusNotFound)
}

func TestQueryFallbackOnlyForText(t *testing.T) {
	env := openEnv(t)

	expectStatus(t, env.do(t, http.MethodPost, "/user/query?password=pw", "", nil), http.StatusBadRequest)
	if _, err := env.repo.GetUserByName(context.Background(), "query"); err == nil {
		t.Fatal("expected no user registered from query password")
	}

	env.do(t, http.MethodPost, "/user/test", `{"password":"test"}`, nil)
	rec := env.do(t, http.MethodPost, "/note?text=hi", "", &creds{"test", "test"})
	expectStatus(t, rec, http.StatusCreated)
	if text := decode[string](t, env.do(t, http.MethodGet, "/note/1", "", nil)); text != "hi" {
		t.Fatalf("expected text from query, got %q", text)
	}
}

func TestClosedRegistration(t *testing.T) {
	env := newTestEnv(t, Options{OpenRegistration: false})
	expectStatus(t, env.do(t, http.MethodPost, "/user/add", `{"password":"add"}`, nil), http.StatusUnauthorized)

	// Bootstrap the first account directly, as the CLI does.
	authSvc := auth.New(env.repo, crypto.NewHasher(1, 16), newLogger())
	if _, err := authSvc.Register(context.Background(), "test", "test"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	expectStatus(t, env.do(t, http.MethodPost, "/user/add", `{"password":"add"}`, &creds{"test", "test"}), http.StatusCreated)
}

func TestRequestIDPropagation(t *testing.T) {
	env := openEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/user", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	rec = env.do(t, http.MethodGet, "/user", "", nil)
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}

func TestHealthz(t *testing.T) {
	env := openEnv(t)
	expectStatus(t, env.do(t, http.MethodGet, "/healthz", "", nil), http.StatusOK)

	logger := newLogger()
	repo := memory.New()
	notesSvc := notes.New(repo, repo, nil, nil, logger)
	down := NewRouter(logger, auth.New(repo, crypto.NewHasher(1, 16), logger), notesSvc, nil,
		func(context.Context) error { return errors.New("connection refused") }, Options{})
	rec := httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	expectStatus(t, rec, http.StatusServiceUnavailable)
	body := decode[map[string]any](t, rec)
	if body["status"] != "degraded" {
		t.Fatalf("expected degraded status, got %v", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := openEnv(t)
	env.do(t, http.MethodGet, "/user", "", nil)
	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "notes_api_http_requests_total") {
		t.Fatal("expected request counter in exposition")
	}
}

func TestNoteEventStream(t *testing.T) {
	env := openEnv(t)
	env.do(t, http.MethodPost, "/user/alice", `{"password":"pw1"}`, nil)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	missing, err := http.Get(srv.URL + "/events/notes?user=nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user stream, got %d", missing.StatusCode)
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/notes?user=alice", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	env.do(t, http.MethodPost, "/note", `{"text":"streamed"}`, &creds{"alice", "pw1"})

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if event["type"] != "created" || event["text"] != "streamed" || event["owner"] != "alice" {
			t.Fatalf("unexpected event %v", event)
		}
		return
	}
	t.Fatalf("stream ended without event: %v", scanner.Err())
}

type mapCache struct {
	notes  map[int64]domain.Note
	owners map[int64][]domain.Note
}

func newMapCache() *mapCache {
	return &mapCache{notes: map[int64]domain.Note{}, owners: map[int64][]domain.Note{}}
}

func (c *mapCache) GetNote(_ context.Context, id int64) (*domain.Note, error) {
	n, ok := c.notes[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (c *mapCache) SetNote(_ context.Context, n domain.Note) error {
	c.notes[n.ID] = n
	return nil
}

func (c *mapCache) GetOwnerNotes(_ context.Context, ownerID int64) ([]domain.Note, error) {
	return c.owners[ownerID], nil
}

func (c *mapCache) SetOwnerNotes(_ context.Context, ownerID int64, notes []domain.Note) error {
	c.owners[ownerID] = notes
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, noteID, ownerID int64) error {
	delete(c.notes, noteID)
	delete(c.owners, ownerID)
	return nil
}

func (c *mapCache) InvalidateOwner(_ context.Context, ownerID int64, noteIDs []int64) error {
	delete(c.owners, ownerID)
	for _, id := range noteIDs {
		delete(c.notes, id)
	}
	return nil
}
