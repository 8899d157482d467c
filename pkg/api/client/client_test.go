package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewNormalisesBaseURL(t *testing.T) {
	cli, err := New("localhost:9000/")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cli.BaseURL() != "http://localhost:9000" {
		t.Fatalf("unexpected base url %q", cli.BaseURL())
	}
	cli, _ = New("")
	if cli.BaseURL() != "http://localhost:8000" {
		t.Fatalf("unexpected default base url %q", cli.BaseURL())
	}
}

func TestCreateNoteSendsBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "pw1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost || r.URL.Path != "/note" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["text"] != "hello" {
			t.Errorf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	cli, _ := New(srv.URL, WithCredentials("alice", "pw1"))
	id, err := cli.CreateNote(context.Background(), "hello")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id 7, got %d", id)
	}

	anon, _ := New(srv.URL)
	if _, err := anon.CreateNote(context.Background(), "hello"); !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestListNotesOrdersByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/alice/notes" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"10":"ten","2":"two"}`))
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	notes, err := cli.ListNotes(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(notes) != 2 || notes[0].ID != 2 || notes[1].Text != "ten" {
		t.Fatalf("unexpected notes %+v", notes)
	}
}

func TestPutNoteReportsCreation(t *testing.T) {
	status := http.StatusCreated
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"id":3}`))
	}))
	defer srv.Close()

	cli, _ := New(srv.URL, WithCredentials("alice", "pw1"))
	created, err := cli.PutNote(context.Background(), 3, "x")
	if err != nil || !created {
		t.Fatalf("expected created, got %v %v", created, err)
	}
	status = http.StatusOK
	created, err = cli.PutNote(context.Background(), 3, "y")
	if err != nil || created {
		t.Fatalf("expected update, got %v %v", created, err)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Username exists"}`))
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	_, err := cli.Register(context.Background(), "alice", "pw")
	var apiErr APIError
	if !IsStatus(err, http.StatusBadRequest) {
		t.Fatalf("expected 400, got %v", err)
	}
	apiErr = err.(APIError)
	if apiErr.Message != "Username exists" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}
