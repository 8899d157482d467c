package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Client provides typed access to the notes API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      *Credentials
}

// Credentials are sent as HTTP Basic auth on mutating requests.
type Credentials struct {
	Username string
	Password string
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithCredentials attaches Basic credentials to every request.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		if username != "" {
			c.creds = &Credentials{Username: username, Password: password}
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:8000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// BaseURL reports the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError carrying status.
func IsStatus(err error, status int) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) (*http.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return resp, APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if v == nil {
		return resp, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// Note is a note as listed for a user.
type Note struct {
	ID   int64
	Text string
}

// Registration is the payload returned after creating a user.
type Registration struct {
	Result string `json:"result"`
	ID     int64  `json:"id"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

func userPath(name string) string {
	return "/user/" + url.PathEscape(name)
}

func notePath(id int64) string {
	return "/note/" + strconv.FormatInt(id, 10)
}

// ListUsers returns every registered username.
func (c *Client) ListUsers(ctx context.Context) ([]string, error) {
	var names []string
	if _, err := c.do(ctx, http.MethodGet, "/user", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Register creates a user with the given password.
func (c *Client) Register(ctx context.Context, name, password string) (Registration, error) {
	var reg Registration
	_, err := c.do(ctx, http.MethodPost, userPath(name), map[string]string{"password": password}, &reg)
	return reg, err
}

// DeleteUser removes name. The client credentials must belong to name.
func (c *Client) DeleteUser(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodDelete, userPath(name), nil, nil)
	return err
}

// TestAuth verifies the client credentials and returns the server greeting.
func (c *Client) TestAuth(ctx context.Context) (string, error) {
	var msg string
	_, err := c.do(ctx, http.MethodGet, "/test_auth", nil, &msg)
	return msg, err
}

// ListNotes returns the notes owned by name ordered by id.
func (c *Client) ListNotes(ctx context.Context, name string) ([]Note, error) {
	var raw map[string]string
	if _, err := c.do(ctx, http.MethodGet, userPath(name)+"/notes", nil, &raw); err != nil {
		return nil, err
	}
	notes := make([]Note, 0, len(raw))
	for key, text := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode note id %q: %w", key, err)
		}
		notes = append(notes, Note{ID: id, Text: text})
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	return notes, nil
}

// GetNote returns the text of note id.
func (c *Client) GetNote(ctx context.Context, id int64) (string, error) {
	var text string
	_, err := c.do(ctx, http.MethodGet, notePath(id), nil, &text)
	return text, err
}

// CreateNote stores text as a new note and returns its id.
func (c *Client) CreateNote(ctx context.Context, text string) (int64, error) {
	var out idResponse
	if _, err := c.do(ctx, http.MethodPost, "/note", map[string]string{"text": text}, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// PutNote replaces the text of note id. created reports whether the server inserted it.
func (c *Client) PutNote(ctx context.Context, id int64, text string) (created bool, err error) {
	var out idResponse
	resp, err := c.do(ctx, http.MethodPut, notePath(id), map[string]string{"text": text}, &out)
	if err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusCreated, nil
}

// DeleteNote removes note id.
func (c *Client) DeleteNote(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, notePath(id), nil, nil)
	return err
}
