// Package client talks to the voice ticket backend over HTTP and the
// session channel.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voicedesk/backend/internal/model/session"
)

// ErrSessionNotFound is returned when the backend does not know the session.
var ErrSessionNotFound = errors.New("session not found")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Session is the result of CreateSession.
type Session struct {
	SessionID      string `json:"sessionId"`
	WSURL          string `json:"wsUrl"`
	ChannelAddress string `json:"channelAddress"`
	Token          string `json:"token"`
	Status         string `json:"status"`
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// Client calls the REST API under /api/voice.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the backend at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession starts a new intake session.
func (c *Client) CreateSession(ctx context.Context) (Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/api/voice/session", nil, &out); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return out, nil
}

// GetSession fetches a session snapshot.
func (c *Client) GetSession(ctx context.Context, sessionID string) (session.Snapshot, error) {
	var out session.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/voice/session/"+sessionID, nil, &out); err != nil {
		return session.Snapshot{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return out, nil
}

// EndSession deletes a session and closes its channel.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/voice/session/"+sessionID, nil, nil); err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, err)
	}
	return nil
}

// LogMetrics appends a metrics entry to a session.
func (c *Client) LogMetrics(ctx context.Context, sessionID string, fields map[string]any) error {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["sessionId"] = sessionID

	if err := c.do(ctx, http.MethodPost, "/api/voice/metrics", body, nil); err != nil {
		return fmt.Errorf("log metrics for %s: %w", sessionID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrSessionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
