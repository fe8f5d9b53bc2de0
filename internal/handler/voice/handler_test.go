package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicedesk/backend/internal/model/session"
	"github.com/voicedesk/backend/internal/service/conversation"
	sessionservice "github.com/voicedesk/backend/internal/service/session"
)

func setupHandler(t *testing.T, responder conversation.Responder, publicWSURL string) (*Handler, *sessionservice.Service) {
	t.Helper()
	if responder == nil {
		responder = conversation.NewEngine(conversation.WithTicketIDs(func() string { return "T-100" }))
	}
	sessions := sessionservice.NewService(responder, sessionservice.WithLogger(zerolog.Nop()))
	t.Cleanup(sessions.Close)

	h := New(sessions, publicWSURL)
	h.logger = zerolog.Nop()
	return h, sessions
}

func mountRoutes(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api/voice", h.RegisterRoutes)
	h.RegisterChannelRoutes(r)
	return r
}

func setupRouter(t *testing.T, responder conversation.Responder, publicWSURL string) (*chi.Mux, *sessionservice.Service) {
	t.Helper()
	h, sessions := setupHandler(t, responder, publicWSURL)
	return mountRoutes(h), sessions
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestCreateSession(t *testing.T) {
	r, sessions := setupRouter(t, nil, "")

	resp := doRequest(r, http.MethodPost, "/api/voice/session", "")
	require.Equal(t, http.StatusCreated, resp.Code)

	body := decodeBody(t, resp)
	id, _ := body["sessionId"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, "token_"+id, body["token"])
	assert.Equal(t, "ws://example.com/ws/voice/"+id, body["channelAddress"])
	assert.Equal(t, body["channelAddress"], body["wsUrl"])
	assert.Equal(t, 1, sessions.Count())
}

func TestCreateSessionUsesPublicURL(t *testing.T) {
	r, _ := setupRouter(t, nil, "wss://voice.example.org/")

	body := decodeBody(t, doRequest(r, http.MethodPost, "/api/voice/session", ""))
	assert.True(t, strings.HasPrefix(body["channelAddress"].(string), "wss://voice.example.org/ws/voice/"))
}

func TestCreateSessionForwardedProto(t *testing.T) {
	r, _ := setupRouter(t, nil, "")

	req := httptest.NewRequest(http.MethodPost, "/api/voice/session", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	body := decodeBody(t, resp)
	assert.True(t, strings.HasPrefix(body["channelAddress"].(string), "wss://example.com/ws/voice/"))
}

func TestGetSession(t *testing.T) {
	r, sessions := setupRouter(t, nil, "")
	created, err := sessions.Create(context.Background())
	require.NoError(t, err)

	resp := doRequest(r, http.MethodGet, "/api/voice/session/"+created.SessionID, "")
	require.Equal(t, http.StatusOK, resp.Code)

	body := decodeBody(t, resp)
	assert.Equal(t, created.SessionID, body["sessionId"])
	assert.Equal(t, "greeting", body["state"])
	assert.Equal(t, false, body["isConnected"])
	assert.Nil(t, body["connectedAt"])
	assert.Equal(t, []any{}, body["metrics"])

	ctxBody, ok := body["context"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"product", "issue", "urgency", "ticketId"} {
		value, present := ctxBody[key]
		assert.True(t, present, key)
		assert.Nil(t, value, key)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	r, _ := setupRouter(t, nil, "")

	resp := doRequest(r, http.MethodGet, "/api/voice/session/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.JSONEq(t, `{"error":"session not found"}`, resp.Body.String())
}

func TestEndSession(t *testing.T) {
	r, sessions := setupRouter(t, nil, "")
	created, _ := sessions.Create(context.Background())

	resp := doRequest(r, http.MethodDelete, "/api/voice/session/"+created.SessionID, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ended","sessionId":"`+created.SessionID+`"}`, resp.Body.String())

	resp = doRequest(r, http.MethodGet, "/api/voice/session/"+created.SessionID, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = doRequest(r, http.MethodDelete, "/api/voice/session/"+created.SessionID, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestLogMetrics(t *testing.T) {
	r, sessions := setupRouter(t, nil, "")
	created, _ := sessions.Create(context.Background())

	payload := `{"sessionId":"` + created.SessionID + `","latencyMs":420,"responseEndTime":1700000000}`
	resp := doRequest(r, http.MethodPost, "/api/voice/metrics", payload)
	require.Equal(t, http.StatusOK, resp.Code)

	body := decodeBody(t, resp)
	assert.Equal(t, "logged", body["status"])
	entry, ok := body["metrics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 420.0, entry["latencyMs"])
	assert.Equal(t, created.SessionID, entry["sessionId"])
	assert.NotEmpty(t, entry["timestamp"])

	snap, err := sessions.Get(context.Background(), created.SessionID)
	require.NoError(t, err)
	require.Len(t, snap.Metrics, 1)
}

func TestLogMetricsErrors(t *testing.T) {
	r, _ := setupRouter(t, nil, "")

	resp := doRequest(r, http.MethodPost, "/api/voice/metrics", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(r, http.MethodPost, "/api/voice/metrics", `{"latencyMs":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(r, http.MethodPost, "/api/voice/metrics", `{"sessionId":"ghost","latencyMs":1}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPostText(t *testing.T) {
	r, sessions := setupRouter(t, nil, "")
	created, _ := sessions.Create(context.Background())
	path := "/api/voice/session/" + created.SessionID + "/text"

	resp := doRequest(r, http.MethodPost, path, `{"text":"The website is down"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	body := decodeBody(t, resp)
	assert.Equal(t, string(session.StateCollectingIssue), body["state"])
	assert.Contains(t, body["text"], "website")
	assert.NotEmpty(t, body["timestamp"])

	snap, _ := sessions.Get(context.Background(), created.SessionID)
	assert.Equal(t, session.ProductWebsite, snap.Context.Product)
}

func TestPostTextErrors(t *testing.T) {
	r, sessions := setupRouter(t, nil, "")
	created, _ := sessions.Create(context.Background())
	path := "/api/voice/session/" + created.SessionID + "/text"

	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodPost, path, `{"text":"   "}`).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodPost, path, `oops`).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(r, http.MethodPost, "/api/voice/session/ghost/text", `{"text":"hi"}`).Code)
}

func TestPostTextUpstreamFailure(t *testing.T) {
	r, sessions := setupRouter(t, upstreamFailure{}, "")
	created, _ := sessions.Create(context.Background())

	resp := doRequest(r, http.MethodPost, "/api/voice/session/"+created.SessionID+"/text", `{"text":"mobile"}`)
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.JSONEq(t, `{"error":"failed to generate AI response"}`, resp.Body.String())
}
