package voice

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	sessionservice "github.com/voicedesk/backend/internal/service/session"
	"github.com/voicedesk/backend/pkg/utils"
)

// Handler serves the voice session REST API and the session channel.
type Handler struct {
	sessions    *sessionservice.Service
	publicWSURL string
	upgrader    websocket.Upgrader
	logger      zerolog.Logger
	pingPeriod  time.Duration
	readTimeout time.Duration
}

// New creates a voice handler. publicWSURL may be empty.
func New(sessions *sessionservice.Service, publicWSURL string) *Handler {
	return &Handler{
		sessions:    sessions,
		publicWSURL: strings.TrimRight(publicWSURL, "/"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:      log.With().Str("component", "voice").Logger(),
		pingPeriod:  54 * time.Second,
		readTimeout: 60 * time.Second,
	}
}

// RegisterRoutes mounts the REST endpoints; callers mount it under /api/voice.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}", h.handleGetSession)
	r.Delete("/session/{sessionID}", h.handleEndSession)
	r.Post("/session/{sessionID}/text", h.handleText)
	r.Post("/metrics", h.handleMetrics)
}

// RegisterChannelRoutes mounts the WebSocket endpoint. A missing session id
// is upgraded and rejected like an unknown one.
func (h *Handler) RegisterChannelRoutes(r chi.Router) {
	r.Get("/ws/voice/", h.handleChannel)
	r.Get("/ws/voice/{sessionID}", h.handleChannel)
}

type createSessionResponse struct {
	SessionID      string `json:"sessionId"`
	WSURL          string `json:"wsUrl"`
	ChannelAddress string `json:"channelAddress"`
	Token          string `json:"token"`
	Status         string `json:"status"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	created, err := h.sessions.Create(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	address := h.channelAddress(r, created.SessionID)
	utils.RespondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:      created.SessionID,
		WSURL:          address,
		ChannelAddress: address,
		Token:          created.Token,
		Status:         "created",
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ended",
		"sessionId": sessionID,
	})
}

func (h *Handler) handleText(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	reply, err := h.sessions.Process(r.Context(), chi.URLParam(r, "sessionID"), text)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"text":      reply.Text,
		"state":     reply.State,
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload == nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID, _ := payload["sessionId"].(string)
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	delete(payload, "sessionId")

	entry, err := h.sessions.AppendMetric(r.Context(), sessionID, payload)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.logger.Debug().Str("session", sessionID).Interface("metrics", entry).Msg("metrics logged")
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":  "logged",
		"metrics": entry,
	})
}

// channelAddress builds the ws(s) URL a client dials for sessionID.
func (h *Handler) channelAddress(r *http.Request, sessionID string) string {
	base := h.publicWSURL
	if base == "" {
		scheme := "ws"
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			scheme = "wss"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/ws/voice/" + sessionID
}
