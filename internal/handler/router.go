package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/voicedesk/backend/internal/config"
	"github.com/voicedesk/backend/internal/handler/voice"
	middlewarePkg "github.com/voicedesk/backend/internal/middleware"
	sessionService "github.com/voicedesk/backend/internal/service/session"
	"github.com/voicedesk/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(serverCfg config.ServerConfig, sessions *sessionService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(serverCfg.CORSOrigins))

	voiceHandler := voice.New(sessions, serverCfg.PublicWSURL)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"activeSessions": sessions.Count(),
			"timestamp":      time.Now().UTC(),
		})
	})

	r.Route("/api/voice", voiceHandler.RegisterRoutes)
	voiceHandler.RegisterChannelRoutes(r)

	return r
}
