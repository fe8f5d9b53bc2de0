package voice

import (
	"errors"
	"net/http"

	"github.com/voicedesk/backend/internal/service/ai"
	sessionservice "github.com/voicedesk/backend/internal/service/session"
	"github.com/voicedesk/backend/pkg/utils"
)

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, sessionservice.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ai.ErrUpstreamFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes err with the status from statusForError.
// Internal errors are logged and reported generically.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	switch status {
	case http.StatusNotFound:
		utils.RespondError(w, status, sessionservice.ErrSessionNotFound.Error())
	case http.StatusBadGateway:
		utils.RespondError(w, status, ai.ErrUpstreamFailure.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		utils.RespondError(w, status, "internal error")
	}
}
