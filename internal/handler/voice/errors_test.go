package voice

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voicedesk/backend/internal/service/ai"
	sessionservice "github.com/voicedesk/backend/internal/service/session"
)

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusForError(fmt.Errorf("lookup: %w", sessionservice.ErrSessionNotFound)))
	assert.Equal(t, http.StatusBadGateway, statusForError(fmt.Errorf("respond: %w", ai.ErrUpstreamFailure)))
	assert.Equal(t, http.StatusInternalServerError, statusForError(errors.New("boom")))
}

func TestRespondServiceError(t *testing.T) {
	h := New(nil, "")

	rec := httptest.NewRecorder()
	h.respondServiceError(rec, sessionservice.ErrSessionNotFound)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"session not found"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.respondServiceError(rec, errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}
