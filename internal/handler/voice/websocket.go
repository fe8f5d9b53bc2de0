package voice

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voicedesk/backend/internal/model/channel"
	"github.com/voicedesk/backend/internal/service/ai"
	sessionservice "github.com/voicedesk/backend/internal/service/session"
)

const (
	invalidSessionReason = "Invalid session"
	writeWait            = 5 * time.Second
)

// channelConn is the handle the session service holds for a live socket.
// Close may be called from any goroutine.
type channelConn struct {
	conn *websocket.Conn
	once sync.Once
}

func (c *channelConn) Close() error {
	var err error
	c.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}

func (h *Handler) handleChannel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("session", sessionID).Msg("upgrade failed")
		return
	}

	ch := &channelConn{conn: conn}
	if err := h.sessions.Attach(r.Context(), sessionID, ch); err != nil {
		h.logger.Info().Str("session", sessionID).Msg("rejecting channel for unknown session")
		rejectChannel(conn)
		return
	}
	defer h.sessions.Detach(sessionID, ch)
	defer ch.Close()

	h.logger.Info().Str("session", sessionID).Msg("channel opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Warn().Err(err).Str("session", sessionID).Msg("channel read failed")
			}
			h.logger.Info().Str("session", sessionID).Msg("channel closed")
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		frame, err := channel.DecodeInbound(data)
		if err != nil {
			h.logger.Warn().Err(err).Str("session", sessionID).Msg("dropping frame")
			continue
		}

		if !h.handleFrame(ctx, conn, sessionID, frame) {
			return
		}
	}
}

// handleFrame processes one inbound frame and reports whether the loop should continue.
func (h *Handler) handleFrame(ctx context.Context, conn *websocket.Conn, sessionID string, frame channel.Inbound) bool {
	switch f := frame.(type) {
	case channel.TextFrame:
		text := strings.TrimSpace(f.Text)
		if text == "" {
			return true
		}

		reply, err := h.sessions.Process(ctx, sessionID, text)
		switch {
		case errors.Is(err, sessionservice.ErrSessionNotFound):
			return false
		case errors.Is(err, ai.ErrUpstreamFailure):
			return h.send(conn, sessionID, channel.ErrorFrame{Message: ai.ErrUpstreamFailure.Error()})
		case err != nil:
			h.logger.Error().Err(err).Str("session", sessionID).Msg("failed to process utterance")
			return h.send(conn, sessionID, channel.ErrorFrame{Message: "failed to process utterance"})
		}

		return h.send(conn, sessionID, channel.ResponseFrame{
			Text:      reply.Text,
			State:     reply.State,
			Timestamp: time.Now().UTC(),
		})

	case channel.MetricsFrame:
		if _, err := h.sessions.AppendMetric(ctx, sessionID, f.Fields); err != nil {
			return !errors.Is(err, sessionservice.ErrSessionNotFound)
		}
		return true
	}

	h.logger.Warn().Str("session", sessionID).Msgf("unhandled frame %T", frame)
	return true
}

func (h *Handler) send(conn *websocket.Conn, sessionID string, frame channel.Outbound) bool {
	data, err := channel.EncodeOutbound(frame)
	if err != nil {
		h.logger.Error().Err(err).Str("session", sessionID).Msg("failed to encode frame")
		return true
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Str("session", sessionID).Msg("write failed")
		return false
	}
	return true
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func rejectChannel(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, invalidSessionReason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}
