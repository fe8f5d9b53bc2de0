package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voicedesk/backend/internal/client/voice"
	"github.com/voicedesk/backend/internal/model/channel"
)

var (
	// ErrServer is returned when the backend answers an utterance with an error frame.
	ErrServer = errors.New("backend error")
	// ErrClosed is returned once the connection is gone. Dial again to resume the session.
	ErrClosed = errors.New("channel closed")
)

const (
	defaultReplyTimeout = 30 * time.Second
	writeWait           = 5 * time.Second
	replyBuffer         = 8
)

// Channel is a live session connection. It implements voice.Transport.
//
// A single reader goroutine owns the socket's read side for the whole
// connection, so server pings are answered between turns too.
type Channel struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	// sendMu allows one utterance in flight and owns the socket writer.
	sendMu sync.Mutex

	replies chan channel.Outbound
	done    chan struct{}
	readErr error

	closeOnce sync.Once
}

// Dial connects to a channel address returned by CreateSession.
func Dial(ctx context.Context, address string) (*Channel, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, address, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial channel: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial channel: %w", err)
	}

	c := &Channel{
		conn:    conn,
		logger:  log.Logger,
		replies: make(chan channel.Outbound, replyBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Done is closed when the connection can no longer be read.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended, or nil while it is open.
func (c *Channel) Err() error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	default:
		return nil
	}
}

// Send delivers one utterance and waits for the reply. A metrics frame
// with the round trip latency follows every successful reply.
func (c *Channel) Send(ctx context.Context, utterance string) (voice.Reply, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.Err(); err != nil {
		return voice.Reply{}, err
	}
	c.discardStale()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultReplyTimeout)
		defer cancel()
	}

	started := time.Now()
	if err := c.write(channel.TextFrame{Text: utterance}); err != nil {
		return voice.Reply{}, err
	}

	select {
	case frame := <-c.replies:
		switch f := frame.(type) {
		case channel.ResponseFrame:
			metrics := channel.MetricsFrame{Fields: map[string]any{
				"latencyMs":       time.Since(started).Milliseconds(),
				"utteranceLength": len(utterance),
				"replyLength":     len(f.Text),
			}}
			if err := c.write(metrics); err != nil {
				c.logger.Warn().Err(err).Msg("failed to send metrics")
			}
			return voice.Reply{Text: f.Text, State: f.State}, nil
		case channel.ErrorFrame:
			return voice.Reply{}, fmt.Errorf("%w: %s", ErrServer, f.Message)
		default:
			return voice.Reply{}, fmt.Errorf("%w: unexpected frame %T", ErrServer, frame)
		}
	case <-c.done:
		return voice.Reply{}, c.Err()
	case <-ctx.Done():
		return voice.Reply{}, fmt.Errorf("wait for reply: %w", ctx.Err())
	}
}

// Close says goodbye and closes the connection.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

// readLoop keeps reading until the socket fails. The default ping handler
// runs inside ReadMessage.
func (c *Channel) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}

		frame, err := channel.DecodeOutbound(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping frame")
			continue
		}

		select {
		case c.replies <- frame:
		default:
			c.logger.Warn().Msgf("dropping unclaimed %T", frame)
		}
	}
}

// discardStale drops replies that arrived after an earlier Send gave up.
func (c *Channel) discardStale() {
	for {
		select {
		case frame := <-c.replies:
			c.logger.Debug().Msgf("discarding late %T", frame)
		default:
			return
		}
	}
}

func (c *Channel) write(frame channel.Inbound) error {
	data, err := channel.EncodeInbound(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: write frame: %v", ErrClosed, err)
	}
	return nil
}
