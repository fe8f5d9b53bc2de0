package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/voicedesk/backend/internal/client"
	"github.com/voicedesk/backend/internal/client/voice"
	"github.com/voicedesk/backend/internal/model/session"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run a ticket intake conversation in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runChatCmd,
	}

	cmd.Flags().String("session", "", "reuse an existing session id")
	cmd.Flags().String("lang", voice.DefaultLanguage, "recognition language")
	cmd.Flags().Bool("keep", false, "keep the session when the conversation ends")

	return cmd
}

func runChatCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	api := newClient(cmd)

	sessionID, _ := cmd.Flags().GetString("session")
	lang, _ := cmd.Flags().GetString("lang")
	keep, _ := cmd.Flags().GetBool("keep")

	var address string
	if sessionID == "" {
		created, err := api.CreateSession(ctx)
		if err != nil {
			return err
		}
		sessionID, address = created.SessionID, created.ChannelAddress
	} else {
		address = channelAddressFor(cmd, sessionID)
	}

	transport, err := dialTransport(ctx, address, client.Dial)
	if err != nil {
		return err
	}
	defer transport.Close()

	if !keep {
		defer func() {
			if err := api.EndSession(context.Background(), sessionID); err != nil && !errors.Is(err, client.ErrSessionNotFound) {
				fmt.Fprintln(cmd.ErrOrStderr(), "failed to end session:", err)
			}
		}()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "session", sessionID)

	adapter := voice.New(
		newLineRecognizer(cmd.InOrStdin(), out),
		&printSynthesizer{out: out},
		transport,
		voice.WithLanguage(lang),
	)

	if err := adapter.Greet(ctx); err != nil {
		return err
	}

	for transport.last() != session.StateComplete {
		if ctx.Err() != nil {
			return nil
		}
		if err := adapter.Toggle(ctx); err != nil {
			return err
		}
		if err := adapter.Wait(ctx); err != nil {
			return err
		}

		if adapter.State() == voice.StateError {
			turnErr := adapter.Err()
			if errors.Is(turnErr, io.EOF) {
				return nil
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "turn failed:", turnErr)
			if errors.Is(turnErr, client.ErrClosed) {
				if err := transport.redial(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "reconnected to session", sessionID)
			}
			adapter.Retry()
		}
	}
	return nil
}

func channelAddressFor(cmd *cobra.Command, sessionID string) string {
	server, _ := cmd.Flags().GetString("server")
	return httpToWS(server) + "/ws/voice/" + sessionID
}

func httpToWS(base string) string {
	if rest, ok := strings.CutPrefix(base, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(base, "http://"); ok {
		return "ws://" + rest
	}
	return base
}

// channelConn is the part of client.Channel the chat loop needs.
type channelConn interface {
	voice.Transport
	Close() error
}

type dialFunc func(ctx context.Context, address string) (*client.Channel, error)

// sessionTransport remembers the backend state of the last reply and can
// replace a dead channel with a fresh one for the same session.
type sessionTransport struct {
	address string
	dial    func(ctx context.Context, address string) (channelConn, error)

	mu    sync.Mutex
	conn  channelConn
	state session.State
}

func dialTransport(ctx context.Context, address string, dial dialFunc) (*sessionTransport, error) {
	t := &sessionTransport{
		address: address,
		dial: func(ctx context.Context, address string) (channelConn, error) {
			return dial(ctx, address)
		},
	}
	if err := t.redial(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *sessionTransport) Send(ctx context.Context, utterance string) (voice.Reply, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	reply, err := conn.Send(ctx, utterance)
	if err == nil {
		t.mu.Lock()
		t.state = reply.State
		t.mu.Unlock()
	}
	return reply, err
}

// redial closes the current channel, if any, and dials the session again.
func (t *sessionTransport) redial(ctx context.Context) error {
	conn, err := t.dial(ctx, t.address)
	if err != nil {
		return err
	}

	t.mu.Lock()
	old := t.conn
	t.conn = conn
	t.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (t *sessionTransport) last() session.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *sessionTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

var _ voice.Transport = (*client.Channel)(nil)
