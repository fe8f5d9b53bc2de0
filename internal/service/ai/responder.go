package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voicedesk/backend/internal/model/session"
	"github.com/voicedesk/backend/internal/service/conversation"
)

// ErrUpstreamFailure is returned when the completion service fails or times out.
var ErrUpstreamFailure = errors.New("failed to generate AI response")

// FallbackReply is spoken when the completion comes back empty.
const FallbackReply = "I understand. Can you tell me more?"

const (
	defaultTimeout = 5 * time.Second
	historyLimit   = 10
)

// Option customizes a Responder.
type Option func(*Responder)

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(p string) Option {
	return func(r *Responder) {
		if strings.TrimSpace(p) != "" {
			r.systemPrompt = p
		}
	}
}

// WithTimeout bounds each completion call.
func WithTimeout(d time.Duration) Option {
	return func(r *Responder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithEngine sets the state machine that decides transitions.
func WithEngine(e *conversation.Engine) Option {
	return func(r *Responder) {
		if e != nil {
			r.engine = e
		}
	}
}

// WithLogger overrides the global logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Responder) { r.logger = logger }
}

// Responder answers utterances with a chat model while the keyword engine
// keeps deciding state transitions.
type Responder struct {
	engine       *conversation.Engine
	chain        compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
	timeout      time.Duration
	logger       zerolog.Logger
}

// NewResponder compiles the prompt chain around chatModel.
func NewResponder(ctx context.Context, chatModel model.ChatModel, opts ...Option) (*Responder, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	r := &Responder{
		engine:       conversation.NewEngine(),
		chain:        runnable,
		systemPrompt: DefaultSystemPrompt,
		timeout:      defaultTimeout,
		logger:       log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Respond implements conversation.Responder. The session is updated only
// when the completion succeeds.
func (r *Responder) Respond(ctx context.Context, sess *session.Session, utterance string) (conversation.Reply, error) {
	draft := sess.Clone()
	planned := r.engine.Advance(draft, utterance)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	input := map[string]any{
		"system":  buildSystemPrompt(r.systemPrompt, draft, planned.Text),
		"history": buildHistoryMessages(sess.Transcript),
		"query":   utterance,
	}

	started := time.Now()
	response, err := r.chain.Invoke(ctx, input)
	if err != nil {
		r.logger.Error().Err(err).Str("session", sess.ID).Msg("completion failed")
		return conversation.Reply{}, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}

	text := ""
	if response != nil {
		text = strings.TrimSpace(response.Content)
	}
	if text == "" {
		text = FallbackReply
	}

	r.logger.Debug().
		Str("session", sess.ID).
		Dur("latency", time.Since(started)).
		Int("length", len(text)).
		Msg("completion generated")

	sess.State = draft.State
	sess.Context = draft.Context

	return conversation.Reply{Text: text, State: draft.State, Submitted: planned.Submitted}, nil
}

func buildHistoryMessages(turns []session.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	start := 0
	if len(turns) > historyLimit {
		start = len(turns) - historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-start)
	for _, turn := range turns[start:] {
		switch turn.Role {
		case session.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case session.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
