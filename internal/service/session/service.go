package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voicedesk/backend/internal/model/session"
	"github.com/voicedesk/backend/internal/service/conversation"
	"github.com/voicedesk/backend/internal/service/ticket"
)

var ErrSessionNotFound = errors.New("session not found")

// Created is returned by Create.
type Created struct {
	SessionID string
	Token     string
	CreatedAt time.Time
}

type entry struct {
	mu   sync.Mutex
	sess *session.Session
}

// Option customizes a Service.
type Option func(*Service)

// WithPublisher sets where submitted tickets are announced.
func WithPublisher(p ticket.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger overrides the global logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// Service owns every live session in process memory.
type Service struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	conns     *connectionManager
	responder conversation.Responder
	publisher ticket.Publisher
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService returns an empty store that answers utterances with responder.
func NewService(responder conversation.Responder, opts ...Option) *Service {
	s := &Service{
		entries:   make(map[string]*entry),
		conns:     newConnectionManager(),
		responder: responder,
		now:       time.Now,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher == nil {
		s.publisher = ticket.NewLogPublisher(s.logger)
	}
	return s
}

// Create starts a new session in the greeting state.
func (s *Service) Create(_ context.Context) (Created, error) {
	sess := session.New(uuid.NewString(), s.now())

	s.mu.Lock()
	s.entries[sess.ID] = &entry{sess: sess}
	s.mu.Unlock()

	s.logger.Info().Str("session", sess.ID).Msg("session created")
	return Created{
		SessionID: sess.ID,
		Token:     "token_" + sess.ID,
		CreatedAt: sess.CreatedAt,
	}, nil
}

// Get returns a snapshot of the session.
func (s *Service) Get(_ context.Context, sessionID string) (session.Snapshot, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Snapshot(s.conns.has(sessionID)), nil
}

// Attach binds a live channel to the session, closing any channel it replaces.
func (s *Service) Attach(_ context.Context, sessionID string, conn Conn) error {
	// The read lock keeps Delete from interleaving between lookup and add.
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	if !ok {
		s.mu.RUnlock()
		return ErrSessionNotFound
	}
	replaced := s.conns.add(sessionID, conn)
	s.mu.RUnlock()

	now := s.now().UTC()
	e.mu.Lock()
	e.sess.ConnectedAt = &now
	e.mu.Unlock()

	if replaced != nil {
		s.logger.Info().Str("session", sessionID).Msg("replacing attached channel")
		_ = replaced.Close()
	}
	return nil
}

// Detach forgets conn if it is still the session's channel.
func (s *Service) Detach(sessionID string, conn Conn) {
	if s.conns.remove(sessionID, conn) {
		s.logger.Debug().Str("session", sessionID).Msg("channel detached")
	}
}

// Delete closes the session's channel and removes the session.
func (s *Service) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	if _, ok := s.entries[sessionID]; !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.entries, sessionID)
	conn := s.conns.take(sessionID)
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.logger.Info().Str("session", sessionID).Msg("session ended")
	return nil
}

// AppendMetric stores a client metric entry and returns it.
func (s *Service) AppendMetric(_ context.Context, sessionID string, fields map[string]any) (session.Metric, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	metric := session.NewMetric(sessionID, fields, s.now())

	e.mu.Lock()
	e.sess.Metrics = append(e.sess.Metrics, metric)
	e.mu.Unlock()

	return metric, nil
}

// Process runs one utterance through the responder.
func (s *Service) Process(ctx context.Context, sessionID, utterance string) (conversation.Reply, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return conversation.Reply{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.sess.State
	reply, err := s.responder.Respond(ctx, e.sess, utterance)
	if err != nil {
		return conversation.Reply{}, fmt.Errorf("respond to session %s: %w", sessionID, err)
	}

	now := s.now().UTC()
	e.sess.Transcript = append(e.sess.Transcript,
		session.Turn{Role: session.RoleUser, Content: utterance, CreatedAt: now},
		session.Turn{Role: session.RoleAssistant, Content: reply.Text, CreatedAt: now},
	)

	s.logger.Info().
		Str("session", sessionID).
		Str("from", string(from)).
		Str("to", string(reply.State)).
		Msg("utterance processed")

	if reply.Submitted {
		if err := s.publisher.Publish(ctx, ticket.FromSession(e.sess, now)); err != nil {
			s.logger.Error().Err(err).Str("session", sessionID).Msg("failed to publish ticket")
		}
	}

	return reply, nil
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close closes every attached channel.
func (s *Service) Close() {
	s.conns.closeAll()
}

func (s *Service) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}
