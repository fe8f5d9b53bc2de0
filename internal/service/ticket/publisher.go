package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/voicedesk/backend/internal/model/session"
)

// DefaultChannel is the Redis channel submitted tickets are published on.
const DefaultChannel = "tickets.submitted"

// Ticket is the payload handed to downstream support tooling.
type Ticket struct {
	ID          string          `json:"ticketId"`
	SessionID   string          `json:"sessionId"`
	Product     session.Product `json:"product"`
	Issue       string          `json:"issue"`
	Urgency     session.Urgency `json:"urgency"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

// FromSession builds a Ticket from the session's gathered context.
func FromSession(sess *session.Session, at time.Time) Ticket {
	return Ticket{
		ID:          sess.Context.TicketID,
		SessionID:   sess.ID,
		Product:     sess.Context.Product,
		Issue:       sess.Context.Issue,
		Urgency:     sess.Context.Urgency,
		SubmittedAt: at.UTC(),
	}
}

// Publisher announces submitted tickets.
type Publisher interface {
	Publish(ctx context.Context, t Ticket) error
}

// LogPublisher writes submitted tickets to the log.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher returns a Publisher backed by logger.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, t Ticket) error {
	p.logger.Info().
		Str("ticket", t.ID).
		Str("session", t.SessionID).
		Str("product", string(t.Product)).
		Str("urgency", string(t.Urgency)).
		Msg("ticket submitted")
	return nil
}

// redisPublisher is the subset of the redis client used here.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisPublisher fans submitted tickets out over Redis pub/sub.
type RedisPublisher struct {
	client  redisPublisher
	channel string
}

// NewRedisPublisher connects to redisURL and verifies the connection.
func NewRedisPublisher(ctx context.Context, redisURL, channel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisPublisher(client, channel), nil
}

func newRedisPublisher(client redisPublisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, t Ticket) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish ticket %s: %w", t.ID, err)
	}
	return nil
}

// Close releases the redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
