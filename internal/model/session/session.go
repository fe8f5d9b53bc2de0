package session

import "time"

// Role identifies who produced a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance or reply in the conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Metric is a client supplied latency record stored verbatim with a server timestamp.
type Metric map[string]any

// NewMetric copies fields and stamps them with the owning session and the receive time.
func NewMetric(sessionID string, fields map[string]any, at time.Time) Metric {
	entry := make(Metric, len(fields)+2)
	for k, v := range fields {
		entry[k] = v
	}
	entry["sessionId"] = sessionID
	entry["timestamp"] = at.UTC()
	return entry
}

// Session captures one ticket intake conversation.
type Session struct {
	ID          string
	State       State
	Context     Context
	Metrics     []Metric
	Transcript  []Turn
	CreatedAt   time.Time
	ConnectedAt *time.Time
}

// New returns a session at the start of the flow.
func New(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		State:      StateGreeting,
		Metrics:    make([]Metric, 0, 8),
		Transcript: make([]Turn, 0, 16),
		CreatedAt:  now.UTC(),
	}
}

// Clone returns a copy that shares no mutable slices with s.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Metrics = append([]Metric(nil), s.Metrics...)
	clone.Transcript = append([]Turn(nil), s.Transcript...)
	if s.ConnectedAt != nil {
		at := *s.ConnectedAt
		clone.ConnectedAt = &at
	}
	return &clone
}

// Snapshot is the read model returned to API callers.
type Snapshot struct {
	SessionID   string     `json:"sessionId"`
	State       State      `json:"state"`
	Context     Context    `json:"context"`
	Metrics     []Metric   `json:"metrics"`
	CreatedAt   time.Time  `json:"createdAt"`
	ConnectedAt *time.Time `json:"connectedAt"`
	IsConnected bool       `json:"isConnected"`
}

// Snapshot builds a detached view of s.
func (s *Session) Snapshot(connected bool) Snapshot {
	clone := s.Clone()
	metrics := clone.Metrics
	if metrics == nil {
		metrics = []Metric{}
	}
	return Snapshot{
		SessionID:   clone.ID,
		State:       clone.State,
		Context:     clone.Context,
		Metrics:     metrics,
		CreatedAt:   clone.CreatedAt,
		ConnectedAt: clone.ConnectedAt,
		IsConnected: connected,
	}
}
