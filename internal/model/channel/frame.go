// Package channel defines the frames exchanged over a session's WebSocket.
//
// Every frame travels as {"type": ..., "data": {...}}. Inbound frames (client to
// server) are text and metrics; outbound frames are response and error. Decoding
// yields one concrete frame type per tag so callers can switch exhaustively.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/voicedesk/backend/internal/model/session"
)

// Type tags a frame.
type Type string

const (
	TypeText     Type = "text"
	TypeMetrics  Type = "metrics"
	TypeResponse Type = "response"
	TypeError    Type = "error"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown frame type")
)

var codec = sonic.ConfigStd

type envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound is a frame sent by the client.
type Inbound interface {
	inboundType() Type
}

// Outbound is a frame sent by the server.
type Outbound interface {
	outboundType() Type
}

// TextFrame carries one finalized utterance.
type TextFrame struct {
	Text string `json:"text"`
}

// MetricsFrame carries arbitrary latency fields.
type MetricsFrame struct {
	Fields map[string]any
}

// ResponseFrame carries the engine reply and the resulting state.
type ResponseFrame struct {
	Text      string        `json:"text"`
	State     session.State `json:"state"`
	Timestamp time.Time     `json:"timestamp"`
}

// ErrorFrame reports a recoverable failure for the last inbound frame.
type ErrorFrame struct {
	Message string `json:"message"`
}

func (TextFrame) inboundType() Type { return TypeText }
func (MetricsFrame) inboundType() Type { return TypeMetrics }
func (ResponseFrame) outboundType() Type { return TypeResponse }
func (ErrorFrame) outboundType() Type { return TypeError }

// DecodeInbound parses a client frame.
func DecodeInbound(data []byte) (Inbound, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeText:
		var frame TextFrame
		if err := decodeData(env, &frame); err != nil {
			return nil, err
		}
		return frame, nil
	case TypeMetrics:
		fields := map[string]any{}
		if err := decodeData(env, &fields); err != nil {
			return nil, err
		}
		return MetricsFrame{Fields: fields}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// DecodeOutbound parses a server frame.
func DecodeOutbound(data []byte) (Outbound, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeResponse:
		var frame ResponseFrame
		if err := decodeData(env, &frame); err != nil {
			return nil, err
		}
		return frame, nil
	case TypeError:
		var frame ErrorFrame
		if err := decodeData(env, &frame); err != nil {
			return nil, err
		}
		return frame, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// EncodeInbound serializes a client frame.
func EncodeInbound(frame Inbound) ([]byte, error) {
	switch f := frame.(type) {
	case TextFrame:
		return encode(TypeText, f)
	case MetricsFrame:
		return encode(TypeMetrics, f.Fields)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, frame)
	}
}

// EncodeOutbound serializes a server frame.
func EncodeOutbound(frame Outbound) ([]byte, error) {
	switch f := frame.(type) {
	case ResponseFrame:
		return encode(TypeResponse, f)
	case ErrorFrame:
		return encode(TypeError, f)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, frame)
	}
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return envelope{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return env, nil
}

func decodeData(env envelope, dest any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s frame without data", ErrMalformedFrame, env.Type)
	}
	if err := codec.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformedFrame, env.Type, err)
	}
	return nil
}

func encode(t Type, data any) ([]byte, error) {
	raw, err := codec.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", t, err)
	}
	return codec.Marshal(envelope{Type: t, Data: raw})
}
