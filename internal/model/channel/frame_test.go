package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicedesk/backend/internal/model/session"
)

func TestDecodeInbound(t *testing.T) {
	frame, err := DecodeInbound([]byte(`{"type":"text","data":{"text":"my app crashes"}}`))
	require.NoError(t, err)
	assert.Equal(t, TextFrame{Text: "my app crashes"}, frame)

	frame, err = DecodeInbound([]byte(`{"type":"metrics","data":{"latencyMs":120,"stage":"stt"}}`))
	require.NoError(t, err)
	metrics, ok := frame.(MetricsFrame)
	require.True(t, ok)
	assert.EqualValues(t, 120, metrics.Fields["latencyMs"])
	assert.Equal(t, "stt", metrics.Fields["stage"])
}

func TestDecodeInboundErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "not json", raw: `hello`, want: ErrMalformedFrame},
		{name: "missing type", raw: `{"data":{"text":"hi"}}`, want: ErrMalformedFrame},
		{name: "missing data", raw: `{"type":"text"}`, want: ErrMalformedFrame},
		{name: "wrong data shape", raw: `{"type":"text","data":"hi"}`, want: ErrMalformedFrame},
		{name: "unknown type", raw: `{"type":"audio","data":{}}`, want: ErrUnknownType},
		{name: "outbound type", raw: `{"type":"response","data":{"text":"x"}}`, want: ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncodeOutbound(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	data, err := EncodeOutbound(ResponseFrame{Text: "How urgent is this?", State: session.StateCollectingUrgency, Timestamp: at})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"response","data":{"text":"How urgent is this?","state":"collecting_urgency","timestamp":"2024-05-01T12:00:00Z"}}`, string(data))

	data, err = EncodeOutbound(ErrorFrame{Message: "failed to generate AI response"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","data":{"message":"failed to generate AI response"}}`, string(data))
}

func TestOutboundRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	data, err := EncodeOutbound(ResponseFrame{Text: "done", State: session.StateComplete, Timestamp: at})
	require.NoError(t, err)

	frame, err := DecodeOutbound(data)
	require.NoError(t, err)
	resp, ok := frame.(ResponseFrame)
	require.True(t, ok)
	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, session.StateComplete, resp.State)
	assert.True(t, at.Equal(resp.Timestamp))

	_, err = DecodeOutbound([]byte(`{"type":"text","data":{"text":"x"}}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEncodeInbound(t *testing.T) {
	data, err := EncodeInbound(TextFrame{Text: "website"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"text","data":{"text":"website"}}`, string(data))

	data, err = EncodeInbound(MetricsFrame{Fields: map[string]any{"latencyMs": 42}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"metrics","data":{"latencyMs":42}}`, string(data))

	_, err = EncodeInbound(nil)
	assert.ErrorIs(t, err, ErrUnknownType)
}
