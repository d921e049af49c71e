// internal/realtime/protocol_test.go
package realtime

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"event":"send","topic":"team-1","payload":{"body":"hi"},"ref":"7"}`))
	require.NoError(t, err)
	assert.Equal(t, FrameSend, f.Event)
	assert.Equal(t, "team-1", f.Topic)
	assert.Equal(t, "hi", f.PayloadString("body"))
	assert.Equal(t, "", f.PayloadString("missing"))
	assert.Equal(t, "7", f.Ref)
}

func TestDecodeFrameRejectsInvalid(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"topic":"team-1"}`,
		`{"event":"join","ref":"` + fmt.Sprintf("%065d", 0) + `"}`,
	} {
		_, err := DecodeFrame([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestReplyFrames(t *testing.T) {
	ok := NewReply("team-1", "3", nil)
	assert.Equal(t, FrameReply, ok.Event)
	assert.Equal(t, StatusOK, ok.Payload["status"])

	reply := ErrorReply("team-1", "4", fmt.Errorf("%w: %w", ErrPersistenceFailure, fmt.Errorf("disk full")))
	data, err := reply.Encode()
	require.NoError(t, err)

	var decoded struct {
		Event   string `json:"event"`
		Ref     string `json:"ref"`
		Payload struct {
			Status   string `json:"status"`
			Response struct {
				Code      string `json:"code"`
				Retryable bool   `json:"retryable"`
			} `json:"response"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "reply", decoded.Event)
	assert.Equal(t, "4", decoded.Ref)
	assert.Equal(t, StatusError, decoded.Payload.Status)
	assert.Equal(t, "persistence_failure", decoded.Payload.Response.Code)
	assert.True(t, decoded.Payload.Response.Retryable)
}

func TestEventFrame(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)

	joined := EventFrame(Event{Type: EventMemberJoined, Channel: "team-1", Identity: "bob", Timestamp: ts})
	assert.Equal(t, "member_joined", joined.Event)
	assert.Equal(t, "team-1", joined.Topic)
	assert.Equal(t, "bob", joined.Payload["identity"])
	assert.NotContains(t, joined.Payload, "body")

	msg := EventFrame(Event{Type: EventMessageReceived, Channel: "team-1", Identity: "alice", MessageID: "m1", Body: "hi", Timestamp: ts})
	assert.Equal(t, "message_received", msg.Event)
	assert.Equal(t, "alice", msg.Payload["sender"])
	assert.Equal(t, "hi", msg.Payload["body"])
	assert.Equal(t, "m1", msg.Payload["id"])
	assert.Equal(t, ts.Format(time.RFC3339Nano), msg.Payload["timestamp"])
}
