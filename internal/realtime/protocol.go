// Package realtime implements the workgroup messaging hub: a registry of live
// connections, a channel membership table, presence notifications and message
// broadcast over websockets.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame is the JSON envelope exchanged over a websocket in both directions.
type Frame struct {
	Event   string         `json:"event" validate:"required,max=32"`
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
	Ref     string         `json:"ref,omitempty" validate:"max=64"`
}

// Client events
const (
	FrameJoin      = "join"
	FrameLeave     = "leave"
	FrameSend      = "send"
	FrameHeartbeat = "heartbeat"
)

// Server events. Presence and message events use their EventType as the frame event.
const (
	FrameReply = "reply"
)

// Reply statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Codes carried in error replies that do not come from ErrorCode.
const (
	CodeInvalidFrame = "invalid_frame"
	CodeUnknownEvent = "unknown_event"
	CodeRateLimited  = "rate_limited"
)

// NewReply creates a reply acknowledging the client frame with ref.
func NewReply(topic, ref string, response map[string]any) *Frame {
	if response == nil {
		response = map[string]any{}
	}
	return &Frame{
		Event: FrameReply,
		Topic: topic,
		Ref:   ref,
		Payload: map[string]any{
			"status":   StatusOK,
			"response": response,
		},
	}
}

// NewErrorReply creates a reply rejecting the client frame with ref.
func NewErrorReply(topic, ref, code, message string, retryable bool) *Frame {
	return &Frame{
		Event: FrameReply,
		Topic: topic,
		Ref:   ref,
		Payload: map[string]any{
			"status": StatusError,
			"response": map[string]any{
				"code":      code,
				"message":   message,
				"retryable": retryable,
			},
		},
	}
}

// ErrorReply maps err to an error reply.
func ErrorReply(topic, ref string, err error) *Frame {
	return NewErrorReply(topic, ref, ErrorCode(err), err.Error(), IsRetryable(err))
}

// EventFrame converts a realtime event into its outbound frame.
func EventFrame(evt Event) *Frame {
	payload := map[string]any{
		"identity":  evt.Identity,
		"timestamp": evt.Timestamp.Format(time.RFC3339Nano),
	}
	if evt.Type == EventMessageReceived {
		payload["id"] = evt.MessageID
		payload["sender"] = evt.Identity
		payload["body"] = evt.Body
	}
	return &Frame{
		Event:   string(evt.Type),
		Topic:   evt.Channel,
		Payload: payload,
	}
}

// PayloadString returns the string field key of the payload, or "".
func (f *Frame) PayloadString(key string) string {
	v, _ := f.Payload[key].(string)
	return v
}

// Encode serializes a frame to JSON bytes
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame parses and validates a client frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid frame format: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	return &f, nil
}
