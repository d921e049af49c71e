// internal/realtime/errors.go
package realtime

import (
	"errors"
)

// Caller errors. The action is rejected and the connection stays open, except for
// ErrUnauthenticatedCaller which rejects the whole connection.
var (
	ErrUnauthenticatedCaller = errors.New("caller has no resolvable identity")
	ErrEmptyChannelName      = errors.New("channel name is empty")
	ErrEmptyMessageBody      = errors.New("message body is empty")
	ErrMessageTooLarge       = errors.New("message body exceeds size limit")
	ErrNotAMember            = errors.New("sender is not a member of the channel")
	ErrSessionClosed         = errors.New("session is closed")
)

// errConnClosed is returned by transports asked to deliver after they closed.
var errConnClosed = errors.New("connection closed")

// ErrPersistenceFailure wraps store errors on send. It is retryable by the caller and
// guarantees that no recipient saw the message.
var ErrPersistenceFailure = errors.New("message could not be persisted")

// ErrDeliveryFailure wraps a failed push to a single recipient. It is logged and
// never returned to the sender.
var ErrDeliveryFailure = errors.New("message could not be delivered")

// IsRetryable reports whether the caller may retry the action that produced err.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistenceFailure)
}

// ErrorCode maps an error to the code carried in reply frames.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticatedCaller):
		return "unauthenticated"
	case errors.Is(err, ErrEmptyChannelName):
		return "empty_channel_name"
	case errors.Is(err, ErrEmptyMessageBody):
		return "empty_message_body"
	case errors.Is(err, ErrMessageTooLarge):
		return "message_too_large"
	case errors.Is(err, ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	default:
		return "internal_error"
	}
}
