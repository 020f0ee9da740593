package signaling

import (
	"errors"
	"fmt"
)

var ErrTooManyConnections = errors.New("too many connections")

// Error codes sent in `error` events.
const (
	codeBadMessage   = "bad_message"
	codeRoomNotFound = "room_not_found"
	codeUnauthorized = "unauthorized"
	codeRateLimited  = "rate_limited"
	codeSlowConsumer = "slow_consumer"
)

// protocolError is a failure reported to the client that caused it. The
// connection stays open.
type protocolError struct {
	Code    string
	Message string
}

func (e *protocolError) Error() string { return e.Code + ": " + e.Message }

func badMessage(format string, args ...any) *protocolError {
	return &protocolError{Code: codeBadMessage, Message: fmt.Sprintf(format, args...)}
}
