package errors

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned when an operation requires an active connection.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectTimeout is returned when waiting for connectivity times out.
	ErrConnectTimeout = errors.New("connect timeout")
	// ErrReconnectExhausted is returned when the automatic reconnection cap is reached.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrDuplicateMessage is returned when a message is rejected by duplicate suppression.
	ErrDuplicateMessage = errors.New("duplicate message")
	// ErrSessionNotFound is returned when a session cannot be found.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCircuitOpen is returned when the REST circuit breaker refuses a call.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrInvalidPayload is returned when a wire payload fails to decode.
	ErrInvalidPayload = errors.New("invalid payload")
)

// New creates a new error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// Wrap wraps an error with additional context. The original error
// stays in the chain, so Is still matches sentinels through the wrap.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// LogWithError logs the error and returns a wrapped error. Use this for standardized error logging.
func LogWithError(log *zap.Logger, msg string, err error, fields ...zap.Field) error {
	if log != nil {
		log.Error(msg, append(fields, zap.Error(err))...)
	}
	return Wrap(err, msg)
}
