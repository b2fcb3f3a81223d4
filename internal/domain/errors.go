package domain

import (
	"errors"
	"fmt"
)

// Error families surfaced to clients. Anything else stays server side.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRoomFull     = errors.New("room is full")
	ErrValidation   = errors.New("validation failed")
	ErrJoinDenied   = errors.New("join denied")
)

var (
	ErrChatEmpty      = fmt.Errorf("%w: chat text empty", ErrValidation)
	ErrChatTooLong    = fmt.Errorf("%w: chat text too long", ErrValidation)
	ErrInvalidPayload = fmt.Errorf("%w: invalid payload", ErrValidation)
	ErrInvalidRoomID  = fmt.Errorf("%w: invalid room id", ErrValidation)
	ErrNotInRoom      = fmt.Errorf("%w: not in room", ErrValidation)
	ErrRateLimited    = fmt.Errorf("%w: rate limited", ErrValidation)
	ErrForbidden      = fmt.Errorf("%w: not allowed", ErrValidation)
)

// ErrorCode maps an error to the code sent in "error" events.
// ok is false for errors that must not be reported to the client.
func ErrorCode(err error) (code string, ok bool) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "auth", true
	case errors.Is(err, ErrRoomFull):
		return "capacity", true
	case errors.Is(err, ErrJoinDenied):
		return "denied", true
	case errors.Is(err, ErrValidation):
		return "validation", true
	}
	return "", false
}
