package command

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a command failure for programmatic handling. Kinds
// survive transport so clients can react (resync on invalid_status,
// retry on busy) while showing a human-readable message for the rest.
type Kind string

const (
	KindForbidden     Kind = "forbidden"
	KindInvalidStatus Kind = "invalid_status"
	KindNoPlayers     Kind = "no_players"
	KindRateLimited   Kind = "rate_limited"
	KindBusy          Kind = "busy"
	KindAPIError      Kind = "api-error"
)

// Error is a classified command failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errf builds a classified error.
func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err, defaulting to api-error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindAPIError
}

// HTTPStatus maps a kind to its HTTP-equivalent status class.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidStatus, KindNoPlayers:
		return http.StatusConflict
	case KindRateLimited, KindBusy:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// userMessages are the human-readable strings surfaced to players.
var userMessages = map[Kind]string{
	KindForbidden:     "You are not allowed to do that.",
	KindInvalidStatus: "The room has moved on. Refreshing…",
	KindNoPlayers:     "Nobody is available for this round.",
	KindRateLimited:   "Slow down a little and try again.",
	KindBusy:          "The room is busy, try again.",
	KindAPIError:      "Something went wrong. Please retry.",
}

// UserMessage returns the player-facing text for a kind.
func UserMessage(kind Kind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[KindAPIError]
}
