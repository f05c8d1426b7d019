package game

import (
	"errors"
	"fmt"
)

var ErrNotConnected = errors.New("push channel is not connected")
var ErrNotFound = errors.New("not found")
var ErrConnectionFailed = errors.New("push channel connection failed")

// ValidationError is a client-local rule violation caught before any network
// call. The Reason is meant to be shown to the player as-is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MutationRejectedError is a server-side rejection of a swap or placement,
// e.g. a move raced with another accepted move. Never retried automatically.
type MutationRejectedError struct {
	Status int
	Reason string
}

func (e MutationRejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("server rejected the request (status %d)", e.Status)
	}
	return e.Reason
}
