package booking

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned by a Store when the user has no live session.
var ErrSessionNotFound = errors.New("booking: session not found")

// InputError rejects an event for the current state. The dialogue answers it
// with Message and re-prompts without touching the session.
type InputError struct {
	Code    string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newInputError(code, msg string) error {
	return &InputError{Code: code, Message: msg}
}
