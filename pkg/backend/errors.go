package backend

import (
	"errors"
	"fmt"
)

// Error kinds, matchable with errors.Is
var (
	ErrTransport      = errors.New("backend transport failure")
	ErrResponse       = errors.New("backend response failure")
	ErrSerialization  = errors.New("backend serialization failure")
	ErrUnknownBackend = errors.New("unknown backend type")
	ErrNoObservations = errors.New("no observations to forecast from")
)

// Error carries enough context to diagnose a failed backend call
type Error struct {
	Kind        error
	Provider    string
	Message     string
	RawRequest  string
	RawResponse string
	StatusCode  int
	Err         error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)

	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

// Unwrap exposes both the kind and the underlying cause
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}
