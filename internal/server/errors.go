package server

import "fmt"

type ErrorKind string

const (
	ErrUnauthorized ErrorKind = "unauthorized"
	ErrForbidden    ErrorKind = "forbidden"
	ErrInvalidInput ErrorKind = "invalid_input"
	ErrStorage      ErrorKind = "storage_error"
	ErrNotFound     ErrorKind = "not_found"
)

// Error is the typed failure reported back to the originating
// connection as an error event. Kind is machine-readable, Message is
// for humans, Err carries the underlying cause for logs only.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errUnauthorized() *Error {
	return &Error{Kind: ErrUnauthorized, Message: "user not authenticated"}
}

func errForbidden(msg string) *Error {
	return &Error{Kind: ErrForbidden, Message: msg}
}

func errInvalidInput(msg string) *Error {
	return &Error{Kind: ErrInvalidInput, Message: msg}
}

func errStorage(msg string, err error) *Error {
	return &Error{Kind: ErrStorage, Message: msg, Err: err}
}
