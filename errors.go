package nativeimg

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownBackend     = errors.New("nativeimg: unknown backend")
	ErrBackendUnavailable = errors.New("nativeimg: backend unavailable")
	ErrNotFound           = errors.New("nativeimg: unable to open image")
	ErrUnsupportedInput   = errors.New("nativeimg: unsupported input")
	ErrDecode             = errors.New("nativeimg: invalid image data")
	ErrInvalidRegion      = errors.New("nativeimg: invalid region")
	ErrUnknownFormat      = errors.New("nativeimg: unknown image format")
	ErrWrite              = errors.New("nativeimg: unable to write image")
	ErrBackend            = errors.New("nativeimg: backend failure")
	ErrReleased           = errors.New("nativeimg: image has been released")
	ErrTooLarge           = errors.New("nativeimg: size exceeds limit")
)

// Error attaches backend and operation context to one of the sentinel kinds
// above. It unwraps to both Kind and Err.
type Error struct {
	Kind    error
	Backend string
	Op      string
	Err     error
}

func NewError(kind error, backend, op string, err error) *Error {
	return &Error{Kind: kind, Backend: backend, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if ctx := strings.TrimSpace(e.Backend + " " + e.Op); ctx != "" {
		msg = fmt.Sprintf("%s (%s)", msg, ctx)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// BackendError is a native engine failure that has no more specific kind.
// Msg is the engine's own message.
type BackendError struct {
	Backend string
	Op      string
	Msg     string
}

func NewBackendError(backend, op string, err error) *BackendError {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &BackendError{Backend: backend, Op: op, Msg: msg}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Backend, e.Op, e.Msg)
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// Unavailable is the error returned by the loader of a backend whose
// native adapter was not compiled in.
func Unavailable(backend, tag string) error {
	return NewError(ErrBackendUnavailable, backend, "load", fmt.Errorf("built without the %q build tag", tag))
}
