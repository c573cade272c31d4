package liveness

import "errors"

var (
	ErrNotInitialized    = errors.New("detector not initialized")
	ErrAlreadyStarted    = errors.New("session already started")
	ErrSessionTerminated = errors.New("session terminated")
	ErrInvalidConfig     = errors.New("invalid liveness config")
	ErrModelLoad         = errors.New("model load failed")
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// ErrFrameSkipped is returned for frames dropped by pacing, by an in-flight
// frame, or because the session is not collecting.
var ErrFrameSkipped = errors.New("frame skipped")
