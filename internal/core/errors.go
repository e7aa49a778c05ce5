package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotInRoom    = "not_in_room"
	ErrCodeForbidden    = "forbidden"
	ErrCodeClientClosed = "client_closed"
	ErrCodeInternal     = "internal"
)

var (
	ErrNotInRoom    = errors.New("not in room")
	ErrClientClosed = errors.New("client closed")
	ErrBadRequest   = errors.New("bad request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.err
}

func coreError(code, msg string, cause error) *CoreError {
	return &CoreError{Code: code, Message: msg, err: cause}
}

// AsCoreError converts any error returned by the core into a CoreError.
func AsCoreError(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, ErrNotInRoom):
		return coreError(ErrCodeNotInRoom, err.Error(), err)
	case errors.Is(err, ErrClientClosed):
		return coreError(ErrCodeClientClosed, err.Error(), err)
	case errors.Is(err, ErrBadRequest):
		return coreError(ErrCodeBadRequest, err.Error(), err)
	default:
		return coreError(ErrCodeInternal, err.Error(), err)
	}
}
