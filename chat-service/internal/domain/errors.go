package domain

import "errors"

var (
	ErrAuthFailed  = errors.New("authentication failed")
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrPersistence = errors.New("persistence failed")
	ErrBadRequest  = errors.New("bad request")
)

// ErrorCode maps an error to the code sent in a WebSocket error frame.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return ErrCodeValidationFailed
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden):
		return ErrCodeNotFound
	case errors.Is(err, ErrPersistence):
		return ErrCodePersistenceFailed
	case errors.Is(err, ErrBadRequest):
		return ErrCodeBadRequest
	default:
		return ErrCodeInternalError
	}
}
