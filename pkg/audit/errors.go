package audit

import "errors"

var (
	// ErrUnauthorized indicates the caller is not authenticated
	ErrUnauthorized = errors.New("authentication required")

	// ErrForbidden indicates the caller lacks the administrator privilege
	ErrForbidden = errors.New("administrator privilege required")

	// ErrNotFound indicates a referenced actor does not exist
	ErrNotFound = errors.New("not found")

	// ErrBadRequest indicates a required parameter is missing
	ErrBadRequest = errors.New("bad request")

	// ErrWriteFailure indicates a log record could not be persisted
	ErrWriteFailure = errors.New("audit log write failed")

	// ErrInvalidAction indicates an unknown action name or code
	ErrInvalidAction = errors.New("invalid action")

	// ErrRecordNotFound indicates a log record ID does not exist
	ErrRecordNotFound = errors.New("log record not found")
)
