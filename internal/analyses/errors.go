package analyses

import "errors"

var (
	ErrNotFound          = errors.New("analysis not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("analysis not ready")
	ErrInvalidInput      = errors.New("invalid input")
)

// Failure reasons recorded on FAILED records by this package.
const (
	ReasonQueueUnavailable = "queue_unavailable"
)
