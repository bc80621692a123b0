package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUnknownJob    = errors.New("unknown job")
	ErrJobQueued     = errors.New("job already queued")
	ErrInvalidAction = errors.New("invalid action")
)
