package session

import "errors"

var (
	ErrInvalidDuration    = errors.New("session duration out of range")
	ErrInvalidSessionType = errors.New("invalid session type")
)
