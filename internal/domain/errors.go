package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnknownEvent  = errors.New("unknown event kind")
	ErrLockHeld      = errors.New("lock already held")
)
