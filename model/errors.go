package model

import "errors"

var (
	ErrNotFound        = errors.New("data not found")
	ErrNoSession       = errors.New("no active session")
	ErrSessionConflict = errors.New("a session is already active")
	ErrQueueFull       = errors.New("offline queue at capacity")
	ErrGMCapacity      = errors.New("maximum GM stations reached")
	ErrResetInProgress = errors.New("system reset already in progress")
	ErrValidation      = errors.New("invalid input")
	ErrUnknownToken    = errors.New("unknown token")
	ErrDuplicateScan   = errors.New("token already scanned by this device")
)
