package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidEnvelope = errors.New("invalid envelope")
	ErrUnknownEvent    = errors.New("unknown event type")
	ErrRateLimited     = errors.New("rate limited")
	ErrWSDisconnect    = errors.New("websocket disconnected")
	ErrStopped         = errors.New("connection stopped")
	ErrQueueFull       = errors.New("queue full")
	ErrLockHeld        = errors.New("lock held")
)
