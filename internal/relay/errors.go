package relay

import "errors"

var (
	ErrQueueClosed = errors.New("send queue closed")
	// ErrQueueFull means the recipient has not drained earlier frames.
	ErrQueueFull = errors.New("send queue full")
	// ErrFrameTooLarge is a single frame larger than the queue's byte budget.
	ErrFrameTooLarge = errors.New("frame larger than send queue")
)
