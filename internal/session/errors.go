package session

import "errors"

// Session manager error types.
var (
	ErrSlotLimitReached = errors.New("slot limit of 10 reached")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrInvalidField     = errors.New("invalid slot field: must be 'title' or 'url'")
	ErrInvalidIndex     = errors.New("reorder index out of range")
	ErrNotLoaded        = errors.New("session not loaded")
	ErrSaveFailed       = errors.New("failed to save session")
)
