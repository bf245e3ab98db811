package types

import "errors"

// Validation error types shared across components.
var (
	ErrInvalidTeacherID = errors.New("teacher ID must be 1-50 characters of [a-zA-Z0-9_-]")
	ErrTooManySlots     = errors.New("slot list cannot exceed 10 entries")
	ErrInvalidSlotID    = errors.New("slot ID cannot be empty")
	ErrDuplicateSlotID  = errors.New("slot IDs must be unique within a session")
)
