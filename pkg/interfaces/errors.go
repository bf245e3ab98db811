package interfaces

import "errors"

// Common interface errors used across components.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrDuplicateTeacherID = errors.New("teacher ID already registered")
)
