package auth

import "errors"

// Authentication error types. All of them surface to the user inline;
// none are retried automatically.
var (
	ErrInvalidCredentials  = errors.New("invalid teacher ID or password")
	ErrDuplicateID         = errors.New("teacher ID is already taken")
	ErrInvalidRecoveryCode = errors.New("invalid recovery code")
	ErrEmptyPassword       = errors.New("password cannot be empty")
)
