package interfaces

import (
	"context"

	"classlink/pkg/types"
)

// SessionStore handles persistence of class session rows.
// The row for a teacher is replaced whole on every write: there are no
// field-level updates, so concurrent writers resolve as last-writer-wins.
type SessionStore interface {
	// GetSession retrieves the session row for a teacher.
	// Returns ErrSessionNotFound when no row exists yet.
	GetSession(ctx context.Context, teacherID string) (*types.ClassSession, error)

	// UpsertSession inserts or fully replaces the session row and, on
	// success, notifies change feed subscribers for that teacher.
	UpsertSession(ctx context.Context, session *types.ClassSession) error
}

// CredentialStore handles persistence of teacher account credentials.
type CredentialStore interface {
	// CreateCredential inserts a new account record.
	// Returns ErrDuplicateTeacherID when the ID is already registered;
	// the existing row is left untouched.
	CreateCredential(ctx context.Context, cred *types.Credential) error

	// GetCredential retrieves the account record for a teacher.
	// Returns ErrCredentialNotFound when the ID is not registered.
	GetCredential(ctx context.Context, teacherID string) (*types.Credential, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, teacherID, passwordHash string) error
}

// Store combines the persistence surfaces with health and lifecycle
// operations, matching what the sqlite manager implements.
type Store interface {
	SessionStore
	CredentialStore

	HealthCheck(ctx context.Context) error
	Close() error
}
