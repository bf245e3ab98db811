package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"classlink/pkg/database"
	"classlink/pkg/interfaces"
	"classlink/pkg/types"
)

// Manager implements interfaces.Store on SQLite.
//
// Reads run concurrently against the pool; every write is serialized
// through a single goroutine, which is what SQLite wants under WAL and
// also gives a natural point to publish change events after commit.
type Manager struct {
	db           *sql.DB
	config       *database.Config
	feed         interfaces.ChangeFeed
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	logger       *zap.Logger
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies migrations, and starts the
// write loop. The feed may be nil in tests that only exercise reads.
func NewManager(config *database.Config, changeFeed interfaces.ChangeFeed, logger *zap.Logger) (*Manager, error) {
	if dir := filepath.Dir(config.DatabasePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := database.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	migrator := database.NewMigrationManager(db)
	if err := migrator.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		feed:         changeFeed,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		logger:       logger,
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				m.logger.Warn("database write failed, retrying in 5 seconds", zap.Error(err))
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					m.logger.Error("database write failed after retry", zap.Error(err))
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Info("database write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// GetSession retrieves the session row for a teacher.
func (m *Manager) GetSession(ctx context.Context, teacherID string) (*types.ClassSession, error) {
	query := `
		SELECT teacher_id, username, slots, active_slot_id, updated_at
		FROM class_sessions
		WHERE teacher_id = ?
	`

	row := m.db.QueryRowContext(ctx, query, teacherID)

	var session types.ClassSession
	var slotsJSON string
	var activeSlotID sql.NullString

	err := row.Scan(
		&session.TeacherID,
		&session.Username,
		&slotsJSON,
		&activeSlotID,
		&session.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if err := json.Unmarshal([]byte(slotsJSON), &session.Slots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slots: %w", err)
	}
	if session.Slots == nil {
		session.Slots = []types.Slot{}
	}
	if activeSlotID.Valid {
		session.ActiveSlotID = &activeSlotID.String
	}

	return &session, nil
}

// UpsertSession inserts or fully replaces the session row. The row is
// validated at the boundary, written whole (last-writer-wins), and a
// change event is published only after the write committed.
func (m *Manager) UpsertSession(ctx context.Context, session *types.ClassSession) error {
	if err := session.Validate(); err != nil {
		return err
	}

	slotsJSON, err := json.Marshal(session.Slots)
	if err != nil {
		return fmt.Errorf("failed to marshal slots: %w", err)
	}

	var activeSlotID interface{}
	if session.ActiveSlotID != nil {
		activeSlotID = *session.ActiveSlotID
	}

	err = m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO class_sessions (teacher_id, username, slots, active_slot_id, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(teacher_id) DO UPDATE SET
				username = excluded.username,
				slots = excluded.slots,
				active_slot_id = excluded.active_slot_id,
				updated_at = excluded.updated_at
		`
		_, err := db.ExecContext(ctx, query,
			session.TeacherID,
			session.Username,
			string(slotsJSON),
			activeSlotID,
			session.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if m.feed != nil {
		m.feed.Publish(session.TeacherID)
	}
	return nil
}

// CreateCredential inserts a new account record. A primary key conflict
// maps to ErrDuplicateTeacherID and leaves the existing row untouched.
func (m *Manager) CreateCredential(ctx context.Context, cred *types.Credential) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO credentials (teacher_id, username, password_hash, recovery_code_hash, created_at)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			cred.TeacherID,
			cred.Username,
			cred.PasswordHash,
			cred.RecoveryCodeHash,
			cred.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return interfaces.ErrDuplicateTeacherID
			}
			return fmt.Errorf("failed to insert credential: %w", err)
		}
		return nil
	})
}

// GetCredential retrieves the account record for a teacher.
func (m *Manager) GetCredential(ctx context.Context, teacherID string) (*types.Credential, error) {
	query := `
		SELECT teacher_id, username, password_hash, recovery_code_hash, created_at
		FROM credentials
		WHERE teacher_id = ?
	`

	row := m.db.QueryRowContext(ctx, query, teacherID)

	var cred types.Credential
	err := row.Scan(
		&cred.TeacherID,
		&cred.Username,
		&cred.PasswordHash,
		&cred.RecoveryCodeHash,
		&cred.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}

	return &cred, nil
}

// UpdatePassword replaces the stored password hash.
func (m *Manager) UpdatePassword(ctx context.Context, teacherID, passwordHash string) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			"UPDATE credentials SET password_hash = ? WHERE teacher_id = ?",
			passwordHash, teacherID,
		)
		if err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrCredentialNotFound
		}
		return nil
	})
}

// HealthCheck validates database connectivity. The probe uses a
// single-row scan so it cannot pin a pooled connection the way an
// unclosed result set would.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM class_sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying connection pool, primarily for tests.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close drains the write loop and closes the connection pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
