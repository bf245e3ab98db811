package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a single versioned schema change.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// Migrations are embedded rather than loaded from disk so the binary is
// self-contained; they apply in version order inside one transaction each.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "initial_schema",
		SQL: `
			CREATE TABLE IF NOT EXISTS class_sessions (
				teacher_id     TEXT PRIMARY KEY,
				username       TEXT NOT NULL DEFAULT '',
				slots          TEXT NOT NULL DEFAULT '[]',
				active_slot_id TEXT,
				updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_class_sessions_updated_at
				ON class_sessions(updated_at);
		`,
	},
	{
		Version:     "002",
		Description: "credentials",
		SQL: `
			CREATE TABLE IF NOT EXISTS credentials (
				teacher_id         TEXT PRIMARY KEY,
				username           TEXT NOT NULL,
				password_hash      TEXT NOT NULL,
				recovery_code_hash TEXT NOT NULL,
				created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
}

// MigrationManager applies schema migrations and validates the result.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations in version order.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	pending := make([]Migration, 0, len(migrations))
	for _, migration := range migrations {
		if !applied[migration.Version] {
			pending = append(pending, migration)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Version < pending[j].Version
	})

	for _, migration := range pending {
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

// ValidateSchema ensures the database matches the expected structure.
func (m *MigrationManager) ValidateSchema() error {
	for _, table := range []string{"class_sessions", "credentials", "schema_migrations"} {
		exists, err := m.tableExists(table)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}

	exists, err := m.indexExists("idx_class_sessions_updated_at")
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	if !exists {
		return fmt.Errorf("required index idx_class_sessions_updated_at does not exist")
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	versions := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions[version] = true
	}
	return versions, rows.Err()
}

// applyMigration runs a single migration inside a transaction so either
// both the schema change and its bookkeeping land, or neither does.
func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}

	return tx.Commit()
}

func (m *MigrationManager) tableExists(name string) (bool, error) {
	var count int
	err := m.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	return count > 0, err
}

func (m *MigrationManager) indexExists(name string) (bool, error) {
	var count int
	err := m.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", name,
	).Scan(&count)
	return count > 0, err
}
