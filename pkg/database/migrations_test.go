package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyMigrations(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db)

	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations() failed: %v", err)
	}
	if err := manager.ValidateSchema(); err != nil {
		t.Errorf("ValidateSchema() failed: %v", err)
	}

	applied, err := manager.appliedVersions()
	if err != nil {
		t.Fatalf("appliedVersions() failed: %v", err)
	}
	for _, migration := range migrations {
		if !applied[migration.Version] {
			t.Errorf("migration %s not recorded as applied", migration.Version)
		}
	}
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db)

	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("first ApplyMigrations() failed: %v", err)
	}
	if err := manager.ApplyMigrations(); err != nil {
		t.Errorf("second ApplyMigrations() failed: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("schema_migrations has %d rows, want %d", count, len(migrations))
	}
}

func TestValidateSchemaBeforeMigrations(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db)

	if err := manager.ValidateSchema(); err == nil {
		t.Error("ValidateSchema() passed on an empty database")
	}
}

func TestApplySQLiteOptimizations(t *testing.T) {
	db := openTestDB(t)
	if err := ApplySQLiteOptimizations(db); err != nil {
		t.Errorf("ApplySQLiteOptimizations() failed: %v", err)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("read foreign_keys pragma: %v", err)
	}
	if fk != 1 {
		t.Error("foreign keys not enabled")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() failed: %v", err)
	}

	config := DefaultConfig()
	config.DatabasePath = ""
	if err := config.Validate(); err == nil {
		t.Error("Validate() passed with empty database path")
	}

	config = DefaultConfig()
	config.MaxConnections = 0
	if err := config.Validate(); err == nil {
		t.Error("Validate() passed with zero max connections")
	}
}
