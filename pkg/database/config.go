package database

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds database configuration.
type Config struct {
	DatabasePath    string        `json:"database_path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

// DefaultConfig returns production-ready database configuration.
// SQLite handles classroom-scale concurrency (one teacher, tens of
// students) comfortably with a small connection pool.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./data/classlink.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Validate ensures the configuration is valid.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	return nil
}

// SQLite pragmas applied to every connection. WAL keeps student reads
// concurrent with the single-writer goroutine in the store manager.
const sqliteOptimizations = `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	PRAGMA cache_size = -64000;
	PRAGMA temp_store = MEMORY;
	PRAGMA foreign_keys = ON;
	PRAGMA busy_timeout = 5000;
`

// ApplySQLiteOptimizations applies the pragma set to a connection pool.
func ApplySQLiteOptimizations(db *sql.DB) error {
	_, err := db.Exec(sqliteOptimizations)
	return err
}
