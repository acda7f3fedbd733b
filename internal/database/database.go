package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// New opens (or creates) the SQLite database at the given path and configures
// pragmas for concurrent turn processing.
func New(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids lock contention
	// between per-user pipelines while WAL keeps readers unblocked.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	db := &DB{sqlDB}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ SQLite database connected")
	return db, nil
}

// NewMemory opens an in-memory database. Used by tests.
func NewMemory() (*DB, error) {
	return New(":memory:")
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q failed: %w", p, err)
		}
	}
	return nil
}

// Initialize creates all required tables and indexes.
func (db *DB) Initialize() error {
	log.Println("🔍 Checking database schema...")

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			first_interaction_date TIMESTAMP,
			last_interaction_date TIMESTAMP,
			total_sessions INTEGER NOT NULL DEFAULT 0,
			current_streak INTEGER NOT NULL DEFAULT 0,
			longest_streak INTEGER NOT NULL DEFAULT 0,
			connection_depth INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(user_id),
			text TEXT NOT NULL,
			interpretation TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT 'uncategorized',
			relevance_score INTEGER NOT NULL DEFAULT 5
				CHECK (relevance_score BETWEEN 1 AND 10),
			follow_up_question TEXT NOT NULL DEFAULT '',
			people_mentioned TEXT NOT NULL DEFAULT '[]',
			is_identity_statement BOOLEAN NOT NULL DEFAULT FALSE,
			is_breakthrough_moment BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_user_created
			ON observations(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_user_category
			ON observations(user_id, category)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_user_relevance
			ON observations(user_id, relevance_score DESC, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(user_id),
			user_input TEXT NOT NULL,
			agent_response TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_user_created
			ON interactions(user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS achievements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(user_id),
			achievement_key TEXT NOT NULL,
			unlocked_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			celebrated BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (user_id, achievement_key)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	log.Println("✅ Database initialized successfully")
	return nil
}
