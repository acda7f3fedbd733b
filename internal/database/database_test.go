package database

import (
	"testing"
)

// TestInitialize tests schema creation and idempotency
func TestInitialize(t *testing.T) {
	db, err := NewMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	// Running again is a no-op
	if err := db.Initialize(); err != nil {
		t.Fatalf("Second Initialize failed: %v", err)
	}

	for _, table := range []string{"users", "observations", "interactions", "achievements"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("Table %q missing: %v", table, err)
		}
	}
}

// TestSchemaConstraints tests the relevance check and unlock uniqueness
func TestSchemaConstraints(t *testing.T) {
	db, err := NewMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	defer db.Close()
	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO users (user_id) VALUES ('u1')`); err != nil {
		t.Fatalf("Insert user failed: %v", err)
	}

	_, err = db.Exec(`INSERT INTO observations (user_id, text, relevance_score) VALUES ('u1', 'x', 11)`)
	if err == nil {
		t.Error("Expected relevance check constraint to reject 11")
	}

	if _, err := db.Exec(`INSERT INTO achievements (user_id, achievement_key) VALUES ('u1', 'first_step')`); err != nil {
		t.Fatalf("Insert unlock failed: %v", err)
	}
	_, err = db.Exec(`INSERT INTO achievements (user_id, achievement_key) VALUES ('u1', 'first_step')`)
	if err == nil {
		t.Error("Expected unique constraint to reject duplicate unlock")
	}

	result, err := db.Exec(`
		INSERT INTO achievements (user_id, achievement_key) VALUES ('u1', 'first_step')
		ON CONFLICT(user_id, achievement_key) DO NOTHING
	`)
	if err != nil {
		t.Fatalf("Conflict-tolerant insert failed: %v", err)
	}
	if affected, _ := result.RowsAffected(); affected != 0 {
		t.Errorf("Expected no rows affected, got %d", affected)
	}
}
