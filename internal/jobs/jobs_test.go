package jobs

import (
	"context"
	"testing"
	"time"

	"reverie/internal/database"
	"reverie/internal/services"
)

func newJobsDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRetentionCleanup tests pruning of old interaction rows
func TestRetentionCleanup(t *testing.T) {
	db := newJobsDB(t)
	ctx := context.Background()

	if _, err := db.Exec(`INSERT INTO users (user_id) VALUES ('u1')`); err != nil {
		t.Fatalf("Insert user failed: %v", err)
	}

	old := time.Now().UTC().AddDate(0, 0, -120)
	fresh := time.Now().UTC()
	for _, row := range []struct {
		id string
		at time.Time
	}{
		{"old-1", old},
		{"old-2", old},
		{"fresh-1", fresh},
	} {
		_, err := db.Exec(`
			INSERT INTO interactions (id, user_id, user_input, agent_response, created_at)
			VALUES (?, 'u1', 'in', 'out', ?)
		`, row.id, row.at)
		if err != nil {
			t.Fatalf("Insert interaction failed: %v", err)
		}
	}

	job := NewRetentionCleanupJob(db)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var remaining int
	if err := db.QueryRow(`SELECT COUNT(*) FROM interactions`).Scan(&remaining); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if remaining != 1 {
		t.Errorf("Expected 1 interaction after cleanup, got %d", remaining)
	}
}

// TestEngagementSnapshot tests the at-risk refresh job
func TestEngagementSnapshot(t *testing.T) {
	db := newJobsDB(t)
	engagement := services.NewEngagementService(db, nil)
	ctx := context.Background()

	if _, err := engagement.RecordInteraction(ctx, "u1"); err != nil {
		t.Fatalf("RecordInteraction failed: %v", err)
	}
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	if _, err := db.Exec(`UPDATE users SET last_interaction_date = ? WHERE user_id = 'u1'`, yesterday); err != nil {
		t.Fatalf("Rewind failed: %v", err)
	}

	job := NewEngagementSnapshotJob(engagement)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	next := job.GetNextRunTime()
	if !next.After(time.Now()) {
		t.Errorf("Next run %v is not in the future", next)
	}
}

// TestSchedulerRunNow tests immediate job execution through the scheduler
func TestSchedulerRunNow(t *testing.T) {
	db := newJobsDB(t)
	scheduler := NewJobScheduler()
	scheduler.Register("interaction_retention", NewRetentionCleanupJob(db))

	if err := scheduler.RunNow("interaction_retention"); err != nil {
		t.Errorf("RunNow failed: %v", err)
	}
	if err := scheduler.RunNow("missing"); err != nil {
		t.Errorf("RunNow for unknown job should be a no-op: %v", err)
	}

	statuses := scheduler.GetStatus()
	if len(statuses) != 1 || statuses[0].Name != "interaction_retention" {
		t.Fatalf("GetStatus = %+v", statuses)
	}
	if statuses[0].LastRunAt.IsZero() {
		t.Error("Expected LastRunAt set after RunNow")
	}
	if statuses[0].LastError != "" {
		t.Errorf("LastError = %q, want empty", statuses[0].LastError)
	}
	if !statuses[0].NextRunAt.After(time.Now()) {
		t.Errorf("NextRunAt %v is not in the future", statuses[0].NextRunAt)
	}

	scheduler.Stop()
}
