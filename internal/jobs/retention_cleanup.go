package jobs

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"reverie/internal/database"
)

// RetentionCleanupJob prunes old rows from the raw interaction log.
// Observations are the durable distillate; the log only needs to cover the
// recent-context window plus a safety margin.
type RetentionCleanupJob struct {
	db            *database.DB
	retentionDays int
}

const defaultInteractionRetentionDays = 90

// NewRetentionCleanupJob creates a new retention cleanup job
func NewRetentionCleanupJob(db *database.DB) *RetentionCleanupJob {
	days := defaultInteractionRetentionDays
	if v := os.Getenv("INTERACTION_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	return &RetentionCleanupJob{db: db, retentionDays: days}
}

// Run deletes interactions older than the retention window
func (j *RetentionCleanupJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)

	result, err := j.db.ExecContext(ctx, `
		DELETE FROM interactions WHERE created_at < ?
	`, cutoff)
	if err != nil {
		log.Printf("[RETENTION] Failed to prune interactions: %v", err)
		return err
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		log.Printf("[RETENTION] Pruned %d interactions older than %d days", deleted, j.retentionDays)
	}
	return nil
}

// GetNextRunTime returns 3 AM UTC tomorrow
func (j *RetentionCleanupJob) GetNextRunTime() time.Time {
	now := time.Now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
