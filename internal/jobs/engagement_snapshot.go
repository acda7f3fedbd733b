package jobs

import (
	"context"
	"log"
	"time"

	"reverie/internal/services"
)

// EngagementSnapshotJob refreshes the streak-at-risk gauge. Streaks flip
// at day boundaries, so an hourly refresh keeps the gauge close enough.
type EngagementSnapshotJob struct {
	engagement *services.EngagementService
}

// NewEngagementSnapshotJob creates a new engagement snapshot job
func NewEngagementSnapshotJob(engagement *services.EngagementService) *EngagementSnapshotJob {
	return &EngagementSnapshotJob{engagement: engagement}
}

// Run refreshes the gauge from the current engagement table
func (j *EngagementSnapshotJob) Run(ctx context.Context) error {
	atRisk, err := j.engagement.UsersWithStreakAtRisk(ctx)
	if err != nil {
		log.Printf("[SNAPSHOT] Failed to count streaks at risk: %v", err)
		return err
	}

	if m := services.GetMetrics(); m != nil {
		m.StreaksAtRisk.Set(float64(atRisk))
	}
	log.Printf("[SNAPSHOT] %d streaks at risk", atRisk)
	return nil
}

// GetNextRunTime returns the next hourly boundary
func (j *EngagementSnapshotJob) GetNextRunTime() time.Time {
	return time.Now().Truncate(time.Hour).Add(time.Hour)
}
