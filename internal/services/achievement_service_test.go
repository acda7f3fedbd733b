package services

import (
	"context"
	"testing"

	"reverie/internal/models"
)

// TestEvaluateCatalog tests the pure threshold evaluation
func TestEvaluateCatalog(t *testing.T) {
	tests := []struct {
		name     string
		counters models.EngagementCounters
		unlocked map[string]bool
		expected []string
	}{
		{
			name:     "First session earns first_step",
			counters: models.EngagementCounters{TotalSessions: 1, ConnectionDepth: 1},
			expected: []string{"first_step"},
		},
		{
			name:     "Nothing earned on zero counters",
			counters: models.EngagementCounters{},
			expected: nil,
		},
		{
			name: "Already unlocked keys skip",
			counters: models.EngagementCounters{
				TotalSessions: 1, ConnectionDepth: 1,
			},
			unlocked: map[string]bool{"first_step": true},
			expected: nil,
		},
		{
			name: "Streak milestones stack",
			counters: models.EngagementCounters{
				TotalSessions: 7, CurrentStreak: 7, ConnectionDepth: 2,
			},
			unlocked: map[string]bool{"first_step": true, "trust_builder": true},
			expected: []string{"three_day", "week_warrior"},
		},
		{
			name: "Five breakthroughs earn both insight keys",
			counters: models.EngagementCounters{
				BreakthroughCount: 5,
			},
			expected: []string{"first_insight", "insight_seeker"},
		},
		{
			name: "Depth five earns the deep keys",
			counters: models.EngagementCounters{
				ConnectionDepth: 5,
			},
			unlocked: map[string]bool{"trust_builder": true, "growing_closer": true},
			expected: []string{"deep_bond", "truly_known"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			due := EvaluateCatalog(tt.counters, tt.unlocked)
			keys := make([]string, 0, len(due))
			for _, def := range due {
				keys = append(keys, def.Key)
			}
			if len(keys) != len(tt.expected) {
				t.Fatalf("EvaluateCatalog keys = %v, want %v", keys, tt.expected)
			}
			for i := range keys {
				if keys[i] != tt.expected[i] {
					t.Errorf("EvaluateCatalog keys = %v, want %v", keys, tt.expected)
					break
				}
			}
		})
	}
}

func newAchievementService(t *testing.T) (*AchievementService, *ObservationStore, *EngagementService) {
	t.Helper()
	db := newTestDB(t)
	observations := NewObservationStore(db)
	engagement := NewEngagementService(db, nil)
	return NewAchievementService(db, observations, engagement, nil), observations, engagement
}

// TestEvaluateAndUnlockIdempotent tests that re-evaluation never double-awards
func TestEvaluateAndUnlockIdempotent(t *testing.T) {
	service, _, engagement := newAchievementService(t)
	ctx := context.Background()

	if _, err := engagement.RecordInteraction(ctx, "u1"); err != nil {
		t.Fatalf("RecordInteraction failed: %v", err)
	}

	first, err := service.EvaluateAndUnlock(ctx, "u1")
	if err != nil {
		t.Fatalf("EvaluateAndUnlock failed: %v", err)
	}
	if len(first) != 1 || first[0].AchievementKey != "first_step" {
		t.Fatalf("First evaluation: %+v", first)
	}

	second, err := service.EvaluateAndUnlock(ctx, "u1")
	if err != nil {
		t.Fatalf("EvaluateAndUnlock failed: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("Second evaluation re-awarded: %+v", second)
	}

	all, err := service.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 stored unlock, got %d", len(all))
	}
}

// TestObservationDrivenUnlocks tests unlocks fed by observation counters
func TestObservationDrivenUnlocks(t *testing.T) {
	service, observations, engagement := newAchievementService(t)
	ctx := context.Background()

	if _, err := engagement.GetOrCreateUser(ctx, "u1"); err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		mustAppend(t, observations, models.Observation{
			UserID: "u1", Text: "insight", Category: "breakthrough_moment",
			RelevanceScore: 8, IsBreakthroughMoment: true,
		})
	}

	unlocks, err := service.EvaluateAndUnlock(ctx, "u1")
	if err != nil {
		t.Fatalf("EvaluateAndUnlock failed: %v", err)
	}

	keys := make(map[string]bool, len(unlocks))
	for _, u := range unlocks {
		keys[u.AchievementKey] = true
	}
	if !keys["first_insight"] || !keys["insight_seeker"] {
		t.Errorf("Expected insight unlocks, got %v", keys)
	}
	if !keys["opening_up"] {
		t.Errorf("Expected opening_up at 5 observations, got %v", keys)
	}
}

// TestCelebrate tests idempotent celebration acknowledgement
func TestCelebrate(t *testing.T) {
	service, _, engagement := newAchievementService(t)
	ctx := context.Background()

	if _, err := engagement.RecordInteraction(ctx, "u1"); err != nil {
		t.Fatalf("RecordInteraction failed: %v", err)
	}
	unlocks, err := service.EvaluateAndUnlock(ctx, "u1")
	if err != nil || len(unlocks) == 0 {
		t.Fatalf("EvaluateAndUnlock: %v, %d unlocks", err, len(unlocks))
	}
	unlockID := unlocks[0].ID

	pending, err := service.Pending(ctx, "u1")
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending unlock, got %d", len(pending))
	}

	found, err := service.Celebrate(ctx, "u1", unlockID)
	if err != nil || !found {
		t.Fatalf("Celebrate: %v, found=%v", err, found)
	}

	// Celebrating again is a no-op, not an error
	found, err = service.Celebrate(ctx, "u1", unlockID)
	if err != nil || !found {
		t.Fatalf("Second celebrate: %v, found=%v", err, found)
	}

	pending, err = service.Pending(ctx, "u1")
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending unlocks, got %d", len(pending))
	}

	// Unknown unlock or wrong user reports not found
	if found, err := service.Celebrate(ctx, "u1", 9999); err != nil || found {
		t.Errorf("Celebrate(9999): %v, found=%v", err, found)
	}
	if found, err := service.Celebrate(ctx, "someone-else", unlockID); err != nil || found {
		t.Errorf("Celebrate as other user: %v, found=%v", err, found)
	}
}
