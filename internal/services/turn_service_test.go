package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"reverie/internal/database"
)

func newTurnService(t *testing.T, extraction *ExtractionService) (*TurnService, *database.DB) {
	t.Helper()
	db := newTestDB(t)
	observations := NewObservationStore(db)
	interactions := NewInteractionStore(db)
	engagement := NewEngagementService(db, nil)
	categories := NewCategoryService(observations, engagement, interactions)
	achievements := NewAchievementService(db, observations, engagement, nil)
	if extraction == nil {
		extraction = NewExtractionService(nil, time.Second)
	}
	return NewTurnService(interactions, observations, extraction, engagement, achievements, categories, nil), db
}

// TestProcessTurnFirstContact tests the full pipeline for a brand new user
func TestProcessTurnFirstContact(t *testing.T) {
	content, _ := json.Marshal(map[string]interface{}{
		"observations": []map[string]interface{}{
			{"text": "Worries about disappointing their father", "category": "relationship_dynamics", "relevance_score": 8},
			{"text": "Calls themselves the responsible one", "category": "identity", "relevance_score": 7, "is_identity_statement": true},
		},
	})
	server := extractionServer(t, string(content), 200)
	extraction := NewExtractionService(testProvider(server.URL), 5*time.Second)

	service, db := newTurnService(t, extraction)
	ctx := context.Background()

	result, err := service.ProcessTurn(ctx, "u1", "I can't let my dad down", "That sounds heavy")
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}

	if result.InteractionID == "" {
		t.Error("Expected interaction ID")
	}
	if result.ObservationsStored != 2 {
		t.Errorf("ObservationsStored = %d, want 2", result.ObservationsStored)
	}
	if result.Degraded {
		t.Error("Turn unexpectedly degraded")
	}
	if result.Engagement == nil || result.Engagement.CurrentStreak != 1 || result.Engagement.TotalSessions != 1 {
		t.Errorf("Engagement after first turn: %+v", result.Engagement)
	}

	unlocked := make(map[string]bool)
	for _, u := range result.NewlyUnlocked {
		unlocked[u.AchievementKey] = true
	}
	if !unlocked["first_step"] {
		t.Errorf("Expected first_step unlock, got %v", unlocked)
	}

	// Everything persisted
	var observations, interactions int
	if err := db.QueryRow(`SELECT COUNT(*) FROM observations WHERE user_id = 'u1'`).Scan(&observations); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM interactions WHERE user_id = 'u1'`).Scan(&interactions); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if observations != 2 || interactions != 1 {
		t.Errorf("Persisted %d observations, %d interactions", observations, interactions)
	}
}

// TestProcessTurnWithoutExtraction tests that a turn succeeds with no provider
func TestProcessTurnWithoutExtraction(t *testing.T) {
	service, _ := newTurnService(t, nil)

	result, err := service.ProcessTurn(context.Background(), "u1", "hello", "hi")
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if result.ObservationsStored != 0 {
		t.Errorf("ObservationsStored = %d, want 0", result.ObservationsStored)
	}
	if result.Engagement.TotalSessions != 1 {
		t.Errorf("TotalSessions = %d, want 1", result.Engagement.TotalSessions)
	}
}

// TestProcessTurnValidation tests input requirements
func TestProcessTurnValidation(t *testing.T) {
	service, _ := newTurnService(t, nil)
	ctx := context.Background()

	if _, err := service.ProcessTurn(ctx, "", "hello", "hi"); err == nil {
		t.Error("Expected error for missing user ID")
	}
	if _, err := service.ProcessTurn(ctx, "u1", "", "hi"); err == nil {
		t.Error("Expected error for missing user input")
	}
}

// TestProcessTurnSerializesPerUser tests that concurrent turns for one user
// keep session counting exact
func TestProcessTurnSerializesPerUser(t *testing.T) {
	service, _ := newTurnService(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.ProcessTurn(ctx, "u1", "hello", "hi"); err != nil {
				t.Errorf("ProcessTurn failed: %v", err)
			}
		}()
	}
	wg.Wait()

	result, err := service.ProcessTurn(ctx, "u1", "one more", "ok")
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	// Nine turns landed on the same day: nine sessions, streak stays 1
	if result.Engagement.TotalSessions != 9 || result.Engagement.CurrentStreak != 1 {
		t.Errorf("Engagement after concurrent turns: %+v", result.Engagement)
	}
}
