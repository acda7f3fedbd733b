package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"reverie/internal/database"
	"reverie/internal/models"
)

// AchievementService evaluates the fixed catalog against engagement counters
// and records first-time unlocks. Unlock rows are insert-only; re-evaluation
// after a counter regresses (a broken streak) never revokes anything.
type AchievementService struct {
	db           *database.DB
	observations *ObservationStore
	engagement   *EngagementService
	redis        *RedisService
}

// NewAchievementService creates a new achievement service
func NewAchievementService(db *database.DB, observations *ObservationStore, engagement *EngagementService, redis *RedisService) *AchievementService {
	return &AchievementService{
		db:           db,
		observations: observations,
		engagement:   engagement,
		redis:        redis,
	}
}

// EvaluateCatalog returns the catalog keys whose counter meets the threshold
// and that are not already unlocked. Pure; no side effects.
func EvaluateCatalog(counters models.EngagementCounters, unlocked map[string]bool) []models.AchievementDef {
	var due []models.AchievementDef
	for _, def := range models.AchievementCatalog() {
		if unlocked[def.Key] {
			continue
		}
		if counters.Value(def.Counter) >= def.Threshold {
			due = append(due, def)
		}
	}
	return due
}

// Counters assembles the current counter snapshot for a user.
func (s *AchievementService) Counters(ctx context.Context, userID string) (models.EngagementCounters, error) {
	var counters models.EngagementCounters

	state, err := s.engagement.GetOrCreateUser(ctx, userID)
	if err != nil {
		return counters, err
	}

	total, breakthroughs, identity, err := s.observations.Counters(ctx, userID)
	if err != nil {
		return counters, err
	}

	people, err := s.observations.DistinctPeople(ctx, userID)
	if err != nil {
		return counters, err
	}

	counters.TotalSessions = state.TotalSessions
	counters.TotalObservations = total
	counters.CurrentStreak = state.CurrentStreak
	counters.ConnectionDepth = state.ConnectionDepth
	counters.BreakthroughCount = breakthroughs
	counters.IdentityCount = identity
	counters.PeopleCount = people
	return counters, nil
}

// EvaluateAndUnlock checks every catalog entry for a user and records the
// ones newly earned. Returns only the unlocks this call won; concurrent
// evaluations of the same user cannot double-award a key.
func (s *AchievementService) EvaluateAndUnlock(ctx context.Context, userID string) ([]models.AchievementUnlock, error) {
	counters, err := s.Counters(ctx, userID)
	if err != nil {
		return nil, err
	}

	unlocked, err := s.unlockedKeys(ctx, userID)
	if err != nil {
		return nil, err
	}

	var won []models.AchievementUnlock
	for _, def := range EvaluateCatalog(counters, unlocked) {
		unlock, fresh, err := s.unlock(ctx, userID, def.Key)
		if err != nil {
			return won, err
		}
		if fresh {
			won = append(won, *unlock)
			log.Printf("🏆 [ACHIEVEMENTS] User %s unlocked %q", userID, def.Key)
			s.redis.PublishUnlock(ctx, userID, def.Key)
		}
	}

	GetMetrics().RecordUnlocks(len(won))
	return won, nil
}

// unlock inserts the unlock row if absent. fresh is false when another
// evaluation already recorded it.
func (s *AchievementService) unlock(ctx context.Context, userID, key string) (*models.AchievementUnlock, bool, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO achievements (user_id, achievement_key, unlocked_at, celebrated)
		VALUES (?, ?, ?, FALSE)
		ON CONFLICT(user_id, achievement_key) DO NOTHING
	`, userID, key, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record unlock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read unlock result: %w", err)
	}
	if affected == 0 {
		return nil, false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read unlock id: %w", err)
	}

	return &models.AchievementUnlock{
		ID:             id,
		UserID:         userID,
		AchievementKey: key,
		UnlockedAt:     now,
	}, true, nil
}

func (s *AchievementService) unlockedKeys(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT achievement_key FROM achievements WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlocks: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan unlock key: %w", err)
		}
		keys[key] = true
	}
	return keys, rows.Err()
}

// List returns every unlock for a user, oldest first.
func (s *AchievementService) List(ctx context.Context, userID string) ([]models.AchievementUnlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, achievement_key, unlocked_at, celebrated
		FROM achievements
		WHERE user_id = ?
		ORDER BY unlocked_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlocks: %w", err)
	}
	defer rows.Close()

	var unlocks []models.AchievementUnlock
	for rows.Next() {
		var u models.AchievementUnlock
		if err := rows.Scan(&u.ID, &u.UserID, &u.AchievementKey, &u.UnlockedAt, &u.Celebrated); err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

// Pending returns unlocks that have not been celebrated yet.
func (s *AchievementService) Pending(ctx context.Context, userID string) ([]models.AchievementUnlock, error) {
	unlocks, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending := unlocks[:0]
	for _, u := range unlocks {
		if !u.Celebrated {
			pending = append(pending, u)
		}
	}
	return pending, nil
}

// Celebrate marks one unlock as celebrated. Idempotent; celebrating an
// already-celebrated unlock is a no-op. Returns false when the unlock does
// not exist for this user.
func (s *AchievementService) Celebrate(ctx context.Context, userID string, unlockID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE achievements SET celebrated = TRUE
		WHERE id = ? AND user_id = ?
	`, unlockID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to mark celebration: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read celebration result: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	// UPDATE of an already-celebrated row still reports a change on some
	// drivers and none on others, so confirm existence explicitly.
	var exists int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM achievements WHERE id = ? AND user_id = ?
	`, unlockID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check unlock: %w", err)
	}
	return exists > 0, nil
}
