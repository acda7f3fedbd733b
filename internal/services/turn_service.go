package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"reverie/internal/models"
)

// TurnService runs the per-turn pipeline: log the exchange, extract
// observations, append the validated ones, advance engagement state, then
// evaluate achievements. Turns for the same user are serialized; turns for
// different users run concurrently.
type TurnService struct {
	interactions *InteractionStore
	observations *ObservationStore
	extraction   *ExtractionService
	engagement   *EngagementService
	achievements *AchievementService
	categories   *CategoryService
	redis        *RedisService

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// TurnResult reports what one completed turn produced.
type TurnResult struct {
	InteractionID      string                     `json:"interaction_id"`
	ObservationsStored int                        `json:"observations_stored"`
	NewlyUnlocked      []models.AchievementUnlock `json:"newly_unlocked"`
	Engagement         *models.EngagementState    `json:"engagement"`
	Degraded           bool                       `json:"degraded"`
}

const turnLockTTL = 2 * time.Minute

// NewTurnService creates a new turn service
func NewTurnService(
	interactions *InteractionStore,
	observations *ObservationStore,
	extraction *ExtractionService,
	engagement *EngagementService,
	achievements *AchievementService,
	categories *CategoryService,
	redis *RedisService,
) *TurnService {
	return &TurnService{
		interactions: interactions,
		observations: observations,
		extraction:   extraction,
		engagement:   engagement,
		achievements: achievements,
		categories:   categories,
		redis:        redis,
		locks:        make(map[string]*sync.Mutex),
	}
}

func (s *TurnService) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// ProcessTurn runs the full pipeline for one completed exchange. The
// exchange log and engagement transition must succeed; extraction and
// achievement evaluation degrade the turn instead of failing it.
func (s *TurnService) ProcessTurn(ctx context.Context, userID, userInput, agentResponse string) (*TurnResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	if userInput == "" {
		return nil, fmt.Errorf("user input is required")
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	held, err := s.redis.AcquireUserLock(ctx, userID, turnLockTTL)
	if err != nil {
		log.Printf("⚠️ [TURN] Redis lock unavailable for %s, proceeding locally: %v", userID, err)
	} else if held {
		defer s.redis.ReleaseUserLock(ctx, userID)
	}

	start := time.Now()
	result := &TurnResult{}

	if _, err := s.engagement.GetOrCreateUser(ctx, userID); err != nil {
		return nil, err
	}

	interaction, err := withRetry(func() (*models.Interaction, error) {
		return s.interactions.Log(ctx, userID, userInput, agentResponse)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to log interaction: %w", err)
	}
	result.InteractionID = interaction.ID

	// Best-effort: a failed extraction yields zero observations, never an
	// error.
	extracted := s.extraction.Extract(ctx, userID, userInput, agentResponse)
	for i := range extracted {
		_, err := withRetry(func() (*models.Observation, error) {
			obs := extracted[i]
			if err := s.observations.Append(ctx, &obs); err != nil {
				return nil, err
			}
			return &obs, nil
		})
		if err != nil {
			log.Printf("⚠️ [TURN] Dropping observation for %s after retry: %v", userID, err)
			GetMetrics().RecordDegraded("observations")
			result.Degraded = true
			continue
		}
		result.ObservationsStored++
	}
	GetMetrics().RecordObservations(result.ObservationsStored)
	if result.ObservationsStored > 0 {
		s.categories.Invalidate(userID)
	}

	state, err := withRetry(func() (*models.EngagementState, error) {
		return s.engagement.RecordInteraction(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to advance engagement state: %w", err)
	}
	result.Engagement = state

	unlocks, err := s.achievements.EvaluateAndUnlock(ctx, userID)
	if err != nil {
		log.Printf("⚠️ [TURN] Achievement evaluation failed for %s: %v", userID, err)
		GetMetrics().RecordDegraded("achievements")
		result.Degraded = true
	}
	result.NewlyUnlocked = unlocks

	GetMetrics().RecordTurn(time.Since(start).Seconds())
	return result, nil
}

// withRetry performs a persistence write once more after a failure. SQLite
// under WAL recovers from transient busy errors on the second attempt.
func withRetry[T any](fn func() (T, error)) (T, error) {
	value, err := fn()
	if err == nil {
		return value, nil
	}
	time.Sleep(50 * time.Millisecond)
	return fn()
}
