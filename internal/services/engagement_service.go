package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"reverie/internal/database"
	"reverie/internal/models"
)

// EngagementService owns the per-user engagement state: streak transitions,
// session counting and connection depth. Transitions are computed against
// calendar days in a configured timezone so a late-night exchange and the
// next morning's count as consecutive days, not the same one.
type EngagementService struct {
	db       *database.DB
	location *time.Location
}

// NewEngagementService creates a new engagement service
func NewEngagementService(db *database.DB, location *time.Location) *EngagementService {
	if location == nil {
		location = time.UTC
	}
	return &EngagementService{db: db, location: location}
}

// GetOrCreateUser loads the engagement row for a user, creating a fresh one
// on first contact.
func (s *EngagementService) GetOrCreateUser(ctx context.Context, userID string) (*models.EngagementState, error) {
	state, err := s.getUser(ctx, userID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, connection_depth, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, models.MinConnectionDepth, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.getUser(ctx, userID)
}

func (s *EngagementService) getUser(ctx context.Context, userID string) (*models.EngagementState, error) {
	state := &models.EngagementState{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT first_interaction_date, last_interaction_date,
		       total_sessions, current_streak, longest_streak, connection_depth
		FROM users WHERE user_id = ?
	`, userID).Scan(
		&state.FirstInteractionDate, &state.LastInteractionDate,
		&state.TotalSessions, &state.CurrentStreak, &state.LongestStreak,
		&state.ConnectionDepth,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load engagement state: %w", err)
	}
	return state, nil
}

// streakTransition is the day-boundary state machine. Given the prior state
// and the interaction day, it returns the next streak pair and whether this
// is the first interaction of the day.
func streakTransition(lastDay *time.Time, currentStreak, longestStreak int, today time.Time) (newStreak, newLongest int, newDay bool) {
	switch {
	case lastDay == nil:
		newStreak = 1
		newDay = true
	case sameDay(*lastDay, today):
		newStreak = currentStreak
	case sameDay(lastDay.AddDate(0, 0, 1), today):
		newStreak = currentStreak + 1
		newDay = true
	default:
		newStreak = 1
		newDay = true
	}

	newLongest = longestStreak
	if newStreak > newLongest {
		newLongest = newStreak
	}
	return newStreak, newLongest, newDay
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// deriveConnectionDepth maps accumulated engagement to the 1..5 depth scale.
// Sessions set the base tier; a live streak and a long relationship each add
// one level, clamped to the scale.
func deriveConnectionDepth(state *models.EngagementState, now time.Time) int {
	depth := models.MinConnectionDepth
	switch {
	case state.TotalSessions >= 50:
		depth = 5
	case state.TotalSessions >= 25:
		depth = 4
	case state.TotalSessions >= 10:
		depth = 3
	case state.TotalSessions >= 3:
		depth = 2
	}

	if state.CurrentStreak >= 3 {
		depth++
	}
	if state.FirstInteractionDate != nil && now.Sub(*state.FirstInteractionDate) >= 30*24*time.Hour {
		depth++
	}

	if depth > models.MaxConnectionDepth {
		depth = models.MaxConnectionDepth
	}
	return depth
}

// RecordInteraction advances the engagement state for one exchange and
// persists it. Returns the updated state.
func (s *EngagementService) RecordInteraction(ctx context.Context, userID string) (*models.EngagementState, error) {
	state, err := s.GetOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().In(s.location)

	var lastDay *time.Time
	if state.LastInteractionDate != nil {
		local := state.LastInteractionDate.In(s.location)
		lastDay = &local
	}

	newStreak, newLongest, newDay := streakTransition(lastDay, state.CurrentStreak, state.LongestStreak, now)

	state.CurrentStreak = newStreak
	state.LongestStreak = newLongest
	// Every completed turn counts as a session. Only the streak is day-gated.
	state.TotalSessions++
	nowUTC := now.UTC()
	if state.FirstInteractionDate == nil {
		state.FirstInteractionDate = &nowUTC
	}
	state.LastInteractionDate = &nowUTC
	state.ConnectionDepth = deriveConnectionDepth(state, nowUTC)

	_, err = s.db.ExecContext(ctx, `
		UPDATE users
		SET first_interaction_date = ?, last_interaction_date = ?,
		    total_sessions = ?, current_streak = ?, longest_streak = ?,
		    connection_depth = ?
		WHERE user_id = ?
	`, state.FirstInteractionDate, state.LastInteractionDate,
		state.TotalSessions, state.CurrentStreak, state.LongestStreak,
		state.ConnectionDepth, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to persist engagement state: %w", err)
	}

	if newDay {
		log.Printf("🔥 [ENGAGEMENT] User %s: streak %d (longest %d), depth %d", userID, newStreak, newLongest, state.ConnectionDepth)
	}

	return state, nil
}

// StreakStatus reports where the streak stands today: whether the user has
// already interacted, and whether the streak dies at midnight.
func (s *EngagementService) StreakStatus(ctx context.Context, userID string) (*models.StreakStatus, error) {
	state, err := s.GetOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &models.StreakStatus{
		CurrentStreak: state.CurrentStreak,
		LongestStreak: state.LongestStreak,
	}

	if state.LastInteractionDate != nil {
		last := state.LastInteractionDate.In(s.location)
		today := time.Now().In(s.location)
		status.HasInteractedToday = sameDay(last, today)
		status.StreakAtRisk = !status.HasInteractedToday && state.CurrentStreak > 0
	}

	return status, nil
}

// RelationshipStats summarizes the relationship for the dashboard.
func (s *EngagementService) RelationshipStats(ctx context.Context, userID string) (*models.RelationshipStats, error) {
	state, err := s.GetOrCreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &models.RelationshipStats{
		TotalSessions:        state.TotalSessions,
		CurrentStreak:        state.CurrentStreak,
		LongestStreak:        state.LongestStreak,
		ConnectionDepth:      state.ConnectionDepth,
		ConnectionDepthLabel: models.ConnectionDepthLabel(state.ConnectionDepth),
	}

	if state.FirstInteractionDate != nil {
		stats.FirstInteraction = state.FirstInteractionDate
		stats.DaysTogether = int(time.Now().UTC().Sub(*state.FirstInteractionDate).Hours() / 24)
	}
	stats.LastInteraction = state.LastInteractionDate

	return stats, nil
}

// UsersWithStreakAtRisk counts users whose streak lapses if they stay away
// today. Feeds the at-risk gauge.
func (s *EngagementService) UsersWithStreakAtRisk(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT last_interaction_date, current_streak
		FROM users
		WHERE current_streak > 0 AND last_interaction_date IS NOT NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to query streaks: %w", err)
	}
	defer rows.Close()

	today := time.Now().In(s.location)
	atRisk := 0
	for rows.Next() {
		var last time.Time
		var streak int
		if err := rows.Scan(&last, &streak); err != nil {
			return 0, fmt.Errorf("failed to scan streak row: %w", err)
		}
		if !sameDay(last.In(s.location), today) {
			atRisk++
		}
	}
	return atRisk, rows.Err()
}
