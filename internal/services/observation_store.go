package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"reverie/internal/database"
	"reverie/internal/models"
)

// ObservationStore is the append-only repository of curated observations.
// Rows are immutable after insert; every read is a filtered projection.
type ObservationStore struct {
	db *database.DB
}

// NewObservationStore creates a new observation store
func NewObservationStore(db *database.DB) *ObservationStore {
	return &ObservationStore{db: db}
}

// ObservationFilters narrows List results. Zero values mean "no filter".
type ObservationFilters struct {
	Category         string
	IdentityOnly     bool
	BreakthroughOnly bool
	MinRelevance     int
	HasFollowUp      bool
	Limit            int
}

// Append inserts a validated observation. The only mutation this store
// supports. ID and CreatedAt are assigned here.
func (s *ObservationStore) Append(ctx context.Context, obs *models.Observation) error {
	if obs.UserID == "" {
		return fmt.Errorf("observation requires a user ID")
	}
	if strings.TrimSpace(obs.Text) == "" {
		return fmt.Errorf("observation requires non-empty text")
	}
	if obs.RelevanceScore < models.MinRelevanceScore || obs.RelevanceScore > models.MaxRelevanceScore {
		return fmt.Errorf("relevance score %d out of range", obs.RelevanceScore)
	}

	people, err := json.Marshal(obs.PeopleMentioned)
	if err != nil {
		return fmt.Errorf("failed to encode people mentioned: %w", err)
	}

	obs.CreatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO observations
			(user_id, text, interpretation, category, relevance_score,
			 follow_up_question, people_mentioned,
			 is_identity_statement, is_breakthrough_moment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, obs.UserID, obs.Text, obs.Interpretation, obs.Category, obs.RelevanceScore,
		obs.FollowUpQuestion, string(people),
		obs.IsIdentityStatement, obs.IsBreakthroughMoment, obs.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append observation: %w", err)
	}

	obs.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read observation id: %w", err)
	}

	return nil
}

// List returns observations for a user, newest first, narrowed by filters.
func (s *ObservationStore) List(ctx context.Context, userID string, filters ObservationFilters) ([]models.Observation, error) {
	query := `
		SELECT id, user_id, text, interpretation, category, relevance_score,
		       follow_up_question, people_mentioned,
		       is_identity_statement, is_breakthrough_moment, created_at
		FROM observations
		WHERE user_id = ?`
	args := []interface{}{userID}

	if filters.Category != "" {
		query += " AND category = ?"
		args = append(args, filters.Category)
	}
	if filters.IdentityOnly {
		query += " AND is_identity_statement = TRUE"
	}
	if filters.BreakthroughOnly {
		query += " AND is_breakthrough_moment = TRUE"
	}
	if filters.MinRelevance > 0 {
		query += " AND relevance_score >= ?"
		args = append(args, filters.MinRelevance)
	}
	if filters.HasFollowUp {
		query += " AND follow_up_question != ''"
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	return s.queryObservations(ctx, query, args...)
}

// Recent returns the most recent observations by creation time.
func (s *ObservationStore) Recent(ctx context.Context, userID string, limit int) ([]models.Observation, error) {
	return s.List(ctx, userID, ObservationFilters{Limit: limit})
}

// TopByRelevance returns the highest-scored observations, ties broken by the
// more recent creation time.
func (s *ObservationStore) TopByRelevance(ctx context.Context, userID string, limit int) ([]models.Observation, error) {
	return s.queryObservations(ctx, `
		SELECT id, user_id, text, interpretation, category, relevance_score,
		       follow_up_question, people_mentioned,
		       is_identity_statement, is_breakthrough_moment, created_at
		FROM observations
		WHERE user_id = ?
		ORDER BY relevance_score DESC, created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
}

// TopInCategory returns the highest-scored observations within one category.
func (s *ObservationStore) TopInCategory(ctx context.Context, userID, category string, limit int) ([]models.Observation, error) {
	return s.queryObservations(ctx, `
		SELECT id, user_id, text, interpretation, category, relevance_score,
		       follow_up_question, people_mentioned,
		       is_identity_statement, is_breakthrough_moment, created_at
		FROM observations
		WHERE user_id = ? AND category = ?
		ORDER BY relevance_score DESC, created_at DESC, id DESC
		LIMIT ?
	`, userID, category, limit)
}

// CountByCategoryBetween counts observations per category created in
// [start, end). Used by the trend buckets.
func (s *ObservationStore) CountByCategoryBetween(ctx context.Context, userID string, start, end time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*)
		FROM observations
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
		GROUP BY category
	`, userID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count observations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts[category] = count
	}
	return counts, rows.Err()
}

// CountByCategory counts all observations per category.
func (s *ObservationStore) CountByCategory(ctx context.Context, userID string) (map[string]int, error) {
	return s.CountByCategoryBetween(ctx, userID, time.Time{}, time.Now().UTC().Add(time.Second))
}

// Counters returns the cumulative observation counters the achievement
// engine evaluates.
func (s *ObservationStore) Counters(ctx context.Context, userID string) (total, breakthroughs, identity int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(is_breakthrough_moment), 0),
		       COALESCE(SUM(is_identity_statement), 0)
		FROM observations
		WHERE user_id = ?
	`, userID).Scan(&total, &breakthroughs, &identity)
	if err != nil {
		err = fmt.Errorf("failed to count observations: %w", err)
	}
	return total, breakthroughs, identity, err
}

// DistinctPeople counts the unique people mentioned across all observations.
func (s *ObservationStore) DistinctPeople(ctx context.Context, userID string) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT people_mentioned FROM observations
		WHERE user_id = ? AND people_mentioned != '[]'
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to query people mentioned: %w", err)
	}
	defer rows.Close()

	people := make(map[string]bool)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return 0, fmt.Errorf("failed to scan people mentioned: %w", err)
		}
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			continue
		}
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name != "" {
				people[strings.ToLower(name)] = true
			}
		}
	}
	return len(people), rows.Err()
}

// FollowUpOpportunities returns recent observations that carry an unasked
// follow-up question.
func (s *ObservationStore) FollowUpOpportunities(ctx context.Context, userID string, limit int) ([]models.Observation, error) {
	return s.List(ctx, userID, ObservationFilters{HasFollowUp: true, Limit: limit})
}

func (s *ObservationStore) queryObservations(ctx context.Context, query string, args ...interface{}) ([]models.Observation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var observations []models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

func scanObservation(rows *sql.Rows) (models.Observation, error) {
	var obs models.Observation
	var people string
	err := rows.Scan(
		&obs.ID, &obs.UserID, &obs.Text, &obs.Interpretation, &obs.Category,
		&obs.RelevanceScore, &obs.FollowUpQuestion, &people,
		&obs.IsIdentityStatement, &obs.IsBreakthroughMoment, &obs.CreatedAt,
	)
	if err != nil {
		return obs, fmt.Errorf("failed to scan observation: %w", err)
	}
	if err := json.Unmarshal([]byte(people), &obs.PeopleMentioned); err != nil {
		obs.PeopleMentioned = nil
	}
	return obs, nil
}
