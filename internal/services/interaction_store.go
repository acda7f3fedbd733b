package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reverie/internal/database"
	"reverie/internal/models"
)

// InteractionStore keeps the raw user/agent exchange log. Observations are
// distilled from these; the log itself is only read back for recent context.
type InteractionStore struct {
	db *database.DB
}

// NewInteractionStore creates a new interaction store
func NewInteractionStore(db *database.DB) *InteractionStore {
	return &InteractionStore{db: db}
}

// Log records one completed exchange and returns it with ID and timestamp set.
func (s *InteractionStore) Log(ctx context.Context, userID, userInput, agentResponse string) (*models.Interaction, error) {
	interaction := &models.Interaction{
		ID:            uuid.New().String(),
		UserID:        userID,
		UserInput:     userInput,
		AgentResponse: agentResponse,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, user_id, user_input, agent_response, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, interaction.ID, interaction.UserID, interaction.UserInput, interaction.AgentResponse, interaction.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to log interaction: %w", err)
	}

	return interaction, nil
}

// Recent returns the latest exchanges, newest first.
func (s *InteractionStore) Recent(ctx context.Context, userID string, limit int) ([]models.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, user_input, agent_response, created_at
		FROM interactions
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var interactions []models.Interaction
	for rows.Next() {
		var it models.Interaction
		if err := rows.Scan(&it.ID, &it.UserID, &it.UserInput, &it.AgentResponse, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		interactions = append(interactions, it)
	}
	return interactions, rows.Err()
}

// Count returns the total number of logged exchanges for a user.
func (s *InteractionStore) Count(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM interactions WHERE user_id = ?
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count interactions: %w", err)
	}
	return count, nil
}
