package services

import (
	"context"

	"reverie/internal/models"
)

// Selection constants for context assembly. The package handed to the
// generation service stays bounded by these regardless of history size.
const (
	ContextRecentObservations = 5
	ContextTopObservations    = 5
	ContextRecentInteractions = 3
)

// ContextService assembles the bounded context package for the next turn:
// recent observations first, then the highest-relevance ones not already
// included, then the tail of the raw exchange log.
type ContextService struct {
	observations *ObservationStore
	interactions *InteractionStore
	engagement   *EngagementService
}

// NewContextService creates a new context service
func NewContextService(observations *ObservationStore, interactions *InteractionStore, engagement *EngagementService) *ContextService {
	return &ContextService{
		observations: observations,
		interactions: interactions,
		engagement:   engagement,
	}
}

// Assemble builds the context package for one user. Recency order is
// preserved; top-relevance extras append after the recent block without
// duplicating it.
func (s *ContextService) Assemble(ctx context.Context, userID string) (*models.ContextPackage, error) {
	recent, err := s.observations.Recent(ctx, userID, ContextRecentObservations)
	if err != nil {
		return nil, err
	}

	top, err := s.observations.TopByRelevance(ctx, userID, ContextTopObservations)
	if err != nil {
		return nil, err
	}

	// The package is the union of the two lists: overlap shrinks it, and no
	// observation outside either list gets in.
	seen := make(map[int64]bool, len(recent))
	for _, obs := range recent {
		seen[obs.ID] = true
	}

	selected := recent
	for _, obs := range top {
		if seen[obs.ID] {
			continue
		}
		seen[obs.ID] = true
		selected = append(selected, obs)
	}

	exchanges, err := s.interactions.Recent(ctx, userID, ContextRecentInteractions)
	if err != nil {
		return nil, err
	}

	relationship, err := s.engagement.RelationshipStats(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &models.ContextPackage{
		Observations: selected,
		Interactions: exchanges,
		Relationship: relationship,
	}, nil
}
