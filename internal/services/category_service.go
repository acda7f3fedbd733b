package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"

	"reverie/internal/models"
)

// CategoryService builds the per-category dashboard views: aggregate counts
// with week-over-week trends, and the "areas to work on" summary. Results
// are cached briefly; the turn pipeline invalidates on new observations.
type CategoryService struct {
	observations *ObservationStore
	engagement   *EngagementService
	interactions *InteractionStore
	cache        *cache.Cache
}

const (
	trendWindow      = 7 * 24 * time.Hour
	trendThreshold   = 0.20
	areaMinFrequency = 3
)

func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// NewCategoryService creates a new category service
func NewCategoryService(observations *ObservationStore, engagement *EngagementService, interactions *InteractionStore) *CategoryService {
	return &CategoryService{
		observations: observations,
		engagement:   engagement,
		interactions: interactions,
		cache:        cache.New(30*time.Second, time.Minute),
	}
}

// Invalidate drops cached views for a user after new observations land.
func (s *CategoryService) Invalidate(userID string) {
	s.cache.Delete("aggregates:" + userID)
	s.cache.Delete("stats:" + userID)
}

// Aggregates returns per-category counts, top relevance and trend direction,
// ordered by count descending.
func (s *CategoryService) Aggregates(ctx context.Context, userID string) ([]models.CategoryAggregate, error) {
	if cached, found := s.cache.Get("aggregates:" + userID); found {
		return cached.([]models.CategoryAggregate), nil
	}

	totals, err := s.observations.CountByCategory(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	current, err := s.observations.CountByCategoryBetween(ctx, userID, now.Add(-trendWindow), now)
	if err != nil {
		return nil, err
	}
	previous, err := s.observations.CountByCategoryBetween(ctx, userID, now.Add(-2*trendWindow), now.Add(-trendWindow))
	if err != nil {
		return nil, err
	}

	aggregates := make([]models.CategoryAggregate, 0, len(totals))
	for category, count := range totals {
		agg := models.CategoryAggregate{
			Category: category,
			Label:    categoryLabel(category),
			Count:    count,
			Trend:    trendDirection(previous[category], current[category]),
		}

		top, err := s.observations.TopInCategory(ctx, userID, category, 1)
		if err != nil {
			return nil, err
		}
		if len(top) > 0 {
			agg.TopRelevance = top[0].RelevanceScore
			agg.LatestAt = &top[0].CreatedAt
		}

		aggregates = append(aggregates, agg)
	}

	sort.Slice(aggregates, func(i, j int) bool {
		if aggregates[i].Count != aggregates[j].Count {
			return aggregates[i].Count > aggregates[j].Count
		}
		return aggregates[i].Category < aggregates[j].Category
	})

	s.cache.Set("aggregates:"+userID, aggregates, cache.DefaultExpiration)
	return aggregates, nil
}

func categoryLabel(category string) string {
	if label, ok := models.CategoryLabels[category]; ok {
		return label
	}
	return "Uncategorized"
}

// trendDirection compares adjacent 7-day buckets. A move past 20% in either
// direction counts as a trend; anything else is stable.
func trendDirection(previous, current int) string {
	if previous == 0 {
		if current > 0 {
			return models.TrendIncreasing
		}
		return models.TrendStable
	}
	change := float64(current-previous) / float64(previous)
	switch {
	case change > trendThreshold:
		return models.TrendIncreasing
	case change < -trendThreshold:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

// AreasToWorkOn surfaces the struggle categories with the highest activity,
// each anchored by its most relevant observations.
func (s *CategoryService) AreasToWorkOn(ctx context.Context, userID string, limit int) ([]models.AreaToWorkOn, error) {
	if limit <= 0 {
		limit = 5
	}

	totals, err := s.observations.CountByCategory(ctx, userID)
	if err != nil {
		return nil, err
	}

	var areas []models.AreaToWorkOn
	for _, category := range models.StruggleCategories {
		count := totals[category]
		if count < areaMinFrequency {
			continue
		}

		top, err := s.observations.TopInCategory(ctx, userID, category, 2)
		if err != nil {
			return nil, err
		}

		area := models.AreaToWorkOn{
			Title:       categoryLabel(category),
			Category:    category,
			Frequency:   count,
			Description: fmt.Sprintf("This theme has appeared %d times in your reflections", count),
		}
		for _, obs := range top {
			area.Examples = append(area.Examples, truncateText(obs.Text, 100))
		}
		areas = append(areas, area)
	}

	sort.Slice(areas, func(i, j int) bool {
		if areas[i].Frequency != areas[j].Frequency {
			return areas[i].Frequency > areas[j].Frequency
		}
		return areas[i].Category < areas[j].Category
	})

	if len(areas) > limit {
		areas = areas[:limit]
	}
	return areas, nil
}

// DashboardStats assembles the headline numbers for a user's dashboard.
func (s *CategoryService) DashboardStats(ctx context.Context, userID string) (*models.DashboardStats, error) {
	if cached, found := s.cache.Get("stats:" + userID); found {
		return cached.(*models.DashboardStats), nil
	}

	total, breakthroughs, identity, err := s.observations.Counters(ctx, userID)
	if err != nil {
		return nil, err
	}

	people, err := s.observations.DistinctPeople(ctx, userID)
	if err != nil {
		return nil, err
	}

	interactions, err := s.interactions.Count(ctx, userID)
	if err != nil {
		return nil, err
	}

	totals, err := s.observations.CountByCategory(ctx, userID)
	if err != nil {
		return nil, err
	}
	activePatterns := 0
	for category, count := range totals {
		if count >= 2 && category != models.CategoryUncategorized {
			activePatterns++
		}
	}

	state, err := s.engagement.GetOrCreateUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load engagement state: %w", err)
	}

	stats := &models.DashboardStats{
		TotalSessions:     state.TotalSessions,
		TotalObservations: total,
		TotalInteractions: interactions,
		BreakthroughCount: breakthroughs,
		IdentityCount:     identity,
		PeopleCount:       people,
		ActivePatterns:    activePatterns,
		LastSession:       state.LastInteractionDate,
	}

	s.cache.Set("stats:"+userID, stats, cache.DefaultExpiration)
	return stats, nil
}
