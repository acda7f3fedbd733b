package models

import "time"

// EngagementState is the per-user engagement record. It is mutated only by
// the turn pipeline, at most once per calendar day for streak fields.
type EngagementState struct {
	UserID               string     `json:"user_id"`
	FirstInteractionDate *time.Time `json:"first_interaction_date,omitempty"`
	LastInteractionDate  *time.Time `json:"last_interaction_date,omitempty"`
	TotalSessions        int        `json:"total_sessions"`
	CurrentStreak        int        `json:"current_streak"`
	LongestStreak        int        `json:"longest_streak"`
	ConnectionDepth      int        `json:"connection_depth"` // 1-5
}

// Connection depth bounds. Depth is derived from cumulative engagement and
// never leaves this range.
const (
	MinConnectionDepth = 1
	MaxConnectionDepth = 5
)

var connectionDepthLabels = map[int]string{
	1: "Getting to know each other",
	2: "Building trust",
	3: "Growing closer",
	4: "Deep connection",
	5: "Truly understood",
}

// ConnectionDepthLabel returns the display label for a depth level.
func ConnectionDepthLabel(depth int) string {
	if label, ok := connectionDepthLabels[depth]; ok {
		return label
	}
	return connectionDepthLabels[MinConnectionDepth]
}

// RelationshipStats is the read model for the relationship panel.
type RelationshipStats struct {
	DaysTogether         int        `json:"days_together"`
	TotalSessions        int        `json:"total_sessions"`
	CurrentStreak        int        `json:"current_streak"`
	LongestStreak        int        `json:"longest_streak"`
	ConnectionDepth      int        `json:"connection_depth"`
	ConnectionDepthLabel string     `json:"connection_depth_label"`
	FirstInteraction     *time.Time `json:"first_interaction,omitempty"`
	LastInteraction      *time.Time `json:"last_interaction,omitempty"`
}

// StreakStatus is the derived read-only streak signal.
type StreakStatus struct {
	CurrentStreak      int  `json:"current_streak"`
	LongestStreak      int  `json:"longest_streak"`
	HasInteractedToday bool `json:"has_interacted_today"`
	StreakAtRisk       bool `json:"streak_at_risk"`
}

// DashboardStats summarizes a user's history for the dashboard header.
type DashboardStats struct {
	TotalSessions     int        `json:"total_sessions"`
	TotalObservations int        `json:"total_observations"`
	TotalInteractions int        `json:"total_interactions"`
	BreakthroughCount int        `json:"breakthrough_count"`
	IdentityCount     int        `json:"identity_count"`
	PeopleCount       int        `json:"people_count"`
	ActivePatterns    int        `json:"active_patterns"`
	LastSession       *time.Time `json:"last_session,omitempty"`
}
