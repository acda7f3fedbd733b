package models

import (
	"strings"
	"time"
)

// Observation is a single curated case note about the user: an insight
// recognized in conversation, not a transcript line. Observations are
// immutable once stored.
type Observation struct {
	ID                   int64     `json:"id"`
	UserID               string    `json:"user_id"`
	Text                 string    `json:"text"`
	Interpretation       string    `json:"interpretation,omitempty"`
	Category             string    `json:"category"`
	RelevanceScore       int       `json:"relevance_score"` // 1-10 retrieval priority
	FollowUpQuestion     string    `json:"follow_up_question,omitempty"`
	PeopleMentioned      []string  `json:"people_mentioned,omitempty"`
	IsIdentityStatement  bool      `json:"is_identity_statement"`
	IsBreakthroughMoment bool      `json:"is_breakthrough_moment"`
	CreatedAt            time.Time `json:"created_at"`
}

// CandidateObservation is the raw structured output of the extraction model,
// before validation. Every field is untrusted.
type CandidateObservation struct {
	Text                 string   `json:"text"`
	Interpretation       string   `json:"interpretation,omitempty"`
	Category             string   `json:"category,omitempty"`
	RelevanceScore       *int     `json:"relevance_score,omitempty"`
	FollowUpQuestion     string   `json:"follow_up_question,omitempty"`
	PeopleMentioned      []string `json:"people_mentioned,omitempty"`
	IsIdentityStatement  *bool    `json:"is_identity_statement,omitempty"`
	IsBreakthroughMoment *bool    `json:"is_breakthrough_moment,omitempty"`
}

// Interaction is one completed conversational turn. A transcript record for
// short-term continuity, distinct from observations.
type Interaction struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	UserInput     string    `json:"user_input"`
	AgentResponse string    `json:"agent_response"`
	CreatedAt     time.Time `json:"created_at"`
}

// CategoryUncategorized is the fallback for candidates whose category is
// absent or outside the closed taxonomy.
const CategoryUncategorized = "uncategorized"

// Relevance score bounds and the neutral default for missing scores.
const (
	MinRelevanceScore     = 1
	MaxRelevanceScore     = 10
	DefaultRelevanceScore = 5
)

// ObservationCategories is the closed category taxonomy. The extraction model
// proposes free-form strings; anything outside this set becomes
// CategoryUncategorized.
var ObservationCategories = []string{
	"relationship_dynamics",
	"self_worth",
	"fear_patterns",
	"recurring_struggle",
	"identity",
	"breakthrough_moment",
	"life_transition",
	"support_system",
	"control_seeking",
	"shame_dynamics",
	"defense_mechanisms",
	"self_worth_conflict",
}

// CategoryLabels maps category keys to dashboard display labels.
var CategoryLabels = map[string]string{
	"relationship_dynamics": "Relationships",
	"self_worth":            "Self-worth",
	"fear_patterns":         "Fears & worries",
	"recurring_struggle":    "Ongoing challenges",
	"identity":              "Identity",
	"breakthrough_moment":   "Realizations",
	"life_transition":       "Life changes",
	"support_system":        "Support system",
	"control_seeking":       "Control issues",
	"shame_dynamics":        "Shame",
	"defense_mechanisms":    "Defense patterns",
	"self_worth_conflict":   "Self-worth conflicts",
	CategoryUncategorized:   "Uncategorized",
}

// StruggleCategories are the categories surfaced as "areas to work on" when
// they recur.
var StruggleCategories = []string{
	"fear_patterns",
	"recurring_struggle",
	"self_worth_conflict",
	"shame_dynamics",
	"defense_mechanisms",
	"control_seeking",
}

var categorySet = func() map[string]bool {
	set := make(map[string]bool, len(ObservationCategories))
	for _, c := range ObservationCategories {
		set[c] = true
	}
	return set
}()

// CategoryEnum returns the closed taxonomy plus the fallback, for
// structured-output schemas.
func CategoryEnum() []string {
	return append(append([]string{}, ObservationCategories...), CategoryUncategorized)
}

// IsValidCategory reports whether c is a member of the closed taxonomy.
// The fallback category itself is valid for storage but is never proposed.
func IsValidCategory(c string) bool {
	return categorySet[c]
}

// NormalizeCategory coerces a proposed category into the closed taxonomy.
func NormalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" || !categorySet[c] {
		return CategoryUncategorized
	}
	return c
}

// ClampRelevance forces a score into [MinRelevanceScore, MaxRelevanceScore].
func ClampRelevance(score int) int {
	if score < MinRelevanceScore {
		return MinRelevanceScore
	}
	if score > MaxRelevanceScore {
		return MaxRelevanceScore
	}
	return score
}

// Trend classification for category aggregates.
const (
	TrendIncreasing = "increasing"
	TrendStable     = "stable"
	TrendDecreasing = "decreasing"
)

// CategoryAggregate is one row of the pattern-recognition dashboard.
type CategoryAggregate struct {
	Category     string     `json:"category"`
	Label        string     `json:"label"`
	Count        int        `json:"count"`
	Trend        string     `json:"trend"`
	TopRelevance int        `json:"top_relevance"`
	LatestAt     *time.Time `json:"latest_at,omitempty"`
}

// AreaToWorkOn is a recurring struggle theme surfaced to the dashboard.
type AreaToWorkOn struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Frequency   int      `json:"frequency"`
	Examples    []string `json:"examples"`
}

// ContextPackage is the bounded slice of history handed to the generation
// service for the next turn. Its size is capped by the selection constants
// regardless of how many observations exist.
type ContextPackage struct {
	Observations []Observation      `json:"observations"`
	Interactions []Interaction      `json:"interactions"`
	Relationship *RelationshipStats `json:"relationship"`
}
