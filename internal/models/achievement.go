package models

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// AchievementUnlock records a first unlock of a catalog key for a user.
// At most one row exists per (user, key); rows are never deleted.
type AchievementUnlock struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	AchievementKey string    `json:"achievement_key"`
	UnlockedAt     time.Time `json:"unlocked_at"`
	Celebrated     bool      `json:"celebrated"`
}

// Counter names the achievement catalog can reference.
const (
	CounterTotalSessions     = "total_sessions"
	CounterTotalObservations = "total_observations"
	CounterCurrentStreak     = "current_streak"
	CounterConnectionDepth   = "connection_depth"
	CounterBreakthroughs     = "breakthrough_count"
	CounterIdentity          = "identity_count"
	CounterPeople            = "people_count"
)

// EngagementCounters is the snapshot of per-user counters the achievement
// engine evaluates against. All values are cumulative except CurrentStreak
// and ConnectionDepth, which are current levels.
type EngagementCounters struct {
	TotalSessions     int
	TotalObservations int
	CurrentStreak     int
	ConnectionDepth   int
	BreakthroughCount int
	IdentityCount     int
	PeopleCount       int
}

// Value returns the counter value by catalog name.
func (c EngagementCounters) Value(counter string) int {
	switch counter {
	case CounterTotalSessions:
		return c.TotalSessions
	case CounterTotalObservations:
		return c.TotalObservations
	case CounterCurrentStreak:
		return c.CurrentStreak
	case CounterConnectionDepth:
		return c.ConnectionDepth
	case CounterBreakthroughs:
		return c.BreakthroughCount
	case CounterIdentity:
		return c.IdentityCount
	case CounterPeople:
		return c.PeopleCount
	}
	return 0
}

// AchievementDef is one catalog entry: a key unlocked when the named counter
// reaches the threshold.
type AchievementDef struct {
	Key         string `yaml:"key" json:"key"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Counter     string `yaml:"counter" json:"counter"`
	Threshold   int    `yaml:"threshold" json:"threshold"`
}

//go:embed catalog.yaml
var catalogYAML []byte

var achievementCatalog []AchievementDef

func init() {
	var parsed struct {
		Achievements []AchievementDef `yaml:"achievements"`
	}
	if err := yaml.Unmarshal(catalogYAML, &parsed); err != nil {
		panic(fmt.Sprintf("invalid achievement catalog: %v", err))
	}
	seen := make(map[string]bool, len(parsed.Achievements))
	for _, def := range parsed.Achievements {
		if def.Key == "" || def.Counter == "" || def.Threshold < 1 {
			panic(fmt.Sprintf("invalid achievement catalog entry: %+v", def))
		}
		if seen[def.Key] {
			panic(fmt.Sprintf("duplicate achievement key: %s", def.Key))
		}
		seen[def.Key] = true
	}
	achievementCatalog = parsed.Achievements
}

// AchievementCatalog returns the fixed catalog. Callers must not mutate it.
func AchievementCatalog() []AchievementDef {
	return achievementCatalog
}

// IsCatalogKey reports whether key is part of the fixed catalog.
func IsCatalogKey(key string) bool {
	for _, def := range achievementCatalog {
		if def.Key == key {
			return true
		}
	}
	return false
}
