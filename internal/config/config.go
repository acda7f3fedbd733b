package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port         string
	DatabasePath string
	RedisURL     string

	// Generation service configuration
	GenerationConfigPath  string
	WatchGenerationConfig bool
	ExtractionTimeout     time.Duration

	// Streak day boundaries are computed in this IANA timezone.
	// The product uses one authoritative policy per deployment.
	StreakTimezone string

	Environment string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "3001"),
		DatabasePath: getEnv("DATABASE_PATH", "./data/reverie.db"),
		RedisURL:     getEnv("REDIS_URL", ""),

		GenerationConfigPath:  getEnv("GENERATION_CONFIG", "generation.json"),
		WatchGenerationConfig: getBoolEnv("WATCH_GENERATION_CONFIG", true),
		ExtractionTimeout:     time.Duration(getIntEnv("EXTRACTION_TIMEOUT_SECONDS", 30)) * time.Second,

		StreakTimezone: getEnv("STREAK_TIMEZONE", "UTC"),

		Environment: getEnv("ENVIRONMENT", "development"),
	}
}

// Location resolves the configured streak timezone, falling back to UTC on
// unknown names so day-boundary math never depends on client clocks.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.StreakTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GenerationProvider describes the external text-generation endpoint used for
// observation extraction. This core has no opinion on prompts or replies; it
// only needs an OpenAI-compatible chat completions URL.
type GenerationProvider struct {
	Name              string  `json:"name"`
	BaseURL           string  `json:"base_url"`
	APIKey            string  `json:"api_key"`
	Model             string  `json:"model"`
	RequestsPerMinute float64 `json:"requests_per_minute"`
}

// LoadGeneration loads the generation provider from a JSON file.
func LoadGeneration(filePath string) (*GenerationProvider, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read generation config: %w", err)
	}

	var provider GenerationProvider
	if err := json.Unmarshal(data, &provider); err != nil {
		return nil, fmt.Errorf("failed to parse generation config: %w", err)
	}

	if provider.BaseURL == "" || provider.Model == "" {
		return nil, fmt.Errorf("generation config requires base_url and model")
	}
	if provider.RequestsPerMinute <= 0 {
		provider.RequestsPerMinute = 30
	}

	return &provider, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
