package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"reverie/internal/config"
	"reverie/internal/models"
)

// ExtractionService distills observations from a conversation turn using an
// OpenAI-compatible chat completions endpoint. Extraction is strictly
// best-effort: any failure yields an empty result, never an error that could
// block the turn pipeline.
type ExtractionService struct {
	mu       sync.RWMutex
	provider *config.GenerationProvider
	limiter  *rate.Limiter
	client   *http.Client
	timeout  time.Duration
}

// Observation extraction system prompt
const extractionSystemPrompt = `You are an observation curation system for a self-reflection companion. Analyze this exchange and extract psychologically meaningful observations about the user.

WHAT TO EXTRACT:
1. **Patterns**: Recurring behaviors, reactions, or dynamics the user reveals
2. **Identity statements**: How the user sees or defines themselves
3. **Breakthrough moments**: New realizations the user arrives at
4. **Struggles**: Fears, shame, self-worth conflicts, control seeking
5. **Relationships**: People who matter and the dynamics around them

RULES:
- Each observation is atomic (one insight per observation)
- Quote or closely paraphrase what the user actually expressed
- Add an interpretation only when the subtext is clear
- Score relevance 1-10 by how central the observation is to who this person is
- Suggest a follow-up question only when one naturally arises
- Ignore small talk; if nothing meaningful surfaced, return an empty array

Return JSON with an array of observations.`

// extractionSchema defines structured output for observation extraction
var extractionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"observations": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": map[string]interface{}{
						"type":        "string",
						"description": "The observation itself, grounded in what the user said",
					},
					"interpretation": map[string]interface{}{
						"type":        "string",
						"description": "What this likely means beneath the surface",
					},
					"category": map[string]interface{}{
						"type":        "string",
						"enum":        models.CategoryEnum(),
						"description": "Observation category",
					},
					"relevance_score": map[string]interface{}{
						"type":        "integer",
						"description": "1-10, how central this is to the user",
					},
					"follow_up_question": map[string]interface{}{
						"type":        "string",
						"description": "A question worth asking later, or empty",
					},
					"people_mentioned": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
					"is_identity_statement": map[string]interface{}{
						"type": "boolean",
					},
					"is_breakthrough_moment": map[string]interface{}{
						"type": "boolean",
					},
				},
				"required":             []string{"text", "category", "relevance_score"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"observations"},
	"additionalProperties": false,
}

// NewExtractionService creates a new extraction service
func NewExtractionService(provider *config.GenerationProvider, timeout time.Duration) *ExtractionService {
	s := &ExtractionService{
		client:  &http.Client{Timeout: timeout + 5*time.Second},
		timeout: timeout,
	}
	s.SetProvider(provider)
	return s
}

// SetProvider swaps the generation provider at runtime. Called on config
// hot-reload; in-flight requests finish against the old provider.
func (s *ExtractionService) SetProvider(provider *config.GenerationProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = provider
	if provider != nil {
		rpm := provider.RequestsPerMinute
		if rpm <= 0 {
			rpm = 30
		}
		s.limiter = rate.NewLimiter(rate.Limit(rpm/60.0), int(rpm))
		log.Printf("🤖 [EXTRACTION] Provider set: %s (model %s, %.0f rpm)", provider.Name, provider.Model, rpm)
	}
}

func (s *ExtractionService) currentProvider() (*config.GenerationProvider, *rate.Limiter) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider, s.limiter
}

// Extract analyzes one exchange and returns validated observations. Never
// returns an error: on any failure it logs, records a metric, and returns
// an empty slice so the turn proceeds without observations.
func (s *ExtractionService) Extract(ctx context.Context, userID, userInput, agentResponse string) []models.Observation {
	provider, limiter := s.currentProvider()
	if provider == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := limiter.Wait(ctx); err != nil {
		log.Printf("⚠️ [EXTRACTION] Rate limit wait aborted for user %s: %v", userID, err)
		GetMetrics().RecordExtractionError("timeout")
		return nil
	}

	start := time.Now()
	candidates, err := s.callProvider(ctx, provider, userInput, agentResponse)
	GetMetrics().RecordExtraction(time.Since(start).Seconds())
	if err != nil {
		log.Printf("⚠️ [EXTRACTION] Extraction failed for user %s: %v", userID, err)
		return nil
	}

	observations := make([]models.Observation, 0, len(candidates))
	for _, c := range candidates {
		obs, ok := validateCandidate(userID, c)
		if !ok {
			continue
		}
		observations = append(observations, obs)
	}

	log.Printf("🔍 [EXTRACTION] User %s: %d candidates, %d accepted", userID, len(candidates), len(observations))
	return observations
}

// validateCandidate turns untrusted model output into a storable
// observation. Out-of-range scores clamp, unknown categories coerce to
// uncategorized, empty text rejects the candidate outright.
func validateCandidate(userID string, c models.CandidateObservation) (models.Observation, bool) {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		return models.Observation{}, false
	}

	score := models.DefaultRelevanceScore
	if c.RelevanceScore != nil {
		score = models.ClampRelevance(*c.RelevanceScore)
	}

	obs := models.Observation{
		UserID:           userID,
		Text:             text,
		Interpretation:   strings.TrimSpace(c.Interpretation),
		Category:         models.NormalizeCategory(c.Category),
		RelevanceScore:   score,
		FollowUpQuestion: strings.TrimSpace(c.FollowUpQuestion),
	}

	for _, name := range c.PeopleMentioned {
		name = strings.TrimSpace(name)
		if name != "" {
			obs.PeopleMentioned = append(obs.PeopleMentioned, name)
		}
	}

	if c.IsIdentityStatement != nil {
		obs.IsIdentityStatement = *c.IsIdentityStatement
	}
	if c.IsBreakthroughMoment != nil {
		obs.IsBreakthroughMoment = *c.IsBreakthroughMoment
	}

	return obs, true
}

func (s *ExtractionService) callProvider(ctx context.Context, provider *config.GenerationProvider, userInput, agentResponse string) ([]models.CandidateObservation, error) {
	userPrompt := fmt.Sprintf("USER:\n%s\n\nCOMPANION:\n%s\n\nExtract observations about the user from this exchange. Return JSON with an array of observations. If nothing meaningful surfaced, return an empty array.", userInput, agentResponse)

	requestBody := map[string]interface{}{
		"model": provider.Model,
		"messages": []map[string]interface{}{
			{"role": "system", "content": extractionSystemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"stream":      false,
		"temperature": 0.3,
		"response_format": map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   "observation_extraction",
				"strict": true,
				"schema": extractionSchema,
			},
		},
	}

	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		GetMetrics().RecordExtractionError("request")
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", provider.BaseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		GetMetrics().RecordExtractionError("request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if provider.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+provider.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			GetMetrics().RecordExtractionError("timeout")
		} else {
			GetMetrics().RecordExtractionError("request")
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		GetMetrics().RecordExtractionError("request")
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		GetMetrics().RecordExtractionError("status")
		return nil, fmt.Errorf("API error (status %d)", resp.StatusCode)
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		GetMetrics().RecordExtractionError("parse")
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		GetMetrics().RecordExtractionError("parse")
		return nil, fmt.Errorf("no choices in response")
	}

	var result struct {
		Observations []models.CandidateObservation `json:"observations"`
	}
	content := apiResponse.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		GetMetrics().RecordExtractionError("parse")
		return nil, fmt.Errorf("failed to parse extraction (response length %d bytes): %w", len(content), err)
	}

	return result.Observations, nil
}
