// Package analysis holds the pattern engine contract and its HTTP client.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrEngineDisabled is returned when no engine endpoint is configured
var ErrEngineDisabled = errors.New("analysis engine not configured")

// HRVPoint is the variability reading of one heart rate sample, keyed by day
type HRVPoint struct {
	Day string   `json:"day"`
	HRV *float64 `json:"hrv"`
}

// SleepPoint is one sleep period reduced to its duration and scores
type SleepPoint struct {
	Day             string `json:"day"`
	DurationSeconds *int   `json:"duration_seconds"`
	Efficiency      *int   `json:"efficiency"`
	Score           *int   `json:"score"`
}

// ReadinessPoint is one day's readiness score
type ReadinessPoint struct {
	Day   string `json:"day"`
	Score *int   `json:"score"`
}

// Input is the reshaped metric series handed to the engine
type Input struct {
	UserEmail string           `json:"user_email"`
	HRV       []HRVPoint       `json:"hrv"`
	Sleep     []SleepPoint     `json:"sleep"`
	Readiness []ReadinessPoint `json:"readiness"`
}

// Result is the engine output. Patterns and correlations are opaque.
type Result struct {
	Patterns     []json.RawMessage `json:"patterns"`
	Correlations []json.RawMessage `json:"correlations"`
	Summary      string            `json:"summary"`
}

// Engine runs a pattern analysis
type Engine interface {
	Analyze(ctx context.Context, input *Input) (*Result, error)
}

// HTTPEngine calls a remote engine at POST /v1/analyze
type HTTPEngine struct {
	client  *resty.Client
	enabled bool
}

// NewHTTPEngine creates an engine client. An empty baseURL yields an engine
// that always returns ErrEngineDisabled.
func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPEngine{client: client, enabled: baseURL != ""}
}

func (e *HTTPEngine) Analyze(ctx context.Context, input *Input) (*Result, error) {
	if !e.enabled {
		return nil, ErrEngineDisabled
	}

	var result Result
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(input).
		SetResult(&result).
		Post("/v1/analyze")
	if err != nil {
		return nil, fmt.Errorf("failed to call analysis engine: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("analysis engine returned status %d", resp.StatusCode())
	}

	return &result, nil
}
