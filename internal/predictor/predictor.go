// Package predictor scores instrument features against the external model
// service.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Features is the input vector the model service expects.
type Features struct {
	Close     float64 `json:"close"`
	Volume    float64 `json:"vol"`
	AvgVolume float64 `json:"avg_vol"`
	ChangePct float64 `json:"change"`
	MA10      float64 `json:"ma10"`
	MA30      float64 `json:"ma30"`
}

// Scorer produces a buy-signal score in [0,100] for a feature vector.
type Scorer interface {
	Score(ctx context.Context, f Features) (float64, error)
}

// HTTPScorer calls a model service over HTTP.
type HTTPScorer struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPScorer creates a scorer client.
func NewHTTPScorer(baseURL string, timeout time.Duration) *HTTPScorer {
	return &HTTPScorer{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Score posts the features and returns the model's score, clamped to
// [0,100] so a misbehaving model never produces an unclassifiable
// instrument.
func (s *HTTPScorer) Score(ctx context.Context, f Features) (float64, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return 0, fmt.Errorf("failed to encode features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/score", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to score: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("model service returned status %d", resp.StatusCode)
	}

	var out struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode score: %w", err)
	}

	score := out.Score
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}
	return score, nil
}
