// Package sentiment classifies symbols by recent news headlines.
package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Riyadh644/stockscout/internal/logger"
)

// Label is a sentiment classification for a symbol.
type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
	Neutral  Label = "neutral"
)

// Classifier labels a symbol's current news sentiment.
type Classifier interface {
	Classify(ctx context.Context, symbol string) Label
}

// NewsClient classifies sentiment from a news API's headlines. Any failure
// degrades to Neutral: sentiment is an enrichment, never a cycle blocker.
type NewsClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewNewsClient creates a news-API sentiment classifier.
func NewNewsClient(baseURL, apiKey string, timeout time.Duration) *NewsClient {
	return &NewsClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var (
	negativeMarkers = []string{"bankruptcy", "dilution"}
	positiveMarkers = []string{"record revenue", "strong earnings"}
)

// Classify scans the symbol's recent headlines for known markers.
func (c *NewsClient) Classify(ctx context.Context, symbol string) Label {
	q := url.Values{}
	q.Set("symbols", symbol)
	q.Set("filter_entities", "true")
	q.Set("language", "en")
	q.Set("api_token", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/news/all?"+q.Encode(), nil)
	if err != nil {
		return Neutral
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug("Sentiment fetch failed for %s: %v", symbol, err)
		return Neutral
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Debug("Sentiment fetch for %s returned status %d", symbol, resp.StatusCode)
		return Neutral
	}

	var out struct {
		Data []struct {
			Title string `json:"title"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Neutral
	}

	for _, article := range out.Data {
		title := strings.ToLower(article.Title)
		for _, marker := range negativeMarkers {
			if strings.Contains(title, marker) {
				return Negative
			}
		}
		for _, marker := range positiveMarkers {
			if strings.Contains(title, marker) {
				return Positive
			}
		}
	}
	return Neutral
}
