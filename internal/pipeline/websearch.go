package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	braveEndpoint = "https://api.search.brave.com/res/v1/web/search"
	searchTimeout = 8 * time.Second
	searchMaxHits = 5
)

// WebSearch augments the research stage with current web results. Lookups
// are best-effort: a failed or unconfigured search degrades to running
// research on the topic alone.
type WebSearch struct {
	endpoint string
	client   *http.Client
}

// NewWebSearch creates a Brave Search client.
func NewWebSearch() *WebSearch {
	return &WebSearch{
		endpoint: braveEndpoint,
		client:   &http.Client{Timeout: searchTimeout},
	}
}

// WithEndpoint overrides the API endpoint for tests.
func (w *WebSearch) WithEndpoint(endpoint string) *WebSearch {
	w.endpoint = endpoint
	return w
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search returns a bullet list of current results for the topic, one line
// per hit.
func (w *WebSearch) Search(ctx context.Context, topic, apiKey string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", fmt.Errorf("pipeline: search key not configured")
	}

	q := url.Values{}
	q.Set("q", topic)
	q.Set("count", fmt.Sprint(searchMaxHits))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("pipeline: build search request: %w", err)
	}
	req.Header.Set("X-Subscription-Token", apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pipeline: web search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pipeline: web search returned %d", resp.StatusCode)
	}

	var body braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("pipeline: decode search response: %w", err)
	}

	var sb strings.Builder
	for _, r := range body.Web.Results {
		desc := r.Description
		if desc == "" {
			desc = r.URL
		}
		fmt.Fprintf(&sb, "- %s: %s\n", r.Title, desc)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
