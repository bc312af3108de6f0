// Package search looks up unfamiliar file and folder names on the web.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/metrics"
)

const (
	DefaultEndpoint = "https://api.tavily.com/search"
	DefaultTimeout  = 30 * time.Second

	cacheSize  = 512
	maxResults = 3
)

// NoResults is returned as the summary when the search found nothing usable.
const NoResults = "No relevant search results found."

// ErrNoAPIKey is returned by NewTavily when no key is configured.
var ErrNoAPIKey = errors.New("search: no API key configured")

// Searcher returns a short summary of what name is.
type Searcher interface {
	Lookup(ctx context.Context, name string) (string, error)
}

// Tavily queries the Tavily search API. Results are cached by query so
// repeated names across batches and tasks cost one request.
type Tavily struct {
	http     *http.Client
	endpoint string
	apiKey   string
	cache    *lru.Cache[string, string]
	logger   *zap.Logger
}

// NewTavily creates a Tavily client.
func NewTavily(apiKey string, logger *zap.Logger) (*Tavily, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Tavily{
		http:     &http.Client{Timeout: DefaultTimeout},
		endpoint: DefaultEndpoint,
		apiKey:   apiKey,
		cache:    cache,
		logger:   logger,
	}, nil
}

// SetEndpoint overrides the API URL.
func (t *Tavily) SetEndpoint(url string) {
	t.endpoint = url
}

type tavilyReq struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type tavilyResp struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Lookup searches for name and returns the answer, or the top result
// snippets when no answer is given.
func (t *Tavily) Lookup(ctx context.Context, name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if v, ok := t.cache.Get(key); ok {
		metrics.RecordSearchLookup("cached")
		return v, nil
	}

	summary, err := t.query(ctx, name)
	if err != nil {
		metrics.RecordSearchLookup("error")
		t.logger.Warn("search failed", zap.String("query", name), zap.Error(err))
		return "", err
	}
	if summary == NoResults {
		metrics.RecordSearchLookup("miss")
	} else {
		metrics.RecordSearchLookup("hit")
	}
	t.cache.Add(key, summary)
	return summary, nil
}

func (t *Tavily) query(ctx context.Context, name string) (string, error) {
	b, err := json.Marshal(tavilyReq{
		APIKey:        t.apiKey,
		Query:         fmt.Sprintf("What is this software or folder used for: %q? Provide a short technical summary or identify if it is malware.", name),
		SearchDepth:   "basic",
		IncludeAnswer: true,
		MaxResults:    maxResults,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("tavily: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out tavilyResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("tavily: decode response: %w", err)
	}
	return summarize(out), nil
}

func summarize(out tavilyResp) string {
	if a := strings.TrimSpace(out.Answer); a != "" {
		return a
	}
	var lines []string
	for i, r := range out.Results {
		if c := strings.TrimSpace(r.Content); c != "" {
			lines = append(lines, fmt.Sprintf("Result %d: %s", i+1, c))
		}
	}
	if len(lines) == 0 {
		return NoResults
	}
	return strings.Join(lines, "\n")
}
