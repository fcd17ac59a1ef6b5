// Package search is a client for the web-search service that feeds ingestion.
package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/becomeliminal/glados/core"
	"github.com/becomeliminal/glados/memory"
)

// DefaultMaxResults caps how many results a search returns.
const DefaultMaxResults = 3

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Raw converts the result for the ingestion pipeline.
func (r Result) Raw() memory.RawResult {
	return memory.RawResult{Title: r.Title, URL: r.URL, Body: r.Content}
}

// Config configures the client.
type Config struct {
	// URL of the search endpoint.
	URL string

	// MaxResults caps the results returned. Default: 3
	MaxResults int

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client queries the search service.
type Client struct {
	url        string
	maxResults int
	client     *http.Client
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		url:        cfg.URL,
		maxResults: cfg.MaxResults,
		client:     hc,
	}
}

type searchRequest struct {
	Input string `json:"input"`
}

type searchResponse struct {
	Results *[]Result `json:"results"`
}

// Search returns up to MaxResults results for query, best first.
// Transport failures and non-2xx statuses are core.ErrGenerationUnavailable;
// an unexpected body is core.ErrMalformedResponse.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(searchRequest{Input: query})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.GenerationUnavailable("search", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.GenerationUnavailable("search read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, core.GenerationUnavailable("search", fmt.Errorf("unexpected status %s", resp.Status))
	}

	var out searchResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, core.MalformedResponse("search decode response", err)
	}
	if out.Results == nil {
		return nil, core.MalformedResponse("search decode response", errors.New("results missing"))
	}

	results := *out.Results
	if len(results) > c.maxResults {
		results = results[:c.maxResults]
	}
	log.Printf("[SEARCH] %q returned %d results", query, len(results))
	return results, nil
}
