// Package kobold is a client for the KoboldCpp text generation API.
package kobold

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/becomeliminal/glados/core"
	"github.com/becomeliminal/glados/inference"
)

// GeneratePath is the generation endpoint relative to the base URL.
const GeneratePath = "/api/v1/generate"

// Config configures the client.
type Config struct {
	// BaseURL of the KoboldCpp server, e.g. http://localhost:5001.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// HTTPClient overrides the default client. Timeouts come from the request context.
	HTTPClient *http.Client
}

// Client implements inference.Backend over HTTP.
type Client struct {
	url    string
	apiKey string
	client *http.Client
}

// New creates a client.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		url:    strings.TrimSuffix(cfg.BaseURL, "/") + GeneratePath,
		apiKey: cfg.APIKey,
		client: hc,
	}
}

// GenerateRequest is the JSON body of a generation call.
type GenerateRequest struct {
	MaxLength        int      `json:"max_length"`
	Temperature      float64  `json:"temperature"`
	StopSequence     []string `json:"stop_sequence"`
	Memory           string   `json:"memory,omitempty"`
	Prompt           string   `json:"prompt"`
	DryMultiplier    float64  `json:"dry_multiplier"`
	DryBase          float64  `json:"dry_base"`
	DryAllowedLength int      `json:"dry_allowed_length"`
}

// GenerateResponse is the JSON body returned by a generation call.
type GenerateResponse struct {
	Results []struct {
		Text *string `json:"text"`
	} `json:"results"`
}

// NewGenerateRequest bundles a request into the wire payload.
func NewGenerateRequest(req inference.Request) GenerateRequest {
	return GenerateRequest{
		MaxLength:        req.Sampling.MaxLength,
		Temperature:      req.Sampling.Temperature,
		StopSequence:     req.Sampling.StopSequences,
		Memory:           req.Memory,
		Prompt:           req.Prompt,
		DryMultiplier:    req.Sampling.DryMultiplier,
		DryBase:          req.Sampling.DryBase,
		DryAllowedLength: req.Sampling.DryAllowedLength,
	}
}

// Generate posts the request and returns results[0].text.
func (c *Client) Generate(ctx context.Context, req inference.Request) (string, error) {
	body, err := json.Marshal(NewGenerateRequest(req))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", core.GenerationUnavailable("kobold generate", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", core.GenerationUnavailable("kobold read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[KOBOLD] Generation failed: status=%d body=%q", resp.StatusCode, truncate(string(payload), 200))
		return "", core.GenerationUnavailable("kobold generate", fmt.Errorf("unexpected status %s", resp.Status))
	}

	var out GenerateResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", core.MalformedResponse("kobold decode response", err)
	}
	if len(out.Results) == 0 {
		return "", core.MalformedResponse("kobold decode response", errors.New("no results"))
	}
	if out.Results[0].Text == nil {
		return "", core.MalformedResponse("kobold decode response", errors.New("results[0].text missing"))
	}
	return *out.Results[0].Text, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
