// Package anthropic runs generation on Claude through the Messages API.
//
// The rendered prompt is sent as a single user message and the retrieved note as
// the system prompt. DRY repetition settings have no Claude equivalent and are
// ignored, as are whitespace-only stop sequences, which the API rejects.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/becomeliminal/glados/core"
	"github.com/becomeliminal/glados/inference"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// Backend implements inference.Backend with the Anthropic SDK.
type Backend struct {
	client *anthropic.Client
	model  string
}

// New creates a backend. An empty model selects DefaultModel.
func New(client *anthropic.Client, model string) *Backend {
	if model == "" {
		model = DefaultModel
	}
	return &Backend{client: client, model: model}
}

// NewParams builds the Messages API request for req.
func (b *Backend) NewParams(req inference.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: int64(req.Sampling.MaxLength),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Sampling.Temperature),
	}
	if req.Memory != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Memory}}
	}
	for _, stop := range req.Sampling.StopSequences {
		if strings.TrimSpace(stop) != "" {
			params.StopSequences = append(params.StopSequences, stop)
		}
	}
	return params
}

// Generate sends the request and returns the concatenated text blocks.
func (b *Backend) Generate(ctx context.Context, req inference.Request) (string, error) {
	resp, err := b.client.Messages.New(ctx, b.NewParams(req))
	if err != nil {
		return "", core.GenerationUnavailable("claude generate", err)
	}

	var text strings.Builder
	found := false
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
			found = true
		}
	}
	if !found {
		return "", core.MalformedResponse("claude generate", errors.New("no text content in response"))
	}

	// Claude does not stop on "\n"; keep only the first line like the other backend.
	out, _, _ := strings.Cut(text.String(), "\n")
	return out, nil
}
