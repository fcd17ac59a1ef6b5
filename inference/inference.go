// Package inference defines the contract with the text-generation service.
//
// Backends return the raw text of the first candidate. They report transport
// failures, timeouts and non-2xx statuses as core.ErrGenerationUnavailable and
// unexpected response shapes as core.ErrMalformedResponse.
package inference

import "context"

// Backend sends one completion request.
// Implementations: kobold.Client (KoboldCpp protocol), anthropic.Backend (Claude).
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is one completion request.
type Request struct {
	// Prompt is the full rendered prompt ending in the open assistant slot.
	Prompt string

	// Memory is out-of-band context placed ahead of the prompt by the service.
	Memory string

	Sampling Sampling
}

// Sampling is the fixed generation configuration sent with every request.
type Sampling struct {
	MaxLength     int      `yaml:"max_length"`
	Temperature   float64  `yaml:"temperature"`
	StopSequences []string `yaml:"stop_sequences"`

	// DRY repetition control: sequences longer than DryAllowedLength that
	// repeat earlier text are penalized by DryMultiplier * DryBase^(excess).
	DryMultiplier    float64 `yaml:"dry_multiplier"`
	DryBase          float64 `yaml:"dry_base"`
	DryAllowedLength int     `yaml:"dry_allowed_length"`
}

// DefaultSampling matches the original deployment.
// "\n" doubles as the turn delimiter, so the model stops at the end of its turn.
func DefaultSampling() Sampling {
	return Sampling{
		MaxLength:        150,
		Temperature:      0.6,
		StopSequences:    []string{"\n", "</s>[INST]", "[/INST]"},
		DryMultiplier:    0.8,
		DryBase:          1.75,
		DryAllowedLength: 2,
	}
}
