// Package config loads the service configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/glados/engine"
	"github.com/becomeliminal/glados/inference"
	"github.com/becomeliminal/glados/memory"
)

// Backend types.
const (
	BackendKobold    = "kobold"
	BackendAnthropic = "anthropic"
)

// Embedder types.
const (
	EmbedderMock = "mock"
	EmbedderONNX = "onnx"
)

// Default data directories, chosen by ENVIRONMENT.
const (
	DevDataDir  = "./data"
	ProdDataDir = "/app/data"
)

// KoboldConfig configures the KoboldCpp backend.
type KoboldConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// AnthropicConfig configures the Claude backend.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// BackendConfig selects the inference backend.
type BackendConfig struct {
	Type        string          `yaml:"type"`
	TimeoutSecs int             `yaml:"timeout_secs"`
	Kobold      KoboldConfig    `yaml:"kobold"`
	Anthropic   AnthropicConfig `yaml:"anthropic"`
}

// ONNXConfig points at the sentence-transformer export.
type ONNXConfig struct {
	ModelPath         string `yaml:"model_path"`
	TokenizerPath     string `yaml:"tokenizer_path"`
	SharedLibraryPath string `yaml:"shared_library_path"`
}

// EmbedderConfig selects the embedder.
type EmbedderConfig struct {
	Type       string     `yaml:"type"`
	Dimensions int        `yaml:"dimensions"`
	CacheBytes int64      `yaml:"cache_bytes"`
	ONNX       ONNXConfig `yaml:"onnx"`
}

// SearchConfig configures the web-search client. An empty URL disables search.
type SearchConfig struct {
	URL        string `yaml:"url"`
	MaxResults int    `yaml:"max_results"`
}

// ServerConfig configures the gateway.
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	// MessagesPerSecond and Burst limit each WebSocket connection.
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`

	// GenerationRetries retries unavailable backends. Requires the rollback policy.
	GenerationRetries int `yaml:"generation_retries"`
}

// Config is the root configuration.
type Config struct {
	// Environment is "DEV" for local runs; anything else is production.
	Environment string `yaml:"environment"`
	DataDir     string `yaml:"data_dir"`

	// FailurePolicy is "keep" or "rollback".
	FailurePolicy string `yaml:"failure_policy"`

	Server    ServerConfig           `yaml:"server"`
	Backend   BackendConfig          `yaml:"backend"`
	Embedder  EmbedderConfig         `yaml:"embedder"`
	Search    SearchConfig           `yaml:"search"`
	Prompt    engine.PromptConfig    `yaml:"prompt"`
	Sampling  inference.Sampling     `yaml:"sampling"`
	Retrieval memory.RetrieverConfig `yaml:"retrieval"`
}

// Default returns the configuration of the original deployment.
func Default() *Config {
	return &Config{
		FailurePolicy: "keep",
		Server: ServerConfig{
			Addr:              ":8080",
			GRPCAddr:          ":9090",
			MessagesPerSecond: 1,
			Burst:             5,
		},
		Backend: BackendConfig{
			Type:        BackendKobold,
			TimeoutSecs: 60,
			Kobold:      KoboldConfig{URL: "http://localhost:5001"},
		},
		Embedder: EmbedderConfig{
			Type:       EmbedderMock,
			Dimensions: 768,
			CacheBytes: 16 << 20,
		},
		Search:    SearchConfig{MaxResults: 3},
		Prompt:    engine.DefaultPromptConfig(),
		Sampling:  inference.DefaultSampling(),
		Retrieval: *memory.DefaultRetrieverConfig,
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file yields the defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	if cfg.DataDir == "" {
		cfg.DataDir = ProdDataDir
		if strings.EqualFold(cfg.Environment, "DEV") {
			cfg.DataDir = DevDataDir
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Environment, "ENVIRONMENT")
	set(&cfg.DataDir, "GLADOS_DATA_DIR")
	set(&cfg.Backend.Kobold.URL, "KOBOLD_URL")
	set(&cfg.Backend.Kobold.APIKey, "KOBOLD_API_KEY")
	set(&cfg.Backend.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	set(&cfg.Search.URL, "SEARCH_URL")
	set(&cfg.Server.Addr, "GLADOS_ADDR")
	set(&cfg.Server.GRPCAddr, "GLADOS_GRPC_ADDR")
}

// Validate rejects combinations the service cannot run with.
func (c *Config) Validate() error {
	policy, err := engine.ParseFailurePolicy(c.FailurePolicy)
	if err != nil {
		return err
	}
	if c.Server.GenerationRetries > 0 && policy != engine.RollbackOnFailure {
		return errors.New("generation_retries requires failure_policy: rollback (a retry would record the user turn twice)")
	}
	switch c.Backend.Type {
	case BackendKobold:
		if c.Backend.Kobold.URL == "" {
			return errors.New("backend.kobold.url is required")
		}
	case BackendAnthropic:
		if c.Backend.Anthropic.APIKey == "" {
			return errors.New("backend.anthropic.api_key (or ANTHROPIC_API_KEY) is required")
		}
	default:
		return fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}
	switch c.Embedder.Type {
	case EmbedderMock:
	case EmbedderONNX:
		if c.Embedder.ONNX.ModelPath == "" {
			return errors.New("embedder.onnx.model_path is required")
		}
	default:
		return fmt.Errorf("unknown embedder type %q", c.Embedder.Type)
	}
	if c.Retrieval.Threshold < -1 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold %.2f out of range [-1, 1]", c.Retrieval.Threshold)
	}
	return nil
}

// Engine converts the configuration for engine.FileOpener.
func (c *Config) Engine() (engine.Config, error) {
	policy, err := engine.ParseFailurePolicy(c.FailurePolicy)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Prompt:        c.Prompt,
		Sampling:      c.Sampling,
		Retriever:     c.Retrieval,
		FailurePolicy: policy,
		Timeout:       time.Duration(c.Backend.TimeoutSecs) * time.Second,
	}, nil
}
