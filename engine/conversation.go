package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/becomeliminal/glados/core"
	"github.com/becomeliminal/glados/inference"
	"github.com/becomeliminal/glados/memory"
)

// Config holds the per-conversation settings shared by every session.
type Config struct {
	Prompt        PromptConfig
	Sampling      inference.Sampling
	Retriever     memory.RetrieverConfig
	FailurePolicy FailurePolicy

	// Timeout bounds each generation call. Zero selects DefaultTimeout.
	Timeout time.Duration
}

// DefaultConfig returns the settings of the original deployment.
func DefaultConfig() Config {
	return Config{
		Prompt:    DefaultPromptConfig(),
		Sampling:  inference.DefaultSampling(),
		Retriever: *memory.DefaultRetrieverConfig,
		Timeout:   DefaultTimeout,
	}
}

// Conversation is one channel's memory: history, documents, index and the
// engine on top of them. Generate, Ingest and Clear are serialized so that a
// reload can never interleave with a query and turns are recorded in order.
type Conversation struct {
	id string

	// sem is a mutex whose acquisition honours context cancellation.
	sem *semaphore.Weighted

	engine   *Engine
	ingestor *memory.Ingestor
	docs     memory.DocumentLog
	index    memory.VectorIndex
}

// NewConversation wires a conversation from its stores.
func NewConversation(id string, history memory.HistoryStore, docs memory.DocumentLog, index memory.VectorIndex, backend inference.Backend, cfg Config) *Conversation {
	defaults := DefaultConfig()
	retrieverCfg := cfg.Retriever
	if retrieverCfg == (memory.RetrieverConfig{}) {
		retrieverCfg = defaults.Retriever
	}
	if cfg.Prompt.AssistantName == "" {
		cfg.Prompt.AssistantName = defaults.Prompt.AssistantName
	}
	if cfg.Prompt.Persona == "" {
		cfg.Prompt.Persona = defaults.Prompt.Persona
	}
	if cfg.Sampling.MaxLength == 0 {
		cfg.Sampling = defaults.Sampling
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Conversation{
		id:  id,
		sem: semaphore.NewWeighted(1),
		engine: New(history, memory.NewRetriever(index, &retrieverCfg), backend,
			WithPrompt(cfg.Prompt),
			WithSampling(cfg.Sampling),
			WithTimeout(timeout),
			WithFailurePolicy(cfg.FailurePolicy),
		),
		ingestor: memory.NewIngestor(docs, index),
		docs:     docs,
		index:    index,
	}
}

// ID returns the conversation identifier.
func (c *Conversation) ID() string {
	return c.id
}

// Open seeds the live turn sequence from history and rebuilds the index.
func (c *Conversation) Open(ctx context.Context) error {
	if err := c.lock(ctx); err != nil {
		return err
	}
	defer c.unlock()

	if err := c.engine.Load(ctx); err != nil {
		return err
	}
	n, err := c.ingestor.Reindex(ctx)
	if err != nil {
		return err
	}
	log.Printf("[SESSION] Opened %s: turns=%d documents=%d", c.id, len(c.engine.turns), n)
	return nil
}

// Generate answers text from speaker.
func (c *Conversation) Generate(ctx context.Context, speaker, text string) (string, error) {
	if err := c.lock(ctx); err != nil {
		return "", err
	}
	defer c.unlock()

	return c.engine.Generate(ctx, core.Turn{Speaker: speaker, Text: text})
}

// Ingest adds search results to this conversation's documents.
func (c *Conversation) Ingest(ctx context.Context, results []memory.RawResult) ([]string, error) {
	if err := c.lock(ctx); err != nil {
		return nil, err
	}
	defer c.unlock()

	return c.ingestor.Ingest(ctx, results)
}

// Clear empties the documents and the index, then wipes history.
// The steps are not atomic: if resetting history fails, the documents are
// already gone and the error is returned.
func (c *Conversation) Clear(ctx context.Context) error {
	if err := c.lock(ctx); err != nil {
		return err
	}
	defer c.unlock()

	// Documents go first: a failure there leaves the conversation untouched.
	if err := c.docs.Clear(ctx); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	if err := c.index.Reload(ctx, nil); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	if err := c.engine.Reset(ctx); err != nil {
		return err
	}
	log.Printf("[SESSION] Cleared %s", c.id)
	return nil
}

// Turns returns a copy of the live turn sequence.
func (c *Conversation) Turns(ctx context.Context) ([]core.Turn, error) {
	if err := c.lock(ctx); err != nil {
		return nil, err
	}
	defer c.unlock()

	return c.engine.Turns(), nil
}

// State returns the state of the most recent generation request.
func (c *Conversation) State(ctx context.Context) (State, error) {
	if err := c.lock(ctx); err != nil {
		return StateIdle, err
	}
	defer c.unlock()

	return c.engine.State(), nil
}

func (c *Conversation) lock(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("conversation %s busy: %w", c.id, err)
	}
	return nil
}

func (c *Conversation) unlock() {
	c.sem.Release(1)
}
