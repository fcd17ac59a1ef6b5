package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/glados/core"
	"github.com/becomeliminal/glados/inference"
	"github.com/becomeliminal/glados/memory"
)

// ContextRetriever finds context for a query. Implemented by memory.Retriever.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) (string, bool, error)
}

// FailurePolicy decides what happens to the user's turn when generation fails.
type FailurePolicy int

const (
	// KeepOnFailure persists the user turn before the call and keeps it when the
	// call fails. The turn stays in every later prompt without an answer.
	KeepOnFailure FailurePolicy = iota

	// RollbackOnFailure holds the user turn in memory until the call succeeds,
	// then persists both turns. On failure nothing is recorded.
	RollbackOnFailure
)

// ParseFailurePolicy accepts "keep" or "rollback". Empty means keep.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(s) {
	case "", "keep":
		return KeepOnFailure, nil
	case "rollback":
		return RollbackOnFailure, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q", s)
	}
}

func (p FailurePolicy) String() string {
	if p == RollbackOnFailure {
		return "rollback"
	}
	return "keep"
}

// State is the lifecycle of the most recent generation request.
type State int

const (
	StateIdle State = iota
	StateSending
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Engine produces replies: it records turns, retrieves context, builds the
// prompt, calls the backend and post-processes the output.
//
// Engine is not safe for concurrent use; Conversation serializes access.
type Engine struct {
	history   memory.HistoryStore
	retriever ContextRetriever
	backend   inference.Backend

	prompt   PromptConfig
	sampling inference.Sampling
	timeout  time.Duration
	policy   FailurePolicy

	turns []core.Turn
	state State
}

// Option configures the engine.
type Option func(*Engine)

// WithPrompt sets the prompt configuration.
func WithPrompt(p PromptConfig) Option {
	return func(e *Engine) {
		e.prompt = p
	}
}

// WithSampling sets the sampling configuration sent with every request.
func WithSampling(s inference.Sampling) Option {
	return func(e *Engine) {
		e.sampling = s
	}
}

// WithTimeout bounds each backend call. Zero disables the engine's own deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithFailurePolicy sets what happens to the user turn on failure.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// DefaultTimeout bounds a generation call when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// New creates an engine. Call Load to seed it from history.
func New(history memory.HistoryStore, retriever ContextRetriever, backend inference.Backend, opts ...Option) *Engine {
	e := &Engine{
		history:   history,
		retriever: retriever,
		backend:   backend,
		prompt:    DefaultPromptConfig(),
		sampling:  inference.DefaultSampling(),
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load replaces the live turn sequence with the persisted history.
func (e *Engine) Load(ctx context.Context) error {
	turns, err := e.history.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	e.turns = turns
	log.Printf("[ENGINE] Loaded %d turns from history", len(turns))
	return nil
}

// Turns returns a copy of the live turn sequence.
func (e *Engine) Turns() []core.Turn {
	out := make([]core.Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

// State returns the state of the most recent request.
func (e *Engine) State() State {
	return e.state
}

// Reset clears persisted and live history.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.history.Clear(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	e.turns = nil
	e.state = StateIdle
	return nil
}

// Generate records user, asks the backend for a reply and records the reply.
//
// Backend failures surface as core.ErrGenerationUnavailable or
// core.ErrMalformedResponse. Under KeepOnFailure the user turn stays recorded
// after a failure; under RollbackOnFailure it is dropped. The assistant turn is
// committed in full or not at all.
func (e *Engine) Generate(ctx context.Context, user core.Turn) (string, error) {
	requestID := uuid.New().String()[:8]

	if e.policy == KeepOnFailure {
		if err := e.history.Append(ctx, user); err != nil {
			return "", fmt.Errorf("record user turn: %w", err)
		}
	}
	e.turns = append(e.turns, user)

	reply, err := e.complete(ctx, requestID, user.Text)
	if err != nil {
		e.state = StateFailed
		if e.policy == RollbackOnFailure {
			e.turns = e.turns[:len(e.turns)-1]
		}
		log.Printf("[ENGINE] %s failed (policy=%s): %v", requestID, e.policy, err)
		return "", err
	}

	// The reply is in hand; finish recording even if the caller gives up now.
	commitCtx := context.WithoutCancel(ctx)
	if e.policy == RollbackOnFailure {
		if err := e.history.Append(commitCtx, user); err != nil {
			e.turns = e.turns[:len(e.turns)-1]
			e.state = StateFailed
			return "", fmt.Errorf("record user turn: %w", err)
		}
	}
	assistant := core.Turn{Speaker: e.prompt.AssistantName, Text: reply}
	if err := e.history.Append(commitCtx, assistant); err != nil {
		e.state = StateFailed
		return "", fmt.Errorf("record assistant turn: %w", err)
	}
	e.turns = append(e.turns, assistant)
	e.state = StateSucceeded

	log.Printf("[ENGINE] %s succeeded: %q", requestID, truncateLog(reply, 60))
	return reply, nil
}

// complete runs retrieval, prompt assembly and the backend call.
func (e *Engine) complete(ctx context.Context, requestID string, query string) (string, error) {
	note := ""
	if e.retriever != nil {
		text, ok, err := e.retriever.Retrieve(ctx, query)
		if err != nil {
			log.Printf("[ENGINE] %s retrieval failed, continuing without context: %v", requestID, err)
		} else if ok {
			note = text
		}
	}

	prompt := BuildPrompt(e.prompt, e.turns, note)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.state = StateSending
	log.Printf("[ENGINE] %s sending: turns=%d context=%t prompt_chars=%d", requestID, len(e.turns), note != "", len(prompt.Text))

	raw, err := e.backend.Generate(ctx, inference.Request{
		Prompt:   prompt.Text,
		Memory:   prompt.Memory,
		Sampling: e.sampling,
	})
	if err != nil {
		if core.KindOf(err) == core.KindUnknown {
			err = core.GenerationUnavailable("generate", err)
		}
		return "", err
	}

	return Trim(strings.TrimSpace(raw)), nil
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
