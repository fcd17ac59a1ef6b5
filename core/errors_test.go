package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/becomeliminal/glados/core"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := core.GenerationUnavailable("kobold generate", context.DeadlineExceeded)
	wrapped := fmt.Errorf("generate: %w", err)

	if !errors.Is(wrapped, core.ErrGenerationUnavailable) {
		t.Errorf("expected wrapped error to match ErrGenerationUnavailable")
	}
	if errors.Is(wrapped, core.ErrStorage) {
		t.Errorf("did not expect match on ErrStorage")
	}
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Errorf("expected cause to stay reachable")
	}
	if got := core.KindOf(wrapped); got != core.KindGenerationUnavailable {
		t.Errorf("KindOf = %v, want %v", got, core.KindGenerationUnavailable)
	}
}

func TestKindOfForeignError(t *testing.T) {
	if got := core.KindOf(errors.New("boom")); got != core.KindUnknown {
		t.Errorf("KindOf = %v, want unknown", got)
	}
}

func TestTurnString(t *testing.T) {
	turn := core.Turn{Speaker: "alice", Text: "hi"}
	if got := turn.String(); got != "alice: hi" {
		t.Errorf("String() = %q", got)
	}
}
