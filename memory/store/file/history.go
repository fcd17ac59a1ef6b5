package file

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/becomeliminal/glados/core"
)

// ErrInvalidSpeaker is returned for speaker names that could not be parsed back.
var ErrInvalidSpeaker = errors.New(`speaker must not contain ": " or line breaks`)

const separator = ": "

var escaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

// History is a text-file conversation log, one "{speaker}: {text}" line per turn.
// Line breaks and backslashes inside text are escaped so every turn is one line.
type History struct {
	path string
	mu   sync.Mutex
}

// NewHistory opens the history at path, creating an empty file if absent.
func NewHistory(path string) (*History, error) {
	if err := ensureFile(path); err != nil {
		return nil, core.StorageError("history open", err)
	}
	return &History{path: path}, nil
}

// Append durably writes one turn.
func (h *History) Append(ctx context.Context, turn core.Turn) error {
	if strings.Contains(turn.Speaker, separator) || strings.ContainsAny(turn.Speaker, "\r\n") {
		return fmt.Errorf("append %q: %w", turn.Speaker, ErrInvalidSpeaker)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	line := turn.Speaker + separator + escaper.Replace(turn.Text)

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := appendLine(h.path, []byte(line)); err != nil {
		return core.StorageError("history append", err)
	}
	return nil
}

// LoadAll returns every persisted turn in order.
func (h *History) LoadAll(ctx context.Context) ([]core.Turn, error) {
	h.mu.Lock()
	lines, err := readLines(h.path)
	h.mu.Unlock()
	if err != nil {
		return nil, core.StorageError("history load", err)
	}

	turns := make([]core.Turn, 0, len(lines))
	for i, line := range lines {
		speaker, text, ok := strings.Cut(string(line), separator)
		if !ok {
			return nil, core.StorageError("history load", fmt.Errorf("line %d: missing speaker separator", i+1))
		}
		turns = append(turns, core.Turn{Speaker: speaker, Text: unescape(text)})
	}
	return turns, nil
}

// Clear truncates the history file.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := truncate(h.path); err != nil {
		return core.StorageError("history clear", err)
	}
	return nil
}

// Path returns the backing file.
func (h *History) Path() string {
	return h.path
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
