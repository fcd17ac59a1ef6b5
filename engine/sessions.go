package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/becomeliminal/glados/inference"
	"github.com/becomeliminal/glados/memory"
	"github.com/becomeliminal/glados/memory/store/chromem"
	"github.com/becomeliminal/glados/memory/store/file"
)

// File names inside a conversation's directory.
const (
	HistoryFile   = "conversation_history.txt"
	DocumentsFile = "database.jsonl"
)

// Opener creates and opens the conversation for id.
type Opener func(ctx context.Context, id string) (*Conversation, error)

// Sessions hands out one Conversation per channel, opening each on first use.
// Opening one channel never blocks another; callers asking for a channel that is
// still opening wait for it or for their context.
type Sessions struct {
	open  Opener
	mu    sync.RWMutex
	convs map[string]*session
}

// session is a registry slot. ready is closed once conv or err is set.
type session struct {
	ready chan struct{}
	conv  *Conversation
	err   error
}

// NewSessions creates a registry that opens conversations with open.
func NewSessions(open Opener) *Sessions {
	return &Sessions{
		open:  open,
		convs: make(map[string]*session),
	}
}

// Get returns the conversation for id, opening it if needed.
func (s *Sessions) Get(ctx context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	sess, exists := s.convs[id]
	s.mu.RUnlock()

	if !exists {
		s.mu.Lock()
		// Double-check after acquiring write lock
		sess, exists = s.convs[id]
		if !exists {
			sess = &session{ready: make(chan struct{})}
			s.convs[id] = sess
		}
		s.mu.Unlock()

		if !exists {
			s.load(ctx, id, sess)
		}
	}

	select {
	case <-sess.ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("open conversation %s: %w", id, ctx.Err())
	}
	if sess.err != nil {
		return nil, sess.err
	}
	return sess.conv, nil
}

// load opens the conversation outside the registry lock. A failed open is
// forgotten so the next Get tries again.
func (s *Sessions) load(ctx context.Context, id string, sess *session) {
	defer close(sess.ready)

	conv, err := s.open(ctx, id)
	if err != nil {
		sess.err = fmt.Errorf("open conversation %s: %w", id, err)
		s.mu.Lock()
		delete(s.convs, id)
		s.mu.Unlock()
		return
	}
	sess.conv = conv
}

// Len returns the number of open conversations.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sess := range s.convs {
		select {
		case <-sess.ready:
			if sess.err == nil {
				n++
			}
		default:
		}
	}
	return n
}

// FileOpener opens conversations stored under dataDir/<id>, indexing documents
// with chromem-go and the given embedder.
func FileOpener(dataDir string, embedder memory.Embedder, backend inference.Backend, cfg Config) Opener {
	return func(ctx context.Context, id string) (*Conversation, error) {
		dir := filepath.Join(dataDir, DirName(id))

		history, err := file.NewHistory(filepath.Join(dir, HistoryFile))
		if err != nil {
			return nil, err
		}
		docs, err := file.NewDocuments(filepath.Join(dir, DocumentsFile))
		if err != nil {
			return nil, err
		}
		index, err := chromem.New(embedder)
		if err != nil {
			return nil, err
		}

		conv := NewConversation(id, history, docs, index, backend, cfg)
		if err := conv.Open(ctx); err != nil {
			return nil, err
		}
		return conv, nil
	}
}

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// DirName maps a conversation id to a directory name. Ids that are not plain
// identifiers are hashed.
func DirName(id string) string {
	if safeID.MatchString(id) {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return "c-" + hex.EncodeToString(sum[:8])
}
