// Package server exposes conversations over WebSocket.
//
// Each frame names a channel; every channel is its own conversation with its
// own history and documents. Frames on one connection are handled in order.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/becomeliminal/glados/core"
	"github.com/becomeliminal/glados/engine"
	"github.com/becomeliminal/glados/memory"
	"github.com/becomeliminal/glados/search"
)

// Searcher finds web results for the search command.
// Implementations: search.Client.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// Config configures the server.
type Config struct {
	// MessagesPerSecond and Burst limit each connection. Zero disables the limit.
	MessagesPerSecond float64
	Burst             int

	// GenerationRetries retries a reply when the backend is unavailable.
	// Only safe with engine.RollbackOnFailure.
	GenerationRetries int

	// RetryBase is the first backoff interval. Default: 500ms
	RetryBase time.Duration

	// MaxMessageBytes caps inbound frames. Default: 64 KiB
	MaxMessageBytes int64
}

// Server is the WebSocket gateway.
type Server struct {
	sessions *engine.Sessions
	searcher Searcher
	health   *Health
	cfg      Config
	upgrader websocket.Upgrader
}

// New creates a server. searcher may be nil to disable search.
func New(sessions *engine.Sessions, searcher Searcher, health *Health, cfg Config) *Server {
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 64 << 10
	}
	if health == nil {
		health = NewHealth()
	}
	return &Server{
		sessions: sessions,
		searcher: searcher,
		health:   health,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes: /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.health.SetServing(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body, serving, err := s.health.check(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if !serving {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_, _ = w.Write(body)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] Upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	connID := uuid.New().String()[:8]
	log.Printf("[SERVER] Connection %s opened from %s", connID, r.RemoteAddr)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if s.cfg.MessagesPerSecond > 0 {
		burst := s.cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), burst)
	}

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[SERVER] Connection %s read error: %v", connID, err)
			}
			log.Printf("[SERVER] Connection %s closed", connID)
			return
		}

		requestID := uuid.New().String()
		var out Outbound
		var in Inbound
		switch {
		case json.Unmarshal(data, &in) != nil:
			out = Outbound{Type: TypeError, Text: "Malformed message."}
		case !limiter.Allow():
			out = Outbound{Type: TypeError, Channel: in.Channel, Text: "Too many messages. Slow down."}
		default:
			out = s.dispatch(ctx, requestID, in)
		}
		out.RequestID = requestID

		payload, err := json.Marshal(out)
		if err != nil {
			log.Printf("[SERVER] Marshal reply failed: %v", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("[SERVER] Connection %s write error: %v", connID, err)
			return
		}
	}
}

// dispatch handles one frame. Failures become error frames; the connection stays open.
func (s *Server) dispatch(ctx context.Context, requestID string, in Inbound) Outbound {
	if strings.TrimSpace(in.Channel) == "" {
		return Outbound{Type: TypeError, Text: "A channel is required."}
	}

	conv, err := s.sessions.Get(ctx, in.Channel)
	if err != nil {
		log.Printf("[SERVER] %s open channel %s: %v", requestID, in.Channel, err)
		return Outbound{Type: TypeError, Channel: in.Channel, Text: userMessage(err)}
	}

	switch in.Type {
	case TypeMessage:
		return s.reply(ctx, requestID, conv, in)
	case TypeSearch:
		return s.search(ctx, requestID, conv, in)
	case TypeClear:
		if err := conv.Clear(ctx); err != nil {
			log.Printf("[SERVER] %s clear %s: %v", requestID, in.Channel, err)
			return Outbound{Type: TypeError, Channel: in.Channel, Text: userMessage(err)}
		}
		return Outbound{Type: TypeCleared, Channel: in.Channel, Text: "Memory cleared."}
	default:
		return Outbound{Type: TypeError, Channel: in.Channel, Text: fmt.Sprintf("Unknown message type %q.", in.Type)}
	}
}

func (s *Server) reply(ctx context.Context, requestID string, conv *engine.Conversation, in Inbound) Outbound {
	if strings.TrimSpace(in.Text) == "" {
		return Outbound{Type: TypeError, Channel: in.Channel, Text: "Say something first."}
	}
	user := speakerName(in.User)

	var text string
	generate := func(ctx context.Context) error {
		var err error
		text, err = conv.Generate(ctx, user, in.Text)
		if errors.Is(err, core.ErrGenerationUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	}

	var err error
	if s.cfg.GenerationRetries > 0 {
		backoff := retry.WithMaxRetries(uint64(s.cfg.GenerationRetries), retry.NewExponential(s.cfg.RetryBase))
		err = retry.Do(ctx, backoff, generate)
	} else {
		err = generate(ctx)
	}
	if err != nil {
		log.Printf("[SERVER] %s reply in %s failed: %v", requestID, in.Channel, err)
		return Outbound{Type: TypeError, Channel: in.Channel, Text: userMessage(err)}
	}
	return Outbound{Type: TypeReply, Channel: in.Channel, Text: text}
}

var speakerCleaner = strings.NewReplacer(": ", " ", "\r\n", " ", "\n", " ", "\r", " ")

// speakerName makes a display name safe to record as a speaker label.
func speakerName(name string) string {
	name = strings.TrimSpace(speakerCleaner.Replace(name))
	name = strings.TrimSuffix(name, ":")
	if name == "" {
		return "user"
	}
	return name
}

// search ingests the top web result for the query.
func (s *Server) search(ctx context.Context, requestID string, conv *engine.Conversation, in Inbound) Outbound {
	if s.searcher == nil {
		return Outbound{Type: TypeError, Channel: in.Channel, Text: "Search is not configured."}
	}
	if strings.TrimSpace(in.Text) == "" {
		return Outbound{Type: TypeError, Channel: in.Channel, Text: "Nothing to search for."}
	}

	results, err := s.searcher.Search(ctx, in.Text)
	if err != nil {
		log.Printf("[SERVER] %s search %q: %v", requestID, in.Text, err)
		return Outbound{Type: TypeError, Channel: in.Channel, Text: "The search service failed. Try again later."}
	}
	if len(results) == 0 {
		return Outbound{Type: TypeIngested, Channel: in.Channel, Text: "No results."}
	}

	top := results[0]
	ids, err := conv.Ingest(ctx, []memory.RawResult{top.Raw()})
	if err != nil {
		log.Printf("[SERVER] %s ingest: %v", requestID, err)
		return Outbound{Type: TypeError, Channel: in.Channel, Text: userMessage(err)}
	}

	text := fmt.Sprintf("Learned about %q.", top.Title)
	if len(ids) == 0 {
		text = fmt.Sprintf("Already knew about %q.", top.Title)
	}
	return Outbound{Type: TypeIngested, Channel: in.Channel, Text: text, IDs: ids}
}

// userMessage maps an error to what the user is told. Each kind reads differently.
func userMessage(err error) string {
	switch core.KindOf(err) {
	case core.KindGenerationUnavailable:
		return "My inference core is unreachable right now. Try again in a moment."
	case core.KindMalformedResponse:
		return "My inference core answered with gibberish. Try again."
	case core.KindStorage:
		return "I could not write to my memory banks."
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "The request was cancelled."
	}
	return "Something went wrong."
}
