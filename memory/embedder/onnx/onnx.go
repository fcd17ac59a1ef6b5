//go:build onnx

package onnx

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"unicode"

	"github.com/goccy/go-json"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/becomeliminal/glados/memory"
)

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the exported sentence-transformer model.onnx.
	ModelPath string

	// TokenizerPath is the path to the model's tokenizer.json (WordPiece vocab).
	TokenizerPath string

	// SharedLibraryPath points at libonnxruntime. Empty uses the runtime default.
	SharedLibraryPath string

	// Dimensions is the embedding vector size.
	// Default: 768 (multi-qa-mpnet-base-cos-v1)
	Dimensions int

	// MaxTokens is the sequence length fed to the model, including special tokens.
	// Default: 128
	MaxTokens int

	// InputNames lists the model inputs in order. "token_type_ids" is only fed
	// when listed.
	// Default: input_ids, attention_mask
	InputNames []string

	// OutputName is the token-level output that gets mean pooled.
	// Default: last_hidden_state
	OutputName string

	// Workers bounds parallel inference in EmbedBatch.
	// Default: one per CPU
	Workers int
}

// Embedder produces sentence embeddings with ONNX Runtime:
// WordPiece tokenization, one forward pass, mean pooling, L2 normalization.
type Embedder struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizer
	cfg       Config
}

// New loads the model and tokenizer.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("ModelPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 768
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 128
	}
	if len(cfg.InputNames) == 0 {
		cfg.InputNames = []string{"input_ids", "attention_mask"}
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "last_hidden_state"
	}

	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	tok, err := loadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, cfg.InputNames, []string{cfg.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	log.Printf("[ONNX] Loaded %s (dims=%d, max_tokens=%d, vocab=%d)", cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, len(tok.vocab))
	return &Embedder{session: session, tokenizer: tok, cfg: cfg}, nil
}

// Embed converts text to a unit-length embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask := e.tokenizer.encode(text, e.cfg.MaxTokens)
	shape := ort.NewShape(1, int64(len(ids)))

	inputs := make([]ort.Value, 0, len(e.cfg.InputNames))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, name := range e.cfg.InputNames {
		var data []int64
		switch name {
		case "input_ids":
			data = ids
		case "attention_mask":
			data = mask
		case "token_type_ids":
			data = make([]int64, len(ids))
		default:
			return nil, fmt.Errorf("unsupported model input %q", name)
		}
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create %s tensor: %w", name, err)
		}
		inputs = append(inputs, tensor)
	}

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	return e.pool(out.GetData(), out.GetShape(), mask)
}

// pool reduces model output to one vector. Already pooled outputs ([1, dims])
// pass through; token outputs ([1, seq, dims]) are mean pooled over the mask.
func (e *Embedder) pool(data []float32, shape ort.Shape, mask []int64) ([]float32, error) {
	dims := e.cfg.Dimensions
	embedding := make([]float32, dims)

	switch len(shape) {
	case 2:
		if shape[1] != int64(dims) {
			return nil, fmt.Errorf("output dims %d, expected %d", shape[1], dims)
		}
		copy(embedding, data[:dims])
	case 3:
		if shape[2] != int64(dims) {
			return nil, fmt.Errorf("hidden size %d, expected %d", shape[2], dims)
		}
		var attended float32
		for tokenIdx := 0; tokenIdx < int(shape[1]); tokenIdx++ {
			if mask[tokenIdx] == 0 {
				continue
			}
			attended++
			row := data[tokenIdx*dims : (tokenIdx+1)*dims]
			for j, v := range row {
				embedding[j] += v
			}
		}
		if attended > 0 {
			for j := range embedding {
				embedding[j] /= attended
			}
		}
	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}

	return normalize(embedding), nil
}

// EmbedBatch embeds texts in parallel; the session is safe for concurrent Run.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return memory.EmbedConcurrently(ctx, e.Embed, texts, e.cfg.Workers)
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Close releases ONNX resources.
func (e *Embedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// tokenizer is a lowercase WordPiece tokenizer driven by tokenizer.json.
type tokenizer struct {
	vocab map[string]int
	cls   int64
	sep   int64
	unk   int64
	pad   int64
}

func loadTokenizer(path string) (*tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("%s has no model.vocab", path)
	}

	t := &tokenizer{vocab: file.Model.Vocab}
	// BERT names first, then RoBERTa/MPNet names
	special := []struct {
		dst   *int64
		names []string
	}{
		{&t.cls, []string{"[CLS]", "<s>"}},
		{&t.sep, []string{"[SEP]", "</s>"}},
		{&t.unk, []string{"[UNK]", "<unk>"}},
		{&t.pad, []string{"[PAD]", "<pad>"}},
	}
	for _, s := range special {
		found := false
		for _, name := range s.names {
			if id, ok := t.vocab[name]; ok {
				*s.dst = int64(id)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("vocab is missing special token %v", s.names)
		}
	}
	return t, nil
}

// encode returns token ids and attention mask, padded to maxTokens.
func (t *tokenizer) encode(text string, maxTokens int) ([]int64, []int64) {
	ids := make([]int64, maxTokens)
	mask := make([]int64, maxTokens)
	for i := range ids {
		ids[i] = t.pad
	}

	tokens := t.tokenize(text)
	if len(tokens) > maxTokens-2 {
		tokens = tokens[:maxTokens-2]
	}

	ids[0], mask[0] = t.cls, 1
	for i, tok := range tokens {
		ids[i+1], mask[i+1] = tok, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = t.sep, 1
	return ids, mask
}

func (t *tokenizer) tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		tokens = append(tokens, t.wordPiece(word)...)
	}
	return tokens
}

// splitWords splits on whitespace and isolates punctuation, like BERT's basic tokenizer.
func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// wordPiece greedily matches the longest vocab prefix, marking continuations with "##".
func (t *tokenizer) wordPiece(word string) []int64 {
	if id, ok := t.vocab[word]; ok {
		return []int64{int64(id)}
	}

	var pieces []int64
	runes := []rune(word)
	for start := 0; start < len(runes); {
		end := len(runes)
		matched := false
		for ; end > start; end-- {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				pieces = append(pieces, int64(id))
				matched = true
				break
			}
		}
		if !matched {
			// The whole word becomes unknown once any part fails.
			return []int64{t.unk}
		}
		start = end
	}
	return pieces
}
