package kobold_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/glados/core"
	"github.com/becomeliminal/glados/inference"
	"github.com/becomeliminal/glados/inference/kobold"
)

func TestGenerate_SendsProtocolPayload(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, kobold.GeneratePath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(`{"results":[{"text":" Hello there! "},{"text":"ignored"}]}`))
	}))
	defer srv.Close()

	c := kobold.New(kobold.Config{BaseURL: srv.URL + "/", APIKey: "secret"})
	text, err := c.Generate(context.Background(), inference.Request{
		Prompt:   "alice: hi\nGlados:",
		Memory:   "[Note:] cake",
		Sampling: inference.DefaultSampling(),
	})
	require.NoError(t, err)
	assert.Equal(t, " Hello there! ", text)

	assert.JSONEq(t, `{
		"max_length": 150,
		"temperature": 0.6,
		"stop_sequence": ["\n", "</s>[INST]", "[/INST]"],
		"memory": "[Note:] cake",
		"prompt": "alice: hi\nGlados:",
		"dry_multiplier": 0.8,
		"dry_base": 1.75,
		"dry_allowed_length": 2
	}`, gotBody)
}

func TestGenerate_OmitsEmptyMemory(t *testing.T) {
	req := kobold.NewGenerateRequest(inference.Request{Prompt: "p", Sampling: inference.DefaultSampling()})
	assert.Empty(t, req.Memory)
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `oops`, core.ErrGenerationUnavailable},
		{"unauthorized", http.StatusUnauthorized, `{}`, core.ErrGenerationUnavailable},
		{"not json", http.StatusOK, `<html>`, core.ErrMalformedResponse},
		{"no results", http.StatusOK, `{"results":[]}`, core.ErrMalformedResponse},
		{"missing text", http.StatusOK, `{"results":[{}]}`, core.ErrMalformedResponse},
		{"missing results", http.StatusOK, `{}`, core.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := kobold.New(kobold.Config{BaseURL: srv.URL}).Generate(context.Background(), inference.Request{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGenerate_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := kobold.New(kobold.Config{BaseURL: srv.URL}).Generate(ctx, inference.Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrGenerationUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerate_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := kobold.New(kobold.Config{BaseURL: url}).Generate(context.Background(), inference.Request{})
	assert.ErrorIs(t, err, core.ErrGenerationUnavailable)
}
