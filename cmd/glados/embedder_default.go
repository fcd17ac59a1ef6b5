//go:build !onnx

package main

import (
	"fmt"

	"github.com/becomeliminal/glados/config"
	"github.com/becomeliminal/glados/memory"
	"github.com/becomeliminal/glados/memory/embedder/mock"
)

func newEmbedder(cfg config.EmbedderConfig) (memory.Embedder, func(), error) {
	if cfg.Type == config.EmbedderONNX {
		return nil, nil, fmt.Errorf("embedder %q requires building with -tags onnx", cfg.Type)
	}
	return mock.NewWithDimensions(cfg.Dimensions), func() {}, nil
}
