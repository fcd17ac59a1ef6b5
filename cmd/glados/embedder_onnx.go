//go:build onnx

package main

import (
	"log"

	"github.com/becomeliminal/glados/config"
	"github.com/becomeliminal/glados/memory"
	"github.com/becomeliminal/glados/memory/embedder/mock"
	"github.com/becomeliminal/glados/memory/embedder/onnx"
)

func newEmbedder(cfg config.EmbedderConfig) (memory.Embedder, func(), error) {
	if cfg.Type != config.EmbedderONNX {
		return mock.NewWithDimensions(cfg.Dimensions), func() {}, nil
	}
	e, err := onnx.New(onnx.Config{
		ModelPath:         cfg.ONNX.ModelPath,
		TokenizerPath:     cfg.ONNX.TokenizerPath,
		SharedLibraryPath: cfg.ONNX.SharedLibraryPath,
		Dimensions:        cfg.Dimensions,
	})
	if err != nil {
		return nil, nil, err
	}
	return e, func() {
		if err := e.Close(); err != nil {
			log.Printf("[ONNX] Close: %v", err)
		}
	}, nil
}
