// Package embeddings generates dense vectors for the search index. Two
// providers are available: fastembed (local ONNX models, needs CGO) and
// tei (HTTP calls to a text-embeddings-inference server).
package embeddings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/boundaryd/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is an embedder with a known output dimension and a lifecycle.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the configured model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// Config selects and configures the embedding provider.
type Config struct {
	// Provider is "fastembed" (default) or "tei".
	Provider string `koanf:"provider"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// BaseURL is the TEI server URL. Only used by the tei provider.
	BaseURL string `koanf:"base_url"`

	// CacheDir is the model cache directory. Only used by fastembed.
	CacheDir string `koanf:"cache_dir"`
}

// New constructs the provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		svc, err := NewTEIService(TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		return &teiProvider{TEIService: svc, dimension: detectDimension(cfg.Model)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// detectDimension guesses the output dimension from the model name.
// Falls back to 384, the bge-small family size.
func detectDimension(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	switch {
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	default:
		return 384
	}
}

// teiProvider adapts TEIService to the Provider interface.
type teiProvider struct {
	*TEIService
	dimension int
}

func (t *teiProvider) Dimension() int { return t.dimension }

// Close is a no-op since TEI is plain HTTP.
func (t *teiProvider) Close() error { return nil }
