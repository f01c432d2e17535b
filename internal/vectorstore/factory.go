package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures the index backend.
type Config struct {
	// Provider is "chromem" (embedded, default) or "qdrant" (remote).
	Provider string `koanf:"provider"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// New constructs the backend named by cfg.Provider.
func New(cfg Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "", "chromem":
		return NewChromemStore(cfg.Chromem, embedder, logger)
	case "qdrant":
		return NewQdrantStore(cfg.Qdrant, embedder, logger)
	default:
		return nil, fmt.Errorf("unknown vector store provider %q", cfg.Provider)
	}
}
