package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ChromemConfig configures the embedded chromem backend.
type ChromemConfig struct {
	// Path is the on-disk database directory.
	Path string `koanf:"path"`

	// Compress enables gzip compression of persisted documents.
	Compress bool `koanf:"compress"`
}

// ChromemStore is an embedded vector store backed by chromem-go. It needs
// no external services, which makes it the default backend.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	logger   *zap.Logger
	tracer   trace.Tracer

	mu     sync.Mutex
	closed bool
}

// NewChromemStore opens (or creates) a persistent chromem database at
// cfg.Path.
func NewChromemStore(cfg ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem db at %s: %w", cfg.Path, err)
	}

	return &ChromemStore{
		db:       db,
		embedder: embedder,
		logger:   logger.Named("vectorstore.chromem"),
		tracer:   otel.Tracer("boundaryd.vectorstore.chromem"),
	}, nil
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	col, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", name, err)
	}
	return col, nil
}

// AddDocuments indexes docs into collection. Embeddings are computed in one
// batch before insertion so a provider round-trip failure leaves the
// collection untouched.
func (s *ChromemStore) AddDocuments(ctx context.Context, collection string, docs []Document) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "vectorstore.add_documents",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(docs)),
		))
	defer span.End()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d documents: %w", len(docs), err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	stored := make([]chromem.Document, len(docs))
	ids := make([]string, len(docs))
	for i, d := range docs {
		stored[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  d.Metadata,
			Embedding: vectors[i],
		}
		ids[i] = d.ID
	}

	if err := col.AddDocuments(ctx, stored, 1); err != nil {
		return nil, fmt.Errorf("add documents to %s: %w", collection, err)
	}

	s.logger.Debug("indexed documents",
		zap.String("collection", collection),
		zap.Int("count", len(docs)))
	return ids, nil
}

// Search returns up to k ranked hits from collection. An empty or absent
// collection yields an empty result, not an error.
func (s *ChromemStore) Search(ctx context.Context, collection, query string, k int) ([]SearchResult, error) {
	ctx, span := s.tracer.Start(ctx, "vectorstore.search",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("limit", k),
		))
	defer span.End()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects queries asking for more results than documents.
	if count := col.Count(); count < k {
		if count == 0 {
			return nil, nil
		}
		k = count
	}

	results, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}

	hits := make([]SearchResult, len(results))
	for i, r := range results {
		hits[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}
	return hits, nil
}

// DeleteCollection drops a collection. Absent collections are ignored.
func (s *ChromemStore) DeleteCollection(_ context.Context, collection string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	return s.db.DeleteCollection(collection)
}

// Close marks the store closed. chromem persists on write, so there is no
// flush to perform here.
func (s *ChromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *ChromemStore) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
