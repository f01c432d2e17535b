// Package vectorstore provides embedding-backed storage for indexed source
// chunks. Two backends are supported: chromem (embedded, zero external
// services) and qdrant (remote, gRPC). Collections partition the index per
// workspace root so unrelated roots never pollute each other's results.
package vectorstore

import (
	"context"
	"errors"
	"regexp"
)

var (
	// ErrInvalidCollection indicates a collection name that does not match
	// the allowed pattern.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrEmbedderRequired indicates the backend needs an embedder but none
	// was configured.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrStoreClosed indicates an operation on a closed store.
	ErrStoreClosed = errors.New("vector store is closed")
)

// collectionNamePattern restricts collection names to lowercase
// alphanumerics and underscores, 1-64 chars. Both backends accept this
// subset, so collection names stay portable between them.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName reports whether name is usable as a collection
// identifier on every supported backend.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return ErrInvalidCollection
	}
	return nil
}

// Document is a single indexed chunk of a source file.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// SearchResult is one ranked hit from a semantic query. Content is carried
// internally so callers can decide whether to expose it; the gateway's
// search surface strips it and returns references only.
type SearchResult struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]string
}

// Embedder converts text into dense vectors. Implementations live in the
// embeddings package.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the minimal surface the search index needs from a backend.
type Store interface {
	// AddDocuments indexes docs into the named collection, creating it on
	// first use. Returns the stored document IDs.
	AddDocuments(ctx context.Context, collection string, docs []Document) ([]string, error)

	// Search returns up to k results from the named collection, ranked by
	// similarity to query.
	Search(ctx context.Context, collection, query string, k int) ([]SearchResult, error)

	// DeleteCollection removes a collection and all its documents. Deleting
	// an absent collection is not an error.
	DeleteCollection(ctx context.Context, collection string) error

	Close() error
}
