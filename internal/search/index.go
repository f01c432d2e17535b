package search

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boundaryd/internal/listing"
	"github.com/fyrsmithlabs/boundaryd/internal/vectorstore"
)

const (
	// chunkLines is the window size for indexed document chunks.
	chunkLines = 40

	// maxIndexFileBytes skips files larger than this during indexing.
	maxIndexFileBytes = 512 * 1024
)

// Hit is one semantic search result. It carries a reference into the
// source tree, never the content itself.
type Hit struct {
	Path      string  `json:"path"` // relative to the searched root
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float32 `json:"score"`
	Rank      int     `json:"rank"`
}

// Index maintains the vector collections behind semantic search. The
// index is the only state shared across sessions; it is read-mostly and
// safe for concurrent use when the underlying store is.
type Index struct {
	store  vectorstore.Store
	logger *zap.Logger
}

// NewIndex wraps store for indexing and querying.
func NewIndex(store vectorstore.Store, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{store: store, logger: logger.Named("search.index")}
}

// CollectionFor derives a stable collection name from a canonical root
// path. Different roots never share a collection.
func CollectionFor(canonicalRoot string) string {
	sum := sha256.Sum256([]byte(canonicalRoot))
	return "root_" + hex.EncodeToString(sum[:8])
}

// IndexRoot walks canonicalRoot and indexes every text file. Returns the
// number of chunks written.
func (ix *Index) IndexRoot(ctx context.Context, canonicalRoot string) (int, error) {
	collection := CollectionFor(canonicalRoot)
	total := 0

	err := filepath.WalkDir(canonicalRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if listing.SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		n, err := ix.indexOne(ctx, collection, canonicalRoot, path)
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("index root %s: %w", canonicalRoot, err)
	}

	ix.logger.Info("indexed root",
		zap.String("collection", collection),
		zap.Int("chunks", total))
	return total, nil
}

// IndexFile re-indexes a single file under canonicalRoot. Used by the
// watcher when a file changes.
func (ix *Index) IndexFile(ctx context.Context, canonicalRoot, path string) error {
	_, err := ix.indexOne(ctx, CollectionFor(canonicalRoot), canonicalRoot, path)
	return err
}

func (ix *Index) indexOne(ctx context.Context, collection, root, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxIndexFileBytes {
		return 0, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, nil
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return 0, nil
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0, err
	}
	rel = filepath.ToSlash(rel)

	docs := chunkDocuments(root, rel, string(content))
	if len(docs) == 0 {
		return 0, nil
	}
	if _, err := ix.store.AddDocuments(ctx, collection, docs); err != nil {
		return 0, fmt.Errorf("index %s: %w", rel, err)
	}
	return len(docs), nil
}

// chunkDocuments splits content into fixed line windows. Chunk IDs are
// derived from the root, path, and window index, so re-indexing a file
// overwrites its previous chunks instead of accumulating duplicates.
func chunkDocuments(root, rel, content string) []vectorstore.Document {
	lines := strings.Split(content, "\n")
	var docs []vectorstore.Document

	for start := 0; start < len(lines); start += chunkLines {
		end := start + chunkLines
		if end > len(lines) {
			end = len(lines)
		}
		text := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
		if text == "" {
			continue
		}

		id := uuid.NewSHA1(uuid.NameSpaceURL,
			[]byte(root+"\x00"+rel+"\x00"+strconv.Itoa(start))).String()
		docs = append(docs, vectorstore.Document{
			ID:      id,
			Content: text,
			Metadata: map[string]string{
				"path":       rel,
				"start_line": strconv.Itoa(start + 1),
				"end_line":   strconv.Itoa(end),
			},
		})
	}
	return docs
}

// Query returns up to k reference hits for query against the collection
// of canonicalRoot. Content never leaves the index.
func (ix *Index) Query(ctx context.Context, canonicalRoot, query string, k int) ([]Hit, error) {
	results, err := ix.store.Search(ctx, CollectionFor(canonicalRoot), query, k)
	if err != nil {
		return nil, fmt.Errorf("semantic query: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for i, r := range results {
		hit := Hit{
			Path:  r.Metadata["path"],
			Score: r.Score,
			Rank:  i + 1,
		}
		hit.StartLine, _ = strconv.Atoi(r.Metadata["start_line"])
		hit.EndLine, _ = strconv.Atoi(r.Metadata["end_line"])
		hits = append(hits, hit)
	}
	return hits, nil
}

// DropRoot removes the collection for a root. Called when a root is
// replaced and its index is no longer reachable.
func (ix *Index) DropRoot(ctx context.Context, canonicalRoot string) error {
	return ix.store.DeleteCollection(ctx, CollectionFor(canonicalRoot))
}
