package search

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boundaryd/internal/vectorstore"
)

// memoryStore ranks by naive substring overlap so tests need no embedder.
type memoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]vectorstore.Document // collection -> id -> doc
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: make(map[string]map[string]vectorstore.Document)}
}

func (m *memoryStore) AddDocuments(_ context.Context, collection string, docs []vectorstore.Document) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.docs[collection]
	if !ok {
		col = make(map[string]vectorstore.Document)
		m.docs[collection] = col
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		col[d.ID] = d
		ids[i] = d.ID
	}
	return ids, nil
}

func (m *memoryStore) Search(_ context.Context, collection, query string, k int) ([]vectorstore.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hits []vectorstore.SearchResult
	for _, d := range m.docs[collection] {
		if strings.Contains(d.Content, query) {
			hits = append(hits, vectorstore.SearchResult{
				ID:       d.ID,
				Content:  d.Content,
				Score:    1,
				Metadata: d.Metadata,
			})
		}
		if len(hits) >= k {
			break
		}
	}
	return hits, nil
}

func (m *memoryStore) DeleteCollection(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, collection)
	return nil
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) chunkCount(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

func TestIndexRootAndQuery(t *testing.T) {
	root := writeTree(t, map[string]string{
		"auth/login.go": "package auth\n\nfunc Login(user string) error {\n\treturn checkPassword(user)\n}\n",
		"db/conn.go":    "package db\n\nfunc Open(dsn string) error {\n\treturn nil\n}\n",
	})

	store := newMemoryStore()
	ix := NewIndex(store, zap.NewNop())

	n, err := ix.IndexRoot(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := ix.Query(context.Background(), root, "checkPassword", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "auth/login.go", hits[0].Path)
	assert.Equal(t, 1, hits[0].StartLine)
	assert.Positive(t, hits[0].EndLine)
	assert.Equal(t, 1, hits[0].Rank)
}

func TestIndexReindexOverwrites(t *testing.T) {
	root := writeTree(t, map[string]string{
		"file.go": "version one\n",
	})
	store := newMemoryStore()
	ix := NewIndex(store, zap.NewNop())

	_, err := ix.IndexRoot(context.Background(), root)
	require.NoError(t, err)

	path := filepath.Join(root, "file.go")
	require.NoError(t, os.WriteFile(path, []byte("version two\n"), 0o644))
	require.NoError(t, ix.IndexFile(context.Background(), root, path))

	// Same deterministic chunk ID, so the count stays flat.
	assert.Equal(t, 1, store.chunkCount(CollectionFor(root)))

	hits, err := ix.Query(context.Background(), root, "version two", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestIndexSkipsBinaryAndVendored(t *testing.T) {
	root := writeTree(t, map[string]string{
		"keep.go":            "package keep\n",
		"vendor/dep/x.go":    "package dep\n",
		"node_modules/y.js":  "module.exports = 1\n",
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0, 1, 2}, 0o644))

	store := newMemoryStore()
	ix := NewIndex(store, zap.NewNop())

	n, err := ix.IndexRoot(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollectionForIsStableAndDistinct(t *testing.T) {
	a := CollectionFor("/srv/repo-a")
	b := CollectionFor("/srv/repo-b")
	assert.Equal(t, a, CollectionFor("/srv/repo-a"))
	assert.NotEqual(t, a, b)
	assert.NoError(t, vectorstore.ValidateCollectionName(a))
}

func TestDropRoot(t *testing.T) {
	root := writeTree(t, map[string]string{"f.go": "package f\n"})
	store := newMemoryStore()
	ix := NewIndex(store, zap.NewNop())

	_, err := ix.IndexRoot(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, ix.DropRoot(context.Background(), root))
	assert.Zero(t, store.chunkCount(CollectionFor(root)))
}

func TestWatcherReindexesChangedFile(t *testing.T) {
	root := writeTree(t, map[string]string{"w.go": "package w\n"})
	store := newMemoryStore()
	ix := NewIndex(store, zap.NewNop())

	w, err := NewWatcher(ix, root, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(filepath.Join(root, "w.go"), []byte("package w\n\nvar sentinel = 1\n"), 0o644))

	require.Eventually(t, func() bool {
		hits, err := ix.Query(context.Background(), root, "sentinel", 10)
		return err == nil && len(hits) == 1
	}, 5*time.Second, 100*time.Millisecond)
}
