package listing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
)

// buildTree creates root/{a.txt, sub/b.txt, sub/deep/c.txt, .git/HEAD}.
func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("aaaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("bb"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "deep", "c.txt"), []byte("c"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref"), 0o644))
	return root
}

func paths(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Path
	}
	return out
}

func TestList(t *testing.T) {
	root := buildTree(t)

	items, err := List(root, 0, 1000)
	require.NoError(t, err)

	got := paths(items)
	assert.Contains(t, got, "a.txt")
	assert.Contains(t, got, filepath.Join("sub", "deep", "c.txt"))
	assert.NotContains(t, got, filepath.Join(".git", "HEAD"), "version control data is skipped")
}

func TestListDepth(t *testing.T) {
	root := buildTree(t)

	items, err := List(root, 1, 1000)
	require.NoError(t, err)

	got := paths(items)
	assert.Contains(t, got, "a.txt")
	assert.Contains(t, got, "sub")
	assert.NotContains(t, got, filepath.Join("sub", "b.txt"))
}

func TestListItemCap(t *testing.T) {
	root := buildTree(t)

	items, err := List(root, 0, 2)
	assert.Equal(t, fault.CodeSizeExceeded, fault.CodeOf(err))
	assert.Nil(t, items, "no truncated listing on violation")
}

func TestManifest(t *testing.T) {
	root := buildTree(t)

	entries, err := Manifest(root, 1000)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byPath := make(map[string]ManifestEntry)
	for _, e := range entries {
		byPath[e.Path] = e
	}
	a := byPath["a.txt"]
	assert.Equal(t, int64(4), a.Size)
	assert.Len(t, a.SHA256, 64)
}

func TestManifestItemCap(t *testing.T) {
	root := buildTree(t)

	_, err := Manifest(root, 1)
	assert.Equal(t, fault.CodeSizeExceeded, fault.CodeOf(err))
}
