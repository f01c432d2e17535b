package handle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
)

func TestPartition(t *testing.T) {
	table := NewTable(testLimits())
	h, err := table.Create("s", writeLines(t, 10))
	require.NoError(t, err)

	chunks, err := table.Partition(h.ID, 4, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 4, chunks[0].EndLine)
	assert.Equal(t, 5, chunks[1].StartLine)
	assert.Equal(t, 8, chunks[1].EndLine)
	assert.Equal(t, 9, chunks[2].StartLine)
	assert.Equal(t, 10, chunks[2].EndLine)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, h.ID, c.HandleID)
	}
}

func TestPartitionDeterministicRanges(t *testing.T) {
	table := NewTable(testLimits())
	h, err := table.Create("s", writeLines(t, 17))
	require.NoError(t, err)

	first, err := table.Partition(h.ID, 5, 10)
	require.NoError(t, err)
	second, err := table.Partition(h.ID, 5, 10)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].StartLine, second[i].StartLine)
		assert.Equal(t, first[i].EndLine, second[i].EndLine)
		assert.NotEqual(t, first[i].ID, second[i].ID, "ids are fresh per call")
	}
}

func TestPartitionBudgetExceeded(t *testing.T) {
	table := NewTable(testLimits())
	h, err := table.Create("s", writeLines(t, 100))
	require.NoError(t, err)

	_, err = table.Partition(h.ID, 10, 9)
	assert.Equal(t, fault.CodeChunkBudgetExceeded, fault.CodeOf(err))

	chunks, err := table.Partition(h.ID, 10, 10)
	require.NoError(t, err)
	assert.Len(t, chunks, 10)
}

func TestPartitionEmptyFile(t *testing.T) {
	table := NewTable(testLimits())
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	h, err := table.Create("s", path)
	require.NoError(t, err)

	chunks, err := table.Partition(h.ID, 50, 1)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	text, err := table.ReadChunk(chunks[0].ID)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestReadChunk(t *testing.T) {
	table := NewTable(testLimits())
	h, err := table.Create("s", writeLines(t, 6))
	require.NoError(t, err)

	chunks, err := table.Partition(h.ID, 3, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	text, err := table.ReadChunk(chunks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "line 4\nline 5\nline 6\n", text)

	_, err = table.ReadChunk("orphaned")
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))
}

func TestPartitionStaleHandle(t *testing.T) {
	table := NewTable(testLimits())
	path := writeLines(t, 10)
	h, err := table.Create("s", path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("changed\n"), 0o644))

	_, err = table.Partition(h.ID, 2, 10)
	assert.Equal(t, fault.CodeStaleHandle, fault.CodeOf(err))
}
