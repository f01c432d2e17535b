package handle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
)

func testLimits() Limits {
	return Limits{
		MaxFileSize:  1 << 20,
		MaxSpanLines: 200,
		MaxSpanBytes: 8192,
	}
}

// writeLines writes n numbered lines and returns the file path.
func writeLines(t *testing.T, n int) string {
	t.Helper()
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func TestCreate(t *testing.T) {
	table := NewTable(testLimits())
	path := writeLines(t, 10)

	h, err := table.Create("sess-1", path)
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, "sess-1", h.SessionID)
	assert.Equal(t, path, h.Path)
	assert.Len(t, h.Fingerprint, 64)

	got, err := table.Get(h.ID)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestCreateSizeCeiling(t *testing.T) {
	table := NewTable(Limits{MaxFileSize: 16, MaxSpanLines: 200, MaxSpanBytes: 8192})
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 17)), 0o644))

	_, err := table.Create("sess-1", path)
	assert.Equal(t, fault.CodeSizeExceeded, fault.CodeOf(err))
	assert.Equal(t, 0, table.Len(), "no handle issued on rejection")
}

func TestCreateMissingAndDirectory(t *testing.T) {
	table := NewTable(testLimits())
	dir := t.TempDir()

	_, err := table.Create("s", filepath.Join(dir, "nope.txt"))
	assert.Equal(t, fault.CodePathNotFound, fault.CodeOf(err))

	_, err = table.Create("s", dir)
	assert.Equal(t, fault.CodePathNotFound, fault.CodeOf(err))
}

func TestReadSpan(t *testing.T) {
	table := NewTable(testLimits())
	h, err := table.Create("s", writeLines(t, 300))
	require.NoError(t, err)

	tests := []struct {
		name       string
		start, end int
		wantCode   fault.Code
		want       string
	}{
		{"single line", 5, 5, "", "line 5\n"},
		{"small range", 1, 3, "", "line 1\nline 2\nline 3\n"},
		{"exactly at line ceiling", 1, 200, "", ""},
		{"over line ceiling", 1, 201, fault.CodeSpanTooLarge, ""},
		{"inverted range", 10, 5, fault.CodeSpanTooLarge, ""},
		{"zero start", 0, 5, fault.CodeSpanTooLarge, ""},
		{"start past EOF", 400, 410, fault.CodeSpanTooLarge, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := table.ReadSpan(h.ID, tt.start, tt.end)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, fault.CodeOf(err))
				assert.Empty(t, got, "no partial output on failure")
				return
			}
			require.NoError(t, err)
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestReadSpanByteCeiling(t *testing.T) {
	table := NewTable(testLimits())
	path := filepath.Join(t.TempDir(), "wide.txt")
	// Two lines of 5000 bytes each: within the line bound, over the byte bound.
	content := strings.Repeat("a", 5000) + "\n" + strings.Repeat("b", 5000) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	h, err := table.Create("s", path)
	require.NoError(t, err)

	got, err := table.ReadSpan(h.ID, 1, 2)
	assert.Equal(t, fault.CodeSpanTooLarge, fault.CodeOf(err))
	assert.Empty(t, got)

	// A single wide line still fits under 8KB.
	got, err = table.ReadSpan(h.ID, 1, 1)
	require.NoError(t, err)
	assert.Len(t, got, 5001)
}

func TestReadSpanStaleHandle(t *testing.T) {
	table := NewTable(testLimits())
	path := writeLines(t, 10)
	h, err := table.Create("s", path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("mutated\n"), 0o644))

	_, err = table.ReadSpan(h.ID, 1, 1)
	assert.Equal(t, fault.CodeStaleHandle, fault.CodeOf(err))
}

func TestReadSpanUnknownHandle(t *testing.T) {
	table := NewTable(testLimits())
	_, err := table.ReadSpan("no-such-id", 1, 1)
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))
}

func TestClear(t *testing.T) {
	table := NewTable(testLimits())
	h, err := table.Create("s", writeLines(t, 5))
	require.NoError(t, err)
	chunks, err := table.Partition(h.ID, 2, 10)
	require.NoError(t, err)

	table.Clear()

	_, err = table.Get(h.ID)
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))
	_, err = table.ReadChunk(chunks[0].ID)
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))
}
