package provenance

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOrdering(t *testing.T) {
	l := NewLedger("sess-1")

	l.Record("session.create", "", "OK", 0)
	l.Record("span.read", DigestParams(map[string]any{"handle_id": "h1"}), "OK", 42)
	l.Record("span.read", "", "SPAN_TOO_LARGE", 0)

	entries := l.Entries()
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.Equal(t, "sess-1", e.SessionID)
	}
	assert.Equal(t, "SPAN_TOO_LARGE", entries[2].Outcome)
	assert.Equal(t, int64(42), entries[1].BytesReturned)
}

func TestRecordCountsFailures(t *testing.T) {
	l := NewLedger("s")
	l.Record("exec.run", "", "SANDBOX_VIOLATION", 0)
	l.Record("exec.run", "", "OK", 10)
	assert.Equal(t, 2, l.Len(), "failed operations are recorded too")
}

func TestConcurrentRecordStrictSequence(t *testing.T) {
	l := NewLedger("s")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record("fs.list", "", "OK", 0)
		}()
	}
	wg.Wait()

	entries := l.Entries()
	require.Len(t, entries, 50)
	seen := make(map[uint64]bool)
	for _, e := range entries {
		assert.False(t, seen[e.Seq], "sequence numbers are unique")
		seen[e.Seq] = true
	}
}

func TestExport(t *testing.T) {
	l := NewLedger("sess-x")
	l.Record("session.create", "", "OK", 0)

	blob, err := l.Export()
	require.NoError(t, err)

	var decoded struct {
		SessionID string  `json:"session_id"`
		Entries   []Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.Equal(t, "sess-x", decoded.SessionID)
	require.Len(t, decoded.Entries, 1)
	assert.Equal(t, "session.create", decoded.Entries[0].Operation)
}

func TestDigestParamsStable(t *testing.T) {
	a := DigestParams(map[string]any{"path": "src/a.py", "depth": 2})
	b := DigestParams(map[string]any{"depth": 2, "path": "src/a.py"})
	c := DigestParams(map[string]any{"depth": 3, "path": "src/a.py"})

	assert.Equal(t, a, b, "key order does not change the digest")
	assert.NotEqual(t, a, c)
	assert.Empty(t, DigestParams(nil))
}
