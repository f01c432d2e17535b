// Package provenance records every gateway operation a session attempts,
// successful or not, in an append-only ledger ordered by admission. The
// ledger is the audit trail of the trust boundary; entries are never
// rewritten or deleted while the session is open.
package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Entry is one audit record.
type Entry struct {
	Seq           uint64    `json:"seq"`
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id"`
	Operation     string    `json:"operation"`
	ParamsDigest  string    `json:"params_digest"`
	Outcome       string    `json:"outcome"` // "ok" or a fault code
	BytesReturned int64     `json:"bytes_returned"`
}

// Publisher ships entries to external audit storage. Implementations must
// not block the recording path for long; failures are logged, not surfaced.
type Publisher interface {
	Publish(entry Entry) error
}

// Ledger is the append-only per-session record.
type Ledger struct {
	mu        sync.Mutex
	sessionID string
	seq       uint64
	entries   []Entry
	publisher Publisher
	onPublishErr func(error)
}

// NewLedger creates an empty ledger for the session.
func NewLedger(sessionID string) *Ledger {
	return &Ledger{sessionID: sessionID}
}

// SetPublisher attaches an external audit publisher. onErr receives publish
// failures; nil means they are silently dropped.
func (l *Ledger) SetPublisher(p Publisher, onErr func(error)) {
	l.mu.Lock()
	l.publisher = p
	l.onPublishErr = onErr
	l.mu.Unlock()
}

// Record appends an entry unconditionally, assigning the next sequence
// number and timestamp. Admission order under the session lock makes the
// sequence strictly increasing.
func (l *Ledger) Record(operation string, paramsDigest string, outcome string, bytesReturned int64) Entry {
	l.mu.Lock()
	l.seq++
	e := Entry{
		Seq:           l.seq,
		Timestamp:     time.Now().UTC(),
		SessionID:     l.sessionID,
		Operation:     operation,
		ParamsDigest:  paramsDigest,
		Outcome:       outcome,
		BytesReturned: bytesReturned,
	}
	l.entries = append(l.entries, e)
	p, onErr := l.publisher, l.onPublishErr
	l.mu.Unlock()

	if p != nil {
		if err := p.Publish(e); err != nil && onErr != nil {
			onErr(err)
		}
	}
	return e
}

// Entries returns a copy of the ordered entry list.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Export serializes the ledger for external audit storage.
func (l *Ledger) Export() ([]byte, error) {
	entries := l.Entries()
	blob, err := json.MarshalIndent(struct {
		SessionID string  `json:"session_id"`
		Entries   []Entry `json:"entries"`
	}{l.sessionID, entries}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("exporting ledger: %w", err)
	}
	return blob, nil
}

// DigestParams hashes tool parameters for the ledger. Map keys are ordered
// so the digest is stable for equal parameter sets.
func DigestParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	hasher := sha256.New()
	for _, k := range keys {
		v, _ := json.Marshal(params[k])
		fmt.Fprintf(hasher, "%s=%s;", k, v)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
