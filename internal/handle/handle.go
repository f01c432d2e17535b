// Package handle issues opaque, session-owned references to validated files
// and serves bounded reads through them. A handle pins the file's content
// fingerprint at creation; any later read that observes a different
// fingerprint fails rather than returning mixed content.
package handle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
)

// Handle is an opaque reference to a validated file.
type Handle struct {
	ID          string
	SessionID   string
	Path        string // canonical, symlink-resolved
	Size        int64
	Fingerprint string
	CreatedAt   time.Time
}

// Chunk is one element of a deterministic partition of a handle.
type Chunk struct {
	ID        string
	HandleID  string
	Index     int
	StartLine int // 1-based, inclusive
	EndLine   int // inclusive
}

// Limits are the hard per-call read bounds. Violations fail, never truncate.
type Limits struct {
	// MaxFileSize is the ceiling above which no handle is issued.
	MaxFileSize int64
	// MaxSpanLines bounds lines per read call.
	MaxSpanLines int
	// MaxSpanBytes bounds bytes per read call.
	MaxSpanBytes int
}

// Table owns the handles and chunks of a single session. The session
// serializes its own operations, but the table carries its own lock so
// teardown from the idle reaper is safe.
type Table struct {
	mu      sync.RWMutex
	limits  Limits
	handles map[string]*Handle
	chunks  map[string]*Chunk
}

// NewTable creates an empty table with the given read bounds.
func NewTable(limits Limits) *Table {
	return &Table{
		limits:  limits,
		handles: make(map[string]*Handle),
		chunks:  make(map[string]*Chunk),
	}
}

// Create stats and fingerprints the file at the already-validated canonical
// path and issues a handle owned by sessionID.
func (t *Table) Create(sessionID, canonicalPath string) (*Handle, error) {
	info, err := os.Stat(canonicalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.New(fault.CodePathNotFound, "file does not exist: %s", canonicalPath)
		}
		return nil, fault.Wrap(fault.CodePathNotFound, err)
	}
	if info.IsDir() {
		return nil, fault.New(fault.CodePathNotFound, "path is a directory: %s", canonicalPath)
	}
	if info.Size() > t.limits.MaxFileSize {
		return nil, fault.New(fault.CodeSizeExceeded,
			"file is %d bytes, ceiling is %d", info.Size(), t.limits.MaxFileSize)
	}

	fp, err := Fingerprint(canonicalPath)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Path:        canonicalPath,
		Size:        info.Size(),
		Fingerprint: fp,
		CreatedAt:   time.Now(),
	}

	t.mu.Lock()
	t.handles[h.ID] = h
	t.mu.Unlock()

	return h, nil
}

// Get looks up a handle by id.
func (t *Table) Get(id string) (*Handle, error) {
	t.mu.RLock()
	h, ok := t.handles[id]
	t.mu.RUnlock()
	if !ok {
		return nil, fault.New(fault.CodeNotFound, "unknown handle: %s", id)
	}
	return h, nil
}

// GetChunk looks up a chunk by id.
func (t *Table) GetChunk(id string) (*Chunk, error) {
	t.mu.RLock()
	c, ok := t.chunks[id]
	t.mu.RUnlock()
	if !ok {
		return nil, fault.New(fault.CodeNotFound, "unknown chunk: %s", id)
	}
	return c, nil
}

// Clear drops every handle and chunk. Called on session close; subsequent
// lookups fail NOT_FOUND.
func (t *Table) Clear() {
	t.mu.Lock()
	t.handles = make(map[string]*Handle)
	t.chunks = make(map[string]*Chunk)
	t.mu.Unlock()
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handles)
}

// Fingerprint computes the content hash used for staleness detection.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fault.Wrap(fault.CodePathNotFound, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// verifyFresh re-reads the file's fingerprint and fails STALE_HANDLE on any
// divergence from the one pinned at handle creation.
func (t *Table) verifyFresh(h *Handle) error {
	fp, err := Fingerprint(h.Path)
	if err != nil {
		return err
	}
	if fp != h.Fingerprint {
		return fault.New(fault.CodeStaleHandle,
			"file changed since handle %s was issued", h.ID)
	}
	return nil
}
