package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
	"github.com/fyrsmithlabs/boundaryd/internal/handle"
	"github.com/fyrsmithlabs/boundaryd/internal/listing"
	"github.com/fyrsmithlabs/boundaryd/internal/pathguard"
	"github.com/fyrsmithlabs/boundaryd/internal/provenance"
	"github.com/fyrsmithlabs/boundaryd/internal/session"
)

// payloadSize measures what a result costs against the output budget.
func payloadSize(v any) int64 {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return int64(len(b))
}

// resolveHandle looks up a handle and revalidates its containment against
// the session's current roots. A root replacement that orphans the file
// surfaces here as a root escape.
func resolveHandle(sess *session.Session, handleID string) (*handle.Handle, error) {
	h, err := sess.Handles.Get(handleID)
	if err != nil {
		return nil, err
	}
	if !pathguard.Contained(h.Path, sess.Roots()) {
		return nil, fault.New(fault.CodeRootEscape,
			"handle %s is outside the session's current roots", handleID)
	}
	return h, nil
}

type fsListInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session identifier"`
	Path      string `json:"path" jsonschema:"required,Directory to list, within the session roots"`
	Depth     int    `json:"depth,omitempty" jsonschema:"Maximum directory depth; 0 means unlimited"`
	MaxItems  int    `json:"max_items,omitempty" jsonschema:"Item cap; exceeding it fails the whole call"`
}

type fsListOutput struct {
	Items []listing.Item `json:"items" jsonschema:"Metadata rows, relative to the listed path"`
	Count int            `json:"count" jsonschema:"Number of items returned"`
}

type fsManifestInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session identifier"`
	Path      string `json:"path" jsonschema:"required,Directory to hash, within the session roots"`
	MaxItems  int    `json:"max_items,omitempty" jsonschema:"Item cap; exceeding it fails the whole call"`
}

type fsManifestOutput struct {
	Entries []listing.ManifestEntry `json:"entries" jsonschema:"Hash and size rows for every regular file"`
	Count   int                     `json:"count" jsonschema:"Number of entries returned"`
}

type handleCreateInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session identifier"`
	Path      string `json:"path" jsonschema:"required,File to open, within the session roots"`
}

type handleCreateOutput struct {
	HandleID    string `json:"handle_id" jsonschema:"Opaque handle for span reads"`
	Path        string `json:"path" jsonschema:"Canonical resolved path"`
	Size        int64  `json:"size" jsonschema:"File size in bytes"`
	Lines       int    `json:"lines" jsonschema:"Total line count"`
	Fingerprint string `json:"fingerprint" jsonschema:"Content hash the handle is pinned to"`
}

type spanReadInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session identifier"`
	HandleID  string `json:"handle_id" jsonschema:"required,Handle to read through"`
	StartLine int    `json:"start_line" jsonschema:"required,First line, 1-based inclusive"`
	EndLine   int    `json:"end_line" jsonschema:"required,Last line, inclusive"`
}

type spanReadOutput struct {
	Content   string `json:"content" jsonschema:"Span content, secrets redacted"`
	StartLine int    `json:"start_line" jsonschema:"First line returned"`
	EndLine   int    `json:"end_line" jsonschema:"Last line returned"`
}

type chunkCreateInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session identifier"`
	HandleID  string `json:"handle_id" jsonschema:"required,Handle to partition"`
	ChunkSize int    `json:"chunk_size" jsonschema:"required,Lines per chunk"`
	MaxChunks int    `json:"max_chunks" jsonschema:"required,Chunk budget; a partition needing more fails whole"`
}

type chunkRef struct {
	ChunkID   string `json:"chunk_id" jsonschema:"Opaque chunk identifier"`
	Index     int    `json:"index" jsonschema:"Position in the partition"`
	StartLine int    `json:"start_line" jsonschema:"First line, 1-based inclusive"`
	EndLine   int    `json:"end_line" jsonschema:"Last line, inclusive"`
}

type chunkCreateOutput struct {
	Chunks []chunkRef `json:"chunks" jsonschema:"Deterministic partition of the handle"`
	Count  int        `json:"count" jsonschema:"Number of chunks"`
}

type chunkGetInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session identifier"`
	ChunkID   string `json:"chunk_id" jsonschema:"required,Chunk to read"`
}

type chunkGetOutput struct {
	Content   string `json:"content" jsonschema:"Chunk content, secrets redacted"`
	StartLine int    `json:"start_line" jsonschema:"First line, 1-based inclusive"`
	EndLine   int    `json:"end_line" jsonschema:"Last line, inclusive"`
}

func (s *Server) registerFSTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fs_list",
		Description: "List directory contents as metadata only, bounded by an item cap",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fsListInput) (*mcp.CallToolResult, fsListOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "fs_list")
		var toolErr error
		var bytes int64
		defer func() {
			s.metrics.DecrementActive(ctx, "fs_list")
			s.metrics.RecordInvocation(ctx, "fs_list", time.Since(start), toolErr)
			s.metrics.RecordBytes(ctx, "fs_list", bytes)
		}()

		sess, err := s.sessions.Get(args.SessionID)
		if err != nil {
			toolErr = err
			return nil, fsListOutput{}, err
		}
		sess.Lock()
		defer sess.Unlock()

		params := map[string]any{"path": args.Path, "depth": args.Depth, "max_items": args.MaxItems}
		digest := provenance.DigestParams(params)
		record := func(err error, n int64) {
			sess.Ledger.Record("fs.list", digest, outcome(err), n)
		}

		if err := sess.Budget.ChargeCall(); err != nil {
			toolErr = err
			record(err, 0)
			return nil, fsListOutput{}, err
		}

		canonical, err := pathguard.Validate(args.Path, sess.Roots())
		if err != nil {
			toolErr = err
			record(err, 0)
			return nil, fsListOutput{}, err
		}

		maxItems := args.MaxItems
		if maxItems <= 0 || maxItems > s.maxListItems {
			maxItems = s.maxListItems
		}
		items, err := listing.List(canonical, args.Depth, maxItems)
		if err != nil {
			toolErr = err
			record(err, 0)
			return nil, fsListOutput{}, err
		}

		out := fsListOutput{Items: items, Count: len(items)}
		n := payloadSize(out.Items)
		if err := sess.Budget.ChargeBytes(n); err != nil {
			toolErr = err
			record(err, 0)
			return nil, fsListOutput{}, err
		}
		bytes = n
		record(nil, n)
		return nil, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fs_manifest",
		Description: "Hash every regular file under a directory, bounded by an item cap",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fsManifestInput) (*mcp.CallToolResult, fsManifestOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "fs_manifest")
		var toolErr error
		var bytes int64
		defer func() {
			s.metrics.DecrementActive(ctx, "fs_manifest")
			s.metrics.RecordInvocation(ctx, "fs_manifest", time.Since(start), toolErr)
			s.metrics.RecordBytes(ctx, "fs_manifest", bytes)
		}()

		sess, err := s.sessions.Get(args.SessionID)
		if err != nil {
			toolErr = err
			return nil, fsManifestOutput{}, err
		}
		sess.Lock()
		defer sess.Unlock()

		digest := provenance.DigestParams(map[string]any{"path": args.Path, "max_items": args.MaxItems})
		record := func(err error, n int64) {
			sess.Ledger.Record("fs.manifest", digest, outcome(err), n)
		}

		if err := sess.Budget.ChargeCall(); err != nil {
			toolErr = err
			record(err, 0)
			return nil, fsManifestOutput{}, err
		}

		canonical, err := pathguard.Validate(args.Path, sess.Roots())
		if err != nil {
			toolErr = err
			record(err, 0)
			return nil, fsManifestOutput{}, err
		}

		maxItems := args.MaxItems
		if maxItems <= 0 || maxItems > s.maxListItems {
			maxItems = s.maxListItems
		}
		entries, err := listing.Manifest(canonical, maxItems)
		if err != nil {
			toolErr = err
			record(err, 0)
			return nil, fsManifestOutput{}, err
		}

		out := fsManifestOutput{Entries: entries, Count: len(entries)}
		n := payloadSize(out.Entries)
		if err := sess.Budget.ChargeBytes(n); err != nil {
			toolErr = err
			record(err, 0)
			return nil, fsManifestOutput{}, err
		}
		bytes = n
		record(nil, n)
		return nil, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fs_handle_create",
		Description: "Open a file handle pinned to the file's current content hash",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args handleCreateInput) (*mcp.CallToolResult, handleCreateOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "fs_handle_create")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "fs_handle_create")
			s.metrics.RecordInvocation(ctx, "fs_handle_create", time.Since(start), toolErr)
		}()

		sess, err := s.sessions.Get(args.SessionID)
		if err != nil {
			toolErr = err
			return nil, handleCreateOutput{}, err
		}
		sess.Lock()
		defer sess.Unlock()

		digest := provenance.DigestParams(map[string]any{"path": args.Path})
		record := func(err error) {
			sess.Ledger.Record("fs.handle_create", digest, outcome(err), 0)
		}

		if err := sess.Budget.ChargeCall(); err != nil {
			toolErr = err
			record(err)
			return nil, handleCreateOutput{}, err
		}

		canonical, err := pathguard.Validate(args.Path, sess.Roots())
		if err != nil {
			toolErr = err
			record(err)
			return nil, handleCreateOutput{}, err
		}

		h, err := sess.Handles.Create(sess.ID, canonical)
		if err != nil {
			toolErr = err
			record(err)
			return nil, handleCreateOutput{}, err
		}
		lines, err := handle.CountLines(h.Path)
		if err != nil {
			toolErr = err
			record(err)
			return nil, handleCreateOutput{}, err
		}

		record(nil)
		return nil, handleCreateOutput{
			HandleID:    h.ID,
			Path:        h.Path,
			Size:        h.Size,
			Lines:       lines,
			Fingerprint: h.Fingerprint,
		}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "span_read",
		Description: "Read a bounded line span through a handle; oversized spans fail, never truncate",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args spanReadInput) (*mcp.CallToolResult, spanReadOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "span_read")
		var toolErr error
		var bytes int64
		defer func() {
			s.metrics.DecrementActive(ctx, "span_read")
			s.metrics.RecordInvocation(ctx, "span_read", time.Since(start), toolErr)
			s.metrics.RecordBytes(ctx, "span_read", bytes)
		}()

		sess, err := s.sessions.Get(args.SessionID)
		if err != nil {
			toolErr = err
			return nil, spanReadOutput{}, err
		}
		sess.Lock()
		defer sess.Unlock()

		digest := provenance.DigestParams(map[string]any{
			"handle_id":  args.HandleID,
			"start_line": args.StartLine,
			"end_line":   args.EndLine,
		})
		record := func(err error, n int64) {
			sess.Ledger.Record("span.read", digest, outcome(err), n)
		}

		if err := sess.Budget.ChargeCall(); err != nil {
			toolErr = err
			record(err, 0)
			return nil, spanReadOutput{}, err
		}

		if _, err := resolveHandle(sess, args.HandleID); err != nil {
			toolErr = err
			record(err, 0)
			return nil, spanReadOutput{}, err
		}

		content, err := sess.Handles.ReadSpan(args.HandleID, args.StartLine, args.EndLine)
		if err != nil {
			toolErr = err
			record(err, 0)
			return nil, spanReadOutput{}, err
		}

		content = s.scrub(content)
		n := int64(len(content))
		if err := sess.Budget.ChargeBytes(n); err != nil {
			toolErr = err
			record(err, 0)
			return nil, spanReadOutput{}, err
		}
		bytes = n
		record(nil, n)
		return nil, spanReadOutput{
			Content:   content,
			StartLine: args.StartLine,
			EndLine:   args.EndLine,
		}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "chunk_create",
		Description: "Partition a handle into fixed line chunks; partitions over the budget fail whole",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args chunkCreateInput) (*mcp.CallToolResult, chunkCreateOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "chunk_create")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "chunk_create")
			s.metrics.RecordInvocation(ctx, "chunk_create", time.Since(start), toolErr)
		}()

		sess, err := s.sessions.Get(args.SessionID)
		if err != nil {
			toolErr = err
			return nil, chunkCreateOutput{}, err
		}
		sess.Lock()
		defer sess.Unlock()

		digest := provenance.DigestParams(map[string]any{
			"handle_id":  args.HandleID,
			"chunk_size": args.ChunkSize,
			"max_chunks": args.MaxChunks,
		})
		record := func(err error) {
			sess.Ledger.Record("chunk.create", digest, outcome(err), 0)
		}

		if err := sess.Budget.ChargeCall(); err != nil {
			toolErr = err
			record(err)
			return nil, chunkCreateOutput{}, err
		}

		if _, err := resolveHandle(sess, args.HandleID); err != nil {
			toolErr = err
			record(err)
			return nil, chunkCreateOutput{}, err
		}

		chunks, err := sess.Handles.Partition(args.HandleID, args.ChunkSize, args.MaxChunks)
		if err != nil {
			toolErr = err
			record(err)
			return nil, chunkCreateOutput{}, err
		}

		refs := make([]chunkRef, len(chunks))
		for i, c := range chunks {
			refs[i] = chunkRef{
				ChunkID:   c.ID,
				Index:     c.Index,
				StartLine: c.StartLine,
				EndLine:   c.EndLine,
			}
		}
		record(nil)
		return nil, chunkCreateOutput{Chunks: refs, Count: len(refs)}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "chunk_get",
		Description: "Read one chunk of a previously created partition",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args chunkGetInput) (*mcp.CallToolResult, chunkGetOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "chunk_get")
		var toolErr error
		var bytes int64
		defer func() {
			s.metrics.DecrementActive(ctx, "chunk_get")
			s.metrics.RecordInvocation(ctx, "chunk_get", time.Since(start), toolErr)
			s.metrics.RecordBytes(ctx, "chunk_get", bytes)
		}()

		sess, err := s.sessions.Get(args.SessionID)
		if err != nil {
			toolErr = err
			return nil, chunkGetOutput{}, err
		}
		sess.Lock()
		defer sess.Unlock()

		digest := provenance.DigestParams(map[string]any{"chunk_id": args.ChunkID})
		record := func(err error, n int64) {
			sess.Ledger.Record("chunk.get", digest, outcome(err), n)
		}

		if err := sess.Budget.ChargeCall(); err != nil {
			toolErr = err
			record(err, 0)
			return nil, chunkGetOutput{}, err
		}

		chunk, err := sess.Handles.GetChunk(args.ChunkID)
		if err != nil {
			toolErr = err
			record(err, 0)
			return nil, chunkGetOutput{}, err
		}
		if _, err := resolveHandle(sess, chunk.HandleID); err != nil {
			toolErr = err
			record(err, 0)
			return nil, chunkGetOutput{}, err
		}

		content, err := sess.Handles.ReadChunk(args.ChunkID)
		if err != nil {
			toolErr = err
			record(err, 0)
			return nil, chunkGetOutput{}, err
		}

		content = s.scrub(content)
		n := int64(len(content))
		if err := sess.Budget.ChargeBytes(n); err != nil {
			toolErr = err
			record(err, 0)
			return nil, chunkGetOutput{}, err
		}
		bytes = n
		record(nil, n)
		return nil, chunkGetOutput{
			Content:   content,
			StartLine: chunk.StartLine,
			EndLine:   chunk.EndLine,
		}, nil
	})
}
