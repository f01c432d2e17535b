package mcp

import (
	"context"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
	"github.com/fyrsmithlabs/boundaryd/internal/pathguard"
	"github.com/fyrsmithlabs/boundaryd/internal/provenance"
	"github.com/fyrsmithlabs/boundaryd/internal/search"
)

type searchRegexInput struct {
	SessionID    string   `json:"session_id" jsonschema:"required,Session identifier"`
	Pattern      string   `json:"pattern" jsonschema:"required,RE2 pattern to scan for"`
	Literal      bool     `json:"literal,omitempty" jsonschema:"Treat the pattern as a fixed string"`
	Scope        string   `json:"scope,omitempty" jsonschema:"Directory to scan; defaults to every session root"`
	IncludeGlobs []string `json:"include_globs,omitempty" jsonschema:"Restrict the scan to matching file names"`
	MaxResults   int      `json:"max_results,omitempty" jsonschema:"Result cap, bounded by the server limit"`
}

type searchRegexOutput struct {
	Matches []search.Match `json:"matches" jsonschema:"Location references only; read content through span_read"`
	Count   int            `json:"count" jsonschema:"Number of matches returned"`
}

type searchQueryInput struct {
	SessionID  string `json:"session_id" jsonschema:"required,Session identifier"`
	Query      string `json:"query" jsonschema:"required,Natural language query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Result cap, bounded by the server limit"`
}

type searchQueryOutput struct {
	Hits  []search.Hit `json:"hits" jsonschema:"Location references only; read content through span_read"`
	Count int          `json:"count" jsonschema:"Number of hits returned"`
}

func (s *Server) registerSearchTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_regex",
		Description: "Scan session roots for a pattern, returning a bounded set of location references",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchRegexInput) (*mcp.CallToolResult, searchRegexOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "search_regex")
		var toolErr error
		var bytes int64
		defer func() {
			s.metrics.DecrementActive(ctx, "search_regex")
			s.metrics.RecordInvocation(ctx, "search_regex", time.Since(start), toolErr)
			s.metrics.RecordBytes(ctx, "search_regex", bytes)
		}()

		sess, err := s.sessions.Get(args.SessionID)
		if err != nil {
			toolErr = err
			return nil, searchRegexOutput{}, err
		}
		sess.Lock()
		defer sess.Unlock()

		digest := provenance.DigestParams(map[string]any{
			"pattern":     args.Pattern,
			"literal":     args.Literal,
			"scope":       args.Scope,
			"globs":       args.IncludeGlobs,
			"max_results": args.MaxResults,
		})
		record := func(err error, n int64) {
			sess.Ledger.Record("search.regex", digest, outcome(err), n)
		}

		if err := sess.Budget.ChargeCall(); err != nil {
			toolErr = err
			record(err, 0)
			return nil, searchRegexOutput{}, err
		}

		roots := sess.Roots()
		if args.Scope != "" {
			scope, err := pathguard.Validate(args.Scope, roots)
			if err != nil {
				toolErr = err
				record(err, 0)
				return nil, searchRegexOutput{}, err
			}
			roots = []string{scope}
		}

		limit := args.MaxResults
		if limit <= 0 || limit > s.maxSearchResults {
			limit = s.maxSearchResults
		}

		var matches []search.Match
		for _, root := range roots {
			found, err := search.Scan(ctx, root, args.Pattern, search.ScanOptions{
				Literal:      args.Literal,
				IncludeGlobs: args.IncludeGlobs,
				MaxResults:   limit - len(matches),
			})
			if err != nil {
				toolErr = err
				record(err, 0)
				return nil, searchRegexOutput{}, err
			}
			matches = append(matches, found...)
			if len(matches) >= limit {
				break
			}
		}
		for i := range matches {
			matches[i].Rank = i + 1
		}

		out := searchRegexOutput{Matches: matches, Count: len(matches)}
		n := payloadSize(out.Matches)
		if err := sess.Budget.ChargeBytes(n); err != nil {
			toolErr = err
			record(err, 0)
			return nil, searchRegexOutput{}, err
		}
		bytes = n
		record(nil, n)
		return nil, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_query",
		Description: "Semantic search over the session roots, returning location references only",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchQueryInput) (*mcp.CallToolResult, searchQueryOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "search_query")
		var toolErr error
		var bytes int64
		defer func() {
			s.metrics.DecrementActive(ctx, "search_query")
			s.metrics.RecordInvocation(ctx, "search_query", time.Since(start), toolErr)
			s.metrics.RecordBytes(ctx, "search_query", bytes)
		}()

		sess, err := s.sessions.Get(args.SessionID)
		if err != nil {
			toolErr = err
			return nil, searchQueryOutput{}, err
		}
		sess.Lock()
		defer sess.Unlock()

		digest := provenance.DigestParams(map[string]any{
			"query":       args.Query,
			"max_results": args.MaxResults,
		})
		record := func(err error, n int64) {
			sess.Ledger.Record("search.query", digest, outcome(err), n)
		}

		if err := sess.Budget.ChargeCall(); err != nil {
			toolErr = err
			record(err, 0)
			return nil, searchQueryOutput{}, err
		}

		if s.index == nil {
			err := fault.New(fault.CodeInternal, "semantic search is not configured")
			toolErr = err
			record(err, 0)
			return nil, searchQueryOutput{}, err
		}

		limit := args.MaxResults
		if limit <= 0 || limit > s.maxSearchResults {
			limit = s.maxSearchResults
		}

		var hits []search.Hit
		for _, root := range sess.Roots() {
			found, err := s.index.Query(ctx, root, args.Query, limit)
			if err != nil {
				toolErr = fault.Wrap(fault.CodeInternal, err)
				record(toolErr, 0)
				return nil, searchQueryOutput{}, toolErr
			}
			hits = append(hits, found...)
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if len(hits) > limit {
			hits = hits[:limit]
		}
		for i := range hits {
			hits[i].Rank = i + 1
		}

		out := searchQueryOutput{Hits: hits, Count: len(hits)}
		n := payloadSize(out.Hits)
		if err := sess.Budget.ChargeBytes(n); err != nil {
			toolErr = err
			record(err, 0)
			return nil, searchQueryOutput{}, err
		}
		bytes = n
		record(nil, n)
		return nil, out, nil
	})
}
