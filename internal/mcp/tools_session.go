package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boundaryd/internal/budget"
	"github.com/fyrsmithlabs/boundaryd/internal/fault"
	"github.com/fyrsmithlabs/boundaryd/internal/provenance"
	"github.com/fyrsmithlabs/boundaryd/internal/session"
	"github.com/fyrsmithlabs/boundaryd/internal/workspace"
)

type sessionCreateInput struct {
	Roots          []string `json:"roots" jsonschema:"required,Directories the session may access"`
	MaxToolCalls   int      `json:"max_tool_calls,omitempty" jsonschema:"Call budget; clamped to the system maximum"`
	MaxOutputBytes int64    `json:"max_output_bytes,omitempty" jsonschema:"Output budget in bytes; clamped to the system maximum"`
	TimeoutMs      int64    `json:"timeout_ms,omitempty" jsonschema:"Idle timeout in milliseconds; clamped to the system maximum"`
}

type sessionCreateOutput struct {
	SessionID string   `json:"session_id" jsonschema:"Session identifier"`
	Roots     []string `json:"roots" jsonschema:"Canonicalized allowed roots"`
	Workspace string   `json:"workspace" jsonschema:"Workspace identity derived from the first root"`
}

type sessionCloseInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session identifier"`
}

type sessionCloseOutput struct {
	SessionID   string       `json:"session_id" jsonschema:"Session identifier"`
	Usage       budget.Usage `json:"usage" jsonschema:"Final budget usage"`
	LedgerCount int          `json:"ledger_count" jsonschema:"Number of provenance entries recorded"`
}

type rootsSetInput struct {
	SessionID string   `json:"session_id" jsonschema:"required,Session identifier"`
	Roots     []string `json:"roots" jsonschema:"required,Replacement root set"`
}

type rootsSetOutput struct {
	Roots []string `json:"roots" jsonschema:"Canonicalized allowed roots"`
}

type provenanceReportInput struct {
	SessionID  string `json:"session_id" jsonschema:"required,Session identifier"`
	ExportJSON bool   `json:"export_json,omitempty" jsonschema:"Include a serialized ledger blob for external audit storage"`
}

type provenanceReportOutput struct {
	SessionID string             `json:"session_id" jsonschema:"Session identifier"`
	Entries   []provenance.Entry `json:"entries" jsonschema:"Ordered provenance entries"`
	Usage     budget.Usage       `json:"usage" jsonschema:"Current budget usage"`
	Export    string             `json:"export,omitempty" jsonschema:"Serialized ledger, present when export_json is set"`
}

func (s *Server) registerSessionTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_create",
		Description: "Create a bounded session over one or more directory roots",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionCreateInput) (*mcp.CallToolResult, sessionCreateOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "session_create")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "session_create")
			s.metrics.RecordInvocation(ctx, "session_create", time.Since(start), toolErr)
		}()

		sess, err := s.sessions.Create(session.CreateOptions{
			Roots:          args.Roots,
			MaxToolCalls:   args.MaxToolCalls,
			MaxOutputBytes: args.MaxOutputBytes,
			IdleTimeout:    time.Duration(args.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			toolErr = err
			return nil, sessionCreateOutput{}, err
		}

		roots := sess.Roots()
		ident := workspace.Identity(roots[0])
		sess.Ledger.Record("session.create", provenance.DigestParams(map[string]any{
			"roots":     roots,
			"workspace": ident,
		}), "ok", 0)
		for _, root := range roots {
			s.ensureIndexed(root)
		}

		out := sessionCreateOutput{
			SessionID: sess.ID,
			Roots:     roots,
			Workspace: ident,
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Session created: %s", sess.ID)},
			},
		}, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_close",
		Description: "Close a session, invalidating its handles and budgets",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionCloseInput) (*mcp.CallToolResult, sessionCloseOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "session_close")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "session_close")
			s.metrics.RecordInvocation(ctx, "session_close", time.Since(start), toolErr)
		}()

		sess, err := s.sessions.Get(args.SessionID)
		if err != nil {
			toolErr = err
			return nil, sessionCloseOutput{}, err
		}
		usage := sess.Budget.Usage()
		if err := s.sessions.Close(args.SessionID); err != nil {
			toolErr = err
			return nil, sessionCloseOutput{}, err
		}

		out := sessionCloseOutput{
			SessionID:   args.SessionID,
			Usage:       usage,
			LedgerCount: sess.Ledger.Len(),
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Session closed: %s", args.SessionID)},
			},
		}, out, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "roots_set",
		Description: "Replace the session's allowed roots; existing handles revalidate lazily",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args rootsSetInput) (*mcp.CallToolResult, rootsSetOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "roots_set")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "roots_set")
			s.metrics.RecordInvocation(ctx, "roots_set", time.Since(start), toolErr)
		}()

		sess, err := s.sessions.Get(args.SessionID)
		if err != nil {
			toolErr = err
			return nil, rootsSetOutput{}, err
		}
		sess.Lock()
		defer sess.Unlock()

		// Configuration calls are ledgered but do not consume the call
		// budget; only content operations count against it.
		params := map[string]any{"roots": args.Roots}
		roots, err := s.sessions.SetRoots(args.SessionID, args.Roots)
		sess.Ledger.Record("roots.set", provenance.DigestParams(params), outcome(err), 0)
		if err != nil {
			toolErr = err
			return nil, rootsSetOutput{}, err
		}
		for _, root := range roots {
			s.ensureIndexed(root)
		}

		s.logger.Debug("roots replaced",
			zap.String("session_id", args.SessionID),
			zap.Strings("roots", roots))
		return nil, rootsSetOutput{Roots: roots}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "provenance_report",
		Description: "Return the session's ordered provenance ledger and budget usage",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args provenanceReportInput) (*mcp.CallToolResult, provenanceReportOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "provenance_report")
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, "provenance_report")
			s.metrics.RecordInvocation(ctx, "provenance_report", time.Since(start), toolErr)
		}()

		sess, err := s.sessions.Get(args.SessionID)
		if err != nil {
			toolErr = err
			return nil, provenanceReportOutput{}, err
		}
		sess.Lock()
		defer sess.Unlock()

		out := provenanceReportOutput{
			SessionID: sess.ID,
			Entries:   sess.Ledger.Entries(),
			Usage:     sess.Budget.Usage(),
		}
		if args.ExportJSON {
			blob, err := sess.Ledger.Export()
			if err != nil {
				toolErr = fault.Wrap(fault.CodeInternal, err)
				sess.Ledger.Record("provenance.report", "", outcome(toolErr), 0)
				return nil, provenanceReportOutput{}, toolErr
			}
			out.Export = string(blob)
		}
		sess.Ledger.Record("provenance.report", "", "ok", 0)
		return nil, out, nil
	})
}
