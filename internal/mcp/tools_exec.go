package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/boundaryd/internal/provenance"
)

type execRunInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session identifier"`
	Code      string `json:"code" jsonschema:"required,Starlark source to execute"`
}

type execRunOutput struct {
	Stdout    string `json:"stdout" jsonschema:"Captured standard output, secrets redacted"`
	Stderr    string `json:"stderr" jsonschema:"Captured error output, secrets redacted"`
	Status    string `json:"status" jsonschema:"ok or error"`
	ElapsedMS int64  `json:"elapsed_ms" jsonschema:"Wall time the execution took"`
}

func (s *Server) registerExecTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "exec_run",
		Description: "Execute a bounded Starlark program in the server's sandbox profile",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args execRunInput) (*mcp.CallToolResult, execRunOutput, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, "exec_run")
		var toolErr error
		var bytes int64
		defer func() {
			s.metrics.DecrementActive(ctx, "exec_run")
			s.metrics.RecordInvocation(ctx, "exec_run", time.Since(start), toolErr)
			s.metrics.RecordBytes(ctx, "exec_run", bytes)
		}()

		sess, err := s.sessions.Get(args.SessionID)
		if err != nil {
			toolErr = err
			return nil, execRunOutput{}, err
		}
		sess.Lock()
		defer sess.Unlock()

		digest := provenance.DigestParams(map[string]any{
			"code":    args.Code,
			"profile": s.profile.Name,
		})
		record := func(err error, n int64) {
			sess.Ledger.Record("exec.run", digest, outcome(err), n)
		}

		if err := sess.Budget.ChargeCall(); err != nil {
			toolErr = err
			record(err, 0)
			return nil, execRunOutput{}, err
		}

		res, err := s.runner.Run(ctx, args.Code, s.profile)
		if err != nil {
			toolErr = err
			record(err, 0)
			return nil, execRunOutput{}, err
		}

		out := execRunOutput{
			Stdout:    s.scrub(res.Stdout),
			Stderr:    s.scrub(res.Stderr),
			Status:    res.Status,
			ElapsedMS: res.Elapsed.Milliseconds(),
		}
		n := int64(len(out.Stdout) + len(out.Stderr))
		if err := sess.Budget.ChargeBytes(n); err != nil {
			toolErr = err
			record(err, 0)
			return nil, execRunOutput{}, err
		}
		bytes = n
		record(nil, n)
		return nil, out, nil
	})
}
