package sandbox

import (
	"go.starlark.net/syntax"

	"github.com/fyrsmithlabs/boundaryd/internal/fault"
)

// parse turns a submission into a syntax tree. Malformed code is a static
// rejection: nothing executes.
func parse(code string) (*syntax.File, error) {
	f, err := syntax.Parse("submission.star", code, syntax.RetainComments)
	if err != nil {
		return nil, fault.New(fault.CodeSandboxViolation, "parse error: %v", err)
	}
	return f, nil
}

// analyze walks the syntax tree and rejects disallowed constructs before
// any execution occurs:
//
//   - load statements (module imports)
//   - references to restricted capability or introspection identifiers
//   - attribute access reaching the same names (x.open, x.system)
//   - string-literal subscripts reaching the same names (x["open"])
//
// The walk covers every node, so the patterns are caught in nested
// expressions, comprehensions, lambdas, and default argument values alike.
func analyze(f *syntax.File, profile *Profile) error {
	var violation error

	syntax.Walk(f, func(n syntax.Node) bool {
		if violation != nil {
			return false
		}
		switch node := n.(type) {
		case *syntax.LoadStmt:
			violation = fault.New(fault.CodeSandboxViolation,
				"load statement at %v: module loading is not permitted", node.Load)
			return false

		case *syntax.Ident:
			if profile.Denies(node.Name) {
				violation = fault.New(fault.CodeSandboxViolation,
					"restricted identifier %q at %v", node.Name, node.NamePos)
				return false
			}

		case *syntax.DotExpr:
			if profile.DeniesAttr(node.Name.Name) {
				violation = fault.New(fault.CodeSandboxViolation,
					"restricted attribute access %q at %v", node.Name.Name, node.Dot)
				return false
			}

		case *syntax.IndexExpr:
			if lit, ok := node.Y.(*syntax.Literal); ok && lit.Token == syntax.STRING {
				if s, ok := lit.Value.(string); ok && profile.DeniesAttr(s) {
					violation = fault.New(fault.CodeSandboxViolation,
						"restricted subscript access %q at %v", s, lit.TokenPos)
					return false
				}
			}
		}
		return true
	})

	return violation
}
