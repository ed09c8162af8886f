package rules

import (
	"fmt"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"

	"github.com/jkaninda/codecall/internal/script"
)

// ReservedPrefixRule rejects declarations and assignments whose target
// identifier starts with a prefix the bridge reserves for trusted entry
// points. The one exception is the exact entry-function name the wrapper
// itself uses. Part of the agent-script preset only.
type ReservedPrefixRule struct{}

// NewReservedPrefixRule builds the rule. The prefix set and the
// whitelisted entry name come from the script package so the rule cannot
// drift from the wrapper.
func NewReservedPrefixRule() *ReservedPrefixRule {
	return &ReservedPrefixRule{}
}

func (r *ReservedPrefixRule) Name() string { return "reserved-prefix" }

func (r *ReservedPrefixRule) Inspect(n ast.Node, ctx *Context) []Issue {
	switch node := n.(type) {
	case *ast.Binding:
		if id, ok := node.Target.(*ast.Identifier); ok {
			return r.check(id.Name.String(), node.Idx0(), ctx)
		}

	case *ast.AssignExpression:
		// Covers plain assignments and defaults inside destructuring
		// patterns, which the parser represents the same way.
		if name, ok := identifierName(node.Left); ok {
			return r.check(name, node.Idx0(), ctx)
		}

	// Destructuring binds through patterns. Each pattern checks only its
	// direct identifiers; nested patterns and defaults are visited as
	// their own nodes, so one pass still sees every binding exactly once.
	case *ast.ObjectPattern:
		var issues []Issue
		for _, prop := range node.Properties {
			switch p := prop.(type) {
			case *ast.PropertyShort:
				issues = append(issues, r.check(p.Name.Name.String(), p.Name.Idx, ctx)...)
			case *ast.PropertyKeyed:
				issues = append(issues, r.checkIdentifier(p.Value, ctx)...)
			}
		}
		return append(issues, r.checkIdentifier(node.Rest, ctx)...)

	case *ast.ArrayPattern:
		var issues []Issue
		for _, el := range node.Elements {
			issues = append(issues, r.checkIdentifier(el, ctx)...)
		}
		return append(issues, r.checkIdentifier(node.Rest, ctx)...)

	case *ast.FunctionLiteral:
		if node.Name != nil {
			return r.check(node.Name.Name.String(), node.Name.Idx, ctx)
		}

	case *ast.ClassLiteral:
		if node.Name != nil {
			return r.check(node.Name.Name.String(), node.Name.Idx, ctx)
		}
	}
	return nil
}

func (r *ReservedPrefixRule) checkIdentifier(e ast.Expression, ctx *Context) []Issue {
	if id, ok := e.(*ast.Identifier); ok {
		return r.check(id.Name.String(), id.Idx, ctx)
	}
	return nil
}

func (r *ReservedPrefixRule) check(name string, idx file.Idx, ctx *Context) []Issue {
	if !script.IsReserved(name) {
		return nil
	}
	return []Issue{ctx.issue(CodeReservedPrefix, idx,
		fmt.Sprintf("identifier %q uses a prefix reserved for bridge internals", name))}
}
