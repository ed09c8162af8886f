package rules

import (
	"github.com/dop251/goja/ast"
)

// GlobalAccessRule rejects the patterns known to recover the ambient
// global object indirectly even when the direct names are blocked:
//
//   - the Function-constructor escape, any member chain ending in
//     `.constructor.constructor` (obj.constructor.constructor('...')()
//     evaluates arbitrary source in the host realm)
//   - `arguments.callee`, the non-strict route back to the calling
//     function and from there to its realm
//   - unbound `this` at the script's own top level, which in sloppy mode
//     is the global object
//   - `with` blocks, which re-scope identifier resolution and defeat
//     static analysis entirely
//
// Detection walks the member-access structure, never the source text, so
// whitespace, renaming, or bracket access cannot slip past it.
type GlobalAccessRule struct{}

// NewGlobalAccessRule builds the rule. It has no configuration: every
// pattern it knows is escape-complete on its own.
func NewGlobalAccessRule() *GlobalAccessRule {
	return &GlobalAccessRule{}
}

func (r *GlobalAccessRule) Name() string { return "no-global-access" }

func (r *GlobalAccessRule) Inspect(n ast.Node, ctx *Context) []Issue {
	switch node := n.(type) {
	case *ast.DotExpression, *ast.BracketExpression:
		return r.inspectMember(n, ctx)

	case *ast.ThisExpression:
		// Depth 1 is the entry wrapper, i.e. the script's own top level.
		// Nested function literals get their own `this` and are fine.
		if ctx.FunctionDepth() <= 1 {
			return []Issue{ctx.issue(CodeGlobalAccess, node.Idx,
				"top-level `this` may resolve to the global object")}
		}

	case *ast.WithStatement:
		return []Issue{ctx.issue(CodeGlobalAccess, node.With,
			"`with` statements are not permitted in sandboxed scripts")}
	}
	return nil
}

func (r *GlobalAccessRule) inspectMember(n ast.Node, ctx *Context) []Issue {
	name, target, ok := memberName(n)
	if !ok {
		return nil
	}

	// x.constructor.constructor: the inner access may itself be dot or
	// bracket form.
	if name == "constructor" {
		if inner, _, innerOK := memberName(target); innerOK && inner == "constructor" {
			return []Issue{ctx.issue(CodeGlobalAccess, n.Idx0(),
				"constructor chain recovers the Function constructor")}
		}
	}

	if name == "callee" {
		if base, isID := identifierName(target); isID && base == "arguments" {
			return []Issue{ctx.issue(CodeGlobalAccess, n.Idx0(),
				"arguments.callee is not permitted in sandboxed scripts")}
		}
	}
	return nil
}
