package rules

import (
	"fmt"

	"github.com/dop251/goja/ast"

	"github.com/jkaninda/codecall/internal/script"
)

// DisallowedIdentifierRule rejects direct references to a configured set
// of names: shared-memory constructors, out-of-realm evaluation, weak
// references, reflective meta-programming objects, and the global object
// itself. The walker hands it every identifier-use site; member property
// names (the `b` in `a.b`) never reach it, those belong to the chain
// rules.
type DisallowedIdentifierRule struct {
	names map[string]struct{}
}

// baseDisallowedIdentifiers is the identifier blocklist every built-in
// preset shares. It tracks the enclave's removed-global set exactly, plus
// `arguments` (the non-strict callee escape); the enclave cannot delete
// that one, it is born inside every function.
func baseDisallowedIdentifiers() []string {
	names := make([]string, 0, len(script.RemovedGlobals)+1)
	names = append(names, script.RemovedGlobals...)
	names = append(names, "arguments")
	return names
}

// NewDisallowedIdentifierRule builds the rule from a name blocklist.
func NewDisallowedIdentifierRule(names []string) *DisallowedIdentifierRule {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return &DisallowedIdentifierRule{names: set}
}

func (r *DisallowedIdentifierRule) Name() string { return "disallowed-identifier" }

func (r *DisallowedIdentifierRule) Inspect(n ast.Node, ctx *Context) []Issue {
	id, ok := n.(*ast.Identifier)
	if !ok {
		return nil
	}
	name := id.Name.String()
	if _, banned := r.names[name]; !banned {
		return nil
	}
	return []Issue{ctx.issue(CodeDisallowedIdentifier, id.Idx,
		fmt.Sprintf("identifier %q is not permitted in sandboxed scripts", name))}
}
