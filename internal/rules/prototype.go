package rules

import (
	"fmt"

	"github.com/dop251/goja/ast"
)

// builtinConstructors are the globals whose prototypes a script must not
// touch: poisoning any of them poisons every object the bridge later
// hands across the boundary.
var builtinConstructors = map[string]struct{}{
	"Object": {}, "Array": {}, "Function": {}, "String": {}, "Number": {},
	"Boolean": {}, "RegExp": {}, "Date": {}, "Error": {}, "TypeError": {},
	"RangeError": {}, "Promise": {}, "Map": {}, "Set": {}, "WeakMap": {},
	"WeakSet": {}, "Symbol": {}, "JSON": {}, "Math": {},
}

// prototypeMutators are the property names whose invocation rewires an
// object's prototype chain or installs accessors on it.
var prototypeMutators = map[string]struct{}{
	"setPrototypeOf":   {},
	"defineProperty":   {},
	"defineProperties": {},
	"__defineGetter__": {},
	"__defineSetter__": {},
}

// PrototypeRule rejects prototype manipulation: any `__proto__` access,
// calls that reassign a prototype, and property definitions targeting a
// built-in prototype. `__proto__` reads are blocked alongside writes: a
// read already yields Object.prototype, which is a shared host object.
type PrototypeRule struct{}

// NewPrototypeRule builds the rule.
func NewPrototypeRule() *PrototypeRule {
	return &PrototypeRule{}
}

func (r *PrototypeRule) Name() string { return "prototype-manipulation" }

func (r *PrototypeRule) Inspect(n ast.Node, ctx *Context) []Issue {
	switch node := n.(type) {
	case *ast.DotExpression, *ast.BracketExpression:
		if name, _, ok := memberName(n); ok && name == "__proto__" {
			return []Issue{ctx.issue(CodePrototypeManipulation, n.Idx0(),
				"access to __proto__ is not permitted in sandboxed scripts")}
		}

	case *ast.CallExpression:
		return r.inspectCall(node, ctx)
	}
	return nil
}

func (r *PrototypeRule) inspectCall(call *ast.CallExpression, ctx *Context) []Issue {
	method, _, ok := memberName(call.Callee)
	if !ok {
		return nil
	}
	if _, mutator := prototypeMutators[method]; !mutator {
		return nil
	}

	// setPrototypeOf rewires a chain no matter what it targets.
	if method == "setPrototypeOf" {
		return []Issue{ctx.issue(CodePrototypeManipulation, call.Idx0(),
			"prototype reassignment is not permitted in sandboxed scripts")}
	}

	// Property definition calls are rejected when the first argument is a
	// built-in prototype (e.g. Object.defineProperty(Array.prototype, ...)).
	if len(call.ArgumentList) == 0 {
		return nil
	}
	if name, target, tok := memberName(call.ArgumentList[0]); tok && name == "prototype" {
		if base, isID := identifierName(target); isID {
			if _, builtin := builtinConstructors[base]; builtin {
				return []Issue{ctx.issue(CodePrototypeManipulation, call.Idx0(),
					fmt.Sprintf("defining properties on %s.prototype is not permitted", base))}
			}
		}
	}
	return nil
}
