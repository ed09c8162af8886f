package rules

import (
	"fmt"

	"github.com/dop251/goja/ast"
)

// TimingRule rejects timing primitives usable as side channels:
// `performance` (sub-millisecond clocks), `process` (hrtime), and, when
// coarse clock reads are not permitted, the Date constructor altogether.
// SharedArrayBuffer and Atomics, the high-resolution timer components,
// are handled by the shared identifier blocklist.
//
// The standard preset constructs this rule with allowCoarseClock=true;
// see the catalog documentation for the justification of that exception.
type TimingRule struct {
	allowCoarseClock bool
}

// NewTimingRule builds the rule. allowCoarseClock permits Date and
// Date.now (millisecond resolution); strict passes false.
func NewTimingRule(allowCoarseClock bool) *TimingRule {
	return &TimingRule{allowCoarseClock: allowCoarseClock}
}

func (r *TimingRule) Name() string { return "timing-sidechannel" }

func (r *TimingRule) Inspect(n ast.Node, ctx *Context) []Issue {
	id, ok := n.(*ast.Identifier)
	if !ok {
		return nil
	}
	name := id.Name.String()
	switch name {
	case "performance", "process":
		return []Issue{ctx.issue(CodeTimingSidechannel, id.Idx,
			fmt.Sprintf("timing primitive %q is not permitted in sandboxed scripts", name))}
	case "Date":
		if !r.allowCoarseClock {
			return []Issue{ctx.issue(CodeTimingSidechannel, id.Idx,
				"wall-clock reads are not permitted under this preset")}
		}
	}
	return nil
}
