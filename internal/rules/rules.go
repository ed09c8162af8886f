// Package rules implements the inspection rules the script validator runs
// against a parsed syntax tree. Each rule is a stateless inspector of one
// node at a time; rules are grouped into named, immutable presets built
// once at startup. Rules never execute or mutate anything; they only
// report issues.
package rules

import (
	"sort"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
)

// IssueCode classifies a validation issue. One code per rule category.
type IssueCode string

const (
	CodeSyntax                IssueCode = "syntax"
	CodeDisallowedIdentifier  IssueCode = "disallowed-identifier"
	CodeGlobalAccess          IssueCode = "global-access"
	CodePrototypeManipulation IssueCode = "prototype-manipulation"
	CodeReservedPrefix        IssueCode = "reserved-prefix"
	CodeTimingSidechannel     IssueCode = "timing-sidechannel"
)

// Issue is a single rule violation at a source location. Immutable.
type Issue struct {
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
	Line    int       `json:"line"`
	Column  int       `json:"column"`
}

// Rule inspects one syntax-tree node and returns zero or more issues.
// Implementations must be stateless and safe for concurrent use: the same
// rule instance is shared by every validation running against its preset.
type Rule interface {
	// Name returns the rule's stable identifier.
	Name() string

	// Inspect examines a single node. ctx provides ancestor context and
	// source positions; rules must not retain either past the call.
	Inspect(n ast.Node, ctx *Context) []Issue
}

// Context gives a rule access to the walk state around the current node.
// A fresh Context is built per validation; rules only read from it.
type Context struct {
	ancestors []ast.Node
	position  func(file.Idx) file.Position
}

// NewContext creates a walk context. position maps a node index to a
// source position; the validator wires it to the parsed file.
func NewContext(position func(file.Idx) file.Position) *Context {
	return &Context{position: position}
}

// Push records a node as the walk descends into it.
func (c *Context) Push(n ast.Node) { c.ancestors = append(c.ancestors, n) }

// Pop removes the most recent ancestor as the walk leaves a node.
func (c *Context) Pop() { c.ancestors = c.ancestors[:len(c.ancestors)-1] }

// Parent returns the immediate ancestor of the current node, or nil at the
// tree root.
func (c *Context) Parent() ast.Node {
	if len(c.ancestors) == 0 {
		return nil
	}
	return c.ancestors[len(c.ancestors)-1]
}

// FunctionDepth counts enclosing function literals. The entry wrapper the
// enclave adds around every script counts as depth 1, so code at the
// script's own top level sees depth 1 and code in a nested function sees
// depth >= 2. Arrow functions are excluded: they have no `this` of their
// own.
func (c *Context) FunctionDepth() int {
	depth := 0
	for _, a := range c.ancestors {
		if _, ok := a.(*ast.FunctionLiteral); ok {
			depth++
		}
	}
	return depth
}

// Position resolves a node index to a line/column pair.
func (c *Context) Position(idx file.Idx) file.Position {
	if c.position == nil {
		return file.Position{}
	}
	return c.position(idx)
}

func (c *Context) issue(code IssueCode, idx file.Idx, msg string) Issue {
	pos := c.Position(idx)
	return Issue{Code: code, Message: msg, Line: pos.Line, Column: pos.Column}
}

// Preset is a named, ordered, immutable set of rule instances.
type Preset struct {
	name        string
	description string
	rules       []Rule
}

// NewPreset builds a preset from an ordered rule list.
func NewPreset(name, description string, ruleSet ...Rule) Preset {
	rs := make([]Rule, len(ruleSet))
	copy(rs, ruleSet)
	return Preset{name: name, description: description, rules: rs}
}

// Name returns the preset's identifier.
func (p Preset) Name() string { return p.name }

// Description returns the preset's human-readable summary.
func (p Preset) Description() string { return p.description }

// Rules returns the preset's rules in evaluation order.
func (p Preset) Rules() []Rule {
	rs := make([]Rule, len(p.rules))
	copy(rs, p.rules)
	return rs
}

// Built-in preset names.
const (
	PresetStrict      = "strict"
	PresetStandard    = "standard"
	PresetAgentScript = "agent-script"
)

// Catalog is the process-wide, read-only preset registry. Built once at
// startup; needs no synchronization afterwards.
type Catalog struct {
	presets map[string]Preset
}

// NewCatalog builds the built-in presets.
//
// The standard preset permits millisecond-resolution wall-clock reads
// (Date / Date.now). This is a deliberate, accepted residual risk: scripts
// routinely timestamp their own output, and a millisecond clock is too
// coarse for the cache-probing side channels the timing rule exists to
// block. Strict carves no such exception.
func NewCatalog() *Catalog {
	strict := NewPreset(PresetStrict,
		"deny all reflective, meta-programming, and timing APIs",
		NewDisallowedIdentifierRule(baseDisallowedIdentifiers()),
		NewGlobalAccessRule(),
		NewPrototypeRule(),
		NewTimingRule(false),
	)
	standard := NewPreset(PresetStandard,
		"deny escape-relevant APIs; permit coarse wall-clock reads",
		NewDisallowedIdentifierRule(baseDisallowedIdentifiers()),
		NewGlobalAccessRule(),
		NewPrototypeRule(),
		NewTimingRule(true),
	)
	agent := NewPreset(PresetAgentScript,
		"standard plus reserved-prefix protection for bridge internals",
		NewDisallowedIdentifierRule(baseDisallowedIdentifiers()),
		NewGlobalAccessRule(),
		NewPrototypeRule(),
		NewTimingRule(true),
		NewReservedPrefixRule(),
	)

	return &Catalog{presets: map[string]Preset{
		strict.Name():   strict,
		standard.Name(): standard,
		agent.Name():    agent,
	}}
}

// Get returns the preset by name.
func (c *Catalog) Get(name string) (Preset, bool) {
	p, ok := c.presets[name]
	return p, ok
}

// Names returns all preset names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.presets))
	for n := range c.presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
