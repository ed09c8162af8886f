// Package script holds the constants the validator and the enclave must
// agree on: how agent scripts are wrapped into their entry function, which
// identifier prefixes are reserved for trusted bridge internals, and which
// globals the enclave strips from the runtime. Both layers import this one
// package so the static rules and the runtime environment cannot drift.
package script

import "strings"

// EntryFunctionName is the single reserved-prefix identifier an agent
// script is allowed to carry: the wrapper names the entry function with it.
const EntryFunctionName = "__codecall_main"

// ReservedPrefixes mark identifiers the bridge uses internally for trusted
// entry points. The agent-script preset rejects any declaration or
// assignment whose target starts with one of these, except the exact
// EntryFunctionName.
var ReservedPrefixes = []string{"__codecall", "__host"}

// RemovedGlobals are the ambient bindings the enclave deletes from every
// fresh runtime before a script runs. The validator's rule sets assume
// these names are absent at runtime; the static rules still reject direct
// references so a hostile script fails loudly at validation instead of
// with an opaque runtime error.
var RemovedGlobals = []string{
	"eval",
	"Function",
	"Reflect",
	"Proxy",
	"globalThis",
	"SharedArrayBuffer",
	"Atomics",
	"WeakRef",
	"FinalizationRegistry",
}

// Wrap embeds agent script source into the async entry function the
// enclave executes. Top-level return and await are legal inside the
// wrapper body, which is why the validator parses the wrapped form too:
// one grammar, one parser, both layers.
func Wrap(source string) string {
	var b strings.Builder
	b.Grow(len(source) + 64)
	b.WriteString("(async function ")
	b.WriteString(EntryFunctionName)
	b.WriteString("() {\n")
	b.WriteString(source)
	b.WriteString("\n})();")
	return b.String()
}

// IsReserved reports whether name uses a reserved prefix without being the
// whitelisted entry function name.
func IsReserved(name string) bool {
	if name == EntryFunctionName {
		return false
	}
	for _, p := range ReservedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
