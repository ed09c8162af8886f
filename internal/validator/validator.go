// Package validator statically checks script source against a rule preset
// before the enclave will run it. It parses the source with the same
// parser the runtime uses, walks every node and identifier reference in a
// single pass, and collects every issue from every active rule. It never
// executes code and never errors for well-formed-but-rejected input.
package validator

import (
	"errors"
	"fmt"

	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"

	"github.com/jkaninda/codecall/internal/rules"
	"github.com/jkaninda/codecall/internal/script"
)

// Result is the verdict for one (source, preset) pair. Valid is false as
// soon as any rule reported an issue. Results are never shared between
// presets: the same source can pass standard and fail strict.
type Result struct {
	Valid  bool          `json:"valid"`
	Issues []rules.Issue `json:"issues,omitempty"`
}

// Validate parses source and applies every rule in the preset to every
// node of the resulting tree. Parse failures short-circuit into a single
// syntax issue carrying the parser's position. Pure and re-entrant: no
// I/O, no shared state, deterministic for identical inputs.
//
// The source is validated in the same wrapped form the enclave executes,
// so validator and runtime always see one identical parse.
func Validate(source string, preset rules.Preset) Result {
	wrapped := script.Wrap(source)

	prog, err := parser.ParseFile(nil, "script.js", wrapped, 0)
	if err != nil {
		return Result{Valid: false, Issues: []rules.Issue{syntaxIssue(err)}}
	}

	position := func(idx file.Idx) file.Position {
		pos := prog.File.Position(int(idx) - prog.File.Base())
		// The wrapper occupies line 1; report positions in the caller's
		// own source.
		if pos.Line > 1 {
			pos.Line--
		}
		return pos
	}

	w := &walker{
		rules: preset.Rules(),
		ctx:   rules.NewContext(position),
	}
	w.walkProgram(prog)

	return Result{Valid: len(w.issues) == 0, Issues: w.issues}
}

// syntaxIssue converts a parser error into the single syntax issue the
// result carries. Parser positions are adjusted for the wrapper line the
// same way rule positions are.
func syntaxIssue(err error) rules.Issue {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		line := first.Position.Line
		if line > 1 {
			line--
		}
		return rules.Issue{
			Code:    rules.CodeSyntax,
			Message: first.Message,
			Line:    line,
			Column:  first.Position.Column,
		}
	}
	return rules.Issue{Code: rules.CodeSyntax, Message: fmt.Sprintf("parse error: %v", err)}
}
