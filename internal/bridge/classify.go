package bridge

import (
	"context"
	"errors"
	"strings"

	"github.com/jkaninda/codecall/internal/pipeline"
)

// classify maps a delegation failure onto the closed code set. Typed
// causes win; message patterns are a fallback for errors that arrive from
// remote backends stripped of their Go types. First match in order.
func classify(err error) ErrorCode {
	var ve *pipeline.ValidationError
	switch {
	case errors.Is(err, ErrSelfReference):
		return CodeAccessDenied
	case errors.Is(err, pipeline.ErrToolNotFound):
		return CodeNotFound
	case errors.Is(err, pipeline.ErrToolDenied):
		return CodeAccessDenied
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return CodeTimeout
	case errors.As(err, &ve):
		return CodeValidation
	}

	msg := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		for _, needle := range p.needles {
			if strings.Contains(msg, needle) {
				return p.code
			}
		}
	}
	return CodeExecution
}

// messagePatterns is ordered: more specific classes first, so "tool not
// found" never falls through to a broader match.
var messagePatterns = []struct {
	code    ErrorCode
	needles []string
}{
	{CodeTimeout, []string{"timed out", "timeout", "deadline exceeded"}},
	{CodeNotFound, []string{"not found", "unknown tool", "no such tool"}},
	{CodeAccessDenied, []string{"denied", "unauthorized", "forbidden", "not allowed"}},
	{CodeValidation, []string{"validation", "invalid input", "invalid argument", "missing required"}},
}
