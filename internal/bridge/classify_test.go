package bridge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jkaninda/codecall/internal/pipeline"
)

func TestClassify_TypedCauses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"self reference", ErrSelfReference, CodeAccessDenied},
		{"wrapped self reference", fmt.Errorf("call rejected: %w", ErrSelfReference), CodeAccessDenied},
		{"not found", fmt.Errorf("%w: web_search", pipeline.ErrToolNotFound), CodeNotFound},
		{"denied", fmt.Errorf("%w: web_search", pipeline.ErrToolDenied), CodeAccessDenied},
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"canceled", context.Canceled, CodeTimeout},
		{"validation", &pipeline.ValidationError{ToolName: "t", Reason: "bad"}, CodeValidation},
	}
	for _, tc := range cases {
		if got := classify(tc.err); got != tc.want {
			t.Errorf("%s: classify = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassify_MessagePatterns(t *testing.T) {
	cases := []struct {
		msg  string
		want ErrorCode
	}{
		{"request timed out after 30s", CodeTimeout},
		{"upstream deadline exceeded", CodeTimeout},
		{"tool not found on server", CodeNotFound},
		{"unknown tool: frobnicate", CodeNotFound},
		{"access denied by policy", CodeAccessDenied},
		{"401 unauthorized", CodeAccessDenied},
		{"missing required field: query", CodeValidation},
		{"invalid argument count", CodeValidation},
		{"connection reset by peer", CodeExecution},
		{"", CodeExecution},
	}
	for _, tc := range cases {
		if got := classify(errors.New(tc.msg)); got != tc.want {
			t.Errorf("%q: classify = %s, want %s", tc.msg, got, tc.want)
		}
	}
}

func TestClassify_TimeoutBeatsBroaderPatterns(t *testing.T) {
	// A message matching several classes resolves to the most specific one.
	if got := classify(errors.New("validation timed out")); got != CodeTimeout {
		t.Fatalf("classify = %s, want %s", got, CodeTimeout)
	}
}
