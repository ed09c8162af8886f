package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jkaninda/codecall/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addTool() *pipeline.Func {
	return &pipeline.Func{
		ToolName: "add",
		Desc:     "adds two numbers",
		Fn: func(_ context.Context, input map[string]any) (any, error) {
			a, _ := input["a"].(int64)
			b, _ := input["b"].(int64)
			return a + b, nil
		},
	}
}

func failingTool(name string, err error) *pipeline.Func {
	return &pipeline.Func{
		ToolName: name,
		Fn: func(context.Context, map[string]any) (any, error) {
			return nil, err
		},
	}
}

func asToolCallError(t *testing.T, err error) *ToolCallError {
	t.Helper()
	var tce *ToolCallError
	if !errors.As(err, &tce) {
		t.Fatalf("error is %T, want *ToolCallError", err)
	}
	return tce
}

// --- Check sequence ---

func TestCallTool_SelfReferenceBlocked(t *testing.T) {
	reg := pipeline.NewRegistry()
	// Allowlisting the entry tool must change nothing.
	b := New(reg, Options{Allowlist: []string{EntryToolName}, Logger: discardLogger()})

	_, err := b.CallTool(context.Background(), EntryToolName, nil)
	tce := asToolCallError(t, err)
	if tce.Code != CodeAccessDenied {
		t.Errorf("code = %s, want %s", tce.Code, CodeAccessDenied)
	}
	if !errors.Is(err, ErrSelfReference) {
		t.Error("self-reference must be identifiable via errors.Is")
	}
}

func TestCallTool_EmptyAllowlistDeniesEverything(t *testing.T) {
	reg := pipeline.NewRegistry()
	reg.Register(addTool())
	b := New(reg, Options{Logger: discardLogger()})

	_, err := b.CallTool(context.Background(), "add", map[string]any{"a": int64(1), "b": int64(2)})
	tce := asToolCallError(t, err)
	if tce.Code != CodeAccessDenied {
		t.Errorf("code = %s, want %s", tce.Code, CodeAccessDenied)
	}
	if !errors.Is(err, pipeline.ErrToolDenied) {
		t.Error("denial must be identifiable via errors.Is")
	}
}

func TestCallTool_AllowlistedToolRuns(t *testing.T) {
	reg := pipeline.NewRegistry()
	reg.Register(addTool())
	b := New(reg, Options{Allowlist: []string{"add"}, Logger: discardLogger()})

	got, err := b.CallTool(context.Background(), "add", map[string]any{"a": int64(2), "b": int64(3)})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if got != int64(5) {
		t.Fatalf("result = %v, want 5", got)
	}
}

func TestCallTool_AllowlistedButUnregistered(t *testing.T) {
	b := New(pipeline.NewRegistry(), Options{Allowlist: []string{"ghost"}, Logger: discardLogger()})

	_, err := b.CallTool(context.Background(), "ghost", nil)
	tce := asToolCallError(t, err)
	if tce.Code != CodeNotFound {
		t.Errorf("code = %s, want %s", tce.Code, CodeNotFound)
	}
	if !errors.Is(err, pipeline.ErrToolNotFound) {
		t.Error("not-found must be identifiable via errors.Is")
	}
}

// --- Sanitization on failure ---

func TestCallTool_FailureMessageIsSanitized(t *testing.T) {
	raw := errors.New("open /var/lib/secrets/key.pem: permission problem\nsecond line with detail")
	reg := pipeline.NewRegistry()
	reg.Register(failingTool("leaky", raw))
	b := New(reg, Options{Allowlist: []string{"leaky"}, Logger: discardLogger()})

	_, err := b.CallTool(context.Background(), "leaky", nil)
	tce := asToolCallError(t, err)
	if tce.Message != "open [path]: permission problem" {
		t.Errorf("Message = %q, want path redacted and first line only", tce.Message)
	}
	if !errors.Is(err, raw) {
		t.Error("raw cause must stay reachable host-side")
	}
}

func TestCallTool_FailureCarriesInput(t *testing.T) {
	reg := pipeline.NewRegistry()
	reg.Register(failingTool("flaky", errors.New("backend unavailable")))
	b := New(reg, Options{Allowlist: []string{"flaky"}, Logger: discardLogger()})

	input := map[string]any{"id": int64(7)}
	_, err := b.CallTool(context.Background(), "flaky", input)
	tce := asToolCallError(t, err)
	if tce.Input == nil || tce.Input["id"] != int64(7) {
		t.Fatalf("Input = %#v, want the call's argument object", tce.Input)
	}

	// Denied calls carry it too.
	_, err = b.CallTool(context.Background(), "other", input)
	if tce = asToolCallError(t, err); tce.Input["id"] != int64(7) {
		t.Fatalf("denied-call Input = %#v", tce.Input)
	}
}

// --- Observer ---

func TestCallTool_ObserverSeesSuccessAndFailure(t *testing.T) {
	reg := pipeline.NewRegistry()
	reg.Register(addTool())
	var records []CallRecord
	b := New(reg, Options{
		Allowlist: []string{"add"},
		Observer:  func(r CallRecord) { records = append(records, r) },
		Logger:    discardLogger(),
	})

	if _, err := b.CallTool(context.Background(), "add", map[string]any{"a": int64(1), "b": int64(1)}); err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	_, _ = b.CallTool(context.Background(), "denied", nil)

	if len(records) != 2 {
		t.Fatalf("observer saw %d records, want 2", len(records))
	}
	if records[0].Fault != nil {
		t.Errorf("success record carries a fault: %+v", records[0].Fault)
	}
	if records[1].Fault == nil || records[1].Fault.Code != CodeAccessDenied {
		t.Errorf("failure record = %+v", records[1])
	}
}

// --- ToolCallError shape ---

func TestToolCallError_Interface(t *testing.T) {
	cause := errors.New("root cause")
	tce := &ToolCallError{ToolName: "t", Code: CodeExecution, Message: "it broke", Err: cause}

	if tce.Error() != "it broke" {
		t.Errorf("Error() = %q", tce.Error())
	}
	if tce.ErrorCode() != "execution" || tce.Tool() != "t" {
		t.Errorf("code/tool = %q/%q", tce.ErrorCode(), tce.Tool())
	}
	if !errors.Is(tce, cause) {
		t.Error("Unwrap must expose the cause")
	}
}
