package sandbox

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jkaninda/codecall/internal/bridge"
	"github.com/jkaninda/codecall/internal/enclave"
	"github.com/jkaninda/codecall/internal/rules"
	"github.com/jkaninda/codecall/internal/validator"
)

// --- mapValidation ---

func TestMapValidation_RuleIssues(t *testing.T) {
	out := mapValidation(validator.Result{
		Issues: []rules.Issue{
			{Code: rules.CodeDisallowedIdentifier, Message: "eval", Line: 1},
			{Code: rules.CodePrototypeManipulation, Message: "__proto__", Line: 2},
		},
	})
	if out.Status != StatusIllegalAccess {
		t.Fatalf("Status = %s, want %s", out.Status, StatusIllegalAccess)
	}
	if len(out.Issues) != 2 {
		t.Fatalf("issues must be carried through, got %d", len(out.Issues))
	}
}

func TestMapValidation_SyntaxIssueWins(t *testing.T) {
	out := mapValidation(validator.Result{
		Issues: []rules.Issue{{Code: rules.CodeSyntax, Message: "unexpected token", Line: 3}},
	})
	if out.Status != StatusSyntaxError {
		t.Fatalf("Status = %s, want %s", out.Status, StatusSyntaxError)
	}
}

// --- mapResult ---

func TestMapResult_TimeoutWinsOverEverything(t *testing.T) {
	out := mapResult(enclave.Result{
		TimedOut: true,
		Budget:   5 * time.Second,
		Fault:    &enclave.Fault{Kind: enclave.FaultTimeout, Message: "execution timed out after 5s"},
	})
	if out.Status != StatusTimeout {
		t.Fatalf("Status = %s, want %s", out.Status, StatusTimeout)
	}
	if out.Value != nil {
		t.Error("timeout outcome must carry no value")
	}
	if out.Error != "execution exceeded its time budget of 5s" {
		t.Fatalf("Error = %q, want the configured budget surfaced", out.Error)
	}
}

func TestMapResult_TimeoutWithoutBudgetStillMaps(t *testing.T) {
	out := mapResult(enclave.Result{TimedOut: true})
	if out.Status != StatusTimeout {
		t.Fatalf("Status = %s, want %s", out.Status, StatusTimeout)
	}
	if out.Error != "execution exceeded its time budget" {
		t.Fatalf("Error = %q", out.Error)
	}
}

func TestMapResult_Success(t *testing.T) {
	out := mapResult(enclave.Result{Success: true, Value: int64(5)})
	if out.Status != StatusOK || out.Value != int64(5) {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestMapResult_SyntaxFault(t *testing.T) {
	out := mapResult(enclave.Result{
		Fault: &enclave.Fault{Kind: enclave.FaultSyntax, Message: "script.js: Unexpected token (1:7)"},
	})
	if out.Status != StatusSyntaxError {
		t.Fatalf("Status = %s, want %s", out.Status, StatusSyntaxError)
	}
}

func TestMapResult_SelfReferenceFault(t *testing.T) {
	tce := &bridge.ToolCallError{
		ToolName: bridge.EntryToolName,
		Code:     bridge.CodeAccessDenied,
		Message:  "tools cannot invoke the script execution surface",
		Err:      bridge.ErrSelfReference,
	}
	out := mapResult(enclave.Result{
		Fault: &enclave.Fault{Kind: enclave.FaultRuntime, Message: tce.Message, Cause: tce},
	})
	if out.Status != StatusIllegalAccess {
		t.Fatalf("Status = %s, want %s", out.Status, StatusIllegalAccess)
	}
	if out.ToolError != nil {
		t.Error("self-reference is an access violation, not a tool failure")
	}
}

func TestMapResult_ToolFault(t *testing.T) {
	tce := &bridge.ToolCallError{
		ToolName: "web_search",
		Code:     bridge.CodeNotFound,
		Message:  "tool not found: web_search",
		Input:    map[string]any{"query": "weather"},
		Err:      errors.New("tool not found: web_search"),
	}
	out := mapResult(enclave.Result{
		Fault: &enclave.Fault{Kind: enclave.FaultRuntime, Message: tce.Message, Cause: tce},
	})
	if out.Status != StatusToolError {
		t.Fatalf("Status = %s, want %s", out.Status, StatusToolError)
	}
	if out.ToolError == nil || out.ToolError.ToolName != "web_search" || out.ToolError.Code != "not_found" {
		t.Fatalf("ToolError = %+v", out.ToolError)
	}
	if !reflect.DeepEqual(out.ToolError.Input, map[string]any{"query": "weather"}) {
		t.Fatalf("ToolError.Input = %#v, want the script's own argument object", out.ToolError.Input)
	}
}

func TestMapResult_RuntimeFaultIsSanitized(t *testing.T) {
	out := mapResult(enclave.Result{
		Fault: &enclave.Fault{
			Kind:    enclave.FaultRuntime,
			Message: "ReferenceError at /home/svc/codecall/run.js: x is not defined",
			Stack:   "stack trace with host details",
		},
	})
	if out.Status != StatusRuntimeError {
		t.Fatalf("Status = %s, want %s", out.Status, StatusRuntimeError)
	}
	if out.Error != "ReferenceError at [path]: x is not defined" {
		t.Fatalf("Error = %q, want host path redacted", out.Error)
	}
}

func TestMapResult_NilFault(t *testing.T) {
	out := mapResult(enclave.Result{})
	if out.Status != StatusRuntimeError {
		t.Fatalf("Status = %s, want %s", out.Status, StatusRuntimeError)
	}
}
