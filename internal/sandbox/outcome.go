package sandbox

import (
	"errors"
	"fmt"

	"github.com/jkaninda/codecall/internal/bridge"
	"github.com/jkaninda/codecall/internal/enclave"
	"github.com/jkaninda/codecall/internal/rules"
	"github.com/jkaninda/codecall/internal/validator"
)

// Status is the closed set of terminal outcome states. Every execution
// ends in exactly one of these.
type Status string

const (
	StatusOK            Status = "ok"
	StatusTimeout       Status = "timeout"
	StatusIllegalAccess Status = "illegal_access"
	StatusToolError     Status = "tool_error"
	StatusRuntimeError  Status = "runtime_error"
	StatusSyntaxError   Status = "syntax_error"
)

// ToolErrorDetail identifies the delegated call behind a tool_error
// outcome. Message is sanitized; Input is the argument object the script
// itself passed, so echoing it back reveals nothing host-side.
type ToolErrorDetail struct {
	ToolName string         `json:"tool_name"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Input    map[string]any `json:"input,omitempty"`
}

// Outcome is the agent-facing result of a run. It is the only shape that
// crosses back to the caller, and everything in it is safe to forward:
// stacks and host paths have already been stripped.
type Outcome struct {
	ExecutionID string           `json:"execution_id"`
	Status      Status           `json:"status"`
	Value       any              `json:"value,omitempty"`
	Error       string           `json:"error,omitempty"`
	Issues      []rules.Issue    `json:"issues,omitempty"`
	ToolError   *ToolErrorDetail `json:"tool_error,omitempty"`
	Logs        []string         `json:"logs,omitempty"`
	DurationMS  int64            `json:"duration_ms"`
}

// mapValidation turns a failed validation into an outcome status. Pure
// parse failures surface as syntax_error; everything the rule engine
// flags is a structural violation and maps to illegal_access.
func mapValidation(result validator.Result) Outcome {
	status := StatusIllegalAccess
	msg := "script validation failed"
	for _, issue := range result.Issues {
		if issue.Code == rules.CodeSyntax {
			status = StatusSyntaxError
			msg = "script could not be parsed"
			break
		}
	}
	return Outcome{
		Status: status,
		Error:  msg,
		Issues: result.Issues,
	}
}

// mapResult turns an enclave result into an outcome. Precedence: timeout
// wins over everything, then success, then fault attribution. Bridge
// faults are recognized by their Go type on the fault's cause, never by
// message inspection.
func mapResult(res enclave.Result) Outcome {
	if res.TimedOut {
		msg := "execution exceeded its time budget"
		if res.Budget > 0 {
			msg = fmt.Sprintf("execution exceeded its time budget of %s", res.Budget)
		}
		return Outcome{
			Status: StatusTimeout,
			Error:  msg,
		}
	}
	if res.Success {
		return Outcome{Status: StatusOK, Value: res.Value}
	}

	fault := res.Fault
	if fault == nil {
		return Outcome{Status: StatusRuntimeError, Error: "execution failed"}
	}
	if fault.Kind == enclave.FaultSyntax {
		return Outcome{
			Status: StatusSyntaxError,
			Error:  bridge.Sanitize(fault.Message),
		}
	}

	var tce *bridge.ToolCallError
	if fault.Cause != nil && errors.As(fault.Cause, &tce) {
		if errors.Is(tce.Err, bridge.ErrSelfReference) {
			return Outcome{
				Status: StatusIllegalAccess,
				Error:  tce.Message,
			}
		}
		return Outcome{
			Status: StatusToolError,
			Error:  tce.Message,
			ToolError: &ToolErrorDetail{
				ToolName: tce.ToolName,
				Code:     string(tce.Code),
				Message:  tce.Message,
				Input:    tce.Input,
			},
		}
	}

	return Outcome{
		Status: StatusRuntimeError,
		Error:  bridge.Sanitize(fault.Message),
	}
}
