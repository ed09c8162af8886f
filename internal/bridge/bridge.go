// Package bridge is the single boundary between a running script and the
// tool pipeline. Every delegated call passes the same fixed sequence of
// checks: self-reference block first, allowlist second, delegation last.
// Failures come back as ToolCallError values with a closed set of codes
// and sanitized messages; raw causes stay on the host side for the
// outcome mapper and the audit trail.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkaninda/codecall/internal/pipeline"
)

// EntryToolName is the name under which script execution itself is
// exposed to agents. The bridge refuses to delegate to it under any
// configuration: recursive execution is structurally impossible.
const EntryToolName = "codecall:execute"

// ErrSelfReference marks an attempt by a script to invoke the execution
// surface it is running inside.
var ErrSelfReference = errors.New("self-referential tool call blocked")

// ErrorCode is the closed classification for failed tool calls. Nothing
// outside this set ever reaches a script.
type ErrorCode string

const (
	CodeValidation   ErrorCode = "validation"
	CodeTimeout      ErrorCode = "timeout"
	CodeNotFound     ErrorCode = "not_found"
	CodeAccessDenied ErrorCode = "access_denied"
	CodeExecution    ErrorCode = "execution"
)

// ToolCallError is the only error shape the bridge returns. Message is
// already sanitized; Err retains the unsanitized cause and never crosses
// the boundary. Input is the script's own argument object, echoed back so
// the outcome can identify the failed call.
type ToolCallError struct {
	ToolName string
	Code     ErrorCode
	Message  string
	Input    map[string]any
	Err      error
}

func (e *ToolCallError) Error() string { return e.Message }

// Unwrap keeps errors.Is/As working against the underlying cause.
func (e *ToolCallError) Unwrap() error { return e.Err }

// ErrorCode and Tool satisfy the enclave's ToolFault interface.
func (e *ToolCallError) ErrorCode() string { return string(e.Code) }
func (e *ToolCallError) Tool() string      { return e.ToolName }

// CallRecord describes one delegated call for observers (audit, metrics).
// Fault is nil on success.
type CallRecord struct {
	ToolName string
	Input    map[string]any
	Duration time.Duration
	Fault    *ToolCallError
}

// Bridge mediates all tool calls for one execution. Construct one per
// execution; the allowlist and identity are fixed for its lifetime.
type Bridge struct {
	pipeline pipeline.Pipeline
	allowed  map[string]struct{}
	auth     pipeline.AuthContext
	observer func(CallRecord)
	logger   *slog.Logger
}

// Options configures a Bridge.
type Options struct {
	// Allowlist names the tools this execution may call. Empty list
	// denies everything; there is no wildcard.
	Allowlist []string
	// Auth identifies the execution to tools and observers.
	Auth pipeline.AuthContext
	// Observer, if set, receives a record of every call attempt,
	// including those the self-reference block rejects. Called
	// synchronously.
	Observer func(CallRecord)
	Logger   *slog.Logger
}

// New creates a bridge over the given pipeline.
func New(p pipeline.Pipeline, opts Options) *Bridge {
	allowed := make(map[string]struct{}, len(opts.Allowlist))
	for _, name := range opts.Allowlist {
		allowed[name] = struct{}{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		pipeline: p,
		allowed:  allowed,
		auth:     opts.Auth,
		observer: opts.Observer,
		logger:   logger,
	}
}

// CallTool runs the fixed check sequence and delegates. The order is not
// configurable: the self-reference block applies before the allowlist, so
// listing the entry tool in the allowlist changes nothing.
func (b *Bridge) CallTool(ctx context.Context, name string, input map[string]any) (any, error) {
	if name == EntryToolName {
		return nil, b.fail(name, input, 0, &ToolCallError{
			ToolName: name,
			Code:     CodeAccessDenied,
			Message:  "tools cannot invoke the script execution surface",
			Input:    input,
			Err:      ErrSelfReference,
		})
	}

	if _, ok := b.allowed[name]; !ok {
		return nil, b.fail(name, input, 0, &ToolCallError{
			ToolName: name,
			Code:     CodeAccessDenied,
			Message:  fmt.Sprintf("tool %q is not in this execution's allowlist", name),
			Input:    input,
			Err:      fmt.Errorf("%w: %s", pipeline.ErrToolDenied, name),
		})
	}

	start := time.Now()
	result, err := b.pipeline.Invoke(ctx, name, input, b.auth)
	duration := time.Since(start)
	if err != nil {
		code := classify(err)
		return nil, b.fail(name, input, duration, &ToolCallError{
			ToolName: name,
			Code:     code,
			Message:  Sanitize(err.Error()),
			Input:    input,
			Err:      err,
		})
	}

	b.logger.DebugContext(ctx, "tool call succeeded",
		slog.String("tool", name),
		slog.Duration("duration", duration),
		slog.String("execution_id", b.auth.ExecutionID),
	)
	if b.observer != nil {
		b.observer(CallRecord{ToolName: name, Input: input, Duration: duration})
	}
	return result, nil
}

func (b *Bridge) fail(name string, input map[string]any, d time.Duration, tce *ToolCallError) *ToolCallError {
	b.logger.Warn("tool call failed",
		slog.String("tool", name),
		slog.String("code", string(tce.Code)),
		slog.String("error", tce.Message),
		slog.String("execution_id", b.auth.ExecutionID),
	)
	if b.observer != nil {
		b.observer(CallRecord{ToolName: name, Input: input, Duration: d, Fault: tce})
	}
	return tce
}
