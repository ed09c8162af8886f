// Package enclave runs validator-approved scripts inside an isolated
// JavaScript runtime; each execution gets its own engine instance. The
// only way code inside can affect anything outside is through the
// bindings explicitly present in the request's Environment.
//
// Faults are reported host-internally here, stack traces included.
// Sanitization is deliberately not this package's job: it happens in
// exactly one place, the outcome mapper, so the enclave can always tell
// the truth.
package enclave

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dop251/goja"

	"github.com/jkaninda/codecall/internal/script"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultMaxLogLines = 256
	defaultMaxLogBytes = 64 << 10 // 64 KB across all lines
)

// errBudgetExceeded is the interrupt value armed on the runtime when the
// wall-clock budget elapses.
var errBudgetExceeded = errors.New("execution time budget exceeded")

// hardenProgram runs against every fresh runtime before any script code.
// Deleting the Function global leaves the Function intrinsic reachable
// through the constructor chain of any function value, and a computed
// property key ("constr" + "uctor") walks that chain without a single
// banned identifier in the source. So the chain is cut at the runtime
// layer: `constructor` on each function prototype (plain, generator,
// async, async generator) is frozen to undefined before the script sees
// the world.
var hardenProgram = goja.MustCompile("harden.js", `(function () {
	"use strict";
	var sever = function (proto) {
		Object.defineProperty(proto, "constructor", {
			value: undefined,
			writable: false,
			enumerable: false,
			configurable: false,
		});
	};
	sever(Object.getPrototypeOf(function () {}));
	sever(Object.getPrototypeOf(function* () {}));
	sever(Object.getPrototypeOf(async function () {}));
	sever(Object.getPrototypeOf(async function* () {}));
})();`, true)

// ToolCaller is the capability the enclave exposes to scripts as
// `callTool`. The bridge implements it; the enclave never inspects what
// is behind it.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, input map[string]any) (any, error)
}

// ToolFault is implemented by tool-call errors that carry a sanitized
// classification. The enclave uses it to shape the failure value a script
// sees; errors without it default to the generic execution code.
type ToolFault interface {
	error
	ErrorCode() string
	Tool() string
}

// Environment is the capability object injected into the isolated
// context. Only the bindings present here exist inside the sandbox,
// beyond the minimal builtins the runtime retains.
type Environment struct {
	// Tools backs the `callTool` binding. Nil = no binding.
	Tools ToolCaller

	// Notifier backs the `emit(event, payload)` binding for structured
	// progress notifications. Nil = no binding.
	Notifier func(event string, payload map[string]any)
}

// Request describes one execution. Constructed per call, never reused.
//
// Precondition: Source has already passed validation for the caller's
// chosen preset. The enclave does not re-validate; a caller that skips
// validation is misusing the API.
type Request struct {
	Source  string
	Env     Environment
	Timeout time.Duration // Zero = enclave default.
}

// FaultKind classifies a host-internal fault.
type FaultKind string

const (
	FaultSyntax  FaultKind = "syntax"
	FaultRuntime FaultKind = "runtime"
	FaultTimeout FaultKind = "timeout"
)

// Fault is the host-internal fault descriptor. Stack and Cause never
// cross to the agent; the outcome mapper decides what survives.
type Fault struct {
	Kind    FaultKind
	Name    string // JS error name ("TypeError", ...), if any.
	Message string
	Stack   string // Host-side only.
	Cause   error  // Underlying Go error for faults thrown by bindings.
}

// Result is produced exactly once per Request. Logs are populated on
// every path, including timeout, so partial diagnostics survive a failed
// run. On timeout no partial value is trusted: Value is always nil.
type Result struct {
	Success  bool
	Value    any
	Fault    *Fault
	TimedOut bool
	Budget   time.Duration // Effective wall-clock limit the run was given.
	Logs     []string
}

// Config configures the enclave.
type Config struct {
	DefaultTimeout time.Duration
	MaxLogLines    int
	MaxLogBytes    int
}

// Enclave executes scripts in isolated runtimes. Safe for concurrent use:
// every Execute call builds its own runtime and shares nothing with other
// executions.
type Enclave struct {
	defaultTimeout time.Duration
	maxLogLines    int
	maxLogBytes    int
	logger         *slog.Logger
}

// New creates an enclave.
func New(cfg Config, logger *slog.Logger) *Enclave {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.MaxLogLines <= 0 {
		cfg.MaxLogLines = defaultMaxLogLines
	}
	if cfg.MaxLogBytes <= 0 {
		cfg.MaxLogBytes = defaultMaxLogBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enclave{
		defaultTimeout: cfg.DefaultTimeout,
		maxLogLines:    cfg.MaxLogLines,
		maxLogBytes:    cfg.MaxLogBytes,
		logger:         logger,
	}
}

// Execute runs the script to completion or until the wall-clock budget
// elapses, whichever comes first. The runtime is pre-empted via its
// interrupt mechanism: the script is adversarial and is never trusted to
// yield. The same deadline context is handed to every delegated tool
// call, so a timeout also aborts in-flight delegation.
//
// The runtime never attaches a debugger, so `debugger` statements that
// survive validation execute as no-ops.
func (e *Enclave) Execute(ctx context.Context, req Request) Result {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logs := newLogBuffer(e.maxLogLines, e.maxLogBytes)

	vm := goja.New()
	e.stripGlobals(vm)
	if _, err := vm.RunProgram(hardenProgram); err != nil {
		// Never runs a script on a runtime that is not fully hardened.
		return Result{
			Fault: &Fault{Kind: FaultRuntime, Message: "runtime hardening failed", Cause: err},
			Logs:  logs.Lines(),
		}
	}

	bindConsole(vm, logs)
	if req.Env.Tools != nil {
		bindCallTool(ctx, vm, req.Env.Tools)
	}
	if req.Env.Notifier != nil {
		bindEmit(vm, req.Env.Notifier)
	}

	prog, err := goja.Compile("script.js", script.Wrap(req.Source), true)
	if err != nil {
		return Result{
			Fault: &Fault{Kind: FaultSyntax, Message: err.Error()},
			Logs:  logs.Lines(),
		}
	}

	// Deterministic abort: when the deadline passes, the interpreter is
	// interrupted at its next instruction boundary.
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(errBudgetExceeded)
	})
	defer stop()

	start := time.Now()
	value, runErr := vm.RunProgram(prog)
	duration := time.Since(start)

	res := e.interpretRun(ctx, value, runErr, timeout)
	res.Budget = timeout
	res.Logs = logs.Lines()

	e.logger.Debug("enclave execution finished",
		slog.Bool("success", res.Success),
		slog.Bool("timed_out", res.TimedOut),
		slog.Duration("duration", duration),
		slog.Int("log_lines", len(res.Logs)),
	)
	return res
}

// interpretRun turns the raw engine outcome into a Result. The entry
// wrapper makes every run an async function call, so a successful run
// yields a promise that has already settled by the time the job queue
// drained.
func (e *Enclave) interpretRun(ctx context.Context, value goja.Value, runErr error, timeout time.Duration) Result {
	timedOut := ctx.Err() == context.DeadlineExceeded

	if runErr != nil {
		if timedOut {
			return Result{
				TimedOut: true,
				Fault:    &Fault{Kind: FaultTimeout, Message: "execution timed out after " + timeout.String()},
			}
		}
		var ex *goja.Exception
		if errors.As(runErr, &ex) {
			f := faultFromValue(ex.Value())
			f.Stack = ex.String()
			return Result{Fault: f}
		}
		return Result{Fault: &Fault{Kind: FaultRuntime, Message: runErr.Error()}}
	}

	if p, ok := value.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			if timedOut {
				return Result{TimedOut: true, Fault: &Fault{Kind: FaultTimeout,
					Message: "execution timed out after " + timeout.String()}}
			}
			return Result{Success: true, Value: exportResult(p.Result())}
		case goja.PromiseStateRejected:
			f := faultFromValue(p.Result())
			if timedOut {
				return Result{TimedOut: true, Fault: &Fault{Kind: FaultTimeout,
					Message: f.Message, Cause: f.Cause}}
			}
			return Result{Fault: f}
		default:
			// The script awaited something that can never resolve.
			return Result{Fault: &Fault{Kind: FaultRuntime, Message: "script did not run to completion"}}
		}
	}

	if timedOut {
		return Result{TimedOut: true, Fault: &Fault{Kind: FaultTimeout,
			Message: "execution timed out after " + timeout.String()}}
	}
	return Result{Success: true, Value: exportResult(value)}
}

// stripGlobals deletes the ambient bindings the validator's rule sets
// assume are absent. The two lists are the same list: script.RemovedGlobals.
func (e *Enclave) stripGlobals(vm *goja.Runtime) {
	global := vm.GlobalObject()
	for _, name := range script.RemovedGlobals {
		if err := global.Delete(name); err != nil {
			e.logger.Warn("failed to remove global binding",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
		}
	}
}

func exportResult(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// faultFromValue builds a host-internal fault from a thrown JS value.
// Bindings that throw Go errors surface them on the object's `value`
// property; it is preserved as Cause so the outcome mapper can attribute
// the fault without string matching.
func faultFromValue(v goja.Value) *Fault {
	f := &Fault{Kind: FaultRuntime}
	if v == nil {
		f.Message = "unknown fault"
		return f
	}
	f.Message = v.String()

	obj, ok := v.(*goja.Object)
	if !ok {
		return f
	}
	if nameVal := obj.Get("name"); nameVal != nil && !goja.IsUndefined(nameVal) {
		f.Name = nameVal.String()
	}
	if msgVal := obj.Get("message"); msgVal != nil && !goja.IsUndefined(msgVal) {
		f.Message = msgVal.String()
	}
	if stackVal := obj.Get("stack"); stackVal != nil && !goja.IsUndefined(stackVal) {
		f.Stack = stackVal.String()
	}
	if causeVal := obj.Get("value"); causeVal != nil && !goja.IsUndefined(causeVal) {
		if cause, isErr := causeVal.Export().(error); isErr {
			f.Cause = cause
		}
	}
	return f
}
