package enclave

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func testEnclave(cfg Config) *Enclave {
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeTools records calls and replays a canned response.
type fakeTools struct {
	lastName  string
	lastInput map[string]any
	result    any
	err       error
}

func (f *fakeTools) CallTool(_ context.Context, name string, input map[string]any) (any, error) {
	f.lastName = name
	f.lastInput = input
	return f.result, f.err
}

// fakeFault is a tool error carrying a classification code.
type fakeFault struct {
	code string
	tool string
	msg  string
}

func (f *fakeFault) Error() string     { return f.msg }
func (f *fakeFault) ErrorCode() string { return f.code }
func (f *fakeFault) Tool() string      { return f.tool }

// --- Basic execution ---

func TestExecute_ReturnsValue(t *testing.T) {
	res := testEnclave(Config{}).Execute(context.Background(), Request{Source: "return 2 + 3;"})
	if !res.Success {
		t.Fatalf("expected success, got fault: %+v", res.Fault)
	}
	if res.Value != int64(5) {
		t.Fatalf("Value = %v (%T), want int64(5)", res.Value, res.Value)
	}
}

func TestExecute_NullAndUndefinedExportAsNil(t *testing.T) {
	for _, src := range []string{"return null;", "return undefined;", "return;"} {
		res := testEnclave(Config{}).Execute(context.Background(), Request{Source: src})
		if !res.Success {
			t.Fatalf("%q: expected success, got %+v", src, res.Fault)
		}
		if res.Value != nil {
			t.Errorf("%q: Value = %v, want nil", src, res.Value)
		}
	}
}

func TestExecute_ObjectResult(t *testing.T) {
	res := testEnclave(Config{}).Execute(context.Background(),
		Request{Source: "return {count: 2, tags: ['a', 'b']};"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Fault)
	}
	want := map[string]any{"count": int64(2), "tags": []any{"a", "b"}}
	if !reflect.DeepEqual(res.Value, want) {
		t.Fatalf("Value = %#v, want %#v", res.Value, want)
	}
}

// --- Faults ---

func TestExecute_SyntaxFault(t *testing.T) {
	res := testEnclave(Config{}).Execute(context.Background(), Request{Source: "return (("})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Fault == nil || res.Fault.Kind != FaultSyntax {
		t.Fatalf("Fault = %+v, want syntax kind", res.Fault)
	}
}

func TestExecute_ThrownError(t *testing.T) {
	res := testEnclave(Config{}).Execute(context.Background(),
		Request{Source: "throw new TypeError('boom');"})
	if res.Success {
		t.Fatal("expected failure")
	}
	f := res.Fault
	if f == nil || f.Kind != FaultRuntime {
		t.Fatalf("Fault = %+v, want runtime kind", f)
	}
	if f.Name != "TypeError" || f.Message != "boom" {
		t.Errorf("fault name/message = %q/%q, want TypeError/boom", f.Name, f.Message)
	}
	if f.Stack == "" {
		t.Error("runtime fault should carry a host-side stack")
	}
}

func TestExecute_PendingPromiseIsAFault(t *testing.T) {
	res := testEnclave(Config{}).Execute(context.Background(),
		Request{Source: "await new Promise(() => {}); return 1;"})
	if res.Success || res.TimedOut {
		t.Fatalf("expected plain failure, got %+v", res)
	}
	if res.Fault == nil || res.Fault.Message != "script did not run to completion" {
		t.Fatalf("Fault = %+v", res.Fault)
	}
}

// --- Timeout ---

func TestExecute_TimeoutInterruptsBusyLoop(t *testing.T) {
	start := time.Now()
	res := testEnclave(Config{}).Execute(context.Background(), Request{
		Source:  "console.log('entering'); for (;;) {}",
		Timeout: 100 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if !res.TimedOut {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if res.Success || res.Value != nil {
		t.Error("a timed-out run must not report success or a value")
	}
	if res.Fault == nil || res.Fault.Kind != FaultTimeout {
		t.Fatalf("Fault = %+v, want timeout kind", res.Fault)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("interrupt took %v, budget was 100ms", elapsed)
	}
	if len(res.Logs) != 1 || res.Logs[0] != "entering" {
		t.Errorf("partial logs must survive a timeout, got %v", res.Logs)
	}
}

// --- Stripped globals ---

func TestExecute_RemovedGlobalsAreAbsent(t *testing.T) {
	res := testEnclave(Config{}).Execute(context.Background(),
		Request{Source: "return [typeof eval, typeof Function, typeof Reflect, typeof Proxy];"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Fault)
	}
	got, ok := res.Value.([]any)
	if !ok {
		t.Fatalf("Value = %T, want []any", res.Value)
	}
	for i, v := range got {
		if v != "undefined" {
			t.Errorf("global %d is still present: typeof = %v", i, v)
		}
	}
}

func TestExecute_ConstructorRouteSevered(t *testing.T) {
	src := `
const routes = [
	({}).constructor.constructor,
	(function () {}).constructor,
	(function* () {}).constructor,
	(async function () {}).constructor,
	(async function* () {}).constructor,
];
return routes.map((r) => typeof r);`
	res := testEnclave(Config{}).Execute(context.Background(), Request{Source: src})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Fault)
	}
	got, ok := res.Value.([]any)
	if !ok || len(got) != 5 {
		t.Fatalf("Value = %#v, want five entries", res.Value)
	}
	for i, v := range got {
		if v != "undefined" {
			t.Errorf("constructor route %d still reaches a function intrinsic: typeof = %v", i, v)
		}
	}
}

func TestExecute_ComputedConstructorChainFaults(t *testing.T) {
	// A computed key carries no identifier a static rule could flag; the
	// runtime must stop the chain on its own.
	src := `
const k = "constr" + "uctor";
const o = {};
const F = o[k][k];
return F("return 1")();`
	res := testEnclave(Config{}).Execute(context.Background(), Request{Source: src})
	if res.Success {
		t.Fatalf("computed constructor chain produced a value: %v", res.Value)
	}
	if res.Fault == nil || res.Fault.Name != "TypeError" {
		t.Fatalf("Fault = %+v, want a TypeError from calling undefined", res.Fault)
	}
}

// --- Console ---

func TestExecute_ConsoleCapture(t *testing.T) {
	src := "console.log('plain', 1); console.warn('careful'); console.error('bad'); return 0;"
	res := testEnclave(Config{}).Execute(context.Background(), Request{Source: src})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Fault)
	}
	want := []string{"plain 1", "[warn] careful", "[error] bad"}
	if !reflect.DeepEqual(res.Logs, want) {
		t.Fatalf("Logs = %v, want %v", res.Logs, want)
	}
}

func TestExecute_LogLineCap(t *testing.T) {
	res := testEnclave(Config{MaxLogLines: 3}).Execute(context.Background(),
		Request{Source: "for (let i = 0; i < 10; i++) console.log('line', i); return 0;"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Fault)
	}
	if len(res.Logs) != 4 {
		t.Fatalf("Logs length = %d, want 3 lines plus marker", len(res.Logs))
	}
	if res.Logs[3] != "[output truncated]" {
		t.Fatalf("last line = %q, want truncation marker", res.Logs[3])
	}
}

func TestExecute_LogByteCap(t *testing.T) {
	res := testEnclave(Config{MaxLogBytes: 10}).Execute(context.Background(),
		Request{Source: "console.log('aaaa'); console.log('bbbbbbbbbb'); return 0;"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Fault)
	}
	want := []string{"aaaa", "[output truncated]"}
	if !reflect.DeepEqual(res.Logs, want) {
		t.Fatalf("Logs = %v, want %v", res.Logs, want)
	}
}

// --- callTool binding ---

func TestExecute_CallToolDelegates(t *testing.T) {
	tools := &fakeTools{result: int64(5)}
	res := testEnclave(Config{}).Execute(context.Background(), Request{
		Source: "return await callTool('add', {a: 2, b: 3});",
		Env:    Environment{Tools: tools},
	})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Fault)
	}
	if res.Value != int64(5) {
		t.Fatalf("Value = %v, want 5", res.Value)
	}
	if tools.lastName != "add" {
		t.Errorf("tool name = %q, want add", tools.lastName)
	}
	wantInput := map[string]any{"a": int64(2), "b": int64(3)}
	if !reflect.DeepEqual(tools.lastInput, wantInput) {
		t.Errorf("input = %#v, want %#v", tools.lastInput, wantInput)
	}
}

func TestExecute_CallToolAbsentWithoutBinding(t *testing.T) {
	res := testEnclave(Config{}).Execute(context.Background(),
		Request{Source: "return typeof callTool;"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Fault)
	}
	if res.Value != "undefined" {
		t.Fatalf("callTool should not exist without a ToolCaller, typeof = %v", res.Value)
	}
}

func TestExecute_CallToolThrowCarriesCode(t *testing.T) {
	tools := &fakeTools{err: &fakeFault{code: "not_found", tool: "missing", msg: "tool missing is not available"}}
	src := `try {
  await callTool('missing', {});
} catch (e) {
  return {code: e.code, tool: e.toolName, msg: e.message};
}`
	res := testEnclave(Config{}).Execute(context.Background(),
		Request{Source: src, Env: Environment{Tools: tools}})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Fault)
	}
	got, ok := res.Value.(map[string]any)
	if !ok {
		t.Fatalf("Value = %T, want map", res.Value)
	}
	if got["code"] != "not_found" || got["tool"] != "missing" {
		t.Fatalf("caught error fields = %#v", got)
	}
}

func TestExecute_UncaughtToolErrorRetainsCause(t *testing.T) {
	cause := &fakeFault{code: "execution", tool: "flaky", msg: "backend exploded"}
	tools := &fakeTools{err: cause}
	res := testEnclave(Config{}).Execute(context.Background(), Request{
		Source: "return await callTool('flaky', {});",
		Env:    Environment{Tools: tools},
	})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Fault == nil || res.Fault.Cause == nil {
		t.Fatalf("Fault = %+v, want a cause", res.Fault)
	}
	if !errors.Is(res.Fault.Cause, cause) {
		t.Fatalf("Cause = %v, want the original tool error", res.Fault.Cause)
	}
}

func TestExecute_CallToolThrowOnErrorFalse(t *testing.T) {
	tools := &fakeTools{err: &fakeFault{code: "access_denied", tool: "secret", msg: "denied"}}
	src := "const r = await callTool('secret', {}, {throwOnError: false}); return r;"
	res := testEnclave(Config{}).Execute(context.Background(),
		Request{Source: src, Env: Environment{Tools: tools}})
	if !res.Success {
		t.Fatalf("throwOnError:false must not reject, got %+v", res.Fault)
	}
	got, ok := res.Value.(map[string]any)
	if !ok {
		t.Fatalf("Value = %T, want map", res.Value)
	}
	if got["isError"] != true || got["code"] != "access_denied" || got["toolName"] != "secret" {
		t.Fatalf("outcome object = %#v", got)
	}
}

// --- emit binding ---

func TestExecute_EmitNotifies(t *testing.T) {
	type event struct {
		name    string
		payload map[string]any
	}
	var events []event
	res := testEnclave(Config{}).Execute(context.Background(), Request{
		Source: "emit('progress', {step: 1}); emit('done', null); return 0;",
		Env: Environment{Notifier: func(name string, payload map[string]any) {
			events = append(events, event{name, payload})
		}},
	})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Fault)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].name != "progress" || !reflect.DeepEqual(events[0].payload, map[string]any{"step": int64(1)}) {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].name != "done" || events[1].payload != nil {
		t.Errorf("second event = %+v", events[1])
	}
}

// --- Isolation ---

func TestExecute_RuntimesDoNotShareState(t *testing.T) {
	e := testEnclave(Config{})
	first := e.Execute(context.Background(), Request{Source: "Object.extra = 41; return 1;"})
	if !first.Success {
		t.Fatalf("setup run failed: %+v", first.Fault)
	}
	second := e.Execute(context.Background(), Request{Source: "return typeof Object.extra;"})
	if !second.Success {
		t.Fatalf("second run failed: %+v", second.Fault)
	}
	if second.Value != "undefined" {
		t.Fatalf("state leaked between runtimes: %v", second.Value)
	}
}
