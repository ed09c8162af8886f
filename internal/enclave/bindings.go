package enclave

import (
	"context"
	"strings"

	"github.com/dop251/goja"
)

// logBuffer collects console output with a hard cap on both line count
// and total bytes. Once a cap is hit, further output is dropped and a
// single truncation marker is appended.
type logBuffer struct {
	lines     []string
	maxLines  int
	maxBytes  int
	byteCount int
	truncated bool
}

func newLogBuffer(maxLines, maxBytes int) *logBuffer {
	return &logBuffer{maxLines: maxLines, maxBytes: maxBytes}
}

func (b *logBuffer) append(line string) {
	if b.truncated {
		return
	}
	if len(b.lines) >= b.maxLines || b.byteCount+len(line) > b.maxBytes {
		b.truncated = true
		b.lines = append(b.lines, "[output truncated]")
		return
	}
	b.lines = append(b.lines, line)
	b.byteCount += len(line)
}

func (b *logBuffer) Lines() []string {
	return b.lines
}

// bindConsole installs a console object whose methods capture output into
// the buffer instead of writing anywhere. All levels share one stream;
// each line is prefixed with its level except plain log.
func bindConsole(vm *goja.Runtime, logs *logBuffer) {
	console := vm.NewObject()
	levels := []string{"log", "info", "warn", "error", "debug"}
	for _, level := range levels {
		prefix := ""
		if level != "log" {
			prefix = "[" + level + "] "
		}
		p := prefix
		_ = console.Set(level, func(call goja.FunctionCall) goja.Value {
			logs.append(p + formatArgs(call.Arguments))
			return goja.Undefined()
		})
	}
	_ = vm.Set("console", console)
}

func formatArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " ")
}

// bindCallTool installs the callTool(name, input, options?) binding. The
// deadline context is captured so in-flight delegated calls abort when
// the execution budget elapses.
//
// On failure with throwOnError (the default) the Go error is thrown as a
// JS error object whose `value` property retains the original error for
// host-side attribution. With throwOnError:false the script instead
// receives a plain outcome object it can inspect.
func bindCallTool(ctx context.Context, vm *goja.Runtime, tools ToolCaller) {
	_ = vm.Set("callTool", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		input := exportInput(call.Argument(1))
		throwOnError := callOptionBool(call.Argument(2), "throwOnError", true)

		result, err := tools.CallTool(ctx, name, input)
		if err != nil {
			if throwOnError {
				errObj := vm.NewGoError(err)
				if tf, ok := err.(ToolFault); ok {
					_ = errObj.Set("code", tf.ErrorCode())
					_ = errObj.Set("toolName", tf.Tool())
				}
				panic(errObj)
			}
			outcome := map[string]any{
				"isError": true,
				"code":    "execution",
				"message": err.Error(),
			}
			if tf, ok := err.(ToolFault); ok {
				outcome["code"] = tf.ErrorCode()
				outcome["toolName"] = tf.Tool()
			}
			return vm.ToValue(outcome)
		}
		return vm.ToValue(result)
	})
}

// bindEmit installs emit(event, payload) for structured progress
// notifications. Fire and forget: the script gets no return value and no
// failure signal.
func bindEmit(vm *goja.Runtime, notify func(event string, payload map[string]any)) {
	_ = vm.Set("emit", func(call goja.FunctionCall) goja.Value {
		event := call.Argument(0).String()
		notify(event, exportInput(call.Argument(1)))
		return goja.Undefined()
	})
}

func exportInput(v goja.Value) map[string]any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if m, ok := v.Export().(map[string]any); ok {
		return m
	}
	return nil
}

func callOptionBool(v goja.Value, key string, def bool) bool {
	m := exportInput(v)
	if m == nil {
		return def
	}
	if b, ok := m[key].(bool); ok {
		return b
	}
	return def
}
