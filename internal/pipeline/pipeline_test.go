package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func echoTool(name string) *Func {
	return &Func{
		ToolName: name,
		Desc:     "echoes its input",
		Fn: func(_ context.Context, input map[string]any) (any, error) {
			return input, nil
		},
	}
}

// validatingTool rejects input lacking a "q" key.
type validatingTool struct{}

func (validatingTool) Name() string                { return "search" }
func (validatingTool) Description() string         { return "validating test tool" }
func (validatingTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }

func (validatingTool) Validate(input map[string]any) error {
	if _, ok := input["q"]; !ok {
		return errors.New("missing required key q")
	}
	return nil
}

func (validatingTool) Invoke(_ context.Context, input map[string]any, _ AuthContext) (any, error) {
	return input["q"], nil
}

// --- Registry ---

func TestRegistry_RegisterAndFind(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("echo"))

	tool, ok := r.Find("echo")
	if !ok {
		t.Fatal("registered tool not found")
	}
	if tool.Name() != "echo" {
		t.Fatalf("Name = %q", tool.Name())
	}
	if _, ok := r.Find("missing"); ok {
		t.Fatal("Find must miss on unknown names")
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("echo"))
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate registration must panic")
		}
	}()
	r.Register(echoTool("echo"))
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Register(echoTool(name))
	}
	want := []string{"alpha", "mid", "zeta"}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
}

// --- Invoke ---

func TestRegistry_Invoke(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("echo"))

	input := map[string]any{"k": "v"}
	got, err := r.Invoke(context.Background(), "echo", input, AuthContext{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !reflect.DeepEqual(got, input) {
		t.Fatalf("result = %v", got)
	}
}

func TestRegistry_InvokeNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "ghost", nil, AuthContext{})
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("err = %v, want ErrToolNotFound", err)
	}
}

func TestRegistry_InvokeCoercesValidationErrors(t *testing.T) {
	r := NewRegistry()
	r.Register(validatingTool{})

	_, err := r.Invoke(context.Background(), "search", map[string]any{}, AuthContext{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %T, want *ValidationError", err)
	}
	if ve.ToolName != "search" {
		t.Errorf("ToolName = %q", ve.ToolName)
	}

	got, err := r.Invoke(context.Background(), "search", map[string]any{"q": "go"}, AuthContext{})
	if err != nil {
		t.Fatalf("valid input failed: %v", err)
	}
	if got != "go" {
		t.Fatalf("result = %v", got)
	}
}

// --- Func adapter ---

func TestFunc_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	f := &Func{ToolName: "broken", Fn: func(context.Context, map[string]any) (any, error) {
		return nil, fmt.Errorf("invoking: %w", boom)
	}}
	_, err := f.Invoke(context.Background(), nil, AuthContext{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
