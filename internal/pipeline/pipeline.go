// Package pipeline defines the tool interface and registry behind the
// sandbox's delegation boundary. The bridge resolves and invokes tools
// exclusively through the Pipeline interface; the registry is the
// in-process implementation, and adapters (MCP) plug remote tools into
// the same surface.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Sentinel errors classified by the bridge. Adapters wrap these with %w
// so errors.Is keeps working across layers.
var (
	// ErrToolNotFound means no tool with the requested name is registered.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolDenied means the tool exists but the caller may not use it.
	ErrToolDenied = errors.New("tool access denied")
)

// ValidationError reports malformed tool input, detected before the tool
// runs. Distinct from execution failures so the caller can tell "you sent
// garbage" apart from "the tool broke".
type ValidationError struct {
	ToolName string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input for tool %q: %s", e.ToolName, e.Reason)
}

// AuthContext identifies who is behind a delegated call. The pipeline
// does not interpret it; tools and audit sinks may.
type AuthContext struct {
	// ExecutionID ties the call back to the sandbox execution that made it.
	ExecutionID string
	// Subject is the identity the execution runs as, if any.
	Subject string
}

// Tool is the interface every delegatable tool implements.
type Tool interface {
	// Name returns the tool's unique identifier (e.g. "web_search").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// InputSchema returns a JSON Schema object describing the tool's input.
	InputSchema() map[string]any

	// Validate checks that input is well-formed before Invoke runs, so
	// malformed requests fail fast without touching the tool's backend.
	Validate(input map[string]any) error

	// Invoke runs the tool. The context carries the sandbox execution's
	// deadline; implementations must honor cancellation.
	Invoke(ctx context.Context, input map[string]any, auth AuthContext) (any, error)
}

// Pipeline is the resolution and invocation surface the bridge depends
// on. Find never invokes; Invoke resolves and runs in one step.
type Pipeline interface {
	Find(name string) (Tool, bool)
	Invoke(ctx context.Context, name string, input map[string]any, auth AuthContext) (any, error)
}

// Registry holds available tools keyed by name.
// Thread-safe for concurrent reads; writes should only happen at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Panics on duplicate names (startup config error,
// not runtime).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		panic("duplicate tool registration: " + t.Name())
	}
	r.tools[t.Name()] = t
}

// Find returns the tool by name.
func (r *Registry) Find(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke resolves a tool, validates its input, and runs it.
func (r *Registry) Invoke(ctx context.Context, name string, input map[string]any, auth AuthContext) (any, error) {
	t, ok := r.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if err := t.Validate(input); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, &ValidationError{ToolName: name, Reason: err.Error()}
	}
	return t.Invoke(ctx, input, auth)
}

// Func adapts a plain function into a Tool for in-process tools and
// tests. Validate accepts any input; wrap the function body with checks
// where stricter validation matters.
type Func struct {
	ToolName string
	Desc     string
	Schema   map[string]any
	Fn       func(ctx context.Context, input map[string]any) (any, error)
}

func (f *Func) Name() string                { return f.ToolName }
func (f *Func) Description() string         { return f.Desc }
func (f *Func) InputSchema() map[string]any { return f.Schema }

func (f *Func) Validate(map[string]any) error { return nil }

func (f *Func) Invoke(ctx context.Context, input map[string]any, _ AuthContext) (any, error) {
	return f.Fn(ctx, input)
}
