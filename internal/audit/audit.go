// Package audit records the host-internal trail of sandbox activity:
// validations, executions, and every delegated tool call. Records here
// keep full detail (unsanitized messages, stacks) because they never
// leave the host. The agent-facing outcome is built elsewhere from a
// sanitized view.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Event types.
const (
	EventValidation = "validation"
	EventExecution  = "execution"
	EventToolCall   = "tool_call"
)

// Event is one audit record.
type Event struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	Type        string         `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	Subject     string         `json:"subject,omitempty"`
	Preset      string         `json:"preset,omitempty"`
	Status      string         `json:"status,omitempty"`    // Outcome status or tool-call code.
	ToolName    string         `json:"tool_name,omitempty"` // Tool-call events only.
	Input       map[string]any `json:"input,omitempty"`     // Tool-call input, as the script passed it.
	Message     string         `json:"message,omitempty"`   // Unsanitized.
	Stack       string         `json:"stack,omitempty"`     // Host-side stack, if any.
	DurationMS  int64          `json:"duration_ms,omitempty"`
	IssueCount  int            `json:"issue_count,omitempty"` // Validation events only.
}

// Recorder is the sink interface the sandbox writes to. Implementations
// must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
	Close() error
}

// Logger writes audit events as append-only JSONL.
// Each event is a single JSON line followed by a newline.
// Thread-safe: multiple goroutines can record concurrently.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

// NewLogger opens (or creates) the audit log file in append-only mode.
// File permissions are 0600 (owner read/write only).
func NewLogger(path string, logger *slog.Logger) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	return &Logger{
		file:   f,
		logger: logger,
	}, nil
}

// Record serializes the event as JSON and appends it to the audit log.
// Marshal happens outside the lock; only the file write is serialized.
func (l *Logger) Record(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	_, writeErr := l.file.Write(data)
	l.mu.Unlock()

	if writeErr != nil {
		return fmt.Errorf("writing audit event: %w", writeErr)
	}

	l.logger.InfoContext(ctx, "audit event recorded",
		slog.String("type", ev.Type),
		slog.String("execution_id", ev.ExecutionID),
		slog.String("status", ev.Status),
	)

	return nil
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Multi fans events out to several recorders. Record returns the first
// error but still attempts every sink.
type Multi struct {
	recorders []Recorder
}

// NewMulti combines recorders; nil entries are skipped.
func NewMulti(recorders ...Recorder) *Multi {
	m := &Multi{}
	for _, r := range recorders {
		if r != nil {
			m.recorders = append(m.recorders, r)
		}
	}
	return m
}

func (m *Multi) Record(ctx context.Context, ev Event) error {
	var firstErr error
	for _, r := range m.recorders {
		if err := r.Record(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Multi) Close() error {
	var firstErr error
	for _, r := range m.recorders {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
