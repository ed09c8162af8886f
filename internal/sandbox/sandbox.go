// Package sandbox is the facade that ties validation, execution, and
// outcome mapping together. Callers hand it agent-submitted source plus a
// per-run allowlist and get back a single sanitized Outcome; everything
// with sharper edges (stacks, raw errors, the audit trail) stays behind
// this boundary.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/codecall/internal/audit"
	"github.com/jkaninda/codecall/internal/bridge"
	"github.com/jkaninda/codecall/internal/enclave"
	"github.com/jkaninda/codecall/internal/observability"
	"github.com/jkaninda/codecall/internal/pipeline"
	"github.com/jkaninda/codecall/internal/rules"
	"github.com/jkaninda/codecall/internal/validator"
)

// Sandbox validates and executes agent-submitted scripts. Safe for
// concurrent use; each run gets its own bridge and enclave runtime.
type Sandbox struct {
	catalog        *rules.Catalog
	enclave        *enclave.Enclave
	pipeline       pipeline.Pipeline
	defaultPreset  string
	maxSourceBytes int
	recorder       audit.Recorder
	metrics        *observability.MetricsCollector
	tracer         trace.Tracer
	logger         *slog.Logger
}

// Options configures a Sandbox. Pipeline is required; everything else has
// a usable zero value (nil recorder/metrics/tracer disable that concern).
type Options struct {
	Pipeline       pipeline.Pipeline
	DefaultPreset  string        // Default: "standard".
	DefaultTimeout time.Duration // Per-run wall-clock budget. Default: 5s.
	MaxSourceBytes int           // Default: 256 KB.
	MaxLogLines    int
	MaxLogBytes    int
	Recorder       audit.Recorder
	Metrics        *observability.MetricsCollector
	Tracer         trace.Tracer
	Logger         *slog.Logger
}

// New creates a Sandbox.
func New(opts Options) (*Sandbox, error) {
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("sandbox: pipeline is required")
	}
	catalog := rules.NewCatalog()

	presetName := opts.DefaultPreset
	if presetName == "" {
		presetName = rules.PresetStandard
	}
	if _, ok := catalog.Get(presetName); !ok {
		return nil, fmt.Errorf("sandbox: unknown preset %q", presetName)
	}

	maxSource := opts.MaxSourceBytes
	if maxSource <= 0 {
		maxSource = 256 << 10
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enc := enclave.New(enclave.Config{
		DefaultTimeout: opts.DefaultTimeout,
		MaxLogLines:    opts.MaxLogLines,
		MaxLogBytes:    opts.MaxLogBytes,
	}, logger)

	return &Sandbox{
		catalog:        catalog,
		enclave:        enc,
		pipeline:       opts.Pipeline,
		defaultPreset:  presetName,
		maxSourceBytes: maxSource,
		recorder:       opts.Recorder,
		metrics:        opts.Metrics,
		tracer:         opts.Tracer,
		logger:         logger,
	}, nil
}

// Presets returns the available validation preset names.
func (s *Sandbox) Presets() []string {
	return s.catalog.Names()
}

// Validate checks a script against the named preset without executing it.
// An empty preset name selects the configured default. The only error is
// an unknown preset; a script that fails validation is reported through
// the Result, not the error.
func (s *Sandbox) Validate(source, presetName string) (validator.Result, error) {
	if presetName == "" {
		presetName = s.defaultPreset
	}
	preset, ok := s.catalog.Get(presetName)
	if !ok {
		return validator.Result{}, fmt.Errorf("unknown validation preset %q", presetName)
	}
	res := validator.Validate(source, preset)
	s.metrics.RecordValidation(presetName, res.Valid)
	return res, nil
}

// RunRequest describes one full run: validate, execute, map.
type RunRequest struct {
	Source    string
	Preset    string   // "" = configured default.
	Allowlist []string // Tools the script may call. Empty = none.
	Subject   string   // Identity the run is attributed to.
	Timeout   time.Duration
	Notifier  func(event string, payload map[string]any)
}

// Run validates the script, executes it when valid, and maps the result
// to a sanitized Outcome. The returned error covers host-side misuse only
// (unknown preset); script failures of every kind land in the Outcome.
func (s *Sandbox) Run(ctx context.Context, req RunRequest) (Outcome, error) {
	presetName := req.Preset
	if presetName == "" {
		presetName = s.defaultPreset
	}
	preset, ok := s.catalog.Get(presetName)
	if !ok {
		return Outcome{}, fmt.Errorf("unknown validation preset %q", presetName)
	}

	executionID := uuid.NewString()
	start := time.Now()

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "sandbox.run")
		span.SetAttributes(
			attribute.String("codecall.execution_id", executionID),
			attribute.String("codecall.preset", presetName),
		)
		defer span.End()
	}
	s.metrics.ExecutionStarted()
	defer s.metrics.ExecutionFinished()

	if len(req.Source) > s.maxSourceBytes {
		outcome := Outcome{
			Status: StatusIllegalAccess,
			Error:  fmt.Sprintf("script exceeds the maximum source size of %d bytes", s.maxSourceBytes),
		}
		return s.finish(ctx, span, outcome, executionID, presetName, req.Subject, start), nil
	}

	vres := validator.Validate(req.Source, preset)
	s.metrics.RecordValidation(presetName, vres.Valid)
	s.record(ctx, audit.Event{
		ExecutionID: executionID,
		Type:        audit.EventValidation,
		Subject:     req.Subject,
		Preset:      presetName,
		Status:      validationStatus(vres.Valid),
		IssueCount:  len(vres.Issues),
	})
	if !vres.Valid {
		return s.finish(ctx, span, mapValidation(vres), executionID, presetName, req.Subject, start), nil
	}

	br := bridge.New(s.pipeline, bridge.Options{
		Allowlist: req.Allowlist,
		Auth:      pipeline.AuthContext{ExecutionID: executionID, Subject: req.Subject},
		Observer:  s.toolCallObserver(ctx, executionID, req.Subject),
		Logger:    s.logger,
	})

	res := s.enclave.Execute(ctx, enclave.Request{
		Source: req.Source,
		Env: enclave.Environment{
			Tools:    br,
			Notifier: req.Notifier,
		},
		Timeout: req.Timeout,
	})

	outcome := mapResult(res)
	outcome.Logs = res.Logs
	s.recordExecutionEvent(ctx, executionID, presetName, req.Subject, outcome, res, start)
	return s.finish(ctx, span, outcome, executionID, presetName, req.Subject, start), nil
}

func validationStatus(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}

// toolCallObserver routes bridge call records into metrics and audit.
func (s *Sandbox) toolCallObserver(ctx context.Context, executionID, subject string) func(bridge.CallRecord) {
	return func(rec bridge.CallRecord) {
		code := "ok"
		message := ""
		if rec.Fault != nil {
			code = string(rec.Fault.Code)
			if rec.Fault.Err != nil {
				message = rec.Fault.Err.Error()
			} else {
				message = rec.Fault.Message
			}
		}
		s.metrics.RecordToolCall(rec.ToolName, code, rec.Duration)
		s.record(ctx, audit.Event{
			ExecutionID: executionID,
			Type:        audit.EventToolCall,
			Subject:     subject,
			Status:      code,
			ToolName:    rec.ToolName,
			Input:       rec.Input,
			Message:     message,
			DurationMS:  rec.Duration.Milliseconds(),
		})
	}
}

// recordExecutionEvent writes the host-internal execution record with
// full fault detail, stack included.
func (s *Sandbox) recordExecutionEvent(ctx context.Context, executionID, presetName, subject string, outcome Outcome, res enclave.Result, start time.Time) {
	ev := audit.Event{
		ExecutionID: executionID,
		Type:        audit.EventExecution,
		Subject:     subject,
		Preset:      presetName,
		Status:      string(outcome.Status),
		DurationMS:  time.Since(start).Milliseconds(),
	}
	if res.Fault != nil {
		ev.Message = res.Fault.Message
		ev.Stack = res.Fault.Stack
	}
	s.record(ctx, ev)
}

// finish stamps the outcome, records metrics, and logs.
func (s *Sandbox) finish(ctx context.Context, span trace.Span, outcome Outcome, executionID, presetName, subject string, start time.Time) Outcome {
	duration := time.Since(start)
	outcome.ExecutionID = executionID
	outcome.DurationMS = duration.Milliseconds()

	s.metrics.RecordExecution(string(outcome.Status), duration)
	if span != nil {
		span.SetAttributes(attribute.String("codecall.status", string(outcome.Status)))
	}
	s.logger.InfoContext(ctx, "script run finished",
		slog.String("execution_id", executionID),
		slog.String("preset", presetName),
		slog.String("subject", subject),
		slog.String("status", string(outcome.Status)),
		slog.Duration("duration", duration),
	)
	return outcome
}

func (s *Sandbox) record(ctx context.Context, ev audit.Event) {
	if s.recorder == nil {
		return
	}
	// Audit writes must survive run cancellation.
	ctx = context.WithoutCancel(ctx)
	ev.ID = uuid.NewString()
	ev.Timestamp = time.Now().UTC()
	if err := s.recorder.Record(ctx, ev); err != nil {
		s.logger.Error("recording audit event",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}
