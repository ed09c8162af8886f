package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/codecall/internal/audit"
	"github.com/jkaninda/codecall/internal/config"
	"github.com/jkaninda/codecall/internal/observability"
	"github.com/jkaninda/codecall/internal/pipeline"
	mcptools "github.com/jkaninda/codecall/internal/pipeline/mcp"
	"github.com/jkaninda/codecall/internal/sandbox"
)

// components holds all initialized subsystems the commands share.
// Built once by initComponents, torn down by Cleanup.
type components struct {
	Config  *config.Config
	Logger  *slog.Logger
	Obs     *observability.Observability
	Sandbox *sandbox.Sandbox

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (c *components) Cleanup() {
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		c.cleanups[i]()
	}
}

func (c *components) addCleanup(fn func()) {
	c.cleanups = append(c.cleanups, fn)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// loadConfig resolves the config path (flag first, then CODECALL_CONFIG
// env) and loads it. No path means built-in defaults.
func loadConfig(flagPath string) (*config.Config, error) {
	path := flagPath
	if path == "" {
		path = goutils.Env("CODECALL_CONFIG", "")
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// initComponents performs all common initialization shared between the
// validate and run commands. Callers must call Cleanup when done.
func initComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{
		Config: cfg,
		Logger: logger,
	}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	c.Obs = obs
	c.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})

	// Audit trail.
	recorder, err := initRecorder(cfg, logger)
	if err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("initializing audit trail: %w", err)
	}
	if recorder != nil {
		c.addCleanup(func() {
			if err := recorder.Close(); err != nil {
				logger.Error("closing audit recorder", slog.String("error", err.Error()))
			}
		})
	}

	// Tool pipeline.
	registry := pipeline.NewRegistry()
	if len(cfg.MCP) > 0 {
		mcpBridge := mcptools.NewBridge(logger)
		mcpCtx, mcpCancel := context.WithTimeout(context.Background(), 30*time.Second)
		for _, mcpCfg := range cfg.MCP {
			mcpToolList, mcpErr := mcpBridge.ConnectAndDiscover(mcpCtx, mcpCfg)
			if mcpErr != nil {
				logger.Error("MCP server failed, skipping",
					slog.String("server", mcpCfg.Name),
					slog.String("error", mcpErr.Error()),
				)
				continue
			}
			for _, t := range mcpToolList {
				registry.Register(t)
			}
		}
		mcpCancel()
		c.addCleanup(mcpBridge.Close)
		logger.Debug("tools registered", slog.Any("tools", registry.List()))
	}

	// Sandbox.
	opts := sandbox.Options{
		Pipeline:       registry,
		DefaultPreset:  cfg.Validation.DefaultPreset(),
		DefaultTimeout: cfg.Execution.Timeout(),
		MaxSourceBytes: cfg.Execution.SourceLimit(),
		MaxLogLines:    cfg.Execution.LogLines(),
		MaxLogBytes:    cfg.Execution.LogBytes(),
		Recorder:       recorder,
		Metrics:        obs.MetricsOrNil(),
		Logger:         logger,
	}
	if ts := obs.TracerOrNil(); ts != nil {
		opts.Tracer = ts.Tracer()
	}
	sb, err := sandbox.New(opts)
	if err != nil {
		c.Cleanup()
		return nil, err
	}
	c.Sandbox = sb

	return c, nil
}

// initRecorder builds the audit sink chain: JSONL file plus a relational
// store. Returns nil when auditing is disabled.
func initRecorder(cfg *config.Config, logger *slog.Logger) (audit.Recorder, error) {
	if cfg.Audit == nil || !cfg.Audit.Enabled {
		return nil, nil
	}

	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	jsonl, err := audit.NewLogger(cfg.AuditLogPath(), logger)
	if err != nil {
		return nil, err
	}

	var store *audit.Store
	switch driver := cfg.StorageDriverName(); driver {
	case "postgres":
		pg := cfg.Storage.Postgres
		store, err = audit.OpenPostgres(audit.PostgresConfig{
			DSN:              pg.DSN,
			MaxOpenConns:     pg.MaxOpenConns,
			MaxIdleConns:     pg.MaxIdleConns,
			ConnMaxLifetimeS: pg.ConnMaxLifetimeS,
		}, logger)
	case "sqlite":
		dbPath := cfg.DatabasePath()
		if cfg.Storage != nil && cfg.Storage.SQLite != nil && cfg.Storage.SQLite.Path != "" {
			dbPath = cfg.Storage.SQLite.Path
		}
		store, err = audit.OpenSQLite(audit.SQLiteConfig{Path: dbPath}, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
	if err != nil {
		_ = jsonl.Close()
		return nil, err
	}

	return audit.NewMulti(jsonl, store), nil
}

// readSource reads script source from a file argument, or stdin for "-".
func readSource(arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("reading script %s: %w", arg, err)
	}
	return string(data), nil
}
