package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists audit events in a relational database via GORM. SQLite
// (pure Go, no CGO, via the glebarez driver) is the default; PostgreSQL
// is available for shared deployments.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// EventModel is the GORM model for audit events. JSONB-ish payloads stay
// flat here; the JSONL logger carries the full free-form record.
type EventModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ExecutionID string    `gorm:"index"`
	Type        string    `gorm:"index"`
	Timestamp   time.Time `gorm:"index"`
	Subject     string
	Preset      string
	Status      string
	ToolName    string
	Input       string // Tool-call input, JSON-encoded.
	Message     string
	Stack       string
	DurationMS  int64
	IssueCount  int
}

func (EventModel) TableName() string { return "audit_events" }

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string // Database file path.
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN              string
	MaxOpenConns     int // Default: 25
	MaxIdleConns     int // Default: 5
	ConnMaxLifetimeS int // Default: 1800 (30 min)
}

// OpenSQLite creates a SQLite-backed audit store. WAL mode is enabled so
// reads do not block the recording path.
func OpenSQLite(cfg SQLiteConfig, slogger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// Ensure parent directory exists.
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path)

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(slogger))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	slogger.Info("sqlite audit store opened", slog.String("path", cfg.Path))
	return newStore(db, slogger)
}

// OpenPostgres creates a PostgreSQL-backed audit store.
func OpenPostgres(cfg PostgresConfig, slogger *slog.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), gormConfig(slogger))
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing sql db: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetimeS
	if lifetime <= 0 {
		lifetime = 1800
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Duration(lifetime) * time.Second)

	slogger.Info("postgres audit store opened")
	return newStore(db, slogger)
}

func newStore(db *gorm.DB, slogger *slog.Logger) (*Store, error) {
	if err := db.AutoMigrate(&EventModel{}); err != nil {
		return nil, fmt.Errorf("migrating audit schema: %w", err)
	}
	return &Store{db: db, logger: slogger}, nil
}

func gormConfig(slogger *slog.Logger) *gorm.Config {
	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	return &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Record inserts one event.
func (s *Store) Record(ctx context.Context, ev Event) error {
	id, err := uuid.Parse(ev.ID)
	if err != nil {
		id = uuid.New()
	}
	var inputJSON string
	if len(ev.Input) > 0 {
		data, err := json.Marshal(ev.Input)
		if err != nil {
			return fmt.Errorf("marshaling tool-call input: %w", err)
		}
		inputJSON = string(data)
	}
	model := EventModel{
		ID:          id,
		ExecutionID: ev.ExecutionID,
		Type:        ev.Type,
		Timestamp:   ev.Timestamp,
		Subject:     ev.Subject,
		Preset:      ev.Preset,
		Status:      ev.Status,
		ToolName:    ev.ToolName,
		Input:       inputJSON,
		Message:     ev.Message,
		Stack:       ev.Stack,
		DurationMS:  ev.DurationMS,
		IssueCount:  ev.IssueCount,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// ListByExecution returns all events for one execution, oldest first.
func (s *Store) ListByExecution(ctx context.Context, executionID string) ([]Event, error) {
	var models []EventModel
	err := s.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("timestamp asc").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	events := make([]Event, len(models))
	for i, m := range models {
		var input map[string]any
		if m.Input != "" {
			// A row with a corrupt payload still lists; the input is lost.
			_ = json.Unmarshal([]byte(m.Input), &input)
		}
		events[i] = Event{
			ID:          m.ID.String(),
			ExecutionID: m.ExecutionID,
			Type:        m.Type,
			Timestamp:   m.Timestamp,
			Subject:     m.Subject,
			Preset:      m.Preset,
			Status:      m.Status,
			ToolName:    m.ToolName,
			Input:       input,
			Message:     m.Message,
			Stack:       m.Stack,
			DurationMS:  m.DurationMS,
			IssueCount:  m.IssueCount,
		}
	}
	return events, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}

// compile-time interface check
var _ Recorder = (*Store)(nil)
var _ Recorder = (*Logger)(nil)
var _ Recorder = (*Multi)(nil)
