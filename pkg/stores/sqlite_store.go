package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	"github.com/openfroyo/deployer/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// AuditStore records command, step and action executions in SQLite.
// It implements engine.Observer; write failures are logged and never
// propagated to the command being observed.
type AuditStore struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// Config holds SQLite store configuration
type Config struct {
	Path string
}

// NewAuditStore creates a new audit store instance
func NewAuditStore(cfg Config, logger zerolog.Logger) (*AuditStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &AuditStore{
		path:   cfg.Path,
		logger: logger.With().Str("component", "audit").Logger(),
	}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *AuditStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps per-connection pragmas consistent for a short-lived CLI.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *AuditStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *AuditStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection
func (s *AuditStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// Start implements engine.Observer by inserting a running row.
func (s *AuditStore) Start(ctx context.Context, rec engine.Record) context.Context {
	if s.db == nil {
		return ctx
	}
	wctx := context.WithoutCancel(ctx)

	var err error
	switch rec.Level {
	case engine.LevelCommand:
		_, err = s.db.ExecContext(wctx, `
			INSERT INTO commands (id, environment, command, status, started_at)
			VALUES (?, ?, ?, ?, ?)`,
			rec.RunID, rec.Environment, rec.Command, string(engine.StatusRunning), toMillis(rec.StartedAt))
	case engine.LevelStep:
		_, err = s.db.ExecContext(wctx, `
			INSERT INTO steps (id, run_id, position, name, status, started_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.RunID, rec.Position, rec.Step, string(engine.StatusRunning), toMillis(rec.StartedAt))
	case engine.LevelAction:
		_, err = s.db.ExecContext(wctx, `
			INSERT INTO actions (id, run_id, step_id, step_name, name, attempt, status, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.RunID, rec.ParentID, rec.Step, rec.Action, rec.Attempt,
			string(engine.StatusRunning), toMillis(rec.StartedAt))
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("level", string(rec.Level)).Str("run_id", rec.RunID).
			Msg("Failed to write audit record")
	}
	return ctx
}

// End implements engine.Observer by completing the row written in Start.
func (s *AuditStore) End(ctx context.Context, rec engine.Record) {
	if s.db == nil {
		return
	}
	wctx := context.WithoutCancel(ctx)
	completed := toMillis(rec.StartedAt.Add(rec.Duration))
	durationMs := rec.Duration.Milliseconds()
	errMsg := errorString(rec.Err)

	var err error
	switch rec.Level {
	case engine.LevelCommand:
		var kind, help, step, action sql.NullString
		if e, ok := engine.AsEngineError(rec.Err); ok {
			kind = nullString(string(e.Kind))
			help = nullString(e.Help())
			step = nullString(e.Step)
			action = nullString(e.Action)
		}
		_, err = s.db.ExecContext(wctx, `
			UPDATE commands
			SET environment = ?, status = ?, completed_at = ?, duration_ms = ?, error_kind = ?,
			    error_message = ?, help = ?, failed_step = ?, failed_action = ?
			WHERE id = ?`,
			rec.Environment, string(rec.Status), completed, durationMs, kind, errMsg, help, step, action, rec.RunID)
	case engine.LevelStep:
		_, err = s.db.ExecContext(wctx, `
			UPDATE steps SET status = ?, completed_at = ?, duration_ms = ?, error = ?
			WHERE id = ?`,
			string(rec.Status), completed, durationMs, errMsg, rec.ID)
	case engine.LevelAction:
		var class sql.NullString
		if e, ok := engine.AsEngineError(rec.Err); ok {
			class = nullString(string(e.Class))
		}
		_, err = s.db.ExecContext(wctx, `
			UPDATE actions SET status = ?, completed_at = ?, duration_ms = ?, error_class = ?, error = ?
			WHERE id = ?`,
			string(rec.Status), completed, durationMs, class, errMsg, rec.ID)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("level", string(rec.Level)).Str("run_id", rec.RunID).
			Msg("Failed to complete audit record")
	}
}

// RecentCommands lists the latest command invocations, newest first.
// An empty environment lists invocations for all environments.
func (s *AuditStore) RecentCommands(ctx context.Context, environment string, limit int) ([]*CommandRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT ` + commandColumns + `
		FROM commands
		WHERE (? = '' OR environment = ?)
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, environment, environment, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}
	defer rows.Close()

	records := []*CommandRecord{}
	for rows.Next() {
		rec, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating commands: %w", err)
	}
	return records, nil
}

// GetRun returns a command invocation with its steps and action attempts.
func (s *AuditStore) GetRun(ctx context.Context, runID string) (*RunDetail, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+commandColumns+`
		FROM commands WHERE id = ?`, runID)
	rec, err := scanCommand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, err
	}

	steps, err := s.listSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	actions, err := s.listActions(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Command: rec, Steps: steps, Actions: actions}, nil
}

const commandColumns = `id, environment, command, status, started_at, completed_at, duration_ms,
		       error_kind, error_message, help, failed_step, failed_action`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (*CommandRecord, error) {
	var (
		rec                                  CommandRecord
		started                              int64
		completed, duration                  sql.NullInt64
		kind, msg, help, failedStep, failedA sql.NullString
		status                               string
	)
	if err := row.Scan(&rec.ID, &rec.Environment, &rec.Command, &status, &started, &completed, &duration,
		&kind, &msg, &help, &failedStep, &failedA); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan command: %w", err)
	}
	rec.Status = engine.Status(status)
	rec.StartedAt = fromMillis(started)
	rec.CompletedAt = nullTime(completed)
	rec.Duration = time.Duration(duration.Int64) * time.Millisecond
	rec.ErrorKind = kind.String
	rec.ErrorMessage = msg.String
	rec.Help = help.String
	rec.FailedStep = failedStep.String
	rec.FailedAction = failedA.String
	return &rec, nil
}

func (s *AuditStore) listSteps(ctx context.Context, runID string) ([]*StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, position, name, status, started_at, completed_at, duration_ms, error
		FROM steps WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	steps := []*StepRecord{}
	for rows.Next() {
		var (
			rec                 StepRecord
			started             int64
			completed, duration sql.NullInt64
			status              string
			errMsg              sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Position, &rec.Name, &status, &started,
			&completed, &duration, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		rec.Status = engine.Status(status)
		rec.StartedAt = fromMillis(started)
		rec.CompletedAt = nullTime(completed)
		rec.Duration = time.Duration(duration.Int64) * time.Millisecond
		rec.Error = errMsg.String
		steps = append(steps, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}
	return steps, nil
}

func (s *AuditStore) listActions(ctx context.Context, runID string) ([]*ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, step_id, step_name, name, attempt, status, started_at, completed_at,
		       duration_ms, error_class, error
		FROM actions WHERE run_id = ? ORDER BY started_at, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	actions := []*ActionRecord{}
	for rows.Next() {
		var (
			rec                 ActionRecord
			started             int64
			completed, duration sql.NullInt64
			status              string
			class, errMsg       sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.StepID, &rec.StepName, &rec.Name, &rec.Attempt,
			&status, &started, &completed, &duration, &class, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		rec.Status = engine.Status(status)
		rec.StartedAt = fromMillis(started)
		rec.CompletedAt = nullTime(completed)
		rec.Duration = time.Duration(duration.Int64) * time.Millisecond
		rec.ErrorClass = class.String
		rec.Error = errMsg.String
		actions = append(actions, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}
	return actions, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func errorString(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return nullString(err.Error())
}

var _ engine.Observer = (*AuditStore)(nil)
