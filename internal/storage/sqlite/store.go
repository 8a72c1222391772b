// Package sqlite keeps a queryable SQLite catalog of saved runs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/san-kum/lorenz/internal/storage"
	"github.com/san-kum/lorenz/internal/storage/sqlite/migrations"
	"github.com/san-kum/lorenz/internal/storage/sqlitemigrate"
)

// FileName is the index database name inside a data directory.
const FileName = "runs.db"

// Store indexes run metadata in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite index and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record inserts one run. Recording the same id twice fails with
// storage.ErrDuplicateRun.
func (s *Store) Record(ctx context.Context, meta storage.RunMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id := strings.TrimSpace(meta.ID)
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(meta.Model) == "" {
		return fmt.Errorf("model is required")
	}
	createdAt := meta.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	params, err := encode(meta.Params, "{}")
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	initState, err := encode(meta.InitState, "[]")
	if err != nil {
		return fmt.Errorf("encode init state: %w", err)
	}
	final, err := encode(meta.Final, "[]")
	if err != nil {
		return fmt.Errorf("encode final state: %w", err)
	}
	metrics, err := encode(meta.Metrics, "{}")
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO runs (
		   id,
		   model,
		   created_at,
		   tolerance,
		   initial_step,
		   block_size,
		   steps,
		   final_t,
		   rejections,
		   evaluations,
		   stopped,
		   params_json,
		   init_state_json,
		   final_json,
		   metrics_json
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		meta.Model,
		toMillis(createdAt),
		meta.Tolerance,
		meta.InitialStep,
		meta.BlockSize,
		meta.Steps,
		meta.FinalT,
		meta.Rejections,
		meta.Evaluations,
		meta.Stopped,
		params,
		initState,
		final,
		metrics,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateRun, id)
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const selectColumns = `id, model, created_at, tolerance, initial_step, block_size, steps,
		        final_t, rejections, evaluations, stopped, params_json,
		        init_state_json, final_json, metrics_json`

// Get returns one run or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (storage.RunMetadata, error) {
	if err := ctx.Err(); err != nil {
		return storage.RunMetadata{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.RunMetadata{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM runs WHERE id = ?`, strings.TrimSpace(id))
	meta, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.RunMetadata{}, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
		}
		return storage.RunMetadata{}, fmt.Errorf("get run: %w", err)
	}
	return meta, nil
}

// List returns runs newest first, optionally for one model. A limit of
// zero or less means no limit.
func (s *Store) List(ctx context.Context, model string, limit int) ([]storage.RunMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = -1
	}

	var (
		rows *sql.Rows
		err  error
	)
	if model = strings.TrimSpace(model); model == "" {
		rows, err = s.sqlDB.QueryContext(ctx,
			`SELECT `+selectColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	} else {
		rows, err = s.sqlDB.QueryContext(ctx,
			`SELECT `+selectColumns+` FROM runs WHERE model = ? ORDER BY created_at DESC, id LIMIT ?`, model, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]storage.RunMetadata, 0)
	for rows.Next() {
		meta, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Delete removes one run from the index.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (storage.RunMetadata, error) {
	var meta storage.RunMetadata
	var createdAt int64
	var params, initState, final, metrics string
	if err := row.Scan(
		&meta.ID,
		&meta.Model,
		&createdAt,
		&meta.Tolerance,
		&meta.InitialStep,
		&meta.BlockSize,
		&meta.Steps,
		&meta.FinalT,
		&meta.Rejections,
		&meta.Evaluations,
		&meta.Stopped,
		&params,
		&initState,
		&final,
		&metrics,
	); err != nil {
		return storage.RunMetadata{}, err
	}
	meta.Timestamp = fromMillis(createdAt)

	if err := json.Unmarshal([]byte(params), &meta.Params); err != nil {
		return storage.RunMetadata{}, fmt.Errorf("decode params: %w", err)
	}
	if err := json.Unmarshal([]byte(initState), &meta.InitState); err != nil {
		return storage.RunMetadata{}, fmt.Errorf("decode init state: %w", err)
	}
	if err := json.Unmarshal([]byte(final), &meta.Final); err != nil {
		return storage.RunMetadata{}, fmt.Errorf("decode final state: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &meta.Metrics); err != nil {
		return storage.RunMetadata{}, fmt.Errorf("decode metrics: %w", err)
	}
	return meta, nil
}

func encode(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "runs.id")
}

var _ storage.Index = (*Store)(nil)
