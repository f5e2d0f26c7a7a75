package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/zakupki-realty/internal/resilience"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Options configures the SQLite store.
type Options struct {
	BusyTimeout time.Duration
	Retry       resilience.RetryConfig
}

// DefaultOptions returns the busy timeout and lock-retry policy used when
// nothing is configured.
func DefaultOptions() Options {
	return Options{
		BusyTimeout: 5 * time.Second,
		Retry:       resilience.LockRetryConfig(),
	}
}

// SQLiteStore implements Store on modernc.org/sqlite through sqlx.
// Every call is retried while the database reports lock contention.
type SQLiteStore struct {
	db    *sqlx.DB
	retry resilience.RetryConfig
}

// NewSQLite opens (creating if needed) the database file at path in WAL mode.
func NewSQLite(path string, opts Options) (*SQLiteStore, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultOptions().BusyTimeout
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create dir %s", dir)
		}
	}

	db, err := sqlx.Open("sqlite", dsn(path, opts.BusyTimeout))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}

	retry := opts.Retry
	retry.ShouldRetry = IsLocked
	return &SQLiteStore{db: db, retry: retry}, nil
}

// dsn applies the pragmas on every pooled connection, not just the first.
func dsn(path string, busy time.Duration) string {
	return fmt.Sprintf(
		"%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_time_format=sqlite",
		path, busy.Milliseconds(),
	)
}

// Migrate applies the embedded goose migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{zap.L().Sugar()})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return eris.Wrap(err, "sqlite: goose dialect")
	}
	return eris.Wrap(goose.UpContext(ctx, s.db.DB, "migrations"), "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests and diagnostics.
func (s *SQLiteStore) DB() *sqlx.DB {
	return s.db
}

func (s *SQLiteStore) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger("sqlite", op)
	return resilience.Do(ctx, cfg, fn)
}

func doVal[T any](ctx context.Context, s *SQLiteStore, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg := s.retry
	cfg.OnRetry = resilience.RetryLogger("sqlite", op)
	return resilience.DoVal(ctx, cfg, fn)
}

// inTx runs fn in a transaction, rolling back on error.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type gooseLogger struct {
	*zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}
