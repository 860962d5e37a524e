package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"villagekeep/internal/clock"
	logx "villagekeep/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
	clk clock.Clock
}

type blobRow struct {
	Key       string `db:"key"`
	Value     []byte `db:"value"`
	UpdatedAt int64  `db:"updated_at"`
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, clk: cfg.Clock}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, ErrDisabled
	}
	key, err := normalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	var row blobRow
	err = s.db.GetContext(ctx, &row, `SELECT key, value, updated_at FROM blobs WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row.Value, true, nil
}

func (s *sqliteStore) Put(ctx context.Context, key string, blob []byte) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	row := blobRow{Key: key, Value: blob, UpdatedAt: clock.NowMs(s.clk)}
	_, err = s.db.NamedExecContext(ctx,
		`INSERT INTO blobs(key, value, updated_at) VALUES(:key, :value, :updated_at)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		row,
	)
	if err == nil {
		s.log.Trace("blob written", logx.String("key", key), logx.Int("bytes", len(blob)))
	}
	return err
}
