package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

const defaultPostgresDSN = "postgres://localhost/watchbook?sslmode=disable"

// PostgresMedium stores entries in a watchbook_kv table.
type PostgresMedium struct {
	db    *sql.DB
	quota int64
}

// NewPostgresMedium connects to dsn (falling back to a local default) and
// ensures the table exists.
func NewPostgresMedium(ctx context.Context, dsn string, quota int64) (*PostgresMedium, error) {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureKVTable(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresMedium{db: db, quota: quota}, nil
}

func ensureKVTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS watchbook_kv (
		key        TEXT PRIMARY KEY,
		value      BYTEA NOT NULL,
		size       BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure kv table: %w", err)
	}
	return nil
}

func (m *PostgresMedium) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := m.db.QueryRowContext(ctx, `SELECT value FROM watchbook_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (m *PostgresMedium) Set(ctx context.Context, key string, value []byte) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin set %s: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	var used, oldSize int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM watchbook_kv`).Scan(&used); err != nil {
		return fmt.Errorf("sum usage: %w", err)
	}
	err = tx.QueryRowContext(ctx, `SELECT size FROM watchbook_kv WHERE key = $1`, key).Scan(&oldSize)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read size %s: %w", key, err)
	}

	newSize := EntrySize(key, value)
	if err := checkQuota(key, used, oldSize, newSize, m.quota); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO watchbook_kv (key, value, size, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, size = EXCLUDED.size, updated_at = now()`,
		key, value, newSize)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

func (m *PostgresMedium) Delete(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM watchbook_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (m *PostgresMedium) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT key FROM watchbook_kv WHERE key LIKE $1 ESCAPE '\' ORDER BY key`, escapeLike(prefix))
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (m *PostgresMedium) Usage(ctx context.Context) (Usage, error) {
	var used int64
	if err := m.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM watchbook_kv`).Scan(&used); err != nil {
		return Usage{}, fmt.Errorf("sum usage: %w", err)
	}
	return Usage{Used: used, Quota: m.quota}, nil
}

func (m *PostgresMedium) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
