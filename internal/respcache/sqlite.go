package respcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/fieldsync/internal/queue"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    namespace TEXT    NOT NULL,
    key       TEXT    NOT NULL,
    method    TEXT    NOT NULL,
    url       TEXT    NOT NULL,
    status    INTEGER NOT NULL,
    header    BLOB    NOT NULL,
    body      BLOB    NOT NULL,
    body_size INTEGER NOT NULL,
    stored_at INTEGER NOT NULL,
    PRIMARY KEY (namespace, key)
);
`

// SQLiteBackend stores snapshots in a SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

var _ Backend = (*SQLiteBackend)(nil)

// OpenSQLite creates or opens the cache database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	dsn, err := queue.DSN(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect cache database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, namespace, key string) (Snapshot, bool, error) {
	var (
		snap     Snapshot
		header   []byte
		body     []byte
		bodySize int
		storedAt int64
	)
	err := b.db.QueryRowContext(ctx, `
		SELECT method, url, status, header, body, body_size, stored_at
		FROM cache_entries
		WHERE namespace = ? AND key = ?
	`, namespace, key).Scan(&snap.Method, &snap.URL, &snap.Status, &header, &body, &bodySize, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("get cache entry: %w", err)
	}

	if snap.Header, err = decodeHeader(header); err != nil {
		return Snapshot{}, false, fmt.Errorf("get cache entry: %w", err)
	}
	if snap.Body, err = decompressBody(body, bodySize); err != nil {
		return Snapshot{}, false, fmt.Errorf("get cache entry: %w", err)
	}
	snap.StoredAt = time.UnixMilli(storedAt).UTC()

	return snap, true, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, namespace, key string, snap Snapshot) error {
	header, err := encodeHeader(snap.Header)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}

	storedAt := snap.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO cache_entries
		(namespace, key, method, url, status, header, body, body_size, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			method = excluded.method,
			url = excluded.url,
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			body_size = excluded.body_size,
			stored_at = excluded.stored_at
	`,
		namespace,
		key,
		snap.Method,
		snap.URL,
		snap.Status,
		header,
		compressBody(snap.Body),
		len(snap.Body),
		storedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Count(ctx context.Context, namespace string) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries WHERE namespace = ?`, namespace).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

func (b *SQLiteBackend) Prune(ctx context.Context, keep string) (int, error) {
	result, err := b.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace != ?`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune cache namespaces: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune cache namespaces: rows affected: %w", err)
	}
	return int(n), nil
}

func (b *SQLiteBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
