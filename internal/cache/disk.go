package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// l2EvictFraction: when over capacity, drop the oldest ~10% by last access.
const l2EvictFraction = 10

// l2MaxEntries caps the persistent tier. The disk tier is larger than L1
// but still bounded; eviction removes the stalest tenth in one statement.
const l2MaxEntries = 10000

// diskStore is the persistent tier: a single-table SQLite KV store.
// A flock file lock rejects a second process opening the same cache file.
type diskStore struct {
	db     *sql.DB
	lock   *flock.Flock
	logger *slog.Logger
}

// openDiskStore opens (creating if needed) the cache database at path.
func openDiskStore(path string, logger *slog.Logger) (*diskStore, error) {
	// Ensure parent directory exists (stricter permissions; cached
	// payloads may mirror private conversation content)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking cache database: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("cache database %s is locked by another process", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// SQLite supports one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("applying pragma: %w", err)
		}
	}

	if err := migrateDiskStore(db); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &diskStore{db: db, lock: lock, logger: logger}, nil
}

// migrateDiskStore applies the embedded schema migrations.
func migrateDiskStore(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	// Note: don't Close() m — the sqlite WithInstance driver does not own
	// the *sql.DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running cache migrations: %w", err)
	}
	return nil
}

func (d *diskStore) get(ctx context.Context, key string, now time.Time) (*Entry, bool, error) {
	var (
		value              []byte
		createdMS          int64
		lastAccessedMS     int64
		accessCount, size  int64
		ttlMS              int64
		tagsJSON           string
	)

	err := d.db.QueryRowContext(ctx,
		`SELECT value, created_at, last_accessed, access_count, size, ttl_ms, tags
		 FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &createdMS, &lastAccessedMS, &accessCount, &size, &ttlMS, &tagsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	e := &Entry{
		Key:          key,
		Value:        value,
		Timestamp:    time.UnixMilli(createdMS),
		LastAccessed: time.UnixMilli(lastAccessedMS),
		AccessCount:  accessCount,
		Size:         size,
		TTL:          time.Duration(ttlMS) * time.Millisecond,
	}
	if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
		d.logger.Warn("malformed cache tags, dropping", "key", key, "error", err)
	}

	if e.expired(now) {
		if _, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			d.logger.Warn("purging expired cache entry failed", "key", key, "error", err)
		}
		return nil, false, nil
	}

	e.AccessCount++
	e.LastAccessed = now
	if _, err := d.db.ExecContext(ctx,
		`UPDATE cache_entries SET last_accessed = ?, access_count = ? WHERE key = ?`,
		now.UnixMilli(), e.AccessCount, key,
	); err != nil {
		// Bookkeeping only; the read already succeeded.
		d.logger.Warn("updating cache entry recency failed", "key", key, "error", err)
	}

	return e, true, nil
}

func (d *diskStore) set(ctx context.Context, e Entry) error {
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("encoding cache tags: %w", err)
	}
	if e.Tags == nil {
		tagsJSON = []byte("[]")
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, created_at, last_accessed, access_count, size, ttl_ms, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			last_accessed = excluded.last_accessed,
			access_count = excluded.access_count,
			size = excluded.size,
			ttl_ms = excluded.ttl_ms,
			tags = excluded.tags`,
		e.Key, e.Value, e.Timestamp.UnixMilli(), e.LastAccessed.UnixMilli(),
		e.AccessCount, e.Size, e.TTL.Milliseconds(), string(tagsJSON),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	return d.evictIfOver(ctx)
}

// evictIfOver removes the oldest ~10% of entries by last access once the
// store exceeds its capacity.
func (d *diskStore) evictIfOver(ctx context.Context) error {
	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return fmt.Errorf("counting cache entries: %w", err)
	}
	if count <= l2MaxEntries {
		return nil
	}

	n := count / l2EvictFraction
	if n < 1 {
		n = 1
	}

	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key IN (
			SELECT key FROM cache_entries ORDER BY last_accessed ASC LIMIT ?)`, n,
	); err != nil {
		return fmt.Errorf("evicting cache entries: %w", err)
	}

	d.logger.Debug("evicted cache entries from persistent tier", "count", n)
	return nil
}

func (d *diskStore) delete(ctx context.Context, key string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("deleting cache entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting cache entry: %w", err)
	}
	return n > 0, nil
}

func (d *diskStore) has(ctx context.Context, key string, now time.Time) (bool, error) {
	var createdMS, ttlMS int64
	err := d.db.QueryRowContext(ctx,
		`SELECT created_at, ttl_ms FROM cache_entries WHERE key = ?`, key,
	).Scan(&createdMS, &ttlMS)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading cache entry: %w", err)
	}

	e := Entry{Timestamp: time.UnixMilli(createdMS), TTL: time.Duration(ttlMS) * time.Millisecond}
	if e.expired(now) {
		if _, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			d.logger.Warn("purging expired cache entry failed", "key", key, "error", err)
		}
		return false, nil
	}
	return true, nil
}

func (d *diskStore) clear(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

// deleteByTags removes every entry whose tag set intersects tags.
// Tags are stored as a JSON array, so this is a full scan — acceptable
// for the coarse, rare invalidations it serves (conversation teardown).
func (d *diskStore) deleteByTags(ctx context.Context, tags []string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT key, tags FROM cache_entries WHERE tags != '[]'`)
	if err != nil {
		return nil, fmt.Errorf("scanning cache tags: %w", err)
	}
	defer rows.Close()

	var matched []string
	for rows.Next() {
		var key, tagsJSON string
		if err := rows.Scan(&key, &tagsJSON); err != nil {
			return nil, fmt.Errorf("scanning cache tags: %w", err)
		}
		var entryTags []string
		if err := json.Unmarshal([]byte(tagsJSON), &entryTags); err != nil {
			d.logger.Warn("malformed cache tags, skipping", "key", key, "error", err)
			continue
		}
		if intersects(entryTags, tags) {
			matched = append(matched, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning cache tags: %w", err)
	}

	for _, key := range matched {
		if _, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			return nil, fmt.Errorf("deleting tagged cache entry: %w", err)
		}
	}
	return matched, nil
}

func (d *diskStore) close() error {
	err := d.db.Close()
	if unlockErr := d.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}
