package cache

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore persists cache records across restarts. Useful for scraper
// results whose TTLs are measured in hours.
type SQLiteStore struct {
	db   *sql.DB
	done chan struct{}
}

// NewSQLiteStore opens (or creates) the cache database and applies pending
// migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	s := &SQLiteStore{db: db, done: make(chan struct{})}
	go s.janitor()
	return s, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value, created_at FROM cache_records WHERE key = ? AND expires_at > ?`,
		key, time.Now().UnixMilli())
	var value []byte
	var createdAt int64
	if err := row.Scan(&value, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return Record{Value: value, CreatedAt: time.UnixMilli(createdAt)}, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_records (key, value, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, value, now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) GetMany(ctx context.Context, keys []string) (map[string]Record, error) {
	out := make(map[string]Record, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys)+1)
	for _, key := range keys {
		args = append(args, key)
	}
	args = append(args, time.Now().UnixMilli())

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, created_at FROM cache_records WHERE key IN (`+placeholders+`) AND expires_at > ?`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("cache getmany: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		var createdAt int64
		if err := rows.Scan(&key, &value, &createdAt); err != nil {
			return nil, fmt.Errorf("cache getmany scan: %w", err)
		}
		out[key] = Record{Value: value, CreatedAt: time.UnixMilli(createdAt)}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.db.Close()
}

func (s *SQLiteStore) janitor() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if _, err := s.db.Exec(`DELETE FROM cache_records WHERE expires_at <= ?`, time.Now().UnixMilli()); err != nil {
				// Sweep failures are harmless; expired rows stay invisible to reads.
				continue
			}
		}
	}
}
