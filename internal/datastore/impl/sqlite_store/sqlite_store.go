package sqlite_store

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/Shopify/touchbuttons/internal/datastore"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS config_entries (
    entry_key TEXT PRIMARY KEY,
    payload BLOB NOT NULL,
    owner_tags TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// SQLiteStore persists one row per user entry in a local SQLite file.
type SQLiteStore struct {
	sqlDB *sql.DB
}

func MakeSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "ensure schema")
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT payload FROM config_entries WHERE entry_key = ?`, key)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, datastore.Fail("read", key, err)
	}
	return payload, true, nil
}

func (s *SQLiteStore) Write(ctx context.Context, key string, blob []byte, ownerTags []int64) error {
	if ownerTags == nil {
		ownerTags = []int64{}
	}
	tags, err := json.Marshal(ownerTags)
	if err != nil {
		return datastore.Fail("write", key, err)
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO config_entries (entry_key, payload, owner_tags, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(entry_key) DO UPDATE SET
		    payload = excluded.payload,
		    owner_tags = excluded.owner_tags,
		    updated_at = excluded.updated_at`,
		key, blob, string(tags), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return datastore.Fail("write", key, err)
	}
	return nil
}

func (s *SQLiteStore) Owners(ctx context.Context, key string) ([]int64, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT owner_tags FROM config_entries WHERE entry_key = ?`, key)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, datastore.Fail("owners", key, err)
	}
	var owners []int64
	if err := json.Unmarshal([]byte(raw), &owners); err != nil {
		return nil, datastore.Fail("owners", key, err)
	}
	return owners, nil
}
