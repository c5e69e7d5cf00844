package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	dbpkg "github.com/prismwall/prismd/internal/db"
	"github.com/prismwall/prismd/internal/prism/store"
)

type SettingsStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewSettingsStore(db *sql.DB, writer *dbpkg.Worker) *SettingsStore {
	return &SettingsStore{db: db, writer: writer}
}

// Get returns nil for both a missing key and a NULL value.
func (s *SettingsStore) Get(ctx context.Context, key string) (*string, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM key_value WHERE key = ?;", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %s: %w: %w", key, store.ErrStorage, err)
	}
	if !v.Valid {
		return nil, nil
	}
	return &v.String, nil
}

func (s *SettingsStore) Set(ctx context.Context, key string, value *string) error {
	var arg any
	if value != nil {
		arg = *value
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO key_value(key, value) VALUES (?, ?);", key, arg)
		return err
	})
	if err != nil {
		return fmt.Errorf("set setting %s: %w: %w", key, store.ErrStorage, err)
	}
	return nil
}
