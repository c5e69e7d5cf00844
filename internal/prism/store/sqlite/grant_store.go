package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/prismwall/prismd/internal/db"
	"github.com/prismwall/prismd/internal/prism/store"
	"github.com/prismwall/prismd/internal/prism/types"
)

type GrantStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewGrantStore(db *sql.DB, writer *dbpkg.Worker) *GrantStore {
	return &GrantStore{db: db, writer: writer}
}

func (s *GrantStore) Get(ctx context.Context, identity string) (types.CallerGrant, bool, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return types.CallerGrant{}, false, nil
	}

	row := s.db.QueryRowContext(ctx, `
SELECT package_name, allowed_access, request_count, last_accessed
FROM caller_grants
WHERE package_name = ?;
`, identity)

	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.CallerGrant{}, false, nil
	}
	if err != nil {
		return types.CallerGrant{}, false, fmt.Errorf("get grant %s: %w: %w", identity, store.ErrStorage, err)
	}
	return g, true, nil
}

// Upsert replaces the row keyed by g.Identity.
func (s *GrantStore) Upsert(ctx context.Context, g types.CallerGrant) error {
	identity := strings.TrimSpace(g.Identity)
	if identity == "" {
		return fmt.Errorf("upsert grant: empty identity")
	}
	if g.LastAccessed.IsZero() {
		g.LastAccessed = time.Now().UTC()
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO caller_grants(package_name, allowed_access, request_count, last_accessed)
VALUES (?, ?, ?, ?)
ON CONFLICT(package_name) DO UPDATE SET
  allowed_access = excluded.allowed_access,
  request_count  = excluded.request_count,
  last_accessed  = excluded.last_accessed;
`, identity, boolToInt(g.Allowed), max(g.RequestCount, 0), g.LastAccessed.UTC().UnixMilli())
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert grant %s: %w: %w", identity, store.ErrStorage, err)
	}
	return nil
}

func (s *GrantStore) List(ctx context.Context) ([]types.CallerGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT package_name, allowed_access, request_count, last_accessed
FROM caller_grants;
`)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w: %w", store.ErrStorage, err)
	}
	defer rows.Close()

	var out []types.CallerGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("list grants scan: %w: %w", store.ErrStorage, err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list grants: %w: %w", store.ErrStorage, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGrant(sc scanner) (types.CallerGrant, error) {
	var (
		g        types.CallerGrant
		allowed  int
		accessed int64
	)
	if err := sc.Scan(&g.Identity, &allowed, &g.RequestCount, &accessed); err != nil {
		return types.CallerGrant{}, err
	}
	g.Allowed = allowed == 1
	g.LastAccessed = time.UnixMilli(accessed).UTC()
	return g, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
