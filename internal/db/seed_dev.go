package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedDevOptions struct {
	// PreapprovedCallers get an allowed grant row so local tooling can read
	// wallpapers without going through the approval prompt.
	PreapprovedCallers []string
}

func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	for _, identity := range opt.PreapprovedCallers {
		identity = strings.TrimSpace(identity)
		if identity == "" {
			continue
		}

		if _, err := db.ExecContext(ctx, `
INSERT INTO caller_grants(package_name, allowed_access, request_count, last_accessed)
VALUES (?, 1, 0, ?)
ON CONFLICT(package_name) DO UPDATE SET
  allowed_access = 1;
`, identity, now); err != nil {
			return fmt.Errorf("seed grant %s: %w", identity, err)
		}
	}

	return nil
}
