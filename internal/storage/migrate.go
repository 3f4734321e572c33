package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	_ "github.com/lib/pq"
)

// migrations holds the records schema, applied on every NewStorage.
//
//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// migrate brings the records schema up to the latest embedded version.
func migrate(ctx context.Context, db *sql.DB) error {
	const op = "storage.migrate"

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	before, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	after, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if after != before {
		slog.Info("records schema migrated", "from", before, "to", after)
	}
	return nil
}
