package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// schemaFS holds the versioned Lighthouse schema: the single-row dashboard
// snapshot table and the actions queue.
//
//go:embed migrations/*.sql
var schemaFS embed.FS

// migrate brings db up to the latest schema version. A fresh database gets
// the dashboard and actions tables; an existing one only the versions it
// lacks.
func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	schema, err := fs.Sub(schemaFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: opening embedded schema: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, schema)
	if err != nil {
		return fmt.Errorf("store: preparing schema migrations: %w", err)
	}

	applied, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("store: migrating schema: %w", err)
	}

	if len(applied) == 0 {
		logger.Debug("store schema up to date")
		return nil
	}

	for _, r := range applied {
		logger.Info("store schema migrated",
			slog.Int64("version", r.Source.Version),
			slog.String("file", r.Source.Path),
			slog.Duration("took", r.Duration),
		)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("store: reading schema version: %w", err)
	}

	logger.Info("store schema ready", slog.Int64("version", version))

	return nil
}
