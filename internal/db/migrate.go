package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"ledger-serverless/internal/observability"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// gooseUp is replaced in tests.
var gooseUp = func(ctx context.Context, database *sql.DB, dir string) error {
	return goose.UpContext(ctx, database, dir)
}

func RunMigrations(ctx context.Context, database *sql.DB, logger *observability.Logger) error {
	goose.SetBaseFS(migrationFiles)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := gooseUp(ctx, database, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

type gooseLogger struct {
	logger *observability.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info("migration", map[string]any{"detail": strings.TrimSpace(fmt.Sprintf(format, v...))})
}

// Fatalf does not exit; goose returns the same failure as an error.
func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error("migration_failed", map[string]any{"detail": strings.TrimSpace(fmt.Sprintf(format, v...))})
}
