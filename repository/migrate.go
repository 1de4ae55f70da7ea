package repository

import (
	"context"
	"database/sql"
	"embed"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its FS and dialect in package state
var gooseMu sync.Mutex

// Migrate applies every pending migration to db.
func Migrate(ctx context.Context, db *bun.DB) error {
	return runGoose(ctx, db, goose.UpContext)
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, db *bun.DB) error {
	return runGoose(ctx, db, goose.DownContext)
}

func runGoose(ctx context.Context, db *bun.DB, run func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(gooseDialect(db)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set migration dialect")
	}

	if err := run(ctx, db.DB, "migrations"); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to run migrations")
	}
	return nil
}

func gooseDialect(db *bun.DB) string {
	if db.Dialect().Name() == dialect.PG {
		return "postgres"
	}
	return "sqlite3"
}
