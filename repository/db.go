package repository

import (
	"database/sql"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	// DriverSQLite opens the database through sqliteshim
	DriverSQLite = "sqlite"
	// DriverPostgres opens the database through pgx
	DriverPostgres = "postgres"

	pgUniqueViolation = "23505"

	emailIndex = "accounts_email_uidx"
	primaryKey = "accounts_pkey"
)

// Open returns a bun.DB for driver and dsn.
func Open(driver, dsn string) (*bun.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite, "sqlite3":
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
		}
		// in-memory databases are per connection
		if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
			sqldb.SetMaxOpenConns(1)
		}
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres, "pgx", "pg":
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres database")
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, goerrors.New("unsupported database driver", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"driver": driver})
	}
}

// uniqueConflict returns the constraint named by a unique violation. SQLite
// reports the column as table.column, postgres the index or key name.
func uniqueConflict(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return "", false
		}
		return pgErr.ConstraintName, true
	}

	msg := err.Error()
	if _, after, ok := strings.Cut(msg, "UNIQUE constraint failed:"); ok {
		// modernc appends the extended result code, e.g. " (2067)"
		constraint, _, _ := strings.Cut(strings.TrimSpace(after), " ")
		return constraint, true
	}
	if _, after, ok := strings.Cut(msg, "duplicate key value violates unique constraint"); ok {
		return strings.Trim(strings.TrimSpace(after), `"`), true
	}
	return "", false
}

func isEmailConflict(err error) bool {
	constraint, ok := uniqueConflict(err)
	if !ok {
		return false
	}
	switch constraint {
	case emailIndex, "accounts.email":
		return true
	}
	return false
}

func isIDConflict(err error) bool {
	constraint, ok := uniqueConflict(err)
	if !ok {
		return false
	}
	switch constraint {
	case primaryKey, "accounts.id":
		return true
	}
	return false
}
