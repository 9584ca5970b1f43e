package config

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type PgxIface interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

var (
	_ PgxIface = &pgxpool.Pool{}
	_ PgxIface = &pgx.Conn{}
	_ PgxIface = pgx.Tx(nil)
)

// DBConnection opens a pool to the audit database.
// The database is optional: an empty URL returns (nil, nil)
// and callers fall back to the no-op audit store.
func DBConnection(ctx context.Context, url string, logger *zerolog.Logger) (*pgxpool.Pool, error) {
	if url == "" {
		logger.Debug().Msg("No database URL given, audit records will not be persisted")
		return nil, nil
	}

	dbconfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.WithMessage(err, "While parsing the database URL")
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbconfig)
	if err != nil {
		return nil, errors.WithMessage(err, "While connecting to the database")
	}

	return pool, nil
}
