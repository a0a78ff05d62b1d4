package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

// Pool is the subset of *pgxpool.Pool the repositories use. pgxmock.PgxPoolIface satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres SQLSTATEs the repositories map to domain errors.
const (
	UniqueViolation     = "23505"
	ForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a unique violation on constraint (any constraint when empty).
func IsUniqueViolation(err error, constraint string) bool {
	return isViolation(err, UniqueViolation, constraint)
}

// IsForeignKeyViolation reports whether err is a foreign key violation on constraint (any constraint when empty).
func IsForeignKeyViolation(err error, constraint string) bool {
	return isViolation(err, ForeignKeyViolation, constraint)
}

func isViolation(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// ConnectOptions controls how Open retries the initial connection.
type ConnectOptions struct {
	// Attempts is the number of connection attempts; values below 1 mean 1.
	Attempts uint64
	// Backoff is the base delay of the exponential backoff between attempts.
	Backoff time.Duration
}

// DefaultConnectOptions retries for roughly 15 seconds, enough for a database container to come up.
var DefaultConnectOptions = ConnectOptions{Attempts: 5, Backoff: 500 * time.Millisecond}

// Open creates a pgx pool for dsn and pings it, retrying with exponential backoff while the
// server is unreachable. A malformed DSN fails immediately. Caller must Close the pool.
func Open(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("db: DSN must not be empty")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultConnectOptions.Backoff
	}

	var pool *pgxpool.Pool
	backoff := retry.WithMaxRetries(opts.Attempts-1, retry.NewExponential(opts.Backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}
