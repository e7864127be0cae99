package dbx

import (
	"context"
	"database/sql"
)

// Runner abstracts the unit-of-work boundary for services. The SQL-backed
// implementation wraps every call in a real transaction; stores that provide
// atomicity on their own (in-memory, redis) use the passthrough variant.
type Runner interface {
	// InTx runs fn as one atomic unit. The DBTX handed to fn is the staging
	// context all mutations of a logical operation must share.
	InTx(ctx context.Context, fn func(ctx context.Context, db DBTX) error) error
}

// SQLRunner executes units of work inside database transactions.
type SQLRunner struct {
	DB   *sql.DB
	Opts *sql.TxOptions
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{DB: db}
}

func (r *SQLRunner) InTx(ctx context.Context, fn func(ctx context.Context, db DBTX) error) error {
	return WithTx(ctx, r.DB, r.Opts, fn)
}

// PassthroughRunner runs fn directly. Used with storage backends whose
// conditional updates are already atomic at the store, where there is no
// separate commit step to fail.
type PassthroughRunner struct{}

func (PassthroughRunner) InTx(ctx context.Context, fn func(ctx context.Context, db DBTX) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, nil)
}
