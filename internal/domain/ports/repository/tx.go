package repository

import "context"

// Tx is the infra-defined transaction handle (pgx.Tx, *sql.Tx). Repositories
// accept nil to run on the pool.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction and commits when
// fn returns nil. Repository calls inside fn must pass tx through.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
