// Package postgres implements store.Store on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/collabspace/backend/internal/store"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error)
}

type queries struct {
	db querier
}

// Store is the pool-backed store. Outside InTx each call runs in its own
// implicit transaction.
type Store struct {
	*queries
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New creates a Store on pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: &queries{db: pool}, pool: pool}
}

// InTx runs fn in a read-committed transaction. Lock* methods issue
// SELECT ... FOR UPDATE so concurrent transactions on the same row serialize.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// noRows maps pgx.ErrNoRows to the store's (nil, nil) convention.
func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
