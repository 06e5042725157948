package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// TxManager runs a function as one unit of work. Repositories called with the
// context handed to fn take part in that unit of work.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// querier is the subset of *sql.DB and *sql.Tx the repositories need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// querierFrom returns the transaction carried by ctx, or db when there is none.
func querierFrom(ctx context.Context, db *sql.DB) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

type PostgresTxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) *PostgresTxManager {
	return &PostgresTxManager{db: db}
}

// txOptions relies on the FOR UPDATE row locks taken by every read-modify-write
// path: concurrent writers to one saving queue on the lock and re-read the
// committed row instead of failing with a serialization error.
var txOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// WithinTx begins a transaction, commits when fn returns nil and rolls back
// otherwise. Nested calls join the outer transaction.
func (m *PostgresTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, txOptions)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
