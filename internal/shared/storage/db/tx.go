package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Querier is the subset of *sql.DB and *sql.Tx used by repositories.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// TxManager runs functions inside a single database transaction.
type TxManager struct {
	DB *sql.DB
}

// NewTxManager builds a TxManager over db.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{DB: db}
}

// RunInTx executes fn in a transaction carried by ctx. A nested call joins the
// outer transaction, so only the outermost call commits.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := TxFromCtx(ctx); ok {
		return fn(ctx)
	}
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
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
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// TxFromCtx returns the transaction started by RunInTx, if any.
func TxFromCtx(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// QuerierFromCtx returns the active transaction or falls back to db.
func QuerierFromCtx(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := TxFromCtx(ctx); ok {
		return tx
	}
	return db
}
