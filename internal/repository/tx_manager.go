package repository

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"
)

type txCtxKey struct{}

// ErrNoTransaction is returned by operations that only make sense inside RunInTx.
var ErrNoTransaction = errors.New("operation requires an active transaction")

// TransactionManager runs a unit of work in one database transaction carried by ctx.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db   *gorm.DB
	opts *sql.TxOptions
}

// NewTransactionManager uses the store's default isolation level; pass opts to override it.
func NewTransactionManager(db *gorm.DB, opts ...*sql.TxOptions) TransactionManager {
	tm := &transactionManager{db: db}
	if len(opts) > 0 {
		tm.opts = opts[0]
	}
	return tm
}

// RunInTx commits when fn returns nil and rolls everything back otherwise.
// A call made with a context that already carries a transaction joins it.
func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	run := func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txCtxKey{}, tx))
	}
	if t.opts != nil {
		return t.db.WithContext(ctx).Transaction(run, t.opts)
	}
	return t.db.WithContext(ctx).Transaction(run)
}

// InTx reports whether ctx carries a transaction started by RunInTx.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txCtxKey{}).(*gorm.DB)
	return ok
}

// GetDB returns the transaction carried by ctx, or rootDB when there is none.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txCtxKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}
