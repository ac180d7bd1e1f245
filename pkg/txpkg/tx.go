// Package txpkg runs units of work inside store transactions and transparently
// retries them when the store aborts a transaction on a serialization conflict.
package txpkg

import "context"

// Tx is an open store transaction.
//
//go:generate mockgen -source tx.go -destination tx_mock.go -package txpkg
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
