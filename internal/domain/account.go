// Package domain provides defenitions of all entities.
package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound indicates that the account is not found.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountAlreadyExists indicates that an account with the given id already exists.
	ErrAccountAlreadyExists = errors.New("account already exists")
	// ErrNegativeBalance indicates an attempt to store a negative balance.
	ErrNegativeBalance = errors.New("negative balance")
)

// Account holds the balance of a ledger account.
type Account struct {
	ID      int64           `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// AccountTx is an open store transaction over accounts and transfers.
//
// Reads see the state as of the transaction; the store may refuse the commit
// with a retriable conflict if a concurrent transaction changed that state.
type AccountTx interface {
	Get(ctx context.Context, id int64) (Account, error)
	Insert(ctx context.Context, a Account) error
	Put(ctx context.Context, a Account) error
	InsertTransfer(ctx context.Context, t Transfer) (Transfer, error)
	ListTransfers(ctx context.Context, arg ListTransfersParams) ([]Transfer, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
