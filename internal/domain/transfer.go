package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount indicates invalid amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientBalance indicates that the account does not have sufficient balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrSameAccount indicates a transfer from an account to itself.
	ErrSameAccount = errors.New("transfer to the same account")
)

// Transfer holds transfer data between two accounts.
type Transfer struct {
	ID            int64           `json:"id"`
	FromAccountID int64           `json:"from_account_id"`
	ToAccountID   int64           `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"` // must be positive
	CreatedAt     time.Time       `json:"created_at"`
}

// TransferParams is the input data for the transfer transaction.
type TransferParams struct {
	FromAccountID int64           `json:"from_account_id"`
	ToAccountID   int64           `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// ListTransfersParams is the input data to page through the transfers of an account.
type ListTransfersParams struct {
	AccountID int64 `json:"account_id"`
	Limit     int32 `json:"limit"`
	Offset    int32 `json:"offset"`
}
