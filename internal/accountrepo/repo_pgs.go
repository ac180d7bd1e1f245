// Package accountrepo manages repository layer of accounts.
package accountrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"
)

// RepoPGS opens serializable transactions on a Postgres-compatible database.
type RepoPGS struct {
	conn *sql.DB
	opts *sql.TxOptions
}

// NewRepoPGS returns account RepoPGS with connection to start transactions.
func NewRepoPGS(conn *sql.DB) *RepoPGS {
	return &RepoPGS{
		conn: conn,
		opts: &sql.TxOptions{Isolation: sql.LevelSerializable},
	}
}

// Begin starts a serializable transaction.
func (r *RepoPGS) Begin(ctx context.Context) (domain.AccountTx, error) {
	tx, err := r.conn.BeginTx(ctx, r.opts)
	if err != nil {
		return nil, mapErr(ctx, err)
	}

	return &TxPGS{tx: tx, db: tx}, nil
}

// TxPGS is an open transaction on RepoPGS.
type TxPGS struct {
	tx *sql.Tx
	db dbpkg.SQLInterface
}

const getQuery = `
SELECT id, balance
FROM accounts
WHERE id = $1
`

// Get returns the account with the given id.
func (t *TxPGS) Get(ctx context.Context, id int64) (domain.Account, error) {
	row := t.db.QueryRowContext(ctx, getQuery, id)

	var a domain.Account
	if err := row.Scan(&a.ID, &a.Balance); err != nil {
		return domain.Account{}, mapErr(ctx, err)
	}

	return a, nil
}

const insertQuery = `
INSERT INTO accounts (id, balance)
VALUES ($1, $2)
`

// Insert creates the account.
func (t *TxPGS) Insert(ctx context.Context, a domain.Account) error {
	if a.Balance.IsNegative() {
		return domain.ErrNegativeBalance
	}

	if _, err := t.db.ExecContext(ctx, insertQuery, a.ID, a.Balance); err != nil {
		return mapErr(ctx, err)
	}

	return nil
}

const updateBalanceQuery = `
UPDATE accounts
SET balance = $1
WHERE id = $2
`

// Put stores the balance of an existing account.
func (t *TxPGS) Put(ctx context.Context, a domain.Account) error {
	if a.Balance.IsNegative() {
		return domain.ErrNegativeBalance
	}

	res, err := t.db.ExecContext(ctx, updateBalanceQuery, a.Balance, a.ID)
	if err != nil {
		return mapErr(ctx, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(ctx, err)
	}

	if n == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

const insertTransferQuery = `
INSERT INTO transfers (from_account_id, to_account_id, amount)
VALUES ($1, $2, $3)
RETURNING id, created_at
`

// InsertTransfer records a transfer and returns it with its id and creation time.
func (t *TxPGS) InsertTransfer(ctx context.Context, tr domain.Transfer) (domain.Transfer, error) {
	row := t.db.QueryRowContext(ctx, insertTransferQuery, tr.FromAccountID, tr.ToAccountID, tr.Amount)

	if err := row.Scan(&tr.ID, &tr.CreatedAt); err != nil {
		return domain.Transfer{}, mapErr(ctx, err)
	}

	return tr, nil
}

const listTransfersQuery = `
SELECT id, from_account_id, to_account_id, amount, created_at
FROM transfers
WHERE from_account_id = $1 OR to_account_id = $1
ORDER BY id
LIMIT $2 OFFSET $3
`

// ListTransfers returns a page of the transfers touching the given account.
func (t *TxPGS) ListTransfers(ctx context.Context, arg domain.ListTransfersParams) ([]domain.Transfer, error) {
	rows, err := t.db.QueryContext(ctx, listTransfersQuery, arg.AccountID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	defer rows.Close()

	items := []domain.Transfer{}

	for rows.Next() {
		var tr domain.Transfer
		if err := rows.Scan(&tr.ID, &tr.FromAccountID, &tr.ToAccountID, &tr.Amount, &tr.CreatedAt); err != nil {
			return nil, mapErr(ctx, err)
		}

		items = append(items, tr)
	}

	if err := rows.Err(); err != nil {
		return nil, mapErr(ctx, err)
	}

	return items, nil
}

// Commit commits the transaction. Serialization failures are reported as
// retriable conflicts.
func (t *TxPGS) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return mapErr(ctx, err)
	}

	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is a no-op.
func (t *TxPGS) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return mapErr(ctx, err)
	}

	return nil
}

// mapErr converts driver errors to domain errors. Serialization failures keep
// their cause and are marked retriable; unknown errors are wrapped in ErrInternal.
func mapErr(ctx context.Context, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrAccountNotFound
	}

	if dbpkg.IsSerializationFailure(err) {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("serialization failure")
		return dbpkg.Classify(err)
	}

	switch dbpkg.Constraint(err) {
	case "accounts_pkey":
		return domain.ErrAccountAlreadyExists
	case "accounts_balance_check":
		return domain.ErrNegativeBalance
	case "transfers_from_account_id_fkey", "transfers_to_account_id_fkey":
		return domain.ErrAccountNotFound
	case "transfers_amount_check":
		return domain.ErrInvalidAmount
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	zerolog.Ctx(ctx).Error().Err(err).Send()

	return fmt.Errorf("%w: %v", errorspkg.ErrInternal, err)
}
