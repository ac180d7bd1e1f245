// Package ledgerapp runs the ledger application flow: seed accounts, read
// balances, transfer funds and attempt a transfer that must be declined.
package ledgerapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/txpkg"
)

// Ledger provides the operations the flow sequences.
type Ledger interface {
	SeedAccounts(ctx context.Context, accounts []domain.Account) txpkg.Result[int]
	Balances(ctx context.Context, ids ...int64) txpkg.Result[[]domain.Account]
	Transfer(ctx context.Context, arg domain.TransferParams) txpkg.Result[domain.Transfer]
}

// Params configures the flow.
type Params struct {
	Accounts      []domain.Account
	FromAccountID int64
	ToAccountID   int64
	Amount        decimal.Decimal
	// Overdraft is moved back from ToAccountID and is expected to be declined.
	Overdraft decimal.Decimal
}

// DefaultParams returns the demo accounts and amounts.
func DefaultParams() Params {
	return Params{
		Accounts: []domain.Account{
			{ID: 1, Balance: decimal.RequireFromString("1000.00")},
			{ID: 2, Balance: decimal.RequireFromString("250.00")},
			{ID: 3, Balance: decimal.RequireFromString("314159.00")},
		},
		FromAccountID: 1,
		ToAccountID:   2,
		Amount:        decimal.RequireFromString("100.00"),
		Overdraft:     decimal.RequireFromString("100000.00"),
	}
}

// Report holds what each step of the flow observed.
type Report struct {
	Seeded    int
	Before    []domain.Account
	Transfer  txpkg.Result[domain.Transfer]
	After     []domain.Account
	Overdraft txpkg.Result[domain.Transfer]
	Final     []domain.Account
}

// Run executes the flow. Declined transfers are reported, not returned as
// errors; a failed step stops the flow.
func Run(ctx context.Context, ledger Ledger, p Params) (Report, error) {
	l := zerolog.Ctx(ctx)

	var (
		report Report
		err    error
	)

	seeded := ledger.SeedAccounts(ctx, p.Accounts)

	switch {
	case seeded.Committed():
		report.Seeded = seeded.Value
		l.Info().Msgf("addAccounts() --> %d", seeded.Value)
	case errors.Is(seeded.Err, domain.ErrAccountAlreadyExists):
		l.Warn().Msg("addAccounts() --> accounts already exist")
	default:
		return report, fmt.Errorf("seed accounts: %w", resultErr(seeded.Status, seeded.Reason, seeded.Err))
	}

	if report.Before, err = balances(ctx, ledger, p.FromAccountID, p.ToAccountID); err != nil {
		return report, err
	}

	report.Transfer = transfer(ctx, ledger, p.FromAccountID, p.ToAccountID, p.Amount)
	if report.Transfer.Failed() {
		return report, fmt.Errorf("transfer: %w", report.Transfer.Err)
	}

	if report.After, err = balances(ctx, ledger, p.FromAccountID, p.ToAccountID); err != nil {
		return report, err
	}

	report.Overdraft = transfer(ctx, ledger, p.ToAccountID, p.FromAccountID, p.Overdraft)
	if report.Overdraft.Failed() {
		return report, fmt.Errorf("overdraft transfer: %w", report.Overdraft.Err)
	}

	if report.Final, err = balances(ctx, ledger, p.FromAccountID, p.ToAccountID); err != nil {
		return report, err
	}

	return report, nil
}

func balances(ctx context.Context, ledger Ledger, ids ...int64) ([]domain.Account, error) {
	res := ledger.Balances(ctx, ids...)
	if !res.Committed() {
		return nil, fmt.Errorf("get balances: %w", resultErr(res.Status, res.Reason, res.Err))
	}

	l := zerolog.Ctx(ctx)
	for _, a := range res.Value {
		l.Info().Msgf("getAccountBalance(%d) --> %s", a.ID, a.Balance.StringFixed(2))
	}

	return res.Value, nil
}

func transfer(ctx context.Context, ledger Ledger, from, to int64, amount decimal.Decimal) txpkg.Result[domain.Transfer] {
	res := ledger.Transfer(ctx, domain.TransferParams{FromAccountID: from, ToAccountID: to, Amount: amount})

	l := zerolog.Ctx(ctx)

	switch res.Status {
	case txpkg.StatusCommitted:
		l.Info().Msgf("transferFunds(%d, %d, %s) --> %s", from, to, amount.StringFixed(2), res.Value.Amount.StringFixed(2))
	case txpkg.StatusDeclined:
		l.Info().Err(res.Reason).Msgf("transferFunds(%d, %d, %s) --> declined", from, to, amount.StringFixed(2))
	default:
		l.Error().Err(res.Err).Msgf("transferFunds(%d, %d, %s) --> failed", from, to, amount.StringFixed(2))
	}

	return res
}

func resultErr(status txpkg.Status, reason, err error) error {
	switch {
	case err != nil:
		return err
	case reason != nil:
		return reason
	default:
		return fmt.Errorf("unexpected status %s", status)
	}
}
