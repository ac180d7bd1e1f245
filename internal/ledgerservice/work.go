package ledgerservice

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/txpkg"
)

// Units of work. Each one reads what it needs through the transaction on every
// invocation, so the executor may run it again after a conflict.

func addAccounts(accounts []domain.Account) txpkg.Work[domain.AccountTx, int] {
	return func(ctx context.Context, tx domain.AccountTx) txpkg.Result[int] {
		for _, a := range accounts {
			if err := tx.Insert(ctx, a); err != nil {
				return txpkg.Fail[int](err)
			}
		}

		zerolog.Ctx(ctx).Debug().Int("count", len(accounts)).Msg("addAccounts")

		return txpkg.Ok(len(accounts))
	}
}

func getAccount(id int64) txpkg.Work[domain.AccountTx, domain.Account] {
	return func(ctx context.Context, tx domain.AccountTx) txpkg.Result[domain.Account] {
		a, err := tx.Get(ctx, id)
		if err != nil {
			return txpkg.Fail[domain.Account](err)
		}

		zerolog.Ctx(ctx).Debug().
			Int64("account_id", id).
			Str("balance", a.Balance.StringFixed(2)).
			Msg("getAccountBalance")

		return txpkg.Ok(a)
	}
}

// transferFunds moves amount between two accounts and records the transfer.
// It declines without writing anything when the source balance is too low.
func transferFunds(arg domain.TransferParams) txpkg.Work[domain.AccountTx, domain.Transfer] {
	return func(ctx context.Context, tx domain.AccountTx) txpkg.Result[domain.Transfer] {
		// To avoid deadlocks read and write accounts in consistent id order
		firstID, secondID := arg.FromAccountID, arg.ToAccountID
		if secondID < firstID {
			firstID, secondID = secondID, firstID
		}

		first, err := tx.Get(ctx, firstID)
		if err != nil {
			return txpkg.Fail[domain.Transfer](err)
		}

		second, err := tx.Get(ctx, secondID)
		if err != nil {
			return txpkg.Fail[domain.Transfer](err)
		}

		from, to := first, second
		if from.ID != arg.FromAccountID {
			from, to = second, first
		}

		if arg.Amount.GreaterThan(from.Balance) {
			return txpkg.Decline[domain.Transfer](domain.ErrInsufficientBalance)
		}

		from.Balance = from.Balance.Sub(arg.Amount)
		to.Balance = to.Balance.Add(arg.Amount)

		updated := map[int64]domain.Account{from.ID: from, to.ID: to}
		for _, id := range []int64{firstID, secondID} {
			if err := tx.Put(ctx, updated[id]); err != nil {
				return txpkg.Fail[domain.Transfer](err)
			}
		}

		t, err := tx.InsertTransfer(ctx, domain.Transfer{
			FromAccountID: arg.FromAccountID,
			ToAccountID:   arg.ToAccountID,
			Amount:        arg.Amount,
		})
		if err != nil {
			return txpkg.Fail[domain.Transfer](err)
		}

		zerolog.Ctx(ctx).Debug().
			Int64("from_account_id", arg.FromAccountID).
			Int64("to_account_id", arg.ToAccountID).
			Str("amount", arg.Amount.StringFixed(2)).
			Msg("transferFunds")

		return txpkg.Ok(t)
	}
}

func listTransfers(arg domain.ListTransfersParams) txpkg.Work[domain.AccountTx, []domain.Transfer] {
	return func(ctx context.Context, tx domain.AccountTx) txpkg.Result[[]domain.Transfer] {
		if _, err := tx.Get(ctx, arg.AccountID); err != nil {
			return txpkg.Fail[[]domain.Transfer](err)
		}

		items, err := tx.ListTransfers(ctx, arg)
		if err != nil {
			return txpkg.Fail[[]domain.Transfer](err)
		}

		return txpkg.Ok(items)
	}
}
