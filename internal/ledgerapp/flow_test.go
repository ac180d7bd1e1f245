package ledgerapp

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-ledger/internal/accountrepo"
	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/ledgerservice"
	"github.com/go-petr/pet-ledger/pkg/backoffpkg"
	"github.com/go-petr/pet-ledger/pkg/txpkg"
)

var decimalComparer = cmp.Comparer(func(x, y decimal.Decimal) bool { return x.Equal(y) })

func account(id int64, balance string) domain.Account {
	return domain.Account{ID: id, Balance: decimal.RequireFromString(balance)}
}

func newLedger() (*ledgerservice.Service, *accountrepo.MemStore) {
	store := accountrepo.NewMemStore()
	exec := txpkg.New(txpkg.WithPolicy(backoffpkg.New(time.Millisecond, time.Millisecond, 10*time.Millisecond)))

	return ledgerservice.New(store, exec), store
}

func TestRun(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	ledger, store := newLedger()

	report, err := Run(ctx, ledger, DefaultParams())
	require.NoError(t, err)
	require.Equal(t, 3, report.Seeded)

	checks := []struct {
		name string
		want []domain.Account
		got  []domain.Account
	}{
		{"Before", []domain.Account{account(1, "1000.00"), account(2, "250.00")}, report.Before},
		{"After", []domain.Account{account(1, "900.00"), account(2, "350.00")}, report.After},
		{"Final", []domain.Account{account(1, "900.00"), account(2, "350.00")}, report.Final},
		{"Store", []domain.Account{account(1, "900.00"), account(2, "350.00"), account(3, "314159.00")}, store.Snapshot()},
	}

	for _, c := range checks {
		if diff := cmp.Diff(c.want, c.got, decimalComparer); diff != "" {
			t.Errorf("%s balances mismatch (-want +got):\n%s", c.name, diff)
		}
	}

	require.True(t, report.Transfer.Committed())
	require.Equal(t, "100.00", report.Transfer.Value.Amount.StringFixed(2))

	require.True(t, report.Overdraft.Declined())
	require.ErrorIs(t, report.Overdraft.Reason, domain.ErrInsufficientBalance)

	out := buf.String()
	require.Contains(t, out, "addAccounts() --> 3")
	require.Contains(t, out, "transferFunds(1, 2, 100.00) --> 100.00")
	require.Contains(t, out, "getAccountBalance(1) --> 900.00")
	require.Contains(t, out, "transferFunds(2, 1, 100000.00) --> declined")
}

func TestRunTwiceKeepsExistingAccounts(t *testing.T) {
	ledger, store := newLedger()

	_, err := Run(context.Background(), ledger, DefaultParams())
	require.NoError(t, err)

	report, err := Run(context.Background(), ledger, DefaultParams())
	require.NoError(t, err)
	require.Zero(t, report.Seeded)
	require.True(t, report.Transfer.Committed())

	if diff := cmp.Diff([]domain.Account{account(1, "800"), account(2, "450")}, report.Final, decimalComparer); diff != "" {
		t.Errorf("balances mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, store.Snapshot(), 3)
}

// stubLedger fails the operation named by failOn.
type stubLedger struct {
	*ledgerservice.Service
	failOn string
}

var errStub = errors.New("stub failure")

func (s stubLedger) SeedAccounts(ctx context.Context, accounts []domain.Account) txpkg.Result[int] {
	if s.failOn == "seed" {
		return txpkg.Fail[int](errStub)
	}

	return s.Service.SeedAccounts(ctx, accounts)
}

func (s stubLedger) Transfer(ctx context.Context, arg domain.TransferParams) txpkg.Result[domain.Transfer] {
	if s.failOn == "transfer" {
		return txpkg.Fail[domain.Transfer](errStub)
	}

	return s.Service.Transfer(ctx, arg)
}

func TestRunStopsOnFailure(t *testing.T) {
	testCases := []struct {
		name    string
		failOn  string
		params  func() Params
		wantMsg string
	}{
		{name: "Seed", failOn: "seed", params: DefaultParams, wantMsg: "seed accounts"},
		{name: "Transfer", failOn: "transfer", params: DefaultParams, wantMsg: "transfer"},
		{
			name: "MissingAccount",
			params: func() Params {
				p := DefaultParams()
				p.ToAccountID = 42
				return p
			},
			wantMsg: "get balances",
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ledger, _ := newLedger()

			_, err := Run(context.Background(), stubLedger{Service: ledger, failOn: tc.failOn}, tc.params())
			require.Error(t, err)
			require.True(t, strings.HasPrefix(err.Error(), tc.wantMsg), "got %v", err)
		})
	}
}
