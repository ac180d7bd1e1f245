package ledgerservice

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-ledger/internal/accountrepo"
	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/backoffpkg"
	"github.com/go-petr/pet-ledger/pkg/randompkg"
	"github.com/go-petr/pet-ledger/pkg/txpkg"
)

var decimalComparer = cmp.Comparer(func(x, y decimal.Decimal) bool { return x.Equal(y) })

func account(id int64, balance string) domain.Account {
	return domain.Account{ID: id, Balance: decimal.RequireFromString(balance)}
}

func fastExecutor(opts ...txpkg.Option) *txpkg.Executor {
	opts = append([]txpkg.Option{
		txpkg.WithPolicy(backoffpkg.New(time.Millisecond, time.Millisecond, 5*time.Millisecond)),
	}, opts...)

	return txpkg.New(opts...)
}

func seededService(t *testing.T, accounts ...domain.Account) (*Service, *accountrepo.MemStore) {
	t.Helper()

	store := accountrepo.NewMemStore()
	s := New(store, fastExecutor())

	res := s.SeedAccounts(context.Background(), accounts)
	require.True(t, res.Committed(), "seed: %v", res.Err)
	require.Equal(t, len(accounts), res.Value)

	return s, store
}

func sum(accounts []domain.Account) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}

	return total
}

func TestLedgerScenario(t *testing.T) {
	ctx := context.Background()
	s, store := seededService(t, account(1, "1000.00"), account(2, "250.00"), account(3, "314159.00"))

	res := s.Transfer(ctx, domain.TransferParams{FromAccountID: 1, ToAccountID: 2, Amount: decimal.RequireFromString("100.00")})
	require.True(t, res.Committed(), "transfer: %v", res.Err)
	require.Equal(t, "100.00", res.Value.Amount.StringFixed(2))

	want := []domain.Account{account(1, "900.00"), account(2, "350.00"), account(3, "314159.00")}
	if diff := cmp.Diff(want, store.Snapshot(), decimalComparer); diff != "" {
		t.Errorf("balances mismatch (-want +got):\n%s", diff)
	}

	res = s.Transfer(ctx, domain.TransferParams{FromAccountID: 2, ToAccountID: 1, Amount: decimal.RequireFromString("100000.00")})
	require.True(t, res.Declined())
	require.ErrorIs(t, res.Reason, domain.ErrInsufficientBalance)

	if diff := cmp.Diff(want, store.Snapshot(), decimalComparer); diff != "" {
		t.Errorf("declined transfer changed balances (-want +got):\n%s", diff)
	}

	balance := s.Balance(ctx, 2)
	require.True(t, balance.Committed())
	require.Equal(t, "350.00", balance.Value.StringFixed(2))

	transfers := s.ListTransfers(ctx, domain.ListTransfersParams{AccountID: 1})
	require.True(t, transfers.Committed())
	require.Len(t, transfers.Value, 1)
	require.Equal(t, int64(2), transfers.Value[0].ToAccountID)
}

func TestTransfer(t *testing.T) {
	testCases := []struct {
		name          string
		arg           domain.TransferParams
		checkResponse func(t *testing.T, res txpkg.Result[domain.Transfer])
		wantBalances  []domain.Account
	}{
		{
			name: "OK",
			arg:  domain.TransferParams{FromAccountID: 2, ToAccountID: 1, Amount: decimal.RequireFromString("10.50")},
			checkResponse: func(t *testing.T, res txpkg.Result[domain.Transfer]) {
				require.True(t, res.Committed())
				require.NotZero(t, res.Value.ID)
				require.Equal(t, int64(2), res.Value.FromAccountID)
			},
			wantBalances: []domain.Account{account(1, "110.50"), account(2, "39.50")},
		},
		{
			name: "WholeBalance",
			arg:  domain.TransferParams{FromAccountID: 1, ToAccountID: 2, Amount: decimal.RequireFromString("100")},
			checkResponse: func(t *testing.T, res txpkg.Result[domain.Transfer]) {
				require.True(t, res.Committed())
			},
			wantBalances: []domain.Account{account(1, "0"), account(2, "150")},
		},
		{
			name: "InsufficientBalance",
			arg:  domain.TransferParams{FromAccountID: 2, ToAccountID: 1, Amount: decimal.RequireFromString("50.01")},
			checkResponse: func(t *testing.T, res txpkg.Result[domain.Transfer]) {
				require.True(t, res.Declined())
				require.ErrorIs(t, res.Reason, domain.ErrInsufficientBalance)
			},
			wantBalances: []domain.Account{account(1, "100"), account(2, "50")},
		},
		{
			name: "ZeroAmount",
			arg:  domain.TransferParams{FromAccountID: 1, ToAccountID: 2, Amount: decimal.Zero},
			checkResponse: func(t *testing.T, res txpkg.Result[domain.Transfer]) {
				require.True(t, res.Failed())
				require.ErrorIs(t, res.Err, domain.ErrInvalidAmount)
			},
			wantBalances: []domain.Account{account(1, "100"), account(2, "50")},
		},
		{
			name: "NegativeAmount",
			arg:  domain.TransferParams{FromAccountID: 1, ToAccountID: 2, Amount: decimal.NewFromInt(-5)},
			checkResponse: func(t *testing.T, res txpkg.Result[domain.Transfer]) {
				require.ErrorIs(t, res.Err, domain.ErrInvalidAmount)
			},
			wantBalances: []domain.Account{account(1, "100"), account(2, "50")},
		},
		{
			name: "SameAccount",
			arg:  domain.TransferParams{FromAccountID: 1, ToAccountID: 1, Amount: decimal.NewFromInt(5)},
			checkResponse: func(t *testing.T, res txpkg.Result[domain.Transfer]) {
				require.ErrorIs(t, res.Err, domain.ErrSameAccount)
			},
			wantBalances: []domain.Account{account(1, "100"), account(2, "50")},
		},
		{
			name: "MissingAccount",
			arg:  domain.TransferParams{FromAccountID: 1, ToAccountID: 7, Amount: decimal.NewFromInt(5)},
			checkResponse: func(t *testing.T, res txpkg.Result[domain.Transfer]) {
				require.True(t, res.Failed())
				require.ErrorIs(t, res.Err, domain.ErrAccountNotFound)
			},
			wantBalances: []domain.Account{account(1, "100"), account(2, "50")},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s, store := seededService(t, account(1, "100"), account(2, "50"))

			tc.checkResponse(t, s.Transfer(context.Background(), tc.arg))

			if diff := cmp.Diff(tc.wantBalances, store.Snapshot(), decimalComparer); diff != "" {
				t.Errorf("balances mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	s, store := seededService(t, account(1, "1"))

	res := s.CreateAccount(ctx, account(2, "5"))
	require.True(t, res.Committed())
	require.Equal(t, int64(2), res.Value.ID)

	res = s.CreateAccount(ctx, account(2, "9"))
	require.True(t, res.Failed())
	require.ErrorIs(t, res.Err, domain.ErrAccountAlreadyExists)

	res = s.CreateAccount(ctx, account(3, "-1"))
	require.ErrorIs(t, res.Err, domain.ErrNegativeBalance)

	require.Len(t, store.Snapshot(), 2)
}

func TestGetMissingAccount(t *testing.T) {
	s, _ := seededService(t)

	res := s.Get(context.Background(), 42)
	require.True(t, res.Failed())
	require.ErrorIs(t, res.Err, domain.ErrAccountNotFound)

	balance := s.Balance(context.Background(), 42)
	require.True(t, balance.Failed())
	require.ErrorIs(t, balance.Err, domain.ErrAccountNotFound)
}

func TestBalances(t *testing.T) {
	s, _ := seededService(t, account(1, "1"), account(2, "2"), account(3, "3"))

	res := s.Balances(context.Background(), 3, 1)
	require.True(t, res.Committed())

	want := []domain.Account{account(3, "3"), account(1, "1")}
	if diff := cmp.Diff(want, res.Value, decimalComparer); diff != "" {
		t.Errorf("Balances() mismatch (-want +got):\n%s", diff)
	}

	require.ErrorIs(t, s.Balances(context.Background(), 1, 9).Err, domain.ErrAccountNotFound)
}

// interferingTx lets a concurrent writer commit right before the wrapped
// transaction commits.
type interferingTx struct {
	domain.AccountTx
	interfere func()
}

func (t *interferingTx) Commit(ctx context.Context) error {
	t.interfere()
	return t.AccountTx.Commit(ctx)
}

func TestTransferRetriesAfterConflict(t *testing.T) {
	ctx := context.Background()

	store := accountrepo.NewMemStore()
	seed := New(store, fastExecutor())
	require.True(t, seed.SeedAccounts(ctx, []domain.Account{account(1, "100"), account(2, "0")}).Committed())

	var begins, conflicts int32

	interfering := txpkg.BeginnerFunc[domain.AccountTx](func(ctx context.Context) (domain.AccountTx, error) {
		tx, err := store.Begin(ctx)
		if err != nil {
			return nil, err
		}

		if atomic.AddInt32(&begins, 1) > 1 {
			return tx, nil
		}

		return &interferingTx{AccountTx: tx, interfere: func() {
			res := seed.Transfer(ctx, domain.TransferParams{FromAccountID: 1, ToAccountID: 2, Amount: decimal.NewFromInt(30)})
			require.True(t, res.Committed())
		}}, nil
	})

	s := New(interfering, fastExecutor(txpkg.WithHook(func(_ context.Context, ev txpkg.Event) {
		if ev.Phase == txpkg.PhaseRetrySleep && ev.Outcome == txpkg.OutcomeConflict {
			atomic.AddInt32(&conflicts, 1)
		}
	})))

	res := s.Transfer(ctx, domain.TransferParams{FromAccountID: 1, ToAccountID: 2, Amount: decimal.NewFromInt(50)})
	require.True(t, res.Committed(), "transfer: %v", res.Err)
	require.Equal(t, int32(2), atomic.LoadInt32(&begins))
	require.Equal(t, int32(1), atomic.LoadInt32(&conflicts))

	want := []domain.Account{account(1, "20"), account(2, "80")}
	if diff := cmp.Diff(want, store.Snapshot(), decimalComparer); diff != "" {
		t.Errorf("balances mismatch (-want +got):\n%s", diff)
	}

	transfers := s.ListTransfers(ctx, domain.ListTransfersParams{AccountID: 2})
	require.True(t, transfers.Committed())
	require.Len(t, transfers.Value, 2)
}

func TestConcurrentTransfersConserveFunds(t *testing.T) {
	accounts := []domain.Account{account(1, "500"), account(2, "500"), account(3, "500"), account(4, "500")}
	s, store := seededService(t, accounts...)

	const (
		workers   = 8
		perWorker = 25
	)

	var committed, declined int64

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func(seed int64) {
			defer wg.Done()

			rnd := rand.New(rand.NewSource(seed))

			for i := 0; i < perWorker; i++ {
				from := rnd.Int63n(int64(len(accounts))) + 1
				to := from%int64(len(accounts)) + 1

				res := s.Transfer(context.Background(), domain.TransferParams{
					FromAccountID: from,
					ToAccountID:   to,
					Amount:        randompkg.AmountBetween(1, 200),
				})

				switch {
				case res.Committed():
					atomic.AddInt64(&committed, 1)
				case res.Declined():
					atomic.AddInt64(&declined, 1)
				default:
					t.Errorf("unexpected result: %v %v", res.Status, res.Err)
				}
			}
		}(int64(w))
	}

	wg.Wait()

	require.Equal(t, int64(workers*perWorker), committed+declined)

	snap := store.Snapshot()
	require.True(t, sum(accounts).Equal(sum(snap)), "total changed: %s != %s", sum(accounts), sum(snap))

	for _, a := range snap {
		require.False(t, a.Balance.IsNegative(), "account %d went negative", a.ID)
	}

	var journal int
	for _, a := range accounts {
		res := s.ListTransfers(context.Background(), domain.ListTransfersParams{AccountID: a.ID, Limit: workers * perWorker})
		require.True(t, res.Committed())
		journal += len(res.Value)
	}

	// Every transfer appears in the journal of both accounts.
	require.Equal(t, int(committed)*2, journal)
}

func TestCancelledContext(t *testing.T) {
	s, _ := seededService(t, account(1, "10"), account(2, "10"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := s.Transfer(ctx, domain.TransferParams{FromAccountID: 1, ToAccountID: 2, Amount: decimal.NewFromInt(1)})
	require.True(t, res.Failed())
	require.True(t, errors.Is(res.Err, context.Canceled))
}
