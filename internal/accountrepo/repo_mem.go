package accountrepo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/txpkg"
)

var (
	// ErrTxDone indicates use of a transaction after commit or rollback.
	ErrTxDone = errors.New("transaction has already been committed or rolled back")
	// ErrReadSetChanged indicates that a row read by the transaction was changed
	// by another transaction that committed first.
	ErrReadSetChanged = errors.New("read set changed by a concurrent transaction")
)

type memRow struct {
	account domain.Account
	version uint64
}

// MemStore is an in-memory store with optimistic concurrency control.
//
// Transactions read committed rows, buffer their writes and validate at commit
// that every row they read (or found missing) still has the same version.
// A failed validation aborts the commit with a retriable conflict. Transfer ids
// are taken from a sequence when recorded, so aborted transactions leave gaps.
type MemStore struct {
	mu             sync.Mutex
	accounts       map[int64]memRow
	transfers      []domain.Transfer
	nextTransferID int64
	now            func() time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[int64]memRow),
		now:      time.Now,
	}
}

// Begin starts a transaction.
func (s *MemStore) Begin(ctx context.Context) (domain.AccountTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &memTx{
		store:  s,
		reads:  make(map[int64]uint64),
		writes: make(map[int64]domain.Account),
		insert: make(map[int64]bool),
	}, nil
}

// Snapshot returns the committed accounts ordered by id.
func (s *MemStore) Snapshot() []domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.Account, 0, len(s.accounts))
	for _, row := range s.accounts {
		items = append(items, row.account)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	return items
}

type memTx struct {
	store     *MemStore
	reads     map[int64]uint64
	writes    map[int64]domain.Account
	insert    map[int64]bool
	transfers []domain.Transfer
	done      bool
}

// read returns the committed row and records its version in the read set.
// The first observed version wins so that later changes are detected.
func (t *memTx) read(id int64) (memRow, bool) {
	t.store.mu.Lock()
	row, ok := t.store.accounts[id]
	t.store.mu.Unlock()

	if _, seen := t.reads[id]; !seen {
		t.reads[id] = row.version
	}

	return row, ok
}

func (t *memTx) Get(ctx context.Context, id int64) (domain.Account, error) {
	if t.done {
		return domain.Account{}, ErrTxDone
	}

	if a, ok := t.writes[id]; ok {
		return a, nil
	}

	row, ok := t.read(id)
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return row.account, nil
}

func (t *memTx) Insert(ctx context.Context, a domain.Account) error {
	if t.done {
		return ErrTxDone
	}

	if a.Balance.IsNegative() {
		return domain.ErrNegativeBalance
	}

	if _, ok := t.writes[a.ID]; ok {
		return domain.ErrAccountAlreadyExists
	}

	if _, ok := t.read(a.ID); ok {
		return domain.ErrAccountAlreadyExists
	}

	t.writes[a.ID] = a
	t.insert[a.ID] = true

	return nil
}

func (t *memTx) Put(ctx context.Context, a domain.Account) error {
	if t.done {
		return ErrTxDone
	}

	if a.Balance.IsNegative() {
		return domain.ErrNegativeBalance
	}

	if _, ok := t.writes[a.ID]; !ok {
		if _, ok := t.read(a.ID); !ok {
			return domain.ErrAccountNotFound
		}
	}

	t.writes[a.ID] = a

	return nil
}

func (t *memTx) InsertTransfer(ctx context.Context, tr domain.Transfer) (domain.Transfer, error) {
	if t.done {
		return domain.Transfer{}, ErrTxDone
	}

	if !tr.Amount.IsPositive() {
		return domain.Transfer{}, domain.ErrInvalidAmount
	}

	for _, id := range []int64{tr.FromAccountID, tr.ToAccountID} {
		if _, err := t.Get(ctx, id); err != nil {
			return domain.Transfer{}, err
		}
	}

	t.store.mu.Lock()
	t.store.nextTransferID++
	tr.ID = t.store.nextTransferID
	t.store.mu.Unlock()

	tr.CreatedAt = t.store.now().UTC()
	t.transfers = append(t.transfers, tr)

	return tr, nil
}

func (t *memTx) ListTransfers(ctx context.Context, arg domain.ListTransfersParams) ([]domain.Transfer, error) {
	if t.done {
		return nil, ErrTxDone
	}

	t.store.mu.Lock()
	visible := make([]domain.Transfer, 0, len(t.store.transfers)+len(t.transfers))
	visible = append(visible, t.store.transfers...)
	t.store.mu.Unlock()

	// Own uncommitted rows are visible inside the transaction.
	visible = append(visible, t.transfers...)
	sort.Slice(visible, func(i, j int) bool { return visible[i].ID < visible[j].ID })

	items := []domain.Transfer{}
	skipped := int32(0)

	for _, tr := range visible {
		if tr.FromAccountID != arg.AccountID && tr.ToAccountID != arg.AccountID {
			continue
		}

		if skipped < arg.Offset {
			skipped++
			continue
		}

		if int32(len(items)) >= arg.Limit {
			break
		}

		items = append(items, tr)
	}

	return items, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}

	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, version := range t.reads {
		if s.accounts[id].version != version {
			return txpkg.Conflict(ErrReadSetChanged)
		}
	}

	for id := range t.insert {
		if _, ok := s.accounts[id]; ok {
			return txpkg.Conflict(ErrReadSetChanged)
		}
	}

	for id, a := range t.writes {
		s.accounts[id] = memRow{account: a, version: s.accounts[id].version + 1}
	}

	s.transfers = append(s.transfers, t.transfers...)
	sort.Slice(s.transfers, func(i, j int) bool { return s.transfers[i].ID < s.transfers[j].ID })

	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}
