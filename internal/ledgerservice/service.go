// Package ledgerservice manages business logic layer of the ledger.
//
// Every operation is a unit of work run by a txpkg.Executor, so a store
// conflict makes the whole operation start over in a fresh transaction.
package ledgerservice

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/txpkg"
)

const (
	tracerName = "github.com/go-petr/pet-ledger/internal/ledgerservice"

	// DefaultListLimit is used when ListTransfers is called without a limit.
	DefaultListLimit = 10
)

// Store opens account transactions.
type Store = txpkg.Beginner[domain.AccountTx]

// Service facilitates ledger service layer logic.
type Service struct {
	store  Store
	exec   *txpkg.Executor
	tracer trace.Tracer
}

// New returns ledger service struct to manage ledger bussines logic.
func New(store Store, exec *txpkg.Executor) *Service {
	return &Service{
		store:  store,
		exec:   exec,
		tracer: otel.Tracer(tracerName),
	}
}

// SeedAccounts inserts accounts in a single transaction and returns their count.
func (s *Service) SeedAccounts(ctx context.Context, accounts []domain.Account) txpkg.Result[int] {
	for _, a := range accounts {
		if a.Balance.IsNegative() {
			return txpkg.Fail[int](domain.ErrNegativeBalance)
		}
	}

	ctx, span := s.tracer.Start(ctx, "ledger.SeedAccounts", trace.WithAttributes(
		attribute.Int("ledger.accounts", len(accounts)),
	))
	defer span.End()

	res := txpkg.Run(ctx, s.exec, s.store, addAccounts(accounts))
	record(ctx, span, "SeedAccounts", res.Status, res.Reason, res.Err)

	return res
}

// CreateAccount inserts a single account.
func (s *Service) CreateAccount(ctx context.Context, a domain.Account) txpkg.Result[domain.Account] {
	if a.Balance.IsNegative() {
		return txpkg.Fail[domain.Account](domain.ErrNegativeBalance)
	}

	ctx, span := s.tracer.Start(ctx, "ledger.CreateAccount", trace.WithAttributes(
		attribute.Int64("ledger.account_id", a.ID),
	))
	defer span.End()

	res := txpkg.Run(ctx, s.exec, s.store, func(ctx context.Context, tx domain.AccountTx) txpkg.Result[domain.Account] {
		if r := addAccounts([]domain.Account{a})(ctx, tx); !r.Committed() {
			return txpkg.Fail[domain.Account](r.Err)
		}

		return txpkg.Ok(a)
	})
	record(ctx, span, "CreateAccount", res.Status, res.Reason, res.Err)

	return res
}

// Get returns the account with the given id.
func (s *Service) Get(ctx context.Context, id int64) txpkg.Result[domain.Account] {
	ctx, span := s.tracer.Start(ctx, "ledger.Get", trace.WithAttributes(
		attribute.Int64("ledger.account_id", id),
	))
	defer span.End()

	res := txpkg.Run(ctx, s.exec, s.store, getAccount(id))
	record(ctx, span, "Get", res.Status, res.Reason, res.Err)

	return res
}

// Balance returns the balance of the account with the given id.
func (s *Service) Balance(ctx context.Context, id int64) txpkg.Result[decimal.Decimal] {
	res := s.Get(ctx, id)
	if !res.Committed() {
		return txpkg.Result[decimal.Decimal]{Status: res.Status, Reason: res.Reason, Err: res.Err}
	}

	return txpkg.Ok(res.Value.Balance)
}

// Balances reads several accounts in one transaction, so the values are
// consistent with each other.
func (s *Service) Balances(ctx context.Context, ids ...int64) txpkg.Result[[]domain.Account] {
	ctx, span := s.tracer.Start(ctx, "ledger.Balances", trace.WithAttributes(
		attribute.Int64Slice("ledger.account_ids", ids),
	))
	defer span.End()

	res := txpkg.Run(ctx, s.exec, s.store, func(ctx context.Context, tx domain.AccountTx) txpkg.Result[[]domain.Account] {
		items := make([]domain.Account, 0, len(ids))

		for _, id := range ids {
			r := getAccount(id)(ctx, tx)
			if !r.Committed() {
				return txpkg.Fail[[]domain.Account](r.Err)
			}

			items = append(items, r.Value)
		}

		return txpkg.Ok(items)
	})
	record(ctx, span, "Balances", res.Status, res.Reason, res.Err)

	return res
}

// Transfer moves funds between two accounts. It is declined with
// domain.ErrInsufficientBalance when the source account cannot cover amount.
func (s *Service) Transfer(ctx context.Context, arg domain.TransferParams) txpkg.Result[domain.Transfer] {
	l := zerolog.Ctx(ctx)

	if !arg.Amount.IsPositive() {
		l.Info().Str("amount", arg.Amount.String()).Msg("invalid transfer amount")
		return txpkg.Fail[domain.Transfer](domain.ErrInvalidAmount)
	}

	if arg.FromAccountID == arg.ToAccountID {
		l.Info().Int64("account_id", arg.FromAccountID).Msg("transfer to the same account")
		return txpkg.Fail[domain.Transfer](domain.ErrSameAccount)
	}

	ctx, span := s.tracer.Start(ctx, "ledger.Transfer", trace.WithAttributes(
		attribute.Int64("ledger.from_account_id", arg.FromAccountID),
		attribute.Int64("ledger.to_account_id", arg.ToAccountID),
		attribute.String("ledger.amount", arg.Amount.String()),
	))
	defer span.End()

	res := txpkg.Run(ctx, s.exec, s.store, transferFunds(arg))
	record(ctx, span, "Transfer", res.Status, res.Reason, res.Err)

	return res
}

// ListTransfers pages through the transfers of an account, oldest first.
func (s *Service) ListTransfers(ctx context.Context, arg domain.ListTransfersParams) txpkg.Result[[]domain.Transfer] {
	if arg.Limit <= 0 {
		arg.Limit = DefaultListLimit
	}

	if arg.Offset < 0 {
		arg.Offset = 0
	}

	ctx, span := s.tracer.Start(ctx, "ledger.ListTransfers", trace.WithAttributes(
		attribute.Int64("ledger.account_id", arg.AccountID),
	))
	defer span.End()

	res := txpkg.Run(ctx, s.exec, s.store, listTransfers(arg))
	record(ctx, span, "ListTransfers", res.Status, res.Reason, res.Err)

	return res
}

func record(ctx context.Context, span trace.Span, op string, status txpkg.Status, reason, err error) {
	span.SetAttributes(attribute.String("ledger.status", status.String()))

	l := zerolog.Ctx(ctx)

	switch status {
	case txpkg.StatusDeclined:
		l.Info().Str("op", op).Err(reason).Msg("declined")
	case txpkg.StatusFailed:
		if err == nil {
			err = txpkg.ErrNoOutcome
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.Error().Str("op", op).Err(err).Msg("failed")
	case txpkg.StatusCommitted:
		span.SetStatus(codes.Ok, "")
	}
}
