// Package ledgerdelivery manages delivery layer of the ledger.
package ledgerdelivery

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/go-petr/pet-ledger/pkg/txpkg"
	"github.com/go-petr/pet-ledger/pkg/web"
)

// Service provides service layer interface needed by ledger delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package ledgerdelivery
type Service interface {
	CreateAccount(ctx context.Context, a domain.Account) txpkg.Result[domain.Account]
	Get(ctx context.Context, id int64) txpkg.Result[domain.Account]
	Transfer(ctx context.Context, arg domain.TransferParams) txpkg.Result[domain.Transfer]
	ListTransfers(ctx context.Context, arg domain.ListTransfersParams) txpkg.Result[[]domain.Transfer]
}

var errDeclined = errors.New("declined")

// Handler facilitates ledger delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns ledger handler.
func NewHandler(s Service) *Handler {
	return &Handler{service: s}
}

// Register mounts the ledger routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/accounts", h.CreateAccount)
	r.GET("/accounts/:id", h.GetAccount)
	r.GET("/accounts/:id/transfers", h.ListTransfers)
	r.POST("/transfers", h.CreateTransfer)
}

type accountData struct {
	Account domain.Account `json:"account"`
}

type transferData struct {
	Transfer domain.Transfer `json:"transfer"`
}

type transfersData struct {
	Transfers []domain.Transfer `json:"transfers"`
}

type createAccountRequest struct {
	ID      int64  `json:"id" binding:"required,min=1"`
	Balance string `json:"balance" binding:"required,balance"`
}

// CreateAccount handles http request to create an account with an opening balance.
func (h *Handler) CreateAccount(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req createAccountRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: web.BindingErrorMsg(err)})

		return
	}

	balance, err := moneypkg.ParseBalance(req.Balance)
	if err != nil {
		gctx.JSON(http.StatusBadRequest, web.Error(err))
		return
	}

	res := h.service.CreateAccount(ctx, domain.Account{ID: req.ID, Balance: balance})
	if !res.Committed() {
		writeFailure(gctx, res.Status, res.Reason, res.Err)
		return
	}

	gctx.JSON(http.StatusCreated, web.Response{Data: accountData{res.Value}})
}

type accountURI struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

// GetAccount handles http request to get an account.
func (h *Handler) GetAccount(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var uri accountURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: web.BindingErrorMsg(err)})

		return
	}

	res := h.service.Get(ctx, uri.ID)
	if !res.Committed() {
		writeFailure(gctx, res.Status, res.Reason, res.Err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: accountData{res.Value}})
}

type listTransfersQuery struct {
	Limit  int32 `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int32 `form:"offset" binding:"omitempty,min=0"`
}

// ListTransfers handles http request to list the transfers of an account.
func (h *Handler) ListTransfers(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var uri accountURI
	if err := gctx.ShouldBindUri(&uri); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: web.BindingErrorMsg(err)})

		return
	}

	var query listTransfersQuery
	if err := gctx.ShouldBindQuery(&query); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: web.BindingErrorMsg(err)})

		return
	}

	res := h.service.ListTransfers(ctx, domain.ListTransfersParams{
		AccountID: uri.ID,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if !res.Committed() {
		writeFailure(gctx, res.Status, res.Reason, res.Err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: transfersData{res.Value}})
}

type createTransferRequest struct {
	FromAccountID int64  `json:"from_account_id" binding:"required,min=1"`
	ToAccountID   int64  `json:"to_account_id" binding:"required,min=1,nefield=FromAccountID"`
	Amount        string `json:"amount" binding:"required,amount"`
}

// CreateTransfer handles http request to transfer funds between two accounts.
func (h *Handler) CreateTransfer(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req createTransferRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: web.BindingErrorMsg(err)})

		return
	}

	amount, err := moneypkg.ParseAmount(req.Amount)
	if err != nil {
		gctx.JSON(http.StatusBadRequest, web.Error(err))
		return
	}

	res := h.service.Transfer(ctx, domain.TransferParams{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        amount,
	})
	if !res.Committed() {
		writeFailure(gctx, res.Status, res.Reason, res.Err)
		return
	}

	gctx.JSON(http.StatusCreated, web.Response{Data: transferData{res.Value}})
}

// writeFailure maps a declined or failed result to an error response.
func writeFailure(gctx *gin.Context, status txpkg.Status, reason, err error) {
	l := zerolog.Ctx(gctx.Request.Context())

	if status == txpkg.StatusDeclined {
		if reason == nil {
			reason = errDeclined
		}

		l.Info().Err(reason).Msg("declined")
		gctx.JSON(http.StatusBadRequest, web.Error(reason))

		return
	}

	if err == nil {
		err = txpkg.ErrNoOutcome
	}

	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		gctx.JSON(http.StatusNotFound, web.Error(domain.ErrAccountNotFound))
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		gctx.JSON(http.StatusConflict, web.Error(domain.ErrAccountAlreadyExists))
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrNegativeBalance):
		gctx.JSON(http.StatusBadRequest, web.Error(err))
	case errors.Is(err, txpkg.ErrCancelled):
		l.Warn().Err(err).Send()
		gctx.JSON(http.StatusServiceUnavailable, web.Error(txpkg.ErrCancelled))
	default:
		l.Error().Err(err).Send()
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
	}
}
