package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Handler exposes ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/organizations/{orgID}/accounts", h.listAccounts)
	r.Post("/organizations/{orgID}/accounts", h.createAccount)
	r.Post("/organizations/{orgID}/activate", h.activateOrganization)
	r.Get("/organizations/{orgID}/tax-rates", h.listTaxRates)
	r.Post("/organizations/{orgID}/tax-rates", h.createTaxRate)
	r.Get("/organizations/{orgID}/transactions", h.listTransactions)
	r.Get("/accounts/{id}/balance", h.accountBalance)
	r.Post("/transactions/{id}/reverse", h.reverseTransaction)
}

type createAccountRequest struct {
	AccountTypeID           int64  `json:"account_type_id" validate:"required,gt=0"`
	TaxRateID               *int64 `json:"tax_rate_id,omitempty"`
	Code                    string `json:"code" validate:"required,max=20"`
	Name                    string `json:"name" validate:"required,max=120"`
	EnablePaymentsToAccount bool   `json:"enable_payments_to_account"`
	BankName                string `json:"bank_name,omitempty"`
	BankBSB                 string `json:"bank_bsb,omitempty"`
	BankAccountNumber       string `json:"bank_account_number,omitempty"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	orgID := pathID(r, "orgID")
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateAccountInput{
		OrgID:                   orgID,
		AccountTypeID:           req.AccountTypeID,
		TaxRateID:               req.TaxRateID,
		Code:                    req.Code,
		Name:                    req.Name,
		EnablePaymentsToAccount: req.EnablePaymentsToAccount,
		BankName:                req.BankName,
		BankBSB:                 req.BankBSB,
		BankAccountNumber:       req.BankAccountNumber,
	})
	if err != nil {
		h.logger.Error("create account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context(), pathID(r, "orgID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) activateOrganization(w http.ResponseWriter, r *http.Request) {
	orgID := pathID(r, "orgID")
	if err := h.service.ActivateOrganization(r.Context(), orgID, shared.ActorFromContext(r.Context())); err != nil {
		h.logger.Error("activate organization", slog.Int64("org_id", orgID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"org_id": orgID, "active": true})
}

type createTaxRateRequest struct {
	Name string `json:"name" validate:"required,max=60"`
	Rate string `json:"rate" validate:"required"`
}

func (h *Handler) createTaxRate(w http.ResponseWriter, r *http.Request) {
	var req createTaxRateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError(shared.FieldError{Field: "rate", Message: "decimal"}))
		return
	}
	created, err := h.service.CreateTaxRate(r.Context(), CreateTaxRateInput{
		OrgID: pathID(r, "orgID"),
		Name:  req.Name,
		Rate:  rate,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listTaxRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.service.ListTaxRates(r.Context(), pathID(r, "orgID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rates)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	txs, err := h.service.ListTransactions(r.Context(), pathID(r, "orgID"), limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txs)
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	accountID := pathID(r, "id")
	account, err := h.service.Account(r.Context(), accountID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := BalanceQuery{OrgID: account.OrgID, GLAccountID: accountID}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid from date")
			return
		}
		q.From = &from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid to date")
			return
		}
		q.To = &to
	}
	balance, err := h.service.Balance(r.Context(), q)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

type reverseRequest struct {
	Memo string `json:"memo,omitempty"`
}

func (h *Handler) reverseTransaction(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	_ = httpx.DecodeJSON(r, &req)
	reversal, err := h.service.Reverse(r.Context(), pathID(r, "id"), shared.ActorFromContext(r.Context()), req.Memo)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}
