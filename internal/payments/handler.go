package payments

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

// Handler exposes payment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the payment handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.receive)
	r.Post("/credit-card", h.creditCard)
	r.Post("/direct-deposit", h.directDeposit)
	r.Get("/{id}", h.get)
	r.Get("/invoices/{id}/status", h.invoiceStatus)
	r.Get("/invoices/{id}/allocations", h.invoiceAllocations)
}

type allocationRequest struct {
	InvoiceID int64  `json:"invoice_id" validate:"required,gt=0"`
	Amount    string `json:"amount" validate:"required"`
	IsDeposit bool   `json:"is_deposit"`
}

type receiveRequest struct {
	Amount               string              `json:"amount" validate:"required"`
	Reference            string              `json:"reference,omitempty"`
	PaidAt               *time.Time          `json:"paid_at,omitempty"`
	DestinationAccountID int64               `json:"destination_account_id" validate:"required,gt=0"`
	LocationID           int64               `json:"location_id" validate:"required,gt=0"`
	Allocations          []allocationRequest `json:"allocations" validate:"required,min=1,dive"`
}

func (req receiveRequest) toInput(r *http.Request, typ Type) (ReceiveInput, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return ReceiveInput{}, shared.NewValidationError(shared.FieldError{Field: "amount", Message: "decimal"})
	}
	in := ReceiveInput{
		Type:                 typ,
		Amount:               amount,
		Reference:            req.Reference,
		PaidAt:               req.PaidAt,
		DestinationAccountID: req.DestinationAccountID,
		LocationID:           req.LocationID,
	}
	if actor := shared.ActorFromContext(r.Context()); actor != 0 {
		in.UserID = &actor
	}
	for i, alloc := range req.Allocations {
		amt, err := decimal.NewFromString(alloc.Amount)
		if err != nil {
			return ReceiveInput{}, shared.NewValidationError(shared.FieldError{Field: allocField(i, "amount"), Message: "decimal"})
		}
		in.Allocations = append(in.Allocations, AllocationInput{
			InvoiceID: alloc.InvoiceID,
			Amount:    amt,
			IsDeposit: alloc.IsDeposit,
		})
	}
	return in, nil
}

func (h *Handler) decodeReceive(w http.ResponseWriter, r *http.Request, typ Type) (ReceiveInput, bool) {
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return ReceiveInput{}, false
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return ReceiveInput{}, false
	}
	in, err := req.toInput(r, typ)
	if err != nil {
		httpx.RespondError(w, err)
		return ReceiveInput{}, false
	}
	return in, true
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeReceive(w, r, TypeGeneric)
	if !ok {
		return
	}
	payment, err := h.service.Receive(r.Context(), in)
	if err != nil {
		h.logger.Error("receive payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

type creditCardRequest struct {
	receiveRequest
	CardToken string `json:"card_token" validate:"required"`
}

func (h *Handler) creditCard(w http.ResponseWriter, r *http.Request) {
	var req creditCardRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.toInput(r, TypeCreditCard)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.PayWithCreditCard(r.Context(), CardPaymentInput{ReceiveInput: in, CardToken: req.CardToken})
	if err != nil {
		h.logger.Error("credit card payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

type directDepositRequest struct {
	receiveRequest
	BankReference string `json:"bank_reference,omitempty"`
}

func (h *Handler) directDeposit(w http.ResponseWriter, r *http.Request) {
	var req directDepositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.toInput(r, TypeDirectDeposit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.PayWithDirectDeposit(r.Context(), DirectDepositInput{ReceiveInput: in, BankReference: req.BankReference})
	if err != nil {
		h.logger.Error("direct deposit payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.Payment(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) invoiceStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.InvoiceStatus(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	remaining, err := h.service.RemainingBalance(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"remaining": remaining.StringFixed(2),
	})
}

func (h *Handler) invoiceAllocations(w http.ResponseWriter, r *http.Request) {
	allocations, err := h.service.InvoiceAllocations(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, allocations)
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}
