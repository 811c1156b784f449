package forwarding

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Handler exposes forwarding endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the forwarding handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers forwarding routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/unforwarded", h.unforwarded)
	r.Post("/", h.forward)
	r.Get("/{id}", h.get)
}

func (h *Handler) unforwarded(w http.ResponseWriter, r *http.Request) {
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	if locationID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "location_id is required")
		return
	}
	out, err := h.service.Unforwarded(r.Context(), locationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

type forwardInvoiceRequest struct {
	InvoiceID int64  `json:"invoice_id" validate:"required,gt=0"`
	Amount    string `json:"amount" validate:"required"`
}

type forwardRequest struct {
	PaymentID            int64                   `json:"payment_id" validate:"required,gt=0"`
	DestinationAccountID int64                   `json:"destination_account_id" validate:"required,gt=0"`
	RemittanceRef        string                  `json:"remittance_ref" validate:"required"`
	Invoices             []forwardInvoiceRequest `json:"invoices" validate:"required,min=1,dive"`
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request) {
	var req forwardRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := ForwardInput{
		PaymentID:            req.PaymentID,
		DestinationAccountID: req.DestinationAccountID,
		RemittanceRef:        req.RemittanceRef,
		ActorID:              shared.ActorFromContext(r.Context()),
	}
	for i, inv := range req.Invoices {
		amount, err := decimal.NewFromString(inv.Amount)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError(shared.FieldError{Field: invoiceField(i, "amount"), Message: "decimal"}))
			return
		}
		in.Invoices = append(in.Invoices, InvoiceAmountInput{InvoiceID: inv.InvoiceID, Amount: amount})
	}

	forwarded, err := h.service.Forward(r.Context(), in)
	if err != nil {
		h.logger.Error("forward payment", slog.Int64("payment_id", req.PaymentID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, forwarded)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	forwarded, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, forwarded)
}
