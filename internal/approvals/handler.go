package approvals

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Handler exposes approval endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the approval handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers approval routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents/{id}/requests", h.createRequests)
	r.Get("/documents/{id}/requests", h.listRequests)
	r.Get("/documents/{id}/suggested", h.suggested)
	r.Post("/documents/{id}/approve", h.approve)
	r.Get("/queue", h.queue)
}

type createRequestsRequest struct {
	ApproverIDs []int64 `json:"approver_ids" validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) createRequests(w http.ResponseWriter, r *http.Request) {
	var req createRequestsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	requests, err := h.service.CreateRequests(r.Context(), CreateInput{
		DocumentID:  pathID(r, "id"),
		ApproverIDs: req.ApproverIDs,
		RequestedBy: shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("create approve requests", slog.Int64("document_id", pathID(r, "id")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, requests)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.Requests(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, requests)
}

func (h *Handler) suggested(w http.ResponseWriter, r *http.Request) {
	approvers, err := h.service.SuggestedApprovers(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, approvers)
}

type approveBody struct {
	Override bool `json:"override"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	var req approveBody
	_ = httpx.DecodeJSON(r, &req)
	doc, transaction, err := h.service.Approve(r.Context(), documents.ApproveInput{
		DocumentID: pathID(r, "id"),
		ApproverID: shared.ActorFromContext(r.Context()),
		Override:   req.Override,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"document": doc, "transaction": transaction})
}

func (h *Handler) queue(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.Queue(r.Context(), shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, requests)
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}
