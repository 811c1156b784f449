package documents

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

// Handler exposes document endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the document handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}/items", h.updateItems)
	r.Delete("/{id}", h.deleteDocument)
	r.Post("/{id}/approve", h.approve)
	r.Get("/{id}/notes", h.listNotes)
	r.Post("/{id}/notes", h.addNote)
	r.Delete("/{id}/notes/{noteID}", h.removeNote)
	r.Get("/{id}/pdf", h.generatedDocument)
	r.Post("/{id}/search-sync", h.setSearchSync)
}

type itemRequest struct {
	Position    int    `json:"position" validate:"gte=0"`
	GSCode      string `json:"gs_code,omitempty"`
	GLAccountID int64  `json:"gl_account_id" validate:"required,gt=0"`
	TaxRateID   int64  `json:"tax_rate_id" validate:"required,gt=0"`
	Description string `json:"description,omitempty"`
	Quantity    string `json:"quantity" validate:"required"`
	UnitCost    string `json:"unit_cost" validate:"required"`
	Discount    string `json:"discount,omitempty"`
	Markup      string `json:"markup,omitempty"`
}

func (req itemRequest) toInput() (ItemInput, error) {
	in := ItemInput{
		Position:    req.Position,
		GSCode:      req.GSCode,
		GLAccountID: req.GLAccountID,
		TaxRateID:   req.TaxRateID,
		Description: req.Description,
		Discount:    decimal.Zero,
		Markup:      decimal.Zero,
	}
	var err error
	if in.Quantity, err = decimal.NewFromString(req.Quantity); err != nil {
		return ItemInput{}, shared.NewValidationError(shared.FieldError{Field: "quantity", Message: "decimal"})
	}
	if in.UnitCost, err = decimal.NewFromString(req.UnitCost); err != nil {
		return ItemInput{}, shared.NewValidationError(shared.FieldError{Field: "unit_cost", Message: "decimal"})
	}
	if req.Discount != "" {
		if in.Discount, err = decimal.NewFromString(req.Discount); err != nil {
			return ItemInput{}, shared.NewValidationError(shared.FieldError{Field: "discount", Message: "decimal"})
		}
	}
	if req.Markup != "" {
		if in.Markup, err = decimal.NewFromString(req.Markup); err != nil {
			return ItemInput{}, shared.NewValidationError(shared.FieldError{Field: "markup", Message: "decimal"})
		}
	}
	return in, nil
}

func itemInputsFromRequest(reqs []itemRequest) ([]ItemInput, error) {
	items := make([]ItemInput, 0, len(reqs))
	for _, req := range reqs {
		in, err := req.toInput()
		if err != nil {
			return nil, err
		}
		items = append(items, in)
	}
	return items, nil
}

type createDocumentRequest struct {
	Kind               string        `json:"kind" validate:"required,oneof=invoice purchase_order credit_note"`
	Number             string        `json:"number,omitempty"`
	LocationID         int64         `json:"location_id" validate:"required,gt=0"`
	OrgID              int64         `json:"org_id" validate:"required,gt=0"`
	JobID              *int64        `json:"job_id,omitempty"`
	RecipientContactID int64         `json:"recipient_contact_id" validate:"required,gt=0"`
	Date               time.Time     `json:"date" validate:"required"`
	DueAt              *time.Time    `json:"due_at,omitempty"`
	Items              []itemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := itemInputsFromRequest(req.Items)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Create(r.Context(), CreateInput{
		Kind:               Kind(req.Kind),
		Number:             req.Number,
		LocationID:         req.LocationID,
		OrgID:              req.OrgID,
		JobID:              req.JobID,
		RecipientContactID: req.RecipientContactID,
		Date:               req.Date,
		DueAt:              req.DueAt,
		CreatedBy:          shared.ActorFromContext(r.Context()),
		Items:              items,
	})
	if err != nil {
		h.logger.Error("create document", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orgID, _ := strconv.ParseInt(q.Get("org_id"), 10, 64)
	locationID, _ := strconv.ParseInt(q.Get("location_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	docs, err := h.service.List(r.Context(), ListRequest{
		OrgID:      orgID,
		LocationID: locationID,
		Kind:       Kind(q.Get("kind")),
		Status:     Status(q.Get("status")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

type updateItemsRequest struct {
	Force bool          `json:"force"`
	Items []itemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) updateItems(w http.ResponseWriter, r *http.Request) {
	var req updateItemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := itemInputsFromRequest(req.Items)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.UpdateItems(r.Context(), UpdateItemsInput{
		DocumentID: pathID(r, "id"),
		ActorID:    shared.ActorFromContext(r.Context()),
		Force:      req.Force,
		Items:      items,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), pathID(r, "id"), shared.ActorFromContext(r.Context())); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type approveRequest struct {
	Override bool `json:"override"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	_ = httpx.DecodeJSON(r, &req)
	doc, transaction, err := h.service.Approve(r.Context(), ApproveInput{
		DocumentID: pathID(r, "id"),
		ApproverID: shared.ActorFromContext(r.Context()),
		Override:   req.Override,
	})
	if err != nil {
		h.logger.Error("approve document", slog.Int64("document_id", pathID(r, "id")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"document": doc, "transaction": transaction})
}

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.service.Notes(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, notes)
}

type addNoteRequest struct {
	Body string `json:"body" validate:"required"`
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	var req addNoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	note, err := h.service.AddNote(r.Context(), AddNoteInput{
		DocumentID: pathID(r, "id"),
		AuthorID:   shared.ActorFromContext(r.Context()),
		Body:       req.Body,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, note)
}

func (h *Handler) removeNote(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveNote(r.Context(), pathID(r, "id"), pathID(r, "noteID"), shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) generatedDocument(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.GeneratedDocument(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	_, _ = w.Write(data)
}

type searchSyncRequest struct {
	Disabled bool `json:"disabled"`
}

func (h *Handler) setSearchSync(w http.ResponseWriter, r *http.Request) {
	var req searchSyncRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.service.SetSearchSyncDisabled(r.Context(), pathID(r, "id"), req.Disabled); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}
