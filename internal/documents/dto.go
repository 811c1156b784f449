package documents

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// ItemInput describes one document line in a create or update request.
type ItemInput struct {
	Position    int
	GSCode      string
	GLAccountID int64
	TaxRateID   int64
	Description string
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Discount    decimal.Decimal
	Markup      decimal.Decimal
}

func validateItems(kind Kind, items []ItemInput) error {
	var fields []shared.FieldError
	if len(items) == 0 {
		fields = append(fields, shared.FieldError{Field: "items", Message: "min=1"})
	}
	for i, item := range items {
		if item.GLAccountID == 0 {
			fields = append(fields, shared.FieldError{Field: itemField(i, "gl_account_id"), Message: "required"})
		}
		if item.TaxRateID == 0 {
			fields = append(fields, shared.FieldError{Field: itemField(i, "tax_rate_id"), Message: "required"})
		}
		if item.Quantity.IsNegative() || item.Quantity.IsZero() {
			fields = append(fields, shared.FieldError{Field: itemField(i, "quantity"), Message: "gt=0"})
		}
		if item.UnitCost.IsNegative() {
			fields = append(fields, shared.FieldError{Field: itemField(i, "unit_cost"), Message: "gte=0"})
		}
		if item.Discount.IsNegative() || item.Discount.GreaterThan(decimal.NewFromInt(1)) {
			fields = append(fields, shared.FieldError{Field: itemField(i, "discount"), Message: "between 0 and 1"})
		}
		if kind == KindPurchaseOrder && item.Markup.IsNegative() {
			fields = append(fields, shared.FieldError{Field: itemField(i, "markup"), Message: "gte=0"})
		}
		if kind != KindPurchaseOrder && !item.Markup.IsZero() {
			fields = append(fields, shared.FieldError{Field: itemField(i, "markup"), Message: "purchase orders only"})
		}
		if kind == KindPurchaseOrder && !item.Discount.IsZero() {
			fields = append(fields, shared.FieldError{Field: itemField(i, "discount"), Message: "not applicable to purchase orders"})
		}
	}
	if len(fields) > 0 {
		return shared.NewValidationError(fields...)
	}
	return nil
}

func itemField(idx int, name string) string {
	return "items[" + strconv.Itoa(idx) + "]." + name
}

// CreateInput groups fields for a new document.
type CreateInput struct {
	Kind               Kind
	Number             string
	LocationID         int64
	OrgID              int64
	JobID              *int64
	RecipientContactID int64
	Date               time.Time
	DueAt              *time.Time
	CreatedBy          int64
	Items              []ItemInput
}

// Validate checks structural requirements for creation.
func (in CreateInput) Validate() error {
	var fields []shared.FieldError
	if !in.Kind.Valid() {
		fields = append(fields, shared.FieldError{Field: "kind", Message: "oneof=invoice purchase_order credit_note"})
	}
	if in.LocationID == 0 {
		fields = append(fields, shared.FieldError{Field: "location_id", Message: "required"})
	}
	if in.OrgID == 0 {
		fields = append(fields, shared.FieldError{Field: "org_id", Message: "required"})
	}
	if in.RecipientContactID == 0 {
		fields = append(fields, shared.FieldError{Field: "recipient_contact_id", Message: "required"})
	}
	if in.Date.IsZero() {
		fields = append(fields, shared.FieldError{Field: "date", Message: "required"})
	}
	if len(fields) > 0 {
		return shared.NewValidationError(fields...)
	}
	return validateItems(in.Kind, in.Items)
}

// UpdateItemsInput replaces a document's item collection.
type UpdateItemsInput struct {
	DocumentID int64
	ActorID    int64
	Force      bool
	Items      []ItemInput
}

// ApproveInput carries an approval attempt.
type ApproveInput struct {
	DocumentID int64
	ApproverID int64
	Override   bool
}

// AddNoteInput attaches a note to a document.
type AddNoteInput struct {
	DocumentID int64
	AuthorID   int64
	Body       string
}

// ListRequest filters document listings.
type ListRequest struct {
	OrgID      int64
	LocationID int64
	Kind       Kind
	Status     Status
	FromDate   time.Time
	ToDate     time.Time
	Limit      int
	Offset     int
}
