package documents

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind discriminates the three financial document variants.
type Kind string

const (
	KindInvoice       Kind = "invoice"
	KindPurchaseOrder Kind = "purchase_order"
	KindCreditNote    Kind = "credit_note"
)

// Valid reports whether the kind is one of the known variants.
func (k Kind) Valid() bool {
	switch k {
	case KindInvoice, KindPurchaseOrder, KindCreditNote:
		return true
	}
	return false
}

// Status enumerates the linear document lifecycle.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
)

// Document is the shared financial entity backing invoices, purchase orders
// and credit notes. Kind-specific behaviour lives in the item payload
// (discount for invoices, markup for purchase orders), not in subtypes.
type Document struct {
	ID                 int64
	Kind               Kind
	Number             string
	LocationID         int64
	OrgID              int64
	JobID              *int64
	RecipientContactID int64
	RecipientName      string
	RecipientAddress   string
	Date               time.Time
	DueAt              *time.Time
	Status             Status
	Total              decimal.Decimal
	LockedAt           *time.Time
	DocumentRef        *string
	SearchSyncDisabled bool
	CreatedBy          int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Items              []Item
	History            []StatusChange
}

// Item is one line on a document. Discount applies to invoices and credit
// notes; markup applies to purchase orders. Both are fractions, not percent.
type Item struct {
	ID          int64
	DocumentID  int64
	Position    int
	GSCode      string
	GLAccountID int64
	TaxRateID   int64
	Description string
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Discount    decimal.Decimal
	Markup      decimal.Decimal
	CreatedAt   time.Time
}

// StatusChange is one append-only entry in a document's status history.
type StatusChange struct {
	ID         int64
	DocumentID int64
	Status     Status
	ActorID    int64
	At         time.Time
}

// Note is free-form commentary attached to a document.
type Note struct {
	ID         int64
	DocumentID int64
	AuthorID   int64
	Body       string
	CreatedAt  time.Time
}

// ContactSnapshot is the recipient name and address captured at creation.
type ContactSnapshot struct {
	Name    string
	Address string
}

// Approver is a user eligible to approve documents, with per-kind spend limits.
type Approver struct {
	ID                 int64
	Name               string
	LocationIDs        []int64
	InvoiceLimit       decimal.Decimal
	PurchaseOrderLimit decimal.Decimal
	CreditNoteLimit    decimal.Decimal
}

// Limit returns the approver's spend limit for the given document kind.
func (a Approver) Limit(kind Kind) decimal.Decimal {
	switch kind {
	case KindPurchaseOrder:
		return a.PurchaseOrderLimit
	case KindCreditNote:
		return a.CreditNoteLimit
	default:
		return a.InvoiceLimit
	}
}

// AtLocation reports whether the approver belongs to the location.
func (a Approver) AtLocation(locationID int64) bool {
	for _, loc := range a.LocationIDs {
		if loc == locationID {
			return true
		}
	}
	return false
}

// Directory resolves contacts and approvers. Backed by the CRM collaborator.
type Directory interface {
	ContactSnapshot(ctx context.Context, contactID int64) (ContactSnapshot, error)
	Approver(ctx context.Context, userID int64) (Approver, error)
	ApproversAt(ctx context.Context, locationID int64) ([]Approver, error)
}

// SearchSync receives document change signals for the search index. Dispatch
// is fire-and-forget; failures never roll back the business mutation.
type SearchSync interface {
	DocumentChanged(ctx context.Context, kind Kind, documentID int64)
}

// DocumentStore resolves generated PDF references. The core only holds the
// reference; generation happens elsewhere.
type DocumentStore interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}
