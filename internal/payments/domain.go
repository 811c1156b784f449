package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/documents"
)

// Type discriminates how a payment arrived.
type Type string

const (
	TypeGeneric       Type = "generic"
	TypeCreditCard    Type = "credit_card"
	TypeDirectDeposit Type = "direct_deposit"
)

// Valid reports whether the type is one of the known variants.
func (t Type) Valid() bool {
	switch t {
	case TypeGeneric, TypeCreditCard, TypeDirectDeposit:
		return true
	}
	return false
}

// Payment is money received against one or more invoices. The linked
// transaction is the ledger posting created when the payment was stored.
type Payment struct {
	ID            int64
	Type          Type
	OrgID         int64
	Amount        decimal.Decimal
	Reference     string
	UserID        *int64
	PaidAt        *time.Time
	TransactionID *int64
	CreatedAt     time.Time
	Allocations   []Allocation
}

// Allocation splits part of a payment onto one invoice. IsDeposit marks a
// partial payment against an invoice that is not yet settled in full.
type Allocation struct {
	ID        int64
	PaymentID int64
	InvoiceID int64
	Amount    decimal.Decimal
	IsDeposit bool
}

// CardTransaction is processor metadata attached to a credit card payment.
type CardTransaction struct {
	ID         int64
	PaymentID  int64
	ExternalID string
	SettledAt  time.Time
}

// InvoiceFacts is the slice of an invoice the allocator needs: identity,
// total and lifecycle fields. Loaded FOR UPDATE during allocation so the
// overpayment re-check holds under concurrency.
type InvoiceFacts struct {
	ID         int64
	OrgID      int64
	LocationID int64
	Status     documents.Status
	Total      decimal.Decimal
	DueAt      *time.Time
}

// VirtualStatus is the derived read model for an invoice's payment state.
// It is computed on demand and never stored.
type VirtualStatus string

const (
	VirtualDraft   VirtualStatus = "draft"
	VirtualUnpaid  VirtualStatus = "unpaid"
	VirtualOverdue VirtualStatus = "overdue"
	VirtualPaid    VirtualStatus = "paid"
)

// ComputeVirtualStatus derives the invoice payment state from its lifecycle
// status, due date and the sum of its allocations.
func ComputeVirtualStatus(invoice InvoiceFacts, allocated decimal.Decimal, now time.Time) VirtualStatus {
	if invoice.Status != documents.StatusApproved {
		return VirtualDraft
	}
	if allocated.GreaterThanOrEqual(invoice.Total) {
		return VirtualPaid
	}
	if invoice.DueAt != nil && invoice.DueAt.Before(now) {
		return VirtualOverdue
	}
	return VirtualUnpaid
}
