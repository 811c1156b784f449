package forwarding

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// ForwardedPayment records that a received payment's funds were transferred
// from one accounting organization to another, franchise to headquarters in
// the common case. A payment is unforwarded until one of these rows exists.
type ForwardedPayment struct {
	ID                   int64
	PaymentID            int64
	SourceOrgID          int64
	DestinationOrgID     int64
	DestinationAccountID int64
	RemittanceRef        string
	TransferredAt        time.Time
	TransactionID        int64
	CreatedAt            time.Time
	Invoices             []ForwardedInvoice
}

// ForwardedInvoice carries the per-invoice share of a forwarded amount.
type ForwardedInvoice struct {
	ID                 int64
	ForwardedPaymentID int64
	InvoiceID          int64
	Amount             decimal.Decimal
}

// InvoiceAmountInput is one invoice's share in a forward request.
type InvoiceAmountInput struct {
	InvoiceID int64
	Amount    decimal.Decimal
}

// ForwardInput describes one forwarding operation.
type ForwardInput struct {
	PaymentID            int64
	DestinationAccountID int64
	RemittanceRef        string
	ActorID              int64
	Invoices             []InvoiceAmountInput
}

// Validate checks structure only; the amount conservation rule is enforced
// against the locked payment row inside the unit of work.
func (in ForwardInput) Validate() error {
	var fields []shared.FieldError
	if in.PaymentID == 0 {
		fields = append(fields, shared.FieldError{Field: "payment_id", Message: "required"})
	}
	if in.DestinationAccountID == 0 {
		fields = append(fields, shared.FieldError{Field: "destination_account_id", Message: "required"})
	}
	if in.RemittanceRef == "" {
		fields = append(fields, shared.FieldError{Field: "remittance_ref", Message: "required"})
	}
	if len(in.Invoices) == 0 {
		fields = append(fields, shared.FieldError{Field: "invoices", Message: "min=1"})
	}
	for i, inv := range in.Invoices {
		if inv.InvoiceID == 0 {
			fields = append(fields, shared.FieldError{Field: invoiceField(i, "invoice_id"), Message: "required"})
		}
		if !inv.Amount.IsPositive() {
			fields = append(fields, shared.FieldError{Field: invoiceField(i, "amount"), Message: "gt=0"})
		}
	}
	if len(fields) > 0 {
		return shared.NewValidationError(fields...)
	}
	return nil
}

func invoiceField(idx int, name string) string {
	return "invoices[" + strconv.Itoa(idx) + "]." + name
}
