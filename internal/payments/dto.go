package payments

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// AllocationInput assigns part of the payment amount to one invoice.
type AllocationInput struct {
	InvoiceID int64
	Amount    decimal.Decimal
	IsDeposit bool
}

// ReceiveInput describes an incoming payment and its split across invoices.
type ReceiveInput struct {
	Type                 Type
	Amount               decimal.Decimal
	Reference            string
	UserID               *int64
	PaidAt               *time.Time
	DestinationAccountID int64
	LocationID           int64
	Allocations          []AllocationInput
}

// Validate checks structure and the allocation conservation rule: the split
// must reproduce the payment amount exactly.
func (in ReceiveInput) Validate() error {
	var fields []shared.FieldError
	if !in.Type.Valid() {
		fields = append(fields, shared.FieldError{Field: "type", Message: "oneof=generic credit_card direct_deposit"})
	}
	if !in.Amount.IsPositive() {
		fields = append(fields, shared.FieldError{Field: "amount", Message: "gt=0"})
	}
	if in.DestinationAccountID == 0 {
		fields = append(fields, shared.FieldError{Field: "destination_account_id", Message: "required"})
	}
	if in.LocationID == 0 {
		fields = append(fields, shared.FieldError{Field: "location_id", Message: "required"})
	}
	if len(in.Allocations) == 0 {
		fields = append(fields, shared.FieldError{Field: "allocations", Message: "min=1"})
	}
	seen := make(map[int64]bool, len(in.Allocations))
	for i, alloc := range in.Allocations {
		if alloc.InvoiceID == 0 {
			fields = append(fields, shared.FieldError{Field: allocField(i, "invoice_id"), Message: "required"})
		}
		if !alloc.Amount.IsPositive() {
			fields = append(fields, shared.FieldError{Field: allocField(i, "amount"), Message: "gt=0"})
		}
		if seen[alloc.InvoiceID] {
			fields = append(fields, shared.FieldError{Field: allocField(i, "invoice_id"), Message: "duplicate"})
		}
		seen[alloc.InvoiceID] = true
	}
	if len(fields) > 0 {
		return shared.NewValidationError(fields...)
	}

	sum := decimal.Zero
	for _, alloc := range in.Allocations {
		sum = sum.Add(alloc.Amount)
	}
	if !sum.Equal(in.Amount) {
		return shared.ErrAllocationMismatch
	}
	return nil
}

func allocField(idx int, name string) string {
	return "allocations[" + strconv.Itoa(idx) + "]." + name
}

// CardPaymentInput is a receive plus the card token to charge.
type CardPaymentInput struct {
	ReceiveInput
	CardToken string
}

// Validate extends ReceiveInput validation with the card token.
func (in CardPaymentInput) Validate() error {
	if in.CardToken == "" {
		return shared.NewValidationError(shared.FieldError{Field: "card_token", Message: "required"})
	}
	in.Type = TypeCreditCard
	return in.ReceiveInput.Validate()
}

// DirectDepositInput is a receive with the bank remittance reference.
type DirectDepositInput struct {
	ReceiveInput
	BankReference string
}
