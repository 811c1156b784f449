package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// RecordInput describes one leg of a posting request.
type RecordInput struct {
	GLAccountID int64
	Amount      decimal.Decimal
	IsDebit     bool
}

// PostingInput groups fields required to create a transaction.
type PostingInput struct {
	OrgID        int64
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	Records      []RecordInput
}

// Validate ensures the posting is well formed and balanced.
func (in PostingInput) Validate() error {
	if in.OrgID == 0 {
		return fmt.Errorf("ledger: organization required")
	}
	if in.SourceModule == "" {
		return fmt.Errorf("ledger: source module required")
	}
	if in.SourceID == uuid.Nil {
		return fmt.Errorf("ledger: source id required")
	}
	if len(in.Records) < 2 {
		return fmt.Errorf("ledger: at least two records required")
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, rec := range in.Records {
		if rec.GLAccountID == 0 {
			return fmt.Errorf("ledger: record %d missing account", idx)
		}
		if rec.Amount.IsNegative() || rec.Amount.IsZero() {
			return fmt.Errorf("ledger: record %d amount must be positive", idx)
		}
		if rec.IsDebit {
			debit = debit.Add(rec.Amount)
		} else {
			credit = credit.Add(rec.Amount)
		}
	}
	if !debit.Equal(credit) {
		return shared.ErrUnbalanced
	}
	return nil
}

// CreateAccountInput captures fields for a new GL account.
type CreateAccountInput struct {
	OrgID                   int64
	AccountTypeID           int64
	TaxRateID               *int64
	Code                    string
	Name                    string
	EnablePaymentsToAccount bool
	BankName                string
	BankBSB                 string
	BankAccountNumber       string
}

// Validate checks required account fields.
func (in CreateAccountInput) Validate() error {
	var fields []shared.FieldError
	if in.OrgID == 0 {
		fields = append(fields, shared.FieldError{Field: "org_id", Message: "required"})
	}
	if in.AccountTypeID == 0 {
		fields = append(fields, shared.FieldError{Field: "account_type_id", Message: "required"})
	}
	if in.Code == "" {
		fields = append(fields, shared.FieldError{Field: "code", Message: "required"})
	}
	if in.Name == "" {
		fields = append(fields, shared.FieldError{Field: "name", Message: "required"})
	}
	if len(fields) > 0 {
		return shared.NewValidationError(fields...)
	}
	return nil
}

// CreateTaxRateInput captures fields for a new tax rate.
type CreateTaxRateInput struct {
	OrgID int64
	Name  string
	Rate  decimal.Decimal
}

// Validate checks required tax rate fields.
func (in CreateTaxRateInput) Validate() error {
	var fields []shared.FieldError
	if in.OrgID == 0 {
		fields = append(fields, shared.FieldError{Field: "org_id", Message: "required"})
	}
	if in.Name == "" {
		fields = append(fields, shared.FieldError{Field: "name", Message: "required"})
	}
	if in.Rate.IsNegative() {
		fields = append(fields, shared.FieldError{Field: "rate", Message: "gte=0"})
	}
	if len(fields) > 0 {
		return shared.NewValidationError(fields...)
	}
	return nil
}

// BalanceQuery scopes a derived balance computation. From and To bound the
// transaction dates when set.
type BalanceQuery struct {
	OrgID       int64
	GLAccountID int64
	From        *time.Time
	To          *time.Time
}
