package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType categorises GL accounts as debit-increasing or credit-increasing.
type AccountType struct {
	ID            int64
	Name          string
	DebitIncrease bool
}

// TaxRate belongs to an accounting organization and is referenced by document items.
type TaxRate struct {
	ID        int64
	OrgID     int64
	Name      string
	Rate      decimal.Decimal
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GLAccount is a single account in an organization's chart of accounts.
type GLAccount struct {
	ID                      int64
	OrgID                   int64
	AccountTypeID           int64
	TaxRateID               *int64
	Code                    string
	Name                    string
	Active                  bool
	IsSpecial               bool
	EnablePaymentsToAccount bool
	BankName                string
	BankBSB                 string
	BankAccountNumber       string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// SpecialAccounts holds the five distinguished control accounts of an organization.
type SpecialAccounts struct {
	TaxPayableID         int64
	TaxReceivableID      int64
	AccountsPayableID    int64
	AccountsReceivableID int64
	PaymentClearingID    int64
}

// AccountingOrganization owns a chart of accounts and a set of locations.
// Exactly one organization may be active per location set.
type AccountingOrganization struct {
	ID             int64
	Name           string
	Active         bool
	LockDayOfMonth int
	Special        SpecialAccounts
	LocationIDs    []int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is an immutable balanced double-entry posting.
type Transaction struct {
	ID           int64
	OrgID        int64
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	CreatedAt    time.Time
	Records      []TransactionRecord
}

// TransactionRecord is a single debit or credit leg of a transaction.
type TransactionRecord struct {
	ID            int64
	TransactionID int64
	GLAccountID   int64
	Amount        decimal.Decimal
	IsDebit       bool
}

// AccountBalance is a derived sum over transaction records for one account.
type AccountBalance struct {
	GLAccountID int64
	Debits      decimal.Decimal
	Credits     decimal.Decimal
	Balance     decimal.Decimal
}
