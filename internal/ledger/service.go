package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// AuditPort records mutations for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the chart of accounts and transaction posting.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post creates one balanced transaction. Partial posting is never observable:
// the transaction header and every record commit together or not at all.
func (s *Service) Post(ctx context.Context, in PostingInput) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	var posted Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertTransaction(ctx, in)
		if err != nil {
			return err
		}
		posted = inserted
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, 0, "ledger.post", "transaction", posted.ID, map[string]any{
		"source_module": in.SourceModule,
		"source_id":     in.SourceID.String(),
	})
	return posted, nil
}

// Reverse posts a mirror transaction for an existing one. The original is
// never edited, only superseded.
func (s *Service) Reverse(ctx context.Context, transactionID, actorID int64, memo string) (Transaction, error) {
	var reversal Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetTransactionWithRecords(ctx, transactionID)
		if err != nil {
			return err
		}
		in := PostingInput{
			OrgID:        original.OrgID,
			SourceModule: original.SourceModule + ":REVERSAL",
			SourceID:     uuid.New(),
			Memo:         defaultReversalMemo(memo, original.ID),
			Records:      reverseRecords(original.Records),
		}
		inserted, err := tx.InsertTransaction(ctx, in)
		if err != nil {
			return err
		}
		reversal = inserted
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, actorID, "ledger.reverse", "transaction", transactionID, map[string]any{
		"reversal_id": reversal.ID,
	})
	return reversal, nil
}

// ActivateOrganization marks an organization active and deactivates any other
// active organization sharing one of its locations, all in one unit of work.
// This replaces the data-layer uniqueness trigger of the legacy system.
func (s *Service) ActivateOrganization(ctx context.Context, orgID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		org, err := tx.GetOrganizationForUpdate(ctx, orgID)
		if err != nil {
			return err
		}
		if org.Active {
			return nil
		}
		others, err := tx.ActiveOrganizationsSharingLocations(ctx, orgID)
		if err != nil {
			return err
		}
		for _, other := range others {
			if err := tx.SetOrganizationActive(ctx, other, false); err != nil {
				return err
			}
		}
		return tx.SetOrganizationActive(ctx, orgID, true)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ledger.org.activate", "accounting_organization", orgID, nil)
	return nil
}

// CreateAccount adds a GL account. The referenced tax rate must belong to the
// same organization as the account.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (GLAccount, error) {
	if err := in.Validate(); err != nil {
		return GLAccount{}, err
	}
	if in.TaxRateID != nil {
		rate, err := s.repo.GetTaxRate(ctx, *in.TaxRateID)
		if err != nil {
			return GLAccount{}, err
		}
		if rate.OrgID != in.OrgID {
			return GLAccount{}, fmt.Errorf("%w: tax rate belongs to another organization", shared.ErrNotAllowed)
		}
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.CreateAccount(ctx, in)
		if err != nil {
			return err
		}
		id = created
		return nil
	})
	if err != nil {
		return GLAccount{}, err
	}
	return s.repo.GetAccount(ctx, id)
}

// DeactivateAccount retires an account from the chart without deleting history.
func (s *Service) DeactivateAccount(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetAccountActive(ctx, id, false)
	})
}

// CreateTaxRate adds a tax rate to an organization.
func (s *Service) CreateTaxRate(ctx context.Context, in CreateTaxRateInput) (TaxRate, error) {
	if err := in.Validate(); err != nil {
		return TaxRate{}, err
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.CreateTaxRate(ctx, in)
		if err != nil {
			return err
		}
		id = created
		return nil
	})
	if err != nil {
		return TaxRate{}, err
	}
	return s.repo.GetTaxRate(ctx, id)
}

// Organization loads an organization with its locations and special accounts.
func (s *Service) Organization(ctx context.Context, id int64) (AccountingOrganization, error) {
	return s.repo.GetOrganization(ctx, id)
}

// Account loads a single GL account.
func (s *Service) Account(ctx context.Context, id int64) (GLAccount, error) {
	return s.repo.GetAccount(ctx, id)
}

// TaxRate loads a single tax rate.
func (s *Service) TaxRate(ctx context.Context, id int64) (TaxRate, error) {
	return s.repo.GetTaxRate(ctx, id)
}

// ListAccounts returns the chart of accounts for one organization.
func (s *Service) ListAccounts(ctx context.Context, orgID int64) ([]GLAccount, error) {
	return s.repo.ListAccounts(ctx, orgID)
}

// ListTaxRates returns the tax rates for one organization.
func (s *Service) ListTaxRates(ctx context.Context, orgID int64) ([]TaxRate, error) {
	return s.repo.ListTaxRates(ctx, orgID)
}

// Transaction loads one transaction with its records.
func (s *Service) Transaction(ctx context.Context, id int64) (Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// ListTransactions pages through an organization's transactions.
func (s *Service) ListTransactions(ctx context.Context, orgID int64, limit, offset int) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, orgID, limit, offset)
}

// Balance computes the derived balance for one account. Balances are never
// stored; they are always a sum over transaction records.
func (s *Service) Balance(ctx context.Context, q BalanceQuery) (AccountBalance, error) {
	return s.repo.AccountBalance(ctx, q)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}

func reverseRecords(records []TransactionRecord) []RecordInput {
	out := make([]RecordInput, 0, len(records))
	for _, rec := range records {
		out = append(out, RecordInput{
			GLAccountID: rec.GLAccountID,
			Amount:      rec.Amount,
			IsDebit:     !rec.IsDebit,
		})
	}
	return out
}

func defaultReversalMemo(memo string, originalID int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of transaction %d", originalID)
}
