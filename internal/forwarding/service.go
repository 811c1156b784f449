package forwarding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/payments"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// AuditPort records mutations for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LedgerPort resolves chart-of-accounts data owned by the ledger module.
type LedgerPort interface {
	Organization(ctx context.Context, id int64) (ledger.AccountingOrganization, error)
	Account(ctx context.Context, id int64) (ledger.GLAccount, error)
}

// Service moves received payments between accounting organizations.
type Service struct {
	repo   Repository
	ledger LedgerPort
	audit  AuditPort
	now    func() time.Time
}

// NewService constructs the forwarding service.
func NewService(repo Repository, ledgerPort LedgerPort) *Service {
	return &Service{repo: repo, ledger: ledgerPort, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetAudit injects the audit recorder.
func (s *Service) SetAudit(audit AuditPort) { s.audit = audit }

// Unforwarded lists payments at a location that have not yet been forwarded.
func (s *Service) Unforwarded(ctx context.Context, locationID int64) ([]payments.Payment, error) {
	return s.repo.Unforwarded(ctx, locationID)
}

// Get loads one forwarded payment with its invoice shares.
func (s *Service) Get(ctx context.Context, id int64) (ForwardedPayment, error) {
	return s.repo.Get(ctx, id)
}

// Forward transfers one payment to another organization's account and posts
// the movement from the source clearing account to the destination account.
// The payment row is locked so a concurrent forward of the same payment fails
// on the already-forwarded check.
func (s *Service) Forward(ctx context.Context, in ForwardInput) (ForwardedPayment, error) {
	if err := in.Validate(); err != nil {
		return ForwardedPayment{}, err
	}

	destination, err := s.ledger.Account(ctx, in.DestinationAccountID)
	if err != nil {
		return ForwardedPayment{}, err
	}
	if !destination.EnablePaymentsToAccount {
		return ForwardedPayment{}, fmt.Errorf("%w: account does not accept payments", shared.ErrNotAllowed)
	}

	var forwardedID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		payment, err := tx.GetPaymentForUpdate(ctx, in.PaymentID)
		if err != nil {
			return err
		}
		forwarded, err := tx.IsForwarded(ctx, in.PaymentID)
		if err != nil {
			return err
		}
		if forwarded {
			return fmt.Errorf("%w: payment already forwarded", shared.ErrNotAllowed)
		}

		sum := decimal.Zero
		for _, inv := range in.Invoices {
			sum = sum.Add(inv.Amount)
		}
		if !sum.Equal(payment.Amount) {
			return fmt.Errorf("%w: invoice amounts do not sum to payment amount", shared.ErrNotAllowed)
		}
		if destination.OrgID == payment.OrgID {
			return fmt.Errorf("%w: destination belongs to the source organization", shared.ErrNotAllowed)
		}

		source, err := s.ledger.Organization(ctx, payment.OrgID)
		if err != nil {
			return err
		}

		transaction, err := tx.PostTransaction(ctx, ledger.PostingInput{
			OrgID:        payment.OrgID,
			SourceModule: "forwarding",
			SourceID:     uuid.New(),
			Memo:         fmt.Sprintf("payment %d forwarded, ref %s", payment.ID, in.RemittanceRef),
			Records: []ledger.RecordInput{
				{GLAccountID: destination.ID, Amount: payment.Amount, IsDebit: true},
				{GLAccountID: source.Special.PaymentClearingID, Amount: payment.Amount},
			},
		})
		if err != nil {
			return err
		}

		id, err := tx.InsertForwardedPayment(ctx, ForwardedPayment{
			PaymentID:            payment.ID,
			SourceOrgID:          payment.OrgID,
			DestinationOrgID:     destination.OrgID,
			DestinationAccountID: destination.ID,
			RemittanceRef:        in.RemittanceRef,
			TransferredAt:        s.now(),
			TransactionID:        transaction.ID,
		})
		if err != nil {
			return err
		}
		forwardedID = id

		for _, inv := range in.Invoices {
			if err := tx.InsertForwardedInvoice(ctx, ForwardedInvoice{
				ForwardedPaymentID: id,
				InvoiceID:          inv.InvoiceID,
				Amount:             inv.Amount,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ForwardedPayment{}, err
	}

	s.recordAudit(ctx, in.ActorID, forwardedID, in.RemittanceRef)
	return s.repo.Get(ctx, forwardedID)
}

func (s *Service) recordAudit(ctx context.Context, actorID, forwardedID int64, ref string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "payment.forward",
		Entity:   "forwarded_payment",
		EntityID: forwardedID,
		Meta:     map[string]any{"remittance_ref": ref},
		At:       s.now(),
	})
}
