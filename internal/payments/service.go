package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/ledger"
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

const defaultGatewayTimeout = 15 * time.Second

// Service allocates received payments across invoices and posts the
// settlement transactions.
type Service struct {
	repo           Repository
	ledger         LedgerPort
	gateway        CardGateway
	audit          AuditPort
	gatewayTimeout time.Duration
	now            func() time.Time
}

// NewService constructs the payment service.
func NewService(repo Repository, ledgerPort LedgerPort) *Service {
	return &Service{
		repo:           repo,
		ledger:         ledgerPort,
		gatewayTimeout: defaultGatewayTimeout,
		now:            time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetAudit injects the audit recorder.
func (s *Service) SetAudit(audit AuditPort) { s.audit = audit }

// SetGateway injects the card processor.
func (s *Service) SetGateway(gateway CardGateway) { s.gateway = gateway }

// SetGatewayTimeout bounds the external charge call.
func (s *Service) SetGatewayTimeout(d time.Duration) {
	if d > 0 {
		s.gatewayTimeout = d
	}
}

// Receive stores a payment split across invoices and posts one balanced
// transaction debiting the destination account and crediting accounts
// receivable per invoice. The overpayment check runs against the invoice row
// locked FOR UPDATE, so two concurrent allocations against the same invoice
// serialize and the loser fails cleanly.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (Payment, error) {
	if err := in.Validate(); err != nil {
		return Payment{}, err
	}
	return s.store(ctx, in, nil)
}

// PayWithCreditCard charges the card first, outside any storage transaction,
// then stores the payment exactly like Receive. A gateway rejection surfaces
// as ErrPaymentProcessor with no rows written.
func (s *Service) PayWithCreditCard(ctx context.Context, in CardPaymentInput) (Payment, error) {
	in.Type = TypeCreditCard
	if err := in.Validate(); err != nil {
		return Payment{}, err
	}
	if s.gateway == nil {
		return Payment{}, fmt.Errorf("%w: no card gateway configured", shared.ErrPaymentProcessor)
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	result, err := s.gateway.Charge(chargeCtx, ChargeRequest{
		Amount:    in.Amount,
		CardToken: in.CardToken,
		Reference: in.Reference,
	})
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %v", shared.ErrPaymentProcessor, err)
	}

	settled := result.SettledAt
	if settled.IsZero() {
		settled = s.now()
	}
	in.PaidAt = &settled
	return s.store(ctx, in.ReceiveInput, &CardTransaction{ExternalID: result.ExternalID, SettledAt: settled})
}

// PayWithDirectDeposit stores a bank transfer payment, carrying the bank
// reference on the payment row.
func (s *Service) PayWithDirectDeposit(ctx context.Context, in DirectDepositInput) (Payment, error) {
	in.Type = TypeDirectDeposit
	if in.BankReference != "" {
		in.Reference = in.BankReference
	}
	if err := in.ReceiveInput.Validate(); err != nil {
		return Payment{}, err
	}
	return s.store(ctx, in.ReceiveInput, nil)
}

func (s *Service) store(ctx context.Context, in ReceiveInput, card *CardTransaction) (Payment, error) {
	destination, err := s.ledger.Account(ctx, in.DestinationAccountID)
	if err != nil {
		return Payment{}, err
	}
	if !destination.EnablePaymentsToAccount {
		return Payment{}, fmt.Errorf("%w: account does not accept payments", shared.ErrNotAllowed)
	}
	org, err := s.ledger.Organization(ctx, destination.OrgID)
	if err != nil {
		return Payment{}, err
	}

	var paymentID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, alloc := range in.Allocations {
			invoice, err := tx.GetInvoiceForUpdate(ctx, alloc.InvoiceID)
			if err != nil {
				return err
			}
			if invoice.OrgID != destination.OrgID {
				return fmt.Errorf("%w: invoice %d belongs to another organization", shared.ErrNotAllowed, invoice.ID)
			}
			if invoice.LocationID != in.LocationID {
				return fmt.Errorf("%w: invoice %d belongs to another location", shared.ErrNotAllowed, invoice.ID)
			}
			if invoice.Status != documents.StatusApproved {
				return fmt.Errorf("%w: invoice %d not approved", shared.ErrNotAllowed, invoice.ID)
			}
			allocated, err := tx.AllocatedTotal(ctx, alloc.InvoiceID)
			if err != nil {
				return err
			}
			if allocated.Add(alloc.Amount).GreaterThan(invoice.Total) {
				return fmt.Errorf("%w: invoice %d", shared.ErrOverpayment, invoice.ID)
			}
		}

		id, err := tx.InsertPayment(ctx, Payment{
			Type:      in.Type,
			OrgID:     destination.OrgID,
			Amount:    in.Amount,
			Reference: in.Reference,
			UserID:    in.UserID,
			PaidAt:    in.PaidAt,
		})
		if err != nil {
			return err
		}
		paymentID = id

		posting := ledger.PostingInput{
			OrgID:        destination.OrgID,
			SourceModule: "payments:" + string(in.Type),
			SourceID:     uuid.New(),
			Memo:         fmt.Sprintf("payment %d received", id),
			Records: []ledger.RecordInput{
				{GLAccountID: destination.ID, Amount: in.Amount, IsDebit: true},
			},
		}
		for _, alloc := range in.Allocations {
			if err := tx.InsertAllocation(ctx, Allocation{
				PaymentID: id,
				InvoiceID: alloc.InvoiceID,
				Amount:    alloc.Amount,
				IsDeposit: alloc.IsDeposit,
			}); err != nil {
				return err
			}
			posting.Records = append(posting.Records, ledger.RecordInput{
				GLAccountID: org.Special.AccountsReceivableID,
				Amount:      alloc.Amount,
			})
		}

		if card != nil {
			card.PaymentID = id
			if err := tx.InsertCardTransaction(ctx, *card); err != nil {
				return err
			}
		}

		transaction, err := tx.PostTransaction(ctx, posting)
		if err != nil {
			return err
		}
		return tx.SetPaymentTransaction(ctx, id, transaction.ID)
	})
	if err != nil {
		return Payment{}, err
	}

	s.recordAudit(ctx, in.UserID, "payment.receive", paymentID, map[string]any{
		"type":   string(in.Type),
		"amount": in.Amount.StringFixed(2),
	})
	return s.repo.GetPayment(ctx, paymentID)
}

// Payment loads one payment with its allocations.
func (s *Service) Payment(ctx context.Context, id int64) (Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// InvoiceStatus derives the virtual payment status of an invoice.
func (s *Service) InvoiceStatus(ctx context.Context, invoiceID int64) (VirtualStatus, error) {
	invoice, err := s.repo.InvoiceFacts(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	allocated, err := s.repo.AllocatedTotal(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	return ComputeVirtualStatus(invoice, allocated, s.now()), nil
}

// InvoiceAllocations lists the allocations settled against one invoice.
func (s *Service) InvoiceAllocations(ctx context.Context, invoiceID int64) ([]Allocation, error) {
	return s.repo.InvoiceAllocations(ctx, invoiceID)
}

// RemainingBalance returns invoice total minus allocations to date.
func (s *Service) RemainingBalance(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	invoice, err := s.repo.InvoiceFacts(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	allocated, err := s.repo.AllocatedTotal(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	return invoice.Total.Sub(allocated), nil
}

func (s *Service) recordAudit(ctx context.Context, userID *int64, action string, paymentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	var actor int64
	if userID != nil {
		actor = *userID
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "payment",
		EntityID: paymentID,
		Meta:     meta,
		At:       s.now(),
	})
}
