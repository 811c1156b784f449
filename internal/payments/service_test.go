package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryPaymentRepo struct {
	mu          sync.Mutex
	invoices    map[int64]InvoiceFacts
	payments    map[int64]*Payment
	allocations []Allocation
	cardTxs     []CardTransaction
	postings    []ledger.Transaction
	nextID      int64
}

func newMemoryPaymentRepo() *memoryPaymentRepo {
	return &memoryPaymentRepo{
		invoices: make(map[int64]InvoiceFacts),
		payments: make(map[int64]*Payment),
	}
}

func (r *memoryPaymentRepo) GetPayment(_ context.Context, id int64) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return Payment{}, shared.ErrNotFound
	}
	out := *p
	for _, alloc := range r.allocations {
		if alloc.PaymentID == id {
			out.Allocations = append(out.Allocations, alloc)
		}
	}
	return out, nil
}

func (r *memoryPaymentRepo) InvoiceFacts(_ context.Context, invoiceID int64) (InvoiceFacts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return InvoiceFacts{}, shared.ErrNotFound
	}
	return inv, nil
}

func (r *memoryPaymentRepo) allocatedLocked(invoiceID int64) decimal.Decimal {
	sum := decimal.Zero
	for _, alloc := range r.allocations {
		if alloc.InvoiceID == invoiceID {
			sum = sum.Add(alloc.Amount)
		}
	}
	return sum
}

func (r *memoryPaymentRepo) AllocatedTotal(_ context.Context, invoiceID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocatedLocked(invoiceID), nil
}

func (r *memoryPaymentRepo) InvoiceAllocations(_ context.Context, invoiceID int64) ([]Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Allocation
	for _, alloc := range r.allocations {
		if alloc.InvoiceID == invoiceID {
			out = append(out, alloc)
		}
	}
	return out, nil
}

// WithTx stages writes and commits them only when fn succeeds, so a failing
// unit of work leaves no partial state, matching the storage contract.
func (r *memoryPaymentRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryPaymentTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memoryPaymentTx struct {
	repo        *memoryPaymentRepo
	payments    []*Payment
	allocations []Allocation
	cardTxs     []CardTransaction
	postings    []ledger.Transaction
}

func (t *memoryPaymentTx) GetInvoiceForUpdate(_ context.Context, invoiceID int64) (InvoiceFacts, error) {
	inv, ok := t.repo.invoices[invoiceID]
	if !ok {
		return InvoiceFacts{}, shared.ErrNotFound
	}
	return inv, nil
}

func (t *memoryPaymentTx) AllocatedTotal(_ context.Context, invoiceID int64) (decimal.Decimal, error) {
	sum := t.repo.allocatedLocked(invoiceID)
	for _, alloc := range t.allocations {
		if alloc.InvoiceID == invoiceID {
			sum = sum.Add(alloc.Amount)
		}
	}
	return sum, nil
}

func (t *memoryPaymentTx) InsertPayment(_ context.Context, p Payment) (int64, error) {
	t.repo.nextID++
	p.ID = t.repo.nextID
	t.payments = append(t.payments, &p)
	return p.ID, nil
}

func (t *memoryPaymentTx) InsertAllocation(_ context.Context, alloc Allocation) error {
	t.allocations = append(t.allocations, alloc)
	return nil
}

func (t *memoryPaymentTx) InsertCardTransaction(_ context.Context, ct CardTransaction) error {
	t.cardTxs = append(t.cardTxs, ct)
	return nil
}

func (t *memoryPaymentTx) SetPaymentTransaction(_ context.Context, paymentID, transactionID int64) error {
	for _, p := range t.payments {
		if p.ID == paymentID {
			p.TransactionID = &transactionID
			return nil
		}
	}
	return shared.ErrNotFound
}

func (t *memoryPaymentTx) PostTransaction(_ context.Context, in ledger.PostingInput) (ledger.Transaction, error) {
	if err := in.Validate(); err != nil {
		return ledger.Transaction{}, err
	}
	out := ledger.Transaction{
		ID:           int64(len(t.repo.postings) + len(t.postings) + 1),
		OrgID:        in.OrgID,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Memo:         in.Memo,
	}
	for _, rec := range in.Records {
		out.Records = append(out.Records, ledger.TransactionRecord{
			TransactionID: out.ID,
			GLAccountID:   rec.GLAccountID,
			Amount:        rec.Amount,
			IsDebit:       rec.IsDebit,
		})
	}
	t.postings = append(t.postings, out)
	return out, nil
}

func (t *memoryPaymentTx) commit() {
	for _, p := range t.payments {
		t.repo.payments[p.ID] = p
	}
	t.repo.allocations = append(t.repo.allocations, t.allocations...)
	t.repo.cardTxs = append(t.repo.cardTxs, t.cardTxs...)
	t.repo.postings = append(t.repo.postings, t.postings...)
}

type fakePaymentLedger struct {
	orgs     map[int64]ledger.AccountingOrganization
	accounts map[int64]ledger.GLAccount
}

func (f *fakePaymentLedger) Organization(_ context.Context, id int64) (ledger.AccountingOrganization, error) {
	org, ok := f.orgs[id]
	if !ok {
		return ledger.AccountingOrganization{}, shared.ErrNotFound
	}
	return org, nil
}

func (f *fakePaymentLedger) Account(_ context.Context, id int64) (ledger.GLAccount, error) {
	account, ok := f.accounts[id]
	if !ok {
		return ledger.GLAccount{}, shared.ErrNotFound
	}
	return account, nil
}

type fakeGateway struct {
	fail    bool
	charges int
}

func (g *fakeGateway) Charge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	g.charges++
	if g.fail {
		return ChargeResult{}, errors.New("card declined")
	}
	return ChargeResult{ExternalID: "chg_123", SettledAt: time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)}, nil
}

const (
	bankAccountID   = int64(30)
	closedAccountID = int64(31)
	arAccountID     = int64(903)
)

func newPaymentFixture() (*Service, *memoryPaymentRepo) {
	repo := newMemoryPaymentRepo()
	repo.invoices[1] = InvoiceFacts{ID: 1, OrgID: 1, LocationID: 5, Status: documents.StatusApproved, Total: decimal.NewFromInt(100)}
	repo.invoices[2] = InvoiceFacts{ID: 2, OrgID: 1, LocationID: 5, Status: documents.StatusApproved, Total: decimal.NewFromInt(200)}
	ledgerPort := &fakePaymentLedger{
		orgs: map[int64]ledger.AccountingOrganization{
			1: {ID: 1, Special: ledger.SpecialAccounts{AccountsReceivableID: arAccountID, PaymentClearingID: 904}},
		},
		accounts: map[int64]ledger.GLAccount{
			bankAccountID:   {ID: bankAccountID, OrgID: 1, EnablePaymentsToAccount: true},
			closedAccountID: {ID: closedAccountID, OrgID: 1},
		},
	}
	svc := NewService(repo, ledgerPort)
	svc.WithNow(func() time.Time { return time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC) })
	return svc, repo
}

func receiveInput(amount string, allocs ...AllocationInput) ReceiveInput {
	return ReceiveInput{
		Type:                 TypeGeneric,
		Amount:               decimal.RequireFromString(amount),
		DestinationAccountID: bankAccountID,
		LocationID:           5,
		Allocations:          allocs,
	}
}

func TestReceiveSplitsAndPosts(t *testing.T) {
	svc, repo := newPaymentFixture()

	payment, err := svc.Receive(context.Background(), receiveInput("150",
		AllocationInput{InvoiceID: 1, Amount: decimal.NewFromInt(100)},
		AllocationInput{InvoiceID: 2, Amount: decimal.NewFromInt(50), IsDeposit: true},
	))
	require.NoError(t, err)
	require.Len(t, payment.Allocations, 2)
	require.NotNil(t, payment.TransactionID)

	require.Len(t, repo.postings, 1)
	records := repo.postings[0].Records
	require.Len(t, records, 3)
	require.True(t, records[0].IsDebit)
	require.Equal(t, bankAccountID, records[0].GLAccountID)
	require.True(t, records[0].Amount.Equal(decimal.NewFromInt(150)))
	for _, rec := range records[1:] {
		require.False(t, rec.IsDebit)
		require.Equal(t, arAccountID, rec.GLAccountID)
	}
}

func TestReceiveAllocationMismatch(t *testing.T) {
	svc, repo := newPaymentFixture()

	_, err := svc.Receive(context.Background(), receiveInput("150",
		AllocationInput{InvoiceID: 1, Amount: decimal.NewFromInt(100)},
		AllocationInput{InvoiceID: 2, Amount: decimal.NewFromInt(40)},
	))
	require.ErrorIs(t, err, shared.ErrAllocationMismatch)
	require.Empty(t, repo.payments)
	require.Empty(t, repo.postings)
}

func TestReceiveOverpaymentLeavesNoState(t *testing.T) {
	svc, repo := newPaymentFixture()

	// Invoice 1's total is 100; 60 is already allocated, so a further 50
	// breaches the invariant re-checked under the row lock.
	repo.allocations = append(repo.allocations, Allocation{ID: 1, PaymentID: 99, InvoiceID: 1, Amount: decimal.NewFromInt(60)})

	_, err := svc.Receive(context.Background(), receiveInput("150",
		AllocationInput{InvoiceID: 1, Amount: decimal.NewFromInt(50)},
		AllocationInput{InvoiceID: 2, Amount: decimal.NewFromInt(100)},
	))
	require.ErrorIs(t, err, shared.ErrOverpayment)
	require.Empty(t, repo.payments)
	require.Empty(t, repo.postings)
	require.Len(t, repo.allocations, 1)
}

func TestReceiveRejectsUnapprovedInvoice(t *testing.T) {
	svc, repo := newPaymentFixture()
	repo.invoices[3] = InvoiceFacts{ID: 3, OrgID: 1, LocationID: 5, Status: documents.StatusDraft, Total: decimal.NewFromInt(100)}

	_, err := svc.Receive(context.Background(), receiveInput("50",
		AllocationInput{InvoiceID: 3, Amount: decimal.NewFromInt(50)},
	))
	require.ErrorIs(t, err, shared.ErrNotAllowed)
}

func TestReceiveRejectsInvoiceAtOtherLocation(t *testing.T) {
	svc, repo := newPaymentFixture()
	repo.invoices[4] = InvoiceFacts{ID: 4, OrgID: 1, LocationID: 6, Status: documents.StatusApproved, Total: decimal.NewFromInt(100)}

	_, err := svc.Receive(context.Background(), receiveInput("50",
		AllocationInput{InvoiceID: 4, Amount: decimal.NewFromInt(50)},
	))
	require.ErrorIs(t, err, shared.ErrNotAllowed)
	require.Empty(t, repo.payments)
}

func TestReceiveRequiresPaymentsEnabledAccount(t *testing.T) {
	svc, _ := newPaymentFixture()

	in := receiveInput("50", AllocationInput{InvoiceID: 1, Amount: decimal.NewFromInt(50)})
	in.DestinationAccountID = closedAccountID
	_, err := svc.Receive(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrNotAllowed)
}

func TestPayWithCreditCardRecordsMetadata(t *testing.T) {
	svc, repo := newPaymentFixture()
	gateway := &fakeGateway{}
	svc.SetGateway(gateway)

	payment, err := svc.PayWithCreditCard(context.Background(), CardPaymentInput{
		ReceiveInput: receiveInput("100", AllocationInput{InvoiceID: 1, Amount: decimal.NewFromInt(100)}),
		CardToken:    "tok_visa",
	})
	require.NoError(t, err)
	require.Equal(t, 1, gateway.charges)
	require.Equal(t, TypeCreditCard, payment.Type)
	require.NotNil(t, payment.PaidAt)

	require.Len(t, repo.cardTxs, 1)
	require.Equal(t, "chg_123", repo.cardTxs[0].ExternalID)
	require.Equal(t, payment.ID, repo.cardTxs[0].PaymentID)
}

func TestPayWithCreditCardGatewayFailure(t *testing.T) {
	svc, repo := newPaymentFixture()
	svc.SetGateway(&fakeGateway{fail: true})

	_, err := svc.PayWithCreditCard(context.Background(), CardPaymentInput{
		ReceiveInput: receiveInput("100", AllocationInput{InvoiceID: 1, Amount: decimal.NewFromInt(100)}),
		CardToken:    "tok_visa",
	})
	require.ErrorIs(t, err, shared.ErrPaymentProcessor)
	require.Empty(t, repo.payments)
	require.Empty(t, repo.postings)
	require.Empty(t, repo.cardTxs)
}

func TestPayWithDirectDepositUsesBankReference(t *testing.T) {
	svc, _ := newPaymentFixture()

	payment, err := svc.PayWithDirectDeposit(context.Background(), DirectDepositInput{
		ReceiveInput:  receiveInput("100", AllocationInput{InvoiceID: 1, Amount: decimal.NewFromInt(100)}),
		BankReference: "RMT-778",
	})
	require.NoError(t, err)
	require.Equal(t, TypeDirectDeposit, payment.Type)
	require.Equal(t, "RMT-778", payment.Reference)
}

func TestVirtualStatus(t *testing.T) {
	now := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	past := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)

	draft := InvoiceFacts{Status: documents.StatusDraft, Total: decimal.NewFromInt(100)}
	require.Equal(t, VirtualDraft, ComputeVirtualStatus(draft, decimal.Zero, now))

	approved := InvoiceFacts{Status: documents.StatusApproved, Total: decimal.NewFromInt(100), DueAt: &future}
	require.Equal(t, VirtualUnpaid, ComputeVirtualStatus(approved, decimal.Zero, now))
	require.Equal(t, VirtualPaid, ComputeVirtualStatus(approved, decimal.NewFromInt(100), now))

	overdue := InvoiceFacts{Status: documents.StatusApproved, Total: decimal.NewFromInt(100), DueAt: &past}
	require.Equal(t, VirtualOverdue, ComputeVirtualStatus(overdue, decimal.NewFromInt(50), now))
	require.Equal(t, VirtualPaid, ComputeVirtualStatus(overdue, decimal.NewFromInt(100), now))
}
