package forwarding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/payments"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryForwardRepo struct {
	mu        sync.Mutex
	payments  map[int64]payments.Payment
	forwarded map[int64]*ForwardedPayment
	postings  []ledger.Transaction
	nextID    int64
}

func newMemoryForwardRepo() *memoryForwardRepo {
	return &memoryForwardRepo{
		payments:  make(map[int64]payments.Payment),
		forwarded: make(map[int64]*ForwardedPayment),
	}
}

func (r *memoryForwardRepo) Get(_ context.Context, id int64) (ForwardedPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fp, ok := r.forwarded[id]
	if !ok {
		return ForwardedPayment{}, shared.ErrNotFound
	}
	return *fp, nil
}

func (r *memoryForwardRepo) Unforwarded(_ context.Context, _ int64) ([]payments.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []payments.Payment
	for id, p := range r.payments {
		if !r.isForwardedLocked(id) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryForwardRepo) isForwardedLocked(paymentID int64) bool {
	for _, fp := range r.forwarded {
		if fp.PaymentID == paymentID {
			return true
		}
	}
	return false
}

func (r *memoryForwardRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryForwardTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memoryForwardTx struct {
	repo      *memoryForwardRepo
	forwarded []*ForwardedPayment
	postings  []ledger.Transaction
}

func (t *memoryForwardTx) GetPaymentForUpdate(_ context.Context, paymentID int64) (payments.Payment, error) {
	p, ok := t.repo.payments[paymentID]
	if !ok {
		return payments.Payment{}, shared.ErrNotFound
	}
	return p, nil
}

func (t *memoryForwardTx) IsForwarded(_ context.Context, paymentID int64) (bool, error) {
	return t.repo.isForwardedLocked(paymentID), nil
}

func (t *memoryForwardTx) InsertForwardedPayment(_ context.Context, fp ForwardedPayment) (int64, error) {
	t.repo.nextID++
	fp.ID = t.repo.nextID
	t.forwarded = append(t.forwarded, &fp)
	return fp.ID, nil
}

func (t *memoryForwardTx) InsertForwardedInvoice(_ context.Context, inv ForwardedInvoice) error {
	for _, fp := range t.forwarded {
		if fp.ID == inv.ForwardedPaymentID {
			inv.ID = int64(len(fp.Invoices) + 1)
			fp.Invoices = append(fp.Invoices, inv)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (t *memoryForwardTx) PostTransaction(_ context.Context, in ledger.PostingInput) (ledger.Transaction, error) {
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

func (t *memoryForwardTx) commit() {
	for _, fp := range t.forwarded {
		t.repo.forwarded[fp.ID] = fp
	}
	t.repo.postings = append(t.repo.postings, t.postings...)
}

type fakeForwardLedger struct {
	orgs     map[int64]ledger.AccountingOrganization
	accounts map[int64]ledger.GLAccount
}

func (f *fakeForwardLedger) Organization(_ context.Context, id int64) (ledger.AccountingOrganization, error) {
	org, ok := f.orgs[id]
	if !ok {
		return ledger.AccountingOrganization{}, shared.ErrNotFound
	}
	return org, nil
}

func (f *fakeForwardLedger) Account(_ context.Context, id int64) (ledger.GLAccount, error) {
	account, ok := f.accounts[id]
	if !ok {
		return ledger.GLAccount{}, shared.ErrNotFound
	}
	return account, nil
}

const (
	branchClearingID = int64(904)
	hqBankID         = int64(50)
)

func newForwardFixture() (*Service, *memoryForwardRepo) {
	repo := newMemoryForwardRepo()
	repo.payments[1] = payments.Payment{ID: 1, Type: payments.TypeGeneric, OrgID: 1, Amount: decimal.NewFromInt(150)}

	ledgerPort := &fakeForwardLedger{
		orgs: map[int64]ledger.AccountingOrganization{
			1: {ID: 1, Special: ledger.SpecialAccounts{PaymentClearingID: branchClearingID}},
			2: {ID: 2},
		},
		accounts: map[int64]ledger.GLAccount{
			hqBankID: {ID: hqBankID, OrgID: 2, EnablePaymentsToAccount: true},
			60:       {ID: 60, OrgID: 1, EnablePaymentsToAccount: true},
		},
	}
	svc := NewService(repo, ledgerPort)
	svc.WithNow(func() time.Time { return time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC) })
	return svc, repo
}

func forwardInput() ForwardInput {
	return ForwardInput{
		PaymentID:            1,
		DestinationAccountID: hqBankID,
		RemittanceRef:        "RMT-42",
		ActorID:              7,
		Invoices: []InvoiceAmountInput{
			{InvoiceID: 10, Amount: decimal.NewFromInt(100)},
			{InvoiceID: 11, Amount: decimal.NewFromInt(50)},
		},
	}
}

func TestForwardMovesFundsBetweenOrganizations(t *testing.T) {
	svc, repo := newForwardFixture()

	forwarded, err := svc.Forward(context.Background(), forwardInput())
	require.NoError(t, err)
	require.Equal(t, int64(1), forwarded.SourceOrgID)
	require.Equal(t, int64(2), forwarded.DestinationOrgID)
	require.Equal(t, "RMT-42", forwarded.RemittanceRef)
	require.Len(t, forwarded.Invoices, 2)
	require.NotZero(t, forwarded.TransactionID)

	require.Len(t, repo.postings, 1)
	records := repo.postings[0].Records
	require.Len(t, records, 2)
	require.Equal(t, hqBankID, records[0].GLAccountID)
	require.True(t, records[0].IsDebit)
	require.Equal(t, branchClearingID, records[1].GLAccountID)
	require.False(t, records[1].IsDebit)
	require.True(t, records[0].Amount.Equal(decimal.NewFromInt(150)))
}

func TestForwardTwiceRejected(t *testing.T) {
	svc, repo := newForwardFixture()

	_, err := svc.Forward(context.Background(), forwardInput())
	require.NoError(t, err)

	_, err = svc.Forward(context.Background(), forwardInput())
	require.ErrorIs(t, err, shared.ErrNotAllowed)
	require.Len(t, repo.forwarded, 1)
	require.Len(t, repo.postings, 1)
}

func TestForwardAmountMismatchRejected(t *testing.T) {
	svc, repo := newForwardFixture()

	in := forwardInput()
	in.Invoices[1].Amount = decimal.NewFromInt(40)
	_, err := svc.Forward(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrNotAllowed)
	require.Empty(t, repo.forwarded)
	require.Empty(t, repo.postings)
}

func TestForwardWithinSameOrganizationRejected(t *testing.T) {
	svc, _ := newForwardFixture()

	in := forwardInput()
	in.DestinationAccountID = 60
	_, err := svc.Forward(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrNotAllowed)
}

func TestUnforwardedShrinksAfterForward(t *testing.T) {
	svc, _ := newForwardFixture()

	before, err := svc.Unforwarded(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, before, 1)

	_, err = svc.Forward(context.Background(), forwardInput())
	require.NoError(t, err)

	after, err := svc.Unforwarded(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, after)
}
