package documents

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryDocRepo struct {
	mu              sync.Mutex
	docs            map[int64]*Document
	notes           map[int64][]Note
	approveRequests map[int64][]requestRow
	allocations     map[int64]int
	postings        []ledger.Transaction
	nextID          int64
	nextNoteID      int64
	seq             map[docSeqKey]int
}

type requestRow struct {
	approverID int64
	approvedBy int64
	approvedAt *time.Time
}

type docSeqKey struct {
	orgID int64
	kind  Kind
}

func newMemoryDocRepo() *memoryDocRepo {
	return &memoryDocRepo{
		docs:            make(map[int64]*Document),
		notes:           make(map[int64][]Note),
		approveRequests: make(map[int64][]requestRow),
		allocations:     make(map[int64]int),
		seq:             make(map[docSeqKey]int),
	}
}

func (r *memoryDocRepo) Get(_ context.Context, id int64) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return Document{}, shared.ErrNotFound
	}
	return *doc, nil
}

func (r *memoryDocRepo) List(_ context.Context, req ListRequest) ([]Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Document
	for _, doc := range r.docs {
		if doc.OrgID != req.OrgID {
			continue
		}
		if req.Kind != "" && doc.Kind != req.Kind {
			continue
		}
		if req.Status != "" && doc.Status != req.Status {
			continue
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (r *memoryDocRepo) ListNotes(_ context.Context, documentID int64) ([]Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Note(nil), r.notes[documentID]...), nil
}

func (r *memoryDocRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryDocTx{repo: r})
}

type memoryDocTx struct {
	repo *memoryDocRepo
}

func (t *memoryDocTx) InsertDocument(_ context.Context, in CreateInput, snapshot ContactSnapshot, total decimal.Decimal) (int64, error) {
	t.repo.nextID++
	id := t.repo.nextID
	doc := &Document{
		ID:                 id,
		Kind:               in.Kind,
		Number:             in.Number,
		LocationID:         in.LocationID,
		OrgID:              in.OrgID,
		JobID:              in.JobID,
		RecipientContactID: in.RecipientContactID,
		RecipientName:      snapshot.Name,
		RecipientAddress:   snapshot.Address,
		Date:               in.Date,
		DueAt:              in.DueAt,
		Status:             StatusDraft,
		Total:              total,
		CreatedBy:          in.CreatedBy,
	}
	for i, item := range in.Items {
		doc.Items = append(doc.Items, itemFromInput(item))
		doc.Items[i].ID = int64(i + 1)
		doc.Items[i].DocumentID = id
	}
	t.repo.docs[id] = doc
	return id, nil
}

func (t *memoryDocTx) GetDocumentForUpdate(_ context.Context, id int64) (Document, error) {
	doc, ok := t.repo.docs[id]
	if !ok {
		return Document{}, shared.ErrNotFound
	}
	return *doc, nil
}

func (t *memoryDocTx) ReplaceItems(_ context.Context, documentID int64, items []ItemInput) error {
	doc := t.repo.docs[documentID]
	doc.Items = nil
	for i, item := range items {
		doc.Items = append(doc.Items, itemFromInput(item))
		doc.Items[i].ID = int64(i + 1)
		doc.Items[i].DocumentID = documentID
	}
	return nil
}

func (t *memoryDocTx) UpdateTotal(_ context.Context, documentID int64, total decimal.Decimal) error {
	t.repo.docs[documentID].Total = total
	return nil
}

func (t *memoryDocTx) UpdateStatus(_ context.Context, documentID int64, status Status, lockedAt *time.Time) error {
	doc := t.repo.docs[documentID]
	doc.Status = status
	doc.LockedAt = lockedAt
	return nil
}

func (t *memoryDocTx) AppendStatusHistory(_ context.Context, documentID int64, status Status, actorID int64, at time.Time) error {
	doc, ok := t.repo.docs[documentID]
	if !ok {
		return shared.ErrNotFound
	}
	doc.History = append(doc.History, StatusChange{DocumentID: documentID, Status: status, ActorID: actorID, At: at})
	return nil
}

func (t *memoryDocTx) SetSearchSyncDisabled(_ context.Context, documentID int64, disabled bool) error {
	t.repo.docs[documentID].SearchSyncDisabled = disabled
	return nil
}

func (t *memoryDocTx) DeleteDocument(_ context.Context, documentID int64) error {
	delete(t.repo.docs, documentID)
	return nil
}

func (t *memoryDocTx) CountApproveRequests(_ context.Context, documentID int64) (int, error) {
	return len(t.repo.approveRequests[documentID]), nil
}

func (t *memoryDocTx) CountPaymentAllocations(_ context.Context, documentID int64) (int, error) {
	return t.repo.allocations[documentID], nil
}

func (t *memoryDocTx) MarkApproveRequestsApproved(_ context.Context, documentID, approvedBy int64, at time.Time) error {
	rows := t.repo.approveRequests[documentID]
	for i := range rows {
		if rows[i].approvedAt == nil {
			stamped := at
			rows[i].approvedAt = &stamped
			rows[i].approvedBy = approvedBy
		}
	}
	return nil
}

func (t *memoryDocTx) InsertNote(_ context.Context, in AddNoteInput) (Note, error) {
	t.repo.nextNoteID++
	note := Note{ID: t.repo.nextNoteID, DocumentID: in.DocumentID, AuthorID: in.AuthorID, Body: in.Body}
	t.repo.notes[in.DocumentID] = append(t.repo.notes[in.DocumentID], note)
	return note, nil
}

func (t *memoryDocTx) DeleteNote(_ context.Context, documentID, noteID int64) error {
	notes := t.repo.notes[documentID]
	for i, note := range notes {
		if note.ID == noteID {
			t.repo.notes[documentID] = append(notes[:i], notes[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (t *memoryDocTx) GenerateNumber(_ context.Context, orgID int64, kind Kind) (string, error) {
	key := docSeqKey{orgID: orgID, kind: kind}
	t.repo.seq[key]++
	prefix := map[Kind]string{KindInvoice: "INV", KindPurchaseOrder: "PO", KindCreditNote: "CN"}[kind]
	return fmt.Sprintf("%s-%06d", prefix, t.repo.seq[key]), nil
}

func (t *memoryDocTx) PostTransaction(_ context.Context, in ledger.PostingInput) (ledger.Transaction, error) {
	if err := in.Validate(); err != nil {
		return ledger.Transaction{}, err
	}
	tx := ledger.Transaction{
		ID:           int64(len(t.repo.postings) + 1),
		OrgID:        in.OrgID,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Memo:         in.Memo,
	}
	for _, rec := range in.Records {
		tx.Records = append(tx.Records, ledger.TransactionRecord{
			TransactionID: tx.ID,
			GLAccountID:   rec.GLAccountID,
			Amount:        rec.Amount,
			IsDebit:       rec.IsDebit,
		})
	}
	t.repo.postings = append(t.repo.postings, tx)
	return tx, nil
}

type fakeLedgerPort struct {
	orgs     map[int64]ledger.AccountingOrganization
	accounts map[int64]ledger.GLAccount
	rates    map[int64]ledger.TaxRate
}

func (f *fakeLedgerPort) Organization(_ context.Context, id int64) (ledger.AccountingOrganization, error) {
	org, ok := f.orgs[id]
	if !ok {
		return ledger.AccountingOrganization{}, shared.ErrNotFound
	}
	return org, nil
}

func (f *fakeLedgerPort) Account(_ context.Context, id int64) (ledger.GLAccount, error) {
	account, ok := f.accounts[id]
	if !ok {
		return ledger.GLAccount{}, shared.ErrNotFound
	}
	return account, nil
}

func (f *fakeLedgerPort) TaxRate(_ context.Context, id int64) (ledger.TaxRate, error) {
	rate, ok := f.rates[id]
	if !ok {
		return ledger.TaxRate{}, shared.ErrNotFound
	}
	return rate, nil
}

type fakeDirectory struct {
	contacts  map[int64]ContactSnapshot
	approvers map[int64]Approver
}

func (f *fakeDirectory) ContactSnapshot(_ context.Context, contactID int64) (ContactSnapshot, error) {
	snapshot, ok := f.contacts[contactID]
	if !ok {
		return ContactSnapshot{}, shared.ErrNotFound
	}
	return snapshot, nil
}

func (f *fakeDirectory) Approver(_ context.Context, userID int64) (Approver, error) {
	approver, ok := f.approvers[userID]
	if !ok {
		return Approver{}, shared.ErrNotFound
	}
	return approver, nil
}

func (f *fakeDirectory) ApproversAt(_ context.Context, locationID int64) ([]Approver, error) {
	var out []Approver
	for _, approver := range f.approvers {
		if approver.AtLocation(locationID) {
			out = append(out, approver)
		}
	}
	return out, nil
}

const (
	testOrgID         = int64(1)
	testLocationID    = int64(5)
	revenueAccountID  = int64(10)
	expenseAccountID  = int64(11)
	foreignAccountID  = int64(20)
	standardTaxRateID = int64(1)
	foreignTaxRateID  = int64(2)
	taxPayableID      = int64(900)
	taxReceivableID   = int64(901)
	apControlID       = int64(902)
	arControlID       = int64(903)
	clearingID        = int64(904)
)

var testNow = time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)

func newDocumentFixture(t *testing.T) (*Service, *memoryDocRepo) {
	t.Helper()
	repo := newMemoryDocRepo()
	ledgerPort := &fakeLedgerPort{
		orgs: map[int64]ledger.AccountingOrganization{
			testOrgID: {
				ID:             testOrgID,
				Name:           "Harbour Trading",
				Active:         true,
				LockDayOfMonth: 10,
				LocationIDs:    []int64{testLocationID},
				Special: ledger.SpecialAccounts{
					TaxPayableID:         taxPayableID,
					TaxReceivableID:      taxReceivableID,
					AccountsPayableID:    apControlID,
					AccountsReceivableID: arControlID,
					PaymentClearingID:    clearingID,
				},
			},
		},
		accounts: map[int64]ledger.GLAccount{
			revenueAccountID: {ID: revenueAccountID, OrgID: testOrgID, Name: "Sales"},
			expenseAccountID: {ID: expenseAccountID, OrgID: testOrgID, Name: "Materials"},
			foreignAccountID: {ID: foreignAccountID, OrgID: 2, Name: "Other Org Sales"},
		},
		rates: map[int64]ledger.TaxRate{
			standardTaxRateID: {ID: standardTaxRateID, OrgID: testOrgID, Rate: decimal.RequireFromString("0.10")},
			foreignTaxRateID:  {ID: foreignTaxRateID, OrgID: 2, Rate: decimal.RequireFromString("0.10")},
		},
	}
	directory := &fakeDirectory{
		contacts: map[int64]ContactSnapshot{
			42: {Name: "Acme Pty Ltd", Address: "1 Wharf Rd, Sydney"},
		},
		approvers: map[int64]Approver{
			7: {
				ID:                 7,
				Name:               "Dana",
				LocationIDs:        []int64{testLocationID},
				InvoiceLimit:       decimal.NewFromInt(10000),
				PurchaseOrderLimit: decimal.NewFromInt(10000),
				CreditNoteLimit:    decimal.NewFromInt(10000),
			},
			8: {
				ID:                 8,
				Name:               "Remote",
				LocationIDs:        []int64{99},
				InvoiceLimit:       decimal.NewFromInt(10000),
				PurchaseOrderLimit: decimal.NewFromInt(10000),
				CreditNoteLimit:    decimal.NewFromInt(10000),
			},
			9: {
				ID:           9,
				Name:         "Junior",
				LocationIDs:  []int64{testLocationID},
				InvoiceLimit: decimal.NewFromInt(100),
			},
		},
	}
	svc := NewService(repo, ledgerPort, directory)
	svc.WithNow(func() time.Time { return testNow })
	return svc, repo
}

func standardItems() []ItemInput {
	return []ItemInput{
		{
			Position:    0,
			GLAccountID: revenueAccountID,
			TaxRateID:   standardTaxRateID,
			Description: "Widgets",
			Quantity:    decimal.NewFromInt(2),
			UnitCost:    decimal.NewFromInt(100),
		},
	}
}

func createTestDocument(t *testing.T, svc *Service, kind Kind, date time.Time, items []ItemInput) Document {
	t.Helper()
	doc, err := svc.Create(context.Background(), CreateInput{
		Kind:               kind,
		LocationID:         testLocationID,
		OrgID:              testOrgID,
		RecipientContactID: 42,
		Date:               date,
		CreatedBy:          7,
		Items:              items,
	})
	require.NoError(t, err)
	return doc
}

func TestCreateSnapshotsRecipientAndNumbers(t *testing.T) {
	svc, _ := newDocumentFixture(t)

	doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())

	require.Equal(t, "Acme Pty Ltd", doc.RecipientName)
	require.Equal(t, "1 Wharf Rd, Sydney", doc.RecipientAddress)
	require.Equal(t, "INV-000001", doc.Number)
	require.Equal(t, StatusDraft, doc.Status)
	require.True(t, doc.Total.Equal(decimal.RequireFromString("220")))
	require.Len(t, doc.History, 1)
	require.Equal(t, StatusDraft, doc.History[0].Status)
}

func TestCreateNumbersPerOrganizationAndKind(t *testing.T) {
	svc, _ := newDocumentFixture(t)

	first := createTestDocument(t, svc, KindInvoice, testNow, standardItems())
	second := createTestDocument(t, svc, KindInvoice, testNow, standardItems())
	po := createTestDocument(t, svc, KindPurchaseOrder, testNow, standardItems())

	otherOrg, err := svc.Create(context.Background(), CreateInput{
		Kind:               KindInvoice,
		LocationID:         testLocationID,
		OrgID:              2,
		RecipientContactID: 42,
		Date:               testNow,
		CreatedBy:          7,
		Items: []ItemInput{{
			GLAccountID: foreignAccountID,
			TaxRateID:   foreignTaxRateID,
			Quantity:    decimal.NewFromInt(1),
			UnitCost:    decimal.NewFromInt(50),
		}},
	})
	require.NoError(t, err)

	require.Equal(t, "INV-000001", first.Number)
	require.Equal(t, "INV-000002", second.Number)
	require.Equal(t, "PO-000001", po.Number)
	require.Equal(t, "INV-000001", otherOrg.Number)
}

func TestCreateRejectsForeignItems(t *testing.T) {
	svc, _ := newDocumentFixture(t)

	_, err := svc.Create(context.Background(), CreateInput{
		Kind:               KindInvoice,
		LocationID:         testLocationID,
		OrgID:              testOrgID,
		RecipientContactID: 42,
		Date:               testNow,
		CreatedBy:          7,
		Items: []ItemInput{{
			GLAccountID: foreignAccountID,
			TaxRateID:   standardTaxRateID,
			Quantity:    decimal.NewFromInt(1),
			UnitCost:    decimal.NewFromInt(50),
		}},
	})
	require.ErrorIs(t, err, shared.ErrNotAllowed)
}

func TestApproveInvoicePostsBalancedTransaction(t *testing.T) {
	svc, repo := newDocumentFixture(t)
	doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())

	approved, transaction, err := svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 7})
	require.NoError(t, err)

	require.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.LockedAt)
	require.Len(t, repo.postings, 1)

	require.Len(t, transaction.Records, 3)
	byAccount := make(map[int64]ledger.TransactionRecord)
	for _, rec := range transaction.Records {
		byAccount[rec.GLAccountID] = rec
	}
	require.True(t, byAccount[arControlID].IsDebit)
	require.True(t, byAccount[arControlID].Amount.Equal(decimal.RequireFromString("220")))
	require.False(t, byAccount[revenueAccountID].IsDebit)
	require.True(t, byAccount[revenueAccountID].Amount.Equal(decimal.RequireFromString("200")))
	require.False(t, byAccount[taxPayableID].IsDebit)
	require.True(t, byAccount[taxPayableID].Amount.Equal(decimal.RequireFromString("20")))
}

func TestApprovePurchaseOrderPosting(t *testing.T) {
	svc, _ := newDocumentFixture(t)
	doc := createTestDocument(t, svc, KindPurchaseOrder, testNow, []ItemInput{{
		GLAccountID: expenseAccountID,
		TaxRateID:   standardTaxRateID,
		Quantity:    decimal.NewFromInt(1),
		UnitCost:    decimal.NewFromInt(100),
		Markup:      decimal.RequireFromString("0.10"),
	}})

	_, transaction, err := svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 7})
	require.NoError(t, err)

	byAccount := make(map[int64]ledger.TransactionRecord)
	for _, rec := range transaction.Records {
		byAccount[rec.GLAccountID] = rec
	}
	require.True(t, byAccount[expenseAccountID].IsDebit)
	require.True(t, byAccount[expenseAccountID].Amount.Equal(decimal.RequireFromString("110")))
	require.True(t, byAccount[taxReceivableID].IsDebit)
	require.True(t, byAccount[taxReceivableID].Amount.Equal(decimal.RequireFromString("11")))
	require.False(t, byAccount[apControlID].IsDebit)
	require.True(t, byAccount[apControlID].Amount.Equal(decimal.RequireFromString("121")))
}

func TestApproveCreditNoteReversesInvoiceShape(t *testing.T) {
	svc, _ := newDocumentFixture(t)
	doc := createTestDocument(t, svc, KindCreditNote, testNow, standardItems())

	_, transaction, err := svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 7})
	require.NoError(t, err)

	byAccount := make(map[int64]ledger.TransactionRecord)
	for _, rec := range transaction.Records {
		byAccount[rec.GLAccountID] = rec
	}
	require.True(t, byAccount[revenueAccountID].IsDebit)
	require.True(t, byAccount[taxPayableID].IsDebit)
	require.False(t, byAccount[arControlID].IsDebit)
	require.True(t, byAccount[arControlID].Amount.Equal(decimal.RequireFromString("220")))
}

func TestApproveTwicePostsExactlyOnce(t *testing.T) {
	svc, repo := newDocumentFixture(t)
	doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())

	_, _, err := svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 7})
	require.NoError(t, err)

	_, _, err = svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 7})
	require.ErrorIs(t, err, shared.ErrAlreadyApproved)
	require.Len(t, repo.postings, 1)
}

func TestApproveClosesEveryOpenRequest(t *testing.T) {
	svc, repo := newDocumentFixture(t)
	doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())
	repo.approveRequests[doc.ID] = []requestRow{{approverID: 7}, {approverID: 8}}

	_, _, err := svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 7})
	require.NoError(t, err)

	for _, row := range repo.approveRequests[doc.ID] {
		require.NotNil(t, row.approvedAt)
		require.Equal(t, testNow, *row.approvedAt)
		require.Equal(t, int64(7), row.approvedBy)
	}
}

func TestApproveRespectsSpendLimit(t *testing.T) {
	svc, repo := newDocumentFixture(t)
	doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())

	_, _, err := svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 9})
	require.ErrorIs(t, err, shared.ErrLimitExceeded)
	require.Empty(t, repo.postings)

	got, err := svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, got.Status)
}

func TestApproveRequiresApproverLocation(t *testing.T) {
	svc, _ := newDocumentFixture(t)
	doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())

	_, _, err := svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 8})
	require.ErrorIs(t, err, shared.ErrNotAllowed)
}

func TestApproveLockedPeriodNeedsOverride(t *testing.T) {
	svc, repo := newDocumentFixture(t)
	// Dated January, evaluated on 5 March with lock day 10: January is closed.
	doc := createTestDocument(t, svc, KindInvoice, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC), standardItems())

	_, _, err := svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 7})
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	require.Empty(t, repo.postings)

	_, _, err = svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 7, Override: true})
	require.NoError(t, err)
	require.Len(t, repo.postings, 1)
}

func TestUpdateItemsOnApprovedDocumentFails(t *testing.T) {
	svc, _ := newDocumentFixture(t)
	doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())
	_, _, err := svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 7})
	require.NoError(t, err)

	_, err = svc.UpdateItems(context.Background(), UpdateItemsInput{
		DocumentID: doc.ID,
		ActorID:    7,
		Force:      true,
		Items:      standardItems(),
	})
	require.ErrorIs(t, err, shared.ErrAlreadyApproved)
}

func TestUpdateItemsLockedRequiresForce(t *testing.T) {
	svc, _ := newDocumentFixture(t)
	doc := createTestDocument(t, svc, KindInvoice, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC), standardItems())

	newItems := []ItemInput{{
		GLAccountID: revenueAccountID,
		TaxRateID:   standardTaxRateID,
		Quantity:    decimal.NewFromInt(3),
		UnitCost:    decimal.NewFromInt(100),
	}}

	_, err := svc.UpdateItems(context.Background(), UpdateItemsInput{DocumentID: doc.ID, ActorID: 7, Items: newItems})
	require.ErrorIs(t, err, shared.ErrLocked)

	updated, err := svc.UpdateItems(context.Background(), UpdateItemsInput{DocumentID: doc.ID, ActorID: 7, Force: true, Items: newItems})
	require.NoError(t, err)
	require.True(t, updated.Total.Equal(decimal.RequireFromString("330")))
}

func TestDeleteGuards(t *testing.T) {
	t.Run("approved document", func(t *testing.T) {
		svc, _ := newDocumentFixture(t)
		doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())
		_, _, err := svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 7})
		require.NoError(t, err)

		err = svc.Delete(context.Background(), doc.ID, 7)
		require.ErrorIs(t, err, shared.ErrNotAllowed)
	})

	t.Run("pending approval trail", func(t *testing.T) {
		svc, repo := newDocumentFixture(t)
		doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())
		repo.approveRequests[doc.ID] = []requestRow{{approverID: 7}}

		err := svc.Delete(context.Background(), doc.ID, 7)
		require.ErrorIs(t, err, shared.ErrNotAllowed)
	})

	t.Run("invoice with payments", func(t *testing.T) {
		svc, repo := newDocumentFixture(t)
		doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())
		repo.allocations[doc.ID] = 1

		err := svc.Delete(context.Background(), doc.ID, 7)
		require.ErrorIs(t, err, shared.ErrNotAllowed)
	})

	t.Run("credit note skips payment check", func(t *testing.T) {
		svc, repo := newDocumentFixture(t)
		doc := createTestDocument(t, svc, KindCreditNote, testNow, standardItems())
		repo.allocations[doc.ID] = 1

		err := svc.Delete(context.Background(), doc.ID, 7)
		require.NoError(t, err)
		_, err = svc.Get(context.Background(), doc.ID)
		require.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("plain draft deletes", func(t *testing.T) {
		svc, _ := newDocumentFixture(t)
		doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())

		require.NoError(t, svc.Delete(context.Background(), doc.ID, 7))
	})
}

func TestMarkPendingApprovalTransitions(t *testing.T) {
	svc, _ := newDocumentFixture(t)
	doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())

	require.NoError(t, svc.MarkPendingApproval(context.Background(), doc.ID, 7))
	got, err := svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, got.Status)

	// Second call is a no-op.
	require.NoError(t, svc.MarkPendingApproval(context.Background(), doc.ID, 7))
	got, err = svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 2)

	_, _, err = svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 7})
	require.NoError(t, err)
	require.ErrorIs(t, svc.MarkPendingApproval(context.Background(), doc.ID, 7), shared.ErrAlreadyApproved)
}

func TestNotesLifecycle(t *testing.T) {
	svc, _ := newDocumentFixture(t)
	doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())

	note, err := svc.AddNote(context.Background(), AddNoteInput{DocumentID: doc.ID, AuthorID: 7, Body: "chase by friday"})
	require.NoError(t, err)

	notes, err := svc.Notes(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	require.NoError(t, svc.RemoveNote(context.Background(), doc.ID, note.ID, 7))
	notes, err = svc.Notes(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Empty(t, notes)
}

type recordingSearch struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingSearch) DocumentChanged(_ context.Context, _ Kind, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

func TestSearchSyncSuppression(t *testing.T) {
	svc, _ := newDocumentFixture(t)
	search := &recordingSearch{}
	svc.SetSearchSync(search)

	createTestDocument(t, svc, KindInvoice, testNow, standardItems())
	require.Equal(t, 1, search.calls)

	svc.SuspendSearchSync(true)
	createTestDocument(t, svc, KindInvoice, testNow, standardItems())
	require.Equal(t, 1, search.calls)

	svc.SuspendSearchSync(false)
	doc := createTestDocument(t, svc, KindInvoice, testNow, standardItems())
	require.Equal(t, 2, search.calls)

	require.NoError(t, svc.SetSearchSyncDisabled(context.Background(), doc.ID, true))
	_, _, err := svc.Approve(context.Background(), ApproveInput{DocumentID: doc.ID, ApproverID: 7})
	require.NoError(t, err)
	require.Equal(t, 2, search.calls)
}
