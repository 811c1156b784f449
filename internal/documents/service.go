package documents

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// AuditPort records mutations for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LedgerPort resolves chart-of-accounts data owned by the ledger module.
// Posting itself goes through the document TxRepository so that approval and
// transaction share one unit of work.
type LedgerPort interface {
	Organization(ctx context.Context, id int64) (ledger.AccountingOrganization, error)
	Account(ctx context.Context, id int64) (ledger.GLAccount, error)
	TaxRate(ctx context.Context, id int64) (ledger.TaxRate, error)
}

// Notifier is informed of note attach/detach events, fire and forget.
type Notifier interface {
	NoteAttached(ctx context.Context, documentID, noteID int64)
	NoteDetached(ctx context.Context, documentID, noteID int64)
}

// Service implements the financial document state machine.
type Service struct {
	repo      Repository
	ledger    LedgerPort
	directory Directory
	search    SearchSync
	notifier  Notifier
	store     DocumentStore
	audit     AuditPort
	now       func() time.Time

	searchSuspended atomic.Bool
}

// NewService constructs the document service.
func NewService(repo Repository, ledgerPort LedgerPort, directory Directory) *Service {
	return &Service{repo: repo, ledger: ledgerPort, directory: directory, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetAudit injects the audit recorder.
func (s *Service) SetAudit(audit AuditPort) { s.audit = audit }

// SetSearchSync injects the search index dispatcher.
func (s *Service) SetSearchSync(search SearchSync) { s.search = search }

// SetNotifier injects the notification dispatcher.
func (s *Service) SetNotifier(notifier Notifier) { s.notifier = notifier }

// SetDocumentStore injects the generated-document store.
func (s *Service) SetDocumentStore(store DocumentStore) { s.store = store }

// SuspendSearchSync toggles index dispatch globally, used during bulk
// backfills. Ledger atomicity is unaffected; only the side effect is skipped.
func (s *Service) SuspendSearchSync(suspended bool) {
	s.searchSuspended.Store(suspended)
}

// Create inserts a draft document, snapshotting the recipient name and
// address at this instant. The snapshot is never recomputed.
func (s *Service) Create(ctx context.Context, in CreateInput) (Document, error) {
	if err := in.Validate(); err != nil {
		return Document{}, err
	}
	if err := s.checkItemOwnership(ctx, in.OrgID, in.Items); err != nil {
		return Document{}, err
	}
	snapshot, err := s.directory.ContactSnapshot(ctx, in.RecipientContactID)
	if err != nil {
		return Document{}, fmt.Errorf("documents: contact snapshot: %w", err)
	}
	total, err := s.computeTotal(ctx, in.Kind, in.Items)
	if err != nil {
		return Document{}, err
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.Number == "" {
			num, err := tx.GenerateNumber(ctx, in.OrgID, in.Kind)
			if err != nil {
				return err
			}
			in.Number = num
		}
		created, err := tx.InsertDocument(ctx, in, snapshot, total)
		if err != nil {
			return err
		}
		id = created
		return tx.AppendStatusHistory(ctx, created, StatusDraft, in.CreatedBy, s.now())
	})
	if err != nil {
		return Document{}, err
	}

	s.recordAudit(ctx, in.CreatedBy, "document.create", id, map[string]any{"kind": string(in.Kind)})
	s.syncSearch(ctx, in.Kind, id, false)
	return s.repo.Get(ctx, id)
}

// Get loads one document with items and history.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.Get(ctx, id)
}

// List pages through documents.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Document, error) {
	return s.repo.List(ctx, req)
}

// UpdateItems replaces the item collection. Approved documents are immutable
// regardless of force; locked documents require force, which callers grant
// only after an elevated capability check.
func (s *Service) UpdateItems(ctx context.Context, in UpdateItemsInput) (Document, error) {
	var kind Kind
	var suppressed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocumentForUpdate(ctx, in.DocumentID)
		if err != nil {
			return err
		}
		kind = doc.Kind
		suppressed = doc.SearchSyncDisabled
		if doc.Status == StatusApproved {
			return shared.ErrAlreadyApproved
		}
		if err := validateItems(doc.Kind, in.Items); err != nil {
			return err
		}
		org, err := s.ledger.Organization(ctx, doc.OrgID)
		if err != nil {
			return err
		}
		if IsLocked(doc.Date, org.LockDayOfMonth, s.now()) && !in.Force {
			return shared.ErrLocked
		}
		if err := s.checkItemOwnership(ctx, doc.OrgID, in.Items); err != nil {
			return err
		}
		if err := tx.ReplaceItems(ctx, in.DocumentID, in.Items); err != nil {
			return err
		}
		total, err := s.computeTotal(ctx, doc.Kind, in.Items)
		if err != nil {
			return err
		}
		return tx.UpdateTotal(ctx, in.DocumentID, total)
	})
	if err != nil {
		return Document{}, err
	}

	s.recordAudit(ctx, in.ActorID, "document.update_items", in.DocumentID, map[string]any{"force": in.Force})
	s.syncSearch(ctx, kind, in.DocumentID, suppressed)
	return s.repo.Get(ctx, in.DocumentID)
}

// Delete removes a draft document that has no approval trail and no payments.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	var kind Kind
	var suppressed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		kind = doc.Kind
		suppressed = doc.SearchSyncDisabled
		if doc.Status == StatusApproved {
			return fmt.Errorf("%w: document approved", shared.ErrNotAllowed)
		}
		requests, err := tx.CountApproveRequests(ctx, id)
		if err != nil {
			return err
		}
		if requests > 0 {
			return fmt.Errorf("%w: approval requested", shared.ErrNotAllowed)
		}
		if doc.Kind != KindCreditNote {
			allocations, err := tx.CountPaymentAllocations(ctx, id)
			if err != nil {
				return err
			}
			if allocations > 0 {
				return fmt.Errorf("%w: payments received", shared.ErrNotAllowed)
			}
		}
		return tx.DeleteDocument(ctx, id)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actorID, "document.delete", id, nil)
	s.syncSearch(ctx, kind, id, suppressed)
	return nil
}

// Approve moves the document to its terminal status and posts the initial
// ledger transaction in the same unit of work. Exactly one concurrent caller
// succeeds; the rest observe ErrAlreadyApproved from the row lock re-read.
func (s *Service) Approve(ctx context.Context, in ApproveInput) (Document, ledger.Transaction, error) {
	approver, err := s.directory.Approver(ctx, in.ApproverID)
	if err != nil {
		return Document{}, ledger.Transaction{}, err
	}

	var posted ledger.Transaction
	var kind Kind
	var suppressed bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocumentForUpdate(ctx, in.DocumentID)
		if err != nil {
			return err
		}
		kind = doc.Kind
		suppressed = doc.SearchSyncDisabled
		if doc.Status == StatusApproved {
			return shared.ErrAlreadyApproved
		}
		org, err := s.ledger.Organization(ctx, doc.OrgID)
		if err != nil {
			return err
		}
		now := s.now()
		if IsLocked(doc.Date, org.LockDayOfMonth, now) && !in.Override {
			return shared.ErrPeriodClosed
		}
		if !approver.AtLocation(doc.LocationID) {
			return fmt.Errorf("%w: approver not at document location", shared.ErrNotAllowed)
		}
		total, err := s.computeTotal(ctx, doc.Kind, itemInputs(doc.Items))
		if err != nil {
			return err
		}
		if approver.Limit(doc.Kind).LessThan(total) {
			return shared.ErrLimitExceeded
		}
		posting, err := s.buildApprovalPosting(ctx, doc, org, total)
		if err != nil {
			return err
		}
		lockedAt := now
		if err := tx.UpdateStatus(ctx, doc.ID, StatusApproved, &lockedAt); err != nil {
			return err
		}
		if err := tx.UpdateTotal(ctx, doc.ID, total); err != nil {
			return err
		}
		if err := tx.AppendStatusHistory(ctx, doc.ID, StatusApproved, in.ApproverID, now); err != nil {
			return err
		}
		if err := tx.MarkApproveRequestsApproved(ctx, doc.ID, in.ApproverID, now); err != nil {
			return err
		}
		transaction, err := tx.PostTransaction(ctx, posting)
		if err != nil {
			return err
		}
		posted = transaction
		return nil
	})
	if err != nil {
		return Document{}, ledger.Transaction{}, err
	}

	s.recordAudit(ctx, in.ApproverID, "document.approve", in.DocumentID, map[string]any{
		"transaction_id": posted.ID,
		"override":       in.Override,
	})
	s.syncSearch(ctx, kind, in.DocumentID, suppressed)
	doc, err := s.repo.Get(ctx, in.DocumentID)
	if err != nil {
		return Document{}, ledger.Transaction{}, err
	}
	return doc, posted, nil
}

// MarkPendingApproval transitions a draft document when approve requests are
// created. No-op when already pending.
func (s *Service) MarkPendingApproval(ctx context.Context, documentID, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocumentForUpdate(ctx, documentID)
		if err != nil {
			return err
		}
		switch doc.Status {
		case StatusApproved:
			return shared.ErrAlreadyApproved
		case StatusPendingApproval:
			return nil
		}
		if err := tx.UpdateStatus(ctx, documentID, StatusPendingApproval, nil); err != nil {
			return err
		}
		return tx.AppendStatusHistory(ctx, documentID, StatusPendingApproval, actorID, s.now())
	})
}

// AddNote attaches a note and notifies, fire and forget.
func (s *Service) AddNote(ctx context.Context, in AddNoteInput) (Note, error) {
	if in.Body == "" {
		return Note{}, shared.NewValidationError(shared.FieldError{Field: "body", Message: "required"})
	}
	var note Note
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetDocumentForUpdate(ctx, in.DocumentID); err != nil {
			return err
		}
		inserted, err := tx.InsertNote(ctx, in)
		if err != nil {
			return err
		}
		note = inserted
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	if s.notifier != nil {
		s.notifier.NoteAttached(ctx, in.DocumentID, note.ID)
	}
	return note, nil
}

// RemoveNote detaches a note and notifies, fire and forget.
func (s *Service) RemoveNote(ctx context.Context, documentID, noteID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteNote(ctx, documentID, noteID)
	})
	if err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.NoteDetached(ctx, documentID, noteID)
	}
	return nil
}

// Notes lists a document's notes.
func (s *Service) Notes(ctx context.Context, documentID int64) ([]Note, error) {
	return s.repo.ListNotes(ctx, documentID)
}

// SetSearchSyncDisabled flips the per-document index sync flag.
func (s *Service) SetSearchSyncDisabled(ctx context.Context, documentID int64, disabled bool) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetSearchSyncDisabled(ctx, documentID, disabled)
	})
}

// GeneratedDocument fetches the stored PDF for a document, or ErrNotFound
// when none has been generated.
func (s *Service) GeneratedDocument(ctx context.Context, documentID int64) ([]byte, error) {
	doc, err := s.repo.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.DocumentRef == nil || s.store == nil {
		return nil, fmt.Errorf("%w: document not generated", shared.ErrNotFound)
	}
	return s.store.Fetch(ctx, *doc.DocumentRef)
}

// ComputeTotal recomputes a document total from its current items.
func (s *Service) ComputeTotal(ctx context.Context, doc Document) (decimal.Decimal, error) {
	return s.computeTotal(ctx, doc.Kind, itemInputs(doc.Items))
}

func (s *Service) computeTotal(ctx context.Context, kind Kind, items []ItemInput) (decimal.Decimal, error) {
	rates := make(map[int64]decimal.Decimal)
	modelItems := make([]Item, 0, len(items))
	for _, in := range items {
		if _, ok := rates[in.TaxRateID]; !ok {
			rate, err := s.ledger.TaxRate(ctx, in.TaxRateID)
			if err != nil {
				return decimal.Zero, err
			}
			rates[in.TaxRateID] = rate.Rate
		}
		modelItems = append(modelItems, itemFromInput(in))
	}
	return Total(modelItems, kind, rates), nil
}

func (s *Service) checkItemOwnership(ctx context.Context, orgID int64, items []ItemInput) error {
	for idx, item := range items {
		account, err := s.ledger.Account(ctx, item.GLAccountID)
		if err != nil {
			return err
		}
		if account.OrgID != orgID {
			return fmt.Errorf("%w: item %d account belongs to another organization", shared.ErrNotAllowed, idx)
		}
		rate, err := s.ledger.TaxRate(ctx, item.TaxRateID)
		if err != nil {
			return err
		}
		if rate.OrgID != orgID {
			return fmt.Errorf("%w: item %d tax rate belongs to another organization", shared.ErrNotAllowed, idx)
		}
	}
	return nil
}

// buildApprovalPosting expresses the document as one balanced transaction.
// Invoices debit accounts receivable for the gross total and credit each
// item's account net of tax plus the tax payable control. Purchase orders
// mirror that through accounts payable and tax receivable. Credit notes
// reverse the invoice posting.
func (s *Service) buildApprovalPosting(ctx context.Context, doc Document, org ledger.AccountingOrganization, total decimal.Decimal) (ledger.PostingInput, error) {
	rates := make(map[int64]decimal.Decimal)
	for _, item := range doc.Items {
		if _, ok := rates[item.TaxRateID]; !ok {
			rate, err := s.ledger.TaxRate(ctx, item.TaxRateID)
			if err != nil {
				return ledger.PostingInput{}, err
			}
			rates[item.TaxRateID] = rate.Rate
		}
	}

	var itemRecords []ledger.RecordInput
	tax := decimal.Zero
	for _, item := range doc.Items {
		net := LineNet(item, doc.Kind).Round(2)
		tax = tax.Add(LineTax(item, doc.Kind, rates[item.TaxRateID]))
		if net.IsZero() {
			continue
		}
		itemRecords = append(itemRecords, ledger.RecordInput{GLAccountID: item.GLAccountID, Amount: net})
	}

	in := ledger.PostingInput{
		OrgID:        doc.OrgID,
		SourceModule: "documents:" + string(doc.Kind),
		SourceID:     uuid.New(),
		Memo:         fmt.Sprintf("%s %s approved", doc.Kind, doc.Number),
	}

	switch doc.Kind {
	case KindPurchaseOrder:
		// Debit expense accounts and tax receivable, credit AP control.
		for _, rec := range itemRecords {
			rec.IsDebit = true
			in.Records = append(in.Records, rec)
		}
		if !tax.IsZero() {
			in.Records = append(in.Records, ledger.RecordInput{GLAccountID: org.Special.TaxReceivableID, Amount: tax, IsDebit: true})
		}
		in.Records = append(in.Records, ledger.RecordInput{GLAccountID: org.Special.AccountsPayableID, Amount: total})
	case KindCreditNote:
		// Debit revenue accounts and tax payable, credit AR control.
		for _, rec := range itemRecords {
			rec.IsDebit = true
			in.Records = append(in.Records, rec)
		}
		if !tax.IsZero() {
			in.Records = append(in.Records, ledger.RecordInput{GLAccountID: org.Special.TaxPayableID, Amount: tax, IsDebit: true})
		}
		in.Records = append(in.Records, ledger.RecordInput{GLAccountID: org.Special.AccountsReceivableID, Amount: total})
	default:
		// Debit AR control, credit revenue accounts and tax payable.
		in.Records = append(in.Records, ledger.RecordInput{GLAccountID: org.Special.AccountsReceivableID, Amount: total, IsDebit: true})
		in.Records = append(in.Records, itemRecords...)
		if !tax.IsZero() {
			in.Records = append(in.Records, ledger.RecordInput{GLAccountID: org.Special.TaxPayableID, Amount: tax})
		}
	}
	return in, nil
}

func (s *Service) syncSearch(ctx context.Context, kind Kind, documentID int64, documentSuppressed bool) {
	if s.search == nil || documentSuppressed || s.searchSuspended.Load() {
		return
	}
	s.search.DocumentChanged(ctx, kind, documentID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, documentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "document",
		EntityID: documentID,
		Meta:     meta,
		At:       s.now(),
	})
}

func itemInputs(items []Item) []ItemInput {
	out := make([]ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, ItemInput{
			Position:    item.Position,
			GSCode:      item.GSCode,
			GLAccountID: item.GLAccountID,
			TaxRateID:   item.TaxRateID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitCost:    item.UnitCost,
			Discount:    item.Discount,
			Markup:      item.Markup,
		})
	}
	return out
}

func itemFromInput(in ItemInput) Item {
	return Item{
		Position:    in.Position,
		GSCode:      in.GSCode,
		GLAccountID: in.GLAccountID,
		TaxRateID:   in.TaxRateID,
		Description: in.Description,
		Quantity:    in.Quantity,
		UnitCost:    in.UnitCost,
		Discount:    in.Discount,
		Markup:      in.Markup,
	}
}
