package approvals

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// DocumentsPort is the slice of the document service the approval flow needs.
type DocumentsPort interface {
	Get(ctx context.Context, id int64) (documents.Document, error)
	MarkPendingApproval(ctx context.Context, documentID, actorID int64) error
	Approve(ctx context.Context, in documents.ApproveInput) (documents.Document, ledger.Transaction, error)
}

// ApproverSource lists approvers for a location. Satisfied by ApproverCache
// and by the bare directory.
type ApproverSource interface {
	ApproversAt(ctx context.Context, locationID int64) ([]documents.Approver, error)
}

// Service routes documents to approvers and records the request trail.
type Service struct {
	repo      Repository
	docs      DocumentsPort
	approvers ApproverSource
	notifier  Notifier
	now       func() time.Time
}

// NewService constructs the approval service.
func NewService(repo Repository, docs DocumentsPort, approvers ApproverSource) *Service {
	return &Service{repo: repo, docs: docs, approvers: approvers, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetNotifier injects the notification dispatcher.
func (s *Service) SetNotifier(notifier Notifier) { s.notifier = notifier }

// CreateInput routes a document to one or more approvers.
type CreateInput struct {
	DocumentID  int64
	ApproverIDs []int64
	RequestedBy int64
}

// CreateRequests records one request per approver and moves a draft document
// to pending approval. Requesting the same (document, approver) pair again is
// a no-op, so retried submissions never duplicate the trail or re-notify.
func (s *Service) CreateRequests(ctx context.Context, in CreateInput) ([]ApproveRequest, error) {
	if len(in.ApproverIDs) == 0 {
		return nil, shared.NewValidationError(shared.FieldError{Field: "approver_ids", Message: "min=1"})
	}
	doc, err := s.docs.Get(ctx, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Status == documents.StatusApproved {
		return nil, shared.ErrAlreadyApproved
	}

	now := s.now()
	seen := make(map[int64]bool, len(in.ApproverIDs))
	for _, approverID := range in.ApproverIDs {
		if approverID == 0 || seen[approverID] {
			continue
		}
		seen[approverID] = true
		created, err := s.repo.Insert(ctx, in.DocumentID, approverID, in.RequestedBy, now)
		if err != nil {
			return nil, fmt.Errorf("approvals: insert request: %w", err)
		}
		if created && s.notifier != nil {
			s.notifier.ApprovalRequested(ctx, in.DocumentID, approverID, in.RequestedBy)
		}
	}

	if doc.Status == documents.StatusDraft {
		if err := s.docs.MarkPendingApproval(ctx, in.DocumentID, in.RequestedBy); err != nil {
			return nil, err
		}
	}
	return s.repo.ListByDocument(ctx, in.DocumentID)
}

// Approve settles the document. Any qualifying approver may act regardless of
// whether a request was addressed to them; the document service stamps every
// open request on success.
func (s *Service) Approve(ctx context.Context, in documents.ApproveInput) (documents.Document, ledger.Transaction, error) {
	return s.docs.Approve(ctx, in)
}

// Requests lists the approval trail for a document.
func (s *Service) Requests(ctx context.Context, documentID int64) ([]ApproveRequest, error) {
	return s.repo.ListByDocument(ctx, documentID)
}

// Queue lists the open requests addressed to one approver.
func (s *Service) Queue(ctx context.Context, approverID int64) ([]ApproveRequest, error) {
	return s.repo.ListPendingForApprover(ctx, approverID)
}

// SuggestedApprovers returns the approvers at the document's location whose
// spend limit covers its total, ordered as the directory returns them.
func (s *Service) SuggestedApprovers(ctx context.Context, documentID int64) ([]documents.Approver, error) {
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.approvers.ApproversAt(ctx, doc.LocationID)
	if err != nil {
		return nil, err
	}
	var out []documents.Approver
	for _, approver := range candidates {
		if approver.Limit(doc.Kind).GreaterThanOrEqual(doc.Total) {
			out = append(out, approver)
		}
	}
	return out, nil
}
