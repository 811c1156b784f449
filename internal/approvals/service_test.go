package approvals

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryRequestRepo struct {
	mu       sync.Mutex
	requests []ApproveRequest
	nextID   int64
}

func (r *memoryRequestRepo) Insert(_ context.Context, documentID, approverID, requestedBy int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.DocumentID == documentID && req.ApproverID == approverID {
			return false, nil
		}
	}
	r.nextID++
	r.requests = append(r.requests, ApproveRequest{
		ID:          r.nextID,
		DocumentID:  documentID,
		ApproverID:  approverID,
		RequestedBy: requestedBy,
		CreatedAt:   at,
	})
	return true, nil
}

func (r *memoryRequestRepo) ListByDocument(_ context.Context, documentID int64) ([]ApproveRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ApproveRequest
	for _, req := range r.requests {
		if req.DocumentID == documentID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *memoryRequestRepo) ListPendingForApprover(_ context.Context, approverID int64) ([]ApproveRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ApproveRequest
	for _, req := range r.requests {
		if req.ApproverID == approverID && req.Pending() {
			out = append(out, req)
		}
	}
	return out, nil
}

type fakeDocuments struct {
	docs        map[int64]documents.Document
	pendingMark int
}

func (f *fakeDocuments) Get(_ context.Context, id int64) (documents.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return documents.Document{}, shared.ErrNotFound
	}
	return doc, nil
}

func (f *fakeDocuments) MarkPendingApproval(_ context.Context, documentID, _ int64) error {
	doc := f.docs[documentID]
	doc.Status = documents.StatusPendingApproval
	f.docs[documentID] = doc
	f.pendingMark++
	return nil
}

func (f *fakeDocuments) Approve(_ context.Context, in documents.ApproveInput) (documents.Document, ledger.Transaction, error) {
	doc := f.docs[in.DocumentID]
	if doc.Status == documents.StatusApproved {
		return documents.Document{}, ledger.Transaction{}, shared.ErrAlreadyApproved
	}
	doc.Status = documents.StatusApproved
	f.docs[in.DocumentID] = doc
	return doc, ledger.Transaction{ID: 1, OrgID: doc.OrgID}, nil
}

type staticApprovers struct {
	list []documents.Approver
}

func (s *staticApprovers) ApproversAt(_ context.Context, _ int64) ([]documents.Approver, error) {
	return s.list, nil
}

type recordingNotifier struct {
	requested [][3]int64
}

func (n *recordingNotifier) ApprovalRequested(_ context.Context, documentID, approverID, requestedBy int64) {
	n.requested = append(n.requested, [3]int64{documentID, approverID, requestedBy})
}

func newApprovalFixture() (*Service, *memoryRequestRepo, *fakeDocuments, *recordingNotifier) {
	repo := &memoryRequestRepo{}
	docs := &fakeDocuments{docs: map[int64]documents.Document{
		1: {
			ID:         1,
			Kind:       documents.KindInvoice,
			LocationID: 5,
			OrgID:      1,
			Status:     documents.StatusDraft,
			Total:      decimal.NewFromInt(500),
		},
	}}
	approvers := &staticApprovers{list: []documents.Approver{
		{ID: 7, Name: "Dana", LocationIDs: []int64{5}, InvoiceLimit: decimal.NewFromInt(10000)},
		{ID: 9, Name: "Junior", LocationIDs: []int64{5}, InvoiceLimit: decimal.NewFromInt(100)},
	}}
	notifier := &recordingNotifier{}
	svc := NewService(repo, docs, approvers)
	svc.SetNotifier(notifier)
	svc.WithNow(func() time.Time { return time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC) })
	return svc, repo, docs, notifier
}

func TestCreateRequestsTransitionsAndNotifies(t *testing.T) {
	svc, repo, docs, notifier := newApprovalFixture()

	requests, err := svc.CreateRequests(context.Background(), CreateInput{
		DocumentID:  1,
		ApproverIDs: []int64{7, 9},
		RequestedBy: 3,
	})
	require.NoError(t, err)
	require.Len(t, requests, 2)
	require.Len(t, repo.requests, 2)
	require.Len(t, notifier.requested, 2)
	require.Equal(t, documents.StatusPendingApproval, docs.docs[1].Status)
	require.Equal(t, 1, docs.pendingMark)
}

func TestCreateRequestsIsIdempotent(t *testing.T) {
	svc, repo, docs, notifier := newApprovalFixture()

	_, err := svc.CreateRequests(context.Background(), CreateInput{DocumentID: 1, ApproverIDs: []int64{7}, RequestedBy: 3})
	require.NoError(t, err)

	// Same approver again, plus a duplicate inside one call.
	requests, err := svc.CreateRequests(context.Background(), CreateInput{DocumentID: 1, ApproverIDs: []int64{7, 7}, RequestedBy: 3})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.Len(t, notifier.requested, 1)
	require.Len(t, repo.requests, 1)
	// Already pending, no second transition.
	require.Equal(t, 1, docs.pendingMark)
}

func TestCreateRequestsRejectsApprovedDocument(t *testing.T) {
	svc, _, docs, _ := newApprovalFixture()
	doc := docs.docs[1]
	doc.Status = documents.StatusApproved
	docs.docs[1] = doc

	_, err := svc.CreateRequests(context.Background(), CreateInput{DocumentID: 1, ApproverIDs: []int64{7}, RequestedBy: 3})
	require.ErrorIs(t, err, shared.ErrAlreadyApproved)
}

func TestCreateRequestsRequiresApprovers(t *testing.T) {
	svc, _, _, _ := newApprovalFixture()

	_, err := svc.CreateRequests(context.Background(), CreateInput{DocumentID: 1, RequestedBy: 3})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSuggestedApproversFilterByLimit(t *testing.T) {
	svc, _, _, _ := newApprovalFixture()

	// Document total 500: Dana (10000) qualifies, Junior (100) does not.
	approvers, err := svc.SuggestedApprovers(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, approvers, 1)
	require.Equal(t, int64(7), approvers[0].ID)
}

func TestApproveDelegatesAndQueueShrinks(t *testing.T) {
	svc, repo, _, _ := newApprovalFixture()

	_, err := svc.CreateRequests(context.Background(), CreateInput{DocumentID: 1, ApproverIDs: []int64{7}, RequestedBy: 3})
	require.NoError(t, err)

	queue, err := svc.Queue(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, queue, 1)

	_, transaction, err := svc.Approve(context.Background(), documents.ApproveInput{DocumentID: 1, ApproverID: 7})
	require.NoError(t, err)
	require.NotZero(t, transaction.ID)

	_, _, err = svc.Approve(context.Background(), documents.ApproveInput{DocumentID: 1, ApproverID: 7})
	require.ErrorIs(t, err, shared.ErrAlreadyApproved)

	// The trail survives approval for audit.
	trail, err := svc.Requests(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, trail, 1)

	// Stamp the request the way the document service does on commit.
	now := time.Now()
	repo.requests[0].ApprovedAt = &now
	queue, err = svc.Queue(context.Background(), 7)
	require.NoError(t, err)
	require.Empty(t, queue)
}
