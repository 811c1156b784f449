package approvals

import (
	"context"
	"time"
)

// ApproveRequest is an audit-trail row recording that a document was routed
// to an approver. Requests do not form a quorum: any single qualifying
// approver approves the document, and every open request is stamped at that
// moment.
type ApproveRequest struct {
	ID          int64
	DocumentID  int64
	ApproverID  int64
	RequestedBy int64
	CreatedAt   time.Time
	ApprovedAt  *time.Time
	ApprovedBy  *int64
}

// Pending reports whether the request is still awaiting a decision.
func (r ApproveRequest) Pending() bool {
	return r.ApprovedAt == nil
}

// Notifier pushes approval-request events to the notification pipeline.
// Dispatch is fire and forget.
type Notifier interface {
	ApprovalRequested(ctx context.Context, documentID, approverID, requestedBy int64)
}
