package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ledgerline/ledgerline/internal/documents"
)

// Dispatcher enqueues background tasks from the request path. It satisfies
// the notifier and search-sync ports; enqueue failures are logged and never
// propagate into the business mutation.
type Dispatcher struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewDispatcher builds a Dispatcher over an Asynq client.
func NewDispatcher(client *asynq.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{client: client, logger: logger}
}

func (d *Dispatcher) enqueue(ctx context.Context, task *asynq.Task, err error) {
	if err != nil {
		d.logger.Error("build task", slog.Any("error", err))
		return
	}
	if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		d.logger.Error("enqueue task", slog.String("type", task.Type()), slog.Any("error", err))
	}
}

// ApprovalRequested enqueues an approver notification.
func (d *Dispatcher) ApprovalRequested(ctx context.Context, documentID, approverID, requestedBy int64) {
	task, err := NewApprovalRequestedTask(ApprovalRequestedPayload{
		DocumentID:  documentID,
		ApproverID:  approverID,
		RequestedBy: requestedBy,
	})
	d.enqueue(ctx, task, err)
}

// NoteAttached enqueues a note-attached notification.
func (d *Dispatcher) NoteAttached(ctx context.Context, documentID, noteID int64) {
	task, err := NewNoteEventTask(NoteEventPayload{DocumentID: documentID, NoteID: noteID, Event: "attached"})
	d.enqueue(ctx, task, err)
}

// NoteDetached enqueues a note-detached notification.
func (d *Dispatcher) NoteDetached(ctx context.Context, documentID, noteID int64) {
	task, err := NewNoteEventTask(NoteEventPayload{DocumentID: documentID, NoteID: noteID, Event: "detached"})
	d.enqueue(ctx, task, err)
}

// DocumentChanged enqueues a search index update.
func (d *Dispatcher) DocumentChanged(ctx context.Context, kind documents.Kind, documentID int64) {
	task, err := NewSearchSyncTask(SearchSyncPayload{Kind: string(kind), DocumentID: documentID})
	d.enqueue(ctx, task, err)
}
