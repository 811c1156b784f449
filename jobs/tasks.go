package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeApprovalRequested notifies an approver that a document awaits them.
	TaskTypeApprovalRequested = "notify:approval_requested"
	// TaskTypeNoteEvent notifies watchers about a note attach or detach.
	TaskTypeNoteEvent = "notify:note_event"
	// TaskTypeSearchSync reindexes one document in the search collaborator.
	TaskTypeSearchSync = "search:sync"
)

// ApprovalRequestedPayload identifies the routed document and approver.
type ApprovalRequestedPayload struct {
	DocumentID  int64 `json:"document_id"`
	ApproverID  int64 `json:"approver_id"`
	RequestedBy int64 `json:"requested_by"`
}

// NewApprovalRequestedTask constructs an Asynq task.
func NewApprovalRequestedTask(payload ApprovalRequestedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeApprovalRequested, data), nil
}

// NoteEventPayload describes a note attach or detach on a document.
type NoteEventPayload struct {
	DocumentID int64  `json:"document_id"`
	NoteID     int64  `json:"note_id"`
	Event      string `json:"event"`
}

// NewNoteEventTask constructs an Asynq task.
func NewNoteEventTask(payload NoteEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNoteEvent, data), nil
}

// SearchSyncPayload identifies the document to reindex.
type SearchSyncPayload struct {
	Kind       string `json:"kind"`
	DocumentID int64  `json:"document_id"`
}

// NewSearchSyncTask constructs an Asynq task.
func NewSearchSyncTask(payload SearchSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSearchSync, data), nil
}

// HandleApprovalRequestedTask processes TaskTypeApprovalRequested tasks.
func HandleApprovalRequestedTask(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ApprovalRequestedPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		// Delivery channel (email/push) is the notification collaborator's
		// concern; the worker records the handoff.
		logger.Info("approval requested",
			slog.Int64("document_id", payload.DocumentID),
			slog.Int64("approver_id", payload.ApproverID),
			slog.Int64("requested_by", payload.RequestedBy))
		return nil
	}
}

// HandleNoteEventTask processes TaskTypeNoteEvent tasks.
func HandleNoteEventTask(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload NoteEventPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("note event",
			slog.String("event", payload.Event),
			slog.Int64("document_id", payload.DocumentID),
			slog.Int64("note_id", payload.NoteID))
		return nil
	}
}

// SearchIndexer pushes one document into the external search index.
type SearchIndexer interface {
	Index(ctx context.Context, kind string, documentID int64) error
}

// HandleSearchSyncTask processes TaskTypeSearchSync tasks. A nil indexer
// makes the task a logged no-op.
func HandleSearchSyncTask(logger *slog.Logger, indexer SearchIndexer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SearchSyncPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if indexer == nil {
			logger.Debug("search sync skipped, no indexer",
				slog.Int64("document_id", payload.DocumentID))
			return nil
		}
		return indexer.Index(ctx, payload.Kind, payload.DocumentID)
	}
}
