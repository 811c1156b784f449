package approvals

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists approve requests.
type Repository interface {
	// Insert records one request. Returns false without error when the
	// (document, approver) pair already exists.
	Insert(ctx context.Context, documentID, approverID, requestedBy int64, at time.Time) (bool, error)
	ListByDocument(ctx context.Context, documentID int64) ([]ApproveRequest, error)
	ListPendingForApprover(ctx context.Context, approverID int64) ([]ApproveRequest, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed approve request repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const uniqueViolation = "23505"

func (r *repository) Insert(ctx context.Context, documentID, approverID, requestedBy int64, at time.Time) (bool, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO approve_requests (document_id, approver_id, requested_by, created_at)
		VALUES ($1, $2, $3, $4)`,
		documentID, approverID, requestedBy, at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

const requestColumns = `id, document_id, approver_id, requested_by, created_at, approved_at, approved_by`

func scanRequests(rows pgx.Rows) ([]ApproveRequest, error) {
	defer rows.Close()
	var out []ApproveRequest
	for rows.Next() {
		var req ApproveRequest
		if err := rows.Scan(&req.ID, &req.DocumentID, &req.ApproverID, &req.RequestedBy,
			&req.CreatedAt, &req.ApprovedAt, &req.ApprovedBy); err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *repository) ListByDocument(ctx context.Context, documentID int64) ([]ApproveRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+` FROM approve_requests
		WHERE document_id=$1 ORDER BY created_at, id`, documentID)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

func (r *repository) ListPendingForApprover(ctx context.Context, approverID int64) ([]ApproveRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+` FROM approve_requests
		WHERE approver_id=$1 AND approved_at IS NULL ORDER BY created_at, id`, approverID)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}
