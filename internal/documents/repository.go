package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository encapsulates DB operations for documents.
type Repository interface {
	Get(ctx context.Context, id int64) (Document, error)
	List(ctx context.Context, req ListRequest) ([]Document, error)
	ListNotes(ctx context.Context, documentID int64) ([]Note, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes mutations available within a transaction. Ledger
// posting is included so that status change and transaction commit together.
type TxRepository interface {
	InsertDocument(ctx context.Context, in CreateInput, snapshot ContactSnapshot, total decimal.Decimal) (int64, error)
	GetDocumentForUpdate(ctx context.Context, id int64) (Document, error)
	ReplaceItems(ctx context.Context, documentID int64, items []ItemInput) error
	UpdateTotal(ctx context.Context, documentID int64, total decimal.Decimal) error
	UpdateStatus(ctx context.Context, documentID int64, status Status, lockedAt *time.Time) error
	AppendStatusHistory(ctx context.Context, documentID int64, status Status, actorID int64, at time.Time) error
	SetSearchSyncDisabled(ctx context.Context, documentID int64, disabled bool) error
	DeleteDocument(ctx context.Context, documentID int64) error
	CountApproveRequests(ctx context.Context, documentID int64) (int, error)
	CountPaymentAllocations(ctx context.Context, documentID int64) (int, error)
	MarkApproveRequestsApproved(ctx context.Context, documentID, approvedBy int64, at time.Time) error
	InsertNote(ctx context.Context, in AddNoteInput) (Note, error)
	DeleteNote(ctx context.Context, documentID, noteID int64) error
	GenerateNumber(ctx context.Context, orgID int64, kind Kind) (string, error)
	PostTransaction(ctx context.Context, in ledger.PostingInput) (ledger.Transaction, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed document repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const documentColumns = `id, kind, number, location_id, org_id, job_id, recipient_contact_id, recipient_name, recipient_address, date, due_at, status, total, locked_at, document_ref, search_sync_disabled, created_by, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Kind, &d.Number, &d.LocationID, &d.OrgID, &d.JobID,
		&d.RecipientContactID, &d.RecipientName, &d.RecipientAddress, &d.Date, &d.DueAt,
		&d.Status, &d.Total, &d.LockedAt, &d.DocumentRef, &d.SearchSyncDisabled,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, shared.ErrNotFound
		}
		return Document{}, err
	}
	return d, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Document, error) {
	doc, err := scanDocument(r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id))
	if err != nil {
		return Document{}, err
	}
	doc.Items, err = loadItems(ctx, r.db, id)
	if err != nil {
		return Document{}, err
	}
	doc.History, err = loadHistory(ctx, r.db, id)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE org_id=$1`
	args := []any{req.OrgID}
	idx := 2
	if req.LocationID != 0 {
		query += fmt.Sprintf(" AND location_id=$%d", idx)
		args = append(args, req.LocationID)
		idx++
	}
	if req.Kind != "" {
		query += fmt.Sprintf(" AND kind=$%d", idx)
		args = append(args, req.Kind)
		idx++
	}
	if req.Status != "" {
		query += fmt.Sprintf(" AND status=$%d", idx)
		args = append(args, req.Status)
		idx++
	}
	if !req.FromDate.IsZero() {
		query += fmt.Sprintf(" AND date >= $%d", idx)
		args = append(args, req.FromDate)
		idx++
	}
	if !req.ToDate.IsZero() {
		query += fmt.Sprintf(" AND date <= $%d", idx)
		args = append(args, req.ToDate)
		idx++
	}
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *repository) ListNotes(ctx context.Context, documentID int64) ([]Note, error) {
	rows, err := r.db.Query(ctx, `SELECT id, document_id, author_id, body, created_at FROM document_notes WHERE document_id=$1 ORDER BY created_at ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var notes []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.DocumentID, &n.AuthorID, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertDocument(ctx context.Context, in CreateInput, snapshot ContactSnapshot, total decimal.Decimal) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO documents (kind, number, location_id, org_id, job_id, recipient_contact_id, recipient_name, recipient_address, date, due_at, status, total, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'draft',$11,$12) RETURNING id`,
		in.Kind, in.Number, in.LocationID, in.OrgID, in.JobID, in.RecipientContactID,
		snapshot.Name, snapshot.Address, in.Date, in.DueAt, total, in.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err := insertItems(ctx, r.tx, id, in.Items); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *txRepository) GetDocumentForUpdate(ctx context.Context, id int64) (Document, error) {
	doc, err := scanDocument(r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Document{}, err
	}
	doc.Items, err = loadItems(ctx, r.tx, id)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (r *txRepository) ReplaceItems(ctx context.Context, documentID int64, items []ItemInput) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM document_items WHERE document_id=$1`, documentID); err != nil {
		return err
	}
	return insertItems(ctx, r.tx, documentID, items)
}

func (r *txRepository) UpdateTotal(ctx context.Context, documentID int64, total decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE documents SET total=$2, updated_at=NOW() WHERE id=$1`, documentID, total)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, documentID int64, status Status, lockedAt *time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE documents SET status=$2, locked_at=COALESCE($3, locked_at), updated_at=NOW() WHERE id=$1`, documentID, status, lockedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) AppendStatusHistory(ctx context.Context, documentID int64, status Status, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO document_status_history (document_id, status, actor_id, at) VALUES ($1,$2,$3,$4)`, documentID, status, actorID, at)
	return err
}

func (r *txRepository) SetSearchSyncDisabled(ctx context.Context, documentID int64, disabled bool) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE documents SET search_sync_disabled=$2, updated_at=NOW() WHERE id=$1`, documentID, disabled)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) DeleteDocument(ctx context.Context, documentID int64) error {
	for _, q := range []string{
		`DELETE FROM document_items WHERE document_id=$1`,
		`DELETE FROM document_status_history WHERE document_id=$1`,
		`DELETE FROM document_notes WHERE document_id=$1`,
	} {
		if _, err := r.tx.Exec(ctx, q, documentID); err != nil {
			return err
		}
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM documents WHERE id=$1`, documentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) CountApproveRequests(ctx context.Context, documentID int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM approve_requests WHERE document_id=$1`, documentID).Scan(&count)
	return count, err
}

func (r *txRepository) CountPaymentAllocations(ctx context.Context, documentID int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM payment_allocations WHERE invoice_id=$1`, documentID).Scan(&count)
	return count, err
}

func (r *txRepository) MarkApproveRequestsApproved(ctx context.Context, documentID, approvedBy int64, at time.Time) error {
	// Approval is terminal for the document, so every open request closes,
	// not just the ones addressed to the acting approver.
	_, err := r.tx.Exec(ctx, `UPDATE approve_requests SET approved_at=$3, approved_by=$2 WHERE document_id=$1 AND approved_at IS NULL`, documentID, approvedBy, at)
	return err
}

func (r *txRepository) InsertNote(ctx context.Context, in AddNoteInput) (Note, error) {
	note := Note{DocumentID: in.DocumentID, AuthorID: in.AuthorID, Body: in.Body}
	err := r.tx.QueryRow(ctx, `INSERT INTO document_notes (document_id, author_id, body) VALUES ($1,$2,$3) RETURNING id, created_at`,
		in.DocumentID, in.AuthorID, in.Body).Scan(&note.ID, &note.CreatedAt)
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

func (r *txRepository) DeleteNote(ctx context.Context, documentID, noteID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM document_notes WHERE id=$1 AND document_id=$2`, noteID, documentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) GenerateNumber(ctx context.Context, orgID int64, kind Kind) (string, error) {
	// One counter row per (org, kind); the upsert serializes concurrent
	// creators on the row lock.
	var seq int64
	if err := r.tx.QueryRow(ctx, `INSERT INTO document_number_counters (org_id, kind, value) VALUES ($1,$2,1)
ON CONFLICT (org_id, kind) DO UPDATE SET value = document_number_counters.value + 1
RETURNING value`, orgID, kind).Scan(&seq); err != nil {
		return "", err
	}
	prefix := "INV"
	switch kind {
	case KindPurchaseOrder:
		prefix = "PO"
	case KindCreditNote:
		prefix = "CN"
	}
	return fmt.Sprintf("%s-%06d", prefix, seq), nil
}

func (r *txRepository) PostTransaction(ctx context.Context, in ledger.PostingInput) (ledger.Transaction, error) {
	return ledger.InsertTransactionTx(ctx, r.tx, in)
}

func insertItems(ctx context.Context, tx pgx.Tx, documentID int64, items []ItemInput) error {
	for _, item := range items {
		if _, err := tx.Exec(ctx, `INSERT INTO document_items (document_id, position, gs_code, gl_account_id, tax_rate_id, description, quantity, unit_cost, discount, markup)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			documentID, item.Position, item.GSCode, item.GLAccountID, item.TaxRateID,
			item.Description, item.Quantity, item.UnitCost, item.Discount, item.Markup); err != nil {
			return err
		}
	}
	return nil
}

type rowQueryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q rowQueryer, documentID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, document_id, position, gs_code, gl_account_id, tax_rate_id, description, quantity, unit_cost, discount, markup, created_at
FROM document_items WHERE document_id=$1 ORDER BY position ASC, id ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.DocumentID, &it.Position, &it.GSCode, &it.GLAccountID, &it.TaxRateID,
			&it.Description, &it.Quantity, &it.UnitCost, &it.Discount, &it.Markup, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func loadHistory(ctx context.Context, q rowQueryer, documentID int64) ([]StatusChange, error) {
	rows, err := q.Query(ctx, `SELECT id, document_id, status, actor_id, at FROM document_status_history WHERE document_id=$1 ORDER BY at ASC, id ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []StatusChange
	for rows.Next() {
		var h StatusChange
		if err := rows.Scan(&h.ID, &h.DocumentID, &h.Status, &h.ActorID, &h.At); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
