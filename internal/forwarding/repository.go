package forwarding

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/payments"
	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository encapsulates DB operations for payment forwarding.
type Repository interface {
	Get(ctx context.Context, id int64) (ForwardedPayment, error)
	// Unforwarded lists payments with no forwarding row, scoped to payments
	// allocated against invoices at the given location.
	Unforwarded(ctx context.Context, locationID int64) ([]payments.Payment, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes mutations inside the forwarding unit of work.
type TxRepository interface {
	GetPaymentForUpdate(ctx context.Context, paymentID int64) (payments.Payment, error)
	IsForwarded(ctx context.Context, paymentID int64) (bool, error)
	InsertForwardedPayment(ctx context.Context, fp ForwardedPayment) (int64, error)
	InsertForwardedInvoice(ctx context.Context, inv ForwardedInvoice) error
	PostTransaction(ctx context.Context, in ledger.PostingInput) (ledger.Transaction, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed forwarding repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const forwardedColumns = `id, payment_id, source_org_id, destination_org_id, destination_account_id, remittance_ref, transferred_at, transaction_id, created_at`

func (r *repository) Get(ctx context.Context, id int64) (ForwardedPayment, error) {
	var fp ForwardedPayment
	err := r.db.QueryRow(ctx, `SELECT `+forwardedColumns+` FROM forwarded_payments WHERE id=$1`, id).
		Scan(&fp.ID, &fp.PaymentID, &fp.SourceOrgID, &fp.DestinationOrgID, &fp.DestinationAccountID,
			&fp.RemittanceRef, &fp.TransferredAt, &fp.TransactionID, &fp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ForwardedPayment{}, shared.ErrNotFound
		}
		return ForwardedPayment{}, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, forwarded_payment_id, invoice_id, amount
		FROM forwarded_payment_invoices WHERE forwarded_payment_id=$1 ORDER BY id`, id)
	if err != nil {
		return ForwardedPayment{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var inv ForwardedInvoice
		if err := rows.Scan(&inv.ID, &inv.ForwardedPaymentID, &inv.InvoiceID, &inv.Amount); err != nil {
			return ForwardedPayment{}, err
		}
		fp.Invoices = append(fp.Invoices, inv)
	}
	return fp, rows.Err()
}

func (r *repository) Unforwarded(ctx context.Context, locationID int64) ([]payments.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT p.id, p.type, p.org_id, p.amount, p.reference, p.user_id, p.paid_at, p.transaction_id, p.created_at
		FROM payments p
		JOIN payment_allocations pa ON pa.payment_id = p.id
		JOIN documents d ON d.id = pa.invoice_id
		WHERE d.location_id=$1
		  AND NOT EXISTS (SELECT 1 FROM forwarded_payments fp WHERE fp.payment_id = p.id)
		ORDER BY p.id`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []payments.Payment
	for rows.Next() {
		var p payments.Payment
		if err := rows.Scan(&p.ID, &p.Type, &p.OrgID, &p.Amount, &p.Reference,
			&p.UserID, &p.PaidAt, &p.TransactionID, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetPaymentForUpdate(ctx context.Context, paymentID int64) (payments.Payment, error) {
	var p payments.Payment
	err := r.tx.QueryRow(ctx, `
		SELECT id, type, org_id, amount, reference, user_id, paid_at, transaction_id, created_at
		FROM payments WHERE id=$1 FOR UPDATE`, paymentID).
		Scan(&p.ID, &p.Type, &p.OrgID, &p.Amount, &p.Reference, &p.UserID, &p.PaidAt, &p.TransactionID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payments.Payment{}, shared.ErrNotFound
		}
		return payments.Payment{}, err
	}
	return p, nil
}

func (r *txRepository) IsForwarded(ctx context.Context, paymentID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM forwarded_payments WHERE payment_id=$1)`, paymentID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertForwardedPayment(ctx context.Context, fp ForwardedPayment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO forwarded_payments
			(payment_id, source_org_id, destination_org_id, destination_account_id, remittance_ref, transferred_at, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id`,
		fp.PaymentID, fp.SourceOrgID, fp.DestinationOrgID, fp.DestinationAccountID,
		fp.RemittanceRef, fp.TransferredAt, fp.TransactionID).Scan(&id)
	return id, err
}

func (r *txRepository) InsertForwardedInvoice(ctx context.Context, inv ForwardedInvoice) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO forwarded_payment_invoices (forwarded_payment_id, invoice_id, amount)
		VALUES ($1, $2, $3)`,
		inv.ForwardedPaymentID, inv.InvoiceID, inv.Amount)
	return err
}

func (r *txRepository) PostTransaction(ctx context.Context, in ledger.PostingInput) (ledger.Transaction, error) {
	return ledger.InsertTransactionTx(ctx, r.tx, in)
}
