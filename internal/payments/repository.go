package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository encapsulates DB operations for payments.
type Repository interface {
	GetPayment(ctx context.Context, id int64) (Payment, error)
	InvoiceFacts(ctx context.Context, invoiceID int64) (InvoiceFacts, error)
	AllocatedTotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	InvoiceAllocations(ctx context.Context, invoiceID int64) ([]Allocation, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes mutations inside the allocation unit of work. The
// invoice row lock and the overpayment re-read both happen here so the
// check-then-insert is race free.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (InvoiceFacts, error)
	AllocatedTotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	InsertAllocation(ctx context.Context, alloc Allocation) error
	InsertCardTransaction(ctx context.Context, ct CardTransaction) error
	SetPaymentTransaction(ctx context.Context, paymentID, transactionID int64) error
	PostTransaction(ctx context.Context, in ledger.PostingInput) (ledger.Transaction, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed payment repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const paymentColumns = `id, type, org_id, amount, reference, user_id, paid_at, transaction_id, created_at`

func (r *repository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	var p Payment
	err := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id).
		Scan(&p.ID, &p.Type, &p.OrgID, &p.Amount, &p.Reference, &p.UserID, &p.PaidAt, &p.TransactionID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, shared.ErrNotFound
		}
		return Payment{}, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, payment_id, invoice_id, amount, is_deposit
		FROM payment_allocations WHERE payment_id=$1 ORDER BY id`, id)
	if err != nil {
		return Payment{}, err
	}
	p.Allocations, err = scanAllocations(rows)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

func scanAllocations(rows pgx.Rows) ([]Allocation, error) {
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		var alloc Allocation
		if err := rows.Scan(&alloc.ID, &alloc.PaymentID, &alloc.InvoiceID, &alloc.Amount, &alloc.IsDeposit); err != nil {
			return nil, err
		}
		out = append(out, alloc)
	}
	return out, rows.Err()
}

const invoiceFactsQuery = `
	SELECT id, org_id, location_id, status, total, due_at
	FROM documents WHERE id=$1 AND kind='invoice'`

func scanInvoiceFacts(row pgx.Row) (InvoiceFacts, error) {
	var inv InvoiceFacts
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.LocationID, &inv.Status, &inv.Total, &inv.DueAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InvoiceFacts{}, fmt.Errorf("%w: invoice", shared.ErrNotFound)
		}
		return InvoiceFacts{}, err
	}
	return inv, nil
}

func (r *repository) InvoiceFacts(ctx context.Context, invoiceID int64) (InvoiceFacts, error) {
	return scanInvoiceFacts(r.db.QueryRow(ctx, invoiceFactsQuery, invoiceID))
}

const allocatedTotalQuery = `
	SELECT COALESCE(SUM(amount), 0) FROM payment_allocations WHERE invoice_id=$1`

func (r *repository) AllocatedTotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, allocatedTotalQuery, invoiceID).Scan(&total)
	return total, err
}

func (r *repository) InvoiceAllocations(ctx context.Context, invoiceID int64) ([]Allocation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, payment_id, invoice_id, amount, is_deposit
		FROM payment_allocations WHERE invoice_id=$1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	return scanAllocations(rows)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (InvoiceFacts, error) {
	return scanInvoiceFacts(r.tx.QueryRow(ctx, invoiceFactsQuery+` FOR UPDATE`, invoiceID))
}

func (r *txRepository) AllocatedTotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.tx.QueryRow(ctx, allocatedTotalQuery, invoiceID).Scan(&total)
	return total, err
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO payments (type, org_id, amount, reference, user_id, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id`,
		p.Type, p.OrgID, p.Amount, p.Reference, p.UserID, p.PaidAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertAllocation(ctx context.Context, alloc Allocation) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO payment_allocations (payment_id, invoice_id, amount, is_deposit)
		VALUES ($1, $2, $3, $4)`,
		alloc.PaymentID, alloc.InvoiceID, alloc.Amount, alloc.IsDeposit)
	return err
}

func (r *txRepository) InsertCardTransaction(ctx context.Context, ct CardTransaction) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO credit_card_transactions (payment_id, external_id, settled_at)
		VALUES ($1, $2, $3)`,
		ct.PaymentID, ct.ExternalID, ct.SettledAt)
	return err
}

func (r *txRepository) SetPaymentTransaction(ctx context.Context, paymentID, transactionID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE payments SET transaction_id=$2 WHERE id=$1`, paymentID, transactionID)
	return err
}

func (r *txRepository) PostTransaction(ctx context.Context, in ledger.PostingInput) (ledger.Transaction, error) {
	return ledger.InsertTransactionTx(ctx, r.tx, in)
}
