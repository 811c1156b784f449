package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository encapsulates DB operations for the ledger.
type Repository interface {
	GetAccount(ctx context.Context, id int64) (GLAccount, error)
	ListAccounts(ctx context.Context, orgID int64) ([]GLAccount, error)
	GetTaxRate(ctx context.Context, id int64) (TaxRate, error)
	ListTaxRates(ctx context.Context, orgID int64) ([]TaxRate, error)
	GetOrganization(ctx context.Context, id int64) (AccountingOrganization, error)
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, orgID int64, limit, offset int) ([]Transaction, error)
	AccountBalance(ctx context.Context, q BalanceQuery) (AccountBalance, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes mutations available within a transaction.
type TxRepository interface {
	InsertTransaction(ctx context.Context, in PostingInput) (Transaction, error)
	GetTransactionWithRecords(ctx context.Context, id int64) (Transaction, error)
	CreateAccount(ctx context.Context, in CreateAccountInput) (int64, error)
	SetAccountActive(ctx context.Context, id int64, active bool) error
	CreateTaxRate(ctx context.Context, in CreateTaxRateInput) (int64, error)
	GetOrganizationForUpdate(ctx context.Context, id int64) (AccountingOrganization, error)
	ActiveOrganizationsSharingLocations(ctx context.Context, orgID int64) ([]int64, error)
	SetOrganizationActive(ctx context.Context, id int64, active bool) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed ledger repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, org_id, account_type_id, tax_rate_id, code, name, active, is_special, enable_payments_to_account, bank_name, bank_bsb, bank_account_number, created_at, updated_at`

func scanAccount(row pgx.Row) (GLAccount, error) {
	var a GLAccount
	err := row.Scan(&a.ID, &a.OrgID, &a.AccountTypeID, &a.TaxRateID, &a.Code, &a.Name, &a.Active, &a.IsSpecial, &a.EnablePaymentsToAccount, &a.BankName, &a.BankBSB, &a.BankAccountNumber, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GLAccount{}, shared.ErrNotFound
		}
		return GLAccount{}, err
	}
	return a, nil
}

func (r *repository) GetAccount(ctx context.Context, id int64) (GLAccount, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE id=$1`, id))
}

func (r *repository) ListAccounts(ctx context.Context, orgID int64) ([]GLAccount, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE org_id=$1 ORDER BY code ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []GLAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) GetTaxRate(ctx context.Context, id int64) (TaxRate, error) {
	var t TaxRate
	err := r.db.QueryRow(ctx, `SELECT id, org_id, name, rate, active, created_at, updated_at FROM tax_rates WHERE id=$1`, id).
		Scan(&t.ID, &t.OrgID, &t.Name, &t.Rate, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TaxRate{}, shared.ErrNotFound
		}
		return TaxRate{}, err
	}
	return t, nil
}

func (r *repository) ListTaxRates(ctx context.Context, orgID int64) ([]TaxRate, error) {
	rows, err := r.db.Query(ctx, `SELECT id, org_id, name, rate, active, created_at, updated_at FROM tax_rates WHERE org_id=$1 ORDER BY name ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rates []TaxRate
	for rows.Next() {
		var t TaxRate
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name, &t.Rate, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		rates = append(rates, t)
	}
	return rates, rows.Err()
}

const orgColumns = `id, name, active, lock_day_of_month, tax_payable_account_id, tax_receivable_account_id, accounts_payable_account_id, accounts_receivable_account_id, payment_clearing_account_id, created_at, updated_at`

func scanOrganization(row pgx.Row) (AccountingOrganization, error) {
	var o AccountingOrganization
	err := row.Scan(&o.ID, &o.Name, &o.Active, &o.LockDayOfMonth,
		&o.Special.TaxPayableID, &o.Special.TaxReceivableID, &o.Special.AccountsPayableID,
		&o.Special.AccountsReceivableID, &o.Special.PaymentClearingID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountingOrganization{}, shared.ErrNotFound
		}
		return AccountingOrganization{}, err
	}
	return o, nil
}

func (r *repository) GetOrganization(ctx context.Context, id int64) (AccountingOrganization, error) {
	org, err := scanOrganization(r.db.QueryRow(ctx, `SELECT `+orgColumns+` FROM accounting_organizations WHERE id=$1`, id))
	if err != nil {
		return AccountingOrganization{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT location_id FROM organization_locations WHERE org_id=$1 ORDER BY location_id ASC`, id)
	if err != nil {
		return AccountingOrganization{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var loc int64
		if err := rows.Scan(&loc); err != nil {
			return AccountingOrganization{}, err
		}
		org.LocationIDs = append(org.LocationIDs, loc)
	}
	return org, rows.Err()
}

func (r *repository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return getTransaction(ctx, r.db, id)
}

func (r *repository) ListTransactions(ctx context.Context, orgID int64, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT id, org_id, source_module, source_id, memo, created_at
FROM transactions WHERE org_id=$1 ORDER BY id DESC LIMIT $2 OFFSET $3`, orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.OrgID, &t.SourceModule, &t.SourceID, &t.Memo, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (r *repository) AccountBalance(ctx context.Context, q BalanceQuery) (AccountBalance, error) {
	bal := AccountBalance{GLAccountID: q.GLAccountID, Debits: decimal.Zero, Credits: decimal.Zero}
	query := `SELECT tr.amount, tr.is_debit
FROM transaction_records tr
JOIN transactions t ON t.id = tr.transaction_id
WHERE tr.gl_account_id=$1 AND t.org_id=$2`
	args := []any{q.GLAccountID, q.OrgID}
	if q.From != nil {
		args = append(args, *q.From)
		query += fmt.Sprintf(" AND t.created_at >= $%d", len(args))
	}
	if q.To != nil {
		args = append(args, *q.To)
		query += fmt.Sprintf(" AND t.created_at < $%d", len(args))
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return AccountBalance{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var amount decimal.Decimal
		var isDebit bool
		if err := rows.Scan(&amount, &isDebit); err != nil {
			return AccountBalance{}, err
		}
		if isDebit {
			bal.Debits = bal.Debits.Add(amount)
		} else {
			bal.Credits = bal.Credits.Add(amount)
		}
	}
	if err := rows.Err(); err != nil {
		return AccountBalance{}, err
	}
	bal.Balance = bal.Debits.Sub(bal.Credits)
	return bal, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertTransaction(ctx context.Context, in PostingInput) (Transaction, error) {
	return InsertTransactionTx(ctx, r.tx, in)
}

func (r *txRepository) GetTransactionWithRecords(ctx context.Context, id int64) (Transaction, error) {
	return getTransaction(ctx, r.tx, id)
}

func (r *txRepository) CreateAccount(ctx context.Context, in CreateAccountInput) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO gl_accounts (org_id, account_type_id, tax_rate_id, code, name, active, enable_payments_to_account, bank_name, bank_bsb, bank_account_number)
VALUES ($1,$2,$3,$4,$5,TRUE,$6,$7,$8,$9) RETURNING id`,
		in.OrgID, in.AccountTypeID, in.TaxRateID, in.Code, in.Name, in.EnablePaymentsToAccount, in.BankName, in.BankBSB, in.BankAccountNumber).Scan(&id)
	return id, err
}

func (r *txRepository) SetAccountActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE gl_accounts SET active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) CreateTaxRate(ctx context.Context, in CreateTaxRateInput) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO tax_rates (org_id, name, rate, active) VALUES ($1,$2,$3,TRUE) RETURNING id`,
		in.OrgID, in.Name, in.Rate).Scan(&id)
	return id, err
}

func (r *txRepository) GetOrganizationForUpdate(ctx context.Context, id int64) (AccountingOrganization, error) {
	return scanOrganization(r.tx.QueryRow(ctx, `SELECT `+orgColumns+` FROM accounting_organizations WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) ActiveOrganizationsSharingLocations(ctx context.Context, orgID int64) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT o.id
FROM accounting_organizations o
WHERE o.active = TRUE AND o.id <> $1
  AND EXISTS (
    SELECT 1 FROM organization_locations ol
    WHERE ol.org_id = o.id
      AND ol.location_id IN (SELECT location_id FROM organization_locations WHERE org_id=$1)
  )
FOR UPDATE OF o`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *txRepository) SetOrganizationActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounting_organizations SET active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getTransaction(ctx context.Context, q queryer, id int64) (Transaction, error) {
	var t Transaction
	err := q.QueryRow(ctx, `SELECT id, org_id, source_module, source_id, memo, created_at FROM transactions WHERE id=$1`, id).
		Scan(&t.ID, &t.OrgID, &t.SourceModule, &t.SourceID, &t.Memo, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, shared.ErrNotFound
		}
		return Transaction{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, transaction_id, gl_account_id, amount, is_debit FROM transaction_records WHERE transaction_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Transaction{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var rec TransactionRecord
		if err := rows.Scan(&rec.ID, &rec.TransactionID, &rec.GLAccountID, &rec.Amount, &rec.IsDebit); err != nil {
			return Transaction{}, err
		}
		t.Records = append(t.Records, rec)
	}
	return t, rows.Err()
}

// InsertTransactionTx validates balance and writes a transaction with its records
// inside the caller's transaction. Other finance modules use this to keep their
// document mutation and ledger posting in one atomic unit of work.
func InsertTransactionTx(ctx context.Context, tx pgx.Tx, in PostingInput) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	var out Transaction
	out.OrgID = in.OrgID
	out.SourceModule = in.SourceModule
	out.SourceID = in.SourceID
	out.Memo = in.Memo
	err := tx.QueryRow(ctx, `INSERT INTO transactions (org_id, source_module, source_id, memo)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`, in.OrgID, in.SourceModule, in.SourceID, in.Memo).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return Transaction{}, err
	}
	for _, rec := range in.Records {
		var record TransactionRecord
		record.TransactionID = out.ID
		record.GLAccountID = rec.GLAccountID
		record.Amount = rec.Amount
		record.IsDebit = rec.IsDebit
		err := tx.QueryRow(ctx, `INSERT INTO transaction_records (transaction_id, gl_account_id, amount, is_debit)
VALUES ($1,$2,$3,$4) RETURNING id`, out.ID, rec.GLAccountID, rec.Amount, rec.IsDebit).Scan(&record.ID)
		if err != nil {
			return Transaction{}, err
		}
		out.Records = append(out.Records, record)
	}
	return out, nil
}
