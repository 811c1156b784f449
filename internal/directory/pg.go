// Package directory provides the contact and approver lookups backed by the
// shared people database. Deployments with an external CRM swap this for a
// client of that system; the port is defined in the documents package.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// PG implements documents.Directory over pgx.
type PG struct {
	db *pgxpool.Pool
}

// NewPG builds the database-backed directory.
func NewPG(db *pgxpool.Pool) *PG {
	return &PG{db: db}
}

// ContactSnapshot captures the contact's current name and address.
func (d *PG) ContactSnapshot(ctx context.Context, contactID int64) (documents.ContactSnapshot, error) {
	var snapshot documents.ContactSnapshot
	err := d.db.QueryRow(ctx, `SELECT name, address FROM contacts WHERE id=$1`, contactID).
		Scan(&snapshot.Name, &snapshot.Address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return documents.ContactSnapshot{}, fmt.Errorf("%w: contact", shared.ErrNotFound)
		}
		return documents.ContactSnapshot{}, err
	}
	return snapshot, nil
}

const approverColumns = `a.user_id, a.name, a.invoice_limit, a.purchase_order_limit, a.credit_note_limit`

// Approver loads one approver with their locations and limits.
func (d *PG) Approver(ctx context.Context, userID int64) (documents.Approver, error) {
	var a documents.Approver
	err := d.db.QueryRow(ctx, `
		SELECT `+approverColumns+` FROM approvers a WHERE a.user_id=$1`, userID).
		Scan(&a.ID, &a.Name, &a.InvoiceLimit, &a.PurchaseOrderLimit, &a.CreditNoteLimit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return documents.Approver{}, fmt.Errorf("%w: approver", shared.ErrNotFound)
		}
		return documents.Approver{}, err
	}

	rows, err := d.db.Query(ctx, `SELECT location_id FROM approver_locations WHERE user_id=$1`, userID)
	if err != nil {
		return documents.Approver{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var loc int64
		if err := rows.Scan(&loc); err != nil {
			return documents.Approver{}, err
		}
		a.LocationIDs = append(a.LocationIDs, loc)
	}
	return a, rows.Err()
}

// ApproversAt lists the approvers assigned to a location.
func (d *PG) ApproversAt(ctx context.Context, locationID int64) ([]documents.Approver, error) {
	rows, err := d.db.Query(ctx, `
		SELECT `+approverColumns+`
		FROM approvers a
		JOIN approver_locations al ON al.user_id = a.user_id
		WHERE al.location_id=$1
		ORDER BY a.name`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []documents.Approver
	for rows.Next() {
		var a documents.Approver
		if err := rows.Scan(&a.ID, &a.Name, &a.InvoiceLimit, &a.PurchaseOrderLimit, &a.CreditNoteLimit); err != nil {
			return nil, err
		}
		a.LocationIDs = append(a.LocationIDs, locationID)
		out = append(out, a)
	}
	return out, rows.Err()
}
