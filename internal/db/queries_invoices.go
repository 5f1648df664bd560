package db

import (
	"context"
	"encoding/json"
	"fmt"
)

type InvoiceFilter struct {
	Status        string
	Category      string
	Search        string // matched against vendor, invoice number and notes
	ProcessedOnly bool
	Limit         int
}

const invoiceColumns = `id, user_id, file_url, file_name, file_type, vendor_name, vendor_email,
	vendor_phone, invoice_number, invoice_date, due_date, total_amount, currency, tax_amount,
	subtotal, items, category, status, payment_method, notes, is_processed, created_at, updated_at`

// CreateInvoice inserts inv, filling in ID, defaults and timestamps.
func (d *DB) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.ID == "" {
		inv.ID = newID()
	}
	if inv.Currency == "" {
		inv.Currency = "INR"
	}
	if inv.Category == "" {
		inv.Category = "other"
	}
	if inv.Status == "" {
		inv.Status = StatusPending
	}
	if inv.FileType == "" {
		inv.FileType = "pdf"
	}
	items := "[]"
	if len(inv.Items) > 0 {
		b, err := json.Marshal(inv.Items)
		if err != nil {
			return fmt.Errorf("encoding invoice items: %w", err)
		}
		items = string(b)
	}
	ts := now()
	inv.CreatedAt, inv.UpdatedAt = ts, ts
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO invoices (`+invoiceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.UserID, inv.FileURL, inv.FileName, inv.FileType, inv.VendorName, inv.VendorEmail,
		inv.VendorPhone, inv.InvoiceNumber, inv.InvoiceDate, inv.DueDate, inv.TotalAmount, inv.Currency,
		inv.TaxAmount, inv.Subtotal, items, inv.Category, inv.Status, inv.PaymentMethod, inv.Notes,
		inv.IsProcessed, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating invoice: %w", err)
	}
	return nil
}

// GetInvoice returns the invoice with id owned by userID.
func (d *DB) GetInvoice(ctx context.Context, userID, id string) (*Invoice, error) {
	row := d.conn.QueryRowContext(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE id = ? AND user_id = ?", id, userID)
	inv, err := scanInvoice(row)
	if notFound(err) {
		return nil, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return inv, nil
}

// GetInvoiceByNumber returns the most recent invoice carrying number for userID.
func (d *DB) GetInvoiceByNumber(ctx context.Context, userID, number string) (*Invoice, error) {
	row := d.conn.QueryRowContext(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE invoice_number = ? AND user_id = ? ORDER BY created_at DESC LIMIT 1",
		number, userID)
	inv, err := scanInvoice(row)
	if notFound(err) {
		return nil, fmt.Errorf("invoice %s: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting invoice by number: %w", err)
	}
	return inv, nil
}

// ListInvoices returns userID's invoices, newest first.
func (d *DB) ListInvoices(ctx context.Context, userID string, f InvoiceFilter) ([]Invoice, error) {
	q := "SELECT " + invoiceColumns + " FROM invoices WHERE user_id = ?"
	args := []any{userID}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.Category != "" {
		q += " AND category = ?"
		args = append(args, f.Category)
	}
	if f.ProcessedOnly {
		q += " AND is_processed = 1"
	}
	if f.Search != "" {
		q += " AND (vendor_name LIKE ? OR invoice_number LIKE ? OR notes LIKE ?)"
		like := "%" + f.Search + "%"
		args = append(args, like, like, like)
	}
	q += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := d.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invoice: %w", err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// UpdateInvoice updates fields on an invoice owned by userID.
func (d *DB) UpdateInvoice(ctx context.Context, userID, id string, fields map[string]any) error {
	return d.updateRow(ctx, "invoices", userID, id, fields)
}

// MarkOverdueInvoices moves every pending invoice whose due date is before
// today (YYYY-MM-DD) to overdue, across all users.
func (d *DB) MarkOverdueInvoices(ctx context.Context, today string) (int64, error) {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE invoices SET status = 'overdue', updated_at = ?
		WHERE status = 'pending' AND due_date != '' AND due_date < ?`,
		now(), today)
	if err != nil {
		return 0, fmt.Errorf("marking overdue invoices: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(s scanner) (*Invoice, error) {
	var inv Invoice
	var items string
	err := s.Scan(&inv.ID, &inv.UserID, &inv.FileURL, &inv.FileName, &inv.FileType, &inv.VendorName,
		&inv.VendorEmail, &inv.VendorPhone, &inv.InvoiceNumber, &inv.InvoiceDate, &inv.DueDate,
		&inv.TotalAmount, &inv.Currency, &inv.TaxAmount, &inv.Subtotal, &items, &inv.Category,
		&inv.Status, &inv.PaymentMethod, &inv.Notes, &inv.IsProcessed, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(items), &inv.Items)
	return &inv, nil
}
