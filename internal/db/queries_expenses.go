package db

import (
	"context"
	"fmt"
	"strings"
)

// ExpenseFilter narrows an expense query. Zero values mean "no constraint";
// the user constraint is always applied.
type ExpenseFilter struct {
	UserID      string
	AmountGT    *float64
	AmountGTE   *float64
	AmountLT    *float64
	AmountLTE   *float64
	Currency    string
	Categories  []string
	Vendor      string // case-insensitive substring
	Description string // case-insensitive substring
	DateFrom    string // inclusive, YYYY-MM-DD
	DateTo      string // inclusive, YYYY-MM-DD
	Limit       int
}

const expenseColumns = "id, user_id, COALESCE(invoice_id,''), amount, currency, category, vendor, description, date, created_at"

// CreateExpense inserts e, filling in ID and defaults.
func (d *DB) CreateExpense(ctx context.Context, e *Expense) error {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.Currency == "" {
		e.Currency = "INR"
	}
	if e.Category == "" {
		e.Category = "other"
	}
	e.CreatedAt = now()
	_, err := d.conn.ExecContext(ctx,
		"INSERT INTO expenses (id, user_id, invoice_id, amount, currency, category, vendor, description, date, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.UserID, nullStr(e.InvoiceID), e.Amount, e.Currency, e.Category, e.Vendor, e.Description, e.Date, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating expense: %w", err)
	}
	return nil
}

// ListExpenses returns expenses matching f, newest date first.
func (d *DB) ListExpenses(ctx context.Context, f ExpenseFilter) ([]Expense, error) {
	q := "SELECT " + expenseColumns + " FROM expenses WHERE user_id = ?"
	args := []any{f.UserID}
	if f.AmountGT != nil {
		q += " AND amount > ?"
		args = append(args, *f.AmountGT)
	}
	if f.AmountGTE != nil {
		q += " AND amount >= ?"
		args = append(args, *f.AmountGTE)
	}
	if f.AmountLT != nil {
		q += " AND amount < ?"
		args = append(args, *f.AmountLT)
	}
	if f.AmountLTE != nil {
		q += " AND amount <= ?"
		args = append(args, *f.AmountLTE)
	}
	if f.Currency != "" {
		q += " AND currency = ?"
		args = append(args, strings.ToUpper(f.Currency))
	}
	if len(f.Categories) > 0 {
		q += " AND category IN (" + strings.TrimSuffix(strings.Repeat("?,", len(f.Categories)), ",") + ")"
		for _, c := range f.Categories {
			args = append(args, c)
		}
	}
	if f.Vendor != "" {
		q += " AND LOWER(vendor) LIKE ?"
		args = append(args, "%"+strings.ToLower(f.Vendor)+"%")
	}
	if f.Description != "" {
		q += " AND LOWER(description) LIKE ?"
		args = append(args, "%"+strings.ToLower(f.Description)+"%")
	}
	if f.DateFrom != "" {
		q += " AND date >= ?"
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		q += " AND date <= ?"
		args = append(args, f.DateTo)
	}
	q += " ORDER BY date DESC, created_at DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.InvoiceID, &e.Amount, &e.Currency, &e.Category,
			&e.Vendor, &e.Description, &e.Date, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateExpense updates fields on an expense owned by userID.
func (d *DB) UpdateExpense(ctx context.Context, userID, id string, fields map[string]any) error {
	return d.updateRow(ctx, "expenses", userID, id, fields)
}

// GetExpense returns an expense owned by userID, or ErrNotFound.
func (d *DB) GetExpense(ctx context.Context, userID, id string) (*Expense, error) {
	var e Expense
	err := d.conn.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ? AND user_id = ?", id, userID,
	).Scan(&e.ID, &e.UserID, &e.InvoiceID, &e.Amount, &e.Currency, &e.Category,
		&e.Vendor, &e.Description, &e.Date, &e.CreatedAt)
	if notFound(err) {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return &e, nil
}
