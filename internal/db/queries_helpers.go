package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var allowedColumns = map[string]map[string]bool{
	"invoices": {
		"vendor_name": true, "vendor_email": true, "vendor_phone": true, "invoice_number": true,
		"invoice_date": true, "due_date": true, "total_amount": true, "currency": true,
		"tax_amount": true, "subtotal": true, "category": true, "status": true,
		"payment_method": true, "notes": true, "is_processed": true,
	},
	"expenses": {"amount": true, "currency": true, "category": true, "vendor": true, "description": true, "date": true},
}

// updateRow updates whitelisted columns on a row owned by userID.
func (d *DB) updateRow(ctx context.Context, table, userID, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	allowed, ok := allowedColumns[table]
	if !ok {
		return fmt.Errorf("unknown table: %s", table)
	}
	var setClauses []string
	var args []any
	for col, val := range fields {
		if !allowed[col] {
			return fmt.Errorf("disallowed column %q for table %s", col, table)
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}
	if table == "invoices" {
		setClauses = append(setClauses, "updated_at = ?")
		args = append(args, now())
	}
	args = append(args, id, userID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND user_id = ?", table, strings.Join(setClauses, ", "))
	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating %s %s: %w", table, id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

// now returns a sortable UTC timestamp matching the schema defaults.
func now() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05.000")
}

func nullStr(s string) any {
	if s == "" || s == "null" {
		return nil
	}
	return s
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
