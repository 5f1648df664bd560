package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func ptr(f float64) *float64 { return &f }

// --- Invoices ---

func TestCreateAndGetInvoice(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	inv := &Invoice{
		UserID:        "u1",
		VendorName:    "Acme",
		InvoiceNumber: "INV-1",
		TotalAmount:   1180,
		Items:         []InvoiceItem{{Description: "widget", Quantity: 2, UnitPrice: 500, Amount: 1000}},
		IsProcessed:   true,
	}
	require.NoError(t, d.CreateInvoice(ctx, inv))
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, "INR", inv.Currency)
	assert.Equal(t, StatusPending, inv.Status)

	got, err := d.GetInvoice(ctx, "u1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.VendorName)
	assert.True(t, got.IsProcessed)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "widget", got.Items[0].Description)

	byNum, err := d.GetInvoiceByNumber(ctx, "u1", "INV-1")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, byNum.ID)
}

func TestInvoiceLookupIsUserScoped(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	inv := &Invoice{UserID: "u1", InvoiceNumber: "INV-1"}
	require.NoError(t, d.CreateInvoice(ctx, inv))

	_, err := d.GetInvoice(ctx, "u2", inv.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = d.GetInvoiceByNumber(ctx, "u2", "INV-1")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = d.UpdateInvoice(ctx, "u2", inv.ID, map[string]any{"status": StatusPaid})
	assert.True(t, errors.Is(err, ErrNotFound))

	list, err := d.ListInvoices(ctx, "u2", InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListInvoicesFilters(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, d.CreateInvoice(ctx, &Invoice{UserID: "u1", VendorName: "Acme Power", Category: "utilities", IsProcessed: true}))
	require.NoError(t, d.CreateInvoice(ctx, &Invoice{UserID: "u1", VendorName: "Figma", Category: "software", Status: StatusPaid}))
	require.NoError(t, d.CreateInvoice(ctx, &Invoice{UserID: "u1", VendorName: "Paper Co", Category: "office"}))

	all, err := d.ListInvoices(ctx, "u1", InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Paper Co", all[0].VendorName, "newest first")

	paid, err := d.ListInvoices(ctx, "u1", InvoiceFilter{Status: StatusPaid})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, "Figma", paid[0].VendorName)

	processed, err := d.ListInvoices(ctx, "u1", InvoiceFilter{ProcessedOnly: true})
	require.NoError(t, err)
	require.Len(t, processed, 1)

	search, err := d.ListInvoices(ctx, "u1", InvoiceFilter{Search: "power"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, "utilities", search[0].Category)

	limited, err := d.ListInvoices(ctx, "u1", InvoiceFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestUpdateInvoiceRejectsUnknownColumn(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	inv := &Invoice{UserID: "u1"}
	require.NoError(t, d.CreateInvoice(ctx, inv))

	err := d.UpdateInvoice(ctx, "u1", inv.ID, map[string]any{"user_id": "u2"})
	assert.Error(t, err)

	require.NoError(t, d.UpdateInvoice(ctx, "u1", inv.ID, map[string]any{"status": StatusPaid}))
	got, err := d.GetInvoice(ctx, "u1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
}

func TestMarkOverdueInvoices(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	late := &Invoice{UserID: "u1", DueDate: "2024-01-10"}
	future := &Invoice{UserID: "u1", DueDate: "2024-03-01"}
	paid := &Invoice{UserID: "u2", DueDate: "2024-01-01", Status: StatusPaid}
	noDue := &Invoice{UserID: "u2"}
	for _, inv := range []*Invoice{late, future, paid, noDue} {
		require.NoError(t, d.CreateInvoice(ctx, inv))
	}

	n, err := d.MarkOverdueInvoices(ctx, "2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := d.GetInvoice(ctx, "u1", late.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status)

	got, err = d.GetInvoice(ctx, "u2", paid.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
}

// --- Expenses ---

func seedExpenses(t *testing.T, d *DB) {
	t.Helper()
	ctx := context.Background()
	for _, e := range []Expense{
		{UserID: "u1", Amount: 500, Category: "office", Vendor: "Paper Co", Description: "printer paper", Date: "2024-01-05"},
		{UserID: "u1", Amount: 1500, Category: "software", Vendor: "Figma", Description: "design seats", Date: "2024-01-20"},
		{UserID: "u1", Amount: 1000, Currency: "USD", Category: "software", Vendor: "GitHub", Description: "Copilot", Date: "2024-02-02"},
		{UserID: "u2", Amount: 9999, Category: "office", Vendor: "Paper Co", Date: "2024-01-06"},
	} {
		require.NoError(t, d.CreateExpense(ctx, &e))
	}
}

func TestListExpensesScopedAndOrdered(t *testing.T) {
	d := openTestDB(t)
	seedExpenses(t, d)

	got, err := d.ListExpenses(context.Background(), ExpenseFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2024-02-02", got[0].Date)
	assert.Equal(t, "2024-01-05", got[2].Date)
	for _, e := range got {
		assert.Equal(t, "u1", e.UserID)
	}
}

func TestListExpensesFilters(t *testing.T) {
	d := openTestDB(t)
	seedExpenses(t, d)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter ExpenseFilter
		want   int
	}{
		{"amount gt", ExpenseFilter{AmountGT: ptr(1000)}, 1},
		{"amount gte", ExpenseFilter{AmountGTE: ptr(1000)}, 2},
		{"amount range", ExpenseFilter{AmountGTE: ptr(500), AmountLT: ptr(1500)}, 2},
		{"category in", ExpenseFilter{Categories: []string{"software"}}, 2},
		{"vendor substring", ExpenseFilter{Vendor: "fig"}, 1},
		{"description substring", ExpenseFilter{Description: "PAPER"}, 1},
		{"currency", ExpenseFilter{Currency: "usd"}, 1},
		{"date range inclusive", ExpenseFilter{DateFrom: "2024-01-05", DateTo: "2024-01-20"}, 2},
		{"limit", ExpenseFilter{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.filter
			f.UserID = "u1"
			got, err := d.ListExpenses(ctx, f)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestExpenseLinkedToInvoice(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	inv := &Invoice{UserID: "u1"}
	require.NoError(t, d.CreateInvoice(ctx, inv))
	require.NoError(t, d.CreateExpense(ctx, &Expense{UserID: "u1", InvoiceID: inv.ID, Amount: 10, Date: "2024-01-01"}))

	got, err := d.ListExpenses(ctx, ExpenseFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inv.ID, got[0].InvoiceID)
	assert.Equal(t, "other", got[0].Category)

	one, err := d.GetExpense(ctx, "u1", got[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, one.Amount)
	_, err = d.GetExpense(ctx, "u2", got[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Sessions ---

func TestSessionsAndTurns(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	s, err := d.CreateSession(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "New Chat", s.Title)

	_, err = d.GetSession(ctx, "u2", s.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	for _, c := range []string{"one", "two", "three", "four"} {
		role := "user"
		if c == "two" || c == "four" {
			role = "assistant"
		}
		_, err := d.AppendTurn(ctx, s.ID, "u1", role, c)
		require.NoError(t, err)
	}

	turns, err := d.LoadRecentHistory(ctx, s.ID, "u1", 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "two", turns[0].Content)
	assert.Equal(t, "four", turns[2].Content)

	none, err := d.LoadRecentHistory(ctx, s.ID, "u2", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	sessions, err := d.ListSessions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	require.NoError(t, d.TouchSession(ctx, "u1", s.ID))
}

// --- Memories ---

func TestMemoriesByKeyAndDelete(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	first := &Memory{UserID: "u1", Key: "preferred_currency", Value: "INR", Text: "preferred_currency: INR"}
	second := &Memory{UserID: "u1", Key: "preferred_currency", Value: "USD", Text: "preferred_currency: USD"}
	other := &Memory{UserID: "u2", Key: "preferred_currency", Value: "EUR", Text: "preferred_currency: EUR"}
	for _, m := range []*Memory{first, second, other} {
		require.NoError(t, d.SaveMemory(ctx, m))
	}

	got, err := d.MemoriesByKey(ctx, "u1", "preferred_currency")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "INR", got[0].Value, "oldest first")
	assert.Equal(t, "general", got[0].Type)

	n, err := d.CountMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err := d.DeleteMemories(ctx, "u1", first.ID, second.ID, other.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	n, err = d.CountMemories(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "other user's memory survives")

	removed, err = d.DeleteMemories(ctx, "u1", first.ID)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = d.DeleteMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, removed)
}
