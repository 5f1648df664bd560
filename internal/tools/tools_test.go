package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris/copilot/internal/analytics"
	"github.com/chris/copilot/internal/db"
	"github.com/chris/copilot/internal/extract"
	"github.com/chris/copilot/internal/files"
	"github.com/chris/copilot/internal/llm"
	"github.com/chris/copilot/internal/llm/llmtest"
	"github.com/chris/copilot/internal/memory"
	"github.com/chris/copilot/internal/query"
)

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }

type env struct {
	db    *db.DB
	fake  *llmtest.Fake
	deps  Deps
	store *memory.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	d, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	store, err := memory.NewStore(d, chromem.NewDB(), memory.LocalEmbedding(384), nil)
	require.NoError(t, err)

	fake := &llmtest.Fake{}
	root := "mem://localhost/" + t.Name()
	archive, err := files.NewArchive(root)
	require.NoError(t, err)
	return &env{
		db:    d,
		fake:  fake,
		store: store,
		deps: Deps{
			DB:         d,
			Client:     fake,
			Memory:     store,
			Translator: query.NewTranslator(fake, nil),
			Analytics:  analytics.NewService(d, fake, nil),
			Extractor:  extract.NewLLMExtractor(fake, nil),
			Fetcher:    files.NewFetcher(nil, root),
			Archive:    archive,
			Now:        fixedNow,
		},
	}
}

func (e *env) registry(userID string) *Registry { return NewRegistry(userID, e.deps) }

func (e *env) invoice(t *testing.T, inv db.Invoice) db.Invoice {
	t.Helper()
	require.NoError(t, e.db.CreateInvoice(context.Background(), &inv))
	return inv
}

func (e *env) expense(t *testing.T, ex db.Expense) db.Expense {
	t.Helper()
	require.NoError(t, e.db.CreateExpense(context.Background(), &ex))
	return ex
}

func TestCatalog(t *testing.T) {
	r := newEnv(t).registry("u1")
	want := []string{
		"query_expenses", "generate_analytics", "update_expense_category",
		"get_invoices", "get_invoice_details", "detect_duplicate_invoices",
		"process_invoice_from_text", "update_invoice_status",
		"generate_expense_report", "export_csv_report",
		"save_memory", "search_memory", "get_memory", "delete_memory",
	}
	assert.ElementsMatch(t, want, r.Names())

	defs := r.Definitions()
	require.Len(t, defs, 14)
	for i, d := range defs {
		assert.Equal(t, r.Names()[i], d.Name)
		assert.NotEmpty(t, d.Description)
		assert.Equal(t, "object", d.Parameters["type"])
	}
}

func TestExecuteTextifiesFailures(t *testing.T) {
	r := newEnv(t).registry("u1")
	ctx := context.Background()

	assert.Equal(t, "Tool nope not found", r.Execute(ctx, "nope", nil))
	assert.Equal(t, `Error executing get_memory: missing required argument "key"`, r.Execute(ctx, "get_memory", map[string]any{}))

	r.Register(&Tool{Name: "boom", Handler: func(context.Context, map[string]any) (string, error) {
		panic("kaboom")
	}})
	assert.Equal(t, "Error executing boom: kaboom", r.Execute(ctx, "boom", nil))

	r.Register(&Tool{Name: "fails", Handler: func(context.Context, map[string]any) (string, error) {
		return "", errors.New("store offline")
	}})
	assert.Equal(t, "Error executing fails: store offline", r.Execute(ctx, "fails", nil))
}

func TestParamCoercion(t *testing.T) {
	args := map[string]any{"a": 3.0, "b": int64(4), "c": "5", "d": true, "e": "  "}
	n, ok := getInt(args, "a")
	assert.True(t, ok)
	assert.EqualValues(t, 3, n)
	n, ok = getInt(args, "b")
	assert.True(t, ok)
	assert.EqualValues(t, 4, n)
	f, ok := getFloat(args, "c")
	assert.True(t, ok)
	assert.Equal(t, 5.0, f)
	_, ok = getFloat(args, "d")
	assert.False(t, ok)
	_, ok = getString(args, "e")
	assert.False(t, ok)
	_, ok = getString(args, "a")
	assert.False(t, ok)
}

func TestInvoiceToolsAreUserScoped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other := e.invoice(t, db.Invoice{UserID: "u2", VendorName: "Secret Vendor", InvoiceNumber: "S-1", TotalAmount: 999})
	mine := e.invoice(t, db.Invoice{UserID: "u1", VendorName: "Acme Corp", InvoiceNumber: "INV-001", TotalAmount: 1180.5, Currency: "USD"})

	r := e.registry("u1")
	out := r.Execute(ctx, "get_invoice_details", map[string]any{"identifier": other.ID})
	assert.Equal(t, "Invoice not found with identifier: "+other.ID, out)
	out = r.Execute(ctx, "get_invoice_details", map[string]any{"identifier": "S-1"})
	assert.Equal(t, "Invoice not found with identifier: S-1", out)

	out = r.Execute(ctx, "get_invoice_details", map[string]any{"identifier": "INV-001"})
	assert.Contains(t, out, "Vendor: Acme Corp")
	assert.Contains(t, out, "Amount: USD 1,180.5")

	out = r.Execute(ctx, "get_invoices", map[string]any{})
	assert.Contains(t, out, "Found 1 invoice:")
	assert.NotContains(t, out, "Secret Vendor")

	out = r.Execute(ctx, "update_invoice_status", map[string]any{"identifier": other.ID, "status": "paid"})
	assert.Contains(t, out, "Invoice not found")
	got, err := e.db.GetInvoice(ctx, "u2", other.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusPending, got.Status)

	out = r.Execute(ctx, "update_invoice_status", map[string]any{"identifier": mine.ID, "status": "paid", "paymentMethod": "Bank Transfer"})
	assert.Contains(t, out, "Invoice status updated successfully!")
	assert.Contains(t, out, "Payment Method: Bank Transfer")

	out = r.Execute(ctx, "update_invoice_status", map[string]any{"identifier": mine.ID, "status": "lost"})
	assert.True(t, strings.HasPrefix(out, "Error executing update_invoice_status: invalid status"))
}

func TestExpenseCategoryIsUserScoped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	theirs := e.expense(t, db.Expense{UserID: "u2", Amount: 10, Date: "2024-01-01"})
	mine := e.expense(t, db.Expense{UserID: "u1", Amount: 20, Vendor: "Figma", Date: "2024-01-02"})
	r := e.registry("u1")

	out := r.Execute(ctx, "update_expense_category", map[string]any{"expenseId": theirs.ID, "category": "software"})
	assert.Equal(t, "Expense not found with ID: "+theirs.ID, out)

	out = r.Execute(ctx, "update_expense_category", map[string]any{"expenseId": mine.ID, "category": "Software"})
	assert.Contains(t, out, "New Category: software")
	got, err := e.db.GetExpense(ctx, "u1", mine.ID)
	require.NoError(t, err)
	assert.Equal(t, "software", got.Category)
}

func TestScore(t *testing.T) {
	a := db.Invoice{InvoiceNumber: "INV-9", VendorName: "Acme", TotalAmount: 1000, InvoiceDate: "2024-03-01"}
	b := db.Invoice{InvoiceNumber: "INV-9", VendorName: "ACME", TotalAmount: 1005, InvoiceDate: "2024-03-05"}
	s, reasons := Score(a, b)
	assert.GreaterOrEqual(t, s, 0.85)
	assert.Equal(t, []string{"same invoice number", "same vendor", "same amount", "similar date"}, reasons)

	c := db.Invoice{InvoiceNumber: "X-1", VendorName: "acme", TotalAmount: 50, InvoiceDate: "2023-01-01"}
	s, reasons = Score(a, c)
	assert.Equal(t, 0.2, s)
	assert.Equal(t, []string{"same vendor"}, reasons)
}

func TestDetectDuplicates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.registry("u1")

	assert.Equal(t, "Not enough invoices to check for duplicates.", r.Execute(ctx, "detect_duplicate_invoices", nil))

	e.invoice(t, db.Invoice{UserID: "u1", VendorName: "Acme", InvoiceNumber: "INV-1", TotalAmount: 500, InvoiceDate: "2024-03-01", IsProcessed: true})
	e.invoice(t, db.Invoice{UserID: "u1", VendorName: "acme", InvoiceNumber: "INV-1", TotalAmount: 500, InvoiceDate: "2024-03-03", IsProcessed: true})
	e.invoice(t, db.Invoice{UserID: "u1", VendorName: "Acme", InvoiceNumber: "INV-7", TotalAmount: 90, InvoiceDate: "2022-01-01", IsProcessed: true})
	// Unprocessed and other users' invoices are never compared.
	e.invoice(t, db.Invoice{UserID: "u1", VendorName: "Acme", InvoiceNumber: "INV-1", TotalAmount: 500, InvoiceDate: "2024-03-01"})
	e.invoice(t, db.Invoice{UserID: "u2", VendorName: "Acme", InvoiceNumber: "INV-1", TotalAmount: 500, InvoiceDate: "2024-03-01", IsProcessed: true})

	out := r.Execute(ctx, "detect_duplicate_invoices", nil)
	assert.True(t, strings.HasPrefix(out, "Found 1 potential duplicate:"), out)
	assert.Contains(t, out, "Similarity: 100%")
	assert.Contains(t, out, "Reason: same invoice number, same vendor, same amount, similar date")
	assert.Empty(t, e.fake.CompletePrompts(), "no borderline pairs, no judge calls")
}

func TestDetectDuplicatesJudge(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	// Same vendor and amount, different numbers and months: 0.5, borderline.
	e.invoice(t, db.Invoice{UserID: "u1", VendorName: "Figma", InvoiceNumber: "F-1", TotalAmount: 45, InvoiceDate: "2024-01-01", IsProcessed: true})
	e.invoice(t, db.Invoice{UserID: "u1", VendorName: "Figma", InvoiceNumber: "F-2", TotalAmount: 45, InvoiceDate: "2024-02-01", IsProcessed: true})

	var temp float64
	e.fake.CompleteFunc = func(_ context.Context, _ string, o llm.CompleteOptions) (string, error) {
		temp = o.Temperature
		return `{"similarity": 0.9, "reason": "monthly subscription billed twice"}`, nil
	}
	out := e.registry("u1").Execute(ctx, "detect_duplicate_invoices", map[string]any{"threshold": 0.85})
	assert.Contains(t, out, "Similarity: 90%")
	assert.Contains(t, out, "AI analysis: monthly subscription billed twice")
	assert.Equal(t, llm.TemperatureStrict, temp)

	e.fake.CompleteFunc = func(context.Context, string, llm.CompleteOptions) (string, error) {
		return "", errors.New("rate limited")
	}
	out = e.registry("u1").Execute(ctx, "detect_duplicate_invoices", nil)
	assert.Equal(t, "No duplicate invoices detected.", out)
}

func TestExportCSV(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.expense(t, db.Expense{UserID: "u1", Amount: 100, Currency: "USD", Category: "office", Vendor: "Paper, Inc", Description: "A4 paper", Date: "2024-01-05"})
	e.expense(t, db.Expense{UserID: "u1", Amount: 250.5, Category: "software", Vendor: "Figma", Description: "Seats, annual\nplan", Date: "2024-02-10"})
	e.expense(t, db.Expense{UserID: "u1", Amount: 75, Category: "marketing", Vendor: "Ads", Date: "2024-03-01"})
	e.expense(t, db.Expense{UserID: "u2", Amount: 1, Vendor: "Other", Date: "2024-03-02"})

	out := e.registry("u1").Execute(ctx, "export_csv_report", nil)
	require.True(t, strings.HasPrefix(out, "CSV Export (3 expenses):\n\n"), out)
	csv := strings.TrimPrefix(out, "CSV Export (3 expenses):\n\n")
	csv, _, _ = strings.Cut(csv, "\n\nYou can copy")

	lines := strings.Split(csv, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Date,Amount,Currency,Category,Vendor,Description", lines[0])
	assert.Equal(t, "2024-03-01,75,INR,marketing,Ads,", lines[1])
	assert.Equal(t, "2024-02-10,250.5,INR,software,Figma,Seats; annual plan", lines[2])
	assert.Equal(t, "2024-01-05,100,USD,office,Paper; Inc,A4 paper", lines[3])
	for _, l := range lines {
		assert.Equal(t, 5, strings.Count(l, ","))
	}

	out = e.registry("u1").Execute(ctx, "export_csv_report", map[string]any{"startDate": "2025-01-01"})
	assert.Equal(t, "No expenses found for the specified period.", out)

	out = e.registry("u1").Execute(ctx, "export_csv_report", map[string]any{"startDate": "last week"})
	assert.Contains(t, out, "Error executing export_csv_report: invalid startDate")
}

func TestGenerateReport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.registry("u1")
	e.fake.Completions = []string{"- Spend is concentrated in software"}

	assert.Equal(t, "No expenses or invoices found for the specified period.", r.Execute(ctx, "generate_expense_report", nil))

	e.expense(t, db.Expense{UserID: "u1", Amount: 300, Category: "software", Vendor: "Figma", Date: "2024-02-01"})
	e.expense(t, db.Expense{UserID: "u1", Amount: 100, Category: "office", Vendor: "Paper Co", Date: "2024-03-01"})
	e.invoice(t, db.Invoice{UserID: "u1", VendorName: "AWS", TotalAmount: 1000})

	out := r.Execute(ctx, "generate_expense_report", map[string]any{"startDate": "2024-01-01"})
	assert.Contains(t, out, "EXPENSE REPORT\nGenerated: 2024-06-01\nPeriod: 2024-01-01 to Present\n")
	assert.Contains(t, out, "Total Expenses: 400\nTotal Invoices: 1,000\nExpense Count: 2\nInvoice Count: 1\nAverage Expense: 200\n")
	assert.Contains(t, out, "=== BY CATEGORY ===\nsoftware: 300\noffice: 100\n")
	assert.Contains(t, out, "=== TOP VENDORS ===\n1. AWS: 1,000\n2. Figma: 300\n3. Paper Co: 100\n")
	assert.Contains(t, out, "=== INSIGHTS ===\n- Spend is concentrated in software\n")
	assert.Contains(t, out, "=== RECENT EXPENSES (Last 10) ===\n2024-03-01 - Paper Co: 100 (office)\n2024-02-01 - Figma: 300 (software)\n")

	out = r.Execute(ctx, "generate_expense_report", map[string]any{"format": "summary"})
	assert.NotContains(t, out, "RECENT EXPENSES")
	assert.Contains(t, out, "Unable to generate insights at this time.")
}

func TestQueryExpenses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		e.expense(t, db.Expense{UserID: "u1", Amount: 100, Category: "software", Vendor: "Figma", Date: "2024-01-10"})
	}
	e.expense(t, db.Expense{UserID: "u2", Amount: 5000, Category: "software", Vendor: "Leak", Date: "2024-01-10"})

	e.fake.Completions = []string{`{"userId": "u2", "category": "software"}`, `{"amount": {"$gt": 1e9}}`}
	r := e.registry("u1")
	out := r.Execute(ctx, "query_expenses", map[string]any{"query": "software spend"})
	assert.True(t, strings.HasPrefix(out, "Found 12 expenses:\n\n"), out)
	assert.NotContains(t, out, "Leak")
	assert.Equal(t, 10, strings.Count(out, "• Figma"))
	assert.Contains(t, out, "\nTotal: INR 1,200")
	assert.Contains(t, out, "(Showing first 10 of 12 results)")

	out = r.Execute(ctx, "query_expenses", map[string]any{"query": "huge ones"})
	assert.Equal(t, "I couldn't find any expenses matching your query.", out)
}

func TestGenerateAnalyticsTool(t *testing.T) {
	e := newEnv(t)
	e.expense(t, db.Expense{UserID: "u1", Amount: 150, Category: "office", Date: "2024-01-10"})
	e.fake.Completions = []string{"- Keep it up"}

	out := e.registry("u1").Execute(context.Background(), "generate_analytics", map[string]any{"request": "trends"})
	assert.Contains(t, out, "Analytics Results:\n\nTotal Expenses: 150\nExpense Count: 1\nAverage Expense: 150\n")
	assert.Contains(t, out, "2024-01: 150")
	assert.Contains(t, out, "Insights:\n- Keep it up")
}

func TestMemoryTools(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.registry("u1")

	assert.Equal(t, "Memory saved successfully: name = Priya", r.Execute(ctx, "save_memory", map[string]any{"key": "name", "value": "Priya"}))
	assert.Equal(t, "Memory (name): name: Priya", r.Execute(ctx, "get_memory", map[string]any{"key": "name"}))

	out := r.Execute(ctx, "search_memory", map[string]any{"query": "what is my name", "limit": 3.0})
	assert.True(t, strings.HasPrefix(out, "Found 1 relevant memory:\n\n1. name: Priya"), out)

	other := e.registry("u2")
	assert.Equal(t, "No memory found with key: name", other.Execute(ctx, "get_memory", map[string]any{"key": "name"}))
	assert.Equal(t, "No relevant memories found.", other.Execute(ctx, "search_memory", map[string]any{"query": "name"}))

	assert.Equal(t, "Memory deleted successfully: name", r.Execute(ctx, "delete_memory", map[string]any{"key": "name"}))
	assert.Equal(t, "No memory found with key: name", r.Execute(ctx, "get_memory", map[string]any{"key": "name"}))
}

func TestProcessInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acme.pdf" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 acme"))
	}))
	defer srv.Close()

	e := newEnv(t)
	ctx := context.Background()
	e.fake.Completions = []string{`{"vendorName": "Acme Corp", "invoiceNumber": "INV-001", "invoiceDate": "2024-05-02", "totalAmount": 1180, "currency": "USD",
		"items": [{"description": "Consulting", "quantity": 2, "unitPrice": 590, "amount": 1180}]}`}
	r := e.registry("u1")

	assert.Equal(t, "Error executing process_invoice_from_text: either invoiceText or fileUrl must be provided",
		r.Execute(ctx, "process_invoice_from_text", nil))
	out := r.Execute(ctx, "process_invoice_from_text", map[string]any{"invoiceText": "Acme, $1180"})
	assert.Contains(t, out, "upload the invoice file first")

	out = r.Execute(ctx, "process_invoice_from_text", map[string]any{"fileUrl": srv.URL + "/missing.pdf"})
	assert.Equal(t, "Error: Could not fetch file from URL: 404 Not Found", out)

	out = r.Execute(ctx, "process_invoice_from_text", map[string]any{"fileUrl": srv.URL + "/acme.pdf"})
	require.True(t, strings.HasPrefix(out, "Invoice processed successfully!"), out)
	assert.Contains(t, out, "Amount: USD 1,180\nStatus: pending\n")
	id := out[strings.LastIndex(out, "Invoice ID: ")+len("Invoice ID: "):]

	inv, err := e.db.GetInvoice(ctx, "u1", id)
	require.NoError(t, err)
	assert.True(t, inv.IsProcessed)
	assert.Equal(t, "pdf", inv.FileType)
	assert.Equal(t, "acme.pdf", inv.FileName)
	assert.True(t, strings.HasPrefix(inv.FileURL, "mem://localhost/"), inv.FileURL)
	require.Len(t, inv.Items, 1)

	expenses, err := e.db.ListExpenses(ctx, db.ExpenseFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, inv.ID, expenses[0].InvoiceID)
	assert.Equal(t, "Invoice INV-001", expenses[0].Description)
	assert.Equal(t, "2024-05-02", expenses[0].Date)
}

func TestProcessInvoiceOnlyReadsCallerFiles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	secret := t.TempDir() + "/config"
	require.NoError(t, os.WriteFile(secret, []byte("ANTHROPIC_API_KEY=sk-secret"), 0o600))
	owned, err := e.deps.Archive.Put(ctx, "u1", "f1", "bill.pdf", []byte("%PDF-1.4 u1 bill"))
	require.NoError(t, err)

	intruder := e.registry("u2")
	for _, src := range []string{"file://" + secret, "file:///etc/passwd", owned} {
		out := intruder.Execute(ctx, "process_invoice_from_text", map[string]any{"fileUrl": src})
		assert.True(t, strings.HasPrefix(out, "Error executing process_invoice_from_text: "), out)
		assert.Contains(t, out, files.ErrNotAllowed.Error())
	}
	assert.Empty(t, e.fake.CompletePrompts(), "nothing reaches the model")
	invoices, err := e.db.ListInvoices(ctx, "u2", db.InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, invoices)

	e.fake.Completions = []string{`{"vendorName": "Acme Corp", "totalAmount": 0}`}
	out := e.registry("u1").Execute(ctx, "process_invoice_from_text", map[string]any{"fileUrl": owned})
	assert.True(t, strings.HasPrefix(out, "Invoice processed successfully!"), out)
}
