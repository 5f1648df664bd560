package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chris/copilot/internal/analytics"
	"github.com/chris/copilot/internal/db"
)

const (
	reportTopVendors = 5
	reportRecent     = 10
	csvHeader        = "Date,Amount,Currency,Category,Vendor,Description"
)

var csvSanitizer = strings.NewReplacer(",", ";", "\r\n", " ", "\n", " ", "\r", " ")

func (r *Registry) registerReportTools() {
	r.Register(&Tool{
		Name:        "generate_expense_report",
		Description: `Generate a comprehensive expense report in text format. Use this when users ask for reports, summaries, or detailed expense breakdowns. The report includes statistics, insights, and analysis.`,
		Parameters: obj(map[string]any{
			"format":    enum("Report format: text (detailed) or summary (brief)", "text", "summary"),
			"startDate": prop("string", "Start date for report (YYYY-MM-DD)"),
			"endDate":   prop("string", "End date for report (YYYY-MM-DD)"),
		}),
		Handler: r.generateReport,
	})
	r.Register(&Tool{
		Name:        "export_csv_report",
		Description: `Generate a CSV export of expenses. Use this when users ask to export data, download CSV, or get data in spreadsheet format. Returns CSV data that can be saved to a file.`,
		Parameters: obj(map[string]any{
			"startDate": prop("string", "Start date for export (YYYY-MM-DD)"),
			"endDate":   prop("string", "End date for export (YYYY-MM-DD)"),
		}),
		Handler: r.exportCSV,
	})
}

// periodFilter reads startDate/endDate into an expense filter for the
// acting user.
func (r *Registry) periodFilter(args map[string]any) (db.ExpenseFilter, error) {
	f := db.ExpenseFilter{UserID: r.userID}
	var err error
	if f.DateFrom, err = getDate(args, "startDate"); err != nil {
		return f, err
	}
	if f.DateTo, err = getDate(args, "endDate"); err != nil {
		return f, err
	}
	return f, nil
}

func (r *Registry) generateReport(ctx context.Context, args map[string]any) (string, error) {
	format, _ := getString(args, "format")
	if format != "summary" {
		format = "text"
	}
	filter, err := r.periodFilter(args)
	if err != nil {
		return "", err
	}

	expenses, err := r.deps.DB.ListExpenses(ctx, filter)
	if err != nil {
		return "", err
	}
	invoices, err := r.deps.DB.ListInvoices(ctx, r.userID, db.InvoiceFilter{})
	if err != nil {
		return "", err
	}
	if len(expenses) == 0 && len(invoices) == 0 {
		return "No expenses or invoices found for the specified period.", nil
	}

	stats := analytics.Compute(expenses)
	var totalInvoices float64
	byVendor := make(map[string]float64, len(stats.ByVendor))
	for k, v := range stats.ByVendor {
		byVendor[k] = v
	}
	for _, inv := range invoices {
		totalInvoices += inv.TotalAmount
		if inv.VendorName != "" && inv.TotalAmount != 0 {
			byVendor[inv.VendorName] += inv.TotalAmount
		}
	}
	insights := r.deps.Analytics.Insights(ctx, stats, "Generate comprehensive expense report")

	var b strings.Builder
	b.WriteString("EXPENSE REPORT\n")
	fmt.Fprintf(&b, "Generated: %s\n", r.deps.Now().Format("2006-01-02"))
	if filter.DateFrom != "" || filter.DateTo != "" {
		fmt.Fprintf(&b, "Period: %s to %s\n", orDefault(filter.DateFrom, "All time"), orDefault(filter.DateTo, "Present"))
	}

	b.WriteString("\n=== SUMMARY ===\n")
	fmt.Fprintf(&b, "Total Expenses: %s\n", amount(stats.TotalExpenses))
	fmt.Fprintf(&b, "Total Invoices: %s\n", amount(totalInvoices))
	fmt.Fprintf(&b, "Expense Count: %d\n", stats.ExpenseCount)
	fmt.Fprintf(&b, "Invoice Count: %d\n", len(invoices))
	fmt.Fprintf(&b, "Average Expense: %s\n", amount(stats.AverageExpense))

	if len(stats.ByCategory) > 0 {
		b.WriteString("\n=== BY CATEGORY ===\n")
		for _, c := range analytics.Rank(stats.ByCategory, 0) {
			fmt.Fprintf(&b, "%s: %s\n", c.Name, amount(c.Amount))
		}
	}
	if top := analytics.Rank(byVendor, reportTopVendors); len(top) > 0 {
		b.WriteString("\n=== TOP VENDORS ===\n")
		for i, v := range top {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, v.Name, amount(v.Amount))
		}
	}

	fmt.Fprintf(&b, "\n=== INSIGHTS ===\n%s\n", insights)

	if format == "text" && len(expenses) > 0 {
		fmt.Fprintf(&b, "\n=== RECENT EXPENSES (Last %d) ===\n", reportRecent)
		for _, e := range expenses[:min(len(expenses), reportRecent)] {
			fmt.Fprintf(&b, "%s - %s: %s (%s)\n", e.Date, orDefault(e.Vendor, "Unknown"),
				amount(e.Amount), orDefault(e.Category, "uncategorized"))
		}
	}
	return b.String(), nil
}

func (r *Registry) exportCSV(ctx context.Context, args map[string]any) (string, error) {
	filter, err := r.periodFilter(args)
	if err != nil {
		return "", err
	}
	expenses, err := r.deps.DB.ListExpenses(ctx, filter)
	if err != nil {
		return "", err
	}
	if len(expenses) == 0 {
		return "No expenses found for the specified period.", nil
	}
	return fmt.Sprintf("CSV Export (%d expenses):\n\n%s\n\nYou can copy this data and save it as a .csv file.",
		len(expenses), FormatCSV(expenses)), nil
}

// FormatCSV renders expenses as CSV. Commas and line breaks in vendor and
// description are replaced rather than quoted, so every record is exactly
// one line with six fields.
func FormatCSV(expenses []db.Expense) string {
	var b strings.Builder
	b.WriteString(csvHeader)
	for _, e := range expenses {
		b.WriteByte('\n')
		b.WriteString(strings.Join([]string{
			e.Date,
			strconv.FormatFloat(e.Amount, 'f', -1, 64),
			orDefault(e.Currency, "INR"),
			csvSanitizer.Replace(e.Category),
			csvSanitizer.Replace(e.Vendor),
			csvSanitizer.Replace(e.Description),
		}, ","))
	}
	return b.String()
}
