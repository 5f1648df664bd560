package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chris/copilot/internal/db"
)

// queryPreview is how many matches query_expenses lists.
const queryPreview = 10

func (r *Registry) registerExpenseTools() {
	r.Register(&Tool{
		Name:        "query_expenses",
		Description: `Query and search expenses based on natural language criteria. Use this when users ask about expenses, spending, costs, or want to find specific expenses by date, vendor, category, or amount. Examples: "Show March expenses", "Find expenses over 1000", "What did I spend on software?"`,
		Parameters: objReq(map[string]any{
			"query": prop("string", "The natural language query describing what expenses to find"),
		}, "query"),
		Handler: r.queryExpenses,
	})
	r.Register(&Tool{
		Name:        "generate_analytics",
		Description: `Generate expense analytics, insights, statistics, or trends. Use this when users ask for analytics, insights, statistics, trends, or want to understand their spending patterns. Examples: "Show me analytics", "What are my spending trends?"`,
		Parameters: objReq(map[string]any{
			"request": prop("string", "The user's request for analytics or insights"),
		}, "request"),
		Handler: r.generateAnalytics,
	})
	r.Register(&Tool{
		Name:        "update_expense_category",
		Description: `Update the category of an expense. Use this when users want to change expense categories or recategorize expenses. Examples: "Change expense category to software", "Recategorize expense 123 as marketing"`,
		Parameters: objReq(map[string]any{
			"expenseId": prop("string", "Expense ID"),
			"category":  prop("string", "New category for the expense (e.g., utilities, software, office, marketing, other)"),
		}, "expenseId", "category"),
		Handler: r.updateExpenseCategory,
	})
}

func (r *Registry) queryExpenses(ctx context.Context, args map[string]any) (string, error) {
	text, err := requireString(args, "query")
	if err != nil {
		return "", err
	}
	filter, err := r.deps.Translator.Translate(ctx, r.userID, text)
	if err != nil {
		return "", err
	}
	filter.UserID = r.userID

	results, err := r.deps.DB.ListExpenses(ctx, filter)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "I couldn't find any expenses matching your query.", nil
	}

	var total float64
	currency := results[0].Currency
	for _, e := range results {
		total += e.Amount
		if e.Currency != currency {
			currency = ""
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s:\n\n", len(results), plural(len(results), "expense", "expenses"))
	for _, e := range results[:min(len(results), queryPreview)] {
		fmt.Fprintf(&b, "• %s - %s (%s) on %s\n", orDefault(e.Vendor, "Unknown vendor"),
			money(e.Currency, e.Amount), orDefault(e.Category, "uncategorized"), orNA(e.Date))
	}
	if currency != "" {
		fmt.Fprintf(&b, "\nTotal: %s", money(currency, total))
	} else {
		fmt.Fprintf(&b, "\nTotal: %s (mixed currencies)", amount(total))
	}
	if len(results) > queryPreview {
		fmt.Fprintf(&b, "\n\n(Showing first %d of %d results)", queryPreview, len(results))
	}
	return b.String(), nil
}

func (r *Registry) generateAnalytics(ctx context.Context, args map[string]any) (string, error) {
	request, _ := getString(args, "request")
	res, err := r.deps.Analytics.Generate(ctx, r.userID, request)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Analytics Results:\n\n")
	fmt.Fprintf(&b, "Total Expenses: %s\n", amount(res.Stats.TotalExpenses))
	fmt.Fprintf(&b, "Expense Count: %d\n", res.Stats.ExpenseCount)
	fmt.Fprintf(&b, "Average Expense: %s\n", amount(res.Stats.AverageExpense))
	if len(res.Monthly) > 0 {
		b.WriteString("\nMonthly Trend:\n")
		for _, m := range res.Monthly {
			fmt.Fprintf(&b, "%s: %s\n", m.Month, amount(m.Amount))
		}
	}
	fmt.Fprintf(&b, "\nInsights:\n%s", res.Insights)
	return b.String(), nil
}

func (r *Registry) updateExpenseCategory(ctx context.Context, args map[string]any) (string, error) {
	id, err := requireString(args, "expenseId")
	if err != nil {
		return "", err
	}
	category, err := requireString(args, "category")
	if err != nil {
		return "", err
	}
	category = strings.ToLower(category)

	e, err := r.deps.DB.GetExpense(ctx, r.userID, id)
	if errors.Is(err, db.ErrNotFound) {
		return "Expense not found with ID: " + id, nil
	}
	if err != nil {
		return "", err
	}
	if err := r.deps.DB.UpdateExpense(ctx, r.userID, id, map[string]any{"category": category}); err != nil {
		return "", err
	}

	return fmt.Sprintf("Expense category updated successfully!\n\nExpense ID: %s\nVendor: %s\nAmount: %s\nNew Category: %s",
		e.ID, orNA(e.Vendor), money(e.Currency, e.Amount), category), nil
}
