// Package analytics aggregates a user's expenses and asks the model for a
// short set of insights grounded in those numbers.
package analytics

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/chris/copilot/internal/db"
	"github.com/chris/copilot/internal/llm"
)

// InsightsUnavailable is returned in place of insights when the model fails.
const InsightsUnavailable = "Unable to generate insights at this time."

type Stats struct {
	TotalExpenses  float64            `json:"totalExpenses"`
	ExpenseCount   int                `json:"expenseCount"`
	AverageExpense float64            `json:"averageExpense"`
	ByCategory     map[string]float64 `json:"byCategory"`
	ByVendor       map[string]float64 `json:"byVendor"`
}

type MonthlyPoint struct {
	Month  string  `json:"month"` // YYYY-MM
	Amount float64 `json:"amount"`
}

type Result struct {
	Stats    Stats
	Monthly  []MonthlyPoint
	Insights string
}

// Ranked is one entry of a map sorted by amount.
type Ranked struct {
	Name   string
	Amount float64
}

type Service struct {
	db     *db.DB
	client llm.Client
	logger *slog.Logger
}

func NewService(database *db.DB, client llm.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: database, client: client, logger: logger}
}

// Generate computes stats and a monthly trend over all of userID's expenses
// and attaches model insights for request.
func (s *Service) Generate(ctx context.Context, userID, request string) (*Result, error) {
	expenses, err := s.db.ListExpenses(ctx, db.ExpenseFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("loading expenses: %w", err)
	}
	stats := Compute(expenses)
	return &Result{
		Stats:    stats,
		Monthly:  MonthlyTrend(expenses),
		Insights: s.Insights(ctx, stats, request),
	}, nil
}

// Insights asks the model for 3-4 bullet insights. It never fails; model
// errors produce InsightsUnavailable.
func (s *Service) Insights(ctx context.Context, stats Stats, request string) string {
	data, _ := json.MarshalIndent(stats, "", "  ")
	prompt := fmt.Sprintf(`Based on these expense statistics, provide 3-4 actionable insights:

%s

User asked: %q

Provide insights that are:
1. Specific and data-driven
2. Actionable
3. Relevant to small business owners
4. Easy to understand

Format as bullet points.`, data, request)

	out, err := s.client.Complete(ctx, prompt, llm.CompleteOptions{Temperature: llm.TemperatureCreative})
	if err != nil {
		s.logger.Warn("insight generation failed", "error", err)
		return InsightsUnavailable
	}
	return out
}

// Compute aggregates expenses. Expenses without a category count as
// "uncategorized"; expenses without a vendor are left out of ByVendor.
func Compute(expenses []db.Expense) Stats {
	st := Stats{ByCategory: map[string]float64{}, ByVendor: map[string]float64{}}
	for _, e := range expenses {
		st.TotalExpenses += e.Amount
		cat := e.Category
		if cat == "" {
			cat = "uncategorized"
		}
		st.ByCategory[cat] += e.Amount
		if e.Vendor != "" {
			st.ByVendor[e.Vendor] += e.Amount
		}
	}
	st.ExpenseCount = len(expenses)
	if st.ExpenseCount > 0 {
		st.AverageExpense = st.TotalExpenses / float64(st.ExpenseCount)
	}
	return st
}

// MonthlyTrend sums expenses per calendar month, oldest month first.
func MonthlyTrend(expenses []db.Expense) []MonthlyPoint {
	byMonth := map[string]float64{}
	for _, e := range expenses {
		if len(e.Date) < 7 {
			continue
		}
		byMonth[e.Date[:7]] += e.Amount
	}
	out := make([]MonthlyPoint, 0, len(byMonth))
	for m, amt := range byMonth {
		out = append(out, MonthlyPoint{Month: m, Amount: amt})
	}
	slices.SortFunc(out, func(a, b MonthlyPoint) int { return cmp.Compare(a.Month, b.Month) })
	return out
}

// Rank sorts m by amount, largest first, ties by name. n <= 0 keeps all.
func Rank(m map[string]float64, n int) []Ranked {
	out := make([]Ranked, 0, len(m))
	for k, v := range m {
		out = append(out, Ranked{Name: k, Amount: v})
	}
	slices.SortFunc(out, func(a, b Ranked) int {
		if c := cmp.Compare(b.Amount, a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
