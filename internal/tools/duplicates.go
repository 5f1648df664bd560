package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/chris/copilot/internal/db"
	"github.com/chris/copilot/internal/llm"
)

const (
	defaultDuplicateThreshold = 0.85
	// Pairs scoring at least this much, but under the threshold, go to the
	// model for a second opinion.
	judgeFloor = 0.5
)

// Duplicate is a pair of invoices judged similar enough to report.
type Duplicate struct {
	A, B       db.Invoice
	Similarity float64
	Reasons    []string
}

// Score rates how likely two invoices are the same bill. Weights: same
// invoice number 0.4, same vendor 0.2, amounts within 1% 0.3, dates under
// seven days apart 0.1.
func Score(a, b db.Invoice) (float64, []string) {
	var score float64
	var reasons []string

	if a.InvoiceNumber != "" && a.InvoiceNumber == b.InvoiceNumber {
		score += 0.4
		reasons = append(reasons, "same invoice number")
	}
	if a.VendorName != "" && b.VendorName != "" && strings.EqualFold(a.VendorName, b.VendorName) {
		score += 0.2
		reasons = append(reasons, "same vendor")
	}
	if a.TotalAmount != 0 && b.TotalAmount != 0 {
		mean := (a.TotalAmount + b.TotalAmount) / 2
		if math.Abs(a.TotalAmount-b.TotalAmount)/math.Abs(mean) < 0.01 {
			score += 0.3
			reasons = append(reasons, "same amount")
		}
	}
	if a.InvoiceDate != "" && b.InvoiceDate != "" {
		ta, errA := time.Parse(time.DateOnly, a.InvoiceDate)
		tb, errB := time.Parse(time.DateOnly, b.InvoiceDate)
		if errA == nil && errB == nil {
			if d := ta.Sub(tb); d < 7*24*time.Hour && d > -7*24*time.Hour {
				score += 0.1
				reasons = append(reasons, "similar date")
			}
		}
	}
	// Summing tenths drifts; keep two decimals.
	return math.Round(score*100) / 100, reasons
}

func (r *Registry) detectDuplicates(ctx context.Context, args map[string]any) (string, error) {
	threshold := defaultDuplicateThreshold
	if v, ok := getFloat(args, "threshold"); ok && v > 0 && v <= 1 {
		threshold = v
	}

	invoices, err := r.deps.DB.ListInvoices(ctx, r.userID, db.InvoiceFilter{ProcessedOnly: true})
	if err != nil {
		return "", err
	}
	if len(invoices) < 2 {
		return "Not enough invoices to check for duplicates.", nil
	}

	// Quadratic in invoice count; per-user invoice sets are small.
	var dups []Duplicate
	for i := 0; i < len(invoices); i++ {
		for j := i + 1; j < len(invoices); j++ {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			a, b := invoices[i], invoices[j]
			score, reasons := Score(a, b)
			if score >= judgeFloor && score < threshold {
				if sim, reason, ok := r.judgePair(ctx, a, b); ok && sim >= threshold {
					score = sim
					reasons = append(reasons, "AI analysis: "+orDefault(reason, "similar invoices"))
				}
			}
			if score >= threshold {
				dups = append(dups, Duplicate{A: a, B: b, Similarity: score, Reasons: reasons})
			}
		}
	}

	if len(dups) == 0 {
		return "No duplicate invoices detected.", nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d potential %s:\n\n", len(dups), plural(len(dups), "duplicate", "duplicates"))
	for i, d := range dups {
		fmt.Fprintf(&sb, "%d. Similarity: %.0f%%\n", i+1, d.Similarity*100)
		fmt.Fprintf(&sb, "   Invoice 1: %s - %s - %s\n", orDefault(d.A.VendorName, "Unknown"), orNA(d.A.InvoiceNumber), money(d.A.Currency, d.A.TotalAmount))
		fmt.Fprintf(&sb, "   Invoice 2: %s - %s - %s\n", orDefault(d.B.VendorName, "Unknown"), orNA(d.B.InvoiceNumber), money(d.B.Currency, d.B.TotalAmount))
		fmt.Fprintf(&sb, "   Reason: %s\n\n", strings.Join(d.Reasons, ", "))
	}
	return sb.String(), nil
}

// judgePair asks the model whether two borderline invoices are the same
// bill. Any failure means "not a duplicate"; it is logged at debug level.
func (r *Registry) judgePair(ctx context.Context, a, b db.Invoice) (float64, string, bool) {
	prompt := fmt.Sprintf(`Compare these two invoices and determine if they are duplicates or very similar. Return a JSON object with "similarity" (0-1) and "reason" (brief explanation).

Invoice 1:
%s

Invoice 2:
%s

Return ONLY valid JSON: {"similarity": 0.0-1.0, "reason": "explanation"}`, describeForJudge(a), describeForJudge(b))

	out, err := r.deps.Client.Complete(ctx, prompt, llm.CompleteOptions{Temperature: llm.TemperatureStrict})
	if err == nil {
		start, end := strings.Index(out, "{"), strings.LastIndex(out, "}")
		if start < 0 || end < start || !gjson.Valid(out[start:end+1]) {
			err = errors.New("no JSON object in judge output")
		} else {
			res := gjson.Parse(out[start : end+1])
			if sim := res.Get("similarity"); sim.Type == gjson.Number {
				return sim.Float(), res.Get("reason").String(), true
			}
			err = errors.New("judge output has no numeric similarity")
		}
	}
	r.logger.Debug("duplicate judge failed", "a", a.ID, "b", b.ID, "error", err)
	return 0, "", false
}

func describeForJudge(inv db.Invoice) string {
	amt := "N/A"
	if inv.TotalAmount != 0 {
		amt = amount(inv.TotalAmount)
	}
	return fmt.Sprintf("- Vendor: %s\n- Invoice Number: %s\n- Amount: %s\n- Date: %s",
		orNA(inv.VendorName), orNA(inv.InvoiceNumber), amt, orNA(inv.InvoiceDate))
}
