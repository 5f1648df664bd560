// Package query turns a natural-language expense question into a validated
// db.ExpenseFilter by asking the model for a Mongo-style JSON filter.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/chris/copilot/internal/db"
	"github.com/chris/copilot/internal/llm"
)

// QueryTranslationError reports model output that could not be turned into
// a filter, even after a retry.
type QueryTranslationError struct {
	Query  string
	Output string
	Err    error
}

func (e *QueryTranslationError) Error() string {
	return fmt.Sprintf("could not translate query %q: %v", e.Query, e.Err)
}

func (e *QueryTranslationError) Unwrap() error { return e.Err }

const maxAttempts = 2

type Translator struct {
	client llm.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewTranslator(client llm.Client, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{client: client, logger: logger, now: time.Now}
}

// Translate asks the model for a filter and validates it. The returned
// filter is always scoped to userID regardless of what the model produced.
// Malformed output is retried once before a *QueryTranslationError.
func (t *Translator) Translate(ctx context.Context, userID, text string) (db.ExpenseFilter, error) {
	prompt := t.prompt(text)
	var lastOut string
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := t.client.Complete(ctx, prompt, llm.CompleteOptions{Temperature: llm.TemperatureChat})
		if err != nil {
			return db.ExpenseFilter{}, fmt.Errorf("translating query: %w", err)
		}
		f, err := ParseFilter(out, userID)
		if err == nil {
			return f, nil
		}
		t.logger.Debug("malformed query filter", "attempt", attempt, "output", out, "error", err)
		lastOut, lastErr = out, err
	}
	return db.ExpenseFilter{}, &QueryTranslationError{Query: text, Output: lastOut, Err: lastErr}
}

func (t *Translator) prompt(text string) string {
	return fmt.Sprintf(`Convert this natural language query to MongoDB-style query filters:

%q

Today is %s.

Available fields: amount, currency, category, vendor, description, date
Categories: utilities, software, office, marketing, other
Dates are YYYY-MM-DD strings.

Examples:
- "Show March expenses" -> {"date": {"$gte": "2024-03-01", "$lte": "2024-03-31"}}
- "Expenses over 1000" -> {"amount": {"$gt": 1000}}
- "Software category" -> {"category": "software"}
- "Anything from Acme" -> {"vendor": {"$regex": "acme", "$options": "i"}}

Return ONLY valid JSON.`, text, t.now().Format(time.DateOnly))
}

// ParseFilter validates model output and converts it into an expense filter
// owned by userID.
func ParseFilter(output, userID string) (db.ExpenseFilter, error) {
	raw := extractObject(output)
	if raw == "" || !gjson.Valid(raw) {
		return db.ExpenseFilter{}, errors.New("output is not a JSON object")
	}
	raw, err := sjson.Set(raw, "userId", userID)
	if err != nil {
		return db.ExpenseFilter{}, fmt.Errorf("scoping filter: %w", err)
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return db.ExpenseFilter{}, errors.New("output is not a JSON object")
	}

	f := db.ExpenseFilter{UserID: doc.Get("userId").String()}

	if amt := doc.Get("amount"); amt.Exists() {
		switch {
		case amt.Type == gjson.Number:
			v := amt.Float()
			f.AmountGTE, f.AmountLTE = &v, &v
		case amt.IsObject():
			for op, dst := range map[string]**float64{"$gt": &f.AmountGT, "$gte": &f.AmountGTE, "$lt": &f.AmountLT, "$lte": &f.AmountLTE} {
				if v := amt.Get(gjson.Escape(op)); v.Exists() {
					n, ok := number(v)
					if !ok {
						return db.ExpenseFilter{}, fmt.Errorf("amount %s is not a number", op)
					}
					*dst = &n
				}
			}
		default:
			return db.ExpenseFilter{}, errors.New("amount must be a number or a range")
		}
	}

	if cur := doc.Get("currency"); cur.Type == gjson.String {
		f.Currency = strings.ToUpper(cur.String())
	}

	if cat := doc.Get("category"); cat.Exists() {
		switch {
		case cat.Type == gjson.String:
			f.Categories = []string{strings.ToLower(cat.String())}
		case cat.IsObject() && cat.Get(gjson.Escape("$in")).IsArray():
			for _, c := range cat.Get(gjson.Escape("$in")).Array() {
				f.Categories = append(f.Categories, strings.ToLower(c.String()))
			}
		default:
			return db.ExpenseFilter{}, errors.New("category must be a string or $in list")
		}
	}

	f.Vendor = textMatch(doc.Get("vendor"))
	f.Description = textMatch(doc.Get("description"))

	if date := doc.Get("date"); date.Exists() {
		if !date.IsObject() {
			d, err := parseDate(date.String())
			if err != nil {
				return db.ExpenseFilter{}, err
			}
			f.DateFrom, f.DateTo = d.Format(time.DateOnly), d.Format(time.DateOnly)
		} else {
			bounds := []struct {
				op    string
				shift int
				dst   *string
			}{
				{"$gte", 0, &f.DateFrom},
				{"$gt", 1, &f.DateFrom},
				{"$lte", 0, &f.DateTo},
				{"$lt", -1, &f.DateTo},
			}
			for _, b := range bounds {
				v := date.Get(gjson.Escape(b.op))
				if !v.Exists() {
					continue
				}
				d, err := parseDate(v.String())
				if err != nil {
					return db.ExpenseFilter{}, err
				}
				*b.dst = d.AddDate(0, 0, b.shift).Format(time.DateOnly)
			}
		}
	}
	return f, nil
}

// extractObject returns the outermost {...} span of s, dropping code fences
// and chatter around it.
func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func number(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), true
	case gjson.String:
		n := gjson.Parse(v.String())
		if n.Type == gjson.Number {
			return n.Float(), true
		}
	}
	return 0, false
}

// textMatch reduces a string or {$regex} match to the plain substring used
// for a case-insensitive LIKE.
func textMatch(v gjson.Result) string {
	var s string
	switch {
	case v.Type == gjson.String:
		s = v.String()
	case v.IsObject():
		s = v.Get(gjson.Escape("$regex")).String()
	default:
		return ""
	}
	s = strings.TrimPrefix(s, "^")
	s = strings.TrimSuffix(s, "$")
	s = strings.ReplaceAll(s, ".*", "")
	s = strings.ReplaceAll(s, `\`, "")
	return strings.TrimSpace(s)
}

func parseDate(s string) (time.Time, error) {
	if len(s) >= 10 {
		s = s[:10]
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}
