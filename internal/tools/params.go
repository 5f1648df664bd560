package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Param extraction helpers. Models send numbers as float64 in JSON, some
// providers as json.Number or strings. Wrong-typed values count as absent.

func getInt(params map[string]any, key string) (int64, bool) {
	f, ok := getFloat(params, key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func getFloat(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func getString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

func requireString(params map[string]any, key string) (string, error) {
	s, ok := getString(params, key)
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return s, nil
}

// getDate reads an optional YYYY-MM-DD argument. A longer ISO timestamp is
// cut to its date.
func getDate(params map[string]any, key string) (string, error) {
	s, ok := getString(params, key)
	if !ok {
		return "", nil
	}
	if len(s) > 10 {
		s = s[:10]
	}
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return "", fmt.Errorf("invalid %s %q, expected YYYY-MM-DD", key, s)
	}
	return s, nil
}

// Schema helpers.

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func enum(desc string, values ...string) map[string]any {
	p := prop("string", desc)
	p["enum"] = values
	return p
}

func obj(properties map[string]any) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

func objReq(properties map[string]any, required ...string) map[string]any {
	s := obj(properties)
	s["required"] = required
	return s
}

// Formatting helpers shared by tool outputs.

func amount(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}

func money(currency string, v float64) string {
	if currency == "" {
		currency = "INR"
	}
	return currency + " " + amount(v)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
