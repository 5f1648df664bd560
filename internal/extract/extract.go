// Package extract pulls structured invoice fields out of a document with a
// multimodal model call.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/chris/copilot/internal/db"
	"github.com/chris/copilot/internal/llm"
)

// Invoice holds whatever the model found. Missing fields stay zero.
type Invoice struct {
	VendorName    string
	VendorEmail   string
	VendorPhone   string
	InvoiceNumber string
	InvoiceDate   string // YYYY-MM-DD
	DueDate       string // YYYY-MM-DD
	TotalAmount   float64
	Currency      string
	TaxAmount     float64
	Subtotal      float64
	Items         []db.InvoiceItem
}

// Document is a file to extract from.
type Document struct {
	Name     string
	MIMEType string
	Data     []byte
}

type Extractor interface {
	Extract(ctx context.Context, doc Document) (*Invoice, error)
}

const prompt = `Extract invoice information from this document and return a JSON object.

Analyze the document carefully, including any tables, charts, or visual elements. Extract these fields:

- vendorName: Name of the vendor/company issuing the invoice
- vendorEmail: Email address of the vendor
- vendorPhone: Phone number of the vendor
- invoiceNumber: Invoice number or ID
- invoiceDate: Date of invoice in ISO format (YYYY-MM-DD)
- dueDate: Due date in ISO format (YYYY-MM-DD)
- totalAmount: Total amount as a number
- currency: Currency code (e.g., USD, INR, EUR)
- taxAmount: Tax amount as a number
- subtotal: Subtotal amount as a number
- items: Array of line items, each with description, quantity, unitPrice, and amount fields

Return ONLY valid JSON with these exact field names. If a field is not found, use null.`

// LLMExtractor sends the document to the model as an attachment.
type LLMExtractor struct {
	client llm.Client
	logger *slog.Logger
}

func NewLLMExtractor(client llm.Client, logger *slog.Logger) *LLMExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMExtractor{client: client, logger: logger}
}

func (e *LLMExtractor) Extract(ctx context.Context, doc Document) (*Invoice, error) {
	if len(doc.Data) == 0 {
		return nil, errors.New("no file provided for processing")
	}
	mime := doc.MIMEType
	if FileType(mime) == "pdf" {
		mime = "application/pdf"
	} else if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}

	e.logger.Debug("invoice extraction request", "file", doc.Name, "size", len(doc.Data), "mime", mime)
	out, err := e.client.Complete(ctx, prompt, llm.CompleteOptions{
		Temperature: llm.TemperatureStrict,
		Attachments: []llm.Attachment{{Name: doc.Name, MIMEType: mime, Data: doc.Data}},
	})
	if err != nil {
		return nil, fmt.Errorf("extracting invoice: %w", err)
	}
	e.logger.Debug("invoice extraction response", "length", len(out))

	inv, err := Parse(out)
	if err != nil {
		e.logger.Error("failed to parse extraction output", "error", err, "output", out)
		return nil, err
	}
	return inv, nil
}

// Parse reads the model's JSON answer, tolerating prose or code fences
// around it and numbers sent as strings.
func Parse(output string) (*Invoice, error) {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end < start || !gjson.Valid(output[start:end+1]) {
		return nil, errors.New("failed to parse AI response as JSON")
	}
	doc := gjson.Parse(output[start : end+1])

	inv := &Invoice{
		VendorName:    str(doc.Get("vendorName")),
		VendorEmail:   str(doc.Get("vendorEmail")),
		VendorPhone:   str(doc.Get("vendorPhone")),
		InvoiceNumber: str(doc.Get("invoiceNumber")),
		InvoiceDate:   date(doc.Get("invoiceDate")),
		DueDate:       date(doc.Get("dueDate")),
		TotalAmount:   num(doc.Get("totalAmount")),
		Currency:      strings.ToUpper(str(doc.Get("currency"))),
		TaxAmount:     num(doc.Get("taxAmount")),
		Subtotal:      num(doc.Get("subtotal")),
	}
	for _, it := range doc.Get("items").Array() {
		inv.Items = append(inv.Items, db.InvoiceItem{
			Description: str(it.Get("description")),
			Quantity:    num(it.Get("quantity")),
			UnitPrice:   num(it.Get("unitPrice")),
			Amount:      num(it.Get("amount")),
		})
	}
	return inv, nil
}

// FileType maps a MIME type onto the invoice file_type column.
func FileType(mime string) string {
	if strings.Contains(mime, "pdf") {
		return "pdf"
	}
	return "image"
}

func str(v gjson.Result) string {
	if v.Type == gjson.Null || !v.Exists() {
		return ""
	}
	return strings.TrimSpace(v.String())
}

func num(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		return v.Float()
	case gjson.String:
		s := strings.NewReplacer(",", "", " ", "").Replace(v.String())
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func date(v gjson.Result) string {
	s := str(v)
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}
