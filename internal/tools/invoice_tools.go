package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/chris/copilot/internal/db"
	"github.com/chris/copilot/internal/extract"
	"github.com/chris/copilot/internal/files"
)

const defaultInvoiceLimit = 10

func (r *Registry) registerInvoiceTools() {
	r.Register(&Tool{
		Name:        "get_invoices",
		Description: `Get list of invoices. Use this when users ask to see invoices, list invoices, or view invoice information. Can filter by status or category, or search by vendor/invoice number.`,
		Parameters: obj(map[string]any{
			"status":   enum("Filter by status: pending, paid, or overdue", db.InvoiceStatuses...),
			"category": enum("Filter by category: utilities, software, office, marketing, other", db.InvoiceCategories...),
			"search":   prop("string", "Search by vendor name or invoice number"),
			"limit":    prop("number", "Maximum number of invoices to return (default: 10)"),
		}),
		Handler: r.getInvoices,
	})
	r.Register(&Tool{
		Name:        "get_invoice_details",
		Description: `Get detailed information about a specific invoice by ID or invoice number. Use this when users ask for details about a specific invoice.`,
		Parameters: objReq(map[string]any{
			"identifier": prop("string", "Invoice ID or invoice number"),
		}, "identifier"),
		Handler: r.getInvoiceDetails,
	})
	r.Register(&Tool{
		Name:        "detect_duplicate_invoices",
		Description: `Detect potential duplicate invoices using AI-powered similarity analysis. Use this when users ask about duplicates, similar invoices, or want to check for duplicate payments.`,
		Parameters: obj(map[string]any{
			"threshold": prop("number", "Similarity threshold (0-1, default: 0.85)"),
		}),
		Handler: r.detectDuplicates,
	})
	r.Register(&Tool{
		Name:        "process_invoice_from_text",
		Description: `Process an uploaded invoice file by URL. Use this when users upload invoice documents or want to extract invoice information from a file. This will create a new invoice record in the system.`,
		Parameters: obj(map[string]any{
			"invoiceText": prop("string", "The text content of the invoice to process"),
			"fileUrl":     prop("string", "URL of an uploaded invoice file to process"),
			"fileName":    prop("string", "Name of the invoice file"),
		}),
		Handler: r.processInvoice,
	})
	r.Register(&Tool{
		Name:        "update_invoice_status",
		Description: `Update the status of an invoice. Use this when users want to mark invoices as paid, pending, or overdue. Can also update payment method and notes. Examples: "Mark invoice INV-001 as paid", "Set payment method for invoice 123"`,
		Parameters: objReq(map[string]any{
			"identifier":    prop("string", "Invoice ID or invoice number"),
			"status":        enum("New status for the invoice", db.InvoiceStatuses...),
			"paymentMethod": prop("string", `Payment method used (e.g., "Credit Card", "Bank Transfer", "Cash")`),
			"notes":         prop("string", "Additional notes about the payment or status change"),
		}, "identifier", "status"),
		Handler: r.updateInvoiceStatus,
	})
}

func (r *Registry) getInvoices(ctx context.Context, args map[string]any) (string, error) {
	f := db.InvoiceFilter{Limit: defaultInvoiceLimit}
	f.Status, _ = getString(args, "status")
	f.Category, _ = getString(args, "category")
	f.Search, _ = getString(args, "search")
	if n, ok := getInt(args, "limit"); ok && n > 0 {
		f.Limit = int(n)
	}

	invoices, err := r.deps.DB.ListInvoices(ctx, r.userID, f)
	if err != nil {
		return "", err
	}
	if len(invoices) == 0 {
		return "No invoices found matching your criteria.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s:\n\n", len(invoices), plural(len(invoices), "invoice", "invoices"))
	for _, inv := range invoices {
		fmt.Fprintf(&b, "• %s - %s (%s) - %s\n", orDefault(inv.VendorName, "Unknown"),
			money(inv.Currency, inv.TotalAmount), inv.Status, orNA(inv.InvoiceDate))
		if inv.InvoiceNumber != "" {
			fmt.Fprintf(&b, "  Invoice #: %s\n", inv.InvoiceNumber)
		}
		fmt.Fprintf(&b, "  ID: %s\n", inv.ID)
	}
	return b.String(), nil
}

// findInvoice resolves a UUID-shaped identifier by ID and anything else by
// invoice number, always within the acting user's invoices.
func (r *Registry) findInvoice(ctx context.Context, identifier string) (*db.Invoice, error) {
	if _, err := uuid.Parse(identifier); err == nil {
		return r.deps.DB.GetInvoice(ctx, r.userID, identifier)
	}
	return r.deps.DB.GetInvoiceByNumber(ctx, r.userID, identifier)
}

func (r *Registry) getInvoiceDetails(ctx context.Context, args map[string]any) (string, error) {
	identifier, err := requireString(args, "identifier")
	if err != nil {
		return "", err
	}
	inv, err := r.findInvoice(ctx, identifier)
	if errors.Is(err, db.ErrNotFound) {
		return "Invoice not found with identifier: " + identifier, nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Invoice Details:\n\n")
	fmt.Fprintf(&b, "ID: %s\n", inv.ID)
	fmt.Fprintf(&b, "Vendor: %s\n", orNA(inv.VendorName))
	if inv.VendorEmail != "" {
		fmt.Fprintf(&b, "Vendor Email: %s\n", inv.VendorEmail)
	}
	if inv.VendorPhone != "" {
		fmt.Fprintf(&b, "Vendor Phone: %s\n", inv.VendorPhone)
	}
	fmt.Fprintf(&b, "Invoice Number: %s\n", orNA(inv.InvoiceNumber))
	fmt.Fprintf(&b, "Date: %s\n", orNA(inv.InvoiceDate))
	fmt.Fprintf(&b, "Due Date: %s\n", orNA(inv.DueDate))
	fmt.Fprintf(&b, "Amount: %s\n", money(inv.Currency, inv.TotalAmount))
	if inv.TaxAmount != 0 {
		fmt.Fprintf(&b, "Tax: %s\n", money(inv.Currency, inv.TaxAmount))
	}
	fmt.Fprintf(&b, "Status: %s\n", inv.Status)
	fmt.Fprintf(&b, "Category: %s\n", inv.Category)
	if inv.PaymentMethod != "" {
		fmt.Fprintf(&b, "Payment Method: %s\n", inv.PaymentMethod)
	}
	if inv.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", inv.Notes)
	}
	if len(inv.Items) > 0 {
		b.WriteString("\nItems:\n")
		for i, it := range inv.Items {
			fmt.Fprintf(&b, "%d. %s - Qty: %s x %s = %s\n", i+1, orNA(it.Description),
				amount(it.Quantity), amount(it.UnitPrice), amount(it.Amount))
		}
	}
	return b.String(), nil
}

func (r *Registry) processInvoice(ctx context.Context, args map[string]any) (string, error) {
	_, hasText := getString(args, "invoiceText")
	fileURL, hasURL := getString(args, "fileUrl")
	fileName, _ := getString(args, "fileName")

	switch {
	case !hasText && !hasURL:
		return "", errors.New("either invoiceText or fileUrl must be provided")
	case !hasURL:
		return "", errors.New("invoice text processing requires file upload. Please upload the invoice file first, then ask me to process it")
	}

	f, err := r.deps.Fetcher.Fetch(ctx, r.userID, fileURL, fileName)
	var fe *files.FetchError
	if errors.As(err, &fe) {
		return "Error: " + fe.Error(), nil
	}
	if err != nil {
		return "", err
	}
	if fileName == "" {
		fileName = f.Name
	}
	if fileName == "" || fileName == "." || fileName == "/" {
		fileName = "invoice.pdf"
	}

	data, err := r.deps.Extractor.Extract(ctx, extract.Document{Name: fileName, MIMEType: f.ContentType, Data: f.Data})
	if err != nil {
		return "", fmt.Errorf("failed to process invoice: %w", err)
	}

	inv := &db.Invoice{
		ID:            uuid.NewString(),
		UserID:        r.userID,
		FileURL:       fileURL,
		FileName:      fileName,
		FileType:      extract.FileType(f.ContentType),
		VendorName:    data.VendorName,
		VendorEmail:   data.VendorEmail,
		VendorPhone:   data.VendorPhone,
		InvoiceNumber: data.InvoiceNumber,
		InvoiceDate:   data.InvoiceDate,
		DueDate:       data.DueDate,
		TotalAmount:   data.TotalAmount,
		Currency:      data.Currency,
		TaxAmount:     data.TaxAmount,
		Subtotal:      data.Subtotal,
		Items:         data.Items,
		Category:      "other",
		Status:        db.StatusPending,
		IsProcessed:   true,
	}
	if r.deps.Archive != nil {
		stored, err := r.deps.Archive.Put(ctx, r.userID, inv.ID, fileName, f.Data)
		if err != nil {
			return "", err
		}
		inv.FileURL = stored
	}
	if err := r.deps.DB.CreateInvoice(ctx, inv); err != nil {
		return "", err
	}

	if inv.TotalAmount != 0 {
		date := inv.InvoiceDate
		if date == "" {
			date = r.deps.Now().Format("2006-01-02")
		}
		err := r.deps.DB.CreateExpense(ctx, &db.Expense{
			UserID:      r.userID,
			InvoiceID:   inv.ID,
			Amount:      inv.TotalAmount,
			Currency:    inv.Currency,
			Category:    inv.Category,
			Vendor:      inv.VendorName,
			Description: "Invoice " + orNA(inv.InvoiceNumber),
			Date:        date,
		})
		if err != nil {
			return "", err
		}
	}
	r.logger.Info("invoice processed", "invoice", inv.ID, "vendor", inv.VendorName, "amount", inv.TotalAmount)

	var b strings.Builder
	b.WriteString("Invoice processed successfully!\n\n")
	fmt.Fprintf(&b, "Vendor: %s\n", orNA(inv.VendorName))
	fmt.Fprintf(&b, "Invoice Number: %s\n", orNA(inv.InvoiceNumber))
	fmt.Fprintf(&b, "Date: %s\n", orNA(inv.InvoiceDate))
	fmt.Fprintf(&b, "Amount: %s\n", money(inv.Currency, inv.TotalAmount))
	fmt.Fprintf(&b, "Status: %s\n", inv.Status)
	fmt.Fprintf(&b, "\nInvoice ID: %s", inv.ID)
	return b.String(), nil
}

func (r *Registry) updateInvoiceStatus(ctx context.Context, args map[string]any) (string, error) {
	identifier, err := requireString(args, "identifier")
	if err != nil {
		return "", err
	}
	status, err := requireString(args, "status")
	if err != nil {
		return "", err
	}
	status = strings.ToLower(status)
	if !slices.Contains(db.InvoiceStatuses, status) {
		return "", fmt.Errorf("invalid status %q, expected one of %s", status, strings.Join(db.InvoiceStatuses, ", "))
	}

	inv, err := r.findInvoice(ctx, identifier)
	if errors.Is(err, db.ErrNotFound) {
		return "Invoice not found with identifier: " + identifier, nil
	}
	if err != nil {
		return "", err
	}

	fields := map[string]any{"status": status}
	if v, ok := getString(args, "paymentMethod"); ok {
		fields["payment_method"] = v
	}
	if v, ok := getString(args, "notes"); ok {
		fields["notes"] = v
	}
	if err := r.deps.DB.UpdateInvoice(ctx, r.userID, inv.ID, fields); err != nil {
		return "", err
	}
	if inv, err = r.deps.DB.GetInvoice(ctx, r.userID, inv.ID); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Invoice status updated successfully!\n\n")
	fmt.Fprintf(&b, "Invoice: %s - %s\n", orDefault(inv.VendorName, "Unknown"), orNA(inv.InvoiceNumber))
	fmt.Fprintf(&b, "Status: %s\n", inv.Status)
	if inv.PaymentMethod != "" {
		fmt.Fprintf(&b, "Payment Method: %s\n", inv.PaymentMethod)
	}
	if inv.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", inv.Notes)
	}
	fmt.Fprintf(&b, "Amount: %s\n", money(inv.Currency, inv.TotalAmount))
	return b.String(), nil
}
