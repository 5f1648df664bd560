package db

// Invoice statuses.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusOverdue = "overdue"
)

// Invoice categories accepted by the invoices table.
var InvoiceCategories = []string{"utilities", "software", "office", "marketing", "other"}

// InvoiceStatuses lists the valid invoice statuses.
var InvoiceStatuses = []string{StatusPending, StatusPaid, StatusOverdue}

type InvoiceItem struct {
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
	UnitPrice   float64 `json:"unit_price,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
}

type Invoice struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	FileURL       string        `json:"file_url,omitempty"`
	FileName      string        `json:"file_name,omitempty"`
	FileType      string        `json:"file_type"`
	VendorName    string        `json:"vendor_name,omitempty"`
	VendorEmail   string        `json:"vendor_email,omitempty"`
	VendorPhone   string        `json:"vendor_phone,omitempty"`
	InvoiceNumber string        `json:"invoice_number,omitempty"`
	InvoiceDate   string        `json:"invoice_date,omitempty"` // YYYY-MM-DD
	DueDate       string        `json:"due_date,omitempty"`     // YYYY-MM-DD
	TotalAmount   float64       `json:"total_amount"`
	Currency      string        `json:"currency"`
	TaxAmount     float64       `json:"tax_amount,omitempty"`
	Subtotal      float64       `json:"subtotal,omitempty"`
	Items         []InvoiceItem `json:"items,omitempty"`
	Category      string        `json:"category"`
	Status        string        `json:"status"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	IsProcessed   bool          `json:"is_processed"`
	CreatedAt     string        `json:"created_at"`
	UpdatedAt     string        `json:"updated_at"`
}

type Expense struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	InvoiceID   string  `json:"invoice_id,omitempty"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Category    string  `json:"category"`
	Vendor      string  `json:"vendor,omitempty"`
	Description string  `json:"description,omitempty"`
	Date        string  `json:"date"` // YYYY-MM-DD
	CreatedAt   string  `json:"created_at"`
}

type Session struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Title         string `json:"title"`
	LastMessageAt string `json:"last_message_at"`
	CreatedAt     string `json:"created_at"`
}

// Turn is one persisted conversation message.
type Turn struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"` // user, assistant
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Memory is the record row behind a vector-indexed memory.
type Memory struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Key         string `json:"key,omitempty"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Text        string `json:"text"`
	CreatedAt   string `json:"created_at"`
}
