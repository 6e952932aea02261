package domain

import (
	"encoding/json"
	"time"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type SessionStatus string

const (
	SessionActive      SessionStatus = "active"
	SessionInterrupted SessionStatus = "interrupted"
	SessionExpired     SessionStatus = "expired"
	SessionError       SessionStatus = "error"
	SessionMerged      SessionStatus = "merged"
	SessionArchived    SessionStatus = "archived"
	SessionCompleted   SessionStatus = "completed"
)

// Recoverable reports whether a session in this status may be reactivated.
func (s SessionStatus) Recoverable() bool {
	return s == SessionInterrupted || s == SessionExpired || s == SessionError
}

// Terminal statuses never transition again.
func (s SessionStatus) Terminal() bool {
	return s == SessionMerged || s == SessionArchived || s == SessionCompleted
}

type SessionType string

const (
	SessionTypeRegular SessionType = "regular"
	SessionTypeSplit   SessionType = "split"
)

const (
	PaymentCash  = "cash"
	PaymentCard  = "card"
	PaymentMixed = "mixed"
)

const (
	ScanSell    = "sell"
	ScanRestock = "restock"
)

type Actor struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	ClientIP string `json:"client_ip,omitempty"`
}

type UserAccount struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Password  string    `db:"password_hash" json:"-"`
	Role      string    `db:"role" json:"role"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Product struct {
	ID                 int64     `db:"id" json:"id"`
	Barcode            string    `db:"barcode" json:"barcode,omitempty"`
	Name               string    `db:"name" json:"name"`
	PriceCents         int64     `db:"price_cents" json:"price_cents"`
	DepositCents       int64     `db:"deposit_cents" json:"deposit_cents"`
	VATRate            float64   `db:"vat_rate" json:"vat_rate"`
	PurchasePriceCents int64     `db:"purchase_price_cents" json:"purchase_price_cents"`
	Stock              int       `db:"stock" json:"stock"`
	MinStock           int       `db:"min_stock" json:"min_stock"`
	Category           string    `db:"category" json:"category,omitempty"`
	Active             bool      `db:"active" json:"active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// LowStock reports whether stock has fallen to or below the minimum threshold.
func (p Product) LowStock() bool {
	return p.Stock <= p.MinStock
}

type SalesSession struct {
	ID                   int64         `db:"id" json:"id"`
	UserID               int64         `db:"user_id" json:"user_id"`
	Status               SessionStatus `db:"status" json:"status"`
	Type                 SessionType   `db:"session_type" json:"session_type"`
	StartedAt            time.Time     `db:"started_at" json:"started_at"`
	EndedAt              *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
	LastActivity         time.Time     `db:"last_activity" json:"last_activity"`
	LockedAt             *time.Time    `db:"locked_at" json:"locked_at,omitempty"`
	ItemCount            int           `db:"item_count" json:"item_count"`
	TotalNetCents        int64         `db:"total_net_cents" json:"total_net_cents"`
	TotalVATCents        int64         `db:"total_vat_cents" json:"total_vat_cents"`
	TotalDepositCents    int64         `db:"total_deposit_cents" json:"total_deposit_cents"`
	TotalGrossCents      int64         `db:"total_gross_cents" json:"total_gross_cents"`
	PaymentMethod        string        `db:"payment_method" json:"payment_method,omitempty"`
	PaymentReceivedCents int64         `db:"payment_received_cents" json:"payment_received_cents"`
	ChangeCents          int64         `db:"change_cents" json:"change_cents"`
	Notes                string        `db:"notes" json:"notes,omitempty"`
	ReceiptPath          string        `db:"receipt_path" json:"receipt_path,omitempty"`
	MergedInto           *int64        `db:"merged_into" json:"merged_into,omitempty"`
	SplitFrom            *int64        `db:"split_from" json:"split_from,omitempty"`
	TransferredFrom      *int64        `db:"transferred_from" json:"transferred_from,omitempty"`
	TransferredAt        *time.Time    `db:"transferred_at" json:"transferred_at,omitempty"`
	AutoSaveData         string        `db:"auto_save_data" json:"-"`
	AutoSavedAt          *time.Time    `db:"auto_saved_at" json:"auto_saved_at,omitempty"`
	Items                []LineItem    `db:"-" json:"items,omitempty"`
}

// HoldsLock reports whether the session carries a lock stamped at or after cutoff.
func (s SalesSession) HoldsLock(cutoff time.Time) bool {
	return s.Status == SessionActive && s.LockedAt != nil && !s.LockedAt.Before(cutoff)
}

type LineItem struct {
	ID               int64     `db:"id" json:"id"`
	SessionID        int64     `db:"session_id" json:"session_id"`
	ProductID        int64     `db:"product_id" json:"product_id"`
	ProductName      string    `db:"product_name" json:"product_name"`
	Barcode          string    `db:"barcode" json:"barcode,omitempty"`
	Quantity         int       `db:"quantity" json:"quantity"`
	UnitPriceCents   int64     `db:"unit_price_cents" json:"unit_price_cents"`
	UnitDepositCents int64     `db:"unit_deposit_cents" json:"unit_deposit_cents"`
	VATRate          float64   `db:"vat_rate" json:"vat_rate"`
	NetCents         int64     `db:"net_cents" json:"net_cents"`
	VATCents         int64     `db:"vat_cents" json:"vat_cents"`
	DepositCents     int64     `db:"deposit_cents" json:"deposit_cents"`
	GrossCents       int64     `db:"gross_cents" json:"gross_cents"`
	TotalCents       int64     `db:"total_cents" json:"total_cents"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

type SessionActivity struct {
	ID           int64     `db:"id" json:"id"`
	SessionID    int64     `db:"session_id" json:"session_id"`
	ActivityType string    `db:"activity_type" json:"activity_type"`
	Payload      string    `db:"payload" json:"payload"`
	UserID       int64     `db:"user_id" json:"user_id"`
	ClientIP     string    `db:"client_ip" json:"client_ip,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type StockMovement struct {
	ID        int64     `db:"id" json:"id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	OldStock  int       `db:"old_stock" json:"old_stock"`
	NewStock  int       `db:"new_stock" json:"new_stock"`
	Change    int       `db:"change_qty" json:"change"`
	Reason    string    `db:"reason" json:"reason"`
	SessionID *int64    `db:"session_id" json:"session_id,omitempty"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StockAdjustment is a signed stock change applied outside of a sale.
type StockAdjustment struct {
	ProductID int64
	Delta     int
	Reason    string
	UserID    int64
	At        time.Time
}

type ScanLog struct {
	ID        int64     `db:"id" json:"id"`
	Barcode   string    `db:"barcode" json:"barcode"`
	ProductID *int64    `db:"product_id" json:"product_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	Quantity  int       `db:"quantity" json:"quantity"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type EmailLog struct {
	ID        int64     `db:"id" json:"id"`
	Recipient string    `db:"recipient" json:"recipient"`
	Subject   string    `db:"subject" json:"subject"`
	Status    string    `db:"status" json:"status"`
	Error     string    `db:"error" json:"error,omitempty"`
	SessionID *int64    `db:"session_id" json:"session_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StockShortage describes one under-stocked product in a rejected sale.
type StockShortage struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type LookupProduct struct {
	Barcode  string `json:"barcode"`
	Name     string `json:"name"`
	Brand    string `json:"brand,omitempty"`
	Category string `json:"category,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Source   string `json:"source"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type ProductCreateRequest struct {
	Barcode            string   `json:"barcode"`
	Name               string   `json:"name"`
	PriceCents         int64    `json:"price_cents"`
	DepositCents       int64    `json:"deposit_cents"`
	VATRate            *float64 `json:"vat_rate,omitempty"`
	PurchasePriceCents int64    `json:"purchase_price_cents"`
	InitialStock       int      `json:"initial_stock"`
	MinStock           *int     `json:"min_stock,omitempty"`
	Category           string   `json:"category"`
}

type BarcodeCheck struct {
	Found      bool           `json:"found"`
	Product    *Product       `json:"product,omitempty"`
	Suggestion *LookupProduct `json:"suggestion,omitempty"`
}

type ScanRequest struct {
	Barcode  string `json:"barcode"`
	Action   string `json:"action"`
	Quantity int    `json:"quantity"`
}

type ScanResult struct {
	Product  Product `json:"product"`
	Action   string  `json:"action"`
	OldStock int     `json:"old_stock"`
	NewStock int     `json:"new_stock"`
	LowStock bool    `json:"low_stock"`
}

type CreateSessionRequest struct {
	Notes string `json:"notes"`
}

type AddSessionItemRequest struct {
	ProductID int64  `json:"product_id"`
	Barcode   string `json:"barcode"`
	Quantity  int    `json:"quantity"`
}

type RecoveredSession struct {
	Session      SalesSession    `json:"session"`
	Items        []LineItem      `json:"items"`
	AutoSaveData json.RawMessage `json:"auto_save_data,omitempty"`
}

type MergeRequest struct {
	SourceSessionID int64 `json:"source_session_id"`
}

type SplitRequest struct {
	ItemIDs []int64 `json:"item_ids"`
}

type SplitResult struct {
	Source     SalesSession `json:"source"`
	Split      SalesSession `json:"split"`
	MovedItems int          `json:"moved_items"`
}

type TransferRequest struct {
	FromUserID int64 `json:"from_user_id"`
	ToUserID   int64 `json:"to_user_id"`
}

type CleanupResult struct {
	Expired  int `json:"expired"`
	Archived int `json:"archived"`
}

// AutoSaveSnapshot is the summary written into active sessions for later recovery.
type AutoSaveSnapshot struct {
	SnapshotID      string    `json:"snapshot_id"`
	ItemCount       int       `json:"item_count"`
	TotalGrossCents int64     `json:"total_gross_cents"`
	DurationSeconds int64     `json:"duration_seconds"`
	LastActivity    time.Time `json:"last_activity"`
	SavedAt         time.Time `json:"saved_at"`
}

type CartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type FinalizeSaleRequest struct {
	SessionID            *int64     `json:"session_id,omitempty"`
	Items                []CartItem `json:"items"`
	PaymentMethod        string     `json:"payment_method"`
	PaymentReceivedCents int64      `json:"payment_received_cents"`
	Notes                string     `json:"notes"`
}

type FinalizeSaleResponse struct {
	SessionID            int64  `json:"session_id"`
	ReceiptNumber        string `json:"receipt_number"`
	ItemCount            int    `json:"item_count"`
	TotalNetCents        int64  `json:"total_net_cents"`
	TotalVATCents        int64  `json:"total_vat_cents"`
	TotalDepositCents    int64  `json:"total_deposit_cents"`
	TotalCents           int64  `json:"total_cents"`
	PaymentMethod        string `json:"payment_method"`
	PaymentMethodLabel   string `json:"payment_method_label"`
	PaymentReceivedCents int64  `json:"payment_received_cents"`
	ChangeCents          int64  `json:"change_cents"`
	PDFURL               string `json:"pdf_url,omitempty"`
	EmailSent            bool   `json:"email_sent"`
}

type AnalyticsQuery struct {
	Period string `json:"period"`
	From   string `json:"from"`
	To     string `json:"to"`
}

type SalesTotals struct {
	SessionCount int   `db:"session_count" json:"session_count"`
	ItemCount    int   `db:"item_count" json:"item_count"`
	NetCents     int64 `db:"net_cents" json:"net_cents"`
	VATCents     int64 `db:"vat_cents" json:"vat_cents"`
	DepositCents int64 `db:"deposit_cents" json:"deposit_cents"`
	GrossCents   int64 `db:"gross_cents" json:"gross_cents"`
	AverageCents int64 `db:"-" json:"average_cents"`
}

type PaymentBreakdown struct {
	PaymentMethod string `db:"payment_method" json:"payment_method"`
	SessionCount  int    `db:"session_count" json:"session_count"`
	GrossCents    int64  `db:"gross_cents" json:"gross_cents"`
}

type TopProduct struct {
	ProductID    int64  `db:"product_id" json:"product_id"`
	ProductName  string `db:"product_name" json:"product_name"`
	Quantity     int    `db:"quantity" json:"quantity"`
	RevenueCents int64  `db:"revenue_cents" json:"revenue_cents"`
}

type HourlyBucket struct {
	Hour         int   `db:"hour" json:"hour"`
	SessionCount int   `db:"session_count" json:"session_count"`
	GrossCents   int64 `db:"gross_cents" json:"gross_cents"`
}

type VATBucket struct {
	VATRate    float64 `db:"vat_rate" json:"vat_rate"`
	NetCents   int64   `db:"net_cents" json:"net_cents"`
	VATCents   int64   `db:"vat_cents" json:"vat_cents"`
	GrossCents int64   `db:"gross_cents" json:"gross_cents"`
}

type SalesAnalytics struct {
	Period           string             `json:"period"`
	From             time.Time          `json:"from"`
	To               time.Time          `json:"to"`
	Totals           SalesTotals        `json:"totals"`
	PaymentBreakdown []PaymentBreakdown `json:"payment_breakdown"`
	TopProducts      []TopProduct       `json:"top_products"`
	Hourly           []HourlyBucket     `json:"hourly,omitempty"`
	VATBreakdown     []VATBucket        `json:"vat_breakdown"`
	CostCents        int64              `json:"cost_cents"`
	ProfitCents      int64              `json:"profit_cents"`
	MarginPercent    float64            `json:"margin_percent"`
}
