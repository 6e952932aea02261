package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"automatpos/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrMaxSessionsExceeded = errors.New("maximum active sessions reached")
	ErrUserAlreadyLocked   = errors.New("user already holds an active session lock")
	ErrTargetUserLocked    = errors.New("target user holds an active session lock")
	ErrNotOwner            = errors.New("session owned by another user")
	ErrSessionState        = errors.New("session state does not allow this operation")
	ErrItemsNotInSession   = errors.New("items do not belong to session")
)

// InsufficientStockError lists every product a sale could not cover.
type InsufficientStockError struct {
	Items []domain.StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", item.Name, item.Requested, item.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ItemsNotInSessionError carries the line item ids that do not belong to the source session.
type ItemsNotInSessionError struct {
	SessionID int64
	ItemIDs   []int64
}

func (e *ItemsNotInSessionError) Error() string {
	return fmt.Sprintf("items %v do not belong to session %d", e.ItemIDs, e.SessionID)
}

func (e *ItemsNotInSessionError) Unwrap() error { return ErrItemsNotInSession }

type CreateSessionParams struct {
	Session    domain.SalesSession
	MaxActive  int
	LockCutoff time.Time
}

type ReactivateParams struct {
	SessionID   int64
	UserID      int64
	ActiveSince time.Time
	Now         time.Time
}

type MergeParams struct {
	TargetID int64
	SourceID int64
	UserID   int64
	Now      time.Time
}

type SplitParams struct {
	SourceID int64
	UserID   int64
	ItemIDs  []int64
	Now      time.Time
}

type TransferParams struct {
	SessionID  int64
	FromUserID int64
	ToUserID   int64
	LockCutoff time.Time
	Now        time.Time
}

// FinalizeParams describes one sale. A zero SessionID inserts a new completed
// session from Items; otherwise the persisted items of that active session are sold.
type FinalizeParams struct {
	SessionID            int64
	UserID               int64
	Items                []domain.LineItem
	ExpectedTotalCents   int64
	PaymentMethod        string
	PaymentReceivedCents int64
	Notes                string
	Now                  time.Time
}

type AnalyticsParams struct {
	From     time.Time
	To       time.Time
	Hourly   bool
	TopLimit int
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)
	AdjustStock(ctx context.Context, adj domain.StockAdjustment) (*domain.StockMovement, error)
	ListStockMovements(ctx context.Context, productID int64, limit int) ([]domain.StockMovement, error)
	CreateScanLog(ctx context.Context, entry domain.ScanLog) error

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	GetUser(ctx context.Context, id int64) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	CreateSession(ctx context.Context, params CreateSessionParams) (*domain.SalesSession, error)
	GetSession(ctx context.Context, id int64) (*domain.SalesSession, error)
	ListSessionsByStatus(ctx context.Context, status domain.SessionStatus) ([]domain.SalesSession, error)
	ReactivateSession(ctx context.Context, params ReactivateParams) (*domain.SalesSession, error)
	TouchSession(ctx context.Context, id int64, userID int64, now time.Time) (*domain.SalesSession, error)
	UpdateSessionStatus(ctx context.Context, id int64, from domain.SessionStatus, to domain.SessionStatus, now time.Time) error
	AddSessionItem(ctx context.Context, sessionID int64, userID int64, item domain.LineItem, now time.Time) (*domain.SalesSession, error)
	RemoveSessionItem(ctx context.Context, sessionID int64, userID int64, itemID int64, now time.Time) (*domain.SalesSession, error)
	MergeSessions(ctx context.Context, params MergeParams) (*domain.SalesSession, int, error)
	SplitSession(ctx context.Context, params SplitParams) (source *domain.SalesSession, split *domain.SalesSession, err error)
	TransferSession(ctx context.Context, params TransferParams) (*domain.SalesSession, error)
	ExpireIdleSessions(ctx context.Context, idleBefore time.Time, now time.Time) ([]int64, error)
	ArchiveSessions(ctx context.Context, startedBefore time.Time, now time.Time) ([]int64, error)
	SaveAutoSave(ctx context.Context, id int64, data string, at time.Time) error
	SetReceiptPath(ctx context.Context, id int64, path string) error
	FinalizeSale(ctx context.Context, params FinalizeParams) (*domain.SalesSession, error)
	CreateSessionActivity(ctx context.Context, entry domain.SessionActivity) error
	ListSessionActivity(ctx context.Context, sessionID int64) ([]domain.SessionActivity, error)

	CreateEmailLog(ctx context.Context, entry domain.EmailLog) error
	GetSalesAnalytics(ctx context.Context, params AnalyticsParams) (domain.SalesAnalytics, error)
}

// Archivable lists the statuses the archive sweep moves to archived. Active
// sessions are left to the idle sweep. Completed sales keep their status
// because analytics and receipts select on it.
var Archivable = []domain.SessionStatus{
	domain.SessionInterrupted,
	domain.SessionExpired,
	domain.SessionError,
	domain.SessionMerged,
}
