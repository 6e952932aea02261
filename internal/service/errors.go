package service

import (
	"errors"
	"fmt"
	"strings"

	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/store"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrInvalidPaymentMethod = errors.New("payment method must be one of cash, card, mixed")
	ErrUnauthorized         = errors.New("authentication required")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionsNotFound     = errors.New("one or both sessions not found")
	ErrSessionAccessDenied  = errors.New("session belongs to another user")
	ErrSessionMismatch      = errors.New("session is not owned by the given user")
	ErrSessionState         = errors.New("session state does not allow this operation")
	ErrNotRecoverable       = errors.New("session is not recoverable")
	ErrNoItemsSpecified     = errors.New("no items specified")
	ErrItemNotFound         = errors.New("line item not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrTargetUserNotFound   = errors.New("target user not found")
	ErrDatabase             = errors.New("database error")

	// Shared with the store so the typed errors it returns match directly.
	ErrInsufficientStock   = store.ErrInsufficientStock
	ErrMaxSessionsExceeded = store.ErrMaxSessionsExceeded
	ErrUserAlreadyLocked   = store.ErrUserAlreadyLocked
	ErrTargetUserLocked    = store.ErrTargetUserLocked
)

// ValidationError collects every problem found in a request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Problems: []string{fmt.Sprintf(format, args...)}}
}

// ErrorCode maps an error to the stable code reported to API clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrInvalidPaymentMethod):
		return "invalid_payment_method"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrSessionsNotFound):
		return "sessions_not_found"
	case errors.Is(err, ErrSessionAccessDenied):
		return "session_access_denied"
	case errors.Is(err, ErrSessionMismatch):
		return "session_mismatch"
	case errors.Is(err, ErrSessionState):
		return "invalid_session_state"
	case errors.Is(err, ErrNotRecoverable):
		return "not_recoverable"
	case errors.Is(err, ErrNoItemsSpecified):
		return "no_items_specified"
	case errors.Is(err, ErrItemNotFound):
		return "item_not_found"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrTargetUserNotFound):
		return "target_user_not_found"
	case errors.Is(err, ErrTargetUserLocked):
		return "target_user_locked"
	case errors.Is(err, ErrMaxSessionsExceeded):
		return "max_sessions_exceeded"
	case errors.Is(err, ErrUserAlreadyLocked):
		return "user_already_locked"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "database_error"
	}
}

// ErrorDetails returns the structured payload carried by an error, if any.
func ErrorDetails(err error) any {
	var stock *store.InsufficientStockError
	if errors.As(err, &stock) {
		return map[string][]domain.StockShortage{"items": stock.Items}
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return map[string][]string{"problems": validation.Problems}
	}
	return nil
}
