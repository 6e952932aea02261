package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"automatpos/backend/internal/config"
	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/events"
	"automatpos/backend/internal/receipt"
	"automatpos/backend/internal/storage"
	"automatpos/backend/internal/store"
)

const (
	DefaultLockTimeout    = 300 * time.Second
	DefaultRecoveryWindow = 24 * time.Hour
	DefaultArchiveAfter   = 30 * 24 * time.Hour
	TopProductsLimit      = 10
	HourlyRangeLimit      = 48 * time.Hour
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	MaxActiveSessions int
	SessionTimeout    time.Duration
	LockTimeout       time.Duration
	RecoveryWindow    time.Duration
	ArchiveAfter      time.Duration
	ReceiptPrefix     string
	Location          *time.Location
	DefaultVATRate    float64
	DefaultMinStock   int
	LookupEnabled     bool
}

func OptionsFromSettings(settings config.Settings) Options {
	return Options{
		MaxActiveSessions: settings.Security.MaxConcurrentSessions,
		SessionTimeout:    settings.Security.SessionTimeout(),
		ReceiptPrefix:     settings.UI.ReceiptPrefix,
		Location:          settings.UI.Location(),
		DefaultVATRate:    settings.Products.DefaultVATRate,
		DefaultMinStock:   settings.Products.DefaultMinStock,
		LookupEnabled:     settings.ExternalAPI.Enabled,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxActiveSessions < 1 {
		o.MaxActiveSessions = 10
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = time.Hour
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = DefaultLockTimeout
	}
	if o.RecoveryWindow <= 0 {
		o.RecoveryWindow = DefaultRecoveryWindow
	}
	if o.ArchiveAfter <= 0 {
		o.ArchiveAfter = DefaultArchiveAfter
	}
	if o.ReceiptPrefix == "" {
		o.ReceiptPrefix = receipt.DefaultPrefix
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

type ReceiptRenderer interface {
	Render(session domain.SalesSession, number string) ([]byte, error)
}

type ReceiptNotifier interface {
	ReceiptsEnabled() bool
	SendReceipt(ctx context.Context, session domain.SalesSession, number string, pdf []byte) bool
	SendDailySummary(ctx context.Context, day time.Time, analytics domain.SalesAnalytics, lowStock []domain.Product) error
}

type BarcodeLookup interface {
	Lookup(ctx context.Context, barcode string) (*domain.LookupProduct, error)
}

type Service struct {
	repo     store.Repository
	opts     Options
	logger   *zap.Logger
	events   events.Dispatcher
	renderer ReceiptRenderer
	disk     storage.Disk
	notifier ReceiptNotifier
	lookup   BarcodeLookup
	now      func() time.Time
}

type Option func(*Service)

func WithEvents(d events.Dispatcher) Option {
	return func(s *Service) { s.events = d }
}

func WithReceipts(renderer ReceiptRenderer, disk storage.Disk) Option {
	return func(s *Service) {
		s.renderer = renderer
		s.disk = disk
	}
}

func WithNotifier(n ReceiptNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLookup(l BarcodeLookup) Option {
	return func(s *Service) { s.lookup = l }
}

// WithClock overrides the time source; tests use it to move through lock and recovery windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(repo store.Repository, opts Options, logger *zap.Logger, extra ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:   repo,
		opts:   opts.withDefaults(),
		logger: logger,
		events: events.Noop{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, apply := range extra {
		apply(s)
	}
	return s
}

func (s *Service) Options() Options {
	return s.opts
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == 0 {
		return domain.Actor{}, ErrUnauthorized
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return actor, err
	}
	if actor.Role != domain.RoleAdmin {
		return actor, ErrPermissionDenied
	}
	return actor, nil
}

// dbError logs the low-level cause and hands callers only the generic kind.
func (s *Service) dbError(op string, err error, fields ...zap.Field) error {
	s.logger.Error(op+" failed", append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", op, ErrDatabase)
}

// logActivity appends to the session audit trail. A failed write never fails the operation.
func (s *Service) logActivity(ctx context.Context, sessionID int64, activity string, payload map[string]any) {
	actor, _ := ActorFromContext(ctx)

	raw := []byte("{}")
	if len(payload) > 0 {
		encoded, err := json.Marshal(payload)
		if err == nil {
			raw = encoded
		}
	}

	err := s.repo.CreateSessionActivity(ctx, domain.SessionActivity{
		SessionID:    sessionID,
		ActivityType: activity,
		Payload:      string(raw),
		UserID:       actor.UserID,
		ClientIP:     actor.ClientIP,
		CreatedAt:    s.now(),
	})
	if err != nil {
		s.logger.Warn("session activity write failed",
			zap.Int64("session_id", sessionID),
			zap.String("activity", activity),
			zap.Error(err))
	}
}

func (s *Service) emit(evt events.Event) {
	if evt.At.IsZero() {
		evt.At = s.now()
	}
	s.events.Dispatch(evt)
}
