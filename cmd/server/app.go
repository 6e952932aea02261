package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"automatpos/backend/internal/cache"
	"automatpos/backend/internal/config"
	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/events"
	"automatpos/backend/internal/httpapi"
	"automatpos/backend/internal/jobs"
	"automatpos/backend/internal/lookup"
	"automatpos/backend/internal/metrics"
	"automatpos/backend/internal/notify"
	"automatpos/backend/internal/receipt"
	"automatpos/backend/internal/service"
	"automatpos/backend/internal/storage"
	"automatpos/backend/internal/store"
	"automatpos/backend/internal/store/memory"
	pgstore "automatpos/backend/internal/store/postgres"
)

// app holds everything the commands share. close releases it in reverse order.
type app struct {
	cfg      config.Config
	settings config.Settings
	logger   *zap.Logger
	repo     store.Repository
	svc      *service.Service
	metrics  *metrics.Collectors
	closers  []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close error", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func bootstrap(ctx context.Context, settingsFile string) (*app, error) {
	cfg := config.Load()
	if settingsFile != "" {
		cfg.SettingsFile = settingsFile
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, settings: settings, logger: logger}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(initCtx, cfg.DatabaseURL, logger, pgstore.WithSchema(cfg.DatabaseSchema))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		a.repo = pg
		a.closers = append(a.closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		a.repo = memory.NewSeeded(logger)
		logger.Info("repository: in-memory")
	}

	lookupCache := cache.LookupCache(cache.NoopLookupCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisLookupCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(initCtx); err != nil {
			logger.Warn("redis unavailable, using noop cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			lookupCache = redisCache
			a.closers = append(a.closers, redisCache.Close)
			logger.Info("cache: redis")
		}
	}

	disk, err := storage.New(initCtx, settings.Backup)
	if err != nil {
		a.close()
		return nil, err
	}

	a.metrics = metrics.New()
	bus := events.NewBus()
	a.metrics.Subscribe(bus)

	renderer := receipt.Renderer{
		ShopName: settings.UI.ShopName,
		Currency: settings.UI.Currency,
		Location: settings.UI.Location(),
	}
	notifier := notify.New(notify.NewSMTPMailer(settings.Notifications.SMTP), a.repo, settings.Notifications, settings.UI.Currency, logger)

	a.svc = service.New(a.repo, service.OptionsFromSettings(settings), logger,
		service.WithEvents(bus),
		service.WithReceipts(renderer, disk),
		service.WithNotifier(notifier),
		service.WithLookup(lookup.New(settings.ExternalAPI, lookupCache, logger)),
	)
	return a, nil
}

func runServe(ctx context.Context, settingsFile string) error {
	a, err := bootstrap(ctx, settingsFile)
	if err != nil {
		return err
	}
	defer a.close()

	if err := validateSecurityConfig(a.cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	if pg, ok := a.repo.(*pgstore.Store); ok {
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
	}

	runner, err := jobs.NewRunner(a.svc, a.settings, a.logger)
	if err != nil {
		return err
	}

	auth := httpapi.NewAuthManager(a.cfg.AuthSecret, time.Duration(a.cfg.AccessTokenTTLMinutes)*time.Minute, a.repo, a.logger)
	api := httpapi.New(a.svc, auth, a.cfg.AllowedOrigin, httpapi.WithMetrics(a.metrics), httpapi.WithLogger(a.logger))

	server := &http.Server{
		Addr:              a.cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("automat backend listening", zap.String("addr", a.cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	runner.Start()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			a.logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("shutdown error", zap.Error(err))
	}
	if err := runner.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler did not stop in time", zap.Error(err))
	}
	a.logger.Info("server stopped")
	return nil
}

func runMigrate(ctx context.Context) error {
	cfg := config.Load()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}
	pg, err := pgstore.New(ctx, cfg.DatabaseURL, logger, pgstore.WithSchema(cfg.DatabaseSchema))
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		return err
	}
	return seedUsers(ctx, pg, cfg, logger)
}

type userSeeder interface {
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
}

// seedUsers creates the admin and cashier accounts on an empty user table.
func seedUsers(ctx context.Context, users userSeeder, cfg config.Config, logger *zap.Logger) error {
	existing, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	seeds := []struct {
		username string
		password string
		role     string
	}{
		{"admin", cfg.SeedAdminPassword, domain.RoleAdmin},
		{"cashier", cfg.SeedCashierPassword, domain.RoleCashier},
	}
	for _, seed := range seeds {
		if seed.password == "" {
			logger.Warn("no seed password configured, skipping user", zap.String("username", seed.username))
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if _, err := users.CreateUser(ctx, domain.UserAccount{
			Username:  seed.username,
			Password:  string(hash),
			Role:      seed.role,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("seed user %s: %w", seed.username, err)
		}
		logger.Info("seeded user", zap.String("username", seed.username), zap.String("role", seed.role))
	}
	return nil
}

func runSweep(ctx context.Context, settingsFile string) error {
	a, err := bootstrap(ctx, settingsFile)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.svc.CleanupExpiredSessions(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("sweep finished", zap.Int("expired", result.Expired), zap.Int("archived", result.Archived))
	return nil
}
