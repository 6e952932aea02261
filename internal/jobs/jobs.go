// Package jobs schedules the periodic session sweeps and the daily summary mail.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"automatpos/backend/internal/config"
	"automatpos/backend/internal/domain"
)

const defaultJobTimeout = 2 * time.Minute

// Tasks is the work the scheduler triggers. *service.Service satisfies it.
type Tasks interface {
	CleanupExpiredSessions(ctx context.Context) (domain.CleanupResult, error)
	AutoSaveActiveSessions(ctx context.Context) (int, error)
	SendDailySummary(ctx context.Context) error
}

type Runner struct {
	cron    *cron.Cron
	tasks   Tasks
	logger  *zap.Logger
	timeout time.Duration
}

// NewRunner registers the cleanup and auto-save jobs, plus the daily summary
// when it is enabled, using the schedules from settings.
func NewRunner(tasks Tasks, settings config.Settings, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLog := cronLogger{logger.Sugar()}
	r := &Runner{
		cron: cron.New(
			cron.WithLocation(settings.UI.Location()),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		tasks:   tasks,
		logger:  logger,
		timeout: defaultJobTimeout,
	}

	if _, err := r.cron.AddFunc(settings.Performance.CleanupSchedule, r.cleanup); err != nil {
		return nil, fmt.Errorf("cleanup schedule %q: %w", settings.Performance.CleanupSchedule, err)
	}
	if _, err := r.cron.AddFunc(settings.Performance.AutoSaveSchedule, r.autoSave); err != nil {
		return nil, fmt.Errorf("auto-save schedule %q: %w", settings.Performance.AutoSaveSchedule, err)
	}
	if settings.Notifications.DailySummaryEnabled {
		spec, err := dailySpec(settings.Notifications.DailySummaryTime)
		if err != nil {
			return nil, err
		}
		if _, err := r.cron.AddFunc(spec, r.dailySummary); err != nil {
			return nil, fmt.Errorf("daily summary schedule %q: %w", spec, err)
		}
	}
	return r, nil
}

func (r *Runner) Start() {
	r.cron.Start()
	r.logger.Info("scheduler started", zap.Int("jobs", len(r.cron.Entries())))
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if _, err := r.tasks.CleanupExpiredSessions(ctx); err != nil {
		r.logger.Error("session cleanup job failed", zap.Error(err))
	}
}

func (r *Runner) autoSave() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	saved, err := r.tasks.AutoSaveActiveSessions(ctx)
	if err != nil {
		r.logger.Error("auto-save job failed", zap.Error(err))
		return
	}
	r.logger.Debug("auto-save job finished", zap.Int("sessions", saved))
}

func (r *Runner) dailySummary() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.tasks.SendDailySummary(ctx); err != nil {
		r.logger.Error("daily summary job failed", zap.Error(err))
	}
}

// dailySpec converts "HH:MM" into a five-field cron spec.
func dailySpec(at string) (string, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return "", fmt.Errorf("daily summary time %q must be HH:MM", at)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
