package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automatpos/backend/internal/config"
	"automatpos/backend/internal/domain"
)

type fakeTasks struct {
	cleanups  atomic.Int32
	autoSaves atomic.Int32
	summaries atomic.Int32
	err       error
}

func (f *fakeTasks) CleanupExpiredSessions(context.Context) (domain.CleanupResult, error) {
	f.cleanups.Add(1)
	return domain.CleanupResult{}, f.err
}

func (f *fakeTasks) AutoSaveActiveSessions(context.Context) (int, error) {
	f.autoSaves.Add(1)
	return 0, f.err
}

func (f *fakeTasks) SendDailySummary(context.Context) error {
	f.summaries.Add(1)
	return f.err
}

func TestNewRunnerRegistersJobs(t *testing.T) {
	settings := config.DefaultSettings()

	r, err := NewRunner(&fakeTasks{}, settings, nil)
	require.NoError(t, err)
	assert.Len(t, r.cron.Entries(), 2)

	settings.Notifications.DailySummaryEnabled = true
	r, err = NewRunner(&fakeTasks{}, settings, nil)
	require.NoError(t, err)
	assert.Len(t, r.cron.Entries(), 3)
}

func TestNewRunnerRejectsBadSchedules(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Performance.CleanupSchedule = "every now and then"
	_, err := NewRunner(&fakeTasks{}, settings, nil)
	require.ErrorContains(t, err, "cleanup schedule")

	settings = config.DefaultSettings()
	settings.Notifications.DailySummaryEnabled = true
	settings.Notifications.DailySummaryTime = "8pm"
	_, err = NewRunner(&fakeTasks{}, settings, nil)
	require.ErrorContains(t, err, "HH:MM")
}

func TestDailySpec(t *testing.T) {
	spec, err := dailySpec("07:30")
	require.NoError(t, err)
	assert.Equal(t, "30 7 * * *", spec)

	spec, err = dailySpec("20:00")
	require.NoError(t, err)
	assert.Equal(t, "0 20 * * *", spec)
}

func TestJobsCallTasksAndSwallowErrors(t *testing.T) {
	tasks := &fakeTasks{err: errors.New("db down")}
	r, err := NewRunner(tasks, config.DefaultSettings(), nil)
	require.NoError(t, err)

	r.cleanup()
	r.autoSave()
	r.dailySummary()

	assert.Equal(t, int32(1), tasks.cleanups.Load())
	assert.Equal(t, int32(1), tasks.autoSaves.Load())
	assert.Equal(t, int32(1), tasks.summaries.Load())
}

func TestRunnerStartStop(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Performance.AutoSaveSchedule = "@every 1s"
	tasks := &fakeTasks{}
	r, err := NewRunner(tasks, settings, nil)
	require.NoError(t, err)

	r.Start()
	require.Eventually(t, func() bool { return tasks.autoSaves.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
}
