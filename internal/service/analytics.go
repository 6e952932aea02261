package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/store"
)

const (
	PeriodToday  = "today"
	PeriodWeek   = "week"
	PeriodMonth  = "month"
	PeriodYear   = "year"
	PeriodCustom = "custom"
)

const dateLayout = "2006-01-02"

// GetSalesAnalytics aggregates completed sales over the requested period.
// Ranges of at most two days also get an hour-of-day breakdown. Admin only.
func (s *Service) GetSalesAnalytics(ctx context.Context, query domain.AnalyticsQuery) (domain.SalesAnalytics, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.SalesAnalytics{}, err
	}
	period, from, to, err := resolvePeriod(query, s.now(), s.opts.Location)
	if err != nil {
		return domain.SalesAnalytics{}, err
	}
	return s.analytics(ctx, period, from, to)
}

func (s *Service) analytics(ctx context.Context, period string, from, to time.Time) (domain.SalesAnalytics, error) {
	result, err := s.repo.GetSalesAnalytics(ctx, store.AnalyticsParams{
		From:     from,
		To:       to,
		Hourly:   to.Sub(from) <= HourlyRangeLimit,
		TopLimit: TopProductsLimit,
	})
	if err != nil {
		return domain.SalesAnalytics{}, s.dbError("sales analytics", err)
	}

	result.Period = period
	result.From = from
	result.To = to
	if result.Totals.SessionCount > 0 {
		result.Totals.AverageCents = int64(math.Round(float64(result.Totals.GrossCents) / float64(result.Totals.SessionCount)))
	}
	result.ProfitCents = result.Totals.NetCents - result.CostCents
	if result.Totals.NetCents > 0 {
		margin := float64(result.ProfitCents) / float64(result.Totals.NetCents) * 100
		result.MarginPercent = math.Round(margin*100) / 100
	}
	return result, nil
}

// resolvePeriod turns a period selector into a half-open [from, to) range in loc.
// Custom ranges name inclusive calendar days.
func resolvePeriod(query domain.AnalyticsQuery, now time.Time, loc *time.Location) (string, time.Time, time.Time, error) {
	now = now.In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	period := strings.ToLower(strings.TrimSpace(query.Period))
	switch period {
	case "", PeriodToday:
		return PeriodToday, day, day.AddDate(0, 0, 1), nil
	case PeriodWeek:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return period, start, start.AddDate(0, 0, 7), nil
	case PeriodMonth:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, loc)
		return period, start, start.AddDate(0, 1, 0), nil
	case PeriodYear:
		start := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return period, start, start.AddDate(1, 0, 0), nil
	case PeriodCustom:
		var problems []string
		from, err := time.ParseInLocation(dateLayout, strings.TrimSpace(query.From), loc)
		if err != nil {
			problems = append(problems, "from must be a date in YYYY-MM-DD format")
		}
		to, err := time.ParseInLocation(dateLayout, strings.TrimSpace(query.To), loc)
		if err != nil {
			problems = append(problems, "to must be a date in YYYY-MM-DD format")
		}
		if len(problems) == 0 && to.Before(from) {
			problems = append(problems, "to must not be before from")
		}
		if len(problems) > 0 {
			return "", time.Time{}, time.Time{}, &ValidationError{Problems: problems}
		}
		return period, from, to.AddDate(0, 0, 1), nil
	default:
		return "", time.Time{}, time.Time{}, invalid("period must be one of today, week, month, year, custom")
	}
}

// SendDailySummary mails today's analytics and the low stock list. It runs
// from the scheduler, so it does not require an actor.
func (s *Service) SendDailySummary(ctx context.Context) error {
	if s.notifier == nil {
		return errors.New("daily summary: no notifier configured")
	}
	period, from, to, err := resolvePeriod(domain.AnalyticsQuery{Period: PeriodToday}, s.now(), s.opts.Location)
	if err != nil {
		return err
	}
	analytics, err := s.analytics(ctx, period, from, to)
	if err != nil {
		return err
	}
	lowStock, err := s.repo.ListLowStockProducts(ctx)
	if err != nil {
		return s.dbError("list low stock products", err)
	}
	return s.notifier.SendDailySummary(ctx, from, analytics, lowStock)
}
