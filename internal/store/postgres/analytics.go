package postgres

import (
	"context"

	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/store"
)

// GetSalesAnalytics aggregates completed sessions whose ended_at falls in
// [From, To). Hour buckets use the location carried by From.
func (s *Store) GetSalesAnalytics(ctx context.Context, params store.AnalyticsParams) (domain.SalesAnalytics, error) {
	result := domain.SalesAnalytics{
		From:             params.From,
		To:               params.To,
		PaymentBreakdown: []domain.PaymentBreakdown{},
		TopProducts:      []domain.TopProduct{},
		VATBreakdown:     []domain.VATBucket{},
	}

	err := s.db.GetContext(ctx, &result.Totals, `
		SELECT
			COUNT(*)::int AS session_count,
			COALESCE(SUM(item_count), 0)::int AS item_count,
			COALESCE(SUM(total_net_cents), 0)::bigint AS net_cents,
			COALESCE(SUM(total_vat_cents), 0)::bigint AS vat_cents,
			COALESCE(SUM(total_deposit_cents), 0)::bigint AS deposit_cents,
			COALESCE(SUM(total_gross_cents), 0)::bigint AS gross_cents
		FROM sales_sessions
		WHERE status = 'completed' AND ended_at >= $1 AND ended_at < $2
	`, params.From, params.To)
	if err != nil {
		return result, err
	}

	err = s.db.SelectContext(ctx, &result.PaymentBreakdown, `
		SELECT payment_method,
			COUNT(*)::int AS session_count,
			COALESCE(SUM(total_gross_cents), 0)::bigint AS gross_cents
		FROM sales_sessions
		WHERE status = 'completed' AND ended_at >= $1 AND ended_at < $2
		GROUP BY payment_method
		ORDER BY gross_cents DESC, payment_method
	`, params.From, params.To)
	if err != nil {
		return result, err
	}

	limit := params.TopLimit
	if limit < 1 {
		limit = 10
	}
	err = s.db.SelectContext(ctx, &result.TopProducts, `
		SELECT i.product_id,
			MIN(i.product_name) AS product_name,
			SUM(i.quantity)::int AS quantity,
			SUM(i.total_cents)::bigint AS revenue_cents
		FROM sales_items i
		JOIN sales_sessions s ON s.id = i.session_id
		WHERE s.status = 'completed' AND s.ended_at >= $1 AND s.ended_at < $2
		GROUP BY i.product_id
		ORDER BY quantity DESC, revenue_cents DESC, i.product_id
		LIMIT $3
	`, params.From, params.To, limit)
	if err != nil {
		return result, err
	}

	err = s.db.SelectContext(ctx, &result.VATBreakdown, `
		SELECT i.vat_rate,
			SUM(i.net_cents)::bigint AS net_cents,
			SUM(i.vat_cents)::bigint AS vat_cents,
			SUM(i.gross_cents)::bigint AS gross_cents
		FROM sales_items i
		JOIN sales_sessions s ON s.id = i.session_id
		WHERE s.status = 'completed' AND s.ended_at >= $1 AND s.ended_at < $2
		GROUP BY i.vat_rate
		ORDER BY i.vat_rate
	`, params.From, params.To)
	if err != nil {
		return result, err
	}

	err = s.db.GetContext(ctx, &result.CostCents, `
		SELECT COALESCE(SUM(i.quantity * COALESCE(p.purchase_price_cents, 0)), 0)::bigint
		FROM sales_items i
		JOIN sales_sessions s ON s.id = i.session_id
		LEFT JOIN products p ON p.id = i.product_id
		WHERE s.status = 'completed' AND s.ended_at >= $1 AND s.ended_at < $2
	`, params.From, params.To)
	if err != nil {
		return result, err
	}

	if params.Hourly {
		result.Hourly = make([]domain.HourlyBucket, 0, 24)
		err = s.db.SelectContext(ctx, &result.Hourly, `
			SELECT EXTRACT(HOUR FROM ended_at AT TIME ZONE $3)::int AS hour,
				COUNT(*)::int AS session_count,
				COALESCE(SUM(total_gross_cents), 0)::bigint AS gross_cents
			FROM sales_sessions
			WHERE status = 'completed' AND ended_at >= $1 AND ended_at < $2
			GROUP BY hour
			ORDER BY hour
		`, params.From, params.To, params.From.Location().String())
		if err != nil {
			return result, err
		}
	}

	return result, nil
}
