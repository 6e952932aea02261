package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/pricing"
	"automatpos/backend/internal/store"
)

const sessionColumns = `id, user_id, status, session_type, started_at, ended_at, last_activity, locked_at,
	item_count, total_net_cents, total_vat_cents, total_deposit_cents, total_gross_cents,
	payment_method, payment_received_cents, change_cents, notes, receipt_path,
	merged_into, split_from, transferred_from, transferred_at,
	COALESCE(auto_save_data::text, '') AS auto_save_data, auto_saved_at`

const itemColumns = `id, session_id, product_id, product_name, barcode, quantity, unit_price_cents,
	unit_deposit_cents, vat_rate, net_cents, vat_cents, deposit_cents, gross_cents, total_cents, created_at`

var serializable = &sql.TxOptions{Isolation: sql.LevelSerializable}

func (s *Store) CreateSession(ctx context.Context, params store.CreateSessionParams) (*domain.SalesSession, error) {
	tx, err := s.db.BeginTxx(ctx, serializable)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var active int
	if err := tx.GetContext(ctx, &active, `SELECT COUNT(*) FROM sales_sessions WHERE status = 'active'`); err != nil {
		return nil, err
	}
	if params.MaxActive > 0 && active >= params.MaxActive {
		return nil, store.ErrMaxSessionsExceeded
	}

	locked, err := userHoldsLock(ctx, tx, params.Session.UserID, params.LockCutoff, 0)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, store.ErrUserAlreadyLocked
	}

	in := params.Session
	var created domain.SalesSession
	err = tx.GetContext(ctx, &created, `
		INSERT INTO sales_sessions (user_id, status, session_type, started_at, last_activity, locked_at, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+sessionColumns,
		in.UserID, in.Status, in.Type, in.StartedAt, in.LastActivity, in.LockedAt, in.Notes)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created.Items = []domain.LineItem{}
	return &created, nil
}

func (s *Store) GetSession(ctx context.Context, id int64) (*domain.SalesSession, error) {
	return loadSession(ctx, s.db, id, false)
}

func (s *Store) ListSessionsByStatus(ctx context.Context, status domain.SessionStatus) ([]domain.SalesSession, error) {
	sessions := make([]domain.SalesSession, 0)
	err := s.db.SelectContext(ctx, &sessions, `
		SELECT `+sessionColumns+`
		FROM sales_sessions
		WHERE status = $1
		ORDER BY id
	`, status)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// ReactivateSession flips a recoverable session back to active with a single
// conditional update; the affected-row count decides the outcome.
func (s *Store) ReactivateSession(ctx context.Context, params store.ReactivateParams) (*domain.SalesSession, error) {
	var session domain.SalesSession
	err := s.db.GetContext(ctx, &session, `
		UPDATE sales_sessions
		SET status = 'active', locked_at = $3, last_activity = $3, ended_at = NULL
		WHERE id = $1 AND user_id = $2
			AND status IN ('interrupted', 'expired', 'error')
			AND last_activity >= $4
		RETURNING `+sessionColumns,
		params.SessionID, params.UserID, params.Now, params.ActiveSince)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		var owner int64
		if err := s.db.GetContext(ctx, &owner, `SELECT user_id FROM sales_sessions WHERE id = $1`, params.SessionID); err != nil {
			return nil, notFound(err)
		}
		if owner != params.UserID {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrSessionState
	}

	items, err := loadItems(ctx, s.db, session.ID)
	if err != nil {
		return nil, err
	}
	session.Items = items
	return &session, nil
}

func (s *Store) TouchSession(ctx context.Context, id int64, userID int64, now time.Time) (*domain.SalesSession, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales_sessions
		SET locked_at = $3, last_activity = $3
		WHERE id = $1 AND user_id = $2 AND status = 'active'
	`, id, userID, now)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, accessError(ctx, s.db, id, userID)
	}
	return loadSession(ctx, s.db, id, false)
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id int64, from domain.SessionStatus, to domain.SessionStatus, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales_sessions
		SET status = $3::text,
			last_activity = $4,
			locked_at = CASE WHEN $3::text = 'active' THEN locked_at ELSE NULL END
		WHERE id = $1 AND status = $2
	`, id, from, to, now)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM sales_sessions WHERE id = $1)`, id); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrSessionState
	}
	return nil
}

func (s *Store) AddSessionItem(ctx context.Context, sessionID int64, userID int64, item domain.LineItem, now time.Time) (*domain.SalesSession, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := lockOwnedActive(ctx, tx, sessionID, userID); err != nil {
		return nil, err
	}

	pricing.Compute(&item)
	item.SessionID = sessionID
	item.CreatedAt = now
	if err := insertItem(ctx, tx, &item); err != nil {
		return nil, err
	}
	if err := recomputeTotals(ctx, tx, sessionID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sales_sessions SET locked_at = $2, last_activity = $2 WHERE id = $1`, sessionID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return loadSession(ctx, s.db, sessionID, false)
}

func (s *Store) RemoveSessionItem(ctx context.Context, sessionID int64, userID int64, itemID int64, now time.Time) (*domain.SalesSession, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := lockOwnedActive(ctx, tx, sessionID, userID); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sales_items WHERE id = $1 AND session_id = $2`, itemID, sessionID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	if err := recomputeTotals(ctx, tx, sessionID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sales_sessions SET locked_at = $2, last_activity = $2 WHERE id = $1`, sessionID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return loadSession(ctx, s.db, sessionID, false)
}

func (s *Store) MergeSessions(ctx context.Context, params store.MergeParams) (*domain.SalesSession, int, error) {
	if params.TargetID == params.SourceID {
		return nil, 0, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTxx(ctx, serializable)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	rows := make([]domain.SalesSession, 0, 2)
	err = tx.SelectContext(ctx, &rows, `
		SELECT `+sessionColumns+`
		FROM sales_sessions
		WHERE id IN ($1, $2)
		ORDER BY id
		FOR UPDATE
	`, params.TargetID, params.SourceID)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) != 2 {
		return nil, 0, store.ErrNotFound
	}
	for _, row := range rows {
		if row.UserID != params.UserID {
			return nil, 0, store.ErrNotOwner
		}
		if row.Status.Terminal() {
			return nil, 0, store.ErrSessionState
		}
	}

	res, err := tx.ExecContext(ctx, `UPDATE sales_items SET session_id = $1 WHERE session_id = $2`, params.TargetID, params.SourceID)
	if err != nil {
		return nil, 0, err
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return nil, 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sales_sessions
		SET status = 'merged', merged_into = $2, locked_at = NULL, ended_at = $3, last_activity = $3
		WHERE id = $1
	`, params.SourceID, params.TargetID, params.Now); err != nil {
		return nil, 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sales_sessions SET last_activity = $2 WHERE id = $1`, params.TargetID, params.Now); err != nil {
		return nil, 0, err
	}
	if err := recomputeTotals(ctx, tx, params.SourceID); err != nil {
		return nil, 0, err
	}
	if err := recomputeTotals(ctx, tx, params.TargetID); err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	target, err := loadSession(ctx, s.db, params.TargetID, false)
	if err != nil {
		return nil, 0, err
	}
	return target, int(moved), nil
}

func (s *Store) SplitSession(ctx context.Context, params store.SplitParams) (*domain.SalesSession, *domain.SalesSession, error) {
	if len(params.ItemIDs) == 0 {
		return nil, nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTxx(ctx, serializable)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	source, err := loadSession(ctx, tx, params.SourceID, true)
	if err != nil {
		return nil, nil, err
	}
	if source.UserID != params.UserID {
		return nil, nil, store.ErrNotOwner
	}
	if source.Status.Terminal() {
		return nil, nil, store.ErrSessionState
	}

	ids := uniqueIDs(params.ItemIDs)
	owned := make(map[int64]bool, len(source.Items))
	for _, item := range source.Items {
		owned[item.ID] = true
	}
	missing := make([]int64, 0)
	for _, id := range ids {
		if !owned[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &store.ItemsNotInSessionError{SessionID: source.ID, ItemIDs: missing}
	}

	var splitID int64
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO sales_sessions (user_id, status, session_type, started_at, last_activity, split_from)
		VALUES ($1, 'active', 'split', $2, $2, $3)
		RETURNING id
	`, source.UserID, params.Now, source.ID).Scan(&splitID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sales_items SET session_id = $1 WHERE session_id = $2 AND id = ANY($3)
	`, splitID, source.ID, ids); err != nil {
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sales_sessions SET last_activity = $2 WHERE id = $1`, source.ID, params.Now); err != nil {
		return nil, nil, err
	}
	if err := recomputeTotals(ctx, tx, source.ID); err != nil {
		return nil, nil, err
	}
	if err := recomputeTotals(ctx, tx, splitID); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	updatedSource, err := loadSession(ctx, s.db, source.ID, false)
	if err != nil {
		return nil, nil, err
	}
	split, err := loadSession(ctx, s.db, splitID, false)
	if err != nil {
		return nil, nil, err
	}
	return updatedSource, split, nil
}

func (s *Store) TransferSession(ctx context.Context, params store.TransferParams) (*domain.SalesSession, error) {
	tx, err := s.db.BeginTxx(ctx, serializable)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current struct {
		UserID int64                `db:"user_id"`
		Status domain.SessionStatus `db:"status"`
	}
	if err := tx.GetContext(ctx, &current, `SELECT user_id, status FROM sales_sessions WHERE id = $1 FOR UPDATE`, params.SessionID); err != nil {
		return nil, notFound(err)
	}
	if current.UserID != params.FromUserID {
		return nil, store.ErrNotOwner
	}
	if current.Status.Terminal() {
		return nil, store.ErrSessionState
	}

	locked, err := userHoldsLock(ctx, tx, params.ToUserID, params.LockCutoff, params.SessionID)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, store.ErrTargetUserLocked
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sales_sessions
		SET user_id = $2,
			locked_at = CASE WHEN status = 'active' THEN $4::timestamptz ELSE NULL END,
			last_activity = CASE WHEN status = 'active' THEN $4::timestamptz ELSE last_activity END,
			transferred_from = $3, transferred_at = $4
		WHERE id = $1
	`, params.SessionID, params.ToUserID, params.FromUserID, params.Now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return loadSession(ctx, s.db, params.SessionID, false)
}

func (s *Store) ExpireIdleSessions(ctx context.Context, idleBefore time.Time, _ time.Time) ([]int64, error) {
	ids := make([]int64, 0)
	err := s.db.SelectContext(ctx, &ids, `
		UPDATE sales_sessions
		SET status = 'expired', locked_at = NULL
		WHERE status = 'active' AND last_activity < $1
		RETURNING id
	`, idleBefore)
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) ArchiveSessions(ctx context.Context, startedBefore time.Time, now time.Time) ([]int64, error) {
	statuses := make([]string, 0, len(store.Archivable))
	for _, status := range store.Archivable {
		statuses = append(statuses, string(status))
	}

	ids := make([]int64, 0)
	err := s.db.SelectContext(ctx, &ids, `
		UPDATE sales_sessions
		SET status = 'archived', locked_at = NULL, ended_at = COALESCE(ended_at, $2)
		WHERE status = ANY($3) AND started_at < $1
		RETURNING id
	`, startedBefore, now, statuses)
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) SaveAutoSave(ctx context.Context, id int64, data string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales_sessions SET auto_save_data = $2::jsonb, auto_saved_at = $3 WHERE id = $1
	`, id, data, at)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *Store) SetReceiptPath(ctx context.Context, id int64, path string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sales_sessions SET receipt_path = $2 WHERE id = $1`, id, path)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// FinalizeSale checks stock under row locks and writes the session, its line
// items, the stock decrements and the stock movements in one transaction.
func (s *Store) FinalizeSale(ctx context.Context, params store.FinalizeParams) (*domain.SalesSession, error) {
	tx, err := s.db.BeginTxx(ctx, serializable)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var lines []domain.LineItem
	if params.SessionID > 0 {
		existing, err := lockOwnedActive(ctx, tx, params.SessionID, params.UserID)
		if err != nil {
			return nil, err
		}
		lines, err = loadItems(ctx, tx, existing.ID)
		if err != nil {
			return nil, err
		}
	} else {
		lines = make([]domain.LineItem, len(params.Items))
		copy(lines, params.Items)
	}
	if len(lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	requested := make(map[int64]int, len(lines))
	order := make([]int64, 0, len(lines))
	names := make(map[int64]string, len(lines))
	for _, line := range lines {
		if _, seen := requested[line.ProductID]; !seen {
			order = append(order, line.ProductID)
			names[line.ProductID] = line.ProductName
		}
		requested[line.ProductID] += line.Quantity
	}

	type stockRow struct {
		ID     int64  `db:"id"`
		Name   string `db:"name"`
		Stock  int    `db:"stock"`
		Active bool   `db:"active"`
	}
	locked := make([]stockRow, 0, len(order))
	if err := tx.SelectContext(ctx, &locked, `
		SELECT id, name, stock, active
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, order); err != nil {
		return nil, err
	}
	stock := make(map[int64]stockRow, len(locked))
	for _, row := range locked {
		stock[row.ID] = row
	}

	shortages := make([]domain.StockShortage, 0)
	for _, productID := range order {
		available := 0
		name := names[productID]
		if row, ok := stock[productID]; ok && row.Active {
			available = row.Stock
			name = row.Name
		}
		if requested[productID] > available {
			shortages = append(shortages, domain.StockShortage{
				ProductID: productID,
				Name:      name,
				Requested: requested[productID],
				Available: available,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &store.InsufficientStockError{Items: shortages}
	}

	for i := range lines {
		pricing.Compute(&lines[i])
	}
	totals := pricing.Sum(lines)
	if params.ExpectedTotalCents > 0 && totals.GrossCents != params.ExpectedTotalCents {
		return nil, store.ErrSessionState
	}
	change := pricing.Change(params.PaymentReceivedCents, totals.GrossCents)

	sessionID := params.SessionID
	if sessionID == 0 {
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO sales_sessions (user_id, status, session_type, started_at, ended_at, last_activity,
				item_count, total_net_cents, total_vat_cents, total_deposit_cents, total_gross_cents,
				payment_method, payment_received_cents, change_cents, notes)
			VALUES ($1,'completed','regular',$2,$2,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			RETURNING id
		`, params.UserID, params.Now, totals.ItemCount, totals.NetCents, totals.VATCents, totals.DepositCents,
			totals.GrossCents, params.PaymentMethod, params.PaymentReceivedCents, change, params.Notes).Scan(&sessionID)
		if err != nil {
			return nil, err
		}
		for i := range lines {
			lines[i].SessionID = sessionID
			lines[i].CreatedAt = params.Now
			if err := insertItem(ctx, tx, &lines[i]); err != nil {
				return nil, err
			}
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE sales_sessions
			SET status = 'completed', ended_at = $2, last_activity = $2, locked_at = NULL,
				item_count = $3, total_net_cents = $4, total_vat_cents = $5, total_deposit_cents = $6,
				total_gross_cents = $7, payment_method = $8, payment_received_cents = $9, change_cents = $10,
				notes = CASE WHEN $11 = '' THEN notes ELSE $11 END
			WHERE id = $1
		`, sessionID, params.Now, totals.ItemCount, totals.NetCents, totals.VATCents, totals.DepositCents,
			totals.GrossCents, params.PaymentMethod, params.PaymentReceivedCents, change, params.Notes)
		if err != nil {
			return nil, err
		}
	}

	for _, line := range lines {
		var newStock int
		err := tx.QueryRowxContext(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = $3
			WHERE id = $1 AND stock >= $2
			RETURNING stock
		`, line.ProductID, line.Quantity, params.Now).Scan(&newStock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrInsufficientStock
			}
			return nil, err
		}
		sid := sessionID
		movement := domain.StockMovement{
			ProductID: line.ProductID,
			OldStock:  newStock + line.Quantity,
			NewStock:  newStock,
			Change:    -line.Quantity,
			Reason:    "sale",
			SessionID: &sid,
			UserID:    params.UserID,
			CreatedAt: params.Now,
		}
		if err := insertMovement(ctx, tx, &movement); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return loadSession(ctx, s.db, sessionID, false)
}

func (s *Store) CreateSessionActivity(ctx context.Context, entry domain.SessionActivity) error {
	payload := entry.Payload
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_activity_log (session_id, activity_type, payload, user_id, client_ip, created_at)
		VALUES ($1,$2,$3::jsonb,$4,$5,$6)
	`, entry.SessionID, entry.ActivityType, payload, entry.UserID, entry.ClientIP, entry.CreatedAt)
	return err
}

func (s *Store) ListSessionActivity(ctx context.Context, sessionID int64) ([]domain.SessionActivity, error) {
	entries := make([]domain.SessionActivity, 0)
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, session_id, activity_type, payload::text AS payload, user_id, client_ip, created_at
		FROM session_activity_log
		WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func loadSession(ctx context.Context, q queryer, id int64, forUpdate bool) (*domain.SalesSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM sales_sessions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var session domain.SalesSession
	if err := sqlx.GetContext(ctx, q, &session, query, id); err != nil {
		return nil, notFound(err)
	}
	items, err := loadItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	session.Items = items
	return &session, nil
}

func loadItems(ctx context.Context, q queryer, sessionID int64) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0, 8)
	err := sqlx.SelectContext(ctx, q, &items, `
		SELECT `+itemColumns+`
		FROM sales_items
		WHERE session_id = $1
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// lockOwnedActive row-locks the session and checks the caller may write to it.
func lockOwnedActive(ctx context.Context, q queryer, id int64, userID int64) (*domain.SalesSession, error) {
	var session domain.SalesSession
	err := sqlx.GetContext(ctx, q, &session, `SELECT `+sessionColumns+` FROM sales_sessions WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, notFound(err)
	}
	if session.UserID != userID {
		return nil, store.ErrNotOwner
	}
	if session.Status != domain.SessionActive {
		return nil, store.ErrSessionState
	}
	return &session, nil
}

func accessError(ctx context.Context, q queryer, id int64, userID int64) error {
	var current struct {
		UserID int64                `db:"user_id"`
		Status domain.SessionStatus `db:"status"`
	}
	if err := sqlx.GetContext(ctx, q, &current, `SELECT user_id, status FROM sales_sessions WHERE id = $1`, id); err != nil {
		return notFound(err)
	}
	if current.UserID != userID {
		return store.ErrNotOwner
	}
	return store.ErrSessionState
}

func userHoldsLock(ctx context.Context, q queryer, userID int64, cutoff time.Time, exceptID int64) (bool, error) {
	var locked bool
	err := sqlx.GetContext(ctx, q, &locked, `
		SELECT EXISTS (
			SELECT 1 FROM sales_sessions
			WHERE user_id = $1 AND status = 'active' AND locked_at IS NOT NULL AND locked_at >= $2 AND id <> $3
		)
	`, userID, cutoff, exceptID)
	return locked, err
}

func insertItem(ctx context.Context, q queryer, item *domain.LineItem) error {
	return q.QueryRowxContext(ctx, `
		INSERT INTO sales_items (session_id, product_id, product_name, barcode, quantity, unit_price_cents,
			unit_deposit_cents, vat_rate, net_cents, vat_cents, deposit_cents, gross_cents, total_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id
	`, item.SessionID, item.ProductID, item.ProductName, item.Barcode, item.Quantity, item.UnitPriceCents,
		item.UnitDepositCents, item.VATRate, item.NetCents, item.VATCents, item.DepositCents, item.GrossCents,
		item.TotalCents, item.CreatedAt).Scan(&item.ID)
}

func recomputeTotals(ctx context.Context, q queryer, sessionID int64) error {
	items, err := loadItems(ctx, q, sessionID)
	if err != nil {
		return err
	}
	totals := pricing.Sum(items)
	_, err = q.ExecContext(ctx, `
		UPDATE sales_sessions
		SET item_count = $2, total_net_cents = $3, total_vat_cents = $4, total_deposit_cents = $5, total_gross_cents = $6
		WHERE id = $1
	`, sessionID, totals.ItemCount, totals.NetCents, totals.VATCents, totals.DepositCents, totals.GrossCents)
	return err
}

func expectRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}
