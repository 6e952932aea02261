package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/events"
	"automatpos/backend/internal/pricing"
	"automatpos/backend/internal/store"
	"automatpos/backend/internal/xid"
)

// CreateSession opens a new active session for the caller and stamps its lock.
// The active-session ceiling is checked before the caller's own lock.
func (s *Service) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (domain.SalesSession, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SalesSession{}, err
	}

	now := s.now()
	created, err := s.repo.CreateSession(ctx, store.CreateSessionParams{
		Session: domain.SalesSession{
			UserID:       actor.UserID,
			Status:       domain.SessionActive,
			Type:         domain.SessionTypeRegular,
			StartedAt:    now,
			LastActivity: now,
			LockedAt:     &now,
			Notes:        strings.TrimSpace(req.Notes),
		},
		MaxActive:  s.opts.MaxActiveSessions,
		LockCutoff: now.Add(-s.opts.LockTimeout),
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrMaxSessionsExceeded), errors.Is(err, store.ErrUserAlreadyLocked):
			return domain.SalesSession{}, err
		default:
			return domain.SalesSession{}, s.dbError("create session", err, zap.Int64("user_id", actor.UserID))
		}
	}

	s.logActivity(ctx, created.ID, "session_created", map[string]any{"notes": created.Notes})
	s.emit(events.Event{Name: events.SessionCreated, SessionID: created.ID, UserID: actor.UserID})
	return *created, nil
}

// GetSession returns a session with its line items. Cashiers only see their own.
func (s *Service) GetSession(ctx context.Context, id int64) (domain.SalesSession, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SalesSession{}, err
	}
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SalesSession{}, ErrSessionNotFound
		}
		return domain.SalesSession{}, s.dbError("get session", err, zap.Int64("session_id", id))
	}
	if session.UserID != actor.UserID && actor.Role != domain.RoleAdmin {
		return domain.SalesSession{}, ErrSessionNotFound
	}
	return *session, nil
}

// RecoverSession reactivates an interrupted, expired or errored session that
// saw activity within the recovery window.
func (s *Service) RecoverSession(ctx context.Context, id int64) (domain.RecoveredSession, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.RecoveredSession{}, err
	}

	now := s.now()
	session, err := s.repo.ReactivateSession(ctx, store.ReactivateParams{
		SessionID:   id,
		UserID:      actor.UserID,
		ActiveSince: now.Add(-s.opts.RecoveryWindow),
		Now:         now,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domain.RecoveredSession{}, ErrSessionNotFound
		case errors.Is(err, store.ErrSessionState):
			return domain.RecoveredSession{}, ErrNotRecoverable
		default:
			return domain.RecoveredSession{}, s.dbError("recover session", err, zap.Int64("session_id", id))
		}
	}

	result := domain.RecoveredSession{Session: *session, Items: session.Items}
	if session.AutoSaveData != "" {
		result.AutoSaveData = json.RawMessage(session.AutoSaveData)
	}

	s.logActivity(ctx, id, "session_recovered", map[string]any{"items": len(session.Items)})
	s.emit(events.Event{Name: events.SessionRecovered, SessionID: id, UserID: actor.UserID})
	return result, nil
}

// MergeSessions moves every line item of source into target and retires source as merged.
func (s *Service) MergeSessions(ctx context.Context, targetID int64, sourceID int64) (domain.SalesSession, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SalesSession{}, err
	}
	if targetID <= 0 || sourceID <= 0 {
		return domain.SalesSession{}, invalid("target and source session ids are required")
	}
	if targetID == sourceID {
		return domain.SalesSession{}, invalid("a session cannot be merged into itself")
	}

	merged, moved, err := s.repo.MergeSessions(ctx, store.MergeParams{
		TargetID: targetID,
		SourceID: sourceID,
		UserID:   actor.UserID,
		Now:      s.now(),
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domain.SalesSession{}, ErrSessionsNotFound
		case errors.Is(err, store.ErrNotOwner):
			return domain.SalesSession{}, ErrPermissionDenied
		case errors.Is(err, store.ErrSessionState):
			return domain.SalesSession{}, ErrSessionState
		case errors.Is(err, store.ErrInvalidTransaction):
			return domain.SalesSession{}, invalid("a session cannot be merged into itself")
		default:
			return domain.SalesSession{}, s.dbError("merge sessions", err,
				zap.Int64("target_id", targetID), zap.Int64("source_id", sourceID))
		}
	}

	s.logActivity(ctx, targetID, "session_merged", map[string]any{"source_session_id": sourceID, "moved_items": moved})
	s.logActivity(ctx, sourceID, "merged_into", map[string]any{"target_session_id": targetID})
	s.emit(events.Event{Name: events.SessionMerged, SessionID: targetID, UserID: actor.UserID, Count: moved})
	return *merged, nil
}

// SplitSession moves the listed line items into a new split session. Any id
// that does not belong to the source rejects the whole request.
func (s *Service) SplitSession(ctx context.Context, id int64, itemIDs []int64) (domain.SplitResult, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SplitResult{}, err
	}
	if len(itemIDs) == 0 {
		return domain.SplitResult{}, ErrNoItemsSpecified
	}

	source, split, err := s.repo.SplitSession(ctx, store.SplitParams{
		SourceID: id,
		UserID:   actor.UserID,
		ItemIDs:  itemIDs,
		Now:      s.now(),
	})
	if err != nil {
		var foreign *store.ItemsNotInSessionError
		switch {
		case errors.As(err, &foreign):
			problems := make([]string, 0, len(foreign.ItemIDs))
			for _, itemID := range foreign.ItemIDs {
				problems = append(problems, fmt.Sprintf("item %d does not belong to session %d", itemID, foreign.SessionID))
			}
			return domain.SplitResult{}, &ValidationError{Problems: problems}
		case errors.Is(err, store.ErrNotFound):
			return domain.SplitResult{}, ErrSessionNotFound
		case errors.Is(err, store.ErrNotOwner):
			return domain.SplitResult{}, ErrSessionAccessDenied
		case errors.Is(err, store.ErrSessionState):
			return domain.SplitResult{}, ErrSessionState
		case errors.Is(err, store.ErrInvalidTransaction):
			return domain.SplitResult{}, ErrNoItemsSpecified
		default:
			return domain.SplitResult{}, s.dbError("split session", err, zap.Int64("session_id", id))
		}
	}

	moved := len(split.Items)
	s.logActivity(ctx, id, "session_split", map[string]any{"split_session_id": split.ID, "item_ids": itemIDs})
	s.logActivity(ctx, split.ID, "split_from", map[string]any{"source_session_id": id, "moved_items": moved})
	s.emit(events.Event{Name: events.SessionSplit, SessionID: split.ID, UserID: actor.UserID, Count: moved})
	return domain.SplitResult{Source: *source, Split: *split, MovedItems: moved}, nil
}

// TransferSession hands a session from one user to another. Admin only.
func (s *Service) TransferSession(ctx context.Context, id int64, fromUserID int64, toUserID int64) (domain.SalesSession, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.SalesSession{}, err
	}

	var problems []string
	if fromUserID <= 0 {
		problems = append(problems, "from_user_id is required")
	}
	if toUserID <= 0 {
		problems = append(problems, "to_user_id is required")
	}
	if fromUserID > 0 && fromUserID == toUserID {
		problems = append(problems, "from_user_id and to_user_id must differ")
	}
	if len(problems) > 0 {
		return domain.SalesSession{}, &ValidationError{Problems: problems}
	}

	target, err := s.repo.GetUser(ctx, toUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SalesSession{}, ErrTargetUserNotFound
		}
		return domain.SalesSession{}, s.dbError("load transfer target", err, zap.Int64("user_id", toUserID))
	}
	if !target.Active {
		return domain.SalesSession{}, ErrTargetUserNotFound
	}

	now := s.now()
	session, err := s.repo.TransferSession(ctx, store.TransferParams{
		SessionID:  id,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		LockCutoff: now.Add(-s.opts.LockTimeout),
		Now:        now,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domain.SalesSession{}, ErrSessionNotFound
		case errors.Is(err, store.ErrNotOwner):
			return domain.SalesSession{}, ErrSessionMismatch
		case errors.Is(err, store.ErrTargetUserLocked):
			return domain.SalesSession{}, ErrTargetUserLocked
		case errors.Is(err, store.ErrSessionState):
			return domain.SalesSession{}, ErrSessionState
		default:
			return domain.SalesSession{}, s.dbError("transfer session", err, zap.Int64("session_id", id))
		}
	}

	s.logActivity(ctx, id, "session_transferred", map[string]any{"from_user_id": fromUserID, "to_user_id": toUserID})
	s.emit(events.Event{Name: events.SessionTransferred, SessionID: id, UserID: toUserID})
	return *session, nil
}

// AddSessionItem snapshots the product's current price, deposit and VAT into a
// new line item of the caller's active session.
func (s *Service) AddSessionItem(ctx context.Context, id int64, req domain.AddSessionItemRequest) (domain.SalesSession, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SalesSession{}, err
	}

	if req.Quantity == 0 {
		req.Quantity = 1
	}
	req.Barcode = strings.TrimSpace(req.Barcode)
	var problems []string
	if req.Quantity < 0 {
		problems = append(problems, "quantity must be positive")
	}
	if req.ProductID <= 0 && req.Barcode == "" {
		problems = append(problems, "product_id or barcode is required")
	}
	if len(problems) > 0 {
		return domain.SalesSession{}, &ValidationError{Problems: problems}
	}

	product, err := s.findProduct(ctx, req.ProductID, req.Barcode)
	if err != nil {
		return domain.SalesSession{}, err
	}

	item := pricing.Line(*product, req.Quantity)
	session, err := s.repo.AddSessionItem(ctx, id, actor.UserID, item, s.now())
	if err != nil {
		return domain.SalesSession{}, s.sessionWriteError("add session item", id, err)
	}

	s.logActivity(ctx, id, "item_added", map[string]any{"product_id": product.ID, "quantity": req.Quantity})
	return *session, nil
}

func (s *Service) RemoveSessionItem(ctx context.Context, id int64, itemID int64) (domain.SalesSession, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SalesSession{}, err
	}

	session, err := s.repo.RemoveSessionItem(ctx, id, actor.UserID, itemID, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if _, getErr := s.repo.GetSession(ctx, id); getErr == nil {
				return domain.SalesSession{}, ErrItemNotFound
			}
		}
		return domain.SalesSession{}, s.sessionWriteError("remove session item", id, err)
	}

	s.logActivity(ctx, id, "item_removed", map[string]any{"item_id": itemID})
	return *session, nil
}

// TouchSession refreshes the caller's lock and activity timestamp.
func (s *Service) TouchSession(ctx context.Context, id int64) (domain.SalesSession, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SalesSession{}, err
	}
	session, err := s.repo.TouchSession(ctx, id, actor.UserID, s.now())
	if err != nil {
		return domain.SalesSession{}, s.sessionWriteError("touch session", id, err)
	}
	return *session, nil
}

// InterruptSession parks an active session so it can be recovered later.
func (s *Service) InterruptSession(ctx context.Context, id int64) (domain.SalesSession, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SalesSession{}, err
	}

	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SalesSession{}, ErrSessionNotFound
		}
		return domain.SalesSession{}, s.dbError("load session", err, zap.Int64("session_id", id))
	}
	if session.UserID != actor.UserID && actor.Role != domain.RoleAdmin {
		return domain.SalesSession{}, ErrSessionAccessDenied
	}

	if err := s.repo.UpdateSessionStatus(ctx, id, domain.SessionActive, domain.SessionInterrupted, s.now()); err != nil {
		return domain.SalesSession{}, s.sessionWriteError("interrupt session", id, err)
	}

	s.logActivity(ctx, id, "session_interrupted", nil)
	s.emit(events.Event{Name: events.SessionInterrupted, SessionID: id, UserID: session.UserID})
	return s.GetSession(ctx, id)
}

func (s *Service) ListSessionActivity(ctx context.Context, id int64) ([]domain.SessionActivity, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetSession(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, s.dbError("load session", err, zap.Int64("session_id", id))
	}
	entries, err := s.repo.ListSessionActivity(ctx, id)
	if err != nil {
		return nil, s.dbError("list session activity", err, zap.Int64("session_id", id))
	}
	return entries, nil
}

// CleanupExpiredSessions expires idle active sessions, then archives stale
// recoverable ones. It is safe to run concurrently with normal traffic.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (domain.CleanupResult, error) {
	now := s.now()

	expired, err := s.repo.ExpireIdleSessions(ctx, now.Add(-s.opts.SessionTimeout), now)
	if err != nil {
		return domain.CleanupResult{}, s.dbError("expire idle sessions", err)
	}
	for _, id := range expired {
		s.logActivity(ctx, id, "session_expired", nil)
	}

	archived, err := s.repo.ArchiveSessions(ctx, now.Add(-s.opts.ArchiveAfter), now)
	if err != nil {
		return domain.CleanupResult{Expired: len(expired)}, s.dbError("archive sessions", err)
	}
	for _, id := range archived {
		s.logActivity(ctx, id, "session_archived", nil)
	}

	if len(expired) > 0 {
		s.emit(events.Event{Name: events.SessionsExpired, Count: len(expired)})
	}
	if len(archived) > 0 {
		s.emit(events.Event{Name: events.SessionsArchived, Count: len(archived)})
	}
	s.logger.Info("session cleanup finished", zap.Int("expired", len(expired)), zap.Int("archived", len(archived)))
	return domain.CleanupResult{Expired: len(expired), Archived: len(archived)}, nil
}

// AutoSaveActiveSessions writes a recovery snapshot into every active session.
// A failure on one session is logged and the sweep continues.
func (s *Service) AutoSaveActiveSessions(ctx context.Context) (int, error) {
	active, err := s.repo.ListSessionsByStatus(ctx, domain.SessionActive)
	if err != nil {
		return 0, s.dbError("list active sessions", err)
	}

	now := s.now()
	saved := 0
	for _, session := range active {
		snapshot := domain.AutoSaveSnapshot{
			SnapshotID:      xid.New("snap"),
			ItemCount:       session.ItemCount,
			TotalGrossCents: session.TotalGrossCents,
			DurationSeconds: int64(now.Sub(session.StartedAt).Seconds()),
			LastActivity:    session.LastActivity,
			SavedAt:         now,
		}
		raw, err := json.Marshal(snapshot)
		if err != nil {
			s.logger.Warn("auto-save encode failed", zap.Int64("session_id", session.ID), zap.Error(err))
			continue
		}
		if err := s.repo.SaveAutoSave(ctx, session.ID, string(raw), now); err != nil {
			s.logger.Warn("auto-save failed", zap.Int64("session_id", session.ID), zap.Error(err))
			continue
		}
		saved++
	}
	return saved, nil
}

func (s *Service) sessionWriteError(op string, id int64, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, store.ErrNotOwner):
		return ErrSessionAccessDenied
	case errors.Is(err, store.ErrSessionState):
		return ErrSessionState
	default:
		return s.dbError(op, err, zap.Int64("session_id", id))
	}
}
