package memory

import (
	"context"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/pricing"
	"automatpos/backend/internal/store"
)

type Store struct {
	mu         sync.RWMutex
	seq        int64
	products   map[int64]domain.Product
	users      map[int64]domain.UserAccount
	sessions   map[int64]domain.SalesSession
	items      map[int64]domain.LineItem
	activities []domain.SessionActivity
	movements  []domain.StockMovement
	scans      []domain.ScanLog
	emails     []domain.EmailLog
}

func New() *Store {
	return &Store{
		products: make(map[int64]domain.Product),
		users:    make(map[int64]domain.UserAccount),
		sessions: make(map[int64]domain.SalesSession),
		items:    make(map[int64]domain.LineItem),
	}
}

// NewSeeded returns a store with demo users and a small vending catalog.
// Seed passwords come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	now := time.Now().UTC()

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("hash seed password, user not seeded", zap.String("username", u.username), zap.Error(err))
			s.seq++
			continue
		}
		s.seq++
		s.users[s.seq] = domain.UserAccount{
			ID:        s.seq,
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}

	for _, p := range []domain.Product{
		{Barcode: "4000000000011", Name: "Cola 0.33l", PriceCents: 150, DepositCents: 25, VATRate: 19, PurchasePriceCents: 70, Stock: 48, MinStock: 10, Category: "drinks"},
		{Barcode: "4000000000028", Name: "Still Water 0.5l", PriceCents: 120, DepositCents: 25, VATRate: 19, PurchasePriceCents: 40, Stock: 36, MinStock: 10, Category: "drinks"},
		{Barcode: "4000000000035", Name: "Club Mate 0.5l", PriceCents: 220, DepositCents: 15, VATRate: 19, PurchasePriceCents: 110, Stock: 24, MinStock: 6, Category: "drinks"},
		{Barcode: "4000000000042", Name: "Chocolate Bar", PriceCents: 130, VATRate: 7, PurchasePriceCents: 55, Stock: 40, MinStock: 8, Category: "snacks"},
		{Barcode: "4000000000059", Name: "Paprika Chips", PriceCents: 180, VATRate: 7, PurchasePriceCents: 80, Stock: 20, MinStock: 5, Category: "snacks"},
		{Barcode: "4000000000066", Name: "Gummy Bears", PriceCents: 110, VATRate: 7, PurchasePriceCents: 45, Stock: 4, MinStock: 5, Category: "snacks"},
	} {
		s.seq++
		p.ID = s.seq
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Category == result[j].Category {
			return result[i].Name < result[j].Name
		}
		return result[i].Category < result[j].Category
	})
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Barcode != "" {
		for _, existing := range s.products {
			if existing.Barcode == product.Barcode {
				return nil, store.ErrInvalidTransaction
			}
		}
	}

	now := time.Now().UTC()
	product.ID = s.nextID()
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if barcode != "" && p.Barcode == barcode {
			found := p
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.Active && p.LowStock() {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Stock == result[j].Stock {
			return result[i].ID < result[j].ID
		}
		return result[i].Stock < result[j].Stock
	})
	return result, nil
}

func (s *Store) AdjustStock(_ context.Context, adj domain.StockAdjustment) (*domain.StockMovement, error) {
	if adj.Delta == 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[adj.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	newStock := p.Stock + adj.Delta
	if newStock < 0 {
		return nil, &store.InsufficientStockError{Items: []domain.StockShortage{{
			ProductID: p.ID,
			Name:      p.Name,
			Requested: -adj.Delta,
			Available: p.Stock,
		}}}
	}

	movement := domain.StockMovement{
		ID:        s.nextID(),
		ProductID: p.ID,
		OldStock:  p.Stock,
		NewStock:  newStock,
		Change:    adj.Delta,
		Reason:    adj.Reason,
		UserID:    adj.UserID,
		CreatedAt: adj.At,
	}
	p.Stock = newStock
	p.UpdatedAt = adj.At
	s.products[p.ID] = p
	s.movements = append(s.movements, movement)

	return &movement, nil
}

func (s *Store) ListStockMovements(_ context.Context, productID int64, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if productID != 0 && m.ProductID != productID {
			continue
		}
		result = append(result, m)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateScanLog(_ context.Context, entry domain.ScanLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextID()
	s.scans = append(s.scans, entry)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == user.Username {
			return nil, store.ErrInvalidTransaction
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.ID = s.nextID()
	s.users[user.ID] = user

	created := user
	return &created, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, u := range s.users {
		if u.Username == username {
			u.Password = password
			s.users[id] = u
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) CreateSession(_ context.Context, params store.CreateSessionParams) (*domain.SalesSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	locked := false
	for _, existing := range s.sessions {
		if existing.Status != domain.SessionActive {
			continue
		}
		active++
		if existing.UserID == params.Session.UserID && existing.HoldsLock(params.LockCutoff) {
			locked = true
		}
	}
	if params.MaxActive > 0 && active >= params.MaxActive {
		return nil, store.ErrMaxSessionsExceeded
	}
	if locked {
		return nil, store.ErrUserAlreadyLocked
	}

	session := params.Session
	session.ID = s.nextID()
	s.sessions[session.ID] = session
	return s.withItems(session), nil
}

func (s *Store) GetSession(_ context.Context, id int64) (*domain.SalesSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.withItems(session), nil
}

func (s *Store) ListSessionsByStatus(_ context.Context, status domain.SessionStatus) ([]domain.SalesSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SalesSession, 0)
	for _, session := range s.sessions {
		if session.Status == status {
			result = append(result, session)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) ReactivateSession(_ context.Context, params store.ReactivateParams) (*domain.SalesSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[params.SessionID]
	if !ok || session.UserID != params.UserID {
		return nil, store.ErrNotFound
	}
	if !session.Status.Recoverable() || session.LastActivity.Before(params.ActiveSince) {
		return nil, store.ErrSessionState
	}

	now := params.Now
	session.Status = domain.SessionActive
	session.LockedAt = &now
	session.LastActivity = now
	session.EndedAt = nil
	s.sessions[session.ID] = session
	return s.withItems(session), nil
}

func (s *Store) TouchSession(_ context.Context, id int64, userID int64, now time.Time) (*domain.SalesSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ownedActive(id, userID)
	if err != nil {
		return nil, err
	}
	session.LockedAt = &now
	session.LastActivity = now
	s.sessions[id] = session
	return s.withItems(session), nil
}

func (s *Store) UpdateSessionStatus(_ context.Context, id int64, from domain.SessionStatus, to domain.SessionStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	if session.Status != from {
		return store.ErrSessionState
	}
	session.Status = to
	session.LastActivity = now
	if to != domain.SessionActive {
		session.LockedAt = nil
	}
	s.sessions[id] = session
	return nil
}

func (s *Store) AddSessionItem(_ context.Context, sessionID int64, userID int64, item domain.LineItem, now time.Time) (*domain.SalesSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ownedActive(sessionID, userID)
	if err != nil {
		return nil, err
	}
	pricing.Compute(&item)
	item.ID = s.nextID()
	item.SessionID = sessionID
	item.CreatedAt = now
	s.items[item.ID] = item

	session.LockedAt = &now
	session.LastActivity = now
	s.sessions[sessionID] = session
	s.recompute(sessionID)
	return s.withItems(s.sessions[sessionID]), nil
}

func (s *Store) RemoveSessionItem(_ context.Context, sessionID int64, userID int64, itemID int64, now time.Time) (*domain.SalesSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.ownedActive(sessionID, userID)
	if err != nil {
		return nil, err
	}
	item, ok := s.items[itemID]
	if !ok || item.SessionID != sessionID {
		return nil, store.ErrNotFound
	}
	delete(s.items, itemID)

	session.LockedAt = &now
	session.LastActivity = now
	s.sessions[sessionID] = session
	s.recompute(sessionID)
	return s.withItems(s.sessions[sessionID]), nil
}

func (s *Store) MergeSessions(_ context.Context, params store.MergeParams) (*domain.SalesSession, int, error) {
	if params.TargetID == params.SourceID {
		return nil, 0, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target, okTarget := s.sessions[params.TargetID]
	source, okSource := s.sessions[params.SourceID]
	if !okTarget || !okSource {
		return nil, 0, store.ErrNotFound
	}
	if target.UserID != params.UserID || source.UserID != params.UserID {
		return nil, 0, store.ErrNotOwner
	}
	if target.Status.Terminal() || source.Status.Terminal() {
		return nil, 0, store.ErrSessionState
	}

	moved := 0
	for id, item := range s.items {
		if item.SessionID == source.ID {
			item.SessionID = target.ID
			s.items[id] = item
			moved++
		}
	}

	now := params.Now
	targetID := target.ID
	source.Status = domain.SessionMerged
	source.MergedInto = &targetID
	source.LockedAt = nil
	source.EndedAt = &now
	source.LastActivity = now
	s.sessions[source.ID] = source
	target.LastActivity = now
	s.sessions[target.ID] = target

	s.recompute(source.ID)
	s.recompute(target.ID)
	return s.withItems(s.sessions[target.ID]), moved, nil
}

func (s *Store) SplitSession(_ context.Context, params store.SplitParams) (*domain.SalesSession, *domain.SalesSession, error) {
	if len(params.ItemIDs) == 0 {
		return nil, nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := s.sessions[params.SourceID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if source.UserID != params.UserID {
		return nil, nil, store.ErrNotOwner
	}
	if source.Status.Terminal() {
		return nil, nil, store.ErrSessionState
	}

	ids := uniqueIDs(params.ItemIDs)
	missing := make([]int64, 0)
	for _, id := range ids {
		item, ok := s.items[id]
		if !ok || item.SessionID != source.ID {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &store.ItemsNotInSessionError{SessionID: source.ID, ItemIDs: missing}
	}

	now := params.Now
	sourceID := source.ID
	split := domain.SalesSession{
		ID:           s.nextID(),
		UserID:       source.UserID,
		Status:       domain.SessionActive,
		Type:         domain.SessionTypeSplit,
		StartedAt:    now,
		LastActivity: now,
		SplitFrom:    &sourceID,
	}
	s.sessions[split.ID] = split
	for _, id := range ids {
		item := s.items[id]
		item.SessionID = split.ID
		s.items[id] = item
	}
	source.LastActivity = now
	s.sessions[source.ID] = source

	s.recompute(source.ID)
	s.recompute(split.ID)
	return s.withItems(s.sessions[source.ID]), s.withItems(s.sessions[split.ID]), nil
}

func (s *Store) TransferSession(_ context.Context, params store.TransferParams) (*domain.SalesSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[params.SessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if session.UserID != params.FromUserID {
		return nil, store.ErrNotOwner
	}
	if session.Status.Terminal() {
		return nil, store.ErrSessionState
	}
	for _, other := range s.sessions {
		if other.ID != session.ID && other.UserID == params.ToUserID && other.HoldsLock(params.LockCutoff) {
			return nil, store.ErrTargetUserLocked
		}
	}

	now := params.Now
	from := params.FromUserID
	session.UserID = params.ToUserID
	if session.Status == domain.SessionActive {
		session.LockedAt = &now
		session.LastActivity = now
	} else {
		// Status and last activity stay put so recovery still applies its window.
		session.LockedAt = nil
	}
	session.TransferredFrom = &from
	session.TransferredAt = &now
	s.sessions[session.ID] = session
	return s.withItems(session), nil
}

func (s *Store) ExpireIdleSessions(_ context.Context, idleBefore time.Time, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0)
	for id, session := range s.sessions {
		if session.Status == domain.SessionActive && session.LastActivity.Before(idleBefore) {
			session.Status = domain.SessionExpired
			session.LockedAt = nil
			s.sessions[id] = session
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) ArchiveSessions(_ context.Context, startedBefore time.Time, now time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0)
	for id, session := range s.sessions {
		if !slices.Contains(store.Archivable, session.Status) || !session.StartedAt.Before(startedBefore) {
			continue
		}
		session.Status = domain.SessionArchived
		session.LockedAt = nil
		if session.EndedAt == nil {
			ended := now
			session.EndedAt = &ended
		}
		s.sessions[id] = session
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) SaveAutoSave(_ context.Context, id int64, data string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	session.AutoSaveData = data
	session.AutoSavedAt = &at
	s.sessions[id] = session
	return nil
}

func (s *Store) SetReceiptPath(_ context.Context, id int64, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	session.ReceiptPath = path
	s.sessions[id] = session
	return nil
}

func (s *Store) FinalizeSale(_ context.Context, params store.FinalizeParams) (*domain.SalesSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var session domain.SalesSession
	var lines []domain.LineItem
	if params.SessionID > 0 {
		existing, err := s.ownedActive(params.SessionID, params.UserID)
		if err != nil {
			return nil, err
		}
		session = existing
		lines = s.itemsOf(existing.ID)
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
	shortages := make([]domain.StockShortage, 0)
	for _, productID := range order {
		available := 0
		name := names[productID]
		if p, ok := s.products[productID]; ok && p.Active {
			available = p.Stock
			name = p.Name
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

	now := params.Now
	if session.ID == 0 {
		session = domain.SalesSession{
			ID:        s.nextID(),
			UserID:    params.UserID,
			Type:      domain.SessionTypeRegular,
			StartedAt: now,
		}
		for i := range lines {
			lines[i].ID = s.nextID()
			lines[i].SessionID = session.ID
			lines[i].CreatedAt = now
			s.items[lines[i].ID] = lines[i]
		}
	}
	pricing.Apply(&session, totals)
	session.Status = domain.SessionCompleted
	session.EndedAt = &now
	session.LastActivity = now
	session.LockedAt = nil
	session.PaymentMethod = params.PaymentMethod
	session.PaymentReceivedCents = params.PaymentReceivedCents
	session.ChangeCents = pricing.Change(params.PaymentReceivedCents, totals.GrossCents)
	if params.Notes != "" {
		session.Notes = params.Notes
	}
	s.sessions[session.ID] = session

	sessionID := session.ID
	for _, line := range lines {
		p := s.products[line.ProductID]
		movement := domain.StockMovement{
			ID:        s.nextID(),
			ProductID: p.ID,
			OldStock:  p.Stock,
			NewStock:  p.Stock - line.Quantity,
			Change:    -line.Quantity,
			Reason:    "sale",
			SessionID: &sessionID,
			UserID:    params.UserID,
			CreatedAt: now,
		}
		p.Stock = movement.NewStock
		p.UpdatedAt = now
		s.products[p.ID] = p
		s.movements = append(s.movements, movement)
	}

	return s.withItems(session), nil
}

func (s *Store) CreateSessionActivity(_ context.Context, entry domain.SessionActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextID()
	s.activities = append(s.activities, entry)
	return nil
}

func (s *Store) ListSessionActivity(_ context.Context, sessionID int64) ([]domain.SessionActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SessionActivity, 0)
	for _, entry := range s.activities {
		if entry.SessionID == sessionID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (s *Store) CreateEmailLog(_ context.Context, entry domain.EmailLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextID()
	s.emails = append(s.emails, entry)
	return nil
}

// EmailLogs returns a copy of every recorded notification attempt.
func (s *Store) EmailLogs() []domain.EmailLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.emails)
}

// ScanLogs returns a copy of every recorded scan.
func (s *Store) ScanLogs() []domain.ScanLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.scans)
}

func (s *Store) GetSalesAnalytics(_ context.Context, params store.AnalyticsParams) (domain.SalesAnalytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := domain.SalesAnalytics{
		From:             params.From,
		To:               params.To,
		PaymentBreakdown: []domain.PaymentBreakdown{},
		TopProducts:      []domain.TopProduct{},
		VATBreakdown:     []domain.VATBucket{},
	}

	payments := make(map[string]*domain.PaymentBreakdown)
	hours := make(map[int]*domain.HourlyBucket)
	included := make(map[int64]bool)
	for _, session := range s.sessions {
		if session.Status != domain.SessionCompleted || session.EndedAt == nil {
			continue
		}
		if session.EndedAt.Before(params.From) || !session.EndedAt.Before(params.To) {
			continue
		}
		included[session.ID] = true

		result.Totals.SessionCount++
		result.Totals.ItemCount += session.ItemCount
		result.Totals.NetCents += session.TotalNetCents
		result.Totals.VATCents += session.TotalVATCents
		result.Totals.DepositCents += session.TotalDepositCents
		result.Totals.GrossCents += session.TotalGrossCents

		pb, ok := payments[session.PaymentMethod]
		if !ok {
			pb = &domain.PaymentBreakdown{PaymentMethod: session.PaymentMethod}
			payments[session.PaymentMethod] = pb
		}
		pb.SessionCount++
		pb.GrossCents += session.TotalGrossCents

		if params.Hourly {
			hour := session.EndedAt.In(params.From.Location()).Hour()
			hb, ok := hours[hour]
			if !ok {
				hb = &domain.HourlyBucket{Hour: hour}
				hours[hour] = hb
			}
			hb.SessionCount++
			hb.GrossCents += session.TotalGrossCents
		}
	}

	products := make(map[int64]*domain.TopProduct)
	rates := make(map[float64]*domain.VATBucket)
	for _, item := range s.items {
		if !included[item.SessionID] {
			continue
		}
		tp, ok := products[item.ProductID]
		if !ok {
			tp = &domain.TopProduct{ProductID: item.ProductID, ProductName: item.ProductName}
			products[item.ProductID] = tp
		}
		tp.Quantity += item.Quantity
		tp.RevenueCents += item.TotalCents

		vb, ok := rates[item.VATRate]
		if !ok {
			vb = &domain.VATBucket{VATRate: item.VATRate}
			rates[item.VATRate] = vb
		}
		vb.NetCents += item.NetCents
		vb.VATCents += item.VATCents
		vb.GrossCents += item.GrossCents

		if p, ok := s.products[item.ProductID]; ok {
			result.CostCents += int64(item.Quantity) * p.PurchasePriceCents
		}
	}

	for _, pb := range payments {
		result.PaymentBreakdown = append(result.PaymentBreakdown, *pb)
	}
	sort.Slice(result.PaymentBreakdown, func(i, j int) bool {
		if result.PaymentBreakdown[i].GrossCents == result.PaymentBreakdown[j].GrossCents {
			return result.PaymentBreakdown[i].PaymentMethod < result.PaymentBreakdown[j].PaymentMethod
		}
		return result.PaymentBreakdown[i].GrossCents > result.PaymentBreakdown[j].GrossCents
	})

	for _, tp := range products {
		result.TopProducts = append(result.TopProducts, *tp)
	}
	sort.Slice(result.TopProducts, func(i, j int) bool {
		a, b := result.TopProducts[i], result.TopProducts[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		if a.RevenueCents != b.RevenueCents {
			return a.RevenueCents > b.RevenueCents
		}
		return a.ProductID < b.ProductID
	})
	if params.TopLimit > 0 && len(result.TopProducts) > params.TopLimit {
		result.TopProducts = result.TopProducts[:params.TopLimit]
	}

	for _, vb := range rates {
		result.VATBreakdown = append(result.VATBreakdown, *vb)
	}
	sort.Slice(result.VATBreakdown, func(i, j int) bool {
		return result.VATBreakdown[i].VATRate < result.VATBreakdown[j].VATRate
	})

	if params.Hourly {
		result.Hourly = make([]domain.HourlyBucket, 0, len(hours))
		for _, hb := range hours {
			result.Hourly = append(result.Hourly, *hb)
		}
		sort.Slice(result.Hourly, func(i, j int) bool { return result.Hourly[i].Hour < result.Hourly[j].Hour })
	}

	return result, nil
}

func (s *Store) ownedActive(id int64, userID int64) (domain.SalesSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return domain.SalesSession{}, store.ErrNotFound
	}
	if session.UserID != userID {
		return domain.SalesSession{}, store.ErrNotOwner
	}
	if session.Status != domain.SessionActive {
		return domain.SalesSession{}, store.ErrSessionState
	}
	return session, nil
}

func (s *Store) itemsOf(sessionID int64) []domain.LineItem {
	result := make([]domain.LineItem, 0)
	for _, item := range s.items {
		if item.SessionID == sessionID {
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *Store) recompute(sessionID int64) {
	session := s.sessions[sessionID]
	pricing.Apply(&session, pricing.Sum(s.itemsOf(sessionID)))
	s.sessions[sessionID] = session
}

func (s *Store) withItems(session domain.SalesSession) *domain.SalesSession {
	clone := session
	clone.Items = s.itemsOf(session.ID)
	return &clone
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
