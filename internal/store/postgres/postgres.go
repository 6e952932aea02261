package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/store"
)

//go:embed schema.sql
var schema string

type Store struct {
	db     *sqlx.DB
	schema string
	logger *zap.Logger
}

type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

type Option func(*Store)

// WithSchema keeps every table of this installation inside its own Postgres
// schema so several shops can share one database.
func WithSchema(name string) Option {
	return func(s *Store) { s.schema = name }
}

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

func validSchemaName(name string) bool {
	return schemaNamePattern.MatchString(name)
}

func New(ctx context.Context, databaseURL string, logger *zap.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{logger: logger}
	for _, apply := range opts {
		apply(s)
	}

	connCfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	if s.schema != "" {
		if !validSchemaName(s.schema) {
			return nil, fmt.Errorf("invalid database schema %q", s.schema)
		}
		connCfg.RuntimeParams["search_path"] = s.schema
	}
	db := sqlx.NewDb(stdlib.OpenDB(*connCfg), "pgx")

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.db = db
	return s, nil
}

func (s *Store) schemaName() string {
	if s.schema == "" {
		return "public"
	}
	return s.schema
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if s.schema != "" {
		stmt := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{s.schema}.Sanitize()
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	for _, stmt := range strings.Split(schema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	s.logger.Info("schema applied", zap.String("schema", s.schemaName()))
	return nil
}

const productColumns = `id, COALESCE(barcode, '') AS barcode, name, price_cents, deposit_cents, vat_rate,
	purchase_price_cents, stock, min_stock, category, active, created_at, updated_at`

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	err := s.db.SelectContext(ctx, &products, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}

	var created domain.Product
	err := s.db.GetContext(ctx, &created, `
		INSERT INTO products (barcode, name, price_cents, deposit_cents, vat_rate, purchase_price_cents,
			stock, min_stock, category, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,true,now(),now())
		RETURNING `+productColumns,
		nullIfEmpty(product.Barcode), product.Name, product.PriceCents, product.DepositCents, product.VATRate,
		product.PurchasePriceCents, product.Stock, product.MinStock, product.Category)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	err := s.db.GetContext(ctx, &product, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.GetContext(ctx, &product, `SELECT `+productColumns+` FROM products WHERE barcode = $1`, barcode)
	if err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	result := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	products := make([]domain.Product, 0, len(ids))
	if err := s.db.SelectContext(ctx, &products, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids); err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0)
	err := s.db.SelectContext(ctx, &products, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND stock <= min_stock
		ORDER BY stock, id
	`)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) AdjustStock(ctx context.Context, adj domain.StockAdjustment) (*domain.StockMovement, error) {
	if adj.Delta == 0 {
		return nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current struct {
		Name  string `db:"name"`
		Stock int    `db:"stock"`
	}
	if err := tx.GetContext(ctx, &current, `SELECT name, stock FROM products WHERE id = $1 FOR UPDATE`, adj.ProductID); err != nil {
		return nil, notFound(err)
	}

	newStock := current.Stock + adj.Delta
	if newStock < 0 {
		return nil, &store.InsufficientStockError{Items: []domain.StockShortage{{
			ProductID: adj.ProductID,
			Name:      current.Name,
			Requested: -adj.Delta,
			Available: current.Stock,
		}}}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = $2, updated_at = $3 WHERE id = $1`, adj.ProductID, newStock, adj.At); err != nil {
		return nil, err
	}

	movement := domain.StockMovement{
		ProductID: adj.ProductID,
		OldStock:  current.Stock,
		NewStock:  newStock,
		Change:    adj.Delta,
		Reason:    adj.Reason,
		UserID:    adj.UserID,
		CreatedAt: adj.At,
	}
	if err := insertMovement(ctx, tx, &movement); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &movement, nil
}

func (s *Store) ListStockMovements(ctx context.Context, productID int64, limit int) ([]domain.StockMovement, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	movements := make([]domain.StockMovement, 0, limit)
	err := s.db.SelectContext(ctx, &movements, `
		SELECT id, product_id, old_stock, new_stock, change_qty, reason, session_id, user_id, created_at
		FROM stock_movements
		WHERE ($1::bigint = 0 OR product_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreateScanLog(ctx context.Context, entry domain.ScanLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_logs (barcode, product_id, action, quantity, user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.Barcode, entry.ProductID, entry.Action, entry.Quantity, entry.UserID, entry.CreatedAt)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO app_users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 16)
	err := s.db.SelectContext(ctx, &users, `
		SELECT id, username, password_hash, role, active, created_at
		FROM app_users
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.GetContext(ctx, &user, `
		SELECT id, username, password_hash, role, active, created_at
		FROM app_users
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE app_users SET password_hash = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateEmailLog(ctx context.Context, entry domain.EmailLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_log (recipient, subject, status, error, session_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.Recipient, entry.Subject, entry.Status, entry.Error, entry.SessionID, entry.CreatedAt)
	return err
}

func insertMovement(ctx context.Context, q queryer, movement *domain.StockMovement) error {
	return q.QueryRowxContext(ctx, `
		INSERT INTO stock_movements (product_id, old_stock, new_stock, change_qty, reason, session_id, user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, movement.ProductID, movement.OldStock, movement.NewStock, movement.Change, movement.Reason,
		movement.SessionID, movement.UserID, movement.CreatedAt).Scan(&movement.ID)
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}
