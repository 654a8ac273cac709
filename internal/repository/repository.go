// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveClick stores a click event. Click events are append-only.
func (r *SQLRepository) SaveClick(ctx context.Context, click *domain.ClickEvent) error {
	if click.ID == "" {
		return fmt.Errorf("%w: click id is required", ErrInvalidInput)
	}

	var price sql.NullFloat64
	if click.PriceAtClick != nil {
		price = sql.NullFloat64{Float64: *click.PriceAtClick, Valid: true}
	}

	query := `
		INSERT INTO click_events (
			id, reseller_id, product_id, price_at_click, timestamp,
			referrer, utm_source, utm_medium, utm_campaign,
			user_agent, ip_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		click.ID, click.ResellerID, click.ProductID, price,
		click.Timestamp, click.Referrer,
		click.UTMSource, click.UTMMedium, click.UTMCampaign,
		click.UserAgent, click.IPHash, click.CreatedAt,
	)
	return err
}

// GetClick retrieves a click event by ID.
func (r *SQLRepository) GetClick(ctx context.Context, clickID string) (*domain.ClickEvent, error) {
	query := `
		SELECT id, reseller_id, product_id, price_at_click, timestamp,
			   referrer, utm_source, utm_medium, utm_campaign,
			   user_agent, ip_hash, created_at
		FROM click_events
		WHERE id = ?
	`

	return r.scanClick(r.db.QueryRowContext(ctx, r.rebind(query), clickID))
}

// LatestClick returns the most recent click for the reseller/product pair
// within [since, notAfter]. Most-recent-click-wins: the customer's last
// click before the purchase is assumed to be the one that converted.
func (r *SQLRepository) LatestClick(ctx context.Context, resellerID, productID string, notAfter, since time.Time) (*domain.ClickEvent, error) {
	if resellerID == "" || productID == "" {
		return nil, fmt.Errorf("%w: resellerID and productID are required", ErrInvalidInput)
	}

	query := `
		SELECT id, reseller_id, product_id, price_at_click, timestamp,
			   referrer, utm_source, utm_medium, utm_campaign,
			   user_agent, ip_hash, created_at
		FROM click_events
		WHERE reseller_id = ? AND product_id = ?
		  AND timestamp <= ? AND timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	return r.scanClick(r.db.QueryRowContext(ctx, r.rebind(query), resellerID, productID, notAfter, since))
}

func (r *SQLRepository) scanClick(row *sql.Row) (*domain.ClickEvent, error) {
	var click domain.ClickEvent
	var price sql.NullFloat64
	var referrer, utmSource, utmMedium, utmCampaign, userAgent, ipHash sql.NullString

	err := row.Scan(
		&click.ID, &click.ResellerID, &click.ProductID, &price,
		&click.Timestamp, &referrer,
		&utmSource, &utmMedium, &utmCampaign,
		&userAgent, &ipHash, &click.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if price.Valid {
		click.PriceAtClick = &price.Float64
	}
	click.Referrer = referrer.String
	click.UTMSource = utmSource.String
	click.UTMMedium = utmMedium.String
	click.UTMCampaign = utmCampaign.String
	click.UserAgent = userAgent.String
	click.IPHash = ipHash.String

	return &click, nil
}

// SaveSale stores a sale event. Idempotent on the sale id so a retried
// webhook does not fail before reaching the commission upsert.
func (r *SQLRepository) SaveSale(ctx context.Context, sale *domain.SaleEvent) error {
	if sale.ID == "" {
		return fmt.Errorf("%w: sale id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO sale_events (
			id, reseller_id, product_id, amount,
			customer_name, customer_email, payment_reference,
			timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		sale.ID, sale.ResellerID, sale.ProductID, sale.Amount,
		sale.CustomerName, sale.CustomerEmail, sale.PaymentReference,
		sale.Timestamp, sale.CreatedAt,
	)
	return err
}

// GetSale retrieves a sale event by ID.
func (r *SQLRepository) GetSale(ctx context.Context, saleID string) (*domain.SaleEvent, error) {
	query := `
		SELECT id, reseller_id, product_id, amount,
			   customer_name, customer_email, payment_reference,
			   timestamp, created_at
		FROM sale_events
		WHERE id = ?
	`

	var sale domain.SaleEvent
	var name, email, ref sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), saleID).Scan(
		&sale.ID, &sale.ResellerID, &sale.ProductID, &sale.Amount,
		&name, &email, &ref,
		&sale.Timestamp, &sale.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sale.CustomerName = name.String
	sale.CustomerEmail = email.String
	sale.PaymentReference = ref.String

	return &sale, nil
}

// CountSalesByReseller counts a reseller's sales up to notAfter. The
// excludeID parameter keeps the sale being processed out of its own
// bonus-tier qualification count.
func (r *SQLRepository) CountSalesByReseller(ctx context.Context, resellerID string, notAfter time.Time, excludeID string) (int64, error) {
	if resellerID == "" {
		return 0, fmt.Errorf("%w: resellerID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM sale_events
		WHERE reseller_id = ? AND timestamp <= ? AND id <> ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), resellerID, notAfter, excludeID).Scan(&count)
	return count, err
}

// CountSalesByResellerSince counts a reseller's sales since the cutoff.
func (r *SQLRepository) CountSalesByResellerSince(ctx context.Context, resellerID string, since time.Time) (int64, error) {
	if resellerID == "" {
		return 0, fmt.Errorf("%w: resellerID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM sale_events
		WHERE reseller_id = ? AND timestamp >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), resellerID, since).Scan(&count)
	return count, err
}

// CountResellersForCustomer counts distinct resellers whose sales carry
// the given customer email since the cutoff.
func (r *SQLRepository) CountResellersForCustomer(ctx context.Context, customerEmail string, since time.Time) (int64, error) {
	if customerEmail == "" {
		return 0, nil
	}

	query := `
		SELECT COUNT(DISTINCT reseller_id) FROM sale_events
		WHERE customer_email = ? AND timestamp >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), customerEmail, since).Scan(&count)
	return count, err
}

// SaveRule upserts a commission rule keyed on product id.
func (r *SQLRepository) SaveRule(ctx context.Context, rule *domain.CommissionRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	var maxAmount sql.NullFloat64
	if rule.MaxCommissionAmount != nil {
		maxAmount = sql.NullFloat64{Float64: *rule.MaxCommissionAmount, Valid: true}
	}

	active := 0
	if rule.IsActive {
		active = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO commission_rules (
			product_id, product_name, base_commission_pct, bonus_commission_pct,
			minimum_sales, max_commission_amount, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			product_name = excluded.product_name,
			base_commission_pct = excluded.base_commission_pct,
			bonus_commission_pct = excluded.bonus_commission_pct,
			minimum_sales = excluded.minimum_sales,
			max_commission_amount = excluded.max_commission_amount,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ProductID, rule.ProductName,
		rule.BaseCommissionPct, rule.BonusCommissionPct,
		rule.MinimumSales, maxAmount, active,
		now, now,
	)
	return err
}

// GetRule retrieves the active commission rule for a product.
func (r *SQLRepository) GetRule(ctx context.Context, productID string) (*domain.CommissionRule, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: productID is required", ErrInvalidInput)
	}

	query := `
		SELECT product_id, product_name, base_commission_pct, bonus_commission_pct,
			   minimum_sales, max_commission_amount, is_active, created_at, updated_at
		FROM commission_rules
		WHERE product_id = ? AND is_active = 1
	`

	rule, err := r.scanRule(r.db.QueryRowContext(ctx, r.rebind(query), productID))
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListRules retrieves all active commission rules.
func (r *SQLRepository) ListRules(ctx context.Context) ([]*domain.CommissionRule, error) {
	query := `
		SELECT product_id, product_name, base_commission_pct, bonus_commission_pct,
			   minimum_sales, max_commission_amount, is_active, created_at, updated_at
		FROM commission_rules
		WHERE is_active = 1
		ORDER BY product_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.CommissionRule
	for rows.Next() {
		var rule domain.CommissionRule
		var name sql.NullString
		var maxAmount sql.NullFloat64
		var active int

		if err := rows.Scan(
			&rule.ProductID, &name,
			&rule.BaseCommissionPct, &rule.BonusCommissionPct,
			&rule.MinimumSales, &maxAmount, &active,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.ProductName = name.String
		rule.IsActive = active == 1
		if maxAmount.Valid {
			rule.MaxCommissionAmount = &maxAmount.Float64
		}
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

func (r *SQLRepository) scanRule(row *sql.Row) (*domain.CommissionRule, error) {
	var rule domain.CommissionRule
	var name sql.NullString
	var maxAmount sql.NullFloat64
	var active int

	err := row.Scan(
		&rule.ProductID, &name,
		&rule.BaseCommissionPct, &rule.BonusCommissionPct,
		&rule.MinimumSales, &maxAmount, &active,
		&rule.CreatedAt, &rule.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.ProductName = name.String
	rule.IsActive = active == 1
	if maxAmount.Valid {
		rule.MaxCommissionAmount = &maxAmount.Float64
	}

	return &rule, nil
}

// SaveRiskRule upserts a custom risk rule.
func (r *SQLRepository) SaveRiskRule(ctx context.Context, rule *domain.RiskRule) error {
	if rule.ID == "" || rule.Expression == "" {
		return fmt.Errorf("%w: risk rule id and expression are required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO risk_rules (
			id, name, expression, penalty, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			expression = excluded.expression,
			penalty = excluded.penalty,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Expression, rule.Penalty, rule.Reason,
		enabled, now, now,
	)
	return err
}

// ListRiskRules retrieves all enabled risk rules.
func (r *SQLRepository) ListRiskRules(ctx context.Context) ([]*domain.RiskRule, error) {
	query := `
		SELECT id, name, expression, penalty, reason, enabled, created_at, updated_at
		FROM risk_rules
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.RiskRule
	for rows.Next() {
		var rule domain.RiskRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Expression,
			&rule.Penalty, &rule.Reason, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// CreateCommission inserts a commission keyed on its sale event id.
// The unique index on sale_event_id makes this an idempotent upsert: a
// second attempt for the same sale is a no-op that returns the existing
// record with created == false.
func (r *SQLRepository) CreateCommission(ctx context.Context, c *domain.Commission) (*domain.Commission, bool, error) {
	if c.ID == "" || c.SaleEventID == "" {
		return nil, false, fmt.Errorf("%w: commission id and saleEventId are required", ErrInvalidInput)
	}

	reasons, _ := json.Marshal(c.FraudReasons)

	query := `
		INSERT INTO commissions (
			id, sale_event_id, reseller_id, product_id,
			applied_rate_pct, amount, fraud_score, fraud_reasons,
			status, admin_notes, created_at, decided_at, decided_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, '')
		ON CONFLICT(sale_event_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, c.SaleEventID, c.ResellerID, c.ProductID,
		c.AppliedRatePct, c.Amount, c.FraudScore, string(reasons),
		string(c.Status), c.AdminNotes, c.CreatedAt,
	)
	if err != nil {
		return nil, false, err
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	if inserted == 0 {
		existing, err := r.GetCommissionBySale(ctx, c.SaleEventID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	stored, err := r.GetCommission(ctx, c.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// GetCommission retrieves a commission by ID.
func (r *SQLRepository) GetCommission(ctx context.Context, commissionID string) (*domain.Commission, error) {
	query := commissionSelect + ` WHERE id = ?`
	return r.scanCommission(r.db.QueryRowContext(ctx, r.rebind(query), commissionID))
}

// GetCommissionBySale retrieves the commission created for a sale event.
func (r *SQLRepository) GetCommissionBySale(ctx context.Context, saleEventID string) (*domain.Commission, error) {
	query := commissionSelect + ` WHERE sale_event_id = ?`
	return r.scanCommission(r.db.QueryRowContext(ctx, r.rebind(query), saleEventID))
}

const commissionSelect = `
	SELECT id, sale_event_id, reseller_id, product_id,
		   applied_rate_pct, amount, fraud_score, fraud_reasons,
		   status, admin_notes, created_at, decided_at, decided_by
	FROM commissions
`

// ListCommissionsByReseller retrieves commissions for a reseller, newest
// first, optionally filtered by status.
func (r *SQLRepository) ListCommissionsByReseller(ctx context.Context, resellerID string, status domain.CommissionStatus) ([]*domain.Commission, error) {
	if resellerID == "" {
		return nil, fmt.Errorf("%w: resellerID is required", ErrInvalidInput)
	}

	query := commissionSelect + ` WHERE reseller_id = ?`
	args := []any{resellerID}

	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commissions []*domain.Commission
	for rows.Next() {
		c, err := scanCommissionRow(rows)
		if err != nil {
			return nil, err
		}
		commissions = append(commissions, c)
	}

	return commissions, rows.Err()
}

// TransitionCommission performs a compare-and-swap on the status column.
// Concurrent decisions on the same record serialize here: only the update
// that still sees the expected current status takes effect.
func (r *SQLRepository) TransitionCommission(ctx context.Context, commissionID string, from, to domain.CommissionStatus, notes, decidedBy string, decidedAt time.Time) (bool, error) {
	if commissionID == "" {
		return false, fmt.Errorf("%w: commissionID is required", ErrInvalidInput)
	}

	query := `
		UPDATE commissions
		SET status = ?, admin_notes = ?, decided_at = ?, decided_by = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(to), notes, decidedAt, decidedBy,
		commissionID, string(from),
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// scanner abstracts *sql.Row and *sql.Rows for commission scanning.
type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanCommission(row *sql.Row) (*domain.Commission, error) {
	c, err := scanCommissionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func scanCommissionRow(s scanner) (*domain.Commission, error) {
	var c domain.Commission
	var reasons, notes, decidedBy sql.NullString
	var status string
	var decidedAt sql.NullTime

	err := s.Scan(
		&c.ID, &c.SaleEventID, &c.ResellerID, &c.ProductID,
		&c.AppliedRatePct, &c.Amount, &c.FraudScore, &reasons,
		&status, &notes, &c.CreatedAt, &decidedAt, &decidedBy,
	)
	if err != nil {
		return nil, err
	}

	c.Status = domain.CommissionStatus(status)
	c.AdminNotes = notes.String
	c.DecidedBy = decidedBy.String
	if decidedAt.Valid {
		t := decidedAt.Time
		c.DecidedAt = &t
	}
	if reasons.Valid && reasons.String != "" && reasons.String != "null" {
		if err := json.Unmarshal([]byte(reasons.String), &c.FraudReasons); err != nil {
			return nil, fmt.Errorf("failed to parse fraud reasons for %s: %w", c.ID, err)
		}
	}

	return &c, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
