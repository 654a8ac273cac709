// Package domain defines the core types and interfaces of the beam
// attribution and commission engine.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Click events (append-only)
	SaveClick(ctx context.Context, click *ClickEvent) error
	GetClick(ctx context.Context, clickID string) (*ClickEvent, error)
	// LatestClick returns the most recent click for the reseller/product
	// pair with since <= timestamp <= notAfter, or ErrNotFound.
	LatestClick(ctx context.Context, resellerID, productID string, notAfter, since time.Time) (*ClickEvent, error)

	// Sale events. SaveSale is idempotent on the sale id so retried
	// webhooks do not fail.
	SaveSale(ctx context.Context, sale *SaleEvent) error
	GetSale(ctx context.Context, saleID string) (*SaleEvent, error)
	// CountSalesByReseller counts the reseller's sales with
	// timestamp <= notAfter, excluding excludeID when non-empty.
	CountSalesByReseller(ctx context.Context, resellerID string, notAfter time.Time, excludeID string) (int64, error)
	CountSalesByResellerSince(ctx context.Context, resellerID string, since time.Time) (int64, error)
	// CountResellersForCustomer counts distinct resellers whose sales
	// carry the given customer email since the cutoff.
	CountResellersForCustomer(ctx context.Context, customerEmail string, since time.Time) (int64, error)

	// Commission rules (managed by the admin surface, read by the engine)
	SaveRule(ctx context.Context, rule *CommissionRule) error
	GetRule(ctx context.Context, productID string) (*CommissionRule, error)
	ListRules(ctx context.Context) ([]*CommissionRule, error)

	// Custom risk rules
	SaveRiskRule(ctx context.Context, rule *RiskRule) error
	ListRiskRules(ctx context.Context) ([]*RiskRule, error)

	// Commissions. CreateCommission is an upsert keyed on SaleEventID:
	// the second attempt for the same sale returns the existing record
	// with created == false.
	CreateCommission(ctx context.Context, c *Commission) (stored *Commission, created bool, err error)
	GetCommission(ctx context.Context, commissionID string) (*Commission, error)
	GetCommissionBySale(ctx context.Context, saleEventID string) (*Commission, error)
	ListCommissionsByReseller(ctx context.Context, resellerID string, status CommissionStatus) ([]*Commission, error)
	// TransitionCommission performs a compare-and-swap on the status
	// column. It returns false when the record's current status no longer
	// matches from (a concurrent decision won the race).
	TransitionCommission(ctx context.Context, commissionID string, from, to CommissionStatus, notes, decidedBy string, decidedAt time.Time) (bool, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
