package repository

// Schema definitions for the beam engine database.
// Compatible with both SQLite and PostgreSQL.

const schemaClickEvents = `
CREATE TABLE IF NOT EXISTS click_events (
    id TEXT PRIMARY KEY,
    reseller_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    price_at_click REAL,
    timestamp TIMESTAMP NOT NULL,
    referrer TEXT,
    utm_source TEXT,
    utm_medium TEXT,
    utm_campaign TEXT,
    user_agent TEXT,
    ip_hash TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_clicks_attribution ON click_events(reseller_id, product_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_clicks_timestamp ON click_events(timestamp);
`

const schemaSaleEvents = `
CREATE TABLE IF NOT EXISTS sale_events (
    id TEXT PRIMARY KEY,
    reseller_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    amount REAL NOT NULL,
    customer_name TEXT,
    customer_email TEXT,
    payment_reference TEXT,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sales_reseller ON sale_events(reseller_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_sales_customer ON sale_events(customer_email, timestamp);
`

const schemaCommissionRules = `
CREATE TABLE IF NOT EXISTS commission_rules (
    product_id TEXT PRIMARY KEY,
    product_name TEXT,
    base_commission_pct REAL NOT NULL DEFAULT 0,
    bonus_commission_pct REAL NOT NULL DEFAULT 0,
    minimum_sales INTEGER NOT NULL DEFAULT 0,
    max_commission_amount REAL,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rules_active ON commission_rules(is_active);
`

// schemaCommissions carries the unique index on sale_event_id that makes
// commission creation an idempotent upsert.
const schemaCommissions = `
CREATE TABLE IF NOT EXISTS commissions (
    id TEXT PRIMARY KEY,
    sale_event_id TEXT NOT NULL UNIQUE,
    reseller_id TEXT NOT NULL,
    product_id TEXT NOT NULL,
    applied_rate_pct REAL NOT NULL,
    amount REAL NOT NULL,
    fraud_score INTEGER NOT NULL DEFAULT 0,
    fraud_reasons TEXT,
    status TEXT NOT NULL,
    admin_notes TEXT,
    created_at TIMESTAMP NOT NULL,
    decided_at TIMESTAMP,
    decided_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_commissions_reseller ON commissions(reseller_id, status);
CREATE INDEX IF NOT EXISTS idx_commissions_status ON commissions(status);
`

const schemaRiskRules = `
CREATE TABLE IF NOT EXISTS risk_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    expression TEXT NOT NULL,
    penalty INTEGER NOT NULL DEFAULT 0,
    reason TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_rules_enabled ON risk_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaClickEvents,
		schemaSaleEvents,
		schemaCommissionRules,
		schemaCommissions,
		schemaRiskRules,
	}
}
