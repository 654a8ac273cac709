package domain

import (
	"fmt"
	"time"
)

// CommissionRule is the per-product payout configuration. Rules are
// managed by the admin surface and read-only to the engine.
type CommissionRule struct {
	ProductID           string    `json:"productId"`
	ProductName         string    `json:"productName"`
	BaseCommissionPct   float64   `json:"baseCommissionPct"`
	BonusCommissionPct  float64   `json:"bonusCommissionPct"`
	MinimumSales        int64     `json:"minimumSales"`
	MaxCommissionAmount *float64  `json:"maxCommissionAmount,omitempty"`
	IsActive            bool      `json:"isActive"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Validate checks the rule invariants: percentages within [0,100] and the
// bonus never pushing the effective rate over 100%.
func (r *CommissionRule) Validate() error {
	if r.ProductID == "" {
		return fmt.Errorf("%w: productId is required", ErrValidation)
	}
	if r.BaseCommissionPct < 0 || r.BaseCommissionPct > 100 {
		return fmt.Errorf("%w: baseCommissionPct must be within [0,100]", ErrValidation)
	}
	if r.BonusCommissionPct < 0 || r.BonusCommissionPct > 100 {
		return fmt.Errorf("%w: bonusCommissionPct must be within [0,100]", ErrValidation)
	}
	if r.BaseCommissionPct+r.BonusCommissionPct > 100 {
		return fmt.Errorf("%w: base plus bonus commission must not exceed 100", ErrValidation)
	}
	if r.MinimumSales < 0 {
		return fmt.Errorf("%w: minimumSales must not be negative", ErrValidation)
	}
	if r.MaxCommissionAmount != nil && *r.MaxCommissionAmount < 0 {
		return fmt.Errorf("%w: maxCommissionAmount must not be negative", ErrValidation)
	}
	return nil
}

// DefaultRule is applied when a product has no configured rule. It pays
// nothing so the commission shows up as visibly-zero for admin correction
// instead of blocking the sale.
func DefaultRule(productID string) *CommissionRule {
	return &CommissionRule{
		ProductID:          productID,
		BaseCommissionPct:  0,
		BonusCommissionPct: 0,
		MinimumSales:       0,
		IsActive:           true,
	}
}

// RiskRule is an admin-defined CEL expression evaluated against a
// sale/click pair. A rule that evaluates true adds its penalty and reason
// to the fraud score alongside the built-in heuristics.
type RiskRule struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Expression string    `json:"expression"`
	Penalty    int       `json:"penalty"`
	Reason     string    `json:"reason"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
