// Package commission computes the payout owed for a sale under a rule.
package commission

import (
	"math"

	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
)

// Quote is the outcome of a commission calculation. AppliedRatePct is the
// nominal rate: when the cap clamps the amount, the rate is reported
// as-is rather than recomputed to a fake lower value.
type Quote struct {
	AppliedRatePct float64 `json:"appliedRatePct"`
	Amount         float64 `json:"amount"`
	Capped         bool    `json:"capped"`
}

// Calculate computes the commission for a sale amount. The bonus rate
// applies once the reseller's cumulative sales reach the rule's minimum.
// Pure: both inputs are explicit, no clock or store access.
func Calculate(saleAmount float64, rule *domain.CommissionRule, resellerTotalSales int64) Quote {
	rate := rule.BaseCommissionPct
	if resellerTotalSales >= rule.MinimumSales {
		rate += rule.BonusCommissionPct
	}

	// Cent rounding happens once, at the end, never at intermediate steps.
	amount := roundCents(saleAmount * rate / 100)

	capped := false
	if rule.MaxCommissionAmount != nil && amount > *rule.MaxCommissionAmount {
		amount = *rule.MaxCommissionAmount
		capped = true
	}

	return Quote{
		AppliedRatePct: rate,
		Amount:         amount,
		Capped:         capped,
	}
}

// roundCents rounds to cents, half away from zero.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
