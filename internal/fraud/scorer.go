// Package fraud scores sale/click pairs for suspicious patterns.
package fraud

import (
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
)

// Reason strings surfaced to admins alongside the score.
const (
	ReasonImpossibleVelocity = "impossible-velocity"
	ReasonDuplicateCustomer  = "duplicate-customer"
	ReasonBurstVolume        = "burst-volume"
	ReasonUnattributedClick  = "unattributed-click"
)

// History is a snapshot of the reseller's recent activity, assembled by
// the caller so scoring stays a pure function of its inputs.
type History struct {
	// SalesToday counts the reseller's sales in the sale's calendar day,
	// including the sale being scored.
	SalesToday int64

	// CustomerResellers counts distinct resellers whose recent sales
	// carry the same customer identity, including this one.
	CustomerResellers int64
}

// Result is the outcome of fraud scoring. Advisory only: a suspicious
// score is surfaced to the admin as decision support and never rejects a
// commission automatically.
type Result struct {
	Score      int      `json:"score"`
	Reasons    []string `json:"reasons,omitempty"`
	Suspicious bool     `json:"suspicious"`
}

// Scorer applies the built-in heuristics plus any loaded custom risk
// rules. Deterministic: no clock reads beyond the timestamps already on
// the events.
type Scorer struct {
	cfg    domain.FraudConfig
	engine *Engine
}

// NewScorer creates a scorer with the given weights. The engine is
// optional; without it only the built-in heuristics run.
func NewScorer(cfg domain.FraudConfig, engine *Engine) *Scorer {
	return &Scorer{
		cfg:    cfg,
		engine: engine,
	}
}

// Score evaluates a sale against its matched click (nil for direct
// attribution) and the reseller's history snapshot. The score is the sum
// of triggered penalties, capped at 100.
func (s *Scorer) Score(sale *domain.SaleEvent, click *domain.ClickEvent, hist History) Result {
	var score int
	var reasons []string

	if click == nil {
		score += s.cfg.UnattributedPenalty
		reasons = append(reasons, ReasonUnattributedClick)
	} else if sale.Timestamp.Sub(click.Timestamp) < s.cfg.MinClickToSale {
		score += s.cfg.VelocityPenalty
		reasons = append(reasons, ReasonImpossibleVelocity)
	}

	if hist.CustomerResellers > 1 {
		score += s.cfg.DuplicateCustomerPenalty
		reasons = append(reasons, ReasonDuplicateCustomer)
	}

	if s.cfg.BurstThreshold > 0 && hist.SalesToday > int64(s.cfg.BurstThreshold) {
		score += s.cfg.BurstPenalty
		reasons = append(reasons, ReasonBurstVolume)
	}

	if s.engine != nil {
		extra, extraReasons := s.engine.Evaluate(sale, click, hist)
		score += extra
		reasons = append(reasons, extraReasons...)
	}

	if score > 100 {
		score = 100
	}

	return Result{
		Score:      score,
		Reasons:    reasons,
		Suspicious: score > s.cfg.SuspicionThreshold,
	}
}
