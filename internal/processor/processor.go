// Package processor runs the sale-to-commission pipeline: persist the
// sale, attribute it to a click, price the commission, score it for
// fraud, and create the pending commission record exactly once.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/attribution"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/catalog"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/commission"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/fraud"
)

// saleNamespace derives stable sale ids from payment references so a
// retried webhook without an explicit saleEventId still deduplicates.
var saleNamespace = uuid.MustParse("7ba7b811-9dad-11d1-80b4-00c04fd430c8")

// Result is the outcome of processing one sale.
type Result struct {
	Commission  *domain.Commission        `json:"commission"`
	Attribution *domain.AttributionResult `json:"attribution"`

	// Created is false when the sale was already processed and the
	// existing commission is returned unchanged.
	Created bool `json:"created"`
}

// Processor orchestrates the sale pipeline. Components are injected so
// tests can run it against an in-memory stack.
type Processor struct {
	repo     domain.Repository
	catalog  *catalog.Service
	resolver *attribution.Resolver
	scorer   *fraud.Scorer
	bus      domain.EventBus
	fraudCfg domain.FraudConfig
	now      func() time.Time
}

// New creates a sale processor. The bus is optional.
func New(repo domain.Repository, cat *catalog.Service, resolver *attribution.Resolver, scorer *fraud.Scorer, bus domain.EventBus, fraudCfg domain.FraudConfig) *Processor {
	return &Processor{
		repo:     repo,
		catalog:  cat,
		resolver: resolver,
		scorer:   scorer,
		bus:      bus,
		fraudCfg: fraudCfg,
		now:      time.Now,
	}
}

// ProcessSale validates and persists the sale, then derives its
// commission. Safe to call repeatedly for the same sale: the sale id is
// stable across retries and commission creation is keyed on it.
func (p *Processor) ProcessSale(ctx context.Context, req *domain.SaleRequest) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	now := p.now().UTC()
	sale := &domain.SaleEvent{
		ID:               p.saleID(req),
		ResellerID:       req.ResellerID,
		ProductID:        req.ProductID,
		Amount:           req.Amount,
		CustomerName:     req.CustomerName,
		CustomerEmail:    strings.ToLower(strings.TrimSpace(req.CustomerEmail)),
		PaymentReference: req.PaymentReference,
		Timestamp:        now,
		CreatedAt:        now,
	}

	if err := p.repo.SaveSale(ctx, sale); err != nil {
		return nil, fmt.Errorf("failed to save sale: %w", err)
	}
	// A retried sale keeps its original timestamp.
	stored, err := p.repo.GetSale(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale = stored

	attr, click, err := p.resolver.Resolve(ctx, sale)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve attribution: %w", err)
	}

	rule, isDefault, err := p.catalog.Rule(ctx, sale.ProductID)
	if err != nil {
		return nil, err
	}

	// Prior sales only: the sale being processed must not count toward
	// its own bonus threshold.
	priorSales, err := p.repo.CountSalesByReseller(ctx, sale.ResellerID, sale.Timestamp, sale.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count reseller sales: %w", err)
	}

	quote := commission.Calculate(sale.Amount, rule, priorSales)

	hist, err := p.history(ctx, sale)
	if err != nil {
		return nil, err
	}
	score := p.scorer.Score(sale, click, hist)

	c := &domain.Commission{
		ID:             uuid.New().String(),
		SaleEventID:    sale.ID,
		ResellerID:     sale.ResellerID,
		ProductID:      sale.ProductID,
		AppliedRatePct: quote.AppliedRatePct,
		Amount:         quote.Amount,
		FraudScore:     score.Score,
		FraudReasons:   score.Reasons,
		Status:         domain.StatusPending,
		CreatedAt:      now,
	}

	storedCommission, created, err := p.repo.CreateCommission(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to create commission: %w", err)
	}

	if created {
		slog.Info("commission created",
			"commission_id", storedCommission.ID,
			"sale_event_id", sale.ID,
			"reseller_id", sale.ResellerID,
			"amount", storedCommission.Amount,
			"rate_pct", storedCommission.AppliedRatePct,
			"fraud_score", storedCommission.FraudScore,
			"attribution", attr.Method,
			"default_rule", isDefault,
		)
		p.publish(ctx, domain.TopicCommissionCreated, storedCommission)
		if score.Suspicious {
			p.publish(ctx, domain.TopicCommissionAlert, storedCommission)
		}
	} else {
		slog.Info("duplicate sale, returning existing commission",
			"commission_id", storedCommission.ID,
			"sale_event_id", sale.ID,
		)
	}

	return &Result{
		Commission:  storedCommission,
		Attribution: attr,
		Created:     created,
	}, nil
}

// saleID picks a stable identifier: the caller's id when given, a
// reference-derived uuid when a payment reference exists, otherwise a
// fresh uuid (no dedup possible).
func (p *Processor) saleID(req *domain.SaleRequest) string {
	if req.SaleEventID != "" {
		return req.SaleEventID
	}
	if req.PaymentReference != "" {
		return uuid.NewSHA1(saleNamespace, []byte(req.PaymentReference)).String()
	}
	return uuid.New().String()
}

func (p *Processor) history(ctx context.Context, sale *domain.SaleEvent) (fraud.History, error) {
	var hist fraud.History

	dayStart := time.Date(sale.Timestamp.Year(), sale.Timestamp.Month(), sale.Timestamp.Day(), 0, 0, 0, 0, time.UTC)
	salesToday, err := p.repo.CountSalesByResellerSince(ctx, sale.ResellerID, dayStart)
	if err != nil {
		return hist, fmt.Errorf("failed to count daily sales: %w", err)
	}
	hist.SalesToday = salesToday

	if sale.CustomerEmail != "" {
		since := sale.Timestamp.Add(-p.fraudCfg.DuplicateCustomerWindow)
		resellers, err := p.repo.CountResellersForCustomer(ctx, sale.CustomerEmail, since)
		if err != nil {
			return hist, fmt.Errorf("failed to count customer resellers: %w", err)
		}
		hist.CustomerResellers = resellers
	}

	return hist, nil
}

func (p *Processor) publish(ctx context.Context, topic string, c *domain.Commission) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(c)
	if err != nil {
		slog.Warn("failed to encode commission event", "topic", topic, "error", err)
		return
	}
	if err := p.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("failed to publish commission event",
			"topic", topic,
			"commission_id", c.ID,
			"error", err,
		)
	}
}

func validate(req *domain.SaleRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request body is required", domain.ErrValidation)
	}
	if req.ResellerID == "" {
		return fmt.Errorf("%w: resellerId is required", domain.ErrValidation)
	}
	if req.ProductID == "" {
		return fmt.Errorf("%w: productId is required", domain.ErrValidation)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	return nil
}
