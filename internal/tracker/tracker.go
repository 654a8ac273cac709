// Package tracker records inbound clicks on reseller links.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
)

// Service persists click events. Recording is best-effort from the
// caller's point of view: the redirect must proceed even when tracking
// fails, so the API boundary logs and swallows errors from here.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	now   func() time.Time
}

// NewService creates a new click tracker.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Record validates and stores a click event, returning the stored event.
// Click events are append-only; there is no update or delete path.
func (s *Service) Record(ctx context.Context, req *domain.ClickRequest) (*domain.ClickEvent, error) {
	if req.ResellerID == "" {
		return nil, fmt.Errorf("%w: resellerId is required", domain.ErrValidation)
	}
	if req.ProductID == "" {
		return nil, fmt.Errorf("%w: productId is required", domain.ErrValidation)
	}

	now := s.now()
	click := &domain.ClickEvent{
		ID:           uuid.New().String(),
		ResellerID:   req.ResellerID,
		ProductID:    req.ProductID,
		PriceAtClick: req.Price,
		Timestamp:    now,
		Referrer:     req.Referrer,
		UTMSource:    req.UTMSource,
		UTMMedium:    req.UTMMedium,
		UTMCampaign:  req.UTMCampaign,
		UserAgent:    req.UserAgent,
		IPHash:       req.IPHash,
		CreatedAt:    now,
	}

	if err := s.repo.SaveClick(ctx, click); err != nil {
		return nil, fmt.Errorf("failed to save click: %w", err)
	}

	// Rolling per-reseller click counter, for operational visibility only.
	if s.cache != nil {
		if count, err := s.cache.IncrementCounter(ctx, "clicks:"+req.ResellerID, 24*time.Hour); err == nil {
			slog.Debug("click recorded",
				"click_id", click.ID,
				"reseller_id", click.ResellerID,
				"product_id", click.ProductID,
				"clicks_today", count,
			)
		}
	}

	return click, nil
}
