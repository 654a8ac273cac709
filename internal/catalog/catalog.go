// Package catalog serves per-product commission rules to the engine.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/repository"
)

// Service reads commission rules through a cache. Rules are written by
// the admin surface; the engine itself only reads them.
type Service struct {
	repo     domain.Repository
	cache    domain.Cache
	cacheTTL time.Duration
}

// NewService creates a new rule catalog.
func NewService(repo domain.Repository, cache domain.Cache, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// Rule returns the commission rule for a product. A missing rule never
// blocks commission bookkeeping: it degrades to the zero default rule,
// with isDefault true so callers can surface "needs manual fix" to staff.
func (s *Service) Rule(ctx context.Context, productID string) (rule *domain.CommissionRule, isDefault bool, err error) {
	if productID == "" {
		return nil, false, fmt.Errorf("%w: productId is required", domain.ErrValidation)
	}

	if s.cache != nil {
		if cached, err := s.cache.GetRule(ctx, productID); err == nil && cached != nil {
			return cached, false, nil
		}
	}

	rule, err = s.repo.GetRule(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		slog.Warn("no commission rule for product, applying zero default",
			"product_id", productID,
		)
		return domain.DefaultRule(productID), true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load rule: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.SetRule(ctx, productID, rule, s.cacheTTL)
	}

	return rule, false, nil
}

// Save upserts a rule and invalidates its cache entry. This is the thin
// glue under the admin CRUD surface.
func (s *Service) Save(ctx context.Context, rule *domain.CommissionRule) error {
	if err := s.repo.SaveRule(ctx, rule); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.DeleteRule(ctx, rule.ProductID)
	}
	return nil
}

// List returns all active rules.
func (s *Service) List(ctx context.Context) ([]*domain.CommissionRule, error) {
	return s.repo.ListRules(ctx)
}
