// Package attribution links sales back to the click that caused them.
package attribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/repository"
)

// Resolver finds the best-matching prior click for a sale. The link is
// recomputed at resolution time rather than persisted at click time, so
// out-of-order or lost click events never strand a sale.
type Resolver struct {
	repo     domain.Repository
	lookback time.Duration
}

// NewResolver creates a resolver with the given lookback window.
func NewResolver(repo domain.Repository, lookback time.Duration) *Resolver {
	if lookback <= 0 {
		lookback = 30 * 24 * time.Hour
	}
	return &Resolver{
		repo:     repo,
		lookback: lookback,
	}
}

// Resolve returns the attribution for a sale. Among clicks for the same
// reseller and product with timestamp at or before the sale, the most
// recent within the lookback window wins. When no click exists the sale
// falls back to direct attribution via the resellerId carried in the sale
// itself; that is a normal outcome, not an error.
//
// Resolve is a point-in-time query: it is idempotent as long as the
// underlying click data has not changed, and clicks written after
// resolution began are simply not considered.
func (r *Resolver) Resolve(ctx context.Context, sale *domain.SaleEvent) (*domain.AttributionResult, *domain.ClickEvent, error) {
	if sale.ResellerID == "" || sale.ProductID == "" {
		return nil, nil, fmt.Errorf("%w: sale resellerId and productId are required", domain.ErrValidation)
	}

	since := sale.Timestamp.Add(-r.lookback)

	click, err := r.repo.LatestClick(ctx, sale.ResellerID, sale.ProductID, sale.Timestamp, since)
	if errors.Is(err, repository.ErrNotFound) {
		return &domain.AttributionResult{Method: domain.AttributionDirect}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query clicks: %w", err)
	}

	return &domain.AttributionResult{
		MatchedClickID: click.ID,
		Method:         domain.AttributionClickMatch,
	}, click, nil
}
