// Package lifecycle drives admin decisions through the commission state
// machine.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/repository"
)

// Manager applies status transitions to commissions. Every transition is
// a compare-and-swap on the stored status so concurrent decisions cannot
// both win.
type Manager struct {
	repo domain.Repository
	bus  domain.EventBus
	now  func() time.Time
}

// NewManager creates a lifecycle manager. The bus is optional; decided
// events are published best-effort when it is set.
func NewManager(repo domain.Repository, bus domain.EventBus) *Manager {
	return &Manager{
		repo: repo,
		bus:  bus,
		now:  time.Now,
	}
}

// Approve moves a pending commission to approved.
func (m *Manager) Approve(ctx context.Context, commissionID, notes, decidedBy string) (*domain.Commission, error) {
	return m.transition(ctx, commissionID, domain.StatusApproved, notes, decidedBy)
}

// Reject moves a pending commission to rejected. A reason is mandatory:
// rejection is terminal and the reseller deserves to know why.
func (m *Manager) Reject(ctx context.Context, commissionID, reason, decidedBy string) (*domain.Commission, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection requires a reason", domain.ErrValidation)
	}
	return m.transition(ctx, commissionID, domain.StatusRejected, reason, decidedBy)
}

// MarkPaid moves an approved commission to paid.
func (m *Manager) MarkPaid(ctx context.Context, commissionID, notes, decidedBy string) (*domain.Commission, error) {
	return m.transition(ctx, commissionID, domain.StatusPaid, notes, decidedBy)
}

func (m *Manager) transition(ctx context.Context, commissionID string, to domain.CommissionStatus, notes, decidedBy string) (*domain.Commission, error) {
	c, err := m.repo.GetCommission(ctx, commissionID)
	if err != nil {
		return nil, err
	}

	if !c.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, c.Status, to)
	}

	// Marking paid settles an earlier approval. The approval note is part
	// of the decision record, so it survives the payout: payout notes are
	// appended after it, never written over it.
	if to == domain.StatusPaid {
		switch {
		case notes == "":
			notes = c.AdminNotes
		case c.AdminNotes != "":
			notes = c.AdminNotes + "\n" + notes
		}
	}

	decidedAt := m.now().UTC()
	swapped, err := m.repo.TransitionCommission(ctx, commissionID, c.Status, to, notes, decidedBy, decidedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to transition commission: %w", err)
	}
	if !swapped {
		// Lost the race. Re-read so the caller sees who won.
		current, rerr := m.repo.GetCommission(ctx, commissionID)
		if rerr != nil && !errors.Is(rerr, repository.ErrNotFound) {
			return nil, rerr
		}
		if current != nil {
			return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, to)
		}
		return nil, fmt.Errorf("%w: commission changed concurrently", domain.ErrInvalidTransition)
	}

	updated, err := m.repo.GetCommission(ctx, commissionID)
	if err != nil {
		return nil, err
	}

	slog.Info("commission transitioned",
		"commission_id", commissionID,
		"from", c.Status,
		"to", to,
		"decided_by", decidedBy,
	)

	m.publishDecided(ctx, updated)
	return updated, nil
}

func (m *Manager) publishDecided(ctx context.Context, c *domain.Commission) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(c)
	if err != nil {
		slog.Warn("failed to encode commission decided event", "commission_id", c.ID, "error", err)
		return
	}
	if err := m.bus.Publish(ctx, domain.TopicCommissionDecided, payload); err != nil {
		slog.Warn("failed to publish commission decided event",
			"commission_id", c.ID,
			"error", err,
		)
	}
}
