package lifecycle

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "beam-lifecycle-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func createPending(t *testing.T, repo domain.Repository) *domain.Commission {
	t.Helper()

	c := &domain.Commission{
		ID:             uuid.New().String(),
		SaleEventID:    uuid.New().String(),
		ResellerID:     "reseller-001",
		ProductID:      "product-001",
		AppliedRatePct: 10,
		Amount:         25,
		Status:         domain.StatusPending,
		CreatedAt:      time.Now().UTC(),
	}

	stored, created, err := repo.CreateCommission(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateCommission failed: %v", err)
	}
	if !created {
		t.Fatal("expected fresh commission")
	}
	return stored
}

func TestLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	mgr := NewManager(repo, nil)
	ctx := context.Background()

	t.Run("ApprovePending", func(t *testing.T) {
		c := createPending(t, repo)

		updated, err := mgr.Approve(ctx, c.ID, "checked manually", "admin-1")
		if err != nil {
			t.Fatalf("Approve failed: %v", err)
		}
		if updated.Status != domain.StatusApproved {
			t.Errorf("expected approved, got %s", updated.Status)
		}
		if updated.DecidedBy != "admin-1" {
			t.Errorf("expected decided_by admin-1, got %s", updated.DecidedBy)
		}
		if updated.DecidedAt == nil {
			t.Error("expected decidedAt to be set")
		}
	})

	t.Run("RejectRequiresReason", func(t *testing.T) {
		c := createPending(t, repo)

		_, err := mgr.Reject(ctx, c.ID, "", "admin-1")
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error for empty reason, got: %v", err)
		}

		updated, err := mgr.Reject(ctx, c.ID, "self-referral", "admin-1")
		if err != nil {
			t.Fatalf("Reject failed: %v", err)
		}
		if updated.Status != domain.StatusRejected {
			t.Errorf("expected rejected, got %s", updated.Status)
		}
		if updated.AdminNotes != "self-referral" {
			t.Errorf("expected reason stored in notes, got %q", updated.AdminNotes)
		}
	})

	t.Run("PaidOnlyFromApproved", func(t *testing.T) {
		c := createPending(t, repo)

		// pending -> paid is not allowed
		_, err := mgr.MarkPaid(ctx, c.ID, "", "admin-1")
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected invalid transition pending->paid, got: %v", err)
		}

		if _, err := mgr.Approve(ctx, c.ID, "", "admin-1"); err != nil {
			t.Fatalf("Approve failed: %v", err)
		}

		updated, err := mgr.MarkPaid(ctx, c.ID, "payout batch 42", "admin-1")
		if err != nil {
			t.Fatalf("MarkPaid failed: %v", err)
		}
		if updated.Status != domain.StatusPaid {
			t.Errorf("expected paid, got %s", updated.Status)
		}
	})

	t.Run("MarkPaidKeepsApprovalNotes", func(t *testing.T) {
		c := createPending(t, repo)
		if _, err := mgr.Approve(ctx, c.ID, "verified with reseller", "admin-1"); err != nil {
			t.Fatalf("Approve failed: %v", err)
		}

		updated, err := mgr.MarkPaid(ctx, c.ID, "", "admin-2")
		if err != nil {
			t.Fatalf("MarkPaid failed: %v", err)
		}
		if updated.AdminNotes != "verified with reseller" {
			t.Errorf("approval notes lost on mark-paid: %q", updated.AdminNotes)
		}
	})

	t.Run("MarkPaidAppendsPayoutNotes", func(t *testing.T) {
		c := createPending(t, repo)
		if _, err := mgr.Approve(ctx, c.ID, "verified with reseller", "admin-1"); err != nil {
			t.Fatalf("Approve failed: %v", err)
		}

		updated, err := mgr.MarkPaid(ctx, c.ID, "payout batch 42", "admin-2")
		if err != nil {
			t.Fatalf("MarkPaid failed: %v", err)
		}
		if updated.AdminNotes != "verified with reseller\npayout batch 42" {
			t.Errorf("expected approval and payout notes, got %q", updated.AdminNotes)
		}
	})

	t.Run("TerminalStatesAreFrozen", func(t *testing.T) {
		c := createPending(t, repo)
		if _, err := mgr.Reject(ctx, c.ID, "fraud", "admin-1"); err != nil {
			t.Fatalf("Reject failed: %v", err)
		}

		// Every further decision fails
		if _, err := mgr.Approve(ctx, c.ID, "", "admin-2"); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected invalid transition on rejected, got: %v", err)
		}
		if _, err := mgr.MarkPaid(ctx, c.ID, "", "admin-2"); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected invalid transition on rejected, got: %v", err)
		}

		stored, err := repo.GetCommission(ctx, c.ID)
		if err != nil {
			t.Fatalf("GetCommission failed: %v", err)
		}
		if stored.Status != domain.StatusRejected {
			t.Errorf("terminal status changed to %s", stored.Status)
		}
	})

	t.Run("DoubleApproveFails", func(t *testing.T) {
		c := createPending(t, repo)
		if _, err := mgr.Approve(ctx, c.ID, "", "admin-1"); err != nil {
			t.Fatalf("Approve failed: %v", err)
		}
		if _, err := mgr.Approve(ctx, c.ID, "", "admin-2"); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected invalid transition on second approve, got: %v", err)
		}
	})

	t.Run("UnknownCommission", func(t *testing.T) {
		_, err := mgr.Approve(ctx, "missing", "", "admin-1")
		if !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestStateMachine(t *testing.T) {
	cases := []struct {
		from, to domain.CommissionStatus
		allowed  bool
	}{
		{domain.StatusPending, domain.StatusApproved, true},
		{domain.StatusPending, domain.StatusRejected, true},
		{domain.StatusPending, domain.StatusPaid, false},
		{domain.StatusApproved, domain.StatusPaid, true},
		{domain.StatusApproved, domain.StatusRejected, false},
		{domain.StatusApproved, domain.StatusPending, false},
		{domain.StatusRejected, domain.StatusApproved, false},
		{domain.StatusRejected, domain.StatusPaid, false},
		{domain.StatusPaid, domain.StatusApproved, false},
		{domain.StatusPaid, domain.StatusRejected, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}

	if !domain.StatusRejected.Terminal() || !domain.StatusPaid.Terminal() {
		t.Error("rejected and paid must be terminal")
	}
	if domain.StatusPending.Terminal() || domain.StatusApproved.Terminal() {
		t.Error("pending and approved must not be terminal")
	}
}
