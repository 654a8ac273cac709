package domain

import (
	"time"
)

// CommissionStatus is the closed set of workflow states for a commission.
type CommissionStatus string

const (
	// StatusPending is the initial state set at creation.
	StatusPending CommissionStatus = "pending"

	// StatusApproved means an admin accepted the commission for payment.
	StatusApproved CommissionStatus = "approved"

	// StatusRejected is terminal: the commission will not be paid.
	StatusRejected CommissionStatus = "rejected"

	// StatusPaid is terminal and only reachable from approved.
	StatusPaid CommissionStatus = "paid"
)

// transitions is the single source of truth for the commission state
// machine. States absent from the map are terminal.
var transitions = map[CommissionStatus][]CommissionStatus{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusPaid},
}

// Valid reports whether s is a known status.
func (s CommissionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusPaid:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are permitted from s.
func (s CommissionStatus) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransitionTo reports whether the state machine permits moving from s
// to the target status.
func (s CommissionStatus) CanTransitionTo(to CommissionStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Commission is the central payout record, created exactly once per sale
// and mutated only through lifecycle transitions. Records are never
// deleted; the status history is the audit trail.
type Commission struct {
	ID             string           `json:"id"`
	SaleEventID    string           `json:"saleEventId"`
	ResellerID     string           `json:"resellerId"`
	ProductID      string           `json:"productId"`
	AppliedRatePct float64          `json:"appliedRatePct"`
	Amount         float64          `json:"amount"`
	FraudScore     int              `json:"fraudScore"`
	FraudReasons   []string         `json:"fraudReasons,omitempty"`
	Status         CommissionStatus `json:"status"`
	AdminNotes     string           `json:"adminNotes,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	DecidedAt      *time.Time       `json:"decidedAt,omitempty"`
	DecidedBy      string           `json:"decidedBy,omitempty"`
}
