package domain

import (
	"time"
)

// SaleEvent represents a completed purchase carried back to the engine by
// the checkout flow. Immutable once created.
type SaleEvent struct {
	ID               string    `json:"id"`
	ResellerID       string    `json:"resellerId"`
	ProductID        string    `json:"productId"`
	Amount           float64   `json:"amount"`
	CustomerName     string    `json:"customerName,omitempty"`
	CustomerEmail    string    `json:"customerEmail,omitempty"`
	PaymentReference string    `json:"paymentReference,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	CreatedAt        time.Time `json:"createdAt"`
}

// SaleRequest is the API request payload for reporting a sale.
// SaleEventID is optional: retried webhooks should carry the same id so
// commission creation stays idempotent.
type SaleRequest struct {
	SaleEventID      string  `json:"saleEventId,omitempty"`
	ResellerID       string  `json:"resellerId"`
	ProductID        string  `json:"productId"`
	Amount           float64 `json:"amount"`
	CustomerName     string  `json:"customerName,omitempty"`
	CustomerEmail    string  `json:"customerEmail,omitempty"`
	PaymentReference string  `json:"paymentReference,omitempty"`
}
