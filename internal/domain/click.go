package domain

import (
	"time"
)

// ClickEvent records a single visit through a reseller's tracked link.
// Click events are append-only: they are written once by the tracker and
// never mutated, and attribution is recomputed from them at sale time.
type ClickEvent struct {
	ID           string    `json:"id"`
	ResellerID   string    `json:"resellerId"`
	ProductID    string    `json:"productId"`
	PriceAtClick *float64  `json:"priceAtClick,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Referrer     string    `json:"referrer,omitempty"`
	UTMSource    string    `json:"utmSource,omitempty"`
	UTMMedium    string    `json:"utmMedium,omitempty"`
	UTMCampaign  string    `json:"utmCampaign,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	IPHash       string    `json:"ipHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ClickRequest is the API request payload for recording a click.
type ClickRequest struct {
	ResellerID  string   `json:"resellerId"`
	ProductID   string   `json:"productId"`
	Price       *float64 `json:"price,omitempty"`
	Referrer    string   `json:"referrer,omitempty"`
	UTMSource   string   `json:"utmSource,omitempty"`
	UTMMedium   string   `json:"utmMedium,omitempty"`
	UTMCampaign string   `json:"utmCampaign,omitempty"`
	UserAgent   string   `json:"userAgent,omitempty"`
	IPHash      string   `json:"ipHash,omitempty"`
}
