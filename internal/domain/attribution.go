package domain

// AttributionMethod describes how a sale was linked to a reseller.
type AttributionMethod string

const (
	// AttributionClickMatch means a prior click for the same reseller and
	// product was found within the lookback window.
	AttributionClickMatch AttributionMethod = "click-match"

	// AttributionDirect means no click record existed and the sale was
	// attributed by the resellerId carried through the redirect.
	AttributionDirect AttributionMethod = "direct"
)

// AttributionResult links a sale to its best-matching prior click.
// MatchedClickID is empty for direct attribution. The link is recomputed
// on read, never persisted, so late-arriving sales stay attributable.
type AttributionResult struct {
	MatchedClickID string            `json:"matchedClickId,omitempty"`
	Method         AttributionMethod `json:"method"`
}
