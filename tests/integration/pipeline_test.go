//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Beam affiliate
// commission engine.
//
// These tests verify the COMPLETE pipeline:
//
//	Click → Sale → Attribution → Fraud Score → Commission → Decision
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server must be running (community tier is fine):
//
//	BEAM_TEST_URL=http://localhost:8080 go test -tags=integration ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. CLICK: A shopper follows a reseller's referral link. Clicks are
//    best-effort: the endpoint never fails the redirect path.
//
// 2. SALE: A purchase event. The engine attributes it to the most
//    recent matching click within the lookback window, prices the
//    commission from the product's rule, and scores it for fraud.
//
// 3. COMMISSION: Created in "pending". Admins approve, reject (with a
//    reason), or mark paid. Fraud scores are advisory and never block
//    creation.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("BEAM_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Request/Response Types (matching Beam's API contract)
// ============================================================================

type ClickRequest struct {
	ResellerID  string `json:"resellerId"`
	ProductID   string `json:"productId"`
	UTMSource   string `json:"utmSource,omitempty"`
	UTMCampaign string `json:"utmCampaign,omitempty"`
}

type ClickResponse struct {
	Recorded bool   `json:"recorded"`
	ClickID  string `json:"clickId"`
}

type SaleRequest struct {
	SaleEventID      string  `json:"saleEventId,omitempty"`
	ResellerID       string  `json:"resellerId"`
	ProductID        string  `json:"productId"`
	Amount           float64 `json:"amount"`
	CustomerEmail    string  `json:"customerEmail,omitempty"`
	PaymentReference string  `json:"paymentReference,omitempty"`
}

type Commission struct {
	ID             string   `json:"id"`
	SaleEventID    string   `json:"saleEventId"`
	ResellerID     string   `json:"resellerId"`
	Status         string   `json:"status"`
	AppliedRatePct float64  `json:"appliedRatePct"`
	Amount         float64  `json:"amount"`
	FraudScore     int      `json:"fraudScore"`
	FraudReasons   []string `json:"fraudReasons"`
}

type Attribution struct {
	Method         string `json:"method"`
	MatchedClickID string `json:"matchedClickId,omitempty"`
}

type SaleResponse struct {
	Commission  *Commission  `json:"commission"`
	Attribution *Attribution `json:"attribution"`
	Created     bool         `json:"created"`
}

type CommissionRule struct {
	ProductID           string  `json:"productId"`
	ProductName         string  `json:"productName"`
	BaseCommissionPct   float64 `json:"baseCommissionPct"`
	BonusCommissionPct  float64 `json:"bonusCommissionPct"`
	MinimumSales        int64   `json:"minimumSales"`
	MaxCommissionAmount float64 `json:"maxCommissionAmount"`
	IsActive            bool    `json:"isActive"`
}

type DecisionRequest struct {
	Notes     string `json:"notes,omitempty"`
	Reason    string `json:"reason,omitempty"`
	DecidedBy string `json:"decidedBy,omitempty"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func doRequest(t *testing.T, config TestConfig, method, path string, payload any) (int, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	return resp.StatusCode, respBody
}

func recordClick(t *testing.T, config TestConfig, req ClickRequest) ClickResponse {
	t.Helper()

	status, body := doRequest(t, config, "POST", "/clicks", req)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from /clicks, got %d: %s", status, string(body))
	}

	var result ClickResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal click response: %v (body: %s)", err, string(body))
	}
	return result
}

func reportSale(t *testing.T, config TestConfig, req SaleRequest, wantStatus int) SaleResponse {
	t.Helper()

	status, body := doRequest(t, config, "POST", "/sales", req)
	if status != wantStatus {
		t.Fatalf("Expected %d from /sales, got %d: %s", wantStatus, status, string(body))
	}

	var result SaleResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal sale response: %v (body: %s)", err, string(body))
	}
	return result
}

func upsertRule(t *testing.T, config TestConfig, rule CommissionRule) {
	t.Helper()

	status, body := doRequest(t, config, "PUT", "/rules/"+rule.ProductID, rule)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from PUT /rules, got %d: %s", status, string(body))
	}
}

// ============================================================================
// SCENARIO 1: Full Happy Path (Click → Sale → Approve → Paid)
// ============================================================================

func TestFullPipeline_ClickToPayout(t *testing.T) {
	/*
	   SCENARIO: A shopper clicks a reseller link, buys ten minutes later,
	   and the resulting commission is approved and paid out.

	   EXPECTED BEHAVIOR:
	   - Click is recorded
	   - Sale attributes to that click (method=click-match)
	   - Commission created in "pending" at the product's base rate
	   - approve → "approved", mark-paid → "paid"
	*/
	config := getTestConfig()

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	resellerID := "reseller-pipe-" + suffix
	productID := "product-pipe-" + suffix

	upsertRule(t, config, CommissionRule{
		ProductID:         productID,
		ProductName:       "Pipeline Product",
		BaseCommissionPct: 10,
		IsActive:          true,
	})

	click := recordClick(t, config, ClickRequest{
		ResellerID: resellerID,
		ProductID:  productID,
		UTMSource:  "newsletter",
	})
	if !click.Recorded {
		t.Fatal("Expected click to be recorded")
	}

	// The sale comes in after the click; the engine uses the sale's
	// receive time, so the click-to-sale gap is real wall time. Sleep
	// past the velocity floor so the sale scores clean.
	time.Sleep(3 * time.Second)

	sale := reportSale(t, config, SaleRequest{
		ResellerID: resellerID,
		ProductID:  productID,
		Amount:     250,
	}, http.StatusCreated)

	if !sale.Created {
		t.Error("Expected created=true for first sale")
	}
	if sale.Attribution.Method != "click-match" {
		t.Errorf("Expected click-match attribution, got %s", sale.Attribution.Method)
	}
	if sale.Attribution.MatchedClickID != click.ClickID {
		t.Errorf("Expected attribution to click %s, got %s", click.ClickID, sale.Attribution.MatchedClickID)
	}
	if sale.Commission.Status != "pending" {
		t.Errorf("Expected pending commission, got %s", sale.Commission.Status)
	}
	if sale.Commission.Amount != 25 {
		t.Errorf("Expected commission 25.00 (10%% of 250), got %.2f", sale.Commission.Amount)
	}
	if sale.Commission.FraudScore != 0 {
		t.Errorf("Expected clean fraud score, got %d (%v)", sale.Commission.FraudScore, sale.Commission.FraudReasons)
	}

	// Approve
	status, body := doRequest(t, config, "POST", "/commissions/"+sale.Commission.ID+"/approve", DecisionRequest{
		Notes:     "verified with payment processor",
		DecidedBy: "integration-test",
	})
	if status != http.StatusOK {
		t.Fatalf("Approve failed: %d %s", status, string(body))
	}
	var approved Commission
	if err := json.Unmarshal(body, &approved); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if approved.Status != "approved" {
		t.Errorf("Expected approved, got %s", approved.Status)
	}

	// Mark paid
	status, body = doRequest(t, config, "POST", "/commissions/"+sale.Commission.ID+"/mark-paid", DecisionRequest{
		DecidedBy: "integration-test",
	})
	if status != http.StatusOK {
		t.Fatalf("Mark-paid failed: %d %s", status, string(body))
	}
	var paid Commission
	if err := json.Unmarshal(body, &paid); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if paid.Status != "paid" {
		t.Errorf("Expected paid, got %s", paid.Status)
	}

	t.Logf("✓ Full pipeline: click=%s commission=%s %.2f → paid",
		click.ClickID, sale.Commission.ID, sale.Commission.Amount)
}

// ============================================================================
// SCENARIO 2: Idempotent Sale Ingestion
// ============================================================================

func TestDuplicateSale_SingleCommission(t *testing.T) {
	/*
	   SCENARIO: The storefront retries a sale webhook with the same
	   saleEventId (and a different amount, as a broken retry would).

	   EXPECTED BEHAVIOR:
	   - First report → 201, commission created
	   - Retry → 200, SAME commission returned, original amount kept
	*/
	config := getTestConfig()

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	saleID := "sale-dup-" + suffix

	first := reportSale(t, config, SaleRequest{
		SaleEventID: saleID,
		ResellerID:  "reseller-dup-" + suffix,
		ProductID:   "product-dup-" + suffix,
		Amount:      100,
	}, http.StatusCreated)

	retry := reportSale(t, config, SaleRequest{
		SaleEventID: saleID,
		ResellerID:  "reseller-dup-" + suffix,
		ProductID:   "product-dup-" + suffix,
		Amount:      999, // Broken retry with a different amount
	}, http.StatusOK)

	if retry.Created {
		t.Error("Expected created=false on retry")
	}
	if retry.Commission.ID != first.Commission.ID {
		t.Errorf("Retry produced a different commission: %s vs %s", retry.Commission.ID, first.Commission.ID)
	}

	t.Logf("✓ Duplicate sale collapsed to one commission: %s", first.Commission.ID)
}

// ============================================================================
// SCENARIO 3: Direct Sale (No Click)
// ============================================================================

func TestDirectSale_UnattributedPenalty(t *testing.T) {
	/*
	   SCENARIO: A sale arrives with no matching click in the lookback
	   window (the reseller reported it manually).

	   EXPECTED BEHAVIOR:
	   - Attribution method = "direct"
	   - Fraud score includes the unattributed penalty (advisory only)
	   - Commission is still created
	*/
	config := getTestConfig()

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())

	sale := reportSale(t, config, SaleRequest{
		ResellerID: "reseller-direct-" + suffix,
		ProductID:  "product-direct-" + suffix,
		Amount:     80,
	}, http.StatusCreated)

	if sale.Attribution.Method != "direct" {
		t.Errorf("Expected direct attribution, got %s", sale.Attribution.Method)
	}
	if sale.Commission.FraudScore == 0 {
		t.Error("Expected unattributed penalty on fraud score")
	}
	if sale.Commission.Status != "pending" {
		t.Errorf("Advisory scoring must not block creation, got status %s", sale.Commission.Status)
	}

	t.Logf("✓ Direct sale: score=%d reasons=%v", sale.Commission.FraudScore, sale.Commission.FraudReasons)
}

// ============================================================================
// SCENARIO 4: Impossible Velocity (Click and Instant Purchase)
// ============================================================================

func TestInstantPurchase_VelocityFlag(t *testing.T) {
	/*
	   SCENARIO: A sale lands within the minimum click-to-sale floor
	   (bot behavior: nobody completes checkout that fast).

	   EXPECTED BEHAVIOR:
	   - Attribution still matches the click
	   - Fraud score picks up the velocity penalty and crosses the
	     suspicion threshold
	   - Commission is STILL created in pending (scores are advisory)
	*/
	config := getTestConfig()

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	resellerID := "reseller-bot-" + suffix
	productID := "product-bot-" + suffix

	click := recordClick(t, config, ClickRequest{
		ResellerID: resellerID,
		ProductID:  productID,
	})
	if !click.Recorded {
		t.Fatal("Expected click to be recorded")
	}

	// No sleep: the sale lands immediately after the click.
	sale := reportSale(t, config, SaleRequest{
		ResellerID: resellerID,
		ProductID:  productID,
		Amount:     500,
	}, http.StatusCreated)

	if sale.Attribution.Method != "click-match" {
		t.Errorf("Expected click-match attribution, got %s", sale.Attribution.Method)
	}
	if sale.Commission.FraudScore < 75 {
		t.Errorf("Expected velocity penalty in score, got %d (%v)",
			sale.Commission.FraudScore, sale.Commission.FraudReasons)
	}
	if sale.Commission.Status != "pending" {
		t.Errorf("Suspicious sale must still create a pending commission, got %s", sale.Commission.Status)
	}

	t.Logf("✓ Instant purchase flagged: score=%d reasons=%v",
		sale.Commission.FraudScore, sale.Commission.FraudReasons)
}

// ============================================================================
// SCENARIO 5: Lifecycle Guardrails
// ============================================================================

func TestRejectWithoutReason_Rejected(t *testing.T) {
	/*
	   SCENARIO: An admin tries to reject a commission without saying why.

	   EXPECTED: HTTP 400. Rejections feed reseller disputes, so the
	   reason is mandatory.
	*/
	config := getTestConfig()

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	sale := reportSale(t, config, SaleRequest{
		ResellerID: "reseller-guard-" + suffix,
		ProductID:  "product-guard-" + suffix,
		Amount:     60,
	}, http.StatusCreated)

	status, body := doRequest(t, config, "POST", "/commissions/"+sale.Commission.ID+"/reject", DecisionRequest{
		DecidedBy: "integration-test",
	})
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for reject without reason, got %d: %s", status, string(body))
	}

	// With a reason it goes through
	status, body = doRequest(t, config, "POST", "/commissions/"+sale.Commission.ID+"/reject", DecisionRequest{
		Reason:    "self-referral confirmed",
		DecidedBy: "integration-test",
	})
	if status != http.StatusOK {
		t.Fatalf("Reject with reason failed: %d %s", status, string(body))
	}

	// Rejected is terminal: approve now conflicts
	status, body = doRequest(t, config, "POST", "/commissions/"+sale.Commission.ID+"/approve", DecisionRequest{})
	if status != http.StatusConflict {
		t.Errorf("Expected 409 approving a rejected commission, got %d: %s", status, string(body))
	}

	t.Logf("✓ Lifecycle guardrails held for commission %s", sale.Commission.ID)
}

// ============================================================================
// SCENARIO 6: Unknown Product Still Pays Zero
// ============================================================================

func TestUnknownProduct_ZeroCommission(t *testing.T) {
	/*
	   SCENARIO: A sale for a product with no configured rule.

	   EXPECTED BEHAVIOR:
	   - Commission is created (nothing is dropped)
	   - Rate and amount are zero until an admin configures the rule
	*/
	config := getTestConfig()

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	sale := reportSale(t, config, SaleRequest{
		ResellerID: "reseller-norule-" + suffix,
		ProductID:  "product-norule-" + suffix,
		Amount:     1000,
	}, http.StatusCreated)

	if sale.Commission.Amount != 0 {
		t.Errorf("Expected zero commission without a rule, got %.2f", sale.Commission.Amount)
	}
	if sale.Commission.AppliedRatePct != 0 {
		t.Errorf("Expected zero rate without a rule, got %.2f", sale.Commission.AppliedRatePct)
	}
	if sale.Commission.Status != "pending" {
		t.Errorf("Expected pending, got %s", sale.Commission.Status)
	}

	t.Logf("✓ Unknown product recorded at zero: %s", sale.Commission.ID)
}
