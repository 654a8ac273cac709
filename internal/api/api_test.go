package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/attribution"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/bus"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/cache"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/catalog"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/fraud"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/lifecycle"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/processor"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/repository"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/tracker"
)

// createTestServer wires the full community stack against a temp sqlite
// database.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "beam-api-test-*.db")
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

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	engineCfg := domain.DefaultEngineConfig()
	lru := cache.NewLRUCache(100)
	channelBus := bus.NewChannelBus(100)
	t.Cleanup(func() { channelBus.Close() })

	engine, err := fraud.NewEngine()
	if err != nil {
		t.Fatalf("failed to create risk rule engine: %v", err)
	}

	trk := tracker.NewService(repo, lru)
	cat := catalog.NewService(repo, lru, engineCfg.RuleCacheTTL)
	resolver := attribution.NewResolver(repo, engineCfg.AttributionLookback)
	scorer := fraud.NewScorer(engineCfg.Fraud, engine)
	lc := lifecycle.NewManager(repo, channelBus)
	proc := processor.New(repo, cat, resolver, scorer, channelBus, engineCfg.Fraud)

	return NewServer(cfg, repo, lru, channelBus, trk, proc, lc, cat, engine, "test-v1")
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestClickEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("RecordsClick", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/clicks", domain.ClickRequest{
			ResellerID: "reseller-001",
			ProductID:  "product-001",
			UTMSource:  "newsletter",
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp ClickResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if !resp.Recorded {
			t.Error("expected recorded=true")
		}
		if resp.ClickID == "" {
			t.Error("expected clickId in response")
		}
	})

	t.Run("InvalidClickNeverFails", func(t *testing.T) {
		// Missing resellerId: still 200, just not recorded
		rr := doJSON(t, server, http.MethodPost, "/clicks", domain.ClickRequest{
			ProductID: "product-001",
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("click endpoint must not fail, got %d", rr.Code)
		}

		var resp ClickResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Recorded {
			t.Error("expected recorded=false for invalid click")
		}
	})

	t.Run("MalformedBodyNeverFails", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/clicks", bytes.NewBufferString("{not json"))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("click endpoint must not fail, got %d", rr.Code)
		}
	})
}

func TestSaleEndpoint(t *testing.T) {
	server := createTestServer(t)

	// Configure a rule so the commission is non-zero
	rr := doJSON(t, server, http.MethodPut, "/rules/product-001", domain.CommissionRule{
		BaseCommissionPct: 10,
		IsActive:          true,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("rule setup failed: %d %s", rr.Code, rr.Body.String())
	}

	t.Run("CreatesCommission", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/sales", domain.SaleRequest{
			SaleEventID: "sale-001",
			ResellerID:  "reseller-001",
			ProductID:   "product-001",
			Amount:      200,
		})

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp SaleResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if !resp.Created {
			t.Error("expected created=true")
		}
		if resp.Commission.Amount != 20 {
			t.Errorf("expected commission 20, got %.2f", resp.Commission.Amount)
		}
		if resp.Commission.Status != domain.StatusPending {
			t.Errorf("expected pending, got %s", resp.Commission.Status)
		}
	})

	t.Run("DuplicateReturns200", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/sales", domain.SaleRequest{
			SaleEventID: "sale-001",
			ResellerID:  "reseller-001",
			ProductID:   "product-001",
			Amount:      200,
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 for duplicate, got %d", rr.Code)
		}

		var resp SaleResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Created {
			t.Error("expected created=false for duplicate sale")
		}
	})

	t.Run("ValidationErrors", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/sales", domain.SaleRequest{
			ResellerID: "reseller-001",
			ProductID:  "product-001",
			Amount:     -10,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for negative amount, got %d", rr.Code)
		}

		req := httptest.NewRequest(http.MethodPost, "/sales", bytes.NewBufferString("{broken"))
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for malformed body, got %d", rec.Code)
		}
	})
}

func TestCommissionEndpoints(t *testing.T) {
	server := createTestServer(t)

	// Create a commission via a sale
	rr := doJSON(t, server, http.MethodPost, "/sales", domain.SaleRequest{
		SaleEventID: "sale-lc",
		ResellerID:  "reseller-lc",
		ProductID:   "product-001",
		Amount:      100,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("sale setup failed: %d %s", rr.Code, rr.Body.String())
	}
	var saleResp SaleResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &saleResp); err != nil {
		t.Fatalf("failed to parse sale response: %v", err)
	}
	commissionID := saleResp.Commission.ID

	t.Run("GetByID", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/commissions/"+commissionID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/commissions/missing", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("ListRequiresReseller", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/commissions", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without resellerId, got %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodGet, "/commissions?resellerId=reseller-lc", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodGet, "/commissions?resellerId=reseller-lc&status=bogus", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown status, got %d", rr.Code)
		}
	})

	t.Run("RejectWithoutReason", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/commissions/"+commissionID+"/reject", DecisionRequest{
			DecidedBy: "admin-1",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without reason, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("ApproveAndMarkPaid", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/commissions/"+commissionID+"/approve", DecisionRequest{
			Notes:     "verified",
			DecidedBy: "admin-1",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("approve failed: %d %s", rr.Code, rr.Body.String())
		}

		var approved domain.Commission
		if err := json.Unmarshal(rr.Body.Bytes(), &approved); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if approved.Status != domain.StatusApproved {
			t.Errorf("expected approved, got %s", approved.Status)
		}

		// Approving again conflicts
		rr = doJSON(t, server, http.MethodPost, "/commissions/"+commissionID+"/approve", DecisionRequest{})
		if rr.Code != http.StatusConflict {
			t.Errorf("expected 409 on double approve, got %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodPost, "/commissions/"+commissionID+"/mark-paid", DecisionRequest{
			DecidedBy: "admin-1",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("mark-paid failed: %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("DecideMissingCommission", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/commissions/missing/approve", DecisionRequest{})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("UpsertAndGet", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPut, "/rules/product-r1", domain.CommissionRule{
			ProductName:        "Bundle",
			BaseCommissionPct:  8,
			BonusCommissionPct: 2,
			MinimumSales:       10,
			IsActive:           true,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("upsert failed: %d %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodGet, "/rules/product-r1", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("get failed: %d", rr.Code)
		}

		var resp struct {
			Rule    *domain.CommissionRule `json:"rule"`
			Default bool                   `json:"default"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Default {
			t.Error("configured rule reported as default")
		}
		if resp.Rule.BaseCommissionPct != 8 {
			t.Errorf("expected base 8, got %.1f", resp.Rule.BaseCommissionPct)
		}
	})

	t.Run("UnknownProductReturnsDefault", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/rules/product-none", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("get failed: %d", rr.Code)
		}

		var resp struct {
			Default bool `json:"default"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if !resp.Default {
			t.Error("expected default=true for unconfigured product")
		}
	})

	t.Run("InvalidRuleRejected", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPut, "/rules/product-bad", domain.CommissionRule{
			BaseCommissionPct: 150,
			IsActive:          true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}

func TestRiskRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("CreateAndList", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/risk-rules", CreateRiskRuleRequest{
			Name:       "large-order",
			Expression: "amount > 5000.0",
			Penalty:    25,
			Reason:     "large-order",
			Enabled:    true,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("create failed: %d %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodGet, "/risk-rules", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("list failed: %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("expected 1 loaded rule, got %d", resp.Count)
		}
	})

	t.Run("BadExpressionRejected", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/risk-rules", CreateRiskRuleRequest{
			Name:       "broken",
			Expression: "amount +",
			Penalty:    10,
			Enabled:    true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for bad expression, got %d", rr.Code)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/risk-rules/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("reload failed: %d %s", rr.Code, rr.Body.String())
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	rr := doJSON(t, server, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health failed: %d", rr.Code)
	}

	var health map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &health); err != nil {
		t.Fatalf("failed to parse health: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", health["status"])
	}
	if health["version"] != "test-v1" {
		t.Errorf("expected version test-v1, got %s", health["version"])
	}

	rr = doJSON(t, server, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("ready failed: %d", rr.Code)
	}

	// Request/trace headers are set by the middleware chain
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("expected request id header")
	}
}
