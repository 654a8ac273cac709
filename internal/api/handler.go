// Package api provides the HTTP surface of the beam engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/catalog"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/fraud"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/lifecycle"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/processor"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/repository"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/tracker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	tracker   *tracker.Service
	processor *processor.Processor
	lifecycle *lifecycle.Manager
	catalog   *catalog.Service
	engine    *fraud.Engine
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, trk *tracker.Service, proc *processor.Processor, lc *lifecycle.Manager, cat *catalog.Service, engine *fraud.Engine, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		tracker:   trk,
		processor: proc,
		lifecycle: lc,
		catalog:   cat,
		engine:    engine,
		version:   version,
	}
}

// ClickResponse is the response for POST /clicks.
type ClickResponse struct {
	Recorded bool   `json:"recorded"`
	ClickID  string `json:"clickId,omitempty"`
}

// RecordClick handles POST /clicks. The endpoint sits on the shopper's
// redirect path, so it never returns an error status: a click that
// cannot be recorded is logged and dropped, and the shopper moves on.
func (h *Handler) RecordClick(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.ClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("click dropped: invalid request body", "error", err)
		writeJSON(w, http.StatusOK, ClickResponse{Recorded: false})
		return
	}

	click, err := h.tracker.Record(ctx, &req)
	if err != nil {
		slog.Warn("click dropped",
			"reseller_id", req.ResellerID,
			"product_id", req.ProductID,
			"error", err,
		)
		writeJSON(w, http.StatusOK, ClickResponse{Recorded: false})
		return
	}

	h.publish(ctx, domain.TopicClickRecorded, click)

	writeJSON(w, http.StatusOK, ClickResponse{
		Recorded: true,
		ClickID:  click.ID,
	})
}

// SaleResponse is the response for POST /sales.
type SaleResponse struct {
	Commission  *domain.Commission        `json:"commission"`
	Attribution *domain.AttributionResult `json:"attribution"`
	Created     bool                      `json:"created"`
}

// ReportSale handles POST /sales. Duplicate reports for the same sale
// return the existing commission with a 200 instead of creating another.
func (h *Handler) ReportSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.processor.ProcessSale(ctx, &req)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("sale processing failed",
			"reseller_id", req.ResellerID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "sale processing failed",
		})
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}

	writeJSON(w, status, SaleResponse{
		Commission:  result.Commission,
		Attribution: result.Attribution,
		Created:     result.Created,
	})
}

// GetCommission handles GET /commissions/{id}.
func (h *Handler) GetCommission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	c, err := h.repo.GetCommission(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "commission not found",
			})
			return
		}
		slog.Error("failed to get commission", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get commission",
		})
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// ListCommissions handles GET /commissions?resellerId=&status=.
func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resellerID := r.URL.Query().Get("resellerId")
	if resellerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "resellerId query parameter is required",
		})
		return
	}

	var status domain.CommissionStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status = domain.CommissionStatus(s)
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown status: " + s,
			})
			return
		}
	}

	commissions, err := h.repo.ListCommissionsByReseller(ctx, resellerID, status)
	if err != nil {
		slog.Error("failed to list commissions", "reseller_id", resellerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list commissions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commissions": commissions,
		"count":       len(commissions),
	})
}

// DecisionRequest is the request body for lifecycle decisions.
type DecisionRequest struct {
	Notes     string `json:"notes,omitempty"`
	Reason    string `json:"reason,omitempty"`
	DecidedBy string `json:"decidedBy,omitempty"`
}

// ApproveCommission handles POST /commissions/{id}/approve.
func (h *Handler) ApproveCommission(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(req *DecisionRequest) (*domain.Commission, error) {
		return h.lifecycle.Approve(r.Context(), chi.URLParam(r, "id"), req.Notes, req.DecidedBy)
	})
}

// RejectCommission handles POST /commissions/{id}/reject. A reason is
// required.
func (h *Handler) RejectCommission(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(req *DecisionRequest) (*domain.Commission, error) {
		return h.lifecycle.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason, req.DecidedBy)
	})
}

// MarkCommissionPaid handles POST /commissions/{id}/mark-paid.
func (h *Handler) MarkCommissionPaid(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(req *DecisionRequest) (*domain.Commission, error) {
		return h.lifecycle.MarkPaid(r.Context(), chi.URLParam(r, "id"), req.Notes, req.DecidedBy)
	})
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(*DecisionRequest) (*domain.Commission, error)) {
	var req DecisionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	c, err := fn(&req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "commission not found",
			})
		case errors.Is(err, domain.ErrInvalidTransition):
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": err.Error(),
			})
		case errors.Is(err, domain.ErrValidation):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		default:
			slog.Error("lifecycle decision failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "decision failed",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// ListRules handles GET /rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.catalog.List(r.Context())
	if err != nil {
		slog.Error("failed to list rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// GetRule handles GET /rules/{productId}. Returns the effective rule,
// which is the zero-paying default when none is configured.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	rule, isDefault, err := h.catalog.Rule(r.Context(), productID)
	if err != nil {
		slog.Error("failed to get rule", "product_id", productID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rule":    rule,
		"default": isDefault,
	})
}

// UpsertRule handles PUT /rules/{productId}.
func (h *Handler) UpsertRule(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	var rule domain.CommissionRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	rule.ProductID = productID

	if err := h.catalog.Save(r.Context(), &rule); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to save rule", "product_id", productID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("commission rule saved", "product_id", productID)
	writeJSON(w, http.StatusOK, &rule)
}

// ListRiskRules handles GET /risk-rules. Returns the rules loaded in
// the engine.
func (h *Handler) ListRiskRules(w http.ResponseWriter, r *http.Request) {
	rules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// CreateRiskRuleRequest is the request body for creating a risk rule.
type CreateRiskRuleRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Penalty    int    `json:"penalty"`
	Reason     string `json:"reason"`
	Enabled    bool   `json:"enabled"`
}

// CreateRiskRule handles POST /risk-rules. The expression is compiled
// before persisting so broken rules are rejected up front.
func (h *Handler) CreateRiskRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRiskRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}
	if req.Penalty <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "penalty must be positive",
		})
		return
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Reason == "" {
		req.Reason = req.Name
	}

	rule := &domain.RiskRule{
		ID:         req.ID,
		Name:       req.Name,
		Expression: req.Expression,
		Penalty:    req.Penalty,
		Reason:     req.Reason,
		Enabled:    req.Enabled,
	}

	// Compile first so a broken expression never reaches the database.
	if rule.Enabled {
		if err := h.engine.LoadRule(rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid expression: " + err.Error(),
			})
			return
		}
	}

	if err := h.repo.SaveRiskRule(ctx, rule); err != nil {
		slog.Error("failed to save risk rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save risk rule",
		})
		return
	}

	slog.Info("risk rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, rule)
}

// ReloadRiskRules handles POST /risk-rules/reload. Re-reads rules from
// the database and swaps them into the engine without a restart.
func (h *Handler) ReloadRiskRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rules, err := h.repo.ListRiskRules(ctx)
	if err != nil {
		slog.Error("failed to load risk rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load risk rules",
		})
		return
	}

	if err := h.engine.ReloadRules(rules); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload risk rules: " + err.Error(),
		})
		return
	}

	slog.Info("risk rules reloaded", "count", h.engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded": true,
		"count":    h.engine.RulesCount(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) publish(ctx context.Context, topic string, v any) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := h.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
