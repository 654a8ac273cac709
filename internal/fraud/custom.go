package fraud

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/riyasinghal9/beam-affiliate-platform-sub000/internal/domain"
)

// Engine evaluates admin-defined CEL risk rules against a sale/click
// pair. Each enabled rule that evaluates true contributes its configured
// penalty and reason to the fraud score.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RiskRule
	Program cel.Program
}

// NewEngine creates a risk-rule engine with the sale/click variable set.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("reseller_id", cel.StringType),
		cel.Variable("product_id", cel.StringType),
		cel.Variable("customer_email", cel.StringType),
		// Seconds between matched click and sale; -1 for direct attribution.
		cel.Variable("click_to_sale_secs", cel.DoubleType),
		cel.Variable("sales_today", cel.IntType),
		cel.Variable("customer_resellers", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// LoadRule compiles and loads a risk rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RiskRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple risk rules.
func (e *Engine) LoadRules(configs []*domain.RiskRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
func (e *Engine) ReloadRules(configs []*domain.RiskRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// RulesCount returns the number of loaded risk rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded risk rule configurations,
// ordered by name to match repository listings.
func (e *Engine) GetLoadedRules() []*domain.RiskRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RiskRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// Evaluate runs all loaded rules against the sale/click pair and returns
// the total extra penalty and the triggered reasons. Evaluation failures
// are logged and skipped rather than poisoning the score.
func (e *Engine) Evaluate(sale *domain.SaleEvent, click *domain.ClickEvent, hist History) (int, []string) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return 0, nil
	}

	clickToSale := -1.0
	if click != nil {
		clickToSale = sale.Timestamp.Sub(click.Timestamp).Seconds()
	}

	activation := map[string]any{
		"amount":             sale.Amount,
		"reseller_id":        sale.ResellerID,
		"product_id":         sale.ProductID,
		"customer_email":     sale.CustomerEmail,
		"click_to_sale_secs": clickToSale,
		"sales_today":        hist.SalesToday,
		"customer_resellers": hist.CustomerResellers,
	}

	var penalty int
	var reasons []string
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			slog.Error("risk rule evaluation failed",
				"rule_id", rule.Config.ID,
				"error", err,
			)
			continue
		}

		if triggered, ok := out.(types.Bool); ok && bool(triggered) {
			penalty += rule.Config.Penalty
			reasons = append(reasons, rule.Config.Reason)
		}
	}

	return penalty, reasons
}

func (e *Engine) compileRule(cfg *domain.RiskRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile risk rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("risk rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for risk rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
