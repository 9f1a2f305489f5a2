// Package screening provides the CEL-Go based claim screening engine.
//
// Screening rules are operator-defined boolean expressions over claim
// facts. A rule that matches contributes one unclassified fraud flag to
// the adjudication pipeline. No rules are loaded by default.
package screening

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-health/kite/internal/domain"
)

// Engine compiles and evaluates screening rules. Safe for concurrent use;
// rule loading and evaluation are guarded by a RWMutex so rules can be
// hot-reloaded while claims are being screened.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.ScreeningRule
	Program cel.Program
}

// NewEngine creates a screening engine with no rules loaded.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("claim", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("claimed_amount", cel.DoubleType),
		cel.Variable("diagnosis", cel.StringType),
		cel.Variable("hospital_name", cel.StringType),
		cel.Variable("document_type", cel.StringType),
		cel.Variable("extraction_confidence", cel.DoubleType),
		cel.Variable("previous_claim_count", cel.IntType),
		cel.Variable("ytd_claims", cel.DoubleType),
		cel.Variable("policy_status", cel.StringType),
		cel.Variable("procedure_count", cel.IntType),
		cel.Variable("medication_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.ScreeningRule) error {
	if rule == nil {
		return fmt.Errorf("screening rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.ID] = compiled
	return nil
}

// ReloadRules clears all existing rules and loads new ones. This enables
// hot-reloading of rules from the database.
func (e *Engine) ReloadRules(rules []*domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		newRules[rule.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// RemoveRule unloads a rule by ID.
func (e *Engine) RemoveRule(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.compiledRules, ruleID)
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// LoadedRules returns the currently loaded rules.
func (e *Engine) LoadedRules() []*domain.ScreeningRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ScreeningRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Rule)
	}
	return rules
}

// Screen evaluates all loaded rules against a claim and returns one
// unclassified fraud flag per matching rule. Implements the engine's
// Screener contract. Evaluation errors are swallowed: a broken rule never
// blocks adjudication.
func (e *Engine) Screen(claim *domain.ExtractedClaimData, member *domain.MemberInfo) []domain.FraudFlag {
	hits := e.Evaluate(claim, member)
	if len(hits) == 0 {
		return nil
	}

	flags := make([]domain.FraudFlag, 0, len(hits))
	for _, hit := range hits {
		flags = append(flags, domain.FraudFlag{
			Category: domain.FraudUnclassified,
			Message:  fmt.Sprintf("Screening rule matched: %s", hit.RuleName),
		})
	}
	return flags
}

// Evaluate runs all loaded rules in parallel and returns the hits.
func (e *Engine) Evaluate(claim *domain.ExtractedClaimData, member *domain.MemberInfo) []domain.ScreeningHit {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := buildActivation(claim, member)

	matched := make([]bool, len(rules))
	elapsed := make([]int64, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			out, _, err := r.Program.Eval(activation)
			elapsed[idx] = time.Since(start).Milliseconds()
			if err != nil {
				return
			}
			matched[idx] = isTrue(out)
		}(i, rule)
	}

	wg.Wait()

	var hits []domain.ScreeningHit
	for i, rule := range rules {
		if matched[i] {
			hits = append(hits, domain.ScreeningHit{
				RuleID:    rule.Rule.ID,
				RuleName:  rule.Rule.Name,
				Reason:    rule.Rule.Description,
				ProcessMs: elapsed[i],
			})
		}
	}
	return hits
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func buildActivation(claim *domain.ExtractedClaimData, member *domain.MemberInfo) map[string]any {
	return map[string]any{
		"claim": map[string]any{
			"diagnosis":      claim.Diagnosis,
			"hospital_name":  claim.HospitalName,
			"document_type":  claim.DocumentType,
			"claimed_amount": claim.ClaimedAmount(),
		},
		"claimed_amount":        claim.ClaimedAmount(),
		"diagnosis":             claim.Diagnosis,
		"hospital_name":         claim.HospitalName,
		"document_type":         claim.DocumentType,
		"extraction_confidence": claim.ExtractionConfidence,
		"previous_claim_count":  int64(len(member.PreviousClaims)),
		"ytd_claims":            member.YTDClaims,
		"policy_status":         member.PolicyStatus,
		"procedure_count":       int64(len(claim.Procedures)),
		"medication_count":      int64(len(claim.Medications)),
	}
}

// isTrue converts a CEL result to a match decision. Boolean rules match on
// true; numeric rules match on any non-zero value.
func isTrue(val ref.Val) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Double:
		return float64(v) != 0
	case types.Int:
		return int64(v) != 0
	default:
		return false
	}
}

func (e *Engine) compileRule(rule *domain.ScreeningRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", rule.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
