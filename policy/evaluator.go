package policy

import (
	"fmt"
	"sync"
)

// Evaluator runs one rule type against content. Implementations must be pure:
// no I/O, no shared mutable state, deterministic for identical inputs.
type Evaluator interface {
	Evaluate(rule *Rule, content string, metadata *ContentMetadata) EvaluationResult
}

// Dispatcher routes a rule to the evaluator registered for its type. Rules of
// a type with no registered evaluator pass with a diagnostic, so new rule
// types never block content before an evaluator ships.
type Dispatcher struct {
	evaluators map[RuleType]Evaluator
	mu         sync.RWMutex
}

// NewDispatcher creates a dispatcher with the built-in evaluators registered.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{evaluators: make(map[RuleType]Evaluator)}
	d.Register(RuleTypeKeywordMatch, KeywordMatchEvaluator{})
	d.Register(RuleTypeRegexPattern, RegexPatternEvaluator{})
	d.Register(RuleTypeCharacterCount, CharacterCountEvaluator{})
	d.Register(RuleTypeMediaCheck, MediaCheckEvaluator{})
	d.Register(RuleTypeLinkValidation, LinkValidationEvaluator{})
	d.Register(RuleTypeNlpClassification, NlpClassificationEvaluator{Classifier: HeuristicClassifier{}})
	d.Register(RuleTypeCustomLogic, CustomLogicEvaluator{})
	return d
}

// Register installs or replaces the evaluator for a rule type. This is the
// extension point for tenant-specific logic (see CELEvaluator).
func (d *Dispatcher) Register(t RuleType, e Evaluator) {
	d.mu.Lock()
	d.evaluators[t] = e
	d.mu.Unlock()
}

// Evaluate routes the rule to its evaluator.
func (d *Dispatcher) Evaluate(rule *Rule, content string, metadata *ContentMetadata) EvaluationResult {
	d.mu.RLock()
	e, ok := d.evaluators[rule.Type]
	d.mu.RUnlock()

	if !ok {
		return EvaluationResult{
			RuleID:   rule.ID,
			Passed:   true,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("unrecognized rule type %q: rule skipped", rule.Type),
		}
	}

	result := e.Evaluate(rule, content, metadata)
	result.RuleID = rule.ID
	if result.Severity == "" {
		result.Severity = rule.Severity
	}
	return result
}
