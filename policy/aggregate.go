package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DetermineOverallResult computes the verdict for a set of violations.
// Precedence, first match wins: any blocking or CRITICAL violation blocks;
// any ERROR fails; any WARNING passes with warnings; otherwise passed.
func DetermineOverallResult(violations []ViolationSummary) OverallResult {
	for _, v := range violations {
		if v.IsBlocking || v.Severity == SeverityCritical {
			return ResultBlocked
		}
	}
	for _, v := range violations {
		if v.Severity == SeverityError {
			return ResultFailed
		}
	}
	for _, v := range violations {
		if v.Severity == SeverityWarning {
			return ResultPassedWithWarnings
		}
	}
	return ResultPassed
}

// CanPublish reports whether content with the given verdict may be published.
func CanPublish(result OverallResult) bool {
	return result == ResultPassed || result == ResultPassedWithWarnings
}

// Aggregator converts failed evaluations into persisted violations and their
// caller-facing summaries.
type Aggregator struct {
	violations ViolationStore
}

// NewAggregator creates an aggregator over a violation store.
func NewAggregator(violations ViolationStore) *Aggregator {
	return &Aggregator{violations: violations}
}

// failedEvaluation pairs a failed result with the rule that produced it.
type failedEvaluation struct {
	rule   *Rule
	result EvaluationResult
}

// Record persists one violation per failed evaluation, preserving the
// resolved rule order, and returns the summaries.
func (a *Aggregator) Record(ctx context.Context, checkID string, failures []failedEvaluation) ([]ViolationSummary, error) {
	summaries := make([]ViolationSummary, 0, len(failures))
	for _, f := range failures {
		violation := &Violation{
			ID:             uuid.NewString(),
			CheckID:        checkID,
			RuleID:         f.rule.ID,
			Severity:       f.result.Severity,
			Message:        f.result.Message,
			MatchedContent: f.result.MatchedContent,
			Location:       f.result.Location,
			Confidence:     f.result.Confidence,
			SuggestedFix:   f.result.SuggestedFix,
			CreatedAt:      time.Now(),
		}
		if err := a.violations.Create(ctx, violation); err != nil {
			return nil, fmt.Errorf("failed to persist violation for rule %s: %w", f.rule.ID, err)
		}

		summaries = append(summaries, ViolationSummary{
			RuleID:       f.rule.ID,
			Category:     f.rule.Category,
			Severity:     f.result.Severity,
			Message:      f.result.Message,
			IsBlocking:   f.rule.IsBlocking,
			Confidence:   f.result.Confidence,
			SuggestedFix: f.result.SuggestedFix,
		})
	}
	return summaries, nil
}
