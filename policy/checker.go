package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrTenantRequired is returned when a check is requested without a tenant.
var ErrTenantRequired = errors.New("tenant is required")

// Checker is the public entry point of the engine. It owns the check
// lifecycle: every invocation creates a fresh check record, runs it to a
// terminal status, and never leaves it IN_PROGRESS. Checks are append-only;
// re-checking content creates a new record.
type Checker struct {
	resolver   *Resolver
	dispatcher *Dispatcher
	aggregator *Aggregator
	checks     CheckStore
	logger     *slog.Logger
}

// NewChecker wires the engine together. A nil logger falls back to
// slog.Default.
func NewChecker(repo RuleRepository, checks CheckStore, violations ViolationStore, dispatcher *Dispatcher, cache RuleCache, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	return &Checker{
		resolver:   NewResolver(repo, cache),
		dispatcher: dispatcher,
		aggregator: NewAggregator(violations),
		checks:     checks,
		logger:     logger,
	}
}

// CheckContent evaluates the content against every applicable rule and
// returns the verdict. Evaluator-internal faults (bad patterns, unknown rule
// types) are absorbed into passing results with diagnostics; infrastructure
// faults mark the check FAILED before propagating, so the check record is the
// durable audit trail either way.
func (c *Checker) CheckContent(ctx context.Context, tenantID string, input CheckInput) (*CheckOutput, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	scope := input.Scope
	if scope == "" {
		scope = CheckScopeFull
	}

	started := time.Now()
	check := &Check{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ContentType: input.ContentType,
		ContentID:   input.ContentID,
		ContentText: input.ContentText,
		Metadata:    input.Metadata,
		Platform:    input.Platform,
		Scope:       scope,
		Status:      CheckStatusInProgress,
		CreatedAt:   started,
	}
	if err := c.checks.Create(ctx, check); err != nil {
		return nil, fmt.Errorf("failed to create check: %w", err)
	}

	output, err := c.run(ctx, check)
	if err != nil {
		c.failCheck(ctx, check, started, err)
		return nil, err
	}
	return output, nil
}

// run executes the check body. Any error returned here is an infrastructure
// fault: the caller records the check as FAILED and re-raises.
func (c *Checker) run(ctx context.Context, check *Check) (*CheckOutput, error) {
	rules, err := c.resolver.Resolve(ctx, ResolveContext{
		TenantID:    check.TenantID,
		Platform:    check.Platform,
		ContentType: check.ContentType,
		Scope:       check.Scope,
	})
	if err != nil {
		return nil, err
	}

	// Caller-supplied metadata is authoritative; extract only when absent.
	metadata := check.Metadata
	if metadata == nil {
		metadata = ExtractContentMetadata(check.ContentText)
	}

	// The platform character limit is static reference data, enforced as a
	// synthetic rule scoped to this check's content type.
	if limit := CharacterLimitRule(check.Platform, check.ContentType); limit != nil {
		rules = append(rules, limit)
		sortRules(rules)
	}

	var (
		passed   int
		warnings int
		failures []failedEvaluation
	)
	for _, rule := range rules {
		result := c.dispatcher.Evaluate(rule, check.ContentText, metadata)
		if result.Passed {
			passed++
			continue
		}
		if result.Severity == SeverityWarning {
			warnings++
		}
		failures = append(failures, failedEvaluation{rule: rule, result: result})
	}

	summaries, err := c.aggregator.Record(ctx, check.ID, failures)
	if err != nil {
		return nil, err
	}

	overall := DetermineOverallResult(summaries)
	now := time.Now()

	check.Status = CheckStatusCompleted
	check.OverallResult = overall
	check.PassedRules = passed
	check.FailedRules = len(failures)
	check.WarningRules = warnings
	check.Summary = checkSummary(len(rules), passed, len(failures), overall)
	check.Duration = now.Sub(check.CreatedAt)
	check.CompletedAt = now
	if err := c.checks.Update(ctx, check); err != nil {
		return nil, fmt.Errorf("failed to finalize check: %w", err)
	}

	c.logger.Info("content check completed",
		"check_id", check.ID,
		"tenant_id", check.TenantID,
		"rules_evaluated", len(rules),
		"failed", len(failures),
		"result", string(overall),
		"duration", check.Duration,
	)

	return &CheckOutput{
		CheckID:       check.ID,
		Status:        check.Status,
		OverallResult: overall,
		PassedRules:   passed,
		FailedRules:   len(failures),
		WarningRules:  warnings,
		Violations:    summaries,
		Summary:       check.Summary,
		DurationMs:    check.Duration.Milliseconds(),
		CanPublish:    CanPublish(overall),
	}, nil
}

// failCheck records the terminal FAILED state. A store failure here is
// logged, not returned: the original error must reach the caller.
func (c *Checker) failCheck(ctx context.Context, check *Check, started time.Time, cause error) {
	now := time.Now()
	check.Status = CheckStatusFailed
	check.ErrorMessage = cause.Error()
	check.Duration = now.Sub(started)
	check.CompletedAt = now
	if err := c.checks.Update(ctx, check); err != nil {
		c.logger.Error("failed to record failed check",
			"check_id", check.ID,
			"cause", cause,
			"update_error", err,
		)
	}
}

// EvaluateRule runs a single rule against content without touching any
// collaborator. Pure and synchronous.
func (c *Checker) EvaluateRule(rule *Rule, content string, metadata *ContentMetadata) EvaluationResult {
	return c.dispatcher.Evaluate(rule, content, metadata)
}

// GetApplicableRules returns the ordered rule set the engine would evaluate
// for the given context.
func (c *Checker) GetApplicableRules(ctx context.Context, rc ResolveContext) ([]*Rule, error) {
	return c.resolver.Resolve(ctx, rc)
}

func checkSummary(total, passed, failed int, overall OverallResult) string {
	if total == 0 {
		return "no applicable rules; content passed"
	}
	if failed == 0 {
		return fmt.Sprintf("all %d rules passed", total)
	}
	return fmt.Sprintf("%d of %d rules failed (%d passed); result %s", failed, total, passed, overall)
}
