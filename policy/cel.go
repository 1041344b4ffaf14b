package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// celCostLimit caps expression evaluation cost so a tenant-supplied
// expression cannot run away.
const celCostLimit = 1_000_000

// CELEvaluator enforces CUSTOM_LOGIC rules whose conditions carry a CEL
// expression over the content. The expression sees the variables `content`,
// `links`, `hashtags` and `mentions`; the rule fails when it evaluates to
// true. Compile and evaluation errors follow the engine's fail-open rule:
// the rule passes with a diagnostic.
//
// Register it on a dispatcher to replace the always-passing default:
//
//	d.Register(RuleTypeCustomLogic, NewCELEvaluator())
type CELEvaluator struct {
	env      *cel.Env
	programs map[string]cel.Program // rule ID -> compiled program
	mu       sync.RWMutex
}

// NewCELEvaluator creates a CEL evaluator with the content evaluation
// environment.
func NewCELEvaluator() (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("content", cel.StringType),
		cel.Variable("links", cel.ListType(cel.StringType)),
		cel.Variable("hashtags", cel.ListType(cel.StringType)),
		cel.Variable("mentions", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CELEvaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// compile returns the cached program for the rule, compiling on first use.
// The cache key includes the rule version so edited expressions recompile.
func (e *CELEvaluator) compile(rule *Rule, expression string) (cel.Program, error) {
	key := fmt.Sprintf("%s@%d", rule.ID, rule.Version)

	e.mu.RLock()
	prog, ok := e.programs[key]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := e.env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	e.mu.Lock()
	e.programs[key] = prog
	e.mu.Unlock()

	return prog, nil
}

// Evaluate implements Evaluator.
func (e *CELEvaluator) Evaluate(rule *Rule, content string, metadata *ContentMetadata) EvaluationResult {
	cond, ok := rule.Conditions.(*CustomConditions)
	if !ok {
		return conditionMismatch(rule)
	}

	if cond.Expression == "" {
		return EvaluationResult{
			Passed:   true,
			Severity: rule.Severity,
			Message:  "custom logic rule has no expression; rule skipped",
		}
	}

	prog, err := e.compile(rule, cond.Expression)
	if err != nil {
		return EvaluationResult{
			Passed:   true,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("invalid custom expression: %v; rule skipped", err),
		}
	}

	if metadata == nil {
		metadata = &ContentMetadata{}
	}
	out, _, err := prog.Eval(map[string]any{
		"content":  content,
		"links":    asAnySlice(metadata.Links),
		"hashtags": asAnySlice(metadata.Hashtags),
		"mentions": asAnySlice(metadata.Mentions),
	})
	if err != nil {
		return EvaluationResult{
			Passed:   true,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("custom expression evaluation error: %v; rule skipped", err),
		}
	}

	matched, _ := out.Value().(bool)
	if matched {
		return EvaluationResult{
			Passed:   false,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("content matched custom rule expression %q", cond.Expression),
		}
	}

	return EvaluationResult{Passed: true, Severity: rule.Severity}
}

func asAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
