package policy

import (
	"context"
	"fmt"
	"sort"
)

// Resolver turns a scope context into the ordered, applicable, active rule
// set for one check.
type Resolver struct {
	repo  RuleRepository
	cache RuleCache
}

// NewResolver creates a resolver over a rule repository. A nil cache
// disables caching.
func NewResolver(repo RuleRepository, cache RuleCache) *Resolver {
	return &Resolver{repo: repo, cache: cache}
}

// Resolve returns the rules applicable to the context, ordered by severity
// descending then category ascending so violation output is deterministic
// across runs with the same rule set. Quick scope restricts the set to
// CRITICAL and ERROR severities and is always a subset of the full set.
func (r *Resolver) Resolve(ctx context.Context, rc ResolveContext) ([]*Rule, error) {
	rules, err := r.lookup(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rules: %w", err)
	}

	if rc.Scope == CheckScopeQuick {
		quick := rules[:0:0]
		for _, rule := range rules {
			if rule.Severity == SeverityCritical || rule.Severity == SeverityError {
				quick = append(quick, rule)
			}
		}
		rules = quick
	}

	sortRules(rules)
	return rules, nil
}

// sortRules orders rules by severity descending then category ascending, so
// evaluation and violation output are deterministic for a given rule set.
func sortRules(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Severity.Rank() != rules[j].Severity.Rank() {
			return rules[i].Severity.Rank() > rules[j].Severity.Rank()
		}
		return rules[i].Category < rules[j].Category
	})
}

// lookup fetches the scoped rule set, consulting the cache first. The cache
// key deliberately omits the check scope: quick mode is derived by filtering,
// so both scopes share one entry.
func (r *Resolver) lookup(ctx context.Context, rc ResolveContext) ([]*Rule, error) {
	key := rc.TenantID + "|" + rc.Platform
	if r.cache != nil {
		if cached := r.cache.Get(key); cached != nil {
			return cached, nil
		}
	}

	rules, err := r.repo.FindApplicable(ctx, rc)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(key, rules)
	}
	return rules, nil
}
