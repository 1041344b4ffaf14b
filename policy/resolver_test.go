package policy

import (
	"context"
	"testing"
	"time"
)

func addRules(t *testing.T, repo *InMemoryRuleRepository, rules ...*Rule) {
	t.Helper()
	for _, rule := range rules {
		if err := repo.Add(context.Background(), rule); err != nil {
			t.Fatalf("failed to add rule %s: %v", rule.ID, err)
		}
	}
}

func scopedRule(id, tenantID, platform string, severity Severity) *Rule {
	return &Rule{
		ID:         id,
		TenantID:   tenantID,
		Platform:   platform,
		Name:       id,
		Category:   "test",
		Type:       RuleTypeKeywordMatch,
		Conditions: &KeywordConditions{},
		Severity:   severity,
		IsActive:   true,
	}
}

// Resolving for tenant T on platform P must include all four combinations of
// {global, tenant} x {platform-agnostic, platform P}, and exclude other
// tenants and other platforms.
func TestResolveScopeMatrix(t *testing.T) {
	repo := NewInMemoryRuleRepository()
	addRules(t, repo,
		scopedRule("global-any", "", "", SeverityError),
		scopedRule("global-p", "", "twitter", SeverityError),
		scopedRule("tenant-any", "tenant-a", "", SeverityError),
		scopedRule("tenant-p", "tenant-a", "twitter", SeverityError),
		scopedRule("other-tenant", "tenant-b", "", SeverityError),
		scopedRule("other-platform", "", "facebook", SeverityError),
		scopedRule("tenant-other-platform", "tenant-a", "facebook", SeverityError),
	)
	resolver := NewResolver(repo, nil)

	rules, err := resolver.Resolve(context.Background(), ResolveContext{
		TenantID: "tenant-a",
		Platform: "twitter",
	})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	got := make(map[string]bool, len(rules))
	for _, rule := range rules {
		got[rule.ID] = true
	}

	for _, want := range []string{"global-any", "global-p", "tenant-any", "tenant-p"} {
		if !got[want] {
			t.Errorf("expected rule %s in resolved set", want)
		}
	}
	for _, excluded := range []string{"other-tenant", "other-platform", "tenant-other-platform"} {
		if got[excluded] {
			t.Errorf("rule %s must be excluded", excluded)
		}
	}
}

func TestResolveNoPlatformIncludesAllPlatformRules(t *testing.T) {
	repo := NewInMemoryRuleRepository()
	addRules(t, repo,
		scopedRule("any", "", "", SeverityError),
		scopedRule("twitter-only", "", "twitter", SeverityError),
	)
	resolver := NewResolver(repo, nil)

	rules, err := resolver.Resolve(context.Background(), ResolveContext{TenantID: "t"})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("context without platform resolves %d rules, want 2", len(rules))
	}
}

func TestResolveExcludesInactiveRules(t *testing.T) {
	repo := NewInMemoryRuleRepository()
	inactive := scopedRule("inactive", "", "", SeverityCritical)
	inactive.IsActive = false
	addRules(t, repo, inactive, scopedRule("active", "", "", SeverityInfo))
	resolver := NewResolver(repo, nil)

	rules, err := resolver.Resolve(context.Background(), ResolveContext{TenantID: "t"})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "active" {
		t.Errorf("only active rules may resolve, got %v", rules)
	}
}

// Quick mode is a strict subset: CRITICAL and ERROR only, never extra rules.
func TestResolveQuickScopeSeveritySubset(t *testing.T) {
	repo := NewInMemoryRuleRepository()
	addRules(t, repo,
		scopedRule("crit", "", "", SeverityCritical),
		scopedRule("err", "", "", SeverityError),
		scopedRule("warn", "", "", SeverityWarning),
		scopedRule("info", "", "", SeverityInfo),
	)
	resolver := NewResolver(repo, nil)

	full, err := resolver.Resolve(context.Background(), ResolveContext{TenantID: "t"})
	if err != nil {
		t.Fatalf("Resolve(full) failed: %v", err)
	}
	quick, err := resolver.Resolve(context.Background(), ResolveContext{TenantID: "t", Scope: CheckScopeQuick})
	if err != nil {
		t.Fatalf("Resolve(quick) failed: %v", err)
	}

	if len(full) != 4 {
		t.Errorf("full scope resolved %d rules, want 4", len(full))
	}
	if len(quick) != 2 {
		t.Fatalf("quick scope resolved %d rules, want 2", len(quick))
	}
	for _, rule := range quick {
		if rule.Severity != SeverityCritical && rule.Severity != SeverityError {
			t.Errorf("quick scope leaked %s rule %s", rule.Severity, rule.ID)
		}
	}
}

func TestResolveOrderingDeterministic(t *testing.T) {
	repo := NewInMemoryRuleRepository()
	mk := func(id, category string, severity Severity) *Rule {
		r := scopedRule(id, "", "", severity)
		r.Category = category
		return r
	}
	addRules(t, repo,
		mk("w-z", "zeta", SeverityWarning),
		mk("c-b", "beta", SeverityCritical),
		mk("e-a", "alpha", SeverityError),
		mk("c-a", "alpha", SeverityCritical),
		mk("w-a", "alpha", SeverityWarning),
	)
	resolver := NewResolver(repo, nil)

	want := []string{"c-a", "c-b", "e-a", "w-a", "w-z"}
	for run := 0; run < 5; run++ {
		rules, err := resolver.Resolve(context.Background(), ResolveContext{TenantID: "t"})
		if err != nil {
			t.Fatalf("Resolve() failed: %v", err)
		}
		for i, rule := range rules {
			if rule.ID != want[i] {
				t.Fatalf("run %d position %d = %s, want %s (severity desc, category asc)", run, i, rule.ID, want[i])
			}
		}
	}
}

func TestResolverUsesCache(t *testing.T) {
	repo := NewInMemoryRuleRepository()
	addRules(t, repo, scopedRule("r1", "", "", SeverityError))

	cache := NewInMemoryRuleCache(CacheConfig{TTL: time.Minute})
	resolver := NewResolver(repo, cache)

	rc := ResolveContext{TenantID: "tenant-a"}
	if _, err := resolver.Resolve(context.Background(), rc); err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	// A rule added behind the cache's back is invisible until invalidation.
	addRules(t, repo, scopedRule("r2", "", "", SeverityError))

	rules, err := resolver.Resolve(context.Background(), rc)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if len(rules) != 1 {
		t.Errorf("expected cached rule set of 1, got %d", len(rules))
	}

	cache.Invalidate()
	rules, err = resolver.Resolve(context.Background(), rc)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("expected refreshed rule set of 2, got %d", len(rules))
	}
}

func TestRuleCacheTTLExpiry(t *testing.T) {
	cache := NewInMemoryRuleCache(CacheConfig{TTL: time.Nanosecond})
	cache.Set("k", []*Rule{scopedRule("r", "", "", SeverityInfo)})

	time.Sleep(time.Millisecond)
	if cache.Get("k") != nil {
		t.Error("expired entry must miss")
	}
}

func TestRuleCacheZeroTTLDisabled(t *testing.T) {
	cache := NewInMemoryRuleCache(CacheConfig{})
	cache.Set("k", []*Rule{scopedRule("r", "", "", SeverityInfo)})

	if cache.Get("k") != nil {
		t.Error("zero TTL disables caching")
	}
}
