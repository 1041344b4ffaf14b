package policy

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRuleRepositoryAddDefaults(t *testing.T) {
	repo := NewInMemoryRuleRepository()
	rule := scopedRule("r1", "tenant-a", "", SeverityError)

	if err := repo.Add(context.Background(), rule); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if rule.Version != 1 {
		t.Errorf("new rule version = %d, want 1", rule.Version)
	}
	if rule.CreatedAt.IsZero() || rule.UpdatedAt.IsZero() {
		t.Error("Add must stamp creation and update times")
	}
}

func TestRuleRepositoryAddDuplicate(t *testing.T) {
	repo := NewInMemoryRuleRepository()
	addRules(t, repo, scopedRule("r1", "tenant-a", "", SeverityError))

	err := repo.Add(context.Background(), scopedRule("r1", "tenant-a", "", SeverityError))
	if !errors.Is(err, ErrRuleExists) {
		t.Errorf("err = %v, want ErrRuleExists", err)
	}
}

func TestRuleRepositoryUpdateIncrementsVersion(t *testing.T) {
	repo := NewInMemoryRuleRepository()
	addRules(t, repo, scopedRule("r1", "tenant-a", "twitter", SeverityError))

	edited := scopedRule("r1", "tenant-b", "facebook", SeverityCritical)
	edited.Name = "renamed"
	if err := repo.Update(context.Background(), edited); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, err := repo.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("version after one edit = %d, want 2", got.Version)
	}
	if got.Name != "renamed" || got.Severity != SeverityCritical {
		t.Error("content fields must take the edited values")
	}
	// Scope identity is immutable regardless of what the caller sends.
	if got.TenantID != "tenant-a" || got.Platform != "twitter" {
		t.Errorf("scope changed to %s/%s, must stay tenant-a/twitter", got.TenantID, got.Platform)
	}
}

func TestRuleRepositoryUpdateMissing(t *testing.T) {
	repo := NewInMemoryRuleRepository()
	err := repo.Update(context.Background(), scopedRule("ghost", "tenant-a", "", SeverityError))
	if !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("err = %v, want ErrRuleNotFound", err)
	}
}

func TestRuleRepositoryDelete(t *testing.T) {
	repo := NewInMemoryRuleRepository()
	addRules(t, repo, scopedRule("r1", "tenant-a", "", SeverityError))

	if err := repo.Delete(context.Background(), "r1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := repo.Get(context.Background(), "r1"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Get after delete = %v, want ErrRuleNotFound", err)
	}
	if err := repo.Delete(context.Background(), "r1"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("second delete = %v, want ErrRuleNotFound", err)
	}
}

func TestRuleRepositoryListIncludesGlobalAndInactive(t *testing.T) {
	repo := NewInMemoryRuleRepository()
	inactive := scopedRule("inactive", "tenant-a", "", SeverityError)
	inactive.IsActive = false
	addRules(t, repo,
		scopedRule("global", "", "", SeverityError),
		scopedRule("own", "tenant-a", "", SeverityError),
		scopedRule("other", "tenant-b", "", SeverityError),
		inactive,
	)

	rules, err := repo.List(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	ids := make(map[string]bool, len(rules))
	for _, r := range rules {
		ids[r.ID] = true
	}
	for _, want := range []string{"global", "own", "inactive"} {
		if !ids[want] {
			t.Errorf("List must include %s", want)
		}
	}
	if ids["other"] {
		t.Error("List must not include other tenants' rules")
	}
}

func TestMatchesContext(t *testing.T) {
	tests := []struct {
		name     string
		tenantID string
		platform string
		active   bool
		rc       ResolveContext
		want     bool
	}{
		{"global agnostic", "", "", true, ResolveContext{TenantID: "t", Platform: "twitter"}, true},
		{"tenant match", "t", "", true, ResolveContext{TenantID: "t"}, true},
		{"tenant mismatch", "other", "", true, ResolveContext{TenantID: "t"}, false},
		{"platform match", "t", "twitter", true, ResolveContext{TenantID: "t", Platform: "twitter"}, true},
		{"platform mismatch", "t", "facebook", true, ResolveContext{TenantID: "t", Platform: "twitter"}, false},
		{"no platform in context", "t", "facebook", true, ResolveContext{TenantID: "t"}, true},
		{"inactive", "t", "", false, ResolveContext{TenantID: "t"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := scopedRule("r", tt.tenantID, tt.platform, SeverityError)
			rule.IsActive = tt.active
			if got := matchesContext(rule, tt.rc); got != tt.want {
				t.Errorf("matchesContext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckStoreRoundTrip(t *testing.T) {
	store := NewInMemoryCheckStore()
	check := &Check{
		ID:        "c1",
		TenantID:  "tenant-a",
		Status:    CheckStatusInProgress,
		CreatedAt: time.Now(),
	}
	if err := store.Create(context.Background(), check); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	// Mutating the original after Create must not leak into the store.
	check.Status = CheckStatusCompleted
	stored, err := store.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if stored.Status != CheckStatusInProgress {
		t.Error("store must hold a copy, not share the caller's pointer")
	}

	if err := store.Update(context.Background(), check); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	stored, err = store.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if stored.Status != CheckStatusCompleted {
		t.Errorf("updated status = %s, want COMPLETED", stored.Status)
	}
}

func TestCheckStoreMissing(t *testing.T) {
	store := NewInMemoryCheckStore()
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrCheckNotFound) {
		t.Errorf("Get = %v, want ErrCheckNotFound", err)
	}
	if err := store.Update(context.Background(), &Check{ID: "nope"}); !errors.Is(err, ErrCheckNotFound) {
		t.Errorf("Update = %v, want ErrCheckNotFound", err)
	}
}

func TestViolationStoreListOrder(t *testing.T) {
	store := NewInMemoryViolationStore()
	for _, id := range []string{"v1", "v2", "v3"} {
		v := &Violation{ID: id, CheckID: "c1", Severity: SeverityError}
		if err := store.Create(context.Background(), v); err != nil {
			t.Fatalf("Create(%s) failed: %v", id, err)
		}
	}
	if err := store.Create(context.Background(), &Violation{ID: "other", CheckID: "c2"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	violations, err := store.ListByCheck(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ListByCheck() failed: %v", err)
	}
	if len(violations) != 3 {
		t.Fatalf("got %d violations, want 3", len(violations))
	}
	for i, want := range []string{"v1", "v2", "v3"} {
		if violations[i].ID != want {
			t.Errorf("violations[%d] = %s, want %s (insertion order)", i, violations[i].ID, want)
		}
	}

	empty, err := store.ListByCheck(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("ListByCheck() failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown check returned %d violations", len(empty))
	}
}
