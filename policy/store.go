package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrRuleNotFound  = errors.New("rule not found")
	ErrCheckNotFound = errors.New("check not found")
	ErrRuleExists    = errors.New("rule already exists")
)

// RuleRepository manages rule persistence and retrieval. The engine itself
// only reads; the write methods serve the management surface.
type RuleRepository interface {
	// FindApplicable returns active rules matching the scope context:
	// global rules plus the tenant's own, excluding rules bound to a
	// different platform when the context names one.
	FindApplicable(ctx context.Context, rc ResolveContext) ([]*Rule, error)

	// Get a rule by ID.
	Get(ctx context.Context, id string) (*Rule, error)

	// List all rules for a tenant (including inactive).
	List(ctx context.Context, tenantID string) ([]*Rule, error)

	// Add a new rule.
	Add(ctx context.Context, rule *Rule) error

	// Update an existing rule, incrementing its version by exactly one.
	Update(ctx context.Context, rule *Rule) error

	// Delete a rule.
	Delete(ctx context.Context, id string) error
}

// CheckStore persists check records.
type CheckStore interface {
	Create(ctx context.Context, check *Check) error
	Update(ctx context.Context, check *Check) error
	Get(ctx context.Context, id string) (*Check, error)
}

// ViolationStore persists violation records.
type ViolationStore interface {
	Create(ctx context.Context, violation *Violation) error
	ListByCheck(ctx context.Context, checkID string) ([]*Violation, error)
}

// matchesContext applies the scope protocol shared by both repository
// implementations: active, global or tenant-owned, and platform-compatible.
func matchesContext(rule *Rule, rc ResolveContext) bool {
	if !rule.IsActive {
		return false
	}
	if !rule.IsGlobal() && rule.TenantID != rc.TenantID {
		return false
	}
	if rc.Platform != "" && rule.Platform != "" && rule.Platform != rc.Platform {
		return false
	}
	return true
}

// InMemoryRuleRepository implements RuleRepository with an RWMutex-guarded
// map. Useful for tests and single-node deployments without a database.
type InMemoryRuleRepository struct {
	rules map[string]*Rule
	mu    sync.RWMutex
}

// NewInMemoryRuleRepository creates an empty in-memory rule repository.
func NewInMemoryRuleRepository() *InMemoryRuleRepository {
	return &InMemoryRuleRepository{rules: make(map[string]*Rule)}
}

func (r *InMemoryRuleRepository) FindApplicable(_ context.Context, rc ResolveContext) ([]*Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Rule
	for _, rule := range r.rules {
		if matchesContext(rule, rc) {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

func (r *InMemoryRuleRepository) Get(_ context.Context, id string) (*Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	return rule, nil
}

func (r *InMemoryRuleRepository) List(_ context.Context, tenantID string) ([]*Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rules []*Rule
	for _, rule := range r.rules {
		if rule.IsGlobal() || rule.TenantID == tenantID {
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

func (r *InMemoryRuleRepository) Add(_ context.Context, rule *Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleExists)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if rule.Version == 0 {
		rule.Version = 1
	}
	r.rules[rule.ID] = rule
	return nil
}

func (r *InMemoryRuleRepository) Update(_ context.Context, rule *Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.rules[rule.ID]
	if !ok {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
	}

	// Scope and platform are matching identity and never change.
	rule.TenantID = existing.TenantID
	rule.Platform = existing.Platform
	rule.CreatedAt = existing.CreatedAt
	rule.Version = existing.Version + 1
	rule.UpdatedAt = time.Now()
	r.rules[rule.ID] = rule
	return nil
}

func (r *InMemoryRuleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[id]; !ok {
		return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	delete(r.rules, id)
	return nil
}

// InMemoryCheckStore implements CheckStore with an RWMutex-guarded map.
type InMemoryCheckStore struct {
	checks map[string]*Check
	mu     sync.RWMutex
}

// NewInMemoryCheckStore creates an empty in-memory check store.
func NewInMemoryCheckStore() *InMemoryCheckStore {
	return &InMemoryCheckStore{checks: make(map[string]*Check)}
}

func (s *InMemoryCheckStore) Create(_ context.Context, check *Check) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *check
	s.checks[check.ID] = &copied
	return nil
}

func (s *InMemoryCheckStore) Update(_ context.Context, check *Check) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checks[check.ID]; !ok {
		return fmt.Errorf("check %s: %w", check.ID, ErrCheckNotFound)
	}
	copied := *check
	s.checks[check.ID] = &copied
	return nil
}

func (s *InMemoryCheckStore) Get(_ context.Context, id string) (*Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	check, ok := s.checks[id]
	if !ok {
		return nil, fmt.Errorf("check %s: %w", id, ErrCheckNotFound)
	}
	copied := *check
	return &copied, nil
}

// InMemoryViolationStore implements ViolationStore with an RWMutex-guarded
// slice per check.
type InMemoryViolationStore struct {
	byCheck map[string][]*Violation
	mu      sync.RWMutex
}

// NewInMemoryViolationStore creates an empty in-memory violation store.
func NewInMemoryViolationStore() *InMemoryViolationStore {
	return &InMemoryViolationStore{byCheck: make(map[string][]*Violation)}
}

func (s *InMemoryViolationStore) Create(_ context.Context, violation *Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *violation
	s.byCheck[violation.CheckID] = append(s.byCheck[violation.CheckID], &copied)
	return nil
}

func (s *InMemoryViolationStore) ListByCheck(_ context.Context, checkID string) ([]*Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	violations := s.byCheck[checkID]
	out := make([]*Violation, len(violations))
	copy(out, violations)
	return out, nil
}
