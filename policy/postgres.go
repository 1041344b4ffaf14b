package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleRepository implements RuleRepository backed by PostgreSQL.
// Global rules are stored with a NULL tenant_id; platform-agnostic rules with
// a NULL platform.
type PostgresRuleRepository struct {
	db *sql.DB
}

// NewPostgresRuleRepository creates a PostgreSQL-backed rule repository.
func NewPostgresRuleRepository(db *sql.DB) *PostgresRuleRepository {
	return &PostgresRuleRepository{db: db}
}

const ruleColumns = `id, tenant_id, platform, name, category, rule_type, conditions,
	severity, is_blocking, is_active, version, last_verified_at, created_at, updated_at`

func scanRule(row interface{ Scan(...any) error }) (*Rule, error) {
	var (
		rule           Rule
		tenantID       sql.NullString
		platform       sql.NullString
		conditions     []byte
		lastVerifiedAt sql.NullTime
	)
	err := row.Scan(
		&rule.ID, &tenantID, &platform, &rule.Name, &rule.Category, &rule.Type,
		&conditions, &rule.Severity, &rule.IsBlocking, &rule.IsActive,
		&rule.Version, &lastVerifiedAt, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.TenantID = tenantID.String
	rule.Platform = platform.String
	rule.LastVerifiedAt = lastVerifiedAt.Time

	decoded, err := DecodeConditions(rule.Type, json.RawMessage(conditions))
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	rule.Conditions = decoded

	return &rule, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *PostgresRuleRepository) FindApplicable(ctx context.Context, rc ResolveContext) ([]*Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE is_active = true
		  AND (tenant_id IS NULL OR tenant_id = $1)
		  AND ($2 = '' OR platform IS NULL OR platform = $2)
		ORDER BY created_at ASC
	`, rc.TenantID, rc.Platform)
	if err != nil {
		return nil, fmt.Errorf("failed to query applicable rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

func (r *PostgresRuleRepository) Get(ctx context.Context, id string) (*Rule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1
	`, id)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

func (r *PostgresRuleRepository) List(ctx context.Context, tenantID string) ([]*Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE tenant_id IS NULL OR tenant_id = $1
		ORDER BY created_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

func (r *PostgresRuleRepository) Add(ctx context.Context, rule *Rule) error {
	conditions, err := EncodeConditions(rule.Conditions)
	if err != nil {
		return err
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if rule.Version == 0 {
		rule.Version = 1
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rules (id, tenant_id, platform, name, category, rule_type, conditions,
			severity, is_blocking, is_active, version, last_verified_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rule.ID, nullIfEmpty(rule.TenantID), nullIfEmpty(rule.Platform), rule.Name,
		rule.Category, rule.Type, []byte(conditions), rule.Severity, rule.IsBlocking,
		rule.IsActive, rule.Version, nullTime(rule.LastVerifiedAt), rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// Update rewrites the rule's content fields and increments its version by
// one. Scope and platform are matching identity and never change.
func (r *PostgresRuleRepository) Update(ctx context.Context, rule *Rule) error {
	conditions, err := EncodeConditions(rule.Conditions)
	if err != nil {
		return err
	}

	rule.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE rules
		SET name = $1, category = $2, rule_type = $3, conditions = $4,
			severity = $5, is_blocking = $6, is_active = $7,
			version = version + 1, last_verified_at = $8, updated_at = $9
		WHERE id = $10
	`, rule.Name, rule.Category, rule.Type, []byte(conditions), rule.Severity,
		rule.IsBlocking, rule.IsActive, nullTime(rule.LastVerifiedAt), rule.UpdatedAt, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
	}
	rule.Version++
	return nil
}

func (r *PostgresRuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// PostgresCheckStore implements CheckStore backed by PostgreSQL.
type PostgresCheckStore struct {
	db *sql.DB
}

// NewPostgresCheckStore creates a PostgreSQL-backed check store.
func NewPostgresCheckStore(db *sql.DB) *PostgresCheckStore {
	return &PostgresCheckStore{db: db}
}

func (s *PostgresCheckStore) Create(ctx context.Context, check *Check) error {
	metadata, err := encodeMetadata(check.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checks (id, tenant_id, content_type, content_id, content_text,
			metadata, platform, scope, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, check.ID, check.TenantID, check.ContentType, nullIfEmpty(check.ContentID),
		check.ContentText, metadata, nullIfEmpty(check.Platform), check.Scope,
		check.Status, check.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert check: %w", err)
	}
	return nil
}

func (s *PostgresCheckStore) Update(ctx context.Context, check *Check) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE checks
		SET status = $1, overall_result = $2, passed_rules = $3, failed_rules = $4,
			warning_rules = $5, summary = $6, error_message = $7,
			duration_ms = $8, completed_at = $9
		WHERE id = $10
	`, check.Status, nullIfEmpty(string(check.OverallResult)), check.PassedRules,
		check.FailedRules, check.WarningRules, check.Summary, check.ErrorMessage,
		check.Duration.Milliseconds(), nullTime(check.CompletedAt), check.ID)
	if err != nil {
		return fmt.Errorf("failed to update check: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("check %s: %w", check.ID, ErrCheckNotFound)
	}
	return nil
}

func (s *PostgresCheckStore) Get(ctx context.Context, id string) (*Check, error) {
	var (
		check       Check
		contentID   sql.NullString
		metadata    []byte
		platform    sql.NullString
		overall     sql.NullString
		durationMs  int64
		completedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, content_type, content_id, content_text, metadata,
			platform, scope, status, overall_result, passed_rules, failed_rules,
			warning_rules, summary, error_message, duration_ms, created_at, completed_at
		FROM checks
		WHERE id = $1
	`, id).Scan(
		&check.ID, &check.TenantID, &check.ContentType, &contentID, &check.ContentText,
		&metadata, &platform, &check.Scope, &check.Status, &overall,
		&check.PassedRules, &check.FailedRules, &check.WarningRules,
		&check.Summary, &check.ErrorMessage, &durationMs, &check.CreatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("check %s: %w", id, ErrCheckNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get check: %w", err)
	}

	check.ContentID = contentID.String
	check.Platform = platform.String
	check.OverallResult = OverallResult(overall.String)
	check.Duration = time.Duration(durationMs) * time.Millisecond
	check.CompletedAt = completedAt.Time
	if len(metadata) > 0 {
		var md ContentMetadata
		if err := json.Unmarshal(metadata, &md); err != nil {
			return nil, fmt.Errorf("check %s has invalid metadata: %w", id, err)
		}
		check.Metadata = &md
	}
	return &check, nil
}

func encodeMetadata(md *ContentMetadata) ([]byte, error) {
	if md == nil {
		return nil, nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return raw, nil
}

// PostgresViolationStore implements ViolationStore backed by PostgreSQL.
type PostgresViolationStore struct {
	db *sql.DB
}

// NewPostgresViolationStore creates a PostgreSQL-backed violation store.
func NewPostgresViolationStore(db *sql.DB) *PostgresViolationStore {
	return &PostgresViolationStore{db: db}
}

func (s *PostgresViolationStore) Create(ctx context.Context, v *Violation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO violations (id, check_id, rule_id, severity, message,
			matched_content, location, confidence, suggested_fix, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, v.ID, v.CheckID, v.RuleID, v.Severity, v.Message, v.MatchedContent,
		v.Location, v.Confidence, v.SuggestedFix, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert violation: %w", err)
	}
	return nil
}

func (s *PostgresViolationStore) ListByCheck(ctx context.Context, checkID string) ([]*Violation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, check_id, rule_id, severity, message, matched_content,
			location, confidence, suggested_fix, overridden_by, override_reason,
			overridden_at, created_at
		FROM violations
		WHERE check_id = $1
		ORDER BY created_at ASC, id ASC
	`, checkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	defer rows.Close()

	var violations []*Violation
	for rows.Next() {
		var (
			v              Violation
			location       sql.NullInt64
			confidence     sql.NullFloat64
			overriddenBy   sql.NullString
			overrideReason sql.NullString
			overriddenAt   sql.NullTime
		)
		if err := rows.Scan(&v.ID, &v.CheckID, &v.RuleID, &v.Severity, &v.Message,
			&v.MatchedContent, &location, &confidence, &v.SuggestedFix,
			&overriddenBy, &overrideReason, &overriddenAt, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		if location.Valid {
			loc := int(location.Int64)
			v.Location = &loc
		}
		if confidence.Valid {
			c := confidence.Float64
			v.Confidence = &c
		}
		v.OverriddenBy = overriddenBy.String
		v.OverrideReason = overrideReason.String
		if overriddenAt.Valid {
			t := overriddenAt.Time
			v.OverriddenAt = &t
		}
		violations = append(violations, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating violations: %w", err)
	}
	return violations, nil
}
