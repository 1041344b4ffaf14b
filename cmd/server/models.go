package main

import (
	"encoding/json"
	"time"

	"github.com/contentguard/policyd/policy"
)

// API request and response models.

// CheckContentRequest is the request body for running a content check.
type CheckContentRequest struct {
	ContentType     string                  `json:"contentType"`
	ContentID       string                  `json:"contentId,omitempty"`
	ContentText     string                  `json:"contentText"`
	ContentMetadata *policy.ContentMetadata `json:"contentMetadata,omitempty"`
	Platform        string                  `json:"platform,omitempty"`
	CheckScope      policy.CheckScope       `json:"checkScope,omitempty"`
}

// RulePayload carries a rule over the wire, with the condition payload still
// raw; the server decodes it through the tagged union before use.
type RulePayload struct {
	ID         string          `json:"id,omitempty"`
	Platform   string          `json:"platform,omitempty"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Type       policy.RuleType `json:"type"`
	Conditions json.RawMessage `json:"conditions"`
	Severity   policy.Severity `json:"severity"`
	IsBlocking bool            `json:"isBlocking"`
	IsActive   bool            `json:"isActive"`
}

// RuleResponse represents a rule in API responses.
type RuleResponse struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenantId,omitempty"`
	Platform       string          `json:"platform,omitempty"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Type           policy.RuleType `json:"type"`
	Conditions     json.RawMessage `json:"conditions"`
	Severity       policy.Severity `json:"severity"`
	IsBlocking     bool            `json:"isBlocking"`
	IsActive       bool            `json:"isActive"`
	Version        int             `json:"version"`
	LastVerifiedAt *time.Time      `json:"lastVerifiedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// EvaluateRequest is the request body for a single pure rule evaluation.
type EvaluateRequest struct {
	Rule            RulePayload             `json:"rule"`
	ContentText     string                  `json:"contentText"`
	ContentMetadata *policy.ContentMetadata `json:"contentMetadata,omitempty"`
}

// MetadataRequest is the request body for metadata extraction.
type MetadataRequest struct {
	ContentText string `json:"contentText"`
}

// CheckRecordResponse represents a persisted check with its violations.
type CheckRecordResponse struct {
	ID            string               `json:"id"`
	TenantID      string               `json:"tenantId"`
	ContentType   string               `json:"contentType"`
	ContentID     string               `json:"contentId,omitempty"`
	Platform      string               `json:"platform,omitempty"`
	Scope         policy.CheckScope    `json:"scope"`
	Status        policy.CheckStatus   `json:"status"`
	OverallResult policy.OverallResult `json:"overallResult,omitempty"`
	PassedRules   int                  `json:"passedRules"`
	FailedRules   int                  `json:"failedRules"`
	WarningRules  int                  `json:"warningRules"`
	Summary       string               `json:"summary,omitempty"`
	ErrorMessage  string               `json:"errorMessage,omitempty"`
	DurationMs    int64                `json:"durationMs"`
	CreatedAt     time.Time            `json:"createdAt"`
	CompletedAt   *time.Time           `json:"completedAt,omitempty"`
	Violations    []*policy.Violation  `json:"violations"`
}

func ruleResponse(r *policy.Rule) (RuleResponse, error) {
	conditions, err := policy.EncodeConditions(r.Conditions)
	if err != nil {
		return RuleResponse{}, err
	}

	resp := RuleResponse{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Platform:   r.Platform,
		Name:       r.Name,
		Category:   r.Category,
		Type:       r.Type,
		Conditions: conditions,
		Severity:   r.Severity,
		IsBlocking: r.IsBlocking,
		IsActive:   r.IsActive,
		Version:    r.Version,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if !r.LastVerifiedAt.IsZero() {
		t := r.LastVerifiedAt
		resp.LastVerifiedAt = &t
	}
	return resp, nil
}

func checkRecordResponse(check *policy.Check, violations []*policy.Violation) CheckRecordResponse {
	resp := CheckRecordResponse{
		ID:            check.ID,
		TenantID:      check.TenantID,
		ContentType:   check.ContentType,
		ContentID:     check.ContentID,
		Platform:      check.Platform,
		Scope:         check.Scope,
		Status:        check.Status,
		OverallResult: check.OverallResult,
		PassedRules:   check.PassedRules,
		FailedRules:   check.FailedRules,
		WarningRules:  check.WarningRules,
		Summary:       check.Summary,
		ErrorMessage:  check.ErrorMessage,
		DurationMs:    check.Duration.Milliseconds(),
		CreatedAt:     check.CreatedAt,
		Violations:    violations,
	}
	if !check.CompletedAt.IsZero() {
		t := check.CompletedAt
		resp.CompletedAt = &t
	}
	if resp.Violations == nil {
		resp.Violations = []*policy.Violation{}
	}
	return resp
}
