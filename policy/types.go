package policy

import "time"

// Severity ranks how serious a rule violation is.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns the ordinal position of the severity, INFO lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// RuleType discriminates the condition payload and selects the evaluator.
type RuleType string

const (
	RuleTypeKeywordMatch      RuleType = "KEYWORD_MATCH"
	RuleTypeRegexPattern      RuleType = "REGEX_PATTERN"
	RuleTypeCharacterCount    RuleType = "CHARACTER_COUNT"
	RuleTypeMediaCheck        RuleType = "MEDIA_CHECK"
	RuleTypeLinkValidation    RuleType = "LINK_VALIDATION"
	RuleTypeNlpClassification RuleType = "NLP_CLASSIFICATION"
	RuleTypeCustomLogic       RuleType = "CUSTOM_LOGIC"
)

// CheckScope controls how deep a content check goes.
type CheckScope string

const (
	// CheckScopeFull evaluates every applicable rule.
	CheckScopeFull CheckScope = "FULL"

	// CheckScopeQuick restricts evaluation to CRITICAL and ERROR rules.
	CheckScopeQuick CheckScope = "QUICK"
)

// CheckStatus is the lifecycle state of a content check.
type CheckStatus string

const (
	CheckStatusInProgress CheckStatus = "IN_PROGRESS"
	CheckStatusCompleted  CheckStatus = "COMPLETED"
	CheckStatusFailed     CheckStatus = "FAILED"
)

// OverallResult is the aggregated verdict of one check.
type OverallResult string

const (
	ResultPassed             OverallResult = "PASSED"
	ResultPassedWithWarnings OverallResult = "PASSED_WITH_WARNINGS"
	ResultFailed             OverallResult = "FAILED"
	ResultBlocked            OverallResult = "BLOCKED"
)

// Rule is a stored policy check definition.
//
// TenantID empty means the rule is global and applies to every tenant.
// Platform empty means the rule is platform-agnostic. Both are identity for
// matching purposes and never change after creation; content fields may be
// edited, and every edit increments Version by exactly one.
type Rule struct {
	ID             string
	TenantID       string
	Platform       string
	Name           string
	Category       string
	Type           RuleType
	Conditions     Conditions
	Severity       Severity
	IsBlocking     bool
	IsActive       bool
	Version        int
	LastVerifiedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsGlobal reports whether the rule applies to all tenants.
func (r *Rule) IsGlobal() bool { return r.TenantID == "" }

// MediaItem describes one attached media object in content metadata.
type MediaItem struct {
	Type string `json:"type"` // image, video, gif, ...
	URL  string `json:"url,omitempty"`
}

// ContentMetadata is the derived view of a piece of content. The engine treats
// caller-supplied metadata as authoritative and skips extraction.
type ContentMetadata struct {
	Links    []string    `json:"links"`
	Hashtags []string    `json:"hashtags"`
	Mentions []string    `json:"mentions"`
	Media    []MediaItem `json:"media,omitempty"`
	Language string      `json:"language,omitempty"`
}

// Check is one evaluation run over one piece of content. Checks are
// append-only: a re-check of the same content creates a new Check.
type Check struct {
	ID            string
	TenantID      string
	ContentType   string
	ContentID     string
	ContentText   string
	Metadata      *ContentMetadata
	Platform      string
	Scope         CheckScope
	Status        CheckStatus
	OverallResult OverallResult
	PassedRules   int
	FailedRules   int
	WarningRules  int
	Summary       string
	ErrorMessage  string
	Duration      time.Duration
	CreatedAt     time.Time
	CompletedAt   time.Time
}

// Violation records one rule failing for one check. It references the rule by
// ID rather than embedding a snapshot, since rules may be edited later.
type Violation struct {
	ID             string
	CheckID        string
	RuleID         string
	Severity       Severity
	Message        string
	MatchedContent string
	Location       *int
	Confidence     *float64
	SuggestedFix   string
	OverriddenBy   string
	OverrideReason string
	OverriddenAt   *time.Time
	CreatedAt      time.Time
}

// ViolationSummary is the caller-facing projection of a violation, consumed
// by external alerting surfaces.
type ViolationSummary struct {
	RuleID       string   `json:"ruleId"`
	Category     string   `json:"category"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
	IsBlocking   bool     `json:"isBlocking"`
	Confidence   *float64 `json:"confidence,omitempty"`
	SuggestedFix string   `json:"suggestedFix,omitempty"`
}

// ResolveContext scopes a rule resolution request.
type ResolveContext struct {
	TenantID    string
	Platform    string
	ContentType string
	Scope       CheckScope
}

// CheckInput is the caller-supplied payload for CheckContent.
type CheckInput struct {
	ContentType string
	ContentID   string
	ContentText string
	Metadata    *ContentMetadata
	Platform    string
	Scope       CheckScope
}

// CheckOutput is the verdict returned to the caller.
type CheckOutput struct {
	CheckID       string             `json:"checkId"`
	Status        CheckStatus        `json:"status"`
	OverallResult OverallResult      `json:"overallResult"`
	PassedRules   int                `json:"passedRules"`
	FailedRules   int                `json:"failedRules"`
	WarningRules  int                `json:"warningRules"`
	Violations    []ViolationSummary `json:"violations"`
	Summary       string             `json:"summary"`
	DurationMs    int64              `json:"durationMs"`
	CanPublish    bool               `json:"canPublish"`
}

// EvaluationResult is the outcome of running a single rule against content.
type EvaluationResult struct {
	RuleID         string   `json:"ruleId"`
	Passed         bool     `json:"passed"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message,omitempty"`
	MatchedContent string   `json:"matchedContent,omitempty"`
	Location       *int     `json:"location,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
	SuggestedFix   string   `json:"suggestedFix,omitempty"`
}
