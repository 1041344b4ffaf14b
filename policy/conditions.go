package policy

import (
	"encoding/json"
	"fmt"
)

// Conditions is the typed payload attached to a rule. The concrete shape is
// determined by the rule-type discriminant and validated when the rule is
// loaded, so evaluators always receive a concretely typed struct.
type Conditions interface {
	RuleType() RuleType
	Validate() error
}

// KeywordConditions configures a KEYWORD_MATCH rule.
type KeywordConditions struct {
	Keywords      []string `json:"keywords"`
	CaseSensitive bool     `json:"caseSensitive"`
}

func (KeywordConditions) RuleType() RuleType { return RuleTypeKeywordMatch }

func (c KeywordConditions) Validate() error {
	for i, kw := range c.Keywords {
		if kw == "" {
			return fmt.Errorf("keyword %d is empty", i)
		}
	}
	return nil
}

// RegexConditions configures a REGEX_PATTERN rule. The pattern is not compiled
// here: a malformed pattern is an evaluation-time diagnostic, not a load error.
type RegexConditions struct {
	Pattern       string `json:"pattern"`
	CaseSensitive bool   `json:"caseSensitive"`
}

func (RegexConditions) RuleType() RuleType { return RuleTypeRegexPattern }

func (c RegexConditions) Validate() error {
	if c.Pattern == "" {
		return fmt.Errorf("pattern is required")
	}
	return nil
}

// CharacterCountConditions configures a CHARACTER_COUNT rule. A zero MaxLength
// means unbounded; a zero MinLength means no lower bound.
type CharacterCountConditions struct {
	MinLength int `json:"minLength"`
	MaxLength int `json:"maxLength"`
}

func (CharacterCountConditions) RuleType() RuleType { return RuleTypeCharacterCount }

func (c CharacterCountConditions) Validate() error {
	if c.MinLength < 0 || c.MaxLength < 0 {
		return fmt.Errorf("length bounds must not be negative")
	}
	if c.MaxLength > 0 && c.MinLength > c.MaxLength {
		return fmt.Errorf("minLength %d exceeds maxLength %d", c.MinLength, c.MaxLength)
	}
	return nil
}

// MediaConditions configures a MEDIA_CHECK rule. A zero MaxCount means
// unbounded.
type MediaConditions struct {
	MinCount      int      `json:"minCount"`
	MaxCount      int      `json:"maxCount"`
	RequiredTypes []string `json:"requiredTypes"`
}

func (MediaConditions) RuleType() RuleType { return RuleTypeMediaCheck }

func (c MediaConditions) Validate() error {
	if c.MinCount < 0 || c.MaxCount < 0 {
		return fmt.Errorf("media counts must not be negative")
	}
	if c.MaxCount > 0 && c.MinCount > c.MaxCount {
		return fmt.Errorf("minCount %d exceeds maxCount %d", c.MinCount, c.MaxCount)
	}
	return nil
}

// LinkConditions configures a LINK_VALIDATION rule. BlockedDomains match by
// domain suffix; AllowedDomains, when non-empty, is an exhaustive allow-list.
type LinkConditions struct {
	RequireHTTPS   bool     `json:"requireHttps"`
	BlockedDomains []string `json:"blockedDomains"`
	AllowedDomains []string `json:"allowedDomains"`
}

func (LinkConditions) RuleType() RuleType { return RuleTypeLinkValidation }

func (c LinkConditions) Validate() error {
	for i, d := range c.BlockedDomains {
		if d == "" {
			return fmt.Errorf("blocked domain %d is empty", i)
		}
	}
	for i, d := range c.AllowedDomains {
		if d == "" {
			return fmt.Errorf("allowed domain %d is empty", i)
		}
	}
	return nil
}

// NlpConditions configures an NLP_CLASSIFICATION rule: the rule fails when the
// classifier's confidence for any listed category reaches Threshold.
type NlpConditions struct {
	Categories []string `json:"categories"`
	Threshold  float64  `json:"threshold"`
}

func (NlpConditions) RuleType() RuleType { return RuleTypeNlpClassification }

func (c NlpConditions) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold %v out of range [0,1]", c.Threshold)
	}
	return nil
}

// CustomConditions configures a CUSTOM_LOGIC rule. The reference engine passes
// these unconditionally; registered extensions (see CELEvaluator) interpret
// Expression and Params.
type CustomConditions struct {
	Expression string         `json:"expression,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

func (CustomConditions) RuleType() RuleType { return RuleTypeCustomLogic }

func (CustomConditions) Validate() error { return nil }

// UnknownConditions carries the raw payload of a rule type this engine does
// not recognize. Such rules always pass with a diagnostic.
type UnknownConditions struct {
	Type RuleType
	Raw  json.RawMessage
}

func (c UnknownConditions) RuleType() RuleType { return c.Type }

func (UnknownConditions) Validate() error { return nil }

// DecodeConditions parses a raw condition payload for the given rule type into
// its concrete struct and validates it. Unrecognized rule types decode into
// UnknownConditions so they can flow through the engine without blocking.
func DecodeConditions(t RuleType, raw json.RawMessage) (Conditions, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	var c Conditions
	switch t {
	case RuleTypeKeywordMatch:
		c = &KeywordConditions{}
	case RuleTypeRegexPattern:
		c = &RegexConditions{}
	case RuleTypeCharacterCount:
		c = &CharacterCountConditions{}
	case RuleTypeMediaCheck:
		c = &MediaConditions{}
	case RuleTypeLinkValidation:
		c = &LinkConditions{}
	case RuleTypeNlpClassification:
		c = &NlpConditions{}
	case RuleTypeCustomLogic:
		c = &CustomConditions{}
	default:
		return UnknownConditions{Type: t, Raw: append(json.RawMessage(nil), raw...)}, nil
	}

	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("invalid %s conditions: %w", t, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s conditions: %w", t, err)
	}
	return c, nil
}

// EncodeConditions serializes a condition payload for storage.
func EncodeConditions(c Conditions) (json.RawMessage, error) {
	if c == nil {
		return json.RawMessage(`{}`), nil
	}
	if u, ok := c.(UnknownConditions); ok {
		return u.Raw, nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conditions: %w", err)
	}
	return raw, nil
}
