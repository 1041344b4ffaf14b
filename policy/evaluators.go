package policy

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	keywordContextWindow = 20
	regexContextWindow   = 30
)

// conditionMismatch is the shared fallback for a rule whose decoded conditions
// do not match its type discriminant. Treated as an evaluator-internal fault:
// recovered locally, never thrown.
func conditionMismatch(rule *Rule) EvaluationResult {
	return EvaluationResult{
		Passed:   true,
		Severity: rule.Severity,
		Message:  fmt.Sprintf("rule %s has malformed %s conditions: rule skipped", rule.ID, rule.Type),
	}
}

// contextWindow returns the slice of content around [start,end), clamped to
// the content bounds and widened to rune boundaries so the snippet is always
// valid UTF-8.
func contextWindow(content string, start, end, window int) string {
	from := start - window
	if from < 0 {
		from = 0
	}
	for from > 0 && !utf8.RuneStart(content[from]) {
		from--
	}
	to := end + window
	if to > len(content) {
		to = len(content)
	}
	for to < len(content) && !utf8.RuneStart(content[to]) {
		to++
	}
	return content[from:to]
}

// KeywordMatchEvaluator fails when any configured keyword occurs in the
// content. An empty keyword list always passes.
type KeywordMatchEvaluator struct{}

func (KeywordMatchEvaluator) Evaluate(rule *Rule, content string, _ *ContentMetadata) EvaluationResult {
	cond, ok := rule.Conditions.(*KeywordConditions)
	if !ok {
		return conditionMismatch(rule)
	}

	for _, keyword := range cond.Keywords {
		start, end := keywordSpan(content, keyword, cond.CaseSensitive)
		if start < 0 {
			continue
		}
		// First match wins.
		loc := start
		return EvaluationResult{
			Passed:         false,
			Severity:       rule.Severity,
			Message:        fmt.Sprintf("content contains prohibited keyword %q", keyword),
			MatchedContent: contextWindow(content, start, end, keywordContextWindow),
			Location:       &loc,
			SuggestedFix:   fmt.Sprintf("remove or rephrase %q", keyword),
		}
	}

	return EvaluationResult{Passed: true, Severity: rule.Severity}
}

// keywordSpan returns the byte span of the first occurrence of keyword in
// content, or (-1, -1). Case-insensitive matching runs against the original
// text, since case folding can change rune widths and shift byte offsets.
func keywordSpan(content, keyword string, caseSensitive bool) (int, int) {
	if caseSensitive {
		idx := strings.Index(content, keyword)
		if idx < 0 {
			return -1, -1
		}
		return idx, idx + len(keyword)
	}
	span := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(keyword)).FindStringIndex(content)
	if span == nil {
		return -1, -1
	}
	return span[0], span[1]
}

// RegexPatternEvaluator fails when the configured pattern matches the content.
// A malformed pattern passes with a diagnostic rather than raising: blocking
// publication on a bad rule definition is worse than skipping the rule.
type RegexPatternEvaluator struct{}

func (RegexPatternEvaluator) Evaluate(rule *Rule, content string, _ *ContentMetadata) EvaluationResult {
	cond, ok := rule.Conditions.(*RegexConditions)
	if !ok {
		return conditionMismatch(rule)
	}

	pattern := cond.Pattern
	if !cond.CaseSensitive {
		pattern = "(?i)" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return EvaluationResult{
			Passed:   true,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("invalid pattern %q: %v; rule skipped", cond.Pattern, err),
		}
	}

	span := re.FindStringIndex(content)
	if span == nil {
		return EvaluationResult{Passed: true, Severity: rule.Severity}
	}

	loc := span[0]
	return EvaluationResult{
		Passed:         false,
		Severity:       rule.Severity,
		Message:        fmt.Sprintf("content matches prohibited pattern %q", cond.Pattern),
		MatchedContent: contextWindow(content, span[0], span[1], regexContextWindow),
		Location:       &loc,
	}
}

// CharacterCountEvaluator enforces min <= len(content) <= max, counting
// characters rather than bytes. An unset bound defaults to 0 / unbounded.
type CharacterCountEvaluator struct{}

func (CharacterCountEvaluator) Evaluate(rule *Rule, content string, _ *ContentMetadata) EvaluationResult {
	cond, ok := rule.Conditions.(*CharacterCountConditions)
	if !ok {
		return conditionMismatch(rule)
	}

	length := utf8.RuneCountInString(content)

	if length < cond.MinLength {
		return EvaluationResult{
			Passed:       false,
			Severity:     rule.Severity,
			Message:      fmt.Sprintf("content is %d characters short of the minimum of %d (length %d)", cond.MinLength-length, cond.MinLength, length),
			SuggestedFix: fmt.Sprintf("add at least %d characters", cond.MinLength-length),
		}
	}

	if cond.MaxLength > 0 && length > cond.MaxLength {
		return EvaluationResult{
			Passed:       false,
			Severity:     rule.Severity,
			Message:      fmt.Sprintf("content is %d characters over the maximum of %d (length %d)", length-cond.MaxLength, cond.MaxLength, length),
			SuggestedFix: fmt.Sprintf("shorten the content by %d characters", length-cond.MaxLength),
		}
	}

	return EvaluationResult{Passed: true, Severity: rule.Severity}
}

// MediaCheckEvaluator verifies attached media count and required media types.
// Absent metadata is treated as zero media.
type MediaCheckEvaluator struct{}

func (MediaCheckEvaluator) Evaluate(rule *Rule, _ string, metadata *ContentMetadata) EvaluationResult {
	cond, ok := rule.Conditions.(*MediaConditions)
	if !ok {
		return conditionMismatch(rule)
	}

	var media []MediaItem
	if metadata != nil {
		media = metadata.Media
	}
	count := len(media)

	if count < cond.MinCount {
		return EvaluationResult{
			Passed:   false,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("content has %d media attachments, %d fewer than the required minimum of %d", count, cond.MinCount-count, cond.MinCount),
		}
	}
	if cond.MaxCount > 0 && count > cond.MaxCount {
		return EvaluationResult{
			Passed:   false,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("content has %d media attachments, %d more than the allowed maximum of %d", count, count-cond.MaxCount, cond.MaxCount),
		}
	}

	present := make(map[string]bool, count)
	for _, m := range media {
		present[strings.ToLower(m.Type)] = true
	}
	var missing []string
	for _, required := range cond.RequiredTypes {
		if !present[strings.ToLower(required)] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return EvaluationResult{
			Passed:   false,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("content is missing required media types: %s", strings.Join(missing, ", ")),
		}
	}

	return EvaluationResult{Passed: true, Severity: rule.Severity}
}

// LinkValidationEvaluator checks every link in the content metadata against
// scheme, blocked-domain and allow-list constraints. The first offending link
// fails the rule; content without links passes.
type LinkValidationEvaluator struct{}

func (LinkValidationEvaluator) Evaluate(rule *Rule, _ string, metadata *ContentMetadata) EvaluationResult {
	cond, ok := rule.Conditions.(*LinkConditions)
	if !ok {
		return conditionMismatch(rule)
	}

	var links []string
	if metadata != nil {
		links = metadata.Links
	}

	for _, link := range links {
		parsed, err := url.Parse(link)
		if err != nil || parsed.Host == "" {
			return EvaluationResult{
				Passed:         false,
				Severity:       rule.Severity,
				Message:        fmt.Sprintf("link %q is malformed", link),
				MatchedContent: link,
			}
		}

		host := strings.ToLower(parsed.Hostname())

		if cond.RequireHTTPS && parsed.Scheme != "https" {
			return EvaluationResult{
				Passed:         false,
				Severity:       rule.Severity,
				Message:        fmt.Sprintf("link %q must use https", link),
				MatchedContent: link,
				SuggestedFix:   "replace the link with its https equivalent",
			}
		}

		for _, blocked := range cond.BlockedDomains {
			if domainMatches(host, blocked) {
				return EvaluationResult{
					Passed:         false,
					Severity:       rule.Severity,
					Message:        fmt.Sprintf("link %q points to blocked domain %q", link, blocked),
					MatchedContent: link,
				}
			}
		}

		if len(cond.AllowedDomains) > 0 {
			allowed := false
			for _, candidate := range cond.AllowedDomains {
				if domainMatches(host, candidate) {
					allowed = true
					break
				}
			}
			if !allowed {
				return EvaluationResult{
					Passed:         false,
					Severity:       rule.Severity,
					Message:        fmt.Sprintf("link %q is not on the allowed domain list", link),
					MatchedContent: link,
				}
			}
		}
	}

	return EvaluationResult{Passed: true, Severity: rule.Severity}
}

// domainMatches reports whether host equals domain or is a subdomain of it.
func domainMatches(host, domain string) bool {
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// Classifier maps (content, category) to a confidence in [0,1]. This is the
// extension contract for NLP_CLASSIFICATION rules; HeuristicClassifier is the
// reference implementation.
type Classifier interface {
	Confidence(content, category string) float64
}

// defaultNlpThreshold applies when a rule omits its threshold.
const defaultNlpThreshold = 0.7

// NlpClassificationEvaluator fails when the classifier's confidence for any
// configured category reaches the rule's threshold.
type NlpClassificationEvaluator struct {
	Classifier Classifier
}

func (e NlpClassificationEvaluator) Evaluate(rule *Rule, content string, _ *ContentMetadata) EvaluationResult {
	cond, ok := rule.Conditions.(*NlpConditions)
	if !ok {
		return conditionMismatch(rule)
	}

	threshold := cond.Threshold
	if threshold == 0 {
		threshold = defaultNlpThreshold
	}

	classifier := e.Classifier
	if classifier == nil {
		classifier = HeuristicClassifier{}
	}

	for _, category := range cond.Categories {
		confidence := classifier.Confidence(content, category)
		if confidence >= threshold {
			c := confidence
			return EvaluationResult{
				Passed:     false,
				Severity:   rule.Severity,
				Message:    fmt.Sprintf("content classified as %q with confidence %.2f (threshold %.2f)", category, confidence, threshold),
				Confidence: &c,
			}
		}
	}

	return EvaluationResult{Passed: true, Severity: rule.Severity}
}

// categoryTerms backs the heuristic classifier: a small term bank per
// category. A trained classifier replaces this behind the Classifier
// interface.
var categoryTerms = map[string][]string{
	"spam":     {"free money", "act now", "limited time", "click here", "winner", "guaranteed", "no risk"},
	"gambling": {"casino", "jackpot", "betting", "poker", "slots", "wager"},
	"adult":    {"xxx", "explicit", "nsfw"},
	"violence": {"kill", "attack", "weapon", "assault"},
	"hate":     {"hate", "slur"},
}

// HeuristicClassifier scores content by counting category term occurrences.
type HeuristicClassifier struct{}

func (HeuristicClassifier) Confidence(content, category string) float64 {
	terms, ok := categoryTerms[strings.ToLower(category)]
	if !ok {
		return 0
	}

	lowered := strings.ToLower(content)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}

	confidence := 0.5 + 0.25*float64(hits-1)
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// CustomLogicEvaluator is the default for CUSTOM_LOGIC rules: it passes
// unconditionally. Tenant-specific behavior is installed by registering a
// replacement evaluator on the dispatcher.
type CustomLogicEvaluator struct{}

func (CustomLogicEvaluator) Evaluate(rule *Rule, _ string, _ *ContentMetadata) EvaluationResult {
	return EvaluationResult{
		Passed:   true,
		Severity: rule.Severity,
		Message:  "custom logic rules pass by default; register an evaluator to enforce them",
	}
}
