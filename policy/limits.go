package policy

import "fmt"

// Content types recognized by the per-platform character-limit table.
const (
	ContentTypePost    = "post"
	ContentTypeBio     = "bio"
	ContentTypeComment = "comment"
)

// platformCharacterLimits is static reference data: the published maximum
// character counts per (platform, content type). It is not editable at
// runtime.
var platformCharacterLimits = map[string]map[string]int{
	"twitter":   {ContentTypePost: 280, ContentTypeBio: 160, ContentTypeComment: 280},
	"facebook":  {ContentTypePost: 63206, ContentTypeBio: 101, ContentTypeComment: 8000},
	"instagram": {ContentTypePost: 2200, ContentTypeBio: 150, ContentTypeComment: 2200},
	"linkedin":  {ContentTypePost: 3000, ContentTypeBio: 2600, ContentTypeComment: 1250},
	"tiktok":    {ContentTypePost: 2200, ContentTypeBio: 80, ContentTypeComment: 150},
}

// CharacterLimit returns the maximum character count for a platform and
// content type. Unknown pairs resolve to unbounded (0, false) rather than an
// error.
func CharacterLimit(platform, contentType string) (int, bool) {
	byType, ok := platformCharacterLimits[platform]
	if !ok {
		return 0, false
	}
	limit, ok := byType[contentType]
	return limit, ok
}

// CharacterLimitRule builds a global blocking rule enforcing the platform's
// published character limit, or nil when the pair is unknown.
func CharacterLimitRule(platform, contentType string) *Rule {
	limit, ok := CharacterLimit(platform, contentType)
	if !ok {
		return nil
	}
	return &Rule{
		ID:       fmt.Sprintf("limit-%s-%s", platform, contentType),
		Platform: platform,
		Name:     fmt.Sprintf("%s %s character limit", platform, contentType),
		Category: "platform-limits",
		Type:     RuleTypeCharacterCount,
		Conditions: &CharacterCountConditions{
			MaxLength: limit,
		},
		Severity:   SeverityCritical,
		IsBlocking: true,
		IsActive:   true,
		Version:    1,
	}
}
