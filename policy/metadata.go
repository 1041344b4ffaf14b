package policy

import "regexp"

// Extraction patterns are compiled once; extraction must be deterministic and
// order-preserving across calls.
var (
	linkPattern    = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)
	hashtagPattern = regexp.MustCompile(`#\w+`)
	mentionPattern = regexp.MustCompile(`@\w+`)
)

// ExtractContentMetadata derives links, hashtags and mentions from raw text.
// It is pure: identical input always yields identical output, in text order.
func ExtractContentMetadata(text string) *ContentMetadata {
	return &ContentMetadata{
		Links:    linkPattern.FindAllString(text, -1),
		Hashtags: hashtagPattern.FindAllString(text, -1),
		Mentions: mentionPattern.FindAllString(text, -1),
	}
}
