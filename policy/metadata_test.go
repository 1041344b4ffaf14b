package policy

import (
	"reflect"
	"testing"
)

func TestExtractContentMetadata(t *testing.T) {
	text := "Big news! https://example.com/launch and http://blog.example.com?ref=x #launch #news @alice @bob"

	md := ExtractContentMetadata(text)

	wantLinks := []string{"https://example.com/launch", "http://blog.example.com?ref=x"}
	if !reflect.DeepEqual(md.Links, wantLinks) {
		t.Errorf("Links = %v, want %v", md.Links, wantLinks)
	}

	wantHashtags := []string{"#launch", "#news"}
	if !reflect.DeepEqual(md.Hashtags, wantHashtags) {
		t.Errorf("Hashtags = %v, want %v", md.Hashtags, wantHashtags)
	}

	wantMentions := []string{"@alice", "@bob"}
	if !reflect.DeepEqual(md.Mentions, wantMentions) {
		t.Errorf("Mentions = %v, want %v", md.Mentions, wantMentions)
	}
}

func TestExtractContentMetadataEmptyText(t *testing.T) {
	md := ExtractContentMetadata("")

	if len(md.Links) != 0 || len(md.Hashtags) != 0 || len(md.Mentions) != 0 {
		t.Errorf("expected no extractions from empty text, got %+v", md)
	}
}

func TestExtractContentMetadataStopsAtDelimiters(t *testing.T) {
	md := ExtractContentMetadata(`see (https://example.com/a) and "https://example.com/b" now`)

	want := []string{"https://example.com/a", "https://example.com/b"}
	if !reflect.DeepEqual(md.Links, want) {
		t.Errorf("Links = %v, want %v", md.Links, want)
	}
}

// Extraction must be idempotent and order-stable: repeated calls on identical
// input yield identical output.
func TestExtractContentMetadataIdempotent(t *testing.T) {
	text := "go to https://a.example.com then https://b.example.com #one #two @x @y"

	first := ExtractContentMetadata(text)
	for i := 0; i < 10; i++ {
		again := ExtractContentMetadata(text)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("call %d produced %+v, want %+v", i, again, first)
		}
	}
}

func TestExtractContentMetadataIgnoresBareDomains(t *testing.T) {
	md := ExtractContentMetadata("visit example.com or ftp://example.com/file")

	if len(md.Links) != 0 {
		t.Errorf("expected only http/https links to match, got %v", md.Links)
	}
}
