package util

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeWhitespace trims and collapses whitespace to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// CleanText collapses whitespace and decodes HTML entities, as upstream
// escapes &, < and > in free text.
func CleanText(s string) string {
	return html.UnescapeString(NormalizeWhitespace(s))
}

// ReplacePairs applies old/new replacements in order, skipping empty olds.
func ReplacePairs(s string, pairs ...[2]string) string {
	for _, p := range pairs {
		if p[0] == "" {
			continue
		}
		s = strings.ReplaceAll(s, p[0], p[1])
	}
	return s
}

// HasRetweetPrefix is the legacy text signal for a retweet status.
func HasRetweetPrefix(text string) bool {
	return strings.HasPrefix(text, "RT @")
}
