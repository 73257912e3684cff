package textutil

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	titleCaser  = cases.Title(language.English)
	plainPolicy = bluemonday.StrictPolicy()
)

// NormalizeLabel trims, strips markup, and title-cases a deliverable label for
// display. Returns the empty string for blank input.
func NormalizeLabel(label string) string {
	cleaned := strings.TrimSpace(plainPolicy.Sanitize(label))
	if cleaned == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(cleaned))
}

// NormalizeLabels applies NormalizeLabel to each entry, dropping blanks and
// duplicates while preserving first-seen order.
func NormalizeLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		normalized := NormalizeLabel(label)
		if normalized == "" {
			continue
		}
		key := strings.ToLower(normalized)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

// SanitizeText strips all markup from free-form text such as chat messages and
// order briefs, collapsing surrounding whitespace.
func SanitizeText(text string) string {
	return strings.TrimSpace(plainPolicy.Sanitize(text))
}
