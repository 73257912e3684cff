package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeLabel(t *testing.T) {
	if got := NormalizeLabel("  pitch deck "); got != "Pitch Deck" {
		t.Fatalf("expected Pitch Deck, got %q", got)
	}
	if got := NormalizeLabel("<b>summary</b>"); got != "Summary" {
		t.Fatalf("expected markup stripped, got %q", got)
	}
	if got := NormalizeLabel("   "); got != "" {
		t.Fatalf("expected empty result for blank input, got %q", got)
	}
}

func TestNormalizeLabelsDropsBlanksAndDuplicates(t *testing.T) {
	got := NormalizeLabels([]string{"slides", " SLIDES ", "", "handout", "slides"})
	want := []string{"Slides", "Handout"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSanitizeTextStripsMarkup(t *testing.T) {
	if got := SanitizeText("<script>alert(1)</script>hello "); got != "hello" {
		t.Fatalf("expected sanitized text, got %q", got)
	}
}
