package consensus

import (
	"testing"

	"github.com/haql-ai/murshid/internal/advisory"
)

func TestNormalizeRecommendation(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Apply fungicide X.", "apply fungicide x"},
		{"  apply   FUNGICIDE x  ", "apply fungicide x"},
		{"قلل الري؟", "قلل الري"},
		{"Rotate crops!!", "rotate crops"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := normalizeRecommendation(tc.in); got != tc.want {
			t.Errorf("normalizeRecommendation(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGroupOpinionsKeySorted(t *testing.T) {
	groups := groupOpinions([]advisory.Opinion{
		opinion("a", "r", "zebra grazing", 0.5),
		opinion("b", "r", "Apply mulch", 0.5),
		opinion("c", "r", "apply mulch.", 0.9),
	})
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].key != "apply mulch" || groups[1].key != "zebra grazing" {
		t.Errorf("groups not key-sorted: %q, %q", groups[0].key, groups[1].key)
	}
	if groups[0].count() != 2 {
		t.Errorf("mulch group should hold 2 opinions, got %d", groups[0].count())
	}
}

func TestRecommendationDivergence(t *testing.T) {
	result, err := New().Aggregate(splitOpinions(), advisory.StrategyMajorityVote)
	if err != nil {
		t.Fatal(err)
	}

	var found *advisory.Conflict
	for i := range result.Conflicts {
		if result.Conflicts[i].Kind == advisory.ConflictRecommendation {
			found = &result.Conflicts[i]
			break
		}
	}
	if found == nil {
		t.Fatal("expected a recommendation divergence conflict")
	}
	// Mean confidences 0.65 vs 0.70: close call, high severity.
	if got, want := found.Severity, 0.95; abs(got-want) > 1e-9 {
		t.Errorf("severity = %v, want %v", got, want)
	}
	if len(found.Parties) != 3 {
		t.Errorf("expected all three agents as parties, got %v", found.Parties)
	}
}

func TestNoDivergenceWithoutConfidentOpinions(t *testing.T) {
	opinions := []advisory.Opinion{
		opinion("a", "r", "maybe spray", 0.3),
		opinion("b", "r", "maybe wait", 0.4),
	}
	result, err := New().Aggregate(opinions, advisory.StrategyMajorityVote)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range result.Conflicts {
		if c.Kind == advisory.ConflictRecommendation {
			t.Errorf("unexpected recommendation divergence between unconfident opinions")
		}
	}
}

func TestEvidenceDivergence(t *testing.T) {
	a := opinion("a", "r", "Apply fungicide X", 0.8)
	a.Evidence = []string{"yellow spots on lower leaves"}
	b := opinion("b", "r", "Reduce irrigation", 0.8)
	b.Evidence = []string{"yellow spots on lower leaves"}

	result, err := New().Aggregate([]advisory.Opinion{a, b}, advisory.StrategyMajorityVote)
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, c := range result.Conflicts {
		if c.Kind == advisory.ConflictEvidence {
			found = true
			if c.Severity != 1.0 {
				t.Errorf("identical evidence should give severity 1, got %v", c.Severity)
			}
		}
	}
	if !found {
		t.Error("expected an evidence divergence conflict")
	}
}

func TestSeverityDivergence(t *testing.T) {
	a := opinion("a", "r", "Spray immediately", 0.8)
	a.Metadata = map[string]string{"severity": "critical"}
	b := opinion("b", "r", "Monitor for a week", 0.8)
	b.Metadata = map[string]string{"severity": "low"}

	result, err := New().Aggregate([]advisory.Opinion{a, b}, advisory.StrategyMajorityVote)
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, c := range result.Conflicts {
		if c.Kind == advisory.ConflictSeverity {
			found = true
			// Span 3 over the 3-step scale.
			if c.Severity != 1.0 {
				t.Errorf("critical vs low should give severity 1, got %v", c.Severity)
			}
		}
	}
	if !found {
		t.Error("expected a severity divergence conflict")
	}
}

func TestJaccardTokens(t *testing.T) {
	a := defaultEvidenceTokens("Yellow spots on the lower leaves")
	if len(a) == 0 {
		t.Fatal("expected tokens")
	}
	for _, tok := range a {
		if len([]rune(tok)) < 3 {
			t.Errorf("token %q shorter than 3 runes", tok)
		}
	}
	ar := defaultEvidenceTokens("بقع صفراء على الأوراق")
	if len(ar) == 0 {
		t.Error("arabic evidence should tokenize")
	}
}
