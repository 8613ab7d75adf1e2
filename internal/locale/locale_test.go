package locale

import (
	"strings"
	"testing"

	"github.com/haql-ai/murshid/internal/advisory"
)

func TestTResolvesBothLanguages(t *testing.T) {
	en := T(advisory.LanguageEnglish, KeyNoAgentsAvailable)
	ar := T(advisory.LanguageArabic, KeyNoAgentsAvailable)
	if en == "" || ar == "" {
		t.Fatal("messages must resolve in both languages")
	}
	if en == ar {
		t.Fatal("Arabic message should differ from English")
	}
	if !strings.Contains(ar, "خبراء") {
		t.Errorf("Arabic message looks wrong: %q", ar)
	}
}

func TestTFallsBackToEnglish(t *testing.T) {
	got := T(advisory.Language("fr"), KeyProcessingFailed)
	want := T(advisory.LanguageEnglish, KeyProcessingFailed)
	if got != want {
		t.Fatalf("unknown language should fall back to English, got %q", got)
	}
}

func TestEveryKeyPresentInEveryLanguage(t *testing.T) {
	keys := []string{
		KeyProcessingFailed, KeyNoAgentsAvailable, KeyAllAgentsFailed,
		KeyAnalysisUnavailable, KeyPartialResults, KeyConflictingAdvice,
		KeyAdditionalAdvice, KeyConsultSpecialist,
	}
	for lang, table := range messages {
		for _, key := range keys {
			if table[key] == "" {
				t.Errorf("language %q missing key %q", lang, key)
			}
		}
	}
}

func TestNoSpecialistWarning(t *testing.T) {
	en := NoSpecialistWarning(advisory.LanguageEnglish, advisory.CapIrrigation)
	if !strings.Contains(en, "irrigation") {
		t.Errorf("want capability name in warning, got %q", en)
	}
	ar := NoSpecialistWarning(advisory.LanguageArabic, advisory.CapIrrigation)
	if !strings.Contains(ar, "الري") {
		t.Errorf("want Arabic capability name, got %q", ar)
	}
}

func TestNoSpecialistWarningUnknownCapability(t *testing.T) {
	got := NoSpecialistWarning(advisory.LanguageEnglish, advisory.Capability("quantum_farming"))
	if !strings.Contains(got, "quantum_farming") {
		t.Errorf("unknown capability should fall back to its raw name, got %q", got)
	}
}

func TestEveryCapabilityHasBothNames(t *testing.T) {
	for _, cap := range advisory.Capabilities {
		names, ok := capabilityNames[cap]
		if !ok {
			t.Errorf("capability %q has no display names", cap)
			continue
		}
		if names[advisory.LanguageEnglish] == "" || names[advisory.LanguageArabic] == "" {
			t.Errorf("capability %q missing a language name", cap)
		}
	}
}
