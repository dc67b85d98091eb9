package pipeline

import "testing"

func TestNormalizePrimarySubtag(t *testing.T) {
	cases := map[string]string{
		"pt-BR": "pt",
		"EN":    "en",
		"":      "",
		"es":    "es",
	}
	for in, want := range cases {
		if got := NormalizePrimarySubtag(in); got != want {
			t.Errorf("NormalizePrimarySubtag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecideLanguageConcreteInputWins(t *testing.T) {
	got := DecideLanguage("fr", "es", []string{"en"}, "de", 0.95, 0.70)
	if got != "fr" {
		t.Errorf("got %q, want fr", got)
	}
}

func TestDecideLanguageHighConfidenceDetection(t *testing.T) {
	got := DecideLanguage(AutoLanguage, "", nil, "de-DE", 0.90, 0.70)
	if got != "de" {
		t.Errorf("got %q, want de", got)
	}
}

func TestDecideLanguageLowConfidenceFallsBackToLastGood(t *testing.T) {
	got := DecideLanguage(AutoLanguage, "es", nil, "de", 0.30, 0.70)
	if got != "es" {
		t.Errorf("got %q, want es", got)
	}
}

func TestDecideLanguageLowConfidenceNoHistoryUsesSpeaksPref(t *testing.T) {
	got := DecideLanguage(AutoLanguage, "", []string{AutoLanguage, "it"}, "de", 0.10, 0.70)
	if got != "it" {
		t.Errorf("got %q, want it", got)
	}
}

func TestDecideLanguageLowConfidenceNoSignalDefaultsEnglish(t *testing.T) {
	got := DecideLanguage(AutoLanguage, "", nil, "de", 0.10, 0.70)
	if got != "en" {
		t.Errorf("got %q, want en", got)
	}
}

func TestResolveListenerTargetConcreteOutputWins(t *testing.T) {
	got := ResolveListenerTarget("ja", []string{"en"}, "en", "es")
	if got != "ja" {
		t.Errorf("got %q, want ja", got)
	}
}

func TestResolveListenerTargetUnderstandsSpeakerLang(t *testing.T) {
	got := ResolveListenerTarget(AutoLanguage, []string{"fr", "en"}, "en", "es")
	if got != "en" {
		t.Errorf("got %q, want en", got)
	}
}

func TestResolveListenerTargetFirstConcreteUnderstands(t *testing.T) {
	got := ResolveListenerTarget(AutoLanguage, []string{AutoLanguage, "fr"}, "en", "es")
	if got != "fr" {
		t.Errorf("got %q, want fr", got)
	}
}

func TestResolveListenerTargetFallsBackToInputLang(t *testing.T) {
	got := ResolveListenerTarget(AutoLanguage, nil, "en", "es")
	if got != "es" {
		t.Errorf("got %q, want es", got)
	}
}

func TestResolveListenerTargetDefaultsEnglish(t *testing.T) {
	got := ResolveListenerTarget(AutoLanguage, nil, "en", AutoLanguage)
	if got != "en" {
		t.Errorf("got %q, want en", got)
	}
}

func TestResolveMTSourceOverridesOnConfidentMismatch(t *testing.T) {
	got := ResolveMTSource("en", "en", "es-ES", 0.80, 0.40)
	if got != "es" {
		t.Errorf("got %q, want es", got)
	}
}

func TestResolveMTSourceKeepsSpeakerLangWhenTargetDiffers(t *testing.T) {
	got := ResolveMTSource("fr", "en", "es", 0.80, 0.40)
	if got != "en" {
		t.Errorf("got %q, want en", got)
	}
}

func TestResolveMTSourceKeepsSpeakerLangWhenConfidenceLow(t *testing.T) {
	got := ResolveMTSource("en", "en", "es", 0.10, 0.40)
	if got != "en" {
		t.Errorf("got %q, want en", got)
	}
}
