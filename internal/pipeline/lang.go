package pipeline

import "strings"

// AutoLanguage is the sentinel value for "no concrete language chosen yet".
const AutoLanguage = "auto"

// NormalizePrimarySubtag collapses a region-tagged language code (pt-BR) to
// its primary subtag (pt). Empty input is returned unchanged.
func NormalizePrimarySubtag(tag string) string {
	if tag == "" {
		return tag
	}
	if idx := strings.IndexByte(tag, '-'); idx >= 0 {
		tag = tag[:idx]
	}
	return strings.ToLower(tag)
}

// IsConcrete reports whether lang is a real language tag rather than the
// auto-detect sentinel.
func IsConcrete(lang string) bool {
	return lang != "" && lang != AutoLanguage
}

// firstConcrete returns the first concrete (non-empty, non-auto) entry in
// prefs, or "" if none exists.
func firstConcrete(prefs []string) string {
	for _, p := range prefs {
		if IsConcrete(p) {
			return p
		}
	}
	return ""
}

// containsLang reports whether target appears in prefs.
func containsLang(prefs []string, target string) bool {
	for _, p := range prefs {
		if p == target {
			return true
		}
	}
	return false
}

// DecideLanguage implements the §4.5.2 language decision for a speaker's
// utterance.
func DecideLanguage(inputLang, lastGoodInput string, speaksPref []string, detectedLang string, confidence, detectConfThreshold float64) string {
	if IsConcrete(inputLang) {
		return inputLang
	}

	chosen := ""
	if confidence >= detectConfThreshold {
		chosen = NormalizePrimarySubtag(detectedLang)
	} else if IsConcrete(lastGoodInput) {
		chosen = lastGoodInput
	} else if fc := firstConcrete(speaksPref); fc != "" {
		chosen = fc
	} else {
		chosen = "en"
	}

	// Safety override: auto input, low confidence, decision still equals the
	// raw detection -> prefer a known-good language over a shaky guess.
	if confidence < detectConfThreshold && chosen == NormalizePrimarySubtag(detectedLang) {
		if IsConcrete(lastGoodInput) {
			chosen = lastGoodInput
		} else if fc := firstConcrete(speaksPref); fc != "" {
			chosen = fc
		} else {
			chosen = "en"
		}
	}

	return chosen
}

// ResolveListenerTarget implements the §4.5.5 step-3 target language
// resolution for one listener.
func ResolveListenerTarget(listenerOutputLang string, listenerUnderstandsPref []string, speakerLang, listenerInputLang string) string {
	if IsConcrete(listenerOutputLang) {
		return listenerOutputLang
	}
	if containsLang(listenerUnderstandsPref, speakerLang) {
		return speakerLang
	}
	if fc := firstConcrete(listenerUnderstandsPref); fc != "" {
		return fc
	}
	if IsConcrete(listenerInputLang) {
		return listenerInputLang
	}
	return "en"
}

// ResolveMTSource implements the §4.5.5 step-4 MT source override.
func ResolveMTSource(targetLanguage, speakerLang, detectedLang string, detectedConf, overrideThreshold float64) string {
	detectedPrimary := NormalizePrimarySubtag(detectedLang)
	if targetLanguage == speakerLang && detectedPrimary != speakerLang && detectedConf >= overrideThreshold {
		return detectedPrimary
	}
	return speakerLang
}
