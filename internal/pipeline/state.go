package pipeline

import (
	"sync"
	"time"
)

// Prefs holds the subset of a speaker's settings that other speakers' tasks
// need to read when resolving them as a listener (§4.5.5 step 3). It has
// its own lock because it is the only part of SpeakerState touched from
// outside the owning task.
type Prefs struct {
	mu sync.RWMutex

	inputLang         string
	outputLang        string
	speaksPref        []string
	understandsPref   []string
	muted             bool
	translationPaused bool
}

// PrefsSnapshot is an immutable copy of Prefs for cross-task reads.
type PrefsSnapshot struct {
	InputLang         string
	OutputLang        string
	SpeaksPref        []string
	UnderstandsPref   []string
	Muted             bool
	TranslationPaused bool
}

func newPrefs(input, output string, speaks, understands []string) *Prefs {
	return &Prefs{
		inputLang:       NormalizePrimarySubtag(input),
		outputLang:      NormalizePrimarySubtag(output),
		speaksPref:      normalizeTags(speaks),
		understandsPref: normalizeTags(understands),
	}
}

// normalizeTags applies NormalizePrimarySubtag to every entry, copying the
// slice so the caller's backing array is never retained.
func normalizeTags(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = NormalizePrimarySubtag(t)
	}
	return out
}

// Get returns a snapshot safe for concurrent reads.
func (p *Prefs) Get() PrefsSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PrefsSnapshot{
		InputLang:         p.inputLang,
		OutputLang:        p.outputLang,
		SpeaksPref:        append([]string(nil), p.speaksPref...),
		UnderstandsPref:   append([]string(nil), p.understandsPref...),
		Muted:             p.muted,
		TranslationPaused: p.translationPaused,
	}
}

// SetLanguages updates the language preference fields (init_settings /
// language_update).
func (p *Prefs) SetLanguages(input, output string, speaks, understands []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputLang = NormalizePrimarySubtag(input)
	p.outputLang = NormalizePrimarySubtag(output)
	if speaks != nil {
		p.speaksPref = normalizeTags(speaks)
	}
	if understands != nil {
		p.understandsPref = normalizeTags(understands)
	}
}

// inputLangValue returns the current input_lang under the read lock.
func (p *Prefs) inputLangValue() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inputLang
}

// SetMuted updates the mute flag (control message). Set just ahead of
// Manager.Mute tearing the task down, so a tick already in flight still
// sees it and stops short rather than racing the cancellation.
func (p *Prefs) SetMuted(m bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = m
}

// SetTranslationPaused records pause_translation/resume_translation state.
// It is acknowledged back to the client via translation_status but is
// never consulted by the delivery gate: per spec, pausing translation
// toggles a flag without altering delivery.
func (p *Prefs) SetTranslationPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.translationPaused = paused
}

// DetectedStateSnapshot is the (speaker_lang, detected_lang, confidence)
// tuple taken at each ASR decision, compared tick-to-tick to catch a
// language change.
type DetectedStateSnapshot struct {
	SpeakerLang  string
	DetectedLang string
	Confidence   float64
	Ts           time.Time
}

// SpeakerState is the mutable state owned exclusively by one speaker's
// task (§3). Only Prefs is safe for concurrent access from other tasks.
type SpeakerState struct {
	UserID string
	RoomID string
	Prefs  *Prefs

	LastGoodInput        string
	LastDetectedLanguage string

	RollingBuffer []byte

	PendingTranscript string
	PendingStartedAt  time.Time

	LastTranscriptText string
	LastTranscriptAt   time.Time

	LastActivityTs   time.Time
	SilenceAccumMs   int
	EmptyASRStreak   int
	Speaking         bool

	FirstTranscriptEmitted bool
	LastDetectedState      DetectedStateSnapshot
	LastASRCallAt          time.Time
}

// NewSpeakerState constructs the state for a newly started speaker.
func NewSpeakerState(userID, roomID, inputLang, outputLang string, speaksPref, understandsPref []string) *SpeakerState {
	if inputLang == "" {
		inputLang = AutoLanguage
	}
	return &SpeakerState{
		UserID: userID,
		RoomID: roomID,
		Prefs:  newPrefs(inputLang, outputLang, speaksPref, understandsPref),
	}
}

// resetTranscriptState clears the fields §4.5.6 names on a context reset.
func (s *SpeakerState) resetTranscriptState() {
	s.RollingBuffer = nil
	s.PendingTranscript = ""
	s.PendingStartedAt = time.Time{}
	s.LastTranscriptText = ""
	s.LastTranscriptAt = time.Time{}
	s.Speaking = false
	s.FirstTranscriptEmitted = false
	s.SilenceAccumMs = 0
	s.EmptyASRStreak = 0
}
