package pipeline

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/relaycore/voxbridge/internal/gateway"
	"github.com/relaycore/voxbridge/internal/protocol"
)

// Sender is the subset of the connection registry the pipeline depends on.
type Sender interface {
	SendToUser(userID string, message interface{})
	SendToRoom(roomID string, message interface{}, exclude string)
	Members(roomID string) []string
}

// Gateways bundles the three model capabilities and their lazy loader.
type Gateways struct {
	Recognizer  gateway.Recognizer
	Translator  gateway.Translator
	Synthesizer gateway.Synthesizer
	Loader      *gateway.Loader
}

// Metrics receives pipeline observability signals.
type Metrics interface {
	ObserveStageLatency(stage string, d time.Duration)
	IncReset(reason string)
	IncFlush()
	IncDeliveryError(stage string)
	SetSpeakersActive(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveStageLatency(string, time.Duration) {}
func (noopMetrics) IncReset(string)                           {}
func (noopMetrics) IncFlush()                                 {}
func (noopMetrics) IncDeliveryError(string)                   {}
func (noopMetrics) SetSpeakersActive(int)                     {}

// Task is the one cooperative task per active speaker (§4.5). It is
// created on speaker start and destroyed on stop; it never runs
// concurrently with itself.
type Task struct {
	state   *SpeakerState
	manager *Manager

	sem        *semaphore.Weighted
	lastTickAt time.Time

	mu           sync.Mutex
	lastSentText map[string]string // key: listenerID + "|" + targetLang
	seqCounters  map[string]uint64 // key: listenerID

	cancel context.CancelFunc
	done   chan struct{}
}

func newTask(state *SpeakerState, m *Manager, cancel context.CancelFunc) *Task {
	return &Task{
		state:        state,
		manager:      m,
		sem:          semaphore.NewWeighted(1),
		lastTickAt:   time.Now(),
		lastSentText: make(map[string]string),
		seqCounters:  make(map[string]uint64),
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

func (t *Task) run(ctx context.Context) {
	defer close(t.done)
	ticker := time.NewTicker(t.manager.cfg.TickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// tick implements §4.5.1's rolling-buffer/gating procedure plus the
// rate-limit and minimum-duration gates before recognition.
func (t *Task) tick(ctx context.Context) {
	cfg := t.manager.cfg
	s := t.state

	frames := t.manager.intakeBuf.Drain(s.UserID)

	now := time.Now()
	elapsedMs := now.Sub(t.lastTickAt).Milliseconds()
	if elapsedMs <= 0 {
		elapsedMs = int64(cfg.TickIntervalMs)
	}
	t.lastTickAt = now

	if len(frames) == 0 {
		s.SilenceAccumMs += int(elapsedMs)
		if t.maybeResetOnSilence(ctx, now) {
			return
		}
		return
	}

	samples := bytesToFloatSamples(frames)
	r := rms(samples)

	if r >= cfg.SilenceRMSThreshold {
		s.LastActivityTs = now
		s.Speaking = true
		s.SilenceAccumMs = 0
	} else {
		s.SilenceAccumMs += int(elapsedMs)
	}

	adjusted, effectiveRMS := autoGain(samples, r)
	if effectiveRMS != r {
		frames = floatSamplesToBytes(adjusted)
		r = effectiveRMS
	}

	s.RollingBuffer = append(s.RollingBuffer, frames...)
	maxBytes := cfg.RollingBufferMaxMs * cfg.InputSampleRate * bytesPerSample / 1000
	s.RollingBuffer = trimToTailBytes(s.RollingBuffer, maxBytes)

	if r < cfg.SilenceRMSThreshold {
		if t.maybeResetOnSilence(ctx, now) {
			return
		}
		return // step 5: near-silence, skip this tick
	}

	if now.Sub(s.LastASRCallAt).Milliseconds() < int64(cfg.MinContinuationMs) {
		return
	}

	minMs := cfg.MinContinuationMs
	if !s.FirstTranscriptEmitted {
		minMs = cfg.MinFirstUtteranceMs
	}
	if durationMs(len(s.RollingBuffer), cfg.InputSampleRate) < float64(minMs) {
		return
	}

	s.LastASRCallAt = now
	t.recognizeAndProcess(ctx)
}

// maybeResetOnSilence evaluates the two silence-driven reset triggers:
// prolonged near-silence before any speech started this segment, and
// end-of-speech once speech was underway. Returns true if a reset fired.
func (t *Task) maybeResetOnSilence(ctx context.Context, now time.Time) bool {
	s := t.state
	cfg := t.manager.cfg

	if s.Speaking && now.Sub(s.LastActivityTs).Milliseconds() >= int64(cfg.EndOfSpeechMs) {
		t.resetContext(ctx, "end-of-speech", true)
		return true
	}
	if !s.Speaking && s.SilenceAccumMs >= cfg.SilenceResetMs {
		t.resetContext(ctx, "prolonged near-silence", false)
		return true
	}
	return false
}

// recognizeAndProcess implements §4.5.2 (recognition, post-processing,
// language decision) and §4.5.3 (partial emission).
func (t *Task) recognizeAndProcess(ctx context.Context) {
	cfg := t.manager.cfg
	s := t.state
	gw := t.manager.gw

	start := time.Now()
	if ok, err := gw.Loader.EnsureLoaded(ctx, gateway.KindASR); !ok {
		t.sendTranslationError(protocol.StageASR, errString(err))
		return
	}

	prefs := s.Prefs.Get()
	hint := prefs.InputLang
	if !IsConcrete(hint) {
		if IsConcrete(s.LastGoodInput) {
			hint = s.LastGoodInput
		} else {
			hint = ""
		}
	}

	result, err := gw.Recognizer.Transcribe(ctx, s.RollingBuffer, hint, cfg.InputSampleRate, true)
	gw.Loader.Touch(gateway.KindASR)
	t.manager.metrics.ObserveStageLatency(protocol.StageASR, time.Since(start))

	var text, detectedLang string
	var confidence float64
	if err != nil {
		logrus.WithError(err).WithField("speaker", s.UserID).Warn("recognizer error, treated as empty transcript")
	} else {
		text = strings.TrimSpace(result.Text)
		detectedLang = result.DetectedLang
		confidence = result.LanguageProbability
	}

	if isEmptyOrPunctuation(text) {
		s.EmptyASRStreak++
		if s.EmptyASRStreak >= 3 {
			t.resetContext(ctx, "repeated empty ASR", true)
		}
		return
	}
	s.EmptyASRStreak = 0

	if isHallucination(text) {
		t.resetContext(ctx, "hallucinated repetition", false)
		return
	}

	text = truncateTranscript(text, cfg.MaxTranscriptChars())

	if s.LastTranscriptText != "" && strings.EqualFold(s.LastTranscriptText, text) && time.Since(s.LastTranscriptAt) < 1500*time.Millisecond {
		return
	}
	s.LastTranscriptText = text
	s.LastTranscriptAt = time.Now()

	tailBytes := cfg.ContextTailMs * cfg.InputSampleRate * bytesPerSample / 1000
	s.RollingBuffer = trimToTailBytes(s.RollingBuffer, tailBytes)

	chosen := DecideLanguage(prefs.InputLang, s.LastGoodInput, prefs.SpeaksPref, detectedLang, confidence, cfg.ASRDetectConfThreshold)
	if IsConcrete(prefs.InputLang) || confidence >= cfg.ASRDetectConfThreshold {
		s.LastGoodInput = chosen
	}
	s.LastDetectedLanguage = detectedLang
	s.FirstTranscriptEmitted = true

	t.manager.sender.SendToRoom(s.RoomID, protocol.PartialTranscript{
		Type:      protocol.TypePartialTranscript,
		UserID:    s.UserID,
		Text:      text,
		Language:  chosen,
		Timestamp: nowUnix(),
	}, "")

	if prefs.Muted {
		return
	}

	t.aggregateAndMaybeFlush(ctx, text, chosen, detectedLang, confidence)
}

// aggregateAndMaybeFlush implements §4.5.4.
func (t *Task) aggregateAndMaybeFlush(ctx context.Context, newText, chosenLang, detectedLang string, confidence float64) {
	s := t.state
	cfg := t.manager.cfg

	if s.PendingTranscript == "" {
		s.PendingStartedAt = time.Now()
		s.PendingTranscript = newText
	} else {
		s.PendingTranscript = s.PendingTranscript + " " + newText
	}

	snapshot := DetectedStateSnapshot{SpeakerLang: chosenLang, DetectedLang: detectedLang, Confidence: confidence, Ts: time.Now()}
	prev := s.LastDetectedState
	languageChanged := !prev.Ts.IsZero() &&
		(prev.SpeakerLang != snapshot.SpeakerLang || NormalizePrimarySubtag(prev.DetectedLang) != NormalizePrimarySubtag(snapshot.DetectedLang))

	if languageChanged {
		// Flush with the OLD snapshot: the source flushes first, then state
		// updates to the new snapshot.
		t.flush(ctx, prev.SpeakerLang, prev.DetectedLang, prev.Confidence, "language-change")
		s.LastDetectedState = snapshot
		return
	}
	s.LastDetectedState = snapshot

	const pendingElapsedMinChars = 15
	elapsedMs := time.Since(s.PendingStartedAt).Milliseconds()
	length := len([]rune(s.PendingTranscript))

	shouldFlush := (length >= cfg.PendingMinChars && hasSentenceEnd(newText)) ||
		(elapsedMs >= int64(cfg.PendingTimeoutMs) && length >= pendingElapsedMinChars) ||
		(length >= cfg.PendingMaxChars)

	if shouldFlush {
		t.flush(ctx, chosenLang, detectedLang, confidence, "flush")
	}
}

// flush empties pending_transcript and hands it to an asynchronous
// delivery job, serialized per speaker via the weighted semaphore.
func (t *Task) flush(ctx context.Context, speakerLang, detectedLang string, confidence float64, reason string) {
	s := t.state
	full := s.PendingTranscript
	if full == "" {
		return
	}
	s.PendingTranscript = ""
	s.PendingStartedAt = time.Time{}

	t.manager.metrics.IncFlush()
	t.manager.events.Publish(Event{Type: EventTranscriptFlush, SpeakerID: s.UserID, Data: FlushData{Reason: reason, Length: len(full)}})

	go t.deliver(ctx, full, speakerLang, detectedLang, confidence)
}

// deliver implements §4.5.5: per-listener translation and incremental TTS.
func (t *Task) deliver(ctx context.Context, fullTranscript, speakerLang, detectedLang string, confidence float64) {
	s := t.state

	if err := t.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer t.sem.Release(1)

	t.manager.events.Publish(Event{Type: EventDeliveryStarted, SpeakerID: s.UserID})

	gw := t.manager.gw
	if ok, err := gw.Loader.EnsureLoaded(ctx, gateway.KindMT); !ok {
		t.sendTranslationError(protocol.StageMT, errString(err))
		return
	}
	if ok, err := gw.Loader.EnsureLoaded(ctx, gateway.KindTTS); !ok {
		t.sendTranslationError(protocol.StageTTS, errString(err))
		return
	}

	listeners := t.manager.sender.Members(s.RoomID)
	targets := make([]string, 0, len(listeners))
	for _, l := range listeners {
		if l != s.UserID {
			targets = append(targets, l)
		}
	}
	if len(targets) == 0 {
		return
	}

	voiceRef := ""
	if t.manager.voices != nil {
		if path, ok := t.manager.voices.Resolve(s.UserID); ok {
			voiceRef = path
		}
	}

	cache := make(map[string]string)
	var cacheMu sync.Mutex

	var wg sync.WaitGroup
	for _, listenerID := range targets {
		listenerID := listenerID
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.deliverToListener(ctx, listenerID, fullTranscript, speakerLang, detectedLang, confidence, voiceRef, cache, &cacheMu)
		}()
	}
	wg.Wait()

	t.manager.events.Publish(Event{Type: EventDeliveryComplete, SpeakerID: s.UserID})
}

func (t *Task) deliverToListener(
	ctx context.Context,
	listenerID, fullTranscript, speakerLang, detectedLang string,
	confidence float64,
	voiceRef string,
	cache map[string]string,
	cacheMu *sync.Mutex,
) {
	s := t.state
	gw := t.manager.gw
	cfg := t.manager.cfg

	listenerPrefs, ok := t.manager.ListenerPrefs(listenerID)
	if !ok {
		return
	}

	target := ResolveListenerTarget(listenerPrefs.OutputLang, listenerPrefs.UnderstandsPref, speakerLang, listenerPrefs.InputLang)
	mtSource := ResolveMTSource(target, speakerLang, detectedLang, confidence, cfg.ASRForceOverrideThreshold)

	cacheKey := mtSource + ">" + target
	cacheMu.Lock()
	translation, cached := cache[cacheKey]
	cacheMu.Unlock()

	if !cached {
		var err error
		translation, err = gw.Translator.Translate(ctx, fullTranscript, mtSource, target)
		gw.Loader.Touch(gateway.KindMT)
		if err != nil {
			logrus.WithError(err).WithField("listener", listenerID).Warn("translation failed")
			t.manager.metrics.IncDeliveryError(protocol.StageMT)
			t.manager.events.Publish(Event{Type: EventDeliveryFailed, SpeakerID: s.UserID, Data: DeliveryData{ListenerID: listenerID, Language: target, Stage: protocol.StageMT, Err: err.Error()}})
			return
		}
		cacheMu.Lock()
		cache[cacheKey] = translation
		cacheMu.Unlock()
	}

	t.manager.sender.SendToUser(listenerID, protocol.PartialTranslation{
		Type:       protocol.TypePartialTranslation,
		FromUserID: s.UserID,
		Text:       translation,
		Language:   target,
		Timestamp:  nowUnix(),
	})

	key := listenerID + "|" + target
	t.mu.Lock()
	previous := t.lastSentText[key]
	t.mu.Unlock()

	delta := computeDelta(previous, translation)
	if strings.TrimSpace(delta) == "" {
		return
	}

	voiceFallback := voiceRef == ""
	samples, err := gw.Synthesizer.Synthesize(ctx, delta, target, voiceRef)
	gw.Loader.Touch(gateway.KindTTS)
	if err != nil {
		logrus.WithError(err).WithField("listener", listenerID).Warn("synthesis failed")
		t.manager.metrics.IncDeliveryError(protocol.StageTTS)
		t.manager.events.Publish(Event{Type: EventDeliveryFailed, SpeakerID: s.UserID, Data: DeliveryData{ListenerID: listenerID, Language: target, Stage: protocol.StageTTS, Err: err.Error()}})
		return // last_sent_text not advanced: retried on next flush
	}

	audioBytes := floatSamplesToS16LE(samples)
	encoded := base64.StdEncoding.EncodeToString(audioBytes)

	t.mu.Lock()
	t.seqCounters[listenerID]++
	seq := t.seqCounters[listenerID]
	t.lastSentText[key] = translation
	t.mu.Unlock()

	msg := protocol.TranslatedAudio{
		Type:             protocol.TypeTranslatedAudio,
		UserID:           s.UserID,
		Seq:              seq,
		Audio:            protocol.AudioPayload{Data: encoded, Encoding: "pcm_s16le", SampleRate: cfg.OutputSampleRate},
		OriginalText:     fullTranscript,
		DetectedLanguage: detectedLang,
		Text:             delta,
		Language:         target,
		VoiceFallback:    voiceFallback,
		Timestamp:        nowUnix(),
	}
	if cfg.LegacyAudioMirror {
		msg.AudioData = encoded
	}
	t.manager.sender.SendToUser(listenerID, msg)
}

// computeDelta returns the suffix of full not already covered by previous,
// or the whole of full if previous is not a prefix of it.
func computeDelta(previous, full string) string {
	if previous == "" {
		return full
	}
	if strings.HasPrefix(full, previous) {
		return strings.TrimPrefix(full, previous)
	}
	return full
}

// resetContext implements §4.5.6.
func (t *Task) resetContext(ctx context.Context, reason string, flushPending bool) {
	s := t.state
	t.manager.metrics.IncReset(reason)
	t.manager.events.Publish(Event{Type: EventContextReset, SpeakerID: s.UserID, Data: ResetData{Reason: reason}})

	if flushPending && s.PendingTranscript != "" {
		prev := s.LastDetectedState
		speakerLang := prev.SpeakerLang
		if speakerLang == "" {
			speakerLang = s.LastGoodInput
		}
		t.flush(ctx, speakerLang, prev.DetectedLang, prev.Confidence, reason)
	}

	s.resetTranscriptState()
	s.LastDetectedState = DetectedStateSnapshot{}

	t.mu.Lock()
	t.lastSentText = make(map[string]string)
	t.seqCounters = make(map[string]uint64)
	t.mu.Unlock()

	t.manager.intakeBuf.Clear(s.UserID)
}

func (t *Task) sendTranslationError(stage, message string) {
	t.manager.sender.SendToUser(t.state.UserID, protocol.TranslationError{
		Type:    protocol.TypeTranslationError,
		Stage:   stage,
		Message: message,
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
