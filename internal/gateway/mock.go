package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// MockRecognizer is a deterministic stand-in for a real ASR model, in the
// teacher's MockTranscriber style: no actual inference, just a predictable
// echo of input size so callers can exercise the pipeline end to end.
type MockRecognizer struct {
	mu     sync.Mutex
	loaded bool
}

func (m *MockRecognizer) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = true
	logrus.Debug("mock recognizer loaded")
	return nil
}

func (m *MockRecognizer) Unload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	return nil
}

func (m *MockRecognizer) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *MockRecognizer) IsReady() bool { return m.IsLoaded() }

func (m *MockRecognizer) Transcribe(ctx context.Context, pcm []byte, languageHint string, sampleRate int, vadFilter bool) (RecognizeResult, error) {
	lang := languageHint
	prob := 0.5
	if lang != "" && lang != "auto" {
		prob = 1.0
	} else {
		lang = "en"
	}
	return RecognizeResult{
		Text:                fmt.Sprintf("[mock transcript: %d bytes]", len(pcm)),
		DetectedLang:        lang,
		LanguageProbability: prob,
	}, nil
}

// MockTranslator returns the input text, tagged with the target language,
// unless source == target (true no-op, matching the real contract).
type MockTranslator struct {
	mu     sync.Mutex
	loaded bool
}

func (m *MockTranslator) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = true
	return nil
}

func (m *MockTranslator) Unload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	return nil
}

func (m *MockTranslator) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *MockTranslator) IsReady() bool { return m.IsLoaded() }

func (m *MockTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if source == target {
		return text, nil
	}
	return fmt.Sprintf("[%s->%s] %s", source, target, text), nil
}

// MockSynthesizer returns a fixed-length burst of silence per character of
// input, enough for a caller to exercise the PCM conversion path.
type MockSynthesizer struct {
	mu     sync.Mutex
	loaded bool
}

func (m *MockSynthesizer) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = true
	return nil
}

func (m *MockSynthesizer) Unload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	return nil
}

func (m *MockSynthesizer) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *MockSynthesizer) IsReady() bool { return m.IsLoaded() }

func (m *MockSynthesizer) Synthesize(ctx context.Context, text, language, speakerReference string) ([]float32, error) {
	samples := make([]float32, len(text)*10)
	return samples, nil
}

func (m *MockSynthesizer) SynthesizeStream(ctx context.Context, text, language, speakerReference string) (<-chan []float32, error) {
	ch := make(chan []float32, 1)
	go func() {
		defer close(ch)
		samples, _ := m.Synthesize(ctx, text, language, speakerReference)
		select {
		case ch <- samples:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
