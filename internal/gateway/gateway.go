// Package gateway defines the three external model capability contracts
// (Recognizer, Translator, Synthesizer) and the lazy loader that manages
// their lifecycle independently of pipeline tasks.
package gateway

import "context"

// RecognizeResult is the outcome of a Recognizer.Transcribe call.
type RecognizeResult struct {
	Text                string
	DetectedLang        string
	LanguageProbability float64
}

// Recognizer turns PCM audio into text with a language decision.
//
// Transcribe must be deterministic for identical input (greedy decoding,
// temperature 0). When languageHint is a concrete tag, DetectedLang in the
// result must equal the hint and LanguageProbability must be 1.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []byte, languageHint string, sampleRate int, vadFilter bool) (RecognizeResult, error)
	IsReady() bool
}

// Translator translates text between concrete language tags. Translate is
// a no-op (returns text unchanged) when source == target.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
	IsReady() bool
}

// Synthesizer produces speech audio, optionally conditioned on a speaker
// reference file. Samples are 24 kHz mono float32 in [-1, 1].
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language, speakerReference string) ([]float32, error)
	// SynthesizeStream yields PCM chunks incrementally. The returned channel
	// is closed when synthesis completes or ctx is cancelled.
	SynthesizeStream(ctx context.Context, text, language, speakerReference string) (<-chan []float32, error)
	IsReady() bool
}

// Kind identifies one of the three model capabilities for the lazy loader.
type Kind string

const (
	KindASR Kind = "asr"
	KindMT  Kind = "mt"
	KindTTS Kind = "tts"
)

// Loadable is the lifecycle surface the lazy loader drives: load, unload,
// and readiness, independent of the capability-specific call surface.
type Loadable interface {
	Load(ctx context.Context) error
	Unload() error
	IsLoaded() bool
}
