// Package config loads the relay's runtime configuration from environment
// variables (optionally via a .env file) and command-line flags.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every tunable named in the configuration envelope.
type Config struct {
	ListenAddr string
	MetricsAddr string
	VoicesRoot string
	LogLevel   string
	LogFormat  string

	RollingBufferMaxMs   int
	ContextTailMs        int
	MinFirstUtteranceMs  int
	MinContinuationMs    int
	SilenceRMSThreshold  float64
	SilenceResetMs       int
	EndOfSpeechMs        int
	PendingTimeoutMs     int
	PendingMinChars      int
	PendingMaxChars      int
	MaxTTSChars          int
	ASRDetectConfThreshold    float64
	ASRForceOverrideThreshold float64
	OutputSampleRate int
	InputSampleRate  int
	TickIntervalMs   int
	LazyLoad         bool
	IdleUnloadS      int

	IntakeMaxMs int

	LegacyAudioMirror bool
}

// MaxTranscriptChars is derived, not independently configured: 2x MaxTTSChars.
func (c Config) MaxTranscriptChars() int {
	return 2 * c.MaxTTSChars
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

func (c Config) IdleUnload() time.Duration {
	return time.Duration(c.IdleUnloadS) * time.Second
}

// Default returns the configuration envelope's documented defaults.
func Default() Config {
	return Config{
		ListenAddr:  ":8080",
		MetricsAddr: ":9090",
		VoicesRoot:  "./voices",
		LogLevel:    "info",
		LogFormat:   "text",

		RollingBufferMaxMs:        3000,
		ContextTailMs:             200,
		MinFirstUtteranceMs:       450,
		MinContinuationMs:         100,
		SilenceRMSThreshold:       0.0018,
		SilenceResetMs:            1200,
		EndOfSpeechMs:             2000,
		PendingTimeoutMs:          3500,
		PendingMinChars:           40,
		PendingMaxChars:           150,
		MaxTTSChars:               200,
		ASRDetectConfThreshold:    0.70,
		ASRForceOverrideThreshold: 0.40,
		OutputSampleRate:          24000,
		InputSampleRate:           16000,
		TickIntervalMs:            100,
		LazyLoad:                  true,
		IdleUnloadS:               3600,

		IntakeMaxMs: 2000,

		LegacyAudioMirror: true,
	}
}

// Load reads a .env file if present, then overlays environment variables
// and flags onto the documented defaults.
func Load(args []string) Config {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("no .env file loaded")
	}

	cfg := Default()

	cfg.ListenAddr = envString("RELAY_LISTEN_ADDR", cfg.ListenAddr)
	cfg.MetricsAddr = envString("RELAY_METRICS_ADDR", cfg.MetricsAddr)
	cfg.VoicesRoot = envString("RELAY_VOICES_ROOT", cfg.VoicesRoot)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("LOG_FORMAT", cfg.LogFormat)

	cfg.RollingBufferMaxMs = envInt("ROLLING_BUFFER_MAX_MS", cfg.RollingBufferMaxMs)
	cfg.ContextTailMs = envInt("CONTEXT_TAIL_MS", cfg.ContextTailMs)
	cfg.MinFirstUtteranceMs = envInt("MIN_FIRST_UTTERANCE_MS", cfg.MinFirstUtteranceMs)
	cfg.MinContinuationMs = envInt("MIN_CONTINUATION_MS", cfg.MinContinuationMs)
	cfg.SilenceRMSThreshold = envFloat("SILENCE_RMS_THRESHOLD", cfg.SilenceRMSThreshold)
	cfg.SilenceResetMs = envInt("SILENCE_RESET_MS", cfg.SilenceResetMs)
	cfg.EndOfSpeechMs = envInt("END_OF_SPEECH_MS", cfg.EndOfSpeechMs)
	cfg.PendingTimeoutMs = envInt("PENDING_TIMEOUT_MS", cfg.PendingTimeoutMs)
	cfg.PendingMinChars = envInt("PENDING_MIN_CHARS", cfg.PendingMinChars)
	cfg.PendingMaxChars = envInt("PENDING_MAX_CHARS", cfg.PendingMaxChars)
	cfg.MaxTTSChars = envInt("MAX_TTS_CHARS", cfg.MaxTTSChars)
	cfg.ASRDetectConfThreshold = envFloat("ASR_DETECT_CONF_THRESHOLD", cfg.ASRDetectConfThreshold)
	cfg.ASRForceOverrideThreshold = envFloat("ASR_FORCE_OVERRIDE_THRESHOLD", cfg.ASRForceOverrideThreshold)
	cfg.OutputSampleRate = envInt("OUTPUT_SAMPLE_RATE", cfg.OutputSampleRate)
	cfg.InputSampleRate = envInt("INPUT_SAMPLE_RATE", cfg.InputSampleRate)
	cfg.TickIntervalMs = envInt("TICK_INTERVAL_MS", cfg.TickIntervalMs)
	cfg.LazyLoad = envBool("LAZY_LOAD", cfg.LazyLoad)
	cfg.IdleUnloadS = envInt("IDLE_UNLOAD_S", cfg.IdleUnloadS)
	cfg.IntakeMaxMs = envInt("INTAKE_MAX_MS", cfg.IntakeMaxMs)
	cfg.LegacyAudioMirror = envBool("LEGACY_AUDIO_MIRROR", cfg.LegacyAudioMirror)

	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	listenAddr := fs.String("listen", cfg.ListenAddr, "transport listen address")
	metricsAddr := fs.String("metrics", cfg.MetricsAddr, "metrics listen address")
	voicesRoot := fs.String("voices", cfg.VoicesRoot, "voice reference directory")
	if err := fs.Parse(args); err == nil {
		cfg.ListenAddr = *listenAddr
		cfg.MetricsAddr = *metricsAddr
		cfg.VoicesRoot = *voicesRoot
	}

	return cfg
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
