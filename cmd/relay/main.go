package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaycore/voxbridge/internal/config"
	"github.com/relaycore/voxbridge/internal/gateway"
	"github.com/relaycore/voxbridge/internal/intake"
	"github.com/relaycore/voxbridge/internal/metrics"
	"github.com/relaycore/voxbridge/internal/pipeline"
	"github.com/relaycore/voxbridge/internal/registry"
	"github.com/relaycore/voxbridge/internal/room"
	"github.com/relaycore/voxbridge/internal/transport"
	"github.com/relaycore/voxbridge/internal/voiceprofile"
)

const autostartDelay = 2 * time.Second

func main() {
	cfg := config.Load(os.Args[1:])

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
	if strings.ToLower(cfg.LogFormat) == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer cancel()

	reg := registry.New(2 * time.Second)
	intakeBuf := intake.New(cfg.IntakeMaxMs)
	voices := voiceprofile.New(cfg.VoicesRoot, voiceprofile.NoopMetadataStore{})
	mc := metrics.New()
	intakeBuf.SetObserver(mc)

	gw := buildGateways(cfg)

	events := pipeline.NewEventBus(256)
	plManager := pipeline.NewManager(cfg, reg, intakeBuf, gw, voices, events, mc)

	rc := room.New(reg, plManager, autostartDelay)

	wsServer := transport.New(rc, intakeBuf)
	statusServer := transport.NewStatusServer(rc, plManager)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	mux.Handle("/ws/status/", statusServer)

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		logrus.WithField("addr", cfg.ListenAddr).Info("relay listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("relay http server error")
		}
	}()
	go func() {
		logrus.WithField("addr", cfg.MetricsAddr).Info("metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("metrics http server error")
		}
	}()

	logrus.Info("relay running. Press CTRL-C to exit.")
	<-ctx.Done()

	logrus.Info("shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	_ = httpSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	events.Stop()
	gw.Loader.Stop()
}

// buildGateways wires the lazy loader to mock model implementations. A real
// deployment swaps these three registrations for ASR/MT/TTS backends
// without touching the pipeline or loader.
func buildGateways(cfg config.Config) pipeline.Gateways {
	idle := time.Duration(0)
	if cfg.LazyLoad {
		idle = cfg.IdleUnload()
	}
	loader := gateway.NewLoader(idle)

	rec := &gateway.MockRecognizer{}
	tr := &gateway.MockTranslator{}
	tts := &gateway.MockSynthesizer{}

	loader.Register(gateway.KindASR, rec)
	loader.Register(gateway.KindMT, tr)
	loader.Register(gateway.KindTTS, tts)

	return pipeline.Gateways{Recognizer: rec, Translator: tr, Synthesizer: tts, Loader: loader}
}
