package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/relaycore/voxbridge/internal/config"
	"github.com/relaycore/voxbridge/internal/gateway"
	"github.com/relaycore/voxbridge/internal/intake"
	"github.com/relaycore/voxbridge/internal/voiceprofile"
)

// fakeSender is an in-memory stand-in for the connection registry, letting
// tests observe everything the pipeline would have sent out.
type fakeSender struct {
	mu       sync.Mutex
	members  map[string][]string
	toUser   map[string][]interface{}
	toRoom   []interface{}
}

func newFakeSender(roomMembers map[string][]string) *fakeSender {
	return &fakeSender{
		members: roomMembers,
		toUser:  make(map[string][]interface{}),
	}
}

func (f *fakeSender) SendToUser(userID string, message interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toUser[userID] = append(f.toUser[userID], message)
}

func (f *fakeSender) SendToRoom(roomID string, message interface{}, exclude string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toRoom = append(f.toRoom, message)
}

func (f *fakeSender) Members(roomID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.members[roomID]...)
}

func (f *fakeSender) messagesFor(userID string) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.toUser[userID]...)
}

func testGateways() Gateways {
	loader := gateway.NewLoader(0)
	rec := &gateway.MockRecognizer{}
	tr := &gateway.MockTranslator{}
	tts := &gateway.MockSynthesizer{}
	loader.Register(gateway.KindASR, rec)
	loader.Register(gateway.KindMT, tr)
	loader.Register(gateway.KindTTS, tts)
	return Gateways{Recognizer: rec, Translator: tr, Synthesizer: tts, Loader: loader}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.TickIntervalMs = 20
	cfg.MinFirstUtteranceMs = 0
	cfg.MinContinuationMs = 0
	cfg.PendingMinChars = 1
	cfg.PendingMaxChars = 1
	return cfg
}

func silentPCM(ms int, sampleRate int) []byte {
	n := ms * sampleRate / 1000 * bytesPerSample
	return make([]byte, n)
}

func loudPCM(ms int, sampleRate int) []byte {
	samples := make([]float64, ms*sampleRate/1000)
	for i := range samples {
		samples[i] = 0.2
	}
	return floatSamplesToBytes(samples)
}

func TestManagerStartStopSpeaker(t *testing.T) {
	sender := newFakeSender(map[string][]string{"room1": {"speaker", "listener"}})
	buf := intake.New(2000)
	voices := voiceprofile.New(t.TempDir(), voiceprofile.NoopMetadataStore{})

	m := NewManager(testConfig(), sender, buf, testGateways(), voices, nil, nil)
	task := m.StartSpeaker("speaker", "room1", "en", "", []string{"en"}, nil)
	if task == nil {
		t.Fatal("expected a task")
	}
	if _, ok := m.Task("speaker"); !ok {
		t.Fatal("expected task to be registered")
	}

	m.StopSpeaker("speaker")
	if _, ok := m.Task("speaker"); ok {
		t.Fatal("expected task to be removed after stop")
	}
}

func TestPipelineEndToEndDelivery(t *testing.T) {
	sender := newFakeSender(map[string][]string{"room1": {"speaker", "listener"}})
	buf := intake.New(2000)
	voices := voiceprofile.New(t.TempDir(), voiceprofile.NoopMetadataStore{})

	cfg := testConfig()
	m := NewManager(cfg, sender, buf, testGateways(), voices, nil, nil)

	m.StartSpeaker("listener", "room1", "es", "es", []string{"es"}, []string{"es"})
	m.StartSpeaker("speaker", "room1", "en", "", []string{"en"}, nil)

	for i := 0; i < 5; i++ {
		buf.Push("speaker", loudPCM(100, cfg.InputSampleRate))
		time.Sleep(30 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sender.messagesFor("listener")) > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	m.StopSpeaker("speaker")
	m.StopSpeaker("listener")

	msgs := sender.messagesFor("listener")
	if len(msgs) == 0 {
		t.Fatal("expected listener to receive at least one message")
	}
}
