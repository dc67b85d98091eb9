package room

import (
	"sync"
	"testing"
	"time"

	"github.com/relaycore/voxbridge/internal/config"
	"github.com/relaycore/voxbridge/internal/gateway"
	"github.com/relaycore/voxbridge/internal/intake"
	"github.com/relaycore/voxbridge/internal/pipeline"
	"github.com/relaycore/voxbridge/internal/protocol"
	"github.com/relaycore/voxbridge/internal/registry"
	"github.com/relaycore/voxbridge/internal/voiceprofile"
)

type fakeChannel struct {
	mu       sync.Mutex
	received []interface{}
}

func (f *fakeChannel) Send(message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, message)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func newTestCoordinator(autostartDelay time.Duration) (*Coordinator, *registry.Registry, *pipeline.Manager) {
	reg := registry.New(time.Second)
	buf := intake.New(2000)
	voices := voiceprofile.New("/tmp/nonexistent-voices", voiceprofile.NoopMetadataStore{})

	loader := gateway.NewLoader(0)
	rec := &gateway.MockRecognizer{}
	tr := &gateway.MockTranslator{}
	tts := &gateway.MockSynthesizer{}
	loader.Register(gateway.KindASR, rec)
	loader.Register(gateway.KindMT, tr)
	loader.Register(gateway.KindTTS, tts)
	gw := pipeline.Gateways{Recognizer: rec, Translator: tr, Synthesizer: tts, Loader: loader}

	pl := pipeline.NewManager(config.Default(), reg, buf, gw, voices, nil, nil)
	return New(reg, pl, autostartDelay), reg, pl
}

func TestJoinWithConcreteLanguageStartsImmediately(t *testing.T) {
	c, _, pl := newTestCoordinator(2 * time.Second)
	ch := &fakeChannel{}

	c.Join(ch, "alice", "room1", "Alice", "Alice A", protocol.InitSettings{
		Type:          protocol.TypeInitSettings,
		InputLanguage: "en",
	})
	defer c.Leave(ch, "alice", "room1")

	if _, ok := pl.Task("alice"); !ok {
		t.Error("expected speaker task to start immediately for concrete input language")
	}
}

func TestJoinWithAmbiguousLanguageDefers(t *testing.T) {
	c, _, pl := newTestCoordinator(60 * time.Millisecond)
	ch := &fakeChannel{}

	c.Join(ch, "bob", "room1", "Bob", "Bob B", protocol.InitSettings{
		Type:          protocol.TypeInitSettings,
		InputLanguage: "auto",
	})
	defer c.Leave(ch, "bob", "room1")

	if _, ok := pl.Task("bob"); ok {
		t.Error("expected speaker task to not start immediately for ambiguous language")
	}

	time.Sleep(150 * time.Millisecond)

	if _, ok := pl.Task("bob"); !ok {
		t.Error("expected speaker task to autostart after the deferred window")
	}
}

func TestLanguageUpdateCancelsDeferredAutostart(t *testing.T) {
	c, _, pl := newTestCoordinator(2 * time.Second)
	ch := &fakeChannel{}

	c.Join(ch, "carol", "room1", "Carol", "Carol C", protocol.InitSettings{
		Type:          protocol.TypeInitSettings,
		InputLanguage: "auto",
	})
	defer c.Leave(ch, "carol", "room1")

	if _, ok := pl.Task("carol"); ok {
		t.Fatal("task should not have started yet")
	}

	c.LanguageUpdate("carol", "room1", protocol.LanguageUpdate{
		Type:          protocol.TypeLanguageUpdate,
		InputLanguage: "fr",
	})

	if _, ok := pl.Task("carol"); !ok {
		t.Error("expected language_update to start the task immediately, cancelling the deferred timer")
	}
}

func TestLeaveStopsSpeakerAndUpdatesRoster(t *testing.T) {
	c, _, pl := newTestCoordinator(2 * time.Second)
	ch := &fakeChannel{}

	c.Join(ch, "dave", "room1", "Dave", "Dave D", protocol.InitSettings{
		Type:          protocol.TypeInitSettings,
		InputLanguage: "en",
	})
	if len(c.Roster("room1")) != 1 {
		t.Fatalf("expected 1 participant, got %d", len(c.Roster("room1")))
	}

	c.Leave(ch, "dave", "room1")

	if _, ok := pl.Task("dave"); ok {
		t.Error("expected speaker task to stop on leave")
	}
	if len(c.Roster("room1")) != 0 {
		t.Errorf("expected empty roster after leave, got %d", len(c.Roster("room1")))
	}
}

func TestControlMuteStopsAndUnmuteRestartsTask(t *testing.T) {
	c, _, pl := newTestCoordinator(2 * time.Second)
	ch := &fakeChannel{}

	c.Join(ch, "erin", "room1", "Erin", "Erin E", protocol.InitSettings{
		Type:          protocol.TypeInitSettings,
		InputLanguage: "en",
	})
	defer c.Leave(ch, "erin", "room1")

	c.Control("erin", protocol.ActionMute)
	if _, ok := pl.Task("erin"); ok {
		t.Error("expected mute to stop erin's pipeline task entirely")
	}

	c.Control("erin", protocol.ActionUnmute)
	if _, ok := pl.Task("erin"); !ok {
		t.Error("expected unmute to restart erin's pipeline task")
	}
}

func TestControlPauseTranslationDoesNotStopTask(t *testing.T) {
	c, _, pl := newTestCoordinator(2 * time.Second)
	ch := &fakeChannel{}

	c.Join(ch, "frank", "room1", "Frank", "Frank F", protocol.InitSettings{
		Type:          protocol.TypeInitSettings,
		InputLanguage: "en",
	})
	defer c.Leave(ch, "frank", "room1")

	c.Control("frank", protocol.ActionPauseTranslation)
	prefs, ok := pl.ListenerPrefs("frank")
	if !ok {
		t.Fatal("expected frank's task to still be running after pause_translation")
	}
	if !prefs.TranslationPaused {
		t.Error("expected pause_translation to set TranslationPaused")
	}
	if prefs.Muted {
		t.Error("pause_translation must not set Muted")
	}

	c.Control("frank", protocol.ActionResumeTranslation)
	prefs, ok = pl.ListenerPrefs("frank")
	if !ok || prefs.TranslationPaused {
		t.Error("expected resume_translation to clear TranslationPaused")
	}
}
