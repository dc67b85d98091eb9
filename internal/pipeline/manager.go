package pipeline

import (
	"context"
	"sync"

	"github.com/relaycore/voxbridge/internal/config"
	"github.com/relaycore/voxbridge/internal/intake"
	"github.com/relaycore/voxbridge/internal/voiceprofile"
)

// Manager owns the set of active per-speaker tasks and the shared
// collaborators every task needs (registry, intake buffer, gateways,
// voice profiles). It is the dependency-injected replacement for what
// would otherwise be module-level globals.
type Manager struct {
	mu    sync.RWMutex
	tasks map[string]*Task

	cfg       config.Config
	sender    Sender
	intakeBuf *intake.Buffer
	gw        Gateways
	voices    *voiceprofile.Resolver
	events    *EventBus
	metrics   Metrics

	// mutedParams holds the settings a muted speaker's task was running
	// with, so Unmute can recreate an equivalent task with a fresh
	// SpeakerState rather than resuming the old one (§6 scenario S6).
	mutedParams map[string]speakerParams
}

type speakerParams struct {
	roomID            string
	inputLang         string
	outputLang        string
	speaksPref        []string
	understandsPref   []string
	translationPaused bool
}

// NewManager wires a pipeline manager from its collaborators. events and
// metrics may be nil; sane no-op defaults are substituted.
func NewManager(cfg config.Config, sender Sender, intakeBuf *intake.Buffer, gw Gateways, voices *voiceprofile.Resolver, events *EventBus, metrics Metrics) *Manager {
	if events == nil {
		events = NewEventBus(256)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Manager{
		tasks:       make(map[string]*Task),
		cfg:         cfg,
		sender:      sender,
		intakeBuf:   intakeBuf,
		gw:          gw,
		voices:      voices,
		events:      events,
		metrics:     metrics,
		mutedParams: make(map[string]speakerParams),
	}
}

// StartSpeaker creates a SpeakerState and its task, and starts the tick
// loop. If userID already has a running task, that task is returned
// unchanged (callers update settings via UpdateLanguages instead).
func (m *Manager) StartSpeaker(userID, roomID, inputLang, outputLang string, speaksPref, understandsPref []string) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tasks[userID]; ok {
		return t
	}

	state := NewSpeakerState(userID, roomID, inputLang, outputLang, speaksPref, understandsPref)
	ctx, cancel := context.WithCancel(context.Background())
	t := newTask(state, m, cancel)
	m.tasks[userID] = t

	go t.run(ctx)
	m.metrics.SetSpeakersActive(len(m.tasks))
	m.events.Publish(Event{Type: EventSpeakerStarted, SpeakerID: userID})
	return t
}

// StopSpeaker cancels and removes userID's task, blocking until its tick
// loop has exited, and clears any residual intake queue.
func (m *Manager) StopSpeaker(userID string) {
	m.mu.Lock()
	t, ok := m.tasks[userID]
	if ok {
		delete(m.tasks, userID)
	}
	active := len(m.tasks)
	m.mu.Unlock()

	if !ok {
		return
	}
	t.cancel()
	<-t.done
	m.intakeBuf.Clear(userID)
	m.metrics.SetSpeakersActive(active)
	m.events.Publish(Event{Type: EventSpeakerStopped, SpeakerID: userID})
}

// ForgetMuted discards any remembered settings from a prior Mute call for
// userID. Called on disconnect so a speaker who leaves while muted doesn't
// leak an entry that nothing will ever Unmute.
func (m *Manager) ForgetMuted(userID string) {
	m.mu.Lock()
	delete(m.mutedParams, userID)
	m.mu.Unlock()
}

// Task returns the running task for userID, if any.
func (m *Manager) Task(userID string) (*Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[userID]
	return t, ok
}

// ListenerPrefs returns a snapshot of userID's language preferences, read
// by other speakers' tasks when resolving delivery targets.
func (m *Manager) ListenerPrefs(userID string) (PrefsSnapshot, bool) {
	t, ok := m.Task(userID)
	if !ok {
		return PrefsSnapshot{}, false
	}
	return t.state.Prefs.Get(), true
}

// Mute stops userID's running pipeline task entirely (§6: "mute/unmute
// stops/starts the pipeline"). The task's settings are remembered so
// Unmute can restart an equivalent speaker with a fresh SpeakerState.
func (m *Manager) Mute(userID string) bool {
	t, ok := m.Task(userID)
	if !ok {
		return false
	}

	prefs := t.state.Prefs.Get()
	t.state.Prefs.SetMuted(true) // belt-and-braces: stops a tick already in flight
	params := speakerParams{
		roomID:            t.state.RoomID,
		inputLang:         prefs.InputLang,
		outputLang:        prefs.OutputLang,
		speaksPref:        prefs.SpeaksPref,
		understandsPref:   prefs.UnderstandsPref,
		translationPaused: prefs.TranslationPaused,
	}

	m.mu.Lock()
	m.mutedParams[userID] = params
	m.mu.Unlock()

	m.StopSpeaker(userID)
	return true
}

// Unmute restarts a muted speaker with a fresh SpeakerState (§6 scenario
// S6), carrying forward the language settings and pause_translation flag
// it had when muted. A no-op if userID was never muted through Mute.
func (m *Manager) Unmute(userID string) bool {
	m.mu.Lock()
	params, ok := m.mutedParams[userID]
	if ok {
		delete(m.mutedParams, userID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	t := m.StartSpeaker(userID, params.roomID, params.inputLang, params.outputLang, params.speaksPref, params.understandsPref)
	t.state.Prefs.SetTranslationPaused(params.translationPaused)
	return true
}

// SetTranslationPaused updates userID's pause_translation flag if a task
// is running for them. Unlike Mute/Unmute this never stops the task and
// is never consulted by the delivery gate (§6: pause/resume "toggle a
// flag... but does not alter delivery").
func (m *Manager) SetTranslationPaused(userID string, paused bool) bool {
	t, ok := m.Task(userID)
	if !ok {
		return false
	}
	t.state.Prefs.SetTranslationPaused(paused)
	return true
}

// UpdateLanguages updates userID's language preferences if a task is
// running for them. A nil slice leaves that preference list unchanged.
func (m *Manager) UpdateLanguages(userID, input, output string, speaks, understands []string) bool {
	t, ok := m.Task(userID)
	if !ok {
		return false
	}
	t.state.Prefs.SetLanguages(input, output, speaks, understands)
	return true
}

// Events returns the manager's event bus for external subscribers.
func (m *Manager) Events() *EventBus {
	return m.events
}
