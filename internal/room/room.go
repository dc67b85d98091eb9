// Package room implements the Room Coordinator: the thin glue between a
// transport connection's lifecycle and the pipeline and registry, with no
// cycle back from pipeline or registry into room.
package room

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaycore/voxbridge/internal/pipeline"
	"github.com/relaycore/voxbridge/internal/protocol"
	"github.com/relaycore/voxbridge/internal/registry"
)

// Coordinator owns per-room participant rosters and drives speaker task
// lifecycle from connect/disconnect/control events.
type Coordinator struct {
	registry *registry.Registry
	pipeline *pipeline.Manager

	autostartDelay time.Duration

	mu       sync.Mutex
	rosters  map[string]map[string]protocol.Participant
	deferred map[string]*time.Timer
}

// New creates a coordinator wiring reg and pl. autostartDelay is how long
// an ambiguous-language speaker's pipeline task start is deferred, waiting
// for a prompt language_update (see deferredAutostart).
func New(reg *registry.Registry, pl *pipeline.Manager, autostartDelay time.Duration) *Coordinator {
	return &Coordinator{
		registry:       reg,
		pipeline:       pl,
		autostartDelay: autostartDelay,
		rosters:        make(map[string]map[string]protocol.Participant),
		deferred:       make(map[string]*time.Timer),
	}
}

// joinState captures what Join needs from an init_settings message without
// importing the transport layer.
type joinState struct {
	InputLanguage        string
	OutputLanguage       string
	SpeaksLanguages      []string
	UnderstandsLanguages []string
}

// Join registers channel under userID/roomID, adds userID to the room
// roster, broadcasts participant_joined, and starts (or defers) the
// speaker's pipeline task.
func (c *Coordinator) Join(channel registry.Channel, userID, roomID, username, fullName string, init protocol.InitSettings) {
	c.registry.Register(userID, roomID, channel)

	participant := protocol.Participant{ID: userID, Username: username, FullName: fullName, Name: username}

	c.mu.Lock()
	if c.rosters[roomID] == nil {
		c.rosters[roomID] = make(map[string]protocol.Participant)
	}
	c.rosters[roomID][userID] = participant
	c.mu.Unlock()

	channel.Send(protocol.Connected{
		Type:    protocol.TypeConnected,
		UserID:  userID,
		RoomID:  roomID,
		Message: "joined",
	})

	c.broadcastRoster(roomID, userID)

	js := joinState{
		InputLanguage:        init.InputLanguage,
		OutputLanguage:       init.OutputLanguage,
		SpeaksLanguages:      init.SpeaksLanguages,
		UnderstandsLanguages: init.UnderstandsLanguages,
	}

	if pipeline.IsConcrete(js.InputLanguage) || len(js.SpeaksLanguages) > 0 {
		c.startSpeaker(userID, roomID, js)
		return
	}

	c.deferredAutostart(userID, roomID, js)
}

// deferredAutostart implements the "Deferred start on ambiguous input
// language" supplemented feature: when a speaker joins with no concrete
// input language and no speaks_pref, starting the pipeline task is
// postponed briefly, giving a near-simultaneous language_update a chance
// to arrive first and avoid a cold-start auto-detect guess.
func (c *Coordinator) deferredAutostart(userID, roomID string, js joinState) {
	c.mu.Lock()
	if _, pending := c.deferred[userID]; pending {
		c.mu.Unlock()
		return
	}
	timer := time.AfterFunc(c.autostartDelay, func() {
		c.mu.Lock()
		delete(c.deferred, userID)
		c.mu.Unlock()
		c.startSpeaker(userID, roomID, js)
	})
	c.deferred[userID] = timer
	c.mu.Unlock()
}

// cancelDeferred stops a pending autostart timer, if any, returning true
// if one was cancelled.
func (c *Coordinator) cancelDeferred(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.deferred[userID]
	if !ok {
		return false
	}
	delete(c.deferred, userID)
	return t.Stop()
}

func (c *Coordinator) startSpeaker(userID, roomID string, js joinState) {
	c.pipeline.StartSpeaker(userID, roomID, js.InputLanguage, js.OutputLanguage, js.SpeaksLanguages, js.UnderstandsLanguages)
	logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID}).Debug("speaker pipeline started")
}

// LanguageUpdate applies a mid-session language_update. If the speaker's
// task hasn't started yet (still in the deferred-autostart window), the
// update's settings are used to start it immediately instead of waiting
// out the timer.
func (c *Coordinator) LanguageUpdate(userID, roomID string, upd protocol.LanguageUpdate) {
	speaks := []string(nil)
	if upd.SpeaksLanguages != nil {
		speaks = *upd.SpeaksLanguages
	}
	understands := []string(nil)
	if upd.UnderstandsLanguages != nil {
		understands = *upd.UnderstandsLanguages
	}

	if c.cancelDeferred(userID) {
		c.startSpeaker(userID, roomID, joinState{
			InputLanguage:        upd.InputLanguage,
			OutputLanguage:       upd.OutputLanguage,
			SpeaksLanguages:      speaks,
			UnderstandsLanguages: understands,
		})
		return
	}

	c.pipeline.UpdateLanguages(userID, upd.InputLanguage, upd.OutputLanguage, speaks, understands)
}

// Control applies a mute/unmute/pause/resume_translation control action.
// mute/unmute stop and restart the speaker's pipeline task outright;
// pause/resume_translation only flip an acknowledged flag and never touch
// the running task (§6).
func (c *Coordinator) Control(userID string, action string) {
	switch action {
	case protocol.ActionMute:
		c.pipeline.Mute(userID)
	case protocol.ActionUnmute:
		c.pipeline.Unmute(userID)
	case protocol.ActionPauseTranslation:
		c.pipeline.SetTranslationPaused(userID, true)
	case protocol.ActionResumeTranslation:
		c.pipeline.SetTranslationPaused(userID, false)
	default:
		logrus.WithField("action", action).Warn("unrecognized control action")
	}
}

// Leave cancels any pending autostart, stops the speaker's pipeline task,
// unregisters the channel, drops userID from the roster, and broadcasts
// participant_left to the rest of the room.
func (c *Coordinator) Leave(channel registry.Channel, userID, roomID string) {
	c.cancelDeferred(userID)
	c.pipeline.StopSpeaker(userID)
	c.pipeline.ForgetMuted(userID)
	c.registry.Unregister(userID, channel)

	c.mu.Lock()
	if roster, ok := c.rosters[roomID]; ok {
		delete(roster, userID)
		if len(roster) == 0 {
			delete(c.rosters, roomID)
		}
	}
	c.mu.Unlock()

	c.broadcastRoster(roomID, userID)
}

// broadcastRoster sends the room's current participant list to every
// member, tagged with the userID whose join/leave triggered the update.
func (c *Coordinator) broadcastRoster(roomID, changedUserID string) {
	c.mu.Lock()
	roster := c.rosters[roomID]
	participants := make([]protocol.Participant, 0, len(roster))
	for _, p := range roster {
		participants = append(participants, p)
	}
	c.mu.Unlock()

	msgType := protocol.TypeParticipantJoined
	if _, present := roster[changedUserID]; !present {
		msgType = protocol.TypeParticipantLeft
	}

	c.registry.SendToRoom(roomID, protocol.ParticipantChange{
		Type:         msgType,
		UserID:       changedUserID,
		Participants: participants,
	}, "")
}

// Roster returns a snapshot of roomID's current participants.
func (c *Coordinator) Roster(roomID string) []protocol.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	roster := c.rosters[roomID]
	out := make([]protocol.Participant, 0, len(roster))
	for _, p := range roster {
		out = append(out, p)
	}
	return out
}
