// Package registry implements the connection registry: the set of live
// transport channels per user, room membership, and fan-out primitives.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// errSendTimeout is returned by sendWithTimeout when a channel's Send
// doesn't return within the registry's configured sendTimeout.
var errSendTimeout = errors.New("registry: send timed out")

// Channel is a live transport channel belonging to a single user. The
// registry never interprets the message payload; it only routes it.
type Channel interface {
	Send(message interface{}) error
	Close() error
}

// Registry maps users to channels and rooms, guarding both under one lock
// since membership and channel-set mutations always happen together.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[Channel]struct{}
	rooms    map[string]map[string]struct{}
	userRoom map[string]string

	sendTimeout time.Duration
}

// New creates an empty registry. sendTimeout bounds each per-recipient send
// in SendToRoom so one slow listener cannot stall fan-out to the others.
func New(sendTimeout time.Duration) *Registry {
	return &Registry{
		channels:    make(map[string]map[Channel]struct{}),
		rooms:       make(map[string]map[string]struct{}),
		userRoom:    make(map[string]string),
		sendTimeout: sendTimeout,
	}
}

// Register adds a channel for userID, joins roomID if not already a member,
// and records the user's current room.
func (r *Registry) Register(userID, roomID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channels[userID] == nil {
		r.channels[userID] = make(map[Channel]struct{})
	}
	r.channels[userID][ch] = struct{}{}

	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]struct{})
	}
	r.rooms[roomID][userID] = struct{}{}
	r.userRoom[userID] = roomID
}

// Unregister removes ch from userID's channel set. If no channels remain,
// the user is removed from their room, and an empty room is dropped.
func (r *Registry) Unregister(userID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(userID, ch)
}

func (r *Registry) unregisterLocked(userID string, ch Channel) {
	set, ok := r.channels[userID]
	if !ok {
		return
	}
	delete(set, ch)
	if len(set) > 0 {
		return
	}

	delete(r.channels, userID)
	roomID, ok := r.userRoom[userID]
	if !ok {
		return
	}
	delete(r.userRoom, userID)
	if members, ok := r.rooms[roomID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// SendToUser attempts delivery on every live channel for userID. Channels
// that fail are closed and removed; if all channels fail the user is
// unregistered entirely.
func (r *Registry) SendToUser(userID string, message interface{}) {
	r.mu.RLock()
	set := r.channels[userID]
	chans := make([]Channel, 0, len(set))
	for ch := range set {
		chans = append(chans, ch)
	}
	r.mu.RUnlock()

	for _, ch := range chans {
		if err := r.sendWithTimeout(ch, message); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Debug("channel send failed, closing")
			_ = ch.Close()
			r.mu.Lock()
			r.unregisterLocked(userID, ch)
			r.mu.Unlock()
		}
	}
}

// sendWithTimeout bounds ch.Send by r.sendTimeout so one slow or wedged
// recipient can't stall fan-out to the rest of the room. A zero timeout
// disables the bound and calls Send directly.
func (r *Registry) sendWithTimeout(ch Channel, message interface{}) error {
	if r.sendTimeout <= 0 {
		return ch.Send(message)
	}

	done := make(chan error, 1)
	go func() { done <- ch.Send(message) }()

	select {
	case err := <-done:
		return err
	case <-time.After(r.sendTimeout):
		return errSendTimeout
	}
}

// SendToRoom concurrently sends message to every member of roomID except
// exclude (pass "" to exclude no one).
func (r *Registry) SendToRoom(roomID string, message interface{}, exclude string) {
	for _, userID := range r.Members(roomID) {
		if userID == exclude {
			continue
		}
		go r.SendToUser(userID, message)
	}
}

// Members returns a snapshot of the current user IDs in roomID.
func (r *Registry) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.rooms[roomID]
	out := make([]string, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	return out
}

// RoomOf returns the room a user currently belongs to, if any.
func (r *Registry) RoomOf(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.userRoom[userID]
	return roomID, ok
}

// Present reports whether userID has at least one live channel.
func (r *Registry) Present(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[userID]) > 0
}
