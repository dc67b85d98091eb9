package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu     sync.Mutex
	sent   []interface{}
	failOn int
	closed bool
}

func (f *fakeChannel) Send(msg interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn > 0 && len(f.sent) >= f.failOn {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestRegisterAndMembers(t *testing.T) {
	r := New(time.Second)
	chA := &fakeChannel{}
	chB := &fakeChannel{}

	r.Register("alice", "room1", chA)
	r.Register("bob", "room1", chB)

	members := r.Members("room1")
	assert.ElementsMatch(t, []string{"alice", "bob"}, members)
	assert.True(t, r.Present("alice"))
}

func TestUnregisterDrainsRoom(t *testing.T) {
	r := New(time.Second)
	chA := &fakeChannel{}
	r.Register("alice", "room1", chA)
	r.Unregister("alice", chA)

	assert.False(t, r.Present("alice"))
	assert.Empty(t, r.Members("room1"))
}

func TestMultipleChannelsPerUser(t *testing.T) {
	r := New(time.Second)
	audio := &fakeChannel{}
	status := &fakeChannel{}
	r.Register("alice", "room1", audio)
	r.Register("alice", "room1", status)

	r.Unregister("alice", audio)
	assert.True(t, r.Present("alice"), "user stays present while any channel is live")

	r.Unregister("alice", status)
	assert.False(t, r.Present("alice"))
}

func TestSendToUserRemovesFailingChannel(t *testing.T) {
	r := New(time.Second)
	bad := &fakeChannel{failOn: 0}
	bad.failOn = 1 // fail on first send attempt recorded
	bad.sent = []interface{}{"seed"}
	r.Register("alice", "room1", bad)

	r.SendToUser("alice", "hello")

	assert.True(t, bad.closed)
	assert.False(t, r.Present("alice"), "unregistered once all channels fail")
}

func TestSendToRoomExcludesSenderAndIsolatesFailures(t *testing.T) {
	r := New(time.Second)
	a := &fakeChannel{}
	b := &fakeChannel{}
	c := &fakeChannel{failOn: 1}
	c.sent = []interface{}{"seed"}

	r.Register("a", "room1", a)
	r.Register("b", "room1", b)
	r.Register("c", "room1", c)

	r.SendToRoom("room1", "hi", "a")
	time.Sleep(50 * time.Millisecond)

	a.mu.Lock()
	assert.Empty(t, a.sent)
	a.mu.Unlock()

	b.mu.Lock()
	require.Len(t, b.sent, 1)
	assert.Equal(t, "hi", b.sent[0])
	b.mu.Unlock()

	assert.True(t, r.Present("b"))
	assert.False(t, r.Present("c"), "failed channel isolated, doesn't affect b")
}
