// Package transport implements the websocket transport of §6: one
// connection per user carrying the JSON message envelopes that drive the
// Room Coordinator and pipeline.
package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/relaycore/voxbridge/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Conn wraps one websocket connection and implements registry.Channel.
// gorilla/websocket permits only one concurrent writer per connection, so
// every outbound message is funneled through a single writePump goroutine
// reading off a buffered channel.
type Conn struct {
	ws     *websocket.Conn
	userID string
	roomID string

	send chan interface{}

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(ws *websocket.Conn, userID, roomID string) *Conn {
	return &Conn{
		ws:     ws,
		userID: userID,
		roomID: roomID,
		send:   make(chan interface{}, sendBuffer),
		closed: make(chan struct{}),
	}
}

// Send enqueues message for delivery. It returns an error (satisfying
// registry.Channel) if the connection is closed or the outbound buffer is
// full, rather than blocking the registry's fan-out.
func (c *Conn) Send(message interface{}) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.send <- message:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		return errSendBufferFull
	}
}

// Close shuts down the connection, safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
	return nil
}

// writePump drains c.send and writes each message as JSON, also sending
// periodic pings to detect a dead peer.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				logrus.WithError(err).WithField("user_id", c.userID).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// readLoop blocks reading inbound frames and dispatches each to handle.
// It returns when the connection closes or a read error occurs.
func (c *Conn) readLoop(handle func(raw []byte)) {
	defer c.Close()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			logrus.WithError(err).WithField("user_id", c.userID).Debug("websocket read loop ending")
			return
		}
		handle(data)
	}
}

// peekType sniffs the "type" discriminator without committing to a concrete
// message struct.
func peekType(raw []byte) string {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.Type
}
