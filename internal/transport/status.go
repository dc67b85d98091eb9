package transport

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/relaycore/voxbridge/internal/pipeline"
	"github.com/relaycore/voxbridge/internal/room"
)

const statusPushInterval = 5 * time.Second

// statusPayload is a read-only snapshot of one room's state.
type statusPayload struct {
	RoomID          string   `json:"room_id"`
	Participants    []string `json:"participants"`
	ActiveSpeakers  int      `json:"active_speakers"`
}

// StatusServer serves a read-only websocket reporting room membership and
// active pipeline count, for a monitoring dashboard. It never mutates
// pipeline or registry state.
type StatusServer struct {
	upgrader websocket.Upgrader
	room     *room.Coordinator
	pipeline *pipeline.Manager
}

// NewStatusServer creates a status server over rc/pl.
func NewStatusServer(rc *room.Coordinator, pl *pipeline.Manager) *StatusServer {
	return &StatusServer{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		room:     rc,
		pipeline: pl,
	}
}

// ServeHTTP upgrades the connection and pushes a status snapshot for
// room_id every statusPushInterval until the client disconnects.
func (s *StatusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Debug("status websocket upgrade failed")
		return
	}
	defer ws.Close()

	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	s.push(ws, roomID)
	for range ticker.C {
		if err := s.push(ws, roomID); err != nil {
			return
		}
	}
}

func (s *StatusServer) push(ws *websocket.Conn, roomID string) error {
	participants := s.room.Roster(roomID)
	ids := make([]string, 0, len(participants))
	active := 0
	for _, p := range participants {
		ids = append(ids, p.ID)
		if _, ok := s.pipeline.Task(p.ID); ok {
			active++
		}
	}

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(statusPayload{RoomID: roomID, Participants: ids, ActiveSpeakers: active})
}
