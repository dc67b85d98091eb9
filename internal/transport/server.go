package transport

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/relaycore/voxbridge/internal/intake"
	"github.com/relaycore/voxbridge/internal/protocol"
	"github.com/relaycore/voxbridge/internal/room"
)

// Server upgrades incoming HTTP requests to websocket connections and
// dispatches each connection's inbound messages into the Room Coordinator
// and intake buffer. It holds no pipeline or registry state of its own.
type Server struct {
	upgrader  websocket.Upgrader
	room      *room.Coordinator
	intakeBuf *intake.Buffer
	validate  *validator.Validate
}

// New creates a transport server. The upgrader accepts any origin, matching
// a same-origin-agnostic relay deployed behind a reverse proxy.
func New(rc *room.Coordinator, intakeBuf *intake.Buffer) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		room:      rc,
		intakeBuf: intakeBuf,
		validate:  validator.New(),
	}
}

// ServeHTTP upgrades the connection and runs its read/write pumps until it
// closes. Query parameters room_id, user_id, username, and full_name
// identify the joining participant.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	userID := r.URL.Query().Get("user_id")
	if roomID == "" || userID == "" {
		http.Error(w, "room_id and user_id are required", http.StatusBadRequest)
		return
	}
	username := r.URL.Query().Get("username")
	fullName := r.URL.Query().Get("full_name")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	correlationID := uuid.New().String()
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID, "correlation_id": correlationID})

	conn := newConn(ws, userID, roomID)
	go conn.writePump()

	joined := false
	defer func() {
		if joined {
			s.room.Leave(conn, userID, roomID)
		} else {
			conn.Close()
		}
		log.Debug("connection closed")
	}()

	conn.readLoop(func(raw []byte) {
		switch peekType(raw) {
		case protocol.TypeInitSettings:
			var msg protocol.InitSettings
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.WithError(err).Debug("malformed init_settings")
				return
			}
			if joined {
				return // a speaker may only join once per connection
			}
			joined = true
			s.room.Join(conn, userID, roomID, username, fullName, msg)

		case protocol.TypeAudioChunk:
			if !joined {
				return
			}
			var msg protocol.AudioChunk
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.WithError(err).Debug("malformed audio_chunk")
				return
			}
			pcm, err := decodeAudio(msg.AudioData)
			if err != nil {
				log.WithError(err).Debug("audio_chunk decode failed")
				return
			}
			s.intakeBuf.Push(userID, pcm)

		case protocol.TypeLanguageUpdate:
			if !joined {
				return
			}
			var msg protocol.LanguageUpdate
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.WithError(err).Debug("malformed language_update")
				return
			}
			s.room.LanguageUpdate(userID, roomID, msg)
			conn.Send(protocol.LanguageUpdated{
				Type:           protocol.TypeLanguageUpdated,
				InputLanguage:  msg.InputLanguage,
				OutputLanguage: msg.OutputLanguage,
				Message:        "updated",
			})

		case protocol.TypeControl:
			if !joined {
				return
			}
			var msg protocol.Control
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.WithError(err).Debug("malformed control message")
				return
			}
			if err := s.validate.Struct(msg); err != nil {
				log.WithError(err).Debug("invalid control action")
				return
			}
			s.room.Control(userID, msg.Action)
			switch msg.Action {
			case protocol.ActionMute, protocol.ActionUnmute:
				conn.Send(protocol.MuteStatus{Type: protocol.TypeMuteStatus, UserID: userID, Muted: msg.Action == protocol.ActionMute})
			case protocol.ActionPauseTranslation, protocol.ActionResumeTranslation:
				conn.Send(protocol.TranslationStatus{Type: protocol.TypeTranslationStatus, UserID: userID, Paused: msg.Action == protocol.ActionPauseTranslation})
			}

		case protocol.TypePing:
			conn.Send(protocol.Pong{Type: protocol.TypePong})

		default:
			log.WithField("raw_type", peekType(raw)).Debug("unrecognized inbound message type")
		}
	})
}

// decodeAudio accepts either a bare base64 string or a data URL
// ("data:audio/...;base64,XXXX") and returns the decoded PCM bytes.
func decodeAudio(s string) ([]byte, error) {
	if idx := strings.Index(s, ","); idx >= 0 && strings.HasPrefix(s, "data:") {
		s = s[idx+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}
