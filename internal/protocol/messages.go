// Package protocol defines the JSON message envelopes exchanged over the
// per-user transport channel (§6): a type-discriminated set of inbound
// client messages and outbound server messages.
package protocol

// Inbound message types (client -> server).
const (
	TypeInitSettings    = "init_settings"
	TypeAudioChunk      = "audio_chunk"
	TypeLanguageUpdate  = "language_update"
	TypeControl         = "control"
	TypePing            = "ping"
)

// Outbound message types (server -> client).
const (
	TypeConnected           = "connected"
	TypeParticipantJoined   = "participant_joined"
	TypeParticipantLeft     = "participant_left"
	TypePartialTranscript   = "partial_transcript"
	TypePartialTranslation  = "partial_translation"
	TypeTranslatedAudio     = "translated_audio"
	TypeLanguageUpdated     = "language_updated"
	TypeTranslationError    = "translation_error"
	TypeMuteStatus          = "mute_status"
	TypeTranslationStatus   = "translation_status"
	TypePong                = "pong"
)

// Control actions recognized by a "control" inbound message.
const (
	ActionMute              = "mute"
	ActionUnmute            = "unmute"
	ActionPauseTranslation  = "pause_translation"
	ActionResumeTranslation = "resume_translation"
)

// Model gateway stages named in translation_error messages.
const (
	StageASR = "asr"
	StageMT  = "mt"
	StageTTS = "tts"
)

// Envelope is used only to sniff the "type" discriminator before decoding
// into a concrete inbound message.
type Envelope struct {
	Type string `json:"type"`
}

// InitSettings is the inbound message establishing a speaker's initial
// language preferences.
type InitSettings struct {
	Type                string   `json:"type"`
	InputLanguage       string   `json:"input_language"`
	OutputLanguage      string   `json:"output_language"`
	SpeaksLanguages     []string `json:"speaks_languages"`
	UnderstandsLanguages []string `json:"understands_languages"`
}

// AudioChunk carries base64-encoded raw PCM s16le 16kHz mono, or a data URL.
type AudioChunk struct {
	Type      string `json:"type"`
	AudioData string `json:"audio_data"`
}

// LanguageUpdate updates a speaker's language preferences mid-session.
type LanguageUpdate struct {
	Type                 string    `json:"type"`
	InputLanguage        string    `json:"input_language"`
	OutputLanguage       string    `json:"output_language"`
	SpeaksLanguages      *[]string `json:"speaks_languages,omitempty"`
	UnderstandsLanguages *[]string `json:"understands_languages,omitempty"`
}

// Control carries a mute/unmute/pause/resume action.
type Control struct {
	Type   string `json:"type"`
	Action string `json:"action" validate:"oneof=mute unmute pause_translation resume_translation"`
}

// Participant describes one room member in a roster update.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Name     string `json:"name"`
}

// Connected acknowledges a successful join.
type Connected struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	RoomID  string `json:"room_id"`
	Message string `json:"message"`
}

// ParticipantChange reports a roster change to every room member.
type ParticipantChange struct {
	Type         string        `json:"type"`
	UserID       string        `json:"user_id"`
	Participants []Participant `json:"participants"`
}

// PartialTranscript is the speaker's recognized words, broadcast to room.
type PartialTranscript struct {
	Type      string  `json:"type"`
	UserID    string  `json:"user_id"`
	Text      string  `json:"text"`
	Language  string  `json:"language"`
	Timestamp float64 `json:"timestamp"`
}

// PartialTranslation is an advisory sent to a single listener.
type PartialTranslation struct {
	Type       string  `json:"type"`
	FromUserID string  `json:"from_user_id"`
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Timestamp  float64 `json:"timestamp"`
}

// AudioPayload is the inner audio object of a translated_audio message.
type AudioPayload struct {
	Data       string `json:"data"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// TranslatedAudio is the ordered, per-listener delta audio delivery.
type TranslatedAudio struct {
	Type             string       `json:"type"`
	UserID           string       `json:"user_id"`
	Seq              uint64       `json:"seq"`
	Audio            AudioPayload `json:"audio"`
	AudioData        string       `json:"audio_data,omitempty"` // deprecated mirror of audio.data
	OriginalText     string       `json:"original_text"`
	DetectedLanguage string       `json:"detected_language"`
	Text             string       `json:"text"`
	Language         string       `json:"language"`
	VoiceFallback    bool         `json:"voice_fallback"`
	Timestamp        float64      `json:"timestamp"`
}

// LanguageUpdated acknowledges a language_update.
type LanguageUpdated struct {
	Type           string `json:"type"`
	InputLanguage  string `json:"input_language"`
	OutputLanguage string `json:"output_language"`
	Message        string `json:"message"`
}

// TranslationError reports a model-gateway failure for a given stage.
type TranslationError struct {
	Type    string `json:"type"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// MuteStatus acknowledges a mute/unmute control action.
type MuteStatus struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Muted  bool   `json:"muted"`
}

// TranslationStatus acknowledges a pause/resume_translation control action.
type TranslationStatus struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Paused bool   `json:"paused"`
}

// Pong replies to a ping.
type Pong struct {
	Type string `json:"type"`
}
