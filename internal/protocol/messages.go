package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies transcript-feed websocket payload variants.
type MessageType string

const (
	TypeClientHello      MessageType = "client_hello"
	TypeClientTranscript MessageType = "client_transcript"
	TypeClientBye        MessageType = "client_bye"
	TypeTranscriptEntry  MessageType = "transcript_entry"
	TypeSessionEnded     MessageType = "session_ended"
	TypeErrorEvent       MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientHello registers a console connection against one room. Sent once,
// before any transcript traffic.
type ClientHello struct {
	Type     MessageType `json:"type"`
	RoomName string      `json:"room_name"`
	Identity string      `json:"identity"`
}

// ClientTranscript carries one utterance from a console to the feed. Seq is
// the session-monotonic sequence assigned by the console.
type ClientTranscript struct {
	Type     MessageType `json:"type"`
	RoomName string      `json:"room_name"`
	Seq      int         `json:"seq"`
	Role     string      `json:"role"`
	Text     string      `json:"text"`
	Emotion  string      `json:"emotion,omitempty"`
	TSMs     int64       `json:"ts_ms"`
}

// ClientBye announces that the console's session ended.
type ClientBye struct {
	Type        MessageType `json:"type"`
	RoomName    string      `json:"room_name"`
	DurationSec int         `json:"duration_sec"`
}

// TranscriptEntry is the broadcast form of a recorded utterance.
type TranscriptEntry struct {
	Type     MessageType `json:"type"`
	RoomName string      `json:"room_name"`
	Seq      int         `json:"seq"`
	Role     string      `json:"role"`
	Text     string      `json:"text"`
	Emotion  string      `json:"emotion,omitempty"`
	TSMs     int64       `json:"ts_ms"`
}

type SessionEnded struct {
	Type        MessageType `json:"type"`
	RoomName    string      `json:"room_name"`
	DurationSec int         `json:"duration_sec"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

// ParseClientMessage decodes and validates one console-originated frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientHello:
		var msg ClientHello
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.RoomName == "" || msg.Identity == "" {
			return nil, errors.New("invalid client_hello")
		}
		return msg, nil
	case TypeClientTranscript:
		var msg ClientTranscript
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.RoomName == "" || msg.Text == "" || msg.Seq < 0 {
			return nil, errors.New("invalid client_transcript")
		}
		if msg.Role != "local" && msg.Role != "remote" {
			return nil, fmt.Errorf("invalid client_transcript role %q", msg.Role)
		}
		return msg, nil
	case TypeClientBye:
		var msg ClientBye
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.RoomName == "" {
			return nil, errors.New("invalid client_bye")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
