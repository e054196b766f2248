package call

import "time"

// Status is the connection state of the single live call session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusPaused     Status = "paused"
	StatusEnded      Status = "ended"
	StatusError      Status = "error"
)

// Role identifies which side of the call produced an utterance.
type Role string

const (
	RoleLocal  Role = "local"
	RoleRemote Role = "remote"
)

// Emotion is the closed set of remote-supplied emotion tags. Values outside
// the set collapse to EmotionUnspecified; the tag is otherwise opaque here.
type Emotion string

const (
	EmotionUnspecified Emotion = "unspecified"
	EmotionNeutral     Emotion = "neutral"
	EmotionAngry       Emotion = "angry"
	EmotionFrustrated  Emotion = "frustrated"
	EmotionAnxious     Emotion = "anxious"
	EmotionSatisfied   Emotion = "satisfied"
)

// ParseEmotion normalizes a free-form tag into the closed set.
func ParseEmotion(raw string) Emotion {
	switch Emotion(raw) {
	case EmotionNeutral, EmotionAngry, EmotionFrustrated, EmotionAnxious, EmotionSatisfied:
		return Emotion(raw)
	default:
		return EmotionUnspecified
	}
}

// TranscriptEntry is one recorded utterance. Entries are append-only and
// never mutated; Seq is monotonic within a session.
type TranscriptEntry struct {
	Seq       int       `json:"seq"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Emotion   Emotion   `json:"emotion"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a snapshot of the one live call. DurationSec advances only while
// the status is connected (pausing suspends it).
type Session struct {
	ID            string            `json:"id"`
	RoomName      string            `json:"room_name"`
	Identity      string            `json:"identity"`
	ScenarioID    string            `json:"scenario_id"`
	Status        Status            `json:"status"`
	Muted         bool              `json:"muted"`
	AgentSpeaking bool              `json:"agent_speaking"`
	AwaitingAudio bool              `json:"awaiting_audio"`
	DurationSec   int               `json:"duration_sec"`
	LastError     string            `json:"last_error,omitempty"`
	Transcript    []TranscriptEntry `json:"transcript"`
}
