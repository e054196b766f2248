package speech

import "errors"

// Platform recognizer error codes. The taxonomy the manager applies to these
// lives in internal/reliability.
const (
	ErrorPermissionDenied = "permission-denied"
	ErrorNoAudioDevice    = "no-audio-device"
	ErrorNoSpeech         = "no-speech"
	ErrorAborted          = "aborted"
	ErrorNetwork          = "network"
)

// ErrUnavailable is returned when no speech recognition capability exists on
// this platform. Callers should treat it as a normal condition: the voice
// call works without local transcription.
var ErrUnavailable = errors.New("speech recognition not available on this platform")

// Config selects continuous streaming recognition with interim results in a
// fixed language.
type Config struct {
	Continuous     bool
	InterimResults bool
	Language       string
}

// Result is one recognition event: zero or more finalized segments plus at
// most one in-progress interim segment.
type Result struct {
	Final   []string
	Interim string
}

// Handlers are the four callback slots a recognizer exposes.
type Handlers struct {
	OnStart  func()
	OnResult func(Result)
	OnError  func(code string)
	OnEnd    func()
}

// Recognizer is one live recognition instance. Platforms end instances
// periodically even without error; the manager restarts them.
type Recognizer interface {
	Start() error
	Abort()
}

// Engine feature-detects the platform capability and constructs recognizers.
type Engine interface {
	Available() bool
	New(cfg Config, h Handlers) (Recognizer, error)
}
