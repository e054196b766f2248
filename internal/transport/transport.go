package transport

import (
	"context"
	"errors"
)

// ConnectionState mirrors the media transport's reported state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// ErrPlaybackBlocked is returned by AudioSink.Play when the platform refuses
// autoplay without a prior user gesture. It is a recoverable condition, not a
// connection failure.
var ErrPlaybackBlocked = errors.New("audio playback blocked: user gesture required")

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// AudioSink is an owned handle to remote-audio playback. Acquire with
// Track.Attach, release with Close; acquisition and release are symmetric so
// duplicate sinks cannot exist by construction.
type AudioSink interface {
	Play() error
	Close() error
}

// Track is a remote media track published by the far side.
type Track interface {
	ID() string
	Kind() TrackKind
	Attach() (AudioSink, error)
}

type EventType string

const (
	EventConnectionStateChanged EventType = "connection_state_changed"
	EventTrackSubscribed        EventType = "track_subscribed"
	EventTrackUnsubscribed      EventType = "track_unsubscribed"
	EventAudioPlaybackChanged   EventType = "audio_playback_changed"
)

// Event is the tagged variant fed into the orchestrator's intake. Exactly the
// fields for the tagged type are populated.
type Event struct {
	Type        EventType
	State       ConnectionState
	Track       Track
	Participant string
	CanPlayback bool
}

type ConnectOptions struct {
	AutoSubscribe bool
}

// Room is the narrow capability interface over the external media session.
// Events must be consumed before Connect is called so no state transition in
// the connect window is missed.
type Room interface {
	Connect(ctx context.Context, url, token string, opts ConnectOptions) error
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
	MicrophoneEnabled() bool
	StartAudio(ctx context.Context) error
	Disconnect()
	Events() <-chan Event
}

// Factory creates one Room per call session.
type Factory interface {
	NewRoom() Room
}
