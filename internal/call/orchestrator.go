package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/axtra/traincall/internal/credential"
	"github.com/axtra/traincall/internal/observability"
	"github.com/axtra/traincall/internal/transport"
)

// ErrSuperseded is returned when a connect attempt's result arrives after the
// session it belonged to was torn down or replaced. The stale result is
// discarded; it never resurrects the old session.
var ErrSuperseded = errors.New("connect attempt superseded")

// CredentialSource fetches join grants. *credential.Client implements it.
type CredentialSource interface {
	Fetch(ctx context.Context, scenarioID string) (credential.Grant, error)
}

// Orchestrator owns the single live call session: transport lifecycle,
// microphone and audio-sink resources, the duration timer, and the transcript
// log. At most one transport connection exists at a time; starting a new
// connect tears the previous session down first.
type Orchestrator struct {
	creds    CredentialSource
	rooms    transport.Factory
	identity string
	metrics  *observability.Metrics

	mu               sync.Mutex
	sess             Session
	room             transport.Room
	sink             transport.AudioSink
	gen              int
	nextSeq          int
	pumpStop         chan struct{}
	tickStop         chan struct{}
	tickEvery        time.Duration
	connectStartedAt time.Time
	onTranscript     func(TranscriptEntry)
}

func NewOrchestrator(creds CredentialSource, rooms transport.Factory, identity string, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		creds:     creds,
		rooms:     rooms,
		identity:  identity,
		metrics:   metrics,
		sess:      Session{Status: StatusIdle},
		tickEvery: time.Second,
	}
}

// SetTranscriptHook registers a hook invoked for every appended entry.
// The hook runs outside the orchestrator's lock.
func (o *Orchestrator) SetTranscriptHook(hook func(TranscriptEntry)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onTranscript = hook
}

// Connect drives idle → connecting → connected for one scenario: credential
// fetch, transport connect, microphone enable, in that order. Any failure
// transitions to error with full resource cleanup; a half-opened transport
// connection is never left behind.
func (o *Orchestrator) Connect(ctx context.Context, scenarioID string) error {
	o.mu.Lock()
	o.releaseLocked()
	g := o.gen
	o.sess = Session{
		ID:         uuid.NewString(),
		Identity:   o.identity,
		ScenarioID: scenarioID,
		Status:     StatusConnecting,
	}
	o.nextSeq = 0
	o.connectStartedAt = time.Now()
	o.metrics.CallEvents.WithLabelValues("connect_requested").Inc()
	o.mu.Unlock()

	grant, err := o.creds.Fetch(ctx, scenarioID)
	if err != nil {
		return o.failConnect(g, fmt.Sprintf("credential request failed: %v", err))
	}

	o.mu.Lock()
	if o.gen != g {
		o.mu.Unlock()
		return ErrSuperseded
	}
	room := o.rooms.NewRoom()
	o.room = room
	o.sess.RoomName = grant.RoomName
	stop := make(chan struct{})
	o.pumpStop = stop
	o.mu.Unlock()

	// The pump consumes transport events before Connect is issued, so no
	// state transition in the connect window can be missed.
	go o.pump(g, room, stop)

	if err := room.Connect(ctx, grant.URL, grant.Token, transport.ConnectOptions{AutoSubscribe: true}); err != nil {
		return o.failConnect(g, fmt.Sprintf("transport connect failed: %v", err))
	}
	if err := room.SetMicrophoneEnabled(ctx, true); err != nil {
		return o.failConnect(g, fmt.Sprintf("microphone enable failed: %v", err))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != g {
		return ErrSuperseded
	}
	o.sess.Muted = !room.MicrophoneEnabled()
	return nil
}

// Disconnect is unconditional and idempotent from any state, including idle
// and mid-connecting. Each acquired resource is released exactly once; all
// session fields reset.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	held := o.room != nil || o.sink != nil || o.tickStop != nil
	o.releaseLocked()
	o.sess = Session{Status: StatusEnded}
	o.nextSeq = 0
	if held {
		o.metrics.CallEvents.WithLabelValues("disconnected").Inc()
		o.metrics.ActiveCalls.Set(0)
	}
	o.mu.Unlock()
}

// ToggleMute flips the published-audio enablement. The mute flag is derived
// from the transport's reported enablement after the call, never tracked
// independently, so out-of-band transport changes cannot cause drift.
func (o *Orchestrator) ToggleMute(ctx context.Context) error {
	o.mu.Lock()
	room := o.room
	o.mu.Unlock()
	if room == nil {
		return nil
	}

	if err := room.SetMicrophoneEnabled(ctx, !room.MicrophoneEnabled()); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.room == room {
		o.sess.Muted = !room.MicrophoneEnabled()
		o.metrics.CallEvents.WithLabelValues("mute_toggled").Inc()
	}
	return nil
}

// Pause puts the call on hold locally. Hold is a UI affordance only: the
// transport connection stays up, microphone audio keeps publishing, and the
// remote peer is not informed. Only the duration counter suspends.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess.Status == StatusConnected {
		o.sess.Status = StatusPaused
		o.metrics.CallEvents.WithLabelValues("paused").Inc()
	}
}

func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess.Status == StatusPaused {
		o.sess.Status = StatusConnected
		o.metrics.CallEvents.WithLabelValues("resumed").Inc()
	}
}

// EnableAudio retries remote-audio playback under a user gesture after the
// platform blocked autoplay. It clears the awaiting-audio sub-state on
// success; it is not a connection-level operation.
func (o *Orchestrator) EnableAudio(ctx context.Context) error {
	o.mu.Lock()
	room := o.room
	sink := o.sink
	o.mu.Unlock()
	if room == nil {
		return nil
	}

	if err := room.StartAudio(ctx); err != nil {
		return err
	}
	if sink != nil {
		if err := sink.Play(); err != nil {
			return err
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.room == room {
		o.sess.AwaitingAudio = false
		o.metrics.CallEvents.WithLabelValues("audio_enabled").Inc()
	}
	return nil
}

// AddTranscript appends one utterance with a session-monotonic sequence.
func (o *Orchestrator) AddTranscript(role Role, text string, emotion Emotion) TranscriptEntry {
	o.mu.Lock()
	entry := TranscriptEntry{
		Seq:       o.nextSeq,
		Role:      role,
		Text:      text,
		Emotion:   emotion,
		Timestamp: time.Now().UTC(),
	}
	o.nextSeq++
	o.sess.Transcript = append(o.sess.Transcript, entry)
	hook := o.onTranscript
	o.mu.Unlock()

	o.metrics.TranscriptEntries.WithLabelValues(string(role)).Inc()
	if hook != nil {
		hook(entry)
	}
	return entry
}

// Snapshot returns a copy of the session for display.
func (o *Orchestrator) Snapshot() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.sess
	s.Transcript = append([]TranscriptEntry(nil), o.sess.Transcript...)
	return s
}

func (o *Orchestrator) pump(g int, room transport.Room, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-room.Events():
			if !ok {
				return
			}
			o.handleEvent(g, ev)
		}
	}
}

// handleEvent is the single intake for transport events; all state machine
// transitions driven by the transport live in this switch.
func (o *Orchestrator) handleEvent(g int, ev transport.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if g != o.gen {
		return
	}

	switch ev.Type {
	case transport.EventConnectionStateChanged:
		switch ev.State {
		case transport.StateConnected:
			if o.sess.Status == StatusConnecting {
				o.sess.Status = StatusConnected
				o.metrics.ObserveConnectLatency(time.Since(o.connectStartedAt))
				o.metrics.CallEvents.WithLabelValues("connected").Inc()
				o.metrics.ActiveCalls.Set(1)
				o.startTickerLocked()
			}
		case transport.StateDisconnected:
			if o.sess.Status == StatusConnecting || o.sess.Status == StatusConnected || o.sess.Status == StatusPaused {
				o.releaseLocked()
				o.sess.Status = StatusEnded
				o.metrics.CallEvents.WithLabelValues("remote_disconnected").Inc()
				o.metrics.ActiveCalls.Set(0)
			}
		}

	case transport.EventTrackSubscribed:
		if ev.Track == nil || ev.Track.Kind() != transport.TrackAudio {
			return
		}
		// At most one sink exists: release any stale handle before attaching.
		if o.sink != nil {
			_ = o.sink.Close()
			o.sink = nil
		}
		sink, err := ev.Track.Attach()
		if err != nil {
			o.sess.LastError = fmt.Sprintf("attach remote audio failed: %v", err)
			return
		}
		// Speaking is only reported once a sink actually holds the track.
		o.sess.AgentSpeaking = true
		o.sink = sink
		if err := sink.Play(); err != nil {
			if errors.Is(err, transport.ErrPlaybackBlocked) {
				o.sess.AwaitingAudio = true
				o.metrics.CallEvents.WithLabelValues("audio_blocked").Inc()
			} else {
				o.sess.LastError = fmt.Sprintf("remote audio playback failed: %v", err)
			}
			return
		}
		o.sess.AwaitingAudio = false

	case transport.EventTrackUnsubscribed:
		if ev.Track == nil || ev.Track.Kind() != transport.TrackAudio {
			return
		}
		o.sess.AgentSpeaking = false
		if o.sink != nil {
			_ = o.sink.Close()
			o.sink = nil
		}

	case transport.EventAudioPlaybackChanged:
		o.sess.AwaitingAudio = !ev.CanPlayback
	}
}

func (o *Orchestrator) failConnect(g int, msg string) error {
	o.mu.Lock()
	if o.gen != g {
		o.mu.Unlock()
		return ErrSuperseded
	}
	o.releaseLocked()
	o.sess.Status = StatusError
	o.sess.LastError = msg
	o.metrics.CallEvents.WithLabelValues("connect_failed").Inc()
	o.mu.Unlock()
	return errors.New(msg)
}

// releaseLocked tears down every owned resource exactly once: duration
// timer, event pump, audio sink, transport room. Bumping the generation
// invalidates in-flight connect results. Session fields are left for the
// caller to set, so error paths keep their message.
func (o *Orchestrator) releaseLocked() {
	o.gen++
	if o.tickStop != nil {
		close(o.tickStop)
		o.tickStop = nil
	}
	if o.pumpStop != nil {
		close(o.pumpStop)
		o.pumpStop = nil
	}
	if o.sink != nil {
		_ = o.sink.Close()
		o.sink = nil
	}
	if o.room != nil {
		o.room.Disconnect()
		o.room = nil
	}
}

func (o *Orchestrator) startTickerLocked() {
	if o.tickStop != nil {
		close(o.tickStop)
	}
	stop := make(chan struct{})
	o.tickStop = stop

	go func() {
		ticker := time.NewTicker(o.tickEvery)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				o.mu.Lock()
				if o.sess.Status == StatusConnected {
					o.sess.DurationSec++
				}
				o.mu.Unlock()
			}
		}
	}()
}
