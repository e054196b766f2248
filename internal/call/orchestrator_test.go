package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/axtra/traincall/internal/credential"
	"github.com/axtra/traincall/internal/observability"
	"github.com/axtra/traincall/internal/transport"
)

type fakeCreds struct {
	mu    sync.Mutex
	grant credential.Grant
	err   error
	calls int
	// block, when set, holds Fetch in flight until the channel is closed.
	block chan struct{}
}

func (f *fakeCreds) Fetch(_ context.Context, _ string) (credential.Grant, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	err := f.err
	grant := f.grant
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return credential.Grant{}, err
	}
	return grant, nil
}

func (f *fakeCreds) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestOrchestrator(t *testing.T, rooms ...*transport.MockRoom) (*Orchestrator, *fakeCreds) {
	t.Helper()
	creds := &fakeCreds{grant: credential.Grant{
		Token:    "signed-token",
		URL:      "wss://media.test",
		RoomName: "axtra-billing-trainee-1-1700000000000",
	}}
	factory := &transport.MockFactory{Rooms: rooms}
	metrics := observability.NewMetrics(fmt.Sprintf("test_call_%d", time.Now().UnixNano()))
	o := NewOrchestrator(creds, factory, "trainee-1", metrics)
	o.tickEvery = 5 * time.Millisecond
	return o, creds
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestConnectReachesConnected(t *testing.T) {
	room := transport.NewMockRoom()
	o, creds := newTestOrchestrator(t, room)

	if err := o.Connect(context.Background(), "billing"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "connected status", func() bool { return o.Snapshot().Status == StatusConnected })

	s := o.Snapshot()
	if s.ScenarioID != "billing" || s.RoomName != creds.grant.RoomName || s.ID == "" {
		t.Fatalf("session = %+v", s)
	}
	if s.Muted {
		t.Fatalf("fresh session should publish unmuted")
	}
	if room.LastToken != "signed-token" || room.LastURL != "wss://media.test" {
		t.Fatalf("room joined with token=%q url=%q", room.LastToken, room.LastURL)
	}
	if !room.LastOptions.AutoSubscribe {
		t.Fatalf("connect should auto-subscribe")
	}
	if !room.MicrophoneEnabled() {
		t.Fatalf("microphone should be enabled after connect")
	}
}

func TestConnectCredentialFailureAcquiresNothing(t *testing.T) {
	room := transport.NewMockRoom()
	o, creds := newTestOrchestrator(t, room)
	creds.err = errors.New("issuer unreachable")

	err := o.Connect(context.Background(), "billing")
	if err == nil {
		t.Fatalf("Connect() should fail when the credential fetch fails")
	}

	s := o.Snapshot()
	if s.Status != StatusError || !strings.Contains(s.LastError, "credential") {
		t.Fatalf("session = %+v, want error status with credential message", s)
	}
	if room.ConnectCalls != 0 || room.DisconnectCalls != 0 {
		t.Fatalf("no transport connection should be attempted, got connect=%d disconnect=%d",
			room.ConnectCalls, room.DisconnectCalls)
	}
}

func TestConnectTransportFailureReleasesRoom(t *testing.T) {
	room := transport.NewMockRoom()
	room.ConnectErr = errors.New("handshake refused")
	o, _ := newTestOrchestrator(t, room)

	if err := o.Connect(context.Background(), "billing"); err == nil {
		t.Fatalf("Connect() should surface the transport failure")
	}
	s := o.Snapshot()
	if s.Status != StatusError || !strings.Contains(s.LastError, "transport connect") {
		t.Fatalf("session = %+v", s)
	}
	if room.DisconnectCalls != 1 {
		t.Fatalf("DisconnectCalls = %d, want 1", room.DisconnectCalls)
	}
	if room.MicrophoneEnabled() {
		t.Fatalf("microphone must not stay enabled after a failed connect")
	}
}

func TestConnectMicrophoneFailureReleasesRoom(t *testing.T) {
	room := transport.NewMockRoom()
	room.MicErr = errors.New("no capture device")
	o, _ := newTestOrchestrator(t, room)

	if err := o.Connect(context.Background(), "billing"); err == nil {
		t.Fatalf("Connect() should surface the microphone failure")
	}
	s := o.Snapshot()
	if s.Status != StatusError || !strings.Contains(s.LastError, "microphone") {
		t.Fatalf("session = %+v", s)
	}
	if room.DisconnectCalls != 1 {
		t.Fatalf("DisconnectCalls = %d, want 1", room.DisconnectCalls)
	}
}

func TestDisconnectDuringCredentialFetchDiscardsResult(t *testing.T) {
	room := transport.NewMockRoom()
	o, creds := newTestOrchestrator(t, room)
	creds.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- o.Connect(context.Background(), "billing")
	}()
	waitFor(t, "credential fetch in flight", func() bool { return creds.fetchCalls() == 1 })

	o.Disconnect()
	close(creds.block)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Connect() error = %v, want ErrSuperseded", err)
	}
	if s := o.Snapshot(); s.Status != StatusEnded {
		t.Fatalf("status = %q, want ended after the late grant is discarded", s.Status)
	}
	if room.ConnectCalls != 0 {
		t.Fatalf("transport connect was issued for a torn-down session")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	room := transport.NewMockRoom()
	o, _ := newTestOrchestrator(t, room)

	if err := o.Connect(context.Background(), "billing"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "connected status", func() bool { return o.Snapshot().Status == StatusConnected })

	o.Disconnect()
	o.Disconnect()
	o.Disconnect()

	if room.DisconnectCalls != 1 {
		t.Fatalf("DisconnectCalls = %d, want exactly 1", room.DisconnectCalls)
	}
	s := o.Snapshot()
	if s.Status != StatusEnded || s.ID != "" || s.DurationSec != 0 || len(s.Transcript) != 0 {
		t.Fatalf("session after disconnect = %+v, want a reset ended session", s)
	}
}

func TestDisconnectFromIdleIsSafe(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.Disconnect()
	if s := o.Snapshot(); s.Status != StatusEnded {
		t.Fatalf("status = %q, want ended", s.Status)
	}
}

func TestRemoteDisconnectEndsSession(t *testing.T) {
	room := transport.NewMockRoom()
	o, _ := newTestOrchestrator(t, room)

	if err := o.Connect(context.Background(), "billing"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "connected status", func() bool { return o.Snapshot().Status == StatusConnected })

	room.Emit(transport.Event{Type: transport.EventConnectionStateChanged, State: transport.StateDisconnected})
	waitFor(t, "ended status", func() bool { return o.Snapshot().Status == StatusEnded })

	if room.DisconnectCalls != 1 {
		t.Fatalf("DisconnectCalls = %d, want 1", room.DisconnectCalls)
	}
}

func TestReconnectSupersedesPreviousSession(t *testing.T) {
	first := transport.NewMockRoom()
	second := transport.NewMockRoom()
	o, _ := newTestOrchestrator(t, first, second)

	if err := o.Connect(context.Background(), "billing"); err != nil {
		t.Fatalf("first Connect() error = %v", err)
	}
	waitFor(t, "first connected", func() bool { return o.Snapshot().Status == StatusConnected })

	if err := o.Connect(context.Background(), "retention"); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	waitFor(t, "second connected", func() bool {
		s := o.Snapshot()
		return s.Status == StatusConnected && s.ScenarioID == "retention"
	})

	if first.DisconnectCalls != 1 {
		t.Fatalf("first room DisconnectCalls = %d, want 1", first.DisconnectCalls)
	}
	if second.DisconnectCalls != 0 {
		t.Fatalf("second room was disconnected")
	}
}

func TestToggleMuteTracksTransportEnablement(t *testing.T) {
	room := transport.NewMockRoom()
	o, _ := newTestOrchestrator(t, room)

	if err := o.Connect(context.Background(), "billing"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "connected status", func() bool { return o.Snapshot().Status == StatusConnected })

	if err := o.ToggleMute(context.Background()); err != nil {
		t.Fatalf("ToggleMute() error = %v", err)
	}
	if s := o.Snapshot(); !s.Muted || room.MicrophoneEnabled() {
		t.Fatalf("muted=%v micEnabled=%v, want muted with mic off", s.Muted, room.MicrophoneEnabled())
	}

	if err := o.ToggleMute(context.Background()); err != nil {
		t.Fatalf("ToggleMute() error = %v", err)
	}
	if s := o.Snapshot(); s.Muted || !room.MicrophoneEnabled() {
		t.Fatalf("muted=%v micEnabled=%v, want unmuted with mic on", s.Muted, room.MicrophoneEnabled())
	}
}

func TestToggleMuteWithoutSessionIsNoOp(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if err := o.ToggleMute(context.Background()); err != nil {
		t.Fatalf("ToggleMute() error = %v", err)
	}
}

func TestPauseSuspendsDurationCounter(t *testing.T) {
	room := transport.NewMockRoom()
	o, _ := newTestOrchestrator(t, room)

	if err := o.Connect(context.Background(), "billing"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "duration advancing", func() bool { return o.Snapshot().DurationSec >= 1 })

	o.Pause()
	if s := o.Snapshot(); s.Status != StatusPaused {
		t.Fatalf("status = %q, want paused", s.Status)
	}
	frozen := o.Snapshot().DurationSec
	time.Sleep(50 * time.Millisecond)
	if got := o.Snapshot().DurationSec; got != frozen {
		t.Fatalf("duration advanced from %d to %d while paused", frozen, got)
	}
	// Hold is local only: the microphone keeps publishing.
	if !room.MicrophoneEnabled() {
		t.Fatalf("pause must not touch the microphone")
	}

	o.Resume()
	waitFor(t, "duration resuming", func() bool { return o.Snapshot().DurationSec > frozen })
}

func TestAutoplayBlockedThenEnableAudio(t *testing.T) {
	room := transport.NewMockRoom()
	o, _ := newTestOrchestrator(t, room)

	if err := o.Connect(context.Background(), "billing"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "connected status", func() bool { return o.Snapshot().Status == StatusConnected })

	track := transport.NewMockAudioTrack("agent-audio")
	track.Sink.BlockFirstPlay = true
	room.Emit(transport.Event{Type: transport.EventTrackSubscribed, Track: track})
	waitFor(t, "awaiting-audio", func() bool {
		s := o.Snapshot()
		return s.AwaitingAudio && s.AgentSpeaking
	})
	if s := o.Snapshot(); s.Status != StatusConnected {
		t.Fatalf("autoplay block must not change the connection status, got %q", s.Status)
	}

	if err := o.EnableAudio(context.Background()); err != nil {
		t.Fatalf("EnableAudio() error = %v", err)
	}
	if s := o.Snapshot(); s.AwaitingAudio {
		t.Fatalf("awaiting-audio should clear after EnableAudio")
	}
	if room.StartAudioCalls != 1 {
		t.Fatalf("StartAudioCalls = %d, want 1", room.StartAudioCalls)
	}
	if track.Sink.PlayCalls != 2 {
		t.Fatalf("PlayCalls = %d, want blocked first then successful retry", track.Sink.PlayCalls)
	}
}

func TestTrackAttachFailureLeavesAgentSilent(t *testing.T) {
	room := transport.NewMockRoom()
	o, _ := newTestOrchestrator(t, room)

	if err := o.Connect(context.Background(), "billing"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "connected status", func() bool { return o.Snapshot().Status == StatusConnected })

	track := transport.NewMockAudioTrack("agent-audio")
	track.AttachErr = errors.New("attach refused")
	room.Emit(transport.Event{Type: transport.EventTrackSubscribed, Track: track})
	waitFor(t, "attach error recorded", func() bool { return o.Snapshot().LastError != "" })

	s := o.Snapshot()
	if s.AgentSpeaking {
		t.Fatalf("agent reported speaking with no attached sink")
	}
	if !strings.Contains(s.LastError, "attach") {
		t.Fatalf("LastError = %q", s.LastError)
	}
	if s.Status != StatusConnected {
		t.Fatalf("status = %q, attach failure must not end the call", s.Status)
	}
}

func TestTrackUnsubscribeClosesSinkOnce(t *testing.T) {
	room := transport.NewMockRoom()
	o, _ := newTestOrchestrator(t, room)

	if err := o.Connect(context.Background(), "billing"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "connected status", func() bool { return o.Snapshot().Status == StatusConnected })

	track := transport.NewMockAudioTrack("agent-audio")
	room.Emit(transport.Event{Type: transport.EventTrackSubscribed, Track: track})
	waitFor(t, "agent speaking", func() bool { return o.Snapshot().AgentSpeaking })

	room.Emit(transport.Event{Type: transport.EventTrackUnsubscribed, Track: track})
	waitFor(t, "agent silent", func() bool { return !o.Snapshot().AgentSpeaking })
	if track.Sink.Closed() != 1 {
		t.Fatalf("sink CloseCalls = %d, want 1", track.Sink.Closed())
	}

	o.Disconnect()
	if track.Sink.Closed() != 1 {
		t.Fatalf("sink closed again on disconnect, CloseCalls = %d", track.Sink.Closed())
	}
}

func TestDisconnectClosesLiveSink(t *testing.T) {
	room := transport.NewMockRoom()
	o, _ := newTestOrchestrator(t, room)

	if err := o.Connect(context.Background(), "billing"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "connected status", func() bool { return o.Snapshot().Status == StatusConnected })

	track := transport.NewMockAudioTrack("agent-audio")
	room.Emit(transport.Event{Type: transport.EventTrackSubscribed, Track: track})
	waitFor(t, "agent speaking", func() bool { return o.Snapshot().AgentSpeaking })

	o.Disconnect()
	if track.Sink.Closed() != 1 {
		t.Fatalf("sink CloseCalls = %d, want 1", track.Sink.Closed())
	}
}

func TestAudioPlaybackChangedTogglesAwaiting(t *testing.T) {
	room := transport.NewMockRoom()
	o, _ := newTestOrchestrator(t, room)

	if err := o.Connect(context.Background(), "billing"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "connected status", func() bool { return o.Snapshot().Status == StatusConnected })

	room.Emit(transport.Event{Type: transport.EventAudioPlaybackChanged, CanPlayback: false})
	waitFor(t, "awaiting-audio set", func() bool { return o.Snapshot().AwaitingAudio })

	room.Emit(transport.Event{Type: transport.EventAudioPlaybackChanged, CanPlayback: true})
	waitFor(t, "awaiting-audio cleared", func() bool { return !o.Snapshot().AwaitingAudio })
}

func TestTranscriptSequenceAndHook(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	var mu sync.Mutex
	var hooked []TranscriptEntry
	o.SetTranscriptHook(func(e TranscriptEntry) {
		mu.Lock()
		hooked = append(hooked, e)
		mu.Unlock()
	})

	o.AddTranscript(RoleLocal, "I was double charged.", EmotionUnspecified)
	o.AddTranscript(RoleRemote, "This is the second time!", EmotionAngry)

	s := o.Snapshot()
	if len(s.Transcript) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(s.Transcript))
	}
	if s.Transcript[0].Seq != 0 || s.Transcript[1].Seq != 1 {
		t.Fatalf("sequences = %d,%d, want 0,1", s.Transcript[0].Seq, s.Transcript[1].Seq)
	}
	if s.Transcript[1].Role != RoleRemote || s.Transcript[1].Emotion != EmotionAngry {
		t.Fatalf("entry = %+v", s.Transcript[1])
	}

	mu.Lock()
	defer mu.Unlock()
	if len(hooked) != 2 || hooked[0].Text != "I was double charged." {
		t.Fatalf("hook saw %+v", hooked)
	}

	// Snapshot returns a copy; mutating it must not reach the session.
	s.Transcript[0].Text = "mutated"
	if o.Snapshot().Transcript[0].Text != "I was double charged." {
		t.Fatalf("snapshot aliases the live transcript")
	}
}
