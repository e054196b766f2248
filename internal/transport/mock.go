package transport

import (
	"context"
	"sync"
)

// MockFactory hands out prepared rooms, or fresh ones when the queue is empty.
// Used by the console's fake transport mode and by orchestrator tests.
type MockFactory struct {
	mu    sync.Mutex
	Rooms []*MockRoom
}

func (f *MockFactory) NewRoom() Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Rooms) > 0 {
		r := f.Rooms[0]
		f.Rooms = f.Rooms[1:]
		return r
	}
	return NewMockRoom()
}

// MockRoom is a scriptable in-process Room.
type MockRoom struct {
	mu         sync.Mutex
	events     chan Event
	micEnabled bool
	connected  bool

	ConnectErr    error
	MicErr        error
	StartAudioErr error
	// AnnounceOnConnect emits the connected state transition as the real
	// transport's callback would after the handshake completes.
	AnnounceOnConnect bool

	ConnectCalls    int
	DisconnectCalls int
	StartAudioCalls int
	LastURL         string
	LastToken       string
	LastOptions     ConnectOptions
}

func NewMockRoom() *MockRoom {
	return &MockRoom{
		events:            make(chan Event, 32),
		AnnounceOnConnect: true,
	}
}

func (r *MockRoom) Connect(_ context.Context, url, token string, opts ConnectOptions) error {
	r.mu.Lock()
	r.ConnectCalls++
	r.LastURL = url
	r.LastToken = token
	r.LastOptions = opts
	if r.ConnectErr != nil {
		err := r.ConnectErr
		r.mu.Unlock()
		return err
	}
	r.connected = true
	announce := r.AnnounceOnConnect
	r.mu.Unlock()

	if announce {
		r.Emit(Event{Type: EventConnectionStateChanged, State: StateConnected})
	}
	return nil
}

func (r *MockRoom) SetMicrophoneEnabled(_ context.Context, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.MicErr != nil {
		return r.MicErr
	}
	r.micEnabled = enabled
	return nil
}

func (r *MockRoom) MicrophoneEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.micEnabled
}

func (r *MockRoom) StartAudio(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartAudioCalls++
	return r.StartAudioErr
}

func (r *MockRoom) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DisconnectCalls++
	r.connected = false
	r.micEnabled = false
}

func (r *MockRoom) Events() <-chan Event { return r.events }

// Emit injects a transport event as if the remote side produced it.
func (r *MockRoom) Emit(ev Event) {
	r.events <- ev
}

func (r *MockRoom) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// MockTrack is a remote track whose Attach yields a MockSink.
type MockTrack struct {
	TrackID   string
	TrackKind TrackKind
	Sink      *MockSink
	AttachErr error
}

func NewMockAudioTrack(id string) *MockTrack {
	return &MockTrack{TrackID: id, TrackKind: TrackAudio, Sink: &MockSink{}}
}

func (t *MockTrack) ID() string      { return t.TrackID }
func (t *MockTrack) Kind() TrackKind { return t.TrackKind }

func (t *MockTrack) Attach() (AudioSink, error) {
	if t.AttachErr != nil {
		return nil, t.AttachErr
	}
	return t.Sink, nil
}

// MockSink records play and close calls. BlockFirstPlay simulates an
// autoplay-blocked platform: the first Play fails, later ones succeed.
type MockSink struct {
	mu             sync.Mutex
	BlockFirstPlay bool
	PlayCalls      int
	CloseCalls     int
}

func (s *MockSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PlayCalls++
	if s.BlockFirstPlay && s.PlayCalls == 1 {
		return ErrPlaybackBlocked
	}
	return nil
}

func (s *MockSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}

func (s *MockSink) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCalls
}
