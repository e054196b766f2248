package speech

import (
	"sync"
	"testing"
	"time"
)

type captured struct {
	mu         sync.Mutex
	utterances []Utterance
	states     []State
}

func (c *captured) utterance(u Utterance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.utterances = append(c.utterances, u)
}

func (c *captured) state(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, s)
}

func (c *captured) lastState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.states) == 0 {
		return ""
	}
	return c.states[len(c.states)-1]
}

func newTestManager(t *testing.T, engine *MockEngine) (*Manager, *captured) {
	t.Helper()
	cap := &captured{}
	m := NewManager(engine, "en-US", 3, cap.utterance, cap.state)
	m.backoff = func(int) time.Duration { return time.Millisecond }
	return m, cap
}

func TestStartUnavailableEngine(t *testing.T) {
	m, cap := newTestManager(t, &MockEngine{Unavailable: true})
	if err := m.Start(); err != ErrUnavailable {
		t.Fatalf("Start() error = %v, want ErrUnavailable", err)
	}
	if cap.lastState() != StateError {
		t.Fatalf("state = %q, want error", cap.lastState())
	}
}

func TestStartEmitsFinalAndInterimUtterances(t *testing.T) {
	engine := &MockEngine{}
	m, cap := newTestManager(t, engine)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec := engine.Last()
	if rec == nil || rec.Starts() != 1 {
		t.Fatalf("recognizer should have started once")
	}
	if m.State() != StateListening {
		t.Fatalf("state = %q, want listening", m.State())
	}

	rec.EmitResult(Result{Interim: "hello th"})
	rec.EmitResult(Result{Final: []string{"hello ", "there"}})

	cap.mu.Lock()
	defer cap.mu.Unlock()
	if len(cap.utterances) != 2 {
		t.Fatalf("got %d utterances, want 2", len(cap.utterances))
	}
	if cap.utterances[0].Final || cap.utterances[0].Text != "hello th" {
		t.Fatalf("first utterance = %+v, want provisional", cap.utterances[0])
	}
	if !cap.utterances[1].Final || cap.utterances[1].Text != "hello there" {
		t.Fatalf("second utterance = %+v, want final joined text", cap.utterances[1])
	}
}

func TestBenignErrorsDoNotCount(t *testing.T) {
	engine := &MockEngine{}
	m, _ := newTestManager(t, engine)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec := engine.Last()

	for i := 0; i < 5; i++ {
		rec.EmitError(ErrorNoSpeech)
		rec.EmitError(ErrorAborted)
	}
	if m.ErrorCount() != 0 {
		t.Fatalf("ErrorCount = %d, want 0 after benign errors", m.ErrorCount())
	}
	if !m.Active() {
		t.Fatalf("manager should still be listening")
	}
}

func TestRecognizerEndRestartsWhileListening(t *testing.T) {
	engine := &MockEngine{}
	m, _ := newTestManager(t, engine)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec := engine.Last()

	rec.EmitEnd()
	deadline := time.Now().Add(time.Second)
	for rec.Starts() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("recognizer was not restarted after end")
		}
		time.Sleep(time.Millisecond)
	}
	if m.State() != StateListening {
		t.Fatalf("state = %q, want listening after restart", m.State())
	}
}

func TestNetworkErrorsExhaustBudget(t *testing.T) {
	engine := &MockEngine{}
	m, cap := newTestManager(t, engine)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec := engine.Last()

	rec.EmitError(ErrorNetwork)
	rec.EmitEnd()
	waitForStarts(t, rec, 2)
	rec.EmitError(ErrorNetwork)
	rec.EmitEnd()
	waitForStarts(t, rec, 3)
	rec.EmitError(ErrorNetwork)

	if m.Active() {
		t.Fatalf("manager should have stopped listening after 3 network errors")
	}
	if cap.lastState() != StateError {
		t.Fatalf("state = %q, want error", cap.lastState())
	}

	// A trailing end must not schedule another restart.
	starts := rec.Starts()
	rec.EmitEnd()
	time.Sleep(20 * time.Millisecond)
	if rec.Starts() != starts {
		t.Fatalf("restart was scheduled after the error state")
	}
}

func TestBackoffGrowsWithErrorCount(t *testing.T) {
	engine := &MockEngine{}
	cap := &captured{}
	m := NewManager(engine, "en-US", 3, cap.utterance, cap.state)

	var delays []time.Duration
	var mu sync.Mutex
	m.backoff = func(n int) time.Duration {
		mu.Lock()
		delays = append(delays, time.Duration(n))
		mu.Unlock()
		return time.Millisecond
	}

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec := engine.Last()

	rec.EmitEnd()
	waitForStarts(t, rec, 2)
	rec.EmitError(ErrorNetwork)
	rec.EmitEnd()
	waitForStarts(t, rec, 3)

	mu.Lock()
	defer mu.Unlock()
	if len(delays) != 2 || delays[0] != 0 || delays[1] != 1 {
		t.Fatalf("backoff inputs = %v, want error counts 0 then 1", delays)
	}
}

func TestFatalErrorStopsImmediately(t *testing.T) {
	for _, code := range []string{ErrorPermissionDenied, ErrorNoAudioDevice} {
		engine := &MockEngine{}
		m, cap := newTestManager(t, engine)
		if err := m.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		rec := engine.Last()

		rec.EmitError(code)
		if m.Active() {
			t.Fatalf("%s should be immediately fatal", code)
		}
		if cap.lastState() != StateError {
			t.Fatalf("state after %s = %q, want error", code, cap.lastState())
		}

		rec.EmitEnd()
		time.Sleep(10 * time.Millisecond)
		if rec.Starts() != 1 {
			t.Fatalf("no restart should follow a fatal %s error", code)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	engine := &MockEngine{}
	m, cap := newTestManager(t, engine)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec := engine.Last()

	// Leave a restart pending, then stop twice.
	rec.EmitEnd()
	m.Stop()
	m.Stop()

	if cap.lastState() != StateStopped {
		t.Fatalf("state = %q, want stopped", cap.lastState())
	}
	if rec.Aborts() != 1 {
		t.Fatalf("Abort calls = %d, want exactly 1", rec.Aborts())
	}

	time.Sleep(20 * time.Millisecond)
	if rec.Starts() != 1 {
		t.Fatalf("pending restart fired after Stop")
	}
}

func TestStopFromStoppedState(t *testing.T) {
	m, cap := newTestManager(t, &MockEngine{})
	m.Stop()
	if cap.lastState() != "" && cap.lastState() != StateStopped {
		t.Fatalf("state = %q", cap.lastState())
	}
	if m.Active() {
		t.Fatalf("stopped manager should not be active")
	}
}

func waitForStarts(t *testing.T, rec *MockRecognizer, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for rec.Starts() < want {
		if time.Now().After(deadline) {
			t.Fatalf("recognizer starts = %d, want %d", rec.Starts(), want)
		}
		time.Sleep(time.Millisecond)
	}
}
