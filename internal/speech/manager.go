package speech

import (
	"sync"
	"time"

	"github.com/axtra/traincall/internal/reliability"
)

// State of the transcription manager.
type State string

const (
	StateStopped   State = "stopped"
	StateStarting  State = "starting"
	StateListening State = "listening"
	StateError     State = "error"
)

// Utterance is a locally transcribed fragment. Provisional utterances
// (Final=false) are volatile: the caller should replace the previous
// provisional text with the next one rather than appending.
type Utterance struct {
	Text  string
	Final bool
}

// Manager wraps a platform recognizer with restart and backoff behavior.
// Recognition failures never affect the voice call; the two are independent.
type Manager struct {
	engine      Engine
	cfg         Config
	retryMax    int
	onUtterance func(Utterance)
	onState     func(State)
	backoff     func(errorCount int) time.Duration

	mu           sync.Mutex
	state        State
	listening    bool
	errorCount   int
	restartTimer *time.Timer
	rec          Recognizer
}

func NewManager(engine Engine, language string, retryMax int, onUtterance func(Utterance), onState func(State)) *Manager {
	if retryMax <= 0 {
		retryMax = 3
	}
	return &Manager{
		engine: engine,
		cfg: Config{
			Continuous:     true,
			InterimResults: true,
			Language:       language,
		},
		retryMax:    retryMax,
		onUtterance: onUtterance,
		onState:     onState,
		backoff:     reliability.RestartBackoff,
		state:       StateStopped,
	}
}

// Start begins a listening session with a fresh recognizer. Calling it while
// already listening is a no-op. The consecutive-error counter resets only
// here, not on recognizer restarts, so a run of network failures can reach
// the retry budget.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.listening {
		m.mu.Unlock()
		return nil
	}
	if m.engine == nil || !m.engine.Available() {
		m.setStateLocked(StateError)
		m.mu.Unlock()
		return ErrUnavailable
	}

	m.errorCount = 0
	m.listening = true

	rec, err := m.engine.New(m.cfg, Handlers{
		OnStart:  m.handleStart,
		OnResult: m.handleResult,
		OnError:  m.handleError,
		OnEnd:    m.handleEnd,
	})
	if err != nil {
		m.listening = false
		m.setStateLocked(StateError)
		m.mu.Unlock()
		return err
	}
	m.rec = rec
	m.setStateLocked(StateStarting)
	m.mu.Unlock()

	if err := rec.Start(); err != nil {
		m.mu.Lock()
		m.listening = false
		m.rec = nil
		m.setStateLocked(StateError)
		m.mu.Unlock()
		return err
	}
	return nil
}

// Stop is idempotent: it cancels any pending restart, aborts the live
// recognizer, and leaves the manager stopped regardless of prior state.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.listening = false
	m.cancelRestartLocked()
	rec := m.rec
	m.rec = nil
	m.setStateLocked(StateStopped)
	m.mu.Unlock()

	if rec != nil {
		rec.Abort()
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

func (m *Manager) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorCount
}

func (m *Manager) handleStart() {
	m.mu.Lock()
	if !m.listening {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateListening)
	m.mu.Unlock()
}

func (m *Manager) handleResult(r Result) {
	m.mu.Lock()
	emit := m.onUtterance
	listening := m.listening
	m.mu.Unlock()
	if !listening || emit == nil {
		return
	}

	var final string
	for _, seg := range r.Final {
		final += seg
	}
	if final != "" {
		emit(Utterance{Text: final, Final: true})
	} else if r.Interim != "" {
		emit(Utterance{Text: r.Interim, Final: false})
	}
}

func (m *Manager) handleError(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.listening {
		return
	}

	switch reliability.ClassifyRecognitionError(code) {
	case reliability.SeverityBenign:
		// no-speech and aborted carry no state change
	case reliability.SeverityFatal:
		m.listening = false
		m.cancelRestartLocked()
		m.setStateLocked(StateError)
	case reliability.SeverityRetryable:
		m.errorCount++
		if m.errorCount >= m.retryMax {
			m.listening = false
			m.cancelRestartLocked()
			m.setStateLocked(StateError)
		}
	}
}

// handleEnd fires when the recognizer ends, which platforms do periodically
// even without error. While still logically listening and under budget, a
// restart is scheduled after a capped backoff.
func (m *Manager) handleEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.listening {
		return
	}
	if m.errorCount >= m.retryMax {
		m.listening = false
		m.setStateLocked(StateError)
		return
	}
	m.scheduleRestartLocked()
}

func (m *Manager) scheduleRestartLocked() {
	m.cancelRestartLocked()
	delay := m.backoff(m.errorCount)
	m.restartTimer = time.AfterFunc(delay, m.restart)
}

func (m *Manager) restart() {
	m.mu.Lock()
	m.restartTimer = nil
	if !m.listening || m.rec == nil {
		m.mu.Unlock()
		return
	}
	rec := m.rec
	m.setStateLocked(StateStarting)
	m.mu.Unlock()

	if err := rec.Start(); err != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.listening {
			return
		}
		m.errorCount++
		if m.errorCount >= m.retryMax {
			m.listening = false
			m.setStateLocked(StateError)
			return
		}
		m.scheduleRestartLocked()
	}
}

func (m *Manager) cancelRestartLocked() {
	if m.restartTimer != nil {
		m.restartTimer.Stop()
		m.restartTimer = nil
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.onState != nil {
		// Hooks run inline; they must not call back into the manager.
		m.onState(s)
	}
}
