package speech

import "sync"

// MockEngine is an in-process recognition capability for tests and for the
// console's fake mode.
type MockEngine struct {
	mu          sync.Mutex
	Unavailable bool
	NewErr      error
	Recognizers []*MockRecognizer
}

func (e *MockEngine) Available() bool { return !e.Unavailable }

func (e *MockEngine) New(_ Config, h Handlers) (Recognizer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NewErr != nil {
		return nil, e.NewErr
	}
	r := &MockRecognizer{handlers: h}
	e.Recognizers = append(e.Recognizers, r)
	return r, nil
}

// Last returns the most recently constructed recognizer.
func (e *MockEngine) Last() *MockRecognizer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Recognizers) == 0 {
		return nil
	}
	return e.Recognizers[len(e.Recognizers)-1]
}

// MockRecognizer lets tests drive the four platform callbacks directly.
type MockRecognizer struct {
	mu       sync.Mutex
	handlers Handlers

	StartErr   error
	StartCalls int
	AbortCalls int
}

func (r *MockRecognizer) Start() error {
	r.mu.Lock()
	r.StartCalls++
	err := r.StartErr
	h := r.handlers
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if h.OnStart != nil {
		h.OnStart()
	}
	return nil
}

func (r *MockRecognizer) Abort() {
	r.mu.Lock()
	r.AbortCalls++
	r.mu.Unlock()
}

func (r *MockRecognizer) EmitResult(res Result) {
	if r.handlers.OnResult != nil {
		r.handlers.OnResult(res)
	}
}

func (r *MockRecognizer) EmitError(code string) {
	if r.handlers.OnError != nil {
		r.handlers.OnError(code)
	}
}

func (r *MockRecognizer) EmitEnd() {
	if r.handlers.OnEnd != nil {
		r.handlers.OnEnd()
	}
}

func (r *MockRecognizer) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.StartCalls
}

func (r *MockRecognizer) Aborts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.AbortCalls
}
