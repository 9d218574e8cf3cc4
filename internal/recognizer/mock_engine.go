package recognizer

import "sync"

// MockEngine is a scripted engine for tests and for running the daemon
// without a real recognition backend. Events are delivered synchronously
// on the caller's goroutine.
type MockEngine struct {
	mu      sync.Mutex
	cfg     Config
	cb      EngineCallbacks
	running bool

	StartCalls int
	StopCalls  int
	AbortCalls int
}

func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

func (m *MockEngine) Configure(cfg Config, cb EngineCallbacks) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.cb = cb
	return nil
}

func (m *MockEngine) Start() error {
	m.mu.Lock()
	m.StartCalls++
	m.running = true
	cb := m.cb
	m.mu.Unlock()
	if cb.OnStart != nil {
		cb.OnStart()
	}
	return nil
}

func (m *MockEngine) Stop() error {
	m.mu.Lock()
	m.StopCalls++
	wasRunning := m.running
	m.running = false
	cb := m.cb
	m.mu.Unlock()
	if wasRunning && cb.OnEnd != nil {
		cb.OnEnd()
	}
	return nil
}

func (m *MockEngine) Abort() error {
	m.mu.Lock()
	m.AbortCalls++
	wasRunning := m.running
	m.running = false
	cb := m.cb
	m.mu.Unlock()
	if wasRunning {
		if cb.OnError != nil {
			cb.OnError(codeAborted)
		}
		if cb.OnEnd != nil {
			cb.OnEnd()
		}
	}
	return nil
}

// Running reports whether the engine believes it is listening.
func (m *MockEngine) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Language returns the configured recognition language.
func (m *MockEngine) Language() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Language
}

// EmitResults delivers one raw result batch, as an engine event would.
func (m *MockEngine) EmitResults(batch ...EngineResult) {
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()
	if cb.OnResult != nil {
		cb.OnResult(batch)
	}
}

// EmitError delivers an engine-native error code.
func (m *MockEngine) EmitError(code string) {
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()
	if cb.OnError != nil {
		cb.OnError(code)
	}
}

// EmitEnd simulates the engine silently ending the stream.
func (m *MockEngine) EmitEnd() {
	m.mu.Lock()
	m.running = false
	cb := m.cb
	m.mu.Unlock()
	if cb.OnEnd != nil {
		cb.OnEnd()
	}
}
