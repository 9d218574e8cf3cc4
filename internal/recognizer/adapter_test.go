package recognizer

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/caplight/caplight/internal/config"
	"github.com/caplight/caplight/internal/transcript"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() config.RecognizerConfig {
	cfg := config.Default().Recognizer
	return cfg
}

type capture struct {
	mu       sync.Mutex
	results  []transcript.Result
	errors   []*Error
	statuses []Status
}

func (c *capture) handlers() Handlers {
	return Handlers{
		OnResult: func(r transcript.Result) {
			c.mu.Lock()
			c.results = append(c.results, r)
			c.mu.Unlock()
		},
		OnError: func(e *Error) {
			c.mu.Lock()
			c.errors = append(c.errors, e)
			c.mu.Unlock()
		},
		OnStatus: func(s Status) {
			c.mu.Lock()
			c.statuses = append(c.statuses, s)
			c.mu.Unlock()
		},
	}
}

func (c *capture) lastStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.statuses) == 0 {
		return StatusIdle
	}
	return c.statuses[len(c.statuses)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestAdapterNormalizesAndSplitsBatches(t *testing.T) {
	engine := NewMockEngine()
	sink := &capture{}
	a, err := NewAdapter(testConfig(), engine, sink.handlers(), testLogger())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	engine.EmitResults(
		EngineResult{Text: "  i said   hello ", IsFinal: false},
		EngineResult{Text: "i said hello there", Confidence: 0.92, IsFinal: true},
	)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.results) != 2 {
		t.Fatalf("expected batch split into 2 results, got %d", len(sink.results))
	}
	if sink.results[0].Text != "I said hello" {
		t.Fatalf("unexpected normalized text: %q", sink.results[0].Text)
	}
	if !sink.results[1].IsFinal || sink.results[1].Confidence != 0.92 {
		t.Fatalf("final flags lost: %+v", sink.results[1])
	}
	if sink.results[0].Speaker != "You" {
		t.Fatalf("expected configured speaker label, got %q", sink.results[0].Speaker)
	}
}

func TestExplicitStopSuppressesRestart(t *testing.T) {
	engine := NewMockEngine()
	sink := &capture{}
	a, err := NewAdapter(testConfig(), engine, sink.handlers(), testLogger())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// A late terminal end after an explicit stop must not schedule a
	// restart: the observable status stays stopped.
	engine.EmitEnd()
	if got := sink.lastStatus(); got != StatusStopped {
		t.Fatalf("expected stopped status, got %q", got)
	}
	if engine.StartCalls != 1 {
		t.Fatalf("expected no restart, start calls = %d", engine.StartCalls)
	}
}

func TestSilentEndSchedulesRestart(t *testing.T) {
	engine := NewMockEngine()
	sink := &capture{}
	a, err := NewAdapter(testConfig(), engine, sink.handlers(), testLogger())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	engine.EmitEnd()
	if got := sink.lastStatus(); got != StatusRestarting {
		t.Fatalf("expected restarting status, got %q", got)
	}
	waitFor(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return engine.StartCalls >= 2
	})
	t.Cleanup(func() { _ = a.Stop() })
}

func TestNoSpeechErrorRecovers(t *testing.T) {
	engine := NewMockEngine()
	sink := &capture{}
	a, err := NewAdapter(testConfig(), engine, sink.handlers(), testLogger())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	engine.EmitError("no-speech")
	waitFor(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return engine.StartCalls >= 2
	})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.errors) != 1 || sink.errors[0].Kind != KindTransient {
		t.Fatalf("expected one informational transient error, got %+v", sink.errors)
	}
	t.Cleanup(func() { _ = a.Stop() })
}

func TestStaleRestartTimerIsNoOp(t *testing.T) {
	engine := NewMockEngine()
	sink := &capture{}
	a, err := NewAdapter(testConfig(), engine, sink.handlers(), testLogger())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	engine.EmitError("no-speech")
	if err := a.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	time.Sleep(800 * time.Millisecond)
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.StartCalls != 1 {
		t.Fatalf("stale timer restarted the engine, start calls = %d", engine.StartCalls)
	}
}

func TestFatalErrorSurfacedWithoutRestart(t *testing.T) {
	engine := NewMockEngine()
	sink := &capture{}
	a, err := NewAdapter(testConfig(), engine, sink.handlers(), testLogger())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	engine.EmitError("not-allowed")
	sink.mu.Lock()
	if len(sink.errors) != 1 || sink.errors[0].Kind != KindPermissionDenied {
		t.Fatalf("expected permission-denied, got %+v", sink.errors)
	}
	sink.mu.Unlock()
	if got := sink.lastStatus(); got != StatusError {
		t.Fatalf("expected error status, got %q", got)
	}

	engine.EmitError("audio-capture")
	sink.mu.Lock()
	if sink.errors[1].Kind != KindDeviceUnavailable {
		t.Fatalf("expected device-unavailable, got %+v", sink.errors[1])
	}
	sink.mu.Unlock()

	time.Sleep(200 * time.Millisecond)
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.StartCalls != 1 {
		t.Fatalf("fatal error should not restart, start calls = %d", engine.StartCalls)
	}
}

func TestAbortReportsNoError(t *testing.T) {
	engine := NewMockEngine()
	sink := &capture{}
	a, err := NewAdapter(testConfig(), engine, sink.handlers(), testLogger())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.errors) != 0 {
		t.Fatalf("user abort should not report errors, got %+v", sink.errors)
	}
}

func TestSetLanguageWhileListeningRestarts(t *testing.T) {
	engine := NewMockEngine()
	sink := &capture{}
	a, err := NewAdapter(testConfig(), engine, sink.handlers(), testLogger())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := a.SetLanguage("fr-FR"); err != nil {
		t.Fatalf("set language: %v", err)
	}
	if engine.Language() != "fr-FR" {
		t.Fatalf("engine not reconfigured, language = %q", engine.Language())
	}
	waitFor(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return engine.StartCalls >= 2
	})
	if a.Language() != "fr-FR" {
		t.Fatalf("adapter language = %q", a.Language())
	}
	t.Cleanup(func() { _ = a.Stop() })
}

func TestNilEngineIsUnsupportedEnvironment(t *testing.T) {
	if _, err := NewAdapter(testConfig(), nil, Handlers{}, testLogger()); err != ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
