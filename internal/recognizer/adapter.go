package recognizer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/caplight/caplight/internal/config"
	"github.com/caplight/caplight/internal/transcript"
)

// Delays compensating for engines that silently stop after short
// silences or transient faults. Stale timers are defused by a generation
// token, so a timer firing after a newer Start/Stop is a no-op.
const (
	restartDelay        = 1000 * time.Millisecond
	noSpeechDelay       = 500 * time.Millisecond
	networkDelay        = 2000 * time.Millisecond
	languageSwitchDelay = 100 * time.Millisecond
)

// Status is the adapter's observable state, reported on every change.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusListening  Status = "listening"
	StatusRestarting Status = "restarting"
	StatusStopped    Status = "stopped"
	StatusError      Status = "error"
)

// Handlers receive the normalized recognition stream. All callbacks are
// invoked without adapter locks held and may call back into the adapter.
type Handlers struct {
	OnResult func(res transcript.Result)
	OnError  func(err *Error)
	OnStart  func()
	OnEnd    func()
	OnStatus func(s Status)
}

// Adapter drives an Engine and smooths over its failure modes: it
// restarts after silent end-of-stream, backs off on recoverable errors,
// and applies text normalization to every recognized fragment.
type Adapter struct {
	cfg      config.RecognizerConfig
	engine   Engine
	handlers Handlers
	logger   *slog.Logger
	clock    func() time.Time
	restarts metric.Int64Counter

	mu        sync.Mutex
	gen       uint64
	timer     *time.Timer
	listening bool
	stopped   bool
	language  string
	beganAt   time.Time
}

func NewAdapter(cfg config.RecognizerConfig, engine Engine, handlers Handlers, log *slog.Logger) (*Adapter, error) {
	if engine == nil {
		return nil, ErrUnsupported
	}
	a := &Adapter{
		cfg:      cfg,
		engine:   engine,
		handlers: handlers,
		logger:   log.With(slog.String("component", "recognizer")),
		clock:    time.Now,
		language: cfg.Language,
	}

	var err error
	if a.restarts, err = otel.Meter("caplight/recognizer").Int64Counter("caption.recognizer.restarts"); err != nil {
		a.logger.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	err = engine.Configure(a.engineConfig(), EngineCallbacks{
		OnStart:  a.handleStart,
		OnEnd:    a.handleEnd,
		OnResult: a.handleResult,
		OnError:  a.handleError,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Adapter) engineConfig() Config {
	return Config{
		Language:        a.language,
		Continuous:      a.cfg.Continuous,
		InterimResults:  a.cfg.InterimResults,
		MaxAlternatives: a.cfg.MaxAlternatives,
	}
}

// Start begins listening. Any pending restart timer is canceled first so
// two recognizer instances never overlap.
func (a *Adapter) Start() error {
	a.mu.Lock()
	a.cancelTimerLocked()
	a.stopped = false
	a.mu.Unlock()
	return a.engine.Start()
}

// Stop disables auto-restart before issuing the underlying stop, so a
// terminal end event arriving afterwards cannot resurrect the engine.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	a.stopped = true
	a.cancelTimerLocked()
	a.mu.Unlock()
	return a.engine.Stop()
}

// Abort discards the in-flight utterance and stops without a final result.
func (a *Adapter) Abort() error {
	a.mu.Lock()
	a.stopped = true
	a.cancelTimerLocked()
	a.mu.Unlock()
	return a.engine.Abort()
}

// SetLanguage applies a new language. Engines cannot switch language while
// active, so a listening adapter stops and restarts after a short delay.
func (a *Adapter) SetLanguage(lang string) error {
	a.mu.Lock()
	a.language = lang
	cfg := a.engineConfig()
	wasListening := a.listening
	a.mu.Unlock()

	if err := a.engine.Configure(cfg, EngineCallbacks{
		OnStart:  a.handleStart,
		OnEnd:    a.handleEnd,
		OnResult: a.handleResult,
		OnError:  a.handleError,
	}); err != nil {
		return err
	}
	if !wasListening {
		return nil
	}
	if err := a.engine.Stop(); err != nil {
		return err
	}
	a.mu.Lock()
	a.scheduleRestartLocked(languageSwitchDelay)
	a.mu.Unlock()
	return nil
}

// Listening reports whether the engine is currently delivering results.
func (a *Adapter) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listening
}

// Language returns the currently configured recognition language.
func (a *Adapter) Language() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.language
}

func (a *Adapter) handleStart() {
	a.mu.Lock()
	a.listening = true
	a.beganAt = a.clock()
	a.mu.Unlock()

	a.emitStatus(StatusListening)
	if a.handlers.OnStart != nil {
		a.handlers.OnStart()
	}
}

func (a *Adapter) handleEnd() {
	a.mu.Lock()
	a.listening = false
	restart := !a.stopped && a.cfg.AutoRestart
	if restart {
		a.scheduleRestartLocked(restartDelay)
	}
	a.mu.Unlock()

	if restart {
		a.emitStatus(StatusRestarting)
	} else {
		a.emitStatus(StatusStopped)
	}
	if a.handlers.OnEnd != nil {
		a.handlers.OnEnd()
	}
}

func (a *Adapter) handleResult(batch []EngineResult) {
	a.mu.Lock()
	speaker := a.cfg.SpeakerLabel
	a.mu.Unlock()

	// Batches are reconciled per result, in order, never as one unit.
	for _, r := range batch {
		if a.handlers.OnResult != nil {
			a.handlers.OnResult(transcript.Result{
				Text:       Normalize(r.Text),
				Confidence: r.Confidence,
				IsFinal:    r.IsFinal,
				Speaker:    speaker,
				At:         a.clock(),
			})
		}
	}
}

func (a *Adapter) handleError(code string) {
	var (
		kind  ErrorKind
		delay time.Duration
	)
	switch code {
	case codeNoSpeech:
		kind, delay = KindTransient, noSpeechDelay
	case codeNetwork:
		kind, delay = KindNetworkError, networkDelay
	case codeAudioCapture:
		kind = KindDeviceUnavailable
	case codeNotAllowed:
		kind = KindPermissionDenied
	case codeAborted:
		// User-initiated, expected, no restart and no error report.
		a.emitStatus(StatusStopped)
		return
	default:
		kind, delay = KindTransient, restartDelay
	}

	err := &Error{Kind: kind, Code: code}
	if err.Fatal() {
		a.logger.Warn("recognition failed", slog.String("code", code), slog.String("kind", string(kind)))
		a.emitStatus(StatusError)
		if a.handlers.OnError != nil {
			a.handlers.OnError(err)
		}
		return
	}

	a.mu.Lock()
	restart := !a.stopped
	if restart {
		a.listening = false
		a.scheduleRestartLocked(delay)
	}
	a.mu.Unlock()

	a.logger.Debug("transient recognition error", slog.String("code", code))
	if restart {
		a.emitStatus(StatusRestarting)
	}
	if a.handlers.OnError != nil {
		a.handlers.OnError(err)
	}
}

// scheduleRestartLocked arms a timer bound to the current generation.
// Callers hold a.mu.
func (a *Adapter) scheduleRestartLocked(delay time.Duration) {
	a.cancelTimerLocked()
	gen := a.gen
	a.timer = time.AfterFunc(delay, func() {
		a.mu.Lock()
		stale := gen != a.gen || a.stopped
		a.mu.Unlock()
		if stale {
			return
		}
		if a.restarts != nil {
			a.restarts.Add(context.Background(), 1)
		}
		if err := a.engine.Start(); err != nil {
			a.logger.Warn("recognizer restart failed", slog.String("error", err.Error()))
			a.emitStatus(StatusError)
			if a.handlers.OnError != nil {
				a.handlers.OnError(&Error{Kind: KindDeviceUnavailable, Code: "restart-failed"})
			}
		}
	})
}

func (a *Adapter) cancelTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
}

func (a *Adapter) emitStatus(s Status) {
	if a.handlers.OnStatus != nil {
		a.handlers.OnStatus(s)
	}
}
