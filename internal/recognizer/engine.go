// Package recognizer wraps an external continuous speech-recognition
// engine and normalizes its event stream into a uniform callback contract.
// The engine itself is a collaborator, never reimplemented here.
package recognizer

import "errors"

// ErrUnsupported is returned when no recognition engine is available in
// the current environment.
var ErrUnsupported = errors.New("no speech recognition engine available")

// Config mirrors the configuration surface of continuous recognizers.
type Config struct {
	Language        string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// EngineResult is one raw recognition alternative as delivered by the
// engine, before any text normalization.
type EngineResult struct {
	Text       string
	Confidence float64
	IsFinal    bool
}

// EngineCallbacks receive the engine's native event stream. A single
// engine event may carry several results (the engine re-emits from its
// result index through the end of the list); they are delivered as one
// batch in order.
type EngineCallbacks struct {
	OnStart  func()
	OnEnd    func()
	OnResult func(batch []EngineResult)
	OnError  func(code string)
}

// Engine abstracts the host recognition capability. Implementations are
// not safe for concurrent use; the adapter serializes access.
type Engine interface {
	Configure(cfg Config, cb EngineCallbacks) error
	Start() error
	Stop() error
	Abort() error
}

// Engine-native error codes the adapter classifies.
const (
	codeNoSpeech     = "no-speech"
	codeNetwork      = "network"
	codeAudioCapture = "audio-capture"
	codeNotAllowed   = "not-allowed"
	codeAborted      = "aborted"
)
