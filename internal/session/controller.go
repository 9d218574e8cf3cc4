// Package session orchestrates the captioning lifecycle: it owns the
// state machine idle → listening ⇄ paused → stopped, wires recognizer
// output through the reconciler, and persists sessions to the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/caplight/caplight/internal/caption"
	"github.com/caplight/caplight/internal/config"
	"github.com/caplight/caplight/internal/recognizer"
	"github.com/caplight/caplight/internal/store"
	"github.com/caplight/caplight/internal/transcript"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

var (
	ErrClosed           = errors.New("session controller is closed")
	ErrAlreadyListening = errors.New("captioning is already active")
	ErrNotListening     = errors.New("captioning is not active")
	ErrNotPaused        = errors.New("captioning is not paused")
)

// EntryPublisher broadcasts finalized entries to other participants. It
// is a pass-through; delivery is best-effort.
type EntryPublisher interface {
	PublishEntry(ctx context.Context, sessionID string, entry caption.TranscriptEntry) error
}

// Hooks observe the controller. Callbacks run on the controller's event
// loop goroutine and must not block.
type Hooks struct {
	OnEntry func(entry caption.TranscriptEntry)
	OnState func(s State)
	OnError func(err error)
}

type command int

const (
	cmdStart command = iota
	cmdPause
	cmdResume
	cmdStop
	cmdClear
)

// Every unit of work flows through one typed event channel consumed by a
// single goroutine: recognition results, adapter status changes, and
// user commands. There is no other synchronization around the
// reconciler or the current session.
type event interface{}

type resultEvent struct{ res transcript.Result }
type statusEvent struct{ status recognizer.Status }
type errorEvent struct{ err *recognizer.Error }
type commandEvent struct {
	cmd   command
	reply chan error
}
type languageEvent struct {
	lang  string
	reply chan error
}

// Controller drives one captioning session at a time.
type Controller struct {
	cfg      config.Config
	adapter  *recognizer.Adapter
	sessions *store.SessionStore
	pub      EntryPublisher
	logger   *slog.Logger
	clock    func() time.Time
	newID    func() string

	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	hooks  Hooks

	mu      sync.RWMutex
	state   State
	current *caption.Session
	lastErr error

	rec *transcript.Reconciler

	finalEntries metric.Int64Counter
	savedCount   metric.Int64Counter
}

// NewController builds the controller and its recognizer adapter around
// the given engine, then starts the event loop.
func NewController(parent context.Context, cfg config.Config, engine recognizer.Engine, sessions *store.SessionStore, pub EntryPublisher, hooks Hooks, log *slog.Logger) (*Controller, error) {
	ctx, cancel := context.WithCancel(parent)
	c := &Controller{
		cfg:      cfg,
		sessions: sessions,
		pub:      pub,
		logger:   log.With(slog.String("component", "session-controller")),
		clock:    time.Now,
		newID:    uuid.NewString,
		events:   make(chan event, 128),
		ctx:      ctx,
		cancel:   cancel,
		hooks:    hooks,
		state:    StateIdle,
		rec:      transcript.New(),
	}

	meter := otel.Meter("caplight/session")
	var err error
	if c.finalEntries, err = meter.Int64Counter("caption.entries.final"); err != nil {
		cancel()
		return nil, err
	}
	if c.savedCount, err = meter.Int64Counter("caption.sessions.saved"); err != nil {
		cancel()
		return nil, err
	}

	adapter, err := recognizer.NewAdapter(cfg.Recognizer, engine, recognizer.Handlers{
		OnResult: func(res transcript.Result) { c.post(resultEvent{res}) },
		OnStatus: func(s recognizer.Status) { c.post(statusEvent{s}) },
		OnError:  func(e *recognizer.Error) { c.post(errorEvent{e}) },
	}, log)
	if err != nil {
		cancel()
		return nil, err
	}
	c.adapter = adapter

	c.wg.Add(1)
	go c.loop()
	return c, nil
}

// Close stops the event loop. The recognizer is stopped but the current
// session is not persisted; callers invoke Stop first for that.
func (c *Controller) Close() {
	_ = c.adapter.Stop()
	c.cancel()
	c.wg.Wait()
}

// Start creates a fresh session and begins listening.
func (c *Controller) Start() error { return c.command(cmdStart) }

// Pause stops the recognizer without persisting or discarding the
// in-memory session.
func (c *Controller) Pause() error { return c.command(cmdPause) }

// Resume continues a paused session.
func (c *Controller) Resume() error { return c.command(cmdResume) }

// Stop ends the session and persists it.
func (c *Controller) Stop() error { return c.command(cmdStop) }

// Clear empties the current session's transcript and persists the
// emptied session. Valid in every state.
func (c *Controller) Clear() error { return c.command(cmdClear) }

// SetLanguage switches the recognition language, restarting the engine
// if it is listening.
func (c *Controller) SetLanguage(lang string) error {
	reply := make(chan error, 1)
	select {
	case c.events <- languageEvent{lang: lang, reply: reply}:
	case <-c.ctx.Done():
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Current returns a copy of the active session, if any.
func (c *Controller) Current() (caption.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return caption.Session{}, false
	}
	return c.current.Clone(), true
}

// LastError returns the most recent recognition error surfaced to the
// controller.
func (c *Controller) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Controller) command(cmd command) error {
	reply := make(chan error, 1)
	select {
	case c.events <- commandEvent{cmd: cmd, reply: reply}:
	case <-c.ctx.Done():
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.ctx.Done():
		return ErrClosed
	}
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Controller) loop() {
	defer c.wg.Done()
	for {
		select {
		case ev := <-c.events:
			c.handle(ev)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Controller) handle(ev event) {
	switch ev := ev.(type) {
	case commandEvent:
		ev.reply <- c.handleCommand(ev.cmd)
	case languageEvent:
		ev.reply <- c.handleLanguage(ev.lang)
	case resultEvent:
		c.handleResult(ev.res)
	case statusEvent:
		c.logger.Debug("recognizer status", slog.String("status", string(ev.status)))
	case errorEvent:
		c.handleError(ev.err)
	}
}

func (c *Controller) handleCommand(cmd command) error {
	switch cmd {
	case cmdStart:
		return c.startSession()
	case cmdPause:
		if c.State() != StateListening {
			return ErrNotListening
		}
		if err := c.adapter.Stop(); err != nil {
			return err
		}
		c.setState(StatePaused)
		return nil
	case cmdResume:
		if c.State() != StatePaused {
			return ErrNotPaused
		}
		if err := c.adapter.Start(); err != nil {
			return err
		}
		c.setState(StateListening)
		return nil
	case cmdStop:
		return c.stopSession()
	case cmdClear:
		return c.clearSession()
	}
	return fmt.Errorf("unknown command %d", cmd)
}

func (c *Controller) startSession() error {
	switch c.State() {
	case StateListening, StatePaused:
		return ErrAlreadyListening
	}
	now := c.clock()
	session := &caption.Session{
		ID:        c.newID(),
		Name:      "Session " + now.Format("Jan 2, 2006 3:04 PM"),
		StartTime: now,
		Language:  c.adapter.Language(),
	}
	c.rec.Reset()

	c.mu.Lock()
	c.current = session
	c.lastErr = nil
	c.mu.Unlock()

	if err := c.adapter.Start(); err != nil {
		c.setState(StateIdle)
		return err
	}
	c.setState(StateListening)
	c.logger.Info("session started", slog.String("session_id", session.ID), slog.String("language", session.Language))
	return nil
}

func (c *Controller) stopSession() error {
	state := c.State()
	if state != StateListening && state != StatePaused {
		return ErrNotListening
	}
	if err := c.adapter.Stop(); err != nil {
		c.logger.Warn("recognizer stop failed", slogError(err))
	}

	c.mu.Lock()
	session := c.current
	if session != nil {
		session.EndTime = c.clock()
		session.Transcript = c.rec.Entries()
	}
	c.mu.Unlock()

	if session != nil {
		c.persist(*session)
	}
	c.setState(StateStopped)
	c.logger.Info("session stopped", slog.String("session_id", sessionID(session)))
	return nil
}

func (c *Controller) clearSession() error {
	c.rec.Reset()
	c.mu.Lock()
	session := c.current
	if session != nil {
		session.Transcript = nil
	}
	c.mu.Unlock()
	if session != nil {
		c.persist(*session)
	}
	return nil
}

func (c *Controller) handleLanguage(lang string) error {
	if err := c.adapter.SetLanguage(lang); err != nil {
		return err
	}
	c.mu.Lock()
	if c.current != nil {
		c.current.Language = lang
	}
	c.mu.Unlock()
	return nil
}

func (c *Controller) handleResult(res transcript.Result) {
	if c.State() != StateListening {
		// Late results after pause/stop: the trailing interim was
		// already surrendered, drop rather than resurrect the session.
		return
	}
	entry := c.rec.Apply(res)

	c.mu.Lock()
	session := c.current
	if session != nil {
		session.Transcript = c.rec.Entries()
		session.EndTime = entry.EndTime
	}
	c.mu.Unlock()

	if c.hooks.OnEntry != nil {
		c.hooks.OnEntry(entry)
	}
	if !entry.IsFinal || session == nil {
		return
	}

	c.finalEntries.Add(c.ctx, 1)
	// A crash mid-session loses at most the trailing unsaved interim.
	c.persist(*session)
	if c.pub != nil {
		if err := c.pub.PublishEntry(c.ctx, session.ID, entry); err != nil {
			c.logger.Warn("caption share failed", slogError(err))
		}
	}
}

func (c *Controller) handleError(err *recognizer.Error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	if c.hooks.OnError != nil {
		c.hooks.OnError(err)
	}
	if !err.Fatal() {
		return
	}
	// Fatal errors end the attempt: keep what was transcribed.
	c.mu.Lock()
	session := c.current
	if session != nil {
		session.EndTime = c.clock()
		session.Transcript = c.rec.Entries()
	}
	c.mu.Unlock()
	if session != nil && c.State() == StateListening {
		c.persist(*session)
	}
	c.setState(StateStopped)
}

// persist saves the session, degrading to a logged no-op on storage
// failure so a broken disk never ends captioning.
func (c *Controller) persist(session caption.Session) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := c.sessions.Save(ctx, session); err != nil {
		c.logger.Warn("session save failed", slog.String("session_id", session.ID), slogError(err))
		return
	}
	c.savedCount.Add(c.ctx, 1)
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.hooks.OnState != nil {
		c.hooks.OnState(s)
	}
}

func sessionID(s *caption.Session) string {
	if s == nil {
		return ""
	}
	return s.ID
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
