// Package store persists caption sessions in a local key-value
// substrate. Layout: one aggregate list of all sessions under a single
// key, plus one entry per session under a prefixed key for quick
// individual lookup.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/caplight/caplight/internal/caption"
	"github.com/caplight/caplight/internal/config"
	"github.com/caplight/caplight/internal/kv"
)

const (
	aggregateKey     = "caption-sessions"
	sessionKeyPrefix = "caption-session:"
)

// ErrInvalidImport is returned when an import payload is not a sequence
// of session-shaped records. Nothing is committed in that case.
var ErrInvalidImport = errors.New("import payload is not a list of caption sessions")

// SessionStore upserts sessions by id. It is not safe for concurrent
// writers across separate processes; last writer wins.
type SessionStore struct {
	kv  kv.Store
	cfg config.StoreConfig
	log *slog.Logger
}

func New(substrate kv.Store, cfg config.StoreConfig, log *slog.Logger) *SessionStore {
	return &SessionStore{
		kv:  substrate,
		cfg: cfg,
		log: log.With(slog.String("component", "session-store")),
	}
}

// Save upserts one session into both the aggregate list and its own key.
func (s *SessionStore) Save(ctx context.Context, session caption.Session) error {
	if session.ID == "" {
		return errors.New("session id must not be empty")
	}
	sessions, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range sessions {
		if sessions[i].ID == session.ID {
			sessions[i] = session
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, session)
	}
	if err := s.writeAggregate(ctx, sessions); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.kv.Put(ctx, sessionKeyPrefix+session.ID, data)
}

// Get looks a single session up by id via its dedicated key.
func (s *SessionStore) Get(ctx context.Context, id string) (caption.Session, bool, error) {
	data, ok, err := s.kv.Get(ctx, sessionKeyPrefix+id)
	if err != nil || !ok {
		return caption.Session{}, false, err
	}
	var session caption.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return caption.Session{}, false, fmt.Errorf("decode session %s: %w", id, err)
	}
	return session, true, nil
}

// GetAll returns every stored session with timestamp fields reconstructed
// as time values, in stored order.
func (s *SessionStore) GetAll(ctx context.Context) ([]caption.Session, error) {
	data, ok, err := s.kv.Get(ctx, aggregateKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var sessions []caption.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("decode session list: %w", err)
	}
	return sessions, nil
}

// Delete removes a session from the aggregate list and its own key.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	sessions, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	kept := sessions[:0]
	for _, sess := range sessions {
		if sess.ID != id {
			kept = append(kept, sess)
		}
	}
	if err := s.writeAggregate(ctx, kept); err != nil {
		return err
	}
	return s.kv.Delete(ctx, sessionKeyPrefix+id)
}

// ExportAll serializes every session as a pretty-printed JSON array for
// backup.
func (s *SessionStore) ExportAll(ctx context.Context) (string, error) {
	sessions, err := s.GetAll(ctx)
	if err != nil {
		return "", err
	}
	if sessions == nil {
		sessions = []caption.Session{}
	}
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sessions: %w", err)
	}
	return string(data), nil
}

// ImportAll replaces the stored sessions with the given backup payload.
// The whole payload is validated before any write; a structurally invalid
// payload commits nothing and returns ErrInvalidImport.
func (s *SessionStore) ImportAll(ctx context.Context, payload string) error {
	var sessions []caption.Session
	if err := json.Unmarshal([]byte(payload), &sessions); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidImport, err)
	}
	for i, sess := range sessions {
		if sess.ID == "" {
			return fmt.Errorf("%w: record %d has no id", ErrInvalidImport, i)
		}
	}

	existing, err := s.kv.Keys(ctx, sessionKeyPrefix)
	if err != nil {
		return err
	}
	for _, key := range existing {
		if err := s.kv.Delete(ctx, key); err != nil {
			return err
		}
	}
	if err := s.writeAggregate(ctx, sessions); err != nil {
		return err
	}
	for _, sess := range sessions {
		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		if err := s.kv.Put(ctx, sessionKeyPrefix+sess.ID, data); err != nil {
			return err
		}
	}
	s.log.Info("imported sessions", slog.Int("count", len(sessions)))
	return nil
}

// SizeInBytes reports the aggregate stored size.
func (s *SessionStore) SizeInBytes(ctx context.Context) (int64, error) {
	return s.kv.SizeInBytes(ctx)
}

// NearCapacityLimit reports whether the stored size exceeds the warn
// ratio of the soft capacity budget.
func (s *SessionStore) NearCapacityLimit(ctx context.Context) (bool, error) {
	size, err := s.kv.SizeInBytes(ctx)
	if err != nil {
		return false, err
	}
	threshold := float64(s.cfg.CapacityBytes) * s.cfg.WarnRatio
	return float64(size) > threshold, nil
}

func (s *SessionStore) writeAggregate(ctx context.Context, sessions []caption.Session) error {
	if len(sessions) == 0 {
		sessions = []caption.Session{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("marshal session list: %w", err)
	}
	return s.kv.Put(ctx, aggregateKey, data)
}
