package sharing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/caplight/caplight/internal/bus"
	"github.com/caplight/caplight/internal/caption"
	"github.com/caplight/caplight/internal/config"
	"github.com/caplight/caplight/internal/protocol"
	"github.com/nats-io/nats.go"
)

// RemoteHandler receives caption updates published by other
// participants.
type RemoteHandler func(sessionID string, entry caption.TranscriptEntry, senderID string)

// Service fans local final captions out over the bus and delivers
// remote ones back to the caller. Interim results never leave the
// process.
type Service struct {
	cfg    config.SharingConfig
	bus    *bus.Client
	logger *slog.Logger

	onRemote RemoteHandler
	sub      *nats.Subscription

	mu       sync.Mutex
	received int
	sent     int
}

func NewService(cfg config.SharingConfig, busClient *bus.Client, onRemote RemoteHandler, logger *slog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		bus:      busClient,
		onRemote: onRemote,
		logger:   logger.With(slog.String("component", "sharing")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Subscribe(protocol.SubjectCaptionUpdates, s.handleUpdate)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("caption sharing enabled", slog.String("sender_id", s.cfg.SenderID))
	return nil
}

func (s *Service) Close() {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.sub != nil
}

// PublishEntry sends a final transcript entry to the other
// participants. Disabled sharing is a silent no-op so the session
// controller never needs to care.
func (s *Service) PublishEntry(_ context.Context, sessionID string, entry caption.TranscriptEntry) error {
	if !s.cfg.Enabled {
		return nil
	}
	payload, err := protocol.EncodeCaptionUpdate(protocol.CaptionUpdate{
		SessionID: sessionID,
		Entry:     entry,
		SenderID:  s.cfg.SenderID,
	})
	if err != nil {
		return err
	}
	if err := s.bus.Publish(protocol.SubjectCaptionUpdates, payload); err != nil {
		return err
	}
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return nil
}

func (s *Service) handleUpdate(msg *nats.Msg) {
	update, err := protocol.DecodeCaptionUpdate(msg.Data)
	if err != nil {
		s.logger.Warn("dropping malformed caption update", slog.String("error", err.Error()))
		return
	}
	if update.SenderID == s.cfg.SenderID {
		// Our own publish echoing back.
		return
	}
	s.mu.Lock()
	s.received++
	s.mu.Unlock()
	if s.onRemote != nil {
		s.onRemote(update.SessionID, update.Entry, update.SenderID)
	}
}

// Stats reports how many updates have been sent and received.
func (s *Service) Stats() (sent, received int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.received
}
