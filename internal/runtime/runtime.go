package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caplight/caplight/internal/bus"
	"github.com/caplight/caplight/internal/caption"
	"github.com/caplight/caplight/internal/config"
	"github.com/caplight/caplight/internal/kv"
	"github.com/caplight/caplight/internal/natsserver"
	"github.com/caplight/caplight/internal/recognizer"
	"github.com/caplight/caplight/internal/session"
	"github.com/caplight/caplight/internal/sharing"
	"github.com/caplight/caplight/internal/store"
)

// remoteFeedLimit bounds the in-memory buffer of captions received from
// other participants.
const remoteFeedLimit = 200

// RemoteEntry is a caption received from another participant.
type RemoteEntry struct {
	SessionID string                  `json:"sessionId"`
	SenderID  string                  `json:"senderId"`
	Entry     caption.TranscriptEntry `json:"entry"`
}

// Runtime assembles the pieces of caplightd: storage, recognizer,
// session controller, optional caption sharing over NATS, and the HTTP
// control surface.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error

	kvStore    kv.Store
	sessions   *store.SessionStore
	controller *session.Controller
	sharingSvc *sharing.Service
	busClient  *bus.Client
	embedded   *natsserver.EmbeddedServer

	ready atomic.Bool
	wg    sync.WaitGroup

	mu      sync.Mutex
	display caption.Settings
	remote  []RemoteEntry
	lastErr error
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		logger:  logger,
		display: cfg.Display,
	}
}

// Start brings the runtime up and blocks until ctx is cancelled, then
// shuts everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	kvStore, err := kv.OpenSQLite(ctx, r.cfg.Store.Path, r.logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	r.kvStore = kvStore
	r.sessions = store.New(kvStore, r.cfg.Store, r.logger)

	if r.cfg.Sharing.Enabled {
		if err := r.startSharing(ctx); err != nil {
			return err
		}
	}

	engine, err := r.buildEngine()
	if err != nil {
		return fmt.Errorf("build recognizer engine: %w", err)
	}

	var pub session.EntryPublisher
	if r.sharingSvc != nil {
		pub = r.sharingSvc
	}
	controller, err := session.NewController(ctx, r.cfg, engine, r.sessions, pub, session.Hooks{
		OnError: r.recordError,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("start session controller: %w", err)
	}
	r.controller = controller

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}
	r.registerAPI(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.controller.Close()
	if r.sharingSvc != nil {
		r.sharingSvc.Close()
	}
	r.busClient.Close()
	r.embedded.Shutdown()
	if err := r.kvStore.Close(); err != nil {
		r.logger.Error("store close error", slog.String("error", err.Error()))
	}

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) startSharing(ctx context.Context) error {
	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}
	r.embedded = embedded

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		r.embedded.Shutdown()
		return fmt.Errorf("connect to bus: %w", err)
	}
	r.busClient = busClient

	r.sharingSvc = sharing.NewService(r.cfg.Sharing, busClient, r.recordRemote, r.logger)
	if err := r.sharingSvc.Start(); err != nil {
		busClient.Close()
		r.embedded.Shutdown()
		return fmt.Errorf("start caption sharing: %w", err)
	}
	return nil
}

func (r *Runtime) buildEngine() (recognizer.Engine, error) {
	switch r.cfg.Recognizer.Mode {
	case "exec":
		return recognizer.NewExecEngine(r.cfg.Recognizer.Command)
	default:
		return recognizer.NewMockEngine(), nil
	}
}

func (r *Runtime) recordRemote(sessionID string, entry caption.TranscriptEntry, senderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remote = append(r.remote, RemoteEntry{SessionID: sessionID, SenderID: senderID, Entry: entry})
	if len(r.remote) > remoteFeedLimit {
		r.remote = r.remote[len(r.remote)-remoteFeedLimit:]
	}
}

func (r *Runtime) recordError(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	r.logger.Warn("recognition error", slog.String("error", err.Error()))
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.sharingSvc == nil || r.sharingSvc.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
