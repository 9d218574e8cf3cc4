package runtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/caplight/caplight/internal/caption"
	"github.com/caplight/caplight/internal/format"
	"github.com/caplight/caplight/internal/session"
)

// importLimit caps import payloads well above the store's capacity
// budget so a runaway request cannot exhaust memory.
const importLimit = 32 << 20

func (r *Runtime) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", r.handleState)
	mux.HandleFunc("POST /api/captions/start", r.command(r.controller.Start))
	mux.HandleFunc("POST /api/captions/pause", r.command(r.controller.Pause))
	mux.HandleFunc("POST /api/captions/resume", r.command(r.controller.Resume))
	mux.HandleFunc("POST /api/captions/stop", r.command(r.controller.Stop))
	mux.HandleFunc("POST /api/captions/clear", r.command(r.controller.Clear))
	mux.HandleFunc("PUT /api/captions/language", r.handleLanguage)
	mux.HandleFunc("GET /api/sessions", r.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", r.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", r.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/export", r.handleExportSession)
	mux.HandleFunc("GET /api/export", r.handleExportAll)
	mux.HandleFunc("POST /api/import", r.handleImportAll)
	mux.HandleFunc("GET /api/remote", r.handleRemoteFeed)
	mux.HandleFunc("GET /api/settings", r.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", r.handlePutSettings)
}

type stateResponse struct {
	State        session.State    `json:"state"`
	Session      *caption.Session `json:"session,omitempty"`
	LastError    string           `json:"lastError,omitempty"`
	NearCapacity bool             `json:"nearCapacity"`
}

func (r *Runtime) handleState(w http.ResponseWriter, req *http.Request) {
	resp := stateResponse{State: r.controller.State()}
	if sess, ok := r.controller.Current(); ok {
		resp.Session = &sess
	}
	if err := r.controller.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	near, err := r.sessions.NearCapacityLimit(req.Context())
	if err != nil {
		r.logger.Warn("capacity check failed", slog.String("error", err.Error()))
	}
	resp.NearCapacity = near
	writeJSON(w, http.StatusOK, resp)
}

// command adapts a controller operation to an HTTP handler. Invalid
// transitions map to 409 so clients can distinguish user error from
// server failure.
func (r *Runtime) command(op func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := op(); err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, session.ErrAlreadyListening),
				errors.Is(err, session.ErrNotListening),
				errors.Is(err, session.ErrNotPaused):
				status = http.StatusConflict
			case errors.Is(err, session.ErrClosed):
				status = http.StatusServiceUnavailable
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"state": string(r.controller.State())})
	}
}

func (r *Runtime) handleLanguage(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(body.Language) == "" {
		writeError(w, http.StatusBadRequest, errors.New("language must not be empty"))
		return
	}
	if err := r.controller.SetLanguage(body.Language); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"language": body.Language})
}

func (r *Runtime) handleListSessions(w http.ResponseWriter, req *http.Request) {
	sessions, err := r.sessions.GetAll(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sessions == nil {
		sessions = []caption.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (r *Runtime) handleGetSession(w http.ResponseWriter, req *http.Request) {
	sess, ok, err := r.sessions.Get(req.Context(), req.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("session not found"))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (r *Runtime) handleDeleteSession(w http.ResponseWriter, req *http.Request) {
	if err := r.sessions.Delete(req.Context(), req.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Runtime) handleExportSession(w http.ResponseWriter, req *http.Request) {
	kind, err := format.ParseKind(req.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, ok, err := r.sessions.Get(req.Context(), req.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("session not found"))
		return
	}
	out, err := format.Format(sess.Transcript, kind, sess.StartTime)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", contentType(kind))
	_, _ = w.Write([]byte(out))
}

func (r *Runtime) handleExportAll(w http.ResponseWriter, req *http.Request) {
	payload, err := r.sessions.ExportAll(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(payload))
}

func (r *Runtime) handleImportAll(w http.ResponseWriter, req *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(req.Body, importLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := r.sessions.ImportAll(req.Context(), string(payload)); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sessions, err := r.sessions.GetAll(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": len(sessions)})
}

func (r *Runtime) handleRemoteFeed(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	feed := make([]RemoteEntry, len(r.remote))
	copy(feed, r.remote)
	r.mu.Unlock()
	writeJSON(w, http.StatusOK, feed)
}

func (r *Runtime) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	settings := r.display
	r.mu.Unlock()
	writeJSON(w, http.StatusOK, settings)
}

func (r *Runtime) handlePutSettings(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	settings := r.display
	r.mu.Unlock()

	if err := json.NewDecoder(req.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := settings.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	r.mu.Lock()
	r.display = settings
	r.mu.Unlock()
	writeJSON(w, http.StatusOK, settings)
}

func contentType(kind format.Kind) string {
	switch kind {
	case format.KindJSON:
		return "application/json"
	case format.KindWebVTT:
		return "text/vtt; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
