package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/caplight/caplight/internal/caption"
	"github.com/caplight/caplight/internal/config"
	"github.com/caplight/caplight/internal/kv"
	"github.com/caplight/caplight/internal/recognizer"
	"github.com/caplight/caplight/internal/session"
	"github.com/caplight/caplight/internal/store"
)

type apiFixture struct {
	rt     *Runtime
	engine *recognizer.MockEngine
	mux    *http.ServeMux
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rt := New(cfg, logger)
	rt.sessions = store.New(kv.NewMemoryStore(), cfg.Store, logger)

	engine := recognizer.NewMockEngine()
	ctrl, err := session.NewController(context.Background(), cfg, engine, rt.sessions, nil, session.Hooks{}, logger)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(ctrl.Close)
	rt.controller = ctrl

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/readyz", rt.handleReady)
	rt.registerAPI(mux)
	return &apiFixture{rt: rt, engine: engine, mux: mux}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) waitForTranscript(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sess, ok := f.rt.controller.Current(); ok && len(sess.Transcript) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("transcript did not reach expected length")
}

func TestCaptionCommandLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	if rec := f.do(t, http.MethodPost, "/api/captions/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start: status %d body %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodPost, "/api/captions/start", ""); rec.Code != http.StatusConflict {
		t.Fatalf("second start should conflict, got %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/state", "")
	var resp stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if resp.State != session.StateListening || resp.Session == nil {
		t.Fatalf("unexpected state response: %+v", resp)
	}

	if rec := f.do(t, http.MethodPost, "/api/captions/pause", ""); rec.Code != http.StatusOK {
		t.Fatalf("pause: status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/captions/resume", ""); rec.Code != http.StatusOK {
		t.Fatalf("resume: status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/captions/stop", ""); rec.Code != http.StatusOK {
		t.Fatalf("stop: status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/captions/resume", ""); rec.Code != http.StatusConflict {
		t.Fatalf("resume after stop should conflict, got %d", rec.Code)
	}
}

func TestSessionListingAndExport(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/captions/start", "")
	f.engine.EmitResults(recognizer.EngineResult{
		Text: "good morning everyone", Confidence: 0.9, IsFinal: true,
	})
	f.waitForTranscript(t, 1)
	f.do(t, http.MethodPost, "/api/captions/stop", "")

	rec := f.do(t, http.MethodGet, "/api/sessions", "")
	var sessions []caption.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	id := sessions[0].ID

	rec = f.do(t, http.MethodGet, "/api/sessions/"+id+"/export?format=srt", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status %d body %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Good morning everyone") || !strings.Contains(body, " --> ") {
		t.Fatalf("unexpected SRT output:\n%s", body)
	}

	if rec := f.do(t, http.MethodGet, "/api/sessions/"+id+"/export?format=tab", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown format should 400, got %d", rec.Code)
	}

	if rec := f.do(t, http.MethodDelete, "/api/sessions/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/sessions/"+id, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted session should 404, got %d", rec.Code)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/captions/start", "")
	f.engine.EmitResults(recognizer.EngineResult{Text: "keep this line", IsFinal: true})
	f.waitForTranscript(t, 1)
	f.do(t, http.MethodPost, "/api/captions/stop", "")

	backup := f.do(t, http.MethodGet, "/api/export", "").Body.String()

	rec := f.do(t, http.MethodGet, "/api/sessions", "")
	var sessions []caption.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	f.do(t, http.MethodDelete, "/api/sessions/"+sessions[0].ID, "")

	rec = f.do(t, http.MethodPost, "/api/import", backup)
	if rec.Code != http.StatusOK {
		t.Fatalf("import: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodGet, "/api/sessions", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Transcript[0].Text != "Keep this line" {
		t.Fatalf("import did not restore session: %+v", sessions)
	}

	if rec := f.do(t, http.MethodPost, "/api/import", "not json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad import should 400, got %d", rec.Code)
	}
}

func TestSettingsValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPut, "/api/settings", `{"font_size":"enormous"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid settings should 400, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPut, "/api/settings", `{"font_size":"large","position":"top"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid settings: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/settings", "")
	var settings caption.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if settings.FontSize != "large" || settings.Position != "top" {
		t.Fatalf("settings not applied: %+v", settings)
	}
	// Untouched fields keep their configured values.
	if settings.TextColor != "white" {
		t.Fatalf("expected text color preserved, got %q", settings.TextColor)
	}
}

func TestLanguageEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	if rec := f.do(t, http.MethodPut, "/api/captions/language", `{"language":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty language should 400, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPut, "/api/captions/language", `{"language":"fr-FR"}`); rec.Code != http.StatusOK {
		t.Fatalf("set language: status %d", rec.Code)
	}
	if got := f.engine.Language(); got != "fr-FR" {
		t.Fatalf("engine language not updated: %q", got)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	if rec := f.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", rec.Code)
	}
	// Readiness flips only once Start has brought everything up.
	if rec := f.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before start should be 503, got %d", rec.Code)
	}
	f.rt.ready.Store(true)
	if rec := f.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz: status %d", rec.Code)
	}
}
