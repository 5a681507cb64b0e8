package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voicescribe/voicescribe/internal/activity"
	"github.com/voicescribe/voicescribe/internal/capture"
	"github.com/voicescribe/voicescribe/internal/config"
	"github.com/voicescribe/voicescribe/internal/recorder"
	"github.com/voicescribe/voicescribe/internal/resolver"
	"github.com/voicescribe/voicescribe/internal/session"
	"github.com/voicescribe/voicescribe/internal/sweeper"
	"github.com/voicescribe/voicescribe/internal/transcription"
)

type discardSink struct{}

func (discardSink) Emit(sweeper.TranscriptEvent) {}

// newTestServer wires a complete pipeline around temp directories and a stub
// transcription endpoint.
func newTestServer(t *testing.T) (*HTTPServer, *activity.Tracker, *capture.ChanSource) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))

	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "ok"}`))
	}))
	t.Cleanup(stub.Close)

	engine, err := transcription.NewClient(transcription.Config{
		Endpoint: stub.URL,
		Decode:   transcription.DefaultDecodeOptions(),
	})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	tracker := activity.NewTracker()
	source := capture.NewChanSource(16)

	provider, err := capture.NewProvider(source, 48000, logger)
	if err != nil {
		t.Fatalf("NewProvider() failed: %v", err)
	}

	names := resolver.New(nil, 0, logger)

	sessionCfg := session.Config{
		StagingDir: t.TempDir(),
		Settle:     10 * time.Millisecond,
		Recorder: recorder.Config{
			BaseDuration: 50 * time.Millisecond,
			Grace:        10 * time.Millisecond,
			SilenceHold:  10 * time.Millisecond,
			TickInterval: 5 * time.Millisecond,
			Backoff:      10 * time.Millisecond,
		},
		Sweeper: sweeper.Config{
			Interval:      20 * time.Millisecond,
			SettleAge:     10 * time.Millisecond,
			MinBytes:      1024,
			EngineTimeout: time.Second,
		},
	}

	controller, err := session.NewController(sessionCfg, provider, tracker, engine, names, discardSink{}, logger, nil)
	if err != nil {
		t.Fatalf("NewController() failed: %v", err)
	}
	t.Cleanup(controller.Stop)

	cfg := config.Default()
	cfg.Transcription.Endpoint = stub.URL
	cfg.Transcription.APIKey = "super-secret"

	srv := NewHTTPServer(context.Background(), cfg, logger, controller, tracker, source, engine, names, nil)

	return srv, tracker, source
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func do(t *testing.T, srv *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}

	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", health["status"])
	}
}

func TestSessionEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /session = %d, want 200", rec.Code)
	}

	var info session.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if info.Active {
		t.Error("session should not be active before start")
	}
}

func TestSessionStartStop(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/session/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /session/start = %d, want 200: %s", rec.Code, rec.Body)
	}

	var started map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if started["session_id"] == "" {
		t.Error("start response should carry a session_id")
	}

	rec = do(t, srv, http.MethodGet, "/session", "")
	var info session.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if !info.Active {
		t.Error("session should be active after start")
	}

	rec = do(t, srv, http.MethodPost, "/session/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /session/stop = %d, want 200", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/session", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if info.Active {
		t.Error("session should not be active after stop")
	}
}

func TestActivityIngest(t *testing.T) {
	srv, tracker, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/activity", `{"participant_id": "42", "speaking": true}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("POST /activity = %d, want 204", rec.Code)
	}

	if !tracker.Snapshot().Speaking {
		t.Error("tracker should report speaking after activity report")
	}

	rec = do(t, srv, http.MethodPost, "/activity", `{"speaking": true}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing participant_id = %d, want 400", rec.Code)
	}

	rec = do(t, srv, http.MethodPost, "/activity", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body = %d, want 400", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/activity", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /activity = %d, want 405", rec.Code)
	}
}

func TestFrameIngest(t *testing.T) {
	srv, _, source := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/frames", `{"participant_id": "42", "samples": [1, -2, 3]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /frames = %d, want 200", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp["accepted"] != true {
		t.Errorf("accepted = %v, want true", resp["accepted"])
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frame, err := source.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame() failed: %v", err)
	}
	if frame.ParticipantID != "42" {
		t.Errorf("ParticipantID = %q, want %q", frame.ParticipantID, "42")
	}
	if len(frame.Samples) != 3 {
		t.Errorf("len(Samples) = %d, want 3", len(frame.Samples))
	}

	rec = do(t, srv, http.MethodPost, "/frames", `{"samples": [1]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing participant_id = %d, want 400", rec.Code)
	}
}

func TestConfigEndpointOmitsAPIKey(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /config = %d, want 200", rec.Code)
	}

	if strings.Contains(rec.Body.String(), "super-secret") {
		t.Error("config response must not expose the API key")
	}
	if !strings.Contains(rec.Body.String(), "staging_dir") {
		t.Error("config response should include session settings")
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /stats = %d, want 200", rec.Code)
	}

	var stats map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	for _, key := range []string{"session", "transcription", "resolver", "uptime"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("stats response missing %q", key)
		}
	}
}

func TestRootEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / = %d, want 200", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/nonexistent", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /nonexistent = %d, want 404", rec.Code)
	}
}
