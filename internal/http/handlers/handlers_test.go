package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/task"
	"mediarelay/internal/task/tasktest"
)

var epoch = time.Date(2024, 11, 6, 12, 0, 0, 0, time.UTC)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func stubBackend(t *testing.T, p *tasktest.Provider) VideoBackend {
	t.Helper()
	orch, err := task.New(task.Options{
		Adapter:    p,
		HTTPClient: p,
		Clock:      tasktest.NewAutoClock(epoch),
	})
	require.NoError(t, err)
	return VideoBackend{Orchestrator: orch, Configured: true}
}

func newVideoApp(t *testing.T, p *tasktest.Provider) *App {
	t.Helper()
	return NewApp(App{
		Videos:        map[string]VideoBackend{"stub": stubBackend(t, p)},
		DefaultVideo:  "stub",
		AwaitSchedule: task.Schedule{Interval: 5 * time.Second, MaxAttempts: 2},
	})
}

func testRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/generate-video", app.VideoGenerate)
	r.Post("/api/video-status", app.VideoStatus)
	r.Get("/api/video-status/{provider}/*", app.VideoStatusByPath)
	r.Post("/api/generate-script", app.ScriptGenerate)
	r.Post("/api/generate-voice", app.VoiceGenerate)
	r.Post("/api/download-image", app.ImageDownload)
	r.Post("/api/auth/signup", app.AuthSignUp)
	r.Post("/api/auth/signin", app.AuthSignIn)
	r.Post("/api/auth/signout", app.AuthSignOut)
	r.Post("/api/auth/recover", app.AuthRecover)
	r.Put("/api/auth/profile", app.AuthUpdateProfile)
	r.Get("/api/auth/me", app.AuthMe)
	r.Get("/api/auth/oauth/{provider}", app.AuthOAuth)
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/providers", app.Providers)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}
