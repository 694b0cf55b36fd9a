package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"mediarelay/internal/auth"
	"mediarelay/internal/infra"
	"mediarelay/internal/providers/image"
	"mediarelay/internal/providers/script"
	"mediarelay/internal/providers/video"
	"mediarelay/internal/providers/voice"
	"mediarelay/internal/task"
)

const maxRequestBytes = 1 << 20

type VideoBackend = video.Backend

// ScriptWriter is a script.Writer that can report missing credentials.
type ScriptWriter interface {
	script.Writer
	HasCredentials() bool
}

type App struct {
	Logger *infra.Logger

	Videos        map[string]VideoBackend
	DefaultVideo  string
	AwaitSchedule task.Schedule
	// AwaitBudget caps a blocking generate call so the answer is written
	// before the server's write timeout. Zero means no cap.
	AwaitBudget time.Duration

	Script         ScriptWriter
	ScriptProvider string
	Voice          *voice.Client
	Images         *image.Fetcher

	Auth *auth.Client
	Hub  *auth.Hub
}

// NewApp fills in defaults for anything the caller left unset.
func NewApp(app App) *App {
	if app.Logger == nil {
		app.Logger = infra.DiscardLogger()
	}
	if app.Videos == nil {
		app.Videos = map[string]VideoBackend{}
	}
	if app.Auth == nil {
		app.Auth = auth.NewClient(auth.Options{Logger: app.Logger})
	}
	if app.Hub == nil {
		app.Hub = auth.NewHub()
	}
	if app.AwaitSchedule.MaxAttempts == 0 && app.AwaitSchedule.Deadline == 0 {
		app.AwaitSchedule = task.Schedule{Interval: 5 * time.Second, MaxAttempts: 24}
	}
	return &app
}

func (a *App) videoBackend(name string) (string, VideoBackend, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = a.DefaultVideo
	}
	b, ok := a.Videos[name]
	return name, b, ok && b.Orchestrator != nil
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, map[string]string{"error": msg, "code": errCode})
}
