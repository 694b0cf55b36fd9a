package handlers

import (
	"net/http"

	"mediarelay/internal/providers/video"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

type providerInfo struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Default    bool   `json:"default,omitempty"`
}

// Providers reports which generation features have credentials. Secrets are
// never echoed, only their presence.
func (a *App) Providers(w http.ResponseWriter, r *http.Request) {
	videos := make([]providerInfo, 0, len(a.Videos))
	for _, name := range video.Names(a.Videos) {
		videos = append(videos, providerInfo{
			Name:       name,
			Configured: a.Videos[name].Configured,
			Default:    name == a.DefaultVideo,
		})
	}
	a.json(w, http.StatusOK, map[string]any{
		"video": videos,
		"script": providerInfo{
			Name:       a.ScriptProvider,
			Configured: a.Script != nil && a.Script.HasCredentials(),
		},
		"voice": providerInfo{
			Name:       "elevenlabs",
			Configured: a.Voice != nil && a.Voice.HasCredentials(),
		},
		"auth": providerInfo{
			Name:       "supabase",
			Configured: a.Auth.Configured(),
		},
		"activeSessions": a.Hub.Active(),
	})
}
