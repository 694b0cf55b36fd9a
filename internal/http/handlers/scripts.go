package handlers

import (
	"errors"
	"net/http"
	"strings"

	"mediarelay/internal/middleware"
	"mediarelay/internal/providers/script"
)

type scriptRequest struct {
	ProductName string `json:"productName"`
	ProductDesc string `json:"productDesc"`
	Type        string `json:"type"`
	Locale      string `json:"locale"`
}

func (a *App) ScriptGenerate(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProductName) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "Product name is required")
		return
	}
	if a.Script == nil || !a.Script.HasCredentials() {
		a.error(w, http.StatusInternalServerError, "not_configured", a.scriptProviderLabel()+" API key not configured")
		return
	}
	locale := strings.TrimSpace(req.Locale)
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	text, err := a.Script.Write(r.Context(), script.Request{
		ProductName: req.ProductName,
		ProductDesc: req.ProductDesc,
		Type:        script.ParseType(req.Type),
		Locale:      locale,
	})
	if err != nil {
		var upstream *script.UpstreamError
		switch {
		case errors.Is(err, script.ErrProductNameRequired):
			a.error(w, http.StatusBadRequest, "bad_request", "Product name is required")
		case errors.As(err, &upstream):
			a.Logger.Warn().Err(err).Str("provider", upstream.Provider).Msg("script generation rejected")
			a.error(w, http.StatusBadGateway, "upstream_error", upstream.Message)
		default:
			a.Logger.Error().Err(err).Msg("script generation failed")
			a.error(w, http.StatusInternalServerError, "internal", "Failed to generate script")
		}
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "script": text})
}

func (a *App) scriptProviderLabel() string {
	switch a.ScriptProvider {
	case "gemini":
		return "Gemini"
	default:
		return "OpenAI"
	}
}
