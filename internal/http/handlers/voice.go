package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"mediarelay/internal/providers/voice"
)

type voiceRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
}

func (a *App) VoiceGenerate(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "Text is required")
		return
	}
	if a.Voice == nil || !a.Voice.HasCredentials() {
		a.error(w, http.StatusInternalServerError, "not_configured", "ElevenLabs API key not configured")
		return
	}
	audio, err := a.Voice.Synthesize(r.Context(), voice.Request{Text: req.Text, VoiceID: req.VoiceID})
	if err != nil {
		var upstream *voice.UpstreamError
		switch {
		case errors.Is(err, voice.ErrTextRequired):
			a.error(w, http.StatusBadRequest, "bad_request", "Text is required")
		case errors.As(err, &upstream):
			a.Logger.Warn().Err(err).Int("upstream_status", upstream.Status).Msg("voice synthesis rejected")
			a.error(w, http.StatusBadGateway, "upstream_error", upstream.Message)
		default:
			a.Logger.Error().Err(err).Msg("voice synthesis failed")
			a.error(w, http.StatusInternalServerError, "internal", "Failed to generate voice")
		}
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":     true,
		"audioData":   base64.StdEncoding.EncodeToString(audio.Data),
		"contentType": audio.ContentType,
	})
}
