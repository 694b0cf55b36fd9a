package handlers

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/middleware"
	"mediarelay/internal/providers/image"
	"mediarelay/internal/providers/script"
	"mediarelay/internal/providers/voice"
)

type stubWriter struct {
	configured bool
	text       string
	err        error
	got        script.Request
}

func (s *stubWriter) HasCredentials() bool { return s.configured }

func (s *stubWriter) Write(ctx context.Context, req script.Request) (string, error) {
	s.got = req
	return s.text, s.err
}

func textResponse(status int, contentType, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestScriptGenerate(t *testing.T) {
	w := &stubWriter{configured: true, text: "Stop scrolling."}
	app := NewApp(App{Script: w, ScriptProvider: "openai"})
	h := middleware.I18N("en", nil)(testRouter(app))

	rec, body := do(t, h, http.MethodPost, "/api/generate-script",
		map[string]any{"productName": "Kopi Susu", "type": "offer"},
		"Accept-Language", "id-ID")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"success": true, "script": "Stop scrolling."}, body)
	assert.Equal(t, script.TypeOffer, w.got.Type)
	assert.Equal(t, "id", w.got.Locale)
}

func TestScriptGenerateErrors(t *testing.T) {
	tests := map[string]struct {
		writer  *stubWriter
		body    map[string]any
		expCode int
		expMsg  string
	}{
		"missing product": {
			writer:  &stubWriter{configured: true},
			body:    map[string]any{"productName": " "},
			expCode: http.StatusBadRequest,
			expMsg:  "Product name is required",
		},
		"missing key": {
			writer:  &stubWriter{},
			body:    map[string]any{"productName": "Tea"},
			expCode: http.StatusInternalServerError,
			expMsg:  "OpenAI API key not configured",
		},
		"upstream error": {
			writer:  &stubWriter{configured: true, err: &script.UpstreamError{Provider: "openai", Status: 429, Message: "Rate limit reached"}},
			body:    map[string]any{"productName": "Tea"},
			expCode: http.StatusBadGateway,
			expMsg:  "Rate limit reached",
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			app := NewApp(App{Script: test.writer, ScriptProvider: "openai"})
			rec, body := do(t, testRouter(app), http.MethodPost, "/api/generate-script", test.body)

			assert.Equal(t, test.expCode, rec.Code)
			assert.Equal(t, test.expMsg, body["error"])
		})
	}
}

func TestVoiceGenerate(t *testing.T) {
	var gotPath, gotKey string
	client := voice.NewClient(voice.Options{
		APIKey:  "xi-key",
		BaseURL: "https://voice.test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			gotPath = r.URL.Path
			gotKey = r.Header.Get("xi-api-key")
			return textResponse(http.StatusOK, "audio/mpeg", "ID3-audio"), nil
		})},
	})
	app := NewApp(App{Voice: client})

	rec, body := do(t, testRouter(app), http.MethodPost, "/api/generate-voice", map[string]any{"text": "Hello there"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/v1/text-to-speech/"+voice.DefaultVoiceID, gotPath)
	assert.Equal(t, "xi-key", gotKey)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "audio/mpeg", body["contentType"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("ID3-audio")), body["audioData"])
}

func TestVoiceGenerateErrors(t *testing.T) {
	upstream := voice.NewClient(voice.Options{
		APIKey: "xi-key",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return textResponse(http.StatusUnauthorized, "application/json", `{"detail":{"message":"Invalid API key"}}`), nil
		})},
	})
	tests := map[string]struct {
		client  *voice.Client
		body    map[string]any
		expCode int
		expMsg  string
	}{
		"missing text":  {client: upstream, body: map[string]any{"text": ""}, expCode: http.StatusBadRequest, expMsg: "Text is required"},
		"missing key":   {client: voice.NewClient(voice.Options{}), body: map[string]any{"text": "hi"}, expCode: http.StatusInternalServerError, expMsg: "ElevenLabs API key not configured"},
		"vendor refuse": {client: upstream, body: map[string]any{"text": "hi"}, expCode: http.StatusBadGateway, expMsg: "Invalid API key"},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			rec, body := do(t, testRouter(NewApp(App{Voice: test.client})), http.MethodPost, "/api/generate-voice", test.body)

			assert.Equal(t, test.expCode, rec.Code)
			assert.Equal(t, test.expMsg, body["error"])
		})
	}
}

func TestImageDownload(t *testing.T) {
	fetcher := image.NewFetcher(image.Options{
		AllowedHosts: []string{"example.com"},
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Host != "cdn.example.com" {
				t.Fatalf("unexpected host %s", r.URL.Host)
			}
			return textResponse(http.StatusOK, "image/jpeg; charset=binary", "jpeg-bytes"), nil
		})},
	})
	h := testRouter(NewApp(App{Images: fetcher}))

	rec, body := do(t, h, http.MethodPost, "/api/download-image", map[string]any{"imageUrl": "https://cdn.example.com/a.jpg"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", body["contentType"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")), body["imageData"])

	rec, body = do(t, h, http.MethodPost, "/api/download-image", map[string]any{"imageUrl": "https://evil.test/a.jpg"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Image host is not allowed", body["error"])

	rec, body = do(t, h, http.MethodPost, "/api/download-image", map[string]any{"imageUrl": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Image URL is required", body["error"])
}

func TestImageDownloadUpstreamFailure(t *testing.T) {
	fetcher := image.NewFetcher(image.Options{
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return textResponse(http.StatusNotFound, "text/plain", "nope"), nil
		})},
	})
	rec, body := do(t, testRouter(NewApp(App{Images: fetcher})), http.MethodPost, "/api/download-image", map[string]any{"imageUrl": "https://cdn.example.com/missing.png"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Failed to fetch image", body["error"])
}

func TestImageDownloadRefusesInternalTargets(t *testing.T) {
	fetcher := image.NewFetcher(image.Options{
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return textResponse(http.StatusOK, "text/plain", "internal-metadata-secret"), nil
		})},
	})
	h := testRouter(NewApp(App{Images: fetcher}))

	rec, body := do(t, h, http.MethodPost, "/api/download-image", map[string]any{"imageUrl": "http://169.254.169.254/latest/meta-data"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Image host is not allowed", body["error"])

	rec, body = do(t, h, http.MethodPost, "/api/download-image", map[string]any{"imageUrl": "https://cdn.example.com/notes.txt"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "URL does not point to an image", body["error"])
	assert.NotContains(t, rec.Body.String(), "imageData")
}
