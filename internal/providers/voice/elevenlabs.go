package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediarelay/internal/infra"
)

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("voice: api key is required")
	// ErrTextRequired is returned for requests with blank text.
	ErrTextRequired = errors.New("voice: text is required")
)

const (
	DefaultVoiceID = "EXAVITQu4vr4xnSDxMaL"
	defaultModel   = "eleven_monolingual_v1"
	defaultBaseURL = "https://api.elevenlabs.io"
	maxAudioBytes  = 25 << 20
)

// Options configures the ElevenLabs client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	DefaultVoiceID string
	Stability      float64
	Similarity     float64
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs text-to-speech calls against ElevenLabs.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	defaultVoice string
	stability    float64
	similarity   float64
	httpClient   *http.Client
	logger       *infra.Logger
}

// Request is one synthesis call. An empty VoiceID uses the configured default.
type Request struct {
	Text    string
	VoiceID string
}

// Audio is the synthesized clip.
type Audio struct {
	Data        []byte
	ContentType string
}

// UpstreamError carries the vendor's message for a rejected synthesis.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("voice: elevenlabs status %d: %s", e.Status, e.Message)
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type errorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	voiceID := strings.TrimSpace(opts.DefaultVoiceID)
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	stability := opts.Stability
	if stability <= 0 {
		stability = 0.5
	}
	similarity := opts.Similarity
	if similarity <= 0 {
		similarity = 0.75
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		model:        model,
		defaultVoice: voiceID,
		stability:    stability,
		similarity:   similarity,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Synthesize converts text to speech and returns the raw audio bytes.
func (c *Client) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrTextRequired
	}
	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" {
		voiceID = c.defaultVoice
	}
	payload := synthesisRequest{
		Text:    text,
		ModelID: c.model,
		VoiceSettings: voiceSettings{
			Stability:       c.stability,
			SimilarityBoost: c.similarity,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("voice: encode request: %w", err)
	}
	endpoint := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("voice: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("voice: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("voice: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var detail errorResponse
		msg := "voice generation failed"
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail.Message != "" {
			msg = detail.Detail.Message
		}
		return nil, &UpstreamError{Status: resp.StatusCode, Message: msg}
	}
	if len(raw) == 0 {
		return nil, errors.New("voice: empty audio")
	}
	c.logger.Debug().
		Str("voice_id", voiceID).
		Str("model", c.model).
		Int("bytes", len(raw)).
		Msg("voice: synthesized audio")
	return &Audio{Data: raw, ContentType: "audio/mpeg"}, nil
}
